// Package controller drives one load run: it talks to a worker over messages,
// polls bulk jobs, handles aborts and aggregates the outcome.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/comfforts/logger"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hankgalt/load-orchestra/internal/poller"
	"github.com/hankgalt/load-orchestra/internal/results"
	"github.com/hankgalt/load-orchestra/internal/strategies"
	"github.com/hankgalt/load-orchestra/internal/worker"
	"github.com/hankgalt/load-orchestra/pkg/domain"
)

const (
	ERR_ALREADY_STARTED  = "controller: run already started"
	ERR_NOT_ABORTABLE    = "controller: run cannot be aborted in its current state"
	ERR_ABORT_JOB        = "controller: error aborting remote job"
	ERR_LOAD_FAILED      = "controller: load failed"
	ERR_UNEXPECTED_REPLY = "controller: unexpected worker reply"
	ERR_ABORT_INCOMPLETE = "load aborted before all submitted batches finished processing"
	ERR_FINAL_FETCH      = "final job status fetch failed"
	ERR_MISSING_BULK_JOB = "bulk load returned no job"
)

var (
	ErrAlreadyStarted  = errors.New(ERR_ALREADY_STARTED)
	ErrNotAbortable    = errors.New(ERR_NOT_ABORTABLE)
	ErrAbortJob        = errors.New(ERR_ABORT_JOB)
	ErrLoadFailed      = errors.New(ERR_LOAD_FAILED)
	ErrUnexpectedReply = errors.New(ERR_UNEXPECTED_REPLY)
)

// Config bounds polling. Zero values use the poller defaults.
type Config struct {
	PollInterval    time.Duration
	MaxPollAttempts int
}

// Listener receives every status change. It may be called from more than one goroutine.
type Listener func(domain.LoadStatus)

type Option func(*Controller)

func WithConfig(cfg Config) Option {
	return func(c *Controller) { c.cfg = cfg }
}

func WithListener(fn Listener) Option {
	return func(c *Controller) { c.listener = fn }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// Request is one load run.
type Request struct {
	RunID       string
	Object      string
	Operation   domain.Operation
	Rows        []domain.RawRow
	Mapping     domain.FieldMapping
	InsertNulls bool
	DateFormat  domain.DateFormat
	Options     domain.LoadOptions
}

// Outcome is the final status of a run. Results is nil when the run ended in Error.
type Outcome struct {
	Status  domain.LoadStatus
	Results *results.Aggregator
}

// Controller owns the state of a single run. It is not reusable.
type Controller struct {
	store    domain.RecordStore
	bulk     domain.BulkAPI
	cfg      Config
	listener Listener
	logger   *slog.Logger

	mu             sync.Mutex
	started        bool
	status         domain.LoadStatus
	worker         *worker.Worker
	job            *domain.JobInfo
	abortRequested bool
	abortIssued    bool
	pollCancel     context.CancelFunc
}

func New(store domain.RecordStore, opts ...Option) *Controller {
	c := &Controller{
		store:  store,
		logger: logger.GetSlogLogger(),
	}
	if bulk, ok := domain.AsBulk(store); ok {
		c.bulk = bulk
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Status returns a snapshot of the run state.
func (c *Controller) Status() domain.LoadStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

// Job returns the last known remote job, if any.
func (c *Controller) Job() *domain.JobInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.job.Clone()
}

// Run executes the load and blocks until it is Finished or in Error.
// A run ending in Error returns its outcome together with an error wrapping ErrLoadFailed.
func (c *Controller) Run(ctx context.Context, req Request) (*Outcome, error) {
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	w := worker.New(c.store, c.logger)

	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	c.started = true
	c.worker = w
	c.status = domain.LoadStatus{RunID: runID, State: domain.LoadStatePreparing}
	st := c.snapshot()
	c.mu.Unlock()
	c.notify(st)

	c.logger.Debug(
		"Controller.Run - starting load",
		"run-id", runID,
		"object", req.Object,
		"operation", req.Operation,
		"mode", req.Options.Mode,
		"rows", len(req.Rows),
	)

	var out *Outcome
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Run(gctx)
	})
	g.Go(func() error {
		defer w.Close()
		o, err := c.drive(gctx, w, req)
		out = o
		return err
	})
	if err := g.Wait(); err != nil {
		c.logger.Error("Controller.Run - load interrupted", "run-id", runID, "error", err.Error())
		o := c.fail(err.Error())
		return o, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}

	if out.Status.State == domain.LoadStateError {
		return out, fmt.Errorf("%w: %s", ErrLoadFailed, out.Status.ErrorMessage)
	}
	return out, nil
}

// Abort stops the run. Remaining batches are not submitted and polling stops.
// The remote job is aborted when its id is known, otherwise as soon as it becomes known.
func (c *Controller) Abort(ctx context.Context) error {
	c.mu.Lock()
	if !domain.AbortableStates.Has(c.status.State) {
		state := c.status.State
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotAbortable, state)
	}
	c.abortRequested = true
	c.status.State = domain.LoadStateAborting
	w, cancel := c.worker, c.pollCancel
	jobID := c.status.JobID
	issue := jobID != "" && !c.abortIssued
	if issue {
		c.abortIssued = true
	}
	st := c.snapshot()
	c.mu.Unlock()
	c.notify(st)

	c.logger.Debug("Controller.Abort - abort requested", "run-id", st.RunID, "job-id", jobID)
	if w != nil {
		w.Abort()
	}
	if cancel != nil {
		cancel()
	}
	if issue {
		return c.abortJob(ctx, jobID)
	}
	return nil
}

func (c *Controller) abortJob(ctx context.Context, jobID string) error {
	if c.bulk == nil {
		return nil
	}
	if _, err := c.bulk.AbortJob(ctx, jobID); err != nil {
		c.logger.Error("Controller.abortJob - error aborting job", "job-id", jobID, "error", err.Error())
		c.update(func(s *domain.LoadStatus) { s.AbortError = err.Error() })
		return fmt.Errorf("%w: %w", ErrAbortJob, err)
	}
	return nil
}

// pendingAbort claims the deferred abort call once the job id is known.
func (c *Controller) pendingAbort() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.abortRequested || c.abortIssued || c.status.JobID == "" {
		return "", false
	}
	c.abortIssued = true
	return c.status.JobID, true
}

func (c *Controller) aborting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.abortRequested
}

func (c *Controller) drive(ctx context.Context, w *worker.Worker, req Request) (*Outcome, error) {
	// prepare
	err := w.Send(ctx, domain.Message{
		Name: domain.MessagePrepareData,
		Data: domain.PrepareDataRequest{
			Rows:        req.Rows,
			Mapping:     req.Mapping,
			Object:      req.Object,
			Operation:   req.Operation,
			InsertNulls: req.InsertNulls,
			DateFormat:  req.DateFormat,
		},
	})
	if err != nil {
		return nil, err
	}
	reply, err := c.await(ctx, w)
	if err != nil {
		return nil, err
	}
	if reply.Error != "" {
		return c.fail(reply.Error), nil
	}
	prepared, ok := reply.Data.(domain.PrepareDataResult)
	if !ok {
		return c.fail(fmt.Sprintf("%s: %T", ERR_UNEXPECTED_REPLY, reply.Data)), nil
	}
	c.update(func(s *domain.LoadStatus) { s.Prepared = len(prepared.Data) })

	opts := req.Options
	opts.BatchSize = domain.ClampBatchSize(opts.Mode, opts.BatchSize)
	input := results.Input{
		Mapping:   req.Mapping,
		Prepared:  prepared,
		BatchSize: opts.BatchSize,
	}

	if len(prepared.Data) == 0 {
		if len(prepared.QueryErrors) > 0 {
			return c.fail(prepared.QueryErrors[0]), nil
		}
		c.logger.Debug("Controller.drive - no prepared records, nothing to load", "errors", len(prepared.Errors))
		return c.finish(results.Aggregate(input)), nil
	}

	// upload
	total := (len(prepared.Data) + opts.BatchSize - 1) / opts.BatchSize
	c.transition(domain.LoadStateUploading, func(s *domain.LoadStatus) { s.Total = total })
	err = w.Send(ctx, domain.Message{
		Name: domain.MessageLoadData,
		Data: domain.LoadDataRequest{
			Object:    req.Object,
			Operation: req.Operation,
			Records:   prepared.Data,
			Options:   opts,
		},
	})
	if err != nil {
		return nil, err
	}
	reply, err = c.await(ctx, w)
	if err != nil {
		return nil, err
	}
	if reply.Error != "" {
		return c.fail(reply.Error), nil
	}
	loaded, ok := reply.Data.(*domain.LoadDataResult)
	if !ok || loaded == nil {
		return c.fail(fmt.Sprintf("%s: %T", ERR_UNEXPECTED_REPLY, reply.Data)), nil
	}

	status := domain.LoadDataStatus{Batches: loaded.Batches, Job: loaded.Job}
	if loaded.Job != nil {
		status.JobID = loaded.Job.ID
	}
	c.merge(status)

	input.BatchSize = loaded.BatchSize
	input.Failures = loaded.Failures
	input.Aborted = loaded.Aborted || c.aborting()

	if loaded.Mode != domain.LoadModeBulk {
		input.Results = loaded.Results
		return c.finish(results.Aggregate(input)), nil
	}
	return c.process(ctx, loaded, input)
}

// process polls a bulk job to completion and collects its results.
func (c *Controller) process(ctx context.Context, loaded *domain.LoadDataResult, input results.Input) (*Outcome, error) {
	if jobID, ok := c.pendingAbort(); ok {
		// the error is kept on the status
		_ = c.abortJob(ctx, jobID)
	}

	if loaded.Job == nil {
		if loaded.Aborted {
			return c.finish(results.Aggregate(input)), nil
		}
		return c.fail(ERR_MISSING_BULK_JOB), nil
	}
	jobID := loaded.Job.ID
	order := loaded.BatchOrder
	if len(order) == 0 {
		c.logger.Debug("Controller.process - no accepted batches, skipping polling", "job-id", jobID)
		return c.finish(results.Aggregate(input)), nil
	}

	if c.aborting() {
		return c.finalFetch(ctx, jobID, order, input)
	}

	pollCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.mu.Lock()
	c.pollCancel = cancel
	if c.abortRequested {
		cancel()
	}
	c.mu.Unlock()
	c.transition(domain.LoadStateProcessing, nil)

	p := poller.New(
		poller.Config{Interval: c.cfg.PollInterval, MaxAttempts: c.cfg.MaxPollAttempts},
		func() (*domain.JobInfo, error) {
			return c.bulk.GetJob(ctx, jobID)
		},
		poller.ContextSleep(pollCtx),
		func(job *domain.JobInfo, attempt int) {
			c.mu.Lock()
			c.job = job
			c.status.PollAttempts = attempt
			st := c.snapshot()
			c.mu.Unlock()
			c.notify(st)
		},
		c.logger,
	)
	res, err := p.Run(order)
	switch {
	case errors.Is(err, poller.ErrPollStopped):
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return c.finalFetch(ctx, jobID, order, input)
	case err != nil:
		return c.fail(err.Error()), nil
	}
	if c.aborting() {
		input.Aborted = true
	}
	return c.collect(ctx, jobID, res.Job, order, input), nil
}

// finalFetch ends an aborted bulk run with one last job status read.
func (c *Controller) finalFetch(ctx context.Context, jobID string, order map[string]int, input results.Input) (*Outcome, error) {
	job, err := c.bulk.GetJob(ctx, jobID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return c.fail(fmt.Sprintf("%s: %s", ERR_FINAL_FETCH, err.Error())), nil
	}
	job = poller.Reconcile(job, order)
	c.mu.Lock()
	c.job = job
	c.mu.Unlock()

	if !strategies.AcceptedTerminal(job, order) {
		c.logger.Debug("Controller.finalFetch - accepted batches not terminal", "job-id", jobID, "state", job.State)
		return c.fail(ERR_ABORT_INCOMPLETE), nil
	}
	input.Aborted = true
	return c.collect(ctx, jobID, job, order, input), nil
}

// collect reads per batch results once, in batch number order, and aggregates.
func (c *Controller) collect(ctx context.Context, jobID string, job *domain.JobInfo, order map[string]int, input results.Input) *Outcome {
	res, failures := strategies.FetchBulkResults(ctx, c.bulk, jobID, job, order)
	input.Results = res
	input.Failures = append(slices.Clone(input.Failures), failures...)
	return c.finish(results.Aggregate(input))
}

// await reads worker messages until the reply that ends the current phase.
func (c *Controller) await(ctx context.Context, w *worker.Worker) (domain.Message, error) {
	for {
		select {
		case <-ctx.Done():
			return domain.Message{}, ctx.Err()
		case msg, ok := <-w.Messages():
			if !ok {
				return domain.Message{}, worker.ErrWorkerStopped
			}
			switch msg.Name {
			case domain.MessagePrepareDataProgress:
				if p, ok := msg.Data.(domain.PrepareProgress); ok {
					c.update(func(s *domain.LoadStatus) { s.Prepared = p.Processed })
				}
			case domain.MessageLoadDataStatus:
				if st, ok := msg.Data.(domain.LoadDataStatus); ok {
					c.merge(st)
				}
			default:
				return msg, nil
			}
		}
	}
}

// merge folds a progress frame into the status by batch number. A completed batch stays completed.
func (c *Controller) merge(frame domain.LoadDataStatus) {
	c.mu.Lock()
	if frame.JobID != "" && c.status.JobID == "" {
		c.status.JobID = frame.JobID
	}
	if frame.Job != nil {
		c.job = frame.Job.Clone()
	}

	byNumber := make(map[int]domain.BatchStatus, len(c.status.Batches)+len(frame.Batches))
	for _, b := range c.status.Batches {
		byNumber[b.BatchNumber] = b
	}
	for _, b := range frame.Batches {
		if prev, ok := byNumber[b.BatchNumber]; ok && prev.Completed && !b.Completed {
			continue
		}
		byNumber[b.BatchNumber] = b
	}
	batches := make([]domain.BatchStatus, 0, len(byNumber))
	completed := 0
	for _, b := range byNumber {
		batches = append(batches, b)
		if b.Completed {
			completed++
		}
	}
	slices.SortFunc(batches, func(a, b domain.BatchStatus) int { return a.BatchNumber - b.BatchNumber })
	c.status.Batches = batches
	c.status.Completed = max(c.status.Completed, completed)
	st := c.snapshot()
	c.mu.Unlock()
	c.notify(st)
}

// transition moves to a non terminal state unless an abort is in progress.
func (c *Controller) transition(state domain.LoadState, fn func(s *domain.LoadStatus)) {
	c.mu.Lock()
	if c.status.State != domain.LoadStateAborting {
		c.status.State = state
	}
	if fn != nil {
		fn(&c.status)
	}
	st := c.snapshot()
	c.mu.Unlock()
	c.notify(st)
}

func (c *Controller) update(fn func(s *domain.LoadStatus)) {
	c.mu.Lock()
	fn(&c.status)
	st := c.snapshot()
	c.mu.Unlock()
	c.notify(st)
}

func (c *Controller) finish(agg *results.Aggregator) *Outcome {
	success, failure := agg.Counts()
	c.mu.Lock()
	c.status.State = domain.LoadStateFinished
	c.status.Success = success
	c.status.Failure = failure
	st := c.snapshot()
	c.mu.Unlock()
	c.notify(st)

	c.logger.Debug("Controller.finish - load finished", "run-id", st.RunID, "success", success, "failure", failure)
	return &Outcome{Status: st, Results: agg}
}

func (c *Controller) fail(msg string) *Outcome {
	c.mu.Lock()
	c.status.State = domain.LoadStateError
	c.status.ErrorMessage = msg
	st := c.snapshot()
	c.mu.Unlock()
	c.notify(st)

	c.logger.Error("Controller.fail - load failed", "run-id", st.RunID, "error", msg)
	return &Outcome{Status: st}
}

// snapshot must be called with mu held.
func (c *Controller) snapshot() domain.LoadStatus {
	st := c.status
	st.Batches = slices.Clone(c.status.Batches)
	return st
}

func (c *Controller) notify(st domain.LoadStatus) {
	if c.listener != nil {
		c.listener(st)
	}
}
