package load_orchestra

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"go.temporal.io/sdk/log"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/hankgalt/load-orchestra/internal/poller"
	"github.com/hankgalt/load-orchestra/internal/strategies"
	"github.com/hankgalt/load-orchestra/pkg/domain"
)

const (
	ERR_LOAD_FAILED      = "load failed"
	ERR_ABORT_INCOMPLETE = "load aborted before all submitted batches finished processing"
	ERR_FINAL_FETCH      = "final job status fetch failed"
	ERR_FINALIZE         = "error finalizing load"
)

var (
	ErrLoadFailed = errors.New(ERR_LOAD_FAILED)
)

// loadRun is the workflow side state of one load.
// Workflow goroutines are cooperative, so it is shared without locks.
type loadRun struct {
	status      domain.LoadStatus
	batches     []*domain.Batch
	aborted     bool
	abortIssued bool
	abortsOut   int
	pollCancel  workflow.CancelFunc
	logger      log.Logger
}

func (r *loadRun) snapshot() domain.LoadStatus {
	st := r.status
	st.Batches = slices.Clone(r.status.Batches)
	return st
}

// transition moves to state unless an abort is underway.
func (r *loadRun) transition(state domain.LoadState) {
	if r.aborted {
		return
	}
	r.status.State = state
}

func (r *loadRun) syncBatches() {
	r.status.Batches = domain.Snapshot(r.batches)
	done := 0
	for _, b := range r.status.Batches {
		if b.Completed {
			done++
		}
	}
	r.status.Completed = done
}

// requestAbort handles the abort signal. The remote job is aborted at once when
// its id is known, otherwise once it becomes known.
func (r *loadRun) requestAbort(ctx workflow.Context) {
	if r.aborted || !domain.AbortableStates.Has(r.status.State) {
		r.logger.Debug("LoadRecordsWorkflow - abort ignored", "state", r.status.State, "aborted", r.aborted)
		return
	}
	r.aborted = true
	r.status.State = domain.LoadStateAborting
	r.logger.Debug("LoadRecordsWorkflow - abort requested", "run-id", r.status.RunID, "job-id", r.status.JobID)

	if r.pollCancel != nil {
		r.pollCancel()
	}
	r.abortJob(ctx)
}

func (r *loadRun) abortJob(ctx workflow.Context) {
	if !r.aborted || r.abortIssued || r.status.JobID == "" {
		return
	}
	r.abortIssued = true
	r.abortsOut++
	defer func() { r.abortsOut-- }()

	if _, err := ExecuteAbortJobActivity(ctx, r.status.JobID); err != nil {
		r.logger.Error("LoadRecordsWorkflow - error aborting job", "job-id", r.status.JobID, "error", err.Error())
		r.status.AbortError = err.Error()
	}
}

// LoadRecordsWorkflow prepares the source rows, submits them in batches and
// aggregates the per record results.
// The abort-load signal stops the run and the load-status query returns its progress.
func LoadRecordsWorkflow(ctx workflow.Context, req *LoadRequest) (*LoadSummary, error) {
	l := workflow.GetLogger(ctx)

	runID := req.RunID
	if runID == "" {
		runID = workflow.GetInfo(ctx).WorkflowExecution.ID
	}
	r := &loadRun{
		status: domain.LoadStatus{RunID: runID, State: domain.LoadStatePreparing},
		logger: l,
	}

	if err := workflow.SetQueryHandler(ctx, LoadStatusQueryName, func() (domain.LoadStatus, error) {
		return r.snapshot(), nil
	}); err != nil {
		l.Error("LoadRecordsWorkflow - error setting query handler", "error", err.Error())
		return nil, err
	}

	workflow.Go(ctx, func(gctx workflow.Context) {
		ch := workflow.GetSignalChannel(gctx, AbortSignalName)
		for {
			var reason string
			ch.Receive(gctx, &reason)
			l.Debug("LoadRecordsWorkflow - abort signal received", "run-id", runID, "reason", reason)
			r.requestAbort(gctx)
		}
	})

	l.Debug(
		"LoadRecordsWorkflow workflow started",
		"run-id", runID,
		"object", req.Object,
		"operation", req.Operation,
		"mode", req.Options.Mode,
		"source", req.Source,
	)

	summary, err := r.run(ctx, req)
	if err != nil {
		l.Error("LoadRecordsWorkflow - load failed", "run-id", runID, "error", err.Error())
		return summary, err
	}

	l.Debug(
		"LoadRecordsWorkflow workflow completed",
		"run-id", runID,
		"state", summary.Status.State,
		"success", summary.Success,
		"failure", summary.Failure,
	)
	return summary, nil
}

func (r *loadRun) run(ctx workflow.Context, req *LoadRequest) (*LoadSummary, error) {
	opts := req.Options
	if opts.Mode != domain.LoadModeBulk && opts.Mode != domain.LoadModeBatch {
		return r.fail(ctx, fmt.Sprintf("%s: %s", strategies.ERR_UNKNOWN_LOAD_MODE, opts.Mode))
	}
	if err := strategies.ValidateOptions(req.Operation, opts); err != nil {
		return r.fail(ctx, err.Error())
	}

	// prepare
	prepared, err := ExecutePrepareDataActivity(ctx, &PrepareRequest{
		Source:      req.Source,
		Delimiter:   req.Delimiter,
		RowLimit:    req.RowLimit,
		Object:      req.Object,
		Operation:   req.Operation,
		Mapping:     req.Mapping,
		InsertNulls: req.InsertNulls,
		DateFormat:  req.DateFormat,
	})
	if err != nil {
		return r.fail(ctx, err.Error())
	}
	r.status.Prepared = len(prepared.Data)

	opts.BatchSize = domain.ClampBatchSize(opts.Mode, opts.BatchSize)
	fin := &FinalizeRequest{
		RunID:     r.status.RunID,
		ExportKey: req.ExportKey,
		Mapping:   req.Mapping,
		Prepared:  *prepared,
		BatchSize: opts.BatchSize,
	}

	if len(prepared.Data) == 0 {
		if len(prepared.QueryErrors) > 0 {
			return r.fail(ctx, prepared.QueryErrors[0])
		}
		r.logger.Debug("LoadRecordsWorkflow - no prepared records, nothing to load", "errors", len(prepared.Errors))
		return r.finish(ctx, fin)
	}

	r.batches = domain.SplitBatches(prepared.Data, opts.BatchSize)
	r.status.Total = len(r.batches)
	r.syncBatches()
	if r.aborted {
		r.logger.Debug("LoadRecordsWorkflow - aborted before submission", "run-id", r.status.RunID)
		fin.Aborted = true
		return r.finish(ctx, fin)
	}
	r.transition(domain.LoadStateUploading)

	if opts.Mode == domain.LoadModeBatch {
		return r.submitCollection(ctx, req, opts, fin)
	}
	return r.submitBulk(ctx, req, opts, fin, poller.Config{
		Interval:    time.Duration(req.Poll.IntervalMillis) * time.Millisecond,
		MaxAttempts: req.Poll.MaxAttempts,
	})
}

// submitCollection submits batches in sequence with one collection call each.
func (r *loadRun) submitCollection(ctx workflow.Context, req *LoadRequest, opts domain.LoadOptions, fin *FinalizeRequest) (*LoadSummary, error) {
	fin.Results = map[int][]domain.RecordResult{}
	for _, b := range r.batches {
		if r.aborted {
			r.logger.Debug("LoadRecordsWorkflow - aborted, skipping remaining batches", "next-batch", b.BatchNumber)
			break
		}

		res, err := ExecuteSubmitCollectionBatchActivity(ctx, &CollectionBatchRequest{
			Object:    req.Object,
			Operation: req.Operation,
			Options:   opts,
			Batch:     b,
		})
		if err != nil {
			markFailed(b, err)
		} else {
			applyStatus(b, res.Batch)
			fin.Results[b.BatchNumber] = res.Results
		}
		if !b.Success {
			fin.Failures = append(fin.Failures, domain.BatchFailure{BatchNumber: b.BatchNumber, Message: b.Error})
		}
		r.syncBatches()
	}

	fin.Aborted = r.aborted
	return r.finish(ctx, fin)
}

// submitBulk uploads batches to one job, polls it and collects its results.
func (r *loadRun) submitBulk(
	ctx workflow.Context,
	req *LoadRequest,
	opts domain.LoadOptions,
	fin *FinalizeRequest,
	pcfg poller.Config,
) (*LoadSummary, error) {
	concurrency := opts.ConcurrencyMode
	if concurrency == "" {
		concurrency = domain.ConcurrencyParallel
	}
	job, err := ExecuteCreateJobActivity(ctx, &domain.JobRequest{
		Object:          req.Object,
		Operation:       req.Operation,
		ExternalIDField: opts.ExternalIDField,
		ConcurrencyMode: concurrency,
	})
	if err != nil {
		return r.fail(ctx, err.Error())
	}
	r.status.JobID = job.ID

	order := map[string]int{}
	closed := false
	for i, b := range r.batches {
		if r.aborted {
			r.logger.Debug("LoadRecordsWorkflow - aborted, skipping remaining batches", "job-id", job.ID, "next-batch", b.BatchNumber)
			break
		}

		last := i == len(r.batches)-1
		res, err := ExecuteUploadBatchActivity(ctx, &UploadBatchRequest{JobID: job.ID, Batch: b, CloseJob: last})
		if err != nil {
			markFailed(b, err)
		} else {
			applyStatus(b, res.Batch)
			if res.Info != nil {
				order[res.Info.ID] = b.BatchNumber
				closed = last
			}
		}
		if !b.Success {
			fin.Failures = append(fin.Failures, domain.BatchFailure{BatchNumber: b.BatchNumber, Message: b.Error})
		}
		r.syncBatches()
	}

	if !closed && !r.aborted {
		if _, err := ExecuteCloseJobActivity(ctx, job.ID); err != nil {
			r.logger.Error("LoadRecordsWorkflow - error closing job, ignored", "job-id", job.ID, "error", err.Error())
		}
	}
	// abort requested before the job id was known
	r.abortJob(ctx)

	if len(order) == 0 {
		r.logger.Debug("LoadRecordsWorkflow - no accepted batches, skipping polling", "job-id", job.ID)
		fin.Aborted = r.aborted
		return r.finish(ctx, fin)
	}
	fin.JobID = job.ID
	fin.Order = order

	if r.aborted {
		return r.finalFetch(ctx, fin)
	}

	pollCtx, cancel := workflow.WithCancel(ctx)
	defer cancel()
	r.pollCancel = cancel
	r.transition(domain.LoadStateProcessing)

	p := poller.New(
		pcfg,
		func() (*domain.JobInfo, error) {
			return ExecuteGetJobActivity(ctx, job.ID)
		},
		func(d time.Duration) error {
			return workflow.Sleep(pollCtx, d)
		},
		func(j *domain.JobInfo, attempt int) {
			r.status.PollAttempts = attempt
		},
		r.logger,
	)
	res, err := p.Run(order)
	r.pollCancel = nil
	switch {
	case errors.Is(err, poller.ErrPollStopped):
		return r.finalFetch(ctx, fin)
	case err != nil:
		return r.fail(ctx, err.Error())
	}

	fin.Job = res.Job
	fin.Aborted = r.aborted
	return r.finish(ctx, fin)
}

// finalFetch ends an aborted bulk run with one last job status read.
func (r *loadRun) finalFetch(ctx workflow.Context, fin *FinalizeRequest) (*LoadSummary, error) {
	job, err := ExecuteGetJobActivity(ctx, fin.JobID)
	if err != nil {
		return r.fail(ctx, fmt.Sprintf("%s: %s", ERR_FINAL_FETCH, err.Error()))
	}
	job = poller.Reconcile(job, fin.Order)
	if !strategies.AcceptedTerminal(job, fin.Order) {
		r.logger.Debug("LoadRecordsWorkflow - accepted batches not terminal", "job-id", fin.JobID, "state", job.State)
		return r.fail(ctx, ERR_ABORT_INCOMPLETE)
	}
	fin.Job = job
	fin.Aborted = true
	return r.finish(ctx, fin)
}

func (r *loadRun) finish(ctx workflow.Context, fin *FinalizeRequest) (*LoadSummary, error) {
	res, err := ExecuteFinalizeActivity(ctx, fin)
	if err != nil {
		return r.fail(ctx, fmt.Sprintf("%s: %s", ERR_FINALIZE, err.Error()))
	}
	r.settle(ctx)

	r.status.State = domain.LoadStateFinished
	r.status.Success = res.Success
	r.status.Failure = res.Failure
	return &LoadSummary{
		Status:  r.snapshot(),
		Success: res.Success,
		Failure: res.Failure,
		Exports: res.Exports,
	}, nil
}

func (r *loadRun) fail(ctx workflow.Context, msg string) (*LoadSummary, error) {
	r.settle(ctx)

	r.status.State = domain.LoadStateError
	r.status.ErrorMessage = msg
	return &LoadSummary{Status: r.snapshot()}, temporal.NewApplicationErrorWithCause(
		fmt.Sprintf("%s: %s", ERR_LOAD_FAILED, msg),
		ERR_LOAD_FAILED,
		ErrLoadFailed,
	)
}

// settle waits for an in flight job abort.
func (r *loadRun) settle(ctx workflow.Context) {
	if err := workflow.Await(ctx, func() bool { return r.abortsOut == 0 }); err != nil {
		r.logger.Error("LoadRecordsWorkflow - error awaiting job abort", "error", err.Error())
	}
}

func applyStatus(b *domain.Batch, st domain.BatchStatus) {
	b.Completed = st.Completed
	b.Success = st.Success
	b.RemoteID = st.RemoteID
	b.Error = st.Error
}

func markFailed(b *domain.Batch, err error) {
	b.Completed = true
	b.Success = false
	b.Error = err.Error()
}
