package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/comfforts/logger"

	"github.com/hankgalt/load-orchestra/internal/strategies"
	"github.com/hankgalt/load-orchestra/internal/transform"
	"github.com/hankgalt/load-orchestra/pkg/domain"
)

const (
	ERR_UNKNOWN_MESSAGE    = "worker: unknown message"
	ERR_INVALID_PAYLOAD    = "worker: invalid message payload"
	ERR_WORKER_STOPPED     = "worker: stopped"
	ERR_WORKER_PANIC       = "worker: handler panic"
	ERR_MISSING_STORE      = "worker: missing record store"
	ERR_NO_RECORDS_TO_LOAD = "worker: no records to load"
)

var (
	ErrUnknownMessage  = errors.New(ERR_UNKNOWN_MESSAGE)
	ErrInvalidPayload  = errors.New(ERR_INVALID_PAYLOAD)
	ErrWorkerStopped   = errors.New(ERR_WORKER_STOPPED)
	ErrWorkerPanic     = errors.New(ERR_WORKER_PANIC)
	ErrMissingStore    = errors.New(ERR_MISSING_STORE)
	ErrNoRecordsToLoad = errors.New(ERR_NO_RECORDS_TO_LOAD)
)

// Worker runs transformation and submission for one load run.
// It talks to its controller only through messages.
type Worker struct {
	store  domain.RecordStore
	logger *slog.Logger

	inbox  chan domain.Message
	outbox chan domain.Message

	abort     chan struct{}
	abortOnce sync.Once
	closeOnce sync.Once
}

func New(store domain.RecordStore, l *slog.Logger) *Worker {
	if l == nil {
		l = logger.GetSlogLogger()
	}
	return &Worker{
		store:  store,
		logger: l,
		inbox:  make(chan domain.Message, 1),
		outbox: make(chan domain.Message, 16),
		abort:  make(chan struct{}),
	}
}

// Send delivers a request to the worker.
func (w *Worker) Send(ctx context.Context, msg domain.Message) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case w.inbox <- msg:
		return nil
	}
}

// Messages is the worker's reply and progress stream. Closed when Run returns.
func (w *Worker) Messages() <-chan domain.Message {
	return w.outbox
}

// Abort stops further batch submissions. An in-flight call is not interrupted.
func (w *Worker) Abort() {
	w.abortOnce.Do(func() { close(w.abort) })
}

// Aborted reports whether Abort was called.
func (w *Worker) Aborted() bool {
	select {
	case <-w.abort:
		return true
	default:
		return false
	}
}

// Close ends the request stream; Run returns after the current handler.
func (w *Worker) Close() {
	w.closeOnce.Do(func() { close(w.inbox) })
}

// Run handles requests until the inbox is closed or ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	defer close(w.outbox)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-w.inbox:
			if !ok {
				w.logger.Debug("Worker.Run - inbox closed")
				return nil
			}
			reply := w.handle(ctx, msg)
			if err := w.emit(ctx, reply); err != nil {
				return err
			}
		}
	}
}

func (w *Worker) emit(ctx context.Context, msg domain.Message) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case w.outbox <- msg:
		return nil
	}
}

// handle dispatches a request; errors and panics become the reply's Error field.
func (w *Worker) handle(ctx context.Context, msg domain.Message) (reply domain.Message) {
	reply = domain.Message{Name: msg.Name}
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Worker.handle - recovered panic", "message", msg.Name, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			reply = domain.Message{Name: msg.Name, Error: fmt.Sprintf("%s: %v", ERR_WORKER_PANIC, r)}
		}
	}()

	var (
		data any
		err  error
	)
	switch msg.Name {
	case domain.MessagePrepareData:
		req, ok := msg.Data.(domain.PrepareDataRequest)
		if !ok {
			err = fmt.Errorf("%w: %T", ErrInvalidPayload, msg.Data)
			break
		}
		data, err = w.prepareData(ctx, req)
	case domain.MessageLoadData:
		req, ok := msg.Data.(domain.LoadDataRequest)
		if !ok {
			err = fmt.Errorf("%w: %T", ErrInvalidPayload, msg.Data)
			break
		}
		data, err = w.loadData(ctx, req)
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownMessage, msg.Name)
	}

	if err != nil {
		w.logger.Error("Worker.handle - handler failed", "message", msg.Name, "error", err.Error())
		reply.Error = err.Error()
		return reply
	}
	reply.Data = data
	return reply
}

func (w *Worker) prepareData(ctx context.Context, req domain.PrepareDataRequest) (domain.PrepareDataResult, error) {
	var lookups domain.LookupAPI
	if w.store != nil {
		lookups = w.store
	}
	ctx = logger.WithLogger(ctx, w.logger)
	return transform.PrepareData(ctx, req, lookups, func(processed, total int) {
		// dropped when ctx is done
		_ = w.emit(ctx, domain.Message{
			Name: domain.MessagePrepareDataProgress,
			Data: domain.PrepareProgress{Processed: processed, Total: total},
		})
	})
}

func (w *Worker) loadData(ctx context.Context, req domain.LoadDataRequest) (*domain.LoadDataResult, error) {
	if w.store == nil {
		return nil, ErrMissingStore
	}
	if len(req.Records) == 0 {
		return nil, ErrNoRecordsToLoad
	}

	strategy, err := strategies.New(w.store, req.Options.Mode)
	if err != nil {
		return nil, err
	}

	opts := req.Options
	opts.BatchSize = domain.ClampBatchSize(opts.Mode, opts.BatchSize)
	batches := domain.SplitBatches(req.Records, opts.BatchSize)
	w.logger.Debug(
		"Worker.loadData - submitting",
		"object", req.Object,
		"operation", req.Operation,
		"strategy", strategy.Name(),
		"records", len(req.Records),
		"batches", len(batches),
		"batch-size", opts.BatchSize,
	)

	ctx = logger.WithLogger(ctx, w.logger)
	return strategy.Submit(ctx, req.Object, batches, req.Operation, opts, w.Aborted, func(s domain.LoadDataStatus) {
		_ = w.emit(ctx, domain.Message{Name: domain.MessageLoadDataStatus, Data: s})
	})
}
