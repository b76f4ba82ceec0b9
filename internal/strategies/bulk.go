package strategies

import (
	"context"
	"fmt"
	"slices"

	"github.com/comfforts/logger"

	"github.com/hankgalt/load-orchestra/pkg/domain"
)

const BulkStrategy = "bulk-strategy"

// Bulk uploads all batches to one asynchronous job.
type Bulk struct {
	api domain.BulkAPI
}

func NewBulk(api domain.BulkAPI) *Bulk {
	return &Bulk{api: api}
}

func (s *Bulk) Name() string { return BulkStrategy }

// Submit creates the job, uploads batches in batch number order and closes the job.
// A failed upload marks its batch failed and the loop continues.
func (s *Bulk) Submit(
	ctx context.Context,
	object string,
	batches []*domain.Batch,
	op domain.Operation,
	opts domain.LoadOptions,
	aborted AbortedFunc,
	emit EmitFunc,
) (*domain.LoadDataResult, error) {
	l, err := logger.LoggerFromContext(ctx)
	if err != nil {
		l = logger.GetSlogLogger()
	}
	if aborted == nil {
		aborted = notAborted
	}
	if emit == nil {
		emit = noEmit
	}

	if err := ValidateOptions(op, opts); err != nil {
		return nil, err
	}

	res := &domain.LoadDataResult{
		Mode:       domain.LoadModeBulk,
		BatchSize:  opts.BatchSize,
		BatchOrder: map[string]int{},
	}

	if aborted() {
		l.Debug("Bulk.Submit - aborted before job creation", "object", object)
		res.Aborted = true
		res.Batches = domain.Snapshot(batches)
		return res, nil
	}

	concurrency := opts.ConcurrencyMode
	if concurrency == "" {
		concurrency = domain.ConcurrencyParallel
	}
	job, err := s.api.CreateJob(ctx, domain.JobRequest{
		Object:          object,
		Operation:       op,
		ExternalIDField: opts.ExternalIDField,
		ConcurrencyMode: concurrency,
	})
	if err != nil {
		l.Error("Bulk.Submit - error creating job", "object", object, "error", err.Error())
		return nil, fmt.Errorf("%w: %w", ErrCreateJob, err)
	}
	res.Job = job
	emit(domain.LoadDataStatus{JobID: job.ID, Job: job.Clone(), Batches: domain.Snapshot(batches)})

	closed := false
	for i, b := range batches {
		if aborted() {
			l.Debug("Bulk.Submit - aborted, skipping remaining batches", "job-id", job.ID, "next-batch", b.BatchNumber)
			res.Aborted = true
			break
		}

		last := i == len(batches)-1
		info, err := UploadBulkBatch(ctx, s.api, job.ID, b, last)
		if err != nil {
			l.Error("Bulk.Submit - batch upload failed", "job-id", job.ID, "batch", b.BatchNumber, "error", err.Error())
			res.Failures = append(res.Failures, domain.BatchFailure{BatchNumber: b.BatchNumber, Message: b.Error})
		} else {
			res.BatchOrder[info.ID] = b.BatchNumber
			closed = last
		}
		emit(domain.LoadDataStatus{JobID: job.ID, Batches: domain.Snapshot(batches)})
	}

	if !closed && !res.Aborted {
		if closedJob, err := s.api.CloseJob(ctx, job.ID); err != nil {
			l.Error("Bulk.Submit - error closing job, ignored", "job-id", job.ID, "error", err.Error())
		} else if closedJob != nil {
			res.Job = closedJob
		}
	}

	res.Batches = domain.Snapshot(batches)
	l.Debug(
		"Bulk.Submit - batches uploaded",
		"job-id", job.ID,
		"batches", len(batches),
		"accepted", len(res.BatchOrder),
		"failed", len(res.Failures),
		"aborted", res.Aborted,
	)
	return res, nil
}

// UploadBulkBatch uploads one batch to a job and records the outcome on the batch.
func UploadBulkBatch(
	ctx context.Context,
	api domain.BulkAPI,
	jobID string,
	b *domain.Batch,
	closeJob bool,
) (*domain.BatchInfo, error) {
	info, err := api.AddBatch(ctx, jobID, b.Records, closeJob)
	b.Completed = true
	if err != nil {
		b.Success = false
		b.Error = err.Error()
		return nil, err
	}
	if info == nil {
		b.Success = false
		b.Error = "no batch info returned"
		return nil, fmt.Errorf("batch %d: %s", b.BatchNumber, b.Error)
	}
	b.Success = true
	b.RemoteID = info.ID
	return info, nil
}

// FetchBulkResults reads the per record results of every accepted batch, in batch number order.
// A batch whose results cannot be read becomes a failure carrying the remote
// state message of a failed batch, or the read error.
func FetchBulkResults(
	ctx context.Context,
	api domain.BulkAPI,
	jobID string,
	job *domain.JobInfo,
	order map[string]int,
) (map[int][]domain.RecordResult, []domain.BatchFailure) {
	l, err := logger.LoggerFromContext(ctx)
	if err != nil {
		l = logger.GetSlogLogger()
	}

	messages := map[string]string{}
	if job != nil {
		for _, b := range job.Batches {
			if b.State == domain.BatchStateFailed && b.StateMessage != "" {
				messages[b.ID] = b.StateMessage
			}
		}
	}

	ids := make([]string, 0, len(order))
	for id := range order {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int { return order[a] - order[b] })

	res := make(map[int][]domain.RecordResult, len(ids))
	failures := []domain.BatchFailure{}
	for _, id := range ids {
		num := order[id]
		rr, err := api.GetBatchResults(ctx, jobID, id)
		if err != nil {
			msg := messages[id]
			if msg == "" {
				msg = fmt.Sprintf("%s: %s", ERR_BATCH_RESULT_READ, err.Error())
			}
			l.Error("FetchBulkResults - error reading batch results", "job-id", jobID, "batch-id", id, "batch", num, "error", err.Error())
			failures = append(failures, domain.BatchFailure{BatchNumber: num, Message: msg})
			continue
		}
		res[num] = rr
	}
	return res, failures
}

// AcceptedTerminal reports whether every accepted batch of job reached a terminal state.
func AcceptedTerminal(job *domain.JobInfo, order map[string]int) bool {
	states := map[string]domain.BatchState{}
	if job != nil {
		for _, b := range job.Batches {
			states[b.ID] = b.State
		}
	}
	for id := range order {
		if st, ok := states[id]; !ok || !st.IsTerminal() {
			return false
		}
	}
	return true
}
