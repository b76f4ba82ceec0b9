package load_orchestra

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/hankgalt/load-orchestra/internal/config"
	"github.com/hankgalt/load-orchestra/internal/results"
	"github.com/hankgalt/load-orchestra/internal/strategies"
	"github.com/hankgalt/load-orchestra/internal/transform"
	"github.com/hankgalt/load-orchestra/pkg/domain"
)

/**
 * activities used by the load records workflow.
 */
const (
	PrepareDataActivityName           = "PrepareDataActivity"
	CreateJobActivityName             = "CreateJobActivity"
	UploadBatchActivityName           = "UploadBatchActivity"
	CloseJobActivityName              = "CloseJobActivity"
	AbortJobActivityName              = "AbortJobActivity"
	GetJobActivityName                = "GetJobActivity"
	SubmitCollectionBatchActivityName = "SubmitCollectionBatchActivity"
	FinalizeActivityName              = "FinalizeActivity"
)

// Error messages used throughout the activities
const (
	ERR_MISSING_STORE_CLIENT = "error missing store client"
	ERR_MISSING_SOURCE       = "error missing source"
	ERR_MISSING_JOB_ID       = "error missing job id"
	ERR_MISSING_BATCH        = "error missing batch"
	ERR_READING_SOURCE       = "error reading source"
	ERR_PREPARING_DATA       = "error preparing data"
	ERR_BULK_JOB             = "error calling bulk job api"
	ERR_EXPORTING_RESULTS    = "error exporting results"
)

// Standard Go errors for internal use
var (
	ErrMissingStoreClient = errors.New(ERR_MISSING_STORE_CLIENT)
	ErrMissingSource      = errors.New(ERR_MISSING_SOURCE)
	ErrMissingJobID       = errors.New(ERR_MISSING_JOB_ID)
	ErrMissingBatch       = errors.New(ERR_MISSING_BATCH)
)

// Temporal application errors for workflow activities
var (
	ErrorMissingStoreClient = temporal.NewApplicationErrorWithCause(ERR_MISSING_STORE_CLIENT, ERR_MISSING_STORE_CLIENT, ErrMissingStoreClient)
	ErrorMissingSource      = temporal.NewApplicationErrorWithCause(ERR_MISSING_SOURCE, ERR_MISSING_SOURCE, ErrMissingSource)
	ErrorMissingJobID       = temporal.NewApplicationErrorWithCause(ERR_MISSING_JOB_ID, ERR_MISSING_JOB_ID, ErrMissingJobID)
	ErrorMissingBatch       = temporal.NewApplicationErrorWithCause(ERR_MISSING_BATCH, ERR_MISSING_BATCH, ErrMissingBatch)
)

func storeFromContext(ctx context.Context) (domain.RecordStore, error) {
	st, ok := ctx.Value(StoreClientContextKey).(domain.RecordStore)
	if !ok || st == nil {
		return nil, ErrorMissingStoreClient
	}
	return st, nil
}

func bulkFromContext(ctx context.Context) (domain.BulkAPI, error) {
	st, err := storeFromContext(ctx)
	if err != nil {
		return nil, err
	}
	api, ok := domain.AsBulk(st)
	if !ok {
		return nil, temporal.NewApplicationErrorWithCause(strategies.ERR_BULK_NOT_SUPPORTED, strategies.ERR_BULK_NOT_SUPPORTED, strategies.ErrBulkNotSupported)
	}
	return api, nil
}

// PrepareDataActivity reads the source rows and transforms them into prepared records.
// Lookups resolve against the store client. Row level problems are part of the result.
func PrepareDataActivity(ctx context.Context, req *PrepareRequest) (*domain.PrepareDataResult, error) {
	l := activity.GetLogger(ctx)
	l.Debug("PrepareDataActivity - started", slog.String("source", req.Source), slog.String("object", req.Object), slog.Any("operation", req.Operation))

	if req.Source == "" {
		l.Error(ERR_MISSING_SOURCE)
		return nil, ErrorMissingSource
	}

	st, err := storeFromContext(ctx)
	if err != nil {
		l.Error(ERR_MISSING_STORE_CLIENT)
		return nil, err
	}

	src, err := config.SourceConfig(req.Source, req.Delimiter).BuildSource(ctx)
	if err != nil {
		l.Error(ERR_READING_SOURCE, slog.Any("error", err), slog.String("source", req.Source))
		return nil, temporal.NewApplicationErrorWithCause(ERR_READING_SOURCE, ERR_READING_SOURCE, err)
	}
	defer func() {
		if err := src.Close(ctx); err != nil {
			l.Error("PrepareDataActivity - error closing source", slog.Any("error", err))
		}
	}()

	rows, err := src.Rows(ctx, req.RowLimit)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		l.Error(ERR_READING_SOURCE, slog.Any("error", err), slog.String("source", req.Source))
		return nil, temporal.NewApplicationErrorWithCause(ERR_READING_SOURCE, ERR_READING_SOURCE, err)
	}

	res, err := transform.PrepareData(ctx, domain.PrepareDataRequest{
		Rows:        rows,
		Mapping:     req.Mapping,
		Object:      req.Object,
		Operation:   req.Operation,
		InsertNulls: req.InsertNulls,
		DateFormat:  req.DateFormat,
	}, st, func(processed, total int) {
		activity.RecordHeartbeat(ctx, domain.PrepareProgress{Processed: processed, Total: total})
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		l.Error(ERR_PREPARING_DATA, slog.Any("error", err))
		return nil, temporal.NewApplicationErrorWithCause(ERR_PREPARING_DATA, ERR_PREPARING_DATA, err)
	}

	l.Debug(
		"PrepareDataActivity - done",
		slog.Int("rows", len(rows)),
		slog.Int("prepared", len(res.Data)),
		slog.Int("errors", len(res.Errors)),
		slog.Int("query-errors", len(res.QueryErrors)),
	)
	return &res, nil
}

// CreateJobActivity opens a bulk job.
func CreateJobActivity(ctx context.Context, req *domain.JobRequest) (*domain.JobInfo, error) {
	l := activity.GetLogger(ctx)
	l.Debug("CreateJobActivity - started", slog.String("object", req.Object), slog.Any("operation", req.Operation))

	api, err := bulkFromContext(ctx)
	if err != nil {
		l.Error("CreateJobActivity - no bulk store", slog.Any("error", err))
		return nil, err
	}

	job, err := api.CreateJob(ctx, *req)
	if err != nil {
		l.Error(strategies.ERR_CREATE_JOB, slog.Any("error", err))
		return nil, temporal.NewApplicationErrorWithCause(strategies.ERR_CREATE_JOB, strategies.ERR_CREATE_JOB, err)
	}
	return job, nil
}

// UploadBatchActivity uploads one batch to a bulk job.
// A rejected upload is part of the result, not an activity error.
func UploadBatchActivity(ctx context.Context, req *UploadBatchRequest) (*UploadBatchResult, error) {
	l := activity.GetLogger(ctx)

	if req.JobID == "" {
		l.Error(ERR_MISSING_JOB_ID)
		return nil, ErrorMissingJobID
	}
	if req.Batch == nil {
		l.Error(ERR_MISSING_BATCH)
		return nil, ErrorMissingBatch
	}

	api, err := bulkFromContext(ctx)
	if err != nil {
		l.Error("UploadBatchActivity - no bulk store", slog.Any("error", err))
		return nil, err
	}

	info, err := strategies.UploadBulkBatch(ctx, api, req.JobID, req.Batch, req.CloseJob)
	if err != nil {
		l.Error(
			"UploadBatchActivity - batch upload failed",
			slog.String("job-id", req.JobID),
			slog.Int("batch", req.Batch.BatchNumber),
			slog.Any("error", err),
		)
	} else {
		l.Debug(
			"UploadBatchActivity - batch uploaded",
			slog.String("job-id", req.JobID),
			slog.Int("batch", req.Batch.BatchNumber),
			slog.String("batch-id", info.ID),
			slog.Bool("close-job", req.CloseJob),
		)
	}
	return &UploadBatchResult{Batch: req.Batch.Status(), Info: info}, nil
}

// CloseJobActivity closes a bulk job.
func CloseJobActivity(ctx context.Context, jobID string) (*domain.JobInfo, error) {
	return callJob(ctx, "CloseJobActivity", jobID, func(api domain.BulkAPI) (*domain.JobInfo, error) {
		return api.CloseJob(ctx, jobID)
	})
}

// AbortJobActivity aborts a bulk job.
func AbortJobActivity(ctx context.Context, jobID string) (*domain.JobInfo, error) {
	return callJob(ctx, "AbortJobActivity", jobID, func(api domain.BulkAPI) (*domain.JobInfo, error) {
		return api.AbortJob(ctx, jobID)
	})
}

// GetJobActivity fetches a bulk job snapshot.
func GetJobActivity(ctx context.Context, jobID string) (*domain.JobInfo, error) {
	return callJob(ctx, "GetJobActivity", jobID, func(api domain.BulkAPI) (*domain.JobInfo, error) {
		return api.GetJob(ctx, jobID)
	})
}

func callJob(ctx context.Context, name, jobID string, call func(api domain.BulkAPI) (*domain.JobInfo, error)) (*domain.JobInfo, error) {
	l := activity.GetLogger(ctx)

	if jobID == "" {
		l.Error(ERR_MISSING_JOB_ID, slog.String("activity", name))
		return nil, ErrorMissingJobID
	}

	api, err := bulkFromContext(ctx)
	if err != nil {
		l.Error(name+" - no bulk store", slog.Any("error", err))
		return nil, err
	}

	job, err := call(api)
	if err != nil {
		l.Error(name+" - "+ERR_BULK_JOB, slog.String("job-id", jobID), slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", ERR_BULK_JOB, err)
	}
	return job, nil
}

// SubmitCollectionBatchActivity submits one batch with a synchronous collection call.
// Call errors turn into failed record results.
func SubmitCollectionBatchActivity(ctx context.Context, req *CollectionBatchRequest) (*CollectionBatchResult, error) {
	l := activity.GetLogger(ctx)

	if req.Batch == nil {
		l.Error(ERR_MISSING_BATCH)
		return nil, ErrorMissingBatch
	}
	if err := strategies.ValidateOptions(req.Operation, req.Options); err != nil {
		l.Error("SubmitCollectionBatchActivity - invalid options", slog.Any("error", err))
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), err.Error(), err)
	}

	st, err := storeFromContext(ctx)
	if err != nil {
		l.Error(ERR_MISSING_STORE_CLIENT)
		return nil, err
	}

	res := strategies.SubmitCollectionBatch(ctx, st, req.Object, req.Operation, req.Options, req.Batch)
	l.Debug(
		"SubmitCollectionBatchActivity - batch submitted",
		slog.String("object", req.Object),
		slog.Int("batch", req.Batch.BatchNumber),
		slog.Bool("success", req.Batch.Success),
	)
	return &CollectionBatchResult{Batch: req.Batch.Status(), Results: res}, nil
}

// FinalizeActivity reads bulk results when a job was used, aggregates the run
// and exports the all and failures views. Without an exporter nothing is written.
func FinalizeActivity(ctx context.Context, req *FinalizeRequest) (*FinalizeResult, error) {
	l := activity.GetLogger(ctx)
	l.Debug("FinalizeActivity - started", slog.String("run-id", req.RunID), slog.String("job-id", req.JobID), slog.Bool("aborted", req.Aborted))

	in := results.Input{
		Mapping:   req.Mapping,
		Prepared:  req.Prepared,
		BatchSize: req.BatchSize,
		Results:   req.Results,
		Failures:  req.Failures,
		Aborted:   req.Aborted,
	}

	if req.JobID != "" {
		api, err := bulkFromContext(ctx)
		if err != nil {
			l.Error("FinalizeActivity - no bulk store", slog.Any("error", err))
			return nil, err
		}
		res, failures := strategies.FetchBulkResults(ctx, api, req.JobID, req.Job, req.Order)
		in.Results = res
		in.Failures = append(append([]domain.BatchFailure{}, req.Failures...), failures...)
	}

	agg := results.Aggregate(in)
	success, failure := agg.Counts()
	out := &FinalizeResult{Success: success, Failure: failure}

	exp, ok := ctx.Value(ExporterContextKey).(domain.Exporter)
	if !ok || exp == nil {
		l.Debug("FinalizeActivity - no exporter, skipping export", slog.Int("success", success), slog.Int("failure", failure))
		return out, nil
	}

	key := req.ExportKey
	if key == "" {
		key = req.RunID
	}
	out.Exports = map[string]string{}
	for _, view := range []results.View{results.ViewAll, results.ViewFailures} {
		loc, err := exp.Export(ctx, fmt.Sprintf("%s-%s", key, view), agg.Headers(), agg.ExportRows(view))
		if err != nil {
			l.Error(ERR_EXPORTING_RESULTS, slog.String("view", string(view)), slog.Any("error", err))
			return nil, temporal.NewApplicationErrorWithCause(ERR_EXPORTING_RESULTS, ERR_EXPORTING_RESULTS, err)
		}
		out.Exports[string(view)] = loc
	}

	l.Debug("FinalizeActivity - done", slog.Int("success", success), slog.Int("failure", failure), slog.Any("exports", out.Exports))
	return out, nil
}
