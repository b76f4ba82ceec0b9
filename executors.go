package load_orchestra

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/hankgalt/load-orchestra/internal/strategies"
	"github.com/hankgalt/load-orchestra/pkg/domain"
)

func DefaultActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		ScheduleToStartTimeout: time.Minute,
		StartToCloseTimeout:    time.Minute * 5,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    5,
			NonRetryableErrorTypes: []string{
				ERR_MISSING_STORE_CLIENT,
				ERR_MISSING_JOB_ID,
				ERR_MISSING_BATCH,
				strategies.ERR_BULK_NOT_SUPPORTED,
			},
		},
	}
}

func ExecutePrepareDataActivity(ctx workflow.Context, req *PrepareRequest) (*domain.PrepareDataResult, error) {
	// setup activity options
	ao := DefaultActivityOptions()
	ao.StartToCloseTimeout = time.Minute * 30
	ao.HeartbeatTimeout = time.Minute
	ao.RetryPolicy.MaximumAttempts = 3
	ao.RetryPolicy.NonRetryableErrorTypes = append(
		ao.RetryPolicy.NonRetryableErrorTypes,
		ERR_MISSING_SOURCE,
		ERR_READING_SOURCE,
		ERR_PREPARING_DATA,
	)
	ctx = workflow.WithActivityOptions(ctx, ao)

	var resp domain.PrepareDataResult
	err := workflow.ExecuteActivity(ctx, PrepareDataActivityName, req).Get(ctx, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func ExecuteCreateJobActivity(ctx workflow.Context, req *domain.JobRequest) (*domain.JobInfo, error) {
	// setup activity options
	ao := DefaultActivityOptions()
	ao.RetryPolicy.NonRetryableErrorTypes = append(ao.RetryPolicy.NonRetryableErrorTypes, strategies.ERR_CREATE_JOB)
	ctx = workflow.WithActivityOptions(ctx, ao)

	var resp domain.JobInfo
	err := workflow.ExecuteActivity(ctx, CreateJobActivityName, req).Get(ctx, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// ExecuteUploadBatchActivity runs a single upload attempt; a retried upload could add the batch twice.
func ExecuteUploadBatchActivity(ctx workflow.Context, req *UploadBatchRequest) (*UploadBatchResult, error) {
	// setup activity options
	ao := DefaultActivityOptions()
	ao.RetryPolicy.MaximumAttempts = 1
	ctx = workflow.WithActivityOptions(ctx, ao)

	var resp UploadBatchResult
	err := workflow.ExecuteActivity(ctx, UploadBatchActivityName, req).Get(ctx, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func ExecuteCloseJobActivity(ctx workflow.Context, jobID string) (*domain.JobInfo, error) {
	return executeJobActivity(ctx, CloseJobActivityName, jobID, 3)
}

func ExecuteAbortJobActivity(ctx workflow.Context, jobID string) (*domain.JobInfo, error) {
	return executeJobActivity(ctx, AbortJobActivityName, jobID, 3)
}

// ExecuteGetJobActivity makes one fetch attempt; the poller owns the retry budget.
func ExecuteGetJobActivity(ctx workflow.Context, jobID string) (*domain.JobInfo, error) {
	return executeJobActivity(ctx, GetJobActivityName, jobID, 1)
}

func executeJobActivity(ctx workflow.Context, name, jobID string, attempts int32) (*domain.JobInfo, error) {
	ao := DefaultActivityOptions()
	ao.StartToCloseTimeout = time.Minute
	ao.RetryPolicy.MaximumAttempts = attempts
	ctx = workflow.WithActivityOptions(ctx, ao)

	var resp domain.JobInfo
	err := workflow.ExecuteActivity(ctx, name, jobID).Get(ctx, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func ExecuteSubmitCollectionBatchActivity(ctx workflow.Context, req *CollectionBatchRequest) (*CollectionBatchResult, error) {
	// setup activity options
	ao := DefaultActivityOptions()
	ao.RetryPolicy.MaximumAttempts = 1
	ctx = workflow.WithActivityOptions(ctx, ao)

	var resp CollectionBatchResult
	err := workflow.ExecuteActivity(ctx, SubmitCollectionBatchActivityName, req).Get(ctx, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func ExecuteFinalizeActivity(ctx workflow.Context, req *FinalizeRequest) (*FinalizeResult, error) {
	// setup activity options
	ao := DefaultActivityOptions()
	ao.StartToCloseTimeout = time.Minute * 15
	ao.RetryPolicy.NonRetryableErrorTypes = append(ao.RetryPolicy.NonRetryableErrorTypes, ERR_EXPORTING_RESULTS)
	ctx = workflow.WithActivityOptions(ctx, ao)

	var resp FinalizeResult
	err := workflow.ExecuteActivity(ctx, FinalizeActivityName, req).Get(ctx, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}
