package load_orchestra

import (
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/workflow"
)

// ApplicationName is the task queue for load workflows
const ApplicationName = "loadRecordsGroup"

// LoadRecordsWorkflowName is the registered name of LoadRecordsWorkflow.
const LoadRecordsWorkflowName = "github.com/hankgalt/load-orchestra.LoadRecordsWorkflow"

// Signal and query names of LoadRecordsWorkflow.
const (
	AbortSignalName     = "abort-load"
	LoadStatusQueryName = "load-status"
)

// Registrar is implemented by worker.Worker and the test workflow environment.
type Registrar interface {
	RegisterWorkflowWithOptions(w interface{}, options workflow.RegisterOptions)
	RegisterActivityWithOptions(a interface{}, options activity.RegisterOptions)
}

// Register registers the load workflow and its activities under their names.
func Register(r Registrar) {
	r.RegisterWorkflowWithOptions(LoadRecordsWorkflow, workflow.RegisterOptions{Name: LoadRecordsWorkflowName})

	r.RegisterActivityWithOptions(PrepareDataActivity, activity.RegisterOptions{Name: PrepareDataActivityName})
	r.RegisterActivityWithOptions(CreateJobActivity, activity.RegisterOptions{Name: CreateJobActivityName})
	r.RegisterActivityWithOptions(UploadBatchActivity, activity.RegisterOptions{Name: UploadBatchActivityName})
	r.RegisterActivityWithOptions(CloseJobActivity, activity.RegisterOptions{Name: CloseJobActivityName})
	r.RegisterActivityWithOptions(AbortJobActivity, activity.RegisterOptions{Name: AbortJobActivityName})
	r.RegisterActivityWithOptions(GetJobActivity, activity.RegisterOptions{Name: GetJobActivityName})
	r.RegisterActivityWithOptions(SubmitCollectionBatchActivity, activity.RegisterOptions{Name: SubmitCollectionBatchActivityName})
	r.RegisterActivityWithOptions(FinalizeActivity, activity.RegisterOptions{Name: FinalizeActivityName})
}
