package load_orchestra

import (
	"github.com/hankgalt/load-orchestra/pkg/domain"
)

type ContextKey string

func (c ContextKey) String() string {
	return string(c)
}

// Activity context keys. The worker sets them on its background activity context.
const (
	StoreClientContextKey = ContextKey("store-client")
	ExporterContextKey    = ContextKey("exporter")
)

// LoadRequest is the input of LoadRecordsWorkflow.
type LoadRequest struct {
	RunID       string              `json:"runId"`
	Object      string              `json:"object"`
	Operation   domain.Operation    `json:"operation"`
	Source      string              `json:"source"` // local path or gs://bucket/object
	Delimiter   rune                `json:"delimiter,omitempty"`
	RowLimit    int                 `json:"rowLimit,omitempty"`
	Mapping     domain.FieldMapping `json:"mapping"`
	InsertNulls bool                `json:"insertNulls"`
	DateFormat  domain.DateFormat   `json:"dateFormat,omitempty"`
	Options     domain.LoadOptions  `json:"options"`
	Poll        PollSettings        `json:"poll"`
	// ExportKey names the exported result files; the run id when empty.
	ExportKey string `json:"exportKey,omitempty"`
}

// PollSettings bound bulk job polling. Zero values use the poller defaults.
type PollSettings struct {
	IntervalMillis int `json:"intervalMillis,omitempty"`
	MaxAttempts    int `json:"maxAttempts,omitempty"`
}

// LoadSummary is the result of LoadRecordsWorkflow.
type LoadSummary struct {
	Status  domain.LoadStatus `json:"status"`
	Success int               `json:"success"`
	Failure int               `json:"failure"`
	// Exports maps a result view to its exported location.
	Exports map[string]string `json:"exports,omitempty"`
}

// PrepareRequest is the input of the prepare activity.
type PrepareRequest struct {
	Source      string              `json:"source"`
	Delimiter   rune                `json:"delimiter,omitempty"`
	RowLimit    int                 `json:"rowLimit,omitempty"`
	Object      string              `json:"object"`
	Operation   domain.Operation    `json:"operation"`
	Mapping     domain.FieldMapping `json:"mapping"`
	InsertNulls bool                `json:"insertNulls"`
	DateFormat  domain.DateFormat   `json:"dateFormat,omitempty"`
}

// UploadBatchRequest is the input of the bulk upload activity.
type UploadBatchRequest struct {
	JobID    string        `json:"jobId"`
	Batch    *domain.Batch `json:"batch"`
	CloseJob bool          `json:"closeJob"`
}

// UploadBatchResult carries the batch frame after the upload and the remote batch on success.
type UploadBatchResult struct {
	Batch domain.BatchStatus `json:"batch"`
	Info  *domain.BatchInfo  `json:"info,omitempty"`
}

// CollectionBatchRequest is the input of the collection submit activity.
type CollectionBatchRequest struct {
	Object    string             `json:"object"`
	Operation domain.Operation   `json:"operation"`
	Options   domain.LoadOptions `json:"options"`
	Batch     *domain.Batch      `json:"batch"`
}

// CollectionBatchResult carries the batch frame and its positional record results.
type CollectionBatchResult struct {
	Batch   domain.BatchStatus    `json:"batch"`
	Results []domain.RecordResult `json:"results"`
}

// FinalizeRequest is the input of the finalize activity.
// Bulk runs set JobID, Job and Order; collection runs set Results.
type FinalizeRequest struct {
	RunID     string                        `json:"runId"`
	ExportKey string                        `json:"exportKey,omitempty"`
	Mapping   domain.FieldMapping           `json:"mapping"`
	Prepared  domain.PrepareDataResult      `json:"prepared"`
	BatchSize int                           `json:"batchSize"`
	JobID     string                        `json:"jobId,omitempty"`
	Job       *domain.JobInfo               `json:"job,omitempty"`
	Order     map[string]int                `json:"order,omitempty"`
	Results   map[int][]domain.RecordResult `json:"results,omitempty"`
	Failures  []domain.BatchFailure         `json:"failures,omitempty"`
	Aborted   bool                          `json:"aborted"`
}

// FinalizeResult holds the aggregated counts and the export locations.
type FinalizeResult struct {
	Success int               `json:"success"`
	Failure int               `json:"failure"`
	Exports map[string]string `json:"exports,omitempty"`
}
