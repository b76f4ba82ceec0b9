package domain

import "context"

// CollectionAPI is the synchronous per batch protocol of a record store.
// Result slices are positional: result i belongs to record i.
type CollectionAPI interface {
	Create(ctx context.Context, object string, records []PreparedRecord, allOrNone bool) ([]RecordResult, error)
	Update(ctx context.Context, object string, records []PreparedRecord, allOrNone bool) ([]RecordResult, error)
	Upsert(ctx context.Context, object, externalIDField string, records []PreparedRecord, allOrNone bool) ([]RecordResult, error)
	Delete(ctx context.Context, object string, ids []string, allOrNone bool) ([]RecordResult, error)
}

// LookupAPI resolves related record ids by a field value.
// The returned map holds, for each queried value, the ids of matching records.
type LookupAPI interface {
	Lookup(ctx context.Context, object, field string, values []string) (map[string][]string, error)
}

// BulkAPI is the asynchronous job protocol of a record store.
type BulkAPI interface {
	CreateJob(ctx context.Context, req JobRequest) (*JobInfo, error)
	// AddBatch uploads one batch; closeJob asks the store to close the job with this upload.
	AddBatch(ctx context.Context, jobID string, records []PreparedRecord, closeJob bool) (*BatchInfo, error)
	CloseJob(ctx context.Context, jobID string) (*JobInfo, error)
	AbortJob(ctx context.Context, jobID string) (*JobInfo, error)
	GetJob(ctx context.Context, jobID string) (*JobInfo, error)
	GetBatchResults(ctx context.Context, jobID, batchID string) ([]RecordResult, error)
}

// RecordStore is a remote record store client.
type RecordStore interface {
	CollectionAPI
	LookupAPI
	Name() string
	Close(ctx context.Context) error
}

// StoreConfig is a config that *knows how to build* a RecordStore.
type StoreConfig interface {
	BuildStore(ctx context.Context) (RecordStore, error)
	Name() string
}

// AsBulk returns the store's bulk protocol if it supports one.
func AsBulk(s RecordStore) (BulkAPI, bool) {
	b, ok := s.(BulkAPI)
	return b, ok
}

// RowSource yields parsed input rows.
type RowSource interface {
	Headers() []string
	Rows(ctx context.Context, limit int) ([]RawRow, error)
	Name() string
	Close(ctx context.Context) error
}

// SourceConfig is a config that *knows how to build* a RowSource.
type SourceConfig interface {
	BuildSource(ctx context.Context) (RowSource, error)
	Name() string
}

// Exporter writes tabular rows to a destination and returns its location.
type Exporter interface {
	Export(ctx context.Context, key string, headers []string, rows [][]string) (string, error)
	Name() string
	Close(ctx context.Context) error
}

// ExporterConfig is a config that *knows how to build* an Exporter.
type ExporterConfig interface {
	BuildExporter(ctx context.Context) (Exporter, error)
	Name() string
}
