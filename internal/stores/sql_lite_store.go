package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	sqllite "github.com/hankgalt/load-orchestra/internal/clients/sql_lite"
	"github.com/hankgalt/load-orchestra/pkg/domain"
)

// Error constants and variables
const (
	ERR_SQLLITE_STORE_DB_FILE_REQUIRED = "sql-lite store: DB file is required"
	ERR_SQLLITE_STORE_JOB_NOT_OPEN     = "sql-lite store: job is not open"
)

var (
	ErrSQLLiteStoreDBFileRequired = errors.New(ERR_SQLLITE_STORE_DB_FILE_REQUIRED)
	ErrSQLLiteStoreJobNotOpen     = errors.New(ERR_SQLLITE_STORE_JOB_NOT_OPEN)
)

const SQLLiteStore = "sql-lite-store"

// sqlLiteDocs adapts the SQLite client to DocumentWriter.
type sqlLiteDocs struct {
	client *sqllite.SQLLiteDBClient
}

func (d sqlLiteDocs) Insert(ctx context.Context, object string, fields map[string]any) (string, error) {
	return d.client.InsertRecord(ctx, object, fields)
}

func (d sqlLiteDocs) Update(ctx context.Context, object, id string, fields map[string]any) error {
	return d.client.UpdateRecord(ctx, object, id, fields)
}

func (d sqlLiteDocs) Upsert(ctx context.Context, object, externalIDField string, fields map[string]any) (string, bool, error) {
	return d.client.UpsertRecord(ctx, object, externalIDField, fields)
}

func (d sqlLiteDocs) Delete(ctx context.Context, object, id string) error {
	return d.client.DeleteRecord(ctx, object, id)
}

func (d sqlLiteDocs) FindIDs(ctx context.Context, object, field string, values []string) (map[string][]string, error) {
	return d.client.FindIDs(ctx, object, field, values)
}

func (d sqlLiteDocs) Close(ctx context.Context) error {
	return d.client.Close(ctx)
}

// sqlLiteStore is a local record store with bulk jobs.
// Uploaded batches are applied immediately and recorded as completed.
type sqlLiteStore struct {
	documentStore
	client *sqllite.SQLLiteDBClient
}

func (s *sqlLiteStore) CreateJob(ctx context.Context, req domain.JobRequest) (*domain.JobInfo, error) {
	job := sqllite.Job{
		ID:              uuid.NewString(),
		Object:          req.Object,
		Operation:       string(req.Operation),
		ExternalIDField: req.ExternalIDField,
		ConcurrencyMode: string(req.ConcurrencyMode),
		State:           string(domain.JobStateOpen),
	}
	if err := s.client.InsertJob(ctx, job); err != nil {
		return nil, err
	}
	return s.GetJob(ctx, job.ID)
}

func (s *sqlLiteStore) AddBatch(ctx context.Context, jobID string, records []domain.PreparedRecord, closeJob bool) (*domain.BatchInfo, error) {
	job, err := s.client.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.State != string(domain.JobStateOpen) {
		return nil, fmt.Errorf("%w: %s is %s", ErrSQLLiteStoreJobNotOpen, jobID, job.State)
	}

	op := domain.Operation(job.Operation)
	var results []domain.RecordResult
	if op == domain.OperationDelete {
		ids := make([]string, len(records))
		for i, rec := range records {
			ids[i] = recordID(rec)
		}
		results, err = s.Delete(ctx, job.Object, ids, false)
	} else {
		results, err = s.apply(ctx, job.Object, op, job.ExternalIDField, records)
	}
	if err != nil {
		return nil, err
	}

	batch := sqllite.JobBatch{
		ID:    uuid.NewString(),
		JobID: jobID,
		State: string(domain.BatchStateCompleted),
	}
	rows := make([]sqllite.BatchResult, 0, len(results))
	for i, r := range results {
		batch.RecordsProcessed++
		row := sqllite.BatchResult{Position: i, Success: r.Success, RecordID: r.ID}
		if !r.Success {
			batch.RecordsFailed++
			b, err := json.Marshal(r.Errors)
			if err != nil {
				return nil, err
			}
			row.Errors = string(b)
		}
		rows = append(rows, row)
	}
	if err := s.client.InsertBatch(ctx, batch, rows); err != nil {
		return nil, err
	}
	if closeJob {
		if err := s.client.UpdateJobState(ctx, jobID, string(domain.JobStateClosed)); err != nil {
			return nil, err
		}
	}
	return &domain.BatchInfo{
		ID:                     batch.ID,
		JobID:                  jobID,
		State:                  domain.BatchStateCompleted,
		NumberRecordsProcessed: batch.RecordsProcessed,
		NumberRecordsFailed:    batch.RecordsFailed,
	}, nil
}

func (s *sqlLiteStore) CloseJob(ctx context.Context, jobID string) (*domain.JobInfo, error) {
	return s.setJobState(ctx, jobID, domain.JobStateClosed)
}

func (s *sqlLiteStore) AbortJob(ctx context.Context, jobID string) (*domain.JobInfo, error) {
	return s.setJobState(ctx, jobID, domain.JobStateAborted)
}

func (s *sqlLiteStore) setJobState(ctx context.Context, jobID string, state domain.JobState) (*domain.JobInfo, error) {
	job, err := s.client.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.State != string(domain.JobStateOpen) {
		return nil, fmt.Errorf("%w: %s is %s", ErrSQLLiteStoreJobNotOpen, jobID, job.State)
	}
	if err := s.client.UpdateJobState(ctx, jobID, string(state)); err != nil {
		return nil, err
	}
	return s.GetJob(ctx, jobID)
}

// GetJob reports a closed job whose batches are all terminal as completed.
func (s *sqlLiteStore) GetJob(ctx context.Context, jobID string) (*domain.JobInfo, error) {
	job, err := s.client.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	batches, err := s.client.ListBatches(ctx, jobID)
	if err != nil {
		return nil, err
	}

	info := &domain.JobInfo{
		ID:              job.ID,
		Object:          job.Object,
		Operation:       domain.Operation(job.Operation),
		ExternalIDField: job.ExternalIDField,
		ConcurrencyMode: domain.ConcurrencyMode(job.ConcurrencyMode),
		State:           domain.JobState(job.State),
		Batches:         make([]domain.BatchInfo, 0, len(batches)),
	}
	allTerminal := true
	for _, b := range batches {
		bi := domain.BatchInfo{
			ID:                     b.ID,
			JobID:                  b.JobID,
			State:                  domain.BatchState(b.State),
			StateMessage:           b.StateMessage,
			NumberRecordsProcessed: b.RecordsProcessed,
			NumberRecordsFailed:    b.RecordsFailed,
		}
		allTerminal = allTerminal && bi.State.IsTerminal()
		info.NumberRecordsProcessed += b.RecordsProcessed
		info.NumberRecordsFailed += b.RecordsFailed
		info.Batches = append(info.Batches, bi)
	}
	if info.State == domain.JobStateClosed && allTerminal {
		info.State = domain.JobStateCompleted
	}
	return info, nil
}

func (s *sqlLiteStore) GetBatchResults(ctx context.Context, jobID, batchID string) ([]domain.RecordResult, error) {
	rows, err := s.client.FetchBatchResults(ctx, batchID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.RecordResult, 0, len(rows))
	for _, r := range rows {
		res := domain.RecordResult{Success: r.Success, ID: r.RecordID}
		if r.Errors != "" {
			if err := json.Unmarshal([]byte(r.Errors), &res.Errors); err != nil {
				res.Errors = []domain.RecordError{{StatusCode: STATUS_STORE_ERROR, Message: r.Errors}}
			}
		}
		out = append(out, res)
	}
	return out, nil
}

// SQLLite store config.
type SQLLiteStoreConfig struct {
	DBFile string // e.g., "data/records.db"
}

// Name of the store.
func (c *SQLLiteStoreConfig) Name() string { return SQLLiteStore }

// BuildStore opens the database and creates the record store tables.
func (c *SQLLiteStoreConfig) BuildStore(ctx context.Context) (domain.RecordStore, error) {
	if c.DBFile == "" {
		return nil, ErrSQLLiteStoreDBFileRequired
	}

	dbClient, err := sqllite.NewSQLLiteDBClient(c.DBFile)
	if err != nil {
		return nil, err
	}
	dbClient.ExecuteSchema(sqllite.LoadSchema)

	return &sqlLiteStore{
		documentStore: documentStore{name: SQLLiteStore, writer: sqlLiteDocs{client: dbClient}},
		client:        dbClient,
	}, nil
}
