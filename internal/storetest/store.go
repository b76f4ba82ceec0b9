// Package storetest provides an in-memory record store for tests of the load pipeline.
package storetest

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/hankgalt/load-orchestra/pkg/domain"
)

const TestStore = "test-store"

// Store is an in-memory domain.RecordStore and domain.BulkAPI with injectable failures.
// Uploaded bulk batches complete once GetJob has been called more than PollsUntilDone times.
type Store struct {
	mu sync.Mutex

	CreateJobErr   error
	CloseJobErr    error
	AbortJobErr    error
	GetJobErr      error
	LookupErr      error
	FailUpload     map[int]error // by AddBatch call index
	FailCollection map[int]error // by collection call index
	FailRecord     func(rec domain.PreparedRecord) string
	DropLastResult bool
	PollsUntilDone int
	NeverDone      bool
	ReverseBatches bool
	LookupMatches  map[string][]string
	// OnAddBatch runs before each upload with its call index.
	OnAddBatch func(n int)

	job             *domain.JobInfo
	batchRecords    map[string][]domain.PreparedRecord
	addBatchCalls   int
	getJobCalls     int
	closeJobCalls   int
	abortJobCalls   int
	collectionCalls []domain.Operation
	lookupCalls     int
	uploaded        [][]domain.PreparedRecord
}

func New() *Store {
	return &Store{batchRecords: map[string][]domain.PreparedRecord{}}
}

func (s *Store) Name() string { return TestStore }

func (s *Store) Close(ctx context.Context) error { return nil }

func (s *Store) CreateJob(ctx context.Context, req domain.JobRequest) (*domain.JobInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateJobErr != nil {
		return nil, s.CreateJobErr
	}
	s.job = &domain.JobInfo{
		ID:              "750-job-1",
		Object:          req.Object,
		Operation:       req.Operation,
		ExternalIDField: req.ExternalIDField,
		ConcurrencyMode: req.ConcurrencyMode,
		State:           domain.JobStateOpen,
	}
	return s.job.Clone(), nil
}

func (s *Store) AddBatch(ctx context.Context, jobID string, records []domain.PreparedRecord, closeJob bool) (*domain.BatchInfo, error) {
	s.mu.Lock()
	n := s.addBatchCalls
	s.addBatchCalls++
	hook := s.OnAddBatch
	s.mu.Unlock()

	if hook != nil {
		hook(n)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailUpload[n]; err != nil {
		return nil, err
	}
	if s.job == nil || s.job.ID != jobID {
		return nil, fmt.Errorf("job %s not found", jobID)
	}
	info := domain.BatchInfo{
		ID:    fmt.Sprintf("751-batch-%03d", n),
		JobID: jobID,
		State: domain.BatchStateQueued,
	}
	s.job.Batches = append(s.job.Batches, info)
	s.batchRecords[info.ID] = records
	s.uploaded = append(s.uploaded, records)
	if closeJob {
		s.job.State = domain.JobStateClosed
	}
	return &info, nil
}

func (s *Store) CloseJob(ctx context.Context, jobID string) (*domain.JobInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeJobCalls++
	if s.CloseJobErr != nil {
		return nil, s.CloseJobErr
	}
	if s.job == nil || s.job.ID != jobID {
		return nil, fmt.Errorf("job %s not found", jobID)
	}
	s.job.State = domain.JobStateClosed
	return s.job.Clone(), nil
}

func (s *Store) AbortJob(ctx context.Context, jobID string) (*domain.JobInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abortJobCalls++
	if s.AbortJobErr != nil {
		return nil, s.AbortJobErr
	}
	if s.job == nil || s.job.ID != jobID {
		return nil, fmt.Errorf("job %s not found", jobID)
	}
	s.job.State = domain.JobStateAborted
	return s.job.Clone(), nil
}

func (s *Store) GetJob(ctx context.Context, jobID string) (*domain.JobInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getJobCalls++
	if s.GetJobErr != nil {
		return nil, s.GetJobErr
	}
	if s.job == nil || s.job.ID != jobID {
		return nil, fmt.Errorf("job %s not found", jobID)
	}

	done := !s.NeverDone && s.getJobCalls > s.PollsUntilDone
	for i := range s.job.Batches {
		if done {
			s.job.Batches[i].State = domain.BatchStateCompleted
			s.job.Batches[i].NumberRecordsProcessed = len(s.batchRecords[s.job.Batches[i].ID])
		} else {
			s.job.Batches[i].State = domain.BatchStateInProgress
		}
	}
	if done && s.job.State != domain.JobStateAborted {
		s.job.State = domain.JobStateCompleted
	}

	job := s.job.Clone()
	if s.ReverseBatches {
		slices.Reverse(job.Batches)
	}
	return job, nil
}

func (s *Store) GetBatchResults(ctx context.Context, jobID, batchID string) ([]domain.RecordResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, ok := s.batchRecords[batchID]
	if !ok {
		return nil, fmt.Errorf("batch %s not found", batchID)
	}
	return s.results(batchID, records), nil
}

func (s *Store) results(prefix string, records []domain.PreparedRecord) []domain.RecordResult {
	out := make([]domain.RecordResult, 0, len(records))
	for i, rec := range records {
		if s.FailRecord != nil {
			if msg := s.FailRecord(rec); msg != "" {
				out = append(out, domain.FailedResult(rec, "FIELD_CUSTOM_VALIDATION_EXCEPTION", msg))
				continue
			}
		}
		out = append(out, domain.RecordResult{Success: true, ID: fmt.Sprintf("%s-%d", prefix, i), Record: rec})
	}
	if s.DropLastResult && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out
}

func (s *Store) collection(op domain.Operation, records []domain.PreparedRecord) ([]domain.RecordResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.collectionCalls)
	s.collectionCalls = append(s.collectionCalls, op)
	if err := s.FailCollection[n]; err != nil {
		return nil, err
	}
	return s.results(fmt.Sprintf("001-call-%d", n), records), nil
}

func (s *Store) Create(ctx context.Context, object string, records []domain.PreparedRecord, allOrNone bool) ([]domain.RecordResult, error) {
	return s.collection(domain.OperationInsert, records)
}

func (s *Store) Update(ctx context.Context, object string, records []domain.PreparedRecord, allOrNone bool) ([]domain.RecordResult, error) {
	return s.collection(domain.OperationUpdate, records)
}

func (s *Store) Upsert(ctx context.Context, object, externalIDField string, records []domain.PreparedRecord, allOrNone bool) ([]domain.RecordResult, error) {
	return s.collection(domain.OperationUpsert, records)
}

func (s *Store) Delete(ctx context.Context, object string, ids []string, allOrNone bool) ([]domain.RecordResult, error) {
	records := make([]domain.PreparedRecord, len(ids))
	for i, id := range ids {
		records[i] = domain.PreparedRecord{"Id": id}
	}
	return s.collection(domain.OperationDelete, records)
}

func (s *Store) Lookup(ctx context.Context, object, field string, values []string) (map[string][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookupCalls++
	if s.LookupErr != nil {
		return nil, s.LookupErr
	}
	out := map[string][]string{}
	for _, v := range values {
		if ids, ok := s.LookupMatches[v]; ok {
			out[v] = ids
		}
	}
	return out, nil
}

// Counts of remote calls made so far.
func (s *Store) AddBatchCalls() int { s.mu.Lock(); defer s.mu.Unlock(); return s.addBatchCalls }
func (s *Store) GetJobCalls() int   { s.mu.Lock(); defer s.mu.Unlock(); return s.getJobCalls }
func (s *Store) CloseJobCalls() int { s.mu.Lock(); defer s.mu.Unlock(); return s.closeJobCalls }
func (s *Store) AbortJobCalls() int { s.mu.Lock(); defer s.mu.Unlock(); return s.abortJobCalls }
func (s *Store) LookupCalls() int   { s.mu.Lock(); defer s.mu.Unlock(); return s.lookupCalls }

// CollectionCalls returns the operations of the collection calls made so far.
func (s *Store) CollectionCalls() []domain.Operation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Operation(nil), s.collectionCalls...)
}

// Uploaded returns the record slices of all accepted uploads, in upload order.
func (s *Store) Uploaded() [][]domain.PreparedRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]domain.PreparedRecord(nil), s.uploaded...)
}

// Job returns a copy of the current job.
func (s *Store) Job() *domain.JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.job.Clone()
}

// CollectionOnly hides the bulk protocol of the store.
func (s *Store) CollectionOnly() domain.RecordStore {
	return collectionOnly{s}
}

type collectionOnly struct {
	s *Store
}

func (c collectionOnly) Name() string                    { return c.s.Name() }
func (c collectionOnly) Close(ctx context.Context) error { return c.s.Close(ctx) }
func (c collectionOnly) Create(ctx context.Context, object string, records []domain.PreparedRecord, allOrNone bool) ([]domain.RecordResult, error) {
	return c.s.Create(ctx, object, records, allOrNone)
}
func (c collectionOnly) Update(ctx context.Context, object string, records []domain.PreparedRecord, allOrNone bool) ([]domain.RecordResult, error) {
	return c.s.Update(ctx, object, records, allOrNone)
}
func (c collectionOnly) Upsert(ctx context.Context, object, externalIDField string, records []domain.PreparedRecord, allOrNone bool) ([]domain.RecordResult, error) {
	return c.s.Upsert(ctx, object, externalIDField, records, allOrNone)
}
func (c collectionOnly) Delete(ctx context.Context, object string, ids []string, allOrNone bool) ([]domain.RecordResult, error) {
	return c.s.Delete(ctx, object, ids, allOrNone)
}
func (c collectionOnly) Lookup(ctx context.Context, object, field string, values []string) (map[string][]string, error) {
	return c.s.Lookup(ctx, object, field, values)
}
