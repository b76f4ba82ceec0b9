package stores_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/comfforts/logger"
	"github.com/stretchr/testify/require"

	"github.com/hankgalt/load-orchestra/internal/clients/mongodb"
	"github.com/hankgalt/load-orchestra/internal/stores"
	"github.com/hankgalt/load-orchestra/pkg/domain"
)

func testContext() context.Context {
	return logger.WithLogger(context.Background(), logger.GetSlogLogger())
}

func buildSQLLiteStore(t *testing.T) domain.RecordStore {
	t.Helper()
	cfg := &stores.SQLLiteStoreConfig{DBFile: filepath.Join(t.TempDir(), "records.db")}
	require.Equal(t, stores.SQLLiteStore, cfg.Name())
	st, err := cfg.BuildStore(testContext())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, st.Close(context.Background()))
	})
	return st
}

func TestSQLLiteStoreCollection(t *testing.T) {
	ctx := testContext()
	st := buildSQLLiteStore(t)

	created, err := st.Create(ctx, "Account", []domain.PreparedRecord{
		{"Name": "Acme", "Code__c": "A-1"},
		{"Name": "Globex", "Code__c": "A-2"},
	}, false)
	require.NoError(t, err)
	require.Len(t, created, 2)
	require.True(t, created[0].Success)
	require.NotEmpty(t, created[0].ID)

	matches, err := st.Lookup(ctx, "Account", "Code__c", []string{"A-1", "A-3"})
	require.NoError(t, err)
	require.Equal(t, []string{created[0].ID}, matches["A-1"])

	updated, err := st.Update(ctx, "Account", []domain.PreparedRecord{
		{"Id": created[1].ID, "Name": "Globex Corp"},
		{"Name": "no id"},
	}, false)
	require.NoError(t, err)
	require.True(t, updated[0].Success)
	require.False(t, updated[1].Success)
	require.Equal(t, stores.STATUS_MISSING_ID, updated[1].Errors[0].StatusCode)

	upserted, err := st.Upsert(ctx, "Account", "Code__c", []domain.PreparedRecord{
		{"Code__c": "A-1", "Name": "Acme Inc"},
		{"Code__c": "A-9", "Name": "Initech"},
	}, false)
	require.NoError(t, err)
	require.Equal(t, created[0].ID, upserted[0].ID)
	require.True(t, upserted[1].Success)

	deleted, err := st.Delete(ctx, "Account", []string{created[0].ID, "missing", created[1].ID}, false)
	require.NoError(t, err)
	require.True(t, deleted[0].Success)
	require.False(t, deleted[1].Success)
	require.Equal(t, stores.STATUS_NOT_FOUND, deleted[1].Errors[0].StatusCode)
	require.True(t, deleted[2].Success)
}

func TestSQLLiteStoreBulkJob(t *testing.T) {
	ctx := testContext()
	st := buildSQLLiteStore(t)
	bulk, ok := domain.AsBulk(st)
	require.True(t, ok)

	job, err := bulk.CreateJob(ctx, domain.JobRequest{Object: "Contact", Operation: domain.OperationInsert, ConcurrencyMode: domain.ConcurrencyParallel})
	require.NoError(t, err)
	require.Equal(t, domain.JobStateOpen, job.State)

	ids := []string{}
	for i := range 3 {
		records := []domain.PreparedRecord{
			{"LastName": fmt.Sprintf("L-%d-0", i)},
			{"LastName": fmt.Sprintf("L-%d-1", i)},
		}
		info, err := bulk.AddBatch(ctx, job.ID, records, i == 2)
		require.NoError(t, err)
		require.Equal(t, domain.BatchStateCompleted, info.State)
		ids = append(ids, info.ID)
	}

	_, err = bulk.AddBatch(ctx, job.ID, []domain.PreparedRecord{{"LastName": "late"}}, false)
	require.ErrorIs(t, err, stores.ErrSQLLiteStoreJobNotOpen)

	got, err := bulk.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, domain.JobStateCompleted, got.State)
	require.Equal(t, 6, got.NumberRecordsProcessed)
	require.Len(t, got.Batches, 3)
	for i, b := range got.Batches {
		require.Equal(t, ids[i], b.ID)
	}

	res, err := bulk.GetBatchResults(ctx, job.ID, ids[1])
	require.NoError(t, err)
	require.Len(t, res, 2)
	require.True(t, res[0].Success)

	_, err = bulk.AbortJob(ctx, job.ID)
	require.ErrorIs(t, err, stores.ErrSQLLiteStoreJobNotOpen)
}

func TestSQLLiteStoreBulkFailuresAndAbort(t *testing.T) {
	ctx := testContext()
	st := buildSQLLiteStore(t)
	bulk, _ := domain.AsBulk(st)

	job, err := bulk.CreateJob(ctx, domain.JobRequest{Object: "Contact", Operation: domain.OperationDelete})
	require.NoError(t, err)

	info, err := bulk.AddBatch(ctx, job.ID, []domain.PreparedRecord{{"Id": "nope"}, {}}, false)
	require.NoError(t, err)
	require.Equal(t, 2, info.NumberRecordsFailed)

	res, err := bulk.GetBatchResults(ctx, job.ID, info.ID)
	require.NoError(t, err)
	require.Equal(t, stores.STATUS_NOT_FOUND, res[0].Errors[0].StatusCode)
	require.Equal(t, stores.STATUS_MISSING_ID, res[1].Errors[0].StatusCode)

	aborted, err := bulk.AbortJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, domain.JobStateAborted, aborted.State)
}

func TestSQLLiteStoreConfigRequiresFile(t *testing.T) {
	_, err := (&stores.SQLLiteStoreConfig{}).BuildStore(testContext())
	require.ErrorIs(t, err, stores.ErrSQLLiteStoreDBFileRequired)
}

// memDocs is an in-memory MongoDocClient.
type memDocs struct {
	docs map[string]map[string]map[string]any
	seq  int
}

func newMemDocs() *memDocs {
	return &memDocs{docs: map[string]map[string]map[string]any{}}
}

func (m *memDocs) AddCollectionDoc(ctx context.Context, coll string, doc map[string]any) (string, error) {
	m.seq++
	id := fmt.Sprintf("%024x", m.seq)
	if m.docs[coll] == nil {
		m.docs[coll] = map[string]map[string]any{}
	}
	m.docs[coll][id] = doc
	return id, nil
}

func (m *memDocs) UpdateCollectionDoc(ctx context.Context, coll, id string, doc map[string]any) error {
	cur, ok := m.docs[coll][id]
	if !ok {
		return fmt.Errorf("%w: %s", mongodb.ErrMongoDocNotFound, id)
	}
	for k, v := range doc {
		cur[k] = v
	}
	return nil
}

func (m *memDocs) UpsertCollectionDoc(ctx context.Context, coll, field string, doc map[string]any) (string, bool, error) {
	if doc[field] == nil {
		return "", false, mongodb.ErrMongoMissingExternalID
	}
	for id, d := range m.docs[coll] {
		if d[field] == doc[field] {
			return id, false, m.UpdateCollectionDoc(ctx, coll, id, doc)
		}
	}
	id, err := m.AddCollectionDoc(ctx, coll, doc)
	return id, true, err
}

func (m *memDocs) DeleteCollectionDoc(ctx context.Context, coll, id string) error {
	if _, ok := m.docs[coll][id]; !ok {
		return fmt.Errorf("%w: %s", mongodb.ErrMongoDocNotFound, id)
	}
	delete(m.docs[coll], id)
	return nil
}

func (m *memDocs) FindIDs(ctx context.Context, coll, field string, values []string) (map[string][]string, error) {
	out := map[string][]string{}
	for id, d := range m.docs[coll] {
		for _, v := range values {
			if fmt.Sprint(d[field]) == v {
				out[v] = append(out[v], id)
			}
		}
	}
	return out, nil
}

func (m *memDocs) Close(ctx context.Context) error { return nil }

func TestMongoRecordStore(t *testing.T) {
	ctx := testContext()
	st := stores.NewMongoRecordStore(newMemDocs())
	require.Equal(t, stores.MongoStore, st.Name())
	_, isBulk := domain.AsBulk(st)
	require.False(t, isBulk)

	created, err := st.Create(ctx, "accounts", []domain.PreparedRecord{{"Name": "Acme"}}, false)
	require.NoError(t, err)
	require.True(t, created[0].Success)

	upserted, err := st.Upsert(ctx, "accounts", "Code__c", []domain.PreparedRecord{{"Name": "no code"}}, false)
	require.NoError(t, err)
	require.Equal(t, stores.STATUS_MISSING_EXTERNAL_ID, upserted[0].Errors[0].StatusCode)

	deleted, err := st.Delete(ctx, "accounts", []string{created[0].ID, created[0].ID}, false)
	require.NoError(t, err)
	require.True(t, deleted[0].Success)
	require.Equal(t, stores.STATUS_NOT_FOUND, deleted[1].Errors[0].StatusCode)
}

func TestMongoStoreConfigValidation(t *testing.T) {
	cfg := &stores.MongoStoreConfig{}
	_, err := cfg.BuildStore(testContext())
	require.ErrorIs(t, err, stores.ErrMongoStoreDBProtocolRequired)

	cfg = &stores.MongoStoreConfig{Protocol: "mongodb", Host: "localhost:27017"}
	_, err = cfg.BuildStore(testContext())
	require.ErrorIs(t, err, stores.ErrMongoStoreDBNameRequired)
}

func TestRESTStoreConfig(t *testing.T) {
	_, err := (&stores.RESTStoreConfig{}).BuildStore(testContext())
	require.ErrorIs(t, err, stores.ErrRESTStoreBaseURLRequired)

	st, err := (&stores.RESTStoreConfig{BaseURL: "https://records.example.com/api"}).BuildStore(testContext())
	require.NoError(t, err)
	require.Equal(t, stores.RESTStore, st.Name())
	_, isBulk := domain.AsBulk(st)
	require.True(t, isBulk)
}

func TestNoopStore(t *testing.T) {
	st, err := stores.NoopStoreConfig{}.BuildStore(testContext())
	require.NoError(t, err)

	res, err := st.Delete(testContext(), "Account", []string{"001", "002"}, true)
	require.NoError(t, err)
	require.Equal(t, "002", res[1].ID)

	res, err = st.Create(testContext(), "Account", []domain.PreparedRecord{{"Name": "a"}}, false)
	require.NoError(t, err)
	require.Equal(t, "noop-0", res[0].ID)

	matches, err := st.Lookup(testContext(), "Account", "Name", []string{"a"})
	require.NoError(t, err)
	require.Empty(t, matches)
}
