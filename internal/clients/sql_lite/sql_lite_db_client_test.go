package sqllite_test

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	sqllite "github.com/hankgalt/load-orchestra/internal/clients/sql_lite"
)

func newClient(t *testing.T) *sqllite.SQLLiteDBClient {
	t.Helper()
	dbFile := filepath.Join(t.TempDir(), "__deleteme.db")
	dbClient, err := sqllite.NewSQLLiteDBClient(dbFile)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, dbClient.Close(context.Background()))
	})

	res := dbClient.ExecuteSchema(sqllite.LoadSchema)
	_, err = res.RowsAffected()
	require.NoError(t, err)
	return dbClient
}

func TestSQLLiteDBClientRecords(t *testing.T) {
	ctx := context.Background()
	dbClient := newClient(t)

	ids := []string{}
	for i := range 5 {
		id, err := dbClient.InsertRecord(ctx, "Account", map[string]any{
			"Name":     fmt.Sprintf("Account %d", i),
			"Code__c":  fmt.Sprintf("A-%d", i%3),
			"Id":       "ignored",
			"Employee": i,
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	recs, err := dbClient.FetchRecords(ctx, "Account", 0, 10)
	require.NoError(t, err)
	require.Len(t, recs, 5)

	data := map[string]any{}
	require.NoError(t, json.Unmarshal([]byte(recs[0].Data), &data))
	require.NotContains(t, data, "Id")

	matches, err := dbClient.FindIDs(ctx, "Account", "Code__c", []string{"A-0", "A-1", "A-9"})
	require.NoError(t, err)
	require.Len(t, matches["A-0"], 2)
	require.Len(t, matches["A-1"], 2)
	require.NotContains(t, matches, "A-9")

	matches, err = dbClient.FindIDs(ctx, "Account", "Employee", []string{"3"})
	require.NoError(t, err)
	require.Equal(t, []string{ids[3]}, matches["3"])

	matches, err = dbClient.FindIDs(ctx, "Account", "Id", []string{ids[1]})
	require.NoError(t, err)
	require.Equal(t, []string{ids[1]}, matches[ids[1]])

	require.NoError(t, dbClient.UpdateRecord(ctx, "Account", ids[0], map[string]any{"Name": "Renamed", "Code__c": nil}))
	rec, err := dbClient.GetRecord(ctx, "Account", ids[0])
	require.NoError(t, err)
	data = map[string]any{}
	require.NoError(t, json.Unmarshal([]byte(rec.Data), &data))
	require.Equal(t, "Renamed", data["Name"])
	require.NotContains(t, data, "Code__c")

	require.NoError(t, dbClient.DeleteRecord(ctx, "Account", ids[4]))
	require.ErrorIs(t, dbClient.DeleteRecord(ctx, "Account", ids[4]), sqllite.ErrRecordNotFound)
	require.ErrorIs(t, dbClient.UpdateRecord(ctx, "Account", "missing", map[string]any{"Name": "x"}), sqllite.ErrRecordNotFound)
}

func TestSQLLiteDBClientUpsert(t *testing.T) {
	ctx := context.Background()
	dbClient := newClient(t)

	id, created, err := dbClient.UpsertRecord(ctx, "Contact", "Ext__c", map[string]any{"Ext__c": "E1", "LastName": "One"})
	require.NoError(t, err)
	require.True(t, created)

	again, created, err := dbClient.UpsertRecord(ctx, "Contact", "Ext__c", map[string]any{"Ext__c": "E1", "LastName": "Uno"})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, id, again)

	_, _, err = dbClient.UpsertRecord(ctx, "Contact", "Ext__c", map[string]any{"LastName": "Nobody"})
	require.ErrorIs(t, err, sqllite.ErrMissingExternalID)

	_, err = dbClient.InsertRecord(ctx, "Contact", map[string]any{"Ext__c": "E1"})
	require.NoError(t, err)
	_, _, err = dbClient.UpsertRecord(ctx, "Contact", "Ext__c", map[string]any{"Ext__c": "E1"})
	require.ErrorIs(t, err, sqllite.ErrDuplicateExternalID)
}

func TestSQLLiteDBClientJobs(t *testing.T) {
	ctx := context.Background()
	dbClient := newClient(t)

	require.NoError(t, dbClient.InsertJob(ctx, sqllite.Job{ID: "job-1", Object: "Account", Operation: "insert", State: "Open"}))
	for i := range 3 {
		err := dbClient.InsertBatch(ctx, sqllite.JobBatch{
			ID:               fmt.Sprintf("batch-%d", 2-i),
			JobID:            "job-1",
			State:            "Completed",
			RecordsProcessed: 2,
			RecordsFailed:    1,
		}, []sqllite.BatchResult{
			{Position: 0, Success: true, RecordID: "r-1"},
			{Position: 1, Success: false, Errors: `[{"statusCode":"REQUIRED_FIELD_MISSING","message":"Name"}]`},
		})
		require.NoError(t, err)
	}

	batches, err := dbClient.ListBatches(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, batches, 3)
	// upload order, not id order
	require.Equal(t, "batch-2", batches[0].ID)
	require.Equal(t, "batch-0", batches[2].ID)

	results, err := dbClient.FetchBatchResults(ctx, "batch-1")
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.True(t, results[0].Success)
	require.False(t, results[1].Success)

	require.NoError(t, dbClient.UpdateJobState(ctx, "job-1", "Closed"))
	job, err := dbClient.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, "Closed", job.State)

	_, err = dbClient.GetJob(ctx, "job-2")
	require.ErrorIs(t, err, sqllite.ErrJobNotFound)
	require.ErrorIs(t, dbClient.UpdateJobState(ctx, "job-2", "Closed"), sqllite.ErrJobNotFound)
}
