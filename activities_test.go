package load_orchestra_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/comfforts/logger"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/worker"

	lo "github.com/hankgalt/load-orchestra"
	"github.com/hankgalt/load-orchestra/internal/exporters"
	"github.com/hankgalt/load-orchestra/internal/storetest"
	"github.com/hankgalt/load-orchestra/internal/strategies"
	"github.com/hankgalt/load-orchestra/pkg/domain"
)

type LoadActivitiesTestSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
}

func TestLoadActivitiesTestSuite(t *testing.T) {
	suite.Run(t, new(LoadActivitiesTestSuite))
}

func (s *LoadActivitiesTestSuite) SetupTest() {
	s.SetLogger(logger.GetSlogLogger())
}

// activityEnv returns an activity environment whose activities see st and exp.
func (s *LoadActivitiesTestSuite) activityEnv(st domain.RecordStore, exp domain.Exporter) *testsuite.TestActivityEnvironment {
	env := s.NewTestActivityEnvironment()

	ctx := logger.WithLogger(context.Background(), logger.GetSlogLogger())
	if st != nil {
		ctx = context.WithValue(ctx, lo.StoreClientContextKey, st)
	}
	if exp != nil {
		ctx = context.WithValue(ctx, lo.ExporterContextKey, exp)
	}
	env.SetWorkerOptions(worker.Options{
		BackgroundActivityContext: ctx,
	})

	env.RegisterActivityWithOptions(lo.PrepareDataActivity, activity.RegisterOptions{Name: lo.PrepareDataActivityName})
	env.RegisterActivityWithOptions(lo.UploadBatchActivity, activity.RegisterOptions{Name: lo.UploadBatchActivityName})
	env.RegisterActivityWithOptions(lo.GetJobActivity, activity.RegisterOptions{Name: lo.GetJobActivityName})
	env.RegisterActivityWithOptions(lo.SubmitCollectionBatchActivity, activity.RegisterOptions{Name: lo.SubmitCollectionBatchActivityName})
	env.RegisterActivityWithOptions(lo.FinalizeActivity, activity.RegisterOptions{Name: lo.FinalizeActivityName})
	return env
}

func (s *LoadActivitiesTestSuite) Test_PrepareDataActivity() {
	path := filepath.Join(s.T().TempDir(), "contacts.csv")
	s.Require().NoError(os.WriteFile(path, []byte("Name,Account\nAda,ACME-1\nGrace,ACME-9\n"), 0o644))

	st := storetest.New()
	st.LookupMatches = map[string][]string{"ACME-1": {"001A"}}
	env := s.activityEnv(st, nil)

	mapping := domain.FieldMapping{
		{CSVField: "Name", TargetField: "LastName"},
		{
			CSVField:               "Account",
			TargetField:            "AccountId",
			MappedToLookup:         true,
			RelatedReferenceObject: "Account",
			TargetLookupField:      "Code__c",
		},
	}

	val, err := env.ExecuteActivity(lo.PrepareDataActivityName, &lo.PrepareRequest{
		Source:    path,
		Object:    "Contact",
		Operation: domain.OperationInsert,
		Mapping:   mapping,
	})
	s.Require().NoError(err)

	var res domain.PrepareDataResult
	s.Require().NoError(val.Get(&res))
	s.Len(res.Data, 1)
	s.Equal("001A", res.Data[0]["AccountId"])
	s.Len(res.Errors, 1)
	s.Equal(1, res.Errors[0].RowIndex)
	s.Equal(1, st.LookupCalls())
}

func (s *LoadActivitiesTestSuite) Test_PrepareDataActivity_Errors() {
	env := s.activityEnv(nil, nil)
	_, err := env.ExecuteActivity(lo.PrepareDataActivityName, &lo.PrepareRequest{})
	s.Require().Error(err)
	s.Contains(err.Error(), lo.ERR_MISSING_SOURCE)

	_, err = env.ExecuteActivity(lo.PrepareDataActivityName, &lo.PrepareRequest{Source: "contacts.csv"})
	s.Require().Error(err)
	s.Contains(err.Error(), lo.ERR_MISSING_STORE_CLIENT)

	env = s.activityEnv(storetest.New(), nil)
	_, err = env.ExecuteActivity(lo.PrepareDataActivityName, &lo.PrepareRequest{
		Source:  filepath.Join(s.T().TempDir(), "missing.csv"),
		Mapping: domain.FieldMapping{{CSVField: "Name", TargetField: "LastName"}},
	})
	s.Require().Error(err)
	s.Contains(err.Error(), lo.ERR_READING_SOURCE)
}

func (s *LoadActivitiesTestSuite) Test_UploadBatchActivity() {
	st := storetest.New()
	st.FailUpload = map[int]error{1: errors.New("INVALID_BATCH: too large")}
	env := s.activityEnv(st, nil)

	job, err := st.CreateJob(context.Background(), domain.JobRequest{Object: "Contact", Operation: domain.OperationInsert})
	s.Require().NoError(err)

	batch := &domain.Batch{BatchNumber: 0, Records: []domain.PreparedRecord{{"LastName": "Lovelace"}}}
	val, err := env.ExecuteActivity(lo.UploadBatchActivityName, &lo.UploadBatchRequest{JobID: job.ID, Batch: batch})
	s.Require().NoError(err)
	var res lo.UploadBatchResult
	s.Require().NoError(val.Get(&res))
	s.True(res.Batch.Success)
	s.Equal("751-batch-000", res.Batch.RemoteID)
	s.Equal("751-batch-000", res.Info.ID)

	batch = &domain.Batch{BatchNumber: 1, Records: []domain.PreparedRecord{{"LastName": "Hopper"}}}
	val, err = env.ExecuteActivity(lo.UploadBatchActivityName, &lo.UploadBatchRequest{JobID: job.ID, Batch: batch, CloseJob: true})
	s.Require().NoError(err)
	res = lo.UploadBatchResult{}
	s.Require().NoError(val.Get(&res))
	s.True(res.Batch.Completed)
	s.False(res.Batch.Success)
	s.Equal("INVALID_BATCH: too large", res.Batch.Error)
	s.Nil(res.Info)

	_, err = env.ExecuteActivity(lo.UploadBatchActivityName, &lo.UploadBatchRequest{Batch: batch})
	s.Require().Error(err)
	s.Contains(err.Error(), lo.ERR_MISSING_JOB_ID)
}

func (s *LoadActivitiesTestSuite) Test_GetJobActivity_CollectionOnlyStore() {
	env := s.activityEnv(storetest.New().CollectionOnly(), nil)
	_, err := env.ExecuteActivity(lo.GetJobActivityName, "750-job-1")
	s.Require().Error(err)
	s.Contains(err.Error(), strategies.ERR_BULK_NOT_SUPPORTED)
}

func (s *LoadActivitiesTestSuite) Test_SubmitCollectionBatchActivity() {
	st := storetest.New()
	st.FailCollection = map[int]error{0: errors.New("REQUEST_LIMIT_EXCEEDED")}
	env := s.activityEnv(st, nil)

	batch := &domain.Batch{BatchNumber: 3, Records: []domain.PreparedRecord{{"Id": "003A"}, {"Id": "003B"}}}
	val, err := env.ExecuteActivity(lo.SubmitCollectionBatchActivityName, &lo.CollectionBatchRequest{
		Object:    "Contact",
		Operation: domain.OperationDelete,
		Batch:     batch,
	})
	s.Require().NoError(err)

	var res lo.CollectionBatchResult
	s.Require().NoError(val.Get(&res))
	s.False(res.Batch.Success)
	s.Len(res.Results, 2)
	s.False(res.Results[1].Success)
	s.Equal([]domain.Operation{domain.OperationDelete}, st.CollectionCalls())

	_, err = env.ExecuteActivity(lo.SubmitCollectionBatchActivityName, &lo.CollectionBatchRequest{
		Object:    "Contact",
		Operation: domain.OperationUpsert,
		Batch:     batch,
	})
	s.Require().Error(err)
	s.Contains(err.Error(), strategies.ERR_MISSING_EXTERNAL_ID)
}

func (s *LoadActivitiesTestSuite) Test_FinalizeActivity_Bulk() {
	ctx := context.Background()
	st := storetest.New()
	st.FailRecord = func(rec domain.PreparedRecord) string {
		if rec["LastName"] == "Hopper" {
			return "duplicate"
		}
		return ""
	}
	job, err := st.CreateJob(ctx, domain.JobRequest{Object: "Contact", Operation: domain.OperationInsert})
	s.Require().NoError(err)
	records := []domain.PreparedRecord{{"LastName": "Lovelace"}, {"LastName": "Hopper"}}
	info, err := st.AddBatch(ctx, job.ID, records, true)
	s.Require().NoError(err)

	dir := s.T().TempDir()
	exp, err := exporters.XLSXExporterConfig{Dir: dir}.BuildExporter(ctx)
	s.Require().NoError(err)
	env := s.activityEnv(st, exp)

	val, err := env.ExecuteActivity(lo.FinalizeActivityName, &lo.FinalizeRequest{
		RunID:     "run-7",
		Mapping:   domain.FieldMapping{{CSVField: "Last Name", TargetField: "LastName"}},
		Prepared:  domain.PrepareDataResult{Data: records, SourceIndexes: []int{0, 1}},
		BatchSize: 2,
		JobID:     job.ID,
		Order:     map[string]int{info.ID: 0},
	})
	s.Require().NoError(err)

	var res lo.FinalizeResult
	s.Require().NoError(val.Get(&res))
	s.Equal(1, res.Success)
	s.Equal(1, res.Failure)
	s.Equal(filepath.Join(dir, "run-7-all.xlsx"), res.Exports["all"])
	s.FileExists(res.Exports["failures"])
}

func (s *LoadActivitiesTestSuite) Test_FinalizeActivity_NoExporter() {
	env := s.activityEnv(storetest.New(), nil)

	val, err := env.ExecuteActivity(lo.FinalizeActivityName, &lo.FinalizeRequest{
		RunID:     "run-8",
		Mapping:   domain.FieldMapping{{CSVField: "Last Name", TargetField: "LastName"}},
		Prepared:  domain.PrepareDataResult{Data: []domain.PreparedRecord{{"LastName": "Lovelace"}}, SourceIndexes: []int{0}},
		BatchSize: 200,
		Results: map[int][]domain.RecordResult{
			0: {{Success: true, ID: "003A"}},
		},
	})
	s.Require().NoError(err)

	var res lo.FinalizeResult
	s.Require().NoError(val.Get(&res))
	s.Equal(1, res.Success)
	s.Empty(res.Exports)
}
