package load_orchestra_test

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/comfforts/logger"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/worker"

	lo "github.com/hankgalt/load-orchestra"
	"github.com/hankgalt/load-orchestra/internal/exporters"
	"github.com/hankgalt/load-orchestra/internal/poller"
	"github.com/hankgalt/load-orchestra/internal/storetest"
	"github.com/hankgalt/load-orchestra/internal/strategies"
	"github.com/hankgalt/load-orchestra/pkg/domain"
)

const contactsCSV = "First Name,Last Name,Email\n" +
	"Ada,Lovelace,ada@example.com\n" +
	"Grace,Hopper,grace@example.com\n" +
	"Alan,,alan@example.com\n" +
	"Edsger,Dijkstra,edsger@example.com\n" +
	"Barbara,Liskov,barbara@example.com\n"

func contactMapping() domain.FieldMapping {
	return domain.FieldMapping{
		{CSVField: "First Name", TargetField: "FirstName"},
		{CSVField: "Last Name", TargetField: "LastName", Required: true},
		{CSVField: "Email", TargetField: "Email"},
	}
}

type LoadRecordsWorkflowTestSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite

	env   *testsuite.TestWorkflowEnvironment
	store *storetest.Store
	dir   string
}

func TestLoadRecordsWorkflowTestSuite(t *testing.T) {
	suite.Run(t, new(LoadRecordsWorkflowTestSuite))
}

func (s *LoadRecordsWorkflowTestSuite) SetupTest() {
	// get test logger
	l := logger.GetSlogLogger()

	// set environment logger
	s.SetLogger(l)

	s.dir = s.T().TempDir()
	s.store = storetest.New()

	exp, err := exporters.LocalCSVExporterConfig{Dir: filepath.Join(s.dir, "exports")}.BuildExporter(context.Background())
	s.Require().NoError(err)

	ctx := logger.WithLogger(context.Background(), l)
	ctx = context.WithValue(ctx, lo.StoreClientContextKey, domain.RecordStore(s.store))
	ctx = context.WithValue(ctx, lo.ExporterContextKey, exp)

	s.env = s.NewTestWorkflowEnvironment()
	s.env.SetWorkerOptions(worker.Options{
		BackgroundActivityContext: ctx,
	})
	lo.Register(s.env)
}

func (s *LoadRecordsWorkflowTestSuite) TearDownTest() {
	s.env.AssertExpectations(s.T())
}

func (s *LoadRecordsWorkflowTestSuite) request(mode domain.LoadMode, op domain.Operation) *lo.LoadRequest {
	path := filepath.Join(s.dir, "contacts.csv")
	s.Require().NoError(os.WriteFile(path, []byte(contactsCSV), 0o644))
	return &lo.LoadRequest{
		RunID:     "run-1",
		Object:    "Contact",
		Operation: op,
		Source:    path,
		Mapping:   contactMapping(),
		Options:   domain.LoadOptions{Mode: mode, BatchSize: 2},
		Poll:      lo.PollSettings{IntervalMillis: 1000, MaxAttempts: 10},
		ExportKey: "contacts",
	}
}

func (s *LoadRecordsWorkflowTestSuite) queryStatus() domain.LoadStatus {
	val, err := s.env.QueryWorkflow(lo.LoadStatusQueryName)
	s.Require().NoError(err)
	var st domain.LoadStatus
	s.Require().NoError(val.Get(&st))
	return st
}

func (s *LoadRecordsWorkflowTestSuite) summary() lo.LoadSummary {
	s.True(s.env.IsWorkflowCompleted())
	s.Require().NoError(s.env.GetWorkflowError())
	var sum lo.LoadSummary
	s.Require().NoError(s.env.GetWorkflowResult(&sum))
	return sum
}

func (s *LoadRecordsWorkflowTestSuite) readExport(path string) [][]string {
	f, err := os.Open(path)
	s.Require().NoError(err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	s.Require().NoError(err)
	return rows
}

func (s *LoadRecordsWorkflowTestSuite) Test_LoadRecordsWorkflow_Bulk_HappyPath() {
	s.store.PollsUntilDone = 1

	s.env.ExecuteWorkflow(lo.LoadRecordsWorkflowName, s.request(domain.LoadModeBulk, domain.OperationInsert))

	sum := s.summary()
	s.Equal(domain.LoadStateFinished, sum.Status.State)
	s.Equal(4, sum.Success)
	s.Equal(1, sum.Failure)
	s.Equal("750-job-1", sum.Status.JobID)
	s.Equal(4, sum.Status.Prepared)
	s.Equal(2, sum.Status.Total)
	s.Equal(2, sum.Status.Completed)
	s.Equal(2, sum.Status.PollAttempts)

	s.Len(s.store.Uploaded(), 2)
	s.Equal(0, s.store.CloseJobCalls(), "last upload closes the job")
	s.Equal(0, s.store.AbortJobCalls())

	all := s.readExport(sum.Exports["all"])
	s.Len(all, 6)
	s.Equal([]string{"_id", "_success", "_errors", "FirstName", "LastName", "Email"}, all[0])
	failures := s.readExport(sum.Exports["failures"])
	s.Len(failures, 2)
	s.Equal("Alan", failures[1][3])

	st := s.queryStatus()
	s.Equal(domain.LoadStateFinished, st.State)
	s.Len(st.Batches, 2)
	s.Equal("751-batch-001", st.Batches[1].RemoteID)
}

func (s *LoadRecordsWorkflowTestSuite) Test_LoadRecordsWorkflow_Collection() {
	s.store.FailRecord = func(rec domain.PreparedRecord) string {
		if rec["LastName"] == "Liskov" {
			return "duplicate value"
		}
		return ""
	}

	s.env.ExecuteWorkflow(lo.LoadRecordsWorkflowName, s.request(domain.LoadModeBatch, domain.OperationUpdate))

	sum := s.summary()
	s.Equal(domain.LoadStateFinished, sum.Status.State)
	s.Equal(3, sum.Success)
	s.Equal(2, sum.Failure)
	s.Empty(sum.Status.JobID)
	s.Equal([]domain.Operation{domain.OperationUpdate, domain.OperationUpdate}, s.store.CollectionCalls())
	s.Equal(0, s.store.AddBatchCalls())
}

func (s *LoadRecordsWorkflowTestSuite) Test_LoadRecordsWorkflow_UpsertWithoutExternalID() {
	s.env.ExecuteWorkflow(lo.LoadRecordsWorkflowName, s.request(domain.LoadModeBulk, domain.OperationUpsert))

	s.True(s.env.IsWorkflowCompleted())
	err := s.env.GetWorkflowError()
	s.Require().Error(err)
	s.Contains(err.Error(), strategies.ERR_MISSING_EXTERNAL_ID)

	st := s.queryStatus()
	s.Equal(domain.LoadStateError, st.State)
	s.Equal(strategies.ERR_MISSING_EXTERNAL_ID, st.ErrorMessage)
	s.Nil(s.store.Job())
}

func (s *LoadRecordsWorkflowTestSuite) Test_LoadRecordsWorkflow_PollBudgetExhausted() {
	s.store.NeverDone = true
	req := s.request(domain.LoadModeBulk, domain.OperationInsert)
	req.Poll.MaxAttempts = 3

	s.env.ExecuteWorkflow(lo.LoadRecordsWorkflowName, req)

	s.True(s.env.IsWorkflowCompleted())
	err := s.env.GetWorkflowError()
	s.Require().Error(err)
	s.Contains(err.Error(), poller.ERR_POLL_BUDGET_EXHAUSTED)

	st := s.queryStatus()
	s.Equal(domain.LoadStateError, st.State)
	s.Equal(3, st.PollAttempts)
	s.Equal(3, s.store.GetJobCalls())
}

func (s *LoadRecordsWorkflowTestSuite) Test_LoadRecordsWorkflow_BulkNotSupported() {
	ctx := context.WithValue(context.Background(), lo.StoreClientContextKey, s.store.CollectionOnly())
	s.env.SetWorkerOptions(worker.Options{BackgroundActivityContext: ctx})

	s.env.ExecuteWorkflow(lo.LoadRecordsWorkflowName, s.request(domain.LoadModeBulk, domain.OperationInsert))

	s.True(s.env.IsWorkflowCompleted())
	err := s.env.GetWorkflowError()
	s.Require().Error(err)
	s.Contains(err.Error(), strategies.ERR_BULK_NOT_SUPPORTED)
}

func (s *LoadRecordsWorkflowTestSuite) Test_LoadRecordsWorkflow_AbortWhilePolling() {
	// polls at 0s, 1s and 2s; the final fetch is the fourth call
	s.store.PollsUntilDone = 3

	s.env.RegisterDelayedCallback(func() {
		st := s.queryStatus()
		s.Equal(domain.LoadStateProcessing, st.State)
		s.Equal("750-job-1", st.JobID)

		s.env.SignalWorkflow(lo.AbortSignalName, "operator abort")
	}, 2500*time.Millisecond)

	s.env.ExecuteWorkflow(lo.LoadRecordsWorkflowName, s.request(domain.LoadModeBulk, domain.OperationInsert))

	sum := s.summary()
	s.Equal(domain.LoadStateFinished, sum.Status.State)
	s.Equal(4, sum.Success)
	s.Equal(1, sum.Failure)
	s.Equal(1, s.store.AbortJobCalls())
	s.Equal(4, s.store.GetJobCalls())
	s.Equal(domain.JobStateAborted, s.store.Job().State)
}

func (s *LoadRecordsWorkflowTestSuite) Test_LoadRecordsWorkflow_AbortIncomplete() {
	s.store.NeverDone = true

	s.env.RegisterDelayedCallback(func() {
		s.env.SignalWorkflow(lo.AbortSignalName, "operator abort")
	}, 1500*time.Millisecond)

	s.env.ExecuteWorkflow(lo.LoadRecordsWorkflowName, s.request(domain.LoadModeBulk, domain.OperationInsert))

	s.True(s.env.IsWorkflowCompleted())
	err := s.env.GetWorkflowError()
	s.Require().Error(err)
	s.Contains(err.Error(), lo.ERR_ABORT_INCOMPLETE)
	s.Equal(1, s.store.AbortJobCalls())

	st := s.queryStatus()
	s.Equal(domain.LoadStateError, st.State)
	s.Equal(lo.ERR_ABORT_INCOMPLETE, st.ErrorMessage)
}

func (s *LoadRecordsWorkflowTestSuite) Test_LoadRecordsWorkflow_AbortBeforeJob() {
	// prepare takes 5s; the abort arrives while preparing
	s.env.OnActivity(lo.PrepareDataActivityName, mock.Anything, mock.Anything).
		Return(func(ctx context.Context, req *lo.PrepareRequest) (*domain.PrepareDataResult, error) {
			return &domain.PrepareDataResult{
				Data:          []domain.PreparedRecord{{"LastName": "Lovelace"}, {"LastName": "Hopper"}, {"LastName": "Liskov"}},
				SourceIndexes: []int{0, 1, 2},
			}, nil
		}).
		After(5 * time.Second)

	s.env.RegisterDelayedCallback(func() {
		s.Equal(domain.LoadStatePreparing, s.queryStatus().State)
		s.env.SignalWorkflow(lo.AbortSignalName, "operator abort")
	}, time.Second)

	s.env.ExecuteWorkflow(lo.LoadRecordsWorkflowName, s.request(domain.LoadModeBulk, domain.OperationInsert))

	sum := s.summary()
	s.Equal(domain.LoadStateFinished, sum.Status.State)
	s.Equal(0, sum.Success)
	s.Equal(3, sum.Failure)
	s.Nil(s.store.Job())
	s.Equal(0, s.store.AbortJobCalls())
}

func (s *LoadRecordsWorkflowTestSuite) Test_LoadRecordsWorkflow_AbortDuringUpload() {
	// each upload takes 5s; the abort arrives during the second
	s.env.OnActivity(lo.UploadBatchActivityName, mock.Anything, mock.Anything).
		Return(func(ctx context.Context, req *lo.UploadBatchRequest) (*lo.UploadBatchResult, error) {
			info, err := strategies.UploadBulkBatch(ctx, s.store, req.JobID, req.Batch, req.CloseJob)
			return &lo.UploadBatchResult{Batch: req.Batch.Status(), Info: info}, err
		}).
		After(5 * time.Second)

	s.env.RegisterDelayedCallback(func() {
		s.Equal(domain.LoadStateUploading, s.queryStatus().State)
		s.env.SignalWorkflow(lo.AbortSignalName, "operator abort")
	}, 7*time.Second)

	req := s.request(domain.LoadModeBulk, domain.OperationInsert)
	req.Options.BatchSize = 1

	s.env.ExecuteWorkflow(lo.LoadRecordsWorkflowName, req)

	sum := s.summary()
	s.Equal(domain.LoadStateFinished, sum.Status.State)
	s.Equal(2, sum.Success)
	s.Equal(3, sum.Failure)
	s.Equal(2, s.store.AddBatchCalls())
	s.Equal(1, s.store.AbortJobCalls())
	s.Equal(0, s.store.CloseJobCalls())

	failures := s.readExport(sum.Exports["failures"])
	s.Len(failures, 4)
}

func (s *LoadRecordsWorkflowTestSuite) Test_LoadRecordsWorkflow_LargeIntegersKeepPrecision() {
	s.store.PollsUntilDone = 1

	path := filepath.Join(s.dir, "accounts.csv")
	s.Require().NoError(os.WriteFile(path, []byte("Name,Employees,Revenue\nAcme,9007199254740993,12.5\n"), 0o644))
	req := &lo.LoadRequest{
		RunID:     "run-big",
		Object:    "Account",
		Operation: domain.OperationInsert,
		Source:    path,
		Mapping: domain.FieldMapping{
			{CSVField: "Name", TargetField: "Name"},
			{CSVField: "Employees", TargetField: "NumberOfEmployees", Type: domain.FieldTypeInteger},
			{CSVField: "Revenue", TargetField: "AnnualRevenue", Type: domain.FieldTypeNumber},
		},
		Options:   domain.LoadOptions{Mode: domain.LoadModeBulk, BatchSize: 2},
		Poll:      lo.PollSettings{IntervalMillis: 1000, MaxAttempts: 10},
		ExportKey: "accounts",
	}

	s.env.ExecuteWorkflow(lo.LoadRecordsWorkflowName, req)

	sum := s.summary()
	s.Equal(domain.LoadStateFinished, sum.Status.State)
	s.Equal(1, sum.Success)

	uploaded := s.store.Uploaded()
	s.Require().Len(uploaded, 1)
	s.Equal(int64(9007199254740993), uploaded[0][0]["NumberOfEmployees"])
	s.Equal(12.5, uploaded[0][0]["AnnualRevenue"])

	all := s.readExport(sum.Exports["all"])
	s.Require().Len(all, 2)
	s.Equal([]string{"_id", "_success", "_errors", "Name", "NumberOfEmployees", "AnnualRevenue"}, all[0])
	s.Equal("9007199254740993", all[1][4])
	s.Equal("12.5", all[1][5])
}
