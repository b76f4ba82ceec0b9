package results_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hankgalt/load-orchestra/internal/results"
	"github.com/hankgalt/load-orchestra/pkg/domain"
)

func mapping() domain.FieldMapping {
	return domain.FieldMapping{
		{CSVField: "name", TargetField: "Name"},
		{CSVField: "amount", TargetField: "Amount", Type: domain.FieldTypeNumber},
	}
}

func TestAggregateInputOrder(t *testing.T) {
	prepared := domain.PrepareDataResult{
		Data: []domain.PreparedRecord{
			{"Name": "a", "Amount": 1.0},
			{"Name": "c", "Amount": 3.5},
			{"Name": "d", "Amount": 4.0},
		},
		SourceIndexes: []int{0, 2, 3},
		Errors: []domain.PrepareDataError{
			{RowIndex: 1, Row: domain.RawRow{"name": "b", "amount": "abc"}, Field: "Amount", Message: `Amount: invalid number "abc"`},
		},
	}
	agg := results.Aggregate(results.Input{
		Mapping:   mapping(),
		Prepared:  prepared,
		BatchSize: 2,
		Results: map[int][]domain.RecordResult{
			1: {{Success: true, ID: "001C"}},
			0: {{Success: true, ID: "001A"}, {Success: false, Errors: []domain.RecordError{{StatusCode: "DUPLICATE_VALUE", Message: "dup"}}}},
		},
	})

	all := agg.All()
	require.Len(t, all, 4)
	for i, r := range all {
		require.Equal(t, i, r.RowIndex)
	}
	require.Equal(t, "001A", all[0].ID)
	require.False(t, all[1].Success)
	require.Equal(t, "abc", all[1].Values["Amount"])
	require.Equal(t, "DUPLICATE_VALUE: dup", all[2].Errors)
	require.Equal(t, "001C", all[3].ID)

	success, failure := agg.Counts()
	require.Equal(t, 2, success)
	require.Equal(t, 2, failure)

	require.Equal(t, []string{"_id", "_success", "_errors", "Name", "Amount"}, agg.Headers())

	failures := agg.ExportRows(results.ViewFailures)
	require.Equal(t, [][]string{
		{"", "false", `Amount: invalid number "abc"`, "b", "abc"},
		{"", "false", "DUPLICATE_VALUE: dup", "c", "3.5"},
	}, failures)

	// views are re-derivable
	require.Equal(t, failures, agg.ExportRows(results.ViewFailures))
	require.Len(t, agg.ExportRows(results.ViewAll), 4)
}

func TestAggregateDeleteScenario(t *testing.T) {
	agg := results.Aggregate(results.Input{
		Mapping: domain.FieldMapping{{CSVField: "id", TargetField: "Id"}},
		Prepared: domain.PrepareDataResult{
			Data:          []domain.PreparedRecord{{"Id": "1"}, {"Id": "2"}, {"Id": "3"}},
			SourceIndexes: []int{0, 1, 2},
		},
		BatchSize: 200,
		Results: map[int][]domain.RecordResult{0: {
			{Success: true, ID: "1"},
			{Success: false, Errors: []domain.RecordError{{StatusCode: "ENTITY_IS_DELETED", Message: "entity is deleted"}}},
			{Success: true, ID: "3"},
		}},
	})
	success, failure := agg.Counts()
	require.Equal(t, 2, success)
	require.Equal(t, 1, failure)

	rows := agg.ExportRows(results.ViewAll)
	require.Equal(t, "", rows[0][2])
	require.Equal(t, "ENTITY_IS_DELETED: entity is deleted", rows[1][2])
	require.Equal(t, "", rows[2][2])
}

func TestAggregateMissingResults(t *testing.T) {
	data := []domain.PreparedRecord{{"Name": "a"}, {"Name": "b"}, {"Name": "c"}, {"Name": "d"}, {"Name": "e"}}
	in := results.Input{
		Mapping:   mapping(),
		Prepared:  domain.PrepareDataResult{Data: data, SourceIndexes: []int{0, 1, 2, 3, 4}},
		BatchSize: 2,
		Results:   map[int][]domain.RecordResult{0: {{Success: true, ID: "x"}, {Success: true, ID: "y"}}},
		Failures:  []domain.BatchFailure{{BatchNumber: 1, Message: "InvalidBatch"}},
	}

	agg := results.Aggregate(in)
	all := agg.All()
	require.Len(t, all, 5)
	require.Equal(t, "InvalidBatch", all[2].Errors)
	require.Equal(t, "InvalidBatch", all[3].Errors)
	require.Equal(t, results.MSG_MISSING_RESULT, all[4].Errors)

	in.Aborted = true
	all = results.Aggregate(in).All()
	require.Equal(t, results.MSG_NOT_SUBMITTED, all[4].Errors)
}

func TestFormatValue(t *testing.T) {
	require.Equal(t, "", results.FormatValue(nil))
	require.Equal(t, "true", results.FormatValue(true))
	require.Equal(t, "1200", results.FormatValue(int64(1200)))
	require.Equal(t, "1200", results.FormatValue(float64(1200)))
	require.Equal(t, `{"External_Id__c":"E1"}`, results.FormatValue(map[string]any{"External_Id__c": "E1"}))
}
