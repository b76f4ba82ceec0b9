package results

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"

	"github.com/hankgalt/load-orchestra/pkg/domain"
)

const (
	HeaderID      = "_id"
	HeaderSuccess = "_success"
	HeaderErrors  = "_errors"
)

const (
	MSG_MISSING_RESULT = "no result returned for record"
	MSG_NOT_SUBMITTED  = "record was not submitted, load aborted"
)

// View selects the rows of an aggregated result set.
type View string

const (
	ViewAll      View = "all"
	ViewFailures View = "failures"
)

// Input is everything the aggregator merges. No remote calls are made.
type Input struct {
	Mapping   domain.FieldMapping
	Prepared  domain.PrepareDataResult
	BatchSize int
	// Results holds per record outcomes keyed by batch number, positional within the batch.
	Results  map[int][]domain.RecordResult
	Failures []domain.BatchFailure
	Aborted  bool
}

// Row is one aggregated input row.
type Row struct {
	RowIndex int            `json:"rowIndex"`
	Success  bool           `json:"success"`
	ID       string         `json:"id,omitempty"`
	Errors   string         `json:"errors,omitempty"`
	Values   map[string]any `json:"values"`
}

// Aggregator holds aggregated rows in original input order.
type Aggregator struct {
	headers []string
	fields  []string
	rows    []Row
}

// Aggregate merges remote outcomes with prepared records and transformation errors.
func Aggregate(in Input) *Aggregator {
	fields := in.Mapping.TargetFields()
	a := &Aggregator{
		headers: append([]string{HeaderID, HeaderSuccess, HeaderErrors}, fields...),
		fields:  fields,
	}

	byIndex := map[int]domain.RecordResult{}
	for batchNumber, res := range in.Results {
		for offset, r := range res {
			byIndex[domain.RecordIndex(batchNumber, in.BatchSize, offset)] = r
		}
	}
	batchErrors := map[int]string{}
	for _, f := range in.Failures {
		batchErrors[f.BatchNumber] = f.Message
	}

	rows := make([]Row, 0, len(in.Prepared.Data)+len(in.Prepared.Errors))
	for i, rec := range in.Prepared.Data {
		srcIdx := i
		if i < len(in.Prepared.SourceIndexes) {
			srcIdx = in.Prepared.SourceIndexes[i]
		}
		row := Row{RowIndex: srcIdx, Values: map[string]any(rec)}

		if r, ok := byIndex[i]; ok {
			row.Success = r.Success
			row.ID = r.ID
			row.Errors = r.ErrorMessage()
			if r.Record != nil {
				row.Values = map[string]any(r.Record)
			}
		} else {
			row.Errors = missingMessage(i, in, batchErrors)
		}
		rows = append(rows, row)
	}

	for _, e := range in.Prepared.Errors {
		values := make(map[string]any, len(in.Mapping))
		for _, item := range in.Mapping {
			if item.StaticValue != nil {
				values[item.TargetField] = *item.StaticValue
			} else {
				values[item.TargetField] = e.Row[item.CSVField]
			}
		}
		rows = append(rows, Row{RowIndex: e.RowIndex, Errors: e.Message, Values: values})
	}

	slices.SortStableFunc(rows, func(x, y Row) int { return x.RowIndex - y.RowIndex })
	a.rows = rows
	return a
}

func missingMessage(idx int, in Input, batchErrors map[int]string) string {
	if in.BatchSize > 0 {
		if msg, ok := batchErrors[idx/in.BatchSize]; ok && msg != "" {
			return msg
		}
	}
	if in.Aborted {
		return MSG_NOT_SUBMITTED
	}
	return MSG_MISSING_RESULT
}

// Headers are the export columns, system columns first.
func (a *Aggregator) Headers() []string {
	return append([]string(nil), a.headers...)
}

// All returns every row in input order.
func (a *Aggregator) All() []Row {
	return append([]Row(nil), a.rows...)
}

// Failures returns the failed rows in input order.
func (a *Aggregator) Failures() []Row {
	out := []Row{}
	for _, r := range a.rows {
		if !r.Success {
			out = append(out, r)
		}
	}
	return out
}

// Counts returns the number of successful and failed rows.
func (a *Aggregator) Counts() (success, failure int) {
	for _, r := range a.rows {
		if r.Success {
			success++
		} else {
			failure++
		}
	}
	return success, failure
}

// Rows returns the rows of a view.
func (a *Aggregator) Rows(view View) []Row {
	if view == ViewFailures {
		return a.Failures()
	}
	return a.All()
}

// ExportRows projects a view onto the export headers.
func (a *Aggregator) ExportRows(view View) [][]string {
	rows := a.Rows(view)
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		line := make([]string, 0, len(a.headers))
		line = append(line, r.ID, strconv.FormatBool(r.Success), r.Errors)
		for _, f := range a.fields {
			line = append(line, FormatValue(r.Values[f]))
		}
		out = append(out, line)
	}
	return out
}

// FormatValue renders a record value as a cell.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case map[string]any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}
