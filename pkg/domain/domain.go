package domain

import (
	"strings"
)

// FieldType is the declared type of a mapped target field.
type FieldType string

const (
	FieldTypeString    FieldType = "string"
	FieldTypeBoolean   FieldType = "boolean"
	FieldTypeInteger   FieldType = "integer"
	FieldTypeNumber    FieldType = "number"
	FieldTypeDate      FieldType = "date"
	FieldTypeDateTime  FieldType = "datetime"
	FieldTypeReference FieldType = "reference"
)

// Valid reports whether t is a known field type. Empty is treated as string.
func (t FieldType) Valid() bool {
	switch t {
	case "", FieldTypeString, FieldTypeBoolean, FieldTypeInteger, FieldTypeNumber,
		FieldTypeDate, FieldTypeDateTime, FieldTypeReference:
		return true
	}
	return false
}

// DateFormat is the day/month ordering hint used when parsing date cells.
type DateFormat string

const (
	DateFormatMDY DateFormat = "MM/DD/YYYY"
	DateFormatDMY DateFormat = "DD/MM/YYYY"
	DateFormatYMD DateFormat = "YYYY/MM/DD"
)

type Operation string

const (
	OperationInsert Operation = "INSERT"
	OperationUpdate Operation = "UPDATE"
	OperationUpsert Operation = "UPSERT"
	OperationDelete Operation = "DELETE"
)

// ParseOperation parses an operation name, case insensitive.
func ParseOperation(s string) (Operation, bool) {
	op := Operation(strings.ToUpper(strings.TrimSpace(s)))
	switch op {
	case OperationInsert, OperationUpdate, OperationUpsert, OperationDelete:
		return op, true
	}
	return "", false
}

type LoadMode string

const (
	LoadModeBulk  LoadMode = "BULK"
	LoadModeBatch LoadMode = "BATCH"
)

// ParseLoadMode parses a load mode name, case insensitive.
func ParseLoadMode(s string) (LoadMode, bool) {
	m := LoadMode(strings.ToUpper(strings.TrimSpace(s)))
	switch m {
	case LoadModeBulk, LoadModeBatch:
		return m, true
	}
	return "", false
}

type ConcurrencyMode string

const (
	ConcurrencyParallel ConcurrencyMode = "Parallel"
	ConcurrencySerial   ConcurrencyMode = "Serial"
)

// FieldMappingItem maps one input column (or a static value) to one target field.
type FieldMappingItem struct {
	CSVField               string    `json:"csvField"`
	TargetField            string    `json:"targetField"`
	MappedToLookup         bool      `json:"mappedToLookup,omitempty"`
	TargetLookupField      string    `json:"targetLookupField,omitempty"`
	RelatedReferenceObject string    `json:"relatedReferenceObject,omitempty"`
	LookupIsExternalID     bool      `json:"lookupIsExternalId,omitempty"`
	StaticValue            *string   `json:"staticValue,omitempty"`
	Type                   FieldType `json:"type,omitempty"`
	Required               bool      `json:"required,omitempty"`
}

// FieldMapping is the ordered list of mapping items for a load.
type FieldMapping []FieldMappingItem

// TargetFields returns the target fields in mapping order.
func (m FieldMapping) TargetFields() []string {
	out := make([]string, 0, len(m))
	for _, item := range m {
		if item.TargetField != "" {
			out = append(out, item.TargetField)
		}
	}
	return out
}

// RawRow is one parsed input row keyed by column header.
type RawRow map[string]string

// PreparedRecord is a coerced record ready for submission.
type PreparedRecord map[string]any

// PrepareDataError is a row that failed transformation.
type PrepareDataError struct {
	RowIndex int    `json:"rowIndex"`
	Row      RawRow `json:"row"`
	Field    string `json:"field,omitempty"`
	Message  string `json:"message"`
}

// PrepareDataResult is the output of the record transformer.
// SourceIndexes[i] is the input row index of Data[i].
type PrepareDataResult struct {
	Data          []PreparedRecord   `json:"data"`
	SourceIndexes []int              `json:"sourceIndexes"`
	Errors        []PrepareDataError `json:"errors"`
	QueryErrors   []string           `json:"queryErrors"`
}

// PrepareDataRequest is the input of the record transformer.
type PrepareDataRequest struct {
	Rows        []RawRow     `json:"rows"`
	Mapping     FieldMapping `json:"mapping"`
	Object      string       `json:"object"`
	Operation   Operation    `json:"operation"`
	InsertNulls bool         `json:"insertNulls"`
	DateFormat  DateFormat   `json:"dateFormat"`
}

// Batch is a size bounded, order numbered slice of prepared records.
// Completed, Success and RemoteID are set once, by the submitter.
type Batch struct {
	BatchNumber int              `json:"batchNumber"`
	Records     []PreparedRecord `json:"records"`
	Completed   bool             `json:"completed"`
	Success     bool             `json:"success"`
	RemoteID    string           `json:"remoteId,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// Status returns an immutable progress frame for the batch.
func (b *Batch) Status() BatchStatus {
	return BatchStatus{
		BatchNumber: b.BatchNumber,
		Completed:   b.Completed,
		Success:     b.Success,
		RemoteID:    b.RemoteID,
		Error:       b.Error,
	}
}

// BatchStatus is a progress frame for one batch.
type BatchStatus struct {
	BatchNumber int    `json:"batchNumber"`
	Completed   bool   `json:"completed"`
	Success     bool   `json:"success"`
	RemoteID    string `json:"remoteId,omitempty"`
	Error       string `json:"error,omitempty"`
}

// LoadDataStatus is one loadDataStatus progress snapshot. Batches is a fresh slice per emission.
type LoadDataStatus struct {
	JobID   string        `json:"jobId,omitempty"`
	Job     *JobInfo      `json:"job,omitempty"`
	Batches []BatchStatus `json:"batches"`
}

// CompletedCount returns the number of completed batches in the snapshot.
func (s LoadDataStatus) CompletedCount() int {
	n := 0
	for _, b := range s.Batches {
		if b.Completed {
			n++
		}
	}
	return n
}

type JobState string

const (
	JobStateOpen       JobState = "Open"
	JobStateClosed     JobState = "Closed"
	JobStateInProgress JobState = "InProgress"
	JobStateCompleted  JobState = "Completed"
	JobStateFailed     JobState = "Failed"
	JobStateAborted    JobState = "Aborted"
)

type BatchState string

const (
	BatchStateQueued       BatchState = "Queued"
	BatchStateInProgress   BatchState = "InProgress"
	BatchStateCompleted    BatchState = "Completed"
	BatchStateFailed       BatchState = "Failed"
	BatchStateNotProcessed BatchState = "NotProcessed"
)

// TerminalBatchStates are remote batch states that will not change again.
var TerminalBatchStates = NewSet(BatchStateCompleted, BatchStateFailed, BatchStateNotProcessed)

// IsTerminal reports whether the remote batch state is final.
func (s BatchState) IsTerminal() bool {
	return TerminalBatchStates.Has(s)
}

// JobRequest describes the remote job to create for a bulk load.
type JobRequest struct {
	Object          string          `json:"object"`
	Operation       Operation       `json:"operation"`
	ExternalIDField string          `json:"externalIdField,omitempty"`
	ConcurrencyMode ConcurrencyMode `json:"concurrencyMode"`
}

// JobInfo is the remote job handle.
type JobInfo struct {
	ID                     string          `json:"id"`
	Object                 string          `json:"object"`
	Operation              Operation       `json:"operation"`
	ExternalIDField        string          `json:"externalIdField,omitempty"`
	ConcurrencyMode        ConcurrencyMode `json:"concurrencyMode"`
	State                  JobState        `json:"state"`
	Batches                []BatchInfo     `json:"batches"`
	NumberRecordsProcessed int             `json:"numberRecordsProcessed"`
	NumberRecordsFailed    int             `json:"numberRecordsFailed"`
	ErrorMessage           string          `json:"errorMessage,omitempty"`
}

// Clone returns a copy with its own batch slice.
func (j *JobInfo) Clone() *JobInfo {
	if j == nil {
		return nil
	}
	c := *j
	c.Batches = append([]BatchInfo(nil), j.Batches...)
	return &c
}

// BatchInfo is the remote status of one uploaded batch.
type BatchInfo struct {
	ID                     string     `json:"id"`
	JobID                  string     `json:"jobId"`
	State                  BatchState `json:"state"`
	StateMessage           string     `json:"stateMessage,omitempty"`
	NumberRecordsProcessed int        `json:"numberRecordsProcessed"`
	NumberRecordsFailed    int        `json:"numberRecordsFailed"`
}

type RecordError struct {
	StatusCode string   `json:"statusCode"`
	Message    string   `json:"message"`
	Fields     []string `json:"fields,omitempty"`
}

// RecordResult is the remote outcome for one record, paired with the submitted record.
type RecordResult struct {
	Success bool           `json:"success"`
	ID      string         `json:"id,omitempty"`
	Errors  []RecordError  `json:"errors,omitempty"`
	Record  PreparedRecord `json:"record,omitempty"`
}

// ErrorMessage joins the record errors into one line.
func (r RecordResult) ErrorMessage() string {
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		if e.StatusCode != "" {
			msgs = append(msgs, e.StatusCode+": "+e.Message)
		} else {
			msgs = append(msgs, e.Message)
		}
	}
	return strings.Join(msgs, "; ")
}

// FailedResult builds a failed result for a record with the given status code and message.
func FailedResult(rec PreparedRecord, statusCode, msg string) RecordResult {
	return RecordResult{
		Success: false,
		Errors:  []RecordError{{StatusCode: statusCode, Message: msg}},
		Record:  rec,
	}
}

// LoadState is the foreground controller state.
type LoadState string

const (
	LoadStatePreparing  LoadState = "Preparing"
	LoadStateUploading  LoadState = "Uploading"
	LoadStateProcessing LoadState = "Processing"
	LoadStateFinished   LoadState = "Finished"
	LoadStateError      LoadState = "Error"
	LoadStateAborting   LoadState = "Aborting"
)

// AbortableStates are the states from which an abort is accepted.
var AbortableStates = NewSet(LoadStatePreparing, LoadStateUploading, LoadStateProcessing, LoadStateAborting)

// IsTerminal reports whether no further messages will arrive for the run.
func (s LoadState) IsTerminal() bool {
	return s == LoadStateFinished || s == LoadStateError
}

// LoadStatus is the externally visible state of a run.
type LoadStatus struct {
	RunID        string        `json:"runId"`
	State        LoadState     `json:"state"`
	JobID        string        `json:"jobId,omitempty"`
	Batches      []BatchStatus `json:"batches,omitempty"`
	Completed    int           `json:"completed"`
	Total        int           `json:"total"`
	Prepared     int           `json:"prepared"`
	PollAttempts int           `json:"pollAttempts"`
	Success      int           `json:"success"`
	Failure      int           `json:"failure"`
	ErrorMessage string        `json:"errorMessage,omitempty"`
	AbortError   string        `json:"abortError,omitempty"`
}
