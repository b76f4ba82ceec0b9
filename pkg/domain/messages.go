package domain

// MessageName tags a message crossing the worker/controller boundary.
type MessageName string

const (
	// MessagePrepareData is the terminal reply of the prepare phase.
	MessagePrepareData MessageName = "prepareData"
	// MessagePrepareDataProgress reports transformed row counts.
	MessagePrepareDataProgress MessageName = "prepareDataProgress"
	// MessageLoadData is the terminal reply of the load phase.
	MessageLoadData MessageName = "loadData"
	// MessageLoadDataStatus is a load progress snapshot, emitted any number of times.
	MessageLoadDataStatus MessageName = "loadDataStatus"
)

// Message is the only value exchanged between the worker and the controller.
// Error is set when the handler failed, Data is then nil.
type Message struct {
	Name  MessageName `json:"name"`
	Data  any         `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// IsTerminal reports whether the message ends a phase.
func (m Message) IsTerminal() bool {
	return m.Name == MessagePrepareData || m.Name == MessageLoadData
}

// PrepareProgress is the data of a prepareDataProgress message.
type PrepareProgress struct {
	Processed int `json:"processed"`
	Total     int `json:"total"`
}

// LoadOptions are the per run submission options.
type LoadOptions struct {
	Mode            LoadMode        `json:"mode"`
	BatchSize       int             `json:"batchSize"`
	ExternalIDField string          `json:"externalIdField,omitempty"`
	ConcurrencyMode ConcurrencyMode `json:"concurrencyMode,omitempty"`
	AllOrNone       bool            `json:"allOrNone,omitempty"`
}

// LoadDataRequest is the data of a loadData request sent to the worker.
type LoadDataRequest struct {
	Object    string           `json:"object"`
	Operation Operation        `json:"operation"`
	Records   []PreparedRecord `json:"records"`
	Options   LoadOptions      `json:"options"`
}

// BatchFailure is a batch whose submission failed before the store produced per record results.
type BatchFailure struct {
	BatchNumber int    `json:"batchNumber"`
	Message     string `json:"message"`
}

// LoadDataResult is the data of the terminal loadData reply.
// Collection mode fills Results keyed by batch number. Bulk mode fills Job and BatchOrder.
type LoadDataResult struct {
	Mode       LoadMode               `json:"mode"`
	BatchSize  int                    `json:"batchSize"`
	Batches    []BatchStatus          `json:"batches"`
	Job        *JobInfo               `json:"job,omitempty"`
	BatchOrder map[string]int         `json:"batchOrder,omitempty"`
	Results    map[int][]RecordResult `json:"results,omitempty"`
	Failures   []BatchFailure         `json:"failures,omitempty"`
	Aborted    bool                   `json:"aborted"`
}
