package sqllite

// Record is one stored object record. Data holds the JSON encoded fields.
type Record struct {
	ID        string `db:"id"`
	Object    string `db:"object"`
	Data      string `db:"data"`
	CreatedAt string `db:"created_at"`
	UpdatedAt string `db:"updated_at"`
}

type Job struct {
	ID              string `db:"id"`
	Object          string `db:"object"`
	Operation       string `db:"operation"`
	ExternalIDField string `db:"external_id_field"`
	ConcurrencyMode string `db:"concurrency_mode"`
	State           string `db:"state"`
	CreatedAt       string `db:"created_at"`
	UpdatedAt       string `db:"updated_at"`
}

type JobBatch struct {
	Seq              int64  `db:"seq"`
	ID               string `db:"id"`
	JobID            string `db:"job_id"`
	State            string `db:"state"`
	StateMessage     string `db:"state_message"`
	RecordsProcessed int    `db:"records_processed"`
	RecordsFailed    int    `db:"records_failed"`
}

type BatchResult struct {
	BatchID  string `db:"batch_id"`
	Position int    `db:"position"`
	Success  bool   `db:"success"`
	RecordID string `db:"record_id"`
	Errors   string `db:"errors"`
}

// LoadSchema creates the record store tables. Existing data is kept.
var LoadSchema = `
	CREATE TABLE IF NOT EXISTS records (
	id          TEXT PRIMARY KEY,
	object      TEXT NOT NULL,
	data        TEXT NOT NULL DEFAULT '{}',
	created_at  TEXT NOT NULL DEFAULT (CURRENT_TIMESTAMP),
	updated_at  TEXT NOT NULL DEFAULT (CURRENT_TIMESTAMP)
	);

	CREATE INDEX IF NOT EXISTS records_object ON records (object);

	CREATE TRIGGER IF NOT EXISTS records_updated_at
	AFTER UPDATE ON records
	FOR EACH ROW
	WHEN NEW.updated_at = OLD.updated_at
	BEGIN
	UPDATE records SET updated_at = CURRENT_TIMESTAMP
	WHERE id = OLD.id;
	END;

	CREATE TABLE IF NOT EXISTS jobs (
	id                 TEXT PRIMARY KEY,
	object             TEXT NOT NULL,
	operation          TEXT NOT NULL,
	external_id_field  TEXT NOT NULL DEFAULT '',
	concurrency_mode   TEXT NOT NULL DEFAULT '',
	state              TEXT NOT NULL,
	created_at         TEXT NOT NULL DEFAULT (CURRENT_TIMESTAMP),
	updated_at         TEXT NOT NULL DEFAULT (CURRENT_TIMESTAMP)
	);

	CREATE TABLE IF NOT EXISTS job_batches (
	seq                INTEGER PRIMARY KEY AUTOINCREMENT,
	id                 TEXT NOT NULL UNIQUE,
	job_id             TEXT NOT NULL REFERENCES jobs (id),
	state              TEXT NOT NULL,
	state_message      TEXT NOT NULL DEFAULT '',
	records_processed  INTEGER NOT NULL DEFAULT 0,
	records_failed     INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS batch_results (
	batch_id   TEXT NOT NULL REFERENCES job_batches (id),
	position   INTEGER NOT NULL,
	success    INTEGER NOT NULL,
	record_id  TEXT NOT NULL DEFAULT '',
	errors     TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (batch_id, position)
	);
`

// DropSchema removes every record store table.
var DropSchema = `
	DROP TRIGGER IF EXISTS records_updated_at;
	DROP TABLE IF EXISTS batch_results;
	DROP TABLE IF EXISTS job_batches;
	DROP TABLE IF EXISTS jobs;
	DROP TABLE IF EXISTS records;
`
