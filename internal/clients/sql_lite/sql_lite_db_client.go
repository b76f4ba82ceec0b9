package sqllite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const (
	ERR_SQLITE_DB_CONNECTION    = "sql-lite: error connecting to database"
	ERR_SQLITE_DB_DISCONNECTION = "sql-lite: error disconnecting from database"
	ERR_SQLITE_RECORD_NOT_FOUND = "sql-lite: record not found"
	ERR_SQLITE_JOB_NOT_FOUND    = "sql-lite: job not found"
	ERR_SQLITE_DUPLICATE_EXT_ID = "sql-lite: more than one record matches the external id"
	ERR_SQLITE_MISSING_EXT_ID   = "sql-lite: record has no external id value"
	ERR_SQLITE_MISSING_OBJECT   = "sql-lite: object name is required"
)

var (
	ErrSqlLiteDBConn       = errors.New(ERR_SQLITE_DB_CONNECTION)
	ErrSqlLiteDBDisconn    = errors.New(ERR_SQLITE_DB_DISCONNECTION)
	ErrRecordNotFound      = errors.New(ERR_SQLITE_RECORD_NOT_FOUND)
	ErrJobNotFound         = errors.New(ERR_SQLITE_JOB_NOT_FOUND)
	ErrDuplicateExternalID = errors.New(ERR_SQLITE_DUPLICATE_EXT_ID)
	ErrMissingExternalID   = errors.New(ERR_SQLITE_MISSING_EXT_ID)
	ErrMissingObject       = errors.New(ERR_SQLITE_MISSING_OBJECT)
)

// IDField is the record key. It is stored in the id column, never in data.
const IDField = "Id"

type SQLLiteDBClient struct {
	store *sqlx.DB
}

func NewSQLLiteDBClient(dbFile string) (*SQLLiteDBClient, error) {
	db, err := sqlx.Connect("sqlite3", dbFile)
	if err != nil {
		log.Println("sql-lite: error connecting to database:", err)
		return nil, ErrSqlLiteDBConn
	}
	// single writer
	db.SetMaxOpenConns(1)

	return &SQLLiteDBClient{
		store: db,
	}, nil
}

func (db *SQLLiteDBClient) ExecuteSchema(schema string) sql.Result {
	// exec the schema or fail; multi-statement Exec behavior varies between drivers
	return db.store.MustExec(schema)
}

func (db *SQLLiteDBClient) Close(ctx context.Context) error {
	if err := db.store.Close(); err != nil {
		log.Println("sql-lite: error closing database:", err)
		return ErrSqlLiteDBDisconn
	}
	return nil
}

// InsertRecord stores a new record and returns its generated id.
func (db *SQLLiteDBClient) InsertRecord(ctx context.Context, object string, fields map[string]any) (string, error) {
	if object == "" {
		return "", ErrMissingObject
	}
	data, err := encodeFields(fields)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err = db.store.ExecContext(ctx, "INSERT INTO records (id, object, data) VALUES ($1, $2, $3)", id, object, data)
	if err != nil {
		return "", fmt.Errorf("sql-lite: insert %s: %w", object, err)
	}
	return id, nil
}

// UpdateRecord merges fields into an existing record. A nil value clears the field.
func (db *SQLLiteDBClient) UpdateRecord(ctx context.Context, object, id string, fields map[string]any) error {
	rec, err := db.GetRecord(ctx, object, id)
	if err != nil {
		return err
	}
	current := map[string]any{}
	if err := json.Unmarshal([]byte(rec.Data), &current); err != nil {
		return fmt.Errorf("sql-lite: decode %s %s: %w", object, id, err)
	}
	for k, v := range fields {
		if k == IDField {
			continue
		}
		if v == nil {
			delete(current, k)
			continue
		}
		current[k] = v
	}
	data, err := encodeFields(current)
	if err != nil {
		return err
	}
	_, err = db.store.ExecContext(ctx, "UPDATE records SET data = $1 WHERE id = $2 AND object = $3", data, id, object)
	if err != nil {
		return fmt.Errorf("sql-lite: update %s %s: %w", object, id, err)
	}
	return nil
}

// UpsertRecord updates the record whose externalIDField matches, or inserts a new one.
func (db *SQLLiteDBClient) UpsertRecord(ctx context.Context, object, externalIDField string, fields map[string]any) (string, bool, error) {
	val, ok := fields[externalIDField]
	if !ok || val == nil || fmt.Sprint(val) == "" {
		return "", false, ErrMissingExternalID
	}
	key := fmt.Sprint(val)
	matches, err := db.FindIDs(ctx, object, externalIDField, []string{key})
	if err != nil {
		return "", false, err
	}
	switch ids := matches[key]; len(ids) {
	case 0:
		id, err := db.InsertRecord(ctx, object, fields)
		return id, true, err
	case 1:
		return ids[0], false, db.UpdateRecord(ctx, object, ids[0], fields)
	default:
		return "", false, fmt.Errorf("%w: %s = %s", ErrDuplicateExternalID, externalIDField, key)
	}
}

func (db *SQLLiteDBClient) DeleteRecord(ctx context.Context, object, id string) error {
	res, err := db.store.ExecContext(ctx, "DELETE FROM records WHERE id = $1 AND object = $2", id, object)
	if err != nil {
		return fmt.Errorf("sql-lite: delete %s %s: %w", object, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s", ErrRecordNotFound, object, id)
	}
	return nil
}

func (db *SQLLiteDBClient) GetRecord(ctx context.Context, object, id string) (*Record, error) {
	rec := Record{}
	err := db.store.GetContext(ctx, &rec, "SELECT * FROM records WHERE id = $1 AND object = $2", id, object)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s %s", ErrRecordNotFound, object, id)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// FindIDs returns the ids of records whose field value is one of values, keyed by value.
func (db *SQLLiteDBClient) FindIDs(ctx context.Context, object, field string, values []string) (map[string][]string, error) {
	out := map[string][]string{}
	if len(values) == 0 {
		return out, nil
	}

	var (
		qry  string
		args []any
		err  error
	)
	if field == IDField {
		qry, args, err = sqlx.In(
			"SELECT id, id AS value FROM records WHERE object = ? AND id IN (?) ORDER BY id",
			object, values,
		)
	} else {
		path := "$." + field
		qry, args, err = sqlx.In(
			"SELECT id, CAST(json_extract(data, ?) AS TEXT) AS value FROM records WHERE object = ? AND CAST(json_extract(data, ?) AS TEXT) IN (?) ORDER BY id",
			path, object, path, values,
		)
	}
	if err != nil {
		return nil, err
	}

	matches := []struct {
		ID    string         `db:"id"`
		Value sql.NullString `db:"value"`
	}{}
	if err := db.store.SelectContext(ctx, &matches, db.store.Rebind(qry), args...); err != nil {
		return nil, fmt.Errorf("sql-lite: lookup %s by %s: %w", object, field, err)
	}
	for _, m := range matches {
		if m.Value.Valid {
			out[m.Value.String] = append(out[m.Value.String], m.ID)
		}
	}
	return out, nil
}

func (db *SQLLiteDBClient) FetchRecords(ctx context.Context, object string, offset, limit int) ([]Record, error) {
	records := []Record{}
	err := db.store.SelectContext(
		ctx,
		&records,
		"SELECT * FROM records WHERE object = $1 ORDER BY created_at, id LIMIT $2 OFFSET $3",
		object, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (db *SQLLiteDBClient) InsertJob(ctx context.Context, job Job) error {
	_, err := db.store.NamedExecContext(
		ctx,
		`INSERT INTO jobs (id, object, operation, external_id_field, concurrency_mode, state)
		VALUES (:id, :object, :operation, :external_id_field, :concurrency_mode, :state)`,
		job,
	)
	if err != nil {
		return fmt.Errorf("sql-lite: insert job: %w", err)
	}
	return nil
}

func (db *SQLLiteDBClient) GetJob(ctx context.Context, id string) (*Job, error) {
	job := Job{}
	err := db.store.GetContext(ctx, &job, "SELECT * FROM jobs WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (db *SQLLiteDBClient) UpdateJobState(ctx context.Context, id, state string) error {
	res, err := db.store.ExecContext(ctx, "UPDATE jobs SET state = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2", state, id)
	if err != nil {
		return fmt.Errorf("sql-lite: update job %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return nil
}

// InsertBatch stores a batch with its per record results in one transaction.
func (db *SQLLiteDBClient) InsertBatch(ctx context.Context, batch JobBatch, results []BatchResult) error {
	tx, err := db.store.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	_, err = tx.NamedExecContext(
		ctx,
		`INSERT INTO job_batches (id, job_id, state, state_message, records_processed, records_failed)
		VALUES (:id, :job_id, :state, :state_message, :records_processed, :records_failed)`,
		batch,
	)
	if err != nil {
		return errors.Join(fmt.Errorf("sql-lite: insert batch: %w", err), tx.Rollback())
	}
	for _, r := range results {
		r.BatchID = batch.ID
		_, err = tx.NamedExecContext(
			ctx,
			`INSERT INTO batch_results (batch_id, position, success, record_id, errors)
			VALUES (:batch_id, :position, :success, :record_id, :errors)`,
			r,
		)
		if err != nil {
			return errors.Join(fmt.Errorf("sql-lite: insert batch result: %w", err), tx.Rollback())
		}
	}
	return tx.Commit()
}

// ListBatches returns the job's batches in upload order.
func (db *SQLLiteDBClient) ListBatches(ctx context.Context, jobID string) ([]JobBatch, error) {
	batches := []JobBatch{}
	if err := db.store.SelectContext(ctx, &batches, "SELECT * FROM job_batches WHERE job_id = $1 ORDER BY seq", jobID); err != nil {
		return nil, err
	}
	return batches, nil
}

func (db *SQLLiteDBClient) FetchBatchResults(ctx context.Context, batchID string) ([]BatchResult, error) {
	results := []BatchResult{}
	if err := db.store.SelectContext(ctx, &results, "SELECT * FROM batch_results WHERE batch_id = $1 ORDER BY position", batchID); err != nil {
		return nil, err
	}
	return results, nil
}

func encodeFields(fields map[string]any) (string, error) {
	data := make(map[string]any, len(fields))
	for k, v := range fields {
		if k == IDField {
			continue
		}
		data[k] = v
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("sql-lite: encode record: %w", err)
	}
	return string(b), nil
}
