package stores

import (
	"context"
	"errors"
	"fmt"

	"github.com/comfforts/logger"

	"github.com/hankgalt/load-orchestra/internal/clients/mongodb"
	sqllite "github.com/hankgalt/load-orchestra/internal/clients/sql_lite"
	"github.com/hankgalt/load-orchestra/pkg/domain"
)

const IDField = "Id"

// Record level status codes reported by document backed stores.
const (
	STATUS_NOT_FOUND             = "ENTITY_IS_DELETED"
	STATUS_MISSING_ID            = "MISSING_ARGUMENT"
	STATUS_DUPLICATE_EXTERNAL_ID = "DUPLICATE_EXTERNAL_ID"
	STATUS_MISSING_EXTERNAL_ID   = "MISSING_EXTERNAL_ID"
	STATUS_STORE_ERROR           = "STORE_ERROR"
)

const (
	ERR_MISSING_RECORD_ID = "record has no Id value"
	ERR_UNKNOWN_OPERATION = "unknown operation"
)

var (
	ErrMissingRecordID  = errors.New(ERR_MISSING_RECORD_ID)
	ErrUnknownOperation = errors.New(ERR_UNKNOWN_OPERATION)
)

// DocumentWriter is the per record capability of a document backed store.
type DocumentWriter interface {
	Insert(ctx context.Context, object string, fields map[string]any) (string, error)
	Update(ctx context.Context, object, id string, fields map[string]any) error
	Upsert(ctx context.Context, object, externalIDField string, fields map[string]any) (string, bool, error)
	Delete(ctx context.Context, object, id string) error
	FindIDs(ctx context.Context, object, field string, values []string) (map[string][]string, error)
	Close(ctx context.Context) error
}

// documentStore implements the collection and lookup protocols one record at a time.
// allOrNone is not supported; every record is applied independently.
type documentStore struct {
	name   string
	writer DocumentWriter
}

func (s *documentStore) Name() string { return s.name }

func (s *documentStore) Close(ctx context.Context) error {
	return s.writer.Close(ctx)
}

func (s *documentStore) Create(ctx context.Context, object string, records []domain.PreparedRecord, allOrNone bool) ([]domain.RecordResult, error) {
	return s.apply(ctx, object, domain.OperationInsert, "", records)
}

func (s *documentStore) Update(ctx context.Context, object string, records []domain.PreparedRecord, allOrNone bool) ([]domain.RecordResult, error) {
	return s.apply(ctx, object, domain.OperationUpdate, "", records)
}

func (s *documentStore) Upsert(ctx context.Context, object, externalIDField string, records []domain.PreparedRecord, allOrNone bool) ([]domain.RecordResult, error) {
	return s.apply(ctx, object, domain.OperationUpsert, externalIDField, records)
}

func (s *documentStore) Delete(ctx context.Context, object string, ids []string, allOrNone bool) ([]domain.RecordResult, error) {
	records := make([]domain.PreparedRecord, len(ids))
	for i, id := range ids {
		records[i] = domain.PreparedRecord{IDField: id}
	}
	return s.apply(ctx, object, domain.OperationDelete, "", records)
}

func (s *documentStore) Lookup(ctx context.Context, object, field string, values []string) (map[string][]string, error) {
	return s.writer.FindIDs(ctx, object, field, values)
}

// apply writes records in order. A record failure is reported in its result;
// only cancellation stops the loop.
func (s *documentStore) apply(
	ctx context.Context,
	object string,
	op domain.Operation,
	externalIDField string,
	records []domain.PreparedRecord,
) ([]domain.RecordResult, error) {
	l, err := logger.LoggerFromContext(ctx)
	if err != nil {
		l = logger.GetSlogLogger()
	}

	out := make([]domain.RecordResult, 0, len(records))
	failed := 0
	for _, rec := range records {
		// allow cancellation
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}

		id, err := s.applyOne(ctx, object, op, externalIDField, rec)
		if err != nil {
			failed++
			out = append(out, domain.FailedResult(rec, statusCode(err), err.Error()))
			continue
		}
		out = append(out, domain.RecordResult{Success: true, ID: id, Record: rec})
	}
	l.Debug("documentStore.apply - records applied", "store", s.name, "object", object, "operation", op, "records", len(records), "failed", failed)
	return out, nil
}

func (s *documentStore) applyOne(
	ctx context.Context,
	object string,
	op domain.Operation,
	externalIDField string,
	rec domain.PreparedRecord,
) (string, error) {
	fields := map[string]any(rec)
	switch op {
	case domain.OperationInsert:
		return s.writer.Insert(ctx, object, fields)
	case domain.OperationUpdate:
		id := recordID(rec)
		if id == "" {
			return "", ErrMissingRecordID
		}
		return id, s.writer.Update(ctx, object, id, fields)
	case domain.OperationUpsert:
		id, _, err := s.writer.Upsert(ctx, object, externalIDField, fields)
		return id, err
	case domain.OperationDelete:
		id := recordID(rec)
		if id == "" {
			return "", ErrMissingRecordID
		}
		return id, s.writer.Delete(ctx, object, id)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownOperation, op)
	}
}

func recordID(rec domain.PreparedRecord) string {
	v, ok := rec[IDField]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func statusCode(err error) string {
	switch {
	case errors.Is(err, sqllite.ErrRecordNotFound), errors.Is(err, mongodb.ErrMongoDocNotFound), errors.Is(err, mongodb.ErrMongoInvalidID):
		return STATUS_NOT_FOUND
	case errors.Is(err, ErrMissingRecordID):
		return STATUS_MISSING_ID
	case errors.Is(err, sqllite.ErrDuplicateExternalID), errors.Is(err, mongodb.ErrMongoDuplicateExternalID):
		return STATUS_DUPLICATE_EXTERNAL_ID
	case errors.Is(err, sqllite.ErrMissingExternalID), errors.Is(err, mongodb.ErrMongoMissingExternalID):
		return STATUS_MISSING_EXTERNAL_ID
	default:
		return STATUS_STORE_ERROR
	}
}
