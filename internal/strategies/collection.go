package strategies

import (
	"context"
	"fmt"

	"github.com/comfforts/logger"

	"github.com/hankgalt/load-orchestra/pkg/domain"
)

const CollectionStrategy = "collection-strategy"

// IDField is the record id key used for deletes.
const IDField = "Id"

// Collection submits each batch with one synchronous collection call.
type Collection struct {
	api domain.CollectionAPI
}

func NewCollection(api domain.CollectionAPI) *Collection {
	return &Collection{api: api}
}

func (s *Collection) Name() string { return CollectionStrategy }

// Submit runs batches strictly in sequence. A failed call turns every record of
// its batch into a failed result and the remaining batches still run.
func (s *Collection) Submit(
	ctx context.Context,
	object string,
	batches []*domain.Batch,
	op domain.Operation,
	opts domain.LoadOptions,
	aborted AbortedFunc,
	emit EmitFunc,
) (*domain.LoadDataResult, error) {
	l, err := logger.LoggerFromContext(ctx)
	if err != nil {
		l = logger.GetSlogLogger()
	}
	if aborted == nil {
		aborted = notAborted
	}
	if emit == nil {
		emit = noEmit
	}

	if err := ValidateOptions(op, opts); err != nil {
		return nil, err
	}

	res := &domain.LoadDataResult{
		Mode:      domain.LoadModeBatch,
		BatchSize: opts.BatchSize,
		Results:   map[int][]domain.RecordResult{},
	}
	for _, b := range batches {
		if aborted() {
			l.Debug("Collection.Submit - aborted, skipping remaining batches", "object", object, "next-batch", b.BatchNumber)
			res.Aborted = true
			break
		}

		results := SubmitCollectionBatch(ctx, s.api, object, op, opts, b)
		res.Results[b.BatchNumber] = results
		if !b.Success {
			res.Failures = append(res.Failures, domain.BatchFailure{BatchNumber: b.BatchNumber, Message: b.Error})
		}
		emit(domain.LoadDataStatus{Batches: domain.Snapshot(batches)})
	}

	res.Batches = domain.Snapshot(batches)
	l.Debug(
		"Collection.Submit - batches submitted",
		"object", object,
		"operation", op,
		"batches", len(batches),
		"failed", len(res.Failures),
		"aborted", res.Aborted,
	)
	return res, nil
}

// SubmitCollectionBatch issues the collection call for one batch and pairs every
// result with its record. It never fails: call errors become failed results.
func SubmitCollectionBatch(
	ctx context.Context,
	api domain.CollectionAPI,
	object string,
	op domain.Operation,
	opts domain.LoadOptions,
	b *domain.Batch,
) []domain.RecordResult {
	var (
		results []domain.RecordResult
		err     error
	)
	switch op {
	case domain.OperationInsert:
		results, err = api.Create(ctx, object, b.Records, opts.AllOrNone)
	case domain.OperationUpdate:
		results, err = api.Update(ctx, object, b.Records, opts.AllOrNone)
	case domain.OperationUpsert:
		if opts.ExternalIDField == "" {
			err = ErrMissingExternalID
		} else {
			results, err = api.Upsert(ctx, object, opts.ExternalIDField, b.Records, opts.AllOrNone)
		}
	case domain.OperationDelete:
		results, err = api.Delete(ctx, object, recordIDs(b.Records), opts.AllOrNone)
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownOperation, op)
	}

	b.Completed = true
	if err != nil {
		b.Success = false
		b.Error = err.Error()
		msg := fmt.Sprintf("unknown error, remote message: %s", err.Error())
		out := make([]domain.RecordResult, len(b.Records))
		for i, rec := range b.Records {
			out[i] = domain.FailedResult(rec, UNKNOWN_ERROR_STATUS_CODE, msg)
		}
		return out
	}

	if len(results) != len(b.Records) {
		l, lErr := logger.LoggerFromContext(ctx)
		if lErr != nil {
			l = logger.GetSlogLogger()
		}
		l.Error(
			"SubmitCollectionBatch - "+ERR_RESULT_COUNT_MISMATCH,
			"object", object,
			"operation", op,
			"batch", b.BatchNumber,
			"records", len(b.Records),
			"results", len(results),
		)
	}

	b.Success = true
	out := make([]domain.RecordResult, len(b.Records))
	for i, rec := range b.Records {
		if i < len(results) {
			out[i] = results[i]
			out[i].Record = rec
		} else {
			out[i] = domain.FailedResult(rec, UNKNOWN_ERROR_STATUS_CODE, ERR_MISSING_RESULT)
		}
	}
	return out
}

func recordIDs(records []domain.PreparedRecord) []string {
	ids := make([]string, len(records))
	for i, rec := range records {
		if v, ok := rec[IDField]; ok && v != nil {
			ids[i] = fmt.Sprint(v)
		}
	}
	return ids
}
