package strategies

import (
	"context"
	"errors"
	"fmt"

	"github.com/hankgalt/load-orchestra/pkg/domain"
)

const (
	ERR_MISSING_EXTERNAL_ID   = "strategy: upsert requires an external id field"
	ERR_BULK_NOT_SUPPORTED    = "strategy: record store does not support bulk jobs"
	ERR_UNKNOWN_OPERATION     = "strategy: unknown operation"
	ERR_CREATE_JOB            = "strategy: error creating bulk job"
	ERR_UNKNOWN_LOAD_MODE     = "strategy: unknown load mode"
	ERR_MISSING_RESULT        = "no result returned for record"
	ERR_RESULT_COUNT_MISMATCH = "store returned a different number of results than records"
	ERR_BATCH_RESULT_READ     = "error reading batch results"
	UNKNOWN_ERROR_STATUS_CODE = "UNKNOWN_EXCEPTION"
)

var (
	ErrMissingExternalID = errors.New(ERR_MISSING_EXTERNAL_ID)
	ErrBulkNotSupported  = errors.New(ERR_BULK_NOT_SUPPORTED)
	ErrUnknownOperation  = errors.New(ERR_UNKNOWN_OPERATION)
	ErrCreateJob         = errors.New(ERR_CREATE_JOB)
	ErrUnknownLoadMode   = errors.New(ERR_UNKNOWN_LOAD_MODE)
)

// AbortedFunc reports whether the run was aborted. Checked before each batch.
type AbortedFunc func() bool

// EmitFunc receives a loadDataStatus snapshot after every batch attempt.
type EmitFunc func(domain.LoadDataStatus)

// Strategy submits batches to a record store.
type Strategy interface {
	Submit(
		ctx context.Context,
		object string,
		batches []*domain.Batch,
		op domain.Operation,
		opts domain.LoadOptions,
		aborted AbortedFunc,
		emit EmitFunc,
	) (*domain.LoadDataResult, error)
	Name() string
}

// New returns the strategy for the load mode.
func New(store domain.RecordStore, mode domain.LoadMode) (Strategy, error) {
	switch mode {
	case domain.LoadModeBulk:
		api, ok := domain.AsBulk(store)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrBulkNotSupported, store.Name())
		}
		return NewBulk(api), nil
	case domain.LoadModeBatch:
		return NewCollection(store), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownLoadMode, mode)
}

// ValidateOptions checks options that must hold before any remote call.
func ValidateOptions(op domain.Operation, opts domain.LoadOptions) error {
	switch op {
	case domain.OperationInsert, domain.OperationUpdate, domain.OperationDelete:
		return nil
	case domain.OperationUpsert:
		if opts.ExternalIDField == "" {
			return ErrMissingExternalID
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownOperation, op)
}

func notAborted() bool { return false }

func noEmit(domain.LoadDataStatus) {}
