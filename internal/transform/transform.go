package transform

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/comfforts/logger"

	"github.com/hankgalt/load-orchestra/pkg/domain"
)

const (
	// LookupChunkSize is the max number of values per lookup query.
	LookupChunkSize = 200
	// ProgressEvery is the row interval between progress callbacks.
	ProgressEvery = 1000
	// IDField is the record id key kept for deletes.
	IDField = "Id"
)

const (
	ERR_DUPLICATE_TARGET_FIELD = "transform: duplicate target field"
	ERR_MISSING_TARGET_FIELD   = "transform: missing target field"
	ERR_MISSING_SOURCE_FIELD   = "transform: mapping item has no csv field or static value"
	ERR_LOOKUP_MISSING_OBJECT  = "transform: lookup mapping has no related object"
	ERR_LOOKUP_MISSING_FIELD   = "transform: lookup mapping has no lookup field"
	ERR_UNKNOWN_FIELD_TYPE     = "transform: unknown field type"
	ERR_EMPTY_MAPPING          = "transform: empty field mapping"
	ERR_LOOKUP_UNRESOLVED      = "related record could not be resolved"
	ERR_REQUIRED_FIELD_BLANK   = "required field is blank"
)

var (
	ErrDuplicateTargetField = errors.New(ERR_DUPLICATE_TARGET_FIELD)
	ErrMissingTargetField   = errors.New(ERR_MISSING_TARGET_FIELD)
	ErrMissingSourceField   = errors.New(ERR_MISSING_SOURCE_FIELD)
	ErrLookupMissingObject  = errors.New(ERR_LOOKUP_MISSING_OBJECT)
	ErrLookupMissingField   = errors.New(ERR_LOOKUP_MISSING_FIELD)
	ErrUnknownFieldType     = errors.New(ERR_UNKNOWN_FIELD_TYPE)
	ErrEmptyMapping         = errors.New(ERR_EMPTY_MAPPING)
	ErrLookupUnresolved     = errors.New(ERR_LOOKUP_UNRESOLVED)
	ErrRequiredFieldBlank   = errors.New(ERR_REQUIRED_FIELD_BLANK)
)

// ProgressFunc receives the number of processed rows out of total.
type ProgressFunc func(processed, total int)

// ValidateMapping checks a field mapping before any row is transformed.
func ValidateMapping(mapping domain.FieldMapping) error {
	if len(mapping) == 0 {
		return ErrEmptyMapping
	}
	targets := domain.NewSet[string]()
	for _, item := range mapping {
		if item.TargetField == "" {
			return fmt.Errorf("%w: csv field %q", ErrMissingTargetField, item.CSVField)
		}
		key := strings.ToLower(item.TargetField)
		if targets.Has(key) {
			return fmt.Errorf("%w: %s", ErrDuplicateTargetField, item.TargetField)
		}
		targets.Add(key)

		if item.CSVField == "" && item.StaticValue == nil {
			return fmt.Errorf("%w: %s", ErrMissingSourceField, item.TargetField)
		}
		if !item.Type.Valid() {
			return fmt.Errorf("%w: %s (%s)", ErrUnknownFieldType, item.Type, item.TargetField)
		}
		if item.MappedToLookup {
			if item.RelatedReferenceObject == "" {
				return fmt.Errorf("%w: %s", ErrLookupMissingObject, item.TargetField)
			}
			if item.TargetLookupField == "" {
				return fmt.Errorf("%w: %s", ErrLookupMissingField, item.TargetField)
			}
		}
	}
	return nil
}

// PrepareData transforms raw rows into prepared records.
// Rows that fail are reported in Errors and never dropped; the remaining rows continue.
// The returned error is set only for an invalid mapping or a cancelled context.
func PrepareData(
	ctx context.Context,
	req domain.PrepareDataRequest,
	lookups domain.LookupAPI,
	progress ProgressFunc,
) (domain.PrepareDataResult, error) {
	l, err := logger.LoggerFromContext(ctx)
	if err != nil {
		l = logger.GetSlogLogger()
	}

	res := domain.PrepareDataResult{
		Data:          []domain.PreparedRecord{},
		SourceIndexes: []int{},
		Errors:        []domain.PrepareDataError{},
		QueryErrors:   []string{},
	}

	if err := ValidateMapping(req.Mapping); err != nil {
		return res, err
	}

	items := activeItems(req)
	r := resolveLookups(ctx, l, req.Rows, items, lookups)
	res.QueryErrors = append(res.QueryErrors, r.queryErrors...)

	total := len(req.Rows)
	for i, row := range req.Rows {
		if i%ProgressEvery == 0 {
			if err := ctx.Err(); err != nil {
				return res, err
			}
		}

		rec, field, err := prepareRow(row, items, req, r)
		if err != nil {
			res.Errors = append(res.Errors, domain.PrepareDataError{
				RowIndex: i,
				Row:      row,
				Field:    field,
				Message:  err.Error(),
			})
		} else {
			res.Data = append(res.Data, rec)
			res.SourceIndexes = append(res.SourceIndexes, i)
		}

		if progress != nil && (i+1)%ProgressEvery == 0 && i+1 < total {
			progress(i+1, total)
		}
	}
	if progress != nil {
		progress(total, total)
	}

	l.Debug(
		"PrepareData - rows transformed",
		"object", req.Object,
		"operation", req.Operation,
		"rows", total,
		"prepared", len(res.Data),
		"errors", len(res.Errors),
		"query-errors", len(res.QueryErrors),
	)
	return res, nil
}

// activeItems returns the mapping items used for the operation; deletes only carry the record id.
func activeItems(req domain.PrepareDataRequest) []domain.FieldMappingItem {
	if req.Operation != domain.OperationDelete {
		return req.Mapping
	}
	items := []domain.FieldMappingItem{}
	for _, item := range req.Mapping {
		if strings.EqualFold(item.TargetField, IDField) {
			item.TargetField = IDField
			item.Required = true
			item.MappedToLookup = false
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		// without an id mapping every row fails as missing its id
		items = append(items, domain.FieldMappingItem{CSVField: IDField, TargetField: IDField, Required: true})
	}
	return items
}

func cellValue(row domain.RawRow, item domain.FieldMappingItem) string {
	if item.StaticValue != nil {
		return strings.TrimSpace(*item.StaticValue)
	}
	return strings.TrimSpace(row[item.CSVField])
}

func prepareRow(
	row domain.RawRow,
	items []domain.FieldMappingItem,
	req domain.PrepareDataRequest,
	r *resolved,
) (domain.PreparedRecord, string, error) {
	rec := make(domain.PreparedRecord, len(items))
	for idx, item := range items {
		val := cellValue(row, item)
		if val == "" {
			if item.Required {
				return nil, item.TargetField, fmt.Errorf("%s: %w", item.TargetField, ErrRequiredFieldBlank)
			}
			if req.InsertNulls {
				rec[item.TargetField] = nil
			}
			continue
		}

		if item.MappedToLookup {
			if item.LookupIsExternalID {
				rec[item.TargetField] = map[string]any{item.TargetLookupField: val}
				continue
			}
			id, err := r.lookup(idx, item, val)
			if err != nil {
				return nil, item.TargetField, fmt.Errorf("%s: %w", item.TargetField, err)
			}
			rec[item.TargetField] = id
			continue
		}

		v, err := coerce(item.Type, val, req.DateFormat)
		if err != nil {
			return nil, item.TargetField, fmt.Errorf("%s: %w", item.TargetField, err)
		}
		rec[item.TargetField] = v
	}
	return rec, "", nil
}

// resolved holds pre-resolved lookup ids per mapping item index.
type resolved struct {
	ids         map[int]map[string][]string
	failed      map[int]domain.Set[string]
	queryErrors []string
}

func (r *resolved) lookup(idx int, item domain.FieldMappingItem, val string) (string, error) {
	if f, ok := r.failed[idx]; ok && f.Has(val) {
		return "", ErrLookupUnresolved
	}
	matches := r.ids[idx][val]
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no %s record found with %s = %q", item.RelatedReferenceObject, item.TargetLookupField, val)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("found %d %s records with %s = %q", len(matches), item.RelatedReferenceObject, item.TargetLookupField, val)
	}
}

// resolveLookups issues one query per chunk of distinct values for every lookup
// that the store cannot resolve natively. A failed item is reported once.
func resolveLookups(
	ctx context.Context,
	l logger.Logger,
	rows []domain.RawRow,
	items []domain.FieldMappingItem,
	lookups domain.LookupAPI,
) *resolved {
	r := &resolved{
		ids:    map[int]map[string][]string{},
		failed: map[int]domain.Set[string]{},
	}

	for idx, item := range items {
		if !item.MappedToLookup || item.LookupIsExternalID {
			continue
		}

		values := domain.NewOrderedSet[string]()
		if item.StaticValue != nil {
			if v := cellValue(nil, item); v != "" {
				values.Add(v)
			}
		} else {
			for _, row := range rows {
				if v := cellValue(row, item); v != "" {
					values.Add(v)
				}
			}
		}
		if values.Size() == 0 {
			continue
		}

		r.ids[idx] = map[string][]string{}
		var queryErr error
		for _, chunk := range values.Chunks(LookupChunkSize) {
			var (
				found map[string][]string
				err   error
			)
			if lookups == nil {
				err = errors.New("lookup is not supported by the record store")
			} else {
				found, err = lookups.Lookup(ctx, item.RelatedReferenceObject, item.TargetLookupField, chunk)
			}
			if err != nil {
				if queryErr == nil {
					queryErr = err
				}
				if r.failed[idx] == nil {
					r.failed[idx] = domain.NewSet[string]()
				}
				r.failed[idx].Add(chunk...)
				continue
			}
			for _, v := range chunk {
				r.ids[idx][v] = found[v]
			}
		}

		if queryErr != nil {
			msg := fmt.Sprintf("lookup of %s by %s for %s failed: %s", item.RelatedReferenceObject, item.TargetLookupField, item.TargetField, queryErr.Error())
			l.Error("PrepareData - lookup query failed", "object", item.RelatedReferenceObject, "field", item.TargetLookupField, "error", queryErr.Error())
			r.queryErrors = append(r.queryErrors, msg)
		}
	}
	return r
}
