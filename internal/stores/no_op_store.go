package stores

import (
	"context"
	"fmt"

	"github.com/hankgalt/load-orchestra/pkg/domain"
)

const (
	NoopStore = "noop-store"
)

// No operation store for dry runs. Every record succeeds and lookups match nothing.
type noopStore struct{}

func (s *noopStore) Name() string { return NoopStore }

func (s *noopStore) Close(ctx context.Context) error { return nil }

func (s *noopStore) Create(ctx context.Context, object string, records []domain.PreparedRecord, allOrNone bool) ([]domain.RecordResult, error) {
	return s.echo(records), nil
}

func (s *noopStore) Update(ctx context.Context, object string, records []domain.PreparedRecord, allOrNone bool) ([]domain.RecordResult, error) {
	return s.echo(records), nil
}

func (s *noopStore) Upsert(ctx context.Context, object, externalIDField string, records []domain.PreparedRecord, allOrNone bool) ([]domain.RecordResult, error) {
	return s.echo(records), nil
}

func (s *noopStore) Delete(ctx context.Context, object string, ids []string, allOrNone bool) ([]domain.RecordResult, error) {
	records := make([]domain.PreparedRecord, len(ids))
	for i, id := range ids {
		records[i] = domain.PreparedRecord{IDField: id}
	}
	return s.echo(records), nil
}

func (s *noopStore) Lookup(ctx context.Context, object, field string, values []string) (map[string][]string, error) {
	return map[string][]string{}, nil
}

// echo the records back as results
func (s *noopStore) echo(records []domain.PreparedRecord) []domain.RecordResult {
	out := make([]domain.RecordResult, len(records))
	for i, rec := range records {
		id := recordID(rec)
		if id == "" {
			id = fmt.Sprintf("noop-%d", i)
		}
		out[i] = domain.RecordResult{Success: true, ID: id, Record: rec}
	}
	return out
}

// No operation store config for dry runs.
type NoopStoreConfig struct{}

// Name of the store.
func (c NoopStoreConfig) Name() string { return NoopStore }

// BuildStore returns a noop store.
func (c NoopStoreConfig) BuildStore(ctx context.Context) (domain.RecordStore, error) {
	return &noopStore{}, nil
}
