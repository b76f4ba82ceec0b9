package stores

import (
	"context"
	"errors"
	"time"

	"github.com/hankgalt/load-orchestra/internal/clients/rest"
	"github.com/hankgalt/load-orchestra/pkg/domain"
)

const (
	ERR_REST_STORE_BASE_URL_REQUIRED = "rest store: base url is required"
)

var (
	ErrRESTStoreBaseURLRequired = errors.New(ERR_REST_STORE_BASE_URL_REQUIRED)
)

const RESTStore = "rest-store"

// restStore is a remote record store with bulk jobs.
type restStore struct {
	*rest.Client
}

func (s *restStore) Name() string { return RESTStore }

func (s *restStore) Close(ctx context.Context) error { return nil }

// REST store config.
type RESTStoreConfig struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	MaxRetries int
}

// Name of the store.
func (c *RESTStoreConfig) Name() string { return RESTStore }

// BuildStore builds the HTTP client. No request is made.
func (c *RESTStoreConfig) BuildStore(ctx context.Context) (domain.RecordStore, error) {
	if c.BaseURL == "" {
		return nil, ErrRESTStoreBaseURLRequired
	}
	cl, err := rest.NewClient(rest.Config{
		BaseURL:    c.BaseURL,
		Token:      c.Token,
		Timeout:    c.Timeout,
		MaxRetries: c.MaxRetries,
	})
	if err != nil {
		return nil, err
	}
	return &restStore{Client: cl}, nil
}
