package sources

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"

	"cloud.google.com/go/storage"
	"github.com/comfforts/logger"

	"github.com/hankgalt/load-orchestra/pkg/domain"
)

// Error constants and variables
const (
	ErrMsgCloudCSVClientNotInitialized = "cloud csv: client is not initialized"
	ErrMsgCloudCSVObjectPathRequired   = "cloud csv: object path is required"
	ErrMsgCloudCSVBucketRequired       = "cloud csv: bucket name is required"
	ErrMsgCloudCSVUnsupportedProvider  = "cloud csv: unsupported provider, only 'gcs' is supported"
	ErrMsgCloudCSVMissingCreds         = "cloud csv: missing credentials path"
	ErrMsgCloudCSVObjectNotExist       = "cloud csv: object does not exist or error getting attributes"
	ErrMsgCloudCSVEmptyObject          = "cloud csv: object is empty"
)

var (
	ErrCloudCSVClientNotInitialized = errors.New(ErrMsgCloudCSVClientNotInitialized)
	ErrCloudCSVObjectPathRequired   = errors.New(ErrMsgCloudCSVObjectPathRequired)
	ErrCloudCSVBucketRequired       = errors.New(ErrMsgCloudCSVBucketRequired)
	ErrCloudCSVUnsupportedProvider  = errors.New(ErrMsgCloudCSVUnsupportedProvider)
	ErrCloudCSVMissingCreds         = errors.New(ErrMsgCloudCSVMissingCreds)
	ErrCloudCSVObjectNotExist       = errors.New(ErrMsgCloudCSVObjectNotExist)
	ErrCloudCSVEmptyObject          = errors.New(ErrMsgCloudCSVEmptyObject)
)

const (
	CloudCSVSource = "cloud-csv-source"
)

type CloudProvider string

const (
	CloudProviderGCS CloudProvider = "gcs"
)

// Cloud (GCS) CSV source.
type cloudCSVSource struct {
	bucket    string
	path      string
	size      int64
	delimiter rune
	headers   []string
	client    *storage.Client
}

// Name of the source.
func (s *cloudCSVSource) Name() string { return CloudCSVSource }

func (s *cloudCSVSource) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Headers returns the cleaned header row.
func (s *cloudCSVSource) Headers() []string { return slices.Clone(s.headers) }

// Rows streams the object and reads up to limit rows, every row when limit is zero.
func (s *cloudCSVSource) Rows(ctx context.Context, limit int) ([]domain.RawRow, error) {
	l, err := logger.LoggerFromContext(ctx)
	if err != nil {
		l = logger.GetSlogLogger()
	}

	if s.client == nil {
		return nil, ErrCloudCSVClientNotInitialized
	}

	rc, err := s.client.Bucket(s.bucket).Object(s.path).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("cloud csv: error creating reader for object %s in bucket %s: %w", s.path, s.bucket, err)
	}
	defer func() {
		if err := rc.Close(); err != nil {
			l.Error("cloudCSVSource.Rows - error closing reader", "error", err.Error())
		}
	}()

	_, rows, err := readRows(ctx, rc, s.delimiter, limit)
	if err != nil {
		return nil, fmt.Errorf("cloud csv: gs://%s/%s: %w", s.bucket, s.path, err)
	}
	l.Debug("cloudCSVSource.Rows - rows read", "bucket", s.bucket, "path", s.path, "size", s.size, "rows", len(rows))
	return rows, nil
}

// Cloud CSV source config.
type CloudCSVConfig struct {
	Provider  string // only "gcs"
	Bucket    string
	Path      string
	Delimiter rune // e.g., ',', '|'
}

// Name of the source.
func (c CloudCSVConfig) Name() string { return CloudCSVSource }

// BuildSource builds a GCS CSV source from the config.
// Credentials come from GOOGLE_APPLICATION_CREDENTIALS.
func (c CloudCSVConfig) BuildSource(ctx context.Context) (domain.RowSource, error) {
	l, err := logger.LoggerFromContext(ctx)
	if err != nil {
		l = logger.GetSlogLogger()
	}

	if c.Path == "" {
		return nil, ErrCloudCSVObjectPathRequired
	}
	if c.Bucket == "" {
		return nil, ErrCloudCSVBucketRequired
	}
	if c.Delimiter == 0 {
		c.Delimiter = ',' // default
	}
	if c.Provider == "" {
		c.Provider = string(CloudProviderGCS)
	}
	if c.Provider != string(CloudProviderGCS) {
		return nil, ErrCloudCSVUnsupportedProvider
	}

	if os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
		return nil, ErrCloudCSVMissingCreds
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("cloud csv: failed to create storage client: %w", err)
	}
	closeClient := func() {
		if err := client.Close(); err != nil {
			l.Error("CloudCSVConfig.BuildSource - error closing client", "error", err.Error())
		}
	}

	obj := client.Bucket(c.Bucket).Object(c.Path)
	attrs, err := obj.Attrs(ctx)
	if err != nil {
		closeClient()
		l.Error("CloudCSVConfig.BuildSource - object does not exist", "bucket", c.Bucket, "path", c.Path, "error", err.Error())
		return nil, ErrCloudCSVObjectNotExist
	}
	if attrs.Size <= 0 {
		closeClient()
		return nil, ErrCloudCSVEmptyObject
	}

	rc, err := obj.NewReader(ctx)
	if err != nil {
		closeClient()
		return nil, fmt.Errorf("cloud csv: error creating reader for object %s in bucket %s: %w", c.Path, c.Bucket, err)
	}
	headers, err := readHeaders(rc, c.Delimiter)
	rc.Close()
	if err != nil {
		closeClient()
		return nil, fmt.Errorf("cloud csv: gs://%s/%s: %w", c.Bucket, c.Path, err)
	}

	return &cloudCSVSource{
		bucket:    c.Bucket,
		path:      c.Path,
		size:      attrs.Size,
		delimiter: c.Delimiter,
		headers:   headers,
		client:    client,
	}, nil
}
