package exporters

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"

	"cloud.google.com/go/storage"
	"github.com/comfforts/logger"

	"github.com/hankgalt/load-orchestra/pkg/domain"
)

// Error constants and variables
const (
	ErrMsgCloudCSVExporterBucketRequired = "cloud csv exporter: bucket name is required"
	ErrMsgCloudCSVExporterMissingCreds   = "cloud csv exporter: missing credentials path"
	ErrMsgCloudCSVExporterNilClient      = "cloud csv exporter: client is not initialized"
)

var (
	ErrCloudCSVExporterBucketRequired = errors.New(ErrMsgCloudCSVExporterBucketRequired)
	ErrCloudCSVExporterMissingCreds   = errors.New(ErrMsgCloudCSVExporterMissingCreds)
	ErrCloudCSVExporterNilClient      = errors.New(ErrMsgCloudCSVExporterNilClient)
)

const CloudCSVExporter = "cloud-csv-exporter"

// cloudCSVExporter writes gs://<bucket>/<prefix>/<key>.csv objects.
type cloudCSVExporter struct {
	bucket string
	prefix string
	client *storage.Client
}

// Name of the exporter.
func (e *cloudCSVExporter) Name() string { return CloudCSVExporter }

func (e *cloudCSVExporter) Close(ctx context.Context) error {
	if e.client == nil {
		return nil
	}
	return e.client.Close()
}

// Export uploads the rows as a CSV object and returns its gs:// url.
func (e *cloudCSVExporter) Export(ctx context.Context, key string, headers []string, rows [][]string) (string, error) {
	l, err := logger.LoggerFromContext(ctx)
	if err != nil {
		l = logger.GetSlogLogger()
	}
	if e.client == nil {
		return "", ErrCloudCSVExporterNilClient
	}
	if err := validateKey(key); err != nil {
		return "", err
	}

	name := path.Join(e.prefix, key+".csv")
	w := e.client.Bucket(e.bucket).Object(name).NewWriter(ctx)
	w.ContentType = "text/csv"
	if err := writeCSV(w, headers, rows); err != nil {
		w.Close()
		return "", fmt.Errorf("cloud csv exporter: write %s: %w", name, err)
	}
	// the object is committed on close
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("cloud csv exporter: upload %s: %w", name, err)
	}

	url := fmt.Sprintf("gs://%s/%s", e.bucket, name)
	l.Debug("cloudCSVExporter.Export - rows exported", "url", url, "rows", len(rows))
	return url, nil
}

// GCS CSV exporter config.
type CloudCSVExporterConfig struct {
	Bucket string
	Prefix string // e.g., "loads/results"
}

// Name of the exporter.
func (c CloudCSVExporterConfig) Name() string { return CloudCSVExporter }

// BuildExporter creates the storage client. Credentials come from GOOGLE_APPLICATION_CREDENTIALS.
func (c CloudCSVExporterConfig) BuildExporter(ctx context.Context) (domain.Exporter, error) {
	if c.Bucket == "" {
		return nil, ErrCloudCSVExporterBucketRequired
	}
	if os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
		return nil, ErrCloudCSVExporterMissingCreds
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("cloud csv exporter: failed to create storage client: %w", err)
	}
	return &cloudCSVExporter{bucket: c.Bucket, prefix: c.Prefix, client: client}, nil
}
