package exporters

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/comfforts/logger"

	"github.com/hankgalt/load-orchestra/pkg/domain"
)

const (
	ERR_LOCAL_CSV_DIR_REQUIRED = "local csv exporter: directory is required"
)

var (
	ErrLocalCSVDirRequired = errors.New(ERR_LOCAL_CSV_DIR_REQUIRED)
)

const LocalCSVExporter = "local-csv-exporter"

// localCSVExporter writes <dir>/<key>.csv files.
type localCSVExporter struct {
	dir string
}

// Name of the exporter.
func (e localCSVExporter) Name() string { return LocalCSVExporter }

// Close closes the local CSV exporter.
func (e localCSVExporter) Close(ctx context.Context) error {
	// No resources to close for local CSV exporter
	return nil
}

// Export writes the rows and returns the file path.
func (e localCSVExporter) Export(ctx context.Context, key string, headers []string, rows [][]string) (string, error) {
	l, err := logger.LoggerFromContext(ctx)
	if err != nil {
		l = logger.GetSlogLogger()
	}
	if err := validateKey(key); err != nil {
		return "", err
	}

	fp := filepath.Join(e.dir, key+".csv")
	f, err := os.Create(fp)
	if err != nil {
		return "", fmt.Errorf("local csv exporter: create %s: %w", fp, err)
	}
	if err := writeCSV(f, headers, rows); err != nil {
		f.Close()
		return "", fmt.Errorf("local csv exporter: write %s: %w", fp, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("local csv exporter: close %s: %w", fp, err)
	}

	l.Debug("localCSVExporter.Export - rows exported", "path", fp, "rows", len(rows))
	return fp, nil
}

// Local CSV exporter config.
type LocalCSVExporterConfig struct {
	Dir string
}

// Name of the exporter.
func (c LocalCSVExporterConfig) Name() string { return LocalCSVExporter }

// BuildExporter creates the export directory if needed.
func (c LocalCSVExporterConfig) BuildExporter(ctx context.Context) (domain.Exporter, error) {
	if c.Dir == "" {
		return nil, ErrLocalCSVDirRequired
	}
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("local csv exporter: create dir %s: %w", c.Dir, err)
	}
	return localCSVExporter{dir: c.Dir}, nil
}
