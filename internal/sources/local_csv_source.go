package sources

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/comfforts/logger"

	"github.com/hankgalt/load-orchestra/pkg/domain"
)

// Error constants and variables
const (
	ErrMsgLocalCSVPathRequired = "local csv: path is required"
	ErrMsgLocalCSVFileNotFound = "local csv: error opening file"
)

var (
	ErrLocalCSVPathRequired = errors.New(ErrMsgLocalCSVPathRequired)
	ErrLocalCSVFileNotFound = errors.New(ErrMsgLocalCSVFileNotFound)
)

const (
	LocalCSVSource = "local-csv-source"
)

// Local CSV source.
type localCSVSource struct {
	path      string
	delimiter rune
	headers   []string
}

// Name of the source.
func (s *localCSVSource) Name() string { return LocalCSVSource }

// Close closes the local CSV source.
func (s *localCSVSource) Close(ctx context.Context) error {
	// file is opened per read
	return nil
}

// Headers returns the cleaned header row.
func (s *localCSVSource) Headers() []string { return slices.Clone(s.headers) }

// Rows reads up to limit rows from the file, every row when limit is zero.
func (s *localCSVSource) Rows(ctx context.Context, limit int) ([]domain.RawRow, error) {
	l, err := logger.LoggerFromContext(ctx)
	if err != nil {
		l = logger.GetSlogLogger()
	}

	f, err := os.Open(s.path)
	if err != nil {
		l.Error("localCSVSource.Rows - error opening file", "path", s.path, "error", err.Error())
		return nil, fmt.Errorf("%w: %s", ErrLocalCSVFileNotFound, s.path)
	}
	defer f.Close()

	_, rows, err := readRows(ctx, f, s.delimiter, limit)
	if err != nil {
		return nil, fmt.Errorf("local csv: %s: %w", s.path, err)
	}
	l.Debug("localCSVSource.Rows - rows read", "path", s.path, "rows", len(rows), "limit", limit)
	return rows, nil
}

// Local CSV source config.
type LocalCSVConfig struct {
	Path      string
	Delimiter rune // e.g., ',', '|'
}

// Name of the source.
func (c LocalCSVConfig) Name() string { return LocalCSVSource }

// BuildSource builds a local CSV source from the config.
// It reads the header row and caches it.
func (c LocalCSVConfig) BuildSource(ctx context.Context) (domain.RowSource, error) {
	if c.Path == "" {
		return nil, ErrLocalCSVPathRequired
	}

	delim := c.Delimiter
	if delim == 0 {
		delim = ',' // default
	}

	f, err := os.Open(c.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrLocalCSVFileNotFound, c.Path)
	}
	defer f.Close()

	headers, err := readHeaders(f, delim)
	if err != nil {
		return nil, fmt.Errorf("local csv: %s: %w", c.Path, err)
	}

	return &localCSVSource{
		path:      c.Path,
		delimiter: delim,
		headers:   headers,
	}, nil
}
