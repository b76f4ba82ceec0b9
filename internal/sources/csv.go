package sources

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/hankgalt/load-orchestra/pkg/domain"
)

const (
	ERR_CSV_NO_HEADER        = "csv: file has no header row"
	ERR_CSV_DUPLICATE_HEADER = "csv: duplicate header"
)

var (
	ErrCSVNoHeader        = errors.New(ERR_CSV_NO_HEADER)
	ErrCSVDuplicateHeader = errors.New(ERR_CSV_DUPLICATE_HEADER)
)

// rows between cancellation checks
const checkEvery = 500

const utf8BOM = "\ufeff"

// newCSVReader reads UTF-8 input, or UTF-16 input that starts with a byte order mark.
func newCSVReader(r io.Reader, delimiter rune) *csv.Reader {
	cr := csv.NewReader(transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	cr.Comma = delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true
	return cr
}

// CleanHeaders trims header cells and the leading byte order mark.
// Empty headers are named by column position.
func CleanHeaders(h []string) ([]string, error) {
	out := make([]string, len(h))
	seen := make(map[string]struct{}, len(h))
	for i, v := range h {
		if i == 0 {
			v = strings.TrimPrefix(v, utf8BOM)
		}
		v = strings.TrimSpace(v)
		if v == "" {
			v = fmt.Sprintf("column_%d", i+1)
		}
		if _, ok := seen[v]; ok {
			return nil, fmt.Errorf("%w: %s", ErrCSVDuplicateHeader, v)
		}
		seen[v] = struct{}{}
		out[i] = v
	}
	return out, nil
}

// readHeaders reads and cleans the first row.
func readHeaders(r io.Reader, delimiter rune) ([]string, error) {
	h, err := newCSVReader(r, delimiter).Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrCSVNoHeader
		}
		return nil, fmt.Errorf("csv: read header: %w", err)
	}
	return CleanHeaders(h)
}

// readRows reads header keyed rows. The first row is the header.
// Short rows get empty values; cells beyond the header are dropped.
// A limit of zero or less reads every row.
func readRows(ctx context.Context, r io.Reader, delimiter rune, limit int) ([]string, []domain.RawRow, error) {
	cr := newCSVReader(r, delimiter)
	h, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, ErrCSVNoHeader
		}
		return nil, nil, fmt.Errorf("csv: read header: %w", err)
	}
	headers, err := CleanHeaders(h)
	if err != nil {
		return nil, nil, err
	}

	rows := []domain.RawRow{}
	for limit <= 0 || len(rows) < limit {
		if len(rows)%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return headers, rows, err
			}
		}

		rec, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return headers, rows, fmt.Errorf("csv: read row %d: %w", len(rows)+1, err)
		}
		if isBlank(rec) {
			continue
		}

		row := make(domain.RawRow, len(headers))
		for i, name := range headers {
			if i < len(rec) {
				row[name] = rec[i]
			} else {
				row[name] = ""
			}
		}
		rows = append(rows, row)
	}
	return headers, rows, nil
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
