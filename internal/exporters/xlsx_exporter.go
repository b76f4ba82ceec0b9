package exporters

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/comfforts/logger"
	"github.com/xuri/excelize/v2"

	"github.com/hankgalt/load-orchestra/pkg/domain"
)

const (
	ERR_XLSX_DIR_REQUIRED = "xlsx exporter: directory is required"
)

var (
	ErrXLSXDirRequired = errors.New(ERR_XLSX_DIR_REQUIRED)
)

const (
	XLSXExporter  = "xlsx-exporter"
	XLSXSheetName = "Results"
)

// xlsxExporter writes <dir>/<key>.xlsx workbooks with one results sheet.
type xlsxExporter struct {
	dir string
}

// Name of the exporter.
func (e xlsxExporter) Name() string { return XLSXExporter }

func (e xlsxExporter) Close(ctx context.Context) error { return nil }

// Export streams rows into a new workbook and returns its path.
func (e xlsxExporter) Export(ctx context.Context, key string, headers []string, rows [][]string) (string, error) {
	l, err := logger.LoggerFromContext(ctx)
	if err != nil {
		l = logger.GetSlogLogger()
	}
	if err := validateKey(key); err != nil {
		return "", err
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			l.Error("xlsxExporter.Export - error closing workbook", "error", err.Error())
		}
	}()

	if err := f.SetSheetName("Sheet1", XLSXSheetName); err != nil {
		return "", fmt.Errorf("xlsx exporter: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return "", fmt.Errorf("xlsx exporter: %w", err)
	}

	sw, err := f.NewStreamWriter(XLSXSheetName)
	if err != nil {
		return "", fmt.Errorf("xlsx exporter: %w", err)
	}

	header := make([]any, len(headers))
	for i, h := range headers {
		header[i] = excelize.Cell{StyleID: bold, Value: h}
	}
	if err := sw.SetRow("A1", header); err != nil {
		return "", fmt.Errorf("xlsx exporter: header: %w", err)
	}

	for i, row := range rows {
		// allow cancellation
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return "", err
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return "", fmt.Errorf("xlsx exporter: %w", err)
		}
		vals := make([]any, len(row))
		for j, v := range row {
			vals[j] = v
		}
		if err := sw.SetRow(cell, vals); err != nil {
			return "", fmt.Errorf("xlsx exporter: row %d: %w", i+1, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return "", fmt.Errorf("xlsx exporter: flush: %w", err)
	}

	fp := filepath.Join(e.dir, key+".xlsx")
	if err := f.SaveAs(fp); err != nil {
		return "", fmt.Errorf("xlsx exporter: save %s: %w", fp, err)
	}

	l.Debug("xlsxExporter.Export - rows exported", "path", fp, "rows", len(rows))
	return fp, nil
}

// XLSX exporter config.
type XLSXExporterConfig struct {
	Dir string
}

// Name of the exporter.
func (c XLSXExporterConfig) Name() string { return XLSXExporter }

// BuildExporter creates the export directory if needed.
func (c XLSXExporterConfig) BuildExporter(ctx context.Context) (domain.Exporter, error) {
	if c.Dir == "" {
		return nil, ErrXLSXDirRequired
	}
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("xlsx exporter: create dir %s: %w", c.Dir, err)
	}
	return xlsxExporter{dir: c.Dir}, nil
}
