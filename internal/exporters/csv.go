package exporters

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"
)

const (
	ERR_EXPORT_KEY_REQUIRED = "export: key is required"
	ERR_EXPORT_INVALID_KEY  = "export: key must not contain path separators"
)

var (
	ErrExportKeyRequired = errors.New(ERR_EXPORT_KEY_REQUIRED)
	ErrExportInvalidKey  = errors.New(ERR_EXPORT_INVALID_KEY)
)

// writeCSV writes the header row followed by rows.
func writeCSV(w io.Writer, headers []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(headers); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

func validateKey(key string) error {
	if key == "" {
		return ErrExportKeyRequired
	}
	if strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return ErrExportInvalidKey
	}
	return nil
}
