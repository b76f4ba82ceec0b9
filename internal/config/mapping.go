package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/hankgalt/load-orchestra/internal/transform"
	"github.com/hankgalt/load-orchestra/pkg/domain"
)

// mappingFile is the object form of a mapping file.
type mappingFile struct {
	Mapping domain.FieldMapping `json:"mapping"`
}

// LoadMapping reads and validates a field mapping file. The file holds either
// a JSON array of mapping items or an object with a "mapping" array.
func LoadMapping(filePath string) (domain.FieldMapping, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping file '%s': %w", filePath, err)
	}

	var mapping domain.FieldMapping
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var mf mappingFile
		if err := json.Unmarshal(trimmed, &mf); err != nil {
			return nil, fmt.Errorf("failed to parse mapping file '%s': %w", filePath, err)
		}
		mapping = mf.Mapping
	} else if err := json.Unmarshal(trimmed, &mapping); err != nil {
		return nil, fmt.Errorf("failed to parse mapping file '%s': %w", filePath, err)
	}

	if err := transform.ValidateMapping(mapping); err != nil {
		return nil, fmt.Errorf("invalid mapping file '%s': %w", filePath, err)
	}
	return mapping, nil
}
