package cli

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/hankgalt/load-orchestra/internal/config"
	"github.com/hankgalt/load-orchestra/pkg/domain"
)

const (
	ERR_SOURCE_REQUIRED    = "cli: --source is required"
	ERR_MAPPING_REQUIRED   = "cli: --mapping is required"
	ERR_OBJECT_REQUIRED    = "cli: --object is required"
	ERR_INVALID_OPERATION  = "cli: invalid --operation"
	ERR_INVALID_MODE       = "cli: invalid --mode"
	ERR_INVALID_DELIMITER  = "cli: --delimiter must be a single character"
	ERR_INVALID_DATEFORMAT = "cli: invalid --date-format"
)

var (
	ErrSourceRequired    = errors.New(ERR_SOURCE_REQUIRED)
	ErrMappingRequired   = errors.New(ERR_MAPPING_REQUIRED)
	ErrObjectRequired    = errors.New(ERR_OBJECT_REQUIRED)
	ErrInvalidOperation  = errors.New(ERR_INVALID_OPERATION)
	ErrInvalidMode       = errors.New(ERR_INVALID_MODE)
	ErrInvalidDelimiter  = errors.New(ERR_INVALID_DELIMITER)
	ErrInvalidDateFormat = errors.New(ERR_INVALID_DATEFORMAT)
)

// LoadOptions are the flags shared by the load and start commands.
type LoadOptions struct {
	Source      string
	Delimiter   string
	MappingFile string
	Object      string
	Operation   string
	Mode        string
	BatchSize   int
	ExternalID  string
	Serial      bool
	AllOrNone   bool
	InsertNulls bool
	DateFormat  string
	RowLimit    int
	RunID       string
	ExportKey   string
}

func (o *LoadOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.Source, "source", "s", "", "CSV file path, or gs://bucket/object")
	cmd.Flags().StringVarP(&o.Delimiter, "delimiter", "d", ",", "CSV field delimiter")
	cmd.Flags().StringVarP(&o.MappingFile, "mapping", "m", "", "Path to field mapping JSON file")
	cmd.Flags().StringVarP(&o.Object, "object", "o", "", "Target object name")
	cmd.Flags().StringVar(&o.Operation, "operation", string(domain.OperationInsert), "INSERT, UPDATE, UPSERT or DELETE")
	cmd.Flags().StringVar(&o.Mode, "mode", string(domain.LoadModeBatch), "BATCH (collection calls) or BULK (asynchronous job)")
	cmd.Flags().IntVarP(&o.BatchSize, "batch-size", "b", 0, "Records per batch, 0 for the mode default")
	cmd.Flags().StringVar(&o.ExternalID, "external-id", "", "External id field for upserts")
	cmd.Flags().BoolVar(&o.Serial, "serial", false, "Serial bulk job concurrency")
	cmd.Flags().BoolVar(&o.AllOrNone, "all-or-none", false, "Roll back a collection batch when any record fails")
	cmd.Flags().BoolVar(&o.InsertNulls, "insert-nulls", false, "Send blank cells as nulls")
	cmd.Flags().StringVar(&o.DateFormat, "date-format", "", "Date cell order: MM/DD/YYYY, DD/MM/YYYY or YYYY/MM/DD")
	cmd.Flags().IntVar(&o.RowLimit, "limit", 0, "Read at most this many rows, 0 for all")
	cmd.Flags().StringVar(&o.RunID, "run-id", "", "Run id, generated when empty")
	cmd.Flags().StringVar(&o.ExportKey, "export-key", "", "Export file name prefix, the run id when empty")
}

// loadPlan is the validated form of LoadOptions.
type loadPlan struct {
	delimiter  rune
	mapping    domain.FieldMapping
	operation  domain.Operation
	options    domain.LoadOptions
	dateFormat domain.DateFormat
}

func (o *LoadOptions) validate() (*loadPlan, error) {
	if o.Source == "" {
		return nil, ErrSourceRequired
	}
	if o.MappingFile == "" {
		return nil, ErrMappingRequired
	}
	if o.Object == "" {
		return nil, ErrObjectRequired
	}

	op, ok := domain.ParseOperation(o.Operation)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidOperation, o.Operation)
	}
	mode, ok := domain.ParseLoadMode(o.Mode)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMode, o.Mode)
	}
	if utf8.RuneCountInString(o.Delimiter) != 1 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDelimiter, o.Delimiter)
	}
	delim, _ := utf8.DecodeRuneInString(o.Delimiter)

	df := domain.DateFormat(o.DateFormat)
	switch df {
	case "", domain.DateFormatMDY, domain.DateFormatDMY, domain.DateFormatYMD:
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidDateFormat, o.DateFormat)
	}

	mapping, err := config.LoadMapping(o.MappingFile)
	if err != nil {
		return nil, err
	}

	concurrency := domain.ConcurrencyParallel
	if o.Serial {
		concurrency = domain.ConcurrencySerial
	}
	return &loadPlan{
		delimiter: delim,
		mapping:   mapping,
		operation: op,
		options: domain.LoadOptions{
			Mode:            mode,
			BatchSize:       o.BatchSize,
			ExternalIDField: o.ExternalID,
			ConcurrencyMode: concurrency,
			AllOrNone:       o.AllOrNone,
		},
		dateFormat: df,
	}, nil
}
