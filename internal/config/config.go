// Package config builds store, source, exporter, polling and Temporal settings
// from environment variables.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/hankgalt/load-orchestra/internal/clients/mongodb"
	"github.com/hankgalt/load-orchestra/internal/clients/rest"
	"github.com/hankgalt/load-orchestra/internal/exporters"
	"github.com/hankgalt/load-orchestra/internal/poller"
	"github.com/hankgalt/load-orchestra/internal/sources"
	"github.com/hankgalt/load-orchestra/internal/stores"
	"github.com/hankgalt/load-orchestra/pkg/domain"
	"github.com/hankgalt/load-orchestra/pkg/utils"
)

const (
	ERR_UNKNOWN_STORE_KIND     = "config: unknown STORE_KIND"
	ERR_UNKNOWN_EXPORT_KIND    = "config: unknown EXPORT_KIND"
	ERR_STORE_BASE_URL_NOT_SET = "config: STORE_BASE_URL environment variable not set"
)

var (
	ErrUnknownStoreKind   = errors.New(ERR_UNKNOWN_STORE_KIND)
	ErrUnknownExportKind  = errors.New(ERR_UNKNOWN_EXPORT_KIND)
	ErrStoreBaseURLNotSet = errors.New(ERR_STORE_BASE_URL_NOT_SET)
)

// Store kinds.
const (
	StoreKindREST   = "rest"
	StoreKindSQLite = "sqlite"
	StoreKindMongo  = "mongo"
	StoreKindNoop   = "noop"
)

// Export kinds.
const (
	ExportKindNone  = "none"
	ExportKindLocal = "local"
	ExportKindXLSX  = "xlsx"
	ExportKindGCS   = "gcs"
)

const (
	DefaultTemporalHost      = "localhost:7233"
	DefaultTemporalNamespace = "default"
	DefaultSQLiteFile        = "records.db"
	DefaultExportDir         = "exports"
)

type StoreSettings struct {
	Kind       string
	BaseURL    string
	Token      string
	Timeout    time.Duration
	MaxRetries int
	DBFile     string
	Mongo      mongodb.MongoConfig
}

type ExportSettings struct {
	Kind   string
	Dir    string
	Bucket string
	Prefix string
}

type TemporalSettings struct {
	Host      string
	Namespace string
	TaskQueue string
}

// Config holds all configuration for the application,
// loaded from environment variables (populated from .env in main).
type Config struct {
	Store    StoreSettings
	Export   ExportSettings
	Poll     poller.Config
	Temporal TemporalSettings
}

// LoadConfig reads the environment. It does not connect to anything.
func LoadConfig(taskQueue string) (*Config, error) {
	dataDir, err := utils.BuildDataDir()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Store: StoreSettings{
			Kind:       strings.ToLower(utils.GetEnv("STORE_KIND", StoreKindSQLite)),
			BaseURL:    utils.GetEnv("STORE_BASE_URL", ""),
			Token:      utils.GetEnv("STORE_TOKEN", ""),
			Timeout:    utils.GetEnvDuration("STORE_TIMEOUT", rest.DefaultTimeout),
			MaxRetries: utils.GetEnvInt("STORE_MAX_RETRIES", rest.DefaultMaxRetries),
			DBFile:     utils.GetEnv("SQLITE_DB_FILE", filepath.Join(dataDir, DefaultSQLiteFile)),
			Mongo: mongodb.MongoConfig{
				Protocol: utils.GetEnv("MONGO_PROTOCOL", "mongodb"),
				Host:     utils.GetEnv("MONGO_HOSTNAME", ""),
				User:     utils.GetEnv("MONGO_USERNAME", ""),
				Pwd:      utils.GetEnv("MONGO_PASSWORD", ""),
				Params:   utils.GetEnv("MONGO_CONN_PARAMS", ""),
				DBName:   utils.GetEnv("MONGO_DBNAME", ""),
			},
		},
		Export: ExportSettings{
			Kind:   strings.ToLower(utils.GetEnv("EXPORT_KIND", ExportKindLocal)),
			Dir:    utils.GetEnv("EXPORT_DIR", filepath.Join(dataDir, DefaultExportDir)),
			Bucket: utils.GetEnv("EXPORT_BUCKET", ""),
			Prefix: utils.GetEnv("EXPORT_PREFIX", ""),
		},
		Poll: poller.Config{
			Interval:    utils.GetEnvDuration("POLL_INTERVAL", poller.DefaultInterval),
			MaxAttempts: utils.GetEnvInt("POLL_MAX_ATTEMPTS", poller.DefaultMaxAttempts),
		},
		Temporal: TemporalSettings{
			Host:      utils.GetEnv("TEMPORAL_HOST", DefaultTemporalHost),
			Namespace: utils.GetEnv("TEMPORAL_NAMESPACE", DefaultTemporalNamespace),
			TaskQueue: utils.GetEnv("TEMPORAL_TASK_QUEUE", taskQueue),
		},
	}

	if cfg.Store.Kind == StoreKindREST && cfg.Store.BaseURL == "" {
		return nil, ErrStoreBaseURLNotSet
	}
	return cfg, nil
}

// StoreConfig returns the builder for the configured record store.
func (c *Config) StoreConfig() (domain.StoreConfig, error) {
	switch c.Store.Kind {
	case StoreKindREST:
		return &stores.RESTStoreConfig{
			BaseURL:    c.Store.BaseURL,
			Token:      c.Store.Token,
			Timeout:    c.Store.Timeout,
			MaxRetries: c.Store.MaxRetries,
		}, nil
	case StoreKindSQLite:
		return &stores.SQLLiteStoreConfig{DBFile: c.Store.DBFile}, nil
	case StoreKindMongo:
		m := c.Store.Mongo
		return &stores.MongoStoreConfig{
			Protocol: m.Protocol,
			Host:     m.Host,
			DBName:   m.DBName,
			User:     m.User,
			Pwd:      m.Pwd,
			Params:   m.Params,
		}, nil
	case StoreKindNoop:
		return stores.NoopStoreConfig{}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownStoreKind, c.Store.Kind)
}

// ExporterConfig returns the builder for the configured exporter, nil when exports are off.
func (c *Config) ExporterConfig() (domain.ExporterConfig, error) {
	switch c.Export.Kind {
	case ExportKindNone, "":
		return nil, nil
	case ExportKindLocal:
		return exporters.LocalCSVExporterConfig{Dir: c.Export.Dir}, nil
	case ExportKindXLSX:
		return exporters.XLSXExporterConfig{Dir: c.Export.Dir}, nil
	case ExportKindGCS:
		return exporters.CloudCSVExporterConfig{Bucket: c.Export.Bucket, Prefix: c.Export.Prefix}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownExportKind, c.Export.Kind)
}

// SourceConfig returns a GCS source for gs://bucket/object paths, a local file source otherwise.
func SourceConfig(path string, delimiter rune) domain.SourceConfig {
	if loc, ok := strings.CutPrefix(path, "gs://"); ok {
		bucket, object, _ := strings.Cut(loc, "/")
		return sources.CloudCSVConfig{Bucket: bucket, Path: object, Delimiter: delimiter}
	}
	return sources.LocalCSVConfig{Path: path, Delimiter: delimiter}
}
