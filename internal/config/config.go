// Package config loads graphclone settings from defaults, an optional YAML
// file and GRAPHCLONE_* environment variables.
package config

import (
	"strings"

	"github.com/spf13/viper"
	"gitlab.com/tozd/go/errors"

	"graphclone/internal/tracing"
)

// EnvPrefix prefixes every environment override, e.g. GRAPHCLONE_STORAGE_DRIVER.
const EnvPrefix = "GRAPHCLONE"

// Storage drivers.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageBlob     = "blob"
)

// Blob drivers used by the blob storage driver.
const (
	BlobFilesystem = "fs"
	BlobMemory     = "memory"
	BlobS3         = "s3"
)

// Metrics sinks.
const (
	MetricsNone       = "none"
	MetricsPrometheus = "prometheus"
	MetricsExpvar     = "expvar"
)

// Config is the full application configuration.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Storage  StorageConfig  `mapstructure:"storage"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Blob     BlobConfig     `mapstructure:"blob"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Tracing  tracing.Config `mapstructure:"tracing"`
	Clone    CloneConfig    `mapstructure:"clone"`
}

// LogConfig selects the logger level and output format.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StorageConfig selects the persistent store.
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

// SQLiteConfig configures the sqlite driver.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// PostgresConfig configures the postgres driver.
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// BlobConfig configures the blob-backed snapshot store.
type BlobConfig struct {
	Driver    string   `mapstructure:"driver"`
	Root      string   `mapstructure:"root"`
	Retention int      `mapstructure:"retention"`
	S3        S3Config `mapstructure:"s3"`
}

// S3Config configures the s3 blob driver.
type S3Config struct {
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	PathStyle       bool   `mapstructure:"path_style"`
}

// MetricsConfig selects where clone metrics go. Textfile, when set, receives
// the Prometheus exposition after each command.
type MetricsConfig struct {
	Driver   string `mapstructure:"driver"`
	Textfile string `mapstructure:"textfile"`
}

// CloneConfig holds engine and plan settings.
type CloneConfig struct {
	Plan     string `mapstructure:"plan"`
	MaxDepth int    `mapstructure:"max_depth"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		Log:      LogConfig{Level: "info", Format: "console"},
		Storage:  StorageConfig{Driver: StorageSQLite},
		SQLite:   SQLiteConfig{Path: "graphclone.db"},
		Postgres: PostgresConfig{DSN: "postgres://localhost/graphclone?sslmode=disable"},
		Blob:     BlobConfig{Driver: BlobFilesystem, Root: "./blobdata", S3: S3Config{Region: "us-east-1"}},
		Metrics:  MetricsConfig{Driver: MetricsNone},
		Tracing:  tracing.DefaultConfig(),
		Clone:    CloneConfig{Plan: "graphclone.yaml", MaxDepth: 64},
	}
}

// NewViper returns a viper instance seeded with defaults and environment
// binding. When file is non-empty it is read as YAML.
func NewViper(file string) (*viper.Viper, error) {
	v := viper.New()
	d := Defaults()
	defaults := map[string]any{
		"log.level":                 d.Log.Level,
		"log.format":                d.Log.Format,
		"storage.driver":            d.Storage.Driver,
		"sqlite.path":               d.SQLite.Path,
		"postgres.dsn":              d.Postgres.DSN,
		"blob.driver":               d.Blob.Driver,
		"blob.root":                 d.Blob.Root,
		"blob.retention":            d.Blob.Retention,
		"blob.s3.region":            d.Blob.S3.Region,
		"blob.s3.bucket":            d.Blob.S3.Bucket,
		"blob.s3.prefix":            d.Blob.S3.Prefix,
		"blob.s3.endpoint":          d.Blob.S3.Endpoint,
		"blob.s3.access_key_id":     d.Blob.S3.AccessKeyID,
		"blob.s3.secret_access_key": d.Blob.S3.SecretAccessKey,
		"blob.s3.path_style":        d.Blob.S3.PathStyle,
		"metrics.driver":            d.Metrics.Driver,
		"metrics.textfile":          d.Metrics.Textfile,
		"tracing.enabled":           d.Tracing.Enabled,
		"tracing.exporter":          d.Tracing.Exporter,
		"tracing.otlp_endpoint":     d.Tracing.OTLPEndpoint,
		"tracing.sample_rate":       d.Tracing.SampleRate,
		"tracing.service_name":      d.Tracing.ServiceName,
		"clone.plan":                d.Clone.Plan,
		"clone.max_depth":           d.Clone.MaxDepth,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Errorf("read config %s: %w", file, err)
		}
	}
	return v, nil
}

// Load decodes v into a Config and validates its enumerations.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every enumerated setting.
func (c Config) Validate() error {
	if !oneOf(c.Storage.Driver, StorageMemory, StorageSQLite, StoragePostgres, StorageBlob) {
		return errors.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Storage.Driver == StorageBlob && !oneOf(c.Blob.Driver, BlobFilesystem, BlobMemory, BlobS3) {
		return errors.Errorf("unknown blob driver %q", c.Blob.Driver)
	}
	if c.Storage.Driver == StorageBlob && c.Blob.Driver == BlobS3 && c.Blob.S3.Bucket == "" {
		return errors.New("blob.s3.bucket is required for the s3 blob driver")
	}
	if c.Blob.Retention < 0 {
		return errors.Errorf("blob.retention must not be negative, got %d", c.Blob.Retention)
	}
	if !oneOf(c.Metrics.Driver, MetricsNone, MetricsPrometheus, MetricsExpvar) {
		return errors.Errorf("unknown metrics driver %q", c.Metrics.Driver)
	}
	if !oneOf(c.Log.Format, "console", "json") {
		return errors.Errorf("unknown log format %q", c.Log.Format)
	}
	if c.Tracing.Enabled && !oneOf(c.Tracing.Exporter, tracing.ExporterNone, tracing.ExporterStdout, tracing.ExporterOTLP) {
		return errors.Errorf("unknown trace exporter %q", c.Tracing.Exporter)
	}
	return nil
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
