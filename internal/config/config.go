// Package config loads application configuration from file and environment
// and initializes the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Search   SearchConfig   `yaml:"search" mapstructure:"search"`
	Ingest   IngestConfig   `yaml:"ingest" mapstructure:"ingest"`
	Snapshot SnapshotConfig `yaml:"snapshot" mapstructure:"snapshot"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the Postgres backend.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	MaxUploadMB    int64    `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
}

// SearchConfig configures the Meilisearch engine. An empty URL disables the
// engine path; search then serves from the snapshot and the database.
type SearchConfig struct {
	EngineURL   string  `yaml:"engine_url" mapstructure:"engine_url"`
	APIKey      string  `yaml:"api_key" mapstructure:"api_key"`
	Index       string  `yaml:"index" mapstructure:"index"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// IngestConfig configures CSV ingestion.
type IngestConfig struct {
	Charset              string `yaml:"charset" mapstructure:"charset"`
	NullSentinel         string `yaml:"null_sentinel" mapstructure:"null_sentinel"`
	CountSkippedAsErrors bool   `yaml:"count_skipped_as_errors" mapstructure:"count_skipped_as_errors"`
}

// SnapshotConfig configures the in-memory snapshot lifecycle.
type SnapshotConfig struct {
	RefreshDebounceSecs int `yaml:"refresh_debounce_secs" mapstructure:"refresh_debounce_secs"`
	BuildTimeoutSecs    int `yaml:"build_timeout_secs" mapstructure:"build_timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PRESSDIR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Empty-string defaults keep the keys visible to AutomaticEnv
	// during Unmarshal.
	v.SetDefault("store.database_url", "")
	v.SetDefault("search.engine_url", "")
	v.SetDefault("search.api_key", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_upload_mb", 64)
	v.SetDefault("search.index", "companies")
	v.SetDefault("search.timeout_secs", 5)
	v.SetDefault("ingest.charset", "")
	v.SetDefault("ingest.null_sentinel", "-")
	v.SetDefault("ingest.count_skipped_as_errors", true)
	v.SetDefault("snapshot.refresh_debounce_secs", 3)
	v.SetDefault("snapshot.build_timeout_secs", 60)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
