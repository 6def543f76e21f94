package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Matching MatchingConfig `yaml:"matching" mapstructure:"matching"`
	Conflict ConflictConfig `yaml:"conflict" mapstructure:"conflict"`
	Batch    BatchConfig    `yaml:"batch" mapstructure:"batch"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// MatchingConfig configures candidate admission and tiering.
type MatchingConfig struct {
	KmTolerance   float64 `yaml:"km_tolerance" mapstructure:"km_tolerance"`
	MinOverlapPct float64 `yaml:"min_overlap_pct" mapstructure:"min_overlap_pct"`
	TierExactPct  float64 `yaml:"tier_exact_pct" mapstructure:"tier_exact_pct"`
	TierHighPct   float64 `yaml:"tier_high_pct" mapstructure:"tier_high_pct"`
}

// ConflictConfig configures when two need rows share a location.
type ConflictConfig struct {
	KmTolerance   float64 `yaml:"km_tolerance" mapstructure:"km_tolerance"`
	DistanceM     float64 `yaml:"distance_m" mapstructure:"distance_m"`
	MinOverlapPct float64 `yaml:"min_overlap_pct" mapstructure:"min_overlap_pct"`
}

// BatchConfig configures batch writes and reconciliation.
type BatchConfig struct {
	WriteConcurrency     int `yaml:"write_concurrency" mapstructure:"write_concurrency"`
	ReconcileConcurrency int `yaml:"reconcile_concurrency" mapstructure:"reconcile_concurrency"`
	RetryAttempts        int `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryBackoffMs       int `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
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
	v.SetEnvPrefix("SINALIZA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("matching.km_tolerance", 0.05)
	v.SetDefault("matching.min_overlap_pct", 50.0)
	v.SetDefault("matching.tier_exact_pct", 95.0)
	v.SetDefault("matching.tier_high_pct", 75.0)
	v.SetDefault("conflict.km_tolerance", 0.02)
	v.SetDefault("conflict.distance_m", 20.0)
	v.SetDefault("conflict.min_overlap_pct", 50.0)
	v.SetDefault("batch.write_concurrency", 4)
	v.SetDefault("batch.reconcile_concurrency", 8)
	v.SetDefault("batch.retry_attempts", 3)
	v.SetDefault("batch.retry_backoff_ms", 100)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})

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

// Validate checks the settings a command mode depends on. Every problem is
// reported, not just the first.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "store":
		errs = c.validateStore(errs)
	case "match":
		errs = c.validateStore(errs)
		errs = c.validateMatching(errs)
		errs = c.validateBatch(errs)
	case "serve":
		errs = c.validateStore(errs)
		errs = c.validateMatching(errs)
		errs = c.validateBatch(errs)
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore(errs []string) []string {
	switch c.Store.Driver {
	case "sqlite":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver))
	}
	return errs
}

func (c *Config) validateMatching(errs []string) []string {
	m := c.Matching
	if m.KmTolerance <= 0 {
		errs = append(errs, "matching.km_tolerance must be > 0")
	}
	if m.MinOverlapPct <= 0 || m.MinOverlapPct > 100 {
		errs = append(errs, "matching.min_overlap_pct must be in (0, 100]")
	}
	if m.TierHighPct <= 0 || m.TierExactPct > 100 || m.TierHighPct > m.TierExactPct {
		errs = append(errs, "matching tiers must satisfy 0 < tier_high_pct <= tier_exact_pct <= 100")
	}
	cf := c.Conflict
	if cf.KmTolerance < 0 || cf.DistanceM < 0 || cf.MinOverlapPct < 0 || cf.MinOverlapPct > 100 {
		errs = append(errs, "conflict thresholds must be >= 0 and min_overlap_pct <= 100")
	}
	return errs
}

func (c *Config) validateBatch(errs []string) []string {
	if c.Batch.WriteConcurrency < 1 || c.Batch.WriteConcurrency > 64 {
		errs = append(errs, "batch.write_concurrency must be between 1 and 64")
	}
	if c.Batch.ReconcileConcurrency < 1 || c.Batch.ReconcileConcurrency > 64 {
		errs = append(errs, "batch.reconcile_concurrency must be between 1 and 64")
	}
	if c.Batch.RetryAttempts < 1 {
		errs = append(errs, "batch.retry_attempts must be >= 1")
	}
	return errs
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
