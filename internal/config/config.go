// Package config holds the finqa service configuration.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	pkgconfig "github.com/lewisedginton/financial_qa/pkg/config"
	"github.com/lewisedginton/financial_qa/pkg/logger"
)

// AppConfig holds all application configuration
type AppConfig struct {
	ServiceName string `env:"SERVICE_NAME" yaml:"service_name" default:"finqa"`
	Version     string `env:"VERSION" yaml:"version" default:"dev"`

	Cache         CacheConfig        `yaml:"cache"`
	Conversations ConversationConfig `yaml:"conversations"`
	Storage       StorageConfig      `yaml:"storage"`
	LLM           LLMConfig          `yaml:"llm"`
	Logging       LoggingConfig      `yaml:"logging"`
	Monitoring    MonitoringConfig   `yaml:"monitoring"`
}

// CacheConfig controls the two-tier answer cache.
type CacheConfig struct {
	Dir          string `env:"CACHE_DIR" yaml:"dir" default:"cache"`
	MaxAgeDays   int    `env:"CACHE_MAX_AGE_DAYS" yaml:"max_age_days" default:"7"`
	MemcacheSize int    `env:"CACHE_MEMCACHE_SIZE" yaml:"memcache_size" default:"100"`
	SweepOnStart bool   `env:"CACHE_SWEEP_ON_START" yaml:"sweep_on_start" default:"true"`
	// Targets ending in "*" are prefixes.
	InvalidateTargets  []string      `env:"CACHE_INVALIDATE_TARGETS" yaml:"invalidate_targets"`
	InvalidateInterval time.Duration `env:"CACHE_INVALIDATE_INTERVAL" yaml:"invalidate_interval"`
}

// MaxAge is MaxAgeDays as a duration.
func (c CacheConfig) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeDays) * 24 * time.Hour
}

// ConversationConfig controls where conversations and exports live.
type ConversationConfig struct {
	Dir       string `env:"CONVERSATIONS_DIR" yaml:"dir" default:"conversations"`
	ExportDir string `env:"CONVERSATIONS_EXPORT_DIR" yaml:"export_dir"`
}

// ResolvedExportDir defaults the export directory to <dir>/exports.
func (c ConversationConfig) ResolvedExportDir() string {
	if c.ExportDir != "" {
		return c.ExportDir
	}
	return filepath.Join(c.Dir, "exports")
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" yaml:"level" default:"info"`
	Format string `env:"LOG_FORMAT" yaml:"format" default:"json"`
}

// MonitoringConfig holds monitoring configuration
type MonitoringConfig struct {
	HTTPPort           int           `env:"HTTP_PORT" yaml:"http_port" default:"8080"`
	HealthCheckTimeout time.Duration `env:"HEALTH_CHECK_TIMEOUT" yaml:"health_check_timeout" default:"5s"`
	MetricsEnabled     bool          `env:"METRICS_ENABLED" yaml:"metrics_enabled" default:"true"`
	MetricsPort        int           `env:"METRICS_PORT" yaml:"metrics_port" default:"9090"`
}

// Load reads path (optional) and the environment into a validated AppConfig.
func Load(path string) (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := pkgconfig.GetConfig(cfg, path, false); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates the configuration and returns an error if invalid
func (c *AppConfig) Validate() error {
	var result error

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		result = multierror.Append(result, fmt.Errorf("log_level must be one of [debug, info, warn, error], got %q", c.Logging.Level))
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		result = multierror.Append(result, fmt.Errorf("log_format must be either 'json' or 'text', got %q", c.Logging.Format))
	}

	if c.Cache.MaxAgeDays <= 0 {
		result = multierror.Append(result, fmt.Errorf("cache_max_age_days must be greater than 0, got %d", c.Cache.MaxAgeDays))
	}
	if c.Cache.MemcacheSize <= 0 {
		result = multierror.Append(result, fmt.Errorf("cache_memcache_size must be greater than 0, got %d", c.Cache.MemcacheSize))
	}
	if c.Cache.InvalidateInterval < 0 {
		result = multierror.Append(result, fmt.Errorf("cache_invalidate_interval cannot be negative"))
	}
	if len(c.Cache.InvalidateTargets) > 0 && c.Cache.InvalidateInterval <= 0 {
		result = multierror.Append(result, fmt.Errorf("cache_invalidate_targets requires a positive cache_invalidate_interval"))
	}

	if err := c.Storage.validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := c.LLM.validate(); err != nil {
		result = multierror.Append(result, err)
	}

	for name, port := range map[string]int{"http_port": c.Monitoring.HTTPPort, "metrics_port": c.Monitoring.MetricsPort} {
		if port < 1 || port > 65535 {
			result = multierror.Append(result, fmt.Errorf("%s must be between 1 and 65535, got %d", name, port))
		}
	}
	if c.Monitoring.HealthCheckTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("health_check_timeout must be greater than 0"))
	}

	return result
}

// GetLogLevel returns the parsed logger level
func (c *AppConfig) GetLogLevel() logger.Level {
	return logger.ParseLevel(c.Logging.Level)
}

// NewLogger builds the service logger from the logging section.
func (c *AppConfig) NewLogger() logger.Logger {
	return logger.NewLogger(logger.Config{
		Level:   c.GetLogLevel(),
		Format:  c.Logging.Format,
		Service: c.ServiceName,
	})
}

// LogConfig logs the configuration (without sensitive data)
func (c *AppConfig) LogConfig(log logger.Logger) {
	log.Info("Application configuration loaded",
		logger.StringField("service_name", c.ServiceName),
		logger.StringField("version", c.Version),
		logger.StringField("cache_dir", c.Cache.Dir),
		logger.IntField("cache_max_age_days", c.Cache.MaxAgeDays),
		logger.IntField("cache_memcache_size", c.Cache.MemcacheSize),
		logger.StringField("conversations_dir", c.Conversations.Dir),
		logger.StringField("storage_backend", c.Storage.Backend),
		logger.StringField("llm_provider", c.LLM.Provider),
		logger.StringField("log_level", c.Logging.Level),
		logger.BoolField("metrics_enabled", c.Monitoring.MetricsEnabled),
		logger.IntField("http_port", c.Monitoring.HTTPPort),
	)
}
