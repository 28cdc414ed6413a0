package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *AppConfig {
	return &AppConfig{
		ServiceName: "finqa",
		Cache:       CacheConfig{Dir: "cache", MaxAgeDays: 7, MemcacheSize: 100},
		Storage:     StorageConfig{Backend: "local"},
		LLM:         LLMConfig{Provider: ProviderNone, MaxTokens: 10, Timeout: time.Second},
		Logging:     LoggingConfig{Level: "info", Format: "json"},
		Monitoring:  MonitoringConfig{HTTPPort: 8080, MetricsPort: 9090, HealthCheckTimeout: time.Second},
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "cache", cfg.Cache.Dir)
	assert.Equal(t, 7, cfg.Cache.MaxAgeDays)
	assert.Equal(t, 7*24*time.Hour, cfg.Cache.MaxAge())
	assert.Equal(t, 100, cfg.Cache.MemcacheSize)
	assert.True(t, cfg.Cache.SweepOnStart)
	assert.Equal(t, "conversations", cfg.Conversations.Dir)
	assert.Equal(t, filepath.Join("conversations", "exports"), cfg.Conversations.ResolvedExportDir())
	assert.Equal(t, "local", cfg.Storage.Backend)
	assert.Equal(t, ProviderNone, cfg.LLM.Provider)
	assert.Equal(t, 8080, cfg.Monitoring.HTTPPort)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CACHE_DIR", "/var/cache/finqa")
	t.Setenv("CACHE_MAX_AGE_DAYS", "3")
	t.Setenv("CACHE_SWEEP_ON_START", "false")
	t.Setenv("CACHE_INVALIDATE_TARGETS", "stats_*, qa_d1_abc")
	t.Setenv("CACHE_INVALIDATE_INTERVAL", "1h")
	t.Setenv("CONVERSATIONS_EXPORT_DIR", "/tmp/exports")
	t.Setenv("LLM_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/var/cache/finqa", cfg.Cache.Dir)
	assert.Equal(t, 3, cfg.Cache.MaxAgeDays)
	assert.False(t, cfg.Cache.SweepOnStart)
	assert.Equal(t, []string{"stats_*", "qa_d1_abc"}, cfg.Cache.InvalidateTargets)
	assert.Equal(t, time.Hour, cfg.Cache.InvalidateInterval)
	assert.Equal(t, "/tmp/exports", cfg.Conversations.ResolvedExportDir())
	assert.Equal(t, "sk-test", cfg.LLM.AnthropicAPIKey)
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv("FINQA_TEST_BUCKET", "answers")
	path := filepath.Join(t.TempDir(), "finqa.yaml")
	content := `
cache:
  memcache_size: 5
storage:
  backend: s3
  s3_bucket: ${FINQA_TEST_BUCKET}
  s3_prefix: prod
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Cache.MemcacheSize)
	assert.Equal(t, "s3", cfg.Storage.Backend)
	assert.Equal(t, "answers", cfg.Storage.BackendConfig().Bucket)
	assert.Equal(t, "prod", cfg.Storage.BackendConfig().Prefix)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr string
	}{
		{"valid", func(*AppConfig) {}, ""},
		{"bad log level", func(c *AppConfig) { c.Logging.Level = "loud" }, "log_level"},
		{"bad log format", func(c *AppConfig) { c.Logging.Format = "xml" }, "log_format"},
		{"zero max age", func(c *AppConfig) { c.Cache.MaxAgeDays = 0 }, "cache_max_age_days"},
		{"zero memcache", func(c *AppConfig) { c.Cache.MemcacheSize = 0 }, "cache_memcache_size"},
		{"negative interval", func(c *AppConfig) { c.Cache.InvalidateInterval = -time.Second }, "cannot be negative"},
		{"targets without interval", func(c *AppConfig) { c.Cache.InvalidateTargets = []string{"qa_*"} }, "requires a positive"},
		{"unknown backend", func(c *AppConfig) { c.Storage.Backend = "git" }, "storage_backend"},
		{"s3 without bucket", func(c *AppConfig) { c.Storage.Backend = "s3" }, "storage_s3_bucket"},
		{"unknown provider", func(c *AppConfig) { c.LLM.Provider = "gemini" }, "llm_provider"},
		{"anthropic without key", func(c *AppConfig) { c.LLM.Provider = ProviderAnthropic }, "anthropic_api_key"},
		{"azure without endpoint", func(c *AppConfig) {
			c.LLM.Provider = ProviderAzureOpenAI
			c.LLM.AzureAPIKey = "k"
		}, "azure_openai_endpoint"},
		{"bad port", func(c *AppConfig) { c.Monitoring.HTTPPort = 70000 }, "http_port"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestValidateAggregatesErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "loud"
	cfg.Cache.MaxAgeDays = -1
	cfg.Storage.Backend = "s3"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"log_level", "cache_max_age_days", "storage_s3_bucket"} {
		assert.Contains(t, err.Error(), want)
	}
}
