package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 10.0, cfg.Data.QuantityThreshold)
	assert.Equal(t, 5, cfg.Data.NClusters)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
data:
  quantity_threshold: 25
  n_clusters: 3
llm:
  enabled: false
  request_timeout: 45s
cache:
  backend: redis
  redis_addr: cache:6379
server:
  port: 9100
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 25.0, cfg.Data.QuantityThreshold)
	assert.Equal(t, 3, cfg.Data.NClusters)
	assert.False(t, cfg.LLM.Enabled)
	assert.Equal(t, 45*time.Second, cfg.LLM.RequestTimeout)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, "cache:6379", cfg.Cache.RedisAddr)
	assert.Equal(t, 9100, cfg.Server.Port)
	// Untouched sections keep their defaults.
	assert.Equal(t, 0.05, cfg.Data.ContaminationRate)
}

func TestLoadEnvSecrets(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-live")
	t.Setenv("SMTP_PASSWORD", "smtp-secret")
	t.Setenv("JIRA_API_TOKEN", "jira-secret")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "sk-live", cfg.LLM.APIKey)
	assert.Equal(t, "smtp-secret", cfg.Email.Password)
	assert.Equal(t, "jira-secret", cfg.Jira.APIToken)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data: [unclosed"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateDisabledLLMSkipsRateCheck(t *testing.T) {
	cfg := Default()
	cfg.LLM.Enabled = false
	cfg.LLM.RequestsPerMinute = 0
	require.NoError(t, cfg.validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"contamination too high", func(c *Config) { c.Data.ContaminationRate = 0.6 }, "contamination_rate"},
		{"zero clusters", func(c *Config) { c.Data.NClusters = 0 }, "n_clusters"},
		{"zero llm rate", func(c *Config) { c.LLM.RequestsPerMinute = 0 }, "requests_per_minute"},
		{"negative llm burst", func(c *Config) { c.LLM.Burst = -1 }, "burst"},
		{"unknown cache backend", func(c *Config) { c.Cache.Backend = "memcached" }, "cache backend"},
		{"postgres without dsn", func(c *Config) { c.Postgres.Enabled = true }, "PG_DSN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
