package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "sentence-transformers/all-MiniLM-L6-v2", cfg.Model.DefaultName)
	assert.Equal(t, 32, cfg.Model.MaxBatchSize)
	assert.Equal(t, 512, cfg.Model.MaxSequenceLength)
	assert.Equal(t, "memory", cfg.Cache.Backend)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
model:
  default_name: nomic-embed-text
  max_batch_size: 64
  runtime:
    base_url: http://ollama:11434
    timeout: 90s
cache:
  backend: redis
  redis:
    addr: redis:6379
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "nomic-embed-text", cfg.Model.DefaultName)
	assert.Equal(t, 64, cfg.Model.MaxBatchSize)
	assert.Equal(t, "http://ollama:11434", cfg.Model.Runtime.BaseURL)
	assert.Equal(t, 90*time.Second, cfg.Model.Runtime.Timeout)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, "redis:6379", cfg.Cache.Redis.Addr)

	// Untouched fields keep their defaults.
	assert.Equal(t, 512, cfg.Model.MaxSequenceLength)
}

func TestLoadFromFile_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Server.Port, cfg.Server.Port)
}

func TestLoadFromFile_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a map")
	_, err := LoadFromFile(path)
	require.Error(t, err)
}

func TestLoadFromFile_EnvOverrides(t *testing.T) {
	t.Setenv("DEFAULT_MODEL_NAME", "env-model")
	t.Setenv("MAX_BATCH_SIZE", "16")
	t.Setenv("PORT", "7000")
	t.Setenv("CACHE_BACKEND", "none")

	path := writeConfig(t, `
model:
  default_name: file-model
server:
  port: 9090
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "env-model", cfg.Model.DefaultName, "environment wins over file")
	assert.Equal(t, 16, cfg.Model.MaxBatchSize)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "none", cfg.Cache.Backend)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults valid", func(*Config) {}, false},
		{"zero port", func(c *Config) { c.Server.Port = 0 }, true},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, true},
		{"empty default model", func(c *Config) { c.Model.DefaultName = "" }, true},
		{"zero batch size", func(c *Config) { c.Model.MaxBatchSize = 0 }, true},
		{"zero sequence length", func(c *Config) { c.Model.MaxSequenceLength = 0 }, true},
		{"unknown cache backend", func(c *Config) { c.Cache.Backend = "memcached" }, true},
		{"none cache backend", func(c *Config) { c.Cache.Backend = "none" }, false},
		{"unknown runtime", func(c *Config) { c.Model.Runtime.Type = "vllm" }, true},
		{"rate limit enabled without rate", func(c *Config) {
			c.RateLimit.Enabled = true
			c.RateLimit.RequestsPerSecond = 0
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
