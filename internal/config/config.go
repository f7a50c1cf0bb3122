// Package config provides configuration management with hot-reload support.
// Settings come from a YAML file with environment variable overrides;
// reloads swap the config atomically.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/embedworks/embedgate/internal/cache"
	"github.com/embedworks/embedgate/internal/model"
)

// Config represents the complete service configuration.
type Config struct {
	App       AppConfig       `yaml:"app"`
	Server    ServerConfig    `yaml:"server"`
	Model     ModelConfig     `yaml:"model"`
	Cache     CacheConfig     `yaml:"cache"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// AppConfig identifies the service.
type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// ModelConfig controls model lifecycle and encoding limits.
type ModelConfig struct {
	// DefaultName is loaded implicitly by the first embedding request when
	// nothing is loaded yet.
	DefaultName       string `yaml:"default_name"`
	CacheDir          string `yaml:"cache_dir"`
	MaxBatchSize      int    `yaml:"max_batch_size"`
	MaxSequenceLength int    `yaml:"max_sequence_length"`
	// MemoryCeilingMB documents the deployment's model memory budget; the
	// single-active-model policy keeps residency within it.
	MemoryCeilingMB int `yaml:"memory_ceiling_mb"`

	Runtime   RuntimeConfig       `yaml:"runtime"`
	Artifacts model.ArtifactConfig `yaml:"artifacts"`
}

// RuntimeConfig selects and configures the inference runtime.
type RuntimeConfig struct {
	Type    string        `yaml:"type"` // currently: ollama
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// CacheConfig selects the embedding cache backend.
type CacheConfig struct {
	Backend    string            `yaml:"backend"` // none, memory, redis
	TTL        time.Duration     `yaml:"ttl"`
	MaxEntries int               `yaml:"max_entries"`
	Redis      cache.RedisConfig `yaml:"redis"`
}

// RateLimitConfig defines request rate limiting parameters.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerSecond int  `yaml:"requests_per_second"`
	BurstSize         int  `yaml:"burst_size"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// TracingConfig contains OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
	Insecure    bool    `yaml:"insecure"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:    "embedgate",
			Version: "0.1.0",
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8000,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute,
			IdleTimeout:  2 * time.Minute,
		},
		Model: ModelConfig{
			DefaultName:       "sentence-transformers/all-MiniLM-L6-v2",
			CacheDir:          "/var/lib/embedgate/models",
			MaxBatchSize:      32,
			MaxSequenceLength: 512,
			Runtime: RuntimeConfig{
				Type:    "ollama",
				BaseURL: "http://localhost:11434",
				Timeout: 2 * time.Minute,
			},
		},
		Cache: CacheConfig{
			Backend:    "memory",
			TTL:        10 * time.Minute,
			MaxEntries: 4096,
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerSecond: 50,
			BurstSize:         100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Endpoint:    "localhost:4317",
			ServiceName: "embedgate",
			SampleRate:  1.0,
			Insecure:    true,
		},
	}
}

// LoadFromFile reads the YAML config at path over the defaults, applies
// environment overrides, and validates the result. A missing file is not an
// error; defaults plus environment apply.
func LoadFromFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv layers environment variables over the file values. The variable
// names mirror the container deployment contract.
func applyEnv(cfg *Config) {
	setString(&cfg.Model.DefaultName, "DEFAULT_MODEL_NAME")
	setString(&cfg.Model.CacheDir, "MODEL_CACHE_DIR")
	setInt(&cfg.Model.MaxBatchSize, "MAX_BATCH_SIZE")
	setInt(&cfg.Model.MaxSequenceLength, "MAX_SEQUENCE_LENGTH")
	setInt(&cfg.Model.MemoryCeilingMB, "MEMORY_CEILING_MB")
	setString(&cfg.Model.Runtime.BaseURL, "RUNTIME_BASE_URL")
	setString(&cfg.Server.Host, "HOST")
	setInt(&cfg.Server.Port, "PORT")
	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Cache.Backend, "CACHE_BACKEND")
	setString(&cfg.Cache.Redis.Addr, "REDIS_ADDR")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// Validate checks invariants the rest of the service relies on.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server port %d", c.Server.Port)
	}
	if c.Model.DefaultName == "" {
		return fmt.Errorf("config: model.default_name is required")
	}
	if c.Model.MaxBatchSize <= 0 {
		return fmt.Errorf("config: model.max_batch_size must be positive, got %d", c.Model.MaxBatchSize)
	}
	if c.Model.MaxSequenceLength <= 0 {
		return fmt.Errorf("config: model.max_sequence_length must be positive, got %d", c.Model.MaxSequenceLength)
	}
	switch c.Cache.Backend {
	case "", "none", "memory", "redis":
	default:
		return fmt.Errorf("config: unknown cache backend %q", c.Cache.Backend)
	}
	switch c.Model.Runtime.Type {
	case "", "ollama":
	default:
		return fmt.Errorf("config: unknown runtime type %q", c.Model.Runtime.Type)
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("config: rate_limit.requests_per_second must be positive when enabled")
	}
	return nil
}
