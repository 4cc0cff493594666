package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Cache     CacheConfig     `yaml:"cache"`
	Build     BuildConfig     `yaml:"build"`
	Transform TransformConfig `yaml:"transform"`
	Debug     DebugConfig     `yaml:"debug"`
	Logging   LogConfig       `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" yaml:"port"`
	Host string `envconfig:"HOST" yaml:"host"`
}

// FetchConfig controls the resource fetcher.
type FetchConfig struct {
	UserAgent    string        `envconfig:"USER_AGENT" yaml:"user_agent"`
	Timeout      time.Duration `envconfig:"FETCH_TIMEOUT" yaml:"timeout"`
	MaxRetries   int           `envconfig:"FETCH_MAX_RETRIES" yaml:"max_retries"`
	RateLimit    float64       `envconfig:"FETCH_RATE_LIMIT" yaml:"rate_limit"`
	Concurrency  int           `envconfig:"FETCH_CONCURRENCY" yaml:"concurrency"`
	SniffCharset bool          `envconfig:"FETCH_SNIFF_CHARSET" yaml:"sniff_charset"`
}

// CacheConfig selects the content cache backing store.
type CacheConfig struct {
	Backend string `envconfig:"CACHE_BACKEND" yaml:"backend"` // "memory" or "sqlite"
	Path    string `envconfig:"CACHE_PATH" yaml:"path"`
}

// BuildConfig controls cache-build scheduling.
type BuildConfig struct {
	Workers       int  `envconfig:"BUILD_WORKERS" yaml:"workers"`
	AlwaysRebuild bool `envconfig:"BUILD_ALWAYS_REBUILD" yaml:"always_rebuild"`
}

// TransformConfig lists stock post-processing steps.
type TransformConfig struct {
	RemoveSelectors []string `envconfig:"POSTPROCESS_REMOVE" yaml:"remove_selectors"`
}

// DebugConfig enables the inlined-page dump.
type DebugConfig struct {
	DumpDir string `envconfig:"DEBUG_DUMP_DIR" yaml:"dump_dir"`
}

// RateLimitConfig limits API requests per client IP.
type RateLimitConfig struct {
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" yaml:"enabled"`
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" yaml:"requests_per_second"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" yaml:"burst"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" yaml:"level"`
	Development bool   `envconfig:"LOG_DEV" yaml:"development"`
}

// Load loads configuration from defaults and environment variables.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile layers defaults, the optional YAML file at path, and environment
// variables, in that order.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case "memory":
	case "sqlite":
		if c.Cache.Path == "" {
			return fmt.Errorf("CACHE_PATH is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown cache backend %q (must be memory or sqlite)", c.Cache.Backend)
	}
	if c.Fetch.Concurrency <= 0 {
		return fmt.Errorf("FETCH_CONCURRENCY must be positive, got %d", c.Fetch.Concurrency)
	}
	if c.Build.Workers <= 0 {
		return fmt.Errorf("BUILD_WORKERS must be positive, got %d", c.Build.Workers)
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive when rate limiting is enabled")
	}
	if c.Fetch.MaxRetries < 0 {
		return fmt.Errorf("FETCH_MAX_RETRIES cannot be negative")
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Fetch: FetchConfig{
			UserAgent:   "snapcache/1.0",
			Timeout:     30 * time.Second,
			MaxRetries:  0,
			RateLimit:   0,
			Concurrency: 8,
		},
		Cache: CacheConfig{
			Backend: "memory",
		},
		Build: BuildConfig{
			Workers: 4,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerSecond: 100,
			Burst:             200,
		},
	}
}
