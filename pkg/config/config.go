package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	DevelopmentAPIBaseURL = "http://localhost:5000/api"
	ProductionAPIBaseURL  = "https://micorcourses-backend.onrender.com/api"
)

type Config struct {
	Environment string `yaml:"environment"`

	API struct {
		BaseURL   string        `yaml:"base_url"`
		Timeout   time.Duration `yaml:"timeout"`
		UserAgent string        `yaml:"user_agent"`

		// BreakerThreshold 0 disables the circuit breaker.
		BreakerThreshold int           `yaml:"breaker_threshold"`
		BreakerCooldown  time.Duration `yaml:"breaker_cooldown"`
	} `yaml:"api"`

	Storage struct {
		Backend   string        `yaml:"backend"` // memory, file, sqlite or redis
		Dir       string        `yaml:"dir"`
		CookieTTL time.Duration `yaml:"cookie_ttl"`
	} `yaml:"storage"`

	Redis struct {
		Address   string `yaml:"address"`
		Password  string `yaml:"password"`
		DB        int    `yaml:"db"`
		PoolSize  int    `yaml:"pool_size"`
		KeyPrefix string `yaml:"key_prefix"`
	} `yaml:"redis"`

	Progress struct {
		EndTolerance time.Duration `yaml:"end_tolerance"`
	} `yaml:"progress"`

	Catalog struct {
		CacheTTL time.Duration `yaml:"cache_ttl"`
	} `yaml:"catalog"`

	Backup struct {
		Dir           string        `yaml:"dir"`
		Interval      time.Duration `yaml:"interval"`
		RetentionDays int           `yaml:"retention_days"`
	} `yaml:"backup"`

	Monitoring struct {
		PrometheusEnabled bool   `yaml:"prometheus_enabled"`
		PrometheusAddress string `yaml:"prometheus_address"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled    bool    `yaml:"enabled"`
		JaegerURL  string  `yaml:"jaeger_url"`
		SampleRate float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	RateLimiting struct {
		Enabled           bool    `yaml:"enabled"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"rate_limiting"`
}

// IsProduction reports whether the client targets the deployed backend.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production") || strings.EqualFold(c.Environment, "prod")
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// API
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url must not be empty")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute URL")
	}
	if c.IsProduction() && u.Scheme != "https" {
		return fmt.Errorf("api.base_url must use https in production")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be > 0")
	}
	if c.API.BreakerThreshold < 0 {
		return fmt.Errorf("api.breaker_threshold must be >= 0")
	}
	if c.API.BreakerThreshold > 0 && c.API.BreakerCooldown <= 0 {
		return fmt.Errorf("api.breaker_cooldown must be > 0 when the breaker is enabled")
	}

	// Storage
	switch c.Storage.Backend {
	case "memory":
	case "file", "sqlite":
		if c.Storage.Dir == "" {
			return fmt.Errorf("storage.dir must not be empty when storage.backend=%s", c.Storage.Backend)
		}
	case "redis":
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when storage.backend=redis")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when storage.backend=redis")
		}
	default:
		return fmt.Errorf("storage.backend must be one of memory, file, sqlite, redis (got %q)", c.Storage.Backend)
	}
	if c.Storage.CookieTTL <= 0 {
		return fmt.Errorf("storage.cookie_ttl must be > 0")
	}

	if c.Progress.EndTolerance < 0 {
		return fmt.Errorf("progress.end_tolerance must be >= 0")
	}
	if c.Catalog.CacheTTL < 0 {
		return fmt.Errorf("catalog.cache_ttl must be >= 0")
	}
	if c.Backup.RetentionDays < 0 {
		return fmt.Errorf("backup.retention_days must be >= 0")
	}

	// Monitoring
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusAddress == "" {
		return fmt.Errorf("monitoring.prometheus_address must not be empty when prometheus_enabled=true")
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing is enabled")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within [0,1]")
		}
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.Burst <= 0 {
			return fmt.Errorf("rate_limiting.burst must be > 0 when rate limiting is enabled")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Environment = "development"

	cfg.API.BaseURL = DevelopmentAPIBaseURL
	cfg.API.Timeout = 30 * time.Second
	cfg.API.UserAgent = "mcourses/1.0"
	cfg.API.BreakerCooldown = 30 * time.Second

	cfg.Storage.Backend = "file"
	cfg.Storage.Dir = defaultStorageDir()
	cfg.Storage.CookieTTL = 30 * 24 * time.Hour

	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10
	cfg.Redis.KeyPrefix = "microcourses:"

	cfg.Progress.EndTolerance = 500 * time.Millisecond
	cfg.Catalog.CacheTTL = time.Minute

	cfg.Backup.Dir = filepath.Join(cfg.Storage.Dir, "backups")
	cfg.Backup.Interval = 0
	cfg.Backup.RetentionDays = 30

	cfg.Monitoring.PrometheusEnabled = false
	cfg.Monitoring.PrometheusAddress = "127.0.0.1:9464"

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.SampleRate = 1.0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "console"

	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.RequestsPerSecond = 20
	cfg.RateLimiting.Burst = 40

	return cfg
}

func defaultStorageDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "microcourses")
	}
	return ".microcourses"
}

func (c *Config) applyEnvOverrides() {
	if env := os.Getenv("MICROCOURSES_ENVIRONMENT"); env != "" {
		c.Environment = env
		if c.IsProduction() && c.API.BaseURL == DevelopmentAPIBaseURL {
			c.API.BaseURL = ProductionAPIBaseURL
		}
	}
	if base := os.Getenv("MICROCOURSES_API_BASE_URL"); base != "" {
		c.API.BaseURL = base
	}
	if level := os.Getenv("MICROCOURSES_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if backend := os.Getenv("MICROCOURSES_STORAGE_BACKEND"); backend != "" {
		c.Storage.Backend = backend
	}
	if dir := os.Getenv("MICROCOURSES_STORAGE_DIR"); dir != "" {
		if c.Backup.Dir == filepath.Join(c.Storage.Dir, "backups") {
			c.Backup.Dir = filepath.Join(dir, "backups")
		}
		c.Storage.Dir = dir
	}
	if addr := os.Getenv("MICROCOURSES_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
	}
}
