// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/akhilsayshi/databot/domain/quota"
)

// Config is the root configuration structure.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Quota   QuotaConfig   `yaml:"quota"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig configures the status/metrics HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// StoreConfig configures the durable window store.
type StoreConfig struct {
	Driver string       `yaml:"driver"` // "memory", "redis" or "sqlite"
	Redis  RedisConfig  `yaml:"redis,omitempty"`
	SQLite SQLiteConfig `yaml:"sqlite,omitempty"`
}

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password,omitempty"`
	DB       int           `yaml:"db"`
	Timeout  time.Duration `yaml:"timeout"` // dial/read/write timeout
}

// SQLiteConfig configures the SQLite backend.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// QuotaConfig configures budgets and pacing. Thresholds are whole percents
// (80 means warn at 80% of the budget).
type QuotaConfig struct {
	DailyLimit       int64 `yaml:"daily_limit"`
	HourlyLimit      int64 `yaml:"hourly_limit"`
	PerMinuteLimit   int   `yaml:"per_minute_limit"`
	PerSecondLimit   int   `yaml:"per_second_limit"`
	DailyWarningPct  int   `yaml:"daily_warning_pct"`
	HourlyWarningPct int   `yaml:"hourly_warning_pct"`
	MinIntervalMs    int   `yaml:"min_interval_ms"`
}

// Limits converts the configuration into domain limits.
func (q QuotaConfig) Limits() quota.Limits {
	return quota.Limits{
		DailyLimit:          q.DailyLimit,
		HourlyLimit:         q.HourlyLimit,
		PerMinuteLimit:      q.PerMinuteLimit,
		PerSecondLimit:      q.PerSecondLimit,
		DailyWarnThreshold:  float64(q.DailyWarningPct) / 100,
		HourlyWarnThreshold: float64(q.HourlyWarningPct) / 100,
		MinInterval:         time.Duration(q.MinIntervalMs) * time.Millisecond,
	}
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // default: /metrics
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
// Useful for Docker deployments where no config file is mounted.
//
// Environment variables:
//
//	DATABOT_STORE_DRIVER       - Window store: memory, redis, sqlite (default: memory)
//	DATABOT_REDIS_ADDR         - Redis address (required when driver is redis)
//	DATABOT_REDIS_PASSWORD     - Redis password
//	DATABOT_REDIS_DB           - Redis database number (default: 0)
//	DATABOT_SQLITE_PATH        - SQLite path (default: databot.db)
//	DATABOT_DAILY_LIMIT        - Daily cost budget (default: 10000)
//	DATABOT_HOURLY_LIMIT       - Hourly cost budget (default: 1000)
//	DATABOT_PER_MINUTE_LIMIT   - Per-minute call budget (default: 300)
//	DATABOT_PER_SECOND_LIMIT   - Per-second call budget (default: 5)
//	DATABOT_DAILY_WARNING_PCT  - Daily warning threshold percent (default: 80)
//	DATABOT_HOURLY_WARNING_PCT - Hourly warning threshold percent (default: 80)
//	DATABOT_MIN_INTERVAL_MS    - Minimum inter-call spacing (default: 200)
//	DATABOT_SERVER_HOST        - Status server host (default: 0.0.0.0)
//	DATABOT_SERVER_PORT        - Status server port (default: 8080)
//	DATABOT_LOG_LEVEL          - debug, info, warn, error (default: info)
//	DATABOT_LOG_FORMAT         - json or console (default: json)
//	DATABOT_METRICS_ENABLED    - Enable /metrics endpoint (default: false)
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback tries to load from file, falls back to environment
// variables when the file does not exist.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

// applyEnvOverrides applies DATABOT_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATABOT_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("DATABOT_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("DATABOT_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("DATABOT_REDIS_ADDR"); v != "" {
		cfg.Store.Redis.Addr = v
	}
	if v := os.Getenv("DATABOT_REDIS_PASSWORD"); v != "" {
		cfg.Store.Redis.Password = v
	}
	if v := os.Getenv("DATABOT_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Store.Redis.DB = db
		}
	}
	if v := os.Getenv("DATABOT_SQLITE_PATH"); v != "" {
		cfg.Store.SQLite.Path = v
	}

	if v := os.Getenv("DATABOT_DAILY_LIMIT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Quota.DailyLimit = n
		}
	}
	if v := os.Getenv("DATABOT_HOURLY_LIMIT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Quota.HourlyLimit = n
		}
	}
	if v := os.Getenv("DATABOT_PER_MINUTE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Quota.PerMinuteLimit = n
		}
	}
	if v := os.Getenv("DATABOT_PER_SECOND_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Quota.PerSecondLimit = n
		}
	}
	if v := os.Getenv("DATABOT_DAILY_WARNING_PCT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Quota.DailyWarningPct = n
		}
	}
	if v := os.Getenv("DATABOT_HOURLY_WARNING_PCT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Quota.HourlyWarningPct = n
		}
	}
	if v := os.Getenv("DATABOT_MIN_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Quota.MinIntervalMs = n
		}
	}

	if v := os.Getenv("DATABOT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DATABOT_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	if v := os.Getenv("DATABOT_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("DATABOT_METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}

	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "memory"
	}
	if cfg.Store.Redis.Timeout == 0 {
		cfg.Store.Redis.Timeout = 3 * time.Second
	}
	if cfg.Store.SQLite.Path == "" {
		cfg.Store.SQLite.Path = "databot.db"
	}

	if cfg.Quota.DailyLimit == 0 {
		cfg.Quota.DailyLimit = 10000
	}
	if cfg.Quota.HourlyLimit == 0 {
		cfg.Quota.HourlyLimit = 1000
	}
	if cfg.Quota.PerMinuteLimit == 0 {
		cfg.Quota.PerMinuteLimit = 300
	}
	if cfg.Quota.PerSecondLimit == 0 {
		cfg.Quota.PerSecondLimit = 5
	}
	if cfg.Quota.DailyWarningPct == 0 {
		cfg.Quota.DailyWarningPct = 80
	}
	if cfg.Quota.HourlyWarningPct == 0 {
		cfg.Quota.HourlyWarningPct = 80
	}
	if cfg.Quota.MinIntervalMs == 0 {
		cfg.Quota.MinIntervalMs = 200
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func validate(cfg *Config) error {
	validDrivers := map[string]bool{"memory": true, "redis": true, "sqlite": true}
	if !validDrivers[cfg.Store.Driver] {
		return fmt.Errorf("store.driver must be 'memory', 'redis' or 'sqlite', got %q", cfg.Store.Driver)
	}
	if cfg.Store.Driver == "redis" && cfg.Store.Redis.Addr == "" {
		return fmt.Errorf("store.redis.addr is required when store.driver is 'redis'")
	}

	if cfg.Quota.DailyLimit < 0 {
		return fmt.Errorf("quota.daily_limit must not be negative")
	}
	if cfg.Quota.HourlyLimit < 0 {
		return fmt.Errorf("quota.hourly_limit must not be negative")
	}
	if cfg.Quota.DailyWarningPct < 0 || cfg.Quota.DailyWarningPct > 100 {
		return fmt.Errorf("quota.daily_warning_pct must be between 0 and 100, got %d", cfg.Quota.DailyWarningPct)
	}
	if cfg.Quota.HourlyWarningPct < 0 || cfg.Quota.HourlyWarningPct > 100 {
		return fmt.Errorf("quota.hourly_warning_pct must be between 0 and 100, got %d", cfg.Quota.HourlyWarningPct)
	}

	return nil
}
