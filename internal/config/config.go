package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

type Config struct {
	LogLevel        slog.Level
	HTTPAddr        string        `validate:"required"`
	ReadTimeout     time.Duration `validate:"gt=0"`
	WriteTimeout    time.Duration `validate:"gt=0"`
	ShutdownTimeout time.Duration `validate:"gt=0"`

	// BuildWorkers bounds the graph and index worker pools; 0 means GOMAXPROCS.
	BuildWorkers int `validate:"gte=0"`

	SnapshotBackend          string `validate:"oneof=file redis"`
	SnapshotDir              string
	SnapshotCompressionLevel int `validate:"gte=-2,lte=9"`
	SnapshotTolerateMissing  bool

	RedisAddr     string `validate:"required_if=SnapshotBackend redis"`
	RedisPassword string
	RedisDB       int           `validate:"gte=0"`
	RedisTTL      time.Duration `validate:"gte=0"`

	// RateLimitPerWindow of 0 disables rate limiting in serve mode.
	RateLimitPerWindow int           `validate:"gte=0"`
	RateLimitWindow    time.Duration `validate:"gt=0"`
	RateLimitWhitelist []string
}

// fileConfig is the optional YAML overlay named by TRANSITCAT_CONFIG. Set
// keys override the environment.
type fileConfig struct {
	LogLevel        string         `yaml:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
	HTTPAddr        string         `yaml:"http_addr"`
	ReadTimeout     *time.Duration `yaml:"read_timeout"`
	WriteTimeout    *time.Duration `yaml:"write_timeout"`
	ShutdownTimeout *time.Duration `yaml:"shutdown_timeout"`
	BuildWorkers    *int           `yaml:"build_workers"`

	Snapshot struct {
		Backend          string `yaml:"backend"`
		Dir              string `yaml:"dir"`
		CompressionLevel *int   `yaml:"compression_level"`
		TolerateMissing  *bool  `yaml:"tolerate_missing"`
	} `yaml:"snapshot"`

	Redis struct {
		Addr     string         `yaml:"addr"`
		Password string         `yaml:"password"`
		DB       *int           `yaml:"db"`
		TTL      *time.Duration `yaml:"ttl"`
	} `yaml:"redis"`

	RateLimit struct {
		PerWindow *int           `yaml:"per_window"`
		Window    *time.Duration `yaml:"window"`
		Whitelist []string       `yaml:"whitelist"`
	} `yaml:"rate_limit"`
}

func Load() (*Config, error) {
	cfg := &Config{
		LogLevel:        getLogLevelEnv("LOG_LEVEL", slog.LevelInfo),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		ReadTimeout:     getDurationEnv("READ_TIMEOUT", 10*time.Second),
		WriteTimeout:    getDurationEnv("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),

		BuildWorkers: getIntEnv("BUILD_WORKERS", 0),

		SnapshotBackend:          getEnv("SNAPSHOT_BACKEND", BackendFile),
		SnapshotDir:              getEnv("SNAPSHOT_DIR", ""),
		SnapshotCompressionLevel: getIntEnv("SNAPSHOT_COMPRESSION_LEVEL", 6),
		SnapshotTolerateMissing:  getBoolEnv("SNAPSHOT_TOLERATE_MISSING", false),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),
		RedisTTL:      getDurationEnv("REDIS_TTL", 0),

		RateLimitPerWindow: getIntEnv("RATE_LIMIT_PER_WINDOW", 120),
		RateLimitWindow:    getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		RateLimitWhitelist: getCSVEnv("RATE_LIMIT_WHITELIST"),
	}

	v := validator.New()
	if path := os.Getenv("TRANSITCAT_CONFIG"); path != "" {
		if err := cfg.overlay(path, v); err != nil {
			return nil, err
		}
	}
	if err := v.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) overlay(path string, v *validator.Validate) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	if err := v.Struct(&fc); err != nil {
		return fmt.Errorf("invalid config file %s: %w", path, err)
	}

	if fc.LogLevel != "" {
		c.LogLevel = parseLogLevel(fc.LogLevel, c.LogLevel)
	}
	setString(&c.HTTPAddr, fc.HTTPAddr)
	setValue(&c.ReadTimeout, fc.ReadTimeout)
	setValue(&c.WriteTimeout, fc.WriteTimeout)
	setValue(&c.ShutdownTimeout, fc.ShutdownTimeout)
	setValue(&c.BuildWorkers, fc.BuildWorkers)

	setString(&c.SnapshotBackend, fc.Snapshot.Backend)
	setString(&c.SnapshotDir, fc.Snapshot.Dir)
	setValue(&c.SnapshotCompressionLevel, fc.Snapshot.CompressionLevel)
	setValue(&c.SnapshotTolerateMissing, fc.Snapshot.TolerateMissing)

	setString(&c.RedisAddr, fc.Redis.Addr)
	setString(&c.RedisPassword, fc.Redis.Password)
	setValue(&c.RedisDB, fc.Redis.DB)
	setValue(&c.RedisTTL, fc.Redis.TTL)

	setValue(&c.RateLimitPerWindow, fc.RateLimit.PerWindow)
	setValue(&c.RateLimitWindow, fc.RateLimit.Window)
	if len(fc.RateLimit.Whitelist) > 0 {
		c.RateLimitWhitelist = fc.RateLimit.Whitelist
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setValue[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getLogLevelEnv(key string, defaultVal slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return parseLogLevel(v, defaultVal)
}

func parseLogLevel(v string, defaultVal slog.Level) slog.Level {
	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return defaultVal
	}
}

func getCSVEnv(key string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}

	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			result = append(result, t)
		}
	}
	return result
}
