package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	Port string

	StoreDriver string
	DatabaseURL string
	SQLitePath  string
	RedisURL    string

	ScheduleSource  string
	ScheduleCSV     string
	ScheduleRepoURL string
	ScheduleTZ      *time.Location
	// ScheduleWatch caches the CSV and reloads it on file change.
	ScheduleWatch   bool

	TickInterval   time.Duration
	WebhookTimeout time.Duration
	NumWorkers     int
	AutoStart      bool

	BreakerThreshold int
	BreakerCooldown  time.Duration
	APIRateLimit     int

	LogLevel slog.Level
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	loc, err := getEnvLocation("SCHEDULE_TZ")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port: getEnv("PORT", "8080"),

		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", "sqlite")),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		SQLitePath:  getEnv("SQLITE_PATH", "tv_monitor.db"),
		RedisURL:    getEnv("REDIS_URL", ""),

		ScheduleSource:  strings.ToLower(getEnv("SCHEDULE_SOURCE", "file")),
		ScheduleCSV:     getEnv("SCHEDULE_CSV", "shows.csv"),
		ScheduleRepoURL: getEnv("SCHEDULE_REPO_URL", ""),
		ScheduleTZ:      loc,
		ScheduleWatch:   getEnvBool("SCHEDULE_WATCH", true),

		TickInterval:   getEnvDuration("TICK_INTERVAL", time.Minute),
		WebhookTimeout: getEnvDuration("WEBHOOK_TIMEOUT", 10*time.Second),
		NumWorkers:     getEnvInt("NUM_WORKERS", 8),
		AutoStart:      getEnvBool("AUTO_START", true),

		BreakerThreshold: getEnvInt("BREAKER_THRESHOLD", 5),
		BreakerCooldown:  getEnvDuration("BREAKER_COOLDOWN", 5*time.Minute),
		APIRateLimit:     getEnvInt("API_RATE_LIMIT", 20),

		LogLevel: parseLevel(getEnv("LOG_LEVEL", "info")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects combinations the server cannot start with.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "sqlite":
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required for the sqlite store")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres store")
		}
	case "redis":
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required for the redis store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.ScheduleSource {
	case "file":
		if c.ScheduleCSV == "" {
			return errors.New("SCHEDULE_CSV is required for the file schedule source")
		}
	case "github":
		if c.ScheduleRepoURL == "" {
			return errors.New("SCHEDULE_REPO_URL is required for the github schedule source")
		}
	default:
		return fmt.Errorf("unknown SCHEDULE_SOURCE %q", c.ScheduleSource)
	}

	if c.TickInterval <= 0 {
		return errors.New("TICK_INTERVAL must be positive")
	}
	if c.WebhookTimeout <= 0 {
		return errors.New("WEBHOOK_TIMEOUT must be positive")
	}
	if c.BreakerCooldown <= 0 {
		return errors.New("BREAKER_COOLDOWN must be positive")
	}
	if c.NumWorkers <= 0 {
		return errors.New("NUM_WORKERS must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if n, err := strconv.Atoi(val); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}

func getEnvLocation(key string) (*time.Location, error) {
	val := os.Getenv(key)
	if val == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(val)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	return loc, nil
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
