// Package config reads process configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chessdojo/dirtree/store"
)

// Config is built once at process start and passed to every component.
type Config struct {
	Environment string
	LogLevel    slog.Level

	Store store.Config

	// CascadeMaxRetries is how many times the cascade deleter attempts a
	// failing delete before reporting the record as failed.
	CascadeMaxRetries uint
	// CascadeBackoff is the first retry interval of the cascade deleter.
	CascadeBackoff time.Duration

	// MetricsNamespace prefixes every Prometheus metric name.
	MetricsNamespace string
}

// Load reads the configuration. Unset variables fall back to defaults;
// malformed values are errors.
func Load() (*Config, error) {
	env := getEnv("ENVIRONMENT", "dev")

	level, err := parseLevel(getEnv("LOG_LEVEL", defaultLevel(env)))
	if err != nil {
		return nil, err
	}

	defaults := store.DefaultConfig()
	cfg := &Config{
		Environment: env,
		LogLevel:    level,
		Store: store.Config{
			DirectoryTable: getEnv("DIRECTORY_TABLE", defaults.DirectoryTable),
			GameTable:      getEnv("GAME_TABLE", defaults.GameTable),
			OwnerIndex:     getEnv("OWNER_INDEX", ""),
			Breaker:        defaults.Breaker,
		},
		MetricsNamespace: getEnv("METRICS_NAMESPACE", "dirtree"),
	}

	var errs []string
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	retries, err := getUint("CASCADE_MAX_RETRIES", 5)
	collect(err)
	cfg.CascadeMaxRetries = uint(retries)

	cfg.CascadeBackoff, err = getDuration("CASCADE_BACKOFF", 100*time.Millisecond)
	collect(err)

	cfg.Store.Breaker.Enabled, err = getBool("BREAKER_ENABLED", env == "prod")
	collect(err)

	failures, err := getUint("BREAKER_MAX_FAILURES", uint64(defaults.Breaker.MaxFailures))
	collect(err)
	cfg.Store.Breaker.MaxFailures = uint32(failures)

	cfg.Store.Breaker.OpenTimeout, err = getDuration("BREAKER_OPEN_TIMEOUT", defaults.Breaker.OpenTimeout)
	collect(err)

	if len(errs) > 0 {
		return nil, fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// defaultLevel returns the log level used when LOG_LEVEL is unset.
func defaultLevel(env string) string {
	if env == "dev" {
		return "debug"
	}
	return "info"
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("config: LOG_LEVEL: %w", err)
	}
	return level, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getUint(key string, defaultValue uint64) (uint64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %q is not a non-negative integer", key, value)
	}
	return n, nil
}

func getBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %q is not a boolean", key, value)
	}
	return b, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue, fmt.Errorf("%s: %q is not a positive duration", key, value)
	}
	return d, nil
}
