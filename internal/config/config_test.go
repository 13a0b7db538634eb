package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsetAll clears every variable Load reads so the host environment cannot
// leak into a test.
func unsetAll(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ENVIRONMENT", "LOG_LEVEL", "DIRECTORY_TABLE", "GAME_TABLE", "OWNER_INDEX",
		"METRICS_NAMESPACE", "CASCADE_MAX_RETRIES", "CASCADE_BACKOFF",
		"BREAKER_ENABLED", "BREAKER_MAX_FAILURES", "BREAKER_OPEN_TIMEOUT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	unsetAll(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Environment)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "dirtree_directories", cfg.Store.DirectoryTable)
	assert.Equal(t, "dirtree_games", cfg.Store.GameTable)
	assert.Empty(t, cfg.Store.OwnerIndex)
	assert.Equal(t, uint(5), cfg.CascadeMaxRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.CascadeBackoff)
	assert.False(t, cfg.Store.Breaker.Enabled)
	assert.Equal(t, uint32(5), cfg.Store.Breaker.MaxFailures)
	assert.Equal(t, 30*time.Second, cfg.Store.Breaker.OpenTimeout)
	assert.Equal(t, "dirtree", cfg.MetricsNamespace)
}

func TestLoad_Overrides(t *testing.T) {
	unsetAll(t)
	t.Setenv("ENVIRONMENT", "prod")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("DIRECTORY_TABLE", "prod-directories")
	t.Setenv("GAME_TABLE", "prod-games")
	t.Setenv("OWNER_INDEX", "OwnerIdx")
	t.Setenv("CASCADE_MAX_RETRIES", "8")
	t.Setenv("CASCADE_BACKOFF", "250ms")
	t.Setenv("BREAKER_MAX_FAILURES", "3")
	t.Setenv("BREAKER_OPEN_TIMEOUT", "1m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, slog.LevelWarn, cfg.LogLevel)
	assert.Equal(t, "prod-directories", cfg.Store.DirectoryTable)
	assert.Equal(t, "prod-games", cfg.Store.GameTable)
	assert.Equal(t, "OwnerIdx", cfg.Store.OwnerIndex)
	assert.Equal(t, uint(8), cfg.CascadeMaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.CascadeBackoff)
	assert.True(t, cfg.Store.Breaker.Enabled, "breaker defaults on in prod")
	assert.Equal(t, uint32(3), cfg.Store.Breaker.MaxFailures)
	assert.Equal(t, time.Minute, cfg.Store.Breaker.OpenTimeout)
}

func TestLoad_ProdDefaultsToInfo(t *testing.T) {
	unsetAll(t)
	t.Setenv("ENVIRONMENT", "prod")
	t.Setenv("BREAKER_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.False(t, cfg.Store.Breaker.Enabled)
}

func TestLoad_Malformed(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"LOG_LEVEL", "loud"},
		{"CASCADE_MAX_RETRIES", "-1"},
		{"CASCADE_BACKOFF", "soon"},
		{"BREAKER_ENABLED", "maybe"},
		{"BREAKER_MAX_FAILURES", "many"},
		{"BREAKER_OPEN_TIMEOUT", "-5s"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			unsetAll(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}
