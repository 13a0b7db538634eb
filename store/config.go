package store

import "time"

// Config holds configuration for the Store.
type Config struct {
	// DirectoryTable is the name of the directory table, keyed by
	// owner (partition) and id (sort).
	// Default: "dirtree_directories"
	DirectoryTable string

	// GameTable is the name of the games table, keyed by cohort and id.
	// Only used by statements that maintain game back-references.
	// Default: "dirtree_games"
	GameTable string

	// OwnerIndex is an optional secondary index queried by ListDirectories.
	// Leave empty to query the table itself.
	OwnerIndex string

	// StatementBatchSize is the number of PartiQL statements sent per
	// BatchExecuteStatement call.
	// Default: 25
	// Max: 25 (DynamoDB limit)
	StatementBatchSize int

	// Breaker configures the circuit breaker placed in front of the client.
	Breaker BreakerConfig
}

// BreakerConfig configures the circuit breaker around DynamoDB calls.
type BreakerConfig struct {
	// Enabled turns the breaker on. Default: false
	Enabled bool

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 5
	MaxFailures uint32

	// OpenTimeout is how long the breaker stays open before letting a probe
	// request through. Default: 30s
	OpenTimeout time.Duration

	// HalfOpenRequests is the number of probe requests allowed while half
	// open. Default: 1
	HalfOpenRequests uint32
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		DirectoryTable:     "dirtree_directories",
		GameTable:          "dirtree_games",
		StatementBatchSize: maxStatementBatch,
		Breaker: BreakerConfig{
			MaxFailures:      5,
			OpenTimeout:      30 * time.Second,
			HalfOpenRequests: 1,
		},
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	d := DefaultConfig()
	if c.DirectoryTable == "" {
		c.DirectoryTable = d.DirectoryTable
	}
	if c.GameTable == "" {
		c.GameTable = d.GameTable
	}
	if c.StatementBatchSize < 1 || c.StatementBatchSize > maxStatementBatch {
		c.StatementBatchSize = maxStatementBatch
	}
	if c.Breaker.MaxFailures == 0 {
		c.Breaker.MaxFailures = d.Breaker.MaxFailures
	}
	if c.Breaker.OpenTimeout <= 0 {
		c.Breaker.OpenTimeout = d.Breaker.OpenTimeout
	}
	if c.Breaker.HalfOpenRequests == 0 {
		c.Breaker.HalfOpenRequests = d.Breaker.HalfOpenRequests
	}
}
