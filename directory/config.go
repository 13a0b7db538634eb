package directory

// Config holds limits for directory operations.
type Config struct {
	// AddBatchSize is the number of items written per conditional update when
	// adding items. DynamoDB caps a condition expression at 4 KB, which one
	// key-absence predicate per item reaches a little above 100. New lowers
	// it to the repository's limit when the repository is an ItemLimiter.
	// Default: 100
	AddBatchSize int

	// RemoveBatchSize is the number of items removed per conditional update.
	// Default: 25
	RemoveBatchSize int

	// MaxBatchItems is the largest number of items accepted by a single
	// AddItems, RemoveItems or Move call. Default: 1000
	MaxBatchItems int

	// MaxNameLength bounds directory names. Default: 100
	MaxNameLength int

	// MaxDepth bounds the parent chain walked by the access resolver and the
	// ancestor check in Move. Default: 64
	MaxDepth int
}

// DefaultConfig returns the limits used in production.
func DefaultConfig() Config {
	return Config{
		AddBatchSize:    100,
		RemoveBatchSize: 25,
		MaxBatchItems:   1000,
		MaxNameLength:   100,
		MaxDepth:        64,
	}
}

func (c *Config) validate() {
	d := DefaultConfig()
	if c.AddBatchSize < 1 {
		c.AddBatchSize = d.AddBatchSize
	}
	if c.RemoveBatchSize < 1 {
		c.RemoveBatchSize = d.RemoveBatchSize
	}
	if c.MaxBatchItems < 1 {
		c.MaxBatchItems = d.MaxBatchItems
	}
	if c.MaxNameLength < 1 {
		c.MaxNameLength = d.MaxNameLength
	}
	if c.MaxDepth < 1 {
		c.MaxDepth = d.MaxDepth
	}
}
