// Package lasconfig holds the tree's construction-time configuration
// and validates it up front, surfacing a ConfigError rather than failing
// deep inside the engine.
package lasconfig

import "fmt"

// SplitPolicy selects how a full leaf divides its content on split.
type SplitPolicy int

const (
	// SortOnSplit compacts, sorts by key, and leaves both halves sorted.
	SortOnSplit SplitPolicy = iota
	// QuickPartition picks a percentile pivot and redistributes without
	// sorting either half.
	QuickPartition
)

func (p SplitPolicy) String() string {
	switch p {
	case SortOnSplit:
		return "SortOnSplit"
	case QuickPartition:
		return "QuickPartition"
	default:
		return fmt.Sprintf("SplitPolicy(%d)", int(p))
	}
}

// Config collects the tree's construction-time options.
//
// PageSize and PoolSize describe the Database (file and buffer pool) a
// tree is meant to run against rather than the tree itself: a Database
// is opened once with a chosen page size and pool capacity, and every
// tree registered against it shares both. They live here so a caller
// can read DefaultConfig() for suggested values to pass to
// OpenDatabase, and so Validate can confirm a tree's keys actually fit
// the page size the caller intends to use.
type Config struct {
	// PageSize is the page granularity in bytes. Default 4096.
	PageSize int
	// PoolSize is the number of buffer-pool cache slots. Default 64.
	PoolSize int
	// SplitPercentage is the N for which a leaf split keeps
	// ceil((N-1)/N) of the leaf's live tuples (counted, not weighed in
	// bytes) in the left leaf. Default 4, which keeps 3/4.
	SplitPercentage int
	// SplitPolicy selects the leaf split strategy.
	SplitPolicy SplitPolicy
	// MaxSoftFails is the number of fast-path misses tolerated before a
	// hard fast-path reset. Default 3.
	MaxSoftFails int
	// KeyIndex is the tuple field index holding the key.
	KeyIndex int
}

// ErrConfig is a ConfigError: invalid construction parameters.
type ErrConfig struct {
	Msg string
}

func (e *ErrConfig) Error() string { return "lasconfig: " + e.Msg }

// DefaultConfig returns the tree's default options.
func DefaultConfig() Config {
	return Config{
		PageSize:        4096,
		PoolSize:        64,
		SplitPercentage: 4,
		SplitPolicy:     SortOnSplit,
		MaxSoftFails:    3,
		KeyIndex:        0,
	}
}

// Validate fills in a zero PoolSize, SplitPercentage or MaxSoftFails
// with its default (PageSize is left as it is) and rejects
// parameters that cannot be satisfied. pageSize is the actual page size
// of the Database the tree will run against (its buffer pool's
// PageSize()), which may differ from c.PageSize when c is only being
// used for its non-page options; pageSize is always the one checked
// against keySize.
func (c *Config) Validate(pageSize, keySize int) error {
	d := DefaultConfig()
	if c.PoolSize == 0 {
		c.PoolSize = d.PoolSize
	}
	if c.SplitPercentage == 0 {
		c.SplitPercentage = d.SplitPercentage
	}
	if c.MaxSoftFails == 0 {
		c.MaxSoftFails = d.MaxSoftFails
	}

	// a leaf must fit its header, the two cached keys, and at least one
	// slot plus a minimal heap record.
	minPageSize := leafHeaderSize(keySize) + slotEntrySize + 1
	if pageSize < minPageSize {
		return &ErrConfig{Msg: fmt.Sprintf("page size %d too small to hold minimum leaf header and one slot (need >= %d)", pageSize, minPageSize)}
	}
	if c.PoolSize < 1 {
		return &ErrConfig{Msg: "pool size must be at least 1"}
	}
	if c.SplitPercentage < 2 {
		return &ErrConfig{Msg: "split percentage must be at least 2 (keep at least half)"}
	}
	if c.MaxSoftFails < 1 {
		return &ErrConfig{Msg: "max soft fails must be at least 1"}
	}
	return nil
}

// leafHeaderSize and slotEntrySize mirror the constants in package las;
// duplicated here (rather than imported, to avoid a config->las->config
// import cycle) purely for the early size sanity check.
func leafHeaderSize(keySize int) int {
	const fixedLeafHeader = 1 + 1 + 2 + 2 + 2 + 8 // disc+flags+slotCount+liveCount+heapEnd+nextLeafID
	return fixedLeafHeader + 2*keySize
}

const slotEntrySize = 4
