// Package lasstat provides the per-tree observability counters: fast-path
// hits, sorted-leaf searches, background sort count, and the leaf_stats()
// utilization reporter. Named atomic counters rather than a generic
// string-keyed accumulator, since this tree has a fixed, known set of
// metrics rather than an open-ended one.
package lasstat

import "sync/atomic"

// Counters tracks fast-path hits, sorted-leaf searches, and background
// sort runs.
type Counters struct {
	fastPathHits        atomic.Int64
	sortedLeafSearches  atomic.Int64
	backgroundSortCount atomic.Int64
}

func (c *Counters) IncrFastPathHit()      { c.fastPathHits.Add(1) }
func (c *Counters) IncrSortedLeafSearch() { c.sortedLeafSearches.Add(1) }
func (c *Counters) IncrBackgroundSort()   { c.backgroundSortCount.Add(1) }

func (c *Counters) FastPathHits() int64        { return c.fastPathHits.Load() }
func (c *Counters) SortedLeafSearches() int64  { return c.sortedLeafSearches.Load() }
func (c *Counters) BackgroundSortCount() int64 { return c.backgroundSortCount.Load() }

// LeafStats reports the number of leaves in the chain and their
// aggregate byte utilization.
type LeafStats struct {
	LeafCount   int
	Utilization float64
}
