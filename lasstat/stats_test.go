package lasstat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCountersIncrementIndependently(t *testing.T) {
	var c Counters

	c.IncrFastPathHit()
	c.IncrFastPathHit()
	c.IncrSortedLeafSearch()
	c.IncrBackgroundSort()
	c.IncrBackgroundSort()
	c.IncrBackgroundSort()

	require.Equal(t, int64(2), c.FastPathHits())
	require.Equal(t, int64(1), c.SortedLeafSearches())
	require.Equal(t, int64(3), c.BackgroundSortCount())
}
