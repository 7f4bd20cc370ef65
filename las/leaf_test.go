package las

import (
	"testing"

	"github.com/stretchr/testify/require"

	"lastree/common"
	"lastree/lasconfig"
)

func TestLeafInsertGetRoundTrip(t *testing.T) {
	leaf := newTestLeafPage(256)

	require.True(t, leaf.Insert(kvVal(10)))
	require.True(t, leaf.Insert(kvVal(5)))
	require.True(t, leaf.Insert(kvVal(20)))
	require.False(t, leaf.IsSorted())

	tuple, ok := leaf.Get(common.Int64Key(5))
	require.True(t, ok)
	require.Equal(t, kvVal(5), tuple)

	_, ok = leaf.Get(common.Int64Key(999))
	require.False(t, ok)
}

func TestLeafUpdateIsLastWriteWins(t *testing.T) {
	leaf := newTestLeafPage(256)
	require.True(t, leaf.Insert(kv{Key: 1, Value: "first"}))
	require.True(t, leaf.Update(kv{Key: 1, Value: "second"}))

	tuple, ok := leaf.Get(common.Int64Key(1))
	require.True(t, ok)
	require.Equal(t, "second", tuple.(kv).Value)
	require.Equal(t, 1, leaf.LiveCount())
}

func TestLeafEraseTombstonesHideKey(t *testing.T) {
	leaf := newTestLeafPage(256)
	require.True(t, leaf.Insert(kvVal(1)))
	require.True(t, leaf.Insert(kvVal(2)))
	require.True(t, leaf.Erase(common.Int64Key(1)))

	_, ok := leaf.Get(common.Int64Key(1))
	require.False(t, ok)
	_, ok = leaf.Get(common.Int64Key(2))
	require.True(t, ok)
	require.Equal(t, 1, leaf.LiveCount())
}

func TestLeafEraseThenReinsertIsVisible(t *testing.T) {
	leaf := newTestLeafPage(256)
	require.True(t, leaf.Insert(kvVal(1)))
	require.True(t, leaf.Erase(common.Int64Key(1)))
	require.True(t, leaf.Insert(kvVal(1)))

	tuple, ok := leaf.Get(common.Int64Key(1))
	require.True(t, ok)
	require.Equal(t, kvVal(1), tuple)
	require.Equal(t, 1, leaf.LiveCount())
}

func TestLeafCompactDropsSupersededAndTombstoned(t *testing.T) {
	leaf := newTestLeafPage(256)
	require.True(t, leaf.Insert(kv{Key: 1, Value: "a"}))
	require.True(t, leaf.Insert(kv{Key: 2, Value: "b"}))
	require.True(t, leaf.Insert(kv{Key: 1, Value: "a-updated"}))
	require.True(t, leaf.Erase(common.Int64Key(2)))

	live := leaf.Compact()
	require.Len(t, live, 1)
	require.Equal(t, "a-updated", live[0].(kv).Value)
}

func TestLeafGetRangeIsAscendingAndInclusive(t *testing.T) {
	leaf := newTestLeafPage(256)
	for _, k := range []int64{5, 1, 3, 9, 7} {
		require.True(t, leaf.Insert(kvVal(k)))
	}

	got := leaf.GetRange(common.Int64Key(3), common.Int64Key(7))
	require.Len(t, got, 3)
	require.Equal(t, int64(3), int64(got[0].(kv).Key))
	require.Equal(t, int64(5), int64(got[1].(kv).Key))
	require.Equal(t, int64(7), int64(got[2].(kv).Key))
}

func TestLeafSortMarksSortedAndPreservesContent(t *testing.T) {
	leaf := newTestLeafPage(256)
	for _, k := range []int64{9, 1, 5, 3} {
		require.True(t, leaf.Insert(kvVal(k)))
	}

	leaf.Sort()
	require.True(t, leaf.IsSorted())

	got := leaf.GetRange(common.Int64Key(0), common.Int64Key(100))
	require.Len(t, got, 4)
	for i := 1; i < len(got); i++ {
		require.Less(t, int64(got[i-1].(kv).Key), int64(got[i].(kv).Key))
	}
}

func TestLeafSplitIntoSortOnSplit(t *testing.T) {
	leaf := newTestLeafPage(256)
	for k := int64(0); k < 8; k++ {
		require.True(t, leaf.Insert(kvVal(k)))
	}

	right := newTestLeafPage(256)
	right.id = Pointer(2)
	cfg := lasconfig.DefaultConfig()
	cfg.SplitPolicy = lasconfig.SortOnSplit
	splitKey := leaf.SplitInto(right, cfg)

	require.True(t, leaf.IsSorted())
	require.True(t, right.IsSorted())
	require.Equal(t, Pointer(2), leaf.NextID())

	leftTuples := leaf.Compact()
	rightTuples := right.Compact()
	require.Equal(t, 8, len(leftTuples)+len(rightTuples))

	for _, tup := range leftTuples {
		require.True(t, tup.(kv).Key.Less(splitKey) || common.Equal(tup.(kv).Key, splitKey))
	}
	for _, tup := range rightTuples {
		require.False(t, tup.(kv).Key.Less(splitKey))
	}
}

func TestLeafSplitIntoQuickPartitionNeverSortsHalves(t *testing.T) {
	leaf := newTestLeafPage(256)
	insertOrder := []int64{5, 1, 8, 2, 7, 3, 6, 0}
	for _, k := range insertOrder {
		require.True(t, leaf.Insert(kvVal(k)))
	}

	right := newTestLeafPage(256)
	right.id = Pointer(2)
	cfg := lasconfig.DefaultConfig()
	cfg.SplitPolicy = lasconfig.QuickPartition
	leaf.SplitInto(right, cfg)

	require.False(t, leaf.IsSorted())
	require.False(t, right.IsSorted())

	leftTuples := leaf.Compact()
	rightTuples := right.Compact()
	require.Equal(t, 8, len(leftTuples)+len(rightTuples))
}

func TestLeafInsertReturnsFalseWhenFull(t *testing.T) {
	leaf := newTestLeafPage(64)
	inserted := 0
	for k := int64(0); k < 1000; k++ {
		if !leaf.Insert(kvVal(k)) {
			break
		}
		inserted++
	}
	require.Greater(t, inserted, 0)
	require.False(t, leaf.Insert(kvVal(9999)))
}
