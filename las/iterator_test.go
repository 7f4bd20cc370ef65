package las

import (
	"testing"

	"github.com/stretchr/testify/require"

	"lastree/common"
	"lastree/lasconfig"
)

func TestIteratorWalksAscendingAcrossLeaves(t *testing.T) {
	tree := newTestTree(t, lasconfig.DefaultConfig())

	const n = 400
	for i := int64(0); i < n; i++ {
		require.NoError(t, tree.Insert(kvVal(i)))
	}

	it := NewIterator(tree, common.Int64Key(0), nil)
	require.NoError(t, it.Err())

	var seen []int64
	for {
		tuple, ok := it.Next()
		if !ok {
			break
		}
		seen = append(seen, int64(tuple.(kv).Key))
	}

	require.Len(t, seen, n)
	for i := range seen {
		require.Equal(t, int64(i), seen[i])
	}
}

func TestIteratorRespectsUpperBound(t *testing.T) {
	tree := newTestTree(t, lasconfig.DefaultConfig())
	for i := int64(0); i < 200; i++ {
		require.NoError(t, tree.Insert(kvVal(i)))
	}

	hi := common.Int64Key(30)
	it := NewIterator(tree, common.Int64Key(10), hi)

	var last int64 = -1
	count := 0
	for {
		tuple, ok := it.Next()
		if !ok {
			break
		}
		k := int64(tuple.(kv).Key)
		require.GreaterOrEqual(t, k, int64(10))
		require.LessOrEqual(t, k, int64(30))
		require.Greater(t, k, last)
		last = k
		count++
	}
	require.Equal(t, 21, count)
}
