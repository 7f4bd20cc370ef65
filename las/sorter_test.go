package las

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lastree/lasstat"
)

func TestColdQueueDedupsPendingIds(t *testing.T) {
	q := newColdQueue()
	require.True(t, q.push(Pointer(1)))
	require.True(t, q.push(Pointer(1)))
	require.True(t, q.push(Pointer(2)))

	ids := q.drainAll()
	require.ElementsMatch(t, []Pointer{1, 2}, ids)
	require.Empty(t, q.drainAll())
}

func TestSorterRunsEnqueuedWork(t *testing.T) {
	var mu sync.Mutex
	var sorted []Pointer

	s := newSorter(&lasstat.Counters{}, func(id Pointer) error {
		mu.Lock()
		sorted = append(sorted, id)
		mu.Unlock()
		return nil
	})
	defer s.Stop()

	s.Enqueue(Pointer(7))
	s.Enqueue(Pointer(8))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(sorted) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestSorterStopDrainsQueueBeforeExiting(t *testing.T) {
	var mu sync.Mutex
	var sorted []Pointer

	s := newSorter(&lasstat.Counters{}, func(id Pointer) error {
		mu.Lock()
		sorted = append(sorted, id)
		mu.Unlock()
		return nil
	})

	s.Enqueue(Pointer(1))
	s.Enqueue(Pointer(2))
	s.Enqueue(Pointer(3))
	s.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.ElementsMatch(t, []Pointer{1, 2, 3}, sorted)
}
