package las

import (
	"sync"
	"time"

	"lastree/common"
	"lastree/lasstat"
)

// wakeTick bounds how long a push-then-broadcast that lands in the
// narrow window between the worker's empty-queue check and its
// Wait call can go unnoticed: the ticker re-broadcasts periodically so
// a missed wakeup is never more than one tick stale.
const wakeTick = 5 * time.Millisecond

// coldQueue is a deduplicated FIFO of leaf ids waiting for the
// background worker to sort them. A leaf already queued is not queued
// twice: the worker always re-reads its current contents when it runs,
// so a second enqueue before the first drains would do no extra work.
type coldQueue struct {
	mu      sync.Mutex
	order   []Pointer
	pending map[Pointer]struct{}
	closed  bool
}

func newColdQueue() *coldQueue {
	return &coldQueue{pending: make(map[Pointer]struct{})}
}

// push enqueues id if it is not already pending. Returns false once the
// queue has been closed for shutdown.
func (q *coldQueue) push(id Pointer) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	if _, ok := q.pending[id]; ok {
		return true
	}
	q.pending[id] = struct{}{}
	q.order = append(q.order, id)
	return true
}

// drainAll removes and returns every currently queued id.
func (q *coldQueue) drainAll() []Pointer {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.order
	q.order = nil
	q.pending = make(map[Pointer]struct{})
	return out
}

func (q *coldQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

// sorter owns the background worker that sorts cold leaves so the fast
// path and hard resets never pay sort cost inline. One worker goroutine
// runs per tree for its lifetime, woken by an Event whenever work is
// queued, and drained to completion on Stop rather than abandoned
// mid-queue.
type sorter struct {
	queue    *coldQueue
	wake     *common.Event
	stats    *lasstat.Counters
	sortLeaf func(id Pointer) error

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

func newSorter(stats *lasstat.Counters, sortLeaf func(id Pointer) error) *sorter {
	s := &sorter{
		queue:    newColdQueue(),
		wake:     common.NewEvent(),
		stats:    stats,
		sortLeaf: sortLeaf,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.tick()
	go s.run()
	return s
}

// tick periodically broadcasts on wake so the worker's check-then-wait
// against the queue can never miss a push for longer than one tick.
func (s *sorter) tick() {
	ticker := time.NewTicker(wakeTick)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.wake.Broadcast()
		}
	}
}

// Enqueue marks id as cold and wakes the worker.
func (s *sorter) Enqueue(id Pointer) {
	if s.queue.push(id) {
		s.wake.Broadcast()
	}
}

func (s *sorter) run() {
	defer close(s.done)
	for {
		ids := s.queue.drainAll()
		if len(ids) == 0 {
			select {
			case <-s.stopCh:
				// final drain: anything enqueued between the last
				// drainAll and stop being requested still gets sorted.
				for _, id := range s.queue.drainAll() {
					s.sortOne(id)
				}
				return
			default:
			}
			s.wake.Wait()
			continue
		}
		for _, id := range ids {
			s.sortOne(id)
		}
	}
}

func (s *sorter) sortOne(id Pointer) {
	if err := s.sortLeaf(id); err != nil {
		// a sort failure leaves the leaf unsorted and cold; the next
		// access pays linear-scan cost but correctness is unaffected.
		return
	}
	s.stats.IncrBackgroundSort()
}

// Stop signals the worker to drain any remaining queued leaves and
// exit, and blocks until it has done so.
func (s *sorter) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.wake.Broadcast()
	})
	<-s.done
}
