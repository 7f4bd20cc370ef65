// Package buffer implements the slotted-page cache in front of a paged
// file: LRU eviction, pin counts, dirty tracking. The WAL/transaction/
// freelist coupling a general-purpose buffer pool would carry is left
// out: no crash recovery, no multi-key transactions.
package buffer

import (
	"errors"
	"fmt"
	"sync"

	"lastree/common"
	"lastree/disk"
)

// ErrPoolExhausted is returned when every frame is pinned and a cache
// miss needs a victim.
var ErrPoolExhausted = errors.New("buffer: pool exhausted, all frames pinned")

// ErrBadPin is returned by Unpin for a page id the pool does not
// currently have cached. MarkDirty panics in the same case.
var ErrBadPin = errors.New("buffer: page not cached")

// Pool is the contract the tree engine consumes.
type Pool interface {
	// GetMut returns a pinned, mutable reference to pageId, loading it
	// from disk on a cache miss. The caller must call Unpin exactly once
	// on every exit path.
	GetMut(pageId uint64) (*disk.RawPage, error)
	Unpin(pageId uint64) error
	MarkDirty(pageId uint64)
	Flush(pageId uint64) error
	FlushAll() error
	Contains(pageId uint64) bool
	NewPage() (*disk.RawPage, error)
	PoolSize() int
	PageSize() int
}

type frame struct {
	page *disk.RawPage
}

// BufferPool is a process-wide cache of up to PoolSize pages, shared by
// every Tree registered against the Database that owns it.
type BufferPool struct {
	poolSize int
	pageSize int

	mu          sync.Mutex
	frames      []*frame
	pageMap     map[uint64]int
	emptyFrames []int
	dirty       map[uint64]struct{}

	replacer IReplacer
	disk     disk.IDiskManager
	opLocks  *common.KeyMutex[uint64]
}

var _ Pool = &BufferPool{}

func NewBufferPool(dm disk.IDiskManager, poolSize int) *BufferPool {
	empty := make([]int, poolSize)
	for i := range empty {
		empty[i] = i
	}

	return &BufferPool{
		poolSize:    poolSize,
		pageSize:    dm.PageSize(),
		frames:      make([]*frame, poolSize),
		pageMap:     make(map[uint64]int, poolSize),
		emptyFrames: empty,
		dirty:       make(map[uint64]struct{}),
		replacer:    NewLruReplacer(poolSize),
		disk:        dm,
		opLocks:     &common.KeyMutex[uint64]{},
	}
}

func (b *BufferPool) PoolSize() int { return b.poolSize }

func (b *BufferPool) PageSize() int { return b.pageSize }

func (b *BufferPool) Contains(pageId uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.pageMap[pageId]
	return ok
}

// GetMut loads pageId into a pinned frame, from cache if present,
// otherwise from disk into a free or evicted frame.
func (b *BufferPool) GetMut(pageId uint64) (*disk.RawPage, error) {
	release := b.opLocks.Lock(pageId)
	defer release()

	b.mu.Lock()
	if frameIdx, ok := b.pageMap[pageId]; ok {
		b.pin(frameIdx)
		p := b.frames[frameIdx].page
		b.mu.Unlock()
		return p, nil
	}

	if idx := b.reserveEmptyFrame(); idx >= 0 {
		b.frames[idx] = &frame{page: disk.NewRawPage(pageId, b.pageSize)}
		b.pageMap[pageId] = idx
		b.pin(idx)
		p := b.frames[idx].page
		b.mu.Unlock()

		if err := b.disk.ReadPage(pageId, p.Data); err != nil {
			b.mu.Lock()
			delete(b.pageMap, pageId)
			b.unreserveEmptyFrame(idx)
			b.replacer.Unpin(idx)
			b.mu.Unlock()
			return nil, fmt.Errorf("buffer: load page %d: %w", pageId, err)
		}
		return p, nil
	}
	b.mu.Unlock()

	victimIdx, err := b.evictVictim()
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.pageMap[pageId] = victimIdx
	p := b.frames[victimIdx].page
	p.Reset(pageId)
	b.mu.Unlock()

	if err := b.disk.ReadPage(pageId, p.Data); err != nil {
		b.mu.Lock()
		delete(b.pageMap, pageId)
		p.DecrPinCount()
		b.replacer.Unpin(victimIdx)
		b.mu.Unlock()
		return nil, fmt.Errorf("buffer: load page %d: %w", pageId, err)
	}
	return p, nil
}

// pin increments the frame's pin count and marks it unevictable. Caller
// holds b.mu.
func (b *BufferPool) pin(frameIdx int) {
	f := b.frames[frameIdx]
	f.page.IncrPinCount()
	b.replacer.Pin(frameIdx)
}

// Unpin decrements pageId's pin count, making the frame eligible for
// eviction once it reaches zero.
func (b *BufferPool) Unpin(pageId uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameIdx, ok := b.pageMap[pageId]
	if !ok {
		return ErrBadPin
	}

	p := b.frames[frameIdx].page
	if p.PinCount() <= 0 {
		panic(fmt.Sprintf("buffer: unpinning page %d with pin count %d", pageId, p.PinCount()))
	}

	p.DecrPinCount()
	if p.PinCount() == 0 {
		b.replacer.Unpin(frameIdx)
	}
	return nil
}

// MarkDirty records pageId's frame as dirty, to be written back on
// eviction or explicit flush.
func (b *BufferPool) MarkDirty(pageId uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameIdx, ok := b.pageMap[pageId]
	if !ok {
		panic(fmt.Sprintf("buffer: marking dirty a page not cached: %d", pageId))
	}
	b.frames[frameIdx].page.SetDirty()
	b.dirty[pageId] = struct{}{}
}

// Flush writes pageId back to disk if it is dirty.
func (b *BufferPool) Flush(pageId uint64) error {
	release := b.opLocks.Lock(pageId)
	defer release()

	b.mu.Lock()
	frameIdx, ok := b.pageMap[pageId]
	if !ok {
		b.mu.Unlock()
		return nil
	}
	p := b.frames[frameIdx].page
	if !p.IsDirty() {
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	p.RLatch()
	data := append([]byte(nil), p.Data...)
	p.RUnlatch()

	if err := b.disk.WritePage(data, pageId); err != nil {
		return fmt.Errorf("buffer: flush page %d: %w", pageId, err)
	}

	b.mu.Lock()
	p.SetClean()
	delete(b.dirty, pageId)
	b.mu.Unlock()
	return nil
}

// FlushAll writes back every page currently marked dirty.
func (b *BufferPool) FlushAll() error {
	b.mu.Lock()
	ids := make([]uint64, 0, len(b.dirty))
	for id := range b.dirty {
		ids = append(ids, id)
	}
	b.mu.Unlock()

	for _, id := range ids {
		if err := b.Flush(id); err != nil {
			return err
		}
	}
	return nil
}

// NewPage allocates a fresh page id and returns it pinned, ready for the
// caller to initialize (leaf/internal header) before unpinning.
func (b *BufferPool) NewPage() (*disk.RawPage, error) {
	newId := b.disk.NewPageId()

	b.mu.Lock()
	if idx := b.reserveEmptyFrame(); idx >= 0 {
		b.frames[idx] = &frame{page: disk.NewRawPage(newId, b.pageSize)}
		b.pageMap[newId] = idx
		b.pin(idx)
		p := b.frames[idx].page
		p.SetDirty()
		b.dirty[newId] = struct{}{}
		b.mu.Unlock()
		return p, nil
	}
	b.mu.Unlock()

	victimIdx, err := b.evictVictim()
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.frames[victimIdx].page
	p.Reset(newId)
	b.pageMap[newId] = victimIdx
	p.SetDirty()
	b.dirty[newId] = struct{}{}
	return p, nil
}

func (b *BufferPool) reserveEmptyFrame() int {
	if len(b.emptyFrames) == 0 {
		return -1
	}
	idx := b.emptyFrames[0]
	b.emptyFrames = b.emptyFrames[1:]
	return idx
}

func (b *BufferPool) unreserveEmptyFrame(idx int) {
	b.emptyFrames = append(b.emptyFrames, idx)
}

// evictVictim asks the replacer for a victim frame, flushes it if dirty,
// and returns its index, still pinned once (by this call) so the caller
// can safely reassign it to a new page id before anyone else observes
// the frame as evictable again. The caller is responsible for relying on
// that single pin instead of adding a second one.
func (b *BufferPool) evictVictim() (int, error) {
	b.mu.Lock()
	victimIdx, err := b.replacer.ChooseVictim()
	if err != nil {
		b.mu.Unlock()
		return 0, ErrPoolExhausted
	}

	victim := b.frames[victimIdx]
	if victim.page.PinCount() != 0 {
		b.mu.Unlock()
		panic(fmt.Sprintf("buffer: chosen victim has nonzero pin count: %d", victim.page.PinCount()))
	}

	b.pin(victimIdx)
	victimPageId := victim.page.PageId
	delete(b.pageMap, victimPageId)
	isDirty := victim.page.IsDirty()
	b.mu.Unlock()

	if isDirty {
		victim.page.RLatch()
		data := append([]byte(nil), victim.page.Data...)
		victim.page.RUnlatch()

		if err := b.disk.WritePage(data, victimPageId); err != nil {
			b.mu.Lock()
			victim.page.DecrPinCount()
			b.replacer.Unpin(victimIdx)
			b.pageMap[victimPageId] = victimIdx
			b.mu.Unlock()
			return 0, fmt.Errorf("buffer: evict page %d: %w", victimPageId, err)
		}

		b.mu.Lock()
		victim.page.SetClean()
		delete(b.dirty, victimPageId)
		b.mu.Unlock()
	}

	return victimIdx, nil
}
