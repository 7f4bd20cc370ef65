package las

import (
	"sync"

	"lastree/buffer"
	"lastree/codec"
	"lastree/common"
	"lastree/lasconfig"
	"lastree/lasstat"
)

// Tree is a disk-backed ordered index over tuples of a caller-defined
// shape, keyed by one field. Lookups and range scans always go through a
// normal root-to-leaf descent; inserts try an O(1) fast path first and
// fall back to a descent (splitting as needed) on a miss. Leaves accept
// inserts in append order and are sorted lazily by a background worker
// once they leave the fast path, so a lookup against an unsorted leaf
// pays a linear scan instead of a binary search.
type Tree struct {
	pool       buffer.Pool
	tupleCodec codec.TupleCodec
	keySer     codec.KeySerializer
	cfg        lasconfig.Config
	stats      *lasstat.Counters
	sorter     *sorter

	rootMu sync.RWMutex
	rootId Pointer

	// structMu serializes every operation that can change the tree's
	// shape (a leaf or internal split, root creation). Point lookups,
	// range scans, and fast-path inserts do not take it: they rely on
	// descendToLeaf re-reading rootId and each node's data fresh on
	// every call, and on leafLocks for exclusive access to one leaf's
	// bytes. Concurrent structural changes are a good deal rarer than
	// point reads and writes, so serializing them costs little while
	// keeping the locking model simple.
	structMu sync.Mutex

	fpMu sync.Mutex
	fp   fastPath

	leafLocks *common.KeyedRWMutex[Pointer]
}

// NewTree formats a fresh head leaf and an internal root whose only child
// is that leaf, and returns a ready-to-use Tree.
func NewTree(pool buffer.Pool, tc codec.TupleCodec, ks codec.KeySerializer, cfg lasconfig.Config) (*Tree, error) {
	if err := cfg.Validate(pool.PageSize(), ks.Size()); err != nil {
		return nil, err
	}

	rootPage, err := pool.NewPage()
	if err != nil {
		return nil, wrapIO("new-tree", err)
	}
	InitLeaf(Pointer(rootPage.PageId), rootPage.Data, tc, ks, cfg.KeyIndex)
	pool.MarkDirty(rootPage.PageId)
	if err := pool.Unpin(rootPage.PageId); err != nil {
		return nil, wrapIO("new-tree", err)
	}

	headId := Pointer(rootPage.PageId)
	rootPage, err = pool.NewPage()
	if err != nil {
		return nil, wrapIO("new-tree", err)
	}
	InitInternal(Pointer(rootPage.PageId), rootPage.Data, ks, headId)
	pool.MarkDirty(rootPage.PageId)
	if err := pool.Unpin(rootPage.PageId); err != nil {
		return nil, wrapIO("new-tree", err)
	}

	return newTree(pool, tc, ks, cfg, Pointer(rootPage.PageId)), nil
}

// OpenTree resumes an existing tree whose root lives at rootId.
func OpenTree(pool buffer.Pool, tc codec.TupleCodec, ks codec.KeySerializer, cfg lasconfig.Config, rootId Pointer) (*Tree, error) {
	if err := cfg.Validate(pool.PageSize(), ks.Size()); err != nil {
		return nil, err
	}
	return newTree(pool, tc, ks, cfg, rootId), nil
}

func newTree(pool buffer.Pool, tc codec.TupleCodec, ks codec.KeySerializer, cfg lasconfig.Config, rootId Pointer) *Tree {
	t := &Tree{
		pool:       pool,
		tupleCodec: tc,
		keySer:     ks,
		cfg:        cfg,
		stats:      &lasstat.Counters{},
		rootId:     rootId,
		leafLocks:  &common.KeyedRWMutex[Pointer]{},
	}
	t.sorter = newSorter(t.stats, t.sortLeafById)
	return t
}

// RootID reports the page id callers should persist to reopen this tree
// later via OpenTree.
func (t *Tree) RootID() Pointer {
	t.rootMu.RLock()
	defer t.rootMu.RUnlock()
	return t.rootId
}

// Stats exposes the tree's observability counters.
func (t *Tree) Stats() *lasstat.Counters { return t.stats }

// Close drains the background sort worker. It does not close the
// underlying buffer pool or disk manager, which a Database owns.
func (t *Tree) Close() {
	t.sorter.Stop()
}

func (t *Tree) key(tuple any) common.Key { return t.tupleCodec.Field(tuple, t.cfg.KeyIndex) }

// Insert adds tuple, or overwrites the tuple currently stored at its key
// (last write wins; see Update).
func (t *Tree) Insert(tuple any) error {
	key := t.key(tuple)

	t.fpMu.Lock()
	canFast := t.fp.canUse(key)
	fpLeaf := t.fp.leaf
	t.fpMu.Unlock()

	if canFast {
		ok, min, max, err := t.tryFastInsert(fpLeaf, tuple)
		if err != nil {
			return err
		}
		if ok {
			t.stats.IncrFastPathHit()
			t.fpMu.Lock()
			if t.fp.valid && t.fp.leaf == fpLeaf {
				t.fp.widen(min, max)
			}
			t.fpMu.Unlock()
			return nil
		}
		// leaf was in range but full: fall through to a split, and
		// re-hint unconditionally once it completes.
		return t.insertViaDescent(tuple, key, true)
	}

	t.fpMu.Lock()
	hardReset := t.fp.recordSoftFail(t.cfg.MaxSoftFails)
	t.fpMu.Unlock()

	return t.insertViaDescent(tuple, key, hardReset)
}

// Update is Insert under the name callers use when they mean to replace
// an existing tuple's value rather than add a new key.
func (t *Tree) Update(tuple any) error { return t.Insert(tuple) }

// tryFastInsert attempts to insert tuple directly into the hinted leaf
// without descending the tree. ok is false when the leaf has no room,
// in which case the caller must fall back to a full descent and split.
func (t *Tree) tryFastInsert(leafId Pointer, tuple any) (ok bool, min, max common.Key, err error) {
	release := t.leafLocks.Lock(leafId)
	defer release()

	page, err := t.pool.GetMut(uint64(leafId))
	if err != nil {
		return false, nil, nil, wrapIO("fast-insert", err)
	}
	defer t.pool.Unpin(uint64(leafId))

	leaf := NewLeafView(leafId, page.Data, t.tupleCodec, t.keySer, t.cfg.KeyIndex)
	if !leaf.Insert(tuple) {
		return false, nil, nil, nil
	}
	t.pool.MarkDirty(uint64(leafId))
	if leaf.IsCold() {
		leaf.SetCold(false)
	}
	min, _ = leaf.MinKey()
	max, _ = leaf.MaxKey()
	return true, min, max, nil
}

// insertViaDescent performs a normal root-to-leaf descent, inserting
// tuple and splitting along the path as needed. When rehint is true the
// fast-path hint is pointed at the leaf the tuple ultimately lands in.
func (t *Tree) insertViaDescent(tuple any, key common.Key, rehint bool) error {
	t.structMu.Lock()
	defer t.structMu.Unlock()

	path, leafId, err := t.descendToLeaf(key)
	if err != nil {
		return err
	}

	release := t.leafLocks.Lock(leafId)
	page, err := t.pool.GetMut(uint64(leafId))
	if err != nil {
		release()
		return wrapIO("insert", err)
	}
	leaf := NewLeafView(leafId, page.Data, t.tupleCodec, t.keySer, t.cfg.KeyIndex)

	if leaf.Insert(tuple) {
		t.pool.MarkDirty(uint64(leafId))
		min, _ := leaf.MinKey()
		max, _ := leaf.MaxKey()
		t.pool.Unpin(uint64(leafId))
		release()
		if rehint {
			t.hardHint(leafId, min, max)
		}
		return nil
	}

	// leaf is full: split it, queue both halves for sorting, and
	// insert the tuple into whichever half now has room.
	newPage, err := t.pool.NewPage()
	if err != nil {
		t.pool.Unpin(uint64(leafId))
		release()
		return wrapIO("insert", err)
	}
	rightId := Pointer(newPage.PageId)
	newLeaf := InitLeaf(rightId, newPage.Data, t.tupleCodec, t.keySer, t.cfg.KeyIndex)

	splitKey := leaf.SplitInto(newLeaf, t.cfg)

	var target *LeafNode
	if key.Less(splitKey) {
		target = leaf
	} else {
		target = newLeaf
	}
	if !target.Insert(tuple) {
		invariantViolation("tuple did not fit either half of a freshly split leaf")
	}

	leaf.SetCold(true)
	newLeaf.SetCold(true)
	t.pool.MarkDirty(uint64(leafId))
	t.pool.MarkDirty(uint64(rightId))

	rightMin, _ := newLeaf.MinKey()
	rightMax, _ := newLeaf.MaxKey()

	t.pool.Unpin(uint64(leafId))
	t.pool.Unpin(uint64(rightId))
	release()

	t.sorter.Enqueue(leafId)
	t.sorter.Enqueue(rightId)

	if err := t.propagateSplit(path, splitKey, rightId); err != nil {
		return err
	}

	if rehint {
		if key.Less(splitKey) {
			leftMin, leftMax := t.leafBoundsLocked(leafId)
			t.hardHint(leafId, leftMin, leftMax)
		} else {
			t.hardHint(rightId, rightMin, rightMax)
		}
	}
	return nil
}

// leafBoundsLocked re-reads a leaf's current min/max after a structural
// change, under a fresh pin.
func (t *Tree) leafBoundsLocked(id Pointer) (common.Key, common.Key) {
	page, err := t.pool.GetMut(uint64(id))
	if err != nil {
		return nil, nil
	}
	defer t.pool.Unpin(uint64(id))
	leaf := NewLeafView(id, page.Data, t.tupleCodec, t.keySer, t.cfg.KeyIndex)
	min, _ := leaf.MinKey()
	max, _ := leaf.MaxKey()
	return min, max
}

func (t *Tree) hardHint(leaf Pointer, min, max common.Key) {
	if min == nil || max == nil {
		return
	}
	t.fpMu.Lock()
	prev, prevValid := t.fp.leaf, t.fp.valid
	t.fp.hardSet(leaf, min, max)
	t.fpMu.Unlock()

	if prevValid && prev != leaf {
		t.markColdAndEnqueue(prev)
	}
}

// markColdAndEnqueue flags a leaf as no longer receiving fast-path
// appends and hands it to the background sort worker. A leaf already
// sorted keeps its cold bit unchanged; it is still queued, and the
// worker skips it because it is sorted.
func (t *Tree) markColdAndEnqueue(id Pointer) {
	release := t.leafLocks.Lock(id)
	page, err := t.pool.GetMut(uint64(id))
	if err == nil {
		leaf := NewLeafView(id, page.Data, t.tupleCodec, t.keySer, t.cfg.KeyIndex)
		if !leaf.IsSorted() && !leaf.IsCold() {
			leaf.SetCold(true)
			t.pool.MarkDirty(uint64(id))
		}
		t.pool.Unpin(uint64(id))
	}
	release()
	t.sorter.Enqueue(id)
}

// descendToLeaf walks from the root to the leaf that should own key,
// returning the internal node ids visited along the way (root first).
func (t *Tree) descendToLeaf(key common.Key) ([]Pointer, Pointer, error) {
	t.rootMu.RLock()
	current := t.rootId
	t.rootMu.RUnlock()

	var path []Pointer
	for {
		page, err := t.pool.GetMut(uint64(current))
		if err != nil {
			return nil, 0, wrapIO("descend", err)
		}
		if isLeafPage(page.Data) {
			t.pool.Unpin(uint64(current))
			return path, current, nil
		}
		node := NewInternalView(current, page.Data, t.keySer)
		slot := node.ChildSlot(key)
		child := node.Child(slot)
		t.pool.Unpin(uint64(current))
		path = append(path, current)
		current = child
	}
}

// propagateSplit inserts (promoted, rightChild) into the parent named by
// the end of path, splitting that parent in turn if it's full, and
// recursing upward. An empty path means the node that just split was the
// root, which creates a new root.
func (t *Tree) propagateSplit(path []Pointer, promoted common.Key, rightChild Pointer) error {
	if len(path) == 0 {
		return t.createNewRoot(promoted, rightChild)
	}

	parentId := path[len(path)-1]
	rest := path[:len(path)-1]

	page, err := t.pool.GetMut(uint64(parentId))
	if err != nil {
		return wrapIO("propagate-split", err)
	}
	node := NewInternalView(parentId, page.Data, t.keySer)

	if !node.IsFull() {
		idx := node.ChildSlot(promoted)
		node.InsertAt(idx, promoted, rightChild)
		t.pool.MarkDirty(uint64(parentId))
		t.pool.Unpin(uint64(parentId))
		return nil
	}

	newPage, err := t.pool.NewPage()
	if err != nil {
		t.pool.Unpin(uint64(parentId))
		return wrapIO("propagate-split", err)
	}
	siblingId := Pointer(newPage.PageId)
	sibling := InitInternal(siblingId, newPage.Data, t.keySer, NilPointer)

	median := node.SplitInto(sibling)

	var target *InternalNode
	if promoted.Less(median) {
		target = node
	} else {
		target = sibling
	}
	idx := target.ChildSlot(promoted)
	target.InsertAt(idx, promoted, rightChild)

	t.pool.MarkDirty(uint64(parentId))
	t.pool.MarkDirty(uint64(siblingId))
	t.pool.Unpin(uint64(parentId))
	t.pool.Unpin(uint64(siblingId))

	return t.propagateSplit(rest, median, siblingId)
}

// createNewRoot moves the current root's content into a freshly
// allocated page and reformats the original root page, in place, as an
// internal node with two children: the relocated old content and
// rightChild. The root's page id never changes, so callers that cached
// RootID() before the split still resolve to the real root afterward.
func (t *Tree) createNewRoot(promoted common.Key, rightChild Pointer) error {
	t.rootMu.Lock()
	defer t.rootMu.Unlock()

	oldRootId := t.rootId
	oldPage, err := t.pool.GetMut(uint64(oldRootId))
	if err != nil {
		return wrapIO("new-root", err)
	}

	newLeftPage, err := t.pool.NewPage()
	if err != nil {
		t.pool.Unpin(uint64(oldRootId))
		return wrapIO("new-root", err)
	}
	copy(newLeftPage.Data, oldPage.Data)
	t.pool.MarkDirty(newLeftPage.PageId)
	if err := t.pool.Unpin(newLeftPage.PageId); err != nil {
		t.pool.Unpin(uint64(oldRootId))
		return wrapIO("new-root", err)
	}

	for i := range oldPage.Data {
		oldPage.Data[i] = 0
	}
	newRoot := InitInternal(oldRootId, oldPage.Data, t.keySer, Pointer(newLeftPage.PageId))
	newRoot.InsertAt(0, promoted, rightChild)
	t.pool.MarkDirty(uint64(oldRootId))
	return t.pool.Unpin(uint64(oldRootId))
}

// Get returns the tuple stored at key, if any.
func (t *Tree) Get(key common.Key) (any, bool, error) {
	_, leafId, err := t.descendToLeaf(key)
	if err != nil {
		return nil, false, err
	}

	release := t.leafLocks.RLock(leafId)
	defer release()

	page, err := t.pool.GetMut(uint64(leafId))
	if err != nil {
		return nil, false, wrapIO("get", err)
	}
	defer t.pool.Unpin(uint64(leafId))

	leaf := NewLeafView(leafId, page.Data, t.tupleCodec, t.keySer, t.cfg.KeyIndex)
	if leaf.IsSorted() {
		t.stats.IncrSortedLeafSearch()
	}
	tuple, ok := leaf.Get(key)
	return tuple, ok, nil
}

// Erase removes the tuple stored at key, if any, and reports whether one
// was present.
func (t *Tree) Erase(key common.Key) (bool, error) {
	t.structMu.Lock()
	defer t.structMu.Unlock()

	_, leafId, err := t.descendToLeaf(key)
	if err != nil {
		return false, err
	}

	release := t.leafLocks.Lock(leafId)
	defer release()

	page, err := t.pool.GetMut(uint64(leafId))
	if err != nil {
		return false, wrapIO("erase", err)
	}
	defer t.pool.Unpin(uint64(leafId))

	leaf := NewLeafView(leafId, page.Data, t.tupleCodec, t.keySer, t.cfg.KeyIndex)
	if _, present := leaf.Get(key); !present {
		return false, nil
	}

	if !leaf.Erase(key) {
		// no room for another tombstone: compact in place first.
		t.compactLocked(leaf)
		if !leaf.Erase(key) {
			invariantViolation("erase did not fit even after compaction")
		}
	}
	t.pool.MarkDirty(uint64(leafId))

	t.fpMu.Lock()
	if t.fp.valid && t.fp.leaf == leafId {
		t.fp.reset()
	}
	t.fpMu.Unlock()

	return true, nil
}

// compactLocked rewrites leaf's live tuples in sorted order, the same
// content Sort() would produce; called when a leaf is too full of
// tombstone and superseded-insert waste to accept one more record.
func (t *Tree) compactLocked(leaf *LeafNode) {
	leaf.Sort()
}

// Range returns the live tuples with key in [lo, hi], walking the leaf
// chain starting from the leaf that would hold lo.
func (t *Tree) Range(lo, hi common.Key) ([]any, error) {
	_, leafId, err := t.descendToLeaf(lo)
	if err != nil {
		return nil, err
	}

	var out []any
	for leafId != NilPointer {
		release := t.leafLocks.RLock(leafId)
		page, err := t.pool.GetMut(uint64(leafId))
		if err != nil {
			release()
			return nil, wrapIO("range", err)
		}
		leaf := NewLeafView(leafId, page.Data, t.tupleCodec, t.keySer, t.cfg.KeyIndex)
		if leaf.IsSorted() {
			t.stats.IncrSortedLeafSearch()
		}
		out = append(out, leaf.GetRange(lo, hi)...)
		next := leaf.NextID()
		max, hasMax := leaf.MaxKey()
		t.pool.Unpin(uint64(leafId))
		release()

		if next == NilPointer || (hasMax && hi.Less(max)) {
			break
		}
		leafId = next
	}
	return out, nil
}

// LeafStats walks the leaf chain and reports the number of leaves and
// their aggregate space utilization.
func (t *Tree) LeafStats() (lasstat.LeafStats, error) {
	leafId, err := t.descendLeftmost()
	if err != nil {
		return lasstat.LeafStats{}, err
	}

	var count int
	var usedBytes, totalBytes int64
	for leafId != NilPointer {
		page, err := t.pool.GetMut(uint64(leafId))
		if err != nil {
			return lasstat.LeafStats{}, wrapIO("leaf-stats", err)
		}
		leaf := NewLeafView(leafId, page.Data, t.tupleCodec, t.keySer, t.cfg.KeyIndex)
		count++
		totalBytes += int64(len(page.Data))
		usedBytes += int64(len(page.Data) - leaf.freeSpace())
		next := leaf.NextID()
		t.pool.Unpin(uint64(leafId))
		leafId = next
	}

	stats := lasstat.LeafStats{LeafCount: count}
	if totalBytes > 0 {
		stats.Utilization = float64(usedBytes) / float64(totalBytes)
	}
	return stats, nil
}

// descendLeftmost walks child 0 from the root down to the leftmost
// leaf, the leaf chain's starting point.
func (t *Tree) descendLeftmost() (Pointer, error) {
	t.rootMu.RLock()
	current := t.rootId
	t.rootMu.RUnlock()

	for {
		page, err := t.pool.GetMut(uint64(current))
		if err != nil {
			return 0, wrapIO("descend-leftmost", err)
		}
		if isLeafPage(page.Data) {
			t.pool.Unpin(uint64(current))
			return current, nil
		}
		node := NewInternalView(current, page.Data, t.keySer)
		child := node.Child(0)
		t.pool.Unpin(uint64(current))
		current = child
	}
}

// sortLeafById is the background worker's entry point: lock, pin, sort
// unless already sorted, mark dirty, release.
func (t *Tree) sortLeafById(id Pointer) error {
	release := t.leafLocks.Lock(id)
	defer release()

	page, err := t.pool.GetMut(uint64(id))
	if err != nil {
		return wrapIO("background-sort", err)
	}
	defer t.pool.Unpin(uint64(id))

	leaf := NewLeafView(id, page.Data, t.tupleCodec, t.keySer, t.cfg.KeyIndex)
	if leaf.IsSorted() {
		return nil
	}
	leaf.Sort()
	t.pool.MarkDirty(uint64(id))
	return nil
}
