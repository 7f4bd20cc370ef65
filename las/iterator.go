package las

import "lastree/common"

// Iterator walks a tree's tuples in ascending key order starting at a
// given key, following the leaf sibling chain one leaf at a time rather
// than materializing the whole range up front the way Range does.
type Iterator struct {
	tree *Tree
	cur  Pointer
	buf  []any
	pos  int
	hi   *common.Key
	done bool
	err  error
}

// NewIterator starts an iterator at the first live tuple with key >= from,
// stopping once a key beyond to is reached. A nil to means no upper
// bound.
func NewIterator(t *Tree, from common.Key, to common.Key) *Iterator {
	_, leafId, err := t.descendToLeaf(from)
	it := &Iterator{tree: t, cur: leafId, err: err}
	if to != nil {
		it.hi = &to
	}
	if err != nil {
		it.done = true
	}
	it.fill(&from)
	return it
}

func (it *Iterator) fill(lowerBound *common.Key) {
	for !it.done && it.pos >= len(it.buf) {
		if it.cur == NilPointer {
			it.done = true
			return
		}

		release := it.tree.leafLocks.RLock(it.cur)
		page, err := it.tree.pool.GetMut(uint64(it.cur))
		if err != nil {
			release()
			it.err = wrapIO("iterate", err)
			it.done = true
			return
		}
		leaf := NewLeafView(it.cur, page.Data, it.tree.tupleCodec, it.tree.keySer, it.tree.cfg.KeyIndex)

		it.buf = leaf.GetRangeBounded(lowerBound, it.hi)
		it.pos = 0

		next := leaf.NextID()
		max, hasMax := leaf.MaxKey()
		it.tree.pool.Unpin(uint64(it.cur))
		release()

		if it.hi != nil && hasMax && (*it.hi).Less(max) {
			it.cur = NilPointer
		} else {
			it.cur = next
		}

		// subsequent leaves in the chain start fresh: nothing before
		// their own min key should ever be filtered out.
		lowerBound = nil
	}
}

// Next advances to the next tuple and reports whether one was available.
func (it *Iterator) Next() (any, bool) {
	if it.pos < len(it.buf) {
		t := it.buf[it.pos]
		it.pos++
		if it.pos >= len(it.buf) {
			it.fill(nil)
		}
		return t, true
	}
	return nil, false
}

// Err reports the first I/O error encountered while iterating, if any.
func (it *Iterator) Err() error { return it.err }
