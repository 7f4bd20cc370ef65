package las

import (
	"encoding/binary"
	"errors"
	"sort"

	"lastree/codec"
	"lastree/common"
	"lastree/lasconfig"
)

// op tags a heap record as an append (Insert) or a tombstone (Delete).
type op uint8

const (
	opInsert op = 0
	opDelete op = 1
)

const (
	flagSorted byte = 1 << 0
	flagCold   byte = 1 << 1
)

// fixed leaf header offsets:
//
//	0  disc          1 byte
//	1  flags         1 byte
//	2  slotCount     uint16
//	4  liveCount     uint16
//	6  heapEnd       uint16
//	8  nextLeafID    uint64
//	16 minKey        keySize bytes (valid iff liveCount > 0)
//	16+keySize maxKey keySize bytes
const (
	offFlags      = 1
	offSlotCount  = 2
	offLiveCount  = 4
	offHeapEnd    = 6
	offNextLeafID = 8
	offMinKey     = 16
)

const slotEntrySize = 4 // offset uint16 + length uint16

// leafHeaderSize returns the fixed header length for a given key size.
func leafHeaderSize(keySize int) int { return offMinKey + 2*keySize }

// ErrLeafFull describes a leaf with no room for another record. Insert
// and Erase report that case with a false return rather than this error;
// Tree.Insert answers it with a split and Tree.Erase with a compaction.
var ErrLeafFull = errors.New("las: leaf has insufficient space")

// LeafNode is a transient view over a pinned page's bytes implementing
// the lazy-sort leaf contract. It never outlives the pin
// that produced its Data slice.
type LeafNode struct {
	id       Pointer
	data     []byte
	codec    codec.TupleCodec
	keySer   codec.KeySerializer
	keyIndex int
}

// NewLeafView wraps a pinned page's bytes. Use InitLeaf first if the
// page is freshly allocated.
func NewLeafView(id Pointer, data []byte, tc codec.TupleCodec, ks codec.KeySerializer, keyIndex int) *LeafNode {
	return &LeafNode{id: id, data: data, codec: tc, keySer: ks, keyIndex: keyIndex}
}

// InitLeaf formats a freshly allocated page as an empty, uncold, unsorted
// leaf with no next link.
func InitLeaf(id Pointer, data []byte, tc codec.TupleCodec, ks codec.KeySerializer, keyIndex int) *LeafNode {
	for i := range data {
		data[i] = 0
	}
	data[0] = discLeaf
	l := &LeafNode{id: id, data: data, codec: tc, keySer: ks, keyIndex: keyIndex}
	l.setSlotCount(0)
	l.setLiveCount(0)
	l.setHeapEnd(uint16(len(data)))
	l.SetNextID(NilPointer)
	return l
}

func (l *LeafNode) ID() Pointer { return l.id }
func (l *LeafNode) IsLeaf() bool { return true }

func (l *LeafNode) headerSize() int { return leafHeaderSize(l.keySer.Size()) }

func (l *LeafNode) flags() byte                { return l.data[offFlags] }
func (l *LeafNode) setFlags(f byte)             { l.data[offFlags] = f }
func (l *LeafNode) IsSorted() bool              { return l.flags()&flagSorted != 0 }
func (l *LeafNode) IsCold() bool                { return l.flags()&flagCold != 0 }
func (l *LeafNode) SetCold(cold bool) {
	if cold {
		l.setFlags(l.flags() | flagCold)
	} else {
		l.setFlags(l.flags() &^ flagCold)
	}
}
func (l *LeafNode) setSorted(sorted bool) {
	if sorted {
		l.setFlags(l.flags() | flagSorted)
	} else {
		l.setFlags(l.flags() &^ flagSorted)
	}
}

func (l *LeafNode) SlotCount() int { return int(binary.BigEndian.Uint16(l.data[offSlotCount:])) }
func (l *LeafNode) setSlotCount(n int) {
	binary.BigEndian.PutUint16(l.data[offSlotCount:], uint16(n))
}

func (l *LeafNode) LiveCount() int { return int(binary.BigEndian.Uint16(l.data[offLiveCount:])) }
func (l *LeafNode) setLiveCount(n int) {
	binary.BigEndian.PutUint16(l.data[offLiveCount:], uint16(n))
}

func (l *LeafNode) heapEnd() int { return int(binary.BigEndian.Uint16(l.data[offHeapEnd:])) }
func (l *LeafNode) setHeapEnd(n uint16) { binary.BigEndian.PutUint16(l.data[offHeapEnd:], n) }

func (l *LeafNode) NextID() Pointer { return Pointer(binary.BigEndian.Uint64(l.data[offNextLeafID:])) }
func (l *LeafNode) SetNextID(p Pointer) { putPointer(l.data[offNextLeafID:], p) }

// MinKey/MaxKey report the cached bounds; ok is false when the leaf has
// no live tuples.
func (l *LeafNode) MinKey() (common.Key, bool) {
	if l.LiveCount() == 0 {
		return nil, false
	}
	return l.keySer.Deserialize(l.data[offMinKey:]), true
}

func (l *LeafNode) MaxKey() (common.Key, bool) {
	if l.LiveCount() == 0 {
		return nil, false
	}
	off := offMinKey + l.keySer.Size()
	return l.keySer.Deserialize(l.data[off:]), true
}

func (l *LeafNode) setMinKey(k common.Key) { l.keySer.Serialize(l.data[offMinKey:], k) }
func (l *LeafNode) setMaxKey(k common.Key) {
	l.keySer.Serialize(l.data[offMinKey+l.keySer.Size():], k)
}

// --- slot array: slot[i] = (offset uint16, length uint16), insertion order ---

func (l *LeafNode) slotOffset(i int) int { return l.headerSize() + i*slotEntrySize }

func (l *LeafNode) getSlot(i int) (offset, length uint16) {
	o := l.slotOffset(i)
	return binary.BigEndian.Uint16(l.data[o:]), binary.BigEndian.Uint16(l.data[o+2:])
}

func (l *LeafNode) setSlot(i int, offset, length uint16) {
	o := l.slotOffset(i)
	binary.BigEndian.PutUint16(l.data[o:], offset)
	binary.BigEndian.PutUint16(l.data[o+2:], length)
}

// record returns the op tag and payload bytes for slot i.
func (l *LeafNode) record(i int) (op, []byte) {
	offset, length := l.getSlot(i)
	raw := l.data[offset : offset+length]
	return op(raw[0]), raw[1:]
}

// freeSpace is the gap between the slot array's end and the heap's start.
func (l *LeafNode) freeSpace() int {
	slotsEnd := l.headerSize() + l.SlotCount()*slotEntrySize
	return l.heapEnd() - slotsEnd
}

// canFit reports whether one more slot plus a heap record of totalLen
// bytes (including the op byte) fits without the slot array and heap
// overlapping.
func (l *LeafNode) canFit(totalLen int) bool {
	slotsEnd := l.headerSize() + (l.SlotCount()+1)*slotEntrySize
	return l.heapEnd()-totalLen >= slotsEnd
}

// appendRecord writes one heap record and its slot, growing the heap
// downward and the slot array upward. Caller has already checked canFit.
func (l *LeafNode) appendRecord(o op, payload []byte) {
	total := 1 + len(payload)
	newHeapEnd := l.heapEnd() - total
	l.data[newHeapEnd] = byte(o)
	copy(l.data[newHeapEnd+1:], payload)
	l.setHeapEnd(uint16(newHeapEnd))
	l.setSlot(l.SlotCount(), uint16(newHeapEnd), uint16(total))
	l.setSlotCount(l.SlotCount() + 1)
}

func (l *LeafNode) key(tuple any) common.Key { return l.codec.Field(tuple, l.keyIndex) }

// Insert appends (Insert, serialize(tuple)) to the heap. Returns false
// when there isn't room, in which case the caller must split.
func (l *LeafNode) Insert(tuple any) bool {
	payloadLen := l.codec.Length(tuple)
	if !l.canFit(1 + payloadLen) {
		return false
	}

	payload := make([]byte, payloadLen)
	l.codec.Serialize(payload, tuple)
	l.appendRecord(opInsert, payload)

	k := l.key(tuple)
	l.updateBoundsOnInsert(k)
	l.setLiveCount(l.LiveCount() + 1)
	l.setSorted(false)
	return true
}

// Update appends a record the same way Insert does: the newest-wins scan
// discipline makes re-inserting a key a logical update. Unlike Insert, it
// leaves the live count unchanged when the key is already present.
func (l *LeafNode) Update(tuple any) bool {
	_, present := l.Get(l.key(tuple))
	if !l.Insert(tuple) {
		return false
	}
	if present {
		l.setLiveCount(l.LiveCount() - 1)
	}
	return true
}

func (l *LeafNode) updateBoundsOnInsert(k common.Key) {
	if min, ok := l.MinKey(); !ok || k.Less(min) {
		l.setMinKey(k)
	}
	if max, ok := l.MaxKey(); !ok || max.Less(k) {
		l.setMaxKey(k)
	}
}

// Erase appends (Delete, key). Returns false when there isn't room.
func (l *LeafNode) Erase(key common.Key) bool {
	keyBytes := make([]byte, l.keySer.Size())
	l.keySer.Serialize(keyBytes, key)
	if !l.canFit(1 + len(keyBytes)) {
		return false
	}

	l.appendRecord(opDelete, keyBytes)
	l.setLiveCount(l.LiveCount() - 1)
	l.setSorted(false)

	min, hasMin := l.MinKey()
	max, hasMax := l.MaxKey()
	if l.LiveCount() == 0 {
		return true
	}
	if (hasMin && common.Equal(key, min)) || (hasMax && common.Equal(key, max)) {
		l.recomputeBounds()
	}
	return true
}

// recomputeBounds rescans the live set after a boundary key is erased.
func (l *LeafNode) recomputeBounds() {
	live := l.Compact()
	if len(live) == 0 {
		return
	}
	min, max := l.key(live[0]), l.key(live[0])
	for _, t := range live[1:] {
		k := l.key(t)
		if k.Less(min) {
			min = k
		}
		if max.Less(k) {
			max = k
		}
	}
	l.setMinKey(min)
	l.setMaxKey(max)
}

// Get returns the tuple for key and whether it is present, honouring
// tombstones.
func (l *LeafNode) Get(key common.Key) (any, bool) {
	if l.IsSorted() {
		n := l.SlotCount()
		i := sort.Search(n, func(i int) bool {
			_, payload := l.record(i)
			return !l.key(l.codec.Deserialize(payload)).Less(key)
		})
		if i == n {
			return nil, false
		}
		_, payload := l.record(i)
		t := l.codec.Deserialize(payload)
		if common.Equal(l.key(t), key) {
			return t, true
		}
		return nil, false
	}

	for i := l.SlotCount() - 1; i >= 0; i-- {
		o, payload := l.record(i)
		if o == opDelete {
			if common.Equal(l.keySer.Deserialize(payload), key) {
				return nil, false
			}
			continue
		}
		t := l.codec.Deserialize(payload)
		if common.Equal(l.key(t), key) {
			return t, true
		}
	}
	return nil, false
}

// GetRange returns the live tuples with key in [lo, hi] in ascending
// order.
func (l *LeafNode) GetRange(lo, hi common.Key) []any {
	return l.GetRangeBounded(&lo, &hi)
}

// GetRangeBounded is GetRange with either bound optional: a nil lo or hi
// means unbounded on that side. Kept separate from GetRange (whose
// bounds are never nil) so callers that only sometimes have a bound,
// like a chained-leaf iterator, never need a sentinel Key value to
// stand in for "none" — a sentinel would have to be compared against a
// real key's Less, which type-asserts its argument to the tree's
// concrete key type and panics on anything else.
func (l *LeafNode) GetRangeBounded(lo, hi *common.Key) []any {
	below := func(k common.Key) bool { return lo != nil && k.Less(*lo) }
	above := func(k common.Key) bool { return hi != nil && (*hi).Less(k) }

	if l.IsSorted() {
		res := make([]any, 0)
		n := l.SlotCount()
		for i := 0; i < n; i++ {
			_, payload := l.record(i)
			t := l.codec.Deserialize(payload)
			k := l.key(t)
			if below(k) {
				continue
			}
			if above(k) {
				break
			}
			res = append(res, t)
		}
		return res
	}

	seen := make([]common.Key, 0, l.SlotCount())
	res := make([]any, 0)
	for i := l.SlotCount() - 1; i >= 0; i-- {
		o, payload := l.record(i)
		var k common.Key
		if o == opDelete {
			k = l.keySer.Deserialize(payload)
		} else {
			t := l.codec.Deserialize(payload)
			k = l.key(t)
		}
		if containsKey(seen, k) {
			continue
		}
		seen = append(seen, k)
		if o == opDelete {
			continue
		}
		if below(k) || above(k) {
			continue
		}
		t := l.codec.Deserialize(payload)
		res = append(res, t)
	}
	sort.Slice(res, func(i, j int) bool {
		return l.key(res[i]).Less(l.key(res[j]))
	})
	return res
}

func containsKey(set []common.Key, k common.Key) bool {
	for _, s := range set {
		if common.Equal(s, k) {
			return true
		}
	}
	return false
}

func reverse(s []any) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// Compact produces the live, deduplicated tuple set in original
// insertion order, scanning newest-first with a seen set and applying
// tombstones. It does not mutate the page.
func (l *LeafNode) Compact() []any {
	seen := make([]common.Key, 0, l.SlotCount())
	res := make([]any, 0, l.LiveCount())
	for i := l.SlotCount() - 1; i >= 0; i-- {
		o, payload := l.record(i)
		var k common.Key
		var t any
		if o == opDelete {
			k = l.keySer.Deserialize(payload)
		} else {
			t = l.codec.Deserialize(payload)
			k = l.key(t)
		}
		if containsKey(seen, k) {
			continue
		}
		seen = append(seen, k)
		if o == opInsert {
			res = append(res, t)
		}
	}
	reverse(res)
	return res
}

// reset clears the page back to an empty leaf, keeping id/next link/cold
// bit, used by Sort and SplitInto before rewriting content.
func (l *LeafNode) reset() {
	next := l.NextID()
	cold := l.IsCold()
	for i := range l.data {
		l.data[i] = 0
	}
	l.data[0] = discLeaf
	l.setSlotCount(0)
	l.setLiveCount(0)
	l.setHeapEnd(uint16(len(l.data)))
	l.SetNextID(next)
	l.SetCold(cold)
}

// rawInsert rebuilds one tuple into the page without flipping is_sorted,
// used internally by Sort/SplitInto while constructing a known-sorted or
// known-unsorted result.
func (l *LeafNode) rawInsert(tuple any) bool {
	payloadLen := l.codec.Length(tuple)
	if !l.canFit(1 + payloadLen) {
		return false
	}
	payload := make([]byte, payloadLen)
	l.codec.Serialize(payload, tuple)
	l.appendRecord(opInsert, payload)
	l.updateBoundsOnInsert(l.key(tuple))
	l.setLiveCount(l.LiveCount() + 1)
	return true
}

// Sort compacts, rewrites in key order, and marks the leaf sorted.
func (l *LeafNode) Sort() {
	tuples := l.Compact()
	sort.SliceStable(tuples, func(i, j int) bool { return l.key(tuples[i]).Less(l.key(tuples[j])) })
	l.reset()
	for _, t := range tuples {
		if !l.rawInsert(t) {
			invariantViolation("sort could not re-insert a tuple that already fit the page")
		}
	}
	l.setSorted(true)
}

// SplitInto moves roughly the overflow fraction of this leaf's content
// into newLeaf and returns the key promoted to the parent. Both leaves
// keep the sibling chain linked.
func (l *LeafNode) SplitInto(newLeaf *LeafNode, cfg lasconfig.Config) common.Key {
	newLeaf.SetNextID(l.NextID())
	l.SetNextID(newLeaf.id)

	switch cfg.SplitPolicy {
	case lasconfig.QuickPartition:
		return l.splitQuickPartition(newLeaf, cfg.SplitPercentage)
	default:
		return l.splitSortOnSplit(newLeaf, cfg.SplitPercentage)
	}
}

func (l *LeafNode) splitSortOnSplit(newLeaf *LeafNode, splitPercentage int) common.Key {
	tuples := l.Compact()
	sort.SliceStable(tuples, func(i, j int) bool { return l.key(tuples[i]).Less(l.key(tuples[j])) })

	keep := keptCount(len(tuples), splitPercentage)
	left, right := tuples[:keep], tuples[keep:]

	l.reset()
	for _, t := range left {
		l.rawInsert(t)
	}
	l.setSorted(true)

	newLeaf.reset()
	for _, t := range right {
		newLeaf.rawInsert(t)
	}
	newLeaf.setSorted(true)

	return l.key(right[0])
}

func (l *LeafNode) splitQuickPartition(newLeaf *LeafNode, splitPercentage int) common.Key {
	tuples := l.Compact()
	pivot := percentileKey(tuples, l.key, splitPercentage)

	l.reset()
	newLeaf.reset()
	for _, t := range tuples {
		if l.key(t).Less(pivot) {
			l.rawInsert(t)
		} else {
			newLeaf.rawInsert(t)
		}
	}
	return pivot
}

// keptCount returns ceil((splitPercentage-1)/splitPercentage * n), the
// number of tuples kept in the left leaf. splitPercentage=4 keeps 3/4.
func keptCount(n, splitPercentage int) int {
	keep := (n * (splitPercentage - 1)) / splitPercentage
	if (n*(splitPercentage-1))%splitPercentage != 0 {
		keep++
	}
	if keep < 1 {
		keep = 1
	}
	if keep > n-1 {
		keep = n - 1
	}
	return keep
}

// percentileKey picks the key at the same "kept fraction" position in a
// key-sorted copy of tuples, without reordering tuples itself
// QuickPartition never sorts the leaf contents themselves.
func percentileKey(tuples []any, keyOf func(any) common.Key, splitPercentage int) common.Key {
	keys := make([]common.Key, len(tuples))
	for i, t := range tuples {
		keys[i] = keyOf(t)
	}
	sort.SliceStable(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	idx := keptCount(len(keys), splitPercentage)
	return keys[idx]
}
