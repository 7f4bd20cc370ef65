package las

import (
	"encoding/binary"
	"sort"

	"lastree/codec"
	"lastree/common"
)

// internal node layout:
//
//	0  disc       1 byte
//	1  keyCount   uint16
//	3  keys[capacity]     keySize bytes each, in ascending order
//	   children[capacity+1]  8 bytes each (Pointer)
//
// keys[i] is the smallest key reachable through children[i+1]: a search
// for key k descends into children[j] where j is the count of keys[i]
// with keys[i] <= k. Internal nodes only grow; there is no merge,
// redistribute, or delete-at since nothing ever removes an entry from
// one once the node it was promoted from ceases to matter.
const (
	internalOffKeyCount = 1
	internalHeaderSize  = 3
	childPointerSize    = 8
)

// InternalNode is a transient view over a pinned page's bytes.
type InternalNode struct {
	id       Pointer
	data     []byte
	keySer   codec.KeySerializer
	capacity int
}

// internalCapacity returns how many separator keys (and capacity+1
// children) fit in a page of the given size.
func internalCapacity(pageSize, keySize int) int {
	return (pageSize - internalHeaderSize - childPointerSize) / (keySize + childPointerSize)
}

func NewInternalView(id Pointer, data []byte, ks codec.KeySerializer) *InternalNode {
	cap := internalCapacity(len(data), ks.Size())
	return &InternalNode{id: id, data: data, keySer: ks, capacity: cap}
}

// InitInternal formats a freshly allocated page as an internal node with
// a single child and no separator keys.
func InitInternal(id Pointer, data []byte, ks codec.KeySerializer, onlyChild Pointer) *InternalNode {
	for i := range data {
		data[i] = 0
	}
	data[0] = discInternal
	n := NewInternalView(id, data, ks)
	n.setKeyCount(0)
	n.setChild(0, onlyChild)
	return n
}

func (n *InternalNode) ID() Pointer  { return n.id }
func (n *InternalNode) IsLeaf() bool { return false }

func (n *InternalNode) KeyCount() int {
	return int(binary.BigEndian.Uint16(n.data[internalOffKeyCount:]))
}

func (n *InternalNode) setKeyCount(c int) {
	binary.BigEndian.PutUint16(n.data[internalOffKeyCount:], uint16(c))
}

func (n *InternalNode) Capacity() int { return n.capacity }

func (n *InternalNode) keyOffset(i int) int {
	return internalHeaderSize + i*n.keySer.Size()
}

func (n *InternalNode) childOffset(i int) int {
	return internalHeaderSize + n.capacity*n.keySer.Size() + i*childPointerSize
}

func (n *InternalNode) Key(i int) common.Key {
	return n.keySer.Deserialize(n.data[n.keyOffset(i):])
}

func (n *InternalNode) setKey(i int, k common.Key) {
	n.keySer.Serialize(n.data[n.keyOffset(i):], k)
}

func (n *InternalNode) Child(i int) Pointer {
	return getPointer(n.data[n.childOffset(i):])
}

func (n *InternalNode) setChild(i int, p Pointer) {
	putPointer(n.data[n.childOffset(i):], p)
}

// ChildSlot returns the index of the child to descend into to find key.
// keys[i] is the smallest key reachable through children[i+1], so the
// slot is the count of keys <= key.
func (n *InternalNode) ChildSlot(key common.Key) int {
	count := n.KeyCount()
	return sort.Search(count, func(i int) bool { return key.Less(n.Key(i)) })
}

// IsFull reports whether one more separator key would overflow capacity.
func (n *InternalNode) IsFull() bool { return n.KeyCount() >= n.capacity }

// InsertAt inserts (key, childId) as the new separator at index idx,
// shifting keys[idx:] and children[idx+1:] right by one. childId becomes
// children[idx+1]: the child reached when a search key is >= key.
func (n *InternalNode) InsertAt(idx int, key common.Key, childId Pointer) {
	if n.IsFull() {
		invariantViolation("InsertAt called on a full internal node")
	}
	count := n.KeyCount()

	for i := count; i > idx; i-- {
		n.setKey(i, n.Key(i-1))
	}
	n.setKey(idx, key)

	for i := count + 1; i > idx+1; i-- {
		n.setChild(i, n.Child(i-1))
	}
	n.setChild(idx+1, childId)

	n.setKeyCount(count + 1)
}

// SplitInto moves the upper half of this node's keys/children into
// newNode and returns the median key promoted to the parent. The median
// key itself is not kept in either half, mirroring how a leaf split
// promotes a boundary key that now only lives in the parent.
func (n *InternalNode) SplitInto(newNode *InternalNode) common.Key {
	count := n.KeyCount()
	mid := count / 2
	median := n.Key(mid)

	for i := mid + 1; i < count; i++ {
		newNode.setKey(i-mid-1, n.Key(i))
	}
	for i := mid + 1; i <= count; i++ {
		newNode.setChild(i-mid-1, n.Child(i))
	}
	newNode.setKeyCount(count - mid - 1)

	n.setKeyCount(mid)
	return median
}
