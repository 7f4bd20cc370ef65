// Package las implements a disk-backed ordered index: leaf and internal
// page layouts plus the tree engine that drives inserts, lookups, range
// scans, and splits through a fast-path insertion hint and lazily sorted
// leaves. The page layout follows a root-to-leaf descent with a path
// stack, split/propagate-upward control flow, and a one-byte node-type
// discriminator, generalized to carry the fast-path hint and lazy-sort
// leaf this package adds.
package las

import "encoding/binary"

// Pointer identifies a page by its index within the tree's file.
type Pointer uint64

// NilPointer marks the absence of a link (no next leaf, no parent).
const NilPointer Pointer = ^Pointer(0)

const (
	discLeaf     byte = 0
	discInternal byte = 1
)

// pageType reads the one-byte discriminator every page begins with.
func pageType(data []byte) byte { return data[0] }

func isLeafPage(data []byte) bool { return data[0] == discLeaf }

func putPointer(dest []byte, p Pointer) {
	binary.BigEndian.PutUint64(dest, uint64(p))
}

func getPointer(src []byte) Pointer {
	return Pointer(binary.BigEndian.Uint64(src))
}
