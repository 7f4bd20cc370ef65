package common

// Key is the ordering contract the tree requires from whatever scalar
// type a caller instantiates the index with. Ordering must be strict
// and consistent across calls: for any a, b at most one of a.Less(b),
// b.Less(a) holds, and it never flips between two calls.
type Key interface {
	Less(than Key) bool
}

// Equal reports whether a and b occupy the same position in the order,
// i.e. neither is Less than the other.
func Equal(a, b Key) bool {
	return !a.Less(b) && !b.Less(a)
}

// Int64Key is the Key implementation for the reference integer workload.
type Int64Key int64

func (k Int64Key) Less(than Key) bool {
	return k < than.(Int64Key)
}
