package las

import "lastree/common"

// fastPath is the insertion hint: the leaf currently believed to own the
// inclusive key range [Min, Max], plus a soft-fail counter tracking how
// many consecutive inserts have landed outside that range.
//
// The range is tracked as the leaf's own observed min/max rather than
// the separator bounds a parent would enforce. A key above the leaf's
// current max or below its current min is never accepted by the hint,
// even when that leaf owns it, so in a strictly ascending or descending
// insert stream every insert misses the hint and takes a descent. The
// hint never overshoots into a neighboring leaf's territory.
type fastPath struct {
	leaf      Pointer
	min, max  common.Key
	softFails int
	valid     bool
}

func (f *fastPath) reset() { *f = fastPath{} }

// canUse reports whether key falls in the current hinted leaf's range.
func (f *fastPath) canUse(key common.Key) bool {
	if !f.valid {
		return false
	}
	if key.Less(f.min) {
		return false
	}
	if f.max.Less(key) {
		return false
	}
	return true
}

// hardSet installs a brand-new hint after a fast-path miss has been
// resolved by a normal root-to-leaf descent, clearing the soft-fail
// counter.
func (f *fastPath) hardSet(leaf Pointer, min, max common.Key) {
	f.leaf = leaf
	f.min = min
	f.max = max
	f.softFails = 0
	f.valid = true
}

// recordSoftFail bumps the miss counter and reports whether it has
// crossed maxSoftFails, at which point the caller should hard-reset
// (re-point) the hint rather than keep tolerating misses against a leaf
// that evidently no longer matches the insertion pattern.
func (f *fastPath) recordSoftFail(maxSoftFails int) (shouldHardReset bool) {
	f.softFails++
	return f.softFails >= maxSoftFails
}

// widen grows the hinted range to the given bounds where they fall
// outside it. It is called with the leaf's min/max after a successful
// fast-path insert, which picks up bounds that descent-path inserts into
// the same leaf have extended; the fast-path insert itself never extends
// them, since canUse only admits keys already inside the range.
func (f *fastPath) widen(min, max common.Key) {
	if min.Less(f.min) {
		f.min = min
	}
	if f.max.Less(max) {
		f.max = max
	}
}
