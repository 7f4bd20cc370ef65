package las

import (
	"fmt"

	"lastree/buffer"
)

// ErrIO wraps a disk or buffer-pool failure encountered mid-operation.
// The tree has no recovery path for these: the operation that triggered
// one fails outright and the caller decides whether to retry.
type ErrIO struct {
	Op  string
	Err error
}

func (e *ErrIO) Error() string { return fmt.Sprintf("las: %s: %v", e.Op, e.Err) }
func (e *ErrIO) Unwrap() error { return e.Err }

func wrapIO(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ErrIO{Op: op, Err: err}
}

// ErrPoolExhausted is returned when every buffer-pool frame is pinned
// and an operation needs another; it arrives wrapped in an *ErrIO, so
// match it with errors.Is. It is never returned mid-structural-
// change: splits reserve their pages up front.
var ErrPoolExhausted = buffer.ErrPoolExhausted

// A key absent on Get/Erase is reported as an ok=false return, and a
// range with no live keys as an empty result, not an error: a missing
// key is an expected outcome, not a fault.
//
// Internal invariant violations (InsertAt on a full internal node, a
// tuple that fits neither half of a freshly split leaf, a sort or erase
// that cannot rewrite a leaf's own content) panic immediately rather than returning
// an error: they indicate a bug in this package or on-disk corruption,
// neither of which the caller can meaningfully recover from.
func invariantViolation(msg string) {
	panic("las: invariant violation: " + msg)
}
