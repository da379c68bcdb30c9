package trace

import "errors"

// Sentinel errors returned by Verify.
var (
	// ErrNoRoot indicates the array is empty or position 0 has a parent.
	ErrNoRoot = errors.New("trace array has no root at position 0")

	// ErrMultipleRoots indicates a trace other than position 0 has no parent.
	ErrMultipleRoots = errors.New("trace array has more than one root")

	// ErrParentOrder indicates a parent index that does not precede its child.
	ErrParentOrder = errors.New("parent index does not precede child")

	// ErrChildOrder indicates children that are out of range or not strictly increasing.
	ErrChildOrder = errors.New("children indices out of order")

	// ErrChildParent indicates a child whose parent does not list it, or vice versa.
	ErrChildParent = errors.New("child and parent references disagree")

	// ErrSubtreeLayout indicates subtrees that are not contiguous in pre-order.
	ErrSubtreeLayout = errors.New("subtrees are not contiguous")
)
