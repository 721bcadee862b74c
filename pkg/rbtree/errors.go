package rbtree

import "errors"

// Sentinel errors returned by tree and allocator operations.
var (
	// ErrAllocation is returned when a node cannot be allocated: the arena
	// index space is exhausted or the tree node limit is reached.
	ErrAllocation = errors.New("node allocation failed")

	// ErrEmptyTree is returned when an ordered export is requested on a tree without nodes.
	ErrEmptyTree = errors.New("tree is empty")

	// ErrCapacity is returned when a destination buffer cannot hold every key of the tree.
	ErrCapacity = errors.New("destination buffer too small")

	// ErrInvalidHandle is returned when a handle does not name a live node of the tree.
	ErrInvalidHandle = errors.New("invalid node handle")

	// ErrInvariant is returned by Verify when a red-black property does not hold.
	ErrInvariant = errors.New("red-black invariant violated")

	// ErrCorruptColumn is returned when a hibernated column does not decompress
	// to the expected length.
	ErrCorruptColumn = errors.New("corrupt hibernated column")
)
