// Package rbtree provides an ordered multiset of int64 keys backed by a
// red-black tree whose nodes live in an index-addressed arena.
//
// Duplicate keys are kept: an equal key is placed to the right of the
// existing ones. A Tree is owned by a single goroutine; callers that share one
// must serialize every operation themselves.
package rbtree

import "fmt"

const (
	red   = false
	black = true
)

type node struct {
	key                 int64
	parent, left, right uint32
	gen                 uint32
	color               bool // Black or red.
}

// Odd generations mark live slots.
func (nd node) live() bool {
	return nd.gen&1 == 1
}

// Handle names one node of a Tree. It stays valid until that node is erased
// or the tree is destroyed.
type Handle struct {
	tree *Tree
	key  int64
	node uint32
	gen  uint32
}

// Key returns the key stored in the node.
func (handle Handle) Key() int64 {
	return handle.key
}

// IsZero reports whether the handle was never bound to a node.
func (handle Handle) IsZero() bool {
	return handle.tree == nil
}

// Option configures a Tree.
type Option func(*Tree)

// WithMaxNodes caps the number of nodes the tree may hold. Insertions beyond
// the cap fail with ErrAllocation. Zero means no cap.
func WithMaxNodes(n int) Option {
	return func(tree *Tree) {
		tree.maxNodes = n
	}
}

// WithReleaseHook registers a function called with the key of every node
// released by Erase, EraseKey and Destroy, exactly once per node.
func WithReleaseHook(hook func(key int64)) Option {
	return func(tree *Tree) {
		tree.onRelease = hook
	}
}

// Tree is a red-black tree.
//
// Every path from the root ends at slot 0 of the allocator, which plays the
// part of the black sentinel.
type Tree struct {
	// Nodes allocator.
	allocator *Allocator

	// Optional release callback.
	onRelease func(key int64)

	// Operation counters.
	stats Stats

	// Number of nodes under root, including the root.
	count int

	// Zero means unlimited.
	maxNodes int

	// Root of the tree.
	root uint32
}

// New creates an empty tree with its own allocator.
func New(opts ...Option) *Tree {
	return NewWithAllocator(NewAllocator(), opts...)
}

// NewWithAllocator creates an empty tree whose nodes are taken from allocator.
// Several trees may share one allocator.
func NewWithAllocator(allocator *Allocator, opts ...Option) *Tree {
	tree := &Tree{allocator: allocator}

	for _, opt := range opts {
		opt(tree)
	}

	return tree
}

func (tree *Tree) storage() []node {
	return tree.allocator.nodes()
}

func (tree *Tree) handle(nodeIdx uint32) Handle {
	nd := tree.storage()[nodeIdx]

	return Handle{tree: tree, key: nd.key, node: nodeIdx, gen: nd.gen}
}

// Allocator returns the bound nodes allocator.
func (tree *Tree) Allocator() *Allocator {
	return tree.allocator
}

// Len returns the number of keys in the tree.
func (tree *Tree) Len() int {
	return tree.count
}

// Stats returns the operation counters accumulated since the tree was created.
func (tree *Tree) Stats() Stats {
	return tree.stats
}

// Contains reports whether handle names a live node of this tree.
func (tree *Tree) Contains(handle Handle) bool {
	if handle.tree != tree || handle.node == 0 {
		return false
	}

	alloc := tree.storage()
	if int(handle.node) >= len(alloc) {
		return false
	}

	return alloc[handle.node].gen == handle.gen
}

// Find returns a node whose key equals key. When several nodes hold the key,
// which one is returned is unspecified.
func (tree *Tree) Find(key int64) (Handle, bool) {
	alloc := tree.storage()
	cursor := tree.root

	for cursor != 0 {
		switch nodeKey := alloc[cursor].key; {
		case key < nodeKey:
			cursor = alloc[cursor].left
		case key > nodeKey:
			cursor = alloc[cursor].right
		default:
			return tree.handle(cursor), true
		}
	}

	return Handle{}, false
}

// Min returns the node with the smallest key, or false if the tree is empty.
func (tree *Tree) Min() (Handle, bool) {
	nodeIdx := subtreeMin(tree.root, tree.storage())
	if nodeIdx == 0 {
		return Handle{}, false
	}

	return tree.handle(nodeIdx), true
}

// Max returns the node with the largest key, or false if the tree is empty.
func (tree *Tree) Max() (Handle, bool) {
	nodeIdx := subtreeMax(tree.root, tree.storage())
	if nodeIdx == 0 {
		return Handle{}, false
	}

	return tree.handle(nodeIdx), true
}

// SortedKeys returns every key in non-decreasing order.
func (tree *Tree) SortedKeys() ([]int64, error) {
	if tree.count == 0 {
		return nil, ErrEmptyTree
	}

	keys := make([]int64, tree.count)

	_, err := tree.SortedKeysInto(keys)
	if err != nil {
		return nil, err
	}

	return keys, nil
}

// SortedKeysInto writes every key in non-decreasing order to the head of dst
// and returns the number of keys written.
func (tree *Tree) SortedKeysInto(dst []int64) (int, error) {
	if tree.count == 0 {
		return 0, ErrEmptyTree
	}

	if len(dst) < tree.count {
		return 0, fmt.Errorf("%w: %d slots for %d keys", ErrCapacity, len(dst), tree.count)
	}

	alloc := tree.storage()
	written := 0

	for cursor := subtreeMin(tree.root, alloc); cursor != 0; cursor = doNext(cursor, alloc) {
		dst[written] = alloc[cursor].key
		written++
	}

	doAssert(written == tree.count)

	return written, nil
}

// Destroy releases every node, children before their parent, and leaves the
// tree empty and reusable. It returns the number of released nodes.
func (tree *Tree) Destroy() int {
	if tree.root == 0 {
		return 0
	}

	alloc := tree.storage()
	released := 0
	cursor := tree.root

	for cursor != 0 {
		nd := alloc[cursor]

		switch {
		case nd.left != 0:
			cursor = nd.left
		case nd.right != 0:
			cursor = nd.right
		default:
			if nd.parent != 0 {
				if alloc[nd.parent].left == cursor {
					alloc[nd.parent].left = 0
				} else {
					alloc[nd.parent].right = 0
				}
			}

			tree.release(cursor)
			released++
			cursor = nd.parent
		}
	}

	tree.root = 0
	tree.count = 0

	return released
}

// Clone performs a deep copy of the tree into allocator, keeping its shape
// and colors. The clone inherits the node cap and the release hook.
func (tree *Tree) Clone(allocator *Allocator) (*Tree, error) {
	clone := &Tree{
		allocator: allocator,
		onRelease: tree.onRelease,
		maxNodes:  tree.maxNodes,
	}

	nodeMap := make(map[uint32]uint32, tree.count)
	originStorage := tree.storage()

	for cursor := subtreeMin(tree.root, originStorage); cursor != 0; cursor = doNext(cursor, originStorage) {
		newNode, err := allocator.malloc()
		if err != nil {
			for _, allocated := range nodeMap {
				allocator.free(allocated)
			}

			return nil, fmt.Errorf("clone: %w", err)
		}

		cloneNode := &allocator.storage[newNode]
		cloneNode.key = originStorage[cursor].key
		cloneNode.color = originStorage[cursor].color
		nodeMap[cursor] = newNode
	}

	cloneStorage := allocator.storage

	for origin, copied := range nodeMap {
		cloneNode := &cloneStorage[copied]
		originNode := originStorage[origin]
		cloneNode.left = nodeMap[originNode.left]
		cloneNode.right = nodeMap[originNode.right]
		cloneNode.parent = nodeMap[originNode.parent]
	}

	clone.root = nodeMap[tree.root]
	clone.count = tree.count

	return clone, nil
}

// release frees one detached node and reports it to the release hook.
func (tree *Tree) release(nodeIdx uint32) {
	key := tree.storage()[nodeIdx].key

	tree.allocator.free(nodeIdx)

	if tree.onRelease != nil {
		tree.onRelease(key)
	}
}

func doAssert(condition bool) {
	if !condition {
		panic("rbtree internal assertion failed")
	}
}

// Internal node attribute accessors.

// getColor reads the color of a slot; the sentinel is always black.
func getColor(nodeIdx uint32, allocator []node) bool {
	if nodeIdx == 0 {
		return black
	}

	return allocator[nodeIdx].color
}

// paint sets the color of a real node. The sentinel is never painted.
func paint(nodeIdx uint32, color bool, allocator []node) {
	doAssert(nodeIdx != 0)

	allocator[nodeIdx].color = color
}

func isLeftChild(nodeIdx uint32, allocator []node) bool {
	return nodeIdx == allocator[allocator[nodeIdx].parent].left
}

func subtreeMin(nodeIdx uint32, allocator []node) uint32 {
	if nodeIdx == 0 {
		return 0
	}

	for allocator[nodeIdx].left != 0 {
		nodeIdx = allocator[nodeIdx].left
	}

	return nodeIdx
}

func subtreeMax(nodeIdx uint32, allocator []node) uint32 {
	if nodeIdx == 0 {
		return 0
	}

	for allocator[nodeIdx].right != 0 {
		nodeIdx = allocator[nodeIdx].right
	}

	return nodeIdx
}

// Return the in-order successor of N, or 0 if N holds the maximum.
func doNext(nodeIdx uint32, allocator []node) uint32 {
	if allocator[nodeIdx].right != 0 {
		return subtreeMin(allocator[nodeIdx].right, allocator)
	}

	for {
		parentIdx := allocator[nodeIdx].parent
		if parentIdx == 0 {
			return 0
		}

		if isLeftChild(nodeIdx, allocator) {
			return parentIdx
		}

		nodeIdx = parentIdx
	}
}
