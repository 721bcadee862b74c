package rbtree

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"unsafe"
)

// growCapacityNumerator and growCapacityDenominator define the 3/2 growth factor for storage.
const (
	growCapacityNumerator   = 3
	growCapacityDenominator = 2
)

// maxArenaSize is the number of addressable slots, slot 0 included.
const maxArenaSize = math.MaxUint32

// Hibernated column layout.
const (
	columnKey = iota
	columnLeft
	columnRight
	columnParent
	columnGeneration
	columnColor
	columnGaps
	columnCount
)

// Allocator is the arena holding the nodes of one or more trees.
//
// Slot 0 is reserved: it is the sentinel that stands for every absent child
// and for the parent of a root. It is never handed out and never written.
// Released slots go to a LIFO free list and are reused before the arena grows.
type Allocator struct {
	storage              []node
	gaps                 []uint32
	hibernatedData       [columnCount][]byte
	HibernationThreshold int
	hibernatedStorageLen int
	hibernatedGapsLen    int
	allocs               uint64
	frees                uint64
}

// NewAllocator creates a new allocator for tree nodes.
func NewAllocator() *Allocator {
	return &Allocator{
		storage: []node{},
		gaps:    []uint32{},
	}
}

// Size returns the number of slots in the arena, the reserved slot and free slots included.
func (allocator *Allocator) Size() int {
	return len(allocator.storage)
}

// Used returns the number of live nodes in the arena.
func (allocator *Allocator) Used() int {
	if allocator.storage == nil {
		panic("hibernated allocators cannot be used")
	}

	if len(allocator.storage) == 0 {
		return 0
	}

	return len(allocator.storage) - len(allocator.gaps) - 1
}

// Allocs returns the number of nodes handed out over the allocator lifetime.
func (allocator *Allocator) Allocs() uint64 {
	return allocator.allocs
}

// Frees returns the number of nodes released over the allocator lifetime.
func (allocator *Allocator) Frees() uint64 {
	return allocator.frees
}

// Hibernated reports whether the arena memory is currently compressed.
func (allocator *Allocator) Hibernated() bool {
	return allocator.storage == nil
}

// Footprint returns the bytes reserved by the arena: node slots and the free
// list while running, compressed columns while hibernated.
func (allocator *Allocator) Footprint() uint64 {
	if allocator.storage == nil {
		var total uint64
		for _, column := range allocator.hibernatedData {
			total += uint64(len(column))
		}

		return total
	}

	return uint64(cap(allocator.storage))*uint64(unsafe.Sizeof(node{})) +
		uint64(cap(allocator.gaps))*uint64(unsafe.Sizeof(uint32(0)))
}

// Clone copies an existing allocator.
func (allocator *Allocator) Clone() *Allocator {
	if allocator.storage == nil {
		panic("cannot clone a hibernated allocator")
	}

	clone := &Allocator{
		HibernationThreshold: allocator.HibernationThreshold,
		storage:              make([]node, len(allocator.storage), cap(allocator.storage)),
		gaps:                 make([]uint32, len(allocator.gaps)),
		allocs:               allocator.allocs,
		frees:                allocator.frees,
	}
	copy(clone.storage, allocator.storage)
	copy(clone.gaps, allocator.gaps)

	return clone
}

// Hibernate compresses the arena. Trees bound to a hibernated allocator cannot
// be used until Boot is called. On failure the arena keeps running untouched.
func (allocator *Allocator) Hibernate() error {
	return allocator.hibernate(func(_ int, encode columnEncoder) ([]byte, error) { return encode() })
}

// columnEncoder compresses one deinterleaved column.
type columnEncoder func() ([]byte, error)

func (allocator *Allocator) hibernate(compressColumn func(column int, encode columnEncoder) ([]byte, error)) error {
	if allocator.hibernatedStorageLen > 0 {
		panic("cannot hibernate an already hibernated Allocator")
	}

	if allocator.storage == nil || len(allocator.storage) < allocator.HibernationThreshold {
		return nil
	}

	storageLen := len(allocator.storage)
	if storageLen == 0 {
		allocator.storage = nil
		allocator.gaps = nil

		return nil
	}

	keys := make([]int64, storageLen)
	links := [3][]uint32{}
	generations := make([]uint32, storageLen)
	colors := make([]uint8, storageLen)

	for idx := range links {
		links[idx] = make([]uint32, storageLen)
	}

	// We deinterleave to achieve a better compression ratio.
	for idx, nd := range allocator.storage {
		keys[idx] = nd.key
		links[0][idx] = nd.left
		links[1][idx] = nd.right
		links[2][idx] = nd.parent
		generations[idx] = nd.gen

		if nd.color {
			colors[idx] = 1
		}
	}

	gaps := allocator.gaps
	encoders := [columnCount]columnEncoder{
		columnKey:        func() ([]byte, error) { return CompressSlice(keys) },
		columnLeft:       func() ([]byte, error) { return CompressSlice(links[0]) },
		columnRight:      func() ([]byte, error) { return CompressSlice(links[1]) },
		columnParent:     func() ([]byte, error) { return CompressSlice(links[2]) },
		columnGeneration: func() ([]byte, error) { return CompressSlice(generations) },
		columnColor:      func() ([]byte, error) { return CompressSlice(colors) },
		columnGaps: func() ([]byte, error) {
			if len(gaps) == 0 {
				return nil, nil
			}

			return CompressSlice(gaps)
		},
	}

	var compressed [columnCount][]byte

	errs := make([]error, columnCount)
	wg := &sync.WaitGroup{}
	wg.Add(columnCount)

	for column, encode := range encoders {
		go func() {
			defer wg.Done()

			compressed[column], errs[column] = compressColumn(column, encode)
		}()
	}

	wg.Wait()

	err := errors.Join(errs...)
	if err != nil {
		return fmt.Errorf("hibernate allocator: %w", err)
	}

	allocator.hibernatedData = compressed
	allocator.hibernatedStorageLen = storageLen
	allocator.hibernatedGapsLen = len(gaps)
	allocator.storage = nil
	allocator.gaps = nil

	return nil
}

// Boot performs the opposite of Hibernate() - decompresses and restores the arena.
func (allocator *Allocator) Boot() error {
	if allocator.storage == nil && allocator.hibernatedStorageLen == 0 {
		allocator.storage = []node{}
		allocator.gaps = []uint32{}

		return nil
	}

	if allocator.hibernatedStorageLen == 0 {
		// Not hibernated.
		return nil
	}

	storageLen := allocator.hibernatedStorageLen
	keys := make([]int64, storageLen)
	links := [3][]uint32{}
	generations := make([]uint32, storageLen)
	colors := make([]uint8, storageLen)
	gaps := make([]uint32, allocator.hibernatedGapsLen)

	for idx := range links {
		links[idx] = make([]uint32, storageLen)
	}

	errs := make([]error, columnCount)
	wg := &sync.WaitGroup{}
	wg.Add(columnCount)

	decompress := func(column int, fn func(data []byte) error) {
		defer wg.Done()

		if column == columnGaps && len(gaps) == 0 {
			return
		}

		errs[column] = fn(allocator.hibernatedData[column])
	}

	go decompress(columnKey, func(data []byte) error { return DecompressSlice(data, keys) })
	go decompress(columnLeft, func(data []byte) error { return DecompressSlice(data, links[0]) })
	go decompress(columnRight, func(data []byte) error { return DecompressSlice(data, links[1]) })
	go decompress(columnParent, func(data []byte) error { return DecompressSlice(data, links[2]) })
	go decompress(columnGeneration, func(data []byte) error { return DecompressSlice(data, generations) })
	go decompress(columnColor, func(data []byte) error { return DecompressSlice(data, colors) })
	go decompress(columnGaps, func(data []byte) error { return DecompressSlice(data, gaps) })

	wg.Wait()

	err := errors.Join(errs...)
	if err != nil {
		return fmt.Errorf("boot allocator: %w", err)
	}

	capSize := (storageLen * growCapacityNumerator) / growCapacityDenominator
	allocator.storage = make([]node, storageLen, capSize)
	allocator.gaps = gaps

	for idx := range allocator.storage {
		nd := &allocator.storage[idx]
		nd.key = keys[idx]
		nd.left = links[0][idx]
		nd.right = links[1][idx]
		nd.parent = links[2][idx]
		nd.gen = generations[idx]
		nd.color = colors[idx] > 0
	}

	allocator.hibernatedData = [columnCount][]byte{}
	allocator.hibernatedStorageLen = 0
	allocator.hibernatedGapsLen = 0

	return nil
}

// nodes returns the arena slots, refusing access while hibernated.
func (allocator *Allocator) nodes() []node {
	if allocator.storage == nil {
		panic("hibernated allocators cannot be used")
	}

	return allocator.storage
}

// malloc hands out a zeroed slot. Its generation turns odd, marking it live.
func (allocator *Allocator) malloc() (uint32, error) {
	if allocator.storage == nil {
		panic("hibernated allocators cannot be used")
	}

	if gapsLen := len(allocator.gaps); gapsLen > 0 {
		nodeIdx := allocator.gaps[gapsLen-1]
		allocator.gaps = allocator.gaps[:gapsLen-1]
		allocator.storage[nodeIdx].gen++
		allocator.allocs++

		return nodeIdx, nil
	}

	nodeLen := len(allocator.storage)
	if nodeLen == 0 {
		// Zero is reserved.
		allocator.storage = append(allocator.storage, node{})
		nodeLen = 1
	}

	if nodeLen >= maxArenaSize {
		return 0, fmt.Errorf("%w: arena holds %d slots", ErrAllocation, nodeLen)
	}

	allocator.storage = append(allocator.storage, node{gen: 1})
	allocator.allocs++

	return uint32(nodeLen), nil //nolint:gosec // bounded by maxArenaSize above.
}

// free returns a live slot to the free list. Its generation turns even, so
// every handle minted for it stops resolving.
func (allocator *Allocator) free(nodeIdx uint32) {
	if allocator.storage == nil {
		panic("hibernated allocators cannot be used")
	}

	if nodeIdx == 0 {
		panic("node #0 is special and cannot be deallocated")
	}

	doAssert(allocator.storage[nodeIdx].live())

	allocator.storage[nodeIdx] = node{gen: allocator.storage[nodeIdx].gen + 1}
	allocator.gaps = append(allocator.gaps, nodeIdx)
	allocator.frees++
}
