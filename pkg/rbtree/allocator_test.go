package rbtree //nolint:testpackage // tests require access to unexported fields (storage, gaps, hibernatedData, etc.)

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocatorFreeZero(t *testing.T) {
	t.Parallel()

	alloc := NewAllocator()
	_, err := alloc.malloc()
	require.NoError(t, err)
	assert.PanicsWithValue(t, "node #0 is special and cannot be deallocated", func() { alloc.free(0) })
}

func TestAllocatorReuse(t *testing.T) {
	t.Parallel()

	alloc := NewAllocator()
	assert.Equal(t, 0, alloc.Size())
	assert.Equal(t, 0, alloc.Used())

	first, err := alloc.malloc()
	require.NoError(t, err)

	second, err := alloc.malloc()
	require.NoError(t, err)

	assert.Equal(t, uint32(1), first)
	assert.Equal(t, uint32(2), second)
	assert.Equal(t, 3, alloc.Size())
	assert.Equal(t, 2, alloc.Used())
	assert.True(t, alloc.storage[first].live())

	alloc.free(first)
	assert.False(t, alloc.storage[first].live())
	assert.Equal(t, []uint32{first}, alloc.gaps)
	assert.Equal(t, 1, alloc.Used())
	assert.Panics(t, func() { alloc.free(first) })

	again, err := alloc.malloc()
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Equal(t, uint32(3), alloc.storage[again].gen)
	assert.Equal(t, 3, alloc.Size())
	assert.Equal(t, uint64(3), alloc.Allocs())
	assert.Equal(t, uint64(1), alloc.Frees())
}

func TestAllocatorClone(t *testing.T) {
	t.Parallel()

	alloc := NewAllocator()
	alloc.HibernationThreshold = 3

	tree := NewWithAllocator(alloc)
	mustInsert(t, tree, 7, 8)
	assert.True(t, tree.EraseKey(8))

	clone := alloc.Clone()
	assert.Equal(t, alloc.storage, clone.storage)
	assert.Equal(t, alloc.gaps, clone.gaps)
	assert.Equal(t, 3, clone.HibernationThreshold)

	// A shallow copy of the tree over the cloned arena sees the same nodes.
	shallow := *tree
	shallow.allocator = clone

	mustInsert(t, &shallow, 10)
	assert.Equal(t, 2, clone.Used())
	assert.Equal(t, 1, alloc.Used())
	mustVerify(t, tree)
	mustVerify(t, &shallow)
}

func TestAllocatorHibernateBoot(t *testing.T) {
	t.Parallel()

	alloc := NewAllocator()
	tree := NewWithAllocator(alloc)

	for idx := range 10000 {
		mustInsert(t, tree, int64(idx*7%10007)-5000)
	}

	for idx := range 2000 {
		assert.True(t, tree.EraseKey(int64(idx*7%10007)-5000))
	}

	before := tree.Shape()
	storageBefore := append([]node(nil), alloc.storage...)
	gapsBefore := append([]uint32(nil), alloc.gaps...)

	require.NoError(t, alloc.Hibernate())
	assert.True(t, alloc.Hibernated())
	assert.PanicsWithValue(t, "cannot hibernate an already hibernated Allocator", func() { _ = alloc.Hibernate() })
	assert.Nil(t, alloc.storage)
	assert.Nil(t, alloc.gaps)
	assert.Equal(t, 0, alloc.Size())
	assert.Equal(t, 10001, alloc.hibernatedStorageLen)
	assert.Equal(t, 2000, alloc.hibernatedGapsLen)
	assert.PanicsWithValue(t, "hibernated allocators cannot be used", func() { alloc.Used() })
	assert.PanicsWithValue(t, "hibernated allocators cannot be used", func() { _, _ = alloc.malloc() })
	assert.PanicsWithValue(t, "hibernated allocators cannot be used", func() { alloc.free(1) })
	assert.PanicsWithValue(t, "cannot clone a hibernated allocator", func() { alloc.Clone() })
	assert.PanicsWithValue(t, "hibernated allocators cannot be used", func() { tree.Find(1) })

	require.NoError(t, alloc.Boot())
	assert.False(t, alloc.Hibernated())
	assert.Equal(t, 0, alloc.hibernatedStorageLen)
	assert.Equal(t, 0, alloc.hibernatedGapsLen)

	for _, data := range alloc.hibernatedData {
		assert.Nil(t, data)
	}

	assert.Equal(t, storageBefore, alloc.storage)
	assert.Equal(t, gapsBefore, alloc.gaps)
	assert.Equal(t, before, tree.Shape())
	mustVerify(t, tree)

	mustInsert(t, tree, 123456)
	assert.Equal(t, 8001, tree.Len())
}

func TestAllocatorHibernateBootEmpty(t *testing.T) {
	t.Parallel()

	alloc := NewAllocator()
	require.NoError(t, alloc.Hibernate())
	require.NoError(t, alloc.Boot())
	assert.NotNil(t, alloc.gaps)
	assert.Equal(t, 0, alloc.Size())
	assert.Equal(t, 0, alloc.Used())
}

func TestAllocatorHibernateBootThreshold(t *testing.T) {
	t.Parallel()

	alloc := NewAllocator()
	_, err := alloc.malloc()
	require.NoError(t, err)

	alloc.HibernationThreshold = 3

	require.NoError(t, alloc.Hibernate())
	assert.Equal(t, 0, alloc.hibernatedStorageLen)
	assert.False(t, alloc.Hibernated())

	require.NoError(t, alloc.Boot())

	_, err = alloc.malloc()
	require.NoError(t, err)
	require.NoError(t, alloc.Hibernate())
	assert.Equal(t, 0, alloc.hibernatedGapsLen)
	assert.Equal(t, 3, alloc.hibernatedStorageLen)

	require.NoError(t, alloc.Boot())
	assert.Equal(t, 3, alloc.Size())
	assert.Equal(t, 2, alloc.Used())
	assert.NotNil(t, alloc.gaps)
}

func TestAllocatorBootCorrupt(t *testing.T) {
	t.Parallel()

	alloc := NewAllocator()
	tree := NewWithAllocator(alloc)
	mustInsert(t, tree, 1, 2, 3)

	require.NoError(t, alloc.Hibernate())

	alloc.hibernatedData[columnKey] = alloc.hibernatedData[columnColor]

	require.Error(t, alloc.Boot())
	assert.True(t, alloc.Hibernated())
}

func TestAllocatorHibernateFailureKeepsArena(t *testing.T) {
	t.Parallel()

	alloc := NewAllocator()
	tree := NewWithAllocator(alloc)
	handles := mustInsert(t, tree, 5, 3, 8, 1, 4)
	require.NoError(t, tree.Erase(handles[1]))

	size, used := alloc.Size(), alloc.Used()
	errEncode := errors.New("encoder out of memory")

	err := alloc.hibernate(func(column int, encode columnEncoder) ([]byte, error) {
		if column == columnParent {
			return nil, errEncode
		}

		return encode()
	})
	require.ErrorIs(t, err, errEncode)

	assert.False(t, alloc.Hibernated())
	assert.Equal(t, [columnCount][]byte{}, alloc.hibernatedData)
	assert.Equal(t, size, alloc.Size())
	assert.Equal(t, used, alloc.Used())
	require.NoError(t, tree.Verify())

	// The arena is still usable and hibernates normally afterwards.
	mustInsert(t, tree, 9)
	require.NoError(t, alloc.Hibernate())
	require.NoError(t, alloc.Boot())

	keys, err := tree.SortedKeys()
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 4, 5, 8, 9}, keys)
}

func TestAllocatorFootprint(t *testing.T) {
	t.Parallel()

	alloc := NewAllocator()
	assert.Equal(t, uint64(0), alloc.Footprint())

	tree := NewWithAllocator(alloc)
	for key := range int64(4096) {
		mustInsert(t, tree, key)
	}

	running := alloc.Footprint()
	assert.GreaterOrEqual(t, running, uint64(4097*24))

	require.NoError(t, alloc.Hibernate())

	compressed := alloc.Footprint()
	assert.Positive(t, compressed)
	assert.Less(t, compressed, running)

	require.NoError(t, alloc.Boot())
	assert.GreaterOrEqual(t, alloc.Footprint(), uint64(4097*24))
}
