package rbtree

import (
	"errors"
	"fmt"
	"sync"
)

// ShardedAllocator manages multiple Allocators to allow parallel access:
// each shard backs its own trees and is owned by one goroutine at a time.
type ShardedAllocator struct {
	shards []*Allocator
}

// NewShardedAllocator creates a new ShardedAllocator with shardCount shards.
// hibernationThreshold is split evenly between the shards.
func NewShardedAllocator(shardCount, hibernationThreshold int) *ShardedAllocator {
	if shardCount <= 0 {
		shardCount = 1
	}

	shards := make([]*Allocator, shardCount)

	for idx := range shardCount {
		shards[idx] = NewAllocator()
		shards[idx].HibernationThreshold = hibernationThreshold / shardCount
	}

	return &ShardedAllocator{shards: shards}
}

// Shard returns the allocator owning key.
func (sa *ShardedAllocator) Shard(key int64) *Allocator {
	// Fibonacci hashing spreads consecutive keys across shards.
	hash := uint64(key) * 0x9E3779B97F4A7C15 //nolint:gosec // wrap-around is the point.

	return sa.shards[hash%uint64(len(sa.shards))]
}

// Shards returns all underlying allocators.
func (sa *ShardedAllocator) Shards() []*Allocator {
	return sa.shards
}

// Footprint sums the footprints of every shard.
func (sa *ShardedAllocator) Footprint() uint64 {
	var total uint64

	for _, shard := range sa.shards {
		total += shard.Footprint()
	}

	return total
}

// Hibernate hibernates all shards in parallel, thresholds ignored.
func (sa *ShardedAllocator) Hibernate() error {
	return sa.parallel("hibernate", func(alloc *Allocator) error {
		originalThreshold := alloc.HibernationThreshold
		alloc.HibernationThreshold = 0

		defer func() { alloc.HibernationThreshold = originalThreshold }()

		return alloc.Hibernate()
	})
}

// Boot boots all shards in parallel.
func (sa *ShardedAllocator) Boot() error {
	return sa.parallel("boot", (*Allocator).Boot)
}

func (sa *ShardedAllocator) parallel(action string, fn func(alloc *Allocator) error) error {
	errs := make([]error, len(sa.shards))

	var wg sync.WaitGroup

	wg.Add(len(sa.shards))

	for idx, shard := range sa.shards {
		go func() {
			defer wg.Done()

			err := fn(shard)
			if err != nil {
				errs[idx] = fmt.Errorf("%s shard %d: %w", action, idx, err)
			}
		}()
	}

	wg.Wait()

	return errors.Join(errs...)
}
