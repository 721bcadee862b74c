package check_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/rbtree/internal/check"
	"github.com/Sumatoshi-tech/rbtree/pkg/rbtree"
)

func TestRunPasses(t *testing.T) {
	t.Parallel()

	report, err := check.Run(context.Background(), check.Options{Ops: 5000, Seed: 7, KeyRange: 200}, nil)
	require.NoError(t, err)

	assert.Equal(t, 5000, report.Steps)
	assert.Positive(t, report.Inserts)
	assert.Positive(t, report.Erases)
	assert.Equal(t, report.Inserts-report.Erases, report.FinalLen)
	assert.Equal(t, report.FinalLen, report.Released)
	assert.Equal(t, report.Allocs, report.Frees)
	assert.Equal(t, uint64(report.Inserts), report.Stats.Inserts)
	assert.Equal(t, uint64(report.Erases), report.Stats.Erases)
	assert.Positive(t, report.Stats.Rotations)
	assert.GreaterOrEqual(t, report.PeakLen, report.FinalLen)
	assert.Positive(t, report.MaxHeight)
}

func TestRunIsReproducible(t *testing.T) {
	t.Parallel()

	opts := check.Options{Ops: 2000, Seed: 42, KeyRange: 50}

	first, err := check.Run(context.Background(), opts, nil)
	require.NoError(t, err)

	second, err := check.Run(context.Background(), opts, nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRunMaxNodes(t *testing.T) {
	t.Parallel()

	report, err := check.Run(context.Background(), check.Options{Ops: 3000, Seed: 3, KeyRange: 1000, MaxNodes: 16}, nil)
	require.NoError(t, err)

	assert.Positive(t, report.Rejected)
	assert.LessOrEqual(t, report.PeakLen, 16)
}

func TestRunHibernate(t *testing.T) {
	t.Parallel()

	report, err := check.Run(context.Background(),
		check.Options{Ops: 2000, Seed: 11, KeyRange: 500, HibernateEvery: 100}, nil)
	require.NoError(t, err)

	assert.Equal(t, 20, report.Hibernates)
}

func TestRunObserve(t *testing.T) {
	t.Parallel()

	var observed int

	report, err := check.Run(context.Background(), check.Options{Ops: 500, Seed: 5, KeyRange: 30},
		func(tree *rbtree.Tree) {
			observed = tree.Len()
			require.NoError(t, tree.Verify())
		})
	require.NoError(t, err)
	assert.Equal(t, report.FinalLen, observed)
}

func TestRunInvalidOptions(t *testing.T) {
	t.Parallel()

	for _, opts := range []check.Options{
		{Ops: 0, KeyRange: 10},
		{Ops: 10, KeyRange: 0},
		{Ops: 10, KeyRange: 10, MaxNodes: -1},
		{Ops: 10, KeyRange: 10, HibernateEvery: -1},
		{Ops: 10, KeyRange: 1 << 62},
	} {
		_, err := check.Run(context.Background(), opts, nil)
		require.ErrorIs(t, err, check.ErrInvalidOptions, "%+v", opts)
	}
}

func TestRunCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := check.Run(ctx, check.Options{Ops: 5000, Seed: 1, KeyRange: 100}, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1023, report.Steps)
}

func TestRunShardedPartitionsKeys(t *testing.T) {
	t.Parallel()

	opts := check.Options{Ops: 1500, Seed: 20, KeyRange: 40, HibernateEvery: 500}

	sharded, err := check.RunSharded(context.Background(), opts, 3)
	require.NoError(t, err)

	assert.Equal(t, 3, sharded.Shards)
	assert.Equal(t, 4500, sharded.Steps)
	assert.Equal(t, sharded.FinalLen, sharded.Released)
	assert.Equal(t, sharded.Allocs, sharded.Frees)
	assert.Equal(t, uint64(sharded.Inserts), sharded.Stats.Inserts)

	// Shards never share a key, so together they hold at most the 81 keys of the range.
	assert.LessOrEqual(t, sharded.FinalLen, 81)
	assert.Positive(t, sharded.FinalLen)

	// Three in-run hibernations per shard plus the final round trip.
	assert.Equal(t, 12, sharded.Hibernates)

	again, err := check.RunSharded(context.Background(), opts, 3)
	require.NoError(t, err)
	assert.Equal(t, sharded, again)
}

func TestRunShardedMoreShardsThanKeys(t *testing.T) {
	t.Parallel()

	report, err := check.RunSharded(context.Background(), check.Options{Ops: 200, Seed: 3, KeyRange: 1}, 8)
	require.NoError(t, err)

	assert.Equal(t, 1600, report.Steps)
	assert.LessOrEqual(t, report.FinalLen, 3)
	assert.LessOrEqual(t, report.PeakLen, 3)
	assert.Equal(t, report.Allocs, report.Frees)
}

func TestRunShardedInvalid(t *testing.T) {
	t.Parallel()

	_, err := check.RunSharded(context.Background(), check.Options{Ops: 10, KeyRange: 10}, 0)
	require.ErrorIs(t, err, check.ErrInvalidOptions)

	_, err = check.RunSharded(context.Background(), check.Options{Ops: 10}, 2)
	require.ErrorIs(t, err, check.ErrInvalidOptions)
}

func TestRunShardedCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := check.RunSharded(ctx, check.Options{Ops: 5000, Seed: 1, KeyRange: 100}, 2)
	require.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "shard 1")
}
