package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Sumatoshi-tech/rbtree/pkg/rbtree"
)

const (
	metricOpsTotal    = "rbtree.ops.total"
	metricOpDuration  = "rbtree.op.duration.seconds"
	metricErrorsTotal = "rbtree.errors.total"

	metricMutations  = "rbtree.mutations"
	metricRotations  = "rbtree.rotations"
	metricFixups     = "rbtree.fixups"
	metricNodes      = "rbtree.nodes"
	metricHeight     = "rbtree.height"
	metricArenaSlots = "rbtree.arena.slots"

	attrOp     = "op"
	attrStatus = "status"
	attrTree   = "tree"
	attrPhase  = "phase"
	attrCase   = "case"

	// StatusOK and StatusError label completed operations.
	StatusOK    = "ok"
	StatusError = "error"
)

// durationBucketBoundaries covers 1µs to 10s: single tree operations up to
// whole randomized workloads.
var durationBucketBoundaries = []float64{1e-6, 1e-5, 1e-4, 1e-3, 0.01, 0.1, 0.5, 1, 2.5, 5, 10}

// OpMetrics holds the OTel instruments for rate, errors, and duration of tool operations.
type OpMetrics struct {
	opsTotal    metric.Int64Counter
	opDuration  metric.Float64Histogram
	errorsTotal metric.Int64Counter
}

// NewOpMetrics creates operation instruments from the given meter.
func NewOpMetrics(mt metric.Meter) (*OpMetrics, error) {
	opsTotal, err := mt.Int64Counter(metricOpsTotal,
		metric.WithDescription("Total number of operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricOpsTotal, err)
	}

	opDuration, err := mt.Float64Histogram(metricOpDuration,
		metric.WithDescription("Operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricOpDuration, err)
	}

	errorsTotal, err := mt.Int64Counter(metricErrorsTotal,
		metric.WithDescription("Total number of failed operations"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricErrorsTotal, err)
	}

	return &OpMetrics{
		opsTotal:    opsTotal,
		opDuration:  opDuration,
		errorsTotal: errorsTotal,
	}, nil
}

// RecordOp records a completed operation with its name, status, and duration.
func (om *OpMetrics) RecordOp(ctx context.Context, op, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String(attrOp, op),
		attribute.String(attrStatus, status),
	)

	om.opsTotal.Add(ctx, 1, attrs)
	om.opDuration.Record(ctx, duration.Seconds(), attrs)

	if status == StatusError {
		om.errorsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String(attrOp, op),
		))
	}
}

// treeSnapshot is the state of a tree captured by TreeMetrics.Observe.
type treeSnapshot struct {
	stats      rbtree.Stats
	nodes      int64
	height     int64
	arenaSlots int64
}

// TreeMetrics exports the counters of one tree as observable instruments.
// The tree itself is never touched from the collection goroutine: Observe
// copies its state under a lock, and the callback reads that copy.
type TreeMetrics struct {
	registration metric.Registration
	attrs        attribute.Set
	snapshot     treeSnapshot
	mu           sync.Mutex
}

// fixupCase binds a rebalancing case to its Stats counter.
type fixupCase struct {
	read  func(stats *rbtree.Stats) uint64
	phase string
	name  string
}

var fixupCases = []fixupCase{
	{func(s *rbtree.Stats) uint64 { return s.InsertRecolors }, "insert", "recolor"},
	{func(s *rbtree.Stats) uint64 { return s.InsertZigZags }, "insert", "zigzag"},
	{func(s *rbtree.Stats) uint64 { return s.InsertLines }, "insert", "line"},
	{func(s *rbtree.Stats) uint64 { return s.EraseRedSiblings }, "erase", "red_sibling"},
	{func(s *rbtree.Stats) uint64 { return s.EraseBlackNephews }, "erase", "black_nephews"},
	{func(s *rbtree.Stats) uint64 { return s.EraseNearNephews }, "erase", "near_nephew"},
	{func(s *rbtree.Stats) uint64 { return s.EraseFarNephews }, "erase", "far_nephew"},
}

// NewTreeMetrics registers the tree instruments on mt, labelled with name.
func NewTreeMetrics(mt metric.Meter, name string) (*TreeMetrics, error) {
	mutations, err := mt.Int64ObservableCounter(metricMutations,
		metric.WithDescription("Keys inserted and erased"),
		metric.WithUnit("{key}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricMutations, err)
	}

	rotations, err := mt.Int64ObservableCounter(metricRotations,
		metric.WithDescription("Rotations performed while rebalancing"),
		metric.WithUnit("{rotation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricRotations, err)
	}

	fixups, err := mt.Int64ObservableCounter(metricFixups,
		metric.WithDescription("Rebalancing cases taken, by phase and case"),
		metric.WithUnit("{case}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricFixups, err)
	}

	nodes, err := mt.Int64ObservableGauge(metricNodes,
		metric.WithDescription("Keys currently stored"),
		metric.WithUnit("{node}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricNodes, err)
	}

	height, err := mt.Int64ObservableGauge(metricHeight,
		metric.WithDescription("Nodes on the longest root-to-leaf path"),
		metric.WithUnit("{node}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricHeight, err)
	}

	arenaSlots, err := mt.Int64ObservableGauge(metricArenaSlots,
		metric.WithDescription("Slots held by the node arena, free ones included"),
		metric.WithUnit("{slot}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricArenaSlots, err)
	}

	tm := &TreeMetrics{attrs: attribute.NewSet(attribute.String(attrTree, name))}

	tm.registration, err = mt.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		tm.mu.Lock()
		snap := tm.snapshot
		tm.mu.Unlock()

		treeAttrs := metric.WithAttributeSet(tm.attrs)

		obs.ObserveInt64(mutations, clampInt64(snap.stats.Inserts), treeAttrs,
			metric.WithAttributes(attribute.String(attrOp, "insert")))
		obs.ObserveInt64(mutations, clampInt64(snap.stats.Erases), treeAttrs,
			metric.WithAttributes(attribute.String(attrOp, "erase")))
		obs.ObserveInt64(rotations, clampInt64(snap.stats.Rotations), treeAttrs)

		for _, fc := range fixupCases {
			obs.ObserveInt64(fixups, clampInt64(fc.read(&snap.stats)), treeAttrs,
				metric.WithAttributes(attribute.String(attrPhase, fc.phase), attribute.String(attrCase, fc.name)))
		}

		obs.ObserveInt64(nodes, snap.nodes, treeAttrs)
		obs.ObserveInt64(height, snap.height, treeAttrs)
		obs.ObserveInt64(arenaSlots, snap.arenaSlots, treeAttrs)

		return nil
	}, mutations, rotations, fixups, nodes, height, arenaSlots)
	if err != nil {
		return nil, fmt.Errorf("register tree callback: %w", err)
	}

	return tm, nil
}

// Observe captures the current state of tree. It must be called from the
// goroutine that owns the tree.
func (tm *TreeMetrics) Observe(tree *rbtree.Tree) {
	snap := treeSnapshot{
		stats:      tree.Stats(),
		nodes:      int64(tree.Len()),
		arenaSlots: int64(tree.Allocator().Size()),
	}

	if !tree.Allocator().Hibernated() {
		snap.height = int64(tree.Height())
	}

	tm.mu.Lock()
	tm.snapshot = snap
	tm.mu.Unlock()
}

// Close unregisters the instruments callback.
func (tm *TreeMetrics) Close() error {
	if tm.registration == nil {
		return nil
	}

	err := tm.registration.Unregister()
	if err != nil {
		return fmt.Errorf("unregister tree metrics: %w", err)
	}

	return nil
}

func clampInt64(value uint64) int64 {
	const maxInt64 = 1<<63 - 1
	if value > maxInt64 {
		return maxInt64
	}

	return int64(value)
}
