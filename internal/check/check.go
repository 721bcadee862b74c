// Package check drives randomized insert/erase workloads against a tree and
// a sorted-slice oracle, verifying the red-black invariants after every step.
package check

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"slices"
	"sync"

	"github.com/Sumatoshi-tech/rbtree/pkg/rbtree"
)

// Sentinel errors.
var (
	ErrInvalidOptions = errors.New("invalid workload options")
	ErrMismatch       = errors.New("tree diverged from oracle")
	ErrHeightBound    = errors.New("height bound exceeded")
	ErrLeak           = errors.New("node leak")
)

// Workload mix in percent. Whatever remains after inserts and key erases
// erases an extremum through its handle.
const (
	insertPercent   = 55
	eraseKeyPercent = 35
	percent         = 100

	// fullCompareEvery is the step interval of complete key comparisons.
	fullCompareEvery = 64

	// cancelCheckEvery is the step interval of context checks.
	cancelCheckEvery = 1024

	// maxKeyRange keeps 2*KeyRange+1 within int64.
	maxKeyRange = (math.MaxInt64 - 1) / 2
)

// Options configures a randomized workload.
type Options struct {
	// Ops is the number of operations to run.
	Ops int
	// Seed feeds the pseudo-random generator; equal seeds replay equal workloads.
	Seed int64
	// KeyRange bounds keys to [-KeyRange, KeyRange].
	KeyRange int64
	// MaxNodes caps the tree size. Zero means unlimited.
	MaxNodes int
	// HibernateEvery hibernates and boots the arena every N operations. Zero disables it.
	HibernateEvery int
	// HibernationThreshold is passed to the arena.
	HibernationThreshold int
}

// Report summarizes a workload run.
type Report struct {
	Stats      rbtree.Stats `json:"stats"      yaml:"stats"`
	Steps      int          `json:"steps"      yaml:"steps"`
	Inserts    int          `json:"inserts"    yaml:"inserts"`
	Erases     int          `json:"erases"     yaml:"erases"`
	Misses     int          `json:"misses"     yaml:"misses"`
	Rejected   int          `json:"rejected"   yaml:"rejected"`
	Hibernates int          `json:"hibernates" yaml:"hibernates"`
	PeakLen    int          `json:"peak_len"   yaml:"peak_len"`
	MaxHeight  int          `json:"max_height" yaml:"max_height"`
	FinalLen   int          `json:"final_len"  yaml:"final_len"`
	Released   int          `json:"released"   yaml:"released"`
	Allocs     uint64       `json:"allocs"     yaml:"allocs"`
	Frees      uint64       `json:"frees"      yaml:"frees"`
	Footprint  uint64       `json:"footprint"  yaml:"footprint"`
	Shards     int          `json:"shards,omitempty" yaml:"shards,omitempty"`
}

// Run executes the workload. observe, if not nil, is called with the tree
// after the last operation, before it is destroyed.
//
// A failing run returns the partial report and an error wrapping
// rbtree.ErrInvariant, ErrMismatch, ErrHeightBound or ErrLeak.
func Run(ctx context.Context, opts Options, observe func(tree *rbtree.Tree)) (Report, error) {
	err := opts.validate()
	if err != nil {
		return Report{}, err
	}

	alloc := rbtree.NewAllocator()
	alloc.HibernationThreshold = opts.HibernationThreshold

	runner := newRunner(alloc, opts, opts.Seed)

	err = runner.run(ctx)

	report := runner.snapshot()

	if observe != nil {
		observe(runner.tree)
	}

	if err != nil {
		return report, err
	}

	err = runner.teardown(&report)

	return report, err
}

// RunSharded runs one workload per shard of a rbtree.ShardedAllocator,
// concurrently. Shard i is seeded with Seed+i and only touches the keys that
// rbtree.ShardedAllocator.Shard routes to it, so the trees partition the key
// range. Once every workload is done, all shards are hibernated and booted
// together and each tree is verified again, routing included, before
// teardown. Reports are summed; heights and peaks keep the maximum.
func RunSharded(ctx context.Context, opts Options, shards int) (Report, error) {
	err := opts.validate()
	if err != nil {
		return Report{}, err
	}

	if shards <= 0 {
		return Report{}, fmt.Errorf("%w: shards=%d", ErrInvalidOptions, shards)
	}

	sharded := rbtree.NewShardedAllocator(shards, opts.HibernationThreshold)
	runners := make([]*runner, shards)
	errs := make([]error, shards)

	var wg sync.WaitGroup

	wg.Add(shards)

	for idx, alloc := range sharded.Shards() {
		runners[idx] = newRunner(alloc, opts, opts.Seed+int64(idx))
		runners[idx].owns = func(key int64) bool { return sharded.Shard(key) == alloc }

		go func() {
			defer wg.Done()

			runErr := runners[idx].run(ctx)
			if runErr != nil {
				errs[idx] = fmt.Errorf("shard %d: %w", idx, runErr)
			}
		}()
	}

	wg.Wait()

	var report Report
	for _, shard := range runners {
		report.merge(shard.snapshot())
	}

	report.Shards = shards

	err = errors.Join(errs...)
	if err != nil {
		return report, err
	}

	err = sharded.Hibernate()
	if err != nil {
		return report, err
	}

	report.Hibernates += shards
	report.Footprint = sharded.Footprint()

	err = sharded.Boot()
	if err != nil {
		return report, err
	}

	for idx, shard := range runners {
		var shardReport Report

		err = shard.verify(true)
		if err == nil {
			err = shard.verifyRouting()
		}

		if err == nil {
			err = shard.teardown(&shardReport)
		}

		report.Released += shardReport.Released
		report.Allocs += shardReport.Allocs
		report.Frees += shardReport.Frees

		if err != nil {
			return report, fmt.Errorf("shard %d: %w", idx, err)
		}
	}

	return report, nil
}

func (opts Options) validate() error {
	if opts.Ops <= 0 || opts.KeyRange <= 0 || opts.KeyRange > maxKeyRange || opts.MaxNodes < 0 || opts.HibernateEvery < 0 {
		return fmt.Errorf("%w: ops=%d key-range=%d max-nodes=%d hibernate-every=%d",
			ErrInvalidOptions, opts.Ops, opts.KeyRange, opts.MaxNodes, opts.HibernateEvery)
	}

	return nil
}

func (report *Report) merge(other Report) {
	report.Stats.Add(other.Stats)
	report.Steps += other.Steps
	report.Inserts += other.Inserts
	report.Erases += other.Erases
	report.Misses += other.Misses
	report.Rejected += other.Rejected
	report.Hibernates += other.Hibernates
	report.PeakLen = max(report.PeakLen, other.PeakLen)
	report.MaxHeight = max(report.MaxHeight, other.MaxHeight)
	report.FinalLen += other.FinalLen
}

type runner struct {
	tree   *rbtree.Tree
	rng    *rand.Rand
	oracle []int64
	report Report
	opts   Options
	// owns restricts the drawn keys. Nil accepts every key.
	owns func(key int64) bool
}

func newRunner(alloc *rbtree.Allocator, opts Options, seed int64) *runner {
	var treeOpts []rbtree.Option
	if opts.MaxNodes > 0 {
		treeOpts = append(treeOpts, rbtree.WithMaxNodes(opts.MaxNodes))
	}

	return &runner{
		tree: rbtree.NewWithAllocator(alloc, treeOpts...),
		rng:  rand.New(rand.NewSource(seed)), //nolint:gosec // reproducible workloads, not security.
		opts: opts,
	}
}

// snapshot completes the running counters with the tree state.
func (r *runner) snapshot() Report {
	report := r.report
	report.Stats = r.tree.Stats()
	report.FinalLen = r.tree.Len()
	report.Footprint = r.tree.Allocator().Footprint()

	return report
}

// teardown destroys the tree and checks that every slot came back.
func (r *runner) teardown(report *Report) error {
	alloc := r.tree.Allocator()

	report.Released = r.tree.Destroy()
	report.Allocs = alloc.Allocs()
	report.Frees = alloc.Frees()

	if report.Allocs != report.Frees || alloc.Used() != 0 {
		return fmt.Errorf("%w: %d allocs, %d frees, %d live", ErrLeak, report.Allocs, report.Frees, alloc.Used())
	}

	return nil
}

func (r *runner) run(ctx context.Context) error {
	for step := 1; step <= r.opts.Ops; step++ {
		if step%cancelCheckEvery == 0 {
			ctxErr := ctx.Err()
			if ctxErr != nil {
				return fmt.Errorf("step %d: %w", step, ctxErr)
			}
		}

		err := r.step()
		if err != nil {
			return fmt.Errorf("step %d: %w", step, err)
		}

		if r.opts.HibernateEvery > 0 && step%r.opts.HibernateEvery == 0 {
			err = r.hibernate()
			if err != nil {
				return fmt.Errorf("step %d: %w", step, err)
			}
		}

		err = r.verify(step%fullCompareEvery == 0)
		if err != nil {
			return fmt.Errorf("step %d: %w", step, err)
		}

		r.report.Steps = step
	}

	return r.verify(true)
}

// drawKey draws a key in [-KeyRange, KeyRange]. With owns set, it scans
// upward from the draw, wrapping around, to the first owned key. It reports
// false when the range holds no owned key.
func (r *runner) drawKey() (int64, bool) {
	span := 2*r.opts.KeyRange + 1
	offset := r.rng.Int63n(span)

	if r.owns == nil {
		return offset - r.opts.KeyRange, true
	}

	for range span {
		if key := offset - r.opts.KeyRange; r.owns(key) {
			return key, true
		}

		offset++
		if offset == span {
			offset = 0
		}
	}

	return 0, false
}

func (r *runner) step() error {
	key, ok := r.drawKey()
	if !ok {
		r.report.Misses++

		return nil
	}

	switch roll := r.rng.Intn(percent); {
	case roll < insertPercent:
		_, err := r.tree.Insert(key)
		if errors.Is(err, rbtree.ErrAllocation) {
			r.report.Rejected++

			return nil
		}

		if err != nil {
			return err
		}

		pos, _ := slices.BinarySearch(r.oracle, key)
		r.oracle = slices.Insert(r.oracle, pos, key)
		r.report.Inserts++
		r.report.PeakLen = max(r.report.PeakLen, len(r.oracle))
	case roll < insertPercent+eraseKeyPercent:
		pos, found := slices.BinarySearch(r.oracle, key)
		if r.tree.EraseKey(key) != found {
			return fmt.Errorf("%w: erase %d found=%t in tree only", ErrMismatch, key, !found)
		}

		if !found {
			r.report.Misses++

			return nil
		}

		r.oracle = slices.Delete(r.oracle, pos, pos+1)
		r.report.Erases++
	default:
		return r.eraseExtremum(roll%2 == 0)
	}

	return nil
}

func (r *runner) eraseExtremum(lowest bool) error {
	handle, found := r.tree.Max()
	if lowest {
		handle, found = r.tree.Min()
	}

	if found != (len(r.oracle) > 0) {
		return fmt.Errorf("%w: extremum found=%t with %d oracle keys", ErrMismatch, found, len(r.oracle))
	}

	if !found {
		r.report.Misses++

		return nil
	}

	pos := len(r.oracle) - 1
	if lowest {
		pos = 0
	}

	if handle.Key() != r.oracle[pos] {
		return fmt.Errorf("%w: extremum %d, oracle %d", ErrMismatch, handle.Key(), r.oracle[pos])
	}

	err := r.tree.Erase(handle)
	if err != nil {
		return err
	}

	r.oracle = slices.Delete(r.oracle, pos, pos+1)
	r.report.Erases++

	return nil
}

func (r *runner) hibernate() error {
	alloc := r.tree.Allocator()

	err := alloc.Hibernate()
	if err != nil {
		return err
	}

	if alloc.Hibernated() {
		r.report.Hibernates++
	}

	return alloc.Boot()
}

func (r *runner) verify(full bool) error {
	err := r.tree.Verify()
	if err != nil {
		return err
	}

	size := r.tree.Len()
	if size != len(r.oracle) {
		return fmt.Errorf("%w: %d keys, oracle holds %d", ErrMismatch, size, len(r.oracle))
	}

	height := r.tree.Height()
	r.report.MaxHeight = max(r.report.MaxHeight, height)

	if bound := 2 * math.Log2(float64(size+1)); float64(height) > bound {
		return fmt.Errorf("%w: height %d with %d keys", ErrHeightBound, height, size)
	}

	if !full || size == 0 {
		return nil
	}

	keys, err := r.tree.SortedKeys()
	if err != nil {
		return err
	}

	if !slices.Equal(keys, r.oracle) {
		return fmt.Errorf("%w: sorted keys differ", ErrMismatch)
	}

	return nil
}

// verifyRouting checks that every key of the tree belongs to its shard.
func (r *runner) verifyRouting() error {
	if r.owns == nil {
		return nil
	}

	keys, err := r.tree.SortedKeys()
	if err != nil {
		return err
	}

	for _, key := range keys {
		if !r.owns(key) {
			return fmt.Errorf("%w: key %d routed to another shard", ErrMismatch, key)
		}
	}

	return nil
}
