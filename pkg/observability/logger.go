package observability

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/rbtree/pkg/rbtree"
)

const (
	attrTraceID = "trace_id"
	attrSpanID  = "span_id"
	attrService = "service"
	attrEnv     = "env"
	attrMode    = "mode"

	attrTreeLen    = "len"
	attrTreeSlots  = "slots"
	attrTreeAllocs = "allocs"
	attrTreeFrees  = "frees"

	opSeparator = "/"
)

type opKey struct{}

// WithOp returns a copy of ctx inside operation op. Nested operations are
// joined with "/", so a script line logs as "run/insert".
func WithOp(ctx context.Context, op string) context.Context {
	if parent := OpFromContext(ctx); parent != "" {
		op = parent + opSeparator + op
	}

	return context.WithValue(ctx, opKey{}, op)
}

// OpFromContext returns the operation path stored by WithOp, or "".
func OpFromContext(ctx context.Context) string {
	op, _ := ctx.Value(opKey{}).(string)

	return op
}

// OpHandler is an [slog.Handler] that stamps every record with the operation
// path of its context and, inside a sampled span, the trace and span IDs.
// Service attributes (service, env, mode) stay at the top level even when
// groups are opened later.
type OpHandler struct {
	inner slog.Handler
}

// NewOpHandler wraps inner.
func NewOpHandler(inner slog.Handler, service, env string, appMode AppMode) *OpHandler {
	attrs := []slog.Attr{
		slog.String(attrService, service),
		slog.String(attrMode, string(appMode)),
	}

	if env != "" {
		attrs = append(attrs, slog.String(attrEnv, env))
	}

	return &OpHandler{inner: inner.WithAttrs(attrs)}
}

// Enabled delegates to the inner handler.
func (oh *OpHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return oh.inner.Enabled(ctx, level)
}

// Handle adds the context attributes, then delegates.
func (oh *OpHandler) Handle(ctx context.Context, record slog.Record) error {
	if op := OpFromContext(ctx); op != "" {
		record.AddAttrs(slog.String(attrOp, op))
	}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		record.AddAttrs(
			slog.String(attrTraceID, sc.TraceID().String()),
			slog.String(attrSpanID, sc.SpanID().String()),
		)
	}

	err := oh.inner.Handle(ctx, record)
	if err != nil {
		return fmt.Errorf("op handler: %w", err)
	}

	return nil
}

// WithAttrs implements [slog.Handler].
func (oh *OpHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &OpHandler{inner: oh.inner.WithAttrs(attrs)}
}

// WithGroup implements [slog.Handler].
func (oh *OpHandler) WithGroup(name string) slog.Handler {
	return &OpHandler{inner: oh.inner.WithGroup(name)}
}

// TreeAttr groups the size counters of tree under key. It never walks the
// tree, so it is cheap enough for per-operation debug logging.
func TreeAttr(key string, tree *rbtree.Tree) slog.Attr {
	alloc := tree.Allocator()

	return slog.Group(key,
		slog.Int(attrTreeLen, tree.Len()),
		slog.Int(attrTreeSlots, alloc.Size()),
		slog.Uint64(attrTreeAllocs, alloc.Allocs()),
		slog.Uint64(attrTreeFrees, alloc.Frees()),
	)
}
