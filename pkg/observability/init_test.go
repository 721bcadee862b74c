package observability_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/rbtree/pkg/observability"
)

func TestInit_NoopWhenNoEndpoint(t *testing.T) {
	t.Parallel()

	providers, err := observability.Init(context.Background(), observability.DefaultConfig())
	require.NoError(t, err)

	assert.NotNil(t, providers.Tracer)
	assert.NotNil(t, providers.Meter)
	assert.NotNil(t, providers.Logger)
	assert.NotNil(t, providers.Shutdown)
	assert.Nil(t, providers.Registry)

	require.NoError(t, providers.Shutdown(context.Background()))
}

func TestInit_NoopSpanIsValid(t *testing.T) {
	t.Parallel()

	providers, err := observability.Init(context.Background(), observability.DefaultConfig())
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, providers.Shutdown(context.Background())) })

	ctx, span := providers.Tracer.Start(context.Background(), "test-op")
	defer span.End()

	assert.NotNil(t, ctx)
	assert.NotNil(t, span)
}

func TestInit_PrometheusRegistry(t *testing.T) {
	t.Parallel()

	cfg := observability.DefaultConfig()
	cfg.Prometheus = true

	providers, err := observability.Init(context.Background(), cfg)
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, providers.Shutdown(context.Background())) })

	require.NotNil(t, providers.Registry)

	counter, err := providers.Meter.Int64Counter("rbtree.test.events")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	families, err := providers.Registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestInit_LoggerWritesToConfiguredOutput(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	cfg := observability.DefaultConfig()
	cfg.LogJSON = true
	cfg.LogLevel = slog.LevelDebug
	cfg.LogOutput = &buf
	cfg.Environment = "test"

	providers, err := observability.Init(context.Background(), cfg)
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, providers.Shutdown(context.Background())) })

	providers.Logger.DebugContext(context.Background(), "init test", slog.Int("keys", 3))

	var record map[string]any

	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "init test", record["msg"])
	assert.Equal(t, "rbtree", record["service"])
	assert.Equal(t, "test", record["env"])
	assert.Equal(t, "cli", record["mode"])
}

func TestInit_ShutdownIdempotent(t *testing.T) {
	t.Parallel()

	cfg := observability.DefaultConfig()
	cfg.Prometheus = true

	providers, err := observability.Init(context.Background(), cfg)
	require.NoError(t, err)

	require.NoError(t, providers.Shutdown(context.Background()))
	assert.NotPanics(t, func() { _ = providers.Shutdown(context.Background()) })
}

func TestParseHeaders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  map[string]string
	}{
		{"empty", "", nil},
		{"blank pairs", " , ,", nil},
		{"single", "key=value", map[string]string{"key": "value"}},
		{"multiple", "k1=v1,k2=v2", map[string]string{"k1": "v1", "k2": "v2"}},
		{"spaces", " k1 = v1 , k2 = v2 ", map[string]string{"k1": "v1", "k2": "v2"}},
		{"empty value", "k1=", map[string]string{"k1": ""}},
		{"value with equals", "auth=a=b", map[string]string{"auth": "a=b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := observability.ParseHeaders(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseHeadersInvalid(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"invalid", "k1=v1,broken", "=value"} {
		_, err := observability.ParseHeaders(input)
		require.ErrorIs(t, err, observability.ErrInvalidHeader, input)
	}
}

func TestBuildResource_IncludesAppMode(t *testing.T) {
	t.Parallel()

	cfg := observability.DefaultConfig()
	cfg.Mode = observability.ModeScript

	res, err := observability.ExportBuildResource(cfg)
	require.NoError(t, err)

	found := false

	for _, attr := range res.Attributes() {
		if string(attr.Key) == "app.mode" {
			assert.Equal(t, "script", attr.Value.AsString())

			found = true
		}
	}

	assert.True(t, found, "app.mode attribute not found in resource")
}

func TestSamplerSamplesEverythingOutsideUnitInterval(t *testing.T) {
	t.Parallel()

	for _, ratio := range []float64{-1, 0, 1, 2} {
		assert.True(t, observability.ExportSamplerSpan(ratio), "ratio %g", ratio)
	}
}

func TestSamplerRatio(t *testing.T) {
	t.Parallel()

	const spans = 200

	sampled := 0

	for range spans {
		if observability.ExportSamplerSpan(0.5) {
			sampled++
		}
	}

	assert.Positive(t, sampled)
	assert.Less(t, sampled, spans)
}
