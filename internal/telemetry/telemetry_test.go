package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	o := Options{ServiceName: "xiaoban", Version: "test"}
	assert.False(t, o.Enabled())

	shutdown, err := Init(context.Background(), o)
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))

	// The global providers stay usable.
	_, span := Tracer("test").Start(context.Background(), "noop")
	span.End()
	_, err = Meter("test").Int64Counter("noop_total")
	assert.NoError(t, err)
}

func TestSamplerRatios(t *testing.T) {
	assert.Contains(t, sampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}

func TestInitWithEndpointBuildsProviders(t *testing.T) {
	// Exporters connect lazily, so an unreachable endpoint still initializes.
	shutdown, err := Init(context.Background(), Options{
		Endpoint:       "127.0.0.1:1",
		Insecure:       true,
		Version:        "test",
		SampleRatio:    1,
		MetricInterval: time.Hour,
	})
	require.NoError(t, err)

	_, span := Tracer("test").Start(context.Background(), "sampled")
	assert.True(t, span.SpanContext().IsSampled())
	assert.NotEqual(t, trace.TraceID{}, span.SpanContext().TraceID())
	span.End()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	// Flushing to a closed port may fail; shutdown must still return.
	_ = shutdown(ctx)
}
