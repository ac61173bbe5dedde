package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// enabledConfig points at a closed port: the batcher exports asynchronously,
// so initialization succeeds without a collector.
func enabledConfig(rate float64) Config {
	return Config{
		ServiceName:    "listings-service",
		ServiceVersion: "1.0.0",
		Environment:    "test",
		OTLPEndpoint:   "127.0.0.1:0",
		SampleRate:     rate,
		Enabled:        true,
	}
}

func keepGlobals(t *testing.T) {
	t.Helper()
	tp, prop := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(prop)
	})
}

func TestInitTracer_Disabled(t *testing.T) {
	keepGlobals(t)
	before := otel.GetTracerProvider()

	shutdown, err := InitTracer(context.Background(), Config{SampleRate: 7})

	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
	assert.Equal(t, before, otel.GetTracerProvider())
	assert.ElementsMatch(t, []string{"traceparent", "tracestate", "baggage"}, otel.GetTextMapPropagator().Fields())
}

func TestInitTracer_Enabled(t *testing.T) {
	for _, rate := range []float64{0, 0.5, 1} {
		keepGlobals(t)

		shutdown, err := InitTracer(context.Background(), enabledConfig(rate))

		require.NoError(t, err, "rate %v", rate)
		assert.IsType(t, &sdktrace.TracerProvider{}, otel.GetTracerProvider())
		_ = shutdown(context.Background())
	}
}

func TestInitTracer_Rejects(t *testing.T) {
	tests := map[string]Config{
		"rate above one":  enabledConfig(2),
		"negative rate":   enabledConfig(-0.1),
		"no service name": {Enabled: true, SampleRate: 1, OTLPEndpoint: "127.0.0.1:0"},
	}
	for name, cfg := range tests {
		t.Run(name, func(t *testing.T) {
			keepGlobals(t)
			_, err := InitTracer(context.Background(), cfg)
			assert.Error(t, err)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, Config{SampleRate: 0}.Validate())
	assert.NoError(t, Config{SampleRate: 1}.Validate())
	assert.ErrorContains(t, Config{SampleRate: 1.5}.Validate(), "OTEL_SAMPLE_RATE must be between 0.0 and 1.0")
}

func TestConfig_Sampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{0, "AlwaysOffSampler"},
		{0.25, "ParentBased{root:TraceIDRatioBased{0.25}"},
		{1, "ParentBased{root:AlwaysOnSampler"},
	}
	for _, tt := range tests {
		assert.Contains(t, Config{SampleRate: tt.rate}.sampler().Description(), tt.want)
	}
}

func TestConfig_SamplerFollowsParent(t *testing.T) {
	parent := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x4b, 0xf9},
		SpanID:     trace.SpanID{0x01},
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	res := Config{SampleRate: 0.0001}.sampler().ShouldSample(sdktrace.SamplingParameters{
		ParentContext: trace.ContextWithRemoteSpanContext(context.Background(), parent),
		TraceID:       parent.TraceID(),
		Name:          "GET /api/v1/properties",
	})
	assert.Equal(t, sdktrace.RecordAndSample, res.Decision)
}

func TestTracer(t *testing.T) {
	keepGlobals(t)
	rec := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(rec)

	_, span := Tracer("internal/coordinator").Start(context.Background(), "search")
	defer span.End()

	ro, ok := span.(sdktrace.ReadOnlySpan)
	require.True(t, ok)
	assert.Equal(t, InstrumentationPrefix+"internal/coordinator", ro.InstrumentationScope().Name)
}
