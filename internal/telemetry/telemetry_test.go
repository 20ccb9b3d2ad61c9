package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// withReader binds the instruments to a manual reader for one test.
func withReader(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	require.NoError(t, InitMeterProvider(mp))
	t.Cleanup(func() {
		_ = InitMeterProvider(otel.GetMeterProvider())
		_ = mp.Shutdown(context.Background())
	})
	return reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumValue(t *testing.T, m metricdata.Metrics, attrs ...attribute.KeyValue) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "%s is %T, want an int64 sum", m.Name, m.Data)
	want := attribute.NewSet(attrs...)
	for _, dp := range sum.DataPoints {
		if dp.Attributes.Equals(&want) {
			return dp.Value
		}
	}
	return 0
}

func TestRecordersAreSafeWithoutProvider(t *testing.T) {
	ctx := context.Background()
	assert.NotPanics(t, func() {
		RecordAgentCall(ctx, "frontend", "respond", 10*time.Millisecond, nil)
		RecordAgentCall(ctx, "coordinator", "evaluate", time.Second, errors.New("x"))
		RecordTaskOutcome(ctx, "backend", "done")
		RecordRetry(ctx, "respond")
	})
}

func TestInitMeterProvider_RecordsToReader(t *testing.T) {
	reader := withReader(t)
	ctx := context.Background()

	RecordTaskOutcome(ctx, "backend", "DONE")
	RecordTaskOutcome(ctx, "backend", "DONE")
	RecordTaskOutcome(ctx, "frontend", "FAILED")
	RecordRetry(ctx, "respond")
	RecordAgentCall(ctx, "frontend", "respond", 250*time.Millisecond, nil)
	RecordAgentCall(ctx, "coordinator", "evaluate", time.Second, errors.New("timeout"))

	metrics := collect(t, reader)

	outcomes, ok := metrics["devteam_task_outcomes_total"]
	require.True(t, ok)
	assert.Equal(t, int64(2), sumValue(t, outcomes, AttrRole.String("backend"), AttrStatus.String("DONE")))
	assert.Equal(t, int64(1), sumValue(t, outcomes, AttrRole.String("frontend"), AttrStatus.String("FAILED")))

	retries, ok := metrics["devteam_retries_total"]
	require.True(t, ok)
	assert.Equal(t, int64(1), sumValue(t, retries, AttrOperation.String("respond")))

	calls, ok := metrics["devteam_agent_calls_total"]
	require.True(t, ok)
	assert.Equal(t, int64(1), sumValue(t, calls,
		AttrRole.String("coordinator"), AttrOperation.String("evaluate"), AttrStatus.String("error")))

	duration, ok := metrics["devteam_agent_call_duration_seconds"]
	require.True(t, ok)
	hist, ok := duration.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(2), count)
}

func TestInitMeterProvider_Nil(t *testing.T) {
	assert.Error(t, InitMeterProvider(nil))
}

func TestTracer_UsesGlobalProvider(t *testing.T) {
	prev := otel.GetTracerProvider()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	_, span := Tracer().Start(context.Background(), "devteam.solve")
	span.End()

	ended := sr.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "devteam.solve", ended[0].Name())
	assert.Equal(t, instrumentationName, ended[0].InstrumentationScope().Name)
}

func TestStart_Disabled(t *testing.T) {
	prev := otel.GetTracerProvider()

	shutdown, err := Start(context.Background(), Config{})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
	assert.Equal(t, prev, otel.GetTracerProvider())
}

func TestStart_InstallsProviders(t *testing.T) {
	prevTP := otel.GetTracerProvider()
	prevMP := otel.GetMeterProvider()

	shutdown, err := Start(context.Background(), Config{
		Enabled:        true,
		Endpoint:       "127.0.0.1:4318",
		ServiceVersion: "test",
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		_ = shutdown(ctx)
		otel.SetTracerProvider(prevTP)
		otel.SetMeterProvider(prevMP)
		_ = InitMeterProvider(prevMP)
	})

	_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, ok, "tracer provider is %T", otel.GetTracerProvider())
	_, ok = otel.GetMeterProvider().(*sdkmetric.MeterProvider)
	assert.True(t, ok, "meter provider is %T", otel.GetMeterProvider())
}
