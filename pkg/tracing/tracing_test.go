package tracing

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tracesdk.NewTracerProvider(tracesdk.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return rec
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "microcourses-client", cfg.ServiceName)
	assert.Equal(t, "http://localhost:14268/api/traces", cfg.JaegerURL)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestInit_Disabled(t *testing.T) {
	tp, err := Init(DefaultConfig())
	require.NoError(t, err)
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestTraceHTTPRequest(t *testing.T) {
	rec := withRecorder(t)

	_, span := TraceHTTPRequest(context.Background(), "GET", "/auth/profile")
	span.End()

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "http.GET", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String("http.route", "/auth/profile"))
}

func TestRecordError(t *testing.T) {
	rec := withRecorder(t)

	ctx, span := TraceSessionOperation(context.Background(), "login")
	RecordError(ctx, errors.New("invalid credentials"))
	AddSpanAttributes(ctx, UserIDKey.String("u1"))
	MeasureDuration(ctx, time.Now(), "login")
	span.End()

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), UserIDKey.String("u1"))
}

func TestInjectHTTPHeaders(t *testing.T) {
	withRecorder(t)
	_, err := Init(DefaultConfig())
	require.NoError(t, err)

	ctx, span := TraceStorageOperation(context.Background(), "get", "token")
	defer span.End()

	h := http.Header{}
	InjectHTTPHeaders(ctx, h)
	assert.NotEmpty(t, h.Get("traceparent"))
}

func TestTraceStorageOperation(t *testing.T) {
	rec := withRecorder(t)

	_, span := TraceStorageOperation(context.Background(), "write", "videoProgress_c1")
	span.End()

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "storage.write", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String("storage.key", "videoProgress_c1"))
}
