package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func spanContext(t *testing.T) context.Context {
	t.Helper()
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	return trace.ContextWithSpanContext(context.Background(), sc)
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	l := zap.NewExample()
	assert.Same(t, l, FromContext(WithContext(context.Background(), l)))
}

func TestRequestIDAndActor(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)

	ctx, l := WithRequestID(context.Background(), zap.New(core), "req-1")
	ctx, l = WithActor(ctx, l, "billing-clerk")
	l.Info("hello")
	FromContext(ctx).Info("again")

	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Equal(t, "billing-clerk", GetActor(ctx))
	assert.Empty(t, GetActor(context.Background()))

	for _, entry := range recorded.All() {
		fields := entry.ContextMap()
		assert.Equal(t, "req-1", fields["request_id"])
		assert.Equal(t, "billing-clerk", fields["actor"])
	}
}

func TestFields(t *testing.T) {
	assert.Empty(t, Fields(context.Background()))

	ctx, _ := WithActor(spanContext(t), zap.NewNop(), "svc-reconciler")
	core, recorded := observer.New(zapcore.InfoLevel)
	zap.New(core).Info("reconciled", Fields(ctx)...)

	fields := recorded.All()[0].ContextMap()
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", fields["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", fields["span_id"])
	assert.Equal(t, "svc-reconciler", fields["actor"])
	assert.NotContains(t, fields, "request_id")
}

func TestWithTraceContext(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	WithTraceContext(spanContext(t), zap.New(core)).Info("x")
	WithTraceContext(context.Background(), zap.New(core)).Info("y")

	logs := recorded.All()
	require.Len(t, logs, 2)
	assert.Equal(t, "00f067aa0ba902b7", logs[0].ContextMap()["span_id"])
	assert.NotContains(t, logs[1].ContextMap(), "trace_id")
}
