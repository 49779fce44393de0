package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTracingChain(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	cfg := DefaultTracingConfig()
	cfg.TracerProvider = provider

	engine := gin.New()
	engine.Use(RequestID(), Tracing(cfg), Authenticate(AuthConfig{}), TracingAttributeInjector(), SpanErrorMarker())
	engine.POST("/api/v1/invoices/:id/finalize", func(c *gin.Context) {
		c.Set(ErrorCodeKey, "INVALID_STATE")
		c.Status(http.StatusUnprocessableEntity)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices/abc/finalize", nil)
	req.Header.Set(RequestIDHeader, "req-7")
	req.Header.Set(ActorHeader, "clerk")
	engine.ServeHTTP(httptest.NewRecorder(), req)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, codes.Error, span.Status().Code)

	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range span.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, "req-7", attrs["request_id"].AsString())
	assert.Equal(t, "clerk", attrs["actor"].AsString())
	assert.Equal(t, "INVALID_STATE", attrs["error.code"].AsString())
}

func TestTracing_Disabled(t *testing.T) {
	engine := gin.New()
	engine.Use(Tracing(TracingConfig{Enabled: false}), SpanErrorMarker())
	engine.GET("/x", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
