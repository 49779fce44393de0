package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

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

func TestHTTPMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	engine := gin.New()
	engine.Use(HTTPMetrics(provider.Meter("test")))
	engine.GET("/api/v1/invoices/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	engine.POST("/api/v1/payments", func(c *gin.Context) {
		c.Set(ErrorCodeKey, "INVALID_STATE")
		c.Status(http.StatusUnprocessableEntity)
	})

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/api/v1/invoices/1", nil),
		httptest.NewRequest(http.MethodGet, "/api/v1/invoices/2", nil),
		httptest.NewRequest(http.MethodPost, "/api/v1/payments", nil),
	} {
		engine.ServeHTTP(httptest.NewRecorder(), req)
	}

	metrics := collect(t, reader)

	total, ok := metrics["http_server_request_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	var sum int64
	for _, dp := range total.DataPoints {
		sum += dp.Value
	}
	assert.Equal(t, int64(3), sum)

	errs, ok := metrics["http_server_ledger_errors_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, errs.DataPoints, 1)
	code, _ := errs.DataPoints[0].Attributes.Value(attribute.Key("error.code"))
	assert.Equal(t, "INVALID_STATE", code.AsString())

	_, ok = metrics["http_server_request_duration_seconds"].Data.(metricdata.Histogram[float64])
	assert.True(t, ok)
}

func TestHTTPMetrics_NilMeter(t *testing.T) {
	engine := gin.New()
	engine.Use(HTTPMetrics(nil))
	engine.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
