package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/medledger/billing/internal/interfaces/http/handler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupBilling_RegistersLedgerRoutes(t *testing.T) {
	engine := gin.New()
	SetupBilling(engine, Handlers{
		Invoice:    handler.NewInvoiceHandler(nil),
		Claim:      handler.NewClaimHandler(nil),
		Payment:    handler.NewPaymentHandler(nil, nil),
		Statistics: handler.NewStatisticsHandler(nil),
		Health:     handler.NewHealthHandler("test", nil),
	})

	registered := make(map[string]bool)
	for _, route := range engine.Routes() {
		registered[route.Method+" "+route.Path] = true
	}

	for _, want := range []string{
		"POST /api/v1/invoices",
		"GET /api/v1/invoices/:id",
		"POST /api/v1/invoices/:id/items",
		"DELETE /api/v1/invoices/:id/items/:itemId",
		"POST /api/v1/invoices/:id/finalize",
		"POST /api/v1/invoices/:id/write-off",
		"POST /api/v1/claims",
		"POST /api/v1/claims/:id/process",
		"GET /api/v1/claims/:id/history",
		"POST /api/v1/payments",
		"GET /api/v1/payments/revenue",
		"POST /api/v1/payments/:id/refund",
		"GET /api/v1/statistics/summary",
		"GET /api/v1/health",
		"GET /health",
		"GET /ready",
	} {
		assert.True(t, registered[want], "missing route %s", want)
	}
}

func TestSetupBilling_PaymentRecordRequiresIdempotencyKeyFormat(t *testing.T) {
	engine := gin.New()
	SetupBilling(engine, Handlers{
		Invoice:    handler.NewInvoiceHandler(nil),
		Claim:      handler.NewClaimHandler(nil),
		Payment:    handler.NewPaymentHandler(nil, nil),
		Statistics: handler.NewStatisticsHandler(nil),
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", nil)
	req.Header.Set("Idempotency-Key", "bad\x01key")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
}

func TestSetupBilling_HealthIsUnversionedToo(t *testing.T) {
	engine := gin.New()
	SetupBilling(engine, Handlers{
		Invoice:    handler.NewInvoiceHandler(nil),
		Claim:      handler.NewClaimHandler(nil),
		Payment:    handler.NewPaymentHandler(nil, nil),
		Statistics: handler.NewStatisticsHandler(nil),
		Health:     handler.NewHealthHandler("test", nil),
	})

	for _, path := range []string{"/health", "/api/v1/health"} {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}
