package router

import (
	"github.com/gin-gonic/gin"
	"github.com/medledger/billing/internal/interfaces/http/handler"
	"github.com/medledger/billing/internal/interfaces/http/middleware"
)

// Handlers groups the HTTP handlers of the billing API
type Handlers struct {
	Invoice    *handler.InvoiceHandler
	Claim      *handler.ClaimHandler
	Payment    *handler.PaymentHandler
	Statistics *handler.StatisticsHandler
	Health     *handler.HealthHandler
}

// InvoiceRoutes declares the /invoices resource
func InvoiceRoutes(h *handler.InvoiceHandler) *ResourceGroup {
	g := NewResourceGroup("/invoices")
	g.POST("", h.Create).
		GET("", h.List).
		GET("/number/:number", h.GetByNumber).
		GET("/:id", h.GetByID).
		GET("/:id/payments", h.ListPayments).
		GET("/:id/claims", h.ListClaims).
		POST("/:id/items", h.AddItem).
		DELETE("/:id/items/:itemId", h.RemoveItem).
		POST("/:id/discount", h.ApplyDiscount).
		POST("/:id/tax", h.ApplyTax).
		POST("/:id/finalize", h.Finalize).
		POST("/:id/send", h.Send).
		POST("/:id/cancel", h.Cancel).
		POST("/:id/void", h.Void).
		POST("/:id/write-off", h.WriteOff).
		PUT("/:id/due-date", h.UpdateDueDate).
		POST("/:id/reconcile", h.Reconcile)
	return g
}

// ClaimRoutes declares the /claims resource
func ClaimRoutes(h *handler.ClaimHandler) *ResourceGroup {
	g := NewResourceGroup("/claims")
	g.POST("", h.Submit).
		GET("", h.List).
		GET("/:id", h.GetByID).
		GET("/:id/history", h.History).
		POST("/:id/review", h.Review).
		POST("/:id/process", h.Process).
		POST("/:id/approve", h.Approve).
		POST("/:id/deny", h.Deny).
		POST("/:id/appeal", h.Appeal).
		POST("/:id/resubmit", h.Resubmit).
		POST("/:id/paid", h.MarkPaid).
		POST("/:id/close", h.Close)
	return g
}

// PaymentRoutes declares the /payments resource. Recording a payment
// goes through the Idempotency-Key check; /revenue precedes /:id.
func PaymentRoutes(h *handler.PaymentHandler) *ResourceGroup {
	g := NewResourceGroup("/payments")
	g.POST("", middleware.IdempotencyKey(), h.Record).
		GET("", h.List).
		GET("/revenue", h.Revenue).
		GET("/:id", h.GetByID).
		POST("/:id/refund", h.Refund)
	return g
}

// StatisticsRoutes declares the read-only statistics resource
func StatisticsRoutes(h *handler.StatisticsHandler) *ResourceGroup {
	g := NewResourceGroup("/statistics")
	g.GET("/summary", h.Summary)
	return g
}

// healthRoutes serves the health checks inside the versioned group
type healthRoutes struct {
	h *handler.HealthHandler
}

func (r healthRoutes) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/health", r.h.Health)
	rg.GET("/ready", r.h.Ready)
}

// SetupBilling registers the whole billing API on engine under /api/v1.
// The checks are also served unversioned for load balancers.
func SetupBilling(engine *gin.Engine, h Handlers, opts ...RouterOption) *Router {
	if h.Health != nil {
		engine.GET("/health", h.Health.Health)
		engine.GET("/ready", h.Health.Ready)
	}

	r := NewRouter(engine, opts...)
	r.Register(InvoiceRoutes(h.Invoice)).
		Register(ClaimRoutes(h.Claim)).
		Register(PaymentRoutes(h.Payment)).
		Register(StatisticsRoutes(h.Statistics))
	if h.Health != nil {
		r.Register(healthRoutes{h: h.Health})
	}
	r.Setup()
	return r
}
