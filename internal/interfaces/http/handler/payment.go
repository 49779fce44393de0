package handler

import (
	"github.com/gin-gonic/gin"
	appbilling "github.com/medledger/billing/internal/application/billing"
	"github.com/medledger/billing/internal/interfaces/http/middleware"
	"github.com/shopspring/decimal"
)

// PaymentHandler serves the PaymentProcessor endpoints
type PaymentHandler struct {
	BaseHandler
	paymentService    *appbilling.PaymentService
	statisticsService *appbilling.StatisticsService
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(paymentService *appbilling.PaymentService, statisticsService *appbilling.StatisticsService) *PaymentHandler {
	return &PaymentHandler{
		paymentService:    paymentService,
		statisticsService: statisticsService,
	}
}

// CardBody is non-sensitive card metadata; full card numbers are never accepted
type CardBody struct {
	Brand       string `json:"brand" binding:"max=32"`
	Last4       string `json:"last4" binding:"required,len=4,numeric"`
	ExpiryMonth int    `json:"expiry_month" binding:"omitempty,min=1,max=12"`
	ExpiryYear  int    `json:"expiry_year" binding:"omitempty,min=2000,max=2100"`
}

// RecordPaymentBody is the request body of POST /payments
type RecordPaymentBody struct {
	InvoiceID         string           `json:"invoice_id" binding:"required,uuid"`
	Amount            *decimal.Decimal `json:"amount" binding:"required,decimal_amount"`
	Method            string           `json:"method" binding:"required,oneof=CASH CHECK CREDIT_CARD DEBIT_CARD BANK_TRANSFER INSURANCE OTHER"`
	Card              *CardBody        `json:"card"`
	TransactionID     string           `json:"transaction_id" binding:"max=128"`
	AuthorizationCode string           `json:"authorization_code" binding:"max=64"`
	AllowOverpayment  bool             `json:"allow_overpayment"`
	Notes             string           `json:"notes" binding:"max=2000"`
}

// RefundBody is the optional body of POST /payments/:id/refund.
// Without an amount the remaining refundable amount is returned.
type RefundBody struct {
	Amount *decimal.Decimal `json:"amount" binding:"omitempty,decimal_amount"`
	Reason string           `json:"reason" binding:"max=500"`
}

// PaymentListQuery are the filters of GET /payments
type PaymentListQuery struct {
	InvoiceID string `form:"invoiceId" binding:"omitempty,uuid"`
	Status    string `form:"status" binding:"max=32"`
	From      string `form:"from" binding:"omitempty,iso_date"`
	To        string `form:"to" binding:"omitempty,iso_date"`
	Page      int    `form:"page" binding:"omitempty,min=1"`
	PageSize  int    `form:"pageSize" binding:"omitempty,min=1,max=100"`
	OrderBy   string `form:"orderBy" binding:"max=32"`
	OrderDir  string `form:"orderDir" binding:"omitempty,oneof=asc desc"`
}

// RevenueQuery is the range of GET /payments/revenue; both bounds are inclusive days
type RevenueQuery struct {
	StartDate string `form:"startDate" binding:"required,iso_date"`
	EndDate   string `form:"endDate" binding:"required,iso_date"`
}

// Record handles POST /payments.
// A repeated Idempotency-Key returns the first result with Idempotent-Replayed: true.
func (h *PaymentHandler) Record(c *gin.Context) {
	var body RecordPaymentBody
	if !h.BindJSON(c, &body) {
		return
	}
	invoiceID, ok := h.uuidField(c, "invoice_id", body.InvoiceID)
	if !ok {
		return
	}

	req := appbilling.RecordPaymentRequest{
		InvoiceID:         invoiceID,
		Amount:            *body.Amount,
		Method:            body.Method,
		TransactionID:     body.TransactionID,
		AuthorizationCode: body.AuthorizationCode,
		AllowOverpayment:  body.AllowOverpayment,
		Notes:             body.Notes,
	}
	if body.Card != nil {
		req.Card = &appbilling.CardInput{
			Brand:       body.Card.Brand,
			Last4:       body.Card.Last4,
			ExpiryMonth: body.Card.ExpiryMonth,
			ExpiryYear:  body.Card.ExpiryYear,
		}
	}

	result, err := h.paymentService.Record(c.Request.Context(), req, middleware.GetIdempotencyKey(c), middleware.GetActor(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if result.Replayed {
		c.Header(middleware.IdempotentReplayHeader, "true")
		h.Success(c, result)
		return
	}
	h.Created(c, result)
}

// List handles GET /payments
func (h *PaymentHandler) List(c *gin.Context) {
	var q PaymentListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	invoiceID, ok := h.optionalUUIDField(c, "invoiceId", q.InvoiceID)
	if !ok {
		return
	}
	filter := appbilling.PaymentListFilter{
		InvoiceID: invoiceID,
		Status:    q.Status,
		From:      parseDate(q.From),
		To:        parseDate(q.To),
		Page:      max(q.Page, 1),
		PageSize:  q.PageSize,
		OrderBy:   q.OrderBy,
		OrderDir:  q.OrderDir,
	}
	if filter.PageSize == 0 {
		filter.PageSize = 20
	}

	payments, total, err := h.paymentService.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, payments, total, filter.Page, filter.PageSize)
}

// GetByID handles GET /payments/:id
func (h *PaymentHandler) GetByID(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	payment, err := h.paymentService.GetByID(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, payment)
}

// Refund handles POST /payments/:id/refund
func (h *PaymentHandler) Refund(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var body RefundBody
	if !h.BindOptionalJSON(c, &body) {
		return
	}
	result, err := h.paymentService.Refund(c.Request.Context(), id, appbilling.RefundPaymentRequest{
		Amount: body.Amount,
		Reason: body.Reason,
	}, middleware.GetActor(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Revenue handles GET /payments/revenue?startDate=YYYY-MM-DD&endDate=YYYY-MM-DD
func (h *PaymentHandler) Revenue(c *gin.Context) {
	var q RevenueQuery
	if !h.BindQuery(c, &q) {
		return
	}
	report, err := h.statisticsService.Revenue(c.Request.Context(), *parseDate(q.StartDate), *parseDate(q.EndDate))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}
