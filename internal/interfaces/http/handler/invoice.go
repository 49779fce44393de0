package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	appbilling "github.com/medledger/billing/internal/application/billing"
	"github.com/medledger/billing/internal/interfaces/http/middleware"
	"github.com/shopspring/decimal"
)

// InvoiceHandler serves the InvoiceLedger endpoints
type InvoiceHandler struct {
	BaseHandler
	invoiceService *appbilling.InvoiceService
}

// NewInvoiceHandler creates a new InvoiceHandler
func NewInvoiceHandler(invoiceService *appbilling.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{invoiceService: invoiceService}
}

// InvoiceItemBody is one invoice line. Amounts are dollars, e.g. "150.00".
type InvoiceItemBody struct {
	Description   string           `json:"description" binding:"required,max=500"`
	ProcedureCode string           `json:"procedure_code" binding:"max=20"`
	Quantity      int64            `json:"quantity" binding:"required"`
	UnitPrice     *decimal.Decimal `json:"unit_price" binding:"required,decimal_amount"`
}

func (b InvoiceItemBody) toInput() appbilling.InvoiceItemInput {
	return appbilling.InvoiceItemInput{
		Description:   b.Description,
		ProcedureCode: b.ProcedureCode,
		Quantity:      b.Quantity,
		UnitPrice:     *b.UnitPrice,
	}
}

// CreateInvoiceBody is the request body of POST /invoices
type CreateInvoiceBody struct {
	PatientID      string            `json:"patient_id" binding:"required,max=64"`
	AppointmentID  string            `json:"appointment_id" binding:"max=64"`
	Items          []InvoiceItemBody `json:"items" binding:"required,min=1,dive"`
	InvoiceDate    string            `json:"invoice_date" binding:"omitempty,iso_date"`
	DueDate        string            `json:"due_date" binding:"omitempty,iso_date"`
	TaxRate        *decimal.Decimal  `json:"tax_rate" binding:"omitempty,decimal_amount"`
	DiscountAmount *decimal.Decimal  `json:"discount_amount" binding:"omitempty,decimal_amount"`
	Notes          string            `json:"notes" binding:"max=2000"`
}

// DiscountBody is the request body of POST /invoices/:id/discount
type DiscountBody struct {
	Amount *decimal.Decimal `json:"amount" binding:"required,decimal_amount"`
}

// TaxBody carries a percentage rate, e.g. 8 or 8.25
type TaxBody struct {
	Rate *decimal.Decimal `json:"rate" binding:"required,decimal_amount"`
}

// ReasonBody carries the reason of cancel, void and write-off
type ReasonBody struct {
	Reason string `json:"reason" binding:"max=500"`
}

// DueDateBody is the request body of PUT /invoices/:id/due-date
type DueDateBody struct {
	DueDate string `json:"due_date" binding:"required,iso_date"`
}

// InvoiceListQuery are the filters of GET /invoices
type InvoiceListQuery struct {
	Status    string `form:"status" binding:"omitempty,oneof=DRAFT PENDING PARTIALLY_PAID PAID OVERDUE CANCELLED REFUNDED VOID WRITE_OFF"`
	PatientID string `form:"patientId" binding:"max=64"`
	From      string `form:"from" binding:"omitempty,iso_date"`
	To        string `form:"to" binding:"omitempty,iso_date"`
	Page      int    `form:"page" binding:"omitempty,min=1"`
	PageSize  int    `form:"pageSize" binding:"omitempty,min=1,max=100"`
	OrderBy   string `form:"orderBy" binding:"max=32"`
	OrderDir  string `form:"orderDir" binding:"omitempty,oneof=asc desc"`
}

// Create handles POST /invoices
func (h *InvoiceHandler) Create(c *gin.Context) {
	var body CreateInvoiceBody
	if !h.BindJSON(c, &body) {
		return
	}

	req := appbilling.CreateInvoiceRequest{
		PatientID:      body.PatientID,
		AppointmentID:  body.AppointmentID,
		Items:          make([]appbilling.InvoiceItemInput, len(body.Items)),
		InvoiceDate:    parseDate(body.InvoiceDate),
		DueDate:        parseDate(body.DueDate),
		TaxRate:        body.TaxRate,
		DiscountAmount: body.DiscountAmount,
		Notes:          body.Notes,
	}
	for i, item := range body.Items {
		req.Items[i] = item.toInput()
	}

	inv, err := h.invoiceService.Create(c.Request.Context(), req, middleware.GetActor(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, inv)
}

// List handles GET /invoices
func (h *InvoiceHandler) List(c *gin.Context) {
	var q InvoiceListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter := appbilling.InvoiceListFilter{
		Status:    q.Status,
		PatientID: q.PatientID,
		From:      parseDate(q.From),
		To:        parseDate(q.To),
		Page:      q.Page,
		PageSize:  q.PageSize,
		OrderBy:   q.OrderBy,
		OrderDir:  q.OrderDir,
	}
	if filter.Page == 0 {
		filter.Page = 1
	}
	if filter.PageSize == 0 {
		filter.PageSize = 20
	}

	items, total, err := h.invoiceService.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, items, total, filter.Page, filter.PageSize)
}

// GetByID handles GET /invoices/:id
func (h *InvoiceHandler) GetByID(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	inv, err := h.invoiceService.GetByID(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, inv)
}

// GetByNumber handles GET /invoices/number/:number
func (h *InvoiceHandler) GetByNumber(c *gin.Context) {
	inv, err := h.invoiceService.GetByNumber(c.Request.Context(), c.Param("number"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, inv)
}

// AddItem handles POST /invoices/:id/items
func (h *InvoiceHandler) AddItem(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var body InvoiceItemBody
	if !h.BindJSON(c, &body) {
		return
	}
	h.respond(c)(h.invoiceService.AddItem(c.Request.Context(), id, body.toInput(), middleware.GetActor(c)))
}

// RemoveItem handles DELETE /invoices/:id/items/:itemId
func (h *InvoiceHandler) RemoveItem(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	itemID, ok := h.uuidParam(c, "itemId")
	if !ok {
		return
	}
	h.respond(c)(h.invoiceService.RemoveItem(c.Request.Context(), id, itemID, middleware.GetActor(c)))
}

// ApplyDiscount handles POST /invoices/:id/discount
func (h *InvoiceHandler) ApplyDiscount(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var body DiscountBody
	if !h.BindJSON(c, &body) {
		return
	}
	h.respond(c)(h.invoiceService.ApplyDiscount(c.Request.Context(), id, *body.Amount, middleware.GetActor(c)))
}

// ApplyTax handles POST /invoices/:id/tax
func (h *InvoiceHandler) ApplyTax(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var body TaxBody
	if !h.BindJSON(c, &body) {
		return
	}
	h.respond(c)(h.invoiceService.ApplyTax(c.Request.Context(), id, *body.Rate, middleware.GetActor(c)))
}

// Finalize handles POST /invoices/:id/finalize
func (h *InvoiceHandler) Finalize(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	h.respond(c)(h.invoiceService.Finalize(c.Request.Context(), id, middleware.GetActor(c)))
}

// Send handles POST /invoices/:id/send
func (h *InvoiceHandler) Send(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	h.respond(c)(h.invoiceService.Send(c.Request.Context(), id, middleware.GetActor(c)))
}

// Cancel handles POST /invoices/:id/cancel
func (h *InvoiceHandler) Cancel(c *gin.Context) {
	id, body, ok := h.reasonCommand(c)
	if !ok {
		return
	}
	h.respond(c)(h.invoiceService.Cancel(c.Request.Context(), id, body.Reason, middleware.GetActor(c)))
}

// Void handles POST /invoices/:id/void
func (h *InvoiceHandler) Void(c *gin.Context) {
	id, body, ok := h.reasonCommand(c)
	if !ok {
		return
	}
	h.respond(c)(h.invoiceService.Void(c.Request.Context(), id, body.Reason, middleware.GetActor(c)))
}

// WriteOff handles POST /invoices/:id/write-off
func (h *InvoiceHandler) WriteOff(c *gin.Context) {
	id, body, ok := h.reasonCommand(c)
	if !ok {
		return
	}
	h.respond(c)(h.invoiceService.WriteOff(c.Request.Context(), id, body.Reason, middleware.GetActor(c)))
}

// UpdateDueDate handles PUT /invoices/:id/due-date
func (h *InvoiceHandler) UpdateDueDate(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var body DueDateBody
	if !h.BindJSON(c, &body) {
		return
	}
	h.respond(c)(h.invoiceService.UpdateDueDate(c.Request.Context(), id, *parseDate(body.DueDate), middleware.GetActor(c)))
}

// Reconcile handles POST /invoices/:id/reconcile.
// It recomputes the paid amount from payments and paid claims.
func (h *InvoiceHandler) Reconcile(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	h.respond(c)(h.invoiceService.Reconcile(c.Request.Context(), id, middleware.GetActor(c)))
}

// ListPayments handles GET /invoices/:id/payments
func (h *InvoiceHandler) ListPayments(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	payments, err := h.invoiceService.ListPayments(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, payments)
}

// ListClaims handles GET /invoices/:id/claims
func (h *InvoiceHandler) ListClaims(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	claims, err := h.invoiceService.ListClaims(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, claims)
}

func (h *InvoiceHandler) reasonCommand(c *gin.Context) (id uuid.UUID, body ReasonBody, ok bool) {
	uid, ok := h.uuidParam(c, "id")
	if !ok {
		return id, body, false
	}
	if !h.BindOptionalJSON(c, &body) {
		return id, body, false
	}
	return uid, body, true
}

// respond writes a mutated invoice or the error of the command
func (h *InvoiceHandler) respond(c *gin.Context) func(*appbilling.InvoiceResponse, error) {
	return func(inv *appbilling.InvoiceResponse, err error) {
		if err != nil {
			h.HandleError(c, err)
			return
		}
		h.Success(c, inv)
	}
}
