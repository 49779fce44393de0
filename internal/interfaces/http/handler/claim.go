package handler

import (
	"github.com/gin-gonic/gin"
	appbilling "github.com/medledger/billing/internal/application/billing"
	"github.com/medledger/billing/internal/interfaces/http/middleware"
	"github.com/shopspring/decimal"
)

// ClaimHandler serves the ClaimAdjudicator endpoints
type ClaimHandler struct {
	BaseHandler
	claimService *appbilling.ClaimService
}

// NewClaimHandler creates a new ClaimHandler
func NewClaimHandler(claimService *appbilling.ClaimService) *ClaimHandler {
	return &ClaimHandler{claimService: claimService}
}

// SubmitClaimBody is the request body of POST /claims.
// The billed amount is taken from the invoice total.
type SubmitClaimBody struct {
	InvoiceID         string `json:"invoice_id" binding:"required,uuid"`
	InsuranceProvider string `json:"insurance_provider" binding:"required,max=200"`
	PolicyNumber      string `json:"policy_number" binding:"required,max=64"`
	GroupNumber       string `json:"group_number" binding:"max=64"`
	SubscriberName    string `json:"subscriber_name" binding:"max=200"`
	SubscriberID      string `json:"subscriber_id" binding:"max=64"`
	ServiceDate       string `json:"service_date" binding:"omitempty,iso_date"`
}

// AdjudicationBody records the insurer's decision.
// Approvals need allowed, paid and patient responsibility amounts.
type AdjudicationBody struct {
	Action                string           `json:"action" binding:"omitempty,oneof=APPROVE PARTIALLY_APPROVE DENY REQUEST_INFO"`
	AllowedAmount         *decimal.Decimal `json:"allowed_amount" binding:"omitempty,decimal_amount"`
	PaidAmount            *decimal.Decimal `json:"paid_amount" binding:"omitempty,decimal_amount"`
	PatientResponsibility *decimal.Decimal `json:"patient_responsibility" binding:"omitempty,decimal_amount"`
	CopayAmount           *decimal.Decimal `json:"copay_amount" binding:"omitempty,decimal_amount"`
	DeductibleAmount      *decimal.Decimal `json:"deductible_amount" binding:"omitempty,decimal_amount"`
	CoinsuranceAmount     *decimal.Decimal `json:"coinsurance_amount" binding:"omitempty,decimal_amount"`
	DenialCode            string           `json:"denial_code" binding:"max=32"`
	DenialReason          string           `json:"denial_reason" binding:"max=500"`
	Notes                 string           `json:"notes" binding:"max=2000"`
	EOBReference          string           `json:"eob_reference" binding:"max=128"`
}

func (b AdjudicationBody) toRequest() appbilling.ProcessClaimRequest {
	return appbilling.ProcessClaimRequest{
		Action:                b.Action,
		AllowedAmount:         b.AllowedAmount,
		PaidAmount:            b.PaidAmount,
		PatientResponsibility: b.PatientResponsibility,
		CopayAmount:           b.CopayAmount,
		DeductibleAmount:      b.DeductibleAmount,
		CoinsuranceAmount:     b.CoinsuranceAmount,
		DenialCode:            b.DenialCode,
		DenialReason:          b.DenialReason,
		Notes:                 b.Notes,
		EOBReference:          b.EOBReference,
	}
}

// DenyClaimBody is the request body of POST /claims/:id/deny
type DenyClaimBody struct {
	DenialCode   string `json:"denial_code" binding:"max=32"`
	DenialReason string `json:"denial_reason" binding:"required,max=500"`
}

// AppealClaimBody is the request body of POST /claims/:id/appeal
type AppealClaimBody struct {
	Reason string `json:"reason" binding:"required,max=2000"`
}

// ClaimNotesBody is the optional body of POST /claims/:id/resubmit
type ClaimNotesBody struct {
	Notes string `json:"notes" binding:"max=2000"`
}

// MarkPaidBody is the optional body of POST /claims/:id/paid
type MarkPaidBody struct {
	EOBReference string `json:"eob_reference" binding:"max=128"`
}

// ClaimListQuery are the filters of GET /claims
type ClaimListQuery struct {
	InvoiceID string `form:"invoiceId" binding:"omitempty,uuid"`
	Status    string `form:"status" binding:"max=32"`
	Page      int    `form:"page" binding:"omitempty,min=1"`
	PageSize  int    `form:"pageSize" binding:"omitempty,min=1,max=100"`
	OrderBy   string `form:"orderBy" binding:"max=32"`
	OrderDir  string `form:"orderDir" binding:"omitempty,oneof=asc desc"`
}

// Submit handles POST /claims
func (h *ClaimHandler) Submit(c *gin.Context) {
	var body SubmitClaimBody
	if !h.BindJSON(c, &body) {
		return
	}
	invoiceID, ok := h.uuidField(c, "invoice_id", body.InvoiceID)
	if !ok {
		return
	}

	result, err := h.claimService.Submit(c.Request.Context(), appbilling.SubmitClaimRequest{
		InvoiceID:         invoiceID,
		InsuranceProvider: body.InsuranceProvider,
		PolicyNumber:      body.PolicyNumber,
		GroupNumber:       body.GroupNumber,
		SubscriberName:    body.SubscriberName,
		SubscriberID:      body.SubscriberID,
		ServiceDate:       parseDate(body.ServiceDate),
	}, middleware.GetActor(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// List handles GET /claims
func (h *ClaimHandler) List(c *gin.Context) {
	var q ClaimListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	invoiceID, ok := h.optionalUUIDField(c, "invoiceId", q.InvoiceID)
	if !ok {
		return
	}
	filter := appbilling.ClaimListFilter{
		InvoiceID: invoiceID,
		Status:    q.Status,
		Page:      max(q.Page, 1),
		PageSize:  q.PageSize,
		OrderBy:   q.OrderBy,
		OrderDir:  q.OrderDir,
	}
	if filter.PageSize == 0 {
		filter.PageSize = 20
	}

	claims, total, err := h.claimService.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, claims, total, filter.Page, filter.PageSize)
}

// GetByID handles GET /claims/:id
func (h *ClaimHandler) GetByID(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	claim, err := h.claimService.GetByID(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, claim)
}

// History handles GET /claims/:id/history
func (h *ClaimHandler) History(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	history, err := h.claimService.History(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, history)
}

// Review handles POST /claims/:id/review
func (h *ClaimHandler) Review(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	h.respond(c)(h.claimService.Review(c.Request.Context(), id, middleware.GetActor(c)))
}

// Process handles POST /claims/:id/process
func (h *ClaimHandler) Process(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var body AdjudicationBody
	if !h.BindJSON(c, &body) {
		return
	}
	if body.Action == "" {
		h.InvalidParam(c, "action", "This field is required")
		return
	}
	h.respond(c)(h.claimService.Process(c.Request.Context(), id, body.toRequest(), middleware.GetActor(c)))
}

// Approve handles POST /claims/:id/approve
func (h *ClaimHandler) Approve(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var body AdjudicationBody
	if !h.BindJSON(c, &body) {
		return
	}
	h.respond(c)(h.claimService.Approve(c.Request.Context(), id, body.toRequest(), middleware.GetActor(c)))
}

// Deny handles POST /claims/:id/deny
func (h *ClaimHandler) Deny(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var body DenyClaimBody
	if !h.BindJSON(c, &body) {
		return
	}
	h.respond(c)(h.claimService.Deny(c.Request.Context(), id, body.DenialCode, body.DenialReason, middleware.GetActor(c)))
}

// Appeal handles POST /claims/:id/appeal
func (h *ClaimHandler) Appeal(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var body AppealClaimBody
	if !h.BindJSON(c, &body) {
		return
	}
	h.respond(c)(h.claimService.Appeal(c.Request.Context(), id, body.Reason, middleware.GetActor(c)))
}

// Resubmit handles POST /claims/:id/resubmit
func (h *ClaimHandler) Resubmit(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var body ClaimNotesBody
	if !h.BindOptionalJSON(c, &body) {
		return
	}
	h.respond(c)(h.claimService.Resubmit(c.Request.Context(), id, body.Notes, middleware.GetActor(c)))
}

// MarkPaid handles POST /claims/:id/paid; the paid amount is credited to the invoice
func (h *ClaimHandler) MarkPaid(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var body MarkPaidBody
	if !h.BindOptionalJSON(c, &body) {
		return
	}
	h.respond(c)(h.claimService.MarkPaid(c.Request.Context(), id, body.EOBReference, middleware.GetActor(c)))
}

// Close handles POST /claims/:id/close
func (h *ClaimHandler) Close(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	h.respond(c)(h.claimService.Close(c.Request.Context(), id, middleware.GetActor(c)))
}

func (h *ClaimHandler) respond(c *gin.Context) func(*appbilling.ClaimResult, error) {
	return func(result *appbilling.ClaimResult, err error) {
		if err != nil {
			h.HandleError(c, err)
			return
		}
		h.Success(c, result)
	}
}
