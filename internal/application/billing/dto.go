package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/medledger/billing/internal/domain/billing"
	"github.com/medledger/billing/internal/domain/shared"
	"github.com/medledger/billing/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// =============================================================================
// Requests
// =============================================================================

// InvoiceItemInput is one line of a create or add-item request.
// Amounts are major units (dollars).
type InvoiceItemInput struct {
	Description   string
	ProcedureCode string
	Quantity      int64
	UnitPrice     decimal.Decimal
}

// CreateInvoiceRequest creates a DRAFT invoice
type CreateInvoiceRequest struct {
	PatientID      string
	AppointmentID  string
	Items          []InvoiceItemInput
	InvoiceDate    *time.Time
	DueDate        *time.Time // defaults to invoice date + default due days
	TaxRate        *decimal.Decimal
	DiscountAmount *decimal.Decimal
	Notes          string
}

// InvoiceListFilter represents filter options for the invoice list
type InvoiceListFilter struct {
	Status    string
	PatientID string
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
	OrderBy   string
	OrderDir  string
}

// ClaimListFilter represents filter options for the claim list
type ClaimListFilter struct {
	InvoiceID *uuid.UUID
	Status    string
	Page      int
	PageSize  int
	OrderBy   string
	OrderDir  string
}

// PaymentListFilter represents filter options for the payment list
type PaymentListFilter struct {
	InvoiceID *uuid.UUID
	Status    string
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
	OrderBy   string
	OrderDir  string
}

// SubmitClaimRequest submits an insurance claim for an invoice
type SubmitClaimRequest struct {
	InvoiceID         uuid.UUID
	InsuranceProvider string
	PolicyNumber      string
	GroupNumber       string
	SubscriberName    string
	SubscriberID      string
	ServiceDate       *time.Time
}

// ProcessClaimRequest records the insurer's adjudication.
// Nil amounts are omitted; which ones are required depends on Action.
type ProcessClaimRequest struct {
	Action                string
	AllowedAmount         *decimal.Decimal
	PaidAmount            *decimal.Decimal
	PatientResponsibility *decimal.Decimal
	CopayAmount           *decimal.Decimal
	DeductibleAmount      *decimal.Decimal
	CoinsuranceAmount     *decimal.Decimal
	DenialCode            string
	DenialReason          string
	Notes                 string
	EOBReference          string
}

// CardInput carries non-sensitive card metadata
type CardInput struct {
	Brand       string
	Last4       string
	ExpiryMonth int
	ExpiryYear  int
}

// RecordPaymentRequest records a captured payment
type RecordPaymentRequest struct {
	InvoiceID         uuid.UUID
	Amount            decimal.Decimal
	Method            string
	Card              *CardInput
	TransactionID     string
	AuthorizationCode string
	AllowOverpayment  bool
	Notes             string
}

// RefundPaymentRequest refunds a payment; a nil Amount refunds the remainder
type RefundPaymentRequest struct {
	Amount *decimal.Decimal
	Reason string
}

// =============================================================================
// Responses
// =============================================================================

// InvoiceItemResponse represents an invoice line in API responses
type InvoiceItemResponse struct {
	ID            uuid.UUID         `json:"id"`
	Description   string            `json:"description"`
	ProcedureCode string            `json:"procedure_code,omitempty"`
	Quantity      int64             `json:"quantity"`
	UnitPrice     valueobject.Money `json:"unit_price"`
	TotalPrice    valueobject.Money `json:"total_price"`
	SortOrder     int               `json:"sort_order"`
}

// InvoiceResponse represents an invoice in API responses.
// Status is the effective status, so a past-due invoice reads as OVERDUE.
type InvoiceResponse struct {
	ID                   uuid.UUID             `json:"id"`
	InvoiceNumber        string                `json:"invoice_number"`
	PatientID            string                `json:"patient_id"`
	AppointmentID        string                `json:"appointment_id,omitempty"`
	Items                []InvoiceItemResponse `json:"items"`
	TaxRate              decimal.Decimal       `json:"tax_rate"`
	Subtotal             valueobject.Money     `json:"subtotal"`
	TaxAmount            valueobject.Money     `json:"tax_amount"`
	DiscountAmount       valueobject.Money     `json:"discount_amount"`
	TotalAmount          valueobject.Money     `json:"total_amount"`
	PaidAmount           valueobject.Money     `json:"paid_amount"`
	BalanceDue           valueobject.Money     `json:"balance_due"`
	InvoiceDate          string                `json:"invoice_date"`
	DueDate              string                `json:"due_date"`
	Status               string                `json:"status"`
	InsuranceClaimNumber string                `json:"insurance_claim_number,omitempty"`
	InsuranceAmount      *valueobject.Money    `json:"insurance_amount,omitempty"`
	Notes                string                `json:"notes,omitempty"`
	PaymentCount         int                   `json:"payment_count"`
	SentAt               *time.Time            `json:"sent_at,omitempty"`
	SettledAt            *time.Time            `json:"settled_at,omitempty"`
	ClosedAt             *time.Time            `json:"closed_at,omitempty"`
	StatusReason         string                `json:"status_reason,omitempty"`
	CreatedBy            string                `json:"created_by,omitempty"`
	CreatedAt            time.Time             `json:"created_at"`
	UpdatedAt            time.Time             `json:"updated_at"`
	Version              int                   `json:"version"`
}

// InvoiceListItemResponse represents an invoice in list responses
type InvoiceListItemResponse struct {
	ID            uuid.UUID         `json:"id"`
	InvoiceNumber string            `json:"invoice_number"`
	PatientID     string            `json:"patient_id"`
	TotalAmount   valueobject.Money `json:"total_amount"`
	BalanceDue    valueobject.Money `json:"balance_due"`
	InvoiceDate   string            `json:"invoice_date"`
	DueDate       string            `json:"due_date"`
	Status        string            `json:"status"`
	ItemCount     int               `json:"item_count"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// OutcomeResponse flattens the adjudication outcome variant
type OutcomeResponse struct {
	Kind                  string             `json:"kind"`
	AllowedAmount         *valueobject.Money `json:"allowed_amount,omitempty"`
	PaidAmount            *valueobject.Money `json:"paid_amount,omitempty"`
	PatientResponsibility *valueobject.Money `json:"patient_responsibility,omitempty"`
	CopayAmount           *valueobject.Money `json:"copay_amount,omitempty"`
	DeductibleAmount      *valueobject.Money `json:"deductible_amount,omitempty"`
	CoinsuranceAmount     *valueobject.Money `json:"coinsurance_amount,omitempty"`
	DenialCode            string             `json:"denial_code,omitempty"`
	DenialReason          string             `json:"denial_reason,omitempty"`
}

// ClaimHistoryEntry is one recorded claim status change
type ClaimHistoryEntry struct {
	From  string    `json:"from,omitempty"`
	To    string    `json:"to"`
	Actor string    `json:"actor,omitempty"`
	Note  string    `json:"note,omitempty"`
	At    time.Time `json:"at"`
}

// ClaimResponse represents a claim in API responses
type ClaimResponse struct {
	ID                uuid.UUID           `json:"id"`
	ClaimNumber       string              `json:"claim_number"`
	InvoiceID         uuid.UUID           `json:"invoice_id"`
	PatientID         string              `json:"patient_id"`
	InsuranceProvider string              `json:"insurance_provider"`
	PolicyNumber      string              `json:"policy_number"`
	GroupNumber       string              `json:"group_number,omitempty"`
	SubscriberName    string              `json:"subscriber_name,omitempty"`
	SubscriberID      string              `json:"subscriber_id,omitempty"`
	BilledAmount      valueobject.Money   `json:"billed_amount"`
	Outcome           OutcomeResponse     `json:"outcome"`
	Status            string              `json:"status"`
	ServiceDate       string              `json:"service_date"`
	SubmittedAt       time.Time           `json:"submitted_at"`
	ProcessedAt       *time.Time          `json:"processed_at,omitempty"`
	PaidAt            *time.Time          `json:"paid_at,omitempty"`
	ClosedAt          *time.Time          `json:"closed_at,omitempty"`
	AdjudicationNotes string              `json:"adjudication_notes,omitempty"`
	EOBReference      string              `json:"eob_reference,omitempty"`
	AppealReason      string              `json:"appeal_reason,omitempty"`
	History           []ClaimHistoryEntry `json:"history"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
	Version           int                 `json:"version"`
}

// CardResponse is the card metadata kept with a payment
type CardResponse struct {
	Brand       string `json:"brand,omitempty"`
	Last4       string `json:"last4"`
	ExpiryMonth int    `json:"expiry_month,omitempty"`
	ExpiryYear  int    `json:"expiry_year,omitempty"`
}

// PaymentResponse represents a payment in API responses
type PaymentResponse struct {
	ID                uuid.UUID         `json:"id"`
	ReferenceNumber   string            `json:"reference_number"`
	InvoiceID         uuid.UUID         `json:"invoice_id"`
	PatientID         string            `json:"patient_id"`
	Amount            valueobject.Money `json:"amount"`
	Method            string            `json:"method"`
	Status            string            `json:"status"`
	TransactionID     string            `json:"transaction_id,omitempty"`
	AuthorizationCode string            `json:"authorization_code,omitempty"`
	Card              *CardResponse     `json:"card,omitempty"`
	RefundAmount      valueobject.Money `json:"refund_amount"`
	RefundReason      string            `json:"refund_reason,omitempty"`
	PaymentDate       time.Time         `json:"payment_date"`
	ProcessedAt       *time.Time        `json:"processed_at,omitempty"`
	RefundedAt        *time.Time        `json:"refunded_at,omitempty"`
	Notes             string            `json:"notes,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
	Version           int               `json:"version"`
}

// PaymentResult is the outcome of recording or refunding a payment:
// the payment and its invoice after reconciliation.
type PaymentResult struct {
	Payment  PaymentResponse `json:"payment"`
	Invoice  InvoiceResponse `json:"invoice"`
	Replayed bool            `json:"replayed,omitempty"`
}

// ClaimResult is a claim command outcome with the reconciled invoice
type ClaimResult struct {
	Claim   ClaimResponse   `json:"claim"`
	Invoice InvoiceResponse `json:"invoice"`
}

// RevenueResponse is the revenue report over a date range
type RevenueResponse struct {
	StartDate      string                       `json:"start_date"`
	EndDate        string                       `json:"end_date"`
	GrossCollected valueobject.Money            `json:"gross_collected"`
	Refunded       valueobject.Money            `json:"refunded"`
	NetRevenue     valueobject.Money            `json:"net_revenue"`
	PaymentCount   int64                        `json:"payment_count"`
	RefundCount    int64                        `json:"refund_count"`
	ByMethod       map[string]valueobject.Money `json:"by_method"`
}

// SummaryResponse is the ledger-wide statistics summary
type SummaryResponse struct {
	InvoicesByStatus   map[string]int64  `json:"invoices_by_status"`
	TotalBilled        valueobject.Money `json:"total_billed"`
	TotalPaid          valueobject.Money `json:"total_paid"`
	TotalOutstanding   valueobject.Money `json:"total_outstanding"`
	OverdueCount       int64             `json:"overdue_count"`
	OverdueAmount      valueobject.Money `json:"overdue_amount"`
	ClaimsByStatus     map[string]int64  `json:"claims_by_status"`
	TotalInsurancePaid valueobject.Money `json:"total_insurance_paid"`
	GeneratedAt        time.Time         `json:"generated_at"`
}

// =============================================================================
// Mapping
// =============================================================================

const dateLayout = "2006-01-02"

// ToInvoiceResponse converts the aggregate, reporting its status as of now
func ToInvoiceResponse(inv *billing.Invoice, now time.Time) InvoiceResponse {
	items := make([]InvoiceItemResponse, len(inv.Items))
	for i, item := range inv.Items {
		items[i] = InvoiceItemResponse{
			ID:            item.ID,
			Description:   item.Description,
			ProcedureCode: item.ProcedureCode,
			Quantity:      item.Quantity,
			UnitPrice:     item.UnitPrice,
			TotalPrice:    item.TotalPrice,
			SortOrder:     item.SortOrder,
		}
	}
	return InvoiceResponse{
		ID:                   inv.ID,
		InvoiceNumber:        inv.InvoiceNumber,
		PatientID:            inv.PatientID,
		AppointmentID:        inv.AppointmentID,
		Items:                items,
		TaxRate:              inv.TaxRate.Percent(),
		Subtotal:             inv.Subtotal,
		TaxAmount:            inv.TaxAmount,
		DiscountAmount:       inv.DiscountAmount,
		TotalAmount:          inv.TotalAmount,
		PaidAmount:           inv.PaidAmount,
		BalanceDue:           inv.BalanceDue,
		InvoiceDate:          inv.InvoiceDate.Format(dateLayout),
		DueDate:              inv.DueDate.Format(dateLayout),
		Status:               string(inv.EffectiveStatus(now)),
		InsuranceClaimNumber: inv.InsuranceClaimNumber,
		InsuranceAmount:      inv.InsuranceAmount,
		Notes:                inv.Notes,
		PaymentCount:         inv.PaymentCount,
		SentAt:               inv.SentAt,
		SettledAt:            inv.SettledAt,
		ClosedAt:             inv.ClosedAt,
		StatusReason:         inv.StatusReason,
		CreatedBy:            inv.CreatedBy,
		CreatedAt:            inv.CreatedAt,
		UpdatedAt:            inv.UpdatedAt,
		Version:              inv.Version,
	}
}

// ToInvoiceListItemResponses converts a page of invoices
func ToInvoiceListItemResponses(invoices []billing.Invoice, now time.Time) []InvoiceListItemResponse {
	out := make([]InvoiceListItemResponse, len(invoices))
	for i := range invoices {
		inv := &invoices[i]
		out[i] = InvoiceListItemResponse{
			ID:            inv.ID,
			InvoiceNumber: inv.InvoiceNumber,
			PatientID:     inv.PatientID,
			TotalAmount:   inv.TotalAmount,
			BalanceDue:    inv.BalanceDue,
			InvoiceDate:   inv.InvoiceDate.Format(dateLayout),
			DueDate:       inv.DueDate.Format(dateLayout),
			Status:        string(inv.EffectiveStatus(now)),
			ItemCount:     len(inv.Items),
			UpdatedAt:     inv.UpdatedAt,
		}
	}
	return out
}

// ToOutcomeResponse flattens an Outcome
func ToOutcomeResponse(o billing.Outcome) OutcomeResponse {
	switch v := o.(type) {
	case billing.Adjudicated:
		return OutcomeResponse{
			Kind:                  string(billing.OutcomeAdjudicated),
			AllowedAmount:         &v.Allowed,
			PaidAmount:            &v.Paid,
			PatientResponsibility: &v.PatientResponsibility,
			CopayAmount:           &v.Copay,
			DeductibleAmount:      &v.Deductible,
			CoinsuranceAmount:     &v.Coinsurance,
		}
	case billing.Denied:
		return OutcomeResponse{
			Kind:         string(billing.OutcomeDenied),
			DenialCode:   v.Code,
			DenialReason: v.Reason,
		}
	}
	return OutcomeResponse{Kind: string(billing.OutcomePending)}
}

// ToClaimHistory converts the status log
func ToClaimHistory(h billing.ClaimHistory) []ClaimHistoryEntry {
	out := make([]ClaimHistoryEntry, len(h))
	for i, e := range h {
		out[i] = ClaimHistoryEntry{
			From:  string(e.From),
			To:    string(e.To),
			Actor: e.Actor,
			Note:  e.Note,
			At:    e.At,
		}
	}
	return out
}

// ToClaimResponse converts a claim aggregate
func ToClaimResponse(c *billing.Claim) ClaimResponse {
	outcome := c.Outcome
	if outcome == nil {
		outcome = billing.Pending{}
	}
	return ClaimResponse{
		ID:                c.ID,
		ClaimNumber:       c.ClaimNumber,
		InvoiceID:         c.InvoiceID,
		PatientID:         c.PatientID,
		InsuranceProvider: c.InsuranceProvider,
		PolicyNumber:      c.PolicyNumber,
		GroupNumber:       c.GroupNumber,
		SubscriberName:    c.SubscriberName,
		SubscriberID:      c.SubscriberID,
		BilledAmount:      c.BilledAmount,
		Outcome:           ToOutcomeResponse(outcome),
		Status:            string(c.Status),
		ServiceDate:       c.ServiceDate.Format(dateLayout),
		SubmittedAt:       c.SubmittedAt,
		ProcessedAt:       c.ProcessedAt,
		PaidAt:            c.PaidAt,
		ClosedAt:          c.ClosedAt,
		AdjudicationNotes: c.AdjudicationNotes,
		EOBReference:      c.EOBReference,
		AppealReason:      c.AppealReason,
		History:           ToClaimHistory(c.History),
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
		Version:           c.Version,
	}
}

// ToClaimResponses converts the claims of one invoice
func ToClaimResponses(claims []*billing.Claim) []ClaimResponse {
	out := make([]ClaimResponse, len(claims))
	for i, c := range claims {
		out[i] = ToClaimResponse(c)
	}
	return out
}

// ToClaimListResponses converts a page of claims
func ToClaimListResponses(claims []billing.Claim) []ClaimResponse {
	out := make([]ClaimResponse, len(claims))
	for i := range claims {
		out[i] = ToClaimResponse(&claims[i])
	}
	return out
}

// ToPaymentResponse converts a payment aggregate
func ToPaymentResponse(p *billing.Payment) PaymentResponse {
	resp := PaymentResponse{
		ID:                p.ID,
		ReferenceNumber:   p.ReferenceNumber,
		InvoiceID:         p.InvoiceID,
		PatientID:         p.PatientID,
		Amount:            p.Amount,
		Method:            string(p.Method),
		Status:            string(p.Status),
		TransactionID:     p.TransactionID,
		AuthorizationCode: p.AuthorizationCode,
		RefundAmount:      p.RefundAmount,
		RefundReason:      p.RefundReason,
		PaymentDate:       p.PaymentDate,
		ProcessedAt:       p.ProcessedAt,
		RefundedAt:        p.RefundedAt,
		Notes:             p.Notes,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
		Version:           p.Version,
	}
	if p.Card != nil {
		resp.Card = &CardResponse{
			Brand:       p.Card.Brand,
			Last4:       p.Card.Last4,
			ExpiryMonth: p.Card.ExpiryMonth,
			ExpiryYear:  p.Card.ExpiryYear,
		}
	}
	return resp
}

// ToPaymentListResponses converts a page of payments
func ToPaymentListResponses(payments []billing.Payment) []PaymentResponse {
	out := make([]PaymentResponse, len(payments))
	for i := range payments {
		out[i] = ToPaymentResponse(&payments[i])
	}
	return out
}

// ToPaymentResponses converts a list of payments
func ToPaymentResponses(payments []*billing.Payment) []PaymentResponse {
	out := make([]PaymentResponse, len(payments))
	for i, p := range payments {
		out[i] = ToPaymentResponse(p)
	}
	return out
}

// =============================================================================
// Input conversion
// =============================================================================

func toMoney(d decimal.Decimal, field string) (valueobject.Money, error) {
	if !d.Equal(d.Round(2)) {
		return valueobject.Money{}, shared.NewValidationErrorf("%s supports at most two decimal places", field)
	}
	m, err := valueobject.FromDecimal(d, valueobject.DefaultCurrency)
	if err != nil {
		return valueobject.Money{}, shared.NewValidationErrorf("%s is out of range", field)
	}
	return m, nil
}

func toMoneyPtr(d *decimal.Decimal, field string) (*valueobject.Money, error) {
	if d == nil {
		return nil, nil
	}
	m, err := toMoney(*d, field)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func toRate(d decimal.Decimal) (valueobject.BasisPoints, error) {
	bp, err := valueobject.PercentFromDecimal(d)
	if err != nil {
		return 0, shared.NewValidationErrorf("invalid tax rate %s: %v", d.String(), err)
	}
	return bp, nil
}

func toItemSpec(in InvoiceItemInput) (billing.ItemSpec, error) {
	price, err := toMoney(in.UnitPrice, "unit price")
	if err != nil {
		return billing.ItemSpec{}, err
	}
	return billing.ItemSpec{
		Description:   in.Description,
		ProcedureCode: in.ProcedureCode,
		Quantity:      in.Quantity,
		UnitPrice:     price,
	}, nil
}
