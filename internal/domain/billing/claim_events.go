package billing

import (
	"github.com/google/uuid"
	"github.com/medledger/billing/internal/domain/shared"
	"github.com/medledger/billing/internal/domain/shared/valueobject"
)

// Claim event types
const (
	EventTypeClaimSubmitted     = "ClaimSubmitted"
	EventTypeClaimStatusChanged = "ClaimStatusChanged"
	EventTypeClaimPaid          = "ClaimPaid"
)

// ClaimSubmittedEvent is raised when a claim is submitted against an invoice
type ClaimSubmittedEvent struct {
	shared.TransitionEvent
	ClaimNumber       string            `json:"claim_number"`
	InvoiceID         uuid.UUID         `json:"invoice_id"`
	InsuranceProvider string            `json:"insurance_provider"`
	BilledAmount      valueobject.Money `json:"billed_amount"`
}

// NewClaimSubmittedEvent creates a new ClaimSubmittedEvent
func NewClaimSubmittedEvent(c *Claim) *ClaimSubmittedEvent {
	return &ClaimSubmittedEvent{
		TransitionEvent: shared.TransitionEvent{
			BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeClaimSubmitted, aggregateTypeClaim, c.ID, c.CreatedBy),
			To:              string(c.Status),
		},
		ClaimNumber:       c.ClaimNumber,
		InvoiceID:         c.InvoiceID,
		InsuranceProvider: c.InsuranceProvider,
		BilledAmount:      c.BilledAmount,
	}
}

// ClaimStatusChangedEvent is raised on every claim transition
type ClaimStatusChangedEvent struct {
	shared.TransitionEvent
	ClaimNumber string    `json:"claim_number"`
	InvoiceID   uuid.UUID `json:"invoice_id"`
}

// NewClaimStatusChangedEvent creates a new ClaimStatusChangedEvent
func NewClaimStatusChangedEvent(c *Claim, from ClaimStatus, actor, note string) *ClaimStatusChangedEvent {
	return &ClaimStatusChangedEvent{
		TransitionEvent: shared.TransitionEvent{
			BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeClaimStatusChanged, aggregateTypeClaim, c.ID, actor),
			From:            string(from),
			To:              string(c.Status),
			Reason:          note,
		},
		ClaimNumber: c.ClaimNumber,
		InvoiceID:   c.InvoiceID,
	}
}

// ClaimPaidEvent is raised when the insurer's payment is recorded
type ClaimPaidEvent struct {
	shared.BaseDomainEvent
	ClaimNumber string            `json:"claim_number"`
	InvoiceID   uuid.UUID         `json:"invoice_id"`
	PaidAmount  valueobject.Money `json:"paid_amount"`
}

// NewClaimPaidEvent creates a new ClaimPaidEvent
func NewClaimPaidEvent(c *Claim, paid valueobject.Money, actor string) *ClaimPaidEvent {
	return &ClaimPaidEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeClaimPaid, aggregateTypeClaim, c.ID, actor),
		ClaimNumber:     c.ClaimNumber,
		InvoiceID:       c.InvoiceID,
		PaidAmount:      paid,
	}
}
