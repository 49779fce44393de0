package billing

import (
	"github.com/google/uuid"
	"github.com/medledger/billing/internal/domain/shared"
	"github.com/medledger/billing/internal/domain/shared/valueobject"
)

// Payment event types
const (
	EventTypePaymentRecorded      = "PaymentRecorded"
	EventTypePaymentStatusChanged = "PaymentStatusChanged"
	EventTypePaymentRefunded      = "PaymentRefunded"
)

// PaymentRecordedEvent is raised when a payment is captured against an invoice
type PaymentRecordedEvent struct {
	shared.TransitionEvent
	ReferenceNumber string            `json:"reference_number"`
	InvoiceID       uuid.UUID         `json:"invoice_id"`
	Amount          valueobject.Money `json:"amount"`
	Method          PaymentMethod     `json:"method"`
}

// NewPaymentRecordedEvent creates a new PaymentRecordedEvent
func NewPaymentRecordedEvent(p *Payment) *PaymentRecordedEvent {
	return &PaymentRecordedEvent{
		TransitionEvent: shared.TransitionEvent{
			BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentRecorded, aggregateTypePayment, p.ID, p.CreatedBy),
			From:            string(PaymentStatusPending),
			To:              string(p.Status),
		},
		ReferenceNumber: p.ReferenceNumber,
		InvoiceID:       p.InvoiceID,
		Amount:          p.Amount,
		Method:          p.Method,
	}
}

// PaymentStatusChangedEvent is raised on every payment transition
type PaymentStatusChangedEvent struct {
	shared.TransitionEvent
	ReferenceNumber string    `json:"reference_number"`
	InvoiceID       uuid.UUID `json:"invoice_id"`
}

// NewPaymentStatusChangedEvent creates a new PaymentStatusChangedEvent
func NewPaymentStatusChangedEvent(p *Payment, from PaymentStatus, actor string) *PaymentStatusChangedEvent {
	return &PaymentStatusChangedEvent{
		TransitionEvent: shared.TransitionEvent{
			BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentStatusChanged, aggregateTypePayment, p.ID, actor),
			From:            string(from),
			To:              string(p.Status),
		},
		ReferenceNumber: p.ReferenceNumber,
		InvoiceID:       p.InvoiceID,
	}
}

// PaymentRefundedEvent is raised when money is returned to the patient
type PaymentRefundedEvent struct {
	shared.BaseDomainEvent
	ReferenceNumber string            `json:"reference_number"`
	InvoiceID       uuid.UUID         `json:"invoice_id"`
	RefundAmount    valueobject.Money `json:"refund_amount"`
	TotalRefunded   valueobject.Money `json:"total_refunded"`
	Reason          string            `json:"reason,omitempty"`
}

// NewPaymentRefundedEvent creates a new PaymentRefundedEvent
func NewPaymentRefundedEvent(p *Payment, refund valueobject.Money, actor string) *PaymentRefundedEvent {
	return &PaymentRefundedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentRefunded, aggregateTypePayment, p.ID, actor),
		ReferenceNumber: p.ReferenceNumber,
		InvoiceID:       p.InvoiceID,
		RefundAmount:    refund,
		TotalRefunded:   p.RefundAmount,
		Reason:          p.RefundReason,
	}
}
