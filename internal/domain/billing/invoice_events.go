package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/medledger/billing/internal/domain/shared"
	"github.com/medledger/billing/internal/domain/shared/valueobject"
)

// Invoice event types
const (
	EventTypeInvoiceCreated       = "InvoiceCreated"
	EventTypeInvoiceItemsChanged  = "InvoiceItemsChanged"
	EventTypeInvoiceStatusChanged = "InvoiceStatusChanged"
	EventTypeInvoiceSent          = "InvoiceSent"
	EventTypeInvoiceReconciled    = "InvoiceReconciled"
)

// InvoiceCreatedEvent is raised when a DRAFT invoice is created
type InvoiceCreatedEvent struct {
	shared.TransitionEvent
	InvoiceNumber string            `json:"invoice_number"`
	PatientID     string            `json:"patient_id"`
	TotalAmount   valueobject.Money `json:"total_amount"`
	DueDate       time.Time         `json:"due_date"`
}

// NewInvoiceCreatedEvent creates a new InvoiceCreatedEvent
func NewInvoiceCreatedEvent(inv *Invoice) *InvoiceCreatedEvent {
	return &InvoiceCreatedEvent{
		TransitionEvent: shared.TransitionEvent{
			BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceCreated, aggregateTypeInvoice, inv.ID, inv.CreatedBy),
			To:              string(inv.Status),
		},
		InvoiceNumber: inv.InvoiceNumber,
		PatientID:     inv.PatientID,
		TotalAmount:   inv.TotalAmount,
		DueDate:       inv.DueDate,
	}
}

// InvoiceItemsChangedEvent is raised when items, tax or discount of a DRAFT change
type InvoiceItemsChangedEvent struct {
	shared.BaseDomainEvent
	InvoiceNumber string            `json:"invoice_number"`
	Change        string            `json:"change"`
	ItemID        uuid.UUID         `json:"item_id,omitempty"`
	Subtotal      valueobject.Money `json:"subtotal"`
	TaxAmount     valueobject.Money `json:"tax_amount"`
	Discount      valueobject.Money `json:"discount_amount"`
	TotalAmount   valueobject.Money `json:"total_amount"`
}

// NewInvoiceItemsChangedEvent creates a new InvoiceItemsChangedEvent
func NewInvoiceItemsChangedEvent(inv *Invoice, actor, change string, itemID uuid.UUID) *InvoiceItemsChangedEvent {
	return &InvoiceItemsChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceItemsChanged, aggregateTypeInvoice, inv.ID, actor),
		InvoiceNumber:   inv.InvoiceNumber,
		Change:          change,
		ItemID:          itemID,
		Subtotal:        inv.Subtotal,
		TaxAmount:       inv.TaxAmount,
		Discount:        inv.DiscountAmount,
		TotalAmount:     inv.TotalAmount,
	}
}

// InvoiceStatusChangedEvent is raised on every invoice state machine transition
type InvoiceStatusChangedEvent struct {
	shared.TransitionEvent
	InvoiceNumber string `json:"invoice_number"`
}

// NewInvoiceStatusChangedEvent creates a new InvoiceStatusChangedEvent
func NewInvoiceStatusChangedEvent(inv *Invoice, from InvoiceStatus, actor, reason string) *InvoiceStatusChangedEvent {
	return &InvoiceStatusChangedEvent{
		TransitionEvent: shared.TransitionEvent{
			BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceStatusChanged, aggregateTypeInvoice, inv.ID, actor),
			From:            string(from),
			To:              string(inv.Status),
			Reason:          reason,
		},
		InvoiceNumber: inv.InvoiceNumber,
	}
}

// InvoiceSentEvent is raised when an invoice is delivered
type InvoiceSentEvent struct {
	shared.BaseDomainEvent
	InvoiceNumber string    `json:"invoice_number"`
	PatientID     string    `json:"patient_id"`
	SentAt        time.Time `json:"sent_at"`
}

// NewInvoiceSentEvent creates a new InvoiceSentEvent
func NewInvoiceSentEvent(inv *Invoice, actor string) *InvoiceSentEvent {
	return &InvoiceSentEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceSent, aggregateTypeInvoice, inv.ID, actor),
		InvoiceNumber:   inv.InvoiceNumber,
		PatientID:       inv.PatientID,
		SentAt:          *inv.SentAt,
	}
}

// InvoiceReconciledEvent is raised after paid amount and balance are re-derived
type InvoiceReconciledEvent struct {
	shared.TransitionEvent
	InvoiceNumber string            `json:"invoice_number"`
	PaidAmount    valueobject.Money `json:"paid_amount"`
	BalanceDue    valueobject.Money `json:"balance_due"`
}

// NewInvoiceReconciledEvent creates a new InvoiceReconciledEvent
func NewInvoiceReconciledEvent(inv *Invoice, from InvoiceStatus, actor string) *InvoiceReconciledEvent {
	return &InvoiceReconciledEvent{
		TransitionEvent: shared.TransitionEvent{
			BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceReconciled, aggregateTypeInvoice, inv.ID, actor),
			From:            string(from),
			To:              string(inv.Status),
		},
		InvoiceNumber: inv.InvoiceNumber,
		PaidAmount:    inv.PaidAmount,
		BalanceDue:    inv.BalanceDue,
	}
}
