package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/medledger/billing/internal/domain/shared"
	"github.com/medledger/billing/internal/domain/shared/valueobject"
)

const aggregateTypePayment = "Payment"

// CardMetadata is the non-sensitive card information kept with a payment
type CardMetadata struct {
	Brand       string
	Last4       string
	ExpiryMonth int
	ExpiryYear  int
}

// Validate checks the card metadata shape
func (c CardMetadata) Validate() error {
	if len(c.Last4) != 4 {
		return shared.NewValidationError("card last4 must have exactly 4 digits")
	}
	for _, r := range c.Last4 {
		if r < '0' || r > '9' {
			return shared.NewValidationError("card last4 must be numeric")
		}
	}
	if c.ExpiryMonth != 0 && (c.ExpiryMonth < 1 || c.ExpiryMonth > 12) {
		return shared.NewValidationError("card expiry month must be between 1 and 12")
	}
	return nil
}

// Payment is a captured or refunded monetary transaction against an invoice
type Payment struct {
	shared.BaseAggregateRoot
	ReferenceNumber   string
	InvoiceID         uuid.UUID
	PatientID         string
	Amount            valueobject.Money
	Method            PaymentMethod
	Status            PaymentStatus
	TransactionID     string
	AuthorizationCode string
	Card              *CardMetadata
	FailureReason     string
	RefundAmount      valueobject.Money
	RefundReason      string
	PaymentDate       time.Time
	ProcessedAt       *time.Time
	RefundedAt        *time.Time
	Notes             string
	CreatedBy         string
}

// RecordPaymentParams groups the inputs of RecordPayment
type RecordPaymentParams struct {
	ReferenceNumber   string
	Amount            valueobject.Money
	Method            PaymentMethod
	Card              *CardMetadata
	TransactionID     string
	AuthorizationCode string
	AllowOverpayment  bool
	Notes             string
	Actor             string
	Now               time.Time
}

// RecordPayment captures a payment against inv. Capture is pre-authorized by
// the external processor, so the payment walks PENDING -> PROCESSING -> COMPLETED.
// The invoice itself is updated by reconciliation.
func RecordPayment(inv *Invoice, p RecordPaymentParams) (*Payment, error) {
	now := p.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	if status := inv.EffectiveStatus(now); !status.AcceptsPayment() {
		return nil, shared.NewInvalidStateError("invoice", string(status), "record payment for")
	}
	if p.ReferenceNumber == "" {
		return nil, shared.NewValidationError("payment reference number cannot be empty")
	}
	if !p.Amount.IsPositive() {
		return nil, shared.NewValidationError("payment amount must be positive")
	}
	if !p.Method.IsValid() {
		return nil, shared.NewValidationErrorf("unknown payment method %q", p.Method)
	}
	if p.Card != nil {
		if !p.Method.IsCard() {
			return nil, shared.NewValidationError("card metadata is only allowed for card payments")
		}
		if err := p.Card.Validate(); err != nil {
			return nil, err
		}
	}
	if p.Amount.GreaterThan(inv.BalanceDue) && !p.AllowOverpayment {
		return nil, shared.NewValidationError("amount exceeds balance due").
			WithDetail("balance_due", inv.BalanceDue.Display()).
			WithDetail("amount", p.Amount.Display())
	}

	pay := &Payment{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		ReferenceNumber:   p.ReferenceNumber,
		InvoiceID:         inv.ID,
		PatientID:         inv.PatientID,
		Amount:            p.Amount,
		Method:            p.Method,
		Status:            PaymentStatusPending,
		TransactionID:     p.TransactionID,
		AuthorizationCode: p.AuthorizationCode,
		Card:              p.Card,
		RefundAmount:      valueobject.ZeroUSD(),
		PaymentDate:       now,
		Notes:             p.Notes,
		CreatedBy:         p.Actor,
	}
	if err := pay.transition(PaymentStatusProcessing, "process", p.Actor, now); err != nil {
		return nil, err
	}
	if err := pay.transition(PaymentStatusCompleted, "complete", p.Actor, now); err != nil {
		return nil, err
	}
	pay.ProcessedAt = &now
	pay.ClearDomainEvents()
	pay.AddDomainEvent(NewPaymentRecordedEvent(pay))
	return pay, nil
}

func (p *Payment) transition(next PaymentStatus, attempted, actor string, now time.Time) error {
	if !p.Status.CanTransitionTo(next) {
		return shared.NewInvalidStateError("payment", string(p.Status), attempted)
	}
	from := p.Status
	p.Status = next
	p.Touch(now)
	p.AddDomainEvent(NewPaymentStatusChangedEvent(p, from, actor))
	return nil
}

// RemainingRefundable is the captured amount not yet refunded
func (p *Payment) RemainingRefundable() valueobject.Money {
	return p.Amount.MustSubtract(p.RefundAmount)
}

// NetAmount is what the payment currently contributes to the invoice
func (p *Payment) NetAmount() valueobject.Money {
	if !p.Status.IsCaptured() {
		return valueobject.ZeroUSD()
	}
	return p.RemainingRefundable()
}

// Refund returns money to the patient. A nil amount refunds the full remaining
// captured amount. Reconciliation applies the negative credit to the invoice.
func (p *Payment) Refund(amount *valueobject.Money, reason, actor string, now time.Time) (valueobject.Money, error) {
	if !p.Status.CanRefund() {
		return valueobject.Money{}, shared.NewInvalidStateError("payment", string(p.Status), "refund")
	}
	remaining := p.RemainingRefundable()
	refund := remaining
	if amount != nil {
		refund = *amount
	}
	if !refund.IsPositive() {
		return valueobject.Money{}, shared.NewValidationError("refund amount must be positive")
	}
	if refund.GreaterThan(remaining) {
		return valueobject.Money{}, shared.NewValidationErrorf(
			"refund amount %s exceeds refundable amount %s", refund.Display(), remaining.Display())
	}

	next := PaymentStatusPartiallyRefunded
	if refund.Equals(remaining) {
		next = PaymentStatusRefunded
	}
	if err := p.transition(next, "refund", actor, now.UTC()); err != nil {
		return valueobject.Money{}, err
	}
	p.RefundAmount = p.RefundAmount.MustAdd(refund)
	if reason != "" {
		p.RefundReason = reason
	}
	refundedAt := now.UTC()
	p.RefundedAt = &refundedAt
	p.AddDomainEvent(NewPaymentRefundedEvent(p, refund, actor))
	return refund, nil
}
