package billing

import (
	"fmt"
	"time"

	"github.com/medledger/billing/internal/domain/shared/valueobject"
)

// ReconciliationResult summarizes one reconciliation pass
type ReconciliationResult struct {
	PreviousStatus   InvoiceStatus
	Status           InvoiceStatus
	PaymentCredits   valueobject.Money
	InsuranceCredits valueobject.Money
	PaidAmount       valueobject.Money
	BalanceDue       valueobject.Money
	PaymentCount     int
}

// StatusChanged reports whether reconciliation moved the invoice
func (r ReconciliationResult) StatusChanged() bool {
	return r.PreviousStatus != r.Status
}

// Reconcile re-derives inv's paid amount, balance and status from every
// payment and claim that belongs to it:
//
//	paid    = sum(captured payment - refunded) + sum(paid claim credit)
//	balance = max(0, total - paid)
//
// Terminal invoices keep their status; only the amounts are refreshed.
func Reconcile(inv *Invoice, payments []*Payment, claims []*Claim, actor string, now time.Time) (ReconciliationResult, error) {
	paymentCredits := valueobject.ZeroUSD()
	count := 0
	for _, p := range payments {
		if p.InvoiceID != inv.ID {
			return ReconciliationResult{}, fmt.Errorf("payment %s does not belong to invoice %s", p.ID, inv.ID)
		}
		if !p.Status.IsCaptured() {
			continue
		}
		count++
		var err error
		if paymentCredits, err = paymentCredits.Add(p.NetAmount()); err != nil {
			return ReconciliationResult{}, err
		}
	}

	insuranceCredits := valueobject.ZeroUSD()
	for _, c := range claims {
		if c.InvoiceID != inv.ID {
			return ReconciliationResult{}, fmt.Errorf("claim %s does not belong to invoice %s", c.ID, inv.ID)
		}
		var err error
		if insuranceCredits, err = insuranceCredits.Add(c.InsuranceCredit()); err != nil {
			return ReconciliationResult{}, err
		}
	}

	paid, err := paymentCredits.Add(insuranceCredits)
	if err != nil {
		return ReconciliationResult{}, err
	}

	prev := inv.Status
	inv.applyReconciliation(paid, count, actor, now)

	return ReconciliationResult{
		PreviousStatus:   prev,
		Status:           inv.Status,
		PaymentCredits:   paymentCredits,
		InsuranceCredits: insuranceCredits,
		PaidAmount:       inv.PaidAmount,
		BalanceDue:       inv.BalanceDue,
		PaymentCount:     count,
	}, nil
}

func (inv *Invoice) applyReconciliation(paid valueobject.Money, paymentCount int, actor string, now time.Time) {
	prev := inv.Status
	inv.PaidAmount = paid
	inv.PaymentCount = paymentCount
	inv.BalanceDue = valueobject.Max(valueobject.ZeroUSD(), inv.TotalAmount.MustSubtract(paid))
	inv.touch()

	if prev.isOpen() {
		next := inv.derivedStatus(prev, now)
		if next != prev && prev.CanTransitionTo(next) {
			inv.Status = next
		}
	}
	if inv.Status == InvoiceStatusPaid && inv.SettledAt == nil {
		settledAt := now.UTC()
		inv.SettledAt = &settledAt
	}
	inv.AddDomainEvent(NewInvoiceReconciledEvent(inv, prev, actor))
}

// derivedStatus applies the reconciliation status rules to an open invoice
func (inv *Invoice) derivedStatus(prev InvoiceStatus, now time.Time) InvoiceStatus {
	paid := inv.PaidAmount
	total := inv.TotalAmount
	var next InvoiceStatus
	switch {
	case inv.SettledAt != nil && paid.IsZero() && total.IsPositive():
		// credits never shrink except by refunds, so a settled invoice back
		// at zero was refunded in full, in one step or several
		next = InvoiceStatusRefunded
	case paid.GreaterThanOrEqual(total):
		next = InvoiceStatusPaid
	case paid.IsPositive():
		next = InvoiceStatusPartiallyPaid
	default:
		next = InvoiceStatusPending
	}
	if (next == InvoiceStatusPending || next == InvoiceStatusPartiallyPaid) && inv.IsPastDue(now) {
		next = InvoiceStatusOverdue
	}
	return next
}
