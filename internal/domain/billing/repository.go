package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/medledger/billing/internal/domain/shared"
	"github.com/medledger/billing/internal/domain/shared/valueobject"
)

// InvoiceFilter defines filtering options for invoice queries
type InvoiceFilter struct {
	shared.Filter
	Status    *InvoiceStatus
	PatientID string
	From      *time.Time // invoice date lower bound
	To        *time.Time // invoice date upper bound
}

// InvoiceRepository persists the Invoice aggregate together with its items
type InvoiceRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Invoice, error)

	// FindByIDForUpdate loads the invoice and holds its row lock until the
	// surrounding transaction ends
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Invoice, error)

	FindByNumber(ctx context.Context, number string) (*Invoice, error)
	FindAll(ctx context.Context, filter InvoiceFilter) ([]Invoice, error)
	Count(ctx context.Context, filter InvoiceFilter) (int64, error)

	// Create inserts a new invoice and its items
	Create(ctx context.Context, invoice *Invoice) error

	// SaveWithLock updates the invoice if its stored version still equals
	// invoice.Version, then increments the version. A stale version yields
	// a CONFLICT domain error.
	SaveWithLock(ctx context.Context, invoice *Invoice) error

	// GenerateInvoiceNumber returns the next INV-YYYYMMDD-NNNNNN number
	GenerateInvoiceNumber(ctx context.Context, now time.Time) (string, error)

	// Statistics
	CountByStatus(ctx context.Context) (map[InvoiceStatus]int64, error)
	SumTotals(ctx context.Context) (InvoiceTotals, error)
	SumOverdue(ctx context.Context, now time.Time) (count int64, balance valueobject.Money, err error)
}

// InvoiceTotals is the ledger-wide invoice rollup
type InvoiceTotals struct {
	Billed      valueobject.Money
	Paid        valueobject.Money
	Outstanding valueobject.Money
}

// ClaimFilter defines filtering options for claim queries
type ClaimFilter struct {
	shared.Filter
	InvoiceID *uuid.UUID
	Status    *ClaimStatus
}

// ClaimRepository persists Claim aggregates
type ClaimRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Claim, error)
	FindByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]*Claim, error)
	FindAll(ctx context.Context, filter ClaimFilter) ([]Claim, error)
	Count(ctx context.Context, filter ClaimFilter) (int64, error)
	CountNonTerminalByInvoice(ctx context.Context, invoiceID uuid.UUID) (int64, error)
	Create(ctx context.Context, claim *Claim) error
	SaveWithLock(ctx context.Context, claim *Claim) error
	GenerateClaimNumber(ctx context.Context, now time.Time) (string, error)

	// Statistics
	CountByStatus(ctx context.Context) (map[ClaimStatus]int64, error)
	SumInsurancePaid(ctx context.Context) (valueobject.Money, error)
}

// PaymentFilter defines filtering options for payment queries
type PaymentFilter struct {
	shared.Filter
	InvoiceID *uuid.UUID
	Status    *PaymentStatus
	From      *time.Time
	To        *time.Time
}

// PaymentRepository persists Payment aggregates
type PaymentRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Payment, error)
	FindByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]*Payment, error)
	FindAll(ctx context.Context, filter PaymentFilter) ([]Payment, error)
	Count(ctx context.Context, filter PaymentFilter) (int64, error)
	Create(ctx context.Context, payment *Payment) error
	SaveWithLock(ctx context.Context, payment *Payment) error
	GeneratePaymentNumber(ctx context.Context, now time.Time) (string, error)

	// SumRevenue aggregates captured payments whose payment date is in [from, to)
	SumRevenue(ctx context.Context, from, to time.Time) ([]RevenueRow, error)
}

// RevenueRow is a per-method revenue aggregate
type RevenueRow struct {
	Method       PaymentMethod
	Gross        valueobject.Money
	Refunded     valueobject.Money
	PaymentCount int64
	RefundCount  int64
}

// DocumentNumber formats PREFIX-YYYYMMDD-NNNNNN
func DocumentNumber(prefix string, day time.Time, seq int) string {
	return fmt.Sprintf("%s-%s-%06d", prefix, day.UTC().Format("20060102"), seq)
}

// Document number prefixes
const (
	InvoiceNumberPrefix = "INV"
	ClaimNumberPrefix   = "CLM"
	PaymentNumberPrefix = "PAY"
)
