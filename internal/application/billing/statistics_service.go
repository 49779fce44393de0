package billing

import (
	"context"
	"time"

	"github.com/medledger/billing/internal/domain/billing"
	"github.com/medledger/billing/internal/domain/shared"
	"github.com/medledger/billing/internal/domain/shared/valueobject"
	"github.com/medledger/billing/internal/infrastructure/telemetry"
)

// maxRevenueRangeDays caps the revenue report window
const maxRevenueRangeDays = 366

// StatisticsService aggregates read-only ledger statistics
type StatisticsService struct {
	ledger *Ledger
}

// NewStatisticsService creates a new StatisticsService
func NewStatisticsService(ledger *Ledger) *StatisticsService {
	return &StatisticsService{ledger: ledger}
}

// Summary returns counts by status and the ledger-wide money totals.
// Overdue figures are derived from due dates, so they include invoices the
// overdue sweep has not stored as OVERDUE yet.
func (s *StatisticsService) Summary(ctx context.Context) (*SummaryResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "statistics", "summary")
	defer span.End()

	now := s.ledger.now()
	invoiceRepo := s.ledger.repos.InvoiceRepo()
	claimRepo := s.ledger.repos.ClaimRepo()

	invoiceCounts, err := invoiceRepo.CountByStatus(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	totals, err := invoiceRepo.SumTotals(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	overdueCount, overdueBalance, err := invoiceRepo.SumOverdue(ctx, now)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	claimCounts, err := claimRepo.CountByStatus(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	insurancePaid, err := claimRepo.SumInsurancePaid(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	resp := &SummaryResponse{
		InvoicesByStatus:   make(map[string]int64, len(billing.AllInvoiceStatuses)),
		TotalBilled:        totals.Billed,
		TotalPaid:          totals.Paid,
		TotalOutstanding:   totals.Outstanding,
		OverdueCount:       overdueCount,
		OverdueAmount:      overdueBalance,
		ClaimsByStatus:     make(map[string]int64, len(claimCounts)),
		TotalInsurancePaid: insurancePaid,
		GeneratedAt:        now,
	}
	for _, status := range billing.AllInvoiceStatuses {
		resp.InvoicesByStatus[string(status)] = invoiceCounts[status]
	}
	for status, n := range claimCounts {
		resp.ClaimsByStatus[string(status)] = n
	}
	telemetry.SetOK(span)
	return resp, nil
}

// Revenue reports collected money per payment method over the calendar days
// start..end, both inclusive. Net revenue is gross collected minus refunds.
func (s *StatisticsService) Revenue(ctx context.Context, start, end time.Time) (*RevenueResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "statistics", "revenue")
	defer span.End()

	from := dayStart(start)
	to := dayStart(end)
	if to.Before(from) {
		return nil, shared.NewValidationError("end date must not be before start date")
	}
	if to.Sub(from) > maxRevenueRangeDays*24*time.Hour {
		return nil, shared.NewValidationErrorf("date range cannot exceed %d days", maxRevenueRangeDays)
	}

	rows, err := s.ledger.repos.PaymentRepo().SumRevenue(ctx, from, to.AddDate(0, 0, 1))
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	resp := &RevenueResponse{
		StartDate:      from.Format(dateLayout),
		EndDate:        to.Format(dateLayout),
		GrossCollected: valueobject.ZeroUSD(),
		Refunded:       valueobject.ZeroUSD(),
		ByMethod:       make(map[string]valueobject.Money, len(rows)),
	}
	for _, row := range rows {
		if resp.GrossCollected, err = resp.GrossCollected.Add(row.Gross); err != nil {
			return nil, err
		}
		if resp.Refunded, err = resp.Refunded.Add(row.Refunded); err != nil {
			return nil, err
		}
		net, err := row.Gross.Subtract(row.Refunded)
		if err != nil {
			return nil, err
		}
		resp.ByMethod[string(row.Method)] = net
		resp.PaymentCount += row.PaymentCount
		resp.RefundCount += row.RefundCount
	}
	if resp.NetRevenue, err = resp.GrossCollected.Subtract(resp.Refunded); err != nil {
		return nil, err
	}
	telemetry.SetOK(span)
	return resp, nil
}

// LedgerSnapshot feeds the receivables gauges
func (s *StatisticsService) LedgerSnapshot(ctx context.Context, now time.Time) (telemetry.LedgerSnapshot, error) {
	repo := s.ledger.repos.InvoiceRepo()
	totals, err := repo.SumTotals(ctx)
	if err != nil {
		return telemetry.LedgerSnapshot{}, err
	}
	count, balance, err := repo.SumOverdue(ctx, now)
	if err != nil {
		return telemetry.LedgerSnapshot{}, err
	}
	return telemetry.LedgerSnapshot{
		OutstandingCents: totals.Outstanding.Amount(),
		OverdueCount:     count,
		OverdueCents:     balance.Amount(),
	}, nil
}

var _ telemetry.LedgerSnapshotProvider = (*StatisticsService)(nil)

func dayStart(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
