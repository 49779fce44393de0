package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// BillingMetrics provides business metrics for the billing ledger.
// It tracks payment, refund, claim and reconciliation activity, and
// periodically samples the outstanding receivables.
//
// All recording methods are safe to call on a nil *BillingMetrics.
type BillingMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	// Counter metrics (monotonically increasing)
	invoicesCreatedTotal         *Counter
	paymentsRecordedTotal        *Counter
	paymentAmountTotal           *Counter
	refundsTotal                 *Counter
	refundAmountTotal            *Counter
	claimsProcessedTotal         *Counter
	claimsPaidTotal              *Counter
	reconciliationsTotal         *Counter
	reconciliationConflictsTotal *Counter

	// Gauge metrics (point-in-time values)
	outstandingBalance *Gauge
	overdueInvoices    *Gauge
	overdueBalance     *Gauge

	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once

	ledgerProvider LedgerSnapshotProvider
}

// LedgerSnapshot is a point-in-time view of the receivables
type LedgerSnapshot struct {
	OutstandingCents int64
	OverdueCount     int64
	OverdueCents     int64
}

// LedgerSnapshotProvider supplies ledger data for periodic gauge collection.
// It keeps the telemetry layer independent of the billing domain.
type LedgerSnapshotProvider interface {
	LedgerSnapshot(ctx context.Context, now time.Time) (LedgerSnapshot, error)
}

// BillingMetricsConfig holds configuration for billing metrics.
type BillingMetricsConfig struct {
	Meter          metric.Meter
	Logger         *zap.Logger
	LedgerProvider LedgerSnapshotProvider
}

// NewBillingMetrics creates a new BillingMetrics instance.
func NewBillingMetrics(cfg BillingMetricsConfig) (*BillingMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	bm := &BillingMetrics{
		meter:          cfg.Meter,
		logger:         logger,
		stopChan:       make(chan struct{}),
		ledgerProvider: cfg.LedgerProvider,
	}

	counters := []struct {
		dst         **Counter
		name        string
		description string
		unit        string
	}{
		{&bm.invoicesCreatedTotal, "billing_invoices_created_total", "Total number of invoices created", "{invoices}"},
		{&bm.paymentsRecordedTotal, "billing_payments_recorded_total", "Total number of captured payments", "{payments}"},
		{&bm.paymentAmountTotal, "billing_payment_amount_total", "Total captured payment amount in cents", "{cents}"},
		{&bm.refundsTotal, "billing_refunds_total", "Total number of refunds issued", "{refunds}"},
		{&bm.refundAmountTotal, "billing_refund_amount_total", "Total refunded amount in cents", "{cents}"},
		{&bm.claimsProcessedTotal, "billing_claims_processed_total", "Total number of claim adjudications", "{claims}"},
		{&bm.claimsPaidTotal, "billing_claims_paid_total", "Total number of claims paid by insurers", "{claims}"},
		{&bm.reconciliationsTotal, "billing_reconciliations_total", "Total number of invoice reconciliations", "{reconciliations}"},
		{&bm.reconciliationConflictsTotal, "billing_reconciliation_conflicts_total", "Commands rejected by a concurrent invoice update", "{conflicts}"},
	}
	for _, c := range counters {
		counter, err := NewCounter(cfg.Meter, c.name, c.description, c.unit)
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}

	var err error
	if bm.outstandingBalance, err = NewGauge(cfg.Meter,
		"billing_outstanding_balance", "Sum of balance due over open invoices in cents", "{cents}"); err != nil {
		return nil, err
	}
	if bm.overdueInvoices, err = NewGauge(cfg.Meter,
		"billing_overdue_invoices", "Number of invoices past their due date with a balance", "{invoices}"); err != nil {
		return nil, err
	}
	if bm.overdueBalance, err = NewGauge(cfg.Meter,
		"billing_overdue_balance", "Sum of balance due over overdue invoices in cents", "{cents}"); err != nil {
		return nil, err
	}

	return bm, nil
}

// =============================================================================
// Ledger Metrics
// =============================================================================

// RecordInvoiceCreated counts a new DRAFT invoice
func (bm *BillingMetrics) RecordInvoiceCreated(ctx context.Context) {
	if bm == nil {
		return
	}
	bm.invoicesCreatedTotal.Inc(ctx)
}

// RecordPayment counts a captured payment and its amount in cents
func (bm *BillingMetrics) RecordPayment(ctx context.Context, method string, amountCents int64) {
	if bm == nil {
		return
	}
	bm.paymentsRecordedTotal.Inc(ctx, AttrPaymentMethod.String(method))
	bm.paymentAmountTotal.Add(ctx, amountCents, AttrPaymentMethod.String(method))
}

// RecordRefund counts a refund and its amount in cents
func (bm *BillingMetrics) RecordRefund(ctx context.Context, method string, amountCents int64) {
	if bm == nil {
		return
	}
	bm.refundsTotal.Inc(ctx, AttrPaymentMethod.String(method))
	bm.refundAmountTotal.Add(ctx, amountCents, AttrPaymentMethod.String(method))
}

// RecordClaimProcessed counts an adjudication decision
func (bm *BillingMetrics) RecordClaimProcessed(ctx context.Context, action string) {
	if bm == nil {
		return
	}
	bm.claimsProcessedTotal.Inc(ctx, AttrClaimAction.String(action))
}

// RecordClaimPaid counts a claim paid by the insurer
func (bm *BillingMetrics) RecordClaimPaid(ctx context.Context) {
	if bm == nil {
		return
	}
	bm.claimsPaidTotal.Inc(ctx)
}

// RecordReconciliation counts a reconciliation, labelled by the resulting invoice status
func (bm *BillingMetrics) RecordReconciliation(ctx context.Context, status string) {
	if bm == nil {
		return
	}
	bm.reconciliationsTotal.Inc(ctx, AttrInvoiceStatus.String(status))
}

// RecordConflict counts a command that lost an optimistic-lock race
func (bm *BillingMetrics) RecordConflict(ctx context.Context, operation string) {
	if bm == nil {
		return
	}
	bm.reconciliationConflictsTotal.Inc(ctx, AttrOperation.String(operation))
}

// RecordLedgerSnapshot records the receivables gauges
func (bm *BillingMetrics) RecordLedgerSnapshot(ctx context.Context, snap LedgerSnapshot) {
	if bm == nil {
		return
	}
	bm.outstandingBalance.Record(ctx, snap.OutstandingCents)
	bm.overdueInvoices.Record(ctx, snap.OverdueCount)
	bm.overdueBalance.Record(ctx, snap.OverdueCents)
}

// =============================================================================
// Periodic Collection
// =============================================================================

// StartPeriodicCollection samples the ledger gauges every interval (default: 5 minutes).
// This is non-blocking - use Stop() to stop collection.
func (bm *BillingMetrics) StartPeriodicCollection(ctx context.Context, interval time.Duration) {
	if bm == nil {
		return
	}
	bm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = 5 * time.Minute
		}
		go bm.runPeriodicCollection(ctx, interval)
	})
}

func (bm *BillingMetrics) runPeriodicCollection(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Collect immediately on start
	bm.collectLedgerMetrics(ctx)

	for {
		select {
		case <-bm.stopChan:
			bm.logger.Info("Stopping periodic billing metrics collection")
			return
		case <-ctx.Done():
			bm.logger.Info("Context cancelled, stopping periodic billing metrics collection")
			return
		case <-ticker.C:
			bm.collectLedgerMetrics(ctx)
		}
	}
}

func (bm *BillingMetrics) collectLedgerMetrics(ctx context.Context) {
	if bm.ledgerProvider == nil {
		bm.logger.Debug("No ledger provider configured, skipping ledger metrics collection")
		return
	}
	snap, err := bm.ledgerProvider.LedgerSnapshot(ctx, time.Now().UTC())
	if err != nil {
		bm.logger.Warn("Failed to collect ledger snapshot", zap.Error(err))
		return
	}
	bm.RecordLedgerSnapshot(ctx, snap)
}

// Stop stops the periodic collection.
func (bm *BillingMetrics) Stop() {
	if bm == nil {
		return
	}
	bm.stopOnce.Do(func() {
		close(bm.stopChan)
	})
}

// ErrMeterNil is returned by NewBillingMetrics without a meter
var ErrMeterNil = errors.New("billing metrics: meter is nil")
