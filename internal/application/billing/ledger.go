package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/medledger/billing/internal/domain/billing"
	"github.com/medledger/billing/internal/domain/shared"
	"github.com/medledger/billing/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Ledger is the command core shared by the invoice, claim and payment services.
//
// Every command that touches money runs through execInvoice: the invoice stripe
// is locked, the invoice row is loaded FOR UPDATE inside one transaction, the
// command mutates its aggregates, the invoice is reconciled and saved with a
// version check, and domain events are published once the transaction commits.
type Ledger struct {
	repos          TransactionalRepositories
	txScope        TransactionScope
	locks          *InvoiceLocks
	eventPublisher shared.EventPublisher
	metrics        *telemetry.BillingMetrics
	logger         *zap.Logger
	clock          func() time.Time
	defaultDueDays int
}

// NewLedger creates the ledger core. repos serves reads outside of a transaction.
func NewLedger(repos TransactionalRepositories, txScope TransactionScope, locks *InvoiceLocks) *Ledger {
	if locks == nil {
		locks = NewInvoiceLocks(DefaultInvoiceLockStripes)
	}
	return &Ledger{
		repos:          repos,
		txScope:        txScope,
		locks:          locks,
		logger:         zap.NewNop(),
		clock:          time.Now,
		defaultDueDays: 30,
	}
}

// SetEventPublisher sets the event publisher for domain events
func (l *Ledger) SetEventPublisher(publisher shared.EventPublisher) {
	l.eventPublisher = publisher
}

// SetBillingMetrics sets the business metrics recorder
func (l *Ledger) SetBillingMetrics(metrics *telemetry.BillingMetrics) {
	l.metrics = metrics
}

// SetLogger sets the logger
func (l *Ledger) SetLogger(logger *zap.Logger) {
	if logger != nil {
		l.logger = logger
	}
}

// SetClock replaces the wall clock, mainly for tests
func (l *Ledger) SetClock(clock func() time.Time) {
	if clock != nil {
		l.clock = clock
	}
}

// SetDefaultDueDays sets the due date offset applied when a create request has none
func (l *Ledger) SetDefaultDueDays(days int) {
	if days > 0 {
		l.defaultDueDays = days
	}
}

func (l *Ledger) now() time.Time {
	return l.clock().UTC()
}

// eventSource is an aggregate that buffers domain events
type eventSource interface {
	GetDomainEvents() []shared.DomainEvent
	ClearDomainEvents()
}

// invoiceCommand is the state a command sees inside its transaction
type invoiceCommand struct {
	repos   TransactionalRepositories
	invoice *billing.Invoice
	actor   string
	now     time.Time

	sources   []eventSource
	reconcile *billing.ReconciliationResult
}

// track registers an aggregate whose events are published after commit
func (c *invoiceCommand) track(src eventSource) {
	c.sources = append(c.sources, src)
}

// execInvoice runs fn as one serialized, transactional command on an invoice.
// With reconcile set, paid amount, balance and status are re-derived from all
// payments and claims before the save; otherwise only the overdue status is refreshed.
func (l *Ledger) execInvoice(
	ctx context.Context,
	operation string,
	invoiceID uuid.UUID,
	actor string,
	reconcile bool,
	fn func(ctx context.Context, cmd *invoiceCommand) error,
) (*billing.Invoice, error) {
	unlock := l.locks.Lock(invoiceID)
	defer unlock()

	cmd := &invoiceCommand{actor: actor, now: l.now()}
	err := l.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		inv, err := repos.InvoiceRepo().FindByIDForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		cmd.repos = repos
		cmd.invoice = inv
		cmd.sources = []eventSource{inv}

		if err := fn(ctx, cmd); err != nil {
			return err
		}

		if reconcile {
			res, err := reconcileInvoice(ctx, repos, inv, actor, cmd.now)
			if err != nil {
				return err
			}
			cmd.reconcile = &res
		} else {
			inv.RefreshOverdue(actor, cmd.now)
		}
		return repos.InvoiceRepo().SaveWithLock(ctx, inv)
	})
	if err != nil {
		if errors.Is(err, shared.ErrConcurrencyConflict) {
			l.metrics.RecordConflict(ctx, operation)
			l.logger.Warn("Invoice command lost a concurrent update",
				zap.String("operation", operation),
				zap.String("invoice_id", invoiceID.String()),
				zap.Error(err))
		}
		return nil, err
	}

	if cmd.reconcile != nil {
		l.metrics.RecordReconciliation(ctx, string(cmd.reconcile.Status))
		if cmd.reconcile.StatusChanged() {
			l.logger.Info("Invoice reconciled",
				zap.String("invoice_number", cmd.invoice.InvoiceNumber),
				zap.String("from", string(cmd.reconcile.PreviousStatus)),
				zap.String("to", string(cmd.reconcile.Status)),
				zap.String("balance_due", cmd.invoice.BalanceDue.String()))
		}
	}
	l.publishDomainEvents(ctx, cmd.sources...)
	return cmd.invoice, nil
}

// reconcileInvoice loads every payment and claim of inv and re-derives its balances
func reconcileInvoice(
	ctx context.Context,
	repos TransactionalRepositories,
	inv *billing.Invoice,
	actor string,
	now time.Time,
) (billing.ReconciliationResult, error) {
	payments, err := repos.PaymentRepo().FindByInvoice(ctx, inv.ID)
	if err != nil {
		return billing.ReconciliationResult{}, err
	}
	claims, err := repos.ClaimRepo().FindByInvoice(ctx, inv.ID)
	if err != nil {
		return billing.ReconciliationResult{}, err
	}
	res, err := billing.Reconcile(inv, payments, claims, actor, now)
	if err != nil {
		return billing.ReconciliationResult{}, fmt.Errorf("reconcile invoice %s: %w", inv.InvoiceNumber, err)
	}
	return res, nil
}

// publishDomainEvents publishes and clears the buffered events of each source.
// Publishing happens after commit; failures are logged and never undo the command.
func (l *Ledger) publishDomainEvents(ctx context.Context, sources ...eventSource) {
	for _, src := range sources {
		events := src.GetDomainEvents()
		if len(events) == 0 {
			continue
		}
		if l.eventPublisher != nil {
			if err := l.eventPublisher.Publish(ctx, events...); err != nil {
				l.logger.Warn("Failed to publish domain events",
					zap.Int("count", len(events)),
					zap.String("first_type", events[0].EventType()),
					zap.Error(err))
			}
		}
		src.ClearDomainEvents()
	}
}

// invoiceIDOfClaim resolves the invoice a claim belongs to
func (l *Ledger) invoiceIDOfClaim(ctx context.Context, claimID uuid.UUID) (uuid.UUID, error) {
	c, err := l.repos.ClaimRepo().FindByID(ctx, claimID)
	if err != nil {
		return uuid.Nil, err
	}
	return c.InvoiceID, nil
}

// invoiceIDOfPayment resolves the invoice a payment belongs to
func (l *Ledger) invoiceIDOfPayment(ctx context.Context, paymentID uuid.UUID) (uuid.UUID, error) {
	p, err := l.repos.PaymentRepo().FindByID(ctx, paymentID)
	if err != nil {
		return uuid.Nil, err
	}
	return p.InvoiceID, nil
}
