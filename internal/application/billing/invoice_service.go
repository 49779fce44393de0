package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/medledger/billing/internal/domain/billing"
	"github.com/medledger/billing/internal/domain/shared"
	"github.com/medledger/billing/internal/domain/shared/valueobject"
	"github.com/medledger/billing/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// createAttempts bounds retries when two creates race for the same document number
const createAttempts = 3

// InvoiceService handles invoice ledger commands and queries
type InvoiceService struct {
	ledger *Ledger
}

// NewInvoiceService creates a new InvoiceService
func NewInvoiceService(ledger *Ledger) *InvoiceService {
	return &InvoiceService{ledger: ledger}
}

// Create creates a DRAFT invoice with a generated INV number
func (s *InvoiceService) Create(ctx context.Context, req CreateInvoiceRequest, actor string) (*InvoiceResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "create")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrPatientID, req.PatientID,
		telemetry.SpanAttrActor, actor,
	)

	now := s.ledger.now()
	params, err := s.newInvoiceParams(req, actor, now)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	var inv *billing.Invoice
	for attempt := 1; ; attempt++ {
		err = s.ledger.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
			number, err := repos.InvoiceRepo().GenerateInvoiceNumber(ctx, now)
			if err != nil {
				return err
			}
			params.InvoiceNumber = number
			created, err := billing.NewInvoice(params)
			if err != nil {
				return err
			}
			if err := repos.InvoiceRepo().Create(ctx, created); err != nil {
				return err
			}
			inv = created
			return nil
		})
		if err == nil || !errors.Is(err, shared.ErrConcurrencyConflict) || attempt == createAttempts {
			break
		}
	}
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.ledger.metrics.RecordInvoiceCreated(ctx)
	s.ledger.logger.Info("Invoice created",
		zap.String("invoice_number", inv.InvoiceNumber),
		zap.String("patient_id", inv.PatientID),
		zap.String("total", inv.TotalAmount.String()))
	s.ledger.publishDomainEvents(ctx, inv)

	telemetry.SetAttribute(span, telemetry.SpanAttrInvoiceNumber, inv.InvoiceNumber)
	telemetry.SetOK(span)
	resp := ToInvoiceResponse(inv, now)
	return &resp, nil
}

func (s *InvoiceService) newInvoiceParams(req CreateInvoiceRequest, actor string, now time.Time) (billing.NewInvoiceParams, error) {
	params := billing.NewInvoiceParams{
		PatientID:      req.PatientID,
		AppointmentID:  req.AppointmentID,
		InvoiceDate:    now,
		DiscountAmount: valueobject.ZeroUSD(),
		Notes:          req.Notes,
		CreatedBy:      actor,
	}
	if req.InvoiceDate != nil {
		params.InvoiceDate = *req.InvoiceDate
	}
	if req.DueDate != nil {
		params.DueDate = *req.DueDate
	} else {
		params.DueDate = params.InvoiceDate.AddDate(0, 0, s.ledger.defaultDueDays)
	}
	if req.TaxRate != nil {
		rate, err := toRate(*req.TaxRate)
		if err != nil {
			return params, err
		}
		params.TaxRate = rate
	}
	if req.DiscountAmount != nil {
		discount, err := toMoney(*req.DiscountAmount, "discount amount")
		if err != nil {
			return params, err
		}
		params.DiscountAmount = discount
	}
	params.Items = make([]billing.ItemSpec, 0, len(req.Items))
	for _, in := range req.Items {
		spec, err := toItemSpec(in)
		if err != nil {
			return params, err
		}
		params.Items = append(params.Items, spec)
	}
	return params, nil
}

// GetByID retrieves an invoice by ID
func (s *InvoiceService) GetByID(ctx context.Context, id uuid.UUID) (*InvoiceResponse, error) {
	inv, err := s.ledger.repos.InvoiceRepo().FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToInvoiceResponse(inv, s.ledger.now())
	return &resp, nil
}

// GetByNumber retrieves an invoice by its INV number
func (s *InvoiceService) GetByNumber(ctx context.Context, number string) (*InvoiceResponse, error) {
	inv, err := s.ledger.repos.InvoiceRepo().FindByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	resp := ToInvoiceResponse(inv, s.ledger.now())
	return &resp, nil
}

// List retrieves a page of invoices with filtering.
// A stored PENDING invoice past its due date is listed as OVERDUE.
func (s *InvoiceService) List(ctx context.Context, filter InvoiceListFilter) ([]InvoiceListItemResponse, int64, error) {
	if filter.OrderBy == "" {
		filter.OrderBy = "invoice_date"
	}
	domainFilter := billing.InvoiceFilter{
		Filter: shared.Filter{
			Page:     filter.Page,
			PageSize: filter.PageSize,
			OrderBy:  filter.OrderBy,
			OrderDir: filter.OrderDir,
		}.Normalize(),
		PatientID: filter.PatientID,
		From:      filter.From,
		To:        filter.To,
	}
	if filter.Status != "" {
		status := billing.InvoiceStatus(filter.Status)
		if !status.IsValid() {
			return nil, 0, shared.NewValidationErrorf("unknown invoice status %q", filter.Status)
		}
		domainFilter.Status = &status
	}

	repo := s.ledger.repos.InvoiceRepo()
	invoices, err := repo.FindAll(ctx, domainFilter)
	if err != nil {
		return nil, 0, err
	}
	total, err := repo.Count(ctx, domainFilter)
	if err != nil {
		return nil, 0, err
	}
	return ToInvoiceListItemResponses(invoices, s.ledger.now()), total, nil
}

// ListPayments lists every payment of an invoice
func (s *InvoiceService) ListPayments(ctx context.Context, id uuid.UUID) ([]PaymentResponse, error) {
	if _, err := s.ledger.repos.InvoiceRepo().FindByID(ctx, id); err != nil {
		return nil, err
	}
	payments, err := s.ledger.repos.PaymentRepo().FindByInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	return ToPaymentResponses(payments), nil
}

// ListClaims lists every claim of an invoice
func (s *InvoiceService) ListClaims(ctx context.Context, id uuid.UUID) ([]ClaimResponse, error) {
	if _, err := s.ledger.repos.InvoiceRepo().FindByID(ctx, id); err != nil {
		return nil, err
	}
	claims, err := s.ledger.repos.ClaimRepo().FindByInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	return ToClaimResponses(claims), nil
}

// =============================================================================
// Draft editing
// =============================================================================

// AddItem appends a line to a DRAFT invoice
func (s *InvoiceService) AddItem(ctx context.Context, id uuid.UUID, in InvoiceItemInput, actor string) (*InvoiceResponse, error) {
	spec, err := toItemSpec(in)
	if err != nil {
		return nil, err
	}
	return s.command(ctx, "add_item", id, actor, func(_ context.Context, cmd *invoiceCommand) error {
		_, err := cmd.invoice.AddItem(spec, actor)
		return err
	})
}

// RemoveItem drops a line from a DRAFT invoice
func (s *InvoiceService) RemoveItem(ctx context.Context, id, itemID uuid.UUID, actor string) (*InvoiceResponse, error) {
	return s.command(ctx, "remove_item", id, actor, func(_ context.Context, cmd *invoiceCommand) error {
		return cmd.invoice.RemoveItem(itemID, actor)
	})
}

// ApplyDiscount sets the discount of a DRAFT invoice
func (s *InvoiceService) ApplyDiscount(ctx context.Context, id uuid.UUID, amount decimal.Decimal, actor string) (*InvoiceResponse, error) {
	discount, err := toMoney(amount, "discount amount")
	if err != nil {
		return nil, err
	}
	return s.command(ctx, "apply_discount", id, actor, func(_ context.Context, cmd *invoiceCommand) error {
		return cmd.invoice.ApplyDiscount(discount, actor)
	})
}

// ApplyTax sets the tax rate (percent) of a DRAFT invoice
func (s *InvoiceService) ApplyTax(ctx context.Context, id uuid.UUID, ratePercent decimal.Decimal, actor string) (*InvoiceResponse, error) {
	rate, err := toRate(ratePercent)
	if err != nil {
		return nil, err
	}
	return s.command(ctx, "apply_tax", id, actor, func(_ context.Context, cmd *invoiceCommand) error {
		return cmd.invoice.ApplyTax(rate, actor)
	})
}

// =============================================================================
// Lifecycle
// =============================================================================

// Finalize moves a DRAFT invoice to PENDING, or on to PAID when it totals zero
func (s *InvoiceService) Finalize(ctx context.Context, id uuid.UUID, actor string) (*InvoiceResponse, error) {
	// a zero-total invoice is settled the moment it is issued
	return s.reconcilingCommand(ctx, "finalize", id, actor, func(_ context.Context, cmd *invoiceCommand) error {
		return cmd.invoice.Finalize(actor)
	})
}

// Send records that the invoice was delivered to the patient
func (s *InvoiceService) Send(ctx context.Context, id uuid.UUID, actor string) (*InvoiceResponse, error) {
	return s.command(ctx, "send", id, actor, func(_ context.Context, cmd *invoiceCommand) error {
		return cmd.invoice.Send(actor, cmd.now)
	})
}

// Cancel cancels an invoice that has received no payment
func (s *InvoiceService) Cancel(ctx context.Context, id uuid.UUID, reason, actor string) (*InvoiceResponse, error) {
	return s.command(ctx, "cancel", id, actor, func(_ context.Context, cmd *invoiceCommand) error {
		return cmd.invoice.Cancel(reason, actor, cmd.now)
	})
}

// Void administratively voids an invoice
func (s *InvoiceService) Void(ctx context.Context, id uuid.UUID, reason, actor string) (*InvoiceResponse, error) {
	return s.command(ctx, "void", id, actor, func(_ context.Context, cmd *invoiceCommand) error {
		return cmd.invoice.Void(reason, actor, cmd.now)
	})
}

// WriteOff forgives the outstanding balance
func (s *InvoiceService) WriteOff(ctx context.Context, id uuid.UUID, reason, actor string) (*InvoiceResponse, error) {
	return s.command(ctx, "write_off", id, actor, func(_ context.Context, cmd *invoiceCommand) error {
		return cmd.invoice.WriteOff(reason, actor, cmd.now)
	})
}

// UpdateDueDate moves the due date of an open invoice
func (s *InvoiceService) UpdateDueDate(ctx context.Context, id uuid.UUID, dueDate time.Time, actor string) (*InvoiceResponse, error) {
	return s.command(ctx, "update_due_date", id, actor, func(_ context.Context, cmd *invoiceCommand) error {
		return cmd.invoice.UpdateDueDate(dueDate, actor, cmd.now)
	})
}

// Reconcile re-derives paid amount, balance and status from the invoice's
// payments and claims. It is idempotent.
func (s *InvoiceService) Reconcile(ctx context.Context, id uuid.UUID, actor string) (*InvoiceResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "reconcile")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrInvoiceID, id.String())

	var (
		inv    *billing.Invoice
		opErr  error
		nowUTC time.Time
	)
	telemetry.WithProfilingLabels(ctx, telemetry.BillingOperationLabels(telemetry.ComponentInvoices, "reconcile"), func(c context.Context) {
		inv, opErr = s.ledger.execInvoice(c, "reconcile", id, actor, true, func(_ context.Context, cmd *invoiceCommand) error {
			nowUTC = cmd.now
			return nil
		})
	})
	if opErr != nil {
		telemetry.RecordError(span, opErr)
		return nil, opErr
	}
	telemetry.SetAttribute(span, telemetry.SpanAttrInvoiceStatus, string(inv.Status))
	telemetry.SetOK(span)
	resp := ToInvoiceResponse(inv, nowUTC)
	return &resp, nil
}

// SweepOverdue persists OVERDUE on every open invoice past its due date and
// returns how many invoices changed. Reads already derive OVERDUE on the fly;
// the sweep keeps stored status and statistics in step.
func (s *InvoiceService) SweepOverdue(ctx context.Context, actor string) (int, error) {
	now := s.ledger.now()

	var due []*billing.Invoice
	for _, status := range []billing.InvoiceStatus{billing.InvoiceStatusPending, billing.InvoiceStatusPartiallyPaid} {
		filter := billing.InvoiceFilter{
			Filter: shared.Filter{Page: 1, PageSize: shared.MaxPageSize, OrderBy: "due_date", OrderDir: "asc"}.Normalize(),
			Status: &status,
		}
		for {
			invoices, err := s.ledger.repos.InvoiceRepo().FindAll(ctx, filter)
			if err != nil {
				return 0, err
			}
			for i := range invoices {
				if invoices[i].IsPastDue(now) {
					due = append(due, &invoices[i])
				}
			}
			if len(invoices) < filter.PageSize {
				break
			}
			filter.Page++
		}
	}

	changed := 0
	for _, inv := range due {
		var moved bool
		_, err := s.ledger.execInvoice(ctx, "sweep_overdue", inv.ID, actor, false, func(_ context.Context, cmd *invoiceCommand) error {
			moved = cmd.invoice.RefreshOverdue(actor, cmd.now)
			return nil
		})
		if err != nil {
			s.ledger.logger.Warn("Failed to mark invoice overdue",
				zap.String("invoice_number", inv.InvoiceNumber), zap.Error(err))
			continue
		}
		if moved {
			changed++
		}
	}
	if changed > 0 {
		s.ledger.logger.Info("Overdue sweep finished", zap.Int("changed", changed))
	}
	return changed, nil
}

// command runs a non-reconciling invoice command and maps the result
func (s *InvoiceService) command(
	ctx context.Context,
	operation string,
	id uuid.UUID,
	actor string,
	fn func(ctx context.Context, cmd *invoiceCommand) error,
) (*InvoiceResponse, error) {
	return s.run(ctx, operation, id, actor, false, fn)
}

// reconcilingCommand is command followed by a full reconciliation, for
// operations after which the amounts alone decide the status
func (s *InvoiceService) reconcilingCommand(
	ctx context.Context,
	operation string,
	id uuid.UUID,
	actor string,
	fn func(ctx context.Context, cmd *invoiceCommand) error,
) (*InvoiceResponse, error) {
	return s.run(ctx, operation, id, actor, true, fn)
}

func (s *InvoiceService) run(
	ctx context.Context,
	operation string,
	id uuid.UUID,
	actor string,
	reconcile bool,
	fn func(ctx context.Context, cmd *invoiceCommand) error,
) (*InvoiceResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", operation)
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrInvoiceID, id.String(),
		telemetry.SpanAttrActor, actor,
	)

	var now time.Time
	inv, err := s.ledger.execInvoice(ctx, operation, id, actor, reconcile, func(c context.Context, cmd *invoiceCommand) error {
		now = cmd.now
		return fn(c, cmd)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttribute(span, telemetry.SpanAttrInvoiceStatus, string(inv.Status))
	telemetry.SetOK(span)
	resp := ToInvoiceResponse(inv, now)
	return &resp, nil
}
