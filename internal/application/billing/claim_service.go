package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/medledger/billing/internal/domain/billing"
	"github.com/medledger/billing/internal/domain/shared"
	"github.com/medledger/billing/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// ClaimService adjudicates insurance claims against invoices
type ClaimService struct {
	ledger *Ledger
}

// NewClaimService creates a new ClaimService
func NewClaimService(ledger *Ledger) *ClaimService {
	return &ClaimService{ledger: ledger}
}

// Submit creates a SUBMITTED claim for a finalized invoice.
// An invoice can carry at most one open claim.
func (s *ClaimService) Submit(ctx context.Context, req SubmitClaimRequest, actor string) (*ClaimResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "claim", "submit")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrInvoiceID, req.InvoiceID.String(),
		telemetry.SpanAttrActor, actor,
	)

	var (
		claim  *billing.Claim
		now    time.Time
		result *ClaimResult
		opErr  error
	)
	telemetry.WithProfilingLabels(ctx, telemetry.BillingOperationLabels(telemetry.ComponentClaims, "submit"), func(c context.Context) {
		var inv *billing.Invoice
		inv, opErr = s.ledger.execInvoice(c, "submit_claim", req.InvoiceID, actor, false, func(c context.Context, cmd *invoiceCommand) error {
			now = cmd.now
			existing, err := cmd.repos.ClaimRepo().FindByInvoice(c, cmd.invoice.ID)
			if err != nil {
				return err
			}
			number, err := cmd.repos.ClaimRepo().GenerateClaimNumber(c, cmd.now)
			if err != nil {
				return err
			}
			params := billing.SubmitClaimParams{
				ClaimNumber:       number,
				InsuranceProvider: req.InsuranceProvider,
				PolicyNumber:      req.PolicyNumber,
				GroupNumber:       req.GroupNumber,
				SubscriberName:    req.SubscriberName,
				SubscriberID:      req.SubscriberID,
				Actor:             actor,
				Now:               cmd.now,
			}
			if req.ServiceDate != nil {
				params.ServiceDate = *req.ServiceDate
			}
			claim, err = billing.SubmitClaim(cmd.invoice, existing, params)
			if err != nil {
				return err
			}
			if err := cmd.repos.ClaimRepo().Create(c, claim); err != nil {
				return err
			}
			cmd.track(claim)
			return nil
		})
		if opErr == nil {
			result = &ClaimResult{Claim: ToClaimResponse(claim), Invoice: ToInvoiceResponse(inv, now)}
		}
	})
	if opErr != nil {
		telemetry.RecordError(span, opErr)
		return nil, opErr
	}

	s.ledger.logger.Info("Claim submitted",
		zap.String("claim_number", claim.ClaimNumber),
		zap.String("invoice_number", result.Invoice.InvoiceNumber),
		zap.String("provider", claim.InsuranceProvider),
		zap.String("billed", claim.BilledAmount.String()))
	telemetry.SetAttribute(span, telemetry.SpanAttrClaimID, claim.ID.String())
	telemetry.SetOK(span)
	return result, nil
}

// GetByID retrieves a claim by ID
func (s *ClaimService) GetByID(ctx context.Context, id uuid.UUID) (*ClaimResponse, error) {
	c, err := s.ledger.repos.ClaimRepo().FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToClaimResponse(c)
	return &resp, nil
}

// History returns the status changes of a claim, oldest first
func (s *ClaimService) History(ctx context.Context, id uuid.UUID) ([]ClaimHistoryEntry, error) {
	c, err := s.ledger.repos.ClaimRepo().FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return ToClaimHistory(c.History), nil
}

// List retrieves a page of claims with filtering
func (s *ClaimService) List(ctx context.Context, filter ClaimListFilter) ([]ClaimResponse, int64, error) {
	if filter.OrderBy == "" {
		filter.OrderBy = "submitted_at"
	}
	domainFilter := billing.ClaimFilter{
		Filter: shared.Filter{
			Page:     filter.Page,
			PageSize: filter.PageSize,
			OrderBy:  filter.OrderBy,
			OrderDir: filter.OrderDir,
		}.Normalize(),
		InvoiceID: filter.InvoiceID,
	}
	if filter.Status != "" {
		status := billing.ClaimStatus(filter.Status)
		if !status.IsValid() {
			return nil, 0, shared.NewValidationErrorf("unknown claim status %q", filter.Status)
		}
		domainFilter.Status = &status
	}

	repo := s.ledger.repos.ClaimRepo()
	claims, err := repo.FindAll(ctx, domainFilter)
	if err != nil {
		return nil, 0, err
	}
	total, err := repo.Count(ctx, domainFilter)
	if err != nil {
		return nil, 0, err
	}
	return ToClaimListResponses(claims), total, nil
}

// Review moves a submitted claim into review
func (s *ClaimService) Review(ctx context.Context, id uuid.UUID, actor string) (*ClaimResult, error) {
	return s.command(ctx, "review", id, actor, func(cmd *invoiceCommand, c *billing.Claim) error {
		return c.Review(actor, cmd.now)
	})
}

// Process records the insurer's adjudication. An approval stores the
// adjudicated amounts and links the expected insurance amount to the invoice;
// the invoice is credited only once the claim is marked paid.
func (s *ClaimService) Process(ctx context.Context, id uuid.UUID, req ProcessClaimRequest, actor string) (*ClaimResult, error) {
	amounts, err := toAdjudicationAmounts(req)
	if err != nil {
		return nil, err
	}
	action := billing.ClaimAction(req.Action)
	result, err := s.command(ctx, "process", id, actor, func(cmd *invoiceCommand, c *billing.Claim) error {
		if err := c.Process(billing.ProcessParams{
			Action:       action,
			Amounts:      amounts,
			DenialCode:   req.DenialCode,
			DenialReason: req.DenialReason,
			Notes:        req.Notes,
			EOBReference: req.EOBReference,
			Actor:        actor,
			Now:          cmd.now,
		}); err != nil {
			return err
		}
		if adj, ok := c.AdjudicatedAmounts(); ok {
			paid := adj.Paid
			cmd.invoice.LinkClaim(c.ClaimNumber, &paid)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.ledger.metrics.RecordClaimProcessed(ctx, string(action))
	return result, nil
}

// Approve is Process with the APPROVE action
func (s *ClaimService) Approve(ctx context.Context, id uuid.UUID, req ProcessClaimRequest, actor string) (*ClaimResult, error) {
	req.Action = string(billing.ClaimActionApprove)
	return s.Process(ctx, id, req, actor)
}

// Deny is Process with the DENY action
func (s *ClaimService) Deny(ctx context.Context, id uuid.UUID, code, reason, actor string) (*ClaimResult, error) {
	return s.Process(ctx, id, ProcessClaimRequest{
		Action:       string(billing.ClaimActionDeny),
		DenialCode:   code,
		DenialReason: reason,
	}, actor)
}

// Appeal contests a denial or a partial approval
func (s *ClaimService) Appeal(ctx context.Context, id uuid.UUID, reason, actor string) (*ClaimResult, error) {
	return s.command(ctx, "appeal", id, actor, func(cmd *invoiceCommand, c *billing.Claim) error {
		return c.Appeal(reason, actor, cmd.now)
	})
}

// Resubmit sends an appealed or information-requested claim back to the insurer
func (s *ClaimService) Resubmit(ctx context.Context, id uuid.UUID, notes, actor string) (*ClaimResult, error) {
	return s.command(ctx, "resubmit", id, actor, func(cmd *invoiceCommand, c *billing.Claim) error {
		if err := c.Resubmit(notes, actor, cmd.now); err != nil {
			return err
		}
		cmd.invoice.LinkClaim(c.ClaimNumber, nil)
		return nil
	})
}

// MarkPaid records the insurer's payment; reconciliation credits the
// adjudicated paid amount to the invoice in the same transaction.
func (s *ClaimService) MarkPaid(ctx context.Context, id uuid.UUID, eobReference, actor string) (*ClaimResult, error) {
	result, err := s.command(ctx, "mark_paid", id, actor, func(cmd *invoiceCommand, c *billing.Claim) error {
		return c.MarkPaid(eobReference, actor, cmd.now)
	})
	if err != nil {
		return nil, err
	}
	s.ledger.metrics.RecordClaimPaid(ctx)
	return result, nil
}

// Close ends a paid or denied claim
func (s *ClaimService) Close(ctx context.Context, id uuid.UUID, actor string) (*ClaimResult, error) {
	return s.command(ctx, "close", id, actor, func(cmd *invoiceCommand, c *billing.Claim) error {
		return c.Close(actor, cmd.now)
	})
}

// command loads the claim inside its invoice's transaction, applies fn,
// saves the claim and reconciles the invoice
func (s *ClaimService) command(
	ctx context.Context,
	operation string,
	claimID uuid.UUID,
	actor string,
	fn func(cmd *invoiceCommand, c *billing.Claim) error,
) (*ClaimResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "claim", operation)
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrClaimID, claimID.String(),
		telemetry.SpanAttrActor, actor,
	)

	invoiceID, err := s.ledger.invoiceIDOfClaim(ctx, claimID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	var (
		claim *billing.Claim
		now   time.Time
	)
	inv, err := s.ledger.execInvoice(ctx, "claim_"+operation, invoiceID, actor, true, func(c context.Context, cmd *invoiceCommand) error {
		now = cmd.now
		loaded, err := cmd.repos.ClaimRepo().FindByID(c, claimID)
		if err != nil {
			return err
		}
		if loaded.InvoiceID != cmd.invoice.ID {
			return errors.New("claim moved to another invoice")
		}
		if err := fn(cmd, loaded); err != nil {
			return err
		}
		if err := cmd.repos.ClaimRepo().SaveWithLock(c, loaded); err != nil {
			return err
		}
		claim = loaded
		cmd.track(loaded)
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.ledger.logger.Info("Claim updated",
		zap.String("operation", operation),
		zap.String("claim_number", claim.ClaimNumber),
		zap.String("status", string(claim.Status)))
	telemetry.SetAttribute(span, telemetry.SpanAttrClaimStatus, string(claim.Status))
	telemetry.SetOK(span)
	return &ClaimResult{Claim: ToClaimResponse(claim), Invoice: ToInvoiceResponse(inv, now)}, nil
}

func toAdjudicationAmounts(req ProcessClaimRequest) (billing.AdjudicationAmounts, error) {
	var (
		out billing.AdjudicationAmounts
		err error
	)
	if out.Allowed, err = toMoneyPtr(req.AllowedAmount, "allowed amount"); err != nil {
		return out, err
	}
	if out.Paid, err = toMoneyPtr(req.PaidAmount, "paid amount"); err != nil {
		return out, err
	}
	if out.PatientResponsibility, err = toMoneyPtr(req.PatientResponsibility, "patient responsibility"); err != nil {
		return out, err
	}
	if out.Copay, err = toMoneyPtr(req.CopayAmount, "copay amount"); err != nil {
		return out, err
	}
	if out.Deductible, err = toMoneyPtr(req.DeductibleAmount, "deductible amount"); err != nil {
		return out, err
	}
	if out.Coinsurance, err = toMoneyPtr(req.CoinsuranceAmount, "coinsurance amount"); err != nil {
		return out, err
	}
	return out, nil
}
