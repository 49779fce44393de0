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

// idempotencyKeyPrefix namespaces payment keys in the shared idempotency store
const idempotencyKeyPrefix = "payments:"

// PaymentService records payments and refunds and keeps invoices reconciled
type PaymentService struct {
	ledger      *Ledger
	idempotency shared.IdempotencyStore
	idemConfig  shared.IdempotencyConfig
}

// NewPaymentService creates a new PaymentService.
// A nil store disables Idempotency-Key handling.
func NewPaymentService(ledger *Ledger, store shared.IdempotencyStore, cfg shared.IdempotencyConfig) *PaymentService {
	if cfg.TTL <= 0 {
		cfg.TTL = shared.DefaultIdempotencyConfig().TTL
	}
	return &PaymentService{
		ledger:      ledger,
		idempotency: store,
		idemConfig:  cfg,
	}
}

// Record captures a payment against an invoice and reconciles it in the same
// transaction. A repeated idempotency key returns the originally recorded payment.
func (s *PaymentService) Record(ctx context.Context, req RecordPaymentRequest, idempotencyKey, actor string) (*PaymentResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "record")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrInvoiceID, req.InvoiceID.String(),
		telemetry.SpanAttrAmount, req.Amount.String(),
		telemetry.SpanAttrPaymentMethod, req.Method,
		telemetry.SpanAttrActor, actor,
	)

	amount, err := toMoney(req.Amount, "amount")
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	key := ""
	if idempotencyKey != "" && s.idempotency != nil && s.idemConfig.Enabled {
		key = idempotencyKeyPrefix + idempotencyKey
		telemetry.SetAttribute(span, telemetry.SpanAttrIdempotencyKey, idempotencyKey)
		replay, err := s.replay(ctx, key)
		if err != nil || replay != nil {
			if err != nil {
				telemetry.RecordError(span, err)
			}
			return replay, err
		}
	}

	var (
		payment *billing.Payment
		now     time.Time
		result  *PaymentResult
		opErr   error
	)
	telemetry.WithProfilingLabels(ctx, telemetry.BillingOperationLabels(telemetry.ComponentPayments, "record"), func(c context.Context) {
		var inv *billing.Invoice
		inv, opErr = s.ledger.execInvoice(c, "record_payment", req.InvoiceID, actor, true, func(c context.Context, cmd *invoiceCommand) error {
			now = cmd.now
			number, err := cmd.repos.PaymentRepo().GeneratePaymentNumber(c, cmd.now)
			if err != nil {
				return err
			}
			params := billing.RecordPaymentParams{
				ReferenceNumber:   number,
				Amount:            amount,
				Method:            billing.PaymentMethod(req.Method),
				TransactionID:     req.TransactionID,
				AuthorizationCode: req.AuthorizationCode,
				AllowOverpayment:  req.AllowOverpayment,
				Notes:             req.Notes,
				Actor:             actor,
				Now:               cmd.now,
			}
			if req.Card != nil {
				params.Card = &billing.CardMetadata{
					Brand:       req.Card.Brand,
					Last4:       req.Card.Last4,
					ExpiryMonth: req.Card.ExpiryMonth,
					ExpiryYear:  req.Card.ExpiryYear,
				}
			}
			payment, err = billing.RecordPayment(cmd.invoice, params)
			if err != nil {
				return err
			}
			if err := cmd.repos.PaymentRepo().Create(c, payment); err != nil {
				return err
			}
			cmd.track(payment)
			return nil
		})
		if opErr == nil {
			result = &PaymentResult{Payment: ToPaymentResponse(payment), Invoice: ToInvoiceResponse(inv, now)}
		}
	})
	if opErr != nil {
		if key != "" {
			if err := s.idempotency.Release(ctx, key); err != nil {
				s.ledger.logger.Warn("Failed to release idempotency key", zap.String("key", key), zap.Error(err))
			}
		}
		telemetry.RecordError(span, opErr)
		return nil, opErr
	}

	if key != "" {
		if err := s.idempotency.Complete(ctx, key, payment.ID.String(), s.idemConfig.TTL); err != nil {
			s.ledger.logger.Warn("Failed to complete idempotency key", zap.String("key", key), zap.Error(err))
		}
	}

	s.ledger.metrics.RecordPayment(ctx, string(payment.Method), payment.Amount.Amount())
	s.ledger.logger.Info("Payment recorded",
		zap.String("reference_number", payment.ReferenceNumber),
		zap.String("invoice_number", result.Invoice.InvoiceNumber),
		zap.String("amount", payment.Amount.String()),
		zap.String("method", string(payment.Method)),
		zap.String("invoice_status", result.Invoice.Status))
	telemetry.SetAttribute(span, telemetry.SpanAttrPaymentID, payment.ID.String())
	telemetry.SetOK(span)
	return result, nil
}

// replay resolves a repeated idempotency key. It returns (nil, nil) after
// reserving a fresh key, the recorded result for a completed key, and a
// CONFLICT while the first request is still in flight.
func (s *PaymentService) replay(ctx context.Context, key string) (*PaymentResult, error) {
	reserved, err := s.idempotency.Reserve(ctx, key, s.idemConfig.TTL)
	if err != nil {
		return nil, err
	}
	if reserved {
		return nil, nil
	}

	stored, found, err := s.idempotency.Lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found || stored == "" {
		return nil, shared.NewConflictError("a request with this idempotency key is still being processed")
	}
	paymentID, err := uuid.Parse(stored)
	if err != nil {
		return nil, errors.New("idempotency store holds a malformed payment id")
	}
	payment, err := s.ledger.repos.PaymentRepo().FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	inv, err := s.ledger.repos.InvoiceRepo().FindByID(ctx, payment.InvoiceID)
	if err != nil {
		return nil, err
	}
	return &PaymentResult{
		Payment:  ToPaymentResponse(payment),
		Invoice:  ToInvoiceResponse(inv, s.ledger.now()),
		Replayed: true,
	}, nil
}

// GetByID retrieves a payment by ID
func (s *PaymentService) GetByID(ctx context.Context, id uuid.UUID) (*PaymentResponse, error) {
	p, err := s.ledger.repos.PaymentRepo().FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToPaymentResponse(p)
	return &resp, nil
}

// List retrieves a page of payments with filtering
func (s *PaymentService) List(ctx context.Context, filter PaymentListFilter) ([]PaymentResponse, int64, error) {
	if filter.OrderBy == "" {
		filter.OrderBy = "payment_date"
	}
	domainFilter := billing.PaymentFilter{
		Filter: shared.Filter{
			Page:     filter.Page,
			PageSize: filter.PageSize,
			OrderBy:  filter.OrderBy,
			OrderDir: filter.OrderDir,
		}.Normalize(),
		InvoiceID: filter.InvoiceID,
		From:      filter.From,
		To:        filter.To,
	}
	if filter.Status != "" {
		status := billing.PaymentStatus(filter.Status)
		if !status.IsValid() {
			return nil, 0, shared.NewValidationErrorf("unknown payment status %q", filter.Status)
		}
		domainFilter.Status = &status
	}

	repo := s.ledger.repos.PaymentRepo()
	payments, err := repo.FindAll(ctx, domainFilter)
	if err != nil {
		return nil, 0, err
	}
	total, err := repo.Count(ctx, domainFilter)
	if err != nil {
		return nil, 0, err
	}
	return ToPaymentListResponses(payments), total, nil
}

// Refund returns money from a captured payment. A nil amount refunds the
// remaining refundable amount. The invoice is reconciled in the same transaction.
func (s *PaymentService) Refund(ctx context.Context, id uuid.UUID, req RefundPaymentRequest, actor string) (*PaymentResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "refund")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrPaymentID, id.String(),
		telemetry.SpanAttrActor, actor,
	)

	amount, err := toMoneyPtr(req.Amount, "refund amount")
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	invoiceID, err := s.ledger.invoiceIDOfPayment(ctx, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	var (
		payment  *billing.Payment
		refunded int64
		now      time.Time
	)
	inv, err := s.ledger.execInvoice(ctx, "refund_payment", invoiceID, actor, true, func(c context.Context, cmd *invoiceCommand) error {
		now = cmd.now
		loaded, err := cmd.repos.PaymentRepo().FindByID(c, id)
		if err != nil {
			return err
		}
		applied, err := loaded.Refund(amount, req.Reason, actor, cmd.now)
		if err != nil {
			return err
		}
		if err := cmd.repos.PaymentRepo().SaveWithLock(c, loaded); err != nil {
			return err
		}
		payment = loaded
		refunded = applied.Amount()
		cmd.track(loaded)
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.ledger.metrics.RecordRefund(ctx, string(payment.Method), refunded)
	s.ledger.logger.Info("Payment refunded",
		zap.String("reference_number", payment.ReferenceNumber),
		zap.Int64("refund_cents", refunded),
		zap.String("payment_status", string(payment.Status)),
		zap.String("invoice_status", string(inv.EffectiveStatus(now))))
	telemetry.SetOK(span)
	return &PaymentResult{Payment: ToPaymentResponse(payment), Invoice: ToInvoiceResponse(inv, now)}, nil
}
