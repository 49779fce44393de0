package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/medledger/billing/internal/domain/billing"
	"github.com/medledger/billing/internal/domain/shared/valueobject"
	"github.com/medledger/billing/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormPaymentRepository implements PaymentRepository using GORM
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewGormPaymentRepository creates a new GormPaymentRepository
func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// FindByID finds a payment by its ID
func (r *GormPaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Payment, error) {
	var model models.PaymentModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translateError(err, "payment", id)
	}
	return model.ToDomain(), nil
}

// FindByInvoice returns every payment of an invoice in payment order
func (r *GormPaymentRepository) FindByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]*billing.Payment, error) {
	var rows []models.PaymentModel
	if err := r.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("payment_date ASC, reference_number ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	payments := make([]*billing.Payment, len(rows))
	for i := range rows {
		payments[i] = rows[i].ToDomain()
	}
	return payments, nil
}

// FindAll returns a page of payments matching the filter
func (r *GormPaymentRepository) FindAll(ctx context.Context, filter billing.PaymentFilter) ([]billing.Payment, error) {
	var rows []models.PaymentModel
	if err := r.applyFilter(r.db.WithContext(ctx).Model(&models.PaymentModel{}), filter).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	payments := make([]billing.Payment, len(rows))
	for i := range rows {
		payments[i] = *rows[i].ToDomain()
	}
	return payments, nil
}

// Count counts payments matching the filter
func (r *GormPaymentRepository) Count(ctx context.Context, filter billing.PaymentFilter) (int64, error) {
	var count int64
	if err := r.applyFilterWithoutPagination(r.db.WithContext(ctx).Model(&models.PaymentModel{}), filter).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Create inserts a new payment
func (r *GormPaymentRepository) Create(ctx context.Context, payment *billing.Payment) error {
	if err := r.db.WithContext(ctx).Create(models.PaymentModelFromDomain(payment)).Error; err != nil {
		return translateError(err, "payment", payment.ReferenceNumber)
	}
	return nil
}

// SaveWithLock updates the payment when its stored version still matches
func (r *GormPaymentRepository) SaveWithLock(ctx context.Context, payment *billing.Payment) error {
	next := payment.Version + 1
	result := r.db.WithContext(ctx).
		Model(&models.PaymentModel{}).
		Where("id = ? AND version = ?", payment.ID, payment.Version).
		Updates(map[string]any{
			"status":         payment.Status,
			"failure_reason": payment.FailureReason,
			"refund_amount":  payment.RefundAmount,
			"refund_reason":  payment.RefundReason,
			"processed_at":   payment.ProcessedAt,
			"refunded_at":    payment.RefundedAt,
			"notes":          payment.Notes,
			"version":        next,
			"updated_at":     payment.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return staleVersionError("payment")
	}
	payment.Version = next
	return nil
}

// GeneratePaymentNumber returns the next PAY-YYYYMMDD-NNNNNN number
func (r *GormPaymentRepository) GeneratePaymentNumber(ctx context.Context, now time.Time) (string, error) {
	return nextDocumentNumber(r.db.WithContext(ctx), &models.PaymentModel{}, "reference_number", billing.PaymentNumberPrefix, now)
}

// SumRevenue aggregates captured payments with payment_date in [from, to) per method.
// Refunds count against the day the original payment was taken.
func (r *GormPaymentRepository) SumRevenue(ctx context.Context, from, to time.Time) ([]billing.RevenueRow, error) {
	var rows []struct {
		Method       billing.PaymentMethod
		Gross        valueobject.Money
		Refunded     valueobject.Money
		PaymentCount int64
		RefundCount  int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.PaymentModel{}).
		Select(`method,
			CAST(COALESCE(SUM(amount), 0) AS BIGINT) AS gross,
			CAST(COALESCE(SUM(refund_amount), 0) AS BIGINT) AS refunded,
			COUNT(*) AS payment_count,
			CAST(COALESCE(SUM(CASE WHEN refund_amount > 0 THEN 1 ELSE 0 END), 0) AS BIGINT) AS refund_count`).
		Where("status IN ?", []billing.PaymentStatus{
			billing.PaymentStatusCompleted, billing.PaymentStatusPartiallyRefunded, billing.PaymentStatusRefunded,
		}).
		Where("payment_date >= ? AND payment_date < ?", from.UTC(), to.UTC()).
		Group("method").
		Order("method ASC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]billing.RevenueRow, len(rows))
	for i, row := range rows {
		out[i] = billing.RevenueRow{
			Method:       row.Method,
			Gross:        row.Gross,
			Refunded:     row.Refunded,
			PaymentCount: row.PaymentCount,
			RefundCount:  row.RefundCount,
		}
	}
	return out, nil
}

func (r *GormPaymentRepository) applyFilter(query *gorm.DB, filter billing.PaymentFilter) *gorm.DB {
	query = r.applyFilterWithoutPagination(query, filter)
	f := filter.Normalize()
	return query.
		Order(paymentSort.orderBy(f.OrderBy, f.OrderDir)).
		Offset(f.Offset()).
		Limit(f.PageSize)
}

func (r *GormPaymentRepository) applyFilterWithoutPagination(query *gorm.DB, filter billing.PaymentFilter) *gorm.DB {
	if filter.InvoiceID != nil {
		query = query.Where("invoice_id = ?", *filter.InvoiceID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.From != nil {
		query = query.Where("payment_date >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("payment_date < ?", *filter.To)
	}
	return query
}

// Ensure GormPaymentRepository implements PaymentRepository
var _ billing.PaymentRepository = (*GormPaymentRepository)(nil)
