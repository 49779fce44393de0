package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/medledger/billing/internal/domain/billing"
	"github.com/medledger/billing/internal/domain/shared/valueobject"
	"github.com/medledger/billing/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormInvoiceRepository implements InvoiceRepository using GORM
type GormInvoiceRepository struct {
	db *gorm.DB
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

func preloadItems(db *gorm.DB) *gorm.DB {
	return db.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("sort_order ASC")
	})
}

// FindByID finds an invoice with its items
func (r *GormInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	var model models.InvoiceModel
	if err := preloadItems(r.db.WithContext(ctx)).
		First(&model, "id = ?", id).Error; err != nil {
		return nil, translateError(err, "invoice", id)
	}
	return model.ToDomain(), nil
}

// FindByIDForUpdate finds an invoice and locks its row until the transaction ends.
// SQLite has no row locks; its single writer serializes instead.
func (r *GormInvoiceRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	var model models.InvoiceModel
	if err := preloadItems(r.db.WithContext(ctx)).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&model, "id = ?", id).Error; err != nil {
		return nil, translateError(err, "invoice", id)
	}
	return model.ToDomain(), nil
}

// FindByNumber finds an invoice by its INV number
func (r *GormInvoiceRepository) FindByNumber(ctx context.Context, number string) (*billing.Invoice, error) {
	var model models.InvoiceModel
	if err := preloadItems(r.db.WithContext(ctx)).
		Where("invoice_number = ?", number).
		First(&model).Error; err != nil {
		return nil, translateError(err, "invoice", number)
	}
	return model.ToDomain(), nil
}

// FindAll returns a page of invoices matching the filter
func (r *GormInvoiceRepository) FindAll(ctx context.Context, filter billing.InvoiceFilter) ([]billing.Invoice, error) {
	var rows []models.InvoiceModel
	query := r.applyFilter(preloadItems(r.db.WithContext(ctx)).Model(&models.InvoiceModel{}), filter)
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	invoices := make([]billing.Invoice, len(rows))
	for i := range rows {
		invoices[i] = *rows[i].ToDomain()
	}
	return invoices, nil
}

// Count counts invoices matching the filter
func (r *GormInvoiceRepository) Count(ctx context.Context, filter billing.InvoiceFilter) (int64, error) {
	var count int64
	query := r.applyFilterWithoutPagination(r.db.WithContext(ctx).Model(&models.InvoiceModel{}), filter)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Create inserts a new invoice together with its items
func (r *GormInvoiceRepository) Create(ctx context.Context, invoice *billing.Invoice) error {
	model := models.InvoiceModelFromDomain(invoice)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return translateError(err, "invoice", invoice.InvoiceNumber)
	}
	return nil
}

// SaveWithLock updates the invoice when its stored version still matches,
// then bumps the version. Removed items are deleted; new items inserted.
func (r *GormInvoiceRepository) SaveWithLock(ctx context.Context, invoice *billing.Invoice) error {
	next := invoice.Version + 1
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.InvoiceModel{}).
			Where("id = ? AND version = ?", invoice.ID, invoice.Version).
			Updates(map[string]any{
				"tax_rate":               invoice.TaxRate,
				"subtotal":               invoice.Subtotal,
				"tax_amount":             invoice.TaxAmount,
				"discount_amount":        invoice.DiscountAmount,
				"total_amount":           invoice.TotalAmount,
				"paid_amount":            invoice.PaidAmount,
				"balance_due":            invoice.BalanceDue,
				"due_date":               invoice.DueDate,
				"status":                 invoice.Status,
				"insurance_claim_number": invoice.InsuranceClaimNumber,
				"insurance_amount":       invoice.InsuranceAmount,
				"notes":                  invoice.Notes,
				"sent_at":                invoice.SentAt,
				"settled_at":             invoice.SettledAt,
				"closed_at":              invoice.ClosedAt,
				"status_reason":          invoice.StatusReason,
				"payment_count":          invoice.PaymentCount,
				"version":                next,
				"updated_at":             invoice.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return staleVersionError("invoice")
		}
		return r.syncItems(tx, invoice)
	})
	if err != nil {
		return err
	}
	invoice.Version = next
	return nil
}

func (r *GormInvoiceRepository) syncItems(tx *gorm.DB, invoice *billing.Invoice) error {
	keep := make([]uuid.UUID, len(invoice.Items))
	for i, item := range invoice.Items {
		keep[i] = item.ID
	}

	stale := tx.Where("invoice_id = ?", invoice.ID)
	if len(keep) > 0 {
		stale = stale.Where("id NOT IN ?", keep)
	}
	if err := stale.Delete(&models.InvoiceItemModel{}).Error; err != nil {
		return err
	}
	if len(invoice.Items) == 0 {
		return nil
	}

	items := make([]models.InvoiceItemModel, len(invoice.Items))
	for i := range invoice.Items {
		items[i].FromDomain(invoice.ID, invoice.Items[i])
	}
	// items are immutable once written
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&items).Error
}

// GenerateInvoiceNumber returns the next INV-YYYYMMDD-NNNNNN number
func (r *GormInvoiceRepository) GenerateInvoiceNumber(ctx context.Context, now time.Time) (string, error) {
	return nextDocumentNumber(r.db.WithContext(ctx), &models.InvoiceModel{}, "invoice_number", billing.InvoiceNumberPrefix, now)
}

// CountByStatus counts invoices per stored status
func (r *GormInvoiceRepository) CountByStatus(ctx context.Context) (map[billing.InvoiceStatus]int64, error) {
	var rows []struct {
		Status billing.InvoiceStatus
		Count  int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[billing.InvoiceStatus]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}

// SumTotals rolls up billed, paid and outstanding amounts.
// Drafts, cancelled and void invoices were never billed.
func (r *GormInvoiceRepository) SumTotals(ctx context.Context) (billing.InvoiceTotals, error) {
	var row struct {
		Billed      valueobject.Money
		Paid        valueobject.Money
		Outstanding valueobject.Money
	}
	if err := r.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Select(`CAST(COALESCE(SUM(total_amount), 0) AS BIGINT) AS billed,
			CAST(COALESCE(SUM(paid_amount), 0) AS BIGINT) AS paid,
			CAST(COALESCE(SUM(CASE WHEN status IN ? THEN balance_due ELSE 0 END), 0) AS BIGINT) AS outstanding`,
			openInvoiceStatuses()).
		Where("status NOT IN ?", []billing.InvoiceStatus{
			billing.InvoiceStatusDraft, billing.InvoiceStatusCancelled, billing.InvoiceStatusVoid,
		}).
		Scan(&row).Error; err != nil {
		return billing.InvoiceTotals{}, err
	}
	return billing.InvoiceTotals{Billed: row.Billed, Paid: row.Paid, Outstanding: row.Outstanding}, nil
}

// SumOverdue counts unpaid invoices whose due date is before today's start,
// matching Invoice.EffectiveStatus
func (r *GormInvoiceRepository) SumOverdue(ctx context.Context, now time.Time) (int64, valueobject.Money, error) {
	y, m, d := now.UTC().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	var row struct {
		Count   int64
		Balance valueobject.Money
	}
	if err := r.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Select("COUNT(*) AS count, CAST(COALESCE(SUM(balance_due), 0) AS BIGINT) AS balance").
		Where("status IN ?", []billing.InvoiceStatus{
			billing.InvoiceStatusPending, billing.InvoiceStatusPartiallyPaid, billing.InvoiceStatusOverdue,
		}).
		Where("balance_due > 0 AND due_date < ?", today).
		Scan(&row).Error; err != nil {
		return 0, valueobject.ZeroUSD(), err
	}
	return row.Count, row.Balance, nil
}

// openInvoiceStatuses are the finalized statuses that still carry a balance
func openInvoiceStatuses() []billing.InvoiceStatus {
	out := make([]billing.InvoiceStatus, 0, len(billing.AllInvoiceStatuses))
	for _, s := range billing.AllInvoiceStatuses {
		if s != billing.InvoiceStatusDraft && !s.IsTerminal() {
			out = append(out, s)
		}
	}
	return out
}

// applyFilter applies filter options to the query
func (r *GormInvoiceRepository) applyFilter(query *gorm.DB, filter billing.InvoiceFilter) *gorm.DB {
	query = r.applyFilterWithoutPagination(query, filter)
	f := filter.Normalize()
	return query.
		Order(invoiceSort.orderBy(f.OrderBy, f.OrderDir)).
		Offset(f.Offset()).
		Limit(f.PageSize)
}

// applyFilterWithoutPagination applies filter options without pagination
func (r *GormInvoiceRepository) applyFilterWithoutPagination(query *gorm.DB, filter billing.InvoiceFilter) *gorm.DB {
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.PatientID != "" {
		query = query.Where("patient_id = ?", filter.PatientID)
	}
	if filter.From != nil {
		query = query.Where("invoice_date >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("invoice_date <= ?", *filter.To)
	}
	return query
}

// Ensure GormInvoiceRepository implements InvoiceRepository
var _ billing.InvoiceRepository = (*GormInvoiceRepository)(nil)
