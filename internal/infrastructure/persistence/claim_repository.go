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

// GormClaimRepository implements ClaimRepository using GORM
type GormClaimRepository struct {
	db *gorm.DB
}

// NewGormClaimRepository creates a new GormClaimRepository
func NewGormClaimRepository(db *gorm.DB) *GormClaimRepository {
	return &GormClaimRepository{db: db}
}

// FindByID finds a claim by its ID
func (r *GormClaimRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Claim, error) {
	var model models.ClaimModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translateError(err, "claim", id)
	}
	return model.ToDomain(), nil
}

// FindByInvoice returns every claim of an invoice, oldest first
func (r *GormClaimRepository) FindByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]*billing.Claim, error) {
	var rows []models.ClaimModel
	if err := r.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("submitted_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	claims := make([]*billing.Claim, len(rows))
	for i := range rows {
		claims[i] = rows[i].ToDomain()
	}
	return claims, nil
}

// FindAll returns a page of claims matching the filter
func (r *GormClaimRepository) FindAll(ctx context.Context, filter billing.ClaimFilter) ([]billing.Claim, error) {
	var rows []models.ClaimModel
	if err := r.applyFilter(r.db.WithContext(ctx).Model(&models.ClaimModel{}), filter).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	claims := make([]billing.Claim, len(rows))
	for i := range rows {
		claims[i] = *rows[i].ToDomain()
	}
	return claims, nil
}

// Count counts claims matching the filter
func (r *GormClaimRepository) Count(ctx context.Context, filter billing.ClaimFilter) (int64, error) {
	var count int64
	if err := r.applyFilterWithoutPagination(r.db.WithContext(ctx).Model(&models.ClaimModel{}), filter).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// CountNonTerminalByInvoice counts the open claims of an invoice
func (r *GormClaimRepository) CountNonTerminalByInvoice(ctx context.Context, invoiceID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.ClaimModel{}).
		Where("invoice_id = ? AND status IN ?", invoiceID, billing.NonTerminalClaimStatuses).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Create inserts a new claim
func (r *GormClaimRepository) Create(ctx context.Context, claim *billing.Claim) error {
	if err := r.db.WithContext(ctx).Create(models.ClaimModelFromDomain(claim)).Error; err != nil {
		return translateError(err, "claim", claim.ClaimNumber)
	}
	return nil
}

// SaveWithLock updates the claim when its stored version still matches
func (r *GormClaimRepository) SaveWithLock(ctx context.Context, claim *billing.Claim) error {
	model := models.ClaimModelFromDomain(claim)
	next := claim.Version + 1
	result := r.db.WithContext(ctx).
		Model(&models.ClaimModel{}).
		Where("id = ? AND version = ?", claim.ID, claim.Version).
		Updates(map[string]any{
			"outcome_kind":           model.OutcomeKind,
			"allowed_amount":         model.AllowedAmount,
			"paid_amount":            model.PaidAmount,
			"patient_responsibility": model.PatientResponsibility,
			"copay_amount":           model.CopayAmount,
			"deductible_amount":      model.DeductibleAmount,
			"coinsurance_amount":     model.CoinsuranceAmount,
			"denial_code":            model.DenialCode,
			"denial_reason":          model.DenialReason,
			"status":                 model.Status,
			"processed_at":           model.ProcessedAt,
			"paid_at":                model.PaidAt,
			"closed_at":              model.ClosedAt,
			"adjudication_notes":     model.AdjudicationNotes,
			"eob_reference":          model.EOBReference,
			"appeal_reason":          model.AppealReason,
			"history":                model.History,
			"version":                next,
			"updated_at":             model.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return staleVersionError("claim")
	}
	claim.Version = next
	return nil
}

// GenerateClaimNumber returns the next CLM-YYYYMMDD-NNNNNN number
func (r *GormClaimRepository) GenerateClaimNumber(ctx context.Context, now time.Time) (string, error) {
	return nextDocumentNumber(r.db.WithContext(ctx), &models.ClaimModel{}, "claim_number", billing.ClaimNumberPrefix, now)
}

// CountByStatus counts claims per status
func (r *GormClaimRepository) CountByStatus(ctx context.Context) (map[billing.ClaimStatus]int64, error) {
	var rows []struct {
		Status billing.ClaimStatus
		Count  int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.ClaimModel{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[billing.ClaimStatus]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}

// SumInsurancePaid sums the paid amount of adjudicated claims the insurer has paid,
// matching Claim.InsuranceCredit
func (r *GormClaimRepository) SumInsurancePaid(ctx context.Context) (valueobject.Money, error) {
	var row struct {
		Total valueobject.Money
	}
	if err := r.db.WithContext(ctx).
		Model(&models.ClaimModel{}).
		Select("CAST(COALESCE(SUM(paid_amount), 0) AS BIGINT) AS total").
		Where("status IN ? AND paid_at IS NOT NULL AND outcome_kind = ?",
			[]billing.ClaimStatus{billing.ClaimStatusPaid, billing.ClaimStatusClosed},
			billing.OutcomeAdjudicated).
		Scan(&row).Error; err != nil {
		return valueobject.ZeroUSD(), err
	}
	return row.Total, nil
}

func (r *GormClaimRepository) applyFilter(query *gorm.DB, filter billing.ClaimFilter) *gorm.DB {
	query = r.applyFilterWithoutPagination(query, filter)
	f := filter.Normalize()
	return query.
		Order(claimSort.orderBy(f.OrderBy, f.OrderDir)).
		Offset(f.Offset()).
		Limit(f.PageSize)
}

func (r *GormClaimRepository) applyFilterWithoutPagination(query *gorm.DB, filter billing.ClaimFilter) *gorm.DB {
	if filter.InvoiceID != nil {
		query = query.Where("invoice_id = ?", *filter.InvoiceID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	return query
}

// Ensure GormClaimRepository implements ClaimRepository
var _ billing.ClaimRepository = (*GormClaimRepository)(nil)
