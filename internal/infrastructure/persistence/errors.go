package persistence

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/medledger/billing/internal/domain/billing"
	"github.com/medledger/billing/internal/domain/shared"
	"gorm.io/gorm"
)

// translateError maps gorm errors onto the ledger error taxonomy.
// Duplicate keys need gorm.Config.TranslateError, which Open sets.
func translateError(err error, entity string, id any) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return shared.NewNotFoundError(entity, id)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return shared.NewConflictError(fmt.Sprintf("%s %v already exists", entity, id))
	}
	return err
}

// staleVersionError is returned when a version CAS matched no row
func staleVersionError(entity string) error {
	return shared.NewConflictError(entity + " was modified by another transaction")
}

// nextDocumentNumber returns PREFIX-YYYYMMDD-NNNNNN, one past the highest
// number issued for that day. Two writers racing on the same day collide on
// the unique index and surface as a conflict.
func nextDocumentNumber(db *gorm.DB, model any, column, prefix string, now time.Time) (string, error) {
	dayPrefix := billing.DocumentNumber(prefix, now, 0)
	dayPrefix = dayPrefix[:strings.LastIndex(dayPrefix, "-")+1]

	var numbers []string
	if err := db.Model(model).
		Where(column+" LIKE ?", dayPrefix+"%").
		Order(column+" DESC").
		Limit(1).
		Pluck(column, &numbers).Error; err != nil {
		return "", err
	}

	var next int
	if len(numbers) > 0 {
		n, err := strconv.Atoi(strings.TrimPrefix(numbers[0], dayPrefix))
		if err != nil {
			return "", fmt.Errorf("malformed document number %q: %w", numbers[0], err)
		}
		next = n
	}
	return billing.DocumentNumber(prefix, now, next+1), nil
}
