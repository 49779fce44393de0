package persistence

import (
	"context"

	appbilling "github.com/medledger/billing/internal/application/billing"
	"github.com/medledger/billing/internal/domain/billing"
	"gorm.io/gorm"
)

// GormTransactionScope implements TransactionScope using GORM transactions.
// It provides atomic execution of multiple repository operations.
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a new GormTransactionScope.
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
// If the function succeeds, the transaction is committed.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos appbilling.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewGormRepositories(tx))
	})
}

// GormRepositories bundles the ledger repositories over one *gorm.DB,
// either the pool or a transaction.
type GormRepositories struct {
	tx *gorm.DB
}

// NewGormRepositories creates the repository bundle for db
func NewGormRepositories(db *gorm.DB) *GormRepositories {
	return &GormRepositories{tx: db}
}

// InvoiceRepo returns the invoice repository scoped to the current transaction.
func (r *GormRepositories) InvoiceRepo() billing.InvoiceRepository {
	return NewGormInvoiceRepository(r.tx)
}

// ClaimRepo returns the claim repository scoped to the current transaction.
func (r *GormRepositories) ClaimRepo() billing.ClaimRepository {
	return NewGormClaimRepository(r.tx)
}

// PaymentRepo returns the payment repository scoped to the current transaction.
func (r *GormRepositories) PaymentRepo() billing.PaymentRepository {
	return NewGormPaymentRepository(r.tx)
}

// Ensure GormTransactionScope implements TransactionScope
var _ appbilling.TransactionScope = (*GormTransactionScope)(nil)

// Ensure GormRepositories implements TransactionalRepositories
var _ appbilling.TransactionalRepositories = (*GormRepositories)(nil)
