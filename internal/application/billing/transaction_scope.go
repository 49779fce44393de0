package billing

import (
	"context"

	"github.com/medledger/billing/internal/domain/billing"
)

// TransactionScope provides transactional access to the ledger repositories.
// All repository operations inside fn share one database transaction and are
// committed or rolled back atomically.
type TransactionScope interface {
	// Execute runs fn within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to the ledger repositories within a transaction.
//
// The invoice is the consistency boundary: commands that change balances load it
// with InvoiceRepo().FindByIDForUpdate and save it with SaveWithLock, so claims and
// payments of one invoice are never reconciled concurrently.
type TransactionalRepositories interface {
	InvoiceRepo() billing.InvoiceRepository
	ClaimRepo() billing.ClaimRepository
	PaymentRepo() billing.PaymentRepository
}

// NoOpTransactionScope runs fn without a real transaction.
// This is useful for testing with in-memory repositories.
type NoOpTransactionScope struct {
	invoiceRepo billing.InvoiceRepository
	claimRepo   billing.ClaimRepository
	paymentRepo billing.PaymentRepository
}

// NewNoOpTransactionScope creates a NoOpTransactionScope with the given repositories.
func NewNoOpTransactionScope(
	invoiceRepo billing.InvoiceRepository,
	claimRepo billing.ClaimRepository,
	paymentRepo billing.PaymentRepository,
) *NoOpTransactionScope {
	return &NoOpTransactionScope{
		invoiceRepo: invoiceRepo,
		claimRepo:   claimRepo,
		paymentRepo: paymentRepo,
	}
}

// Execute runs the function without a real transaction.
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// InvoiceRepo returns the invoice repository.
func (s *NoOpTransactionScope) InvoiceRepo() billing.InvoiceRepository {
	return s.invoiceRepo
}

// ClaimRepo returns the claim repository.
func (s *NoOpTransactionScope) ClaimRepo() billing.ClaimRepository {
	return s.claimRepo
}

// PaymentRepo returns the payment repository.
func (s *NoOpTransactionScope) PaymentRepo() billing.PaymentRepository {
	return s.paymentRepo
}

var _ TransactionScope = (*NoOpTransactionScope)(nil)
var _ TransactionalRepositories = (*NoOpTransactionScope)(nil)
