// Package models holds the GORM table models of the ledger. Domain aggregates
// stay free of ORM tags; each model converts to and from its aggregate.
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/medledger/billing/internal/domain/shared"
)

// AggregateModel is the column set shared by invoices, claims and payments.
// Version backs the compare-and-swap in the repositories' SaveWithLock.
type AggregateModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
	Version   int       `gorm:"not null;default:1"`
}

// FromDomainAggregateRoot copies identity, timestamps and version from a
func (m *AggregateModel) FromDomainAggregateRoot(a shared.BaseAggregateRoot) {
	m.ID, m.CreatedAt, m.UpdatedAt, m.Version = a.ID, a.CreatedAt, a.UpdatedAt, a.Version
}

// ToAggregateRoot rebuilds the aggregate header with no pending events
func (m *AggregateModel) ToAggregateRoot() shared.BaseAggregateRoot {
	return shared.BaseAggregateRoot{ID: m.ID, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt, Version: m.Version}
}
