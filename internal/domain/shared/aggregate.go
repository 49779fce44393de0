package shared

import (
	"time"

	"github.com/google/uuid"
)

// BaseAggregateRoot carries what every ledger aggregate has: identity, audit
// timestamps, the optimistic-lock version and the events raised since load.
// Repositories compare Version on save and bump it on success.
type BaseAggregateRoot struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int

	pending []DomainEvent
}

// NewBaseAggregateRoot starts a fresh aggregate at version 1
func NewBaseAggregateRoot() BaseAggregateRoot {
	now := time.Now().UTC()
	return BaseAggregateRoot{ID: uuid.New(), CreatedAt: now, UpdatedAt: now, Version: 1}
}

// Touch records a modification time
func (a *BaseAggregateRoot) Touch(at time.Time) { a.UpdatedAt = at }

// IncrementVersion bumps the version after a successful write
func (a *BaseAggregateRoot) IncrementVersion() { a.Version++ }

// AddDomainEvent queues an event for publication after commit
func (a *BaseAggregateRoot) AddDomainEvent(event DomainEvent) {
	a.pending = append(a.pending, event)
}

// GetDomainEvents returns the queued events in the order they were raised
func (a *BaseAggregateRoot) GetDomainEvents() []DomainEvent { return a.pending }

// ClearDomainEvents drops the queued events once they have been published
func (a *BaseAggregateRoot) ClearDomainEvents() { a.pending = nil }
