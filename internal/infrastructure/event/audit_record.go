package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/medledger/billing/internal/domain/shared"
)

// AuditRecord is the message shipped to the external audit service for
// every ledger event. Payload holds the full event as published.
type AuditRecord struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Actor      string          `json:"actor"`
	FromStatus string          `json:"from_status,omitempty"`
	ToStatus   string          `json:"to_status,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// NewAuditRecord flattens a domain event into an AuditRecord
func NewAuditRecord(event shared.DomainEvent) (AuditRecord, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return AuditRecord{}, fmt.Errorf("failed to marshal %s: %w", event.EventType(), err)
	}

	rec := AuditRecord{
		EventID:    event.EventID().String(),
		EventType:  event.EventType(),
		EntityType: event.AggregateType(),
		EntityID:   event.AggregateID().String(),
		Actor:      event.Actor(),
		OccurredAt: event.OccurredAt().UTC(),
		Payload:    payload,
	}
	if tr, ok := event.(shared.StatusTransition); ok {
		rec.FromStatus = tr.FromStatus()
		rec.ToStatus = tr.ToStatus()
	}
	return rec, nil
}

// RoutingKey is "<entity>.<event>", e.g. "Invoice.InvoiceStatusChanged"
func (r AuditRecord) RoutingKey() string {
	return r.EntityType + "." + r.EventType
}
