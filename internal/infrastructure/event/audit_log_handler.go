package event

import (
	"context"

	"github.com/medledger/billing/internal/domain/shared"
	"github.com/medledger/billing/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// AuditLogHandler writes every ledger event to the structured log. It is the
// audit sink when no broker is configured.
type AuditLogHandler struct {
	logger *zap.Logger
}

// NewAuditLogHandler creates a log-backed audit handler
func NewAuditLogHandler(l *zap.Logger) *AuditLogHandler {
	return &AuditLogHandler{logger: l.Named("audit")}
}

// EventTypes subscribes to everything
func (h *AuditLogHandler) EventTypes() []string {
	return nil
}

// Handle logs the event with its transition, if any
func (h *AuditLogHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	rec, err := NewAuditRecord(event)
	if err != nil {
		return err
	}
	fields := []zap.Field{
		zap.String("event_id", rec.EventID),
		zap.String("entity_type", rec.EntityType),
		zap.String("entity_id", rec.EntityID),
		zap.String("actor", rec.Actor),
		zap.Time("occurred_at", rec.OccurredAt),
	}
	if rec.ToStatus != "" {
		fields = append(fields, zap.String("from_status", rec.FromStatus), zap.String("to_status", rec.ToStatus))
	}
	logger.WithTraceContext(ctx, h.logger).Info(rec.EventType, fields...)
	return nil
}

var _ shared.EventHandler = (*AuditLogHandler)(nil)
