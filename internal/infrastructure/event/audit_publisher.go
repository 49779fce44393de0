package event

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/medledger/billing/internal/domain/shared"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// amqpChannel is the part of *amqp.Channel the publisher uses
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AuditPublisher forwards every ledger event to a durable topic exchange.
// It subscribes to all events on the bus.
type AuditPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  amqpChannel
	exchange string
	logger   *zap.Logger
}

// DialAuditPublisher connects to RabbitMQ and declares the audit exchange
func DialAuditPublisher(url, exchange string, logger *zap.Logger) (*AuditPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	p, err := newAuditPublisher(ch, exchange, logger)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

func newAuditPublisher(ch amqpChannel, exchange string, logger *zap.Logger) (*AuditPublisher, error) {
	if err := ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	logger.Info("Audit publisher ready", zap.String("exchange", exchange))
	return &AuditPublisher{
		channel:  ch,
		exchange: exchange,
		logger:   logger,
	}, nil
}

// EventTypes subscribes to everything
func (p *AuditPublisher) EventTypes() []string {
	return nil
}

// Handle publishes one audit record. MessageId is the event id so the audit
// service can drop redeliveries.
func (p *AuditPublisher) Handle(ctx context.Context, event shared.DomainEvent) error {
	rec, err := NewAuditRecord(event)
	if err != nil {
		return err
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}

	msg := amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    rec.EventID,
		Type:         rec.EventType,
		Timestamp:    rec.OccurredAt,
		Headers: amqp.Table{
			"actor":       rec.Actor,
			"entity_type": rec.EntityType,
			"entity_id":   rec.EntityID,
		},
		Body: body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.channel.PublishWithContext(ctx, p.exchange, rec.RoutingKey(), false, false, msg); err != nil {
		return fmt.Errorf("failed to publish audit record: %w", err)
	}

	p.logger.Debug("Audit record published",
		zap.String("routing_key", rec.RoutingKey()),
		zap.String("event_id", rec.EventID),
	)
	return nil
}

// Close closes the channel and the connection
func (p *AuditPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.logger.Warn("failed to close audit channel", zap.Error(err))
		}
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

var _ shared.EventHandler = (*AuditPublisher)(nil)
