package event

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	declared   []string
	declareErr error
	publishErr error
	published  []published
	closed     bool
}

func (c *fakeChannel) ExchangeDeclare(name, kind string, durable, _, _, _ bool, _ amqp.Table) error {
	if c.declareErr != nil {
		return c.declareErr
	}
	c.declared = append(c.declared, name+":"+kind)
	return nil
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, published{exchange, key, msg})
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

func TestNewAuditRecord(t *testing.T) {
	ev := transitionEvent("InvoiceStatusChanged", "Invoice", "PARTIALLY_PAID", "PAID")
	ev.Reason = "payment"

	rec, err := NewAuditRecord(ev)
	require.NoError(t, err)
	assert.Equal(t, ev.EventID().String(), rec.EventID)
	assert.Equal(t, "Invoice", rec.EntityType)
	assert.Equal(t, ev.AggregateID().String(), rec.EntityID)
	assert.Equal(t, "clerk-7", rec.Actor)
	assert.Equal(t, "PARTIALLY_PAID", rec.FromStatus)
	assert.Equal(t, "PAID", rec.ToStatus)
	assert.Equal(t, "Invoice.InvoiceStatusChanged", rec.RoutingKey())
	assert.Contains(t, string(rec.Payload), `"reason":"payment"`)
}

func TestAuditPublisher_PublishesPersistentJSON(t *testing.T) {
	ch := &fakeChannel{}
	p, err := newAuditPublisher(ch, "billing.audit", zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{"billing.audit:topic"}, ch.declared)
	assert.Nil(t, p.EventTypes())

	ev := transitionEvent("ClaimStatusChanged", "InsuranceClaim", "IN_REVIEW", "APPROVED")
	require.NoError(t, p.Handle(context.Background(), ev))

	require.Len(t, ch.published, 1)
	got := ch.published[0]
	assert.Equal(t, "billing.audit", got.exchange)
	assert.Equal(t, "InsuranceClaim.ClaimStatusChanged", got.key)
	assert.Equal(t, amqp.Persistent, got.msg.DeliveryMode)
	assert.Equal(t, ev.EventID().String(), got.msg.MessageId)
	assert.Equal(t, "clerk-7", got.msg.Headers["actor"])

	var rec AuditRecord
	require.NoError(t, json.Unmarshal(got.msg.Body, &rec))
	assert.Equal(t, "APPROVED", rec.ToStatus)

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestAuditPublisher_Errors(t *testing.T) {
	_, err := newAuditPublisher(&fakeChannel{declareErr: errors.New("access refused")}, "x", zap.NewNop())
	assert.ErrorContains(t, err, "declare exchange")

	ch := &fakeChannel{}
	p, err := newAuditPublisher(ch, "x", zap.NewNop())
	require.NoError(t, err)
	ch.publishErr = errors.New("channel closed")
	assert.ErrorContains(t, p.Handle(context.Background(), transitionEvent("PaymentRefunded", "Payment", "", "")), "channel closed")
}

func TestAuditLogHandler(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	h := NewAuditLogHandler(zap.New(core))

	require.NoError(t, h.Handle(context.Background(), transitionEvent("InvoiceStatusChanged", "Invoice", "PENDING", "CANCELLED")))

	logs := recorded.FilterMessage("InvoiceStatusChanged").All()
	require.Len(t, logs, 1)
	fields := logs[0].ContextMap()
	assert.Equal(t, "PENDING", fields["from_status"])
	assert.Equal(t, "CANCELLED", fields["to_status"])
	assert.Equal(t, "clerk-7", fields["actor"])
}
