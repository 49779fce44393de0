package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/medledger/billing/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func transitionEvent(eventType, aggType, from, to string) *shared.TransitionEvent {
	return &shared.TransitionEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, aggType, uuid.New(), "clerk-7"),
		From:            from,
		To:              to,
	}
}

type recordingHandler struct {
	mu      sync.Mutex
	types   []string
	handled []shared.DomainEvent
	err     error
	panics  bool
}

func (h *recordingHandler) Handle(_ context.Context, event shared.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.panics {
		panic("handler bug")
	}
	h.handled = append(h.handled, event)
	return h.err
}

func (h *recordingHandler) EventTypes() []string { return h.types }

func (h *recordingHandler) Handled() []shared.DomainEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]shared.DomainEvent(nil), h.handled...)
}

func startedBus(t *testing.T) *InMemoryEventBus {
	t.Helper()
	bus := NewInMemoryEventBus(zap.NewNop())
	require.NoError(t, bus.Start(context.Background()))
	return bus
}

func TestInMemoryEventBus_RoutesByType(t *testing.T) {
	bus := startedBus(t)
	invoices := &recordingHandler{types: []string{"InvoiceStatusChanged"}}
	everything := &recordingHandler{}
	bus.Subscribe(invoices)
	bus.Subscribe(everything)

	inv := transitionEvent("InvoiceStatusChanged", "Invoice", "PENDING", "PAID")
	claim := transitionEvent("ClaimStatusChanged", "InsuranceClaim", "SUBMITTED", "IN_REVIEW")
	require.NoError(t, bus.Publish(context.Background(), inv, claim))

	assert.Equal(t, []shared.DomainEvent{inv}, invoices.Handled())
	assert.Len(t, everything.Handled(), 2)
}

func TestInMemoryEventBus_FailuresDoNotStopDelivery(t *testing.T) {
	bus := startedBus(t)
	failing := &recordingHandler{err: errors.New("broker down")}
	panicking := &recordingHandler{panics: true}
	healthy := &recordingHandler{}
	bus.Subscribe(failing)
	bus.Subscribe(panicking)
	bus.Subscribe(healthy)

	err := bus.Publish(context.Background(), transitionEvent("PaymentRecorded", "Payment", "", "COMPLETED"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Contains(t, err.Error(), "panicked")
	assert.Len(t, healthy.Handled(), 1)
}

func TestInMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := startedBus(t)
	h := &recordingHandler{}
	bus.Subscribe(h)
	bus.Unsubscribe(h)

	require.NoError(t, bus.Publish(context.Background(), transitionEvent("InvoiceSent", "Invoice", "", "")))
	assert.Empty(t, h.Handled())
}

func TestInMemoryEventBus_StoppedBusDrops(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	h := &recordingHandler{}
	bus.Subscribe(h)

	require.NoError(t, bus.Publish(context.Background(), transitionEvent("InvoiceSent", "Invoice", "", "")))
	assert.Empty(t, h.Handled(), "not started")

	require.NoError(t, bus.Start(context.Background()))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, bus.Stop(ctx))

	require.NoError(t, bus.Publish(context.Background(), transitionEvent("InvoiceSent", "Invoice", "", "")))
	assert.Empty(t, h.Handled())
}

func TestSubscriptionTable(t *testing.T) {
	var tbl subscriptionTable
	a := &recordingHandler{}
	b := &recordingHandler{}
	tbl.add(a, "InvoiceCreated")
	tbl.add(a, "InvoiceSent")
	tbl.add(b)

	assert.Equal(t, 2, tbl.len())
	assert.Equal(t, []shared.EventHandler{a, b}, tbl.handlersFor("InvoiceSent"))
	assert.Equal(t, []shared.EventHandler{b}, tbl.handlersFor("ClaimPaid"))

	tbl.add(a)
	assert.Len(t, tbl.handlersFor("ClaimPaid"), 2, "empty type list widens to every event")

	tbl.remove(a)
	assert.Equal(t, []shared.EventHandler{b}, tbl.handlersFor("InvoiceCreated"))
	tbl.remove(b)
	assert.Zero(t, tbl.len())
}
