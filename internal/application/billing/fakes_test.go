package billing

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/medledger/billing/internal/domain/billing"
	"github.com/medledger/billing/internal/domain/shared"
	"github.com/medledger/billing/internal/domain/shared/valueobject"
	"github.com/stretchr/testify/mock"
)

// MockEventPublisher records published events
type MockEventPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
	err    error
}

func NewMockEventPublisher() *MockEventPublisher {
	return &MockEventPublisher{events: make([]shared.DomainEvent, 0)}
}

func (m *MockEventPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return m.err
}

func (m *MockEventPublisher) GetEventsByType(eventType string) []shared.DomainEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]shared.DomainEvent, 0)
	for _, e := range m.events {
		if e.EventType() == eventType {
			result = append(result, e)
		}
	}
	return result
}

// MockIdempotencyStore is a testify mock of shared.IdempotencyStore
type MockIdempotencyStore struct {
	mock.Mock
}

func (m *MockIdempotencyStore) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) Complete(ctx context.Context, key, result string, ttl time.Duration) error {
	return m.Called(ctx, key, result, ttl).Error(0)
}

func (m *MockIdempotencyStore) Lookup(ctx context.Context, key string) (string, bool, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockIdempotencyStore) Release(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockIdempotencyStore) Close() error {
	return m.Called().Error(0)
}

// memStore keeps copies of aggregates so that callers never share state with
// the "database", mirroring what a real repository does.
type memStore struct {
	mu       sync.Mutex
	invoices map[uuid.UUID]billing.Invoice
	claims   map[uuid.UUID]billing.Claim
	payments map[uuid.UUID]billing.Payment
	seq      map[string]int
}

func newMemStore() *memStore {
	return &memStore{
		invoices: make(map[uuid.UUID]billing.Invoice),
		claims:   make(map[uuid.UUID]billing.Claim),
		payments: make(map[uuid.UUID]billing.Payment),
		seq:      make(map[string]int),
	}
}

func copyInvoice(inv *billing.Invoice) billing.Invoice {
	cp := *inv
	cp.Items = append([]billing.InvoiceItem(nil), inv.Items...)
	cp.ClearDomainEvents()
	return cp
}

func copyClaim(c *billing.Claim) billing.Claim {
	cp := *c
	cp.History = append(billing.ClaimHistory(nil), c.History...)
	cp.ClearDomainEvents()
	return cp
}

func copyPayment(p *billing.Payment) billing.Payment {
	cp := *p
	if p.Card != nil {
		card := *p.Card
		cp.Card = &card
	}
	cp.ClearDomainEvents()
	return cp
}

func (s *memStore) next(prefix string, now time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	day := now.UTC().Format("20060102")
	s.seq[prefix+day]++
	return billing.DocumentNumber(prefix, now, s.seq[prefix+day])
}

func staleVersion(entity string) error {
	return shared.NewConflictError(entity + " was modified by another process")
}

// memRepos implements TransactionalRepositories over a memStore
type memRepos struct{ s *memStore }

func (r memRepos) InvoiceRepo() billing.InvoiceRepository { return memInvoiceRepo(r) }
func (r memRepos) ClaimRepo() billing.ClaimRepository     { return memClaimRepo(r) }
func (r memRepos) PaymentRepo() billing.PaymentRepository { return memPaymentRepo(r) }

// =============================================================================
// Invoices
// =============================================================================

type memInvoiceRepo struct{ s *memStore }

func (r memInvoiceRepo) FindByID(_ context.Context, id uuid.UUID) (*billing.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inv, ok := r.s.invoices[id]
	if !ok {
		return nil, shared.NewNotFoundError("invoice", id)
	}
	cp := copyInvoice(&inv)
	return &cp, nil
}

func (r memInvoiceRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	return r.FindByID(ctx, id)
}

func (r memInvoiceRepo) FindByNumber(_ context.Context, number string) (*billing.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, inv := range r.s.invoices {
		if inv.InvoiceNumber == number {
			cp := copyInvoice(&inv)
			return &cp, nil
		}
	}
	return nil, shared.NewNotFoundError("invoice", number)
}

func (r memInvoiceRepo) matching(filter billing.InvoiceFilter) []billing.Invoice {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]billing.Invoice, 0)
	for _, inv := range r.s.invoices {
		if filter.Status != nil && inv.Status != *filter.Status {
			continue
		}
		if filter.PatientID != "" && inv.PatientID != filter.PatientID {
			continue
		}
		out = append(out, copyInvoice(&inv))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InvoiceNumber < out[j].InvoiceNumber })
	return out
}

func (r memInvoiceRepo) FindAll(_ context.Context, filter billing.InvoiceFilter) ([]billing.Invoice, error) {
	all := r.matching(filter)
	f := filter.Normalize()
	start := f.Offset()
	if start >= len(all) {
		return []billing.Invoice{}, nil
	}
	end := min(start+f.PageSize, len(all))
	return all[start:end], nil
}

func (r memInvoiceRepo) Count(_ context.Context, filter billing.InvoiceFilter) (int64, error) {
	return int64(len(r.matching(filter))), nil
}

func (r memInvoiceRepo) Create(_ context.Context, inv *billing.Invoice) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.invoices[inv.ID]; ok {
		return shared.NewConflictError("invoice already exists")
	}
	r.s.invoices[inv.ID] = copyInvoice(inv)
	return nil
}

func (r memInvoiceRepo) SaveWithLock(_ context.Context, inv *billing.Invoice) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.invoices[inv.ID]
	if !ok {
		return shared.NewNotFoundError("invoice", inv.ID)
	}
	if stored.Version != inv.Version {
		return staleVersion("invoice")
	}
	inv.IncrementVersion()
	r.s.invoices[inv.ID] = copyInvoice(inv)
	return nil
}

func (r memInvoiceRepo) GenerateInvoiceNumber(_ context.Context, now time.Time) (string, error) {
	return r.s.next(billing.InvoiceNumberPrefix, now), nil
}

func (r memInvoiceRepo) CountByStatus(_ context.Context) (map[billing.InvoiceStatus]int64, error) {
	out := make(map[billing.InvoiceStatus]int64)
	for _, inv := range r.matching(billing.InvoiceFilter{}) {
		out[inv.Status]++
	}
	return out, nil
}

func (r memInvoiceRepo) SumTotals(_ context.Context) (billing.InvoiceTotals, error) {
	t := billing.InvoiceTotals{
		Billed:      valueobject.ZeroUSD(),
		Paid:        valueobject.ZeroUSD(),
		Outstanding: valueobject.ZeroUSD(),
	}
	for _, inv := range r.matching(billing.InvoiceFilter{}) {
		switch inv.Status {
		case billing.InvoiceStatusDraft, billing.InvoiceStatusCancelled, billing.InvoiceStatusVoid:
			continue
		}
		t.Billed = t.Billed.MustAdd(inv.TotalAmount)
		t.Paid = t.Paid.MustAdd(inv.PaidAmount)
		if !inv.Status.IsTerminal() {
			t.Outstanding = t.Outstanding.MustAdd(inv.BalanceDue)
		}
	}
	return t, nil
}

func (r memInvoiceRepo) SumOverdue(_ context.Context, now time.Time) (int64, valueobject.Money, error) {
	var n int64
	total := valueobject.ZeroUSD()
	for _, inv := range r.matching(billing.InvoiceFilter{}) {
		if inv.EffectiveStatus(now) == billing.InvoiceStatusOverdue {
			n++
			total = total.MustAdd(inv.BalanceDue)
		}
	}
	return n, total, nil
}

// =============================================================================
// Claims
// =============================================================================

type memClaimRepo struct{ s *memStore }

func (r memClaimRepo) FindByID(_ context.Context, id uuid.UUID) (*billing.Claim, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.claims[id]
	if !ok {
		return nil, shared.NewNotFoundError("claim", id)
	}
	cp := copyClaim(&c)
	return &cp, nil
}

func (r memClaimRepo) matching(filter billing.ClaimFilter) []billing.Claim {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]billing.Claim, 0)
	for _, c := range r.s.claims {
		if filter.InvoiceID != nil && c.InvoiceID != *filter.InvoiceID {
			continue
		}
		if filter.Status != nil && c.Status != *filter.Status {
			continue
		}
		out = append(out, copyClaim(&c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClaimNumber < out[j].ClaimNumber })
	return out
}

func (r memClaimRepo) FindByInvoice(_ context.Context, invoiceID uuid.UUID) ([]*billing.Claim, error) {
	all := r.matching(billing.ClaimFilter{InvoiceID: &invoiceID})
	out := make([]*billing.Claim, len(all))
	for i := range all {
		out[i] = &all[i]
	}
	return out, nil
}

func (r memClaimRepo) FindAll(_ context.Context, filter billing.ClaimFilter) ([]billing.Claim, error) {
	return r.matching(filter), nil
}

func (r memClaimRepo) Count(_ context.Context, filter billing.ClaimFilter) (int64, error) {
	return int64(len(r.matching(filter))), nil
}

func (r memClaimRepo) CountNonTerminalByInvoice(_ context.Context, invoiceID uuid.UUID) (int64, error) {
	var n int64
	for _, c := range r.matching(billing.ClaimFilter{InvoiceID: &invoiceID}) {
		if !c.Status.IsTerminal() {
			n++
		}
	}
	return n, nil
}

func (r memClaimRepo) Create(_ context.Context, c *billing.Claim) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.claims[c.ID] = copyClaim(c)
	return nil
}

func (r memClaimRepo) SaveWithLock(_ context.Context, c *billing.Claim) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.claims[c.ID]
	if !ok {
		return shared.NewNotFoundError("claim", c.ID)
	}
	if stored.Version != c.Version {
		return staleVersion("claim")
	}
	c.IncrementVersion()
	r.s.claims[c.ID] = copyClaim(c)
	return nil
}

func (r memClaimRepo) GenerateClaimNumber(_ context.Context, now time.Time) (string, error) {
	return r.s.next(billing.ClaimNumberPrefix, now), nil
}

func (r memClaimRepo) CountByStatus(_ context.Context) (map[billing.ClaimStatus]int64, error) {
	out := make(map[billing.ClaimStatus]int64)
	for _, c := range r.matching(billing.ClaimFilter{}) {
		out[c.Status]++
	}
	return out, nil
}

func (r memClaimRepo) SumInsurancePaid(_ context.Context) (valueobject.Money, error) {
	total := valueobject.ZeroUSD()
	for _, c := range r.matching(billing.ClaimFilter{}) {
		total = total.MustAdd(c.InsuranceCredit())
	}
	return total, nil
}

// =============================================================================
// Payments
// =============================================================================

type memPaymentRepo struct{ s *memStore }

func (r memPaymentRepo) FindByID(_ context.Context, id uuid.UUID) (*billing.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[id]
	if !ok {
		return nil, shared.NewNotFoundError("payment", id)
	}
	cp := copyPayment(&p)
	return &cp, nil
}

func (r memPaymentRepo) matching(filter billing.PaymentFilter) []billing.Payment {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]billing.Payment, 0)
	for _, p := range r.s.payments {
		if filter.InvoiceID != nil && p.InvoiceID != *filter.InvoiceID {
			continue
		}
		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}
		out = append(out, copyPayment(&p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReferenceNumber < out[j].ReferenceNumber })
	return out
}

func (r memPaymentRepo) FindByInvoice(_ context.Context, invoiceID uuid.UUID) ([]*billing.Payment, error) {
	all := r.matching(billing.PaymentFilter{InvoiceID: &invoiceID})
	out := make([]*billing.Payment, len(all))
	for i := range all {
		out[i] = &all[i]
	}
	return out, nil
}

func (r memPaymentRepo) FindAll(_ context.Context, filter billing.PaymentFilter) ([]billing.Payment, error) {
	return r.matching(filter), nil
}

func (r memPaymentRepo) Count(_ context.Context, filter billing.PaymentFilter) (int64, error) {
	return int64(len(r.matching(filter))), nil
}

func (r memPaymentRepo) Create(_ context.Context, p *billing.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.payments[p.ID] = copyPayment(p)
	return nil
}

func (r memPaymentRepo) SaveWithLock(_ context.Context, p *billing.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.payments[p.ID]
	if !ok {
		return shared.NewNotFoundError("payment", p.ID)
	}
	if stored.Version != p.Version {
		return staleVersion("payment")
	}
	p.IncrementVersion()
	r.s.payments[p.ID] = copyPayment(p)
	return nil
}

func (r memPaymentRepo) GeneratePaymentNumber(_ context.Context, now time.Time) (string, error) {
	return r.s.next(billing.PaymentNumberPrefix, now), nil
}

func (r memPaymentRepo) SumRevenue(_ context.Context, from, to time.Time) ([]billing.RevenueRow, error) {
	byMethod := make(map[billing.PaymentMethod]*billing.RevenueRow)
	for _, p := range r.matching(billing.PaymentFilter{}) {
		if !p.Status.IsCaptured() || p.PaymentDate.Before(from) || !p.PaymentDate.Before(to) {
			continue
		}
		row, ok := byMethod[p.Method]
		if !ok {
			row = &billing.RevenueRow{Method: p.Method, Gross: valueobject.ZeroUSD(), Refunded: valueobject.ZeroUSD()}
			byMethod[p.Method] = row
		}
		row.Gross = row.Gross.MustAdd(p.Amount)
		row.Refunded = row.Refunded.MustAdd(p.RefundAmount)
		row.PaymentCount++
		if p.RefundAmount.IsPositive() {
			row.RefundCount++
		}
	}
	out := make([]billing.RevenueRow, 0, len(byMethod))
	for _, row := range byMethod {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Method < out[j].Method })
	return out, nil
}

// =============================================================================
// Fixture
// =============================================================================

var fixtureNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store     *memStore
	ledger    *Ledger
	publisher *MockEventPublisher
	invoices  *InvoiceService
	claims    *ClaimService
	payments  *PaymentService
	stats     *StatisticsService
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore()
	repos := memRepos{s: store}
	scope := NewNoOpTransactionScope(repos.InvoiceRepo(), repos.ClaimRepo(), repos.PaymentRepo())

	f := &fixture{store: store, publisher: NewMockEventPublisher(), now: fixtureNow}
	f.ledger = NewLedger(repos, scope, NewInvoiceLocks(8))
	f.ledger.SetEventPublisher(f.publisher)
	f.ledger.SetClock(func() time.Time { return f.now })

	f.invoices = NewInvoiceService(f.ledger)
	f.claims = NewClaimService(f.ledger)
	f.payments = NewPaymentService(f.ledger, nil, shared.IdempotencyConfig{})
	f.stats = NewStatisticsService(f.ledger)
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *fixture) storedInvoice(t *testing.T, id uuid.UUID) billing.Invoice {
	t.Helper()
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	inv, ok := f.store.invoices[id]
	if !ok {
		t.Fatalf("invoice %s not stored", id)
	}
	return inv
}
