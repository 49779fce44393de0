package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/medledger/billing/internal/domain/shared"
	"github.com/medledger/billing/internal/domain/shared/valueobject"
)

const aggregateTypeInvoice = "Invoice"

// InvoiceItem is a billed line. TotalPrice is computed once at creation.
type InvoiceItem struct {
	ID            uuid.UUID
	Description   string
	ProcedureCode string
	Quantity      int64
	UnitPrice     valueobject.Money
	TotalPrice    valueobject.Money
	SortOrder     int
}

// ItemSpec carries the caller-supplied fields of a new line
type ItemSpec struct {
	Description   string
	ProcedureCode string
	Quantity      int64
	UnitPrice     valueobject.Money
}

// NewInvoiceItem validates spec and computes the line total
func NewInvoiceItem(spec ItemSpec) (InvoiceItem, error) {
	if spec.Description == "" {
		return InvoiceItem{}, shared.NewValidationError("item description cannot be empty")
	}
	if spec.Quantity <= 0 {
		return InvoiceItem{}, shared.NewValidationErrorf("item quantity must be positive, got %d", spec.Quantity)
	}
	if spec.UnitPrice.IsNegative() {
		return InvoiceItem{}, shared.NewValidationError("item unit price cannot be negative")
	}
	total, err := spec.UnitPrice.MultiplyByInt(spec.Quantity)
	if err != nil {
		return InvoiceItem{}, shared.NewValidationError("item total is out of range")
	}
	return InvoiceItem{
		ID:            uuid.New(),
		Description:   spec.Description,
		ProcedureCode: spec.ProcedureCode,
		Quantity:      spec.Quantity,
		UnitPrice:     spec.UnitPrice,
		TotalPrice:    total,
	}, nil
}

// Invoice is the aggregate root of the invoice ledger.
//
// Invariants:
//   - TotalAmount = Subtotal + TaxAmount - DiscountAmount >= 0
//   - Subtotal = sum of item totals, TaxAmount = Subtotal x TaxRate (half up)
//   - BalanceDue = max(0, TotalAmount - PaidAmount)
//   - items, tax rate and discount change only in DRAFT
type Invoice struct {
	shared.BaseAggregateRoot
	InvoiceNumber        string
	PatientID            string
	AppointmentID        string
	Items                []InvoiceItem
	TaxRate              valueobject.BasisPoints
	Subtotal             valueobject.Money
	TaxAmount            valueobject.Money
	DiscountAmount       valueobject.Money
	TotalAmount          valueobject.Money
	PaidAmount           valueobject.Money
	BalanceDue           valueobject.Money
	InvoiceDate          time.Time
	DueDate              time.Time
	Status               InvoiceStatus
	InsuranceClaimNumber string
	InsuranceAmount      *valueobject.Money
	Notes                string
	CreatedBy            string
	SentAt               *time.Time
	SettledAt            *time.Time // first time the invoice reached PAID
	ClosedAt             *time.Time
	StatusReason         string
	PaymentCount         int
}

// NewInvoiceParams groups the inputs of NewInvoice
type NewInvoiceParams struct {
	InvoiceNumber  string
	PatientID      string
	AppointmentID  string
	Items          []ItemSpec
	InvoiceDate    time.Time
	DueDate        time.Time
	TaxRate        valueobject.BasisPoints
	DiscountAmount valueobject.Money
	Notes          string
	CreatedBy      string
}

// NewInvoice creates a DRAFT invoice with computed totals
func NewInvoice(p NewInvoiceParams) (*Invoice, error) {
	if p.InvoiceNumber == "" {
		return nil, shared.NewValidationError("invoice number cannot be empty")
	}
	if p.PatientID == "" {
		return nil, shared.NewValidationError("patient ID cannot be empty")
	}
	if len(p.Items) == 0 {
		return nil, shared.NewValidationError("invoice must have at least one item")
	}
	if !p.TaxRate.IsValid() {
		return nil, shared.NewValidationErrorf("tax rate %s is outside 0%%..100%%", p.TaxRate)
	}
	if p.DiscountAmount.IsNegative() {
		return nil, shared.NewValidationError("discount cannot be negative")
	}
	invoiceDate := truncateToDay(p.InvoiceDate)
	if invoiceDate.IsZero() {
		invoiceDate = truncateToDay(time.Now())
	}
	dueDate := truncateToDay(p.DueDate)
	if dueDate.IsZero() {
		return nil, shared.NewValidationError("due date is required")
	}
	if dueDate.Before(invoiceDate) {
		return nil, shared.NewValidationError("due date cannot be before invoice date")
	}

	items := make([]InvoiceItem, 0, len(p.Items))
	for i, spec := range p.Items {
		item, err := NewInvoiceItem(spec)
		if err != nil {
			return nil, err
		}
		item.SortOrder = i
		items = append(items, item)
	}

	totals, err := computeTotals(items, p.TaxRate, p.DiscountAmount)
	if err != nil {
		return nil, err
	}

	inv := &Invoice{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		InvoiceNumber:     p.InvoiceNumber,
		PatientID:         p.PatientID,
		AppointmentID:     p.AppointmentID,
		Items:             items,
		TaxRate:           p.TaxRate,
		DiscountAmount:    p.DiscountAmount,
		PaidAmount:        valueobject.ZeroUSD(),
		InvoiceDate:       invoiceDate,
		DueDate:           dueDate,
		Status:            InvoiceStatusDraft,
		Notes:             p.Notes,
		CreatedBy:         p.CreatedBy,
	}
	inv.applyTotals(totals)

	inv.AddDomainEvent(NewInvoiceCreatedEvent(inv))
	return inv, nil
}

type invoiceTotals struct {
	subtotal valueobject.Money
	tax      valueobject.Money
	total    valueobject.Money
}

// computeTotals derives subtotal, tax and total without touching the invoice,
// so a rejected edit leaves the aggregate unchanged.
func computeTotals(items []InvoiceItem, rate valueobject.BasisPoints, discount valueobject.Money) (invoiceTotals, error) {
	subtotal := valueobject.ZeroUSD()
	for _, item := range items {
		var err error
		if subtotal, err = subtotal.Add(item.TotalPrice); err != nil {
			return invoiceTotals{}, shared.NewValidationError("invoice subtotal is out of range")
		}
	}
	tax, err := subtotal.ApplyRate(rate)
	if err != nil {
		return invoiceTotals{}, shared.NewValidationError("invoice tax is out of range")
	}
	gross, err := subtotal.Add(tax)
	if err != nil {
		return invoiceTotals{}, shared.NewValidationError("invoice total is out of range")
	}
	if discount.GreaterThan(gross) {
		return invoiceTotals{}, shared.NewValidationErrorf(
			"discount %s exceeds subtotal plus tax %s", discount.Display(), gross.Display())
	}
	return invoiceTotals{
		subtotal: subtotal,
		tax:      tax,
		total:    gross.MustSubtract(discount),
	}, nil
}

func (inv *Invoice) applyTotals(t invoiceTotals) {
	inv.Subtotal = t.subtotal
	inv.TaxAmount = t.tax
	inv.TotalAmount = t.total
	inv.BalanceDue = valueobject.Max(valueobject.ZeroUSD(), t.total.MustSubtract(inv.PaidAmount))
}

// RecomputeTotals re-derives subtotal, tax, total and balance from the items
func (inv *Invoice) RecomputeTotals() error {
	totals, err := computeTotals(inv.Items, inv.TaxRate, inv.DiscountAmount)
	if err != nil {
		return err
	}
	inv.applyTotals(totals)
	return nil
}

func (inv *Invoice) requireDraft(attempted string) error {
	if inv.Status != InvoiceStatusDraft {
		return shared.NewInvalidStateError("invoice", string(inv.Status), attempted)
	}
	return nil
}

// touch stamps UpdatedAt; the version is bumped by the repository on save
func (inv *Invoice) touch() {
	inv.Touch(time.Now().UTC())
}

// AddItem appends a line to a DRAFT invoice
func (inv *Invoice) AddItem(spec ItemSpec, actor string) (*InvoiceItem, error) {
	if err := inv.requireDraft("add item to"); err != nil {
		return nil, err
	}
	item, err := NewInvoiceItem(spec)
	if err != nil {
		return nil, err
	}
	item.SortOrder = inv.nextSortOrder()

	items := append(append([]InvoiceItem(nil), inv.Items...), item)
	totals, err := computeTotals(items, inv.TaxRate, inv.DiscountAmount)
	if err != nil {
		return nil, err
	}
	inv.Items = items
	inv.applyTotals(totals)
	inv.touch()
	inv.AddDomainEvent(NewInvoiceItemsChangedEvent(inv, actor, "item_added", item.ID))
	return &inv.Items[len(inv.Items)-1], nil
}

func (inv *Invoice) nextSortOrder() int {
	next := 0
	for _, item := range inv.Items {
		if item.SortOrder >= next {
			next = item.SortOrder + 1
		}
	}
	return next
}

// RemoveItem deletes a line from a DRAFT invoice
func (inv *Invoice) RemoveItem(itemID uuid.UUID, actor string) error {
	if err := inv.requireDraft("remove item from"); err != nil {
		return err
	}
	idx := -1
	for i, item := range inv.Items {
		if item.ID == itemID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return shared.NewNotFoundError("invoice item", itemID)
	}

	items := make([]InvoiceItem, 0, len(inv.Items)-1)
	items = append(items, inv.Items[:idx]...)
	items = append(items, inv.Items[idx+1:]...)
	totals, err := computeTotals(items, inv.TaxRate, inv.DiscountAmount)
	if err != nil {
		return err
	}
	inv.Items = items
	inv.applyTotals(totals)
	inv.touch()
	inv.AddDomainEvent(NewInvoiceItemsChangedEvent(inv, actor, "item_removed", itemID))
	return nil
}

// FindItem returns the item with the given ID, or nil
func (inv *Invoice) FindItem(itemID uuid.UUID) *InvoiceItem {
	for i := range inv.Items {
		if inv.Items[i].ID == itemID {
			return &inv.Items[i]
		}
	}
	return nil
}

// ApplyDiscount replaces the discount of a DRAFT invoice.
// A discount equal to subtotal + tax yields a zero total; anything larger is rejected.
func (inv *Invoice) ApplyDiscount(amount valueobject.Money, actor string) error {
	if err := inv.requireDraft("apply discount to"); err != nil {
		return err
	}
	if amount.IsNegative() {
		return shared.NewValidationError("discount cannot be negative")
	}
	totals, err := computeTotals(inv.Items, inv.TaxRate, amount)
	if err != nil {
		return err
	}
	inv.DiscountAmount = amount
	inv.applyTotals(totals)
	inv.touch()
	inv.AddDomainEvent(NewInvoiceItemsChangedEvent(inv, actor, "discount_applied", uuid.Nil))
	return nil
}

// ApplyTax replaces the tax rate of a DRAFT invoice
func (inv *Invoice) ApplyTax(rate valueobject.BasisPoints, actor string) error {
	if err := inv.requireDraft("apply tax to"); err != nil {
		return err
	}
	if !rate.IsValid() {
		return shared.NewValidationErrorf("tax rate %s is outside 0%%..100%%", rate)
	}
	totals, err := computeTotals(inv.Items, rate, inv.DiscountAmount)
	if err != nil {
		return err
	}
	inv.TaxRate = rate
	inv.applyTotals(totals)
	inv.touch()
	inv.AddDomainEvent(NewInvoiceItemsChangedEvent(inv, actor, "tax_applied", uuid.Nil))
	return nil
}

// transition moves the invoice along the state machine and records the event
func (inv *Invoice) transition(next InvoiceStatus, attempted, actor, reason string) error {
	if !inv.Status.CanTransitionTo(next) {
		return shared.NewInvalidStateError("invoice", string(inv.Status), attempted)
	}
	from := inv.Status
	inv.Status = next
	inv.touch()
	inv.AddDomainEvent(NewInvoiceStatusChangedEvent(inv, from, actor, reason))
	return nil
}

// Finalize locks a DRAFT invoice's items and moves it to PENDING
func (inv *Invoice) Finalize(actor string) error {
	if err := inv.requireDraft("finalize"); err != nil {
		return err
	}
	if len(inv.Items) == 0 {
		return shared.NewValidationError("cannot finalize an invoice without items")
	}
	if err := inv.RecomputeTotals(); err != nil {
		return err
	}
	return inv.transition(InvoiceStatusPending, "finalize", actor, "")
}

// Send records that the invoice was delivered to the patient. Sending twice is rejected.
func (inv *Invoice) Send(actor string, now time.Time) error {
	if !inv.Status.AcceptsPayment() {
		return shared.NewInvalidStateError("invoice", string(inv.Status), "send")
	}
	if inv.SentAt != nil {
		err := shared.NewInvalidStateError("invoice", string(inv.Status), "send")
		err.Message = "invoice " + inv.InvoiceNumber + " was already sent"
		return err.WithDetail("sent_at", inv.SentAt.Format(time.RFC3339))
	}
	sentAt := now.UTC()
	inv.SentAt = &sentAt
	inv.touch()
	inv.AddDomainEvent(NewInvoiceSentEvent(inv, actor))
	return nil
}

// Cancel terminates a DRAFT or PENDING invoice that has no payments, past due or not
func (inv *Invoice) Cancel(reason, actor string, now time.Time) error {
	// a stored OVERDUE is a past-due PENDING or PARTIALLY_PAID; judge the
	// underlying status so the sweeper having run does not matter
	base := inv.Status
	if base == InvoiceStatusOverdue {
		base = inv.unpaidStatus()
	}
	if base != InvoiceStatusDraft && base != InvoiceStatusPending {
		return shared.NewInvalidStateError("invoice", string(inv.Status), "cancel")
	}
	if inv.PaymentCount > 0 || inv.PaidAmount.IsPositive() {
		return shared.NewInvalidStateError("invoice", string(inv.Status), "cancel").
			WithDetail("reason", "payments have been recorded")
	}
	return inv.close(InvoiceStatusCancelled, "cancel", reason, actor, now)
}

// Void is an administrative override available from any non-terminal status
func (inv *Invoice) Void(reason, actor string, now time.Time) error {
	return inv.close(InvoiceStatusVoid, "void", reason, actor, now)
}

// WriteOff forgives the outstanding balance
func (inv *Invoice) WriteOff(reason, actor string, now time.Time) error {
	return inv.close(InvoiceStatusWriteOff, "write off", reason, actor, now)
}

func (inv *Invoice) close(next InvoiceStatus, attempted, reason, actor string, now time.Time) error {
	if err := inv.transition(next, attempted, actor, reason); err != nil {
		return err
	}
	closedAt := now.UTC()
	inv.ClosedAt = &closedAt
	inv.StatusReason = reason
	return nil
}

// UpdateDueDate moves the due date of a non-terminal invoice and re-derives OVERDUE
func (inv *Invoice) UpdateDueDate(dueDate time.Time, actor string, now time.Time) error {
	if inv.Status.IsTerminal() {
		return shared.NewInvalidStateError("invoice", string(inv.Status), "change due date of")
	}
	due := truncateToDay(dueDate)
	if due.IsZero() || due.Before(inv.InvoiceDate) {
		return shared.NewValidationError("due date cannot be before invoice date")
	}
	inv.DueDate = due
	inv.touch()
	inv.RefreshOverdue(actor, now)
	return nil
}

// IsPastDue is true when a balance remains after the due date has passed.
// The due date is inclusive: an invoice due today is not overdue until tomorrow.
func (inv *Invoice) IsPastDue(now time.Time) bool {
	if !inv.BalanceDue.IsPositive() {
		return false
	}
	return !now.UTC().Before(inv.DueDate.AddDate(0, 0, 1))
}

// EffectiveStatus layers the OVERDUE derivation over the stored status
func (inv *Invoice) EffectiveStatus(now time.Time) InvoiceStatus {
	switch inv.Status {
	case InvoiceStatusPending, InvoiceStatusPartiallyPaid:
		if inv.IsPastDue(now) {
			return InvoiceStatusOverdue
		}
	case InvoiceStatusOverdue:
		if !inv.IsPastDue(now) {
			return inv.unpaidStatus()
		}
	}
	return inv.Status
}

func (inv *Invoice) unpaidStatus() InvoiceStatus {
	if inv.PaidAmount.IsPositive() {
		return InvoiceStatusPartiallyPaid
	}
	return InvoiceStatusPending
}

// RefreshOverdue stores the effective status; it reports whether the status changed
func (inv *Invoice) RefreshOverdue(actor string, now time.Time) bool {
	eff := inv.EffectiveStatus(now)
	if eff == inv.Status {
		return false
	}
	if err := inv.transition(eff, "re-derive overdue status of", actor, "due date"); err != nil {
		return false
	}
	return true
}

// LinkClaim denormalizes the latest claim onto the invoice
func (inv *Invoice) LinkClaim(claimNumber string, insuranceAmount *valueobject.Money) {
	inv.InsuranceClaimNumber = claimNumber
	inv.InsuranceAmount = insuranceAmount
	inv.touch()
}

func truncateToDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
