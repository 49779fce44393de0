package billing

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/medledger/billing/internal/domain/shared"
	"github.com/medledger/billing/internal/domain/shared/valueobject"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func usd(cents int64) valueobject.Money {
	return valueobject.USDCents(cents)
}

func scenarioAParams() NewInvoiceParams {
	return NewInvoiceParams{
		InvoiceNumber: "INV-20260310-000001",
		PatientID:     "patient-1",
		Items: []ItemSpec{
			{Description: "Consultation", ProcedureCode: "99213", Quantity: 2, UnitPrice: usd(15000)},
		},
		InvoiceDate: testNow,
		DueDate:     testNow.AddDate(0, 0, 30),
		TaxRate:     800,
		CreatedBy:   "clerk-1",
	}
}

func newScenarioAInvoice(t *testing.T) *Invoice {
	t.Helper()
	inv, err := NewInvoice(scenarioAParams())
	require.NoError(t, err)
	return inv
}

func newPendingInvoice(t *testing.T) *Invoice {
	t.Helper()
	inv := newScenarioAInvoice(t)
	require.NoError(t, inv.Finalize("clerk-1"))
	return inv
}

func assertInvoiceIdentities(t *testing.T, inv *Invoice) {
	t.Helper()
	gross := inv.Subtotal.MustAdd(inv.TaxAmount)
	assert.True(t, inv.TotalAmount.Equals(gross.MustSubtract(inv.DiscountAmount)), "total identity")
	assert.False(t, inv.TotalAmount.IsNegative(), "total >= 0")
	expectedBalance := valueobject.Max(valueobject.ZeroUSD(), inv.TotalAmount.MustSubtract(inv.PaidAmount))
	assert.True(t, inv.BalanceDue.Equals(expectedBalance), "balance identity")
}

func requireDomainCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var de *shared.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, code, de.Code)
}

func TestNewInvoice_ScenarioA(t *testing.T) {
	inv := newScenarioAInvoice(t)

	assert.Equal(t, InvoiceStatusDraft, inv.Status)
	assert.Equal(t, int64(30000), inv.Subtotal.Amount())
	assert.Equal(t, int64(2400), inv.TaxAmount.Amount())
	assert.Equal(t, int64(32400), inv.TotalAmount.Amount())
	assert.Equal(t, int64(32400), inv.BalanceDue.Amount())
	assert.Equal(t, int64(30000), inv.Items[0].TotalPrice.Amount())
	assert.Equal(t, 1, inv.Version)
	assertInvoiceIdentities(t, inv)

	events := inv.GetDomainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, EventTypeInvoiceCreated, events[0].EventType())
}

func TestNewInvoice_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *NewInvoiceParams)
	}{
		{"empty items", func(p *NewInvoiceParams) { p.Items = nil }},
		{"zero quantity", func(p *NewInvoiceParams) { p.Items[0].Quantity = 0 }},
		{"negative quantity", func(p *NewInvoiceParams) { p.Items[0].Quantity = -1 }},
		{"negative unit price", func(p *NewInvoiceParams) { p.Items[0].UnitPrice = usd(-1) }},
		{"missing description", func(p *NewInvoiceParams) { p.Items[0].Description = "" }},
		{"missing patient", func(p *NewInvoiceParams) { p.PatientID = "" }},
		{"tax rate above 100%", func(p *NewInvoiceParams) { p.TaxRate = 10001 }},
		{"negative discount", func(p *NewInvoiceParams) { p.DiscountAmount = usd(-1) }},
		{"discount above gross", func(p *NewInvoiceParams) { p.DiscountAmount = usd(32401) }},
		{"due date before invoice date", func(p *NewInvoiceParams) { p.DueDate = testNow.AddDate(0, 0, -1) }},
		{"missing due date", func(p *NewInvoiceParams) { p.DueDate = time.Time{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := scenarioAParams()
			p.Items = append([]ItemSpec(nil), p.Items...)
			tt.mutate(&p)
			_, err := NewInvoice(p)
			requireDomainCode(t, err, shared.CodeValidation)
		})
	}

	t.Run("zero unit price is allowed", func(t *testing.T) {
		p := scenarioAParams()
		p.Items = []ItemSpec{{Description: "Courtesy visit", Quantity: 1, UnitPrice: usd(0)}}
		inv, err := NewInvoice(p)
		require.NoError(t, err)
		assert.True(t, inv.TotalAmount.IsZero())
	})
}

func TestInvoice_AddRemoveItemRoundTrip(t *testing.T) {
	inv := newScenarioAInvoice(t)
	beforeSubtotal, beforeTax, beforeTotal := inv.Subtotal, inv.TaxAmount, inv.TotalAmount

	item, err := inv.AddItem(ItemSpec{Description: "Lab panel", Quantity: 3, UnitPrice: usd(3333)}, "clerk-1")
	require.NoError(t, err)
	assert.Equal(t, int64(39999), inv.Subtotal.Amount())
	assert.Equal(t, int64(3200), inv.TaxAmount.Amount()) // 3199.92 rounds half up
	assertInvoiceIdentities(t, inv)

	require.NoError(t, inv.RemoveItem(item.ID, "clerk-1"))
	assert.True(t, inv.Subtotal.Equals(beforeSubtotal))
	assert.True(t, inv.TaxAmount.Equals(beforeTax))
	assert.True(t, inv.TotalAmount.Equals(beforeTotal))
	assert.Len(t, inv.Items, 1)
}

func TestInvoice_RemoveItem(t *testing.T) {
	t.Run("unknown item is not found", func(t *testing.T) {
		inv := newScenarioAInvoice(t)
		requireDomainCode(t, inv.RemoveItem(uuid.New(), "clerk-1"), shared.CodeNotFound)
	})

	t.Run("removal that strands the discount is rejected", func(t *testing.T) {
		inv := newScenarioAInvoice(t)
		_, err := inv.AddItem(ItemSpec{Description: "Imaging", Quantity: 1, UnitPrice: usd(50000)}, "clerk-1")
		require.NoError(t, err)
		require.NoError(t, inv.ApplyDiscount(usd(40000), "clerk-1"))
		before := inv.TotalAmount

		err = inv.RemoveItem(inv.Items[1].ID, "clerk-1")
		requireDomainCode(t, err, shared.CodeValidation)
		assert.Len(t, inv.Items, 2)
		assert.True(t, inv.TotalAmount.Equals(before))
	})
}

func TestInvoice_ApplyDiscountBoundary(t *testing.T) {
	t.Run("discount above subtotal plus tax is rejected", func(t *testing.T) {
		inv := newScenarioAInvoice(t)
		err := inv.ApplyDiscount(usd(32401), "clerk-1")
		requireDomainCode(t, err, shared.CodeValidation)
		assert.True(t, inv.DiscountAmount.IsZero())
		assert.Equal(t, int64(32400), inv.TotalAmount.Amount())
	})

	t.Run("discount equal to subtotal plus tax yields zero total", func(t *testing.T) {
		inv := newScenarioAInvoice(t)
		require.NoError(t, inv.ApplyDiscount(usd(32400), "clerk-1"))
		assert.True(t, inv.TotalAmount.IsZero())
		assert.True(t, inv.BalanceDue.IsZero())
		assertInvoiceIdentities(t, inv)
	})

	t.Run("negative discount is rejected", func(t *testing.T) {
		inv := newScenarioAInvoice(t)
		requireDomainCode(t, inv.ApplyDiscount(usd(-100), "clerk-1"), shared.CodeValidation)
	})
}

func TestInvoice_ApplyTax(t *testing.T) {
	inv := newScenarioAInvoice(t)
	require.NoError(t, inv.ApplyTax(825, "clerk-1"))
	assert.Equal(t, int64(2475), inv.TaxAmount.Amount())
	assert.Equal(t, int64(32475), inv.TotalAmount.Amount())

	requireDomainCode(t, inv.ApplyTax(-1, "clerk-1"), shared.CodeValidation)

	t.Run("lowering tax below an applied discount is rejected", func(t *testing.T) {
		inv := newScenarioAInvoice(t)
		require.NoError(t, inv.ApplyDiscount(usd(32400), "clerk-1"))
		requireDomainCode(t, inv.ApplyTax(0, "clerk-1"), shared.CodeValidation)
		assert.Equal(t, valueobject.BasisPoints(800), inv.TaxRate)
	})
}

func TestInvoice_DraftOnlyEdits(t *testing.T) {
	inv := newPendingInvoice(t)

	_, err := inv.AddItem(ItemSpec{Description: "X-ray", Quantity: 1, UnitPrice: usd(100)}, "clerk-1")
	requireDomainCode(t, err, shared.CodeInvalidState)
	requireDomainCode(t, inv.RemoveItem(inv.Items[0].ID, "clerk-1"), shared.CodeInvalidState)
	requireDomainCode(t, inv.ApplyDiscount(usd(100), "clerk-1"), shared.CodeInvalidState)
	requireDomainCode(t, inv.ApplyTax(0, "clerk-1"), shared.CodeInvalidState)

	var de *shared.DomainError
	require.ErrorAs(t, inv.ApplyTax(0, "clerk-1"), &de)
	assert.Equal(t, "PENDING", de.Details["current_status"])
}

func TestInvoice_FinalizeIsNotIdempotent(t *testing.T) {
	inv := newScenarioAInvoice(t)
	require.NoError(t, inv.Finalize("clerk-1"))
	assert.Equal(t, InvoiceStatusPending, inv.Status)

	snapshot := *inv
	err := inv.Finalize("clerk-1")
	requireDomainCode(t, err, shared.CodeInvalidState)
	assert.Equal(t, snapshot.Status, inv.Status)
	assert.Equal(t, snapshot.TotalAmount, inv.TotalAmount)
	assert.Equal(t, snapshot.UpdatedAt, inv.UpdatedAt)
}

func TestInvoice_Send(t *testing.T) {
	t.Run("draft cannot be sent", func(t *testing.T) {
		inv := newScenarioAInvoice(t)
		requireDomainCode(t, inv.Send("clerk-1", testNow), shared.CodeInvalidState)
	})

	t.Run("second send is rejected", func(t *testing.T) {
		inv := newPendingInvoice(t)
		require.NoError(t, inv.Send("clerk-1", testNow))
		require.NotNil(t, inv.SentAt)
		requireDomainCode(t, inv.Send("clerk-1", testNow), shared.CodeInvalidState)
	})
}

func TestInvoice_Cancel(t *testing.T) {
	t.Run("draft and pending can be cancelled once", func(t *testing.T) {
		for _, pending := range []bool{false, true} {
			inv := newScenarioAInvoice(t)
			if pending {
				require.NoError(t, inv.Finalize("clerk-1"))
			}
			require.NoError(t, inv.Cancel("duplicate", "clerk-1", testNow))
			assert.Equal(t, InvoiceStatusCancelled, inv.Status)
			assert.Equal(t, "duplicate", inv.StatusReason)
			requireDomainCode(t, inv.Cancel("again", "clerk-1", testNow), shared.CodeInvalidState)
		}
	})

	t.Run("rejected once a payment was recorded", func(t *testing.T) {
		inv := newPendingInvoice(t)
		inv.PaymentCount = 1
		requireDomainCode(t, inv.Cancel("oops", "clerk-1", testNow), shared.CodeInvalidState)
		assert.Equal(t, InvoiceStatusPending, inv.Status)
	})
}

func TestInvoice_CancelPastDue(t *testing.T) {
	tests := []struct {
		name    string
		swept   bool
		paid    int64
		wantErr bool
	}{
		{"unswept, nothing paid", false, 0, false},
		{"swept, nothing paid", true, 0, false},
		{"swept, partly paid", true, 5000, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := newPendingInvoice(t)
			late := inv.DueDate.AddDate(0, 0, 5)
			if tt.paid > 0 {
				inv.applyReconciliation(usd(tt.paid), 1, "cashier", testNow)
			}
			if tt.swept {
				require.True(t, inv.RefreshOverdue("system", late))
				require.Equal(t, InvoiceStatusOverdue, inv.Status)
			}
			require.Equal(t, InvoiceStatusOverdue, inv.EffectiveStatus(late))

			err := inv.Cancel("billed in error", "clerk-1", late)
			if tt.wantErr {
				requireDomainCode(t, err, shared.CodeInvalidState)
				assert.Equal(t, InvoiceStatusOverdue, inv.Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, InvoiceStatusCancelled, inv.Status)
		})
	}
}

func TestInvoice_VoidAndWriteOff(t *testing.T) {
	inv := newPendingInvoice(t)
	require.NoError(t, inv.Void("entered in error", "admin", testNow))
	assert.Equal(t, InvoiceStatusVoid, inv.Status)
	requireDomainCode(t, inv.Void("again", "admin", testNow), shared.CodeInvalidState)
	requireDomainCode(t, inv.WriteOff("late", "admin", testNow), shared.CodeInvalidState)

	other := newPendingInvoice(t)
	require.NoError(t, other.WriteOff("uncollectable", "admin", testNow))
	assert.Equal(t, InvoiceStatusWriteOff, other.Status)
	assert.True(t, other.Status.IsTerminal())
}

func TestInvoice_Overdue(t *testing.T) {
	inv := newPendingInvoice(t)
	due := inv.DueDate

	assert.Equal(t, InvoiceStatusPending, inv.EffectiveStatus(due.Add(23*time.Hour)), "due date is inclusive")
	assert.Equal(t, InvoiceStatusOverdue, inv.EffectiveStatus(due.AddDate(0, 0, 1)))

	assert.True(t, inv.RefreshOverdue("system", due.AddDate(0, 0, 2)))
	assert.Equal(t, InvoiceStatusOverdue, inv.Status)

	require.NoError(t, inv.UpdateDueDate(due.AddDate(0, 1, 0), "clerk-1", due.AddDate(0, 0, 2)))
	assert.Equal(t, InvoiceStatusPending, inv.Status)
}

func TestInvoiceStatus_TransitionTable(t *testing.T) {
	assert.True(t, InvoiceStatusDraft.CanTransitionTo(InvoiceStatusPending))
	assert.False(t, InvoiceStatusDraft.CanTransitionTo(InvoiceStatusPaid))
	assert.True(t, InvoiceStatusPaid.CanTransitionTo(InvoiceStatusRefunded))
	assert.True(t, InvoiceStatusPartiallyPaid.CanTransitionTo(InvoiceStatusRefunded))
	assert.True(t, InvoiceStatusOverdue.CanTransitionTo(InvoiceStatusCancelled))
	assert.False(t, InvoiceStatusPartiallyPaid.CanTransitionTo(InvoiceStatusCancelled))

	for _, s := range []InvoiceStatus{InvoiceStatusCancelled, InvoiceStatusRefunded, InvoiceStatusVoid, InvoiceStatusWriteOff} {
		assert.True(t, s.IsTerminal(), s)
		assert.False(t, s.AcceptsClaim(), s)
	}
	assert.False(t, InvoiceStatusDraft.AcceptsClaim())
	assert.True(t, InvoiceStatusOverdue.AcceptsPayment())
	assert.False(t, InvoiceStatusPaid.AcceptsPayment())
}
