package billing

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/medledger/billing/internal/domain/billing"
	"github.com/medledger/billing/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func submitRequest(inv *InvoiceResponse) SubmitClaimRequest {
	return SubmitClaimRequest{
		InvoiceID:         inv.ID,
		InsuranceProvider: "Acme Health",
		PolicyNumber:      "POL-123",
		SubscriberName:    "Jane Doe",
	}
}

// scenarioDApproval allows 300.00 of the 324.00 billed and pays 250.00
func scenarioDApproval() ProcessClaimRequest {
	return ProcessClaimRequest{
		Action:                string(billing.ClaimActionApprove),
		AllowedAmount:         decPtr("300.00"),
		PaidAmount:            decPtr("250.00"),
		PatientResponsibility: decPtr("50.00"),
		Notes:                 "approved per contract",
	}
}

func TestClaimService_ScenarioD(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.createPending(t)

	submitted, err := f.claims.Submit(ctx, submitRequest(inv), "biller")
	require.NoError(t, err)
	assert.Equal(t, "CLM-20260310-000001", submitted.Claim.ClaimNumber)
	assert.Equal(t, string(billing.ClaimStatusSubmitted), submitted.Claim.Status)
	assert.Equal(t, int64(32400), submitted.Claim.BilledAmount.Amount())
	assert.Equal(t, submitted.Claim.ClaimNumber, submitted.Invoice.InsuranceClaimNumber)

	approved, err := f.claims.Process(ctx, submitted.Claim.ID, scenarioDApproval(), "adjuster")
	require.NoError(t, err)
	assert.Equal(t, string(billing.ClaimStatusApproved), approved.Claim.Status)
	assert.Equal(t, string(billing.OutcomeAdjudicated), approved.Claim.Outcome.Kind)
	require.NotNil(t, approved.Invoice.InsuranceAmount)
	assert.Equal(t, int64(25000), approved.Invoice.InsuranceAmount.Amount())
	assert.True(t, approved.Invoice.PaidAmount.IsZero(), "approval alone credits nothing")
	assert.Equal(t, string(billing.InvoiceStatusPending), approved.Invoice.Status)

	paid, err := f.claims.MarkPaid(ctx, submitted.Claim.ID, "EOB-77", "adjuster")
	require.NoError(t, err)
	assert.Equal(t, string(billing.ClaimStatusPaid), paid.Claim.Status)
	assert.Equal(t, "EOB-77", paid.Claim.EOBReference)
	assert.Equal(t, int64(25000), paid.Invoice.PaidAmount.Amount())
	assert.Equal(t, int64(7400), paid.Invoice.BalanceDue.Amount())
	assert.Equal(t, string(billing.InvoiceStatusPartiallyPaid), paid.Invoice.Status)

	settled, err := f.payments.Record(ctx, cash(inv, "74.00"), "", "cashier")
	require.NoError(t, err)
	assert.Equal(t, string(billing.InvoiceStatusPaid), settled.Invoice.Status)

	closed, err := f.claims.Close(ctx, submitted.Claim.ID, "adjuster")
	require.NoError(t, err)
	assert.Equal(t, string(billing.ClaimStatusClosed), closed.Claim.Status)
	assert.Equal(t, string(billing.InvoiceStatusPaid), closed.Invoice.Status, "closing keeps the insurance credit")

	history, err := f.claims.History(ctx, submitted.Claim.ID)
	require.NoError(t, err)
	var path []string
	for _, h := range history {
		path = append(path, h.To)
	}
	assert.Equal(t, []string{"SUBMITTED", "IN_REVIEW", "APPROVED", "PAID", "CLOSED"}, path)
	assert.Len(t, f.publisher.GetEventsByType(billing.EventTypeClaimPaid), 1)
}

func TestClaimService_Submit_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("draft invoice", func(t *testing.T) {
		f := newFixture(t)
		draft, err := f.invoices.Create(ctx, scenarioARequest(), "clerk-1")
		require.NoError(t, err)
		_, err = f.claims.Submit(ctx, submitRequest(draft), "biller")
		requireCode(t, err, shared.CodeInvalidState)
	})

	t.Run("second open claim", func(t *testing.T) {
		f := newFixture(t)
		inv := f.createPending(t)
		_, err := f.claims.Submit(ctx, submitRequest(inv), "biller")
		require.NoError(t, err)
		_, err = f.claims.Submit(ctx, submitRequest(inv), "biller")
		requireCode(t, err, shared.CodeConflict)
		assert.Len(t, f.store.claims, 1)
	})

	t.Run("missing policy", func(t *testing.T) {
		f := newFixture(t)
		inv := f.createPending(t)
		req := submitRequest(inv)
		req.PolicyNumber = ""
		_, err := f.claims.Submit(ctx, req, "biller")
		requireCode(t, err, shared.CodeValidation)
	})

	t.Run("unknown invoice", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.claims.Submit(ctx, SubmitClaimRequest{
			InvoiceID: uuid.New(), InsuranceProvider: "Acme", PolicyNumber: "P",
		}, "biller")
		requireCode(t, err, shared.CodeNotFound)
	})
}

func TestClaimService_Process_RejectsInconsistentAmounts(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ProcessClaimRequest)
	}{
		{"paid above allowed", func(r *ProcessClaimRequest) { r.PaidAmount = decPtr("300.01") }},
		{"allowed above billed", func(r *ProcessClaimRequest) { r.AllowedAmount = decPtr("324.01") }},
		{"paid plus responsibility above billed", func(r *ProcessClaimRequest) { r.PatientResponsibility = decPtr("74.01") }},
		{"negative copay", func(r *ProcessClaimRequest) { r.CopayAmount = decPtr("-1") }},
		{"missing paid", func(r *ProcessClaimRequest) { r.PaidAmount = nil }},
		{"unknown action", func(r *ProcessClaimRequest) { r.Action = "ESCALATE" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			inv := f.createPending(t)
			submitted, err := f.claims.Submit(ctx, submitRequest(inv), "biller")
			require.NoError(t, err)

			req := scenarioDApproval()
			tt.mutate(&req)
			_, err = f.claims.Process(ctx, submitted.Claim.ID, req, "adjuster")
			requireCode(t, err, shared.CodeValidation)

			c, err := f.claims.GetByID(ctx, submitted.Claim.ID)
			require.NoError(t, err)
			assert.Equal(t, string(billing.ClaimStatusSubmitted), c.Status, "a rejected adjudication changes nothing")
			assert.Equal(t, string(billing.OutcomePending), c.Outcome.Kind)
		})
	}
}

func TestClaimService_DenyAppealResubmit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.createPending(t)
	submitted, err := f.claims.Submit(ctx, submitRequest(inv), "biller")
	require.NoError(t, err)
	id := submitted.Claim.ID

	denied, err := f.claims.Deny(ctx, id, "CO-50", "not medically necessary", "adjuster")
	require.NoError(t, err)
	assert.Equal(t, string(billing.ClaimStatusDenied), denied.Claim.Status)
	assert.Equal(t, "CO-50", denied.Claim.Outcome.DenialCode)

	_, err = f.claims.MarkPaid(ctx, id, "", "adjuster")
	requireCode(t, err, shared.CodeInvalidState)

	appealed, err := f.claims.Appeal(ctx, id, "records attached", "biller")
	require.NoError(t, err)
	assert.Equal(t, string(billing.ClaimStatusAppealed), appealed.Claim.Status)
	assert.Equal(t, "records attached", appealed.Claim.AppealReason)

	resubmitted, err := f.claims.Resubmit(ctx, id, "", "biller")
	require.NoError(t, err)
	assert.Equal(t, string(billing.ClaimStatusSubmitted), resubmitted.Claim.Status)
	assert.Equal(t, string(billing.OutcomePending), resubmitted.Claim.Outcome.Kind)
	assert.Equal(t, int64(32400), resubmitted.Claim.BilledAmount.Amount())

	approved, err := f.claims.Approve(ctx, id, scenarioDApproval(), "adjuster")
	require.NoError(t, err)
	assert.Equal(t, string(billing.ClaimStatusApproved), approved.Claim.Status)
}

func TestClaimService_RequestInfo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.createPending(t)
	submitted, err := f.claims.Submit(ctx, submitRequest(inv), "biller")
	require.NoError(t, err)

	reviewed, err := f.claims.Review(ctx, submitted.Claim.ID, "adjuster")
	require.NoError(t, err)
	assert.Equal(t, string(billing.ClaimStatusInReview), reviewed.Claim.Status)

	info, err := f.claims.Process(ctx, submitted.Claim.ID, ProcessClaimRequest{
		Action: string(billing.ClaimActionRequestInfo), Notes: "need operative report",
	}, "adjuster")
	require.NoError(t, err)
	assert.Equal(t, string(billing.ClaimStatusInformationRequested), info.Claim.Status)
}

func TestClaimService_ListAndNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.createPending(t)
	_, err := f.claims.Submit(ctx, submitRequest(inv), "biller")
	require.NoError(t, err)

	claims, total, err := f.claims.List(ctx, ClaimListFilter{Status: "SUBMITTED"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, claims, 1)

	byInvoice, err := f.invoices.ListClaims(ctx, inv.ID)
	require.NoError(t, err)
	assert.Len(t, byInvoice, 1)

	_, err = f.claims.Review(ctx, uuid.New(), "adjuster")
	requireCode(t, err, shared.CodeNotFound)
	_, _, err = f.claims.List(ctx, ClaimListFilter{Status: "LOST"})
	requireCode(t, err, shared.CodeValidation)
}
