package billing

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/medledger/billing/internal/domain/shared"
	"github.com/medledger/billing/internal/domain/shared/valueobject"
)

const aggregateTypeClaim = "Claim"

// ClaimStatusChange is one entry of a claim's status history
type ClaimStatusChange struct {
	From  ClaimStatus `json:"from,omitempty"`
	To    ClaimStatus `json:"to"`
	Actor string      `json:"actor,omitempty"`
	Note  string      `json:"note,omitempty"`
	At    time.Time   `json:"at"`
}

// ClaimHistory is stored as JSONB alongside the claim
type ClaimHistory []ClaimStatusChange

// Value implements driver.Valuer interface for GORM to store as JSONB
func (h ClaimHistory) Value() (driver.Value, error) {
	if h == nil {
		return "[]", nil
	}
	b, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner interface for GORM to read from JSONB
func (h *ClaimHistory) Scan(value any) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*h = ClaimHistory{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("failed to scan ClaimHistory: unsupported type")
	}
	if len(data) == 0 {
		*h = ClaimHistory{}
		return nil
	}
	return json.Unmarshal(data, h)
}

// Claim is an insurance reimbursement request against an invoice
type Claim struct {
	shared.BaseAggregateRoot
	ClaimNumber       string
	InvoiceID         uuid.UUID
	PatientID         string
	InsuranceProvider string
	PolicyNumber      string
	GroupNumber       string
	SubscriberName    string
	SubscriberID      string
	BilledAmount      valueobject.Money
	Outcome           Outcome
	Status            ClaimStatus
	ServiceDate       time.Time
	SubmittedAt       time.Time
	ProcessedAt       *time.Time
	PaidAt            *time.Time
	ClosedAt          *time.Time
	AdjudicationNotes string
	EOBReference      string
	AppealReason      string
	History           ClaimHistory
	CreatedBy         string
}

// SubmitClaimParams groups the inputs of SubmitClaim
type SubmitClaimParams struct {
	ClaimNumber       string
	InsuranceProvider string
	PolicyNumber      string
	GroupNumber       string
	SubscriberName    string
	SubscriberID      string
	ServiceDate       time.Time
	Actor             string
	Now               time.Time
}

// SubmitClaim creates a SUBMITTED claim for inv. BilledAmount is fixed to the
// invoice total at this instant. At most one non-terminal claim may exist per
// invoice; existing must hold the invoice's other claims.
func SubmitClaim(inv *Invoice, existing []*Claim, p SubmitClaimParams) (*Claim, error) {
	if !inv.Status.AcceptsClaim() {
		return nil, shared.NewInvalidStateError("invoice", string(inv.Status), "submit claim for")
	}
	for _, c := range existing {
		if c.InvoiceID == inv.ID && !c.Status.IsTerminal() {
			return nil, shared.NewConflictError(
				"invoice "+inv.InvoiceNumber+" already has an open claim "+c.ClaimNumber).
				WithDetail("claim_id", c.ID.String())
		}
	}
	if p.ClaimNumber == "" {
		return nil, shared.NewValidationError("claim number cannot be empty")
	}
	if p.InsuranceProvider == "" {
		return nil, shared.NewValidationError("insurance provider is required")
	}
	if p.PolicyNumber == "" {
		return nil, shared.NewValidationError("policy number is required")
	}
	if !inv.TotalAmount.IsPositive() {
		return nil, shared.NewValidationError("invoice total must be positive to submit a claim")
	}
	now := p.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}
	serviceDate := truncateToDay(p.ServiceDate)
	if serviceDate.IsZero() {
		serviceDate = inv.InvoiceDate
	}

	c := &Claim{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		ClaimNumber:       p.ClaimNumber,
		InvoiceID:         inv.ID,
		PatientID:         inv.PatientID,
		InsuranceProvider: p.InsuranceProvider,
		PolicyNumber:      p.PolicyNumber,
		GroupNumber:       p.GroupNumber,
		SubscriberName:    p.SubscriberName,
		SubscriberID:      p.SubscriberID,
		BilledAmount:      inv.TotalAmount,
		Outcome:           Pending{},
		Status:            ClaimStatusSubmitted,
		ServiceDate:       serviceDate,
		SubmittedAt:       now,
		CreatedBy:         p.Actor,
		History: ClaimHistory{
			{To: ClaimStatusSubmitted, Actor: p.Actor, At: now},
		},
	}
	inv.LinkClaim(c.ClaimNumber, nil)
	c.AddDomainEvent(NewClaimSubmittedEvent(c))
	return c, nil
}

func (c *Claim) transition(next ClaimStatus, attempted, actor, note string, now time.Time) error {
	if !c.Status.CanTransitionTo(next) {
		return shared.NewInvalidStateError("claim", string(c.Status), attempted)
	}
	from := c.Status
	c.Status = next
	c.History = append(c.History, ClaimStatusChange{
		From:  from,
		To:    next,
		Actor: actor,
		Note:  note,
		At:    now.UTC(),
	})
	c.Touch(now.UTC())
	c.AddDomainEvent(NewClaimStatusChangedEvent(c, from, actor, note))
	return nil
}

// Review moves a SUBMITTED claim into review
func (c *Claim) Review(actor string, now time.Time) error {
	if c.Status != ClaimStatusSubmitted {
		return shared.NewInvalidStateError("claim", string(c.Status), "review")
	}
	return c.transition(ClaimStatusInReview, "review", actor, "", now)
}

// ProcessParams is the adjudication input of Process
type ProcessParams struct {
	Action       ClaimAction
	Amounts      AdjudicationAmounts
	DenialCode   string
	DenialReason string
	Notes        string
	EOBReference string
	Actor        string
	Now          time.Time
}

// Process records the insurer's decision. A SUBMITTED or APPEALED claim is
// moved into review first. Inputs are validated before anything changes.
func (c *Claim) Process(p ProcessParams) error {
	if !p.Action.IsValid() {
		return shared.NewValidationErrorf("unknown claim action %q", p.Action)
	}
	switch c.Status {
	case ClaimStatusSubmitted, ClaimStatusAppealed, ClaimStatusInReview:
	default:
		return shared.NewInvalidStateError("claim", string(c.Status), "process")
	}

	var outcome Outcome = Pending{}
	switch {
	case p.Action.isApproval():
		adj, err := NewAdjudicated(c.BilledAmount, p.Amounts)
		if err != nil {
			return err
		}
		outcome = adj
	case p.Action == ClaimActionDeny:
		if p.DenialCode == "" && p.DenialReason == "" {
			return shared.NewValidationError("denial code or denial reason is required")
		}
		outcome = Denied{Code: p.DenialCode, Reason: p.DenialReason}
	}

	now := p.Now
	if now.IsZero() {
		now = time.Now()
	}
	if c.Status != ClaimStatusInReview {
		if err := c.transition(ClaimStatusInReview, "review", p.Actor, "", now); err != nil {
			return err
		}
	}
	if err := c.transition(p.Action.TargetStatus(), "process", p.Actor, p.Notes, now); err != nil {
		return err
	}
	c.Outcome = outcome
	processedAt := now.UTC()
	c.ProcessedAt = &processedAt
	if p.Notes != "" {
		c.AdjudicationNotes = p.Notes
	}
	if p.EOBReference != "" {
		c.EOBReference = p.EOBReference
	}
	return nil
}

// Approve is Process with the APPROVE action
func (c *Claim) Approve(amounts AdjudicationAmounts, notes, actor string, now time.Time) error {
	return c.Process(ProcessParams{
		Action:  ClaimActionApprove,
		Amounts: amounts,
		Notes:   notes,
		Actor:   actor,
		Now:     now,
	})
}

// Deny is Process with the DENY action
func (c *Claim) Deny(code, reason, actor string, now time.Time) error {
	return c.Process(ProcessParams{
		Action:       ClaimActionDeny,
		DenialCode:   code,
		DenialReason: reason,
		Actor:        actor,
		Now:          now,
	})
}

// Appeal contests a denial or partial approval
func (c *Claim) Appeal(reason, actor string, now time.Time) error {
	if c.Status != ClaimStatusDenied && c.Status != ClaimStatusPartiallyApproved {
		return shared.NewInvalidStateError("claim", string(c.Status), "appeal")
	}
	if err := c.transition(ClaimStatusAppealed, "appeal", actor, reason, now); err != nil {
		return err
	}
	c.AppealReason = reason
	return nil
}

// Resubmit sends an appealed or information-requested claim back to the insurer.
// The outcome resets to Pending; the billed amount stays as first submitted.
func (c *Claim) Resubmit(notes, actor string, now time.Time) error {
	if c.Status != ClaimStatusAppealed && c.Status != ClaimStatusInformationRequested {
		return shared.NewInvalidStateError("claim", string(c.Status), "resubmit")
	}
	if err := c.transition(ClaimStatusResubmitted, "resubmit", actor, notes, now); err != nil {
		return err
	}
	if err := c.transition(ClaimStatusSubmitted, "resubmit", actor, "", now); err != nil {
		return err
	}
	c.Outcome = Pending{}
	c.ProcessedAt = nil
	c.SubmittedAt = now.UTC()
	return nil
}

// MarkPaid records the insurer's payment. The adjudicated paid amount is
// credited to the invoice by reconciliation.
func (c *Claim) MarkPaid(eobReference, actor string, now time.Time) error {
	if c.Status != ClaimStatusApproved && c.Status != ClaimStatusPartiallyApproved {
		return shared.NewInvalidStateError("claim", string(c.Status), "mark paid")
	}
	adj, ok := c.Outcome.(Adjudicated)
	if !ok {
		return shared.NewInvalidStateError("claim", string(c.Status), "mark paid").
			WithDetail("reason", "claim has no adjudicated amounts")
	}
	if err := c.transition(ClaimStatusPaid, "mark paid", actor, "", now); err != nil {
		return err
	}
	paidAt := now.UTC()
	c.PaidAt = &paidAt
	if eobReference != "" {
		c.EOBReference = eobReference
	}
	c.AddDomainEvent(NewClaimPaidEvent(c, adj.Paid, actor))
	return nil
}

// Close ends a paid or denied claim
func (c *Claim) Close(actor string, now time.Time) error {
	if err := c.transition(ClaimStatusClosed, "close", actor, "", now); err != nil {
		return err
	}
	closedAt := now.UTC()
	c.ClosedAt = &closedAt
	return nil
}

// InsuranceCredit returns the amount this claim credits to its invoice:
// the adjudicated paid amount once the claim has been paid.
func (c *Claim) InsuranceCredit() valueobject.Money {
	if c.PaidAt == nil {
		return valueobject.ZeroUSD()
	}
	if c.Status != ClaimStatusPaid && c.Status != ClaimStatusClosed {
		return valueobject.ZeroUSD()
	}
	if adj, ok := c.Outcome.(Adjudicated); ok {
		return adj.Paid
	}
	return valueobject.ZeroUSD()
}

// AdjudicatedAmounts returns the adjudicated variant if present
func (c *Claim) AdjudicatedAmounts() (Adjudicated, bool) {
	adj, ok := c.Outcome.(Adjudicated)
	return adj, ok
}
