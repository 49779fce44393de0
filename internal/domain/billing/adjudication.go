package billing

import (
	"github.com/medledger/billing/internal/domain/shared"
	"github.com/medledger/billing/internal/domain/shared/valueobject"
)

// OutcomeKind discriminates the adjudication outcome variant
type OutcomeKind string

const (
	OutcomePending     OutcomeKind = "PENDING"
	OutcomeAdjudicated OutcomeKind = "ADJUDICATED"
	OutcomeDenied      OutcomeKind = "DENIED"
)

// Outcome is the insurer's determination for a claim. Exactly one of
// Pending, Adjudicated or Denied; the fields of one variant cannot be set on another.
type Outcome interface {
	Kind() OutcomeKind
	isOutcome()
}

// Pending means the insurer has not decided yet
type Pending struct{}

// Kind implements Outcome
func (Pending) Kind() OutcomeKind { return OutcomePending }
func (Pending) isOutcome()        {}

// Adjudicated carries the approved amounts.
// Paid <= Allowed <= billed and Paid + PatientResponsibility <= billed.
type Adjudicated struct {
	Allowed               valueobject.Money
	Paid                  valueobject.Money
	PatientResponsibility valueobject.Money
	Copay                 valueobject.Money
	Deductible            valueobject.Money
	Coinsurance           valueobject.Money
}

// Kind implements Outcome
func (Adjudicated) Kind() OutcomeKind { return OutcomeAdjudicated }
func (Adjudicated) isOutcome()        {}

// Denied carries the insurer's denial code and reason
type Denied struct {
	Code   string
	Reason string
}

// Kind implements Outcome
func (Denied) Kind() OutcomeKind { return OutcomeDenied }
func (Denied) isOutcome()        {}

// AdjudicationAmounts is the optional amount input of Process
type AdjudicationAmounts struct {
	Allowed               *valueobject.Money
	Paid                  *valueobject.Money
	PatientResponsibility *valueobject.Money
	Copay                 *valueobject.Money
	Deductible            *valueobject.Money
	Coinsurance           *valueobject.Money
}

// NewAdjudicated validates amounts against the billed amount.
// Violations are rejected, never clamped.
func NewAdjudicated(billed valueobject.Money, in AdjudicationAmounts) (Adjudicated, error) {
	if in.Allowed == nil || in.Paid == nil {
		return Adjudicated{}, shared.NewValidationError("allowed amount and paid amount are required for approval")
	}
	orZero := func(m *valueobject.Money) valueobject.Money {
		if m == nil {
			return valueobject.ZeroUSD()
		}
		return *m
	}
	adj := Adjudicated{
		Allowed:               *in.Allowed,
		Paid:                  *in.Paid,
		PatientResponsibility: orZero(in.PatientResponsibility),
		Copay:                 orZero(in.Copay),
		Deductible:            orZero(in.Deductible),
		Coinsurance:           orZero(in.Coinsurance),
	}
	for _, f := range []struct {
		name string
		m    valueobject.Money
	}{
		{"allowed amount", adj.Allowed},
		{"paid amount", adj.Paid},
		{"patient responsibility", adj.PatientResponsibility},
		{"copay", adj.Copay},
		{"deductible", adj.Deductible},
		{"coinsurance", adj.Coinsurance},
	} {
		if f.m.IsNegative() {
			return Adjudicated{}, shared.NewValidationErrorf("%s cannot be negative", f.name)
		}
	}
	if adj.Paid.GreaterThan(adj.Allowed) {
		return Adjudicated{}, shared.NewValidationErrorf(
			"paid amount %s exceeds allowed amount %s", adj.Paid.Display(), adj.Allowed.Display())
	}
	if adj.Allowed.GreaterThan(billed) {
		return Adjudicated{}, shared.NewValidationErrorf(
			"allowed amount %s exceeds billed amount %s", adj.Allowed.Display(), billed.Display())
	}
	owed, err := adj.Paid.Add(adj.PatientResponsibility)
	if err != nil || owed.GreaterThan(billed) {
		return Adjudicated{}, shared.NewValidationErrorf(
			"paid amount plus patient responsibility exceeds billed amount %s", billed.Display())
	}
	return adj, nil
}
