package billing

// ClaimStatus represents the adjudication lifecycle of an insurance claim
type ClaimStatus string

const (
	ClaimStatusSubmitted            ClaimStatus = "SUBMITTED"
	ClaimStatusInReview             ClaimStatus = "IN_REVIEW"
	ClaimStatusApproved             ClaimStatus = "APPROVED"
	ClaimStatusPartiallyApproved    ClaimStatus = "PARTIALLY_APPROVED"
	ClaimStatusDenied               ClaimStatus = "DENIED"
	ClaimStatusInformationRequested ClaimStatus = "INFORMATION_REQUESTED"
	ClaimStatusAppealed             ClaimStatus = "APPEALED"
	ClaimStatusResubmitted          ClaimStatus = "RESUBMITTED"
	ClaimStatusPaid                 ClaimStatus = "PAID"
	ClaimStatusClosed               ClaimStatus = "CLOSED" // Terminal
)

var claimTransitions = map[ClaimStatus][]ClaimStatus{
	ClaimStatusSubmitted: {ClaimStatusInReview},
	ClaimStatusInReview: {
		ClaimStatusApproved, ClaimStatusPartiallyApproved,
		ClaimStatusDenied, ClaimStatusInformationRequested,
	},
	ClaimStatusApproved:             {ClaimStatusPaid},
	ClaimStatusPartiallyApproved:    {ClaimStatusPaid, ClaimStatusAppealed},
	ClaimStatusDenied:               {ClaimStatusAppealed, ClaimStatusClosed},
	ClaimStatusAppealed:             {ClaimStatusInReview, ClaimStatusResubmitted},
	ClaimStatusInformationRequested: {ClaimStatusResubmitted},
	ClaimStatusResubmitted:          {ClaimStatusSubmitted},
	ClaimStatusPaid:                 {ClaimStatusClosed},
}

// AllClaimStatuses lists every claim status
var AllClaimStatuses = []ClaimStatus{
	ClaimStatusSubmitted, ClaimStatusInReview, ClaimStatusApproved, ClaimStatusPartiallyApproved,
	ClaimStatusDenied, ClaimStatusInformationRequested, ClaimStatusAppealed,
	ClaimStatusResubmitted, ClaimStatusPaid, ClaimStatusClosed,
}

// NonTerminalClaimStatuses are the statuses that block a second claim on the same invoice
var NonTerminalClaimStatuses = func() []ClaimStatus {
	out := make([]ClaimStatus, 0, len(AllClaimStatuses))
	for _, s := range AllClaimStatuses {
		if !s.IsTerminal() {
			out = append(out, s)
		}
	}
	return out
}()

// IsValid checks if the status is a known ClaimStatus
func (s ClaimStatus) IsValid() bool {
	for _, v := range AllClaimStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// String returns the string representation of ClaimStatus
func (s ClaimStatus) String() string {
	return string(s)
}

// IsTerminal returns true for CLOSED
func (s ClaimStatus) IsTerminal() bool {
	_, ok := claimTransitions[s]
	return !ok
}

// CanTransitionTo reports whether the claim state machine allows s -> next
func (s ClaimStatus) CanTransitionTo(next ClaimStatus) bool {
	for _, allowed := range claimTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ClaimAction is the adjudication decision passed to Process
type ClaimAction string

const (
	ClaimActionApprove          ClaimAction = "APPROVE"
	ClaimActionPartiallyApprove ClaimAction = "PARTIALLY_APPROVE"
	ClaimActionDeny             ClaimAction = "DENY"
	ClaimActionRequestInfo      ClaimAction = "REQUEST_INFO"
)

// IsValid checks if the action is known
func (a ClaimAction) IsValid() bool {
	switch a {
	case ClaimActionApprove, ClaimActionPartiallyApprove, ClaimActionDeny, ClaimActionRequestInfo:
		return true
	}
	return false
}

// TargetStatus returns the status the action leads to
func (a ClaimAction) TargetStatus() ClaimStatus {
	switch a {
	case ClaimActionApprove:
		return ClaimStatusApproved
	case ClaimActionPartiallyApprove:
		return ClaimStatusPartiallyApproved
	case ClaimActionDeny:
		return ClaimStatusDenied
	default:
		return ClaimStatusInformationRequested
	}
}

// isApproval is true for the actions that carry adjudicated amounts
func (a ClaimAction) isApproval() bool {
	return a == ClaimActionApprove || a == ClaimActionPartiallyApprove
}
