package billing

// PaymentStatus represents the lifecycle status of a payment
type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "PENDING"
	PaymentStatusAuthorized        PaymentStatus = "AUTHORIZED" // Pre-capture hold
	PaymentStatusProcessing        PaymentStatus = "PROCESSING"
	PaymentStatusCompleted         PaymentStatus = "COMPLETED"
	PaymentStatusFailed            PaymentStatus = "FAILED"
	PaymentStatusDeclined          PaymentStatus = "DECLINED"
	PaymentStatusRefunded          PaymentStatus = "REFUNDED"
	PaymentStatusPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
	PaymentStatusCancelled         PaymentStatus = "CANCELLED"
	PaymentStatusVoided            PaymentStatus = "VOIDED"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending: {
		PaymentStatusProcessing, PaymentStatusAuthorized, PaymentStatusCancelled, PaymentStatusVoided,
	},
	PaymentStatusAuthorized: {
		PaymentStatusProcessing, PaymentStatusCancelled, PaymentStatusVoided,
	},
	PaymentStatusProcessing: {
		PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusDeclined,
		PaymentStatusCancelled, PaymentStatusVoided,
	},
	PaymentStatusCompleted: {
		PaymentStatusRefunded, PaymentStatusPartiallyRefunded,
	},
	PaymentStatusPartiallyRefunded: {
		PaymentStatusPartiallyRefunded, PaymentStatusRefunded,
	},
}

// IsValid checks if the status is a known PaymentStatus
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusAuthorized, PaymentStatusProcessing,
		PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusDeclined,
		PaymentStatusRefunded, PaymentStatusPartiallyRefunded,
		PaymentStatusCancelled, PaymentStatusVoided:
		return true
	}
	return false
}

// String returns the string representation of PaymentStatus
func (s PaymentStatus) String() string {
	return string(s)
}

// IsTerminal returns true if no further transition is possible
func (s PaymentStatus) IsTerminal() bool {
	_, ok := paymentTransitions[s]
	return !ok
}

// CanTransitionTo reports whether the payment state machine allows s -> next
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsCaptured is true once money has moved: completed or (partially) refunded
func (s PaymentStatus) IsCaptured() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusPartiallyRefunded || s == PaymentStatusRefunded
}

// CanRefund returns true if a refund may be issued in this status
func (s PaymentStatus) CanRefund() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusPartiallyRefunded
}

// PaymentMethod is how the patient paid
type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "CASH"
	PaymentMethodCheck        PaymentMethod = "CHECK"
	PaymentMethodCreditCard   PaymentMethod = "CREDIT_CARD"
	PaymentMethodDebitCard    PaymentMethod = "DEBIT_CARD"
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentMethodInsurance    PaymentMethod = "INSURANCE"
	PaymentMethodOther        PaymentMethod = "OTHER"
)

// IsValid checks if the method is known
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCheck, PaymentMethodCreditCard, PaymentMethodDebitCard,
		PaymentMethodBankTransfer, PaymentMethodInsurance, PaymentMethodOther:
		return true
	}
	return false
}

// IsCard is true for card methods, which may carry card metadata
func (m PaymentMethod) IsCard() bool {
	return m == PaymentMethodCreditCard || m == PaymentMethodDebitCard
}
