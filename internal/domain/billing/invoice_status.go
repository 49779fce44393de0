package billing

// InvoiceStatus represents the lifecycle status of an invoice
type InvoiceStatus string

const (
	InvoiceStatusDraft         InvoiceStatus = "DRAFT"          // Editable: items, tax and discount may change
	InvoiceStatusPending       InvoiceStatus = "PENDING"        // Finalized, nothing paid yet
	InvoiceStatusPartiallyPaid InvoiceStatus = "PARTIALLY_PAID" // 0 < paid < total
	InvoiceStatusPaid          InvoiceStatus = "PAID"           // paid >= total
	InvoiceStatusOverdue       InvoiceStatus = "OVERDUE"        // Balance outstanding after the due date
	InvoiceStatusCancelled     InvoiceStatus = "CANCELLED"      // Cancelled before any payment
	InvoiceStatusRefunded      InvoiceStatus = "REFUNDED"       // Was paid, fully refunded
	InvoiceStatusVoid          InvoiceStatus = "VOID"           // Administrative override
	InvoiceStatusWriteOff      InvoiceStatus = "WRITE_OFF"      // Balance forgiven
)

// invoiceTransitions is the complete invoice state machine
var invoiceTransitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceStatusDraft: {
		InvoiceStatusPending, InvoiceStatusCancelled, InvoiceStatusVoid, InvoiceStatusWriteOff,
	},
	InvoiceStatusPending: {
		InvoiceStatusPartiallyPaid, InvoiceStatusPaid, InvoiceStatusOverdue,
		InvoiceStatusCancelled, InvoiceStatusVoid, InvoiceStatusWriteOff,
	},
	InvoiceStatusPartiallyPaid: {
		InvoiceStatusPaid, InvoiceStatusPending, InvoiceStatusOverdue, InvoiceStatusRefunded,
		InvoiceStatusVoid, InvoiceStatusWriteOff,
	},
	InvoiceStatusOverdue: {
		InvoiceStatusPending, InvoiceStatusPartiallyPaid, InvoiceStatusPaid, InvoiceStatusRefunded,
		InvoiceStatusCancelled, InvoiceStatusVoid, InvoiceStatusWriteOff,
	},
	InvoiceStatusPaid: {
		InvoiceStatusPartiallyPaid, InvoiceStatusOverdue, InvoiceStatusRefunded,
		InvoiceStatusVoid, InvoiceStatusWriteOff,
	},
}

// AllInvoiceStatuses lists every status in display order
var AllInvoiceStatuses = []InvoiceStatus{
	InvoiceStatusDraft, InvoiceStatusPending, InvoiceStatusPartiallyPaid, InvoiceStatusPaid,
	InvoiceStatusOverdue, InvoiceStatusCancelled, InvoiceStatusRefunded, InvoiceStatusVoid,
	InvoiceStatusWriteOff,
}

// IsValid checks if the status is a known InvoiceStatus
func (s InvoiceStatus) IsValid() bool {
	for _, v := range AllInvoiceStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// String returns the string representation of InvoiceStatus
func (s InvoiceStatus) String() string {
	return string(s)
}

// IsTerminal returns true if no further transition is possible
func (s InvoiceStatus) IsTerminal() bool {
	_, ok := invoiceTransitions[s]
	return !ok
}

// CanTransitionTo reports whether the state machine allows s -> next
func (s InvoiceStatus) CanTransitionTo(next InvoiceStatus) bool {
	for _, allowed := range invoiceTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AcceptsPayment returns true if payments may be recorded in this status
func (s InvoiceStatus) AcceptsPayment() bool {
	return s == InvoiceStatusPending || s == InvoiceStatusPartiallyPaid || s == InvoiceStatusOverdue
}

// AcceptsClaim returns true if an insurance claim may be submitted in this status
func (s InvoiceStatus) AcceptsClaim() bool {
	return s != InvoiceStatusDraft && !s.IsTerminal()
}

// isOpen is true for the statuses reconciliation derives from amounts
func (s InvoiceStatus) isOpen() bool {
	switch s {
	case InvoiceStatusPending, InvoiceStatusPartiallyPaid, InvoiceStatusOverdue, InvoiceStatusPaid:
		return true
	}
	return false
}
