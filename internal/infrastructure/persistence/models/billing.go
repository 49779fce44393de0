package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/medledger/billing/internal/domain/billing"
	"github.com/medledger/billing/internal/domain/shared/valueobject"
)

// InvoiceModel is the persistence model for the Invoice aggregate root.
// Amounts are BIGINT minor units.
type InvoiceModel struct {
	AggregateModel
	InvoiceNumber        string                  `gorm:"type:varchar(32);not null;uniqueIndex"`
	PatientID            string                  `gorm:"type:varchar(100);not null;index"`
	AppointmentID        string                  `gorm:"type:varchar(100)"`
	TaxRate              valueobject.BasisPoints `gorm:"type:integer;not null;default:0"`
	Subtotal             valueobject.Money       `gorm:"type:bigint;not null"`
	TaxAmount            valueobject.Money       `gorm:"type:bigint;not null"`
	DiscountAmount       valueobject.Money       `gorm:"type:bigint;not null"`
	TotalAmount          valueobject.Money       `gorm:"type:bigint;not null"`
	PaidAmount           valueobject.Money       `gorm:"type:bigint;not null"`
	BalanceDue           valueobject.Money       `gorm:"type:bigint;not null"`
	InvoiceDate          time.Time               `gorm:"type:date;not null;index"`
	DueDate              time.Time               `gorm:"type:date;not null;index"`
	Status               billing.InvoiceStatus   `gorm:"type:varchar(20);not null;default:'DRAFT';index"`
	InsuranceClaimNumber string                  `gorm:"type:varchar(32)"`
	InsuranceAmount      *valueobject.Money      `gorm:"type:bigint"`
	Notes                string                  `gorm:"type:text"`
	CreatedBy            string                  `gorm:"type:varchar(100)"`
	SentAt               *time.Time
	SettledAt            *time.Time
	ClosedAt             *time.Time
	StatusReason         string             `gorm:"type:varchar(500)"`
	PaymentCount         int                `gorm:"not null;default:0"`
	Items                []InvoiceItemModel `gorm:"foreignKey:InvoiceID;references:ID"`
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the persistence model to a domain Invoice
func (m *InvoiceModel) ToDomain() *billing.Invoice {
	inv := &billing.Invoice{
		BaseAggregateRoot:    m.ToAggregateRoot(),
		InvoiceNumber:        m.InvoiceNumber,
		PatientID:            m.PatientID,
		AppointmentID:        m.AppointmentID,
		Items:                make([]billing.InvoiceItem, len(m.Items)),
		TaxRate:              m.TaxRate,
		Subtotal:             m.Subtotal,
		TaxAmount:            m.TaxAmount,
		DiscountAmount:       m.DiscountAmount,
		TotalAmount:          m.TotalAmount,
		PaidAmount:           m.PaidAmount,
		BalanceDue:           m.BalanceDue,
		InvoiceDate:          m.InvoiceDate.UTC(),
		DueDate:              m.DueDate.UTC(),
		Status:               m.Status,
		InsuranceClaimNumber: m.InsuranceClaimNumber,
		InsuranceAmount:      m.InsuranceAmount,
		Notes:                m.Notes,
		CreatedBy:            m.CreatedBy,
		SentAt:               m.SentAt,
		SettledAt:            m.SettledAt,
		ClosedAt:             m.ClosedAt,
		StatusReason:         m.StatusReason,
		PaymentCount:         m.PaymentCount,
	}
	for i := range m.Items {
		inv.Items[i] = m.Items[i].ToDomain()
	}
	return inv
}

// FromDomain populates the persistence model from a domain Invoice
func (m *InvoiceModel) FromDomain(inv *billing.Invoice) {
	m.FromDomainAggregateRoot(inv.BaseAggregateRoot)
	m.InvoiceNumber = inv.InvoiceNumber
	m.PatientID = inv.PatientID
	m.AppointmentID = inv.AppointmentID
	m.TaxRate = inv.TaxRate
	m.Subtotal = inv.Subtotal
	m.TaxAmount = inv.TaxAmount
	m.DiscountAmount = inv.DiscountAmount
	m.TotalAmount = inv.TotalAmount
	m.PaidAmount = inv.PaidAmount
	m.BalanceDue = inv.BalanceDue
	m.InvoiceDate = inv.InvoiceDate
	m.DueDate = inv.DueDate
	m.Status = inv.Status
	m.InsuranceClaimNumber = inv.InsuranceClaimNumber
	m.InsuranceAmount = inv.InsuranceAmount
	m.Notes = inv.Notes
	m.CreatedBy = inv.CreatedBy
	m.SentAt = inv.SentAt
	m.SettledAt = inv.SettledAt
	m.ClosedAt = inv.ClosedAt
	m.StatusReason = inv.StatusReason
	m.PaymentCount = inv.PaymentCount
	m.Items = make([]InvoiceItemModel, len(inv.Items))
	for i := range inv.Items {
		m.Items[i].FromDomain(inv.ID, inv.Items[i])
	}
}

// InvoiceModelFromDomain creates a new persistence model from a domain Invoice
func InvoiceModelFromDomain(inv *billing.Invoice) *InvoiceModel {
	m := &InvoiceModel{}
	m.FromDomain(inv)
	return m
}

// InvoiceItemModel is the persistence model for an invoice line
type InvoiceItemModel struct {
	ID            uuid.UUID         `gorm:"type:uuid;primary_key"`
	InvoiceID     uuid.UUID         `gorm:"type:uuid;not null;index"`
	Description   string            `gorm:"type:varchar(500);not null"`
	ProcedureCode string            `gorm:"type:varchar(20)"`
	Quantity      int64             `gorm:"not null"`
	UnitPrice     valueobject.Money `gorm:"type:bigint;not null"`
	TotalPrice    valueobject.Money `gorm:"type:bigint;not null"`
	SortOrder     int               `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (InvoiceItemModel) TableName() string {
	return "invoice_items"
}

// ToDomain converts the persistence model to a domain InvoiceItem
func (m *InvoiceItemModel) ToDomain() billing.InvoiceItem {
	return billing.InvoiceItem{
		ID:            m.ID,
		Description:   m.Description,
		ProcedureCode: m.ProcedureCode,
		Quantity:      m.Quantity,
		UnitPrice:     m.UnitPrice,
		TotalPrice:    m.TotalPrice,
		SortOrder:     m.SortOrder,
	}
}

// FromDomain populates the persistence model from a domain InvoiceItem
func (m *InvoiceItemModel) FromDomain(invoiceID uuid.UUID, item billing.InvoiceItem) {
	m.ID = item.ID
	m.InvoiceID = invoiceID
	m.Description = item.Description
	m.ProcedureCode = item.ProcedureCode
	m.Quantity = item.Quantity
	m.UnitPrice = item.UnitPrice
	m.TotalPrice = item.TotalPrice
	m.SortOrder = item.SortOrder
}

// ClaimModel is the persistence model for the Claim aggregate root.
// The outcome variant is flattened: outcome_kind selects which amount or
// denial columns are meaningful.
type ClaimModel struct {
	AggregateModel
	ClaimNumber           string              `gorm:"type:varchar(32);not null;uniqueIndex"`
	InvoiceID             uuid.UUID           `gorm:"type:uuid;not null;index"`
	PatientID             string              `gorm:"type:varchar(100);not null;index"`
	InsuranceProvider     string              `gorm:"type:varchar(200);not null"`
	PolicyNumber          string              `gorm:"type:varchar(100);not null"`
	GroupNumber           string              `gorm:"type:varchar(100)"`
	SubscriberName        string              `gorm:"type:varchar(200)"`
	SubscriberID          string              `gorm:"type:varchar(100)"`
	BilledAmount          valueobject.Money   `gorm:"type:bigint;not null"`
	OutcomeKind           billing.OutcomeKind `gorm:"type:varchar(20);not null;default:'PENDING'"`
	AllowedAmount         *valueobject.Money  `gorm:"type:bigint"`
	PaidAmount            *valueobject.Money  `gorm:"type:bigint"`
	PatientResponsibility *valueobject.Money  `gorm:"type:bigint"`
	CopayAmount           *valueobject.Money  `gorm:"type:bigint"`
	DeductibleAmount      *valueobject.Money  `gorm:"type:bigint"`
	CoinsuranceAmount     *valueobject.Money  `gorm:"type:bigint"`
	DenialCode            string              `gorm:"type:varchar(50)"`
	DenialReason          string              `gorm:"type:varchar(500)"`
	Status                billing.ClaimStatus `gorm:"type:varchar(30);not null;default:'SUBMITTED';index"`
	ServiceDate           time.Time           `gorm:"type:date;not null"`
	SubmittedAt           time.Time           `gorm:"not null;index"`
	ProcessedAt           *time.Time
	PaidAt                *time.Time
	ClosedAt              *time.Time
	AdjudicationNotes     string               `gorm:"type:text"`
	EOBReference          string               `gorm:"column:eob_reference;type:varchar(100)"`
	AppealReason          string               `gorm:"type:text"`
	History               billing.ClaimHistory `gorm:"type:jsonb;default:'[]'"`
	CreatedBy             string               `gorm:"type:varchar(100)"`
}

// TableName returns the table name for GORM
func (ClaimModel) TableName() string {
	return "insurance_claims"
}

// ToDomain converts the persistence model to a domain Claim
func (m *ClaimModel) ToDomain() *billing.Claim {
	return &billing.Claim{
		BaseAggregateRoot: m.ToAggregateRoot(),
		ClaimNumber:       m.ClaimNumber,
		InvoiceID:         m.InvoiceID,
		PatientID:         m.PatientID,
		InsuranceProvider: m.InsuranceProvider,
		PolicyNumber:      m.PolicyNumber,
		GroupNumber:       m.GroupNumber,
		SubscriberName:    m.SubscriberName,
		SubscriberID:      m.SubscriberID,
		BilledAmount:      m.BilledAmount,
		Outcome:           m.outcome(),
		Status:            m.Status,
		ServiceDate:       m.ServiceDate.UTC(),
		SubmittedAt:       m.SubmittedAt,
		ProcessedAt:       m.ProcessedAt,
		PaidAt:            m.PaidAt,
		ClosedAt:          m.ClosedAt,
		AdjudicationNotes: m.AdjudicationNotes,
		EOBReference:      m.EOBReference,
		AppealReason:      m.AppealReason,
		History:           m.History,
		CreatedBy:         m.CreatedBy,
	}
}

func (m *ClaimModel) outcome() billing.Outcome {
	switch m.OutcomeKind {
	case billing.OutcomeAdjudicated:
		return billing.Adjudicated{
			Allowed:               orZero(m.AllowedAmount),
			Paid:                  orZero(m.PaidAmount),
			PatientResponsibility: orZero(m.PatientResponsibility),
			Copay:                 orZero(m.CopayAmount),
			Deductible:            orZero(m.DeductibleAmount),
			Coinsurance:           orZero(m.CoinsuranceAmount),
		}
	case billing.OutcomeDenied:
		return billing.Denied{Code: m.DenialCode, Reason: m.DenialReason}
	default:
		return billing.Pending{}
	}
}

// FromDomain populates the persistence model from a domain Claim
func (m *ClaimModel) FromDomain(c *billing.Claim) {
	m.FromDomainAggregateRoot(c.BaseAggregateRoot)
	m.ClaimNumber = c.ClaimNumber
	m.InvoiceID = c.InvoiceID
	m.PatientID = c.PatientID
	m.InsuranceProvider = c.InsuranceProvider
	m.PolicyNumber = c.PolicyNumber
	m.GroupNumber = c.GroupNumber
	m.SubscriberName = c.SubscriberName
	m.SubscriberID = c.SubscriberID
	m.BilledAmount = c.BilledAmount
	m.Status = c.Status
	m.ServiceDate = c.ServiceDate
	m.SubmittedAt = c.SubmittedAt
	m.ProcessedAt = c.ProcessedAt
	m.PaidAt = c.PaidAt
	m.ClosedAt = c.ClosedAt
	m.AdjudicationNotes = c.AdjudicationNotes
	m.EOBReference = c.EOBReference
	m.AppealReason = c.AppealReason
	m.History = c.History
	m.CreatedBy = c.CreatedBy

	m.AllowedAmount, m.PaidAmount, m.PatientResponsibility = nil, nil, nil
	m.CopayAmount, m.DeductibleAmount, m.CoinsuranceAmount = nil, nil, nil
	m.DenialCode, m.DenialReason = "", ""
	m.OutcomeKind = billing.OutcomePending
	switch o := c.Outcome.(type) {
	case billing.Adjudicated:
		m.OutcomeKind = billing.OutcomeAdjudicated
		m.AllowedAmount = ptr(o.Allowed)
		m.PaidAmount = ptr(o.Paid)
		m.PatientResponsibility = ptr(o.PatientResponsibility)
		m.CopayAmount = ptr(o.Copay)
		m.DeductibleAmount = ptr(o.Deductible)
		m.CoinsuranceAmount = ptr(o.Coinsurance)
	case billing.Denied:
		m.OutcomeKind = billing.OutcomeDenied
		m.DenialCode = o.Code
		m.DenialReason = o.Reason
	}
}

// ClaimModelFromDomain creates a new persistence model from a domain Claim
func ClaimModelFromDomain(c *billing.Claim) *ClaimModel {
	m := &ClaimModel{}
	m.FromDomain(c)
	return m
}

// PaymentModel is the persistence model for the Payment aggregate root.
// Only non-sensitive card metadata is stored.
type PaymentModel struct {
	AggregateModel
	ReferenceNumber   string                `gorm:"type:varchar(32);not null;uniqueIndex"`
	InvoiceID         uuid.UUID             `gorm:"type:uuid;not null;index"`
	PatientID         string                `gorm:"type:varchar(100);not null;index"`
	Amount            valueobject.Money     `gorm:"type:bigint;not null"`
	Method            billing.PaymentMethod `gorm:"type:varchar(20);not null;index"`
	Status            billing.PaymentStatus `gorm:"type:varchar(20);not null;default:'PENDING';index"`
	TransactionID     string                `gorm:"type:varchar(100)"`
	AuthorizationCode string                `gorm:"type:varchar(100)"`
	CardBrand         string                `gorm:"type:varchar(30)"`
	CardLast4         string                `gorm:"column:card_last4;type:varchar(4)"`
	CardExpiryMonth   int
	CardExpiryYear    int
	FailureReason     string            `gorm:"type:varchar(500)"`
	RefundAmount      valueobject.Money `gorm:"type:bigint;not null;default:0"`
	RefundReason      string            `gorm:"type:varchar(500)"`
	PaymentDate       time.Time         `gorm:"not null;index"`
	ProcessedAt       *time.Time
	RefundedAt        *time.Time
	Notes             string `gorm:"type:text"`
	CreatedBy         string `gorm:"type:varchar(100)"`
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "payments"
}

// ToDomain converts the persistence model to a domain Payment
func (m *PaymentModel) ToDomain() *billing.Payment {
	p := &billing.Payment{
		BaseAggregateRoot: m.ToAggregateRoot(),
		ReferenceNumber:   m.ReferenceNumber,
		InvoiceID:         m.InvoiceID,
		PatientID:         m.PatientID,
		Amount:            m.Amount,
		Method:            m.Method,
		Status:            m.Status,
		TransactionID:     m.TransactionID,
		AuthorizationCode: m.AuthorizationCode,
		FailureReason:     m.FailureReason,
		RefundAmount:      m.RefundAmount,
		RefundReason:      m.RefundReason,
		PaymentDate:       m.PaymentDate,
		ProcessedAt:       m.ProcessedAt,
		RefundedAt:        m.RefundedAt,
		Notes:             m.Notes,
		CreatedBy:         m.CreatedBy,
	}
	if m.CardLast4 != "" {
		p.Card = &billing.CardMetadata{
			Brand:       m.CardBrand,
			Last4:       m.CardLast4,
			ExpiryMonth: m.CardExpiryMonth,
			ExpiryYear:  m.CardExpiryYear,
		}
	}
	return p
}

// FromDomain populates the persistence model from a domain Payment
func (m *PaymentModel) FromDomain(p *billing.Payment) {
	m.FromDomainAggregateRoot(p.BaseAggregateRoot)
	m.ReferenceNumber = p.ReferenceNumber
	m.InvoiceID = p.InvoiceID
	m.PatientID = p.PatientID
	m.Amount = p.Amount
	m.Method = p.Method
	m.Status = p.Status
	m.TransactionID = p.TransactionID
	m.AuthorizationCode = p.AuthorizationCode
	m.FailureReason = p.FailureReason
	m.RefundAmount = p.RefundAmount
	m.RefundReason = p.RefundReason
	m.PaymentDate = p.PaymentDate
	m.ProcessedAt = p.ProcessedAt
	m.RefundedAt = p.RefundedAt
	m.Notes = p.Notes
	m.CreatedBy = p.CreatedBy
	m.CardBrand, m.CardLast4, m.CardExpiryMonth, m.CardExpiryYear = "", "", 0, 0
	if p.Card != nil {
		m.CardBrand = p.Card.Brand
		m.CardLast4 = p.Card.Last4
		m.CardExpiryMonth = p.Card.ExpiryMonth
		m.CardExpiryYear = p.Card.ExpiryYear
	}
}

// PaymentModelFromDomain creates a new persistence model from a domain Payment
func PaymentModelFromDomain(p *billing.Payment) *PaymentModel {
	m := &PaymentModel{}
	m.FromDomain(p)
	return m
}

func ptr(m valueobject.Money) *valueobject.Money {
	return &m
}

func orZero(m *valueobject.Money) valueobject.Money {
	if m == nil {
		return valueobject.ZeroUSD()
	}
	return *m
}
