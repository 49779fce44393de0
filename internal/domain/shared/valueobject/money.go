package valueobject

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"

	"github.com/shopspring/decimal"
)

// Currency represents a currency code (ISO 4217)
type Currency string

// USD is the only ledger currency
const USD Currency = "USD"

// DefaultCurrency is the default currency for the system
const DefaultCurrency = USD

// minorUnitExponent is the number of decimal places of the minor unit
const minorUnitExponent = 2

// ErrCurrencyMismatch is returned when combining amounts of different currencies
var ErrCurrencyMismatch = errors.New("currency mismatch")

// ErrAmountOverflow is returned when an amount does not fit into int64 minor units
var ErrAmountOverflow = errors.New("amount out of range")

// Money is an immutable amount in integer minor units (cents).
// All arithmetic stays in integer space; percentages round half up.
type Money struct {
	amount   int64
	currency Currency
}

// NewMoney creates Money from minor units
func NewMoney(minor int64, currency Currency) (Money, error) {
	if currency == "" {
		return Money{}, errors.New("currency cannot be empty")
	}
	return Money{amount: minor, currency: currency}, nil
}

// USDCents creates USD Money from cents
func USDCents(cents int64) Money {
	return Money{amount: cents, currency: USD}
}

// ParseMoney parses a decimal string such as "150.00" into Money.
// Sub-cent digits are rounded half up.
func ParseMoney(s string, currency Currency) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return FromDecimal(d, currency)
}

// FromDecimal converts a major-unit decimal into Money, rounding half up
func FromDecimal(d decimal.Decimal, currency Currency) (Money, error) {
	minor := d.Shift(minorUnitExponent).Round(0)
	if !minor.BigInt().IsInt64() {
		return Money{}, ErrAmountOverflow
	}
	return NewMoney(minor.IntPart(), currency)
}

// Zero returns a zero-value Money in the specified currency
func Zero(currency Currency) Money {
	return Money{currency: currency}
}

// ZeroUSD returns zero dollars
func ZeroUSD() Money {
	return Zero(USD)
}

// Amount returns the amount in minor units
func (m Money) Amount() int64 {
	return m.amount
}

// Currency returns the currency code, DefaultCurrency for the zero value
func (m Money) Currency() Currency {
	if m.currency == "" {
		return DefaultCurrency
	}
	return m.currency
}

// Decimal returns the amount in major units
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.amount, -minorUnitExponent)
}

// IsZero returns true if the amount is zero
func (m Money) IsZero() bool {
	return m.amount == 0
}

// IsPositive returns true if the amount is positive
func (m Money) IsPositive() bool {
	return m.amount > 0
}

// IsNegative returns true if the amount is negative
func (m Money) IsNegative() bool {
	return m.amount < 0
}

func (m Money) sameCurrency(other Money) error {
	if m.Currency() != other.Currency() {
		return fmt.Errorf("%w: %s and %s", ErrCurrencyMismatch, m.Currency(), other.Currency())
	}
	return nil
}

// Add returns the sum of both amounts
func (m Money) Add(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	sum := m.amount + other.amount
	if (other.amount > 0 && sum < m.amount) || (other.amount < 0 && sum > m.amount) {
		return Money{}, ErrAmountOverflow
	}
	return Money{amount: sum, currency: m.Currency()}, nil
}

// MustAdd adds two Money values, panics on currency mismatch or overflow
func (m Money) MustAdd(other Money) Money {
	result, err := m.Add(other)
	if err != nil {
		panic(err)
	}
	return result
}

// Subtract returns the difference
func (m Money) Subtract(other Money) (Money, error) {
	if other.amount == math.MinInt64 {
		return Money{}, ErrAmountOverflow
	}
	return m.Add(Money{amount: -other.amount, currency: other.currency})
}

// MustSubtract subtracts two Money values, panics on currency mismatch or overflow
func (m Money) MustSubtract(other Money) Money {
	result, err := m.Subtract(other)
	if err != nil {
		panic(err)
	}
	return result
}

// MultiplyByInt returns the amount multiplied by n
func (m Money) MultiplyByInt(n int64) (Money, error) {
	p := new(big.Int).Mul(big.NewInt(m.amount), big.NewInt(n))
	if !p.IsInt64() {
		return Money{}, ErrAmountOverflow
	}
	return Money{amount: p.Int64(), currency: m.Currency()}, nil
}

// ApplyRate returns m × rate rounded half up (away from zero) to the minor unit
func (m Money) ApplyRate(rate BasisPoints) (Money, error) {
	num := new(big.Int).Mul(big.NewInt(m.amount), big.NewInt(int64(rate)))
	den := big.NewInt(basisPointsPerUnit)
	q, r := new(big.Int).QuoRem(num, den, new(big.Int))
	// |2r| >= den rounds away from zero
	twice := new(big.Int).Abs(r)
	twice.Lsh(twice, 1)
	if twice.Cmp(den) >= 0 {
		if num.Sign() < 0 {
			q.Sub(q, big.NewInt(1))
		} else {
			q.Add(q, big.NewInt(1))
		}
	}
	if !q.IsInt64() {
		return Money{}, ErrAmountOverflow
	}
	return Money{amount: q.Int64(), currency: m.Currency()}, nil
}

// Negate returns the amount with the sign reversed
func (m Money) Negate() Money {
	return Money{amount: -m.amount, currency: m.Currency()}
}

// Equals returns true if both Money values are equal (same amount and currency)
func (m Money) Equals(other Money) bool {
	return m.Currency() == other.Currency() && m.amount == other.amount
}

// Cmp compares two amounts of the same currency, returning -1, 0 or +1.
// Comparing different currencies is a programming error and panics.
func (m Money) Cmp(other Money) int {
	if err := m.sameCurrency(other); err != nil {
		panic(err)
	}
	switch {
	case m.amount < other.amount:
		return -1
	case m.amount > other.amount:
		return 1
	default:
		return 0
	}
}

// LessThan returns true if m < other
func (m Money) LessThan(other Money) bool { return m.Cmp(other) < 0 }

// LessThanOrEqual returns true if m <= other
func (m Money) LessThanOrEqual(other Money) bool { return m.Cmp(other) <= 0 }

// GreaterThan returns true if m > other
func (m Money) GreaterThan(other Money) bool { return m.Cmp(other) > 0 }

// GreaterThanOrEqual returns true if m >= other
func (m Money) GreaterThanOrEqual(other Money) bool { return m.Cmp(other) >= 0 }

// Max returns the larger of the two amounts
func Max(a, b Money) Money {
	if a.GreaterThanOrEqual(b) {
		return a
	}
	return b
}

// Min returns the smaller of the two amounts
func Min(a, b Money) Money {
	if a.LessThanOrEqual(b) {
		return a
	}
	return b
}

// Sum adds all amounts, starting from zero in the given currency
func Sum(currency Currency, amounts ...Money) (Money, error) {
	total := Zero(currency)
	for _, a := range amounts {
		var err error
		if total, err = total.Add(a); err != nil {
			return Money{}, err
		}
	}
	return total, nil
}

// Display returns the amount in major units with fixed decimals, e.g. "324.00"
func (m Money) Display() string {
	return m.Decimal().StringFixed(minorUnitExponent)
}

// String returns a string representation of the Money
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Display(), m.Currency())
}

type moneyJSON struct {
	Amount   int64    `json:"amount"`
	Currency Currency `json:"currency"`
	Display  string   `json:"display,omitempty"`
}

// MarshalJSON renders minor units, currency and a display string
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{
		Amount:   m.amount,
		Currency: m.Currency(),
		Display:  m.Display(),
	})
}

// UnmarshalJSON reads the object form produced by MarshalJSON; display is ignored
func (m *Money) UnmarshalJSON(data []byte) error {
	var v moneyJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.Currency == "" {
		v.Currency = DefaultCurrency
	}
	m.amount = v.Amount
	m.currency = v.Currency
	return nil
}

// Value implements driver.Valuer; amounts are stored as BIGINT minor units
func (m Money) Value() (driver.Value, error) {
	return m.amount, nil
}

// Scan implements sql.Scanner. Currency defaults to DefaultCurrency.
func (m *Money) Scan(value any) error {
	m.currency = DefaultCurrency
	switch v := value.(type) {
	case nil:
		m.amount = 0
	case int64:
		m.amount = v
	case int32:
		m.amount = int64(v)
	case int:
		m.amount = int64(v)
	case []byte:
		return m.scanString(string(v))
	case string:
		return m.scanString(v)
	default:
		return fmt.Errorf("cannot scan %T into Money", value)
	}
	return nil
}

func (m *Money) scanString(s string) error {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid minor unit value %q: %w", s, err)
	}
	m.amount = n
	return nil
}
