package valueobject

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// BasisPoints is a percentage in hundredths of a percent: 800 = 8%.
type BasisPoints int64

const basisPointsPerUnit = 10000

// MaxBasisPoints is 100%
const MaxBasisPoints BasisPoints = basisPointsPerUnit

// ErrRatePrecision is returned for percentages finer than 0.01%
var ErrRatePrecision = errors.New("rate supports at most two decimal places")

// ParsePercent parses a percentage string such as "8" or "8.25" into basis points.
func ParsePercent(s string) (BasisPoints, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid percentage %q: %w", s, err)
	}
	return PercentFromDecimal(d)
}

// PercentFromDecimal converts a percentage decimal into basis points
func PercentFromDecimal(d decimal.Decimal) (BasisPoints, error) {
	bp := d.Shift(2)
	if !bp.Equal(bp.Truncate(0)) {
		return 0, ErrRatePrecision
	}
	if !bp.BigInt().IsInt64() {
		return 0, ErrAmountOverflow
	}
	return BasisPoints(bp.IntPart()), nil
}

// IsValid reports whether the rate is within 0%..100%
func (b BasisPoints) IsValid() bool {
	return b >= 0 && b <= MaxBasisPoints
}

// Percent returns the rate as a percentage decimal, e.g. 8.25
func (b BasisPoints) Percent() decimal.Decimal {
	return decimal.New(int64(b), -2)
}

// String renders the rate as a percentage, e.g. "8.25%"
func (b BasisPoints) String() string {
	return b.Percent().String() + "%"
}
