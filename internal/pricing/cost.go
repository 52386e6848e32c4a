package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// CostScale is the number of fractional digits a unit cost carries. Token
// prices are fractions of a cent, so this must stay >= 10.
const CostScale = 10

// maxCost is the exclusive upper bound of numeric(20, 10).
var maxCost = decimal.New(1, 20-CostScale)

// Rounding and comparison rescale to the operand's exponent at a cost of
// O(10^|exp|), so exponents outside this window are rejected first.
const (
	minExponent = -CostScale - 20
	maxExponent = 20
)

// ParseCost parses a decimal unit cost, rejecting negatives and values not
// exactly representable at CostScale.
func ParseCost(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, newError(ErrInvalidArgument, "costPerUnitInUsdCents is required")
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, newError(ErrInvalidArgument, "costPerUnitInUsdCents %q is not a decimal number", raw)
	}
	if err := ValidateCost(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// ValidateCost applies the ParseCost rules to a cost already held as a decimal.
func ValidateCost(d decimal.Decimal) error {
	if exp := d.Exponent(); exp < minExponent || exp > maxExponent {
		return newError(ErrInvalidArgument, "costPerUnitInUsdCents is out of range")
	}
	switch {
	case d.IsNegative():
		return newError(ErrInvalidArgument, "costPerUnitInUsdCents must not be negative")
	case !d.Round(CostScale).Equal(d):
		return newError(ErrInvalidArgument, "costPerUnitInUsdCents has more than %d fractional digits", CostScale)
	case d.GreaterThanOrEqual(maxCost):
		return newError(ErrInvalidArgument, "costPerUnitInUsdCents must be below %s", maxCost.String())
	}
	return nil
}

// FormatCost renders d with exactly CostScale fractional digits.
func FormatCost(d decimal.Decimal) string {
	return d.StringFixed(CostScale)
}
