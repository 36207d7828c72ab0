package observer

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// FromBaseUnits renders an integer amount of base units (drops, wei,
// satoshis, lamports) as a fixed-point decimal string with exp places.
func FromBaseUnits(units *big.Int, exp int32) string {
	if units == nil {
		units = new(big.Int)
	}
	return decimal.NewFromBigInt(units, -exp).StringFixed(exp)
}

// FromBaseUnitString parses a base-unit integer string and renders it like FromBaseUnits.
func FromBaseUnitString(units string, exp int32) (string, error) {
	d, err := decimal.NewFromString(units)
	if err != nil {
		return "", fmt.Errorf("parse amount %q: %w", units, err)
	}
	if !d.Equal(d.Truncate(0)) {
		return "", fmt.Errorf("amount %q is not an integer", units)
	}
	return d.Shift(-exp).StringFixed(exp), nil
}

// NormalizeDecimal re-renders an already decimal value string without
// changing its precision.
func NormalizeDecimal(v string) (string, error) {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return "", fmt.Errorf("parse amount %q: %w", v, err)
	}
	return d.String(), nil
}
