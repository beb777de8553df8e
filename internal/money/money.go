// Package money implements the points amount type used by every ledger
// operation. Amounts are signed 64 bit integers in minor units; arithmetic
// never wraps silently.
package money

import (
	"encoding/json"
	"fmt"
	"math"

	apperrors "pontos/internal/errors"

	"github.com/shopspring/decimal"
)

// MinorUnitExp is the number of decimal places between major and minor units.
const MinorUnitExp = 2

// Amount is a quantity of points in minor units.
type Amount int64

const (
	Zero Amount = 0
	Max  Amount = math.MaxInt64
	Min  Amount = math.MinInt64
)

// Add returns a+b or ErrOverflow.
func (a Amount) Add(b Amount) (Amount, error) {
	if (b > 0 && a > Max-b) || (b < 0 && a < Min-b) {
		return 0, fmt.Errorf("%w: %d + %d", apperrors.ErrOverflow, a, b)
	}
	return a + b, nil
}

// Sub returns a-b or ErrOverflow.
func (a Amount) Sub(b Amount) (Amount, error) {
	if (b < 0 && a > Max+b) || (b > 0 && a < Min+b) {
		return 0, fmt.Errorf("%w: %d - %d", apperrors.ErrOverflow, a, b)
	}
	return a - b, nil
}

// Neg returns -a or ErrOverflow for the minimum value.
func (a Amount) Neg() (Amount, error) {
	if a == Min {
		return 0, fmt.Errorf("%w: -(%d)", apperrors.ErrOverflow, a)
	}
	return -a, nil
}

// Cmp returns -1, 0 or +1.
func (a Amount) Cmp(b Amount) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (a Amount) IsZero() bool     { return a == 0 }
func (a Amount) IsNegative() bool { return a < 0 }
func (a Amount) IsPositive() bool { return a > 0 }

// Int64 returns the raw minor unit value.
func (a Amount) Int64() int64 { return int64(a) }

// Sum folds amounts with overflow checks.
func Sum(amounts ...Amount) (Amount, error) {
	total := Zero
	for _, a := range amounts {
		var err error
		if total, err = total.Add(a); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// Decimal converts the amount to major units.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -MinorUnitExp)
}

// String formats the amount in major units, e.g. "98.00".
func (a Amount) String() string {
	return a.Decimal().StringFixed(MinorUnitExp)
}

// FromDecimal converts major units to an Amount. Values with more precision
// than one minor unit or outside the int64 range are rejected.
func FromDecimal(d decimal.Decimal) (Amount, error) {
	minor := d.Shift(MinorUnitExp)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s has sub-minor precision", apperrors.ErrInvalidAmount, d.String())
	}
	if minor.GreaterThan(decimal.NewFromInt(math.MaxInt64)) || minor.LessThan(decimal.NewFromInt(math.MinInt64)) {
		return 0, fmt.Errorf("%w: %s", apperrors.ErrOverflow, d.String())
	}
	return Amount(minor.IntPart()), nil
}

// Parse reads a major unit string such as "98.00" or "150".
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", apperrors.ErrInvalidAmount, s)
	}
	return FromDecimal(d)
}

// UnmarshalJSON accepts an integer of minor units or a string of major units
// in the format String produces.
func (a *Amount) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := Parse(s)
		if err != nil {
			return err
		}
		*a = v
		return nil
	}
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("%w: %s", apperrors.ErrInvalidAmount, data)
	}
	*a = Amount(v)
	return nil
}
