package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Amounts are integers in the smallest currency unit (wei for the base asset,
// whole units for rewards). decimal.Decimal keeps them exact past 2^64.

// ParseAmount parses a base-10 integer amount. Fractions and negatives are rejected.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: amount %q: %v", ErrInvalidInput, s, err)
	}
	if err := validAmount(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

func validAmount(d decimal.Decimal) error {
	if d.IsNegative() {
		return fmt.Errorf("%w: amount %s is negative", ErrInvalidInput, d)
	}
	if !d.IsInteger() {
		return fmt.Errorf("%w: amount %s is not in the smallest unit", ErrInvalidInput, d)
	}
	return nil
}

func validPositive(d decimal.Decimal) error {
	if err := validAmount(d); err != nil {
		return err
	}
	if d.IsZero() {
		return fmt.Errorf("%w: amount must be greater than zero", ErrInvalidInput)
	}
	return nil
}
