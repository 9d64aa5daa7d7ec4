// README: Common money value object used across modules.
package types

import (
	"errors"
	"fmt"
	"math"
)

const DefaultCurrency = "NGN"

// maxMinorUnits keeps amounts inside the range a float64 represents exactly.
const maxMinorUnits = 1 << 53

var (
	ErrCurrencyMismatch = errors.New("currency mismatch")
	ErrMoneyOutOfRange  = errors.New("money amount out of range")
)

// Money stores amounts in minor units (e.g. kobo, cents).
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// ParseMajor converts a major-unit amount from untrusted input.
func ParseMajor(v float64, currency string) (Money, error) {
	if currency == "" {
		currency = DefaultCurrency
	}
	minor := math.Round(v * 100)
	if math.IsNaN(minor) || math.Abs(minor) > maxMinorUnits {
		return Money{}, fmt.Errorf("%w: %v", ErrMoneyOutOfRange, v)
	}
	return Money{Amount: int64(minor), Currency: currency}, nil
}

// FromMajor is ParseMajor for constants and trusted values. It panics when v
// is out of range.
func FromMajor(v float64, currency string) Money {
	m, err := ParseMajor(v, currency)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Money) Major() float64 {
	return float64(m.Amount) / 100
}

// Add sums two amounts. A zero-value currency adopts the other side's.
func (m Money) Add(o Money) (Money, error) {
	cur := m.Currency
	switch {
	case cur == "":
		cur = o.Currency
	case o.Currency != "" && o.Currency != cur:
		return Money{}, fmt.Errorf("%w: %s + %s", ErrCurrencyMismatch, cur, o.Currency)
	}
	sum := m.Amount + o.Amount
	if (o.Amount > 0 && sum < m.Amount) || (o.Amount < 0 && sum > m.Amount) {
		return Money{}, ErrMoneyOutOfRange
	}
	return Money{Amount: sum, Currency: cur}, nil
}
