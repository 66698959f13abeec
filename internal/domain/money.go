package domain

import "fmt"

// MinorFactor is the fixed conversion factor between major currency units and
// the minor units the gateway transacts in (e.g. naira to kobo, dollars to
// cents). All conversions are exact integer arithmetic.
const MinorFactor = 100

// Money is an amount expressed as an integer count of minor currency units.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// NewMoney returns an amount of minor units in the given currency.
func NewMoney(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: currency}
}

// FromMajor converts whole major units (e.g. 150 naira) to Money.
func FromMajor(units int64, currency string) Money {
	return Money{Amount: units * MinorFactor, Currency: currency}
}

// Major returns the whole major units and the minor-unit remainder.
func (m Money) Major() (units int64, remainder int64) {
	return m.Amount / MinorFactor, m.Amount % MinorFactor
}

func (m Money) IsPositive() bool {
	return m.Amount > 0
}

// Add returns m + other, failing if the currencies differ.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("%w: cannot add %s to %s", ErrCurrencyMismatch, other.Currency, m.Currency)
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}, nil
}

// Sub returns m - other, failing if the currencies differ. The result may be
// negative; balance checks belong to the ledger, not the value type.
func (m Money) Sub(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("%w: cannot subtract %s from %s", ErrCurrencyMismatch, other.Currency, m.Currency)
	}
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}, nil
}

// Cmp compares two amounts of the same currency: -1 if m < other, 0 if equal,
// +1 if m > other.
func (m Money) Cmp(other Money) (int, error) {
	if m.Currency != other.Currency {
		return 0, fmt.Errorf("%w: cannot compare %s with %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	switch {
	case m.Amount < other.Amount:
		return -1, nil
	case m.Amount > other.Amount:
		return 1, nil
	default:
		return 0, nil
	}
}

func (m Money) String() string {
	units, rem := m.Major()
	if rem < 0 {
		rem = -rem
	}
	return fmt.Sprintf("%s %d.%02d", m.Currency, units, rem)
}
