package subscription

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// zeroDecimalCurrencies have no minor unit.
var zeroDecimalCurrencies = map[string]struct{}{
	"BIF": {}, "CLP": {}, "DJF": {}, "GNF": {}, "ISK": {}, "JPY": {}, "KMF": {}, "KRW": {},
	"PYG": {}, "RWF": {}, "UGX": {}, "UYI": {}, "VND": {}, "VUV": {}, "XAF": {}, "XOF": {}, "XPF": {},
}

// threeDecimalCurrencies have a minor unit of 1/1000.
var threeDecimalCurrencies = map[string]struct{}{
	"BHD": {}, "IQD": {}, "JOD": {}, "KWD": {}, "LYD": {}, "OMR": {}, "TND": {},
}

// MinorUnits returns the number of decimal places of an ISO 4217 currency.
func MinorUnits(currency string) int32 {
	if _, ok := zeroDecimalCurrencies[currency]; ok {
		return 0
	}
	if _, ok := threeDecimalCurrencies[currency]; ok {
		return 3
	}
	return 2
}

// NormalizeCurrency upper-cases and trims a currency code.
func NormalizeCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}

// IsCurrencyCode reports whether s looks like an ISO 4217 alphabetic code.
func IsCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// Money is an immutable amount in a currency.
type Money struct {
	amount   decimal.Decimal
	currency string
}

// NewMoney creates a new Money value object.
func NewMoney(amount decimal.Decimal, currency string) Money {
	return Money{amount: amount, currency: NormalizeCurrency(currency)}
}

// Zero returns a zero amount in currency.
func Zero(currency string) Money {
	return NewMoney(decimal.Zero, currency)
}

// Amount returns the unrounded amount.
func (m Money) Amount() decimal.Decimal {
	return m.amount
}

// Currency returns the ISO 4217 currency code.
func (m Money) Currency() string {
	return m.currency
}

// IsZero returns true if the amount is zero.
func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

// IsNegative returns true if the amount is negative.
func (m Money) IsNegative() bool {
	return m.amount.IsNegative()
}

// Add returns the sum of two amounts in the same currency.
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("currency mismatch: %s vs %s", m.currency, other.currency)
	}
	return Money{amount: m.amount.Add(other.amount), currency: m.currency}, nil
}

// Sub returns the difference of two amounts in the same currency.
func (m Money) Sub(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("currency mismatch: %s vs %s", m.currency, other.currency)
	}
	return Money{amount: m.amount.Sub(other.amount), currency: m.currency}, nil
}

// MulRatio returns m * num / den without rounding. den must not be zero.
func (m Money) MulRatio(num, den int64) Money {
	scaled := m.amount.Mul(decimal.NewFromInt(num)).DivRound(decimal.NewFromInt(den), 16)
	return Money{amount: scaled, currency: m.currency}
}

// Round rounds half-to-even to the currency's minor unit.
func (m Money) Round() Money {
	return Money{amount: m.amount.RoundBank(MinorUnits(m.currency)), currency: m.currency}
}

// Equals checks if two Money values are equal.
func (m Money) Equals(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

// String returns a string representation of the Money value.
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.amount.StringFixed(MinorUnits(m.currency)), m.currency)
}
