// Package types provides common type aliases and utilities.
package types

import (
	"github.com/shopspring/decimal"
)

// Money represents a monetary value with full precision.
// Uses decimal.Decimal to avoid floating-point errors in invoice math.
type Money = decimal.Decimal

// MoneyPlaces is the number of decimal places carried by persisted
// monetary amounts. Matches Postgres NUMERIC(12,2).
const MoneyPlaces = 2

// NewMoney creates a Money value from a float.
// WARNING: Use NewMoneyFromString for precise values.
func NewMoney(f float64) Money {
	return decimal.NewFromFloat(f)
}

// NewMoneyFromString creates a Money value from a string.
// This is the preferred method for monetary values.
func NewMoneyFromString(s string) (Money, error) {
	return decimal.NewFromString(s)
}

// MustMoney creates a Money value from a string, panics on error.
// Use only for constants and tests.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Zero returns zero Money value.
func Zero() Money {
	return decimal.Zero
}

// RoundMoney rounds to the persisted monetary precision (2 places,
// half away from zero).
func RoundMoney(m Money) Money {
	return m.Round(MoneyPlaces)
}

// PercentOf returns base × pct / 100, rounded to monetary precision.
// Used for discount percentages and the flat tax rate.
func PercentOf(base, pct Money) Money {
	return RoundMoney(base.Mul(pct).Div(decimal.NewFromInt(100)))
}
