// README: Money value object for bids and fares (minor units, ISO currency).
package types

import "strings"

const DefaultCurrency = "INR"

type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// NewMoney normalizes the currency code; an empty code falls back to DefaultCurrency.
func NewMoney(amount int64, currency string) Money {
	c := strings.ToUpper(strings.TrimSpace(currency))
	if c == "" {
		c = DefaultCurrency
	}
	return Money{Amount: amount, Currency: c}
}

func (m Money) IsPositive() bool {
	return m.Amount > 0
}
