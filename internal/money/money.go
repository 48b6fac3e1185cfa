// Package money holds the small currency and amount types shared by the
// trade model, the market-data layer and the calculation engine.
package money

import (
	"fmt"
	"sort"
	"strings"
)

// Currency is an ISO-4217 style three letter code.
type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	JPY Currency = "JPY"
	KRW Currency = "KRW"
)

// ParseCurrency validates and normalizes a currency code.
func ParseCurrency(s string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	if len(c) != 3 {
		return "", fmt.Errorf("invalid currency code %q", s)
	}
	return c, nil
}

// CurrencyAmount is an amount in a single currency.
type CurrencyAmount struct {
	Currency Currency `json:"currency"`
	Amount   float64  `json:"amount"`
}

// NewCurrencyAmount creates a single-currency amount.
func NewCurrencyAmount(ccy Currency, amount float64) CurrencyAmount {
	return CurrencyAmount{Currency: ccy, Amount: amount}
}

func (a CurrencyAmount) String() string {
	return fmt.Sprintf("%s %.4f", a.Currency, a.Amount)
}

// MultiCurrencyAmount is a set of amounts keyed by currency. Adding amounts
// in the same currency accumulates; the zero value is ready to use via Plus.
type MultiCurrencyAmount struct {
	amounts map[Currency]float64
}

// NewMultiCurrencyAmount builds a multi-currency amount from parts.
func NewMultiCurrencyAmount(parts ...CurrencyAmount) MultiCurrencyAmount {
	m := MultiCurrencyAmount{amounts: make(map[Currency]float64, len(parts))}
	for _, p := range parts {
		m.amounts[p.Currency] += p.Amount
	}
	return m
}

// Plus returns a new amount with the part accumulated.
func (m MultiCurrencyAmount) Plus(part CurrencyAmount) MultiCurrencyAmount {
	out := MultiCurrencyAmount{amounts: make(map[Currency]float64, len(m.amounts)+1)}
	for c, v := range m.amounts {
		out.amounts[c] = v
	}
	out.amounts[part.Currency] += part.Amount
	return out
}

// Amount reports the amount held in the given currency.
func (m MultiCurrencyAmount) Amount(ccy Currency) (float64, bool) {
	v, ok := m.amounts[ccy]
	return v, ok
}

// Currencies lists the currencies present, sorted for determinism.
func (m MultiCurrencyAmount) Currencies() []Currency {
	out := make([]Currency, 0, len(m.amounts))
	for c := range m.amounts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Size reports how many distinct currencies are present.
func (m MultiCurrencyAmount) Size() int { return len(m.amounts) }

func (m MultiCurrencyAmount) String() string {
	parts := make([]string, 0, len(m.amounts))
	for _, c := range m.Currencies() {
		parts = append(parts, fmt.Sprintf("%s %.4f", c, m.amounts[c]))
	}
	return strings.Join(parts, " + ")
}

// FxRate is an exchange rate between two currencies: one unit of Base buys
// Rate units of Counter.
type FxRate struct {
	Base    Currency `json:"base"`
	Counter Currency `json:"counter"`
	Rate    float64  `json:"rate"`
}

// Convert converts an amount into the target currency using this rate.
// The amount's currency must be either side of the pair.
func (r FxRate) Convert(a CurrencyAmount, target Currency) (CurrencyAmount, error) {
	switch {
	case a.Currency == target:
		return a, nil
	case a.Currency == r.Base && target == r.Counter:
		return CurrencyAmount{Currency: target, Amount: a.Amount * r.Rate}, nil
	case a.Currency == r.Counter && target == r.Base:
		if r.Rate == 0 {
			return CurrencyAmount{}, fmt.Errorf("zero rate for %s/%s", r.Base, r.Counter)
		}
		return CurrencyAmount{Currency: target, Amount: a.Amount / r.Rate}, nil
	default:
		return CurrencyAmount{}, fmt.Errorf("rate %s/%s cannot convert %s to %s", r.Base, r.Counter, a.Currency, target)
	}
}

// Inverse returns the flipped pair.
func (r FxRate) Inverse() FxRate {
	inv := 0.0
	if r.Rate != 0 {
		inv = 1 / r.Rate
	}
	return FxRate{Base: r.Counter, Counter: r.Base, Rate: inv}
}
