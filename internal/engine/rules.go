package engine

import (
	"github.com/quantfabric/calcgrid/internal/money"
	"github.com/quantfabric/calcgrid/internal/result"
	"github.com/quantfabric/calcgrid/internal/trade"
)

// PricingRule routes trades matching Matches to Group. Measures restricts
// the rule to specific measures; empty means every measure the group
// supports.
type PricingRule struct {
	Name     string
	Matches  func(trade.Trade) bool
	Group    *FunctionGroup
	Measures []Measure
}

func (r PricingRule) allowsMeasure(m Measure) bool {
	if len(r.Measures) == 0 {
		return true
	}
	for _, allowed := range r.Measures {
		if allowed == m {
			return true
		}
	}
	return false
}

// PricingRules is an ordered rule list. Dispatch is strictly first-match:
// the first rule whose matcher accepts the trade and whose group supports
// the measure wins, so declaration order is semantically significant and a
// later narrower rule can never override an earlier broad one.
type PricingRules struct {
	rules []PricingRule
}

// NewPricingRules builds an immutable ordered rule list.
func NewPricingRules(rules ...PricingRule) PricingRules {
	cp := make([]PricingRule, len(rules))
	copy(cp, rules)
	return PricingRules{rules: cp}
}

// Resolve selects the calculation function for a trade and measure, or a
// typed Unsupported failure naming the coordinate when no rule matches.
func (p PricingRules) Resolve(t trade.Trade, m Measure) (CalculationFunction, *result.Failure) {
	for _, rule := range p.rules {
		if rule.Matches != nil && !rule.Matches(t) {
			continue
		}
		if !rule.allowsMeasure(m) {
			continue
		}
		if fn, ok := rule.Group.Function(t, m); ok {
			return fn, nil
		}
	}
	return nil, &result.Failure{
		Reason:  result.Unsupported,
		Message: "no pricing rule available for trade type " + string(t.Type()) + ", measure " + string(m),
	}
}

// MatchType builds a matcher accepting the listed trade types.
func MatchType(types ...trade.Type) func(trade.Trade) bool {
	set := make(map[trade.Type]struct{}, len(types))
	for _, tt := range types {
		set[tt] = struct{}{}
	}
	return func(t trade.Trade) bool {
		_, ok := set[t.Type()]
		return ok
	}
}

// MatchAll accepts every trade.
func MatchAll(trade.Trade) bool { return true }

// ReportingMode selects how a cell's output currency is chosen.
type ReportingMode string

const (
	// ReportingNatural reports every trade in its own natural currency.
	ReportingNatural ReportingMode = "natural"
	// ReportingFixed reports every trade in one configured currency.
	ReportingFixed ReportingMode = "fixed"
)

// ReportingRules is the currency policy for a run, independent of pricing
// rules.
type ReportingRules struct {
	Mode     ReportingMode  `yaml:"mode"`
	Currency money.Currency `yaml:"currency,omitempty"`
}

// NaturalReporting reports each trade in its natural currency.
func NaturalReporting() ReportingRules {
	return ReportingRules{Mode: ReportingNatural}
}

// FixedReporting reports every trade in the given currency.
func FixedReporting(ccy money.Currency) ReportingRules {
	return ReportingRules{Mode: ReportingFixed, Currency: ccy}
}

// CurrencyFor returns the output currency for one trade.
func (r ReportingRules) CurrencyFor(t trade.Trade) money.Currency {
	if r.Mode == ReportingFixed && r.Currency != "" {
		return r.Currency
	}
	return t.Currency()
}
