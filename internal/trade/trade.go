// Package trade holds the minimal trade model the calculation engine prices.
// Trades are immutable value objects with a closed type tag; pricing code
// dispatches on Type rather than on runtime type inspection.
package trade

import (
	"time"

	"github.com/quantfabric/calcgrid/internal/money"
)

// Type tags the product category of a trade. The set is closed.
type Type string

const (
	TypeSwap        Type = "swap"
	TypeFRA         Type = "fra"
	TypeTermDeposit Type = "term_deposit"
)

// Trade is the capability surface the engine needs from any product.
type Trade interface {
	// ID is a stable identifier for reporting.
	ID() string
	// Type is the closed product category tag.
	Type() Type
	// Currency is the trade's natural reporting currency.
	Currency() money.Currency
	// Currencies lists every currency the trade pays or receives in.
	Currencies() []money.Currency
}

// Swap is a fixed-versus-floating interest rate swap. Both legs share a
// schedule with annual periods between Start and End; the float leg projects
// off Index. PayFixed true means fixed is paid, float received.
type Swap struct {
	id         string
	currency   money.Currency
	notional   float64
	fixedRate  float64
	index      string
	start, end time.Time
	payFixed   bool
}

// NewSwap constructs an immutable swap trade.
func NewSwap(id string, ccy money.Currency, notional, fixedRate float64, index string, start, end time.Time, payFixed bool) Swap {
	return Swap{
		id:        id,
		currency:  ccy,
		notional:  notional,
		fixedRate: fixedRate,
		index:     index,
		start:     start,
		end:       end,
		payFixed:  payFixed,
	}
}

func (s Swap) ID() string                    { return s.id }
func (s Swap) Type() Type                    { return TypeSwap }
func (s Swap) Currency() money.Currency      { return s.currency }
func (s Swap) Currencies() []money.Currency  { return []money.Currency{s.currency} }
func (s Swap) Notional() float64             { return s.notional }
func (s Swap) FixedRate() float64            { return s.fixedRate }
func (s Swap) Index() string                 { return s.index }
func (s Swap) Start() time.Time              { return s.start }
func (s Swap) End() time.Time                { return s.end }
func (s Swap) PayFixed() bool                { return s.payFixed }

// FRA is a forward rate agreement on Index over [Start, End], struck at Rate.
type FRA struct {
	id         string
	currency   money.Currency
	notional   float64
	rate       float64
	index      string
	start, end time.Time
}

// NewFRA constructs an immutable forward rate agreement.
func NewFRA(id string, ccy money.Currency, notional, rate float64, index string, start, end time.Time) FRA {
	return FRA{id: id, currency: ccy, notional: notional, rate: rate, index: index, start: start, end: end}
}

func (f FRA) ID() string                   { return f.id }
func (f FRA) Type() Type                   { return TypeFRA }
func (f FRA) Currency() money.Currency     { return f.currency }
func (f FRA) Currencies() []money.Currency { return []money.Currency{f.currency} }
func (f FRA) Notional() float64            { return f.notional }
func (f FRA) Rate() float64                { return f.rate }
func (f FRA) Index() string                { return f.index }
func (f FRA) Start() time.Time             { return f.start }
func (f FRA) End() time.Time               { return f.end }

// TermDeposit is a simple deposit paying Rate at maturity.
type TermDeposit struct {
	id         string
	currency   money.Currency
	notional   float64
	rate       float64
	start, end time.Time
}

// NewTermDeposit constructs an immutable term deposit.
func NewTermDeposit(id string, ccy money.Currency, notional, rate float64, start, end time.Time) TermDeposit {
	return TermDeposit{id: id, currency: ccy, notional: notional, rate: rate, start: start, end: end}
}

func (d TermDeposit) ID() string                   { return d.id }
func (d TermDeposit) Type() Type                   { return TypeTermDeposit }
func (d TermDeposit) Currency() money.Currency     { return d.currency }
func (d TermDeposit) Currencies() []money.Currency { return []money.Currency{d.currency} }
func (d TermDeposit) Notional() float64            { return d.notional }
func (d TermDeposit) Rate() float64                { return d.rate }
func (d TermDeposit) Start() time.Time             { return d.start }
func (d TermDeposit) End() time.Time               { return d.end }
