// Package marketdata implements the market-data dependency engine: typed
// identifiers, requirement aggregation, the immutable environment snapshot,
// and the fixed-point resolver that builds derived values bottom-up from
// supplied quotes.
package marketdata

import (
	"fmt"

	"github.com/quantfabric/calcgrid/internal/money"
)

// Type identifies the kind of artifact an ID points at. The resolver looks
// up builder functions by Type, so each Type maps to one value type.
type Type string

const (
	TypeQuote      Type = "quote"
	TypeCurve      Type = "curve"
	TypeCurveGroup Type = "curve_group"
	TypeIndexRates Type = "index_rates"
	TypeFxRate     Type = "fx_rate"
	TypeTimeSeries Type = "time_series"
)

// ID is an immutable, comparable key identifying one market-data artifact.
// Implementations are small value structs, so IDs work directly as map keys
// and equality is structural. Distinct ID types may target the same logical
// data through different feeds.
type ID interface {
	// Key is a unique stable string form, used for hashing and caching.
	Key() string
	// IDType routes the ID to its registered builder function.
	IDType() Type
}

// QuoteID identifies a single externally supplied quote on a named feed.
type QuoteID struct {
	Ticker string `json:"ticker"`
	Feed   string `json:"feed"`
}

func (q QuoteID) Key() string  { return fmt.Sprintf("quote/%s/%s", q.Feed, q.Ticker) }
func (q QuoteID) IDType() Type { return TypeQuote }

// CurveID identifies one bootstrapped curve within a curve group.
type CurveID struct {
	Group    string         `json:"group"`
	Name     string         `json:"name"`
	Currency money.Currency `json:"currency"`
}

func (c CurveID) Key() string  { return fmt.Sprintf("curve/%s/%s/%s", c.Group, c.Name, c.Currency) }
func (c CurveID) IDType() Type { return TypeCurve }

// CurveGroupID identifies a named set of curves built together.
type CurveGroupID struct {
	Name string `json:"name"`
}

func (g CurveGroupID) Key() string  { return "curve_group/" + g.Name }
func (g CurveGroupID) IDType() Type { return TypeCurveGroup }

// IndexRatesID identifies the rates object for one floating index: the
// projection curve paired with the index's historical fixings.
type IndexRatesID struct {
	Index string `json:"index"`
}

func (i IndexRatesID) Key() string  { return "index_rates/" + i.Index }
func (i IndexRatesID) IDType() Type { return TypeIndexRates }

// FxRateID identifies the exchange rate for one currency pair.
type FxRateID struct {
	Base    money.Currency `json:"base"`
	Counter money.Currency `json:"counter"`
}

func (f FxRateID) Key() string  { return fmt.Sprintf("fx/%s/%s", f.Base, f.Counter) }
func (f FxRateID) IDType() Type { return TypeFxRate }

// TimeSeriesID identifies a historical fixing series for an index on a feed.
// Time series are supplied, never built, and live in their own environment
// map.
type TimeSeriesID struct {
	Index string `json:"index"`
	Feed  string `json:"feed"`
}

func (t TimeSeriesID) Key() string  { return fmt.Sprintf("time_series/%s/%s", t.Feed, t.Index) }
func (t TimeSeriesID) IDType() Type { return TypeTimeSeries }
