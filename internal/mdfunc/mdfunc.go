// Package mdfunc provides the concrete market-data functions registered with
// the resolver: curve groups from member curves, curves bootstrapped from
// raw quotes, index rates from a projection curve plus fixings, and FX rates
// from quotes with USD triangulation.
package mdfunc

import (
	"fmt"

	"github.com/quantfabric/calcgrid/internal/curve"
	"github.com/quantfabric/calcgrid/internal/marketdata"
	"github.com/quantfabric/calcgrid/internal/money"
	"github.com/quantfabric/calcgrid/internal/result"
)

// QuoteNode ties one bootstrap pillar to the quote that feeds it.
type QuoteNode struct {
	Ticker     string  `yaml:"ticker"`
	Feed       string  `yaml:"feed"`
	TenorYears float64 `yaml:"tenor_years"`
}

// CurveDef declares how one curve is bootstrapped.
type CurveDef struct {
	ID    marketdata.CurveID `yaml:"id"`
	Nodes []QuoteNode        `yaml:"nodes"`
}

// GroupDef declares a curve group's members.
type GroupDef struct {
	Name   string               `yaml:"name"`
	Curves []marketdata.CurveID `yaml:"curves"`
}

// IndexDef binds a floating index to its projection curve and fixing feed.
type IndexDef struct {
	Index      string             `yaml:"index"`
	Curve      marketdata.CurveID `yaml:"curve"`
	FixingFeed string             `yaml:"fixing_feed"`
}

// Config is the static market-data configuration the functions close over.
type Config struct {
	Curves  []CurveDef `yaml:"curves"`
	Groups  []GroupDef `yaml:"groups"`
	Indices []IndexDef `yaml:"indices"`
	// FxFeed names the feed FX quotes are supplied on.
	FxFeed string `yaml:"fx_feed"`
}

// Register wires all market-data functions for the configuration into the
// registry.
func Register(reg *marketdata.Registry, cfg Config) error {
	curves := make(map[marketdata.CurveID]CurveDef, len(cfg.Curves))
	for _, d := range cfg.Curves {
		curves[d.ID] = d
	}
	groups := make(map[string]GroupDef, len(cfg.Groups))
	for _, d := range cfg.Groups {
		groups[d.Name] = d
	}
	indices := make(map[string]IndexDef, len(cfg.Indices))
	for _, d := range cfg.Indices {
		indices[d.Index] = d
	}

	for t, fn := range map[marketdata.Type]marketdata.Function{
		marketdata.TypeCurve:      &CurveFunction{defs: curves},
		marketdata.TypeCurveGroup: &GroupFunction{defs: groups},
		marketdata.TypeIndexRates: &IndexRatesFunction{defs: indices},
		marketdata.TypeFxRate:     &FxRateFunction{feed: cfg.FxFeed},
	} {
		if err := reg.Register(t, fn); err != nil {
			return err
		}
	}
	return nil
}

// CurveFunction bootstraps zero curves from their configured quote nodes.
type CurveFunction struct {
	defs map[marketdata.CurveID]CurveDef
}

// Requirements declares the raw quotes feeding the curve's pillars.
func (f *CurveFunction) Requirements(id marketdata.ID) marketdata.Requirements {
	def, ok := f.defs[id.(marketdata.CurveID)]
	if !ok {
		return marketdata.EmptyRequirements()
	}
	var b marketdata.RequirementsBuilder
	for _, n := range def.Nodes {
		b.AddValue(marketdata.QuoteID{Ticker: n.Ticker, Feed: n.Feed})
	}
	return b.Build()
}

// Build gathers the pillar quotes and bootstraps the curve.
func (f *CurveFunction) Build(id marketdata.ID, env *marketdata.Environment) result.Result {
	cid := id.(marketdata.CurveID)
	def, ok := f.defs[cid]
	if !ok {
		return result.Fail(result.InvalidInput, "no curve definition for %s", cid.Key())
	}
	if len(def.Nodes) == 0 {
		return result.Fail(result.InvalidInput, "curve %s has no nodes", cid.Key())
	}

	nodes := make([]curve.Node, 0, len(def.Nodes))
	for _, n := range def.Nodes {
		quote, failure := result.As[float64](env.Value(marketdata.QuoteID{Ticker: n.Ticker, Feed: n.Feed}))
		if failure != nil {
			return result.FromFailure(*failure)
		}
		nodes = append(nodes, curve.Node{TenorYears: n.TenorYears, ParRate: quote})
	}

	built, err := curve.Bootstrap(cid.Name, env.ValuationDate(), nodes)
	if err != nil {
		return result.FailErr(result.InvalidInput, err)
	}
	return result.Success(built)
}

// GroupFunction assembles curve groups from their member curves.
type GroupFunction struct {
	defs map[string]GroupDef
}

// Requirements declares the group's member curve ids.
func (f *GroupFunction) Requirements(id marketdata.ID) marketdata.Requirements {
	def, ok := f.defs[id.(marketdata.CurveGroupID).Name]
	if !ok {
		return marketdata.EmptyRequirements()
	}
	var b marketdata.RequirementsBuilder
	for _, cid := range def.Curves {
		b.AddValue(cid)
	}
	return b.Build()
}

// Build collects the member curves into an immutable group.
func (f *GroupFunction) Build(id marketdata.ID, env *marketdata.Environment) result.Result {
	gid := id.(marketdata.CurveGroupID)
	def, ok := f.defs[gid.Name]
	if !ok {
		return result.Fail(result.InvalidInput, "no curve group definition for %q", gid.Name)
	}

	members := make(map[marketdata.CurveID]*curve.ZeroCurve, len(def.Curves))
	for _, cid := range def.Curves {
		zc, failure := result.As[*curve.ZeroCurve](env.Value(cid))
		if failure != nil {
			return result.FromFailure(*failure)
		}
		members[cid] = zc
	}
	return result.Success(curve.NewGroup(gid.Name, members))
}

// IndexRatesFunction pairs an index's projection curve with its fixings.
type IndexRatesFunction struct {
	defs map[string]IndexDef
}

// Requirements declares the projection curve and the fixing series.
func (f *IndexRatesFunction) Requirements(id marketdata.ID) marketdata.Requirements {
	def, ok := f.defs[id.(marketdata.IndexRatesID).Index]
	if !ok {
		return marketdata.EmptyRequirements()
	}
	var b marketdata.RequirementsBuilder
	b.AddValue(def.Curve)
	b.AddTimeSeries(marketdata.TimeSeriesID{Index: def.Index, Feed: def.FixingFeed})
	return b.Build()
}

// Build combines the resolved curve and the supplied fixings.
func (f *IndexRatesFunction) Build(id marketdata.ID, env *marketdata.Environment) result.Result {
	iid := id.(marketdata.IndexRatesID)
	def, ok := f.defs[iid.Index]
	if !ok {
		return result.Fail(result.InvalidInput, "no index definition for %q", iid.Index)
	}

	zc, failure := result.As[*curve.ZeroCurve](env.Value(def.Curve))
	if failure != nil {
		return result.FromFailure(*failure)
	}
	fixings, failure := result.As[marketdata.TimeSeries](env.TimeSeries(marketdata.TimeSeriesID{Index: def.Index, Feed: def.FixingFeed}))
	if failure != nil {
		return result.FromFailure(*failure)
	}
	return result.Success(curve.IndexRates{Index: iid.Index, Curve: zc, Fixings: fixings})
}

// FxRateFunction resolves currency-pair rates from supplied FX quotes,
// triangulating through USD when the pair is not quoted directly.
type FxRateFunction struct {
	feed string
}

func fxTicker(base, counter money.Currency) string {
	return fmt.Sprintf("%s/%s", base, counter)
}

// Requirements declares the quote, or the two USD legs for a cross pair.
func (f *FxRateFunction) Requirements(id marketdata.ID) marketdata.Requirements {
	fx := id.(marketdata.FxRateID)
	var b marketdata.RequirementsBuilder
	if fx.Base == fx.Counter {
		return b.Build()
	}
	if fx.Base == money.USD || fx.Counter == money.USD {
		b.AddValue(marketdata.QuoteID{Ticker: fxTicker(fx.Base, fx.Counter), Feed: f.feed})
	} else {
		b.AddValue(
			marketdata.QuoteID{Ticker: fxTicker(fx.Base, money.USD), Feed: f.feed},
			marketdata.QuoteID{Ticker: fxTicker(fx.Counter, money.USD), Feed: f.feed},
		)
	}
	return b.Build()
}

// Build produces the pair's FxRate.
func (f *FxRateFunction) Build(id marketdata.ID, env *marketdata.Environment) result.Result {
	fx := id.(marketdata.FxRateID)
	if fx.Base == fx.Counter {
		return result.Success(money.FxRate{Base: fx.Base, Counter: fx.Counter, Rate: 1})
	}

	if fx.Base == money.USD || fx.Counter == money.USD {
		rate, failure := result.As[float64](env.Value(marketdata.QuoteID{Ticker: fxTicker(fx.Base, fx.Counter), Feed: f.feed}))
		if failure != nil {
			return result.FromFailure(*failure)
		}
		if rate <= 0 {
			return result.Fail(result.InvalidInput, "non-positive fx quote for %s", fx.Key())
		}
		return result.Success(money.FxRate{Base: fx.Base, Counter: fx.Counter, Rate: rate})
	}

	baseUSD, failure := result.As[float64](env.Value(marketdata.QuoteID{Ticker: fxTicker(fx.Base, money.USD), Feed: f.feed}))
	if failure != nil {
		return result.FromFailure(*failure)
	}
	counterUSD, failure := result.As[float64](env.Value(marketdata.QuoteID{Ticker: fxTicker(fx.Counter, money.USD), Feed: f.feed}))
	if failure != nil {
		return result.FromFailure(*failure)
	}
	if baseUSD <= 0 || counterUSD <= 0 {
		return result.Fail(result.InvalidInput, "non-positive usd leg for cross %s", fx.Key())
	}
	return result.Success(money.FxRate{Base: fx.Base, Counter: fx.Counter, Rate: baseUSD / counterUSD})
}
