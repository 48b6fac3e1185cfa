package mdfunc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfabric/calcgrid/internal/curve"
	"github.com/quantfabric/calcgrid/internal/marketdata"
	"github.com/quantfabric/calcgrid/internal/money"
	"github.com/quantfabric/calcgrid/internal/result"
)

var valuation = time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)

var usdCurveID = marketdata.CurveID{Group: "default", Name: "usd-disc", Currency: money.USD}

func testConfig() Config {
	return Config{
		Curves: []CurveDef{{
			ID: usdCurveID,
			Nodes: []QuoteNode{
				{Ticker: "USD-1Y", Feed: "bbg", TenorYears: 1},
				{Ticker: "USD-2Y", Feed: "bbg", TenorYears: 2},
				{Ticker: "USD-5Y", Feed: "bbg", TenorYears: 5},
			},
		}},
		Groups:  []GroupDef{{Name: "default", Curves: []marketdata.CurveID{usdCurveID}}},
		Indices: []IndexDef{{Index: "USD-LIBOR-3M", Curve: usdCurveID, FixingFeed: "bbg"}},
		FxFeed:  "bbg",
	}
}

func testRegistry(t *testing.T) *marketdata.Registry {
	t.Helper()
	reg := marketdata.NewRegistry()
	require.NoError(t, Register(reg, testConfig()))
	return reg
}

func baseQuotes() *marketdata.Environment {
	return marketdata.BaseEnvironment(valuation, map[marketdata.ID]any{
		marketdata.QuoteID{Ticker: "USD-1Y", Feed: "bbg"}:  0.020,
		marketdata.QuoteID{Ticker: "USD-2Y", Feed: "bbg"}:  0.025,
		marketdata.QuoteID{Ticker: "USD-5Y", Feed: "bbg"}:  0.030,
		marketdata.QuoteID{Ticker: "EUR/USD", Feed: "bbg"}: 1.10,
		marketdata.QuoteID{Ticker: "GBP/USD", Feed: "bbg"}: 1.25,
	}, map[marketdata.TimeSeriesID]marketdata.TimeSeries{
		{Index: "USD-LIBOR-3M", Feed: "bbg"}: marketdata.NewTimeSeries(
			marketdata.TimeSeriesPoint{Date: valuation.AddDate(0, 0, -1), Value: 0.024},
		),
	})
}

func resolve(t *testing.T, req marketdata.Requirements) *marketdata.Environment {
	t.Helper()
	res := marketdata.NewResolver(testRegistry(t), marketdata.DefaultResolverConfig())
	env, err := res.Resolve(context.Background(), req, baseQuotes())
	require.NoError(t, err)
	return env
}

func TestCurveFunctionBootstrapsFromQuotes(t *testing.T) {
	var b marketdata.RequirementsBuilder
	env := resolve(t, b.AddValue(usdCurveID).Build())

	zc, failure := result.As[*curve.ZeroCurve](env.Value(usdCurveID))
	require.Nil(t, failure)
	assert.Equal(t, "usd-disc", zc.Name())
	// The one-year node is a deposit: df = 1/(1+r).
	assert.InDelta(t, 1/1.02, zc.DiscountFactor(1), 1e-10)
}

func TestCurveFunctionMissingQuote(t *testing.T) {
	res := marketdata.NewResolver(testRegistry(t), marketdata.DefaultResolverConfig())
	base := marketdata.BaseEnvironment(valuation, map[marketdata.ID]any{
		marketdata.QuoteID{Ticker: "USD-1Y", Feed: "bbg"}: 0.020,
	}, nil)

	var b marketdata.RequirementsBuilder
	env, err := res.Resolve(context.Background(), b.AddValue(usdCurveID).Build(), base)
	require.NoError(t, err)

	r := env.Value(usdCurveID)
	require.True(t, r.IsFailure())
	assert.Equal(t, result.MissingData, r.Reason())
	assert.Contains(t, r.Failure().Message, "USD-2Y")
}

func TestGroupFunctionCollectsCurves(t *testing.T) {
	var b marketdata.RequirementsBuilder
	env := resolve(t, b.AddValue(marketdata.CurveGroupID{Name: "default"}).Build())

	g, failure := result.As[*curve.Group](env.Value(marketdata.CurveGroupID{Name: "default"}))
	require.Nil(t, failure)
	assert.Equal(t, 1, g.Size())

	disc, ok := g.DiscountCurve(money.USD)
	require.True(t, ok)
	assert.Equal(t, "usd-disc", disc.Name())
}

func TestGroupFunctionUnknownGroup(t *testing.T) {
	var b marketdata.RequirementsBuilder
	env := resolve(t, b.AddValue(marketdata.CurveGroupID{Name: "nope"}).Build())

	r := env.Value(marketdata.CurveGroupID{Name: "nope"})
	require.True(t, r.IsFailure())
	assert.Equal(t, result.InvalidInput, r.Reason())
}

func TestIndexRatesFunctionCombinesCurveAndFixings(t *testing.T) {
	id := marketdata.IndexRatesID{Index: "USD-LIBOR-3M"}
	var b marketdata.RequirementsBuilder
	env := resolve(t, b.AddValue(id).Build())

	rates, failure := result.As[curve.IndexRates](env.Value(id))
	require.Nil(t, failure)
	assert.Equal(t, "USD-LIBOR-3M", rates.Index)
	assert.Equal(t, "usd-disc", rates.Curve.Name())

	fix, ok := rates.Fixings.Latest(valuation)
	require.True(t, ok)
	assert.Equal(t, 0.024, fix.Value)
}

func TestIndexRatesFunctionMissingFixings(t *testing.T) {
	res := marketdata.NewResolver(testRegistry(t), marketdata.DefaultResolverConfig())
	base := marketdata.BaseEnvironment(valuation, map[marketdata.ID]any{
		marketdata.QuoteID{Ticker: "USD-1Y", Feed: "bbg"}: 0.020,
		marketdata.QuoteID{Ticker: "USD-2Y", Feed: "bbg"}: 0.025,
		marketdata.QuoteID{Ticker: "USD-5Y", Feed: "bbg"}: 0.030,
	}, nil)

	id := marketdata.IndexRatesID{Index: "USD-LIBOR-3M"}
	var b marketdata.RequirementsBuilder
	env, err := res.Resolve(context.Background(), b.AddValue(id).Build(), base)
	require.NoError(t, err)

	r := env.Value(id)
	require.True(t, r.IsFailure())
	assert.Equal(t, result.MissingData, r.Reason())
}

func TestFxRateDirectAndInversePair(t *testing.T) {
	id := marketdata.FxRateID{Base: money.EUR, Counter: money.USD}
	var b marketdata.RequirementsBuilder
	env := resolve(t, b.AddValue(id).Build())

	rate, failure := result.As[money.FxRate](env.Value(id))
	require.Nil(t, failure)
	assert.Equal(t, 1.10, rate.Rate)

	converted, err := rate.Convert(money.NewCurrencyAmount(money.EUR, 100), money.USD)
	require.NoError(t, err)
	assert.InDelta(t, 110, converted.Amount, 1e-9)
}

func TestFxRateCrossTriangulatesThroughUSD(t *testing.T) {
	id := marketdata.FxRateID{Base: money.EUR, Counter: money.GBP}
	var b marketdata.RequirementsBuilder
	env := resolve(t, b.AddValue(id).Build())

	rate, failure := result.As[money.FxRate](env.Value(id))
	require.Nil(t, failure)
	assert.InDelta(t, 1.10/1.25, rate.Rate, 1e-12)
}

func TestFxRateSamePair(t *testing.T) {
	id := marketdata.FxRateID{Base: money.USD, Counter: money.USD}
	var b marketdata.RequirementsBuilder
	env := resolve(t, b.AddValue(id).Build())

	rate, failure := result.As[money.FxRate](env.Value(id))
	require.Nil(t, failure)
	assert.Equal(t, 1.0, rate.Rate)
}
