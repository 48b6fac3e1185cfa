package pricer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfabric/calcgrid/internal/curve"
	"github.com/quantfabric/calcgrid/internal/engine"
	"github.com/quantfabric/calcgrid/internal/marketdata"
	"github.com/quantfabric/calcgrid/internal/money"
	"github.com/quantfabric/calcgrid/internal/result"
	"github.com/quantfabric/calcgrid/internal/trade"
)

var valuation = time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)

var sel = CurveSelector{Group: "default"}

func flatCurve(t *testing.T, zero float64) *curve.ZeroCurve {
	t.Helper()
	c, err := curve.NewZeroCurve("usd-disc", valuation, []curve.Point{
		{Years: 1, Zero: zero},
		{Years: 10, Zero: zero},
	})
	require.NoError(t, err)
	return c
}

func pricingEnv(t *testing.T, zero float64, fixings ...marketdata.TimeSeriesPoint) *marketdata.Environment {
	t.Helper()
	c := flatCurve(t, zero)
	rates := curve.IndexRates{Index: "SOFR", Curve: c, Fixings: marketdata.NewTimeSeries(fixings...)}
	return marketdata.BaseEnvironment(valuation, map[marketdata.ID]any{
		sel.DiscountCurveID(money.USD):         c,
		marketdata.IndexRatesID{Index: "SOFR"}: rates,
	}, nil)
}

func forwardSwap(fixedRate float64, payFixed bool) trade.Swap {
	start := valuation.AddDate(0, 3, 0)
	return trade.NewSwap("swap-1", money.USD, 1e6, fixedRate, "SOFR", start, start.AddDate(5, 0, 0), payFixed)
}

func TestSwapPVIsZeroAtParRate(t *testing.T) {
	env := pricingEnv(t, 0.03)
	s := forwardSwap(0, true)

	par := (&SwapParRateFunction{sel: sel}).Execute(s, env)
	require.True(t, par.IsSuccess(), "%v", par.Failure())
	parRate := par.Value().(float64)
	assert.InDelta(t, 0.03, parRate, 5e-3)

	pv := (&SwapPVFunction{sel: sel}).Execute(forwardSwap(parRate, true), env)
	require.True(t, pv.IsSuccess(), "%v", pv.Failure())
	amount := pv.Value().(money.CurrencyAmount)
	assert.Equal(t, money.USD, amount.Currency)
	assert.InDelta(t, 0, amount.Amount, 1e-6)
}

func TestSwapPVSignFollowsDirection(t *testing.T) {
	// Fixed rate well below the curve: the payer of fixed is in the money.
	env := pricingEnv(t, 0.03)

	payer := (&SwapPVFunction{sel: sel}).Execute(forwardSwap(0.01, true), env)
	require.True(t, payer.IsSuccess())
	receiver := (&SwapPVFunction{sel: sel}).Execute(forwardSwap(0.01, false), env)
	require.True(t, receiver.IsSuccess())

	payerPV := payer.Value().(money.CurrencyAmount).Amount
	receiverPV := receiver.Value().(money.CurrencyAmount).Amount
	assert.Greater(t, payerPV, 0.0)
	assert.InDelta(t, -payerPV, receiverPV, 1e-9)
}

func TestStartedSwapPeriodUsesFixing(t *testing.T) {
	start := valuation.AddDate(0, -6, 0)
	s := trade.NewSwap("swap-2", money.USD, 1e6, 0.03, "SOFR", start, start.AddDate(3, 0, 0), true)

	noFixing := (&SwapPVFunction{sel: sel}).Execute(s, pricingEnv(t, 0.03))
	require.True(t, noFixing.IsFailure())
	assert.Equal(t, result.MissingData, noFixing.Failure().Reason)
	assert.Contains(t, noFixing.Failure().Message, "no fixing for SOFR")

	withFixing := (&SwapPVFunction{sel: sel}).Execute(s, pricingEnv(t, 0.03,
		marketdata.TimeSeriesPoint{Date: start, Value: 0.029}))
	require.True(t, withFixing.IsSuccess(), "%v", withFixing.Failure())
}

func TestSwapPV01MatchesBumpedReprice(t *testing.T) {
	env := pricingEnv(t, 0.03)
	s := forwardSwap(0.03, true)
	pvFn := &SwapPVFunction{sel: sel}

	r := (&SwapPV01Function{sel: sel}).Execute(s, env)
	require.True(t, r.IsSuccess(), "%v", r.Failure())
	pv01 := r.Value().(money.CurrencyAmount)
	assert.Equal(t, money.USD, pv01.Currency)

	base := pvFn.Execute(s, env).Value().(money.CurrencyAmount).Amount
	bumped := pvFn.Execute(s, pricingEnv(t, 0.03+curve.BasisPoint)).Value().(money.CurrencyAmount).Amount
	assert.InDelta(t, bumped-base, pv01.Amount, 1e-9)
	// A payer swap gains value when rates rise.
	assert.Greater(t, pv01.Amount, 0.0)
}

func TestFRAPVIsZeroAtForward(t *testing.T) {
	env := pricingEnv(t, 0.025)
	start := valuation.AddDate(0, 6, 0)
	end := start.AddDate(0, 6, 0)

	par := (&FRAParRateFunction{sel: sel}).Execute(trade.NewFRA("fra-1", money.USD, 1e6, 0, "SOFR", start, end), env)
	require.True(t, par.IsSuccess(), "%v", par.Failure())
	fwd := par.Value().(float64)
	assert.InDelta(t, 0.025, fwd, 5e-3)

	pv := (&FRAPVFunction{sel: sel}).Execute(trade.NewFRA("fra-1", money.USD, 1e6, fwd, "SOFR", start, end), env)
	require.True(t, pv.IsSuccess(), "%v", pv.Failure())
	assert.InDelta(t, 0, pv.Value().(money.CurrencyAmount).Amount, 1e-9)
}

func TestDepositPVIsZeroAtForward(t *testing.T) {
	env := pricingEnv(t, 0.03)
	c := flatCurve(t, 0.03)
	start := valuation.AddDate(0, 3, 0)
	end := start.AddDate(1, 0, 0)
	fwd := c.ForwardRate(curve.YearFraction(valuation, start), curve.YearFraction(valuation, end))

	pv := (&DepositPVFunction{sel: sel}).Execute(trade.NewTermDeposit("dep-1", money.USD, 1e6, fwd, start, end), env)
	require.True(t, pv.IsSuccess(), "%v", pv.Failure())
	assert.InDelta(t, 0, pv.Value().(money.CurrencyAmount).Amount, 1e-6)
}

func TestMissingCurveFailsWithMissingData(t *testing.T) {
	env := marketdata.BaseEnvironment(valuation, nil, nil)
	r := (&SwapPVFunction{sel: sel}).Execute(forwardSwap(0.03, true), env)
	require.True(t, r.IsFailure())
	assert.Equal(t, result.MissingData, r.Failure().Reason)
}

func TestSwapRequirementsNameCurveAndIndex(t *testing.T) {
	req, err := (&SwapPVFunction{sel: sel}).Requirements(forwardSwap(0.03, true))
	require.NoError(t, err)
	assert.True(t, req.HasValue(sel.DiscountCurveID(money.USD)))
	assert.True(t, req.HasValue(marketdata.IndexRatesID{Index: "SOFR"}))
}

func TestStandardRulesCoverAllTradeTypes(t *testing.T) {
	rules := StandardRules(sel)
	start := valuation.AddDate(0, 3, 0)

	for _, tr := range []trade.Trade{
		forwardSwap(0.03, true),
		trade.NewFRA("fra-1", money.USD, 1e6, 0.03, "SOFR", start, start.AddDate(0, 6, 0)),
		trade.NewTermDeposit("dep-1", money.USD, 1e6, 0.03, start, start.AddDate(1, 0, 0)),
	} {
		fn, failure := rules.Resolve(tr, engine.MeasurePresentValue)
		require.Nil(t, failure, "trade %s", tr.ID())
		assert.NotNil(t, fn)
	}
}

func TestParRateGroupBeforeStandardFallsThroughForPV(t *testing.T) {
	rules := engine.NewPricingRules(
		engine.PricingRule{Name: "rates-only", Matches: engine.MatchAll, Group: ParRateGroup(sel)},
		engine.PricingRule{Name: "standard", Matches: engine.MatchAll, Group: StandardGroup(sel)},
	)
	s := forwardSwap(0.03, true)

	fn, failure := rules.Resolve(s, engine.MeasureParRate)
	require.Nil(t, failure)
	assert.IsType(t, &SwapParRateFunction{}, fn)

	// The narrow group does not price PV; dispatch falls through.
	fn, failure = rules.Resolve(s, engine.MeasurePresentValue)
	require.Nil(t, failure)
	assert.IsType(t, &SwapPVFunction{}, fn)

	start := valuation.AddDate(0, 3, 0)
	_, failure = rules.Resolve(trade.NewTermDeposit("dep-1", money.USD, 1e6, 0.03, start, start.AddDate(1, 0, 0)), engine.MeasureParRate)
	require.NotNil(t, failure)
	assert.Equal(t, result.Unsupported, failure.Reason)
}
