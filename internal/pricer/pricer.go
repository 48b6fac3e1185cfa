// Package pricer provides the concrete calculation functions wired into the
// engine's standard function group: discounting present value, par rates and
// PV01 for swaps, FRAs and term deposits, priced off a single zero curve per
// currency with index fixings for started periods.
package pricer

import (
	"fmt"
	"strings"
	"time"

	"github.com/quantfabric/calcgrid/internal/curve"
	"github.com/quantfabric/calcgrid/internal/marketdata"
	"github.com/quantfabric/calcgrid/internal/money"
	"github.com/quantfabric/calcgrid/internal/result"
	"github.com/quantfabric/calcgrid/internal/trade"
)

// CurveSelector maps currencies and indices onto the market-data ids of one
// configured curve group. Discount curves follow the "<ccy>-disc" naming
// convention used by the curve configuration.
type CurveSelector struct {
	Group string `yaml:"group"`
}

// DiscountCurveID returns the discount curve id for a currency.
func (s CurveSelector) DiscountCurveID(ccy money.Currency) marketdata.CurveID {
	return marketdata.CurveID{
		Group:    s.Group,
		Name:     strings.ToLower(string(ccy)) + "-disc",
		Currency: ccy,
	}
}

// period is one accrual period of an annual schedule.
type period struct {
	start, end time.Time
}

// annualSchedule splits [start, end] into annual periods, the last one
// possibly short.
func annualSchedule(start, end time.Time) []period {
	var out []period
	cur := start
	for cur.Before(end) {
		next := cur.AddDate(1, 0, 0)
		if next.After(end) {
			next = end
		}
		out = append(out, period{start: cur, end: next})
		cur = next
	}
	return out
}

// forwardFor returns the simple rate for one accrual period: the latest
// fixing for started periods, the projected forward otherwise.
func forwardFor(rates curve.IndexRates, valuation time.Time, p period) (float64, error) {
	if !p.start.After(valuation) {
		fix, ok := rates.Fixings.Latest(p.start)
		if !ok {
			return 0, fmt.Errorf("no fixing for %s on or before %s", rates.Index, p.start.Format("2006-01-02"))
		}
		return fix.Value, nil
	}
	t1 := curve.YearFraction(valuation, p.start)
	t2 := curve.YearFraction(valuation, p.end)
	return rates.Curve.ForwardRate(t1, t2), nil
}

// swapLegs values both legs of a swap on the given curves. Matured periods
// contribute nothing.
func swapLegs(s trade.Swap, valuation time.Time, discount *curve.ZeroCurve, rates curve.IndexRates) (fixedPV, floatPV, annuity float64, err error) {
	for _, p := range annualSchedule(s.Start(), s.End()) {
		if !p.end.After(valuation) {
			continue
		}
		alpha := curve.YearFraction(p.start, p.end)
		df := discount.DiscountFactor(curve.YearFraction(valuation, p.end))

		fixedPV += s.Notional() * s.FixedRate() * alpha * df
		annuity += alpha * df

		fwd, ferr := forwardFor(rates, valuation, p)
		if ferr != nil {
			err = ferr
			return
		}
		floatPV += s.Notional() * fwd * alpha * df
	}
	return
}

// swapInputs resolves the curves a swap needs from the environment.
func swapInputs(sel CurveSelector, s trade.Swap, env *marketdata.Environment) (*curve.ZeroCurve, curve.IndexRates, *result.Failure) {
	discount, failure := result.As[*curve.ZeroCurve](env.Value(sel.DiscountCurveID(s.Currency())))
	if failure != nil {
		return nil, curve.IndexRates{}, failure
	}
	rates, failure := result.As[curve.IndexRates](env.Value(marketdata.IndexRatesID{Index: s.Index()}))
	if failure != nil {
		return nil, curve.IndexRates{}, failure
	}
	return discount, rates, nil
}

func swapRequirements(sel CurveSelector, s trade.Swap) marketdata.Requirements {
	var b marketdata.RequirementsBuilder
	return b.
		AddValue(sel.DiscountCurveID(s.Currency())).
		AddValue(marketdata.IndexRatesID{Index: s.Index()}).
		Build()
}

// SwapPVFunction computes a swap's present value by discounting both legs.
type SwapPVFunction struct {
	sel CurveSelector
}

func (f *SwapPVFunction) Requirements(t trade.Trade) (marketdata.Requirements, error) {
	return swapRequirements(f.sel, t.(trade.Swap)), nil
}

func (f *SwapPVFunction) Execute(t trade.Trade, env *marketdata.Environment) result.Result {
	s := t.(trade.Swap)
	discount, rates, failure := swapInputs(f.sel, s, env)
	if failure != nil {
		return result.FromFailure(*failure)
	}
	fixedPV, floatPV, _, err := swapLegs(s, env.ValuationDate(), discount, rates)
	if err != nil {
		return result.FailErr(result.MissingData, err)
	}
	pv := floatPV - fixedPV
	if !s.PayFixed() {
		pv = -pv
	}
	return result.Success(money.NewCurrencyAmount(s.Currency(), pv))
}

// SwapParRateFunction computes the fixed rate that prices the swap to zero.
type SwapParRateFunction struct {
	sel CurveSelector
}

func (f *SwapParRateFunction) Requirements(t trade.Trade) (marketdata.Requirements, error) {
	return swapRequirements(f.sel, t.(trade.Swap)), nil
}

func (f *SwapParRateFunction) Execute(t trade.Trade, env *marketdata.Environment) result.Result {
	s := t.(trade.Swap)
	discount, rates, failure := swapInputs(f.sel, s, env)
	if failure != nil {
		return result.FromFailure(*failure)
	}
	_, floatPV, annuity, err := swapLegs(s, env.ValuationDate(), discount, rates)
	if err != nil {
		return result.FailErr(result.MissingData, err)
	}
	if annuity == 0 {
		return result.Fail(result.InvalidInput, "swap %s has no remaining accrual periods", s.ID())
	}
	return result.Success(floatPV / (annuity * s.Notional()))
}

// SwapPV01Function computes the PV change for a one basis point parallel
// shift of the swap's curves.
type SwapPV01Function struct {
	sel CurveSelector
}

func (f *SwapPV01Function) Requirements(t trade.Trade) (marketdata.Requirements, error) {
	return swapRequirements(f.sel, t.(trade.Swap)), nil
}

func (f *SwapPV01Function) Execute(t trade.Trade, env *marketdata.Environment) result.Result {
	s := t.(trade.Swap)
	discount, rates, failure := swapInputs(f.sel, s, env)
	if failure != nil {
		return result.FromFailure(*failure)
	}
	valuation := env.ValuationDate()

	pv := func(disc *curve.ZeroCurve, ir curve.IndexRates) (float64, error) {
		fixedPV, floatPV, _, err := swapLegs(s, valuation, disc, ir)
		if err != nil {
			return 0, err
		}
		out := floatPV - fixedPV
		if !s.PayFixed() {
			out = -out
		}
		return out, nil
	}

	basePV, err := pv(discount, rates)
	if err != nil {
		return result.FailErr(result.MissingData, err)
	}
	bumpedRates := curve.IndexRates{
		Index:   rates.Index,
		Curve:   rates.Curve.ParallelShift(curve.BasisPoint),
		Fixings: rates.Fixings,
	}
	bumpedPV, err := pv(discount.ParallelShift(curve.BasisPoint), bumpedRates)
	if err != nil {
		return result.FailErr(result.MissingData, err)
	}
	return result.Success(money.NewCurrencyAmount(s.Currency(), bumpedPV-basePV))
}

// FRAPVFunction computes a forward rate agreement's discounted payoff.
type FRAPVFunction struct {
	sel CurveSelector
}

func fraRequirements(sel CurveSelector, f trade.FRA) marketdata.Requirements {
	var b marketdata.RequirementsBuilder
	return b.
		AddValue(sel.DiscountCurveID(f.Currency())).
		AddValue(marketdata.IndexRatesID{Index: f.Index()}).
		Build()
}

func (fn *FRAPVFunction) Requirements(t trade.Trade) (marketdata.Requirements, error) {
	return fraRequirements(fn.sel, t.(trade.FRA)), nil
}

func (fn *FRAPVFunction) Execute(t trade.Trade, env *marketdata.Environment) result.Result {
	f := t.(trade.FRA)
	discount, failure := result.As[*curve.ZeroCurve](env.Value(fn.sel.DiscountCurveID(f.Currency())))
	if failure != nil {
		return result.FromFailure(*failure)
	}
	rates, failure := result.As[curve.IndexRates](env.Value(marketdata.IndexRatesID{Index: f.Index()}))
	if failure != nil {
		return result.FromFailure(*failure)
	}

	valuation := env.ValuationDate()
	fwd, err := forwardFor(rates, valuation, period{start: f.Start(), end: f.End()})
	if err != nil {
		return result.FailErr(result.MissingData, err)
	}
	alpha := curve.YearFraction(f.Start(), f.End())
	df := discount.DiscountFactor(curve.YearFraction(valuation, f.End()))
	pv := f.Notional() * (fwd - f.Rate()) * alpha * df
	return result.Success(money.NewCurrencyAmount(f.Currency(), pv))
}

// FRAParRateFunction computes the FRA's fair forward rate.
type FRAParRateFunction struct {
	sel CurveSelector
}

func (fn *FRAParRateFunction) Requirements(t trade.Trade) (marketdata.Requirements, error) {
	return fraRequirements(fn.sel, t.(trade.FRA)), nil
}

func (fn *FRAParRateFunction) Execute(t trade.Trade, env *marketdata.Environment) result.Result {
	f := t.(trade.FRA)
	rates, failure := result.As[curve.IndexRates](env.Value(marketdata.IndexRatesID{Index: f.Index()}))
	if failure != nil {
		return result.FromFailure(*failure)
	}
	fwd, err := forwardFor(rates, env.ValuationDate(), period{start: f.Start(), end: f.End()})
	if err != nil {
		return result.FailErr(result.MissingData, err)
	}
	return result.Success(fwd)
}

// DepositPVFunction discounts a term deposit's repayment against the funding
// leg.
type DepositPVFunction struct {
	sel CurveSelector
}

func (fn *DepositPVFunction) Requirements(t trade.Trade) (marketdata.Requirements, error) {
	d := t.(trade.TermDeposit)
	var b marketdata.RequirementsBuilder
	return b.AddValue(fn.sel.DiscountCurveID(d.Currency())).Build(), nil
}

func (fn *DepositPVFunction) Execute(t trade.Trade, env *marketdata.Environment) result.Result {
	d := t.(trade.TermDeposit)
	discount, failure := result.As[*curve.ZeroCurve](env.Value(fn.sel.DiscountCurveID(d.Currency())))
	if failure != nil {
		return result.FromFailure(*failure)
	}
	valuation := env.ValuationDate()
	alpha := curve.YearFraction(d.Start(), d.End())
	repay := d.Notional() * (1 + d.Rate()*alpha) * discount.DiscountFactor(curve.YearFraction(valuation, d.End()))
	// A deposit that has already started is fully funded; only the repayment
	// leg remains.
	var funding float64
	if d.Start().After(valuation) {
		funding = d.Notional() * discount.DiscountFactor(curve.YearFraction(valuation, d.Start()))
	}
	return result.Success(money.NewCurrencyAmount(d.Currency(), repay-funding))
}
