package engine

import (
	"github.com/quantfabric/calcgrid/internal/marketdata"
	"github.com/quantfabric/calcgrid/internal/money"
	"github.com/quantfabric/calcgrid/internal/result"
	"github.com/quantfabric/calcgrid/internal/trade"
)

// Task is one (trade row, column) cell: it owns the dispatched function
// instance, produces the cell's market-data requirements, and later its
// Result against a resolved environment. Tasks are created per run and
// discarded with it.
type Task struct {
	Row, Col     int
	Trade        trade.Trade
	Column       Column
	fn           CalculationFunction
	reportingCcy money.Currency
}

// NewTask wraps a dispatched function as a grid cell.
func NewTask(row, col int, t trade.Trade, column Column, fn CalculationFunction, reportingCcy money.Currency) *Task {
	return &Task{Row: row, Col: col, Trade: t, Column: column, fn: fn, reportingCcy: reportingCcy}
}

// Requirements returns the function's declared requirements plus the FX
// rates implied by the reporting-currency policy.
func (t *Task) Requirements() (marketdata.Requirements, error) {
	req, err := t.fn.Requirements(t.Trade)
	if err != nil {
		return marketdata.EmptyRequirements(), err
	}

	var b marketdata.RequirementsBuilder
	b.AddOutputCurrency(t.reportingCcy)
	for _, ccy := range t.Trade.Currencies() {
		if ccy != t.reportingCcy {
			b.AddValue(marketdata.FxRateID{Base: ccy, Counter: t.reportingCcy})
		}
	}
	return marketdata.Merge(req, b.Build()), nil
}

// Execute runs the cell's function against the environment and normalizes
// currency amounts into the reporting currency. A panic inside the function
// is caught here and becomes a CalculationFailed cell; it never aborts
// sibling tasks.
func (t *Task) Execute(env *marketdata.Environment) (res result.Result) {
	defer func() {
		if rec := recover(); rec != nil {
			res = result.Fail(result.CalculationFailed, "%s/%s: %v", t.Trade.ID(), t.Column.Measure, rec)
		}
	}()

	raw := t.fn.Execute(t.Trade, env)
	return t.normalize(raw, env)
}

// normalize converts currency-bearing values into the reporting currency.
// Non-monetary values (rates, sensitivities quoted as plain numbers) pass
// through unchanged. A missing FX rate is a failure for the cell, never a
// silent pass-through of unconverted amounts.
func (t *Task) normalize(raw result.Result, env *marketdata.Environment) result.Result {
	if raw.IsFailure() {
		return raw
	}
	switch v := raw.Value().(type) {
	case money.CurrencyAmount:
		return t.convert(env, v)
	case money.MultiCurrencyAmount:
		total := money.NewCurrencyAmount(t.reportingCcy, 0)
		for _, ccy := range v.Currencies() {
			amount, _ := v.Amount(ccy)
			part := t.convert(env, money.NewCurrencyAmount(ccy, amount))
			if part.IsFailure() {
				return part
			}
			total.Amount += part.Value().(money.CurrencyAmount).Amount
		}
		return result.Success(total)
	default:
		return raw
	}
}

func (t *Task) convert(env *marketdata.Environment, a money.CurrencyAmount) result.Result {
	if a.Currency == t.reportingCcy {
		return result.Success(a)
	}
	rate, failure := result.As[money.FxRate](env.Value(marketdata.FxRateID{Base: a.Currency, Counter: t.reportingCcy}))
	if failure != nil {
		return result.Fail(result.MissingData, "%s/%s: no fx rate %s/%s (%s)",
			t.Trade.ID(), t.Column.Measure, a.Currency, t.reportingCcy, failure.Message)
	}
	converted, err := rate.Convert(a, t.reportingCcy)
	if err != nil {
		return result.FailErr(result.InvalidInput, err)
	}
	return result.Success(converted)
}
