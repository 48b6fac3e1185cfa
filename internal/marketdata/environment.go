package marketdata

import (
	"time"

	"github.com/quantfabric/calcgrid/internal/result"
)

// Environment is an immutable market-data snapshot for one valuation date:
// every id maps to a Result, success or failure. Once built it is treated as
// read-only and may be shared freely across concurrent cell executions.
// Perturbed scenario environments are new copies layered over a base, never
// in-place edits.
type Environment struct {
	valuationDate time.Time
	scenario      string
	values        map[ID]result.Result
	timeSeries    map[TimeSeriesID]result.Result
}

// NewEnvironment builds a snapshot from resolved values and series. The maps
// are copied; nil maps are allowed.
func NewEnvironment(valuationDate time.Time, values map[ID]result.Result, timeSeries map[TimeSeriesID]result.Result) *Environment {
	env := &Environment{
		valuationDate: valuationDate,
		values:        make(map[ID]result.Result, len(values)),
		timeSeries:    make(map[TimeSeriesID]result.Result, len(timeSeries)),
	}
	for id, r := range values {
		env.values[id] = r
	}
	for id, r := range timeSeries {
		env.timeSeries[id] = r
	}
	return env
}

// BaseEnvironment builds a snapshot from plain supplied values, wrapping each
// in a success Result. Used for the externally supplied raw snapshot.
func BaseEnvironment(valuationDate time.Time, values map[ID]any, timeSeries map[TimeSeriesID]TimeSeries) *Environment {
	env := &Environment{
		valuationDate: valuationDate,
		values:        make(map[ID]result.Result, len(values)),
		timeSeries:    make(map[TimeSeriesID]result.Result, len(timeSeries)),
	}
	for id, v := range values {
		env.values[id] = result.Success(v)
	}
	for id, ts := range timeSeries {
		env.timeSeries[id] = result.Success(ts)
	}
	return env
}

// ValuationDate returns the snapshot's valuation date.
func (e *Environment) ValuationDate() time.Time { return e.valuationDate }

// ScenarioName returns the perturbation name, or "" for a base environment.
func (e *Environment) ScenarioName() string { return e.scenario }

// Value returns the Result for a value id. An id absent from the snapshot is
// a MissingData failure, not a nil.
func (e *Environment) Value(id ID) result.Result {
	if r, ok := e.values[id]; ok {
		return r
	}
	return result.Fail(result.MissingData, "no market data for %s", id.Key())
}

// TimeSeries returns the Result for a time-series id. An absent series is a
// MissingData failure rather than an empty series.
func (e *Environment) TimeSeries(id TimeSeriesID) result.Result {
	if r, ok := e.timeSeries[id]; ok {
		return r
	}
	return result.Fail(result.MissingData, "no time series for %s", id.Key())
}

// Has reports whether the snapshot holds any Result for the value id.
func (e *Environment) Has(id ID) bool {
	_, ok := e.values[id]
	return ok
}

// HasTimeSeries reports whether the snapshot holds a Result for the series.
func (e *Environment) HasTimeSeries(id TimeSeriesID) bool {
	_, ok := e.timeSeries[id]
	return ok
}

// ValueIDs lists every value id present in the snapshot.
func (e *Environment) ValueIDs() []ID {
	out := make([]ID, 0, len(e.values))
	for id := range e.values {
		out = append(out, id)
	}
	return out
}

// With returns a new environment layered over e with extra value results.
// The receiver is not modified.
func (e *Environment) With(extra map[ID]result.Result) *Environment {
	out := &Environment{
		valuationDate: e.valuationDate,
		scenario:      e.scenario,
		values:        make(map[ID]result.Result, len(e.values)+len(extra)),
		timeSeries:    e.timeSeries,
	}
	for id, r := range e.values {
		out.values[id] = r
	}
	for id, r := range extra {
		out.values[id] = r
	}
	return out
}

// Perturbation transforms selected values of a base environment into scenario
// values. Apply returns the replacement Result and true when the id is in
// scope; out-of-scope ids keep their base Result.
type Perturbation struct {
	Name  string
	Apply func(id ID, r result.Result) (result.Result, bool)
}

// Perturb returns a new scenario environment with the perturbation applied to
// every value in scope. The base environment is not modified.
func (e *Environment) Perturb(p Perturbation) *Environment {
	out := &Environment{
		valuationDate: e.valuationDate,
		scenario:      p.Name,
		values:        make(map[ID]result.Result, len(e.values)),
		timeSeries:    e.timeSeries,
	}
	for id, r := range e.values {
		if p.Apply != nil {
			if replaced, ok := p.Apply(id, r); ok {
				out.values[id] = replaced
				continue
			}
		}
		out.values[id] = r
	}
	return out
}
