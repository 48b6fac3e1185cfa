package engine

import (
	"sort"

	"github.com/quantfabric/calcgrid/internal/marketdata"
	"github.com/quantfabric/calcgrid/internal/result"
	"github.com/quantfabric/calcgrid/internal/trade"
)

// CalculationFunction computes one measure for one trade. Implementations
// declare the market data they need up front and never fetch inside Execute;
// that keeps the pipeline stage-synchronous and safely parallel.
type CalculationFunction interface {
	// Requirements declares the market data needed to price the trade.
	Requirements(t trade.Trade) (marketdata.Requirements, error)
	// Execute prices the trade against a resolved read-only environment.
	Execute(t trade.Trade, env *marketdata.Environment) result.Result
}

// FunctionDescriptor is a constructable calculation function plus its static
// applicability: Applies narrows support to trade instances (nil means all),
// New constructs a fresh function.
type FunctionDescriptor struct {
	Name    string
	Applies func(trade.Trade) bool
	New     func() CalculationFunction
}

// GroupEntry binds one (trade type, measure) pair to a descriptor.
type GroupEntry struct {
	TradeType  trade.Type
	Measure    Measure
	Descriptor FunctionDescriptor
}

type groupKey struct {
	tradeType trade.Type
	measure   Measure
}

// FunctionGroup is an immutable named mapping from (trade type, measure) to
// function descriptors, representing one pricing methodology. Groups are
// configuration: built once and shared across unlimited concurrent runs.
type FunctionGroup struct {
	name    string
	entries map[groupKey]FunctionDescriptor
}

// NewFunctionGroup builds a group from entries; later duplicates win.
func NewFunctionGroup(name string, entries []GroupEntry) *FunctionGroup {
	m := make(map[groupKey]FunctionDescriptor, len(entries))
	for _, e := range entries {
		m[groupKey{tradeType: e.TradeType, measure: e.Measure}] = e.Descriptor
	}
	return &FunctionGroup{name: name, entries: m}
}

// Name returns the group's name.
func (g *FunctionGroup) Name() string { return g.name }

// Supports reports whether the group maps the (trade type, measure) pair.
func (g *FunctionGroup) Supports(tt trade.Type, m Measure) bool {
	_, ok := g.entries[groupKey{tradeType: tt, measure: m}]
	return ok
}

// Function constructs the calculation function for a trade instance and
// measure. It reports false when the pair is unmapped or the descriptor does
// not apply to this particular instance.
func (g *FunctionGroup) Function(t trade.Trade, m Measure) (CalculationFunction, bool) {
	d, ok := g.entries[groupKey{tradeType: t.Type(), measure: m}]
	if !ok {
		return nil, false
	}
	if d.Applies != nil && !d.Applies(t) {
		return nil, false
	}
	return d.New(), true
}

// ConfiguredMeasures lists every measure the group can compute for the given
// trade instance, sorted for determinism. The set can differ by instance
// when descriptors carry Applies conditions.
func (g *FunctionGroup) ConfiguredMeasures(t trade.Trade) []Measure {
	var out []Measure
	for key, d := range g.entries {
		if key.tradeType != t.Type() {
			continue
		}
		if d.Applies != nil && !d.Applies(t) {
			continue
		}
		out = append(out, key.measure)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
