package marketdata

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/quantfabric/calcgrid/internal/money"
)

// Requirements is an immutable set of market data a calculation needs: value
// ids resolved as single objects, time-series ids resolved as historical
// series, and the output currencies results should be convertible into.
//
// Requirements combine by set union, which is idempotent, commutative and
// associative, so the engine-wide requirement set for a batch is a plain
// reduce over the tasks' individual requirements.
type Requirements struct {
	values     map[ID]struct{}
	timeSeries map[TimeSeriesID]struct{}
	currencies map[money.Currency]struct{}
}

// EmptyRequirements is the identity element for Merge.
func EmptyRequirements() Requirements {
	return Requirements{}
}

// RequirementsBuilder accumulates a Requirements value. The zero value is
// ready to use.
type RequirementsBuilder struct {
	req Requirements
}

func (b *RequirementsBuilder) ensure() {
	if b.req.values == nil {
		b.req.values = make(map[ID]struct{})
		b.req.timeSeries = make(map[TimeSeriesID]struct{})
		b.req.currencies = make(map[money.Currency]struct{})
	}
}

// AddValue requires id as a single resolved object.
func (b *RequirementsBuilder) AddValue(ids ...ID) *RequirementsBuilder {
	b.ensure()
	for _, id := range ids {
		b.req.values[id] = struct{}{}
	}
	return b
}

// AddTimeSeries requires a historical series for id.
func (b *RequirementsBuilder) AddTimeSeries(ids ...TimeSeriesID) *RequirementsBuilder {
	b.ensure()
	for _, id := range ids {
		b.req.timeSeries[id] = struct{}{}
	}
	return b
}

// AddOutputCurrency requires conversion support into the currency.
func (b *RequirementsBuilder) AddOutputCurrency(ccys ...money.Currency) *RequirementsBuilder {
	b.ensure()
	for _, c := range ccys {
		b.req.currencies[c] = struct{}{}
	}
	return b
}

// Build returns the accumulated immutable Requirements.
func (b *RequirementsBuilder) Build() Requirements {
	var out RequirementsBuilder
	out.ensure()
	for id := range b.req.values {
		out.req.values[id] = struct{}{}
	}
	for id := range b.req.timeSeries {
		out.req.timeSeries[id] = struct{}{}
	}
	for c := range b.req.currencies {
		out.req.currencies[c] = struct{}{}
	}
	return out.req
}

// Merge unions two requirement sets. It is total: it never fails, never
// duplicates and never drops ids or currencies.
func Merge(a, b Requirements) Requirements {
	if a.isEmpty() {
		return b
	}
	if b.isEmpty() {
		return a
	}
	var out RequirementsBuilder
	for _, r := range []Requirements{a, b} {
		for id := range r.values {
			out.AddValue(id)
		}
		for id := range r.timeSeries {
			out.AddTimeSeries(id)
		}
		for c := range r.currencies {
			out.AddOutputCurrency(c)
		}
	}
	return out.Build()
}

// MergeAll reduces many requirement sets into one.
func MergeAll(reqs ...Requirements) Requirements {
	out := EmptyRequirements()
	for _, r := range reqs {
		out = Merge(out, r)
	}
	return out
}

func (r Requirements) isEmpty() bool {
	return len(r.values) == 0 && len(r.timeSeries) == 0 && len(r.currencies) == 0
}

// HasValue reports whether the value id is required.
func (r Requirements) HasValue(id ID) bool {
	_, ok := r.values[id]
	return ok
}

// Values lists the required value ids, sorted by key for determinism.
func (r Requirements) Values() []ID {
	out := make([]ID, 0, len(r.values))
	for id := range r.values {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// TimeSeries lists the required time-series ids, sorted by key.
func (r Requirements) TimeSeries() []TimeSeriesID {
	out := make([]TimeSeriesID, 0, len(r.timeSeries))
	for id := range r.timeSeries {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// OutputCurrencies lists the requested output currencies, sorted.
func (r Requirements) OutputCurrencies() []money.Currency {
	out := make([]money.Currency, 0, len(r.currencies))
	for c := range r.currencies {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Equal reports structural equality of two requirement sets.
func (r Requirements) Equal(other Requirements) bool {
	if len(r.values) != len(other.values) ||
		len(r.timeSeries) != len(other.timeSeries) ||
		len(r.currencies) != len(other.currencies) {
		return false
	}
	for id := range r.values {
		if _, ok := other.values[id]; !ok {
			return false
		}
	}
	for id := range r.timeSeries {
		if _, ok := other.timeSeries[id]; !ok {
			return false
		}
	}
	for c := range r.currencies {
		if _, ok := other.currencies[c]; !ok {
			return false
		}
	}
	return true
}

// Hash is a stable digest of the requirement set, used as the cache key for
// discovered dependency plans.
func (r Requirements) Hash() string {
	h := sha256.New()
	for _, id := range r.Values() {
		h.Write([]byte(id.Key()))
		h.Write([]byte{0})
	}
	h.Write([]byte{1})
	for _, id := range r.TimeSeries() {
		h.Write([]byte(id.Key()))
		h.Write([]byte{0})
	}
	h.Write([]byte{1})
	for _, c := range r.OutputCurrencies() {
		h.Write([]byte(c))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
