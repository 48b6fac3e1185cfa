package curve

import (
	"github.com/quantfabric/calcgrid/internal/marketdata"
	"github.com/quantfabric/calcgrid/internal/money"
)

// Group is a named set of curves built together, the value stored under a
// CurveGroupID. Immutable once constructed.
type Group struct {
	name   string
	curves map[marketdata.CurveID]*ZeroCurve
}

// NewGroup constructs a group; the map is copied.
func NewGroup(name string, curves map[marketdata.CurveID]*ZeroCurve) *Group {
	cp := make(map[marketdata.CurveID]*ZeroCurve, len(curves))
	for id, c := range curves {
		cp[id] = c
	}
	return &Group{name: name, curves: cp}
}

// Name returns the group name.
func (g *Group) Name() string { return g.name }

// Curve returns the member curve for an id.
func (g *Group) Curve(id marketdata.CurveID) (*ZeroCurve, bool) {
	c, ok := g.curves[id]
	return c, ok
}

// DiscountCurve returns the group's discount curve for a currency, found by
// member id currency.
func (g *Group) DiscountCurve(ccy money.Currency) (*ZeroCurve, bool) {
	for id, c := range g.curves {
		if id.Currency == ccy {
			return c, true
		}
	}
	return nil, false
}

// Size reports the number of member curves.
func (g *Group) Size() int { return len(g.curves) }

// IndexRates pairs a floating index's projection curve with its historical
// fixings, the value stored under an IndexRatesID.
type IndexRates struct {
	Index   string
	Curve   *ZeroCurve
	Fixings marketdata.TimeSeries
}
