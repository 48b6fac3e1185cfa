// Package curve provides the zero-curve value type the market-data layer
// builds and the pricing functions consume. Curves carry continuously
// compounded zero rates on an ACT/365F time axis with linear interpolation
// between pillars, bootstrapped from par quotes on the pillar grid.
package curve

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Basis points per unit rate.
const BasisPoint = 1e-4

// Point is one curve pillar: a tenor in years and its zero rate.
type Point struct {
	Years float64
	Zero  float64
}

// ZeroCurve is an immutable zero-rate curve for one valuation date.
type ZeroCurve struct {
	name      string
	valuation time.Time
	points    []Point
}

// NewZeroCurve validates and constructs a curve. Pillars must be strictly
// increasing positive tenors.
func NewZeroCurve(name string, valuation time.Time, points []Point) (*ZeroCurve, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("curve %s: no pillars", name)
	}
	cp := make([]Point, len(points))
	copy(cp, points)
	sort.Slice(cp, func(i, j int) bool { return cp[i].Years < cp[j].Years })
	prev := 0.0
	for _, p := range cp {
		if p.Years <= prev {
			return nil, fmt.Errorf("curve %s: non-increasing pillar tenor %.4f", name, p.Years)
		}
		prev = p.Years
	}
	return &ZeroCurve{name: name, valuation: valuation, points: cp}, nil
}

// Name returns the curve name.
func (c *ZeroCurve) Name() string { return c.name }

// Valuation returns the curve's valuation date.
func (c *ZeroCurve) Valuation() time.Time { return c.valuation }

// Points returns a copy of the pillars.
func (c *ZeroCurve) Points() []Point {
	cp := make([]Point, len(c.points))
	copy(cp, c.points)
	return cp
}

// ZeroRate returns the interpolated zero rate at t years. Beyond the first
// or last pillar the rate extrapolates flat.
func (c *ZeroCurve) ZeroRate(t float64) float64 {
	pts := c.points
	if t <= pts[0].Years {
		return pts[0].Zero
	}
	last := pts[len(pts)-1]
	if t >= last.Years {
		return last.Zero
	}
	i := sort.Search(len(pts), func(i int) bool { return pts[i].Years >= t })
	lo, hi := pts[i-1], pts[i]
	w := (t - lo.Years) / (hi.Years - lo.Years)
	return lo.Zero + w*(hi.Zero-lo.Zero)
}

// DiscountFactor returns exp(-z(t)*t) for t years from valuation.
func (c *ZeroCurve) DiscountFactor(t float64) float64 {
	if t <= 0 {
		return 1
	}
	return math.Exp(-c.ZeroRate(t) * t)
}

// ForwardRate returns the simple forward rate between t1 and t2 years.
func (c *ZeroCurve) ForwardRate(t1, t2 float64) float64 {
	if t2 <= t1 {
		return 0
	}
	df1 := c.DiscountFactor(t1)
	df2 := c.DiscountFactor(t2)
	return (df1/df2 - 1) / (t2 - t1)
}

// ParallelShift returns a new curve with every zero rate bumped by the given
// amount (e.g. BasisPoint for a one basis point shift). The receiver is not
// modified.
func (c *ZeroCurve) ParallelShift(shift float64) *ZeroCurve {
	pts := make([]Point, len(c.points))
	for i, p := range c.points {
		pts[i] = Point{Years: p.Years, Zero: p.Zero + shift}
	}
	return &ZeroCurve{name: c.name, valuation: c.valuation, points: pts}
}

// Node is one bootstrap input: a par rate quoted at a tenor.
type Node struct {
	TenorYears float64
	ParRate    float64
}

// Bootstrap builds a zero curve from par quotes on the node grid.
//
// Tenors at or below one year are treated as money-market deposits:
// df = 1/(1+r*t). Longer tenors use the classic par bootstrap with coupon
// payments on the node grid: df_n solves
//
//	1 = r_n * sum(alpha_i * df_i, i<=n) + df_n
//
// where alpha_i is the year fraction between consecutive nodes.
func Bootstrap(name string, valuation time.Time, nodes []Node) (*ZeroCurve, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("curve %s: no nodes", name)
	}
	sorted := make([]Node, len(nodes))
	copy(sorted, nodes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].TenorYears < sorted[j].TenorYears })

	points := make([]Point, 0, len(sorted))
	prevTenor := 0.0
	annuity := 0.0 // running sum of alpha_i * df_i over earlier nodes
	for _, n := range sorted {
		if n.TenorYears <= prevTenor {
			return nil, fmt.Errorf("curve %s: duplicate or non-increasing tenor %.4f", name, n.TenorYears)
		}
		alpha := n.TenorYears - prevTenor
		var df float64
		if n.TenorYears <= 1 {
			df = 1 / (1 + n.ParRate*n.TenorYears)
		} else {
			df = (1 - n.ParRate*annuity) / (1 + n.ParRate*alpha)
		}
		if df <= 0 || df > 1.5 {
			return nil, fmt.Errorf("curve %s: bootstrap produced discount factor %.6f at %.2fy", name, df, n.TenorYears)
		}
		points = append(points, Point{Years: n.TenorYears, Zero: -math.Log(df) / n.TenorYears})
		annuity += alpha * df
		prevTenor = n.TenorYears
	}
	return NewZeroCurve(name, valuation, points)
}

// YearFraction returns the ACT/365F year fraction between two dates, the
// same basis as the curve time axis.
func YearFraction(start, end time.Time) float64 {
	return end.Sub(start).Hours() / 24 / 365
}
