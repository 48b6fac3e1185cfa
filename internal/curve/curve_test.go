package curve

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var valuation = time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)

func flatCurve(t *testing.T, rate float64) *ZeroCurve {
	t.Helper()
	c, err := NewZeroCurve("flat", valuation, []Point{
		{Years: 1, Zero: rate},
		{Years: 5, Zero: rate},
		{Years: 10, Zero: rate},
	})
	require.NoError(t, err)
	return c
}

func TestNewZeroCurveValidation(t *testing.T) {
	_, err := NewZeroCurve("empty", valuation, nil)
	assert.Error(t, err)

	_, err = NewZeroCurve("dup", valuation, []Point{{Years: 1, Zero: 0.02}, {Years: 1, Zero: 0.03}})
	assert.Error(t, err)

	_, err = NewZeroCurve("neg", valuation, []Point{{Years: -1, Zero: 0.02}})
	assert.Error(t, err)
}

func TestZeroRateInterpolation(t *testing.T) {
	c, err := NewZeroCurve("z", valuation, []Point{
		{Years: 1, Zero: 0.01},
		{Years: 3, Zero: 0.03},
	})
	require.NoError(t, err)

	assert.InDelta(t, 0.01, c.ZeroRate(0.5), 1e-12, "flat extrapolation below first pillar")
	assert.InDelta(t, 0.02, c.ZeroRate(2), 1e-12, "linear between pillars")
	assert.InDelta(t, 0.03, c.ZeroRate(7), 1e-12, "flat extrapolation beyond last pillar")
}

func TestDiscountFactor(t *testing.T) {
	c := flatCurve(t, 0.05)
	assert.Equal(t, 1.0, c.DiscountFactor(0))
	assert.InDelta(t, math.Exp(-0.05*2), c.DiscountFactor(2), 1e-12)
}

func TestForwardRateFlatCurve(t *testing.T) {
	c := flatCurve(t, 0.03)
	// On a flat continuously compounded curve the simple forward over one
	// year is exp(r)-1.
	fwd := c.ForwardRate(1, 2)
	assert.InDelta(t, math.Exp(0.03)-1, fwd, 1e-10)
	assert.Equal(t, 0.0, c.ForwardRate(2, 2))
}

func TestParallelShiftLeavesOriginal(t *testing.T) {
	c := flatCurve(t, 0.03)
	bumped := c.ParallelShift(BasisPoint)

	assert.InDelta(t, 0.0301, bumped.ZeroRate(5), 1e-12)
	assert.InDelta(t, 0.03, c.ZeroRate(5), 1e-12)
	assert.Equal(t, c.Name(), bumped.Name())
}

func TestBootstrapDepositNode(t *testing.T) {
	c, err := Bootstrap("boot", valuation, []Node{{TenorYears: 0.5, ParRate: 0.04}})
	require.NoError(t, err)

	wantDF := 1 / (1 + 0.04*0.5)
	assert.InDelta(t, wantDF, c.DiscountFactor(0.5), 1e-12)
}

func TestBootstrapParNodesReprice(t *testing.T) {
	nodes := []Node{
		{TenorYears: 1, ParRate: 0.020},
		{TenorYears: 2, ParRate: 0.025},
		{TenorYears: 3, ParRate: 0.028},
	}
	c, err := Bootstrap("boot", valuation, nodes)
	require.NoError(t, err)

	// Each node's par swap must reprice to 1 on the bootstrapped curve:
	// r * annuity + df(T) == 1.
	annuity := 0.0
	prev := 0.0
	for _, n := range nodes {
		annuity += (n.TenorYears - prev) * c.DiscountFactor(n.TenorYears)
		prev = n.TenorYears
		pv := n.ParRate*annuity + c.DiscountFactor(n.TenorYears)
		assert.InDelta(t, 1.0, pv, 1e-10, "tenor %.1f", n.TenorYears)
	}
}

func TestBootstrapRejectsBadInput(t *testing.T) {
	_, err := Bootstrap("bad", valuation, nil)
	assert.Error(t, err)

	_, err = Bootstrap("bad", valuation, []Node{
		{TenorYears: 2, ParRate: 0.02},
		{TenorYears: 2, ParRate: 0.03},
	})
	assert.Error(t, err)

	// A wildly negative rate pushes the discount factor out of range.
	_, err = Bootstrap("bad", valuation, []Node{{TenorYears: 0.5, ParRate: -3.0}})
	assert.Error(t, err)
}

func TestYearFraction(t *testing.T) {
	end := valuation.AddDate(0, 0, 365)
	assert.InDelta(t, 1.0, YearFraction(valuation, end), 1e-12)
	assert.InDelta(t, 0.5, YearFraction(valuation, valuation.AddDate(0, 0, 182).Add(12*time.Hour)), 1e-9)
}
