package config

import (
	"github.com/quantfabric/calcgrid/internal/curve"
	"github.com/quantfabric/calcgrid/internal/marketdata"
	"github.com/quantfabric/calcgrid/internal/result"
)

// Perturbation converts a scenario definition into an environment
// perturbation that parallel-shifts curve and index-rate values. Failed base
// values stay failed under every scenario.
func (s ScenarioConfig) Perturbation() marketdata.Perturbation {
	shift := s.ShiftBP * curve.BasisPoint
	inScope := func(name string) bool {
		if len(s.Curves) == 0 {
			return true
		}
		for _, c := range s.Curves {
			if c == name {
				return true
			}
		}
		return false
	}
	return marketdata.Perturbation{
		Name: s.Name,
		Apply: func(id marketdata.ID, r result.Result) (result.Result, bool) {
			if r.IsFailure() {
				return r, false
			}
			switch id := id.(type) {
			case marketdata.CurveID:
				if !inScope(id.Name) {
					return r, false
				}
				if c, ok := r.Value().(*curve.ZeroCurve); ok {
					return result.Success(c.ParallelShift(shift)), true
				}
			case marketdata.IndexRatesID:
				if rates, ok := r.Value().(curve.IndexRates); ok && rates.Curve != nil && inScope(rates.Curve.Name()) {
					shifted := rates
					shifted.Curve = rates.Curve.ParallelShift(shift)
					return result.Success(shifted), true
				}
			}
			return r, false
		},
	}
}

// Perturbations converts every configured scenario in declared order.
func (c Config) Perturbations() []marketdata.Perturbation {
	out := make([]marketdata.Perturbation, len(c.Scenarios))
	for i, s := range c.Scenarios {
		out[i] = s.Perturbation()
	}
	return out
}
