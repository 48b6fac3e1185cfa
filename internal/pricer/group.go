package pricer

import (
	"github.com/quantfabric/calcgrid/internal/engine"
	"github.com/quantfabric/calcgrid/internal/trade"
)

// StandardGroup is the discounting methodology: every supported measure for
// swaps, FRAs and term deposits priced off the selector's curve group.
func StandardGroup(sel CurveSelector) *engine.FunctionGroup {
	return engine.NewFunctionGroup("discounting", []engine.GroupEntry{
		{
			TradeType: trade.TypeSwap,
			Measure:   engine.MeasurePresentValue,
			Descriptor: engine.FunctionDescriptor{
				Name: "swap-pv",
				New:  func() engine.CalculationFunction { return &SwapPVFunction{sel: sel} },
			},
		},
		{
			TradeType: trade.TypeSwap,
			Measure:   engine.MeasureParRate,
			Descriptor: engine.FunctionDescriptor{
				Name: "swap-par-rate",
				New:  func() engine.CalculationFunction { return &SwapParRateFunction{sel: sel} },
			},
		},
		{
			TradeType: trade.TypeSwap,
			Measure:   engine.MeasurePV01,
			Descriptor: engine.FunctionDescriptor{
				Name: "swap-pv01",
				New:  func() engine.CalculationFunction { return &SwapPV01Function{sel: sel} },
			},
		},
		{
			TradeType: trade.TypeFRA,
			Measure:   engine.MeasurePresentValue,
			Descriptor: engine.FunctionDescriptor{
				Name: "fra-pv",
				New:  func() engine.CalculationFunction { return &FRAPVFunction{sel: sel} },
			},
		},
		{
			TradeType: trade.TypeFRA,
			Measure:   engine.MeasureParRate,
			Descriptor: engine.FunctionDescriptor{
				Name: "fra-par-rate",
				New:  func() engine.CalculationFunction { return &FRAParRateFunction{sel: sel} },
			},
		},
		{
			TradeType: trade.TypeTermDeposit,
			Measure:   engine.MeasurePresentValue,
			Descriptor: engine.FunctionDescriptor{
				Name: "deposit-pv",
				New:  func() engine.CalculationFunction { return &DepositPVFunction{sel: sel} },
			},
		},
	})
}

// ParRateGroup is a narrow methodology exposing only rate measures. Placed
// before the standard group it claims ParRate cells while PV cells fall
// through to the broader rule.
func ParRateGroup(sel CurveSelector) *engine.FunctionGroup {
	return engine.NewFunctionGroup("par-curve", []engine.GroupEntry{
		{
			TradeType: trade.TypeSwap,
			Measure:   engine.MeasureParRate,
			Descriptor: engine.FunctionDescriptor{
				Name: "swap-par-rate",
				New:  func() engine.CalculationFunction { return &SwapParRateFunction{sel: sel} },
			},
		},
		{
			TradeType: trade.TypeFRA,
			Measure:   engine.MeasureParRate,
			Descriptor: engine.FunctionDescriptor{
				Name: "fra-par-rate",
				New:  func() engine.CalculationFunction { return &FRAParRateFunction{sel: sel} },
			},
		},
	})
}

// StandardRules routes every trade type to the standard discounting group.
func StandardRules(sel CurveSelector) engine.PricingRules {
	return engine.NewPricingRules(engine.PricingRule{
		Name:    "standard",
		Matches: engine.MatchAll,
		Group:   StandardGroup(sel),
	})
}
