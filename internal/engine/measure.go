// Package engine implements the calculation engine: pricing-rule dispatch
// over function groups, per-cell task compilation, batch-wide requirement
// aggregation, staged execution against a resolved market-data environment,
// reporting-currency normalization, and assembly of the results grid.
package engine

// Measure is a named output quantity requested for a trade.
type Measure string

const (
	MeasurePresentValue Measure = "PresentValue"
	MeasureParRate      Measure = "ParRate"
	MeasurePV01         Measure = "PV01"
)

// Column defines one grid column: a measure, optionally under a display
// name. Column order defines grid column order.
type Column struct {
	Name    string  `json:"name,omitempty" yaml:"name,omitempty"`
	Measure Measure `json:"measure" yaml:"measure"`
}

// Header returns the display name, defaulting to the measure name.
func (c Column) Header() string {
	if c.Name != "" {
		return c.Name
	}
	return string(c.Measure)
}
