// Package snapshot loads market data snapshots from YAML files: raw quote
// values and index fixing histories keyed the same way the resolver keys its
// requirements. A snapshot is the supplied layer of a run's base environment.
package snapshot

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quantfabric/calcgrid/internal/marketdata"
)

const dateLayout = "2006-01-02"

// Date is a yaml-friendly calendar date.
type Date struct {
	time.Time
}

func (d *Date) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.Parse(dateLayout, s)
	if err != nil {
		return fmt.Errorf("parse date %q: %w", s, err)
	}
	d.Time = parsed
	return nil
}

func (d Date) MarshalYAML() (any, error) {
	return d.Format(dateLayout), nil
}

// Quote is one observed market quote.
type Quote struct {
	Ticker string  `yaml:"ticker"`
	Feed   string  `yaml:"feed"`
	Value  float64 `yaml:"value"`
}

// FixingPoint is one dated index fixing.
type FixingPoint struct {
	Date  Date    `yaml:"date"`
	Value float64 `yaml:"value"`
}

// FixingSeries is the fixing history for one index on one feed.
type FixingSeries struct {
	Index  string        `yaml:"index"`
	Feed   string        `yaml:"feed"`
	Points []FixingPoint `yaml:"points"`
}

// Snapshot is a full market data snapshot for one valuation date.
type Snapshot struct {
	ValuationDate Date           `yaml:"valuation_date"`
	Quotes        []Quote        `yaml:"quotes"`
	Fixings       []FixingSeries `yaml:"fixings"`
}

// Load reads and validates a snapshot file.
func Load(path string) (*Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return Parse(raw)
}

// Parse decodes and validates snapshot YAML.
func Parse(raw []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := yaml.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Validate checks the snapshot for structural problems.
func (s *Snapshot) Validate() error {
	if s.ValuationDate.IsZero() {
		return fmt.Errorf("snapshot: valuation_date is required")
	}
	seen := make(map[marketdata.QuoteID]struct{}, len(s.Quotes))
	for _, q := range s.Quotes {
		if q.Ticker == "" || q.Feed == "" {
			return fmt.Errorf("snapshot: quote with empty ticker or feed")
		}
		id := marketdata.QuoteID{Ticker: q.Ticker, Feed: q.Feed}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("snapshot: duplicate quote %s", id.Key())
		}
		seen[id] = struct{}{}
	}
	for _, f := range s.Fixings {
		if f.Index == "" || f.Feed == "" {
			return fmt.Errorf("snapshot: fixing series with empty index or feed")
		}
	}
	return nil
}

// Environment builds the base environment the snapshot supplies.
func (s *Snapshot) Environment() *marketdata.Environment {
	values := make(map[marketdata.ID]any, len(s.Quotes))
	for _, q := range s.Quotes {
		values[marketdata.QuoteID{Ticker: q.Ticker, Feed: q.Feed}] = q.Value
	}
	series := make(map[marketdata.TimeSeriesID]marketdata.TimeSeries, len(s.Fixings))
	for _, f := range s.Fixings {
		points := make([]marketdata.TimeSeriesPoint, len(f.Points))
		for i, p := range f.Points {
			points[i] = marketdata.TimeSeriesPoint{Date: p.Date.Time, Value: p.Value}
		}
		series[marketdata.TimeSeriesID{Index: f.Index, Feed: f.Feed}] = marketdata.NewTimeSeries(points...)
	}
	return marketdata.BaseEnvironment(s.ValuationDate.Time, values, series)
}
