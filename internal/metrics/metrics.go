// Package metrics holds the Prometheus instrumentation for the calculation
// pipeline and the market data resolver. The Registry implements both
// observer interfaces so it can be handed to a Runner and a Resolver
// directly.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"

	"github.com/quantfabric/calcgrid/internal/engine"
	"github.com/quantfabric/calcgrid/internal/marketdata"
)

var (
	_ engine.Observer     = (*Registry)(nil)
	_ marketdata.Observer = (*Registry)(nil)
)

// Registry holds all calcgrid metrics on a private Prometheus registry.
type Registry struct {
	registry *prometheus.Registry

	// Pipeline stage metrics
	StageDuration *prometheus.HistogramVec
	Cells         *prometheus.CounterVec

	// Resolver metrics
	BuildsTotal    *prometheus.CounterVec
	DiscoveredIDs  prometheus.Histogram
	DiscoveryWaves prometheus.Histogram

	// Plan cache metrics
	PlanCacheHits   prometheus.Counter
	PlanCacheMisses prometheus.Counter
	PlanCacheRatio  prometheus.Gauge
}

// NewRegistry creates the metric set on a fresh Prometheus registry.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "calcgrid_stage_duration_seconds",
				Help:    "Duration of each calculation pipeline stage in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"stage"},
		),

		Cells: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calcgrid_cells_total",
				Help: "Total result cells computed by measure and outcome",
			},
			[]string{"measure", "outcome"},
		),

		BuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calcgrid_md_builds_total",
				Help: "Total market data builds by id type and outcome",
			},
			[]string{"id_type", "outcome"},
		),

		DiscoveredIDs: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "calcgrid_md_discovered_ids",
				Help:    "Number of market data ids discovered per resolve",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
			},
		),

		DiscoveryWaves: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "calcgrid_md_discovery_waves",
				Help:    "Number of build waves per resolve",
				Buckets: []float64{1, 2, 3, 4, 6, 8, 12, 16},
			},
		),

		PlanCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "calcgrid_plan_cache_hits_total",
				Help: "Total dependency plan cache hits",
			},
		),

		PlanCacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "calcgrid_plan_cache_misses_total",
				Help: "Total dependency plan cache misses",
			},
		),

		PlanCacheRatio: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "calcgrid_plan_cache_hit_ratio",
				Help: "Current plan cache hit ratio (0.0 to 1.0)",
			},
		),
	}

	r.registry.MustRegister(
		r.StageDuration,
		r.Cells,
		r.BuildsTotal,
		r.DiscoveredIDs,
		r.DiscoveryWaves,
		r.PlanCacheHits,
		r.PlanCacheMisses,
		r.PlanCacheRatio,
	)
	return r
}

// Handler exposes the registry for scraping.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Gatherer returns the underlying Prometheus gatherer.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.registry }

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// StageCompleted implements engine.Observer.
func (r *Registry) StageCompleted(stage string, seconds float64) {
	r.StageDuration.WithLabelValues(stage).Observe(seconds)
}

// CellCompleted implements engine.Observer.
func (r *Registry) CellCompleted(measure engine.Measure, success bool) {
	r.Cells.WithLabelValues(string(measure), outcome(success)).Inc()
}

// PlanCacheLookup implements marketdata.Observer.
func (r *Registry) PlanCacheLookup(hit bool) {
	if hit {
		r.PlanCacheHits.Inc()
	} else {
		r.PlanCacheMisses.Inc()
	}
	r.updatePlanCacheRatio()
}

// DiscoveryDone implements marketdata.Observer.
func (r *Registry) DiscoveryDone(ids, waves int) {
	r.DiscoveredIDs.Observe(float64(ids))
	r.DiscoveryWaves.Observe(float64(waves))
}

// BuildDone implements marketdata.Observer.
func (r *Registry) BuildDone(idType marketdata.Type, success bool) {
	r.BuildsTotal.WithLabelValues(string(idType), outcome(success)).Inc()
}

func (r *Registry) updatePlanCacheRatio() {
	var m dto.Metric
	var hits, misses float64
	if err := r.PlanCacheHits.Write(&m); err == nil {
		hits = m.GetCounter().GetValue()
	}
	if err := r.PlanCacheMisses.Write(&m); err == nil {
		misses = m.GetCounter().GetValue()
	}
	if total := hits + misses; total > 0 {
		r.PlanCacheRatio.Set(hits / total)
	}
}
