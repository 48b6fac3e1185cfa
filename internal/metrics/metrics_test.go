package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfabric/calcgrid/internal/engine"
	"github.com/quantfabric/calcgrid/internal/marketdata"
)

func TestCellOutcomesAreCountedByMeasure(t *testing.T) {
	r := NewRegistry()
	r.CellCompleted(engine.MeasurePresentValue, true)
	r.CellCompleted(engine.MeasurePresentValue, true)
	r.CellCompleted(engine.MeasurePresentValue, false)
	r.CellCompleted(engine.MeasureParRate, true)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.Cells.WithLabelValues("PresentValue", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Cells.WithLabelValues("PresentValue", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Cells.WithLabelValues("ParRate", "success")))
}

func TestPlanCacheRatioTracksLookups(t *testing.T) {
	r := NewRegistry()
	r.PlanCacheLookup(false)
	r.PlanCacheLookup(true)
	r.PlanCacheLookup(true)
	r.PlanCacheLookup(true)

	assert.Equal(t, 3.0, testutil.ToFloat64(r.PlanCacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.PlanCacheMisses))
	assert.InDelta(t, 0.75, testutil.ToFloat64(r.PlanCacheRatio), 1e-9)
}

func TestBuildOutcomesAreCountedByIDType(t *testing.T) {
	r := NewRegistry()
	r.BuildDone(marketdata.TypeCurve, true)
	r.BuildDone(marketdata.TypeCurve, false)
	r.BuildDone(marketdata.TypeQuote, true)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.BuildsTotal.WithLabelValues("curve", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.BuildsTotal.WithLabelValues("curve", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.BuildsTotal.WithLabelValues("quote", "success")))
}

func TestHandlerServesScrape(t *testing.T) {
	r := NewRegistry()
	r.StageCompleted("execute", 0.02)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "calcgrid_stage_duration_seconds")
}
