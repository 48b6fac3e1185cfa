package marketdata

import (
	"sort"
	"time"
)

// TimeSeries is an immutable date-ordered series of observations, used for
// historical index fixings. Construct through NewTimeSeries; the points are
// copied and sorted by date.
type TimeSeries struct {
	points []TimeSeriesPoint
}

// TimeSeriesPoint is a single dated observation.
type TimeSeriesPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// NewTimeSeries builds a series from points, copying and sorting them.
func NewTimeSeries(points ...TimeSeriesPoint) TimeSeries {
	cp := make([]TimeSeriesPoint, len(points))
	copy(cp, points)
	sort.Slice(cp, func(i, j int) bool { return cp[i].Date.Before(cp[j].Date) })
	return TimeSeries{points: cp}
}

// Empty reports whether the series has no observations.
func (ts TimeSeries) Empty() bool { return len(ts.points) == 0 }

// Size reports the number of observations.
func (ts TimeSeries) Size() int { return len(ts.points) }

// Get returns the observation on the exact date.
func (ts TimeSeries) Get(date time.Time) (float64, bool) {
	for _, p := range ts.points {
		if p.Date.Equal(date) {
			return p.Value, true
		}
	}
	return 0, false
}

// Latest returns the most recent observation on or before the date.
func (ts TimeSeries) Latest(onOrBefore time.Time) (TimeSeriesPoint, bool) {
	for i := len(ts.points) - 1; i >= 0; i-- {
		if !ts.points[i].Date.After(onOrBefore) {
			return ts.points[i], true
		}
	}
	return TimeSeriesPoint{}, false
}

// Points returns a copy of the ordered observations.
func (ts TimeSeries) Points() []TimeSeriesPoint {
	cp := make([]TimeSeriesPoint, len(ts.points))
	copy(cp, ts.points)
	return cp
}
