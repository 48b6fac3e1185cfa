package snapshot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfabric/calcgrid/internal/marketdata"
)

const sample = `
valuation_date: 2026-08-28
quotes:
  - ticker: USD-1Y
    feed: bbg
    value: 0.031
  - ticker: USD-5Y
    feed: bbg
    value: 0.034
fixings:
  - index: SOFR
    feed: bbg
    points:
      - date: 2026-08-26
        value: 0.0305
      - date: 2026-08-27
        value: 0.0308
`

func TestParseBuildsEnvironment(t *testing.T) {
	snap, err := Parse([]byte(sample))
	require.NoError(t, err)

	env := snap.Environment()
	assert.Equal(t, time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC), env.ValuationDate())

	r := env.Value(marketdata.QuoteID{Ticker: "USD-1Y", Feed: "bbg"})
	require.True(t, r.IsSuccess())
	assert.Equal(t, 0.031, r.Value())

	ts := env.TimeSeries(marketdata.TimeSeriesID{Index: "SOFR", Feed: "bbg"})
	require.True(t, ts.IsSuccess())
	series := ts.Value().(marketdata.TimeSeries)
	latest, ok := series.Latest(time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, 0.0308, latest.Value)
}

func TestParseRejectsMissingValuationDate(t *testing.T) {
	_, err := Parse([]byte("quotes: []\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "valuation_date")
}

func TestParseRejectsDuplicateQuote(t *testing.T) {
	_, err := Parse([]byte(`
valuation_date: 2026-08-28
quotes:
  - {ticker: USD-1Y, feed: bbg, value: 0.03}
  - {ticker: USD-1Y, feed: bbg, value: 0.04}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate quote")
}

func TestParseRejectsBadDate(t *testing.T) {
	_, err := Parse([]byte(`
valuation_date: 2026-08-28
fixings:
  - index: SOFR
    feed: bbg
    points:
      - {date: not-a-date, value: 0.03}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse date")
}
