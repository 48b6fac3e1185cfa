package engine

import (
	"fmt"

	"github.com/quantfabric/calcgrid/internal/result"
)

// ScenarioValues is a cell value under scenario fan-out: one Result per
// scenario, in declared scenario order. Individual entries may be failures
// while siblings succeed.
type ScenarioValues []result.Result

// Results is the final immutable grid: rows are trades, columns the
// requested measures. Every (row, column) coordinate holds exactly one
// Result; failures are data, so the grid always has full shape.
type Results struct {
	runID   string
	tradeID []string
	columns []Column
	cells   [][]result.Result
}

// NewResults assembles a grid from its parts, validating the shape. Runner
// builds grids directly; this is for reloading persisted runs and for tests.
func NewResults(runID string, tradeIDs []string, columns []Column, cells [][]result.Result) (*Results, error) {
	if len(cells) != len(tradeIDs) {
		return nil, fmt.Errorf("results: %d rows for %d trades", len(cells), len(tradeIDs))
	}
	for i, row := range cells {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("results: row %d has %d cells for %d columns", i, len(row), len(columns))
		}
	}
	ids := make([]string, len(tradeIDs))
	copy(ids, tradeIDs)
	cols := make([]Column, len(columns))
	copy(cols, columns)
	return &Results{runID: runID, tradeID: ids, columns: cols, cells: cells}, nil
}

// RunID identifies the engine run that produced this grid.
func (r *Results) RunID() string { return r.runID }

// RowCount reports the number of trade rows.
func (r *Results) RowCount() int { return len(r.cells) }

// ColumnCount reports the number of measure columns.
func (r *Results) ColumnCount() int { return len(r.columns) }

// Columns returns a copy of the column definitions in grid order.
func (r *Results) Columns() []Column {
	cp := make([]Column, len(r.columns))
	copy(cp, r.columns)
	return cp
}

// TradeID returns the trade identifier for a row.
func (r *Results) TradeID(row int) string { return r.tradeID[row] }

// Get returns the Result at a coordinate.
func (r *Results) Get(row, col int) (result.Result, error) {
	if row < 0 || row >= len(r.cells) || col < 0 || col >= len(r.columns) {
		return result.Result{}, fmt.Errorf("cell (%d,%d) outside %dx%d grid", row, col, len(r.cells), len(r.columns))
	}
	return r.cells[row][col], nil
}

// MustGet is Get for tests and rendering where bounds are known.
func (r *Results) MustGet(row, col int) result.Result {
	res, err := r.Get(row, col)
	if err != nil {
		panic(err)
	}
	return res
}
