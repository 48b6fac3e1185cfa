package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/quantfabric/calcgrid/internal/engine"
	"github.com/quantfabric/calcgrid/internal/money"
	"github.com/quantfabric/calcgrid/internal/result"
	"github.com/quantfabric/calcgrid/internal/trade"
)

const dateLayout = "2006-01-02"

// TradeRequest is the wire form of one trade. Type selects which fields are
// read; dates are calendar days.
type TradeRequest struct {
	ID       string  `json:"id"`
	Type     string  `json:"type"`
	Currency string  `json:"currency"`
	Notional float64 `json:"notional"`
	Rate     float64 `json:"rate"`
	Index    string  `json:"index,omitempty"`
	Start    string  `json:"start"`
	End      string  `json:"end"`
	PayFixed bool    `json:"pay_fixed,omitempty"`
}

// CalculateRequest is the calculate endpoint's body.
type CalculateRequest struct {
	Trades  []TradeRequest  `json:"trades"`
	Columns []engine.Column `json:"columns"`
}

// Cell is the wire form of one result cell. Failures carry reason and
// message; successes carry the value.
type Cell struct {
	Status    string `json:"status"`
	Value     any    `json:"value,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Message   string `json:"message,omitempty"`
	Scenarios []Cell `json:"scenarios,omitempty"`
}

// Row is one trade's cells in column order.
type Row struct {
	TradeID string `json:"trade_id"`
	Cells   []Cell `json:"cells"`
}

// CalculateResponse is the full results grid.
type CalculateResponse struct {
	RunID   string          `json:"run_id"`
	Columns []engine.Column `json:"columns"`
	Rows    []Row           `json:"rows"`
}

func (tr TradeRequest) toTrade() (trade.Trade, error) {
	ccy, err := money.ParseCurrency(tr.Currency)
	if err != nil {
		return nil, fmt.Errorf("trade %s: %w", tr.ID, err)
	}
	start, err := time.Parse(dateLayout, tr.Start)
	if err != nil {
		return nil, fmt.Errorf("trade %s: bad start date %q", tr.ID, tr.Start)
	}
	end, err := time.Parse(dateLayout, tr.End)
	if err != nil {
		return nil, fmt.Errorf("trade %s: bad end date %q", tr.ID, tr.End)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("trade %s: end %s not after start %s", tr.ID, tr.End, tr.Start)
	}
	switch trade.Type(tr.Type) {
	case trade.TypeSwap:
		return trade.NewSwap(tr.ID, ccy, tr.Notional, tr.Rate, tr.Index, start, end, tr.PayFixed), nil
	case trade.TypeFRA:
		return trade.NewFRA(tr.ID, ccy, tr.Notional, tr.Rate, tr.Index, start, end), nil
	case trade.TypeTermDeposit:
		return trade.NewTermDeposit(tr.ID, ccy, tr.Notional, tr.Rate, start, end), nil
	default:
		return nil, fmt.Errorf("trade %s: unknown type %q", tr.ID, tr.Type)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCalculate prices the posted portfolio. Malformed requests are 400;
// pricing failures are data and come back inside the grid with status 200.
func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	var req CalculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if len(req.Trades) == 0 || len(req.Columns) == 0 {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("trades and columns are required"))
		return
	}
	trades := make([]trade.Trade, len(req.Trades))
	for i, tr := range req.Trades {
		t, err := tr.toTrade()
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		trades[i] = t
	}

	results, err := s.runner.Run(r.Context(), trades, req.Columns, s.source.Environment())
	if err != nil {
		s.logger.Error().Err(err).Msg("calculation run failed")
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toResponse(results))
}

func toResponse(results *engine.Results) CalculateResponse {
	resp := CalculateResponse{
		RunID:   results.RunID(),
		Columns: results.Columns(),
		Rows:    make([]Row, results.RowCount()),
	}
	for row := 0; row < results.RowCount(); row++ {
		cells := make([]Cell, results.ColumnCount())
		for col := 0; col < results.ColumnCount(); col++ {
			cells[col] = toCell(results.MustGet(row, col))
		}
		resp.Rows[row] = Row{TradeID: results.TradeID(row), Cells: cells}
	}
	return resp
}

func toCell(r result.Result) Cell {
	if r.IsFailure() {
		f := r.Failure()
		return Cell{Status: "failure", Reason: string(f.Reason), Message: f.Message}
	}
	switch v := r.Value().(type) {
	case engine.ScenarioValues:
		cells := make([]Cell, len(v))
		for i, entry := range v {
			cells[i] = toCell(entry)
		}
		return Cell{Status: "success", Scenarios: cells}
	case money.MultiCurrencyAmount:
		amounts := make(map[money.Currency]float64, v.Size())
		for _, ccy := range v.Currencies() {
			amount, _ := v.Amount(ccy)
			amounts[ccy] = amount
		}
		return Cell{Status: "success", Value: amounts}
	default:
		return Cell{Status: "success", Value: v}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error().Err(err).Msg("write response failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
