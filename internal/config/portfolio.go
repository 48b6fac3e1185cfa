package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quantfabric/calcgrid/internal/money"
	"github.com/quantfabric/calcgrid/internal/trade"
)

const dateLayout = "2006-01-02"

// TradeDef is the yaml form of one trade. Type selects which fields apply.
type TradeDef struct {
	ID       string  `yaml:"id"`
	Type     string  `yaml:"type"`
	Currency string  `yaml:"currency"`
	Notional float64 `yaml:"notional"`
	Rate     float64 `yaml:"rate"`
	Index    string  `yaml:"index,omitempty"`
	Start    string  `yaml:"start"`
	End      string  `yaml:"end"`
	PayFixed bool    `yaml:"pay_fixed,omitempty"`
}

// Portfolio is a yaml trade list.
type Portfolio struct {
	Trades []TradeDef `yaml:"trades"`
}

// LoadPortfolio reads and converts a portfolio file.
func LoadPortfolio(path string) ([]trade.Trade, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read portfolio: %w", err)
	}
	return ParsePortfolio(raw)
}

// ParsePortfolio decodes portfolio YAML into trades.
func ParsePortfolio(raw []byte) ([]trade.Trade, error) {
	var p Portfolio
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parse portfolio: %w", err)
	}
	if len(p.Trades) == 0 {
		return nil, fmt.Errorf("portfolio: no trades")
	}
	out := make([]trade.Trade, len(p.Trades))
	seen := make(map[string]struct{}, len(p.Trades))
	for i, def := range p.Trades {
		t, err := def.ToTrade()
		if err != nil {
			return nil, err
		}
		if _, dup := seen[t.ID()]; dup {
			return nil, fmt.Errorf("portfolio: duplicate trade id %q", t.ID())
		}
		seen[t.ID()] = struct{}{}
		out[i] = t
	}
	return out, nil
}

// ToTrade converts one definition, validating dates and currency.
func (d TradeDef) ToTrade() (trade.Trade, error) {
	if d.ID == "" {
		return nil, fmt.Errorf("portfolio: trade without an id")
	}
	ccy, err := money.ParseCurrency(d.Currency)
	if err != nil {
		return nil, fmt.Errorf("trade %s: %w", d.ID, err)
	}
	start, err := time.Parse(dateLayout, d.Start)
	if err != nil {
		return nil, fmt.Errorf("trade %s: bad start date %q", d.ID, d.Start)
	}
	end, err := time.Parse(dateLayout, d.End)
	if err != nil {
		return nil, fmt.Errorf("trade %s: bad end date %q", d.ID, d.End)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("trade %s: end %s not after start %s", d.ID, d.End, d.Start)
	}
	switch trade.Type(d.Type) {
	case trade.TypeSwap:
		return trade.NewSwap(d.ID, ccy, d.Notional, d.Rate, d.Index, start, end, d.PayFixed), nil
	case trade.TypeFRA:
		return trade.NewFRA(d.ID, ccy, d.Notional, d.Rate, d.Index, start, end), nil
	case trade.TypeTermDeposit:
		return trade.NewTermDeposit(d.ID, ccy, d.Notional, d.Rate, start, end), nil
	default:
		return nil, fmt.Errorf("trade %s: unknown type %q", d.ID, d.Type)
	}
}
