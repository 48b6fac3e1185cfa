// Package feed fetches market quotes over HTTP from external quote services.
// Each provider is wrapped in a circuit breaker and a token bucket rate
// limiter; a client can chain providers so a tripped primary fails over to
// the next feed in line.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/quantfabric/calcgrid/internal/marketdata"
)

// Config configures one quote provider.
type Config struct {
	Name    string        `yaml:"name"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`

	// Rate limiting
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`

	// Circuit breaker
	ConsecutiveFailures uint32        `yaml:"consecutive_failures"`
	OpenTimeout         time.Duration `yaml:"open_timeout"`
}

// DefaultConfig returns conservative provider settings.
func DefaultConfig(name, baseURL string) Config {
	return Config{
		Name:                name,
		BaseURL:             baseURL,
		Timeout:             5 * time.Second,
		RequestsPerSecond:   10,
		Burst:               20,
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
	}
}

// Quote is one observed quote from a feed.
type Quote struct {
	Ticker    string    `json:"ticker"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Provider fetches quotes from a single feed endpoint.
type Provider struct {
	cfg     Config
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewProvider builds a provider with breaker and limiter from config.
func NewProvider(cfg Config) *Provider {
	p := &Provider{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:  zerolog.Nop(),
	}
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    cfg.Name,
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.logger.Warn().
				Str("provider", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("feed circuit breaker state change")
		},
	})
	return p
}

// SetLogger attaches a logger.
func (p *Provider) SetLogger(logger zerolog.Logger) { p.logger = logger }

// Name returns the configured provider name.
func (p *Provider) Name() string { return p.cfg.Name }

// State returns the breaker state for health reporting.
func (p *Provider) State() gobreaker.State { return p.breaker.State() }

// Fetch retrieves one quote, honoring the rate limit and circuit breaker.
func (p *Provider) Fetch(ctx context.Context, ticker string) (Quote, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return Quote{}, fmt.Errorf("rate limit wait: %w", err)
	}
	out, err := p.breaker.Execute(func() (any, error) {
		return p.fetch(ctx, ticker)
	})
	if err != nil {
		return Quote{}, err
	}
	return out.(Quote), nil
}

func (p *Provider) fetch(ctx context.Context, ticker string) (Quote, error) {
	url := fmt.Sprintf("%s/quotes/%s", p.cfg.BaseURL, ticker)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Quote{}, fmt.Errorf("build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("fetch %s from %s: %w", ticker, p.cfg.Name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("fetch %s from %s: status %d", ticker, p.cfg.Name, resp.StatusCode)
	}
	var q Quote
	if err := json.NewDecoder(resp.Body).Decode(&q); err != nil {
		return Quote{}, fmt.Errorf("decode quote %s: %w", ticker, err)
	}
	if q.Ticker == "" {
		q.Ticker = ticker
	}
	return q, nil
}

// Client fetches quotes from a chain of providers, failing over in order.
type Client struct {
	providers []*Provider
	logger    zerolog.Logger
}

// NewClient builds a failover chain; the first provider is primary.
func NewClient(providers ...*Provider) *Client {
	return &Client{providers: providers, logger: zerolog.Nop()}
}

// SetLogger attaches a logger.
func (c *Client) SetLogger(logger zerolog.Logger) { c.logger = logger }

// Fetch tries each provider in order until one answers.
func (c *Client) Fetch(ctx context.Context, ticker string) (Quote, error) {
	if len(c.providers) == 0 {
		return Quote{}, fmt.Errorf("no providers configured")
	}
	var lastErr error
	for _, p := range c.providers {
		q, err := p.Fetch(ctx, ticker)
		if err == nil {
			return q, nil
		}
		lastErr = err
		c.logger.Debug().
			Err(err).
			Str("provider", p.Name()).
			Str("ticker", ticker).
			Msg("provider failed, trying next")
	}
	return Quote{}, fmt.Errorf("all providers failed for %s: %w", ticker, lastErr)
}

// FetchAll fetches every ticker, returning quote values keyed for a base
// environment. Feed names the quote ids; a missing ticker fails the batch.
func (c *Client) FetchAll(ctx context.Context, feedName string, tickers []string) (map[marketdata.ID]any, error) {
	out := make(map[marketdata.ID]any, len(tickers))
	for _, ticker := range tickers {
		q, err := c.Fetch(ctx, ticker)
		if err != nil {
			return nil, err
		}
		out[marketdata.QuoteID{Ticker: ticker, Feed: feedName}] = q.Value
	}
	return out, nil
}
