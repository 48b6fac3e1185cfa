package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// StreamConfig configures the websocket quote stream.
type StreamConfig struct {
	URL              string        `yaml:"url"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	ReconnectBackoff time.Duration `yaml:"reconnect_backoff"`
	Buffer           int           `yaml:"buffer"`
}

// DefaultStreamConfig returns stream settings with modest buffering.
func DefaultStreamConfig(url string) StreamConfig {
	return StreamConfig{
		URL:              url,
		HandshakeTimeout: 10 * time.Second,
		ReadTimeout:      30 * time.Second,
		ReconnectBackoff: 2 * time.Second,
		Buffer:           256,
	}
}

type subscribeMessage struct {
	Action  string   `json:"action"`
	Tickers []string `json:"tickers"`
}

// Streamer maintains a websocket subscription for live quote updates,
// reconnecting with backoff until the context ends.
type Streamer struct {
	cfg    StreamConfig
	dialer *websocket.Dialer
	logger zerolog.Logger
}

// NewStreamer builds a streamer for the configured endpoint.
func NewStreamer(cfg StreamConfig) *Streamer {
	return &Streamer{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		logger: zerolog.Nop(),
	}
}

// SetLogger attaches a logger.
func (s *Streamer) SetLogger(logger zerolog.Logger) { s.logger = logger }

// Stream subscribes to the tickers and delivers updates until ctx ends. The
// returned channel closes when the context is done.
func (s *Streamer) Stream(ctx context.Context, tickers []string) (<-chan Quote, error) {
	if len(tickers) == 0 {
		return nil, fmt.Errorf("no tickers to stream")
	}
	out := make(chan Quote, s.cfg.Buffer)
	go func() {
		defer close(out)
		for ctx.Err() == nil {
			if err := s.run(ctx, tickers, out); err != nil && ctx.Err() == nil {
				s.logger.Warn().Err(err).Msg("quote stream dropped, reconnecting")
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.cfg.ReconnectBackoff):
			}
		}
	}()
	return out, nil
}

// run owns one connection: subscribe, then pump messages until failure.
func (s *Streamer) run(ctx context.Context, tickers []string, out chan<- Quote) error {
	conn, _, err := s.dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.cfg.URL, err)
	}
	defer conn.Close()

	// Close the connection when the context ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if err := conn.WriteJSON(subscribeMessage{Action: "subscribe", Tickers: tickers}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	for {
		if s.cfg.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		var q Quote
		if err := json.Unmarshal(raw, &q); err != nil {
			s.logger.Debug().Err(err).Msg("skipping malformed stream message")
			continue
		}
		select {
		case out <- q:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
