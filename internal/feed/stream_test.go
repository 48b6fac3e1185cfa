package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func streamServer(t *testing.T, quotes []Quote) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sub subscribeMessage
		if err := conn.ReadJSON(&sub); err != nil || sub.Action != "subscribe" {
			return
		}
		for _, q := range quotes {
			if err := conn.WriteJSON(q); err != nil {
				return
			}
		}
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStreamDeliversQuotes(t *testing.T) {
	srv := streamServer(t, []Quote{
		{Ticker: "USD-1Y", Value: 0.031},
		{Ticker: "USD-5Y", Value: 0.034},
	})
	cfg := DefaultStreamConfig("ws" + strings.TrimPrefix(srv.URL, "http"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewStreamer(cfg)
	ch, err := s.Stream(ctx, []string{"USD-1Y", "USD-5Y"})
	require.NoError(t, err)

	got := make(map[string]float64)
	for len(got) < 2 {
		select {
		case q := <-ch:
			got[q.Ticker] = q.Value
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for quotes")
		}
	}
	assert.Equal(t, 0.031, got["USD-1Y"])
	assert.Equal(t, 0.034, got["USD-5Y"])

	cancel()
	select {
	case _, open := <-ch:
		assert.False(t, open)
	case <-time.After(5 * time.Second):
		t.Fatal("stream channel did not close on cancel")
	}
}

func TestStreamRequiresTickers(t *testing.T) {
	s := NewStreamer(DefaultStreamConfig("ws://localhost:0"))
	_, err := s.Stream(context.Background(), nil)
	require.Error(t, err)
}
