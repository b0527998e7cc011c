package alpaca

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

func streamServer(t *testing.T, authStatus string) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var auth authCommand
		if err := conn.ReadJSON(&auth); err != nil {
			return
		}
		assert.Equal(t, "auth", auth.Action)
		assert.Equal(t, "key", auth.Key)
		assert.Equal(t, "secret", auth.Secret)

		var listen listenCommand
		if err := conn.ReadJSON(&listen); err != nil {
			return
		}
		assert.Equal(t, []string{"trade_updates"}, listen.Data.Streams)

		conn.WriteMessage(websocket.BinaryMessage, []byte(`{"stream":"authorization","data":{"status":"`+authStatus+`","action":"authenticate"}}`))
		if authStatus != "authorized" {
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`{"stream":"listening","data":{"streams":["trade_updates"]}}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"stream":"trade_updates","data":{"event":"fill","timestamp":"2025-11-05T15:00:01Z",
			"order":{"id":"s1","symbol":"AAPL","side":"sell","status":"filled","filled_qty":"10","filled_avg_price":"110"}}}`))

		// Hold the connection until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func testStream(server *httptest.Server) *Stream {
	return &Stream{
		url:     "ws" + strings.TrimPrefix(server.URL, "http"),
		keyID:   "key",
		secret:  "secret",
		backoff: 10 * time.Millisecond,
		updates: make(chan TradeUpdate, 4),
	}
}

func TestStreamDeliversTradeUpdates(t *testing.T) {
	server := streamServer(t, "authorized")
	defer server.Close()

	s := testStream(server)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case u := <-s.Updates():
		assert.Equal(t, "fill", u.Event)
		assert.Equal(t, "s1", u.Order.ID)
		assert.Equal(t, "sell", u.Order.Side)
		assert.Equal(t, NullString("110"), u.Order.FilledAvgPrice)
		assert.True(t, s.IsConnected())
	case <-time.After(5 * time.Second):
		t.Fatal("no trade update received")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestStreamUnauthorized(t *testing.T) {
	server := streamServer(t, "unauthorized")
	defer server.Close()

	s := testStream(server)
	err := s.connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not authorized")
	assert.False(t, s.IsConnected())
}

func TestHandleMessageIgnoresNoise(t *testing.T) {
	s := &Stream{updates: make(chan TradeUpdate, 1)}
	ctx := context.Background()

	assert.NoError(t, s.handleMessage(ctx, []byte(`not json`)))
	assert.NoError(t, s.handleMessage(ctx, []byte(`{"stream":"something_else","data":{}}`)))
	assert.NoError(t, s.handleMessage(ctx, []byte(`{"stream":"trade_updates","data":"bad"}`)))
	assert.Empty(t, s.updates)

	// Full buffer drops rather than blocks.
	assert.NoError(t, s.handleMessage(ctx, []byte(`{"stream":"trade_updates","data":{"event":"new","order":{"id":"1"}}}`)))
	assert.NoError(t, s.handleMessage(ctx, []byte(`{"stream":"trade_updates","data":{"event":"new","order":{"id":"2"}}}`)))
	assert.Len(t, s.updates, 1)
}
