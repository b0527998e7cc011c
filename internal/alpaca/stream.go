package alpaca

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gw/tradeledger/internal/config"
)

// Stream is a WebSocket client for the account's trade_updates stream.
type Stream struct {
	url     string
	keyID   string
	secret  string
	backoff time.Duration

	updates   chan TradeUpdate
	connected atomic.Bool
}

// TradeUpdate is one order lifecycle event ("new", "fill", "canceled", ...).
type TradeUpdate struct {
	Event     string     `json:"event"`
	Timestamp *time.Time `json:"timestamp"`
	Order     Order      `json:"order"`
}

func NewStream(cfg *config.Config) *Stream {
	return &Stream{
		url:     cfg.StreamURL(),
		keyID:   cfg.AlpacaKeyID,
		secret:  cfg.AlpacaSecretKey,
		backoff: 2 * time.Second,
		updates: make(chan TradeUpdate, 64),
	}
}

// Updates delivers trade updates. Events arriving while the buffer is full
// are dropped.
func (s *Stream) Updates() <-chan TradeUpdate {
	return s.updates
}

// IsConnected returns true once the stream is authorized and listening.
func (s *Stream) IsConnected() bool {
	return s.connected.Load()
}

// Run maintains the WebSocket connection with automatic reconnection.
func (s *Stream) Run(ctx context.Context) error {
	for {
		if err := s.connect(ctx); err != nil {
			slog.Warn("alpaca stream disconnected", "err", err)
		}
		s.connected.Store(false)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.backoff):
			slog.Info("alpaca stream reconnecting...")
		}
	}
}

func (s *Stream) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))

	if err := conn.WriteJSON(authCommand{Action: "auth", Key: s.keyID, Secret: s.secret}); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	listen := listenCommand{Action: "listen"}
	listen.Data.Streams = []string{"trade_updates"}
	if err := conn.WriteJSON(listen); err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	ctx2, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx2.Done()
		conn.Close()
	}()
	go s.pingLoop(ctx2, conn)
	return s.readLoop(ctx2, conn)
}

func (s *Stream) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				slog.Debug("alpaca stream ping failed", "err", err)
				return
			}
		}
	}
}

// --- WS message types ---

type authCommand struct {
	Action string `json:"action"`
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

type listenCommand struct {
	Action string `json:"action"`
	Data   struct {
		Streams []string `json:"streams"`
	} `json:"data"`
}

type wsEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type authPayload struct {
	Status string `json:"status"`
	Action string `json:"action"`
}

// --- Read loop ---

func (s *Stream) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		// Alpaca sends binary frames on the paper endpoint and text frames on
		// live; ReadMessage handles both.
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		if err := s.handleMessage(ctx, msg); err != nil {
			return err
		}
	}
}

func (s *Stream) handleMessage(ctx context.Context, msg []byte) error {
	var env wsEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		slog.Debug("alpaca stream: unmarshal error", "err", err)
		return nil
	}

	switch env.Stream {
	case "authorization":
		var a authPayload
		if err := json.Unmarshal(env.Data, &a); err != nil {
			return fmt.Errorf("authorization payload: %w", err)
		}
		if a.Status != "authorized" {
			return fmt.Errorf("alpaca stream not authorized: %s", a.Status)
		}
	case "listening":
		s.connected.Store(true)
		slog.Info("alpaca stream connected")
	case "trade_updates":
		var u TradeUpdate
		if err := json.Unmarshal(env.Data, &u); err != nil {
			slog.Debug("alpaca stream: trade update unmarshal error", "err", err)
			return nil
		}
		select {
		case s.updates <- u:
		case <-ctx.Done():
			return ctx.Err()
		default:
			slog.Warn("alpaca stream: update buffer full, dropping", "event", u.Event, "order", u.Order.ID)
		}
	default:
		slog.Debug("alpaca stream: unknown message", "stream", env.Stream)
	}
	return nil
}
