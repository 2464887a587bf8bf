package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"TradeLoop/pkg/logger"
)

// Stream maintains a last-trade price map fed by the market data provider's
// WebSocket feed. Prices older than StaleAfter are treated as missing so
// order pricing falls back to the signal's suggested price instead of
// executing on a dead quote.
type Stream struct {
	apiKey         string
	websocketURL   string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	staleAfter     time.Duration
	logger         *logger.Logger

	mu     sync.RWMutex
	conn   *websocket.Conn
	prices map[string]quote
}

type quote struct {
	price float64
	at    time.Time
}

// Config configures the quote stream.
type Config struct {
	APIKey         string
	WebsocketURL   string
	Symbols        []string
	ReconnectDelay time.Duration
	PingInterval   time.Duration
	StaleAfter     time.Duration
}

// NewStream creates a quote stream. Run must be called before prices flow.
func NewStream(cfg Config, lg *logger.Logger) *Stream {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 2 * time.Minute
	}
	return &Stream{
		apiKey:         cfg.APIKey,
		websocketURL:   cfg.WebsocketURL,
		symbols:        cfg.Symbols,
		reconnectDelay: cfg.ReconnectDelay,
		pingInterval:   cfg.PingInterval,
		staleAfter:     cfg.StaleAfter,
		logger:         lg,
		prices:         make(map[string]quote),
	}
}

// LastPrice implements the price source consulted during order pricing.
func (s *Stream) LastPrice(ctx context.Context, symbol string) (float64, error) {
	s.mu.RLock()
	q, ok := s.prices[symbol]
	s.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("no quote for %s", symbol)
	}
	if time.Since(q.at) > s.staleAfter {
		return 0, fmt.Errorf("stale quote for %s", symbol)
	}
	return q.price, nil
}

// SetPrice injects a quote directly. Used when the feed is disabled.
func (s *Stream) SetPrice(symbol string, price float64) {
	s.mu.Lock()
	s.prices[symbol] = quote{price: price, at: time.Now()}
	s.mu.Unlock()
}

// Run connects, subscribes and pumps trades into the price map until the
// context is cancelled, reconnecting on read failure.
func (s *Stream) Run(ctx context.Context) {
	for {
		if err := s.connect(ctx); err != nil {
			s.logger.Error("quote stream connect", logger.Error(err))
		} else {
			s.pump(ctx)
		}

		select {
		case <-ctx.Done():
			s.close()
			return
		case <-time.After(s.reconnectDelay):
		}
	}
}

func (s *Stream) connect(ctx context.Context) error {
	u := fmt.Sprintf("%s?token=%s", s.websocketURL, s.apiKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("quote stream dial: %w", err)
	}
	for _, sym := range s.symbols {
		msg := map[string]string{"type": "subscribe", "symbol": sym}
		if err := conn.WriteJSON(msg); err != nil {
			_ = conn.Close()
			return fmt.Errorf("subscribe %s: %w", sym, err)
		}
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.logger.Info("quote stream connected", logger.Int("symbols", len(s.symbols)))
	return nil
}

type wsTrade struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	T int64   `json:"t"` // ms
}

type wsMessage struct {
	Type string    `json:"type"`
	Data []wsTrade `json:"data"`
}

func (s *Stream) pump(ctx context.Context) {
	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	go s.pingLoop(pingCtx)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, b, err := s.conn.ReadMessage()
		if err != nil {
			s.logger.Warn("quote stream read", logger.Error(err))
			s.close()
			return
		}
		var m wsMessage
		if err := json.Unmarshal(b, &m); err != nil || m.Type != "trade" {
			continue
		}
		now := time.Now()
		s.mu.Lock()
		for _, t := range m.Data {
			s.prices[t.S] = quote{price: t.P, at: now}
		}
		s.mu.Unlock()
	}
}

func (s *Stream) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()
			if conn != nil {
				_ = conn.WriteMessage(websocket.PingMessage, nil)
			}
		}
	}
}

func (s *Stream) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}
