// Package stream consumes the market WebSocket channel: best-effort
// order book deltas for every subscribed token. Snapshots from the
// REST poller remain authoritative; a dropped or late delta is
// corrected within a second, so the stream reconnects on any error
// without replaying missed messages.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/polyflow/updown-data/internal/metrics"
	"github.com/polyflow/updown-data/internal/model"
)

// Registry resolves tokens to the markets they belong to.
type Registry interface {
	ActiveTokens() []string
	Demux(token string) (slug string, side model.Side, ok bool)
}

// BookSink receives incremental level updates.
type BookSink interface {
	ApplyDelta(token string, bids, asks []model.PriceLevel)
}

// TickSink persists a best-price observation for a market.
type TickSink interface {
	WriteTick(ctx context.Context, slug, source string, force bool) (bool, error)
}

// Config holds stream configuration.
type Config struct {
	URL              string
	RefreshInterval  time.Duration // Subscription reconcile cadence (default: 1s)
	ReconnectDelay   time.Duration // Fixed delay between connect attempts (default: 3s)
	PingInterval     time.Duration // Keepalive cadence (default: 30s)
	HandshakeTimeout time.Duration // Dial timeout (default: 10s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:              "wss://ws-subscriptions-clob.polymarket.com/ws/market",
		RefreshInterval:  time.Second,
		ReconnectDelay:   3 * time.Second,
		PingInterval:     30 * time.Second,
		HandshakeTimeout: 10 * time.Second,
	}
}

// Stream maintains a WebSocket session against the market channel and
// applies book deltas for every token in the registry.
type Stream struct {
	cfg      Config
	registry Registry
	books    BookSink
	ticks    TickSink
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Stream.
func New(cfg Config, registry Registry, books BookSink, ticks TickSink, logger *slog.Logger) *Stream {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stream{
		cfg:      cfg,
		registry: registry,
		books:    books,
		ticks:    ticks,
		logger:   logger,
	}
}

// Start begins the connect/consume loop.
func (s *Stream) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.run()

	s.logger.Info("delta stream started", "url", s.cfg.URL)
	return nil
}

// Stop gracefully shuts down the stream.
func (s *Stream) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("delta stream stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run reconnects forever with a fixed delay. The stream is best
// effort, so backoff never grows.
func (s *Stream) run() {
	defer s.wg.Done()

	for {
		if err := s.session(); err != nil {
			s.logger.Warn("websocket session ended", "err", err)
			metrics.WSReconnects.Inc()
		}

		select {
		case <-s.ctx.Done():
			return
		case <-time.After(s.cfg.ReconnectDelay):
		}
	}
}

// subscribeMsg is the per-token subscription frame for the market
// channel. Auth is empty; book data is public.
type subscribeMsg struct {
	Auth     struct{} `json:"auth"`
	Type     string   `json:"type"`
	Channel  string   `json:"channel"`
	AssetIDs []string `json:"assets_ids"`
}

// session runs a single connection: dial, subscribe, and consume
// until the connection or the context dies.
func (s *Stream) session() error {
	dialer := websocket.Dialer{HandshakeTimeout: s.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(s.ctx, s.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	subscribed := make(map[string]struct{})
	if err := s.subscribe(conn, subscribed); err != nil {
		return err
	}

	s.logger.Info("websocket connected", "tokens", len(subscribed))

	// Reads happen on a dedicated goroutine. A read deadline is not
	// an option here: gorilla treats a timed-out read as fatal for
	// the connection.
	msgs := make(chan []byte, 64)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case msgs <- data:
			case <-s.ctx.Done():
				return
			}
		}
	}()

	refresh := time.NewTicker(s.cfg.RefreshInterval)
	defer refresh.Stop()
	ping := time.NewTicker(s.cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-s.ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		case err := <-readErr:
			return err
		case data := <-msgs:
			metrics.WSMessages.Inc()
			s.handleMessage(data)
		case <-refresh.C:
			if err := s.subscribe(conn, subscribed); err != nil {
				return err
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil,
				time.Now().Add(5*time.Second)); err != nil {
				return err
			}
		}
	}
}

// subscribe sends a subscription frame for every active token not yet
// subscribed on this connection. Tokens for expired markets are
// dropped from the set; the server keeps sending until reconnect, but
// the demux check discards those deltas anyway.
func (s *Stream) subscribe(conn *websocket.Conn, subscribed map[string]struct{}) error {
	active := s.registry.ActiveTokens()
	current := make(map[string]struct{}, len(active))

	for _, token := range active {
		current[token] = struct{}{}
		if _, ok := subscribed[token]; ok {
			continue
		}

		msg := subscribeMsg{Type: "subscribe", Channel: "market", AssetIDs: []string{token}}
		if err := conn.WriteJSON(msg); err != nil {
			return err
		}
		subscribed[token] = struct{}{}
		s.logger.Debug("subscribed", "token", token)
	}

	for token := range subscribed {
		if _, ok := current[token]; !ok {
			delete(subscribed, token)
		}
	}

	return nil
}

// levelWire mirrors a price level on the wire. Prices and sizes are
// decimal strings.
type levelWire struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// deltaWire mirrors a book update event. The channel sends both single
// objects and arrays of them.
type deltaWire struct {
	AssetID string      `json:"asset_id"`
	Bids    []levelWire `json:"bids"`
	Asks    []levelWire `json:"asks"`
}

// handleMessage applies one frame's worth of deltas. Frames that fail
// to parse, or reference tokens no longer in the registry, are
// dropped.
func (s *Stream) handleMessage(data []byte) {
	var events []deltaWire
	if err := json.Unmarshal(data, &events); err != nil {
		var single deltaWire
		if err := json.Unmarshal(data, &single); err != nil {
			s.logger.Debug("unparseable websocket frame", "err", err)
			metrics.DeltasDropped.Inc()
			return
		}
		events = []deltaWire{single}
	}

	for _, ev := range events {
		if ev.AssetID == "" {
			continue
		}

		slug, _, ok := s.registry.Demux(ev.AssetID)
		if !ok {
			metrics.DeltasDropped.Inc()
			continue
		}

		bids := toLevels(ev.Bids)
		asks := toLevels(ev.Asks)
		if len(bids) == 0 && len(asks) == 0 {
			continue
		}

		s.books.ApplyDelta(ev.AssetID, bids, asks)
		metrics.DeltasApplied.Inc()

		if _, err := s.ticks.WriteTick(s.ctx, slug, model.SourceWS, false); err != nil {
			s.logger.Warn("tick write failed", "slug", slug, "err", err)
		}
	}
}

// toLevels converts wire levels, keeping zero sizes: a zero size is a
// removal instruction for the book.
func toLevels(wire []levelWire) []model.PriceLevel {
	levels := make([]model.PriceLevel, 0, len(wire))
	for _, l := range wire {
		price, err := strconv.ParseFloat(l.Price, 64)
		if err != nil {
			continue
		}
		size, err := strconv.ParseFloat(l.Size, 64)
		if err != nil {
			continue
		}
		levels = append(levels, model.PriceLevel{Price: price, Size: size})
	}
	return levels
}
