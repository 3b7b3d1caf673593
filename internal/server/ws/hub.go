// Package ws is the dashboard sink: it pushes loop and risk events to
// browser clients over WebSocket. When a SignalBus is configured, events
// travel through it so API replicas without a loop see the same stream.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
	publishTimeout = 2 * time.Second
)

// Dashboard channels. Clients receive all of them until they narrow the
// set with a subscribe message.
const (
	ChannelAccount    = "account"
	ChannelPositions  = "positions"
	ChannelTrades     = "trades"
	ChannelActivity   = "activity"
	ChannelMarket     = "market"
	ChannelViolations = "violations"
)

// TradeStream is the durable stream every trade event is appended to.
const TradeStream = "trades"

var channels = []string{
	ChannelAccount, ChannelPositions, ChannelTrades,
	ChannelActivity, ChannelMarket, ChannelViolations,
}

// busChannel namespaces dashboard traffic on the shared bus.
func busChannel(ch string) string { return "dashboard:" + ch }

// Message is the JSON envelope written to clients.
type Message struct {
	Channel string          `json:"channel"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	At      time.Time       `json:"at"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	subs map[string]bool
	mu   sync.RWMutex
}

type subscribeMsg struct {
	Action   string   `json:"action"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

type broadcastMsg struct {
	channel string
	data    []byte
}

// Config carries metadata for the hello message sent on connect.
type Config struct {
	Mode      string
	StartedAt time.Time
	// Snapshot, when set, is embedded in the hello message so a fresh
	// client can render before the next tick.
	Snapshot func() any
}

// Hub fans dashboard events out to connected WebSocket clients.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan broadcastMsg
	register   chan *client
	unregister chan *client
	done       chan struct{}
	bus        domain.SignalBus
	cfg        Config
	now        func() time.Time
	mu         sync.RWMutex
	logger     *slog.Logger
}

// NewHub creates a Hub. bus may be nil, in which case events only reach
// clients of this process.
func NewHub(bus domain.SignalBus, cfg Config, logger *slog.Logger) *Hub {
	if strings.TrimSpace(cfg.Mode) == "" {
		cfg.Mode = "unknown"
	}
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now().UTC()
	}
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan broadcastMsg, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		bus:        bus,
		cfg:        cfg,
		now:        time.Now,
		logger:     logger.With(slog.String("component", "ws_hub")),
	}
}

// Run serves registrations and broadcasts until ctx is done. With a bus it
// also relays every dashboard channel from the bus.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	if h.bus != nil {
		for _, ch := range channels {
			go h.relay(ctx, ch)
		}
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return nil

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client connected", slog.Int("clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", slog.Int("clients", n))

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if !c.isSubscribed(msg.channel) {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					h.logger.Warn("dropping message for slow client", slog.String("channel", msg.channel))
				}
			}
			h.mu.RUnlock()
		}
	}
}

// relay forwards one bus channel into the local broadcast.
func (h *Hub) relay(ctx context.Context, ch string) {
	msgs, err := h.bus.Subscribe(ctx, busChannel(ch))
	if err != nil {
		h.logger.Error("bus subscribe failed", slog.String("channel", ch), slog.String("error", err.Error()))
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgs:
			if !ok {
				h.logger.Warn("bus subscription closed", slog.String("channel", ch))
				return
			}
			h.local(ch, data)
		}
	}
}

// local enqueues for this process's clients without blocking.
func (h *Hub) local(ch string, data []byte) {
	select {
	case h.broadcast <- broadcastMsg{channel: ch, data: data}:
	default:
		h.logger.Warn("broadcast queue full, dropping", slog.String("channel", ch))
	}
}

// publish encodes an event and routes it through the bus when one is
// configured, or straight to local clients otherwise. It never blocks the
// caller for longer than the publish timeout and never returns an error.
func (h *Hub) publish(ch, typ string, payload any) []byte {
	raw, err := json.Marshal(payload)
	if err != nil {
		h.logger.Warn("encode dashboard event", slog.String("type", typ), slog.String("error", err.Error()))
		return nil
	}
	data, err := json.Marshal(Message{Channel: ch, Type: typ, Payload: raw, At: h.now().UTC()})
	if err != nil {
		return nil
	}
	if h.bus == nil {
		h.local(ch, data)
		return data
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := h.bus.Publish(ctx, busChannel(ch), data); err != nil {
		h.logger.Warn("bus publish failed, delivering locally", slog.String("channel", ch), slog.String("error", err.Error()))
		h.local(ch, data)
	}
	return data
}

// PushAccount publishes an account snapshot.
func (h *Hub) PushAccount(acct domain.AccountSnapshot) {
	h.publish(ChannelAccount, "account", acct)
}

// PushPosition publishes one position.
func (h *Hub) PushPosition(symbol string, p domain.Position) {
	h.publish(ChannelPositions, "position", map[string]any{"symbol": symbol, "position": p})
}

// PushTrade publishes a trade event and appends it to the trade stream.
func (h *Hub) PushTrade(ev domain.TradeEvent) {
	data := h.publish(ChannelTrades, "trade", ev)
	if h.bus == nil || data == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := h.bus.StreamAppend(ctx, TradeStream, data); err != nil {
		h.logger.Warn("trade stream append failed", slog.String("error", err.Error()))
	}
}

// PushActivity publishes an activity log line.
func (h *Hub) PushActivity(level, message string, at time.Time) {
	h.publish(ChannelActivity, "activity", map[string]any{"level": level, "message": message, "at": at})
}

// PushMarketStatus publishes market hours.
func (h *Hub) PushMarketStatus(open bool, nextOpen, nextClose time.Time) {
	h.publish(ChannelMarket, "market_status", map[string]any{
		"open":       open,
		"next_open":  nextOpen,
		"next_close": nextClose,
	})
}

// NotifyViolation publishes a routed risk violation.
func (h *Hub) NotifyViolation(_ context.Context, v domain.Violation) {
	h.publish(ChannelViolations, "violation", v)
}

// HandleWS upgrades the request and registers the client.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}
	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: make(map[string]bool, len(channels)),
	}
	for _, ch := range channels {
		c.subs[ch] = true
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	c.hello()

	go c.writePump()
	go c.readPump()
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// hello tells a new client the connection is live.
func (c *client) hello() {
	payload := map[string]any{
		"mode":           c.hub.cfg.Mode,
		"uptime_seconds": max(int64(time.Since(c.hub.cfg.StartedAt).Seconds()), 0),
		"channels":       channels,
	}
	if c.hub.cfg.Snapshot != nil {
		payload["status"] = c.hub.cfg.Snapshot()
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	msg, err := json.Marshal(Message{Channel: "system", Type: "hello", Payload: raw, At: c.hub.now().UTC()})
	if err != nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		var sub subscribeMsg
		if json.Unmarshal(message, &sub) == nil && sub.Action != "" {
			c.handleSubscription(sub)
		}
	}
}

func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch msg.Action {
	case "subscribe":
		for _, ch := range msg.Channels {
			c.subs[ch] = true
		}
	case "unsubscribe":
		for _, ch := range msg.Channels {
			delete(c.subs, ch)
		}
	}
}

func (c *client) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subs[channel] || c.subs["*"]
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
