package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// memBus is an in-process SignalBus.
type memBus struct {
	mu     sync.Mutex
	subs   map[string][]chan []byte
	stream [][]byte
}

func newMemBus() *memBus { return &memBus{subs: map[string][]chan []byte{}} }

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[channel] {
		ch <- payload
	}
	return nil
}

func (b *memBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan []byte, 16)
	b.subs[channel] = append(b.subs[channel], ch)
	return ch, nil
}

func (b *memBus) subscribers(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[channel])
}

func (b *memBus) StreamAppend(_ context.Context, _ string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stream = append(b.stream, payload)
	return nil
}

func (b *memBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func (b *memBus) streamLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.stream)
}

func startHub(t *testing.T, bus domain.SignalBus) (*Hub, *websocket.Conn) {
	t.Helper()
	hub := NewHub(bus, Config{Mode: "paper", Snapshot: func() any { return map[string]string{"state": "running"} }}, discard())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return hub.clientCount() == 1 }, time.Second, 5*time.Millisecond)
	return hub, conn
}

func read(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	typ, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, typ)
	var m Message
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func TestHelloThenTrade(t *testing.T) {
	hub, conn := startHub(t, nil)

	hello := read(t, conn)
	assert.Equal(t, "hello", hello.Type)
	assert.Contains(t, string(hello.Payload), `"mode":"paper"`)
	assert.Contains(t, string(hello.Payload), `"state":"running"`)

	hub.PushTrade(domain.TradeEvent{Action: domain.TradeOpen, Order: domain.Order{Symbol: "AAPL"}})
	m := read(t, conn)
	assert.Equal(t, ChannelTrades, m.Channel)
	assert.Equal(t, "trade", m.Type)
	assert.Contains(t, string(m.Payload), "AAPL")
}

func TestUnsubscribeFiltersChannel(t *testing.T) {
	hub, conn := startHub(t, nil)
	read(t, conn)

	require.NoError(t, conn.WriteJSON(subscribeMsg{Action: "unsubscribe", Channels: []string{ChannelActivity}}))
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		for c := range hub.clients {
			return !c.isSubscribed(ChannelActivity)
		}
		return false
	}, time.Second, 5*time.Millisecond)

	hub.PushActivity("info", "ignored", time.Now())
	hub.PushMarketStatus(true, time.Time{}, time.Time{})
	m := read(t, conn)
	assert.Equal(t, "market_status", m.Type)
}

func TestBusRelay(t *testing.T) {
	bus := newMemBus()
	hub, conn := startHub(t, bus)
	read(t, conn)
	require.Eventually(t, func() bool {
		for _, ch := range channels {
			if bus.subscribers(busChannel(ch)) == 0 {
				return false
			}
		}
		return true
	}, time.Second, 5*time.Millisecond)

	hub.PushTrade(domain.TradeEvent{Action: domain.TradeClose, Order: domain.Order{Symbol: "MSFT"}})
	m := read(t, conn)
	assert.Equal(t, "trade", m.Type)
	assert.Equal(t, 1, bus.streamLen())

	hub.NotifyViolation(context.Background(), domain.Violation{Type: domain.ViolationDrawdown, Severity: domain.SeverityHigh})
	m = read(t, conn)
	assert.Equal(t, ChannelViolations, m.Channel)
}
