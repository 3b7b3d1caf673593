package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

type recSender struct {
	mu     sync.Mutex
	titles []string
	err    error
}

func (r *recSender) Send(_ context.Context, title, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recSender) Name() string { return "rec" }

func (r *recSender) sent() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.titles...)
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func waitFor(t *testing.T, n *Notifier) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, n.Wait(ctx))
}

func TestEventFilter(t *testing.T) {
	rec := &recSender{}
	n := NewNotifier([]Sender{rec}, []string{"violation", " system "}, discard())

	n.NotifyTrade(context.Background(), domain.TradeEvent{Action: domain.TradeOpen, Order: domain.Order{Symbol: "AAPL", Side: domain.OrderSideBuy}})
	n.NotifyViolation(context.Background(), domain.Violation{Type: domain.ViolationDrawdown, Severity: domain.SeverityHigh})
	n.NotifySystemEvent(context.Background(), "protective_stop_failed", "boom")
	waitFor(t, n)

	assert.ElementsMatch(t, []string{"Risk HIGH: drawdown", "Trading loop protective stop failed"}, rec.sent())
}

func TestEmptyFilterAllowsAll(t *testing.T) {
	rec := &recSender{}
	n := NewNotifier([]Sender{rec}, nil, discard())
	require.NoError(t, n.Notify(context.Background(), "anything", "t", "m"))
	assert.Equal(t, []string{"t"}, rec.sent())
}

func TestDeliveryOutlivesCallerContext(t *testing.T) {
	rec := &recSender{}
	n := NewNotifier([]Sender{rec}, nil, discard())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n.NotifySystemEvent(ctx, "started", "up")
	waitFor(t, n)
	assert.Len(t, rec.sent(), 1)
}

func TestFailingSenderDoesNotBlockOthers(t *testing.T) {
	bad := &recSender{err: errors.New("down")}
	good := &recSender{}
	n := NewNotifier([]Sender{bad, good}, nil, discard())

	err := n.Notify(context.Background(), EventSystem, "t", "m")
	assert.ErrorContains(t, err, "1 sender(s) failed")
	assert.Len(t, good.sent(), 1)
}

func TestFormatTrade(t *testing.T) {
	title, msg := FormatTrade(domain.TradeEvent{
		Action:  domain.TradeClose,
		Order:   domain.Order{Symbol: "AAPL", Side: domain.OrderSideSell, FilledQuantity: 10, FilledPrice: 101, RealizedPnL: 10, Venue: "Paper"},
		Reason:  "signal",
		Profile: "moderate",
	})
	assert.Equal(t, "Closed AAPL", title)
	assert.Contains(t, msg, "realized P/L +10.00 (signal)")
	assert.Contains(t, msg, "profile moderate")
}

func TestTelegramSender(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := newTelegramSender(srv.URL, "TOKEN", "42")
	require.NoError(t, s.Send(context.Background(), "Title", "body"))
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "*Title*\nbody", got["text"])
}

func TestDiscordSenderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad webhook", http.StatusNotFound)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	assert.ErrorContains(t, err, "unexpected status 404")
}
