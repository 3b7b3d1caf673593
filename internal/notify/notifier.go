// Package notify fans trading events out to chat channels (Telegram,
// Discord). Events are filtered by kind so operators receive only the
// alerts they care about. Delivery never blocks the caller.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// Event kinds accepted by the filter.
const (
	EventTrade     = "trade"
	EventViolation = "violation"
	EventSystem    = "system"
)

// Sender is one notification channel.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches notifications to one or more Senders.
type Notifier struct {
	senders []Sender
	events  map[string]bool // allowed event kinds
	timeout time.Duration
	logger  *slog.Logger

	wg sync.WaitGroup
}

// NewNotifier creates a Notifier that delivers to senders. Only event kinds
// listed in events are forwarded; an empty list allows everything.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		timeout: 10 * time.Second,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether at least one sender is configured.
func (n *Notifier) Enabled() bool { return len(n.senders) > 0 }

func (n *Notifier) allows(event string) bool {
	return len(n.events) == 0 || n.events[event]
}

// Notify sends synchronously when event passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.allows(event) {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyTrade reports a confirmed fill.
func (n *Notifier) NotifyTrade(ctx context.Context, ev domain.TradeEvent) {
	title, msg := FormatTrade(ev)
	n.async(ctx, EventTrade, title, msg)
}

// NotifyViolation reports a risk violation.
func (n *Notifier) NotifyViolation(ctx context.Context, v domain.Violation) {
	title, msg := FormatViolation(v)
	n.async(ctx, EventViolation, title, msg)
}

// NotifySystemEvent reports a lifecycle event such as "started" or "halted".
func (n *Notifier) NotifySystemEvent(ctx context.Context, kind, message string) {
	n.async(ctx, EventSystem, "Trading loop "+strings.ReplaceAll(kind, "_", " "), message)
}

// async delivers in the background. The caller's cancellation does not
// abort delivery; each send is bounded by the notifier timeout instead.
func (n *Notifier) async(ctx context.Context, event, title, message string) {
	if !n.Enabled() || !n.allows(event) {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
		defer cancel()
		if err := n.dispatch(sendCtx, title, message); err != nil {
			n.logger.Warn("notification dropped", slog.String("event", event), slog.String("error", err.Error()))
		}
	}()
}

// Wait blocks until in-flight deliveries finish or ctx is done.
func (n *Notifier) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatch sends to every sender. A failing sender does not prevent
// delivery to the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

// FormatTrade renders a trade event.
func FormatTrade(ev domain.TradeEvent) (string, string) {
	o := ev.Order
	var title string
	if ev.Action == domain.TradeOpen {
		title = fmt.Sprintf("Opened %s %s", strings.ToUpper(string(o.Side)), o.Symbol)
	} else {
		title = fmt.Sprintf("Closed %s", o.Symbol)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "qty %g @ %.4g on %s\n", o.FilledQuantity, o.FilledPrice, o.Venue)
	if ev.Action == domain.TradeClose {
		fmt.Fprintf(&b, "realized P/L %+.2f (%s)\n", o.RealizedPnL, ev.Reason)
	}
	if ev.StopID != "" {
		fmt.Fprintf(&b, "protective stop %s\n", ev.StopID)
	}
	fmt.Fprintf(&b, "profile %s", ev.Profile)
	return title, b.String()
}

// FormatViolation renders a violation.
func FormatViolation(v domain.Violation) (string, string) {
	title := fmt.Sprintf("Risk %s: %s", strings.ToUpper(string(v.Severity)), v.Type)
	msg := v.Message
	if v.Symbol != "" {
		msg = v.Symbol + ": " + msg
	}
	return title, fmt.Sprintf("%s\nvalue %.4g, limit %.4g", msg, v.Value, v.Limit)
}
