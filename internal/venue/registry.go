package venue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

type entry struct {
	adapter Adapter
	enabled bool
}

// Registry owns adapter lifecycle and the single active selection. Reads of
// the active adapter take a read lock only long enough to copy the pointer,
// so a switch is atomic for every later caller while in-flight calls on the
// previous adapter finish undisturbed.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	order   []string
	active  string
	logger  *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		entries: make(map[string]entry),
		logger:  logger.With(slog.String("component", "venue_registry")),
	}
}

// Register adds an adapter under id. Registering the same id twice fails.
func (r *Registry) Register(id string, a Adapter, enabled bool) error {
	if id == "" || a == nil {
		return fmt.Errorf("venue: register: %w: empty id or nil adapter", domain.ErrConfig)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; ok {
		return fmt.Errorf("venue: register %q: %w", id, domain.ErrAlreadyExists)
	}
	r.entries[id] = entry{adapter: a, enabled: enabled}
	r.order = append(r.order, id)
	return nil
}

// Get returns the adapter registered under id.
func (r *Registry) Get(id string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e.adapter, ok
}

// Activate makes id the active venue. Unknown or disabled venues are a
// configuration error and leave the previous selection untouched.
func (r *Registry) Activate(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("venue: activate %q: %w: unknown venue", id, domain.ErrConfig)
	}
	if !e.enabled {
		return fmt.Errorf("venue: activate %q: %w: venue disabled", id, domain.ErrConfig)
	}
	prev := r.active
	r.active = id
	if prev != id {
		r.logger.Info("active venue switched", slog.String("from", prev), slog.String("to", id))
	}
	return nil
}

// SetActive is Activate reporting success as a bool.
func (r *Registry) SetActive(id string) bool {
	if err := r.Activate(id); err != nil {
		r.logger.Warn("set active venue rejected", slog.String("venue", id), slog.String("error", err.Error()))
		return false
	}
	return true
}

// Active returns the active adapter, or nil when none is selected.
func (r *Registry) Active() Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.active == "" {
		return nil
	}
	return r.entries[r.active].adapter
}

// ActiveID returns the id of the active venue.
func (r *Registry) ActiveID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

func (r *Registry) enabled() map[string]Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Adapter, len(r.entries))
	for id, e := range r.entries {
		if e.enabled {
			out[id] = e.adapter
		}
	}
	return out
}

// ConnectAll connects every enabled venue concurrently and reports each
// outcome. No lock is held while adapters talk to the network.
func (r *Registry) ConnectAll(ctx context.Context) map[string]bool {
	targets := r.enabled()
	var (
		mu  sync.Mutex
		out = make(map[string]bool, len(targets))
		g   errgroup.Group
	)
	for id, a := range targets {
		g.Go(func() error {
			ok := a.Connect(ctx)
			mu.Lock()
			out[id] = ok
			mu.Unlock()
			if ok {
				r.logger.Info("venue connected", slog.String("venue", id), slog.String("platform", a.PlatformName()))
			} else {
				r.logger.Warn("venue connect failed", slog.String("venue", id))
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// DisconnectAll disconnects every enabled venue and reports each outcome.
func (r *Registry) DisconnectAll(ctx context.Context) map[string]bool {
	targets := r.enabled()
	var (
		mu  sync.Mutex
		out = make(map[string]bool, len(targets))
		g   errgroup.Group
	)
	for id, a := range targets {
		g.Go(func() error {
			err := a.Disconnect(ctx)
			if err != nil {
				r.logger.Warn("venue disconnect failed", slog.String("venue", id), slog.String("error", err.Error()))
			}
			mu.Lock()
			out[id] = err == nil
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Venues lists every registered venue in registration order.
func (r *Registry) Venues() []domain.VenueInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.VenueInfo, 0, len(r.order))
	for _, id := range r.order {
		e := r.entries[id]
		out = append(out, domain.VenueInfo{
			ID:        id,
			Name:      e.adapter.PlatformName(),
			Type:      e.adapter.PlatformType(),
			Enabled:   e.enabled,
			Connected: e.adapter.Connected(),
			Active:    id == r.active,
			Live:      e.adapter.Live(),
		})
	}
	return out
}
