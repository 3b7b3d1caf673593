// Package catalog stores the named risk profiles, tracks which one is
// active, and recommends switches from a coarse market regime.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// Store persists both the profile table and the active selection.
type Store interface {
	domain.ProfileStore
	domain.ActiveProfileStore
}

// Catalog is the profile table. Every mutation is persisted before it
// becomes visible, so a failed write leaves the catalog unchanged.
type Catalog struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time

	mu       sync.RWMutex
	profiles map[string]domain.RiskProfile
	activeID string
}

// New loads the catalog from store, seeding it with Defaults when the
// store is empty. defaultActive is used when no selection was persisted.
func New(ctx context.Context, store Store, defaultActive string, logger *slog.Logger) (*Catalog, error) {
	c := &Catalog{
		store:  store,
		logger: logger.With(slog.String("component", "catalog")),
		now:    time.Now,
	}

	profiles, err := store.LoadProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: load profiles: %w", err)
	}
	if len(profiles) == 0 {
		profiles = Defaults()
		for _, id := range sortedIDs(profiles) {
			if err := store.SaveProfile(ctx, profiles[id]); err != nil {
				return nil, fmt.Errorf("catalog: seed %s: %w", id, err)
			}
		}
		c.logger.Info("seeded default profiles", slog.Int("count", len(profiles)))
	}
	for id, p := range profiles {
		p.ID = id
		profiles[id] = p
	}
	c.profiles = profiles

	active, err := store.LoadActiveProfile(ctx)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		active = ""
	case err != nil:
		return nil, fmt.Errorf("catalog: load active profile: %w", err)
	}
	if _, ok := profiles[active]; !ok {
		if active != "" {
			c.logger.Warn("persisted active profile is unknown", slog.String("profile", active))
		}
		active = defaultActive
		if _, ok := profiles[active]; !ok {
			active = sortedIDs(profiles)[0]
		}
		if err := store.SaveActiveProfile(ctx, active); err != nil {
			return nil, fmt.Errorf("catalog: save active profile: %w", err)
		}
	}
	c.activeID = active
	c.logger.Info("catalog loaded", slog.Int("profiles", len(profiles)), slog.String("active", active))
	return c, nil
}

func sortedIDs(m map[string]domain.RiskProfile) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Get returns the profile with the given id.
func (c *Catalog) Get(id string) (domain.RiskProfile, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.profiles[id]
	return p, ok
}

// List returns every profile ordered by id.
func (c *Catalog) List() []domain.RiskProfile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.RiskProfile, 0, len(c.profiles))
	for _, id := range sortedIDs(c.profiles) {
		out = append(out, c.profiles[id])
	}
	return out
}

// Active returns a copy of the active profile.
func (c *Catalog) Active() domain.RiskProfile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.profiles[c.activeID]
}

// ActiveID returns the id of the active profile.
func (c *Catalog) ActiveID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.activeID
}

// Activate switches the active profile. Unknown ids are a configuration
// error and leave the selection unchanged.
func (c *Catalog) Activate(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.profiles[id]; !ok {
		return fmt.Errorf("catalog: activate %q: %w: unknown profile", id, domain.ErrConfig)
	}
	if id == c.activeID {
		return nil
	}
	if err := c.store.SaveActiveProfile(ctx, id); err != nil {
		return fmt.Errorf("catalog: activate %q: %w", id, err)
	}
	prev := c.activeID
	c.activeID = id
	c.logger.Info("active profile switched", slog.String("from", prev), slog.String("to", id))
	return nil
}

// SetActive is Activate reporting success as a bool.
func (c *Catalog) SetActive(ctx context.Context, id string) bool {
	if err := c.Activate(ctx, id); err != nil {
		c.logger.Warn("set active profile rejected", slog.String("profile", id), slog.String("error", err.Error()))
		return false
	}
	return true
}

// Put validates and stores a profile under id, adding or replacing it.
func (c *Catalog) Put(ctx context.Context, id string, p domain.RiskProfile) error {
	if id == "" {
		return fmt.Errorf("catalog: put: %w: profile id is required", domain.ErrConfig)
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("catalog: put %q: %w", id, err)
	}
	p.ID = id
	p.UpdatedAt = c.now().UTC()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.SaveProfile(ctx, p); err != nil {
		return fmt.Errorf("catalog: put %q: %w", id, err)
	}
	c.profiles[id] = p
	c.logger.Info("profile saved", slog.String("profile", id))
	return nil
}

// AddOrUpdate is Put reporting success as a bool.
func (c *Catalog) AddOrUpdate(ctx context.Context, id string, p domain.RiskProfile) bool {
	if err := c.Put(ctx, id, p); err != nil {
		c.logger.Warn("profile rejected", slog.String("profile", id), slog.String("error", err.Error()))
		return false
	}
	return true
}

// Remove deletes a profile. The active profile and the last remaining
// profile can never be removed.
func (c *Catalog) Remove(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.profiles[id]; !ok {
		return fmt.Errorf("catalog: remove %q: %w", id, domain.ErrNotFound)
	}
	if id == c.activeID {
		return fmt.Errorf("catalog: remove %q: %w: profile is active", id, domain.ErrConfig)
	}
	if len(c.profiles) <= 1 {
		return fmt.Errorf("catalog: remove %q: %w: last remaining profile", id, domain.ErrConfig)
	}
	if err := c.store.DeleteProfile(ctx, id); err != nil {
		return fmt.Errorf("catalog: remove %q: %w", id, err)
	}
	delete(c.profiles, id)
	c.logger.Info("profile removed", slog.String("profile", id))
	return nil
}
