package orchestrator

import (
	"sync"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// Profiles is the live profile selection. *catalog.Catalog satisfies it.
type Profiles interface {
	Active() domain.RiskProfile
}

// ProfilePin holds the profile a tick runs against. The loop pins the
// live selection at the top of each tick, so a switch made mid-tick is
// only seen by the next one. Hand the pin, not the catalog, to the risk
// engine.
type ProfilePin struct {
	live Profiles

	mu     sync.RWMutex
	pinned *domain.RiskProfile
}

// NewProfilePin wraps live. Until the first Pin it passes through.
func NewProfilePin(live Profiles) *ProfilePin {
	return &ProfilePin{live: live}
}

// Pin snapshots the live profile and returns it.
func (p *ProfilePin) Pin() domain.RiskProfile {
	prof := p.live.Active()
	p.mu.Lock()
	p.pinned = &prof
	p.mu.Unlock()
	return prof
}

// Active returns the pinned profile.
func (p *ProfilePin) Active() domain.RiskProfile {
	p.mu.RLock()
	pinned := p.pinned
	p.mu.RUnlock()
	if pinned == nil {
		return p.live.Active()
	}
	return *pinned
}
