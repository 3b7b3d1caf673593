package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/tradeloop/internal/catalog"
	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// ProfileCatalog is the profile table as the API sees it. *catalog.Catalog
// satisfies it.
type ProfileCatalog interface {
	List() []domain.RiskProfile
	Get(id string) (domain.RiskProfile, bool)
	Active() domain.RiskProfile
	Activate(ctx context.Context, id string) error
	Put(ctx context.Context, id string, p domain.RiskProfile) error
	Recommend(regime *domain.Regime) catalog.Recommendation
	VerifyRiskParameters(portfolioValue float64, positions []domain.Position) catalog.Verification
}

// ProfileHandler serves the risk profile catalog.
type ProfileHandler struct {
	catalog ProfileCatalog
	loop    LoopControl
	logger  *slog.Logger
}

// NewProfileHandler creates a ProfileHandler. loop may be nil; the
// compliance report then has no positions to check.
func NewProfileHandler(c ProfileCatalog, loop LoopControl, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{catalog: c, loop: loop, logger: logHandler(logger, "profiles")}
}

// ListProfiles returns every profile sorted by id.
// GET /api/profiles
func (h *ProfileHandler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"active":   h.catalog.Active().ID,
		"profiles": h.catalog.List(),
	})
}

// GetProfile returns one profile.
// GET /api/profiles/{id}
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, ok := h.catalog.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("profile %q not found", id))
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// PutProfile validates and stores a profile.
// PUT /api/profiles/{id}
func (h *ProfileHandler) PutProfile(w http.ResponseWriter, r *http.Request) {
	var p domain.RiskProfile
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid profile body: "+err.Error())
		return
	}
	id := r.PathValue("id")
	if err := h.catalog.Put(r.Context(), id, p); err != nil {
		writeErr(w, h.logger, r, err)
		return
	}
	saved, _ := h.catalog.Get(id)
	writeJSON(w, http.StatusOK, saved)
}

// GetActive returns the active profile.
// GET /api/profiles/active
func (h *ProfileHandler) GetActive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog.Active())
}

type activateRequest struct {
	ID string `json:"id"`
}

// SetActive switches the active profile. The loop picks it up on its next
// tick. Unknown ids answer 400.
// POST /api/profiles/active
func (h *ProfileHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := decodeJSON(r, &req); err != nil || req.ID == "" {
		writeError(w, http.StatusBadRequest, `body must be {"id": "<profile>"}`)
		return
	}
	if err := h.catalog.Activate(r.Context(), req.ID); err != nil {
		writeErr(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.catalog.Active())
}

// Recommend maps ?volatility=&trend= onto a profile without switching.
// GET /api/profiles/recommend
func (h *ProfileHandler) Recommend(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var regime *domain.Regime
	if q.Has("volatility") || q.Has("trend") {
		regime = &domain.Regime{
			Volatility: domain.Volatility(q.Get("volatility")),
			Trend:      domain.Trend(q.Get("trend")),
		}
	}
	rec := h.catalog.Recommend(regime)
	writeJSON(w, http.StatusOK, map[string]any{
		"id":        rec.ID,
		"rationale": rec.Rationale,
		"change":    rec.ID != h.catalog.Active().ID,
	})
}

// Compliance checks the loop's last position snapshot against the active
// profile.
// GET /api/profiles/compliance
func (h *ProfileHandler) Compliance(w http.ResponseWriter, r *http.Request) {
	var (
		equity    float64
		positions []domain.Position
	)
	if h.loop != nil {
		st := h.loop.Status()
		if st.Account != nil {
			equity = st.Account.Equity
		}
		positions = st.Positions
	}
	writeJSON(w, http.StatusOK, h.catalog.VerifyRiskParameters(equity, positions))
}
