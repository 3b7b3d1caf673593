package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// VenueDirectory lists venues and switches the active one.
// *venue.Registry satisfies it.
type VenueDirectory interface {
	Venues() []domain.VenueInfo
	Activate(id string) error
}

// VenueHandler serves the venue registry.
type VenueHandler struct {
	venues VenueDirectory
	logger *slog.Logger
}

// NewVenueHandler creates a VenueHandler.
func NewVenueHandler(v VenueDirectory, logger *slog.Logger) *VenueHandler {
	return &VenueHandler{venues: v, logger: logHandler(logger, "venues")}
}

// ListVenues returns every registered venue.
// GET /api/venues
func (h *VenueHandler) ListVenues(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.venues.Venues())
}

// SetActive switches the active venue. Unknown or disabled venues answer
// 400 and leave the selection unchanged.
// POST /api/venues/active
func (h *VenueHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := decodeJSON(r, &req); err != nil || req.ID == "" {
		writeError(w, http.StatusBadRequest, `body must be {"id": "<venue>"}`)
		return
	}
	if err := h.venues.Activate(req.ID); err != nil {
		writeErr(w, h.logger, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "active venue switched over api", slog.String("venue", req.ID))
	writeJSON(w, http.StatusOK, h.venues.Venues())
}
