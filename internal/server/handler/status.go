package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/tradeloop/internal/orchestrator"
)

// LoopControl is the part of the trading loop the API exposes.
type LoopControl interface {
	Status() orchestrator.Status
	Stop(ctx context.Context) error
}

// StatusHandler serves process and loop status. loop is nil when this
// process does not trade (monitor and server modes).
type StatusHandler struct {
	mode      string
	startedAt time.Time
	loop      LoopControl
	logger    *slog.Logger
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, startedAt time.Time, loop LoopControl, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{mode: mode, startedAt: startedAt, loop: loop, logger: logHandler(logger, "status")}
}

// GetStatus responds with the mode, uptime and a loop snapshot.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"mode":           h.mode,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	}
	if h.loop != nil {
		resp["loop"] = h.loop.Status()
	}
	writeJSON(w, http.StatusOK, resp)
}

// StopLoop asks the loop to stop and waits for it to reach Stopped.
// POST /api/loop/stop
func (h *StatusHandler) StopLoop(w http.ResponseWriter, r *http.Request) {
	if h.loop == nil {
		writeError(w, http.StatusConflict, "no trading loop in this process")
		return
	}
	h.logger.InfoContext(r.Context(), "stop requested over api")
	if err := h.loop.Stop(r.Context()); err != nil {
		writeErr(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": h.loop.Status().State})
}
