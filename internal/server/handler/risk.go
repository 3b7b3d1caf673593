package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/tradeloop/internal/domain"
	"github.com/alanyoungcy/tradeloop/internal/risk"
)

// RiskAudit is the in-process audit state. *risk.Auditor satisfies it.
type RiskAudit interface {
	History() []domain.Violation
	EquityHistory() []risk.EquitySample
	Summary() risk.Summary
}

// RiskHandler serves violations and audit summaries. Without an in-process
// auditor it falls back to the persisted violation log.
type RiskHandler struct {
	audit  RiskAudit
	store  domain.ViolationStore
	logger *slog.Logger
}

// NewRiskHandler creates a RiskHandler. Either argument may be nil.
func NewRiskHandler(audit RiskAudit, store domain.ViolationStore, logger *slog.Logger) *RiskHandler {
	return &RiskHandler{audit: audit, store: store, logger: logHandler(logger, "risk")}
}

// ListViolations returns the most recent violations, newest first.
// GET /api/violations?limit=N
func (h *RiskHandler) ListViolations(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		limit = min(n, 1000)
	}

	var vs []domain.Violation
	switch {
	case h.audit != nil:
		hist := h.audit.History()
		for i := len(hist) - 1; i >= 0 && len(vs) < limit; i-- {
			vs = append(vs, hist[i])
		}
	case h.store != nil:
		var err error
		if vs, err = h.store.ListRecent(r.Context(), limit); err != nil {
			writeErr(w, h.logger, r, err)
			return
		}
	}
	if vs == nil {
		vs = []domain.Violation{}
	}
	writeJSON(w, http.StatusOK, vs)
}

// GetSummary returns the audit summary.
// GET /api/risk/summary
func (h *RiskHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeError(w, http.StatusNotFound, "risk audit is not running in this process")
		return
	}
	writeJSON(w, http.StatusOK, h.audit.Summary())
}

// GetEquity returns the bounded portfolio value history.
// GET /api/risk/equity
func (h *RiskHandler) GetEquity(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeError(w, http.StatusNotFound, "risk audit is not running in this process")
		return
	}
	writeJSON(w, http.StatusOK, h.audit.EquityHistory())
}
