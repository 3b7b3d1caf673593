package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/tradeloop/internal/domain"
	"github.com/alanyoungcy/tradeloop/internal/server/ws"
)

// JournalHandler serves the persisted record of trading: archived daily
// reports, the order journal, the audit log and the trade stream. Each
// source is optional; a missing one answers 404.
type JournalHandler struct {
	reports domain.ReportArchiver
	orders  domain.OrderStore
	audit   domain.AuditStore
	bus     domain.SignalBus
	logger  *slog.Logger
}

// NewJournalHandler creates a JournalHandler.
func NewJournalHandler(reports domain.ReportArchiver, orders domain.OrderStore, audit domain.AuditStore, bus domain.SignalBus, logger *slog.Logger) *JournalHandler {
	return &JournalHandler{reports: reports, orders: orders, audit: audit, bus: bus, logger: logHandler(logger, "journal")}
}

func (h *JournalHandler) unavailable(w http.ResponseWriter, what string) {
	writeError(w, http.StatusNotFound, what+" is not configured")
}

// ListReports returns the archived report days, oldest first.
// GET /api/reports
func (h *JournalHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		h.unavailable(w, "report archive")
		return
	}
	days, err := h.reports.Days(r.Context())
	if err != nil {
		writeErr(w, h.logger, r, err)
		return
	}
	if days == nil {
		days = []string{}
	}
	writeJSON(w, http.StatusOK, days)
}

// GetReport returns the archived report for a trading day (YYYY-MM-DD).
// GET /api/reports/{day}
func (h *JournalHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		h.unavailable(w, "report archive")
		return
	}
	rep, err := h.reports.LoadReport(r.Context(), r.PathValue("day"))
	if err != nil {
		writeErr(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// ListOrders pages through the order journal, newest first.
// GET /api/orders
func (h *JournalHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	if h.orders == nil {
		h.unavailable(w, "order journal")
		return
	}
	orders, err := h.orders.List(r.Context(), parseListOpts(r))
	if err != nil {
		writeErr(w, h.logger, r, err)
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

// GetOrder returns one journaled order.
// GET /api/orders/{id}
func (h *JournalHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	if h.orders == nil {
		h.unavailable(w, "order journal")
		return
	}
	o, err := h.orders.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErr(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// ListAudit pages through the audit log, newest first.
// GET /api/audit
func (h *JournalHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		h.unavailable(w, "audit log")
		return
	}
	entries, err := h.audit.List(r.Context(), parseListOpts(r))
	if err != nil {
		writeErr(w, h.logger, r, err)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// ListTrades reads the trade stream after the given entry id ("0" reads
// from the start).
// GET /api/trades?after=<id>&count=N
func (h *JournalHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	if h.bus == nil {
		h.unavailable(w, "trade stream")
		return
	}
	q := r.URL.Query()
	after := q.Get("after")
	if after == "" {
		after = "0"
	}
	count := 100
	if n, err := strconv.Atoi(q.Get("count")); err == nil && n > 0 {
		count = min(n, 1000)
	}
	msgs, err := h.bus.StreamRead(r.Context(), ws.TradeStream, after, count)
	if err != nil {
		writeErr(w, h.logger, r, err)
		return
	}
	type entry struct {
		ID    string          `json:"id"`
		Event json.RawMessage `json:"event"`
	}
	out := make([]entry, 0, len(msgs))
	for _, m := range msgs {
		if !json.Valid(m.Payload) {
			continue
		}
		out = append(out, entry{ID: m.ID, Event: m.Payload})
	}
	writeJSON(w, http.StatusOK, out)
}
