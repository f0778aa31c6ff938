package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Priya8975/tv-monitor/internal/deliverylog"
	"github.com/Priya8975/tv-monitor/internal/domain"
)

type LogHandler struct {
	log    DeliveryLog
	logger *slog.Logger
}

func NewLogHandler(l DeliveryLog, logger *slog.Logger) *LogHandler {
	return &LogHandler{log: l, logger: logger}
}

// List returns the newest notification log entries. ?limit defaults to 100.
func (h *LogHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := deliverylog.DefaultLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	logs, err := h.log.RecentEntries(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list notification logs", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list notification logs")
		return
	}

	type logsResponse struct {
		Logs  []domain.DeliveryRecord `json:"logs"`
		Count int                     `json:"count"`
	}
	respondJSON(w, http.StatusOK, logsResponse{Logs: logs, Count: len(logs)})
}
