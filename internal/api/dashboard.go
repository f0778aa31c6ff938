package api

import (
	"log/slog"
	"net/http"

	"github.com/Priya8975/tv-monitor/internal/domain"
	ws "github.com/Priya8975/tv-monitor/internal/websocket"
)

type DashboardHandler struct {
	log      DeliveryLog
	registry Registry
	hub      *ws.Hub
	logger   *slog.Logger
}

func NewDashboardHandler(l DeliveryLog, reg Registry, hub *ws.Hub, logger *slog.Logger) *DashboardHandler {
	return &DashboardHandler{log: l, registry: reg, hub: hub, logger: logger}
}

// Deliveries returns aggregated delivery statistics for the dashboard.
func (h *DashboardHandler) Deliveries(w http.ResponseWriter, r *http.Request) {
	stats, err := h.log.Stats(r.Context())
	if err != nil {
		h.logger.Error("failed to get delivery stats", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to get metrics")
		return
	}

	type metricsResponse struct {
		domain.DeliveryStats
		SubscribedPrograms  int `json:"subscribed_programs"`
		SubscribedEndpoints int `json:"subscribed_endpoints"`
		WebSocketClients    int `json:"websocket_clients"`
	}

	resp := metricsResponse{
		DeliveryStats:       *stats,
		SubscribedPrograms:  h.registry.CountPrograms(),
		SubscribedEndpoints: h.registry.CountEndpoints(),
	}
	if h.hub != nil {
		resp.WebSocketClients = h.hub.ClientCount()
	}
	respondJSON(w, http.StatusOK, resp)
}
