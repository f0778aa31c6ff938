package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/Priya8975/tv-monitor/internal/domain"
	ws "github.com/Priya8975/tv-monitor/internal/websocket"
)

type MonitoringHandler struct {
	monitor  Monitor
	registry Registry
	hub      *ws.Hub
	baseCtx  context.Context
	logger   *slog.Logger
}

func NewMonitoringHandler(m Monitor, reg Registry, hub *ws.Hub, baseCtx context.Context, logger *slog.Logger) *MonitoringHandler {
	return &MonitoringHandler{monitor: m, registry: reg, hub: hub, baseCtx: baseCtx, logger: logger}
}

type monitoringResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

func (h *MonitoringHandler) Start(w http.ResponseWriter, r *http.Request) {
	if h.monitor.Start(h.baseCtx) && h.hub != nil {
		h.hub.PublishStatus(true)
	}
	respondJSON(w, http.StatusOK, monitoringResponse{Message: "Monitoring started", Status: "active"})
}

func (h *MonitoringHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if h.monitor.Stop() && h.hub != nil {
		h.hub.PublishStatus(false)
	}
	respondJSON(w, http.StatusOK, monitoringResponse{Message: "Monitoring stopped", Status: "inactive"})
}

func (h *MonitoringHandler) Status(w http.ResponseWriter, r *http.Request) {
	type statusResponse struct {
		MonitoringActive    bool   `json:"monitoring_active"`
		ActiveSubscriptions int    `json:"active_subscriptions"`
		Endpoints           int    `json:"endpoints"`
		Interval            string `json:"interval"`
		Ticks               int64  `json:"ticks"`
		LastTick            string `json:"last_tick,omitempty"`
		LastError           string `json:"last_error,omitempty"`
		Timestamp           string `json:"timestamp"`
	}

	st := h.monitor.Status()
	resp := statusResponse{
		MonitoringActive:    st.Running,
		ActiveSubscriptions: h.registry.CountPrograms(),
		Endpoints:           h.registry.CountEndpoints(),
		Interval:            st.Interval.String(),
		Ticks:               st.Ticks,
		LastError:           st.LastErr,
		Timestamp:           now(),
	}
	if !st.LastTick.IsZero() {
		resp.LastTick = st.LastTick.Format(time.RFC3339)
	}
	respondJSON(w, http.StatusOK, resp)
}

// Tick runs one check cycle immediately and returns its delivery records.
func (h *MonitoringHandler) Tick(w http.ResponseWriter, r *http.Request) {
	records, err := h.monitor.Tick(context.WithoutCancel(r.Context()))
	if err != nil {
		h.logger.Warn("manual tick failed", "error", err)
		respondError(w, http.StatusServiceUnavailable, "schedule unavailable")
		return
	}
	if records == nil {
		records = []domain.DeliveryRecord{}
	}

	type tickResponse struct {
		Deliveries []domain.DeliveryRecord `json:"deliveries"`
		Count      int                     `json:"count"`
	}
	respondJSON(w, http.StatusOK, tickResponse{Deliveries: records, Count: len(records)})
}
