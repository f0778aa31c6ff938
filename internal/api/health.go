package api

import (
	"net/http"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status           string `json:"status"`
	MonitoringActive bool   `json:"monitoring_active"`
	Timestamp        string `json:"timestamp"`
}

// HealthHandler returns the health check handler.
func HealthHandler(m Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, HealthResponse{
			Status:           "healthy",
			MonitoringActive: m.Status().Running,
			Timestamp:        now(),
		})
	}
}
