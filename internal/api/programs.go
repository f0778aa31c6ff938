package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/Priya8975/tv-monitor/internal/domain"
)

type ProgramHandler struct {
	monitor Monitor
	logger  *slog.Logger
}

func NewProgramHandler(m Monitor, logger *slog.Logger) *ProgramHandler {
	return &ProgramHandler{monitor: m, logger: logger}
}

type programsResponse struct {
	Programs  []domain.Program `json:"programs"`
	Count     int              `json:"count"`
	Timestamp string           `json:"timestamp"`
}

// Current lists programs airing right now.
func (h *ProgramHandler) Current(w http.ResponseWriter, r *http.Request) {
	programs, err := h.monitor.CurrentPrograms(r.Context())
	if err != nil {
		// Status queries are best-effort: an unreadable schedule means nothing is airing.
		h.logger.Warn("failed to read schedule", "error", err)
		programs = []domain.Program{}
	}

	respondJSON(w, http.StatusOK, programsResponse{
		Programs:  programs,
		Count:     len(programs),
		Timestamp: now(),
	})
}

func (h *ProgramHandler) All(w http.ResponseWriter, r *http.Request) {
	programs, err := h.monitor.AllPrograms(r.Context())
	if errors.Is(err, domain.ErrScheduleUnavailable) {
		respondError(w, http.StatusNotFound, "schedule not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to read schedule", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to read schedule")
		return
	}

	respondJSON(w, http.StatusOK, programsResponse{
		Programs:  programs,
		Count:     len(programs),
		Timestamp: now(),
	})
}
