package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/Priya8975/tv-monitor/internal/domain"
	"github.com/Priya8975/tv-monitor/internal/engine"
)

type SubscriptionHandler struct {
	registry       Registry
	circuitBreaker *engine.CircuitBreaker
	logger         *slog.Logger
}

func NewSubscriptionHandler(reg Registry, cb *engine.CircuitBreaker, logger *slog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{registry: reg, circuitBreaker: cb, logger: logger}
}

type subscriptionResponse struct {
	Message      string `json:"message"`
	ProgramTitle string `json:"program_title"`
	WebhookURL   string `json:"webhook_url"`
}

func decodeSubscribeRequest(r *http.Request) (domain.SubscribeRequest, string) {
	var req domain.SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, "invalid request body"
	}
	req.ProgramTitle = strings.TrimSpace(req.ProgramTitle)
	req.WebhookURL = strings.TrimSpace(req.WebhookURL)

	if req.ProgramTitle == "" || req.WebhookURL == "" {
		return req, "program_title and webhook_url are required"
	}
	u, err := url.ParseRequestURI(req.WebhookURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return req, "webhook_url must be an absolute http(s) URL"
	}
	return req, ""
}

func (h *SubscriptionHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	req, msg := decodeSubscribeRequest(r)
	if msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	if err := h.registry.Subscribe(r.Context(), req.ProgramTitle, req.WebhookURL); err != nil {
		h.logger.Error("failed to subscribe",
			"error", err,
			"program_title", req.ProgramTitle,
			"webhook_endpoint", req.WebhookURL,
		)
		respondError(w, http.StatusInternalServerError, "failed to subscribe")
		return
	}

	respondJSON(w, http.StatusOK, subscriptionResponse{
		Message:      "Successfully subscribed to '" + req.ProgramTitle + "'",
		ProgramTitle: req.ProgramTitle,
		WebhookURL:   req.WebhookURL,
	})
}

func (h *SubscriptionHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	req, msg := decodeSubscribeRequest(r)
	if msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	if err := h.registry.Unsubscribe(r.Context(), req.ProgramTitle, req.WebhookURL); err != nil {
		h.logger.Error("failed to unsubscribe",
			"error", err,
			"program_title", req.ProgramTitle,
			"webhook_endpoint", req.WebhookURL,
		)
		respondError(w, http.StatusInternalServerError, "failed to unsubscribe")
		return
	}

	respondJSON(w, http.StatusOK, subscriptionResponse{
		Message:      "Successfully unsubscribed from '" + req.ProgramTitle + "'",
		ProgramTitle: req.ProgramTitle,
		WebhookURL:   req.WebhookURL,
	})
}

func (h *SubscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	type listResponse struct {
		Subscriptions map[string][]string `json:"subscriptions"`
		Count         int                 `json:"count"`
		Timestamp     string              `json:"timestamp"`
	}

	respondJSON(w, http.StatusOK, listResponse{
		Subscriptions: h.registry.ListSubscriptions(),
		Count:         h.registry.CountEndpoints(),
		Timestamp:     now(),
	})
}

// Health reports the circuit breaker state of every subscribed endpoint.
func (h *SubscriptionHandler) Health(w http.ResponseWriter, r *http.Request) {
	type endpointHealth struct {
		WebhookEndpoint string                      `json:"webhook_endpoint"`
		Programs        []string                    `json:"programs"`
		CircuitBreaker  *engine.CircuitBreakerState `json:"circuit_breaker,omitempty"`
	}

	programsByEndpoint := map[string][]string{}
	for title, endpoints := range h.registry.ListSubscriptions() {
		for _, e := range endpoints {
			programsByEndpoint[e] = append(programsByEndpoint[e], title)
		}
	}

	endpoints := make([]string, 0, len(programsByEndpoint))
	for e := range programsByEndpoint {
		endpoints = append(endpoints, e)
	}
	sort.Strings(endpoints)

	result := make([]endpointHealth, 0, len(endpoints))
	for _, e := range endpoints {
		titles := programsByEndpoint[e]
		sort.Strings(titles)

		eh := endpointHealth{WebhookEndpoint: e, Programs: titles}
		if h.circuitBreaker != nil {
			state := h.circuitBreaker.GetState(r.Context(), e)
			eh.CircuitBreaker = &state
		}
		result = append(result, eh)
	}

	respondJSON(w, http.StatusOK, result)
}
