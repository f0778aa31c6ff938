package domain

import (
	"time"
)

// Outcome classifies a single webhook delivery attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	OutcomeError   Outcome = "error"
)

// Valid reports whether o is one of the known outcomes.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeSuccess, OutcomeFailed, OutcomeError:
		return true
	}
	return false
}

// DeliveryRecord is one row of the notification audit trail.
type DeliveryRecord struct {
	ID              int64     `json:"id,omitempty"`
	ProgramTitle    string    `json:"program_title"`
	Channel         string    `json:"channel"`
	StartTime       string    `json:"start_time"`
	WebhookEndpoint string    `json:"webhook_endpoint"`
	Outcome         Outcome   `json:"outcome"`
	ResponseCode    int       `json:"response_code"`
	SentAt          time.Time `json:"sent_at"`
}

// DeliveryStats aggregates the audit trail for the dashboard.
type DeliveryStats struct {
	TotalDeliveries int     `json:"total_deliveries"`
	SuccessCount    int     `json:"success_count"`
	FailedCount     int     `json:"failed_count"`
	ErrorCount      int     `json:"error_count"`
	SuccessRate     float64 `json:"success_rate"`
}

// ComputeRate fills SuccessRate as a percentage of TotalDeliveries.
func (s *DeliveryStats) ComputeRate() {
	if s.TotalDeliveries > 0 {
		s.SuccessRate = float64(s.SuccessCount) / float64(s.TotalDeliveries) * 100
	}
}

// Notification is the JSON body posted to subscriber endpoints.
type Notification struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Program   Program   `json:"program"`
}

const EventProgramStarted = "program_started"
