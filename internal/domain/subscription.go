package domain

import "time"

type Subscription struct {
	ProgramTitle    string    `json:"program_title"`
	WebhookEndpoint string    `json:"webhook_endpoint"`
	IsActive        bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
}

type SubscribeRequest struct {
	ProgramTitle string `json:"program_title"`
	WebhookURL   string `json:"webhook_url"`
}
