package store

import (
	"context"
	"fmt"

	"github.com/Priya8975/tv-monitor/internal/domain"
)

// UpsertSubscription inserts the (title, endpoint) pair or reactivates it if
// it was previously unsubscribed.
func (s *PostgresStore) UpsertSubscription(ctx context.Context, title, endpoint string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subscriptions (program_title, webhook_endpoint)
		VALUES ($1, $2)
		ON CONFLICT (program_title, webhook_endpoint) DO UPDATE SET active = TRUE
	`, title, endpoint)
	if err != nil {
		return fmt.Errorf("upserting subscription: %w", err)
	}
	return nil
}

// DeactivateSubscription marks matching rows inactive. Missing rows are not an error.
func (s *PostgresStore) DeactivateSubscription(ctx context.Context, title, endpoint string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE subscriptions SET active = FALSE
		WHERE program_title = $1 AND webhook_endpoint = $2
	`, title, endpoint)
	if err != nil {
		return fmt.Errorf("deactivating subscription: %w", err)
	}
	return nil
}

// ListActiveSubscriptions returns every active row. Rows that fail to scan
// are logged and skipped.
func (s *PostgresStore) ListActiveSubscriptions(ctx context.Context) ([]domain.Subscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT program_title, webhook_endpoint, active, created_at
		FROM subscriptions
		WHERE active = TRUE
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying subscriptions: %w", err)
	}
	defer rows.Close()

	subs := []domain.Subscription{}
	for rows.Next() {
		var sub domain.Subscription
		if err := rows.Scan(&sub.ProgramTitle, &sub.WebhookEndpoint, &sub.IsActive, &sub.CreatedAt); err != nil {
			s.logger.Warn("skipping malformed subscription row", "error", err)
			continue
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating subscriptions: %w", err)
	}

	return subs, nil
}
