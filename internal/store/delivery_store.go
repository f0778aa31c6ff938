package store

import (
	"context"
	"fmt"

	"github.com/Priya8975/tv-monitor/internal/domain"
)

// AppendDelivery inserts one notification log row.
func (s *PostgresStore) AppendDelivery(ctx context.Context, rec domain.DeliveryRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notification_logs (program_title, channel, start_time, webhook_endpoint, outcome, response_code, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.ProgramTitle, rec.Channel, rec.StartTime, rec.WebhookEndpoint, string(rec.Outcome), rec.ResponseCode, rec.SentAt)
	if err != nil {
		return fmt.Errorf("inserting notification log: %w", err)
	}
	return nil
}

// RecentDeliveries returns up to limit log rows, newest first.
func (s *PostgresStore) RecentDeliveries(ctx context.Context, limit int) ([]domain.DeliveryRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, program_title, channel, start_time, webhook_endpoint, outcome, response_code, sent_at
		FROM notification_logs
		ORDER BY id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying notification logs: %w", err)
	}
	defer rows.Close()

	records := []domain.DeliveryRecord{}
	for rows.Next() {
		var rec domain.DeliveryRecord
		var outcome string
		err := rows.Scan(
			&rec.ID, &rec.ProgramTitle, &rec.Channel, &rec.StartTime,
			&rec.WebhookEndpoint, &outcome, &rec.ResponseCode, &rec.SentAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning notification log: %w", err)
		}
		rec.Outcome = domain.Outcome(outcome)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating notification logs: %w", err)
	}

	return records, nil
}
