package store

import (
	"context"
	"fmt"

	"github.com/Priya8975/tv-monitor/internal/domain"
)

// DeliveryStats returns aggregated delivery statistics from the database.
func (s *PostgresStore) DeliveryStats(ctx context.Context) (*domain.DeliveryStats, error) {
	var m domain.DeliveryStats

	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE outcome = 'success') AS success,
			COUNT(*) FILTER (WHERE outcome = 'failed') AS failed,
			COUNT(*) FILTER (WHERE outcome = 'error') AS errored
		FROM notification_logs
	`).Scan(&m.TotalDeliveries, &m.SuccessCount, &m.FailedCount, &m.ErrorCount)
	if err != nil {
		return nil, fmt.Errorf("querying delivery metrics: %w", err)
	}

	m.ComputeRate()
	return &m, nil
}
