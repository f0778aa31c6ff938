// Package deliverylog is the append-only audit trail of webhook attempts.
package deliverylog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Priya8975/tv-monitor/internal/domain"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

type Store interface {
	AppendDelivery(ctx context.Context, rec domain.DeliveryRecord) error
	RecentDeliveries(ctx context.Context, limit int) ([]domain.DeliveryRecord, error)
	DeliveryStats(ctx context.Context) (*domain.DeliveryStats, error)
}

// Publisher receives every record after it has been stored.
type Publisher interface {
	Publish(rec domain.DeliveryRecord)
}

type Log struct {
	store      Store
	publishers []Publisher
	logger     *slog.Logger
}

func New(store Store, logger *slog.Logger, publishers ...Publisher) *Log {
	return &Log{store: store, publishers: publishers, logger: logger}
}

// Append stores rec. Publishers are notified even if the write fails so the
// live feed still shows the attempt.
func (l *Log) Append(ctx context.Context, rec domain.DeliveryRecord) error {
	if !rec.Outcome.Valid() {
		return fmt.Errorf("unknown delivery outcome %q", rec.Outcome)
	}

	err := l.store.AppendDelivery(ctx, rec)
	if err != nil {
		l.logger.Error("failed to record delivery",
			"error", err,
			"program_title", rec.ProgramTitle,
			"webhook_endpoint", rec.WebhookEndpoint,
			"outcome", rec.Outcome,
		)
		err = &domain.StorageError{Op: "append delivery", Err: err}
	}

	for _, p := range l.publishers {
		p.Publish(rec)
	}
	return err
}

// RecentEntries returns up to limit records, newest first. limit is clamped
// to [1, MaxLimit]; zero or negative means DefaultLimit.
func (l *Log) RecentEntries(ctx context.Context, limit int) ([]domain.DeliveryRecord, error) {
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}

	recs, err := l.store.RecentDeliveries(ctx, limit)
	if err != nil {
		return nil, &domain.StorageError{Op: "recent deliveries", Err: err}
	}
	return recs, nil
}

func (l *Log) Stats(ctx context.Context) (*domain.DeliveryStats, error) {
	stats, err := l.store.DeliveryStats(ctx)
	if err != nil {
		return nil, &domain.StorageError{Op: "delivery stats", Err: err}
	}
	return stats, nil
}
