package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Priya8975/tv-monitor/internal/domain"
)

var nowFunc = time.Now

// Store is the durable backend shared by the subscription registry and the
// delivery log.
type Store interface {
	EnsureSchema(ctx context.Context) error

	UpsertSubscription(ctx context.Context, title, endpoint string) error
	DeactivateSubscription(ctx context.Context, title, endpoint string) error
	ListActiveSubscriptions(ctx context.Context) ([]domain.Subscription, error)

	AppendDelivery(ctx context.Context, rec domain.DeliveryRecord) error
	RecentDeliveries(ctx context.Context, limit int) ([]domain.DeliveryRecord, error)
	DeliveryStats(ctx context.Context) (*domain.DeliveryStats, error)

	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Driver      string
	DatabaseURL string
	SQLitePath  string
	RedisURL    string
}

// Open connects to the configured backend and makes sure its schema exists.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (Store, error) {
	var (
		s   Store
		err error
	)

	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", "sqlite", "sqlite3":
		s, err = NewSQLite(ctx, opts.SQLitePath, logger)
	case "postgres", "postgresql":
		s, err = NewPostgres(ctx, opts.DatabaseURL, logger)
	case "redis":
		s, err = NewRedis(ctx, opts.RedisURL, logger)
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := s.EnsureSchema(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return s, nil
}
