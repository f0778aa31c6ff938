package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Priya8975/tv-monitor/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps subscriptions and notification logs in a local file.
// Timestamps are stored as unix nanoseconds.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLite opens (or creates) the database at path. ":memory:" is accepted.
func NewSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	// SQLite prefers a single writer; this also keeps ":memory:" on one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging sqlite: %w", err)
	}

	_, _ = db.ExecContext(ctx, "PRAGMA busy_timeout = 5000")
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")

	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the tables if they do not exist.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations/sqlite/schema.sql")
	if err != nil {
		return fmt.Errorf("reading sqlite schema: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, string(b)); err != nil {
		return fmt.Errorf("applying sqlite schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpsertSubscription(ctx context.Context, title, endpoint string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (program_title, webhook_endpoint, created_at, active)
		VALUES (?, ?, ?, 1)
		ON CONFLICT (program_title, webhook_endpoint) DO UPDATE SET active = 1
	`, title, endpoint, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("upserting subscription: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeactivateSubscription(ctx context.Context, title, endpoint string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE subscriptions SET active = 0
		WHERE program_title = ? AND webhook_endpoint = ?
	`, title, endpoint)
	if err != nil {
		return fmt.Errorf("deactivating subscription: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListActiveSubscriptions(ctx context.Context) ([]domain.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT program_title, webhook_endpoint, created_at
		FROM subscriptions
		WHERE active = 1
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying subscriptions: %w", err)
	}
	defer rows.Close()

	subs := []domain.Subscription{}
	for rows.Next() {
		var (
			sub     domain.Subscription
			created int64
		)
		if err := rows.Scan(&sub.ProgramTitle, &sub.WebhookEndpoint, &created); err != nil {
			s.logger.Warn("skipping malformed subscription row", "error", err)
			continue
		}
		sub.IsActive = true
		sub.CreatedAt = time.Unix(0, created)
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating subscriptions: %w", err)
	}
	return subs, nil
}

func (s *SQLiteStore) AppendDelivery(ctx context.Context, rec domain.DeliveryRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_logs (program_title, channel, start_time, webhook_endpoint, outcome, response_code, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.ProgramTitle, rec.Channel, rec.StartTime, rec.WebhookEndpoint, string(rec.Outcome), rec.ResponseCode, rec.SentAt.UnixNano())
	if err != nil {
		return fmt.Errorf("inserting notification log: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RecentDeliveries(ctx context.Context, limit int) ([]domain.DeliveryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, program_title, channel, start_time, webhook_endpoint, outcome, response_code, sent_at
		FROM notification_logs
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying notification logs: %w", err)
	}
	defer rows.Close()

	records := []domain.DeliveryRecord{}
	for rows.Next() {
		var (
			rec     domain.DeliveryRecord
			outcome string
			sentAt  int64
		)
		err := rows.Scan(
			&rec.ID, &rec.ProgramTitle, &rec.Channel, &rec.StartTime,
			&rec.WebhookEndpoint, &outcome, &rec.ResponseCode, &sentAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning notification log: %w", err)
		}
		rec.Outcome = domain.Outcome(outcome)
		rec.SentAt = time.Unix(0, sentAt)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating notification logs: %w", err)
	}
	return records, nil
}

func (s *SQLiteStore) DeliveryStats(ctx context.Context) (*domain.DeliveryStats, error) {
	var m domain.DeliveryStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN outcome = 'success' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN outcome = 'failed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN outcome = 'error' THEN 1 ELSE 0 END), 0)
		FROM notification_logs
	`).Scan(&m.TotalDeliveries, &m.SuccessCount, &m.FailedCount, &m.ErrorCount)
	if err != nil {
		return nil, fmt.Errorf("querying delivery metrics: %w", err)
	}
	m.ComputeRate()
	return &m, nil
}

func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}
