package store

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/Priya8975/tv-monitor/internal/domain"
)

// setupTestPostgres needs a disposable database in TEST_DATABASE_URL.
func setupTestPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	ctx := context.Background()
	s, err := NewPostgres(ctx, url, logger)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	if _, err := s.pool.Exec(ctx, "TRUNCATE subscriptions, notification_logs RESTART IDENTITY"); err != nil {
		t.Fatalf("failed to truncate: %v", err)
	}
	return s
}

func TestPostgres_MigrationsAreIdempotent(t *testing.T) {
	s := setupTestPostgres(t)

	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("second EnsureSchema failed: %v", err)
	}
}

func TestPostgres_SubscriptionLifecycle(t *testing.T) {
	s := setupTestPostgres(t)
	ctx := context.Background()

	s.UpsertSubscription(ctx, "Susedia", "http://a.example/hook")
	s.UpsertSubscription(ctx, "Susedia", "http://a.example/hook")
	s.UpsertSubscription(ctx, "Krimi", "http://a.example/hook")

	subs, err := s.ListActiveSubscriptions(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("expected 2 subscriptions, got %d", len(subs))
	}

	if err := s.DeactivateSubscription(ctx, "Susedia", "http://a.example/hook"); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}
	subs, _ = s.ListActiveSubscriptions(ctx)
	if len(subs) != 1 || subs[0].ProgramTitle != "Krimi" {
		t.Errorf("unexpected subscriptions after deactivate: %+v", subs)
	}

	s.UpsertSubscription(ctx, "Susedia", "http://a.example/hook")
	subs, _ = s.ListActiveSubscriptions(ctx)
	if len(subs) != 2 {
		t.Errorf("re-subscribe should reactivate, got %d active", len(subs))
	}
}

func TestPostgres_DeliveriesAndStats(t *testing.T) {
	s := setupTestPostgres(t)
	ctx := context.Background()

	outcomes := []domain.Outcome{domain.OutcomeSuccess, domain.OutcomeSuccess, domain.OutcomeFailed, domain.OutcomeError}
	for i, o := range outcomes {
		err := s.AppendDelivery(ctx, domain.DeliveryRecord{
			ProgramTitle:    "Susedia",
			Channel:         "markiza",
			StartTime:       "20:00",
			WebhookEndpoint: "http://a.example/hook",
			Outcome:         o,
			ResponseCode:    200 + i,
			SentAt:          time.Now(),
		})
		if err != nil {
			t.Fatalf("append %d failed: %v", i, err)
		}
	}

	recs, err := s.RecentDeliveries(ctx, 2)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(recs) != 2 || recs[0].Outcome != domain.OutcomeError || recs[1].Outcome != domain.OutcomeFailed {
		t.Errorf("expected newest first, got %+v", recs)
	}

	stats, err := s.DeliveryStats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.TotalDeliveries != 4 || stats.SuccessCount != 2 || stats.FailedCount != 1 || stats.ErrorCount != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.SuccessRate != 50 {
		t.Errorf("success rate = %v, want 50", stats.SuccessRate)
	}
}
