package deliverylog

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Priya8975/tv-monitor/internal/domain"
	"github.com/Priya8975/tv-monitor/internal/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type recordingPublisher struct {
	mu   sync.Mutex
	recs []domain.DeliveryRecord
}

func (p *recordingPublisher) Publish(rec domain.DeliveryRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recs = append(p.recs, rec)
}

type brokenStore struct{}

func (brokenStore) AppendDelivery(context.Context, domain.DeliveryRecord) error {
	return errors.New("connection reset")
}

func (brokenStore) RecentDeliveries(context.Context, int) ([]domain.DeliveryRecord, error) {
	return nil, errors.New("connection reset")
}

func (brokenStore) DeliveryStats(context.Context) (*domain.DeliveryStats, error) {
	return nil, errors.New("connection reset")
}

func setupLog(t *testing.T, pubs ...Publisher) *Log {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return New(store.NewRedisFromClient(client, logger), logger, pubs...)
}

func record(title string, o domain.Outcome) domain.DeliveryRecord {
	return domain.DeliveryRecord{
		ProgramTitle:    title,
		Channel:         "markiza",
		StartTime:       "20:00",
		WebhookEndpoint: "http://a.example/hook",
		Outcome:         o,
		SentAt:          time.Now(),
	}
}

func TestAppendAndRecent(t *testing.T) {
	pub := &recordingPublisher{}
	l := setupLog(t, pub)
	ctx := context.Background()

	for _, title := range []string{"first", "second", "third"} {
		if err := l.Append(ctx, record(title, domain.OutcomeSuccess)); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	recs, err := l.RecentEntries(ctx, 2)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(recs) != 2 || recs[0].ProgramTitle != "third" || recs[1].ProgramTitle != "second" {
		t.Errorf("unexpected entries: %+v", recs)
	}

	if len(pub.recs) != 3 {
		t.Errorf("publisher saw %d records, want 3", len(pub.recs))
	}
}

func TestRecentEntries_DefaultLimit(t *testing.T) {
	l := setupLog(t)
	ctx := context.Background()

	for i := 0; i < DefaultLimit+5; i++ {
		l.Append(ctx, record("Susedia", domain.OutcomeFailed))
	}

	recs, err := l.RecentEntries(ctx, 0)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(recs) != DefaultLimit {
		t.Errorf("expected %d entries, got %d", DefaultLimit, len(recs))
	}
}

func TestStoreFailures(t *testing.T) {
	pub := &recordingPublisher{}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	l := New(brokenStore{}, logger, pub)
	ctx := context.Background()

	var se *domain.StorageError
	if err := l.Append(ctx, record("Susedia", domain.OutcomeSuccess)); !errors.As(err, &se) {
		t.Errorf("append: expected StorageError, got %v", err)
	}
	if len(pub.recs) != 1 {
		t.Error("publisher should still see the attempt")
	}
	if _, err := l.RecentEntries(ctx, 5); !errors.As(err, &se) {
		t.Errorf("recent: expected StorageError, got %v", err)
	}
	if _, err := l.Stats(ctx); !errors.As(err, &se) {
		t.Errorf("stats: expected StorageError, got %v", err)
	}
}

func TestAppend_RejectsUnknownOutcome(t *testing.T) {
	pub := &recordingPublisher{}
	l := setupLog(t, pub)
	ctx := context.Background()

	if err := l.Append(ctx, record("Susedia", "pending")); err == nil {
		t.Fatal("expected an error for an unknown outcome")
	}
	if len(pub.recs) != 0 {
		t.Error("rejected record should not be published")
	}

	stats, err := l.Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.TotalDeliveries != 0 {
		t.Errorf("expected empty log, got %d entries", stats.TotalDeliveries)
	}
}
