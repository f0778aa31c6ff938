package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/Priya8975/tv-monitor/internal/domain"
	"github.com/Priya8975/tv-monitor/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func setupRegistry(t *testing.T) (*Registry, *store.SQLiteStore) {
	t.Helper()
	ctx := context.Background()

	s, err := store.NewSQLite(ctx, ":memory:", testLogger())
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}

	r := New(s, testLogger())
	if err := r.Load(ctx); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	return r, s
}

// failingStore rejects every write.
type failingStore struct{}

func (failingStore) UpsertSubscription(context.Context, string, string) error {
	return errors.New("disk full")
}

func (failingStore) DeactivateSubscription(context.Context, string, string) error {
	return errors.New("disk full")
}

func (failingStore) ListActiveSubscriptions(context.Context) ([]domain.Subscription, error) {
	return nil, errors.New("disk full")
}

func TestSubscribe_ShowsInList(t *testing.T) {
	r, _ := setupRegistry(t)
	ctx := context.Background()

	if err := r.Subscribe(ctx, "Susedia", "http://a.example/hook"); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	subs := r.ListSubscriptions()
	if got := subs["Susedia"]; len(got) != 1 || got[0] != "http://a.example/hook" {
		t.Errorf("Susedia endpoints = %v", got)
	}
}

func TestSubscribe_Idempotent(t *testing.T) {
	r, _ := setupRegistry(t)
	ctx := context.Background()

	r.Subscribe(ctx, "Susedia", "http://a.example/hook")
	r.Subscribe(ctx, "Susedia", "http://a.example/hook")

	if n := len(r.ListSubscriptions()["Susedia"]); n != 1 {
		t.Errorf("expected 1 endpoint after duplicate subscribe, got %d", n)
	}
	if n := r.CountEndpoints(); n != 1 {
		t.Errorf("CountEndpoints = %d, want 1", n)
	}
}

func TestUnsubscribe_RemovesEndpointAndTitle(t *testing.T) {
	r, _ := setupRegistry(t)
	ctx := context.Background()

	r.Subscribe(ctx, "Susedia", "http://a.example/hook")
	r.Subscribe(ctx, "Susedia", "http://b.example/hook")

	if err := r.Unsubscribe(ctx, "Susedia", "http://a.example/hook"); err != nil {
		t.Fatalf("unsubscribe failed: %v", err)
	}
	if got := r.Endpoints("Susedia"); len(got) != 1 || got[0] != "http://b.example/hook" {
		t.Errorf("remaining endpoints = %v", got)
	}

	r.Unsubscribe(ctx, "Susedia", "http://b.example/hook")
	if _, ok := r.ListSubscriptions()["Susedia"]; ok {
		t.Error("title should be removed once its endpoint set is empty")
	}
	if r.CountPrograms() != 0 {
		t.Errorf("CountPrograms = %d, want 0", r.CountPrograms())
	}
}

func TestUnsubscribe_UnknownIsNoop(t *testing.T) {
	r, _ := setupRegistry(t)

	if err := r.Unsubscribe(context.Background(), "Never", "http://x.example"); err != nil {
		t.Errorf("expected success, got %v", err)
	}
}

func TestListSubscriptions_ReturnsCopy(t *testing.T) {
	r, _ := setupRegistry(t)
	ctx := context.Background()

	r.Subscribe(ctx, "Susedia", "http://a.example/hook")

	snap := r.ListSubscriptions()
	snap["Susedia"][0] = "mutated"
	snap["Other"] = []string{"x"}

	if got := r.Endpoints("Susedia"); got[0] != "http://a.example/hook" {
		t.Errorf("registry was mutated through snapshot: %v", got)
	}
	if r.CountPrograms() != 1 {
		t.Errorf("registry gained a title through snapshot")
	}
}

func TestLoad_RebuildsFromStore(t *testing.T) {
	r, s := setupRegistry(t)
	ctx := context.Background()

	r.Subscribe(ctx, "Susedia", "http://a.example/hook")
	r.Subscribe(ctx, "Krimi", "http://b.example/hook")
	r.Unsubscribe(ctx, "Krimi", "http://b.example/hook")

	// Empty endpoints are treated as corrupt and skipped.
	if _, err := s.DB().Exec(`INSERT INTO subscriptions (program_title, webhook_endpoint, created_at, active) VALUES ('Broken', '', 0, 1)`); err != nil {
		t.Fatalf("insert: %v", err)
	}

	fresh := New(s, testLogger())
	if err := fresh.Load(ctx); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	subs := fresh.ListSubscriptions()
	if len(subs) != 1 {
		t.Fatalf("expected only Susedia after reload, got %v", subs)
	}
	if got := subs["Susedia"]; len(got) != 1 {
		t.Errorf("Susedia endpoints = %v", got)
	}
}

func TestStorageFailuresSurface(t *testing.T) {
	r := New(failingStore{}, testLogger())
	ctx := context.Background()

	var se *domain.StorageError
	if err := r.Subscribe(ctx, "Susedia", "http://a.example"); !errors.As(err, &se) {
		t.Errorf("subscribe: expected StorageError, got %v", err)
	}
	if r.CountEndpoints() != 0 {
		t.Error("failed subscribe must not touch the mirror")
	}
	if err := r.Unsubscribe(ctx, "Susedia", "http://a.example"); !errors.As(err, &se) {
		t.Errorf("unsubscribe: expected StorageError, got %v", err)
	}
	if err := r.Load(ctx); !errors.As(err, &se) {
		t.Errorf("load: expected StorageError, got %v", err)
	}
}

func TestConcurrentAccess(t *testing.T) {
	r, _ := setupRegistry(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			r.Subscribe(ctx, "Susedia", fmt.Sprintf("http://e%d.example", i%5))
		}(i)
		go func() {
			defer wg.Done()
			_ = r.ListSubscriptions()
			_ = r.CountEndpoints()
		}()
	}
	wg.Wait()

	if n := r.CountEndpoints(); n != 5 {
		t.Errorf("expected 5 distinct endpoints, got %d", n)
	}
}
