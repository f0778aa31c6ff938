package schedule

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Priya8975/tv-monitor/internal/domain"
)

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestWatchedReader_ReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shows.csv")
	if err := os.WriteFile(path, []byte(sampleCSV), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := NewWatchedReader(path, testLogger())
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	t.Cleanup(func() { r.Close() })

	ctx := context.Background()
	programs, err := r.ReadAll(ctx)
	if err != nil || len(programs) != 2 {
		t.Fatalf("expected 2 programs, got %d (%v)", len(programs), err)
	}

	updated := "channel,date,start,title,rating,year\nmarkiza,2024-01-02,20:00,Susedia,,\n"
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}

	eventually(t, func() bool {
		programs, err := r.ReadAll(ctx)
		return err == nil && len(programs) == 1 && programs[0].Date == "2024-01-02"
	})
}

func TestWatchedReader_RemovedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shows.csv")
	if err := os.WriteFile(path, []byte(sampleCSV), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := NewWatchedReader(path, testLogger())
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	t.Cleanup(func() { r.Close() })

	if _, err := r.ReadAll(context.Background()); err != nil {
		t.Fatalf("first read failed: %v", err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	eventually(t, func() bool {
		_, err := r.ReadAll(context.Background())
		return errors.Is(err, domain.ErrScheduleUnavailable)
	})
}

func TestWatchedReader_ReturnsCopies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shows.csv")
	if err := os.WriteFile(path, []byte(sampleCSV), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := NewWatchedReader(path, testLogger())
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	t.Cleanup(func() { r.Close() })

	first, _ := r.ReadAll(context.Background())
	first[0].Title = "mutated"

	second, _ := r.ReadAll(context.Background())
	if second[0].Title == "mutated" {
		t.Error("callers must not be able to mutate the cache")
	}
}
