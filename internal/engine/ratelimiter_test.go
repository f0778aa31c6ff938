package engine

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestRL(t *testing.T) (*RateLimiter, *fakeClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	clock := &fakeClock{t: time.Date(2024, 3, 9, 20, 0, 0, 0, time.UTC)}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewRateLimiter(client, logger).WithClock(clock.Now), clock
}

func TestRateLimiter_Limit(t *testing.T) {
	tests := []struct {
		name     string
		limit    int
		requests int
		allowed  int
	}{
		{"within limit", 5, 5, 5},
		{"over limit", 3, 6, 3},
		{"zero disables", 0, 50, 50},
		{"negative disables", -1, 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl, _ := setupTestRL(t)
			ctx := context.Background()

			got := 0
			for i := 0; i < tt.requests; i++ {
				if ok, _ := rl.Allow(ctx, "10.0.0.1", tt.limit); ok {
					got++
				}
			}
			if got != tt.allowed {
				t.Errorf("allowed %d of %d, want %d", got, tt.requests, tt.allowed)
			}
		})
	}
}

func TestRateLimiter_RetryAfter(t *testing.T) {
	rl, clock := setupTestRL(t)
	ctx := context.Background()

	rl.Allow(ctx, "10.0.0.1", 2)
	clock.Advance(300 * time.Millisecond)
	rl.Allow(ctx, "10.0.0.1", 2)

	ok, wait := rl.Allow(ctx, "10.0.0.1", 2)
	if ok {
		t.Fatal("third request should be refused")
	}
	// The first request leaves the one second window 700ms from now.
	if wait != 700*time.Millisecond {
		t.Errorf("retry after = %s, want 700ms", wait)
	}
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	rl, clock := setupTestRL(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		rl.Allow(ctx, "10.0.0.1", 2)
	}
	if ok, _ := rl.Allow(ctx, "10.0.0.1", 2); ok {
		t.Fatal("limit should be reached")
	}

	clock.Advance(1001 * time.Millisecond)
	if ok, _ := rl.Allow(ctx, "10.0.0.1", 2); !ok {
		t.Error("request should be admitted once the window has passed")
	}
}

func TestRateLimiter_CustomWindow(t *testing.T) {
	rl, clock := setupTestRL(t)
	rl.WithWindow(time.Minute)
	ctx := context.Background()

	rl.Allow(ctx, "10.0.0.1", 1)
	clock.Advance(30 * time.Second)

	ok, wait := rl.Allow(ctx, "10.0.0.1", 1)
	if ok {
		t.Fatal("request inside a one minute window should be refused")
	}
	if wait != 30*time.Second {
		t.Errorf("retry after = %s, want 30s", wait)
	}
}

func TestRateLimiter_IsolationBetweenClients(t *testing.T) {
	rl, _ := setupTestRL(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		rl.Allow(ctx, "10.0.0.1", 2)
	}

	if ok, _ := rl.Allow(ctx, "10.0.0.1", 2); ok {
		t.Error("first client should be limited")
	}
	if ok, _ := rl.Allow(ctx, "10.0.0.2", 2); !ok {
		t.Error("second client should be allowed, limits are per client")
	}
}

func TestRateLimiter_RedisDownFailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	t.Cleanup(func() { client.Close() })

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	rl := NewRateLimiter(client, logger)

	if ok, _ := rl.Allow(context.Background(), "10.0.0.1", 1); !ok {
		t.Error("limiter should allow requests when redis is unreachable")
	}
}
