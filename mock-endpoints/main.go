// Command mock-endpoints is a local webhook receiver for trying the monitor
// without real subscribers.
//
//	POST /webhook/success  200
//	POST /webhook/slow     200 after SLOW_DELAY (default 15s, past the monitor's timeout)
//	POST /webhook/fail     500
//	POST /webhook/flaky    alternates 500 and 200
//	GET  /stats            request counts per endpoint
package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/Priya8975/tv-monitor/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type counters struct {
	mu sync.Mutex
	n  map[string]int
}

func (c *counters) inc(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n[name]++
	return c.n[name]
}

func (c *counters) snapshot() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.n))
	for k, v := range c.n {
		out[k] = v
	}
	return out
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	port := "9090"
	if p := os.Getenv("PORT"); p != "" {
		port = p
	}
	slowDelay := 15 * time.Second
	if d, err := time.ParseDuration(os.Getenv("SLOW_DELAY")); err == nil {
		slowDelay = d
	}

	hits := &counters{n: map[string]int{}}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/webhook/success", receiver(logger, hits, "success", 0, func(int) int { return http.StatusOK }))
	r.Post("/webhook/slow", receiver(logger, hits, "slow", slowDelay, func(int) int { return http.StatusOK }))
	r.Post("/webhook/fail", receiver(logger, hits, "fail", 0, func(int) int { return http.StatusInternalServerError }))
	r.Post("/webhook/flaky", receiver(logger, hits, "flaky", 0, func(n int) int {
		if n%2 == 1 {
			return http.StatusInternalServerError
		}
		return http.StatusOK
	}))
	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(hits.snapshot())
	})

	logger.Info("mock endpoints listening", "port", port, "slow_delay", slowDelay.String())
	if err := http.ListenAndServe(":"+port, r); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// receiver logs the notification and answers with status(n), where n counts
// calls to this endpoint. A delay longer than the caller's timeout shows up
// on the monitor side as an "error" outcome.
func receiver(logger *slog.Logger, hits *counters, name string, delay time.Duration, status func(n int) int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := hits.inc(name)

		var note domain.Notification
		if err := json.NewDecoder(r.Body).Decode(&note); err != nil {
			logger.Warn("unreadable notification", "endpoint", name, "error", err)
		}

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				logger.Info("caller hung up", "endpoint", name, "program_title", note.Program.Title)
				return
			}
		}

		code := status(n)
		logger.Info("notification received",
			"endpoint", name,
			"count", n,
			"status", code,
			"event", note.Event,
			"program_title", note.Program.Title,
			"channel", note.Program.Channel,
			"start", note.Program.Date+" "+note.Program.Start,
		)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]any{"status": http.StatusText(code), "count": n})
	}
}
