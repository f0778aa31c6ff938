package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/Priya8975/tv-monitor/internal/domain"
	"github.com/Priya8975/tv-monitor/internal/engine"
	"github.com/Priya8975/tv-monitor/internal/monitor"
	ws "github.com/Priya8975/tv-monitor/internal/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Registry is the subscription surface the API needs.
type Registry interface {
	Subscribe(ctx context.Context, title, endpoint string) error
	Unsubscribe(ctx context.Context, title, endpoint string) error
	ListSubscriptions() map[string][]string
	CountEndpoints() int
	CountPrograms() int
}

// Monitor is the scheduler loop surface the API needs.
type Monitor interface {
	Start(ctx context.Context) bool
	Stop() bool
	Status() monitor.Status
	Tick(ctx context.Context) ([]domain.DeliveryRecord, error)
	CurrentPrograms(ctx context.Context) ([]domain.Program, error)
	AllPrograms(ctx context.Context) ([]domain.Program, error)
}

type DeliveryLog interface {
	RecentEntries(ctx context.Context, limit int) ([]domain.DeliveryRecord, error)
	Stats(ctx context.Context) (*domain.DeliveryStats, error)
}

// Deps wires the router. Hub, Breaker, Limiter and Metrics are optional.
type Deps struct {
	Registry Registry
	Monitor  Monitor
	Log      DeliveryLog
	Hub      *ws.Hub
	Breaker  *engine.CircuitBreaker
	Limiter  *engine.RateLimiter
	// RateLimit is requests per second per client on subscription changes.
	RateLimit int
	Metrics   http.Handler
	Logger    *slog.Logger
	// BaseContext outlives requests; the monitor loop started over HTTP runs on it.
	BaseContext context.Context
}

// NewRouter creates and configures the HTTP router.
func NewRouter(d Deps) http.Handler {
	if d.BaseContext == nil {
		d.BaseContext = context.Background()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(corsMiddleware)

	subHandler := NewSubscriptionHandler(d.Registry, d.Breaker, d.Logger)
	progHandler := NewProgramHandler(d.Monitor, d.Logger)
	monHandler := NewMonitoringHandler(d.Monitor, d.Registry, d.Hub, d.BaseContext, d.Logger)
	logHandler := NewLogHandler(d.Log, d.Logger)
	dashHandler := NewDashboardHandler(d.Log, d.Registry, d.Hub, d.Logger)

	if d.Hub != nil {
		r.Get("/ws", d.Hub.HandleWebSocket)
	}
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", HealthHandler(d.Monitor))

		r.Get("/programs/current", progHandler.Current)
		r.Get("/programs/all", progHandler.All)

		r.Group(func(r chi.Router) {
			if d.Limiter != nil {
				r.Use(rateLimitMiddleware(d.Limiter, d.RateLimit))
			}
			r.Post("/subscribe", subHandler.Subscribe)
			r.Post("/unsubscribe", subHandler.Unsubscribe)
		})
		r.Get("/subscriptions", subHandler.List)
		r.Get("/subscriptions/health", subHandler.Health)

		r.Route("/monitoring", func(r chi.Router) {
			r.Post("/start", monHandler.Start)
			r.Post("/stop", monHandler.Stop)
			r.Post("/tick", monHandler.Tick)
			r.Get("/status", monHandler.Status)
		})

		r.Get("/logs", logHandler.List)
		r.Get("/metrics/deliveries", dashHandler.Deliveries)
	})

	return r
}

// corsMiddleware adds CORS headers for dashboard development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware throttles by client address. RealIP has already
// rewritten RemoteAddr when a proxy header is present.
func rateLimitMiddleware(rl *engine.RateLimiter, limit int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ok, wait := rl.Allow(r.Context(), clientKey(r), limit); !ok {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
				respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// retryAfterSeconds rounds wait up to whole seconds, at least one.
func retryAfterSeconds(wait time.Duration) int {
	secs := int((wait + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func now() string {
	return time.Now().Format(time.RFC3339)
}
