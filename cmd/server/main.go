package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Priya8975/tv-monitor/internal/api"
	"github.com/Priya8975/tv-monitor/internal/config"
	"github.com/Priya8975/tv-monitor/internal/deliverylog"
	"github.com/Priya8975/tv-monitor/internal/engine"
	"github.com/Priya8975/tv-monitor/internal/metrics"
	"github.com/Priya8975/tv-monitor/internal/monitor"
	"github.com/Priya8975/tv-monitor/internal/registry"
	"github.com/Priya8975/tv-monitor/internal/schedule"
	"github.com/Priya8975/tv-monitor/internal/store"
	ws "github.com/Priya8975/tv-monitor/internal/websocket"
	"github.com/Priya8975/tv-monitor/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage failures at startup are the only fatal errors.
	st, err := store.Open(ctx, store.Options{
		Driver:      cfg.StoreDriver,
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
		RedisURL:    cfg.RedisURL,
	}, logger)
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer st.Close()
	logger.Info("store ready", "driver", cfg.StoreDriver)

	reg := registry.New(st, logger)
	if err := reg.Load(ctx); err != nil {
		logger.Error("failed to load subscriptions", "error", err)
		os.Exit(1)
	}
	logger.Info("subscriptions loaded", "programs", reg.CountPrograms(), "endpoints", reg.CountEndpoints())

	redisClient := connectRedis(ctx, cfg, st, logger)

	// Metrics
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	sink := metrics.NewPrometheusSink(promReg, logger)

	hub := ws.NewHub(logger)
	go hub.Run(ctx)

	deliveryLog := deliverylog.New(st, logger, hub)

	var (
		breaker *engine.CircuitBreaker
		limiter *engine.RateLimiter
	)
	deliverOpts := []worker.Option{
		worker.WithTimeout(cfg.WebhookTimeout),
		worker.WithMetrics(sink),
	}
	if redisClient != nil {
		breaker = engine.NewCircuitBreaker(redisClient, logger, cfg.BreakerThreshold, cfg.BreakerCooldown)
		limiter = engine.NewRateLimiter(redisClient, logger)
		deliverOpts = append(deliverOpts, worker.WithCircuitBreaker(breaker))
	}

	deliverer := worker.NewDeliverer(deliveryLog, logger, deliverOpts...)
	dispatcher := worker.NewDispatcher(worker.NewPool(cfg.NumWorkers, deliverer, logger), logger)

	reader, closeReader := newScheduleReader(cfg, logger)
	defer closeReader()

	mon := monitor.New(reader, reg, dispatcher, logger,
		monitor.WithInterval(cfg.TickInterval),
		monitor.WithLocation(cfg.ScheduleTZ),
		monitor.WithMetrics(sink),
	)
	if cfg.AutoStart && mon.Start(ctx) {
		hub.PublishStatus(true)
	}

	router := api.NewRouter(api.Deps{
		Registry:    reg,
		Monitor:     mon,
		Log:         deliveryLog,
		Hub:         hub,
		Breaker:     breaker,
		Limiter:     limiter,
		RateLimit:   cfg.APIRateLimit,
		Metrics:     promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}),
		Logger:      logger,
		BaseContext: ctx,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	mon.Stop()
	if err := mon.Wait(shutdownCtx); err != nil {
		logger.Warn("in-flight tick did not finish before shutdown", "error", err)
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	cancel()

	if redisClient != nil {
		if _, shared := st.(*store.RedisStore); !shared {
			redisClient.Close()
		}
	}

	logger.Info("server stopped")
}

// connectRedis returns a client for the circuit breaker and rate limiter, or
// nil when Redis is not configured or unreachable.
func connectRedis(ctx context.Context, cfg *config.Config, st store.Store, logger *slog.Logger) *redis.Client {
	if rs, ok := st.(*store.RedisStore); ok {
		return rs.Client()
	}
	if cfg.RedisURL == "" {
		logger.Info("REDIS_URL not set; circuit breaker and rate limiting disabled")
		return nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn("invalid REDIS_URL; circuit breaker and rate limiting disabled", "error", err)
		return nil
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable; circuit breaker and rate limiting disabled", "error", err)
		client.Close()
		return nil
	}
	logger.Info("connected to Redis")
	return client
}

func newScheduleReader(cfg *config.Config, logger *slog.Logger) (schedule.Reader, func()) {
	if cfg.ScheduleSource == "github" {
		logger.Info("reading schedule from repository", "url", cfg.ScheduleRepoURL)
		return schedule.NewRepoReader(cfg.ScheduleRepoURL, &http.Client{Timeout: 30 * time.Second}, logger), func() {}
	}

	if cfg.ScheduleWatch {
		r, err := schedule.NewWatchedReader(cfg.ScheduleCSV, logger)
		if err == nil {
			logger.Info("reading schedule from file", "path", cfg.ScheduleCSV, "watch", true)
			return r, func() { r.Close() }
		}
		logger.Warn("file watch unavailable, reading schedule on every tick", "error", err)
	}

	logger.Info("reading schedule from file", "path", cfg.ScheduleCSV, "watch", false)
	return schedule.NewFileReader(cfg.ScheduleCSV, logger), func() {}
}
