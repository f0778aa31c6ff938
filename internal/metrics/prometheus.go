package metrics

import (
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink with client_golang collectors.
// Registration failures are logged; the sink keeps working unregistered.
type PrometheusSink struct {
	ticksTotal      prometheus.Counter
	tickErrorsTotal prometheus.Counter
	tickDuration    prometheus.Histogram
	airingPrograms  prometheus.Gauge

	deliveriesTotal *prometheus.CounterVec
	webhookDuration prometheus.Histogram
	monitorRunning  prometheus.Gauge

	logger *slog.Logger
}

func NewPrometheusSink(reg prometheus.Registerer, logger *slog.Logger) *PrometheusSink {
	s := &PrometheusSink{logger: logger}

	s.ticksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tvmonitor_ticks_total",
		Help: "Total number of monitor ticks processed.",
	})
	s.tickErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tvmonitor_tick_errors_total",
		Help: "Ticks skipped because the schedule could not be read.",
	})
	s.tickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tvmonitor_tick_duration_seconds",
		Help:    "Duration of each monitor tick in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	})
	s.airingPrograms = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tvmonitor_airing_programs",
		Help: "Programs airing at the last tick.",
	})
	s.deliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tvmonitor_deliveries_total",
		Help: "Webhook delivery attempts by outcome.",
	}, []string{"outcome"})
	s.webhookDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tvmonitor_webhook_duration_seconds",
		Help:    "Webhook request latency in seconds.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})
	s.monitorRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tvmonitor_running",
		Help: "1 while the monitor loop is running.",
	})

	for _, c := range []prometheus.Collector{
		s.ticksTotal, s.tickErrorsTotal, s.tickDuration, s.airingPrograms,
		s.deliveriesTotal, s.webhookDuration, s.monitorRunning,
	} {
		s.register(reg, c)
	}
	return s
}

func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector) {
	if reg == nil {
		return
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return
		}
		s.logger.Warn("failed to register metric", "error", err)
	}
}

func (s *PrometheusSink) TickCompleted(duration time.Duration, airing int, err error) {
	s.ticksTotal.Inc()
	s.tickDuration.Observe(duration.Seconds())
	if err != nil {
		s.tickErrorsTotal.Inc()
		return
	}
	s.airingPrograms.Set(float64(airing))
}

func (s *PrometheusSink) DeliveryCompleted(outcome string, duration time.Duration) {
	s.deliveriesTotal.WithLabelValues(outcome).Inc()
	s.webhookDuration.Observe(duration.Seconds())
}

func (s *PrometheusSink) MonitorRunning(running bool) {
	if running {
		s.monitorRunning.Set(1)
		return
	}
	s.monitorRunning.Set(0)
}

var _ Sink = (*PrometheusSink)(nil)
