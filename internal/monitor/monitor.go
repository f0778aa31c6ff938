// Package monitor drives the schedule check on a fixed cadence.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Priya8975/tv-monitor/internal/domain"
	"github.com/Priya8975/tv-monitor/internal/engine"
	"github.com/Priya8975/tv-monitor/internal/matcher"
	"github.com/Priya8975/tv-monitor/internal/metrics"
	"github.com/Priya8975/tv-monitor/internal/schedule"
)

const DefaultInterval = time.Minute

// Dispatcher delivers notifications for the programs airing in one tick.
type Dispatcher interface {
	Dispatch(ctx context.Context, airing []domain.Program, lookup engine.EndpointLookup) []domain.DeliveryRecord
}

// Status is a point-in-time view of the loop.
type Status struct {
	Running  bool
	Interval time.Duration
	Ticks    int64
	LastTick time.Time
	LastErr  string
}

// Monitor owns the Stopped/Running lifecycle. Ticks read the schedule,
// match it against the clock and dispatch to subscribers.
type Monitor struct {
	reader     schedule.Reader
	matcher    *matcher.Matcher
	lookup     engine.EndpointLookup
	dispatcher Dispatcher
	metrics    metrics.Sink
	logger     *slog.Logger

	interval  time.Duration
	clock     func() time.Time
	loc       *time.Location
	newTicker func(time.Duration) (<-chan time.Time, func())

	mu       sync.Mutex
	running  bool
	stop     chan struct{}
	done     chan struct{}
	ticks    int64
	lastTick time.Time
	lastErr  string
}

type Option func(*Monitor)

// WithInterval sets the tick cadence. Non-positive values are ignored.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

func WithClock(clock func() time.Time) Option {
	return func(m *Monitor) { m.clock = clock }
}

// WithLocation sets the zone schedule dates and times are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(m *Monitor) {
		if loc != nil {
			m.loc = loc
		}
	}
}

func WithMetrics(sink metrics.Sink) Option {
	return func(m *Monitor) {
		if sink != nil {
			m.metrics = sink
		}
	}
}

func withTicker(f func(time.Duration) (<-chan time.Time, func())) Option {
	return func(m *Monitor) { m.newTicker = f }
}

func New(reader schedule.Reader, lookup engine.EndpointLookup, dispatcher Dispatcher, logger *slog.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		reader:     reader,
		matcher:    matcher.New(logger),
		lookup:     lookup,
		dispatcher: dispatcher,
		metrics:    metrics.NoopSink{},
		logger:     logger,
		interval:   DefaultInterval,
		clock:      time.Now,
		loc:        time.Local,
		newTicker: func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins ticking every interval. It reports false if the loop was
// already running. Cancelling ctx stops the loop like Stop does; ticks
// themselves are never interrupted by it.
func (m *Monitor) Start(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		m.logger.Info("monitoring is already active")
		return false
	}

	m.running = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	m.metrics.MonitorRunning(true)

	// The ticker exists before Start returns.
	ticks, stopTicker := m.newTicker(m.interval)
	go m.loop(ctx, ticks, stopTicker, m.stop, m.done)

	m.logger.Info("monitoring started", "interval", m.interval.String())
	return true
}

// Stop flips the loop to Stopped. A tick already in progress finishes;
// no new tick is scheduled. It reports false if the loop was not running.
func (m *Monitor) Stop() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopLocked()
}

func (m *Monitor) stopLocked() bool {
	if !m.running {
		return false
	}
	m.running = false
	close(m.stop)
	m.metrics.MonitorRunning(false)

	m.logger.Info("monitoring stopped")
	return true
}

// stopLoop stops the monitor only if stop still belongs to the current loop.
func (m *Monitor) stopLoop(stop chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop == stop {
		m.stopLocked()
	}
}

// Wait blocks until the most recently started loop has exited, or ctx is done.
func (m *Monitor) Wait(ctx context.Context) error {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		Running:  m.running,
		Interval: m.interval,
		Ticks:    m.ticks,
		LastTick: m.lastTick,
		LastErr:  m.lastErr,
	}
}

func (m *Monitor) loop(ctx context.Context, ticks <-chan time.Time, stopTicker func(), stop chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer stopTicker()

	tickCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			m.stopLoop(stop)
			return
		case <-ticks:
			// Stop may have raced with the ticker.
			select {
			case <-stop:
				return
			default:
			}
			if _, err := m.Tick(tickCtx); err != nil {
				m.logger.Warn("tick skipped", "error", err)
			}
		}
	}
}

// Tick runs one check cycle: read the schedule, find what is airing now and
// notify subscribers. A schedule that cannot be read fails only this tick.
func (m *Monitor) Tick(ctx context.Context) ([]domain.DeliveryRecord, error) {
	start := time.Now()
	ref := m.clock().In(m.loc)

	m.logger.Debug("checking for starting programs", "reference", ref.Format(time.RFC3339))

	programs, err := m.reader.ReadAll(ctx)
	if err != nil {
		err = fmt.Errorf("reading schedule: %w", err)
		m.finishTick(ref, time.Since(start), 0, err)
		return nil, err
	}

	airing := m.matcher.FindAiringNow(programs, ref)
	var records []domain.DeliveryRecord
	if len(airing) > 0 {
		records = m.dispatcher.Dispatch(ctx, airing, m.lookup)
	}

	m.finishTick(ref, time.Since(start), len(airing), nil)
	m.logger.Info("tick completed",
		"programs", len(programs),
		"airing", len(airing),
		"deliveries", len(records),
	)
	return records, nil
}

func (m *Monitor) finishTick(ref time.Time, elapsed time.Duration, airing int, err error) {
	m.metrics.TickCompleted(elapsed, airing, err)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks++
	m.lastTick = ref
	m.lastErr = ""
	if err != nil {
		m.lastErr = err.Error()
	}
}

// CurrentPrograms returns the schedule rows airing at the monitor's clock.
func (m *Monitor) CurrentPrograms(ctx context.Context) ([]domain.Program, error) {
	programs, err := m.reader.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	return m.matcher.FindAiringNow(programs, m.clock().In(m.loc)), nil
}

// AllPrograms returns the full schedule as the reader sees it.
func (m *Monitor) AllPrograms(ctx context.Context) ([]domain.Program, error) {
	return m.reader.ReadAll(ctx)
}
