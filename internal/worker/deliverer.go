package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Priya8975/tv-monitor/internal/domain"
	"github.com/Priya8975/tv-monitor/internal/engine"
	"github.com/Priya8975/tv-monitor/internal/metrics"
)

// DefaultTimeout bounds a single webhook call.
const DefaultTimeout = 10 * time.Second

// Recorder persists delivery attempts and logs its own write failures.
// *deliverylog.Log satisfies it.
type Recorder interface {
	Append(ctx context.Context, rec domain.DeliveryRecord) error
}

// Deliverer handles the HTTP delivery of program notifications to subscriber endpoints.
type Deliverer struct {
	httpClient *http.Client
	recorder   Recorder
	breaker    *engine.CircuitBreaker
	metrics    metrics.Sink
	logger     *slog.Logger
	now        func() time.Time
}

type Option func(*Deliverer)

// WithTimeout sets the per-request timeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(dl *Deliverer) {
		if d > 0 {
			dl.httpClient.Timeout = d
		}
	}
}

// WithCircuitBreaker skips endpoints whose circuit is open.
func WithCircuitBreaker(cb *engine.CircuitBreaker) Option {
	return func(dl *Deliverer) { dl.breaker = cb }
}

func WithMetrics(sink metrics.Sink) Option {
	return func(dl *Deliverer) {
		if sink != nil {
			dl.metrics = sink
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(dl *Deliverer) { dl.now = now }
}

// NewDeliverer creates a deliverer with a configured HTTP client.
func NewDeliverer(recorder Recorder, logger *slog.Logger, opts ...Option) *Deliverer {
	d := &Deliverer{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		recorder:   recorder,
		metrics:    metrics.NoopSink{},
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Deliver posts a program_started notification to job.Endpoint and records
// exactly one DeliveryRecord for the attempt. It never returns an error;
// the outcome is carried in the record.
func (d *Deliverer) Deliver(ctx context.Context, job engine.DeliveryJob) domain.DeliveryRecord {
	start := time.Now()

	code, err := d.post(ctx, job)

	rec := domain.DeliveryRecord{
		ProgramTitle:    job.Program.Title,
		Channel:         job.Program.Channel,
		StartTime:       job.Program.Start,
		WebhookEndpoint: job.Endpoint,
		ResponseCode:    code,
		SentAt:          d.now(),
	}
	switch {
	case err == nil && code >= 200 && code < 300:
		rec.Outcome = domain.OutcomeSuccess
	case code != 0:
		rec.Outcome = domain.OutcomeFailed
	default:
		rec.Outcome = domain.OutcomeError
	}

	d.recordAttempt(ctx, rec, time.Since(start), err)
	return rec
}

// post returns the HTTP status code, or 0 when no response was received.
func (d *Deliverer) post(ctx context.Context, job engine.DeliveryJob) (int, error) {
	if d.breaker != nil {
		if state, ok := d.breaker.AllowRequest(ctx, job.Endpoint); !ok {
			return 0, &domain.DeliveryError{
				Endpoint: job.Endpoint,
				Err:      fmt.Errorf("circuit %s", state),
			}
		}
	}

	body, err := json.Marshal(domain.Notification{
		Event:     domain.EventProgramStarted,
		Timestamp: d.now(),
		Program:   job.Program,
	})
	if err != nil {
		return 0, &domain.DeliveryError{Endpoint: job.Endpoint, Err: fmt.Errorf("encoding notification: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, job.Endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, &domain.DeliveryError{Endpoint: job.Endpoint, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", domain.EventProgramStarted)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		d.recordBreaker(ctx, job.Endpoint, false)
		return 0, &domain.DeliveryError{Endpoint: job.Endpoint, Err: err}
	}
	defer resp.Body.Close()

	// Drain a little so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		d.recordBreaker(ctx, job.Endpoint, false)
		return resp.StatusCode, &domain.DeliveryError{
			Endpoint:   job.Endpoint,
			StatusCode: resp.StatusCode,
			Err:        errors.New(http.StatusText(resp.StatusCode)),
		}
	}

	d.recordBreaker(ctx, job.Endpoint, true)
	return resp.StatusCode, nil
}

func (d *Deliverer) recordBreaker(ctx context.Context, endpoint string, ok bool) {
	if d.breaker == nil {
		return
	}
	if ok {
		d.breaker.RecordSuccess(ctx, endpoint)
		return
	}
	d.breaker.RecordFailure(ctx, endpoint)
}

// recordAttempt appends the record and logs the result. The append uses a
// context detached from cancellation so a stop mid-tick still leaves a trail.
func (d *Deliverer) recordAttempt(ctx context.Context, rec domain.DeliveryRecord, elapsed time.Duration, deliveryErr error) {
	d.metrics.DeliveryCompleted(string(rec.Outcome), elapsed)

	_ = d.recorder.Append(context.WithoutCancel(ctx), rec)

	if rec.Outcome == domain.OutcomeSuccess {
		d.logger.Info("delivery successful",
			"program_title", rec.ProgramTitle,
			"channel", rec.Channel,
			"webhook_endpoint", rec.WebhookEndpoint,
			"status_code", rec.ResponseCode,
			"response_time_ms", elapsed.Milliseconds(),
		)
		return
	}
	d.logger.Warn("delivery failed",
		"program_title", rec.ProgramTitle,
		"channel", rec.Channel,
		"webhook_endpoint", rec.WebhookEndpoint,
		"outcome", rec.Outcome,
		"status_code", rec.ResponseCode,
		"error", deliveryErr,
		"response_time_ms", elapsed.Milliseconds(),
	)
}
