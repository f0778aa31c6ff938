package engine

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half-open"
)

const (
	defaultBreakerThreshold = 5
	defaultBreakerCooldown  = 5 * time.Minute
)

// CircuitBreaker stops notifying webhook endpoints that keep failing. Each
// endpoint has one Redis hash:
//
//	state           closed | open | half-open
//	failures        consecutive non-success outcomes
//	last_failed_at  unix milliseconds of the latest failure
//
// An open endpoint is skipped until the cooldown has passed since its last
// failure. It then goes half-open, and the next outcome closes or reopens it.
type CircuitBreaker struct {
	client    *redis.Client
	logger    *slog.Logger
	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

// CircuitBreakerState is the read-only view served by the API.
type CircuitBreakerState struct {
	State        string `json:"state"`
	Failures     int    `json:"failures"`
	LastFailedAt string `json:"last_failed_at,omitempty"`
}

// NewCircuitBreaker returns a breaker that opens after threshold consecutive
// failures and stays open for cooldown. Non-positive values fall back to 5
// failures and five minutes.
func NewCircuitBreaker(client *redis.Client, logger *slog.Logger, threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = defaultBreakerThreshold
	}
	if cooldown <= 0 {
		cooldown = defaultBreakerCooldown
	}
	return &CircuitBreaker{
		client:    client,
		logger:    logger,
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// WithClock replaces time.Now for cooldown checks.
func (cb *CircuitBreaker) WithClock(now func() time.Time) *CircuitBreaker {
	cb.now = now
	return cb
}

func breakerKey(endpoint string) string {
	return "tvmon:breaker:" + endpoint
}

// recordFailureScript bumps the failure count and decides whether the
// circuit opens, in one round trip. Returns {failures, opened}.
var recordFailureScript = redis.NewScript(`
local key = KEYS[1]
local now = ARGV[1]
local threshold = tonumber(ARGV[2])

local failures = redis.call('HINCRBY', key, 'failures', 1)
redis.call('HSET', key, 'last_failed_at', now)

local state = redis.call('HGET', key, 'state')
if state == 'half-open' or (state ~= 'open' and failures >= threshold) then
    redis.call('HSET', key, 'state', 'open')
    return {failures, 1}
end
if not state then
    redis.call('HSET', key, 'state', 'closed')
end
return {failures, 0}
`)

// halfOpenScript moves an open circuit to half-open. Returns 1 for the caller
// that made the transition.
var halfOpenScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'state') == 'open' then
    redis.call('HSET', KEYS[1], 'state', 'half-open')
    return 1
end
return 0
`)

type breakerRecord struct {
	state      string
	failures   int
	lastFailed time.Time
}

func (cb *CircuitBreaker) load(ctx context.Context, endpoint string) (breakerRecord, error) {
	data, err := cb.client.HGetAll(ctx, breakerKey(endpoint)).Result()
	if err != nil {
		return breakerRecord{}, err
	}

	rec := breakerRecord{state: data["state"]}
	if rec.state == "" {
		rec.state = StateClosed
	}
	rec.failures, _ = strconv.Atoi(data["failures"])
	if ms, err := strconv.ParseInt(data["last_failed_at"], 10, 64); err == nil && ms > 0 {
		rec.lastFailed = time.UnixMilli(ms)
	}
	return rec, nil
}

func (cb *CircuitBreaker) cooledDown(rec breakerRecord) bool {
	return !cb.now().Before(rec.lastFailed.Add(cb.cooldown))
}

// AllowRequest reports the endpoint's state and whether a notification may be
// sent to it. Redis errors fail open.
func (cb *CircuitBreaker) AllowRequest(ctx context.Context, endpoint string) (string, bool) {
	rec, err := cb.load(ctx, endpoint)
	if err != nil {
		cb.logger.Warn("circuit breaker lookup failed, allowing delivery",
			"webhook_endpoint", endpoint,
			"error", err,
		)
		return StateClosed, true
	}

	if rec.state != StateOpen {
		return rec.state, true
	}
	if !cb.cooledDown(rec) {
		return StateOpen, false
	}

	moved, err := halfOpenScript.Run(ctx, cb.client, []string{breakerKey(endpoint)}).Int()
	if err == nil && moved == 1 {
		cb.logger.Info("circuit breaker half-open", "webhook_endpoint", endpoint)
	}
	return StateHalfOpen, true
}

// RecordSuccess closes the circuit and clears its failure count.
func (cb *CircuitBreaker) RecordSuccess(ctx context.Context, endpoint string) {
	key := breakerKey(endpoint)

	prev, _ := cb.client.HGet(ctx, key, "state").Result()

	_, err := cb.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "state", StateClosed, "failures", 0)
		pipe.HDel(ctx, key, "last_failed_at")
		return nil
	})
	if err != nil {
		cb.logger.Error("failed to record circuit breaker success",
			"webhook_endpoint", endpoint,
			"error", err,
		)
		return
	}

	if prev == StateHalfOpen || prev == StateOpen {
		cb.logger.Info("circuit breaker closed", "webhook_endpoint", endpoint)
	}
}

// RecordFailure counts a failed notification and opens the circuit when the
// threshold is reached or a half-open probe fails.
func (cb *CircuitBreaker) RecordFailure(ctx context.Context, endpoint string) {
	res, err := recordFailureScript.Run(ctx, cb.client,
		[]string{breakerKey(endpoint)},
		cb.now().UnixMilli(), cb.threshold,
	).Int64Slice()
	if err != nil || len(res) != 2 {
		cb.logger.Error("failed to record circuit breaker failure",
			"webhook_endpoint", endpoint,
			"error", err,
		)
		return
	}

	if res[1] == 1 {
		cb.logger.Warn("circuit breaker opened",
			"webhook_endpoint", endpoint,
			"failures", res[0],
			"threshold", cb.threshold,
			"cooldown", cb.cooldown.String(),
		)
	}
}

// GetState returns the endpoint's breaker state. An open circuit whose
// cooldown has passed is reported as half-open.
func (cb *CircuitBreaker) GetState(ctx context.Context, endpoint string) CircuitBreakerState {
	rec, err := cb.load(ctx, endpoint)
	if err != nil {
		return CircuitBreakerState{State: StateClosed}
	}

	state := rec.state
	if state == StateOpen && cb.cooledDown(rec) {
		state = StateHalfOpen
	}

	out := CircuitBreakerState{State: state, Failures: rec.failures}
	if !rec.lastFailed.IsZero() {
		out.LastFailedAt = rec.lastFailed.UTC().Format(time.RFC3339)
	}
	return out
}
