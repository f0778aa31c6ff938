package engine

import (
	"context"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter throttles subscription changes per client address with a
// sliding window kept in a Redis sorted set. Scores are request times in
// milliseconds.
type RateLimiter struct {
	client *redis.Client
	logger *slog.Logger
	window time.Duration
	now    func() time.Time
	seq    atomic.Uint64
}

// slidingWindowScript trims the window, then admits the request if there is
// room. Returns {1, 0} when admitted, or {0, ms until the oldest entry leaves
// the window} when not.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

if redis.call('ZCARD', key) < limit then
    redis.call('ZADD', key, now, ARGV[4])
    redis.call('PEXPIRE', key, window)
    return {1, 0}
end

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local wait = window
if oldest[2] then
    wait = tonumber(oldest[2]) + window - now
end
return {0, wait}
`)

// NewRateLimiter returns a limiter with a one second window.
func NewRateLimiter(client *redis.Client, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		client: client,
		logger: logger,
		window: time.Second,
		now:    time.Now,
	}
}

// WithWindow changes the window that limit applies to.
func (rl *RateLimiter) WithWindow(d time.Duration) *RateLimiter {
	if d > 0 {
		rl.window = d
	}
	return rl
}

func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	rl.now = now
	return rl
}

func limiterKey(clientKey string) string {
	return "tvmon:ratelimit:" + clientKey
}

// Allow admits at most limit requests per window for clientKey. When it
// refuses, it also returns how long until a slot frees up. A non-positive
// limit disables throttling, and Redis errors fail open.
func (rl *RateLimiter) Allow(ctx context.Context, clientKey string, limit int) (bool, time.Duration) {
	if limit <= 0 {
		return true, 0
	}

	now := rl.now().UnixMilli()
	member := strconv.FormatInt(now, 10) + "-" + strconv.FormatUint(rl.seq.Add(1), 10)

	res, err := slidingWindowScript.Run(ctx, rl.client,
		[]string{limiterKey(clientKey)},
		now, rl.window.Milliseconds(), limit, member,
	).Int64Slice()
	if err != nil || len(res) != 2 {
		rl.logger.Error("rate limiter check failed, allowing request",
			"client", clientKey,
			"error", err,
		)
		return true, 0
	}

	if res[0] == 1 {
		return true, 0
	}

	wait := time.Duration(res[1]) * time.Millisecond
	rl.logger.Debug("rate limited",
		"client", clientKey,
		"limit", limit,
		"retry_after", wait.String(),
	)
	return false, wait
}
