package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/Priya8975/tv-monitor/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Redis keys. Subscriptions live in one hash keyed by "title\nendpoint";
// notification logs are a list with the newest entry at the head.
const (
	subscriptionsKey = "tvmon:subscriptions"
	logsKey          = "tvmon:notification_logs"
	logSeqKey        = "tvmon:notification_logs:seq"
	statsKey         = "tvmon:delivery_stats"
)

type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedis(ctx context.Context, redisURL string, logger *slog.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return &RedisStore{client: client, logger: logger}, nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client, logger *slog.Logger) *RedisStore {
	return &RedisStore{client: client, logger: logger}
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// EnsureSchema is a no-op; redis keys are created on first write.
func (s *RedisStore) EnsureSchema(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func subscriptionField(title, endpoint string) string {
	return title + "\n" + endpoint
}

func (s *RedisStore) UpsertSubscription(ctx context.Context, title, endpoint string) error {
	field := subscriptionField(title, endpoint)

	sub := domain.Subscription{ProgramTitle: title, WebhookEndpoint: endpoint, IsActive: true}
	if existing, err := s.client.HGet(ctx, subscriptionsKey, field).Result(); err == nil {
		var prev domain.Subscription
		if json.Unmarshal([]byte(existing), &prev) == nil {
			sub.CreatedAt = prev.CreatedAt
		}
	} else if err != redis.Nil {
		return fmt.Errorf("reading subscription: %w", err)
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = nowFunc()
	}

	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("encoding subscription: %w", err)
	}
	if err := s.client.HSet(ctx, subscriptionsKey, field, data).Err(); err != nil {
		return fmt.Errorf("writing subscription: %w", err)
	}
	return nil
}

func (s *RedisStore) DeactivateSubscription(ctx context.Context, title, endpoint string) error {
	field := subscriptionField(title, endpoint)

	existing, err := s.client.HGet(ctx, subscriptionsKey, field).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading subscription: %w", err)
	}

	var sub domain.Subscription
	if err := json.Unmarshal([]byte(existing), &sub); err != nil {
		sub = domain.Subscription{ProgramTitle: title, WebhookEndpoint: endpoint}
	}
	sub.IsActive = false

	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("encoding subscription: %w", err)
	}
	if err := s.client.HSet(ctx, subscriptionsKey, field, data).Err(); err != nil {
		return fmt.Errorf("writing subscription: %w", err)
	}
	return nil
}

func (s *RedisStore) ListActiveSubscriptions(ctx context.Context) ([]domain.Subscription, error) {
	all, err := s.client.HGetAll(ctx, subscriptionsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("reading subscriptions: %w", err)
	}

	subs := []domain.Subscription{}
	for field, raw := range all {
		var sub domain.Subscription
		if err := json.Unmarshal([]byte(raw), &sub); err != nil {
			s.logger.Warn("skipping malformed subscription row", "field", field, "error", err)
			continue
		}
		if !sub.IsActive {
			continue
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func (s *RedisStore) AppendDelivery(ctx context.Context, rec domain.DeliveryRecord) error {
	id, err := s.client.Incr(ctx, logSeqKey).Result()
	if err != nil {
		return fmt.Errorf("allocating log id: %w", err)
	}
	rec.ID = id

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding notification log: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, logsKey, data)
		pipe.HIncrBy(ctx, statsKey, "total", 1)
		pipe.HIncrBy(ctx, statsKey, string(rec.Outcome), 1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("inserting notification log: %w", err)
	}
	return nil
}

func (s *RedisStore) RecentDeliveries(ctx context.Context, limit int) ([]domain.DeliveryRecord, error) {
	if limit <= 0 {
		return []domain.DeliveryRecord{}, nil
	}
	raw, err := s.client.LRange(ctx, logsKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("querying notification logs: %w", err)
	}

	records := make([]domain.DeliveryRecord, 0, len(raw))
	for _, item := range raw {
		var rec domain.DeliveryRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			s.logger.Warn("skipping malformed notification log", "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *RedisStore) DeliveryStats(ctx context.Context) (*domain.DeliveryStats, error) {
	data, err := s.client.HGetAll(ctx, statsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("querying delivery metrics: %w", err)
	}

	count := func(k string) int {
		n, _ := strconv.Atoi(strings.TrimSpace(data[k]))
		return n
	}

	m := domain.DeliveryStats{
		TotalDeliveries: count("total"),
		SuccessCount:    count(string(domain.OutcomeSuccess)),
		FailedCount:     count(string(domain.OutcomeFailed)),
		ErrorCount:      count(string(domain.OutcomeError)),
	}
	m.ComputeRate()
	return &m, nil
}
