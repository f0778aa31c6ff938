// Package registry keeps the program title → webhook endpoint mapping.
//
// The durable store is the source of truth. Registry holds an in-memory
// mirror, rebuilt by Load and kept in step by Subscribe and Unsubscribe.
package registry

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/Priya8975/tv-monitor/internal/domain"
)

// Store is the subset of the durable backend the registry needs.
type Store interface {
	UpsertSubscription(ctx context.Context, title, endpoint string) error
	DeactivateSubscription(ctx context.Context, title, endpoint string) error
	ListActiveSubscriptions(ctx context.Context) ([]domain.Subscription, error)
}

type Registry struct {
	store  Store
	logger *slog.Logger

	mu      sync.RWMutex
	byTitle map[string]map[string]struct{}
}

func New(store Store, logger *slog.Logger) *Registry {
	return &Registry{
		store:   store,
		logger:  logger,
		byTitle: make(map[string]map[string]struct{}),
	}
}

// Load rebuilds the mirror from active durable rows. Rows with an empty
// title or endpoint are skipped.
func (r *Registry) Load(ctx context.Context) error {
	subs, err := r.store.ListActiveSubscriptions(ctx)
	if err != nil {
		return &domain.StorageError{Op: "load subscriptions", Err: err}
	}

	next := make(map[string]map[string]struct{})
	for _, sub := range subs {
		if strings.TrimSpace(sub.ProgramTitle) == "" || strings.TrimSpace(sub.WebhookEndpoint) == "" {
			r.logger.Warn("skipping malformed subscription",
				"program_title", sub.ProgramTitle,
				"webhook_endpoint", sub.WebhookEndpoint,
			)
			continue
		}
		set, ok := next[sub.ProgramTitle]
		if !ok {
			set = make(map[string]struct{})
			next[sub.ProgramTitle] = set
		}
		set[sub.WebhookEndpoint] = struct{}{}
	}

	r.mu.Lock()
	r.byTitle = next
	r.mu.Unlock()

	r.logger.Info("loaded program subscriptions", "programs", len(next), "endpoints", r.CountEndpoints())
	return nil
}

// Subscribe persists the pair, then adds it to the mirror. Repeating a
// subscription is harmless.
func (r *Registry) Subscribe(ctx context.Context, title, endpoint string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.UpsertSubscription(ctx, title, endpoint); err != nil {
		r.logger.Error("failed to subscribe", "program_title", title, "webhook_endpoint", endpoint, "error", err)
		return &domain.StorageError{Op: "subscribe", Err: err}
	}

	set, ok := r.byTitle[title]
	if !ok {
		set = make(map[string]struct{})
		r.byTitle[title] = set
	}
	set[endpoint] = struct{}{}

	r.logger.Info("subscribed", "program_title", title, "webhook_endpoint", endpoint)
	return nil
}

// Unsubscribe deactivates the durable row and drops the endpoint from the
// mirror. Unknown pairs succeed without effect.
func (r *Registry) Unsubscribe(ctx context.Context, title, endpoint string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.DeactivateSubscription(ctx, title, endpoint); err != nil {
		r.logger.Error("failed to unsubscribe", "program_title", title, "webhook_endpoint", endpoint, "error", err)
		return &domain.StorageError{Op: "unsubscribe", Err: err}
	}

	if set, ok := r.byTitle[title]; ok {
		delete(set, endpoint)
		if len(set) == 0 {
			delete(r.byTitle, title)
		}
	}

	r.logger.Info("unsubscribed", "program_title", title, "webhook_endpoint", endpoint)
	return nil
}

// ListSubscriptions returns a copy of the mirror with endpoints sorted.
func (r *Registry) ListSubscriptions() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]string, len(r.byTitle))
	for title, set := range r.byTitle {
		out[title] = sortedKeys(set)
	}
	return out
}

// Endpoints returns a copy of the endpoints subscribed to title.
func (r *Registry) Endpoints(title string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.byTitle[title]
	if !ok {
		return nil
	}
	return sortedKeys(set)
}

// CountEndpoints sums the endpoint set sizes.
func (r *Registry) CountEndpoints() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, set := range r.byTitle {
		n += len(set)
	}
	return n
}

// CountPrograms is the number of titles with at least one endpoint.
func (r *Registry) CountPrograms() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byTitle)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
