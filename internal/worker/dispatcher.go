package worker

import (
	"context"
	"log/slog"

	"github.com/Priya8975/tv-monitor/internal/domain"
	"github.com/Priya8975/tv-monitor/internal/engine"
)

// Dispatcher turns the programs airing in one tick into webhook deliveries.
type Dispatcher struct {
	pool   *Pool
	logger *slog.Logger
}

func NewDispatcher(pool *Pool, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{pool: pool, logger: logger}
}

// Dispatch notifies every endpoint subscribed to each airing program and
// waits for all attempts to finish. Each (program, endpoint) pair produces
// exactly one record. A failure on one endpoint never affects the others.
func (d *Dispatcher) Dispatch(ctx context.Context, airing []domain.Program, lookup engine.EndpointLookup) []domain.DeliveryRecord {
	jobs := engine.FanOut(airing, lookup)
	if len(jobs) == 0 {
		return nil
	}

	d.logger.Info("dispatching notifications",
		"airing_programs", len(airing),
		"deliveries", len(jobs),
	)
	return d.pool.Run(ctx, jobs)
}
