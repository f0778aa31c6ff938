package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Priya8975/tv-monitor/internal/domain"
	"github.com/Priya8975/tv-monitor/internal/engine"
)

const DefaultWorkers = 8

// Pool runs delivery jobs on a fixed number of worker goroutines.
type Pool struct {
	numWorkers int
	deliverer  *Deliverer
	logger     *slog.Logger
}

// NewPool creates a worker pool with the given number of workers.
// Non-positive counts fall back to DefaultWorkers.
func NewPool(numWorkers int, deliverer *Deliverer, logger *slog.Logger) *Pool {
	if numWorkers <= 0 {
		numWorkers = DefaultWorkers
	}
	return &Pool{
		numWorkers: numWorkers,
		deliverer:  deliverer,
		logger:     logger,
	}
}

// Run delivers every job and blocks until all of them have been recorded.
// Records are returned in job order. A slow endpoint only occupies its own
// worker.
func (p *Pool) Run(ctx context.Context, jobs []engine.DeliveryJob) []domain.DeliveryRecord {
	records := make([]domain.DeliveryRecord, len(jobs))
	if len(jobs) == 0 {
		return records
	}

	workers := min(p.numWorkers, len(jobs))
	queue := make(chan int, len(jobs))
	for i := range jobs {
		queue <- i
	}
	close(queue)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range queue {
				records[i] = p.deliverer.Deliver(ctx, jobs[i])
			}
		}()
	}
	wg.Wait()

	p.logger.Debug("delivery batch finished", "jobs", len(jobs), "workers", workers)
	return records
}
