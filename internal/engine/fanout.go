package engine

import (
	"github.com/Priya8975/tv-monitor/internal/domain"
)

// DeliveryJob is one (program, endpoint) notification within a tick.
type DeliveryJob struct {
	Program  domain.Program
	Endpoint string
}

// EndpointLookup resolves the endpoints subscribed to a program title.
type EndpointLookup interface {
	Endpoints(title string) []string
}

// FanOut expands airing programs into one job per subscribed endpoint.
// Programs nobody subscribed to produce no jobs.
func FanOut(programs []domain.Program, lookup EndpointLookup) []DeliveryJob {
	var jobs []DeliveryJob
	for _, p := range programs {
		for _, endpoint := range lookup.Endpoints(p.Title) {
			jobs = append(jobs, DeliveryJob{Program: p, Endpoint: endpoint})
		}
	}
	return jobs
}
