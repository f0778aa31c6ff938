package metrics

import "time"

// Sink records monitor and delivery metrics.
// Implementations must not block or propagate errors.
type Sink interface {
	TickCompleted(duration time.Duration, airing int, err error)
	DeliveryCompleted(outcome string, duration time.Duration)
	MonitorRunning(running bool)
}
