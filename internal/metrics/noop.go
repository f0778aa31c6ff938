package metrics

import "time"

// NoopSink discards everything.
type NoopSink struct{}

func (NoopSink) TickCompleted(time.Duration, int, error) {}
func (NoopSink) DeliveryCompleted(string, time.Duration) {}
func (NoopSink) MonitorRunning(bool)                     {}

var _ Sink = NoopSink{}
