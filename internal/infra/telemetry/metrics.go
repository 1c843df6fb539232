package telemetry

import "time"

// Metrics is the observation surface the client and dispatcher report into.
type Metrics interface {
	ObserveCall(endpoint, tool, status string, duration time.Duration)
	ObserveInitialize(endpoint string, duration time.Duration, err error)
	ObserveRetry(endpoint, operation string)
	ObserveCacheHit(key string)
	ObserveCacheMiss(key string)
	SetEndpointHealthy(endpoint string, healthy bool)
	SetInFlight(count int)
}

type NoopMetrics struct{}

func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

func (n *NoopMetrics) ObserveCall(_, _, _ string, _ time.Duration) {}

func (n *NoopMetrics) ObserveInitialize(_ string, _ time.Duration, _ error) {}

func (n *NoopMetrics) ObserveRetry(_, _ string) {}

func (n *NoopMetrics) ObserveCacheHit(_ string) {}

func (n *NoopMetrics) ObserveCacheMiss(_ string) {}

func (n *NoopMetrics) SetEndpointHealthy(_ string, _ bool) {}

func (n *NoopMetrics) SetInFlight(_ int) {}

var _ Metrics = (*NoopMetrics)(nil)
