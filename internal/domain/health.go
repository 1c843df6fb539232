package domain

import (
	"sync"
	"time"
)

// HealthRecord is the advisory per-endpoint health state. ErrorCount resets
// to zero only on an explicit reset or a successful call.
type HealthRecord struct {
	Healthy    bool      `json:"healthy"`
	LastCheck  time.Time `json:"lastCheck"`
	ErrorCount int       `json:"errorCount"`
	LastError  string    `json:"lastError,omitempty"`
}

// HealthMonitor tracks per-endpoint health. The state is advisory only: it
// informs logging and proactive connection resets, and a stale record always
// allows a fresh probe, so an endpoint is never permanently locked out.
type HealthMonitor struct {
	mu       sync.RWMutex
	records  map[string]HealthRecord
	interval time.Duration
	now      func() time.Time
}

func NewHealthMonitor(interval time.Duration) *HealthMonitor {
	if interval <= 0 {
		interval = DefaultHealthCheckInterval
	}
	return &HealthMonitor{
		records:  make(map[string]HealthRecord),
		interval: interval,
		now:      time.Now,
	}
}

// Healthy reports whether a call against the endpoint should proceed without
// a proactive connection reset. True when no record exists, when the record
// is older than the check interval (always allow a fresh probe), or when the
// stored flag is true.
func (m *HealthMonitor) Healthy(endpoint string) bool {
	endpoint = NormalizeEndpoint(endpoint)

	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.records[endpoint]
	if !ok {
		return true
	}
	if m.now().Sub(record.LastCheck) > m.interval {
		return true
	}
	return record.Healthy
}

// MarkHealthy records a successful call, resetting the error count.
func (m *HealthMonitor) MarkHealthy(endpoint string) {
	endpoint = NormalizeEndpoint(endpoint)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[endpoint] = HealthRecord{
		Healthy:   true,
		LastCheck: m.now(),
	}
}

// MarkUnhealthy records a failed call, incrementing the error count and
// stamping the failure.
func (m *HealthMonitor) MarkUnhealthy(endpoint string, cause error) {
	endpoint = NormalizeEndpoint(endpoint)

	message := ""
	if cause != nil {
		message = cause.Error()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	record := m.records[endpoint]
	record.Healthy = false
	record.ErrorCount++
	record.LastError = message
	record.LastCheck = m.now()
	m.records[endpoint] = record
}

// Record returns the stored health record for an endpoint, if any.
func (m *HealthMonitor) Record(endpoint string) (HealthRecord, bool) {
	endpoint = NormalizeEndpoint(endpoint)

	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[endpoint]
	return record, ok
}

// Reset drops the record for an endpoint entirely.
func (m *HealthMonitor) Reset(endpoint string) {
	endpoint = NormalizeEndpoint(endpoint)

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, endpoint)
}

// Snapshot copies the full health map for reporting.
func (m *HealthMonitor) Snapshot() map[string]HealthRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]HealthRecord, len(m.records))
	for endpoint, record := range m.records {
		out[endpoint] = record
	}
	return out
}
