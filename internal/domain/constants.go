package domain

import "time"

const (
	// DefaultProtocolVersion is sent during the initialize handshake and
	// echoed on every subsequent request via the protocol-version header.
	DefaultProtocolVersion = "2025-03-26"

	ClientName    = "toolgate"
	ClientVersion = "0.1.0"
)

// Wire header names. HTTP header matching is case-insensitive, so these are
// kept in the lowercase form the protocol documents them in.
const (
	HeaderSessionID       = "session-id"
	HeaderProtocolVersion = "protocol-version"
)

const (
	DefaultMaxRetryCount       = 3
	DefaultMaxConcurrent       = 5
	DefaultCacheTTL            = 60 * time.Second
	DefaultHealthCheckInterval = 60 * time.Second
	DefaultIdleConnTimeout     = 120 * time.Second

	DefaultInitializeTimeout = 30 * time.Second
	DefaultNotifyTimeout     = 5 * time.Second
	DefaultCallTimeout       = 60 * time.Second
	DefaultListTimeout       = 30 * time.Second

	// DefaultDispatchMargin pads the dispatcher's aggregate deadline so a
	// final batch of calls has room to drain before tasks are marked timed out.
	DefaultDispatchMargin = 10 * time.Second
)

const (
	DefaultObservabilityListenAddress = "0.0.0.0:9090"
	DefaultMonitorIntervalSeconds     = 60
)

// ToolListingCacheKey returns the response-cache key for a discovery call
// against the given endpoint. Keys embed the endpoint so invalidating a
// connection can purge every entry that references it.
func ToolListingCacheKey(endpoint string) string {
	return "tool-listing:" + endpoint
}
