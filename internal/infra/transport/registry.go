package transport

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"toolgate/internal/domain"
	"toolgate/internal/infra/telemetry"
)

// Registry owns one pooled channel and one cached session token per
// normalized endpoint. Channels are created lazily and destroyed together
// with their session token on invalidation; the response cache entries
// scoped to the endpoint are purged at the same time.
type Registry struct {
	logger      *zap.Logger
	cache       *domain.ResponseCache
	idleTimeout time.Duration

	mu      sync.RWMutex
	entries map[string]*endpointEntry
}

type endpointEntry struct {
	channel *Channel
	session string

	// negMu serializes session-mutating flows (negotiation, invalidate-and-
	// retry) for this endpoint so two concurrent renegotiations cannot
	// corrupt each other's state. It deliberately does not guard the plain
	// field reads above; those go through the registry lock.
	negMu sync.Mutex
}

// RegistryOptions configure a connection registry.
type RegistryOptions struct {
	Logger      *zap.Logger
	Cache       *domain.ResponseCache
	IdleTimeout time.Duration
}

func NewRegistry(opts RegistryOptions) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	idleTimeout := opts.IdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = domain.DefaultIdleConnTimeout
	}
	return &Registry{
		logger:      logger.Named("registry"),
		cache:       opts.Cache,
		idleTimeout: idleTimeout,
		entries:     make(map[string]*endpointEntry),
	}
}

// Acquire returns the pooled channel for an endpoint, creating it on first
// use.
func (r *Registry) Acquire(endpoint string) *Channel {
	endpoint = domain.NormalizeEndpoint(endpoint)

	r.mu.Lock()
	defer r.mu.Unlock()

	entry := r.entries[endpoint]
	if entry == nil {
		entry = &endpointEntry{}
		r.entries[endpoint] = entry
	}
	if entry.channel == nil {
		entry.channel = NewChannel(endpoint, ChannelOptions{
			Logger:      r.logger,
			IdleTimeout: r.idleTimeout,
		})
		r.logger.Debug("channel created",
			telemetry.EventField(telemetry.EventChannelCreated),
			telemetry.EndpointField(endpoint),
		)
	}
	return entry.channel
}

// Invalidate closes and forgets the endpoint's channel, clears its cached
// session token, and purges every cache entry whose key references the
// endpoint. Close failures are swallowed; invalidation never fails.
func (r *Registry) Invalidate(endpoint string) {
	endpoint = domain.NormalizeEndpoint(endpoint)

	r.mu.Lock()
	entry := r.entries[endpoint]
	var channel *Channel
	if entry != nil {
		channel = entry.channel
		entry.channel = nil
		entry.session = ""
	}
	r.mu.Unlock()

	if channel != nil {
		channel.Close()
	}
	if r.cache != nil {
		removed := r.cache.InvalidateMatching(endpoint)
		if removed > 0 {
			r.logger.Debug("cache entries purged",
				telemetry.EndpointField(endpoint),
				zap.Int("entries", removed),
			)
		}
	}
	r.logger.Debug("connection invalidated",
		telemetry.EventField(telemetry.EventConnectionInvalidated),
		telemetry.EndpointField(endpoint),
	)
}

// Session returns the cached session token for an endpoint.
func (r *Registry) Session(endpoint string) (string, bool) {
	endpoint = domain.NormalizeEndpoint(endpoint)

	r.mu.RLock()
	defer r.mu.RUnlock()

	entry := r.entries[endpoint]
	if entry == nil || entry.session == "" {
		return "", false
	}
	return entry.session, true
}

// SetSession caches a session token against an endpoint.
func (r *Registry) SetSession(endpoint, token string) {
	endpoint = domain.NormalizeEndpoint(endpoint)

	r.mu.Lock()
	defer r.mu.Unlock()

	entry := r.entries[endpoint]
	if entry == nil {
		entry = &endpointEntry{}
		r.entries[endpoint] = entry
	}
	entry.session = token
	r.logger.Debug("session adopted",
		telemetry.EndpointField(endpoint),
		telemetry.SessionIDField(token),
	)
}

// ClearSession drops the cached session token without touching the channel.
func (r *Registry) ClearSession(endpoint string) {
	endpoint = domain.NormalizeEndpoint(endpoint)

	r.mu.Lock()
	defer r.mu.Unlock()

	if entry := r.entries[endpoint]; entry != nil {
		entry.session = ""
	}
}

// LockEndpoint serializes session-mutating flows for one endpoint. It
// returns the unlock function; Invalidate and the session accessors remain
// callable while the lock is held.
func (r *Registry) LockEndpoint(endpoint string) func() {
	endpoint = domain.NormalizeEndpoint(endpoint)

	r.mu.Lock()
	entry := r.entries[endpoint]
	if entry == nil {
		entry = &endpointEntry{}
		r.entries[endpoint] = entry
	}
	r.mu.Unlock()

	entry.negMu.Lock()
	return entry.negMu.Unlock
}

// Endpoints lists every endpoint the registry has seen.
func (r *Registry) Endpoints() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.entries))
	for endpoint := range r.entries {
		out = append(out, endpoint)
	}
	return out
}
