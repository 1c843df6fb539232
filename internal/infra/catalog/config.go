// Package catalog loads, validates, and watches the endpoint configuration:
// which tool servers exist, how to authenticate against them, and the
// runtime knobs shared by every flow.
package catalog

import (
	"time"

	"toolgate/internal/domain"
)

// EndpointSpec is one configured tool server.
type EndpointSpec struct {
	Name            string
	URL             string
	Headers         map[string]string
	MaxConcurrent   int
	ProtocolVersion string
	Disabled        bool
}

// RuntimeConfig carries the knobs shared across endpoints.
type RuntimeConfig struct {
	MaxRetryCount    int
	MaxConcurrent    int
	CacheTTL         time.Duration
	CallTimeout      time.Duration
	ListTimeout      time.Duration
	NotifyTimeout    time.Duration
	MonitorInterval  time.Duration
	CatalogStorePath string
	Observability    ObservabilityConfig
}

// ObservabilityConfig configures the monitor's HTTP surface.
type ObservabilityConfig struct {
	ListenAddress string
}

// Config is a fully validated configuration snapshot.
type Config struct {
	Endpoints []EndpointSpec
	Runtime   RuntimeConfig
}

// Endpoint returns the spec with the given name.
func (c Config) Endpoint(name string) (EndpointSpec, bool) {
	for _, spec := range c.Endpoints {
		if spec.Name == name {
			return spec, true
		}
	}
	return EndpointSpec{}, false
}

// Enabled returns the specs not marked disabled.
func (c Config) Enabled() []EndpointSpec {
	out := make([]EndpointSpec, 0, len(c.Endpoints))
	for _, spec := range c.Endpoints {
		if !spec.Disabled {
			out = append(out, spec)
		}
	}
	return out
}

// Credentials builds the static credential provider from the configured
// endpoint headers.
func (c Config) Credentials() domain.StaticCredentials {
	creds := make(domain.StaticCredentials, len(c.Endpoints))
	for _, spec := range c.Endpoints {
		if len(spec.Headers) == 0 {
			continue
		}
		headers := make(map[string]string, len(spec.Headers))
		for key, value := range spec.Headers {
			headers[key] = value
		}
		creds[domain.NormalizeEndpoint(spec.URL)] = headers
	}
	return creds
}
