// Package app assembles the gateway: config, transport, session, client,
// and observability wired together for the CLI commands.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"toolgate/internal/domain"
	"toolgate/internal/infra/catalog"
	"toolgate/internal/infra/catalogstore"
	"toolgate/internal/infra/client"
	"toolgate/internal/infra/session"
	"toolgate/internal/infra/telemetry"
	"toolgate/internal/infra/transport"
)

// App owns one wired instance of the gateway stack.
type App struct {
	logger   *zap.Logger
	provider *catalog.Provider
	registry *transport.Registry
	health   *domain.HealthMonitor
	metrics  telemetry.Metrics
	client   *client.Client
	store    *catalogstore.Store
	gatherer prometheus.Gatherer

	digestMu sync.Mutex
	digests  map[string]string
}

// Options configure an App. ConfigPath is required; EnableMetrics switches
// the Prometheus implementation in (the CLI one-shot commands run without
// it).
type Options struct {
	ConfigPath    string
	Logger        *zap.Logger
	EnableMetrics bool
}

func New(opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	provider, err := catalog.NewProvider(opts.ConfigPath, logger)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg := provider.Snapshot()

	var metrics telemetry.Metrics = telemetry.NewNoopMetrics()
	var gatherer prometheus.Gatherer
	if opts.EnableMetrics {
		registry := prometheus.NewRegistry()
		metrics = telemetry.NewPrometheusMetrics(registry)
		gatherer = registry
	}

	cache := domain.NewResponseCache(cfg.Runtime.CacheTTL)
	health := domain.NewHealthMonitor(cfg.Runtime.MonitorInterval)
	registry := transport.NewRegistry(transport.RegistryOptions{
		Logger: logger,
		Cache:  cache,
	})
	negotiator := session.NewNegotiator(session.NegotiatorOptions{
		Registry:    registry,
		Metrics:     metrics,
		Logger:      logger,
		MaxAttempts: cfg.Runtime.MaxRetryCount,
	})

	var store *catalogstore.Store
	if path := cfg.Runtime.CatalogStorePath; path != "" {
		store, err = catalogstore.Open(path)
		if err != nil {
			logger.Warn("catalog store unavailable, continuing without persistence",
				zap.String("path", path),
				zap.Error(err),
			)
			store = nil
		}
	}

	toolClient := client.New(client.ClientOptions{
		Registry:      registry,
		Negotiator:    negotiator,
		Cache:         cache,
		Health:        health,
		Metrics:       metrics,
		Logger:        logger,
		Store:         store,
		MaxAttempts:   cfg.Runtime.MaxRetryCount,
		ListTimeout:   cfg.Runtime.ListTimeout,
		CallTimeout:   cfg.Runtime.CallTimeout,
		NotifyTimeout: cfg.Runtime.NotifyTimeout,
	})

	return &App{
		logger:   logger,
		provider: provider,
		registry: registry,
		health:   health,
		metrics:  metrics,
		client:   toolClient,
		store:    store,
		gatherer: gatherer,
		digests:  make(map[string]string),
	}, nil
}

func (a *App) Close() {
	if a.store != nil {
		_ = a.store.Close()
	}
	for _, endpoint := range a.registry.Endpoints() {
		a.registry.Invalidate(endpoint)
	}
}

func (a *App) Client() *client.Client {
	return a.client
}

func (a *App) Config() catalog.Config {
	return a.provider.Snapshot()
}

// ResolveEndpoint maps an endpoint name (or a literal URL) to its spec and
// configured headers. An empty name is allowed when exactly one endpoint is
// enabled.
func (a *App) ResolveEndpoint(ctx context.Context, name string) (catalog.EndpointSpec, map[string]string, error) {
	cfg := a.provider.Snapshot()

	var spec catalog.EndpointSpec
	switch {
	case name == "":
		enabled := cfg.Enabled()
		if len(enabled) != 1 {
			return catalog.EndpointSpec{}, nil, fmt.Errorf("%d endpoints configured, pick one with --endpoint", len(enabled))
		}
		spec = enabled[0]
	default:
		found, ok := cfg.Endpoint(name)
		if !ok {
			// Allow ad-hoc URLs that are not in the config, held to the
			// same scheme rule the loader enforces.
			url := domain.NormalizeEndpoint(name)
			if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
				return catalog.EndpointSpec{}, nil, fmt.Errorf("unknown endpoint %q (not in config and not an http(s) url)", name)
			}
			found = catalog.EndpointSpec{Name: url, URL: url}
		}
		spec = found
	}

	headers, err := cfg.Credentials().Headers(ctx, spec.URL)
	if err != nil {
		return catalog.EndpointSpec{}, nil, err
	}
	return spec, headers, nil
}
