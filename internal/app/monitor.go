package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"toolgate/internal/domain"
	"toolgate/internal/infra/catalog"
	"toolgate/internal/infra/client"
	"toolgate/internal/infra/hashutil"
	"toolgate/internal/infra/telemetry"
)

// Monitor probes every enabled endpoint on the configured interval, keeps
// the health monitor and persisted catalogs fresh, reloads the config on
// file changes, and serves /healthz (and /metrics when enabled) until the
// context is canceled.
func (a *App) Monitor(ctx context.Context) error {
	cfg := a.provider.Snapshot()

	a.provider.Watch(ctx, func(next catalog.Config) {
		a.logger.Info("endpoint set updated",
			zap.Int("endpoints", len(next.Enabled())),
		)
	})

	go a.probeLoop(ctx, cfg.Runtime.MonitorInterval)

	return telemetry.StartHTTPServer(ctx, telemetry.HTTPServerOptions{
		Addr:          cfg.Runtime.Observability.ListenAddress,
		EnableMetrics: a.gatherer != nil,
		EnableHealthz: true,
		Health:        a.health,
		Registry:      a.gatherer,
	}, a.logger)
}

func (a *App) probeLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.probeAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.probeAll(ctx)
		}
	}
}

// probeAll refreshes discovery for every enabled endpoint. The tool listing
// doubles as the health probe: a full handshake plus tools/list exercises
// the same path real calls take.
func (a *App) probeAll(ctx context.Context) {
	cfg := a.provider.Snapshot()
	before := a.health.Snapshot()

	for _, spec := range cfg.Enabled() {
		headers, err := cfg.Credentials().Headers(ctx, spec.URL)
		if err != nil {
			continue
		}
		// Probes want live answers, not the TTL cache.
		tools, err := a.client.ListToolsWithOptions(ctx, spec.URL, headers, client.ListOptions{NoCache: true})
		healthy := err == nil
		if healthy {
			a.noteCatalogDigest(spec.URL, tools)
		}
		if wasHealthy, known := previousHealth(before, spec.URL); !known || wasHealthy != healthy {
			a.logger.Info("endpoint health changed",
				telemetry.EventField(telemetry.EventHealthTransition),
				telemetry.EndpointField(spec.URL),
				zap.Bool("healthy", healthy),
				zap.Int("tools", len(tools)),
				zap.Error(err),
			)
		}
		a.metrics.SetEndpointHealthy(spec.URL, healthy)
	}
}

// noteCatalogDigest remembers the last seen tool catalog per endpoint and
// logs when an endpoint starts advertising a different tool set.
func (a *App) noteCatalogDigest(endpoint string, tools []domain.ToolDefinition) {
	digest := hashutil.CatalogDigest(a.logger, tools)
	if digest == "" {
		return
	}
	key := domain.NormalizeEndpoint(endpoint)

	a.digestMu.Lock()
	previous, seen := a.digests[key]
	a.digests[key] = digest
	a.digestMu.Unlock()

	if seen && previous != digest {
		a.logger.Info("endpoint tool catalog changed",
			telemetry.EndpointField(endpoint),
			zap.Int("tools", len(tools)),
		)
	}
}

func previousHealth(records map[string]domain.HealthRecord, endpoint string) (bool, bool) {
	record, ok := records[domain.NormalizeEndpoint(endpoint)]
	if !ok {
		return false, false
	}
	return record.Healthy, true
}
