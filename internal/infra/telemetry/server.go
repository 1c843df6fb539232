package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"toolgate/internal/domain"
)

// HealthReporter exposes the health monitor snapshot to the /healthz
// handler.
type HealthReporter interface {
	Snapshot() map[string]domain.HealthRecord
}

type HTTPServerOptions struct {
	Addr          string
	EnableMetrics bool
	EnableHealthz bool
	Health        HealthReporter
	Registry      prometheus.Gatherer
}

// StartHTTPServer serves /metrics and /healthz until the context is
// canceled. With both surfaces disabled it returns immediately.
func StartHTTPServer(ctx context.Context, opts HTTPServerOptions, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !opts.EnableMetrics && !opts.EnableHealthz {
		return nil
	}

	addr := opts.Addr
	if addr == "" {
		addr = domain.DefaultObservabilityListenAddress
	}

	registry := opts.Registry
	if registry == nil {
		registry = prometheus.DefaultGatherer
	}

	mux := http.NewServeMux()
	if opts.EnableMetrics {
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}
	if opts.EnableHealthz {
		mux.Handle("/healthz", healthHandler(opts.Health))
	}

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("observability server listening",
			zap.String("addr", server.Addr),
			zap.Bool("metrics", opts.EnableMetrics),
			zap.Bool("healthz", opts.EnableHealthz),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("observability server failed to start: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("observability server shutdown error", zap.Error(err))
			return err
		}
		logger.Info("observability server stopped")
		return nil
	}
}

type healthReport struct {
	Status    string                         `json:"status"`
	Endpoints map[string]domain.HealthRecord `json:"endpoints,omitempty"`
}

func healthHandler(reporter HealthReporter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		report := healthReport{Status: "ok"}
		if reporter != nil {
			report.Endpoints = reporter.Snapshot()
			for _, record := range report.Endpoints {
				if !record.Healthy {
					report.Status = "degraded"
					break
				}
			}
		}

		// Degraded endpoints are advisory; the process itself is fine, so
		// the handler always answers 200 with the detail in the body.
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(report)
	})
}
