package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusMetrics struct {
	callDuration       *prometheus.HistogramVec
	initializeDuration *prometheus.HistogramVec
	retries            *prometheus.CounterVec
	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
	endpointHealthy    *prometheus.GaugeVec
	inFlight           prometheus.Gauge
}

func NewPrometheusMetrics(registerer prometheus.Registerer) *PrometheusMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &PrometheusMetrics{
		callDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toolgate_call_duration_seconds",
				Help:    "Duration of tool invocations in seconds",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"endpoint", "tool", "status"},
		),
		initializeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toolgate_initialize_duration_seconds",
				Help:    "Duration of session negotiations in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"endpoint", "status"},
		),
		retries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolgate_retries_total",
				Help: "Total number of retry attempts per operation",
			},
			[]string{"endpoint", "operation"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolgate_cache_hits_total",
				Help: "Total number of response cache hits",
			},
			[]string{"kind"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolgate_cache_misses_total",
				Help: "Total number of response cache misses",
			},
			[]string{"kind"},
		),
		endpointHealthy: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "toolgate_endpoint_healthy",
				Help: "Whether the endpoint is currently considered healthy (1) or not (0)",
			},
			[]string{"endpoint"},
		),
		inFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "toolgate_calls_in_flight",
				Help: "Current number of in-flight tool invocations",
			},
		),
	}
}

func (p *PrometheusMetrics) ObserveCall(endpoint, tool, status string, duration time.Duration) {
	p.callDuration.WithLabelValues(endpoint, tool, status).Observe(duration.Seconds())
}

func (p *PrometheusMetrics) ObserveInitialize(endpoint string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	p.initializeDuration.WithLabelValues(endpoint, status).Observe(duration.Seconds())
}

func (p *PrometheusMetrics) ObserveRetry(endpoint, operation string) {
	p.retries.WithLabelValues(endpoint, operation).Inc()
}

func (p *PrometheusMetrics) ObserveCacheHit(kind string) {
	p.cacheHits.WithLabelValues(kind).Inc()
}

func (p *PrometheusMetrics) ObserveCacheMiss(kind string) {
	p.cacheMisses.WithLabelValues(kind).Inc()
}

func (p *PrometheusMetrics) SetEndpointHealthy(endpoint string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	p.endpointHealthy.WithLabelValues(endpoint).Set(value)
}

func (p *PrometheusMetrics) SetInFlight(count int) {
	p.inFlight.Set(float64(count))
}

var _ Metrics = (*PrometheusMetrics)(nil)
