// Package observability provides metrics and tracing for the configuration
// stream client.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsConfig configures the metrics provider
type MetricsConfig struct {
	// Service identification
	ServiceName    string
	ServiceVersion string
	Environment    string

	// Prometheus configuration
	MetricsPath string // HTTP path for metrics endpoint (default: /metrics)
	MetricsPort int    // Port for metrics server (default: 9090)

	// Metric options
	Namespace        string    // Prometheus namespace (default: configstream)
	HistogramBuckets []float64 // Custom histogram buckets for delays

	// Labels to add to all metrics
	ConstLabels prometheus.Labels
}

// MetricsProvider records what the listener does: connection attempts,
// decoded events, failures along the pipeline, and backoff behavior.
type MetricsProvider interface {
	// RecordConnectAttempt records one connection attempt and its result
	RecordConnectAttempt(ctx context.Context, result string, duration time.Duration)

	// RecordEvent records one successfully decoded and dispatched event
	RecordEvent(ctx context.Context, eventType string, handlerDuration time.Duration)

	// RecordParseError records one skipped malformed payload
	RecordParseError(ctx context.Context)

	// RecordHandlerFailure records one recovered handler panic
	RecordHandlerFailure(ctx context.Context)

	// RecordBackoff records one backoff wait before reconnecting
	RecordBackoff(ctx context.Context, attempt int, delay time.Duration)

	// RecordState records the listener's connection state
	RecordState(ctx context.Context, state string)

	// Management
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// listenerStates are the values RecordState toggles between
var listenerStates = []string{"idle", "connecting", "streaming", "backoff", "terminated"}

// PrometheusMetricsProvider implements MetricsProvider using Prometheus
type PrometheusMetricsProvider struct {
	config MetricsConfig
	server *http.Server

	connectAttempts *prometheus.CounterVec
	connectDuration *prometheus.HistogramVec
	eventsTotal     *prometheus.CounterVec
	handlerDuration *prometheus.HistogramVec
	parseErrors     prometheus.Counter
	handlerFailures prometheus.Counter
	backoffTotal    prometheus.Counter
	backoffSeconds  prometheus.Histogram
	connectionState *prometheus.GaugeVec
}

// NewMetricsProvider creates a new Prometheus metrics provider
func NewMetricsProvider(config MetricsConfig) (*PrometheusMetricsProvider, error) {
	if config.Namespace == "" {
		config.Namespace = "configstream"
	}
	if config.MetricsPath == "" {
		config.MetricsPath = "/metrics"
	}
	if config.MetricsPort == 0 {
		config.MetricsPort = 9090
	}
	if config.HistogramBuckets == nil {
		// Buckets in seconds, spanning fast dispatch to long backoffs
		config.HistogramBuckets = []float64{.001, .005, .01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60}
	}

	if config.ConstLabels == nil {
		config.ConstLabels = prometheus.Labels{}
	}
	if config.ServiceName != "" {
		config.ConstLabels["service"] = config.ServiceName
	}
	if config.ServiceVersion != "" {
		config.ConstLabels["version"] = config.ServiceVersion
	}
	if config.Environment != "" {
		config.ConstLabels["environment"] = config.Environment
	}

	provider := &PrometheusMetricsProvider{config: config}
	provider.initializeMetrics()

	if err := provider.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return provider, nil
}

// initializeMetrics creates all metric collectors
func (p *PrometheusMetricsProvider) initializeMetrics() {
	p.connectAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   p.config.Namespace,
			Name:        "connect_attempts_total",
			Help:        "Total connection attempts by result",
			ConstLabels: p.config.ConstLabels,
		},
		[]string{"result"},
	)

	p.connectDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   p.config.Namespace,
			Name:        "connect_duration_seconds",
			Help:        "Time spent establishing a connection",
			Buckets:     p.config.HistogramBuckets,
			ConstLabels: p.config.ConstLabels,
		},
		[]string{"result"},
	)

	p.eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   p.config.Namespace,
			Name:        "events_total",
			Help:        "Total configuration events dispatched",
			ConstLabels: p.config.ConstLabels,
		},
		[]string{"type"},
	)

	p.handlerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   p.config.Namespace,
			Name:        "handler_duration_seconds",
			Help:        "Time spent inside the update handler",
			Buckets:     p.config.HistogramBuckets,
			ConstLabels: p.config.ConstLabels,
		},
		[]string{"type"},
	)

	p.parseErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   p.config.Namespace,
			Name:        "parse_errors_total",
			Help:        "Total events skipped due to malformed payloads",
			ConstLabels: p.config.ConstLabels,
		},
	)

	p.handlerFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   p.config.Namespace,
			Name:        "handler_failures_total",
			Help:        "Total recovered update-handler panics",
			ConstLabels: p.config.ConstLabels,
		},
	)

	p.backoffTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   p.config.Namespace,
			Name:        "backoff_total",
			Help:        "Total backoff waits before reconnecting",
			ConstLabels: p.config.ConstLabels,
		},
	)

	p.backoffSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   p.config.Namespace,
			Name:        "backoff_seconds",
			Help:        "Backoff delay before each reconnect",
			Buckets:     p.config.HistogramBuckets,
			ConstLabels: p.config.ConstLabels,
		},
	)

	p.connectionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   p.config.Namespace,
			Name:        "connection_state",
			Help:        "Current listener state (1 for the active state, 0 otherwise)",
			ConstLabels: p.config.ConstLabels,
		},
		[]string{"state"},
	)
}

// registerMetrics registers all metrics with Prometheus
func (p *PrometheusMetricsProvider) registerMetrics() error {
	collectors := []prometheus.Collector{
		p.connectAttempts,
		p.connectDuration,
		p.eventsTotal,
		p.handlerDuration,
		p.parseErrors,
		p.handlerFailures,
		p.backoffTotal,
		p.backoffSeconds,
		p.connectionState,
	}

	for _, collector := range collectors {
		if err := prometheus.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}

	return nil
}

// RecordConnectAttempt records one connection attempt and its result
func (p *PrometheusMetricsProvider) RecordConnectAttempt(ctx context.Context, result string, duration time.Duration) {
	p.connectAttempts.WithLabelValues(result).Inc()
	p.connectDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// RecordEvent records one dispatched event
func (p *PrometheusMetricsProvider) RecordEvent(ctx context.Context, eventType string, handlerDuration time.Duration) {
	if eventType == "" {
		eventType = "message"
	}
	p.eventsTotal.WithLabelValues(eventType).Inc()
	p.handlerDuration.WithLabelValues(eventType).Observe(handlerDuration.Seconds())
}

// RecordParseError records one skipped malformed payload
func (p *PrometheusMetricsProvider) RecordParseError(ctx context.Context) {
	p.parseErrors.Inc()
}

// RecordHandlerFailure records one recovered handler panic
func (p *PrometheusMetricsProvider) RecordHandlerFailure(ctx context.Context) {
	p.handlerFailures.Inc()
}

// RecordBackoff records one backoff wait
func (p *PrometheusMetricsProvider) RecordBackoff(ctx context.Context, attempt int, delay time.Duration) {
	p.backoffTotal.Inc()
	p.backoffSeconds.Observe(delay.Seconds())
}

// RecordState records the listener's connection state
func (p *PrometheusMetricsProvider) RecordState(ctx context.Context, state string) {
	for _, s := range listenerStates {
		p.connectionState.WithLabelValues(s).Set(0)
	}
	p.connectionState.WithLabelValues(state).Set(1)
}

// Start starts the metrics HTTP server
func (p *PrometheusMetricsProvider) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle(p.config.MetricsPath, promhttp.Handler())

	p.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", p.config.MetricsPort),
		Handler: mux,
	}

	go func() {
		_ = p.server.ListenAndServe()
	}()

	return nil
}

// Shutdown gracefully shuts down the metrics server
func (p *PrometheusMetricsProvider) Shutdown(ctx context.Context) error {
	if p.server != nil {
		return p.server.Shutdown(ctx)
	}
	return nil
}

// NopMetrics is a MetricsProvider that records nothing
type NopMetrics struct{}

func (NopMetrics) RecordConnectAttempt(context.Context, string, time.Duration) {}
func (NopMetrics) RecordEvent(context.Context, string, time.Duration)         {}
func (NopMetrics) RecordParseError(context.Context)                           {}
func (NopMetrics) RecordHandlerFailure(context.Context)                       {}
func (NopMetrics) RecordBackoff(context.Context, int, time.Duration)          {}
func (NopMetrics) RecordState(context.Context, string)                        {}
func (NopMetrics) Start(context.Context) error                                { return nil }
func (NopMetrics) Shutdown(context.Context) error                             { return nil }
