package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Metrics provides Prometheus metrics for builds, edits and type
// resolution. A disabled Metrics accepts every call and records nothing.
type Metrics struct {
	config MetricsConfig

	// Build metrics
	buildsStarted    *prometheus.CounterVec
	buildsCompleted  *prometheus.CounterVec
	buildDuration    *prometheus.HistogramVec
	buildDiagnostics *prometheus.CounterVec
	activeBuilds     prometheus.Gauge

	// History metrics
	commands *prometheus.CounterVec

	// Registry metrics
	registryLoads   *prometheus.CounterVec
	registryTypes   *prometheus.GaugeVec
	unresolvedItems prometheus.Gauge

	// Error metrics
	errorsByClass *prometheus.CounterVec

	registry *prometheus.Registry
	server   *http.Server
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.BuildDurationBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		buildsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "builds_started_total",
				Help:      "Total number of builds started",
			},
			[]string{"mode"},
		),
		buildsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "builds_completed_total",
				Help:      "Total number of builds finished by final state",
			},
			[]string{"mode", "status"},
		),
		buildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "build_duration_seconds",
				Help:      "Build wall time in seconds",
				Buckets:   buckets,
			},
			[]string{"mode", "status"},
		),
		buildDiagnostics: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "build_diagnostics_total",
				Help:      "Diagnostics reported by the build tool",
			},
			[]string{"severity"},
		),
		activeBuilds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_builds",
				Help:      "Number of builds currently running",
			},
		),
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "Edit command operations by command kind",
			},
			[]string{"command", "op", "result"},
		),
		registryLoads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "registry_loads_total",
				Help:      "Type registry loads",
			},
			[]string{"result"},
		),
		registryTypes: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "registry_types",
				Help:      "Registered importer and processor types",
			},
			[]string{"kind"},
		),
		unresolvedItems: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "unresolved_items",
				Help:      "Content items with a missing importer or processor",
			},
		),
		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Errors by class and code",
			},
			[]string{"class", "code"},
		),
	}

	collectors := []prometheus.Collector{
		m.buildsStarted,
		m.buildsCompleted,
		m.buildDuration,
		m.buildDiagnostics,
		m.activeBuilds,
		m.commands,
		m.registryLoads,
		m.registryTypes,
		m.unresolvedItems,
		m.errorsByClass,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Enabled reports whether metrics are recorded.
func (m *Metrics) Enabled() bool { return m.registry != nil }

// Build Metrics

// RecordBuildStarted counts a started build.
func (m *Metrics) RecordBuildStarted(mode string) {
	if m.buildsStarted == nil {
		return
	}
	m.buildsStarted.WithLabelValues(mode).Inc()
	m.activeBuilds.Inc()
}

// RecordBuildCompleted records a finished build with its final state.
func (m *Metrics) RecordBuildCompleted(mode, status string, duration time.Duration) {
	if m.buildsCompleted == nil {
		return
	}
	m.buildsCompleted.WithLabelValues(mode, status).Inc()
	m.buildDuration.WithLabelValues(mode, status).Observe(duration.Seconds())
	m.activeBuilds.Dec()
}

// RecordBuildDiagnostic counts one diagnostic line.
func (m *Metrics) RecordBuildDiagnostic(severity string) {
	if m.buildDiagnostics == nil {
		return
	}
	m.buildDiagnostics.WithLabelValues(severity).Inc()
}

// History Metrics

// RecordCommand counts one add, undo or redo.
func (m *Metrics) RecordCommand(command, op string, ok bool) {
	if m.commands == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.commands.WithLabelValues(command, op, result).Inc()
}

// Registry Metrics

// RecordRegistryLoad records a registry load and the resulting type counts.
func (m *Metrics) RecordRegistryLoad(importers, processors int, err error) {
	if m.registryLoads == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "partial"
	}
	m.registryLoads.WithLabelValues(result).Inc()
	m.registryTypes.WithLabelValues("importer").Set(float64(importers))
	m.registryTypes.WithLabelValues("processor").Set(float64(processors))
}

// SetUnresolvedItems sets the number of items with missing types.
func (m *Metrics) SetUnresolvedItems(count int) {
	if m.unresolvedItems == nil {
		return
	}
	m.unresolvedItems.Set(float64(count))
}

// Error Metrics

// RecordError records an error by class and code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass, errorCode).Inc()
}

// Gather returns the current metric families, or nil when disabled.
func (m *Metrics) Gather() ([]*dto.MetricFamily, error) {
	if m.registry == nil {
		return nil, nil
	}
	return m.registry.Gather()
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer serves metrics in the background. It does nothing
// when metrics are disabled or no listen address is configured. Serve
// errors are passed to onError, which may be nil.
func (m *Metrics) StartMetricsServer(onError func(error)) error {
	if m.registry == nil || m.config.ListenAddress == "" {
		return nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	m.server = &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) && onError != nil {
			onError(err)
		}
	}()

	return nil
}

// Shutdown stops the metrics server if one was started.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}
