package telemetry

import (
	"fmt"
	"time"
)

// Config contains the telemetry configuration.
type Config struct {
	// ServiceName identifies this process in traces.
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`

	// ServiceVersion is the version of the service.
	ServiceVersion string `mapstructure:"service_version" yaml:"service_version"`

	// Environment is an attribute attached to every trace (dev, ci, ...).
	Environment string `mapstructure:"environment" yaml:"environment"`

	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Tracing TracingConfig `mapstructure:"tracing" yaml:"tracing"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error, fatal).
	Level string `mapstructure:"level" yaml:"level"`

	// Format specifies the log format (console, json).
	Format string `mapstructure:"format" yaml:"format"`

	// Output specifies where logs are written (stdout, stderr, file path).
	Output string `mapstructure:"output" yaml:"output"`

	// EnableCaller adds file:line caller information to logs.
	EnableCaller bool `mapstructure:"enable_caller" yaml:"enable_caller"`

	// TimeFormat specifies the timestamp format (unix, unixms, rfc3339).
	TimeFormat string `mapstructure:"time_format" yaml:"time_format"`
}

// TracingConfig configures distributed tracing.
type TracingConfig struct {
	// Enabled controls whether tracing is active.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Exporter specifies the trace exporter (otlp, stdout, none).
	Exporter string `mapstructure:"exporter" yaml:"exporter"`

	// Endpoint is the OTLP collector address, e.g. "localhost:4317".
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// SamplingRate is the trace sampling rate (0.0 to 1.0).
	SamplingRate float64 `mapstructure:"sampling_rate" yaml:"sampling_rate"`

	// MaxExportBatchSize is the maximum batch size for export.
	MaxExportBatchSize int `mapstructure:"max_export_batch_size" yaml:"max_export_batch_size"`

	// ExportTimeout is the timeout for trace export.
	ExportTimeout time.Duration `mapstructure:"export_timeout" yaml:"export_timeout"`

	// Headers are additional headers for the OTLP exporter.
	Headers map[string]string `mapstructure:"headers" yaml:"headers"`

	// Insecure disables TLS for the exporter connection.
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`
}

// MetricsConfig configures metrics collection.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// ListenAddress is the address for the metrics HTTP endpoint. Empty
	// means metrics are collected but not served.
	ListenAddress string `mapstructure:"listen_address" yaml:"listen_address"`

	// Path is the HTTP path for metrics (default: /metrics).
	Path string `mapstructure:"path" yaml:"path"`

	// Namespace is the metrics namespace prefix.
	Namespace string `mapstructure:"namespace" yaml:"namespace"`

	// BuildDurationBuckets are the build duration buckets in seconds.
	BuildDurationBuckets []float64 `mapstructure:"build_duration_buckets" yaml:"build_duration_buckets"`
}

// DefaultConfig returns a default telemetry configuration. Tracing and the
// metrics server are off; a CLI run is short-lived.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "contentkit",
		ServiceVersion: "dev",
		Environment:    "development",
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			Output:     "stderr",
			TimeFormat: "rfc3339",
		},
		Tracing: TracingConfig{
			Enabled:            false,
			Exporter:           "none",
			SamplingRate:       1.0,
			MaxExportBatchSize: 512,
			ExportTimeout:      30 * time.Second,
			Headers:            make(map[string]string),
			Insecure:           true,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Path:      "/metrics",
			Namespace: "contentkit",
			BuildDurationBuckets: []float64{
				0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600,
			},
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}

	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'console' or 'json')", c.Logging.Format)
	}

	validExporters := map[string]bool{"otlp": true, "stdout": true, "none": true}
	if c.Tracing.Enabled && !validExporters[c.Tracing.Exporter] {
		return fmt.Errorf("invalid trace exporter: %s", c.Tracing.Exporter)
	}
	if c.Tracing.Enabled && c.Tracing.Exporter == "otlp" && c.Tracing.Endpoint == "" {
		return fmt.Errorf("otlp exporter requires an endpoint")
	}

	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0 and 1, got: %f", c.Tracing.SamplingRate)
	}

	return nil
}
