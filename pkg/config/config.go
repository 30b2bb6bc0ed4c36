package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/openfroyo/contentkit/pkg/pipeline"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "CKIT"

	// FileName is the config file looked up when no path is given.
	FileName = "ckit"
)

// Load reads the configuration. An empty path searches the working
// directory for ckit.yaml and falls back to defaults if there is none;
// an explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, pipeline.NewError(pipeline.ErrorClassValidation, "failed to read configuration", err).
				WithItem(path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, pipeline.NewError(pipeline.ErrorClassValidation, "failed to parse configuration", err)
	}

	if used := v.ConfigFileUsed(); used != "" {
		cfg.resolvePaths(filepath.Dir(used))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct constraints and the telemetry section.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return pipeline.NewError(pipeline.ErrorClassValidation, "invalid configuration", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return pipeline.NewError(pipeline.ErrorClassValidation, "invalid telemetry configuration", err)
	}
	return nil
}

func (c *Config) resolvePaths(base string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	for i, dir := range c.Extensions.Dirs {
		c.Extensions.Dirs[i] = abs(dir)
	}
	c.Extensions.TemplatesFile = abs(c.Extensions.TemplatesFile)
	c.History.Path = abs(c.History.Path)
	c.Builder.WorkDir = abs(c.Builder.WorkDir)
}

// setDefaults registers every key so environment overrides apply even
// when the file omits them.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("builder.tool_path", d.Builder.ToolPath)
	v.SetDefault("builder.extra_args", d.Builder.ExtraArgs)
	v.SetDefault("builder.work_dir", d.Builder.WorkDir)
	v.SetDefault("builder.keep_response_files", d.Builder.KeepResponseFiles)

	v.SetDefault("extensions.dirs", d.Extensions.Dirs)
	v.SetDefault("extensions.watch_references", d.Extensions.WatchReferences)
	v.SetDefault("extensions.templates_file", d.Extensions.TemplatesFile)

	v.SetDefault("history.enabled", d.History.Enabled)
	v.SetDefault("history.path", d.History.Path)
	v.SetDefault("history.retain", d.History.Retain)

	t := d.Telemetry
	v.SetDefault("telemetry.service_name", t.ServiceName)
	v.SetDefault("telemetry.service_version", t.ServiceVersion)
	v.SetDefault("telemetry.environment", t.Environment)

	v.SetDefault("telemetry.logging.level", t.Logging.Level)
	v.SetDefault("telemetry.logging.format", t.Logging.Format)
	v.SetDefault("telemetry.logging.output", t.Logging.Output)
	v.SetDefault("telemetry.logging.enable_caller", t.Logging.EnableCaller)
	v.SetDefault("telemetry.logging.time_format", t.Logging.TimeFormat)

	v.SetDefault("telemetry.tracing.enabled", t.Tracing.Enabled)
	v.SetDefault("telemetry.tracing.exporter", t.Tracing.Exporter)
	v.SetDefault("telemetry.tracing.endpoint", t.Tracing.Endpoint)
	v.SetDefault("telemetry.tracing.sampling_rate", t.Tracing.SamplingRate)
	v.SetDefault("telemetry.tracing.max_export_batch_size", t.Tracing.MaxExportBatchSize)
	v.SetDefault("telemetry.tracing.export_timeout", t.Tracing.ExportTimeout)
	v.SetDefault("telemetry.tracing.insecure", t.Tracing.Insecure)

	v.SetDefault("telemetry.metrics.enabled", t.Metrics.Enabled)
	v.SetDefault("telemetry.metrics.listen_address", t.Metrics.ListenAddress)
	v.SetDefault("telemetry.metrics.path", t.Metrics.Path)
	v.SetDefault("telemetry.metrics.namespace", t.Metrics.Namespace)
	v.SetDefault("telemetry.metrics.build_duration_buckets", t.Metrics.BuildDurationBuckets)
}

// String renders a one-line summary for debug logs.
func (c *Config) String() string {
	return fmt.Sprintf("tool=%s extensions=%d history=%t(%s)",
		c.Builder.ToolPath, len(c.Extensions.Dirs), c.History.Enabled, c.History.Path)
}
