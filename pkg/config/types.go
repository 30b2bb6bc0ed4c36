package config

import (
	"github.com/openfroyo/contentkit/pkg/telemetry"
)

// Config is the full application configuration.
type Config struct {
	Builder    BuilderConfig    `mapstructure:"builder" yaml:"builder"`
	Extensions ExtensionsConfig `mapstructure:"extensions" yaml:"extensions"`
	History    HistoryConfig    `mapstructure:"history" yaml:"history"`
	Telemetry  telemetry.Config `mapstructure:"telemetry" yaml:"telemetry"`
}

// BuilderConfig describes how the external build tool is invoked.
type BuilderConfig struct {
	// ToolPath is the build tool executable, looked up on PATH if bare.
	ToolPath string `mapstructure:"tool_path" yaml:"tool_path" validate:"required"`

	// ExtraArgs are passed to the tool before the response file.
	ExtraArgs []string `mapstructure:"extra_args" yaml:"extra_args"`

	// WorkDir holds generated response files (default: system temp dir).
	WorkDir string `mapstructure:"work_dir" yaml:"work_dir"`

	// KeepResponseFiles leaves response files on disk after a build.
	KeepResponseFiles bool `mapstructure:"keep_response_files" yaml:"keep_response_files"`
}

// ExtensionsConfig configures where extension manifests are found.
type ExtensionsConfig struct {
	// Dirs are scanned for *.yaml manifests, which are added to every
	// project's references.
	Dirs []string `mapstructure:"dirs" yaml:"dirs" validate:"dive,required"`

	// WatchReferences reloads types when a referenced manifest changes.
	WatchReferences bool `mapstructure:"watch_references" yaml:"watch_references"`

	// TemplatesFile lists the templates new items can be created from.
	TemplatesFile string `mapstructure:"templates_file" yaml:"templates_file"`
}

// HistoryConfig configures the build history database.
type HistoryConfig struct {
	// Enabled records every build in the database.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Path is the SQLite database file.
	Path string `mapstructure:"path" yaml:"path" validate:"required_if=Enabled true"`

	// Retain is how many builds are kept; 0 keeps everything.
	Retain int `mapstructure:"retain" yaml:"retain" validate:"gte=0"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Builder: BuilderConfig{
			ToolPath: "mgcb",
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    ".ckit/history.db",
			Retain:  100,
		},
		Telemetry: *telemetry.DefaultConfig(),
	}
}
