// Package config loads contentkit application settings.
//
// Settings come from, in increasing priority: built-in defaults, a YAML
// file (ckit.yaml in the working directory, or an explicit path), and
// CKIT_ environment variables. Nested keys map to variables by joining
// with underscores, so builder.tool_path is CKIT_BUILDER_TOOL_PATH.
//
// # Example file
//
//	builder:
//	  tool_path: /usr/local/bin/mgcb
//	  extra_args: ["/quiet"]
//	extensions:
//	  dirs: [extensions]
//	  watch_references: true
//	history:
//	  path: .ckit/history.db
//	  retain: 200
//	telemetry:
//	  logging:
//	    level: debug
//
// Relative paths in a file are resolved against the file's directory.
package config
