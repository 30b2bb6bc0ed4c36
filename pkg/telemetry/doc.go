// Package telemetry provides logging, tracing and metrics for contentkit.
//
// Structured logging uses zerolog, tracing uses OpenTelemetry with an OTLP
// or stdout exporter, and metrics are Prometheus collectors on a private
// registry.
//
// # Usage
//
// Initialize telemetry at startup:
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx := tel.WithContext(context.Background())
//
// # Builds
//
// Metrics implements the recorder interfaces of the builder and history
// packages, and Tracer satisfies the builder's tracer, so a session wires
// them directly:
//
//	orch := builder.New(cfg,
//	    builder.WithRecorder(tel.Metrics),
//	    builder.WithTracer(tel.Tracer),
//	)
//
// # Metrics
//
// All metric names carry the configured namespace (default "contentkit"):
//
//	contentkit_builds_started_total{mode}
//	contentkit_builds_completed_total{mode,status}
//	contentkit_build_duration_seconds{mode,status}
//	contentkit_build_diagnostics_total{severity}
//	contentkit_active_builds
//	contentkit_commands_total{command,op,result}
//	contentkit_registry_loads_total{result}
//	contentkit_registry_types{kind}
//	contentkit_unresolved_items
//	contentkit_errors_total{class,code}
//
// When Metrics.Enabled is false every recording call is a no-op.
//
// # Operations
//
// StartOperation opens a span and a field-scoped logger from the telemetry
// in the context:
//
//	op := telemetry.StartOperation(ctx, "project.save")
//	err := save(op.Ctx)
//	op.End(err)
package telemetry
