// Package observability wires logging, metrics, and tracing for pipeline runs.
//
// # Logging
//
// NewLogger returns a *slog.Logger whose handler redacts credentials that
// tend to leak through connection strings and attaches the run ID carried
// in the context:
//
//	logger := observability.NewLogger(observability.LogConfig{Level: "info", Format: "json"})
//	ctx = observability.WithRunID(ctx, runID)
//	logger.InfoContext(ctx, "ingestion started")
//
// # Metrics
//
// Metrics are Prometheus collectors registered against an injected
// registerer, so tests can use a private registry:
//
//	m := observability.NewMetrics(prometheus.NewRegistry())
//	m.RecordStage("evaluation", "success", elapsed)
//	m.RecordPromotion(true, 0.05)
//
// # Tracing
//
// NewTracer exports spans over OTLP gRPC when an endpoint is configured
// and falls back to the global no-op provider otherwise. Each pipeline
// stage runs in its own span.
package observability
