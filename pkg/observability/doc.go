// Package observability provides the shared operational plumbing:
// structured JSON logging, Prometheus metrics, health checks, and
// graceful shutdown coordination.
//
// Logging is leveled and structured:
//
//	log := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	log.WithField("userId", id).Info("user created")
//
// Metrics are registered against a caller-owned registry so tests can
// use an isolated one:
//
//	registry := prometheus.NewRegistry()
//	m := observability.NewMetrics(registry)
//	m.LoginAttemptsTotal.WithLabelValues("success").Inc()
//
// The health checker probes the database pool and Redis when they are
// configured and serves liveness and readiness endpoints for the
// health listener.
package observability
