// Package observability provides structured logging, Prometheus metrics,
// health checks and OpenTelemetry tracing.
//
// Logging is JSON through logrus:
//
//	logger := observability.NewLogger(observability.ParseLevel(cfg.LogLevel), os.Stdout)
//	logger.WithField("restaurant_id", id).Info("restaurant created")
//
// Metrics are registered on a caller supplied registry and exposed on /metrics:
//
//	metrics := observability.NewMetrics(registry)
//	metrics.AuthAttemptsTotal.WithLabelValues(observability.AuthOutcomeFailure).Inc()
//
// Health checks ping PostgreSQL and Redis:
//
//	checker := observability.NewHealthChecker(db, redisClient, version)
//	observability.RegisterHealthRoutes(router, checker)
package observability
