package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Auth attempt outcomes
const (
	AuthOutcomeSuccess = "success"
	AuthOutcomeFailure = "failure"
	AuthOutcomeError   = "error"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Database metrics
	DBConnectionsOpen  prometheus.Gauge
	DBConnectionsInUse prometheus.Gauge
	DBConnectionsIdle  prometheus.Gauge

	// Security metrics
	AuthAttemptsTotal      *prometheus.CounterVec
	AuthzDenialsTotal      *prometheus.CounterVec
	TenantScopeMissesTotal *prometheus.CounterVec
	TokensRevokedTotal     prometheus.Counter

	// Permission catalog
	PermissionSeedsTotal *prometheus.CounterVec

	// Billing
	BillingSweepsTotal       *prometheus.CounterVec
	SubscriptionsMarkedTotal prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tablekeep_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tablekeep_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		DBConnectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tablekeep_db_connections_open",
			Help: "Number of open database connections",
		}),
		DBConnectionsInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tablekeep_db_connections_in_use",
			Help: "Number of database connections in use",
		}),
		DBConnectionsIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tablekeep_db_connections_idle",
			Help: "Number of idle database connections",
		}),

		AuthAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tablekeep_auth_attempts_total",
				Help: "Login attempts by outcome",
			},
			[]string{"outcome"},
		),
		AuthzDenialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tablekeep_authz_denials_total",
				Help: "Requests rejected for a missing permission",
			},
			[]string{"permission", "role"},
		),
		TenantScopeMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tablekeep_tenant_scope_misses_total",
				Help: "Mutations that matched no row inside the caller's tenant scope",
			},
			[]string{"entity"},
		),
		TokensRevokedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tablekeep_tokens_revoked_total",
			Help: "Session tokens revoked through logout",
		}),

		PermissionSeedsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tablekeep_permission_seeds_total",
				Help: "Permission catalog seeding runs",
			},
			[]string{"status"},
		),

		BillingSweepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tablekeep_billing_sweeps_total",
				Help: "Expired subscription sweeps",
			},
			[]string{"status"},
		),
		SubscriptionsMarkedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tablekeep_subscriptions_marked_past_due_total",
			Help: "Subscriptions moved to PAST_DUE by the sweep",
		}),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.DBConnectionsOpen,
		m.DBConnectionsInUse,
		m.DBConnectionsIdle,
		m.AuthAttemptsTotal,
		m.AuthzDenialsTotal,
		m.TenantScopeMissesTotal,
		m.TokensRevokedTotal,
		m.PermissionSeedsTotal,
		m.BillingSweepsTotal,
		m.SubscriptionsMarkedTotal,
	)

	return m
}

// RecordDBStats copies pool statistics into the database gauges
func (m *Metrics) RecordDBStats(stats sql.DBStats) {
	m.DBConnectionsOpen.Set(float64(stats.OpenConnections))
	m.DBConnectionsInUse.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// routeLabel uses the mux path template so ids do not explode label cardinality
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(router *mux.Router, gatherer prometheus.Gatherer) {
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}
