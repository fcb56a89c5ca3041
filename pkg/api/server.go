package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/tablekeep/pkg/audit"
	"github.com/platinummonkey/tablekeep/pkg/auth"
	"github.com/platinummonkey/tablekeep/pkg/billing"
	"github.com/platinummonkey/tablekeep/pkg/customers"
	"github.com/platinummonkey/tablekeep/pkg/httputil"
	"github.com/platinummonkey/tablekeep/pkg/middleware"
	"github.com/platinummonkey/tablekeep/pkg/observability"
	"github.com/platinummonkey/tablekeep/pkg/restaurants"
	"github.com/platinummonkey/tablekeep/pkg/users"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// APIPrefix is where every versioned route is mounted
const APIPrefix = "/api/v1"

// DefaultMaxBodyBytes bounds request bodies when Dependencies leaves it unset
const DefaultMaxBodyBytes = 1 << 20

const defaultDenylistSize = 10000

// TokenService issues and verifies session tokens. *auth.TokenIssuer implements it.
type TokenService interface {
	TokenIssuer
	middleware.TokenParser
}

// Dependencies are the collaborators the HTTP server is assembled from
type Dependencies struct {
	Restaurants restaurants.Service
	Users       users.Service
	Customers   customers.Service
	Billing     billing.Service
	Permissions PermissionDirectory
	Checker     middleware.PermissionChecker

	Tokens       TokenService
	Denylist     auth.Denylist
	LoginLimiter middleware.Limiter

	// Audit receives security events; AuditEvents serves GET /audit/events
	// and is optional.
	Audit       audit.Logger
	AuditEvents AuditSearcher

	Health   *observability.HealthChecker
	Metrics  *observability.Metrics
	Gatherer prometheus.Gatherer
	Logger   *observability.Logger

	ServiceName  string
	CORSOrigins  []string
	MaxBodyBytes int64
}

// Server represents our API server
type Server struct {
	router  *mux.Router
	handler http.Handler
	deps    Dependencies
}

// NewServer creates a new API server with every route registered
func NewServer(deps Dependencies) *Server {
	if deps.MaxBodyBytes <= 0 {
		deps.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if deps.ServiceName == "" {
		deps.ServiceName = "tablekeep"
	}
	if deps.Logger == nil {
		deps.Logger = observability.NewLogger(observability.InfoLevel, io.Discard)
	}
	if deps.Denylist == nil {
		deps.Denylist = auth.NewMemoryDenylist(defaultDenylistSize, 0)
	}

	s := &Server{
		router: mux.NewRouter(),
		deps:   deps,
	}
	s.setupRoutes()
	s.handler = s.wrap(s.router)
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	if s.deps.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.deps.Metrics))
	}
	if s.deps.Health != nil {
		observability.RegisterHealthRoutes(s.router, s.deps.Health)
	}
	if s.deps.Gatherer != nil {
		observability.RegisterMetricsEndpoint(s.router, s.deps.Gatherer)
	}

	guard := NewGuard(s.deps.Checker, s.deps.Metrics, s.deps.Audit)
	authHandlers := NewAuthHandlers(s.deps.Users, s.deps.Tokens, s.deps.Denylist, s.deps.Permissions, s.deps.Metrics, guard)

	api := s.router.PathPrefix(APIPrefix).Subrouter()

	public := api.NewRoute().Subrouter()
	var limit func(http.Handler) http.Handler
	if s.deps.LoginLimiter != nil {
		limit = middleware.RateLimitByIP(s.deps.LoginLimiter, s.deps.Logger)
	}
	authHandlers.RegisterPublicRoutes(public, limit)

	protected := api.NewRoute().Subrouter()
	protected.Use(middleware.NewAuthenticator(s.deps.Tokens, s.deps.Denylist, s.deps.Users, s.deps.Logger).Handler)
	authHandlers.RegisterRoutes(protected)
	NewRestaurantHandlers(s.deps.Restaurants, s.deps.Billing, guard).RegisterRoutes(protected)
	NewUserHandlers(s.deps.Users, guard).RegisterRoutes(protected)
	NewCustomerHandlers(s.deps.Customers, guard).RegisterRoutes(protected)
	NewBillingHandlers(s.deps.Billing, guard).RegisterRoutes(protected)
	NewRBACHandlers(s.deps.Permissions, guard, s.deps.Metrics).RegisterRoutes(protected)
	if s.deps.AuditEvents != nil {
		NewAuditHandlers(s.deps.AuditEvents, guard).RegisterRoutes(protected)
	}
}

// wrap applies the middleware that must run even when no route matches, such
// as CORS preflight and request ids on 404s.
func (s *Server) wrap(h http.Handler) http.Handler {
	h = httputil.MaxBytesMiddleware(s.deps.MaxBodyBytes)(h)
	if len(s.deps.CORSOrigins) > 0 {
		h = httputil.CORSMiddleware(s.deps.CORSOrigins)(h)
	}
	h = httputil.LoggingMiddleware(s.deps.Logger)(h)
	h = httputil.RecoveryMiddleware(s.deps.Logger)(h)
	h = httputil.RequestIDMiddleware(h)
	return otelhttp.NewHandler(h, s.deps.ServiceName, otelhttp.WithFilter(traced))
}

// traced skips probes and scrapes
func traced(r *http.Request) bool {
	return !strings.HasPrefix(r.URL.Path, "/health") && r.URL.Path != "/metrics"
}

// Router exposes the underlying router
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
