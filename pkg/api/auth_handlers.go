package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/tablekeep/pkg/audit"
	"github.com/platinummonkey/tablekeep/pkg/auth"
	"github.com/platinummonkey/tablekeep/pkg/httputil"
	"github.com/platinummonkey/tablekeep/pkg/observability"
	"github.com/platinummonkey/tablekeep/pkg/rbac"
	"github.com/platinummonkey/tablekeep/pkg/users"
)

// TokenIssuer signs session tokens for authenticated users
type TokenIssuer interface {
	Issue(u *users.User) (string, *auth.Claims, error)
}

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries a freshly issued bearer token
type LoginResponse struct {
	Token     string      `json:"token"`
	TokenType string      `json:"token_type"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      *users.User `json:"user"`
}

// MeResponse describes the caller
type MeResponse struct {
	User        *users.User `json:"user"`
	Permissions []string    `json:"permissions"`
}

// AuthHandlers handles login, logout and caller introspection
type AuthHandlers struct {
	userService users.Service
	tokens      TokenIssuer
	denylist    auth.Denylist
	permissions PermissionDirectory
	metrics     *observability.Metrics
	guard       *Guard
}

// NewAuthHandlers creates a new auth handlers instance
func NewAuthHandlers(userService users.Service, tokens TokenIssuer, denylist auth.Denylist, permissions PermissionDirectory, metrics *observability.Metrics, guard *Guard) *AuthHandlers {
	return &AuthHandlers{
		userService: userService,
		tokens:      tokens,
		denylist:    denylist,
		permissions: permissions,
		metrics:     metrics,
		guard:       guard,
	}
}

// RegisterPublicRoutes registers routes reachable without a token
func (h *AuthHandlers) RegisterPublicRoutes(router *mux.Router, limit func(http.Handler) http.Handler) {
	var login http.Handler = http.HandlerFunc(h.Login)
	if limit != nil {
		login = limit(login)
	}
	router.Handle("/auth/login", login).Methods("POST")
}

// RegisterRoutes registers routes that require a token
func (h *AuthHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/logout", h.Logout).Methods("POST")
	router.HandleFunc("/auth/me", h.Me).Methods("GET")
}

// Login handles POST /auth/login. Unknown email, inactive account and wrong
// password all produce the same 401; empty credentials are just wrong ones.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	logger := observability.FromContext(r.Context())
	user, err := h.userService.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.recordAttempt(observability.AuthOutcomeError)
		logger.WithError(err).Error("authentication lookup failed")
		httputil.WriteInternalError(w)
		return
	}
	if user == nil {
		h.recordAttempt(observability.AuthOutcomeFailure)
		h.guard.record(r, audit.NewEvent(audit.EventTypeLoginFailed, audit.StatusFailure).
			WithMetadata("email", strings.ToLower(strings.TrimSpace(req.Email))))
		httputil.WriteUnauthorized(w, "invalid email or password")
		return
	}

	token, claims, err := h.tokens.Issue(user)
	if err != nil {
		h.recordAttempt(observability.AuthOutcomeError)
		logger.WithError(err).Error("failed to issue token")
		httputil.WriteInternalError(w)
		return
	}
	h.recordAttempt(observability.AuthOutcomeSuccess)
	event := audit.NewEvent(audit.EventTypeLogin, audit.StatusSuccess)
	event.UserID = &user.ID
	event.Role = string(user.Role)
	event.RestaurantID = user.RestaurantID
	h.guard.record(r, event)
	logger.WithFields(map[string]interface{}{
		"user_id": user.ID,
		"role":    user.Role,
	}).Info("user logged in")

	httputil.WriteSuccess(w, LoginResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: claims.ExpiresAt.Time,
		User:      user,
	})
}

// Logout handles POST /auth/logout by revoking the presented token until it
// would have expired anyway.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := caller(w, r)
	if !ok {
		return
	}

	if err := h.denylist.Revoke(r.Context(), authCtx.TokenID, authCtx.ExpiresAt); err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to revoke token")
		httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, "logout temporarily unavailable")
		return
	}
	if h.metrics != nil {
		h.metrics.TokensRevokedTotal.Inc()
	}
	h.guard.record(r, audit.NewEvent(audit.EventTypeLogout, audit.StatusSuccess).WithMetadata("token_id", authCtx.TokenID))

	httputil.WriteNoContent(w)
}

// Me handles GET /auth/me
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := caller(w, r)
	if !ok {
		return
	}

	user, err := h.userService.GetUser(r.Context(), authCtx.Scope, authCtx.UserID)
	if err != nil {
		writeServiceError(w, r, nil, "user", err)
		return
	}
	if user == nil || !user.IsActive {
		httputil.WriteUnauthorized(w, "account no longer available")
		return
	}

	names, err := h.permissionNames(r.Context(), user.Role)
	if err != nil {
		writeServiceError(w, r, nil, "permission", err)
		return
	}

	httputil.WriteSuccess(w, MeResponse{User: user, Permissions: names})
}

func (h *AuthHandlers) permissionNames(ctx context.Context, role rbac.Role) ([]string, error) {
	names := []string{}
	if h.permissions == nil {
		return names, nil
	}
	perms, err := h.permissions.PermissionsForRole(ctx, role)
	if err != nil {
		return nil, err
	}
	for _, p := range perms {
		names = append(names, p.Name)
	}
	return names, nil
}

func (h *AuthHandlers) recordAttempt(outcome string) {
	if h.metrics != nil {
		h.metrics.AuthAttemptsTotal.WithLabelValues(outcome).Inc()
	}
}
