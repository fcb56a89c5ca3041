package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/platinummonkey/tablekeep/pkg/auth"
	"github.com/platinummonkey/tablekeep/pkg/contextkeys"
	"github.com/platinummonkey/tablekeep/pkg/httputil"
	"github.com/platinummonkey/tablekeep/pkg/observability"
	"github.com/platinummonkey/tablekeep/pkg/rbac"
	"github.com/platinummonkey/tablekeep/pkg/tenancy"
	"github.com/platinummonkey/tablekeep/pkg/users"
)

// TokenParser verifies a bearer token
type TokenParser interface {
	Parse(token string) (*auth.Claims, error)
}

// PermissionChecker answers whether a role holds a permission
type PermissionChecker interface {
	Can(ctx context.Context, role rbac.Role, resource rbac.Resource, action rbac.Action) (bool, error)
}

// SubjectLoader loads the user a token was issued to. users.Service implements it.
type SubjectLoader interface {
	GetUser(ctx context.Context, scope tenancy.Scope, id int64) (*users.User, error)
}

// Authenticator resolves bearer tokens into an auth.AuthContext
type Authenticator struct {
	tokens   TokenParser
	denylist auth.Denylist
	subjects SubjectLoader
	logger   *observability.Logger
}

// NewAuthenticator creates the bearer token middleware. When subjects is set,
// role and tenant come from the user's current record rather than the token;
// a nil subjects trusts the token claims alone.
func NewAuthenticator(tokens TokenParser, denylist auth.Denylist, subjects SubjectLoader, logger *observability.Logger) *Authenticator {
	return &Authenticator{tokens: tokens, denylist: denylist, subjects: subjects, logger: logger}
}

// Handler rejects requests without a valid, unrevoked token whose user still
// exists and is active. Denylist and user store outages fail closed with 503.
func (a *Authenticator) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			httputil.WriteUnauthorized(w, "missing or malformed authorization header")
			return
		}

		claims, err := a.tokens.Parse(token)
		if err != nil {
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}
		authCtx, err := claims.Context()
		if err != nil {
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}

		if a.denylist != nil {
			revoked, err := a.denylist.IsRevoked(r.Context(), authCtx.TokenID)
			if err != nil {
				a.logger.WithError(err).Error("token denylist unavailable")
				httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, "authentication temporarily unavailable")
				return
			}
			if revoked {
				httputil.WriteUnauthorized(w, "invalid or expired token")
				return
			}
		}

		if a.subjects != nil {
			user, err := a.subjects.GetUser(r.Context(), tenancy.Global(), authCtx.UserID)
			if err != nil {
				a.logger.WithError(err).Error("token subject lookup failed")
				httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, "authentication temporarily unavailable")
				return
			}
			if user == nil || !user.IsActive {
				httputil.WriteUnauthorized(w, "invalid or expired token")
				return
			}
			if err := authCtx.Refresh(user); err != nil {
				a.logger.WithError(err).WithField("user_id", user.ID).Warn("user has an invalid role pairing")
				httputil.WriteUnauthorized(w, "invalid or expired token")
				return
			}
		}

		ctx := contextkeys.WithAuth(r.Context(), authCtx)
		ctx = contextkeys.WithUserID(ctx, authCtx.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// GetAuthContext extracts auth context from request
func GetAuthContext(r *http.Request) *auth.AuthContext {
	authCtx, _ := r.Context().Value(contextkeys.AuthKey).(*auth.AuthContext)
	return authCtx
}

// RequirePermission rejects callers whose role lacks resource:action
func RequirePermission(checker PermissionChecker, metrics *observability.Metrics, resource rbac.Resource, action rbac.Action) func(http.Handler) http.Handler {
	name := rbac.PermissionName(resource, action)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := GetAuthContext(r)
			if authCtx == nil {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			allowed, err := checker.Can(r.Context(), authCtx.Role, resource, action)
			if err != nil {
				observability.FromContext(r.Context()).WithError(err).Error("permission lookup failed")
				httputil.WriteInternalError(w)
				return
			}
			if !allowed {
				if metrics != nil {
					metrics.AuthzDenialsTotal.WithLabelValues(name, string(authCtx.Role)).Inc()
				}
				httputil.WriteForbidden(w, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole rejects callers that do not hold exactly role
func RequireRole(role rbac.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := GetAuthContext(r)
			if authCtx == nil {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}
			if !authCtx.HasRole(role) {
				httputil.WriteForbidden(w, "insufficient role permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
