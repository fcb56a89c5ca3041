// Package middleware provides authentication, authorization and rate
// limiting middleware for the HTTP API.
//
// Authenticator verifies the bearer token, consults the revocation denylist,
// reloads the user so role and tenant reflect the current record, and stores
// an auth.AuthContext in the request context:
//
//	authn := middleware.NewAuthenticator(issuer, denylist, userService, logger)
//	protected.Use(authn.Handler)
//
// RequirePermission guards a route with a single resource:action permission
// resolved through the rbac engine:
//
//	protected.Handle("/customers", middleware.RequirePermission(engine, metrics,
//		rbac.ResourceCustomers, rbac.ActionRead)(listHandler))
//
// RateLimitByIP throttles login attempts using either the in-process
// RateLimiter or the Redis-backed DistributedRateLimiter.
package middleware
