// Package api provides the HTTP JSON API for tablekeep.
//
// # Overview
//
// The API exposes the restaurant, user, customer, subscription and permission
// services over gorilla/mux. Every versioned route lives under /api/v1; health
// probes and the Prometheus scrape endpoint live at the root.
//
// # Request pipeline
//
// Requests pass through, in order:
//
//   - otelhttp tracing (probes and scrapes are not traced)
//   - request id propagation, panic recovery and request logging
//   - CORS and request body limits
//   - route matching, then Prometheus request metrics
//   - bearer token authentication (all routes except POST /auth/login)
//   - a per-route permission check through Guard
//
// # Tenant isolation
//
// Handlers never accept a tenant from the caller for reads. The tenancy.Scope
// comes from the caller's current user record, reloaded for the verified
// token on every request, and is passed to every service call, so a
// caller bound to one restaurant cannot observe another. Reads that find
// nothing and mutations that miss or cross tenants both answer 404 with the
// same body.
//
// # Usage
//
//	srv := api.NewServer(api.Dependencies{
//		Restaurants: restaurants.NewPostgresService(db),
//		Users:       users.NewPostgresService(db, hasher),
//		Customers:   customers.NewPostgresService(db),
//		Billing:     billing.NewPostgresService(db),
//		Permissions: engine,
//		Checker:     engine,
//		Tokens:      auth.NewTokenIssuer(secret, ttl, issuer),
//		Logger:      logger,
//	})
//	http.ListenAndServe(":8080", srv)
package api
