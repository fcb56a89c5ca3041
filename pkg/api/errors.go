package api

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/tablekeep/pkg/billing"
	"github.com/platinummonkey/tablekeep/pkg/httputil"
	"github.com/platinummonkey/tablekeep/pkg/observability"
	"github.com/platinummonkey/tablekeep/pkg/rbac"
	"github.com/platinummonkey/tablekeep/pkg/tenancy"
	"github.com/platinummonkey/tablekeep/pkg/users"
	"github.com/platinummonkey/tablekeep/pkg/validation"
)

// writeServiceError maps service-layer errors onto HTTP responses. Anything
// unrecognised is logged and reported as a generic 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, g *Guard, entity string, err error) {
	var verrs validation.Errors
	switch {
	case errors.As(err, &verrs):
		httputil.WriteDetailedError(w, "validation failed", verrs.Fields())
	case errors.Is(err, validation.ErrInvalid):
		httputil.WriteBadRequest(w, err.Error())
	case errors.Is(err, tenancy.ErrNotFoundOrNotPermitted):
		g.scopeMiss(r, entity)
		httputil.WriteNotFound(w, entity+" not found")
	case errors.Is(err, billing.ErrRestaurantNotFound):
		httputil.WriteNotFound(w, "restaurant not found")
	case errors.Is(err, users.ErrEmailTaken):
		httputil.WriteConflict(w, "email already registered")
	case errors.Is(err, billing.ErrLiveSubscriptionExists):
		httputil.WriteConflict(w, err.Error())
	case errors.Is(err, tenancy.ErrTenantRequired),
		errors.Is(err, tenancy.ErrUnexpectedTenant),
		errors.Is(err, rbac.ErrUnknownRole):
		httputil.WriteBadRequest(w, err.Error())
	default:
		observability.FromContext(r.Context()).
			WithError(err).
			WithField("entity", entity).
			Error("request failed")
		httputil.WriteInternalError(w)
	}
}

// writeMissing answers a read that found nothing visible to the caller
func writeMissing(w http.ResponseWriter, r *http.Request, g *Guard, entity string) {
	g.scopeMiss(r, entity)
	httputil.WriteNotFound(w, entity+" not found")
}
