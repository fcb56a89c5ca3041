package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/tablekeep/pkg/audit"
	"github.com/platinummonkey/tablekeep/pkg/billing"
	"github.com/platinummonkey/tablekeep/pkg/httputil"
	"github.com/platinummonkey/tablekeep/pkg/rbac"
)

// BillingHandlers handles subscription HTTP requests
type BillingHandlers struct {
	billingService billing.Service
	guard          *Guard
}

// NewBillingHandlers creates a new BillingHandlers
func NewBillingHandlers(billingService billing.Service, guard *Guard) *BillingHandlers {
	return &BillingHandlers{
		billingService: billingService,
		guard:          guard,
	}
}

// RegisterRoutes registers subscription routes
func (h *BillingHandlers) RegisterRoutes(router *mux.Router) {
	router.Handle("/subscriptions", h.guard.Require(rbac.ResourceBilling, rbac.ActionWrite, h.CreateSubscription)).Methods("POST")
	router.Handle("/subscriptions", h.guard.Require(rbac.ResourceBilling, rbac.ActionRead, h.ListSubscriptions)).Methods("GET")
	router.Handle("/subscriptions/{id}", h.guard.Require(rbac.ResourceBilling, rbac.ActionRead, h.GetSubscription)).Methods("GET")
	router.Handle("/subscriptions/{id}", h.guard.Require(rbac.ResourceBilling, rbac.ActionWrite, h.UpdateSubscription)).Methods("PATCH")
}

// CreateSubscription handles POST /subscriptions
func (h *BillingHandlers) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := caller(w, r)
	if !ok {
		return
	}

	var req billing.CreateSubscriptionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.RestaurantID == 0 {
		if id, bound := authCtx.Scope.RestaurantID(); bound {
			req.RestaurantID = id
		}
	}
	if req.RestaurantID <= 0 {
		httputil.WriteDetailedError(w, "validation failed", map[string]string{"restaurant_id": "must be positive"})
		return
	}

	sub, err := h.billingService.CreateSubscription(r.Context(), authCtx.Scope, &req)
	if err != nil {
		writeServiceError(w, r, h.guard, "subscription", err)
		return
	}

	h.guard.record(r, subscriptionEvent(sub))
	httputil.WriteCreated(w, sub)
}

// ListSubscriptions handles GET /subscriptions
func (h *BillingHandlers) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := caller(w, r)
	if !ok {
		return
	}
	page, ok := httputil.ParsePageOrError(w, r)
	if !ok {
		return
	}

	list, err := h.billingService.ListSubscriptions(r.Context(), authCtx.Scope, page)
	if err != nil {
		writeServiceError(w, r, h.guard, "subscription", err)
		return
	}
	if list == nil {
		list = []*billing.Subscription{}
	}

	httputil.WriteSuccess(w, httputil.ListResponse{Items: list, Limit: page.Limit, Offset: page.Offset})
}

// GetSubscription handles GET /subscriptions/{id}
func (h *BillingHandlers) GetSubscription(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	sub, err := h.billingService.GetSubscription(r.Context(), authCtx.Scope, id)
	if err != nil {
		writeServiceError(w, r, h.guard, "subscription", err)
		return
	}
	if sub == nil {
		writeMissing(w, r, h.guard, "subscription")
		return
	}

	httputil.WriteSuccess(w, sub)
}

// UpdateSubscription handles PATCH /subscriptions/{id}
func (h *BillingHandlers) UpdateSubscription(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req billing.UpdateSubscriptionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	sub, err := h.billingService.UpdateSubscription(r.Context(), authCtx.Scope, id, &req)
	if err != nil {
		writeServiceError(w, r, h.guard, "subscription", err)
		return
	}

	h.guard.record(r, subscriptionEvent(sub))
	httputil.WriteSuccess(w, sub)
}

func subscriptionEvent(sub *billing.Subscription) *audit.Event {
	return resourceEvent(audit.EventTypeSubscriptionChange, "subscription", sub.ID).
		WithMetadata("restaurant_id", sub.RestaurantID).
		WithMetadata("tier", string(sub.Tier)).
		WithMetadata("status", string(sub.Status))
}
