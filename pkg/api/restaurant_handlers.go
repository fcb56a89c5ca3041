package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/tablekeep/pkg/audit"
	"github.com/platinummonkey/tablekeep/pkg/billing"
	"github.com/platinummonkey/tablekeep/pkg/httputil"
	"github.com/platinummonkey/tablekeep/pkg/rbac"
	"github.com/platinummonkey/tablekeep/pkg/restaurants"
)

// RestaurantHandlers handles restaurant HTTP requests
type RestaurantHandlers struct {
	restaurantService   restaurants.Service
	subscriptionService billing.Service
	guard               *Guard
}

// NewRestaurantHandlers creates a new RestaurantHandlers
func NewRestaurantHandlers(restaurantService restaurants.Service, subscriptionService billing.Service, guard *Guard) *RestaurantHandlers {
	return &RestaurantHandlers{
		restaurantService:   restaurantService,
		subscriptionService: subscriptionService,
		guard:               guard,
	}
}

// RegisterRoutes registers restaurant routes. Creating and deactivating
// tenants is reserved for SUPER_ADMIN.
func (h *RestaurantHandlers) RegisterRoutes(router *mux.Router) {
	router.Handle("/restaurants", h.guard.SuperAdmin(h.CreateRestaurant)).Methods("POST")
	router.Handle("/restaurants", h.guard.Require(rbac.ResourceSettings, rbac.ActionRead, h.ListRestaurants)).Methods("GET")
	router.Handle("/restaurants/{id}", h.guard.Require(rbac.ResourceSettings, rbac.ActionRead, h.GetRestaurant)).Methods("GET")
	router.Handle("/restaurants/{id}", h.guard.Require(rbac.ResourceSettings, rbac.ActionWrite, h.UpdateRestaurant)).Methods("PATCH")
	router.Handle("/restaurants/{id}", h.guard.SuperAdmin(h.DeactivateRestaurant)).Methods("DELETE")

	router.Handle("/restaurants/{id}/subscription", h.guard.Require(rbac.ResourceBilling, rbac.ActionRead, h.GetRestaurantSubscription)).Methods("GET")
}

// CreateRestaurant handles POST /restaurants
func (h *RestaurantHandlers) CreateRestaurant(w http.ResponseWriter, r *http.Request) {
	var req restaurants.CreateRestaurantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeServiceError(w, r, h.guard, "restaurant", err)
		return
	}

	restaurant, err := h.restaurantService.CreateRestaurant(r.Context(), &req)
	if err != nil {
		writeServiceError(w, r, h.guard, "restaurant", err)
		return
	}

	h.guard.record(r, resourceEvent(audit.EventTypeRestaurantCreate, "restaurant", restaurant.ID))
	httputil.WriteCreated(w, restaurant)
}

// ListRestaurants handles GET /restaurants
func (h *RestaurantHandlers) ListRestaurants(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := caller(w, r)
	if !ok {
		return
	}
	page, ok := httputil.ParsePageOrError(w, r)
	if !ok {
		return
	}

	list, err := h.restaurantService.ListRestaurants(r.Context(), authCtx.Scope, page)
	if err != nil {
		writeServiceError(w, r, h.guard, "restaurant", err)
		return
	}
	if list == nil {
		list = []*restaurants.Restaurant{}
	}

	httputil.WriteSuccess(w, httputil.ListResponse{Items: list, Limit: page.Limit, Offset: page.Offset})
}

// GetRestaurant handles GET /restaurants/{id}
func (h *RestaurantHandlers) GetRestaurant(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	restaurant, err := h.restaurantService.GetRestaurant(r.Context(), authCtx.Scope, id)
	if err != nil {
		writeServiceError(w, r, h.guard, "restaurant", err)
		return
	}
	if restaurant == nil {
		writeMissing(w, r, h.guard, "restaurant")
		return
	}

	httputil.WriteSuccess(w, restaurant)
}

// UpdateRestaurant handles PATCH /restaurants/{id}
func (h *RestaurantHandlers) UpdateRestaurant(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req restaurants.UpdateRestaurantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeServiceError(w, r, h.guard, "restaurant", err)
		return
	}

	restaurant, err := h.restaurantService.UpdateRestaurant(r.Context(), authCtx.Scope, id, &req)
	if err != nil {
		writeServiceError(w, r, h.guard, "restaurant", err)
		return
	}

	httputil.WriteSuccess(w, restaurant)
}

// DeactivateRestaurant handles DELETE /restaurants/{id}
func (h *RestaurantHandlers) DeactivateRestaurant(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.restaurantService.DeactivateRestaurant(r.Context(), authCtx.Scope, id); err != nil {
		writeServiceError(w, r, h.guard, "restaurant", err)
		return
	}

	h.guard.record(r, resourceEvent(audit.EventTypeRestaurantDelete, "restaurant", id))
	httputil.WriteNoContent(w)
}

// GetRestaurantSubscription handles GET /restaurants/{id}/subscription
func (h *RestaurantHandlers) GetRestaurantSubscription(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	sub, err := h.subscriptionService.GetSubscriptionForRestaurant(r.Context(), authCtx.Scope, id)
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
