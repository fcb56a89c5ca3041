package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/tablekeep/pkg/customers"
	"github.com/platinummonkey/tablekeep/pkg/httputil"
	"github.com/platinummonkey/tablekeep/pkg/rbac"
)

// CustomerHandlers handles customer HTTP requests
type CustomerHandlers struct {
	customerService customers.Service
	guard           *Guard
}

// NewCustomerHandlers creates a new CustomerHandlers
func NewCustomerHandlers(customerService customers.Service, guard *Guard) *CustomerHandlers {
	return &CustomerHandlers{
		customerService: customerService,
		guard:           guard,
	}
}

// RegisterRoutes registers customer routes
func (h *CustomerHandlers) RegisterRoutes(router *mux.Router) {
	router.Handle("/customers", h.guard.Require(rbac.ResourceCustomers, rbac.ActionWrite, h.CreateCustomer)).Methods("POST")
	router.Handle("/customers", h.guard.Require(rbac.ResourceCustomers, rbac.ActionRead, h.ListCustomers)).Methods("GET")
	router.Handle("/customers/{id}", h.guard.Require(rbac.ResourceCustomers, rbac.ActionRead, h.GetCustomer)).Methods("GET")
	router.Handle("/customers/{id}", h.guard.Require(rbac.ResourceCustomers, rbac.ActionWrite, h.UpdateCustomer)).Methods("PATCH")
	router.Handle("/customers/{id}", h.guard.Require(rbac.ResourceCustomers, rbac.ActionDelete, h.DeactivateCustomer)).Methods("DELETE")
	router.Handle("/customers/{id}/visits", h.guard.Require(rbac.ResourceCustomers, rbac.ActionWrite, h.RecordVisit)).Methods("POST")
}

// CreateCustomer handles POST /customers
func (h *CustomerHandlers) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := caller(w, r)
	if !ok {
		return
	}

	var req customers.CreateCustomerRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	// tenant-bound callers may omit restaurant_id
	if req.RestaurantID == 0 {
		if id, bound := authCtx.Scope.RestaurantID(); bound {
			req.RestaurantID = id
		}
	}
	if err := req.Validate(); err != nil {
		writeServiceError(w, r, h.guard, "customer", err)
		return
	}

	customer, err := h.customerService.CreateCustomer(r.Context(), authCtx.Scope, &req)
	if err != nil {
		writeServiceError(w, r, h.guard, "customer", err)
		return
	}

	httputil.WriteCreated(w, customer)
}

// ListCustomers handles GET /customers
func (h *CustomerHandlers) ListCustomers(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := caller(w, r)
	if !ok {
		return
	}
	page, ok := httputil.ParsePageOrError(w, r)
	if !ok {
		return
	}

	list, err := h.customerService.ListCustomers(r.Context(), authCtx.Scope, page)
	if err != nil {
		writeServiceError(w, r, h.guard, "customer", err)
		return
	}
	if list == nil {
		list = []*customers.Customer{}
	}

	httputil.WriteSuccess(w, httputil.ListResponse{Items: list, Limit: page.Limit, Offset: page.Offset})
}

// GetCustomer handles GET /customers/{id}
func (h *CustomerHandlers) GetCustomer(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	customer, err := h.customerService.GetCustomer(r.Context(), authCtx.Scope, id)
	if err != nil {
		writeServiceError(w, r, h.guard, "customer", err)
		return
	}
	if customer == nil {
		writeMissing(w, r, h.guard, "customer")
		return
	}

	httputil.WriteSuccess(w, customer)
}

// UpdateCustomer handles PATCH /customers/{id}
func (h *CustomerHandlers) UpdateCustomer(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req customers.UpdateCustomerRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeServiceError(w, r, h.guard, "customer", err)
		return
	}

	customer, err := h.customerService.UpdateCustomer(r.Context(), authCtx.Scope, id, &req)
	if err != nil {
		writeServiceError(w, r, h.guard, "customer", err)
		return
	}

	httputil.WriteSuccess(w, customer)
}

// RecordVisit handles POST /customers/{id}/visits
func (h *CustomerHandlers) RecordVisit(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req customers.RecordVisitRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeServiceError(w, r, h.guard, "customer", err)
		return
	}

	customer, err := h.customerService.RecordVisit(r.Context(), authCtx.Scope, id, &req)
	if err != nil {
		writeServiceError(w, r, h.guard, "customer", err)
		return
	}

	httputil.WriteSuccess(w, customer)
}

// DeactivateCustomer handles DELETE /customers/{id}
func (h *CustomerHandlers) DeactivateCustomer(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.customerService.DeactivateCustomer(r.Context(), authCtx.Scope, id); err != nil {
		writeServiceError(w, r, h.guard, "customer", err)
		return
	}

	httputil.WriteNoContent(w)
}
