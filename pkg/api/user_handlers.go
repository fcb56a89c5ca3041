package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/tablekeep/pkg/audit"
	"github.com/platinummonkey/tablekeep/pkg/auth"
	"github.com/platinummonkey/tablekeep/pkg/httputil"
	"github.com/platinummonkey/tablekeep/pkg/rbac"
	"github.com/platinummonkey/tablekeep/pkg/users"
)

// UserHandlers handles staff account HTTP requests
type UserHandlers struct {
	userService users.Service
	guard       *Guard
}

// NewUserHandlers creates a new UserHandlers
func NewUserHandlers(userService users.Service, guard *Guard) *UserHandlers {
	return &UserHandlers{
		userService: userService,
		guard:       guard,
	}
}

// RegisterRoutes registers user routes
func (h *UserHandlers) RegisterRoutes(router *mux.Router) {
	router.Handle("/users", h.guard.Require(rbac.ResourceStaff, rbac.ActionWrite, h.CreateUser)).Methods("POST")
	router.Handle("/users", h.guard.Require(rbac.ResourceStaff, rbac.ActionRead, h.ListUsers)).Methods("GET")
	router.Handle("/users/{id}", h.guard.Require(rbac.ResourceStaff, rbac.ActionRead, h.GetUser)).Methods("GET")
	router.Handle("/users/{id}", h.guard.Require(rbac.ResourceStaff, rbac.ActionWrite, h.UpdateUser)).Methods("PATCH")
	router.Handle("/users/{id}", h.guard.Require(rbac.ResourceStaff, rbac.ActionDelete, h.DeactivateUser)).Methods("DELETE")
}

// CreateUser handles POST /users. Tenant-bound callers that omit
// restaurant_id create the account in their own restaurant.
func (h *UserHandlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := caller(w, r)
	if !ok {
		return
	}

	var req users.CreateUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeServiceError(w, r, h.guard, "user", err)
		return
	}
	if !rbac.CanAssign(authCtx.Role, req.Role) {
		httputil.WriteForbidden(w, "cannot grant a role above your own")
		return
	}
	if req.RestaurantID == nil && !req.Role.IsGlobal() && authCtx.RestaurantID != nil {
		id := *authCtx.RestaurantID
		req.RestaurantID = &id
	}

	user, err := h.userService.CreateUser(r.Context(), authCtx.Scope, &req)
	if err != nil {
		writeServiceError(w, r, h.guard, "user", err)
		return
	}

	h.guard.record(r, resourceEvent(audit.EventTypeUserCreate, "user", user.ID).
		WithMetadata("granted_role", string(user.Role)))
	httputil.WriteCreated(w, user)
}

// ListUsers handles GET /users
func (h *UserHandlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := caller(w, r)
	if !ok {
		return
	}
	page, ok := httputil.ParsePageOrError(w, r)
	if !ok {
		return
	}

	list, err := h.userService.ListUsers(r.Context(), authCtx.Scope, page)
	if err != nil {
		writeServiceError(w, r, h.guard, "user", err)
		return
	}
	if list == nil {
		list = []*users.User{}
	}

	httputil.WriteSuccess(w, httputil.ListResponse{Items: list, Limit: page.Limit, Offset: page.Offset})
}

// GetUser handles GET /users/{id}
func (h *UserHandlers) GetUser(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	user, err := h.userService.GetUser(r.Context(), authCtx.Scope, id)
	if err != nil {
		writeServiceError(w, r, h.guard, "user", err)
		return
	}
	if user == nil {
		writeMissing(w, r, h.guard, "user")
		return
	}

	httputil.WriteSuccess(w, user)
}

// UpdateUser handles PATCH /users/{id}
func (h *UserHandlers) UpdateUser(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req users.UpdateUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeServiceError(w, r, h.guard, "user", err)
		return
	}
	if !h.mayModify(w, r, authCtx, id, &req) {
		return
	}

	user, err := h.userService.UpdateUser(r.Context(), authCtx.Scope, id, &req)
	if err != nil {
		writeServiceError(w, r, h.guard, "user", err)
		return
	}

	event := resourceEvent(audit.EventTypeUserUpdate, "user", user.ID)
	if req.Role.Set {
		event.WithMetadata("granted_role", string(user.Role))
	}
	if req.IsActive.Set {
		event.WithMetadata("is_active", user.IsActive)
	}
	if req.Password.Set {
		event.WithMetadata("password_changed", true)
	}
	h.guard.record(r, event)
	httputil.WriteSuccess(w, user)
}

// mayModify blocks escalation: the caller may neither grant a role above
// their own nor edit an account that already outranks them.
func (h *UserHandlers) mayModify(w http.ResponseWriter, r *http.Request, authCtx *auth.AuthContext, id int64, req *users.UpdateUserRequest) bool {
	if role, ok := req.Role.Get(); ok && !rbac.CanAssign(authCtx.Role, role) {
		httputil.WriteForbidden(w, "cannot grant a role above your own")
		return false
	}

	target, err := h.userService.GetUser(r.Context(), authCtx.Scope, id)
	if err != nil {
		writeServiceError(w, r, h.guard, "user", err)
		return false
	}
	if target == nil {
		writeMissing(w, r, h.guard, "user")
		return false
	}
	if !rbac.CanAssign(authCtx.Role, target.Role) {
		httputil.WriteForbidden(w, "cannot modify a user with a higher role")
		return false
	}
	return true
}

// DeactivateUser handles DELETE /users/{id}
func (h *UserHandlers) DeactivateUser(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if id == authCtx.UserID {
		httputil.WriteBadRequest(w, "cannot deactivate your own account")
		return
	}

	target, err := h.userService.GetUser(r.Context(), authCtx.Scope, id)
	if err != nil {
		writeServiceError(w, r, h.guard, "user", err)
		return
	}
	if target == nil {
		writeMissing(w, r, h.guard, "user")
		return
	}
	if !rbac.CanAssign(authCtx.Role, target.Role) {
		httputil.WriteForbidden(w, "cannot modify a user with a higher role")
		return
	}

	if err := h.userService.DeactivateUser(r.Context(), authCtx.Scope, id); err != nil {
		writeServiceError(w, r, h.guard, "user", err)
		return
	}

	h.guard.record(r, resourceEvent(audit.EventTypeUserDeactivate, "user", id))
	httputil.WriteNoContent(w)
}
