package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/tablekeep/pkg/audit"
	"github.com/platinummonkey/tablekeep/pkg/httputil"
	"github.com/platinummonkey/tablekeep/pkg/observability"
	"github.com/platinummonkey/tablekeep/pkg/rbac"
)

// PermissionDirectory exposes the permission catalog and role mappings.
// *rbac.Engine implements it.
type PermissionDirectory interface {
	AllPermissions(ctx context.Context) ([]rbac.Permission, error)
	PermissionsForRole(ctx context.Context, role rbac.Role) ([]rbac.Permission, error)
	AllRoleMappings(ctx context.Context) ([]rbac.RolePermission, error)
	Reseed(ctx context.Context) ([]rbac.RolePermission, error)
}

// SeedResponse reports the outcome of POST /rbac/seed
type SeedResponse struct {
	Permissions []rbac.Permission     `json:"permissions"`
	Mappings    []rbac.RolePermission `json:"mappings"`
}

// RBACHandlers handles permission catalog HTTP requests
type RBACHandlers struct {
	directory PermissionDirectory
	guard     *Guard
	metrics   *observability.Metrics
}

// NewRBACHandlers creates a new RBACHandlers
func NewRBACHandlers(directory PermissionDirectory, guard *Guard, metrics *observability.Metrics) *RBACHandlers {
	return &RBACHandlers{
		directory: directory,
		guard:     guard,
		metrics:   metrics,
	}
}

// RegisterRoutes registers rbac routes
func (h *RBACHandlers) RegisterRoutes(router *mux.Router) {
	router.Handle("/rbac/permissions", h.guard.Require(rbac.ResourceSettings, rbac.ActionRead, h.ListPermissions)).Methods("GET")
	router.Handle("/rbac/roles/{role}/permissions", h.guard.Require(rbac.ResourceSettings, rbac.ActionRead, h.ListRolePermissions)).Methods("GET")
	router.Handle("/rbac/mappings", h.guard.Require(rbac.ResourceSettings, rbac.ActionRead, h.ListMappings)).Methods("GET")
	router.Handle("/rbac/seed", h.guard.SuperAdmin(h.Seed)).Methods("POST")
}

// ListPermissions handles GET /rbac/permissions
func (h *RBACHandlers) ListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.directory.AllPermissions(r.Context())
	if err != nil {
		writeServiceError(w, r, h.guard, "permission", err)
		return
	}
	if perms == nil {
		perms = []rbac.Permission{}
	}
	httputil.WriteSuccess(w, perms)
}

// ListRolePermissions handles GET /rbac/roles/{role}/permissions
func (h *RBACHandlers) ListRolePermissions(w http.ResponseWriter, r *http.Request) {
	name, err := httputil.ParsePathString(r, "role")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	role, err := rbac.ParseRole(name)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	perms, err := h.directory.PermissionsForRole(r.Context(), role)
	if err != nil {
		writeServiceError(w, r, h.guard, "permission", err)
		return
	}
	if perms == nil {
		perms = []rbac.Permission{}
	}
	httputil.WriteSuccess(w, perms)
}

// ListMappings handles GET /rbac/mappings
func (h *RBACHandlers) ListMappings(w http.ResponseWriter, r *http.Request) {
	edges, err := h.directory.AllRoleMappings(r.Context())
	if err != nil {
		writeServiceError(w, r, h.guard, "permission", err)
		return
	}
	if edges == nil {
		edges = []rbac.RolePermission{}
	}
	httputil.WriteSuccess(w, edges)
}

// Seed handles POST /rbac/seed. Seeding is idempotent, so repeating the call
// returns the same catalog and mappings.
func (h *RBACHandlers) Seed(w http.ResponseWriter, r *http.Request) {
	edges, err := h.directory.Reseed(r.Context())
	if err != nil {
		h.recordSeed(r, "error", 0)
		writeServiceError(w, r, h.guard, "permission", err)
		return
	}
	perms, err := h.directory.AllPermissions(r.Context())
	if err != nil {
		h.recordSeed(r, "error", 0)
		writeServiceError(w, r, h.guard, "permission", err)
		return
	}

	h.recordSeed(r, "success", len(edges))
	observability.FromContext(r.Context()).WithFields(map[string]interface{}{
		"permissions": len(perms),
		"mappings":    len(edges),
	}).Info("permission catalog seeded")
	httputil.WriteSuccess(w, SeedResponse{Permissions: perms, Mappings: edges})
}

func (h *RBACHandlers) recordSeed(r *http.Request, status string, mappings int) {
	if h.metrics != nil {
		h.metrics.PermissionSeedsTotal.WithLabelValues(status).Inc()
	}
	outcome := audit.StatusSuccess
	if status != "success" {
		outcome = audit.StatusFailure
	}
	h.guard.record(r, audit.NewEvent(audit.EventTypePermissionsSeed, outcome).WithMetadata("mappings", mappings))
}
