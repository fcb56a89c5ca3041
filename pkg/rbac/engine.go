package rbac

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// Source is the persistence the engine resolves permissions from. *Store implements it.
type Source interface {
	PermissionsForRole(ctx context.Context, role Role) ([]Permission, error)
	AllPermissions(ctx context.Context) ([]Permission, error)
	AllRoleMappings(ctx context.Context) ([]RolePermission, error)
	AssignDefaultRolePermissions(ctx context.Context) ([]RolePermission, error)
}

// EngineOptions configures the role cache
type EngineOptions struct {
	TTL  time.Duration // zero disables caching
	Size int
}

// Engine answers permission questions for roles
type Engine struct {
	source Source
	cache  *expirable.LRU[Role, []Permission]
	group  singleflight.Group
}

// NewEngine creates an engine over source
func NewEngine(source Source, opts EngineOptions) *Engine {
	e := &Engine{source: source}
	if opts.TTL > 0 {
		size := opts.Size
		if size <= 0 {
			size = len(Roles()) * 2
		}
		e.cache = expirable.NewLRU[Role, []Permission](size, nil, opts.TTL)
	}
	return e
}

// PermissionsForRole returns the role's effective permissions. Unknown or
// unassigned roles yield an empty set.
func (e *Engine) PermissionsForRole(ctx context.Context, role Role) ([]Permission, error) {
	if e.cache != nil {
		if perms, ok := e.cache.Get(role); ok {
			return perms, nil
		}
	}

	// detached from the caller; every waiter shares the result
	shared := context.WithoutCancel(ctx)
	v, err, _ := e.group.Do(string(role), func() (interface{}, error) {
		perms, err := e.source.PermissionsForRole(shared, role)
		if err != nil {
			return nil, err
		}
		if e.cache != nil {
			e.cache.Add(role, perms)
		}
		return perms, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve permissions for %s: %w", role, err)
	}

	return v.([]Permission), nil
}

// HasPermission reports whether role holds the named permission
func (e *Engine) HasPermission(ctx context.Context, role Role, name string) (bool, error) {
	perms, err := e.PermissionsForRole(ctx, role)
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if p.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// Can is HasPermission keyed by resource and action
func (e *Engine) Can(ctx context.Context, role Role, resource Resource, action Action) (bool, error) {
	return e.HasPermission(ctx, role, PermissionName(resource, action))
}

// AllPermissions returns the full catalog
func (e *Engine) AllPermissions(ctx context.Context) ([]Permission, error) {
	return e.source.AllPermissions(ctx)
}

// AllRoleMappings returns every role/permission edge
func (e *Engine) AllRoleMappings(ctx context.Context) ([]RolePermission, error) {
	return e.source.AllRoleMappings(ctx)
}

// Reseed re-runs catalog and mapping seeding and drops cached role sets
func (e *Engine) Reseed(ctx context.Context) ([]RolePermission, error) {
	edges, err := e.source.AssignDefaultRolePermissions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to reseed role permissions: %w", err)
	}
	e.Invalidate()
	return edges, nil
}

// Invalidate drops every cached role set
func (e *Engine) Invalidate() {
	if e.cache != nil {
		e.cache.Purge()
	}
}
