// Package rbac implements the fixed role/permission model.
//
// # Overview
//
// There are exactly four roles and eleven permissions. Both the permission
// catalog and the role to permission mapping are static tables; they are
// materialized into the database by seeding and resolved from there at
// runtime.
//
//	SUPER_ADMIN       all permissions
//	RESTAURANT_OWNER  all permissions
//	MANAGER           customers:read/write/delete, staff:read/write, reports:read
//	STAFF             customers:read, reports:read
//
// # Seeding
//
// Seeding is safe to run from several processes at once. Permission names and
// (role, permission_id) pairs carry unique constraints and inserts use
// ON CONFLICT DO NOTHING, so a lost race is indistinguishable from a row that
// was already present.
//
//	store := rbac.NewStore(db)
//	edges, err := store.AssignDefaultRolePermissions(ctx)
//
// # Engine
//
// Engine caches per-role permission sets in an expiring LRU and collapses
// concurrent misses for the same role into one query.
//
//	engine := rbac.NewEngine(store, rbac.EngineOptions{TTL: 5 * time.Minute})
//	ok, err := engine.HasPermission(ctx, rbac.RoleManager, rbac.PermCustomersDelete)
package rbac
