package rbac

import (
	"context"
	"database/sql"
	"fmt"
)

// Store persists the permission catalog and role mappings
type Store struct {
	db *sql.DB
}

// NewStore creates a new RBAC store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// SeedPermissions inserts every catalog permission whose name is not yet
// present and returns the full resulting catalog.
func (s *Store) SeedPermissions(ctx context.Context) ([]Permission, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO permissions (name, resource, action, description)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO NOTHING
	`
	for _, p := range catalog {
		if _, err := tx.ExecContext(ctx, query, p.Name, p.Resource, p.Action, p.Description); err != nil {
			return nil, fmt.Errorf("failed to seed permission %s: %w", p.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit permission seed: %w", err)
	}

	return s.AllPermissions(ctx)
}

// AssignDefaultRolePermissions seeds the catalog, then inserts every edge of
// the fixed role mapping that does not already exist. It returns all edges.
func (s *Store) AssignDefaultRolePermissions(ctx context.Context) ([]RolePermission, error) {
	perms, err := s.SeedPermissions(ctx)
	if err != nil {
		return nil, err
	}

	ids := make(map[string]int64, len(perms))
	for _, p := range perms {
		ids[p.Name] = p.ID
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO role_permissions (role, permission_id)
		VALUES ($1, $2)
		ON CONFLICT (role, permission_id) DO NOTHING
	`
	for _, role := range Roles() {
		for _, name := range roleMappings[role] {
			id, ok := ids[name]
			if !ok {
				return nil, fmt.Errorf("permission %s missing after seeding", name)
			}
			if _, err := tx.ExecContext(ctx, query, role, id); err != nil {
				return nil, fmt.Errorf("failed to assign %s to %s: %w", name, role, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit role permissions: %w", err)
	}

	return s.AllRoleMappings(ctx)
}

// AllPermissions returns every permission row ordered by id
func (s *Store) AllPermissions(ctx context.Context) ([]Permission, error) {
	query := `
		SELECT id, name, resource, action, description
		FROM permissions
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	return scanPermissions(rows)
}

// PermissionsForRole resolves the role's permissions through the mapping
// table. Roles without edges yield an empty slice.
func (s *Store) PermissionsForRole(ctx context.Context, role Role) ([]Permission, error) {
	query := `
		SELECT p.id, p.name, p.resource, p.action, p.description
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role = $1
		ORDER BY p.id
	`
	rows, err := s.db.QueryContext(ctx, query, role)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions for role: %w", err)
	}
	defer rows.Close()

	return scanPermissions(rows)
}

// AllRoleMappings returns every role/permission edge ordered by id
func (s *Store) AllRoleMappings(ctx context.Context) ([]RolePermission, error) {
	query := `
		SELECT rp.id, rp.role, rp.permission_id, p.name
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		ORDER BY rp.id
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list role mappings: %w", err)
	}
	defer rows.Close()

	edges := []RolePermission{}
	for rows.Next() {
		var rp RolePermission
		if err := rows.Scan(&rp.ID, &rp.Role, &rp.PermissionID, &rp.PermissionName); err != nil {
			return nil, fmt.Errorf("failed to scan role mapping: %w", err)
		}
		edges = append(edges, rp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate role mappings: %w", err)
	}

	return edges, nil
}

func scanPermissions(rows *sql.Rows) ([]Permission, error) {
	perms := []Permission{}
	for rows.Next() {
		var p Permission
		var description sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &p.Resource, &p.Action, &description); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		p.Description = description.String
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate permissions: %w", err)
	}
	return perms, nil
}
