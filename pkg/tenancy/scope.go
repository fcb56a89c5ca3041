// Package tenancy holds the tenant-scoping rule shared by every
// restaurant-owned entity.
//
// A Scope is derived from the caller's own user record. SUPER_ADMIN callers get
// the global scope and see every tenant; every other caller is bound to the
// restaurant on their user record, and every read or write they issue carries
// an equality filter on that restaurant id.
package tenancy

import (
	"errors"
	"fmt"

	"github.com/platinummonkey/tablekeep/pkg/patch"
	"github.com/platinummonkey/tablekeep/pkg/rbac"
)

var (
	// ErrNotFoundOrNotPermitted is returned when a mutation targets a row that
	// does not exist or belongs to another tenant. The two cases are not
	// distinguished.
	ErrNotFoundOrNotPermitted = errors.New("not found or not permitted")

	// ErrTenantRequired is returned for a non-global role without a restaurant
	ErrTenantRequired = errors.New("role requires a restaurant")

	// ErrUnexpectedTenant is returned for SUPER_ADMIN carrying a restaurant
	ErrUnexpectedTenant = errors.New("SUPER_ADMIN must not belong to a restaurant")
)

// Scope is the set of tenants a caller may touch. The zero value matches no
// tenant.
type Scope struct {
	restaurantID int64
	global       bool
}

// Global returns the unrestricted scope
func Global() Scope {
	return Scope{global: true}
}

// ForRestaurant returns a scope bound to one restaurant
func ForRestaurant(id int64) Scope {
	return Scope{restaurantID: id}
}

// ScopeFor derives a caller's scope from their role and restaurant association.
// SUPER_ADMIN must have no restaurant; every other role must have one.
func ScopeFor(role rbac.Role, restaurantID *int64) (Scope, error) {
	if !role.Valid() {
		return Scope{}, fmt.Errorf("%w: %q", rbac.ErrUnknownRole, role)
	}
	if role.IsGlobal() {
		if restaurantID != nil {
			return Scope{}, ErrUnexpectedTenant
		}
		return Global(), nil
	}
	if restaurantID == nil {
		return Scope{}, ErrTenantRequired
	}
	return ForRestaurant(*restaurantID), nil
}

// IsGlobal reports whether the scope bypasses tenant filtering
func (s Scope) IsGlobal() bool {
	return s.global
}

// RestaurantID returns the bound restaurant, false for the global scope
func (s Scope) RestaurantID() (int64, bool) {
	if s.global {
		return 0, false
	}
	return s.restaurantID, true
}

// Allows reports whether the scope covers restaurantID
func (s Scope) Allows(restaurantID int64) bool {
	return s.global || (s.restaurantID != 0 && s.restaurantID == restaurantID)
}

// Restrict appends "column = $n" to conds unless the scope is global, binding
// the tenant id through b so placeholders stay in order.
func (s Scope) Restrict(b *patch.Builder, column string, conds []string) []string {
	if s.global {
		return conds
	}
	return append(conds, column+" = "+b.Arg(s.restaurantID))
}

// String is used in log fields
func (s Scope) String() string {
	if s.global {
		return "global"
	}
	return fmt.Sprintf("restaurant:%d", s.restaurantID)
}
