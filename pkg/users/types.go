// Package users manages staff accounts and password authentication.
//
// Every user except SUPER_ADMIN belongs to exactly one restaurant. Authenticate
// never returns an error for a bad login: unknown email, inactive account and
// wrong password all produce a nil user so callers cannot tell them apart.
package users

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/tablekeep/pkg/pagination"
	"github.com/platinummonkey/tablekeep/pkg/patch"
	"github.com/platinummonkey/tablekeep/pkg/rbac"
	"github.com/platinummonkey/tablekeep/pkg/tenancy"
	"github.com/platinummonkey/tablekeep/pkg/validation"
)

// MinPasswordLength is enforced at the request boundary
const MinPasswordLength = 8

// ErrEmailTaken wraps unique-constraint violations on users.email
var ErrEmailTaken = errors.New("email already registered")

// User is a staff or administrator account
type User struct {
	ID           int64      `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Role         rbac.Role  `json:"role"`
	RestaurantID *int64     `json:"restaurant_id"`
	IsActive     bool       `json:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Scope derives the tenant scope the user operates in
func (u *User) Scope() (tenancy.Scope, error) {
	return tenancy.ScopeFor(u.Role, u.RestaurantID)
}

// CreateUserRequest is the input for CreateUser
type CreateUserRequest struct {
	Email        string    `json:"email"`
	Password     string    `json:"password"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Role         rbac.Role `json:"role"`
	RestaurantID *int64    `json:"restaurant_id,omitempty"`
}

// Validate checks the request shape
func (r *CreateUserRequest) Validate() error {
	var errs validation.Errors
	errs.Email("email", r.Email)
	errs.MinLength("password", r.Password, MinPasswordLength)
	errs.Required("first_name", r.FirstName)
	errs.Required("last_name", r.LastName)
	if !r.Role.Valid() {
		errs.Add("role", "must be one of SUPER_ADMIN, RESTAURANT_OWNER, MANAGER, STAFF")
	}
	return errs.Err()
}

// UpdateUserRequest carries a partial update
type UpdateUserRequest struct {
	Email        patch.Field[string]    `json:"email"`
	Password     patch.Field[string]    `json:"password"`
	FirstName    patch.Field[string]    `json:"first_name"`
	LastName     patch.Field[string]    `json:"last_name"`
	Role         patch.Field[rbac.Role] `json:"role"`
	RestaurantID patch.Field[int64]     `json:"restaurant_id"`
	IsActive     patch.Field[bool]      `json:"is_active"`
}

// Validate checks the request shape. Only restaurant_id may be null.
func (r *UpdateUserRequest) Validate() error {
	var errs validation.Errors
	if r.Email.IsNull() {
		errs.Add("email", "cannot be null")
	} else if v, ok := r.Email.Get(); ok {
		errs.Email("email", v)
	}
	if r.Password.IsNull() {
		errs.Add("password", "cannot be null")
	} else if v, ok := r.Password.Get(); ok {
		errs.MinLength("password", v, MinPasswordLength)
	}
	for field, f := range map[string]patch.Field[string]{"first_name": r.FirstName, "last_name": r.LastName} {
		if f.IsNull() {
			errs.Add(field, "cannot be null")
		} else if v, ok := f.Get(); ok {
			errs.Required(field, v)
		}
	}
	if r.Role.IsNull() {
		errs.Add("role", "cannot be null")
	} else if v, ok := r.Role.Get(); ok && !v.Valid() {
		errs.Add("role", "must be one of SUPER_ADMIN, RESTAURANT_OWNER, MANAGER, STAFF")
	}
	if r.IsActive.IsNull() {
		errs.Add("is_active", "cannot be null")
	}
	return errs.Err()
}

// Service defines user operations
type Service interface {
	CreateUser(ctx context.Context, scope tenancy.Scope, req *CreateUserRequest) (*User, error)
	GetUser(ctx context.Context, scope tenancy.Scope, id int64) (*User, error)
	ListUsers(ctx context.Context, scope tenancy.Scope, page pagination.Page) ([]*User, error)
	UpdateUser(ctx context.Context, scope tenancy.Scope, id int64, req *UpdateUserRequest) (*User, error)
	DeactivateUser(ctx context.Context, scope tenancy.Scope, id int64) error
	Authenticate(ctx context.Context, email, password string) (*User, error)
}
