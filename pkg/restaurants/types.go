// Package restaurants manages the tenant root entity.
package restaurants

import (
	"context"
	"time"

	"github.com/platinummonkey/tablekeep/pkg/billing"
	"github.com/platinummonkey/tablekeep/pkg/pagination"
	"github.com/platinummonkey/tablekeep/pkg/patch"
	"github.com/platinummonkey/tablekeep/pkg/tenancy"
	"github.com/platinummonkey/tablekeep/pkg/validation"
)

// Restaurant is a tenant
type Restaurant struct {
	ID           int64                 `json:"id"`
	Name         string                `json:"name"`
	Description  *string               `json:"description,omitempty"`
	Email        string                `json:"email"`
	Phone        *string               `json:"phone,omitempty"`
	Address      *string               `json:"address,omitempty"`
	LogoURL      *string               `json:"logo_url,omitempty"`
	BrandColor   *string               `json:"brand_color,omitempty"`
	IsActive     bool                  `json:"is_active"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
	Subscription *billing.Subscription `json:"subscription,omitempty"`
}

// CreateRestaurantRequest is the input for CreateRestaurant
type CreateRestaurantRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	Email       string  `json:"email"`
	Phone       *string `json:"phone,omitempty"`
	Address     *string `json:"address,omitempty"`
	LogoURL     *string `json:"logo_url,omitempty"`
	BrandColor  *string `json:"brand_color,omitempty"`
}

// Validate checks the request shape
func (r *CreateRestaurantRequest) Validate() error {
	var errs validation.Errors
	errs.Required("name", r.Name)
	errs.MaxLength("name", r.Name, 255)
	errs.Email("email", r.Email)
	if r.BrandColor != nil {
		errs.HexColor("brand_color", *r.BrandColor)
	}
	return errs.Err()
}

// UpdateRestaurantRequest carries a partial update
type UpdateRestaurantRequest struct {
	Name        patch.Field[string] `json:"name"`
	Description patch.Field[string] `json:"description"`
	Email       patch.Field[string] `json:"email"`
	Phone       patch.Field[string] `json:"phone"`
	Address     patch.Field[string] `json:"address"`
	LogoURL     patch.Field[string] `json:"logo_url"`
	BrandColor  patch.Field[string] `json:"brand_color"`
	IsActive    patch.Field[bool]   `json:"is_active"`
}

// Validate checks the request shape. Name, email and is_active cannot be null.
func (r *UpdateRestaurantRequest) Validate() error {
	var errs validation.Errors
	if r.Name.IsNull() {
		errs.Add("name", "cannot be null")
	} else if name, ok := r.Name.Get(); ok {
		errs.Required("name", name)
	}
	if r.Email.IsNull() {
		errs.Add("email", "cannot be null")
	} else if email, ok := r.Email.Get(); ok {
		errs.Email("email", email)
	}
	if color, ok := r.BrandColor.Get(); ok {
		errs.HexColor("brand_color", color)
	}
	if r.IsActive.IsNull() {
		errs.Add("is_active", "cannot be null")
	}
	return errs.Err()
}

// Service defines restaurant operations. Inactive restaurants are invisible to
// every read; reads return nil when nothing is visible.
type Service interface {
	CreateRestaurant(ctx context.Context, req *CreateRestaurantRequest) (*Restaurant, error)
	GetRestaurant(ctx context.Context, scope tenancy.Scope, id int64) (*Restaurant, error)
	ListRestaurants(ctx context.Context, scope tenancy.Scope, page pagination.Page) ([]*Restaurant, error)
	UpdateRestaurant(ctx context.Context, scope tenancy.Scope, id int64, req *UpdateRestaurantRequest) (*Restaurant, error)
	DeactivateRestaurant(ctx context.Context, scope tenancy.Scope, id int64) error
}
