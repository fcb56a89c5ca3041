// Package customers manages a restaurant's customer records and loyalty counters.
package customers

import (
	"context"
	"time"

	"github.com/platinummonkey/tablekeep/pkg/pagination"
	"github.com/platinummonkey/tablekeep/pkg/patch"
	"github.com/platinummonkey/tablekeep/pkg/tenancy"
	"github.com/platinummonkey/tablekeep/pkg/validation"
)

// Customer belongs to exactly one restaurant
type Customer struct {
	ID            int64      `json:"id"`
	RestaurantID  int64      `json:"restaurant_id"`
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	Email         *string    `json:"email,omitempty"`
	Phone         *string    `json:"phone,omitempty"`
	DateOfBirth   *time.Time `json:"date_of_birth,omitempty"`
	LoyaltyPoints int        `json:"loyalty_points"`
	TotalVisits   int        `json:"total_visits"`
	LastVisitDate *time.Time `json:"last_visit_date"`
	Notes         *string    `json:"notes,omitempty"`
	IsActive      bool       `json:"is_active"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// CreateCustomerRequest is the input for CreateCustomer
type CreateCustomerRequest struct {
	RestaurantID int64      `json:"restaurant_id"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Email        *string    `json:"email,omitempty"`
	Phone        *string    `json:"phone,omitempty"`
	DateOfBirth  *time.Time `json:"date_of_birth,omitempty"`
	Notes        *string    `json:"notes,omitempty"`
}

// Validate checks the request shape
func (r *CreateCustomerRequest) Validate() error {
	var errs validation.Errors
	errs.Positive("restaurant_id", r.RestaurantID)
	errs.Required("first_name", r.FirstName)
	errs.Required("last_name", r.LastName)
	if r.Email != nil {
		errs.Email("email", *r.Email)
	}
	return errs.Err()
}

// UpdateCustomerRequest carries a partial update
type UpdateCustomerRequest struct {
	FirstName     patch.Field[string]    `json:"first_name"`
	LastName      patch.Field[string]    `json:"last_name"`
	Email         patch.Field[string]    `json:"email"`
	Phone         patch.Field[string]    `json:"phone"`
	DateOfBirth   patch.Field[time.Time] `json:"date_of_birth"`
	LoyaltyPoints patch.Field[int]       `json:"loyalty_points"`
	TotalVisits   patch.Field[int]       `json:"total_visits"`
	LastVisitDate patch.Field[time.Time] `json:"last_visit_date"`
	Notes         patch.Field[string]    `json:"notes"`
	IsActive      patch.Field[bool]      `json:"is_active"`
}

// Validate checks the request shape
func (r *UpdateCustomerRequest) Validate() error {
	var errs validation.Errors
	for field, f := range map[string]patch.Field[string]{"first_name": r.FirstName, "last_name": r.LastName} {
		if f.IsNull() {
			errs.Add(field, "cannot be null")
		} else if v, ok := f.Get(); ok {
			errs.Required(field, v)
		}
	}
	if email, ok := r.Email.Get(); ok {
		errs.Email("email", email)
	}
	for field, f := range map[string]patch.Field[int]{"loyalty_points": r.LoyaltyPoints, "total_visits": r.TotalVisits} {
		if f.IsNull() {
			errs.Add(field, "cannot be null")
		} else if v, ok := f.Get(); ok {
			errs.NonNegative(field, v)
		}
	}
	if r.IsActive.IsNull() {
		errs.Add("is_active", "cannot be null")
	}
	return errs.Err()
}

// RecordVisitRequest is the input for RecordVisit
type RecordVisitRequest struct {
	PointsEarned int `json:"points_earned"`
}

// Validate checks the request shape
func (r *RecordVisitRequest) Validate() error {
	var errs validation.Errors
	errs.NonNegative("points_earned", r.PointsEarned)
	return errs.Err()
}

// Service defines customer operations. Every call is filtered by the caller's
// scope; reads return nil when nothing is visible.
type Service interface {
	CreateCustomer(ctx context.Context, scope tenancy.Scope, req *CreateCustomerRequest) (*Customer, error)
	GetCustomer(ctx context.Context, scope tenancy.Scope, id int64) (*Customer, error)
	ListCustomers(ctx context.Context, scope tenancy.Scope, page pagination.Page) ([]*Customer, error)
	UpdateCustomer(ctx context.Context, scope tenancy.Scope, id int64, req *UpdateCustomerRequest) (*Customer, error)
	RecordVisit(ctx context.Context, scope tenancy.Scope, id int64, req *RecordVisitRequest) (*Customer, error)
	DeactivateCustomer(ctx context.Context, scope tenancy.Scope, id int64) error
}
