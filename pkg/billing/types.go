package billing

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/tablekeep/pkg/pagination"
	"github.com/platinummonkey/tablekeep/pkg/patch"
	"github.com/platinummonkey/tablekeep/pkg/tenancy"
)

// BillingPeriod is the length of a paid subscription period
const BillingPeriod = 30 * 24 * time.Hour

// ErrRestaurantNotFound is returned when a subscription references a missing
// or deactivated restaurant
var ErrRestaurantNotFound = errors.New("restaurant not found")

// ErrLiveSubscriptionExists is returned when an update would leave a
// restaurant with two ACTIVE or TRIALING subscriptions
var ErrLiveSubscriptionExists = errors.New("restaurant already has a live subscription")

// Tier is a subscription plan tier
type Tier string

const (
	TierFree         Tier = "FREE"
	TierBasic        Tier = "BASIC"
	TierProfessional Tier = "PROFESSIONAL"
)

// Valid reports whether t is a known tier
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierBasic, TierProfessional:
		return true
	}
	return false
}

// IsPaid reports whether the tier carries a billing period
func (t Tier) IsPaid() bool {
	return t == TierBasic || t == TierProfessional
}

// Status is the subscription lifecycle state
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
	StatusPastDue  Status = "PAST_DUE"
	StatusCanceled Status = "CANCELED"
	StatusTrialing Status = "TRIALING"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusPastDue, StatusCanceled, StatusTrialing:
		return true
	}
	return false
}

// IsLive reports whether the status counts as the restaurant's current subscription
func (s Status) IsLive() bool {
	return s == StatusActive || s == StatusTrialing
}

// Subscription represents a restaurant's plan
type Subscription struct {
	ID                     int64      `json:"id"`
	RestaurantID           int64      `json:"restaurant_id"`
	Tier                   Tier       `json:"tier"`
	Status                 Status     `json:"status"`
	ExternalCustomerID     *string    `json:"external_customer_id,omitempty"`
	ExternalSubscriptionID *string    `json:"external_subscription_id,omitempty"`
	CurrentPeriodStart     *time.Time `json:"current_period_start"`
	CurrentPeriodEnd       *time.Time `json:"current_period_end"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// CreateSubscriptionRequest is the input for CreateSubscription
type CreateSubscriptionRequest struct {
	RestaurantID           int64   `json:"restaurant_id"`
	Tier                   Tier    `json:"tier"`
	Status                 Status  `json:"status,omitempty"`
	ExternalCustomerID     *string `json:"external_customer_id,omitempty"`
	ExternalSubscriptionID *string `json:"external_subscription_id,omitempty"`
}

// UpdateSubscriptionRequest carries a partial update
type UpdateSubscriptionRequest struct {
	Tier                   patch.Field[Tier]   `json:"tier"`
	Status                 patch.Field[Status] `json:"status"`
	ExternalCustomerID     patch.Field[string] `json:"external_customer_id"`
	ExternalSubscriptionID patch.Field[string] `json:"external_subscription_id"`
}

// Period returns the billing window for tier starting at now; FREE has none
func Period(tier Tier, now time.Time) (start, end *time.Time) {
	if !tier.IsPaid() {
		return nil, nil
	}
	s := now
	e := now.Add(BillingPeriod)
	return &s, &e
}

// Service defines subscription operations. Reads return a nil subscription
// when nothing is visible to the scope.
type Service interface {
	CreateSubscription(ctx context.Context, scope tenancy.Scope, req *CreateSubscriptionRequest) (*Subscription, error)
	GetSubscription(ctx context.Context, scope tenancy.Scope, id int64) (*Subscription, error)
	GetSubscriptionForRestaurant(ctx context.Context, scope tenancy.Scope, restaurantID int64) (*Subscription, error)
	ListSubscriptions(ctx context.Context, scope tenancy.Scope, page pagination.Page) ([]*Subscription, error)
	UpdateSubscription(ctx context.Context, scope tenancy.Scope, id int64, req *UpdateSubscriptionRequest) (*Subscription, error)
	MarkExpiredPastDue(ctx context.Context, now time.Time) (int64, error)
}
