package audit

import (
	"time"

	"github.com/platinummonkey/tablekeep/pkg/pagination"
)

// EventType categorises an audit event
type EventType string

const (
	EventTypeLogin       EventType = "auth.login"
	EventTypeLoginFailed EventType = "auth.login_failed"
	EventTypeLogout      EventType = "auth.logout"

	EventTypeScopeMiss EventType = "tenant.scope_miss"

	EventTypeUserCreate     EventType = "admin.user_create"
	EventTypeUserUpdate     EventType = "admin.user_update"
	EventTypeUserDeactivate EventType = "admin.user_deactivate"

	EventTypeRestaurantCreate EventType = "admin.restaurant_create"
	EventTypeRestaurantDelete EventType = "admin.restaurant_delete"

	EventTypeSubscriptionChange EventType = "billing.subscription_change"

	EventTypePermissionsSeed EventType = "rbac.seed"
)

// EventStatus is the outcome of an event
type EventStatus string

const (
	StatusSuccess EventStatus = "success"
	StatusFailure EventStatus = "failure"
	StatusDenied  EventStatus = "denied"
)

// Event is a single audit record
type Event struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor. Empty for failed logins.
	UserID       *int64 `json:"user_id,omitempty"`
	Role         string `json:"role,omitempty"`
	RestaurantID *int64 `json:"restaurant_id,omitempty"`

	ResourceType string `json:"resource_type,omitempty"`
	ResourceID   string `json:"resource_id,omitempty"`

	IPAddress string `json:"ip_address,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Method    string `json:"method,omitempty"`
	Path      string `json:"path,omitempty"`

	Message  string                 `json:"message,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// NewEvent returns an event stamped with the current time
func NewEvent(eventType EventType, status EventStatus) *Event {
	return &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
	}
}

// WithMetadata sets a metadata key and returns the event
func (e *Event) WithMetadata(key string, value interface{}) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// Filter narrows a search. Zero values match everything.
type Filter struct {
	EventTypes []EventType
	Status     EventStatus
	UserID     *int64
	StartTime  *time.Time
	EndTime    *time.Time
	Page       pagination.Page
}
