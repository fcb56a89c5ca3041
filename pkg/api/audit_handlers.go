package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/tablekeep/pkg/audit"
	"github.com/platinummonkey/tablekeep/pkg/contextkeys"
	"github.com/platinummonkey/tablekeep/pkg/httputil"
	"github.com/platinummonkey/tablekeep/pkg/middleware"
	"github.com/platinummonkey/tablekeep/pkg/observability"
	"github.com/platinummonkey/tablekeep/pkg/rbac"
	"github.com/platinummonkey/tablekeep/pkg/tenancy"
)

// AuditSearcher reads the audit trail. *audit.PostgresStore implements it.
type AuditSearcher interface {
	Search(ctx context.Context, scope tenancy.Scope, filter audit.Filter) ([]*audit.Event, error)
}

// record stamps event with the caller and request details and hands it to
// the audit logger. Failures are logged; they never fail the request.
func (g *Guard) record(r *http.Request, event *audit.Event) {
	if g == nil {
		return
	}
	if authCtx := middleware.GetAuthContext(r); authCtx != nil {
		if event.UserID == nil {
			id := authCtx.UserID
			event.UserID = &id
		}
		if event.Role == "" {
			event.Role = string(authCtx.Role)
		}
		if event.RestaurantID == nil && authCtx.RestaurantID != nil {
			id := *authCtx.RestaurantID
			event.RestaurantID = &id
		}
	}
	event.RequestID = contextkeys.GetRequestID(r.Context())
	event.IPAddress = httputil.ClientIP(r)
	event.Method = r.Method
	event.Path = r.URL.Path

	if err := g.auditor.Log(r.Context(), event); err != nil {
		observability.FromContext(r.Context()).
			WithError(err).
			WithField("audit_event", string(event.EventType)).
			Error("failed to record audit event")
	}
}

func resourceEvent(eventType audit.EventType, resourceType string, id int64) *audit.Event {
	event := audit.NewEvent(eventType, audit.StatusSuccess)
	event.ResourceType = resourceType
	event.ResourceID = strconv.FormatInt(id, 10)
	return event
}

// AuditHandlers serves the audit trail
type AuditHandlers struct {
	events AuditSearcher
	guard  *Guard
}

// NewAuditHandlers creates a new AuditHandlers
func NewAuditHandlers(events AuditSearcher, guard *Guard) *AuditHandlers {
	return &AuditHandlers{events: events, guard: guard}
}

// RegisterRoutes registers audit routes
func (h *AuditHandlers) RegisterRoutes(router *mux.Router) {
	router.Handle("/audit/events", h.guard.Require(rbac.ResourceSettings, rbac.ActionRead, h.ListEvents)).Methods("GET")
}

// ListEvents handles GET /audit/events. Supported filters: type (repeatable
// or comma separated), status, user_id and since (RFC 3339).
func (h *AuditHandlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := caller(w, r)
	if !ok {
		return
	}
	page, ok := httputil.ParsePageOrError(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	filter := audit.Filter{
		Status: audit.EventStatus(query.Get("status")),
		Page:   page,
	}
	for _, v := range query["type"] {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				filter.EventTypes = append(filter.EventTypes, audit.EventType(t))
			}
		}
	}
	userID, err := httputil.ParseQueryInt64Ptr(r, "user_id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	filter.UserID = userID
	if since := query.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			httputil.WriteBadRequest(w, "since must be an RFC 3339 timestamp")
			return
		}
		filter.StartTime = &t
	}

	events, err := h.events.Search(r.Context(), authCtx.Scope, filter)
	if err != nil {
		writeServiceError(w, r, h.guard, "audit event", err)
		return
	}
	if events == nil {
		events = []*audit.Event{}
	}

	httputil.WriteSuccess(w, httputil.ListResponse{Items: events, Limit: page.Limit, Offset: page.Offset})
}
