package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/tablekeep/pkg/audit"
	"github.com/platinummonkey/tablekeep/pkg/auth"
	"github.com/platinummonkey/tablekeep/pkg/contextkeys"
	"github.com/platinummonkey/tablekeep/pkg/rbac"
	"github.com/platinummonkey/tablekeep/pkg/tenancy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingAuditor implements audit.Logger for testing
type recordingAuditor struct {
	events []*audit.Event
	err    error
}

func (m *recordingAuditor) Log(ctx context.Context, event *audit.Event) error {
	m.events = append(m.events, event)
	return m.err
}

func (m *recordingAuditor) only(t *testing.T) *audit.Event {
	t.Helper()
	require.Len(t, m.events, 1)
	return m.events[0]
}

// mockAuditSearcher implements AuditSearcher for testing
type mockAuditSearcher struct {
	searchFunc func(ctx context.Context, scope tenancy.Scope, filter audit.Filter) ([]*audit.Event, error)
}

func (m *mockAuditSearcher) Search(ctx context.Context, scope tenancy.Scope, filter audit.Filter) ([]*audit.Event, error) {
	if m.searchFunc != nil {
		return m.searchFunc(ctx, scope, filter)
	}
	return nil, errors.New("not implemented")
}

func TestGuardRecord_StampsCaller(t *testing.T) {
	auditor := &recordingAuditor{}
	guard := NewGuard(nil, nil, auditor)

	req := httptest.NewRequest("DELETE", "/users/12", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	req = req.WithContext(contextkeys.WithRequestID(req.Context(), "req-42"))
	req = asRole(t, req, rbac.RoleManager, 6)

	guard.record(req, resourceEvent(audit.EventTypeUserDeactivate, "user", 12))

	e := auditor.only(t)
	assert.Equal(t, audit.EventTypeUserDeactivate, e.EventType)
	assert.Equal(t, audit.StatusSuccess, e.Status)
	require.NotNil(t, e.UserID)
	assert.Equal(t, int64(2), *e.UserID)
	assert.Equal(t, "MANAGER", e.Role)
	require.NotNil(t, e.RestaurantID)
	assert.Equal(t, int64(6), *e.RestaurantID)
	assert.Equal(t, "12", e.ResourceID)
	assert.Equal(t, "req-42", e.RequestID)
	assert.Equal(t, "192.0.2.7", e.IPAddress)
	assert.Equal(t, "DELETE", e.Method)
	assert.Equal(t, "/users/12", e.Path)
}

func TestGuardRecord_SinkFailureDoesNotPanic(t *testing.T) {
	auditor := &recordingAuditor{err: errors.New("audit table missing")}
	guard := NewGuard(nil, nil, auditor)

	guard.record(httptest.NewRequest("GET", "/", nil), audit.NewEvent(audit.EventTypeLogout, audit.StatusSuccess))
	assert.Len(t, auditor.events, 1)
}

func TestScopeMissIsAudited(t *testing.T) {
	auditor := &recordingAuditor{}
	guard := NewGuard(nil, nil, auditor)

	req := httptest.NewRequest("PATCH", "/customers/77", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "77"})
	req = asRole(t, req, rbac.RoleStaff, 3)
	w := httptest.NewRecorder()

	writeServiceError(w, req, guard, "customer", tenancy.ErrNotFoundOrNotPermitted)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"customer not found"}`, w.Body.String())
	e := auditor.only(t)
	assert.Equal(t, audit.EventTypeScopeMiss, e.EventType)
	assert.Equal(t, audit.StatusDenied, e.Status)
	assert.Equal(t, "customer", e.ResourceType)
	assert.Equal(t, "77", e.ResourceID)
}

func TestLogin_Audited(t *testing.T) {
	owner := staffAt(5, 2, rbac.RoleRestaurantOwner)
	auditor := &recordingAuditor{}
	handlers := NewAuthHandlers(authenticatingUsers(owner), auth.NewTokenIssuer(testSecret, time.Hour, "tablekeep-test"),
		&mockDenylist{}, nil, nil, NewGuard(nil, nil, auditor))

	for _, body := range []string{
		`{"email":" U5@Example.com ","password":"nope"}`,
		`{"email":"u5@example.com","password":"correct horse"}`,
	} {
		handlers.Login(httptest.NewRecorder(), httptest.NewRequest("POST", "/auth/login", bytes.NewBufferString(body)))
	}

	require.Len(t, auditor.events, 2)
	failed, succeeded := auditor.events[0], auditor.events[1]
	assert.Equal(t, audit.EventTypeLoginFailed, failed.EventType)
	assert.Nil(t, failed.UserID)
	assert.Equal(t, "u5@example.com", failed.Metadata["email"])

	assert.Equal(t, audit.EventTypeLogin, succeeded.EventType)
	require.NotNil(t, succeeded.UserID)
	assert.Equal(t, int64(5), *succeeded.UserID)
	assert.Equal(t, "RESTAURANT_OWNER", succeeded.Role)
	require.NotNil(t, succeeded.RestaurantID)
	assert.Equal(t, int64(2), *succeeded.RestaurantID)
}

func TestListEvents(t *testing.T) {
	var gotScope tenancy.Scope
	var gotFilter audit.Filter
	searcher := &mockAuditSearcher{
		searchFunc: func(ctx context.Context, scope tenancy.Scope, filter audit.Filter) ([]*audit.Event, error) {
			gotScope, gotFilter = scope, filter
			return []*audit.Event{audit.NewEvent(audit.EventTypeLoginFailed, audit.StatusFailure)}, nil
		},
	}
	handlers := NewAuditHandlers(searcher, nil)

	url := "/audit/events?type=auth.login,auth.login_failed&type=auth.logout&status=failure&user_id=3&since=2026-03-01T00:00:00Z&limit=10"
	req := asRole(t, httptest.NewRequest("GET", url, nil), rbac.RoleRestaurantOwner, 4)
	w := httptest.NewRecorder()

	handlers.ListEvents(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, tenancy.ForRestaurant(4), gotScope)
	assert.Equal(t, []audit.EventType{audit.EventTypeLogin, audit.EventTypeLoginFailed, audit.EventTypeLogout}, gotFilter.EventTypes)
	assert.Equal(t, audit.StatusFailure, gotFilter.Status)
	require.NotNil(t, gotFilter.UserID)
	assert.Equal(t, int64(3), *gotFilter.UserID)
	require.NotNil(t, gotFilter.StartTime)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), gotFilter.StartTime.UTC())
	assert.Equal(t, 10, gotFilter.Page.Limit)

	var resp struct {
		Items []*audit.Event `json:"items"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Len(t, resp.Items, 1)
}

func TestListEvents_BadQuery(t *testing.T) {
	handlers := NewAuditHandlers(&mockAuditSearcher{}, nil)

	for _, url := range []string{"/audit/events?since=yesterday", "/audit/events?user_id=abc"} {
		req := asSuperAdmin(t, httptest.NewRequest("GET", url, nil))
		w := httptest.NewRecorder()
		handlers.ListEvents(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, url)
	}
}
