package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/tablekeep/pkg/customers"
	"github.com/platinummonkey/tablekeep/pkg/pagination"
	"github.com/platinummonkey/tablekeep/pkg/rbac"
	"github.com/platinummonkey/tablekeep/pkg/tenancy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockCustomerService implements customers.Service for testing
type mockCustomerService struct {
	createCustomerFunc     func(ctx context.Context, scope tenancy.Scope, req *customers.CreateCustomerRequest) (*customers.Customer, error)
	getCustomerFunc        func(ctx context.Context, scope tenancy.Scope, id int64) (*customers.Customer, error)
	listCustomersFunc      func(ctx context.Context, scope tenancy.Scope, page pagination.Page) ([]*customers.Customer, error)
	updateCustomerFunc     func(ctx context.Context, scope tenancy.Scope, id int64, req *customers.UpdateCustomerRequest) (*customers.Customer, error)
	recordVisitFunc        func(ctx context.Context, scope tenancy.Scope, id int64, req *customers.RecordVisitRequest) (*customers.Customer, error)
	deactivateCustomerFunc func(ctx context.Context, scope tenancy.Scope, id int64) error
}

func (m *mockCustomerService) CreateCustomer(ctx context.Context, scope tenancy.Scope, req *customers.CreateCustomerRequest) (*customers.Customer, error) {
	if m.createCustomerFunc != nil {
		return m.createCustomerFunc(ctx, scope, req)
	}
	return nil, errors.New("not implemented")
}

func (m *mockCustomerService) GetCustomer(ctx context.Context, scope tenancy.Scope, id int64) (*customers.Customer, error) {
	if m.getCustomerFunc != nil {
		return m.getCustomerFunc(ctx, scope, id)
	}
	return nil, errors.New("not implemented")
}

func (m *mockCustomerService) ListCustomers(ctx context.Context, scope tenancy.Scope, page pagination.Page) ([]*customers.Customer, error) {
	if m.listCustomersFunc != nil {
		return m.listCustomersFunc(ctx, scope, page)
	}
	return nil, errors.New("not implemented")
}

func (m *mockCustomerService) UpdateCustomer(ctx context.Context, scope tenancy.Scope, id int64, req *customers.UpdateCustomerRequest) (*customers.Customer, error) {
	if m.updateCustomerFunc != nil {
		return m.updateCustomerFunc(ctx, scope, id, req)
	}
	return nil, errors.New("not implemented")
}

func (m *mockCustomerService) RecordVisit(ctx context.Context, scope tenancy.Scope, id int64, req *customers.RecordVisitRequest) (*customers.Customer, error) {
	if m.recordVisitFunc != nil {
		return m.recordVisitFunc(ctx, scope, id, req)
	}
	return nil, errors.New("not implemented")
}

func (m *mockCustomerService) DeactivateCustomer(ctx context.Context, scope tenancy.Scope, id int64) error {
	if m.deactivateCustomerFunc != nil {
		return m.deactivateCustomerFunc(ctx, scope, id)
	}
	return errors.New("not implemented")
}

func TestCustomerHandlers_RegisterRoutes(t *testing.T) {
	handlers := NewCustomerHandlers(&mockCustomerService{}, nil)
	router := mux.NewRouter()
	handlers.RegisterRoutes(router)

	routes := []struct {
		method string
		path   string
	}{
		{"POST", "/customers"},
		{"GET", "/customers"},
		{"GET", "/customers/1"},
		{"PATCH", "/customers/1"},
		{"DELETE", "/customers/1"},
		{"POST", "/customers/1/visits"},
	}
	for _, route := range routes {
		var match mux.RouteMatch
		req := httptest.NewRequest(route.method, route.path, nil)
		assert.True(t, router.Match(req, &match), "%s %s should match", route.method, route.path)
	}
}

func TestCreateCustomer_DefaultsCallerRestaurant(t *testing.T) {
	var got *customers.CreateCustomerRequest
	mockService := &mockCustomerService{
		createCustomerFunc: func(ctx context.Context, scope tenancy.Scope, req *customers.CreateCustomerRequest) (*customers.Customer, error) {
			got = req
			return &customers.Customer{ID: 1, RestaurantID: req.RestaurantID, FirstName: req.FirstName, IsActive: true}, nil
		},
	}
	handlers := NewCustomerHandlers(mockService, nil)

	body := `{"first_name":"Ada","last_name":"Lovelace"}`
	req := asRole(t, httptest.NewRequest("POST", "/customers", bytes.NewBufferString(body)), rbac.RoleManager, 9)
	w := httptest.NewRecorder()

	handlers.CreateCustomer(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, got)
	assert.Equal(t, int64(9), got.RestaurantID)

	var customer customers.Customer
	require.NoError(t, json.NewDecoder(w.Body).Decode(&customer))
	assert.Equal(t, 0, customer.LoyaltyPoints)
	assert.Nil(t, customer.LastVisitDate)
}

func TestCreateCustomer_SuperAdminMustNameRestaurant(t *testing.T) {
	handlers := NewCustomerHandlers(&mockCustomerService{}, nil)

	body := `{"first_name":"Ada","last_name":"Lovelace"}`
	req := asSuperAdmin(t, httptest.NewRequest("POST", "/customers", bytes.NewBufferString(body)))
	w := httptest.NewRecorder()

	handlers.CreateCustomer(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "restaurant_id")
}

func TestCreateCustomer_OtherTenant(t *testing.T) {
	mockService := &mockCustomerService{
		createCustomerFunc: func(ctx context.Context, scope tenancy.Scope, req *customers.CreateCustomerRequest) (*customers.Customer, error) {
			if !scope.Allows(req.RestaurantID) {
				return nil, tenancy.ErrNotFoundOrNotPermitted
			}
			return &customers.Customer{ID: 1}, nil
		},
	}
	handlers := NewCustomerHandlers(mockService, nil)

	body := `{"restaurant_id":2,"first_name":"Ada","last_name":"Lovelace"}`
	req := asRole(t, httptest.NewRequest("POST", "/customers", bytes.NewBufferString(body)), rbac.RoleManager, 1)
	w := httptest.NewRecorder()

	handlers.CreateCustomer(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateCustomer_InvalidJSON(t *testing.T) {
	handlers := NewCustomerHandlers(&mockCustomerService{}, nil)

	req := asRole(t, httptest.NewRequest("POST", "/customers", bytes.NewBufferString("invalid json")), rbac.RoleManager, 1)
	w := httptest.NewRecorder()

	handlers.CreateCustomer(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateCustomer_Unauthenticated(t *testing.T) {
	handlers := NewCustomerHandlers(&mockCustomerService{}, nil)

	req := httptest.NewRequest("POST", "/customers", bytes.NewBufferString(`{}`))
	w := httptest.NewRecorder()

	handlers.CreateCustomer(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListCustomers_PassesScopeAndPage(t *testing.T) {
	var gotScope tenancy.Scope
	var gotPage pagination.Page
	mockService := &mockCustomerService{
		listCustomersFunc: func(ctx context.Context, scope tenancy.Scope, page pagination.Page) ([]*customers.Customer, error) {
			gotScope, gotPage = scope, page
			return nil, nil
		},
	}
	handlers := NewCustomerHandlers(mockService, nil)

	tests := []struct {
		name      string
		query     string
		wantLimit int
		wantOff   int
	}{
		{"defaults", "", pagination.DefaultLimit, 0},
		{"explicit", "?limit=10&offset=20", 10, 20},
		{"capped", "?limit=100000", pagination.MaxLimit, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := asRole(t, httptest.NewRequest("GET", "/customers"+tt.query, nil), rbac.RoleStaff, 4)
			w := httptest.NewRecorder()

			handlers.ListCustomers(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.wantLimit, gotPage.Limit)
			assert.Equal(t, tt.wantOff, gotPage.Offset)
			assert.Equal(t, tenancy.ForRestaurant(4), gotScope)
			assert.JSONEq(t, `{"items":[],"limit":`+strconv.Itoa(tt.wantLimit)+`,"offset":`+strconv.Itoa(tt.wantOff)+`}`, w.Body.String())
		})
	}
}

func TestListCustomers_BadQuery(t *testing.T) {
	handlers := NewCustomerHandlers(&mockCustomerService{}, nil)

	req := asRole(t, httptest.NewRequest("GET", "/customers?limit=ten", nil), rbac.RoleStaff, 4)
	w := httptest.NewRecorder()

	handlers.ListCustomers(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetCustomer(t *testing.T) {
	mockService := &mockCustomerService{
		getCustomerFunc: func(ctx context.Context, scope tenancy.Scope, id int64) (*customers.Customer, error) {
			if id == 1 && scope.Allows(1) {
				return &customers.Customer{ID: 1, RestaurantID: 1, FirstName: "Ada"}, nil
			}
			return nil, nil
		},
	}
	handlers := NewCustomerHandlers(mockService, nil)

	tests := []struct {
		name       string
		id         string
		restaurant int64
		want       int
	}{
		{"own tenant", "1", 1, http.StatusOK},
		{"other tenant", "1", 2, http.StatusNotFound},
		{"missing", "99", 1, http.StatusNotFound},
		{"bad id", "abc", 1, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/customers/"+tt.id, nil)
			req = mux.SetURLVars(req, map[string]string{"id": tt.id})
			req = asRole(t, req, rbac.RoleStaff, tt.restaurant)
			w := httptest.NewRecorder()

			handlers.GetCustomer(w, req)

			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestUpdateCustomer(t *testing.T) {
	var got *customers.UpdateCustomerRequest
	mockService := &mockCustomerService{
		updateCustomerFunc: func(ctx context.Context, scope tenancy.Scope, id int64, req *customers.UpdateCustomerRequest) (*customers.Customer, error) {
			if !scope.Allows(1) {
				return nil, tenancy.ErrNotFoundOrNotPermitted
			}
			got = req
			return &customers.Customer{ID: id, RestaurantID: 1}, nil
		},
	}
	handlers := NewCustomerHandlers(mockService, nil)

	t.Run("partial update", func(t *testing.T) {
		req := httptest.NewRequest("PATCH", "/customers/5", bytes.NewBufferString(`{"notes":null,"loyalty_points":40}`))
		req = mux.SetURLVars(req, map[string]string{"id": "5"})
		req = asRole(t, req, rbac.RoleManager, 1)
		w := httptest.NewRecorder()

		handlers.UpdateCustomer(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, got)
		assert.True(t, got.Notes.IsNull())
		points, ok := got.LoyaltyPoints.Get()
		assert.True(t, ok)
		assert.Equal(t, 40, points)
		assert.False(t, got.FirstName.Set)
	})

	t.Run("negative counter", func(t *testing.T) {
		req := httptest.NewRequest("PATCH", "/customers/5", bytes.NewBufferString(`{"total_visits":-1}`))
		req = mux.SetURLVars(req, map[string]string{"id": "5"})
		req = asRole(t, req, rbac.RoleManager, 1)
		w := httptest.NewRecorder()

		handlers.UpdateCustomer(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "total_visits")
	})

	t.Run("other tenant", func(t *testing.T) {
		req := httptest.NewRequest("PATCH", "/customers/5", bytes.NewBufferString(`{"first_name":"Eve"}`))
		req = mux.SetURLVars(req, map[string]string{"id": "5"})
		req = asRole(t, req, rbac.RoleManager, 2)
		w := httptest.NewRecorder()

		handlers.UpdateCustomer(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestRecordVisit(t *testing.T) {
	mockService := &mockCustomerService{
		recordVisitFunc: func(ctx context.Context, scope tenancy.Scope, id int64, req *customers.RecordVisitRequest) (*customers.Customer, error) {
			return &customers.Customer{ID: id, LoyaltyPoints: req.PointsEarned, TotalVisits: 1}, nil
		},
	}
	handlers := NewCustomerHandlers(mockService, nil)

	req := httptest.NewRequest("POST", "/customers/3/visits", bytes.NewBufferString(`{"points_earned":15}`))
	req = mux.SetURLVars(req, map[string]string{"id": "3"})
	req = asRole(t, req, rbac.RoleManager, 1)
	w := httptest.NewRecorder()

	handlers.RecordVisit(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var customer customers.Customer
	require.NoError(t, json.NewDecoder(w.Body).Decode(&customer))
	assert.Equal(t, 15, customer.LoyaltyPoints)
	assert.Equal(t, 1, customer.TotalVisits)

	req = httptest.NewRequest("POST", "/customers/3/visits", bytes.NewBufferString(`{"points_earned":-5}`))
	req = mux.SetURLVars(req, map[string]string{"id": "3"})
	req = asRole(t, req, rbac.RoleManager, 1)
	w = httptest.NewRecorder()

	handlers.RecordVisit(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeactivateCustomer(t *testing.T) {
	mockService := &mockCustomerService{
		deactivateCustomerFunc: func(ctx context.Context, scope tenancy.Scope, id int64) error {
			if id != 3 {
				return tenancy.ErrNotFoundOrNotPermitted
			}
			return nil
		},
	}
	handlers := NewCustomerHandlers(mockService, nil)

	for id, want := range map[string]int{"3": http.StatusNoContent, "4": http.StatusNotFound} {
		req := httptest.NewRequest("DELETE", "/customers/"+id, nil)
		req = mux.SetURLVars(req, map[string]string{"id": id})
		req = asRole(t, req, rbac.RoleManager, 1)
		w := httptest.NewRecorder()

		handlers.DeactivateCustomer(w, req)

		assert.Equal(t, want, w.Code, "id %s", id)
	}
}

func TestCustomerService_Error(t *testing.T) {
	mockService := &mockCustomerService{
		getCustomerFunc: func(ctx context.Context, scope tenancy.Scope, id int64) (*customers.Customer, error) {
			return nil, errors.New("pq: connection refused")
		},
	}
	handlers := NewCustomerHandlers(mockService, nil)

	req := httptest.NewRequest("GET", "/customers/1", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "1"})
	req = asRole(t, req, rbac.RoleStaff, 1)
	w := httptest.NewRecorder()

	handlers.GetCustomer(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "pq:")
}
