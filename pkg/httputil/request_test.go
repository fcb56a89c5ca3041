package httputil

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/tablekeep/pkg/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		expectError bool
	}{
		{name: "valid JSON", body: `{"name": "test"}`},
		{name: "invalid JSON", body: `{invalid}`, expectError: true},
		{name: "unknown field", body: `{"name": "test", "role": "SUPER_ADMIN"}`, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString(tt.body))
			var dest struct {
				Name string `json:"name"`
			}

			err := ParseJSON(req, &dest)

			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, "test", dest.Name)
			}
		})
	}
}

func TestParseJSONOrError(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString(`nope`))
	var dest map[string]string

	assert.False(t, ParseJSONOrError(w, req, &dest))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParsePathInt64(t *testing.T) {
	tests := []struct {
		name    string
		vars    map[string]string
		want    int64
		wantErr bool
	}{
		{name: "valid", vars: map[string]string{"id": "42"}, want: 42},
		{name: "missing", vars: map[string]string{}, wantErr: true},
		{name: "not a number", vars: map[string]string{"id": "abc"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/", nil), tt.vars)
			got, err := ParsePathInt64(req, "id")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePathInt64OrError(t *testing.T) {
	w := httptest.NewRecorder()
	req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"id": "x"})

	_, ok := ParsePathInt64OrError(w, req, "id")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParseQueryInt64Ptr(t *testing.T) {
	got, err := ParseQueryInt64Ptr(httptest.NewRequest(http.MethodGet, "/?restaurant_id=9", nil), "restaurant_id")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(9), *got)

	got, err = ParseQueryInt64Ptr(httptest.NewRequest(http.MethodGet, "/", nil), "restaurant_id")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = ParseQueryInt64Ptr(httptest.NewRequest(http.MethodGet, "/?restaurant_id=nine", nil), "restaurant_id")
	assert.Error(t, err)
}

func TestParsePage(t *testing.T) {
	tests := []struct {
		query   string
		want    pagination.Page
		wantErr bool
	}{
		{query: "", want: pagination.Page{Limit: pagination.DefaultLimit}},
		{query: "limit=10&offset=20", want: pagination.Page{Limit: 10, Offset: 20}},
		{query: "limit=100000", want: pagination.Page{Limit: pagination.MaxLimit}},
		{query: "offset=-5", want: pagination.Page{Limit: pagination.DefaultLimit}},
		{query: "limit=ten", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			page, err := ParsePage(httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, page)
		})
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1", ClientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.2")
	assert.Equal(t, "198.51.100.2", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.5, 198.51.100.2")
	assert.Equal(t, "203.0.113.5", ClientIP(req))
}
