package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)


func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name       string
		dbErr      error
		redisDown  bool
		wantStatus string
		wantCode   int
	}{
		{name: "all healthy", wantStatus: StatusHealthy, wantCode: http.StatusOK},
		{name: "redis down", redisDown: true, wantStatus: StatusDegraded, wantCode: http.StatusOK},
		{name: "database down", dbErr: errors.New("connection refused"), wantStatus: StatusUnhealthy, wantCode: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
			require.NoError(t, err)
			defer db.Close()

			ping := mock.ExpectPing()
			if tt.dbErr != nil {
				ping.WillReturnError(tt.dbErr)
			}

			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
			defer client.Close()
			if tt.redisDown {
				mr.Close()
			}

			checker := NewHealthChecker(db, client, "test")
			router := mux.NewRouter()
			RegisterHealthRoutes(router, checker)

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			assert.Equal(t, tt.wantCode, rec.Code)

			var status HealthStatus
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
			assert.Equal(t, tt.wantStatus, status.Status)
			assert.Equal(t, "test", status.Version)
			assert.Contains(t, status.Dependencies, "database")
			assert.Contains(t, status.Dependencies, "redis")
		})
	}
}

func TestHealthCheckWithoutRedis(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectPing()

	status := NewHealthChecker(db, nil, "").Check(context.Background())
	assert.Equal(t, StatusHealthy, status.Status)
	assert.NotContains(t, status.Dependencies, "redis")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLiveness(t *testing.T) {
	checker := NewHealthChecker(nil, nil, "")
	rec := httptest.NewRecorder()
	checker.Liveness(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), StatusHealthy)
}
