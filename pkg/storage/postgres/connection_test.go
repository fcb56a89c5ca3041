package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionConfigDefaults(t *testing.T) {
	cfg := ConnectionConfig{MaxConns: 7}.withDefaults()
	assert.Equal(t, 7, cfg.MaxConns)
	assert.Equal(t, 5, cfg.MinConns)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, 5*time.Minute, cfg.MaxLifetime)
}

func TestNewConnectionManager(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	mock.ExpectPing()
	cm, err := newConnectionManager(db, ConnectionConfig{MaxConns: 3})
	require.NoError(t, err)
	assert.Same(t, db, cm.Primary())
	assert.Equal(t, 3, cm.Stats().MaxOpenConnections)

	mock.ExpectPing().WillReturnError(errors.New("gone"))
	err = cm.HealthCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database unhealthy")

	mock.ExpectClose()
	require.NoError(t, cm.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewConnectionManagerPingFailure(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	_, err = newConnectionManager(db, ConnectionConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to ping database")
}
