package observability

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownRunsStepsInReverse(t *testing.T) {
	sm := NewShutdownManager(NewLogger(ErrorLevel, &bytes.Buffer{}), nil, time.Second)

	var order []string
	sm.Register("db", func(context.Context) error { order = append(order, "db"); return nil })
	sm.Register("redis", func(context.Context) error { order = append(order, "redis"); return nil })

	require.NoError(t, sm.Shutdown())
	assert.Equal(t, []string{"redis", "db"}, order)
}

func TestShutdownJoinsErrors(t *testing.T) {
	sm := NewShutdownManager(NewLogger(ErrorLevel, &bytes.Buffer{}), &http.Server{}, 0)

	boom := errors.New("boom")
	ran := false
	sm.Register("first", func(context.Context) error { ran = true; return nil })
	sm.Register("second", func(context.Context) error { return boom })

	err := sm.Shutdown()
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "second")
	assert.True(t, ran, "later failures must not skip earlier steps")
}

func TestRecoverPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	func() {
		defer RecoverPanic(logger, "billing sweep")
		panic("kaboom")
	}()

	assert.Contains(t, buf.String(), "kaboom")
	assert.Contains(t, buf.String(), "billing sweep")
}
