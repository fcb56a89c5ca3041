package audit

import (
	"context"
	"errors"

	"github.com/platinummonkey/tablekeep/pkg/observability"
)

// Logger records audit events
type Logger interface {
	Log(ctx context.Context, event *Event) error
}

// NopLogger discards every event
type NopLogger struct{}

// Log implements Logger
func (NopLogger) Log(context.Context, *Event) error { return nil }

// LogLogger writes events to the application log at info level
type LogLogger struct {
	logger *observability.Logger
}

// NewLogLogger creates a Logger backed by logger
func NewLogLogger(logger *observability.Logger) *LogLogger {
	return &LogLogger{logger: logger}
}

// Log implements Logger
func (l *LogLogger) Log(_ context.Context, event *Event) error {
	fields := map[string]interface{}{
		"audit_event": string(event.EventType),
		"status":      string(event.Status),
	}
	if event.UserID != nil {
		fields["user_id"] = *event.UserID
	}
	if event.RestaurantID != nil {
		fields["restaurant_id"] = *event.RestaurantID
	}
	if event.Role != "" {
		fields["role"] = event.Role
	}
	if event.ResourceType != "" {
		fields["resource_type"] = event.ResourceType
		fields["resource_id"] = event.ResourceID
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	if event.IPAddress != "" {
		fields["ip"] = event.IPAddress
	}
	for k, v := range event.Metadata {
		fields["meta_"+k] = v
	}
	l.logger.WithFields(fields).Info(event.Message)
	return nil
}

// MultiLogger writes each event to every logger in order. A failing sink
// does not stop the others; all errors are joined.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a MultiLogger
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// Log implements Logger
func (m *MultiLogger) Log(ctx context.Context, event *Event) error {
	var errs []error
	for _, l := range m.loggers {
		if err := l.Log(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
