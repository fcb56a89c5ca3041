package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/platinummonkey/tablekeep/pkg/patch"
	"github.com/platinummonkey/tablekeep/pkg/tenancy"
)

const eventColumns = `id, occurred_at, event_type, status, user_id, role, restaurant_id,
	resource_type, resource_id, ip_address, request_id, method, path, message, metadata`

// PostgresStore persists audit events in the audit_events table
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store over db
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Log inserts event and sets its ID
func (s *PostgresStore) Log(ctx context.Context, event *Event) error {
	var metadata []byte
	if len(event.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal audit metadata: %w", err)
		}
	}

	query := `
		INSERT INTO audit_events (
			occurred_at, event_type, status, user_id, role, restaurant_id,
			resource_type, resource_id, ip_address, request_id, method, path, message, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		event.Timestamp, event.EventType, event.Status, event.UserID, nullString(event.Role), event.RestaurantID,
		nullString(event.ResourceType), nullString(event.ResourceID), nullString(event.IPAddress),
		nullString(event.RequestID), nullString(event.Method), nullString(event.Path),
		nullString(event.Message), metadata,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// Search returns events visible to scope matching filter, newest first.
// Tenant-bound scopes only see events attributed to their restaurant.
func (s *PostgresStore) Search(ctx context.Context, scope tenancy.Scope, filter Filter) ([]*Event, error) {
	page := filter.Page.Normalize()
	b := patch.NewBuilder()
	conds := scope.Restrict(b, "restaurant_id", nil)

	if len(filter.EventTypes) > 0 {
		types := make([]string, len(filter.EventTypes))
		for i, t := range filter.EventTypes {
			types[i] = string(t)
		}
		conds = append(conds, "event_type = ANY("+b.Arg(pq.Array(types))+")")
	}
	if filter.Status != "" {
		conds = append(conds, "status = "+b.Arg(filter.Status))
	}
	if filter.UserID != nil {
		conds = append(conds, "user_id = "+b.Arg(*filter.UserID))
	}
	if filter.StartTime != nil {
		conds = append(conds, "occurred_at >= "+b.Arg(*filter.StartTime))
	}
	if filter.EndTime != nil {
		conds = append(conds, "occurred_at <= "+b.Arg(*filter.EndTime))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	query := `SELECT ` + eventColumns + ` FROM audit_events` + where +
		` ORDER BY occurred_at DESC, id DESC LIMIT ` + b.Arg(page.Limit) + ` OFFSET ` + b.Arg(page.Offset)

	rows, err := s.db.QueryContext(ctx, query, b.Args()...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit events: %w", err)
	}
	defer rows.Close()

	events := []*Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit events: %w", err)
	}
	return events, nil
}

// Cleanup deletes events older than before and returns how many were removed
func (s *PostgresStore) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM audit_events WHERE occurred_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up audit events: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count removed audit events: %w", err)
	}
	return n, nil
}

func scanEvent(rows *sql.Rows) (*Event, error) {
	var (
		e                                             Event
		userID, restaurantID                          sql.NullInt64
		role, resourceType, resourceID, ip, requestID sql.NullString
		method, path, message                         sql.NullString
		metadata                                      []byte
	)
	err := rows.Scan(&e.ID, &e.Timestamp, &e.EventType, &e.Status, &userID, &role, &restaurantID,
		&resourceType, &resourceID, &ip, &requestID, &method, &path, &message, &metadata)
	if err != nil {
		return nil, err
	}
	if userID.Valid {
		e.UserID = &userID.Int64
	}
	if restaurantID.Valid {
		e.RestaurantID = &restaurantID.Int64
	}
	e.Role = role.String
	e.ResourceType = resourceType.String
	e.ResourceID = resourceID.String
	e.IPAddress = ip.String
	e.RequestID = requestID.String
	e.Method = method.String
	e.Path = path.String
	e.Message = message.String
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode audit metadata: %w", err)
		}
	}
	return &e, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
