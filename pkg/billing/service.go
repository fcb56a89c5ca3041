package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/platinummonkey/tablekeep/pkg/pagination"
	"github.com/platinummonkey/tablekeep/pkg/patch"
	"github.com/platinummonkey/tablekeep/pkg/tenancy"
	"github.com/platinummonkey/tablekeep/pkg/validation"
)

const subscriptionColumns = `id, restaurant_id, tier, status, external_customer_id, external_subscription_id,
		       current_period_start, current_period_end, created_at, updated_at`

// Querier is satisfied by *sql.DB and *sql.Tx
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// PostgresService implements the billing Service interface using PostgreSQL
type PostgresService struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db, now: time.Now}
}

// CreateDefaultSubscription inserts the FREE/ACTIVE subscription every new
// restaurant starts with. It runs on q so callers can include it in their own
// transaction.
func CreateDefaultSubscription(ctx context.Context, q Querier, restaurantID int64, now time.Time) (*Subscription, error) {
	sub := &Subscription{
		RestaurantID: restaurantID,
		Tier:         TierFree,
		Status:       StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := insertSubscription(ctx, q, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// CreateSubscription creates a subscription for an existing restaurant
func (s *PostgresService) CreateSubscription(ctx context.Context, scope tenancy.Scope, req *CreateSubscriptionRequest) (*Subscription, error) {
	if !req.Tier.Valid() {
		return nil, fmt.Errorf("%w: unknown tier %q", validation.ErrInvalid, req.Tier)
	}
	status := req.Status
	if status == "" {
		status = StatusActive
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", validation.ErrInvalid, status)
	}
	// out-of-scope restaurants are reported exactly like missing ones
	if !scope.Allows(req.RestaurantID) {
		return nil, ErrRestaurantNotFound
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	// the row lock serializes concurrent creates for the same restaurant
	var locked int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM restaurants WHERE id = $1 AND is_active = TRUE FOR UPDATE`, req.RestaurantID,
	).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRestaurantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock restaurant: %w", err)
	}

	now := s.now()
	if status.IsLive() {
		_, err = tx.ExecContext(ctx, `
			UPDATE subscriptions
			SET status = $1, updated_at = $2
			WHERE restaurant_id = $3 AND status IN ('ACTIVE', 'TRIALING')
		`, StatusCanceled, now, req.RestaurantID)
		if err != nil {
			return nil, fmt.Errorf("failed to cancel previous subscription: %w", err)
		}
	}

	start, end := Period(req.Tier, now)
	sub := &Subscription{
		RestaurantID:           req.RestaurantID,
		Tier:                   req.Tier,
		Status:                 status,
		ExternalCustomerID:     req.ExternalCustomerID,
		ExternalSubscriptionID: req.ExternalSubscriptionID,
		CurrentPeriodStart:     start,
		CurrentPeriodEnd:       end,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := insertSubscription(ctx, tx, sub); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrLiveSubscriptionExists
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit subscription: %w", err)
	}

	return sub, nil
}

func insertSubscription(ctx context.Context, q Querier, sub *Subscription) error {
	query := `
		INSERT INTO subscriptions (restaurant_id, tier, status, external_customer_id, external_subscription_id,
		                           current_period_start, current_period_end, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	err := q.QueryRowContext(ctx, query,
		sub.RestaurantID, sub.Tier, sub.Status, sub.ExternalCustomerID, sub.ExternalSubscriptionID,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CreatedAt, sub.UpdatedAt,
	).Scan(&sub.ID)
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

// GetSubscription returns a subscription by id, or nil when not visible
func (s *PostgresService) GetSubscription(ctx context.Context, scope tenancy.Scope, id int64) (*Subscription, error) {
	b := patch.NewBuilder()
	conds := scope.Restrict(b, "restaurant_id", []string{"id = " + b.Arg(id)})

	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE ` + strings.Join(conds, " AND ")
	sub, err := scanSubscription(s.db.QueryRowContext(ctx, query, b.Args()...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

// GetSubscriptionForRestaurant returns the newest subscription of a restaurant
func (s *PostgresService) GetSubscriptionForRestaurant(ctx context.Context, scope tenancy.Scope, restaurantID int64) (*Subscription, error) {
	if !scope.Allows(restaurantID) {
		return nil, nil
	}

	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE restaurant_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	sub, err := scanSubscription(s.db.QueryRowContext(ctx, query, restaurantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get restaurant subscription: %w", err)
	}
	return sub, nil
}

// ListSubscriptions lists subscriptions visible to scope, newest first
func (s *PostgresService) ListSubscriptions(ctx context.Context, scope tenancy.Scope, page pagination.Page) ([]*Subscription, error) {
	page = page.Normalize()
	b := patch.NewBuilder()
	conds := scope.Restrict(b, "restaurant_id", []string{"1 = 1"})

	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE ` + strings.Join(conds, " AND ") +
		` ORDER BY created_at DESC, id DESC LIMIT ` + b.Arg(page.Limit) + ` OFFSET ` + b.Arg(page.Offset)

	rows, err := s.db.QueryContext(ctx, query, b.Args()...)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	subs := []*Subscription{}
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate subscriptions: %w", err)
	}
	return subs, nil
}

// UpdateSubscription applies a partial update. Changing the tier restarts the
// billing period (or clears it for FREE).
func (s *PostgresService) UpdateSubscription(ctx context.Context, scope tenancy.Scope, id int64, req *UpdateSubscriptionRequest) (*Subscription, error) {
	if req.Tier.IsNull() || req.Status.IsNull() {
		return nil, fmt.Errorf("%w: tier and status cannot be null", validation.ErrInvalid)
	}
	if tier, ok := req.Tier.Get(); ok && !tier.Valid() {
		return nil, fmt.Errorf("%w: unknown tier %q", validation.ErrInvalid, tier)
	}
	if status, ok := req.Status.Get(); ok && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", validation.ErrInvalid, status)
	}

	now := s.now()
	b := patch.NewBuilder()
	if tier, ok := req.Tier.Get(); ok {
		start, end := Period(tier, now)
		b.Add("tier", tier)
		b.Add("current_period_start", start)
		b.Add("current_period_end", end)
	}
	patch.Apply(b, "status", req.Status)
	patch.Apply(b, "external_customer_id", req.ExternalCustomerID)
	patch.Apply(b, "external_subscription_id", req.ExternalSubscriptionID)
	b.Add("updated_at", now)

	conds := scope.Restrict(b, "restaurant_id", []string{"id = " + b.Arg(id)})
	query := `UPDATE subscriptions SET ` + strings.Join(b.Clauses(), ", ") +
		` WHERE ` + strings.Join(conds, " AND ") +
		` RETURNING ` + subscriptionColumns

	sub, err := scanSubscription(s.db.QueryRowContext(ctx, query, b.Args()...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tenancy.ErrNotFoundOrNotPermitted
	}
	if isUniqueViolation(err) {
		return nil, ErrLiveSubscriptionExists
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update subscription: %w", err)
	}
	return sub, nil
}

// MarkExpiredPastDue moves ACTIVE paid subscriptions whose period ended before
// now to PAST_DUE and returns how many changed.
func (s *PostgresService) MarkExpiredPastDue(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE subscriptions
		SET status = $1, updated_at = $2
		WHERE status = $3
		  AND tier <> $4
		  AND current_period_end IS NOT NULL
		  AND current_period_end < $2
	`
	result, err := s.db.ExecContext(ctx, query, StatusPastDue, now, StatusActive, TierFree)
	if err != nil {
		return 0, fmt.Errorf("failed to mark expired subscriptions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count expired subscriptions: %w", err)
	}
	return n, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSubscription(row rowScanner) (*Subscription, error) {
	var sub Subscription
	var externalCustomerID, externalSubscriptionID sql.NullString
	var periodStart, periodEnd sql.NullTime

	err := row.Scan(
		&sub.ID, &sub.RestaurantID, &sub.Tier, &sub.Status,
		&externalCustomerID, &externalSubscriptionID,
		&periodStart, &periodEnd, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if externalCustomerID.Valid {
		sub.ExternalCustomerID = &externalCustomerID.String
	}
	if externalSubscriptionID.Valid {
		sub.ExternalSubscriptionID = &externalSubscriptionID.String
	}
	if periodStart.Valid {
		sub.CurrentPeriodStart = &periodStart.Time
	}
	if periodEnd.Valid {
		sub.CurrentPeriodEnd = &periodEnd.Time
	}
	return &sub, nil
}
