package restaurants

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/tablekeep/pkg/billing"
	"github.com/platinummonkey/tablekeep/pkg/pagination"
	"github.com/platinummonkey/tablekeep/pkg/patch"
	"github.com/platinummonkey/tablekeep/pkg/tenancy"
)

const restaurantColumns = `id, name, description, email, phone, address, logo_url, brand_color,
		       is_active, created_at, updated_at`

// PostgresService implements the restaurant Service interface using PostgreSQL
type PostgresService struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db, now: time.Now}
}

// CreateRestaurant inserts an active restaurant and its default FREE/ACTIVE
// subscription in one transaction.
func (s *PostgresService) CreateRestaurant(ctx context.Context, req *CreateRestaurantRequest) (*Restaurant, error) {
	now := s.now()
	r := &Restaurant{
		Name:        req.Name,
		Description: req.Description,
		Email:       req.Email,
		Phone:       req.Phone,
		Address:     req.Address,
		LogoURL:     req.LogoURL,
		BrandColor:  req.BrandColor,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO restaurants (name, description, email, phone, address, logo_url, brand_color,
		                         is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`
	err = tx.QueryRowContext(ctx, query,
		r.Name, r.Description, r.Email, r.Phone, r.Address, r.LogoURL, r.BrandColor,
		r.IsActive, r.CreatedAt, r.UpdatedAt,
	).Scan(&r.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create restaurant: %w", err)
	}

	sub, err := billing.CreateDefaultSubscription(ctx, tx, r.ID, now)
	if err != nil {
		return nil, err
	}
	r.Subscription = sub

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit restaurant: %w", err)
	}

	return r, nil
}

// GetRestaurant returns an active restaurant, or nil when not visible
func (s *PostgresService) GetRestaurant(ctx context.Context, scope tenancy.Scope, id int64) (*Restaurant, error) {
	b := patch.NewBuilder()
	conds := scope.Restrict(b, "id", []string{"id = " + b.Arg(id), "is_active = TRUE"})

	query := `SELECT ` + restaurantColumns + ` FROM restaurants WHERE ` + strings.Join(conds, " AND ")
	r, err := scanRestaurant(s.db.QueryRowContext(ctx, query, b.Args()...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get restaurant: %w", err)
	}
	return r, nil
}

// ListRestaurants lists active restaurants visible to scope, ordered by id
func (s *PostgresService) ListRestaurants(ctx context.Context, scope tenancy.Scope, page pagination.Page) ([]*Restaurant, error) {
	page = page.Normalize()
	b := patch.NewBuilder()
	conds := scope.Restrict(b, "id", []string{"is_active = TRUE"})

	query := `SELECT ` + restaurantColumns + ` FROM restaurants WHERE ` + strings.Join(conds, " AND ") +
		` ORDER BY id LIMIT ` + b.Arg(page.Limit) + ` OFFSET ` + b.Arg(page.Offset)

	rows, err := s.db.QueryContext(ctx, query, b.Args()...)
	if err != nil {
		return nil, fmt.Errorf("failed to list restaurants: %w", err)
	}
	defer rows.Close()

	restaurants := []*Restaurant{}
	for rows.Next() {
		r, err := scanRestaurant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan restaurant: %w", err)
		}
		restaurants = append(restaurants, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate restaurants: %w", err)
	}
	return restaurants, nil
}

// UpdateRestaurant applies a partial update and always bumps updated_at
func (s *PostgresService) UpdateRestaurant(ctx context.Context, scope tenancy.Scope, id int64, req *UpdateRestaurantRequest) (*Restaurant, error) {
	b := patch.NewBuilder()
	patch.Apply(b, "name", req.Name)
	patch.Apply(b, "description", req.Description)
	patch.Apply(b, "email", req.Email)
	patch.Apply(b, "phone", req.Phone)
	patch.Apply(b, "address", req.Address)
	patch.Apply(b, "logo_url", req.LogoURL)
	patch.Apply(b, "brand_color", req.BrandColor)
	patch.Apply(b, "is_active", req.IsActive)
	b.Add("updated_at", s.now())

	conds := scope.Restrict(b, "id", []string{"id = " + b.Arg(id)})
	query := `UPDATE restaurants SET ` + strings.Join(b.Clauses(), ", ") +
		` WHERE ` + strings.Join(conds, " AND ") +
		` RETURNING ` + restaurantColumns

	r, err := scanRestaurant(s.db.QueryRowContext(ctx, query, b.Args()...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tenancy.ErrNotFoundOrNotPermitted
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update restaurant: %w", err)
	}
	return r, nil
}

// DeactivateRestaurant hides a restaurant from every read path
func (s *PostgresService) DeactivateRestaurant(ctx context.Context, scope tenancy.Scope, id int64) error {
	_, err := s.UpdateRestaurant(ctx, scope, id, &UpdateRestaurantRequest{IsActive: patch.Some(false)})
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRestaurant(row rowScanner) (*Restaurant, error) {
	var r Restaurant
	var description, phone, address, logoURL, brandColor sql.NullString

	err := row.Scan(
		&r.ID, &r.Name, &description, &r.Email, &phone, &address, &logoURL, &brandColor,
		&r.IsActive, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Description = nullString(description)
	r.Phone = nullString(phone)
	r.Address = nullString(address)
	r.LogoURL = nullString(logoURL)
	r.BrandColor = nullString(brandColor)
	return &r, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
