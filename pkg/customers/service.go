package customers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/tablekeep/pkg/pagination"
	"github.com/platinummonkey/tablekeep/pkg/patch"
	"github.com/platinummonkey/tablekeep/pkg/tenancy"
)

const customerColumns = `id, restaurant_id, first_name, last_name, email, phone, date_of_birth,
		       loyalty_points, total_visits, last_visit_date, notes, is_active, created_at, updated_at`

// PostgresService implements the customer Service interface using PostgreSQL
type PostgresService struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db, now: time.Now}
}

// CreateCustomer inserts a customer with zeroed loyalty counters
func (s *PostgresService) CreateCustomer(ctx context.Context, scope tenancy.Scope, req *CreateCustomerRequest) (*Customer, error) {
	if !scope.Allows(req.RestaurantID) {
		return nil, tenancy.ErrNotFoundOrNotPermitted
	}

	now := s.now()
	c := &Customer{
		RestaurantID:  req.RestaurantID,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Email:         req.Email,
		Phone:         req.Phone,
		DateOfBirth:   req.DateOfBirth,
		LoyaltyPoints: 0,
		TotalVisits:   0,
		LastVisitDate: nil,
		Notes:         req.Notes,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	query := `
		INSERT INTO customers (restaurant_id, first_name, last_name, email, phone, date_of_birth,
		                       loyalty_points, total_visits, last_visit_date, notes, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		c.RestaurantID, c.FirstName, c.LastName, c.Email, c.Phone, c.DateOfBirth,
		c.LoyaltyPoints, c.TotalVisits, c.LastVisitDate, c.Notes, c.IsActive, c.CreatedAt, c.UpdatedAt,
	).Scan(&c.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}

	return c, nil
}

// GetCustomer returns a customer by id, or nil when not visible
func (s *PostgresService) GetCustomer(ctx context.Context, scope tenancy.Scope, id int64) (*Customer, error) {
	b := patch.NewBuilder()
	conds := scope.Restrict(b, "restaurant_id", []string{"id = " + b.Arg(id)})

	query := `SELECT ` + customerColumns + ` FROM customers WHERE ` + strings.Join(conds, " AND ")
	c, err := scanCustomer(s.db.QueryRowContext(ctx, query, b.Args()...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return c, nil
}

// ListCustomers lists customers visible to scope, newest first
func (s *PostgresService) ListCustomers(ctx context.Context, scope tenancy.Scope, page pagination.Page) ([]*Customer, error) {
	page = page.Normalize()
	b := patch.NewBuilder()
	where := ""
	if conds := scope.Restrict(b, "restaurant_id", nil); len(conds) > 0 {
		where = ` WHERE ` + strings.Join(conds, " AND ")
	}

	query := `SELECT ` + customerColumns + ` FROM customers` + where +
		` ORDER BY created_at DESC, id DESC LIMIT ` + b.Arg(page.Limit) + ` OFFSET ` + b.Arg(page.Offset)

	rows, err := s.db.QueryContext(ctx, query, b.Args()...)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	defer rows.Close()

	customers := []*Customer{}
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate customers: %w", err)
	}
	return customers, nil
}

// UpdateCustomer applies a partial update in a single statement filtered by
// id and tenant, so a row moved to another tenant can never be written.
func (s *PostgresService) UpdateCustomer(ctx context.Context, scope tenancy.Scope, id int64, req *UpdateCustomerRequest) (*Customer, error) {
	b := patch.NewBuilder()
	patch.Apply(b, "first_name", req.FirstName)
	patch.Apply(b, "last_name", req.LastName)
	patch.Apply(b, "email", req.Email)
	patch.Apply(b, "phone", req.Phone)
	patch.Apply(b, "date_of_birth", req.DateOfBirth)
	patch.Apply(b, "loyalty_points", req.LoyaltyPoints)
	patch.Apply(b, "total_visits", req.TotalVisits)
	patch.Apply(b, "last_visit_date", req.LastVisitDate)
	patch.Apply(b, "notes", req.Notes)
	patch.Apply(b, "is_active", req.IsActive)
	b.Add("updated_at", s.now())

	return s.update(ctx, scope, id, b, "failed to update customer")
}

// RecordVisit bumps total_visits, adds earned points and stamps last_visit_date
func (s *PostgresService) RecordVisit(ctx context.Context, scope tenancy.Scope, id int64, req *RecordVisitRequest) (*Customer, error) {
	now := s.now()
	b := patch.NewBuilder()
	b.AddRaw("total_visits = total_visits + 1")
	b.AddRaw("loyalty_points = loyalty_points + " + b.Arg(req.PointsEarned))
	b.Add("last_visit_date", now)
	b.Add("updated_at", now)

	return s.update(ctx, scope, id, b, "failed to record visit")
}

// DeactivateCustomer soft-deletes a customer
func (s *PostgresService) DeactivateCustomer(ctx context.Context, scope tenancy.Scope, id int64) error {
	_, err := s.UpdateCustomer(ctx, scope, id, &UpdateCustomerRequest{IsActive: patch.Some(false)})
	return err
}

func (s *PostgresService) update(ctx context.Context, scope tenancy.Scope, id int64, b *patch.Builder, failure string) (*Customer, error) {
	conds := scope.Restrict(b, "restaurant_id", []string{"id = " + b.Arg(id)})
	query := `UPDATE customers SET ` + strings.Join(b.Clauses(), ", ") +
		` WHERE ` + strings.Join(conds, " AND ") +
		` RETURNING ` + customerColumns

	c, err := scanCustomer(s.db.QueryRowContext(ctx, query, b.Args()...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tenancy.ErrNotFoundOrNotPermitted
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", failure, err)
	}
	return c, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCustomer(row rowScanner) (*Customer, error) {
	var c Customer
	var email, phone, notes sql.NullString
	var dateOfBirth, lastVisit sql.NullTime

	err := row.Scan(
		&c.ID, &c.RestaurantID, &c.FirstName, &c.LastName, &email, &phone, &dateOfBirth,
		&c.LoyaltyPoints, &c.TotalVisits, &lastVisit, &notes, &c.IsActive, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if email.Valid {
		c.Email = &email.String
	}
	if phone.Valid {
		c.Phone = &phone.String
	}
	if notes.Valid {
		c.Notes = &notes.String
	}
	if dateOfBirth.Valid {
		c.DateOfBirth = &dateOfBirth.Time
	}
	if lastVisit.Valid {
		c.LastVisitDate = &lastVisit.Time
	}
	return &c, nil
}
