package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/platinummonkey/tablekeep/pkg/credentials"
	"github.com/platinummonkey/tablekeep/pkg/pagination"
	"github.com/platinummonkey/tablekeep/pkg/patch"
	"github.com/platinummonkey/tablekeep/pkg/rbac"
	"github.com/platinummonkey/tablekeep/pkg/tenancy"
)

const userColumns = `id, email, password_hash, first_name, last_name, role, restaurant_id,
		       is_active, last_login_at, created_at, updated_at`

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// PostgresService implements the user Service interface using PostgreSQL
type PostgresService struct {
	db     *sql.DB
	hasher credentials.Hasher
	now    func() time.Time

	decoyOnce   sync.Once
	decoyDigest string
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB, hasher credentials.Hasher) *PostgresService {
	if hasher == nil {
		hasher = credentials.NewArgon2Hasher()
	}
	return &PostgresService{db: db, hasher: hasher, now: time.Now}
}

// CreateUser hashes the password and inserts the user. The role/restaurant
// pairing must be valid and the target restaurant must be inside scope.
func (s *PostgresService) CreateUser(ctx context.Context, scope tenancy.Scope, req *CreateUserRequest) (*User, error) {
	if _, err := tenancy.ScopeFor(req.Role, req.RestaurantID); err != nil {
		return nil, err
	}
	if !scopeCovers(scope, req.RestaurantID) {
		return nil, tenancy.ErrNotFoundOrNotPermitted
	}

	digest, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	u := &User{
		Email:        req.Email,
		PasswordHash: digest,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         req.Role,
		RestaurantID: req.RestaurantID,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	query := `
		INSERT INTO users (email, password_hash, first_name, last_name, role, restaurant_id,
		                   is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	err = s.db.QueryRowContext(ctx, query,
		u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Role, u.RestaurantID,
		u.IsActive, u.CreatedAt, u.UpdatedAt,
	).Scan(&u.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %v", ErrEmailTaken, err)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return u, nil
}

// GetUser returns a user by id, or nil when not visible
func (s *PostgresService) GetUser(ctx context.Context, scope tenancy.Scope, id int64) (*User, error) {
	b := patch.NewBuilder()
	conds := scope.Restrict(b, "restaurant_id", []string{"id = " + b.Arg(id)})

	query := `SELECT ` + userColumns + ` FROM users WHERE ` + strings.Join(conds, " AND ")
	u, err := scanUser(s.db.QueryRowContext(ctx, query, b.Args()...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// ListUsers lists users visible to scope ordered by id
func (s *PostgresService) ListUsers(ctx context.Context, scope tenancy.Scope, page pagination.Page) ([]*User, error) {
	page = page.Normalize()
	b := patch.NewBuilder()
	where := ""
	if conds := scope.Restrict(b, "restaurant_id", nil); len(conds) > 0 {
		where = ` WHERE ` + strings.Join(conds, " AND ")
	}

	query := `SELECT ` + userColumns + ` FROM users` + where +
		` ORDER BY id LIMIT ` + b.Arg(page.Limit) + ` OFFSET ` + b.Arg(page.Offset)

	rows, err := s.db.QueryContext(ctx, query, b.Args()...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []*User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// UpdateUser applies a partial update. Changing role or restaurant re-checks
// the role/restaurant pairing against the locked current row.
func (s *PostgresService) UpdateUser(ctx context.Context, scope tenancy.Scope, id int64, req *UpdateUserRequest) (*User, error) {
	b := patch.NewBuilder()
	patch.Apply(b, "email", req.Email)
	if password, ok := req.Password.Get(); ok {
		digest, err := s.hasher.Hash(password)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		b.Add("password_hash", digest)
	}
	patch.Apply(b, "first_name", req.FirstName)
	patch.Apply(b, "last_name", req.LastName)
	patch.Apply(b, "is_active", req.IsActive)

	if !req.Role.Set && !req.RestaurantID.Set {
		b.Add("updated_at", s.now())
		return s.update(ctx, s.db, scope, id, b)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	lb := patch.NewBuilder()
	conds := scope.Restrict(lb, "restaurant_id", []string{"id = " + lb.Arg(id)})
	var role rbac.Role
	var current sql.NullInt64
	err = tx.QueryRowContext(ctx,
		`SELECT role, restaurant_id FROM users WHERE `+strings.Join(conds, " AND ")+` FOR UPDATE`,
		lb.Args()...,
	).Scan(&role, &current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tenancy.ErrNotFoundOrNotPermitted
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock user: %w", err)
	}

	if v, ok := req.Role.Get(); ok {
		role = v
	}
	var restaurantID *int64
	if current.Valid {
		restaurantID = &current.Int64
	}
	if req.RestaurantID.Set {
		restaurantID = req.RestaurantID.Value
	}
	if _, err := tenancy.ScopeFor(role, restaurantID); err != nil {
		return nil, err
	}
	if !scopeCovers(scope, restaurantID) {
		return nil, tenancy.ErrNotFoundOrNotPermitted
	}

	patch.Apply(b, "role", req.Role)
	patch.Apply(b, "restaurant_id", req.RestaurantID)
	b.Add("updated_at", s.now())

	u, err := s.update(ctx, tx, scope, id, b)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit user update: %w", err)
	}
	return u, nil
}

// DeactivateUser disables login for a user
func (s *PostgresService) DeactivateUser(ctx context.Context, scope tenancy.Scope, id int64) error {
	_, err := s.UpdateUser(ctx, scope, id, &UpdateUserRequest{IsActive: patch.Some(false)})
	return err
}

func (s *PostgresService) update(ctx context.Context, q queryRower, scope tenancy.Scope, id int64, b *patch.Builder) (*User, error) {
	conds := scope.Restrict(b, "restaurant_id", []string{"id = " + b.Arg(id)})
	query := `UPDATE users SET ` + strings.Join(b.Clauses(), ", ") +
		` WHERE ` + strings.Join(conds, " AND ") +
		` RETURNING ` + userColumns

	u, err := scanUser(q.QueryRowContext(ctx, query, b.Args()...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tenancy.ErrNotFoundOrNotPermitted
	}
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %v", ErrEmailTaken, err)
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return u, nil
}

// Authenticate returns the active user whose email matches exactly and whose
// password verifies. Every other outcome short of a store failure is (nil, nil).
func (s *PostgresService) Authenticate(ctx context.Context, email, password string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	u, err := scanUser(s.db.QueryRowContext(ctx, query, email))
	if errors.Is(err, sql.ErrNoRows) {
		// spend the same hashing time as a real check
		s.hasher.Verify(password, s.decoy())
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if !s.hasher.Verify(password, u.PasswordHash) || !u.IsActive {
		return nil, nil
	}

	now := s.now()
	if _, err := s.db.ExecContext(ctx, `UPDATE users SET last_login_at = $1 WHERE id = $2`, now, u.ID); err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}
	u.LastLoginAt = &now

	return u, nil
}

// fallbackDecoyDigest is a well-formed digest that matches no password
const fallbackDecoyDigest = "00000000000000000000000000000000:" +
	"0000000000000000000000000000000000000000000000000000000000000000"

func (s *PostgresService) decoy() string {
	s.decoyOnce.Do(func() {
		s.decoyDigest = fallbackDecoyDigest
		if digest, err := s.hasher.Hash("decoy-password"); err == nil {
			s.decoyDigest = digest
		}
	})
	return s.decoyDigest
}

// scopeCovers reports whether scope may place a user at restaurantID; only
// the global scope may manage users without a restaurant.
func scopeCovers(scope tenancy.Scope, restaurantID *int64) bool {
	if restaurantID == nil {
		return scope.IsGlobal()
	}
	return scope.Allows(*restaurantID)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*User, error) {
	var u User
	var restaurantID sql.NullInt64
	var lastLogin sql.NullTime

	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Role, &restaurantID,
		&u.IsActive, &lastLogin, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if restaurantID.Valid {
		u.RestaurantID = &restaurantID.Int64
	}
	if lastLogin.Valid {
		u.LastLoginAt = &lastLogin.Time
	}
	return &u, nil
}
