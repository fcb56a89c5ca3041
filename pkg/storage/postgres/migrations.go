package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/tablekeep/pkg/observability"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns the schema migrations in order
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create restaurants table",
			SQL: `
				CREATE TABLE IF NOT EXISTS restaurants (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					description TEXT,
					email VARCHAR(255) NOT NULL,
					phone VARCHAR(50),
					address TEXT,
					logo_url TEXT,
					brand_color VARCHAR(7),
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_restaurants_is_active ON restaurants(is_active);
			`,
		},
		{
			Version:     2,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					email VARCHAR(255) NOT NULL UNIQUE,
					password_hash TEXT NOT NULL,
					first_name VARCHAR(100) NOT NULL,
					last_name VARCHAR(100) NOT NULL,
					role VARCHAR(32) NOT NULL
						CHECK (role IN ('SUPER_ADMIN', 'RESTAURANT_OWNER', 'MANAGER', 'STAFF')),
					restaurant_id BIGINT REFERENCES restaurants(id) ON DELETE RESTRICT,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					last_login_at TIMESTAMPTZ,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					CONSTRAINT users_role_tenant_pairing
						CHECK ((role = 'SUPER_ADMIN') = (restaurant_id IS NULL))
				);

				CREATE INDEX IF NOT EXISTS idx_users_restaurant_id ON users(restaurant_id);
			`,
		},
		{
			Version:     3,
			Description: "Create customers table",
			SQL: `
				CREATE TABLE IF NOT EXISTS customers (
					id BIGSERIAL PRIMARY KEY,
					restaurant_id BIGINT NOT NULL REFERENCES restaurants(id) ON DELETE RESTRICT,
					first_name VARCHAR(100) NOT NULL,
					last_name VARCHAR(100) NOT NULL,
					email VARCHAR(255),
					phone VARCHAR(50),
					date_of_birth DATE,
					loyalty_points INT NOT NULL DEFAULT 0 CHECK (loyalty_points >= 0),
					total_visits INT NOT NULL DEFAULT 0 CHECK (total_visits >= 0),
					last_visit_date TIMESTAMPTZ,
					notes TEXT,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_customers_restaurant_created
					ON customers(restaurant_id, created_at DESC, id DESC);
			`,
		},
		{
			Version:     4,
			Description: "Create subscriptions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS subscriptions (
					id BIGSERIAL PRIMARY KEY,
					restaurant_id BIGINT NOT NULL REFERENCES restaurants(id) ON DELETE CASCADE,
					tier VARCHAR(32) NOT NULL CHECK (tier IN ('FREE', 'BASIC', 'PROFESSIONAL')),
					status VARCHAR(32) NOT NULL
						CHECK (status IN ('ACTIVE', 'INACTIVE', 'PAST_DUE', 'CANCELED', 'TRIALING')),
					external_customer_id VARCHAR(255),
					external_subscription_id VARCHAR(255),
					current_period_start TIMESTAMPTZ,
					current_period_end TIMESTAMPTZ,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_subscriptions_restaurant_id ON subscriptions(restaurant_id, created_at DESC);
				CREATE INDEX IF NOT EXISTS idx_subscriptions_period_end ON subscriptions(status, current_period_end);
			`,
		},
		{
			Version:     5,
			Description: "Create permissions and role_permissions tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS permissions (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(64) NOT NULL UNIQUE,
					resource VARCHAR(32) NOT NULL,
					action VARCHAR(32) NOT NULL,
					description TEXT,
					UNIQUE(resource, action)
				);

				CREATE TABLE IF NOT EXISTS role_permissions (
					id BIGSERIAL PRIMARY KEY,
					role VARCHAR(32) NOT NULL
						CHECK (role IN ('SUPER_ADMIN', 'RESTAURANT_OWNER', 'MANAGER', 'STAFF')),
					permission_id BIGINT NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,
					UNIQUE(role, permission_id)
				);
			`,
		},
		{
			Version:     6,
			Description: "Create audit_events table",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_events (
					id BIGSERIAL PRIMARY KEY,
					occurred_at TIMESTAMPTZ NOT NULL,
					event_type VARCHAR(64) NOT NULL,
					status VARCHAR(16) NOT NULL,
					user_id BIGINT,
					role VARCHAR(32),
					restaurant_id BIGINT,
					resource_type VARCHAR(32),
					resource_id VARCHAR(64),
					ip_address VARCHAR(45),
					request_id VARCHAR(64),
					method VARCHAR(10),
					path TEXT,
					message TEXT,
					metadata JSONB
				);

				CREATE INDEX IF NOT EXISTS idx_audit_events_occurred_at ON audit_events(occurred_at DESC);
				CREATE INDEX IF NOT EXISTS idx_audit_events_restaurant ON audit_events(restaurant_id, occurred_at DESC);
				CREATE INDEX IF NOT EXISTS idx_audit_events_type ON audit_events(event_type);
			`,
		},
		{
			Version:     7,
			Description: "Allow one live subscription per restaurant",
			SQL: `
				UPDATE subscriptions s
				SET status = 'CANCELED', updated_at = NOW()
				WHERE s.status IN ('ACTIVE', 'TRIALING')
				  AND EXISTS (
					SELECT 1 FROM subscriptions n
					WHERE n.restaurant_id = s.restaurant_id
					  AND n.status IN ('ACTIVE', 'TRIALING')
					  AND (n.created_at, n.id) > (s.created_at, s.id)
				  );

				CREATE UNIQUE INDEX IF NOT EXISTS idx_subscriptions_one_live
					ON subscriptions(restaurant_id) WHERE status IN ('ACTIVE', 'TRIALING');
			`,
		},
	}
}

// RunMigrations applies pending migrations, each in its own transaction
func RunMigrations(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}

	for _, migration := range GetMigrations() {
		if applied[migration.Version] {
			continue
		}

		logger.WithField("version", migration.Version).Infof("Running migration: %s", migration.Description)

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	return applied, rows.Err()
}
