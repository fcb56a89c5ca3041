package postgres

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/platinummonkey/tablekeep/pkg/audit"
	"github.com/platinummonkey/tablekeep/pkg/billing"
	"github.com/platinummonkey/tablekeep/pkg/credentials"
	"github.com/platinummonkey/tablekeep/pkg/customers"
	"github.com/platinummonkey/tablekeep/pkg/pagination"
	"github.com/platinummonkey/tablekeep/pkg/patch"
	"github.com/platinummonkey/tablekeep/pkg/rbac"
	"github.com/platinummonkey/tablekeep/pkg/restaurants"
	"github.com/platinummonkey/tablekeep/pkg/tenancy"
	"github.com/platinummonkey/tablekeep/pkg/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgresContainer(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("Docker not available, skipping integration tests")
	}
	provider.Close()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("tablekeep_test"),
		tcpostgres.WithUsername("tablekeep"),
		tcpostgres.WithPassword("tablekeep_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		container.Terminate(cleanupCtx)
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cm, err := NewConnectionManager(ConnectionConfig{URL: connStr})
	require.NoError(t, err)
	t.Cleanup(func() { cm.Close() })

	require.NoError(t, RunMigrations(ctx, cm.Primary(), testLogger()))
	// a second run is a no-op
	require.NoError(t, RunMigrations(ctx, cm.Primary(), testLogger()))

	return cm.Primary()
}

func TestPostgresIntegration(t *testing.T) {
	db := setupPostgresContainer(t)
	ctx := context.Background()

	t.Run("permission seeding is idempotent", func(t *testing.T) {
		store := rbac.NewStore(db)
		first, err := store.AssignDefaultRolePermissions(ctx)
		require.NoError(t, err)
		second, err := store.AssignDefaultRolePermissions(ctx)
		require.NoError(t, err)
		assert.Equal(t, first, second)

		staff, err := store.PermissionsForRole(ctx, rbac.RoleStaff)
		require.NoError(t, err)
		assert.Len(t, staff, len(rbac.DefaultPermissionNames(rbac.RoleStaff)))
	})

	restaurantSvc := restaurants.NewPostgresService(db)
	customerSvc := customers.NewPostgresService(db)
	billingSvc := billing.NewPostgresService(db)
	hasher := credentials.NewArgon2HasherWithParams(credentials.Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32})
	userSvc := users.NewPostgresService(db, hasher)

	a, err := restaurantSvc.CreateRestaurant(ctx, &restaurants.CreateRestaurantRequest{Name: "Alpha", Email: "a@alpha.test"})
	require.NoError(t, err)
	b, err := restaurantSvc.CreateRestaurant(ctx, &restaurants.CreateRestaurantRequest{Name: "Bravo", Email: "b@bravo.test"})
	require.NoError(t, err)

	t.Run("restaurant gets a default subscription", func(t *testing.T) {
		sub, err := billingSvc.GetSubscriptionForRestaurant(ctx, tenancy.Global(), a.ID)
		require.NoError(t, err)
		require.NotNil(t, sub)
		assert.Equal(t, billing.TierFree, sub.Tier)
		assert.Equal(t, billing.StatusActive, sub.Status)
	})

	t.Run("customers are isolated per restaurant", func(t *testing.T) {
		scopeA := tenancy.ForRestaurant(a.ID)
		scopeB := tenancy.ForRestaurant(b.ID)

		c, err := customerSvc.CreateCustomer(ctx, scopeA, &customers.CreateCustomerRequest{
			RestaurantID: a.ID, FirstName: "Ada", LastName: "Lovelace",
		})
		require.NoError(t, err)

		got, err := customerSvc.GetCustomer(ctx, scopeB, c.ID)
		require.NoError(t, err)
		assert.Nil(t, got)

		_, err = customerSvc.UpdateCustomer(ctx, scopeB, c.ID, &customers.UpdateCustomerRequest{FirstName: patch.Some("Eve")})
		assert.ErrorIs(t, err, tenancy.ErrNotFoundOrNotPermitted)

		visited, err := customerSvc.RecordVisit(ctx, scopeA, c.ID, &customers.RecordVisitRequest{PointsEarned: 15})
		require.NoError(t, err)
		assert.Equal(t, 1, visited.TotalVisits)
		assert.Equal(t, 15, visited.LoyaltyPoints)

		listB, err := customerSvc.ListCustomers(ctx, scopeB, pagination.Default())
		require.NoError(t, err)
		assert.Empty(t, listB)
	})

	t.Run("users authenticate and collide on email", func(t *testing.T) {
		owner, err := userSvc.CreateUser(ctx, tenancy.Global(), &users.CreateUserRequest{
			Email: "owner@alpha.test", Password: "correct horse", FirstName: "O", LastName: "Wner",
			Role: rbac.RoleRestaurantOwner, RestaurantID: &a.ID,
		})
		require.NoError(t, err)

		_, err = userSvc.CreateUser(ctx, tenancy.Global(), &users.CreateUserRequest{
			Email: "owner@alpha.test", Password: "another pass", FirstName: "D", LastName: "Up",
			Role: rbac.RoleStaff, RestaurantID: &a.ID,
		})
		assert.ErrorIs(t, err, users.ErrEmailTaken)

		got, err := userSvc.Authenticate(ctx, "owner@alpha.test", "correct horse")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, owner.ID, got.ID)
		assert.NotNil(t, got.LastLoginAt)

		got, err = userSvc.Authenticate(ctx, "owner@alpha.test", "wrong")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("role pairing is enforced by the schema", func(t *testing.T) {
		_, err := db.ExecContext(ctx, `
			INSERT INTO users (email, password_hash, first_name, last_name, role, restaurant_id)
			VALUES ('bad@t.test', 'x', 'B', 'Ad', 'SUPER_ADMIN', $1)`, a.ID)
		assert.Error(t, err)
	})

	t.Run("concurrent creates leave one live subscription", func(t *testing.T) {
		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := billingSvc.CreateSubscription(ctx, tenancy.ForRestaurant(b.ID), &billing.CreateSubscriptionRequest{
					RestaurantID: b.ID, Tier: billing.TierBasic,
				})
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		var live int
		require.NoError(t, db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM subscriptions WHERE restaurant_id = $1 AND status IN ('ACTIVE', 'TRIALING')`, b.ID,
		).Scan(&live))
		assert.Equal(t, 1, live)

		var canceled int64
		require.NoError(t, db.QueryRowContext(ctx,
			`SELECT id FROM subscriptions WHERE restaurant_id = $1 AND status = 'CANCELED' LIMIT 1`, b.ID,
		).Scan(&canceled))
		_, err := billingSvc.UpdateSubscription(ctx, tenancy.Global(), canceled, &billing.UpdateSubscriptionRequest{
			Status: patch.Some(billing.StatusActive),
		})
		assert.ErrorIs(t, err, billing.ErrLiveSubscriptionExists)
	})

	t.Run("deactivated restaurant takes no subscription", func(t *testing.T) {
		c, err := restaurantSvc.CreateRestaurant(ctx, &restaurants.CreateRestaurantRequest{Name: "Charlie", Email: "c@charlie.test"})
		require.NoError(t, err)
		require.NoError(t, restaurantSvc.DeactivateRestaurant(ctx, tenancy.Global(), c.ID))

		sub, err := billingSvc.CreateSubscription(ctx, tenancy.Global(), &billing.CreateSubscriptionRequest{
			RestaurantID: c.ID, Tier: billing.TierBasic,
		})
		assert.Nil(t, sub)
		assert.ErrorIs(t, err, billing.ErrRestaurantNotFound)
	})

	t.Run("audit events are searchable per tenant", func(t *testing.T) {
		store := audit.NewPostgresStore(db)
		for _, id := range []int64{a.ID, b.ID} {
			restaurantID := id
			event := audit.NewEvent(audit.EventTypeScopeMiss, audit.StatusDenied).WithMetadata("entity", "customer")
			event.RestaurantID = &restaurantID
			require.NoError(t, store.Log(ctx, event))
			assert.NotZero(t, event.ID)
		}

		mine, err := store.Search(ctx, tenancy.ForRestaurant(a.ID), audit.Filter{})
		require.NoError(t, err)
		require.Len(t, mine, 1)
		assert.Equal(t, "customer", mine[0].Metadata["entity"])

		all, err := store.Search(ctx, tenancy.Global(), audit.Filter{EventTypes: []audit.EventType{audit.EventTypeScopeMiss}})
		require.NoError(t, err)
		assert.Len(t, all, 2)

		removed, err := store.Cleanup(ctx, time.Now().Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(2), removed)
	})
}
