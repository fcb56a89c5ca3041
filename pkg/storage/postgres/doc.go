// Package postgres owns the PostgreSQL connection pool, the schema
// migrations and the Redis client constructor.
//
//	cm, err := postgres.NewConnectionManager(postgres.ConnectionConfig{URL: cfg.Database.URL})
//	if err := postgres.RunMigrations(ctx, cm.Primary(), logger); err != nil {
//		return err
//	}
package postgres
