package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/platinummonkey/tablekeep/pkg/api"
	"github.com/platinummonkey/tablekeep/pkg/audit"
	"github.com/platinummonkey/tablekeep/pkg/auth"
	"github.com/platinummonkey/tablekeep/pkg/billing"
	"github.com/platinummonkey/tablekeep/pkg/config"
	"github.com/platinummonkey/tablekeep/pkg/credentials"
	"github.com/platinummonkey/tablekeep/pkg/customers"
	"github.com/platinummonkey/tablekeep/pkg/middleware"
	"github.com/platinummonkey/tablekeep/pkg/observability"
	"github.com/platinummonkey/tablekeep/pkg/rbac"
	"github.com/platinummonkey/tablekeep/pkg/restaurants"
	"github.com/platinummonkey/tablekeep/pkg/storage/postgres"
	"github.com/platinummonkey/tablekeep/pkg/users"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

var (
	showVersion = flag.Bool("version", false, "Print version and exit")
	skipSeed    = flag.Bool("skip-seed", false, "Do not reseed the permission catalog on startup")
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `Usage: tablekeep [flags] [command]

Commands:
  serve    run the HTTP API (default)
  migrate  apply database migrations and exit
  seed     seed the permission catalog and role mappings and exit
  sweep    mark lapsed paid subscriptions PAST_DUE once and exit

Configuration is read from TABLEKEEP_CONFIG_FILE and TABLEKEEP_* environment variables.

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	command := "serve"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(observability.ParseLevel(cfg.Observability.LogLevel), os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch command {
	case "serve":
		err = serve(ctx, cfg, logger)
	case "migrate":
		err = withDatabase(ctx, cfg, func(db *postgres.ConnectionManager) error {
			return postgres.RunMigrations(ctx, db.Primary(), logger)
		})
	case "seed":
		err = withDatabase(ctx, cfg, func(db *postgres.ConnectionManager) error {
			return seedPermissions(ctx, rbac.NewEngine(rbac.NewStore(db.Primary()), rbac.EngineOptions{}), logger)
		})
	case "sweep":
		err = withDatabase(ctx, cfg, func(db *postgres.ConnectionManager) error {
			sweeper := billing.NewSweeper(billing.NewPostgresService(db.Primary()), nil, logger)
			_, err := sweeper.Run(ctx)
			return err
		})
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		logger.WithError(err).WithField("command", command).Error("Command failed")
		os.Exit(1)
	}
}

func openDatabase(cfg *config.Config) (*postgres.ConnectionManager, error) {
	return postgres.NewConnectionManager(postgres.ConnectionConfig{
		URL:         cfg.Database.URL,
		MaxConns:    cfg.Database.MaxOpenConns,
		MinConns:    cfg.Database.MaxIdleConns,
		MaxLifetime: cfg.Database.ConnMaxLifetime,
	})
}

func withDatabase(ctx context.Context, cfg *config.Config, fn func(*postgres.ConnectionManager) error) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}

func seedPermissions(ctx context.Context, engine *rbac.Engine, logger *observability.Logger) error {
	edges, err := engine.Reseed(ctx)
	if err != nil {
		return err
	}
	logger.WithField("mappings", len(edges)).Info("Permission catalog seeded")
	return nil
}

func serve(ctx context.Context, cfg *config.Config, logger *observability.Logger) error {
	logger.WithFields(map[string]interface{}{
		"version": version,
		"addr":    cfg.Server.Addr(),
	}).Info("Starting tablekeep")

	tp, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}

	if cfg.Database.MigrateOnStart {
		if err := postgres.RunMigrations(ctx, db.Primary(), logger); err != nil {
			db.Close()
			return err
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)
	db.StartStatsRoutine(ctx, 15*time.Second, metrics, logger)

	engine := rbac.NewEngine(rbac.NewStore(db.Primary()), rbac.EngineOptions{
		TTL:  cfg.Auth.PermissionCacheTTL,
		Size: cfg.Auth.PermissionCacheSize,
	})
	if !*skipSeed {
		if err := seedPermissions(ctx, engine, logger); err != nil {
			db.Close()
			return err
		}
	}

	var (
		redisClient *redis.Client
		denylist    auth.Denylist
		limiter     middleware.Limiter
	)
	limitConfig := middleware.LoginRateLimitConfig(cfg.Auth.LoginAttemptsPerMin)
	if cfg.Redis.URL != "" {
		redisClient, err = postgres.NewRedisClient(ctx, postgres.RedisConfig{
			URL:      cfg.Redis.URL,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			db.Close()
			return err
		}
		denylist = auth.NewRedisDenylist(redisClient, "tablekeep:denylist:")
		limiter = middleware.NewDistributedRateLimiter(redisClient, limitConfig, "tablekeep:login:")
	} else {
		logger.Warn("Redis not configured, token revocation and login limits are per process")
		denylist = auth.NewMemoryDenylist(10000, cfg.Auth.TokenTTL)
		memLimiter := middleware.NewRateLimiter(limitConfig)
		memLimiter.StartCleanup(ctx)
		limiter = memLimiter
	}

	billingService := billing.NewPostgresService(db.Primary())

	var (
		auditor     audit.Logger = audit.NewLogLogger(logger)
		auditStore  *audit.PostgresStore
		auditEvents api.AuditSearcher
	)
	if cfg.Audit.Enabled {
		auditStore = audit.NewPostgresStore(db.Primary())
		auditor = audit.NewMultiLogger(auditStore, auditor)
		auditEvents = auditStore
	}
	gatherer := prometheus.Gatherer(registry)
	if !cfg.Observability.MetricsEnabled {
		gatherer = nil
	}

	handler := api.NewServer(api.Dependencies{
		Restaurants:  restaurants.NewPostgresService(db.Primary()),
		Users:        users.NewPostgresService(db.Primary(), credentials.NewArgon2Hasher()),
		Customers:    customers.NewPostgresService(db.Primary()),
		Billing:      billingService,
		Permissions:  engine,
		Checker:      engine,
		Tokens:       auth.NewTokenIssuer([]byte(cfg.Auth.TokenSecret), cfg.Auth.TokenTTL, cfg.Auth.Issuer),
		Denylist:     denylist,
		LoginLimiter: limiter,
		Audit:        auditor,
		AuditEvents:  auditEvents,
		Health:       observability.NewHealthChecker(db.Primary(), redisClient, version),
		Metrics:      metrics,
		Gatherer:     gatherer,
		Logger:       logger,
		ServiceName:  cfg.Observability.OTelServiceName,
		CORSOrigins:  cfg.Server.CORSOrigins,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.Register("database", func(context.Context) error { return db.Close() })
	if redisClient != nil {
		shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })
	}
	shutdown.Register("tracing", func(ctx context.Context) error { return observability.ShutdownTracing(ctx, tp, logger) })

	scheduler := cron.New()
	if cfg.Billing.SweepEnabled {
		sweeper := billing.NewSweeper(billingService, metrics, logger)
		if _, err := sweeper.Schedule(ctx, scheduler, cfg.Billing.SweepSchedule); err != nil {
			return fmt.Errorf("failed to schedule billing sweep: %w", err)
		}
		logger.WithField("schedule", cfg.Billing.SweepSchedule).Info("Billing sweep scheduled")
	}
	if auditStore != nil && cfg.Audit.Retention > 0 {
		purger := audit.NewPurger(auditStore, cfg.Audit.Retention, logger)
		if _, err := purger.Schedule(ctx, scheduler, cfg.Audit.CleanupSchedule); err != nil {
			return fmt.Errorf("failed to schedule audit cleanup: %w", err)
		}
		logger.WithField("schedule", cfg.Audit.CleanupSchedule).Info("Audit retention cleanup scheduled")
	}
	if len(scheduler.Entries()) > 0 {
		scheduler.Start()
		shutdown.Register("scheduler", func(ctx context.Context) error {
			select {
			case <-scheduler.Stop().Done():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", httpServer.Addr).Info("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received")
		return shutdown.Shutdown()
	})

	return g.Wait()
}
