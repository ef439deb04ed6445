// Package main provides the entry point of the trackrelay ingestion and delivery service
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amirphl/trackrelay/app/destinations"
	"github.com/amirphl/trackrelay/app/handlers"
	"github.com/amirphl/trackrelay/app/logging"
	"github.com/amirphl/trackrelay/app/middleware"
	"github.com/amirphl/trackrelay/app/router"
	"github.com/amirphl/trackrelay/app/scheduler"
	"github.com/amirphl/trackrelay/app/services"
	businessflow "github.com/amirphl/trackrelay/business_flow"
	"github.com/amirphl/trackrelay/config"
	"github.com/amirphl/trackrelay/migrations"
	"github.com/amirphl/trackrelay/repository"
	"github.com/amirphl/trackrelay/utils"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Application represents the main application structure
type Application struct {
	router    router.Router
	config    *config.ProductionConfig
	logger    *zap.Logger
	tracking  *handlers.TrackingHandler
	stopFuncs []func()
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage of %s:\n\n%s", os.Args[0], config.ConfigUsage())
	}
	flag.Parse()

	// Load production configuration
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, closeLogger, err := logging.NewLogger(cfg.Logging, cfg.Deployment)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer closeLogger()
	zap.ReplaceGlobals(logger)

	logger.Info("Starting trackrelay",
		zap.String("version", cfg.Deployment.Version),
		zap.String("commit", cfg.Deployment.CommitHash),
		zap.String("environment", cfg.Deployment.Environment))

	// Initialize application
	app, err := initializeApplication(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize application", zap.Error(err))
	}

	// Setup routes
	app.router.SetupRoutes()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		logger.Info("Server starting", zap.String("address", address))
		serverErr <- app.router.Start(address)
	}()

	// Wait for shutdown signal
	select {
	case sig := <-sigChan:
		logger.Info("Shutting down gracefully", zap.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			logger.Error("Server stopped unexpectedly", zap.Error(err))
		}
	}

	app.shutdown()
	logger.Info("Server stopped")
}

// shutdown stops accepting requests, waits for background pipeline runs, then releases resources
func (app *Application) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout)
	defer cancel()

	if err := app.router.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("Error during server shutdown", zap.Error(err))
	}
	if err := app.tracking.Drain(shutdownCtx); err != nil {
		app.logger.Warn("In-flight events did not finish before the shutdown deadline", zap.Error(err))
	}

	// Stop background workers and close connections in reverse start order
	for i := len(app.stopFuncs) - 1; i >= 0; i-- {
		app.stopFuncs[i]()
	}
}

func initializeDatabase(cfg config.DatabaseConfig, logger *zap.Logger) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:  newGormLogger(cfg, logger),
		NowFunc: utils.UTCNow,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB for connection pooling configuration
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pooling
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test the connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if cfg.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		applied, err := migrations.Apply(ctx, sqlDB)
		if err != nil {
			return nil, fmt.Errorf("failed to apply migrations: %w", err)
		}
		if len(applied) > 0 {
			logger.Info("Applied database migrations", zap.Strings("migrations", applied))
		}
	}

	logger.Info("Database connection established",
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.MaxIdleConns))

	return db, nil
}

// newGormLogger routes gorm warnings and slow queries through zap
func newGormLogger(cfg config.DatabaseConfig, logger *zap.Logger) gormlogger.Interface {
	gormCfg := gormlogger.Config{
		LogLevel:                  gormlogger.Error,
		IgnoreRecordNotFoundError: true,
	}
	if cfg.SlowQueryLog {
		gormCfg.LogLevel = gormlogger.Warn
		gormCfg.SlowThreshold = cfg.SlowQueryTime
	}
	return gormlogger.New(zap.NewStdLog(logger.Named("gorm")), gormCfg)
}

// initializeCache connects to Redis. Redis only backs the dedup fast path, so a failure degrades instead of aborting.
func initializeCache(cfg config.CacheConfig, logger *zap.Logger) *redis.Client {
	if !cfg.Enabled {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := services.NewRedisClient(ctx, cfg.RedisURL, cfg.RedisDB)
	if err != nil {
		logger.Warn("Redis unavailable, continuing without the dedup guard", zap.Error(err))
		return nil
	}

	logger.Info("Redis connection established", zap.Int("db", cfg.RedisDB))
	return client
}

func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration, logger *zap.Logger) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					logger.Warn("Redis healthcheck failed", zap.Error(err))
				}
				c()
			}
		}
	}()
	return cancel
}

func initializeApplication(cfg *config.ProductionConfig, logger *zap.Logger) (*Application, error) {
	app := &Application{config: cfg, logger: logger}

	db, err := initializeDatabase(cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	app.stopFuncs = append(app.stopFuncs, func() { _ = sqlDB.Close() })

	healthChecks := map[string]router.HealthCheck{
		"database": sqlDB.PingContext,
	}

	redisClient := initializeCache(cfg.Cache, logger)
	if redisClient != nil {
		app.stopFuncs = append(app.stopFuncs, func() { _ = redisClient.Close() })
		app.stopFuncs = append(app.stopFuncs, startCacheHealthMonitor(context.Background(), redisClient, 30*time.Second, logger))
		healthChecks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	// Repositories
	datasetRepo := repository.NewDatasetRepository(db)
	sourceRepo := repository.NewSourceRepository(db)
	destinationRepo := repository.NewDestinationRepository(db)
	eventRepo := repository.NewEventRepository(db)
	deliveryRepo := repository.NewDeliveryRepository(db)

	// Destination adapters
	adapterOpts := destinations.Options{
		Timeout:         cfg.Tracking.AdapterTimeout,
		DefaultCurrency: cfg.Tracking.DefaultCurrency,
	}
	registry := destinations.NewRegistry(
		destinations.NewMetaAdapter(destinations.MetaOptions{
			Options:      adapterOpts,
			GraphBaseURL: cfg.Tracking.MetaGraphBaseURL,
			APIVersion:   cfg.Tracking.MetaGraphVersion,
		}, logger),
		destinations.NewTikTokAdapter(destinations.TikTokOptions{
			Options:   adapterOpts,
			EventsURL: cfg.Tracking.TikTokEventsURL,
		}, logger),
		destinations.NewGoogleAdsAdapter(),
	)
	breakers := destinations.NewBreakers(destinations.BreakerSettings{
		ConsecutiveFailures: cfg.Tracking.BreakerFailures,
		Cooldown:            cfg.Tracking.BreakerCooldown,
	}, logger)

	// Business flows
	orchestrator := businessflow.NewDeliveryOrchestrator(deliveryRepo, registry, breakers, logger)
	dedupGuard := services.NewRedisDedupGuard(redisClient, cfg.Cache.RedisPrefix, cfg.Tracking.DedupWindow)
	trackingFlow := businessflow.NewTrackingFlow(
		businessflow.NewDatasetStore(datasetRepo, sourceRepo),
		eventRepo,
		sourceRepo,
		orchestrator,
		dedupGuard,
		logger,
	)
	datasetFlow := businessflow.NewDatasetFlow(datasetRepo, sourceRepo, destinationRepo, db, cfg.Server.PublicBaseURL, logger)
	statsFlow := businessflow.NewDatasetStatsFlow(datasetRepo, eventRepo, deliveryRepo, logger)
	deliveryLogFlow := businessflow.NewDeliveryLogFlow(datasetRepo, eventRepo, destinationRepo, deliveryRepo, orchestrator, logger)

	// Auth
	tokenService, err := services.NewTokenService(
		cfg.JWT.AccessTokenTTL,
		cfg.JWT.RefreshTokenTTL,
		cfg.JWT.Issuer,
		cfg.JWT.Audience,
		cfg.JWT.UseRSAKeys,
		cfg.JWT.PrivateKey,
		cfg.JWT.PublicKey,
		cfg.JWT.SecretKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}

	// Handlers
	app.tracking = handlers.NewTrackingHandler(trackingFlow, cfg.Tracking.ProcessTimeout, logger).
		WithWebhookBodyLimit(cfg.Tracking.WebhookBodyMaxSize)

	app.router = router.NewFiberRouter(cfg, router.Handlers{
		Tracking: app.tracking,
		Dataset:  handlers.NewDatasetHandler(datasetFlow, statsFlow, logger),
		Delivery: handlers.NewDeliveryHandler(deliveryLogFlow, logger),
		Auth:     middleware.NewAuthMiddleware(tokenService),
	}, healthChecks, logger)

	// Background workers
	reaper := scheduler.NewDeliveryReaper(deliveryRepo, cfg.Tracking.ReaperInterval, cfg.Tracking.ReaperStaleAfter, logger)
	app.stopFuncs = append(app.stopFuncs, reaper.Start(context.Background()))

	return app, nil
}
