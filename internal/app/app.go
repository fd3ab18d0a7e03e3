// Package app wires the domain dependencies and the HTTP engine.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/FooledKiwi/ridemap-api/internal/broker"
	"github.com/FooledKiwi/ridemap-api/internal/config"
	"github.com/FooledKiwi/ridemap-api/internal/handler"
	"github.com/FooledKiwi/ridemap-api/internal/places"
	"github.com/FooledKiwi/ridemap-api/internal/provider"
	"github.com/FooledKiwi/ridemap-api/internal/routing"
	"github.com/FooledKiwi/ridemap-api/internal/service"
	"github.com/FooledKiwi/ridemap-api/internal/storage"
)

// DBError represents a database-related error.
type DBError struct {
	Op  string
	Err error
}

func (e *DBError) Error() string {
	return fmt.Sprintf("db error during %q: %v", e.Op, e.Err)
}

func (e *DBError) Unwrap() error { return e.Err }

// App holds the application-level dependencies.
type App struct {
	DB        *pgxpool.Pool
	Router    *gin.Engine
	Loader    *provider.Loader
	views     *service.MapViewService
	positions *service.PositionService
	logger    *zap.Logger
}

// New connects to PostGIS, runs migrations, wires the map subsystem and
// builds the HTTP engine.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	sugar := logger.Sugar()

	// --- Database pool ---
	poolCfg, err := pgxpool.ParseConfig(cfg.DBDSN)
	if err != nil {
		return nil, &DBError{Op: "parse_dsn", Err: err}
	}
	poolCfg.MaxConns = 20
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, &DBError{Op: "connect", Err: err}
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, &DBError{Op: "ping", Err: err}
	}
	logger.Info("database connection pool established")

	// --- Migrations ---
	if err := storage.RunMigrations(ctx, pool, sugar.Infof); err != nil {
		pool.Close()
		return nil, fmt.Errorf("app: run migrations: %w", err)
	}
	logger.Info("database schema up to date")

	// --- Provider loader ---
	keySvc := service.NewKeyService(
		storage.NewMapKeysRepository(pool),
		storage.NewSettingsRepository(pool),
		cfg.GoogleAPIKey,
	)
	var fetcher provider.KeyFetcher = provider.KeyFetcherFunc(keySvc.Resolve)
	if cfg.MapsKeyURL != "" {
		fetcher = provider.NewHTTPKeyFetcher(cfg.MapsKeyURL, cfg.MapsKeyToken)
	}
	keys := provider.NewKeyCache(fetcher, cfg.MapsRegion)
	loader := provider.NewLoader(keys, provider.NewGoogleSDKInjector(),
		provider.WithLoadTimeout(cfg.ProviderLoadTimeout),
		provider.WithLogger(sugar.Named("provider").Infof),
	)

	// --- Routing ---
	googleRouter := routing.NewGoogleRouter(keys,
		routing.WithLanguage(cfg.RoutesLanguage),
		routing.WithGoogleLogger(sugar.Named("routes").Warnf),
	)
	cachedRouter := routing.NewCachedRouter(googleRouter, routing.NewPgCacheStore(pool),
		routing.WithLogger(sugar.Named("route_cache").Warnf),
	)
	directions := service.NewDirectionsService(cachedRouter)

	// --- Positions and views ---
	driverRepo := storage.NewDriverRepository(pool)
	positions := service.NewPositionService(driverRepo, logger.Named("positions"),
		service.WithIdleTimeout(cfg.PositionIdleTimeout),
	)
	events := broker.New()
	resolver := places.NewResolver(places.NewGoogleAutocomplete(loader), cfg.PlacesCountry)
	views := service.NewMapViewService(loader, directions, resolver, positions, events, logger.Named("views"))

	authSvc := service.NewAuthService(cfg.JWTSecret, cfg.AccessTokenTTL)
	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET not set; authenticated endpoints will reject every request")
	}

	router := NewEngine(Deps{
		Handler:        handler.New(keySvc, directions, positions, views, events, logger.Named("http")),
		Driver:         handler.NewDriverHandler(driverRepo, positions),
		Admin:          handler.NewAdminHandler(keySvc, authSvc),
		Verifier:       authSvc,
		RequestTimeout: cfg.RequestTimeout,
		Logger:         logger,
	})

	return &App{
		DB:        pool,
		Router:    router,
		Loader:    loader,
		views:     views,
		positions: positions,
		logger:    logger,
	}, nil
}

// Shutdown closes every map view, stops position tracking and closes the
// database pool.
func (a *App) Shutdown() {
	if a.views != nil {
		a.views.CloseAll()
	}
	if a.positions != nil {
		a.positions.Close()
	}
	if a.DB != nil {
		a.DB.Close()
		a.logger.Info("database connection pool closed")
	}
}
