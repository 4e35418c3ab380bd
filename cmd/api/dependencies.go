package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/michaelbuckingham/meteo-api/internal/domain/cache"
	"github.com/michaelbuckingham/meteo-api/internal/domain/location"
	"github.com/michaelbuckingham/meteo-api/internal/domain/observation"
	"github.com/michaelbuckingham/meteo-api/internal/domain/weather"
	"github.com/michaelbuckingham/meteo-api/internal/scheduler"
	"github.com/michaelbuckingham/meteo-api/pkg/config"
	"github.com/michaelbuckingham/meteo-api/pkg/db"
	"github.com/michaelbuckingham/meteo-api/pkg/observability"
)

// Dependencies holds all application dependencies.
type Dependencies struct {
	Config  *config.Config
	DB      *db.DB
	Logger  *slog.Logger
	Metrics *observability.Metrics

	// Repositories
	CacheRepo       cache.Store
	LocationRepo    location.Repository
	ObservationRepo observation.Repository

	// Services
	CacheService    *cache.Service
	LocationService *location.Service
	WeatherService  *weather.Service

	// Background jobs
	SweepScheduler *scheduler.Scheduler
}

// InitDependencies initializes all application dependencies.
func InitDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.New(prometheus.DefaultRegisterer),
	}

	if err := deps.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	deps.initRepositories()
	deps.initServices()

	deps.SweepScheduler = scheduler.New(deps.CacheService, cfg.Cache.SweepInterval, logger)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

func (d *Dependencies) initDatabase() error {
	database, err := db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}

	d.DB = database

	if err := d.DB.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

func (d *Dependencies) initRepositories() {
	d.CacheRepo = cache.NewRepository(d.DB.Pool, d.Logger)
	d.LocationRepo = location.NewRepository(d.DB.Pool, d.Logger)
	d.ObservationRepo = observation.NewRepository(d.DB.Pool, d.Logger)
	d.Logger.Info("repositories initialized")
}

func (d *Dependencies) initServices() {
	d.CacheService = cache.NewService(d.CacheRepo, d.Metrics, d.Logger)
	d.LocationService = location.NewService(d.LocationRepo, d.ObservationRepo, d.Logger)

	// One throttle per process: the limits protect the provider account,
	// not an individual caller.
	throttle := weather.NewThrottle(d.Config.Weather.MaxConcurrent, d.Config.Weather.MinInterval)
	geocoder := weather.NewReverseGeocoder(
		d.Config.Weather.GeocodeURL,
		&http.Client{Timeout: d.Config.Weather.RequestTimeout},
		d.Logger,
	)
	gateway := weather.NewGateway(d.Config.Weather, throttle, geocoder, d.Metrics, d.Logger)

	d.WeatherService = weather.NewService(
		gateway,
		d.CacheService,
		d.LocationService,
		d.ObservationRepo,
		d.Config.Archive,
		d.Config.Cache,
		d.Metrics,
		d.Logger,
	)

	d.Logger.Info("services initialized")
}

// Cleanup closes all resources.
func (d *Dependencies) Cleanup() {
	if d.SweepScheduler != nil {
		d.SweepScheduler.Stop()
	}
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}
