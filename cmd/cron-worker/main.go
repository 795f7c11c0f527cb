package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hackportal/hackportal-backend/internal/cron"
	"github.com/hackportal/hackportal-backend/internal/hardware"
	"github.com/hackportal/hackportal-backend/internal/ops"
	"github.com/hackportal/hackportal-backend/pkg/config"
	"github.com/hackportal/hackportal-backend/pkg/db"
	"github.com/hackportal/hackportal-backend/pkg/logger"
	"github.com/hackportal/hackportal-backend/pkg/metrics"
	"github.com/hackportal/hackportal-backend/pkg/migrate"
	"github.com/hackportal/hackportal-backend/pkg/redis"
)

const (
	serviceKind     = "cron-worker"
	shutdownTimeout = 10 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceKind})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = serviceKind

	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	var (
		redisClient *redis.Client
		lock        cron.Lock = &cron.LocalLock{}
		notifier    hardware.Notifier
	)
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()

		lock, err = cron.NewRedisLock(redisClient, redisClient.LockKey(serviceKind, cfg.App.Env), cfg.Cron.LockTTL)
		if err != nil {
			logg.Error(context.Background(), "failed to create worker lock", err)
			os.Exit(1)
		}
		if cfg.FeatureFlags.HardwareBroadcast {
			notifier, err = hardware.NewRedisNotifier(redisClient, cfg.Hardware.UpdatesChannel)
			if err != nil {
				logg.Error(context.Background(), "failed to create hardware notifier", err)
				os.Exit(1)
			}
		}
	} else {
		logg.Warn(context.Background(), "redis not configured; using in-process lock and no broadcasts")
	}

	hardwareService, err := hardware.NewService(hardware.ServiceParams{
		Tx:           dbClient,
		Items:        hardware.NewItemRepository(dbClient.DB()),
		Reservations: hardware.NewReservationRepository(dbClient.DB()),
		Notifier:     notifier,
		Logger:       logg,
		Metrics:      metrics.NewHardwareMetrics(prometheus.DefaultRegisterer),
		Config:       cfg.Hardware,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create hardware service", err)
		os.Exit(1)
	}

	sweepJob, err := cron.NewReservationSweepJob(cron.ReservationSweepJobParams{
		Logger:  logg,
		Sweeper: hardwareService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sweep job", err)
		os.Exit(1)
	}

	registry, err := cron.NewRegistry(sweepJob)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
		// A job must finish before its lease lapses.
		JobTimeout: cfg.Cron.LockTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create worker service", err)
		os.Exit(1)
	}

	checks := map[string]ops.Pinger{"database": dbClient}
	if redisClient != nil {
		checks["redis"] = redisClient
	}
	opsServer := &http.Server{
		Addr: cfg.Metrics.Addr,
		Handler: ops.NewRouter(ops.RouterParams{
			Env:    cfg.App.Env,
			Logger: logg,
			Checks: checks,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	go func() {
		logg.Info(logg.WithField(ctx, "addr", opsServer.Addr), "ops server listening")
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "ops server stopped unexpectedly", err)
			stop()
		}
	}()

	logg.Info(ctx, "starting cron worker")
	runErr := service.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		logg.Error(ctx, "ops server shutdown failed", err)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", runErr)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}
