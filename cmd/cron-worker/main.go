package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ppetrack/ppetrack-backend/internal/cron"
	"github.com/ppetrack/ppetrack-backend/internal/inventory"
	"github.com/ppetrack/ppetrack-backend/internal/reports"
	"github.com/ppetrack/ppetrack-backend/pkg/config"
	"github.com/ppetrack/ppetrack-backend/pkg/db"
	"github.com/ppetrack/ppetrack-backend/pkg/logger"
	"github.com/ppetrack/ppetrack-backend/pkg/metrics"
	"github.com/ppetrack/ppetrack-backend/pkg/migrate"
	"github.com/ppetrack/ppetrack-backend/pkg/outbox"
	"github.com/ppetrack/ppetrack-backend/pkg/redis"
)

const serviceKind = "cron-worker"

var errJobsFailed = errors.New("cron cycle finished with failures")

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, logg, *once)
	stop()
	if err != nil {
		logg.Error(context.Background(), "cron worker stopped", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logg *logger.Logger, once bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = serviceKind
	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       cfg.App.LogLevel,
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer dbClient.Close()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer redisClient.Close()

	registry := metrics.NewRegistry()
	service, err := buildService(cfg, logg, dbClient, redisClient, registry)
	if err != nil {
		return err
	}

	if once {
		if failed := service.RunOnce(ctx); failed > 0 {
			return fmt.Errorf("%w: %d job(s)", errJobsFailed, failed)
		}
		return nil
	}

	if cfg.Metrics.Enabled && cfg.App.Port != "" {
		srv := metrics.NewServer(":"+cfg.App.Port, cfg.Metrics.Path, registry)
		srv.Start(func(err error) { logg.Error(ctx, "metrics server stopped", err) })
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
	return nil
}

func buildService(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, registry prometheus.Registerer) (*cron.Service, error) {
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:    logg,
		DB:        dbClient,
		Outbox:    outbox.NewRepository(dbClient.DB()),
		Retention: cfg.Cron.OutboxRetention,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox retention job: %w", err)
	}

	dashboards, err := reports.NewService(reports.NewRepository(dbClient.DB()), inventory.NewRepository(dbClient.DB()))
	if err != nil {
		return nil, fmt.Errorf("reports service: %w", err)
	}
	stockScan, err := cron.NewStockScanJob(logg, dashboards, metrics.NewStockMetrics(registry))
	if err != nil {
		return nil, fmt.Errorf("stock scan job: %w", err)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(cron.LockKey(cfg.App.Env)), cfg.Cron.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("cron lock: %w", err)
	}

	return cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(retention, stockScan),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(registry),
		Interval: cfg.Cron.Interval,
	})
}
