package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/ppetrack/ppetrack-backend/api/routes"
	"github.com/ppetrack/ppetrack-backend/internal/catalog"
	"github.com/ppetrack/ppetrack-backend/internal/identity"
	"github.com/ppetrack/ppetrack-backend/internal/inventory"
	"github.com/ppetrack/ppetrack-backend/internal/ledger"
	"github.com/ppetrack/ppetrack-backend/internal/live"
	"github.com/ppetrack/ppetrack-backend/internal/reports"
	"github.com/ppetrack/ppetrack-backend/internal/roles"
	"github.com/ppetrack/ppetrack-backend/internal/tables"
	"github.com/ppetrack/ppetrack-backend/pkg/auth/session"
	"github.com/ppetrack/ppetrack-backend/pkg/config"
	"github.com/ppetrack/ppetrack-backend/pkg/db"
	"github.com/ppetrack/ppetrack-backend/pkg/instance"
	"github.com/ppetrack/ppetrack-backend/pkg/logger"
	"github.com/ppetrack/ppetrack-backend/pkg/metrics"
	"github.com/ppetrack/ppetrack-backend/pkg/migrate"
	"github.com/ppetrack/ppetrack-backend/pkg/outbox"
	"github.com/ppetrack/ppetrack-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       cfg.App.LogLevel,
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := multierr.Combine(redisClient.Close(), dbClient.Close()); err != nil {
			logg.Error(context.Background(), "error closing resources", err)
		}
	}()

	registry := metrics.NewRegistry()
	ledgerMetrics := metrics.NewLedgerMetrics(registry)
	liveMetrics := metrics.NewLiveMetrics(registry)
	outboxMetrics := metrics.NewOutboxMetrics(registry)

	emitter := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	requireService(logg, "session manager", err)

	identityService, err := identity.NewService(identity.ServiceParams{
		Credentials:    identity.NewRepository(dbClient.DB()),
		Sessions:       sessionManager,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
		Logger:         logg,
	})
	requireService(logg, "identity service", err)

	rolesRepo := roles.NewRepository(dbClient.DB())
	rolesService, err := roles.NewService(roles.ServiceParams{
		Repo:        rolesRepo,
		DB:          dbClient,
		Outbox:      emitter,
		Logger:      logg,
		AdminEmails: cfg.Bootstrap.AdminEmails,
	})
	requireService(logg, "roles service", err)

	// Every sign-in resolves the role so first-time identities get their
	// account (and bootstrap admin role) before any request is authorized.
	identityService.OnChange(func(ctx context.Context, id *identity.Identity) error {
		if id == nil {
			return nil
		}
		_, err := rolesService.ResolveRole(ctx, roles.Identity{UID: id.UID, Email: id.Email})
		return err
	})

	itemsRepo := inventory.NewRepository(dbClient.DB())
	inventoryService, err := inventory.NewService(itemsRepo, dbClient, emitter, logg)
	requireService(logg, "inventory service", err)

	catalogRepo := catalog.NewRepository(dbClient.DB())
	catalogService, err := catalog.NewService(catalogRepo, dbClient, emitter, logg)
	requireService(logg, "catalog service", err)

	ledgerService, err := ledger.NewService(ledger.ServiceParams{
		Repo:    ledger.NewRepository(dbClient.DB()),
		Items:   itemsRepo,
		Catalog: catalogRepo,
		DB:      dbClient,
		Outbox:  emitter,
		Logger:  logg,
		Metrics: ledgerMetrics,
		Config:  cfg.Ledger,
	})
	requireService(logg, "ledger service", err)

	reportsService, err := reports.NewService(reports.NewRepository(dbClient.DB()), itemsRepo)
	requireService(logg, "reports service", err)

	tablesService, err := tables.NewService(tables.ServiceParams{
		Repo:    tables.NewRepository(dbClient.DB()),
		Items:   inventoryService,
		Catalog: catalogService,
		Logger:  logg,
	})
	requireService(logg, "tables service", err)

	hub, err := live.NewHub(live.HubParams{
		Sources: live.StoreSources(inventoryService, catalogService, ledgerService, rolesRepo),
		Buffer:  cfg.Live.SubscriberBuffer,
		Metrics: liveMetrics,
		Logger:  logg,
	})
	requireService(logg, "live hub", err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	channel := redisClient.ChannelName(cfg.Live.Channel)
	switch cfg.Live.RelayMode {
	case config.RelayModeRedis:
		relay, err := live.NewRedisRelay(live.RedisRelayParams{
			Subscribe: func(ctx context.Context, channel string) (live.MessageStream, error) {
				sub, err := redisClient.Subscribe(ctx, channel)
				if err != nil {
					return nil, err
				}
				return sub, nil
			},
			Channel: channel,
			Hub:     hub,
			Logger:  logg,
		})
		requireService(logg, "live relay", err)
		go runBackground(ctx, logg, "live relay", relay.Run)
	default:
		publisher, err := outbox.NewPublisher(outbox.PublisherParams{
			Config:     cfg.Outbox,
			Logger:     logg,
			DB:         dbClient,
			Repository: outbox.NewRepository(dbClient.DB()),
			Sink:       hub,
			Metrics:    outboxMetrics,
			InstanceID: instance.GetID(),
		})
		requireService(logg, "outbox publisher", err)
		go runBackground(ctx, logg, "outbox publisher", publisher.Run)
	}

	handler := routes.NewRouter(cfg, logg, dbClient, redisClient, routes.Services{
		Identity:  identityService,
		Roles:     rolesService,
		Inventory: inventoryService,
		Catalog:   catalogService,
		Ledger:    ledgerService,
		Reports:   reportsService,
		Tables:    tablesService,
		Live:      hub,
	})
	if cfg.Metrics.Enabled {
		root := chi.NewRouter()
		root.Handle(cfg.Metrics.Path, metrics.Handler(registry))
		root.Mount("/", handler)
		handler = root
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":        cfg.App.Env,
		"addr":       addr,
		"instance":   instance.GetID(),
		"relay_mode": cfg.Live.RelayMode,
	})
	logg.Info(logCtx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(logCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(logCtx, "api server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(logCtx, "api server shutdown failed", err)
		}
	}
}

func runBackground(ctx context.Context, logg *logger.Logger, name string, run func(context.Context) error) {
	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(logg.WithField(ctx, "worker", name), "background worker stopped", err)
	}
}

func requireService(logg *logger.Logger, name string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), "failed to create "+name, err)
	os.Exit(1)
}
