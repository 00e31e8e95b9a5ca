// Command ppectl runs stock transactions, role changes and reports from the
// shell, acting as an existing account.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"github.com/ppetrack/ppetrack-backend/internal/catalog"
	"github.com/ppetrack/ppetrack-backend/internal/inventory"
	"github.com/ppetrack/ppetrack-backend/internal/ledger"
	"github.com/ppetrack/ppetrack-backend/internal/reports"
	"github.com/ppetrack/ppetrack-backend/internal/roles"
	"github.com/ppetrack/ppetrack-backend/pkg/config"
	"github.com/ppetrack/ppetrack-backend/pkg/db"
	"github.com/ppetrack/ppetrack-backend/pkg/logger"
	"github.com/ppetrack/ppetrack-backend/pkg/migrate"
	"github.com/ppetrack/ppetrack-backend/pkg/outbox"
)

func main() {
	_ = godotenv.Load()
	logg := logger.New(logger.Options{ServiceName: "ppectl", Output: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(exitFailed)
	}
	logg = logger.New(logger.Options{
		ServiceName: "ppectl",
		Level:       cfg.App.LogLevel,
		Output:      os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(exitFailed)
	}
	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(exitFailed)
	}

	a, err := newApp(dbClient, cfg, logg)
	if err != nil {
		logg.Error(ctx, "failed to wire services", err)
		os.Exit(exitFailed)
	}

	code := run(ctx, a, os.Args[1:], os.Stdout, os.Stderr)
	_ = dbClient.Close()
	os.Exit(code)
}

func newApp(dbClient *db.Client, cfg *config.Config, logg *logger.Logger) (*app, error) {
	conn := dbClient.DB()
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)
	itemsRepo := inventory.NewRepository(conn)
	rolesRepo := roles.NewRepository(conn)

	rolesService, err := roles.NewService(roles.ServiceParams{
		Repo:        rolesRepo,
		DB:          dbClient,
		Outbox:      emitter,
		Logger:      logg,
		AdminEmails: cfg.Bootstrap.AdminEmails,
	})
	if err != nil {
		return nil, err
	}
	ledgerService, err := ledger.NewService(ledger.ServiceParams{
		Repo:    ledger.NewRepository(conn),
		Items:   itemsRepo,
		Catalog: catalog.NewRepository(conn),
		DB:      dbClient,
		Outbox:  emitter,
		Logger:  logg,
		Config:  cfg.Ledger,
	})
	if err != nil {
		return nil, err
	}
	reportsService, err := reports.NewService(reports.NewRepository(conn), itemsRepo)
	if err != nil {
		return nil, err
	}
	return &app{
		Accounts: rolesRepo,
		Roles:    rolesService,
		Ledger:   ledgerService,
		Reports:  reportsService,
	}, nil
}
