package migrate

import (
	"context"
	"fmt"

	"github.com/ppetrack/ppetrack-backend/pkg/config"
	"github.com/ppetrack/ppetrack-backend/pkg/db"
	"github.com/ppetrack/ppetrack-backend/pkg/db/models"
	"github.com/ppetrack/ppetrack-backend/pkg/logger"
)

// MaybeRunDev prepares the schema at startup. SQLite is always built from the
// GORM models because the SQL files are Postgres-only. Postgres is migrated
// only in dev with PPETRACK_AUTO_MIGRATE set.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if cfg.DB.Driver == config.DriverSQLite {
		if err := models.AutoMigrate(client.DB().WithContext(ctx)); err != nil {
			return fmt.Errorf("auto-migrating sqlite schema: %w", err)
		}
		logg.Info(logg.WithField(ctx, "driver", config.DriverSQLite), "sqlite schema ready")
		return nil
	}
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	runner, err := NewRunner(sqlDB, "", nil)
	if err != nil {
		return err
	}
	ctx = logg.WithField(ctx, "env", cfg.App.Env)
	if err := runner.Up(ctx); err != nil {
		return err
	}
	logg.Info(ctx, "embedded migrations applied")
	return nil
}
