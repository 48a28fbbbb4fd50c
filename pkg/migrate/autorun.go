package migrate

import (
	"context"
	"fmt"

	"github.com/justcook/justcook-backend/pkg/config"
	"github.com/justcook/justcook-backend/pkg/db"
	"github.com/justcook/justcook-backend/pkg/logger"
)

// MaybeRunDev applies the embedded migrations in dev when auto-migrate is on.
// Elsewhere it only compares versions and warns when the schema lags the binary.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if cfg.DB.Driver == config.DBDriverSQLite {
		logg.Debug(ctx, "skipping goose: sqlite schemas are managed by the caller")
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		current, latest, err := Versions(sqlDB, Embedded())
		if err != nil {
			logg.Warn(logg.WithField(ctx, "error", err.Error()), "schema version check failed")
			return nil
		}
		if current < latest {
			logg.Warn(logg.WithFields(ctx, map[string]any{
				"schema_version": current,
				"latest_version": latest,
			}), "database schema is behind; run cmd/migrate")
		}
		return nil
	}

	ctx = logg.WithField(ctx, "env", cfg.App.Env)
	logg.Info(ctx, "running goose migrations (dev auto-run)")
	if err := Run(ctx, sqlDB, Embedded(), "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}
	logg.Info(ctx, "goose migrations completed")
	return nil
}
