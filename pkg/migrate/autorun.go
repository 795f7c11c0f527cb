package migrate

import (
	"context"
	"fmt"

	"github.com/hackportal/hackportal-backend/pkg/config"
	"github.com/hackportal/hackportal-backend/pkg/db"
	"github.com/hackportal/hackportal-backend/pkg/db/models"
	"github.com/hackportal/hackportal-backend/pkg/logger"
)

// MaybeRunDev brings the schema up to date when the auto-migrate flag is set
// and the process runs in dev or against SQLite. Postgres gets the embedded
// goose migrations. SQLite gets gorm's AutoMigrate, since the driver only
// maps DATETIME-typed columns back onto time.Time.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.FeatureFlags.AutoMigrate || !(cfg.App.IsDev() || cfg.DB.IsSQLite()) {
		return nil
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "driver": cfg.DB.Driver})

	if cfg.DB.IsSQLite() {
		logg.Info(ctx, "auto-migrating sqlite schema")
		if err := client.DB().WithContext(ctx).AutoMigrate(models.All()...); err != nil {
			return fmt.Errorf("auto-migrating models: %w", err)
		}
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	logg.Info(ctx, "running goose migrations (dev auto-run)")
	if err := Run(ctx, sqlDB, cfg.DB.Driver, "", "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}
	logg.Info(ctx, "goose migrations completed")
	return nil
}
