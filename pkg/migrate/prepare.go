package migrate

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/fulfillment-backend/pkg/config"
	"github.com/angelmondragon/fulfillment-backend/pkg/db"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
)

// Prepare is called by every binary after the database connects. In dev with
// auto-migrate enabled it applies the embedded migrations. Otherwise it only
// logs a warning when the schema is behind the embedded set.
func Prepare(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if strings.EqualFold(strings.TrimSpace(cfg.DB.Driver), "sqlite") {
		return nil
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	current, latest, err := Versions(ctx, sqlDB, Source{})
	if err != nil {
		return err
	}
	ctx = logg.WithFields(ctx, map[string]any{
		"env":            cfg.App.Env,
		"schema_version": current,
		"latest_version": latest,
	})
	if current >= latest {
		return nil
	}

	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		logg.Warn(ctx, "migrations.pending")
		return nil
	}

	logg.Info(ctx, "migrations.applying")
	if err := Apply(ctx, sqlDB, Source{}, CommandUp, ""); err != nil {
		return err
	}
	logg.Info(ctx, "migrations.applied")
	return nil
}
