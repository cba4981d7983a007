package migration

import (
	"github.com/smallbiznis/tradeboard/internal/config"
	"github.com/smallbiznis/tradeboard/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if cfg.DBType != "postgres" {
			log.Warn("skipping migrations for non-postgres database", zap.String("type", cfg.DBType))
			return nil
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		schema, err := RunMigrations(sqlDB)
		if err != nil {
			return err
		}
		log.Info("rating schema ready",
			zap.Uint("version", schema.Version),
			zap.Bool("applied", schema.Applied),
		)

		if cfg.Bootstrap.SeedAchievements {
			inserted, err := seed.EnsureAchievementCatalog(conn)
			if err != nil {
				return err
			}
			log.Info("achievement catalog seeded", zap.Int64("inserted", inserted))
		}
		return nil
	}),
)
