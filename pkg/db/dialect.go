package db

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/tradeboard/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Dialect opens the configured database. Every connection runs in UTC so
// ledger timestamps and daily aggregate dates agree across drivers.
func Dialect(cfg config.Config) (gorm.Dialector, error) {
	switch cfg.DBType {
	case "mysql":
		return mysql.Open(fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBHost,
			cfg.DBPort,
			cfg.DBName,
		)), nil
	case "postgres":
		return postgres.Open(fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC application_name=%s",
			cfg.DBHost,
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBName,
			cfg.DBPort,
			cfg.DBSSLMode,
			applicationName(cfg),
		)), nil
	case "sqlite":
		name := cfg.DBName
		if name == "" {
			name = "tradeboard"
		}
		// Check-ins and boosts write concurrently; wait for the lock instead of failing.
		return sqlite.Open(name + ".db?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"), nil
	default:
		return nil, fmt.Errorf("unsupported %s type", cfg.DBType)
	}
}

func applicationName(cfg config.Config) string {
	name := strings.TrimSpace(cfg.AppName)
	if name == "" {
		name = "tradeboard"
	}
	return strings.ReplaceAll(name, " ", "_")
}
