package db

import (
	"testing"

	"github.com/smallbiznis/tradeboard/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
)

func TestDialectPostgresTagsApplication(t *testing.T) {
	d, err := Dialect(config.Config{
		DBType: "postgres", DBHost: "db", DBUser: "rating", DBPassword: "secret",
		DBName: "tradeboard", DBPort: "5432", DBSSLMode: "disable", AppName: "tradeboard scheduler",
	})
	require.NoError(t, err)
	pg, ok := d.(*postgres.Dialector)
	require.True(t, ok)
	assert.Contains(t, pg.DSN, "TimeZone=UTC")
	assert.Contains(t, pg.DSN, "application_name=tradeboard_scheduler")
}

func TestDialectMySQLRunsInUTC(t *testing.T) {
	d, err := Dialect(config.Config{DBType: "mysql", DBHost: "db", DBPort: "3306", DBName: "tradeboard"})
	require.NoError(t, err)
	my, ok := d.(*mysql.Dialector)
	require.True(t, ok)
	assert.Contains(t, my.DSN, "loc=UTC")
}

func TestDialectSQLiteWaitsForLocks(t *testing.T) {
	d, err := Dialect(config.Config{DBType: "sqlite"})
	require.NoError(t, err)
	lite, ok := d.(*sqlite.Dialector)
	require.True(t, ok)
	assert.Equal(t, "tradeboard.db?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", lite.DSN)
}

func TestDialectRejectsUnknownType(t *testing.T) {
	_, err := Dialect(config.Config{DBType: "oracle"})
	assert.Error(t, err)
}
