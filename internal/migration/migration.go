package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// SchemaVersion reports where the rating schema ended up after a run.
type SchemaVersion struct {
	Version uint
	Dirty   bool
	Applied bool
}

// RunMigrations applies the embedded postgres schema. Profiles, the rating
// ledger, daily aggregates and snapshots are all created on startup.
func RunMigrations(db *sql.DB) (SchemaVersion, error) {
	if db == nil {
		return SchemaVersion{}, errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return SchemaVersion{}, fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return SchemaVersion{}, fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return SchemaVersion{}, fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return SchemaVersion{}, fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return SchemaVersion{}, fmt.Errorf("apply rating schema: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	version, dirty, err := migrator.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return SchemaVersion{}, fmt.Errorf("read rating schema version: %w", err)
	}
	if dirty {
		return SchemaVersion{Version: version, Dirty: true}, fmt.Errorf("rating schema version %d is dirty", version)
	}
	return SchemaVersion{Version: version, Applied: upErr == nil}, nil
}
