package repository

import (
	"embed"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pkg/errors"
)

//go:embed migrations
var migrationsFS embed.FS

// Migrate applies every pending up-migration for the store's dialect.
// It returns nil when the schema is already current.
func (s *SQLStore) Migrate() error {
	src, err := iofs.New(migrationsFS, "migrations/"+s.driver)
	if err != nil {
		return errors.Wrap(err, "open migrations")
	}
	defer src.Close()

	var drv database.Driver
	switch s.driver {
	case DriverSQLite:
		drv, err = migratesqlite.WithInstance(s.db.DB, &migratesqlite.Config{})
	case DriverMySQL:
		drv, err = migratemysql.WithInstance(s.db.DB, &migratemysql.Config{})
	default:
		err = errors.Errorf("no migrations for driver %q", s.driver)
	}
	if err != nil {
		return errors.Wrap(err, "migration driver")
	}

	// m.Close would close the shared *sql.DB, so it is not called
	m, err := migrate.NewWithInstance("iofs", src, s.driver, drv)
	if err != nil {
		return errors.Wrap(err, "init migrations")
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "apply migrations")
	}
	return nil
}
