package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate runs the embedded migrations against the terminal's local database.
// path: filesystem path of the sqlite file, created on first run.
func Migrate(path string) error {
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}

	migrator, err := migrate.NewWithSourceInstance("iofs", source, "sqlite3://"+path)
	if err != nil {
		return fmt.Errorf("error while preparing migrator. Err: %w", err)
	}

	err = migrator.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("error while applying migrations. Err: %w", err)
	}

	srcErr, dbErr := migrator.Close()
	if srcErr != nil {
		return srcErr
	}
	return dbErr
}

// Connect opens the terminal's local database. WAL keeps the sync agent's
// writes from blocking terminal reads; busy_timeout covers the rest.
func Connect(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("cant open terminal database. Err: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("cant reach terminal database. Err: %w", err)
	}

	return db, nil
}

func ConnectAndMigrate(path string) (*sql.DB, error) {
	err := Migrate(path)
	if err != nil {
		return nil, err
	}

	return Connect(path)
}
