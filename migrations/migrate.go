package migrations

import (
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"

	"github.com/ItalyPaleAle/rss-digest/db"
)

// LatestVersion is the version of the schema after all migrations are applied
const LatestVersion = 2

type migration func(tx *sqlx.Tx, postgres bool) error

var migrationsList = []migration{
	1: V1,
	2: V2,
}

// Migrate runs the migration suite, bringing the schema to the latest version
func Migrate(conn *sqlx.DB) error {
	// It looked weird to use some complex tool for something as simple as creating a few tables for this small app
	_, err := conn.Exec("CREATE TABLE IF NOT EXISTS migrations (version integer not null)")
	if err != nil {
		return fmt.Errorf("error creating the migrations table: %w", err)
	}

	version, err := Version(conn)
	if err != nil {
		return err
	}

	postgres := db.IsPostgres(conn)
	for v := version + 1; v <= LatestVersion; v++ {
		log.WithField("component", "migrations").Infof("Migrating database to version %d", v)

		tx, err := conn.Beginx()
		if err != nil {
			return err
		}
		err = migrationsList[v](tx, postgres)
		if err == nil {
			_, err = tx.Exec("DELETE FROM migrations")
		}
		if err == nil {
			_, err = tx.Exec(tx.Rebind("INSERT INTO migrations (version) VALUES (?)"), v)
		}
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("error migrating the database to version %d: %w", v, err)
		}
		err = tx.Commit()
		if err != nil {
			return err
		}
	}

	return nil
}

// Version returns the current version of the schema
func Version(conn *sqlx.DB) (int, error) {
	var version sql.NullInt64
	err := conn.Get(&version, "SELECT MAX(version) FROM migrations")
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("error getting the schema version: %w", err)
	}
	return int(version.Int64), nil
}

// Returns the DDL for an auto-incrementing primary key
func primaryKey(name string, postgres bool) string {
	if postgres {
		return name + " bigserial primary key"
	}
	return name + " integer primary key autoincrement"
}
