package db

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/viper"

	"github.com/ItalyPaleAle/rss-digest/utils"
)

// ConnectDB opens the database configured with the DBDriver option
func ConnectDB() (*sqlx.DB, error) {
	switch driver := viper.GetString("DBDriver"); driver {
	case "sqlite3", "sqlite", "":
		return OpenSQLite(viper.GetString("DBPath"))
	case "postgres":
		return OpenPostgres(viper.GetString("DBDSN"))
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
}

// OpenSQLite opens a SQLite database at the given path, creating the folder if needed
func OpenSQLite(dbPath string) (*sqlx.DB, error) {
	// Check if the path is set
	if dbPath == "" {
		return nil, errors.New("database path is empty")
	}

	// Ensure the folder exists
	dbPath, err := filepath.Abs(dbPath)
	if err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}
	err = utils.EnsureFolder(filepath.Dir(dbPath))
	if err != nil {
		return nil, fmt.Errorf("could not create the folder for the database: %w", err)
	}

	conn, err := sqlx.Open("sqlite3", "file:"+dbPath+"?_busy_timeout=5000&_foreign_keys=1")
	if err != nil {
		return nil, err
	}

	// SQLite allows a single writer; serializing on one connection avoids "database is locked" errors
	conn.SetMaxOpenConns(1)

	return conn, nil
}

// OpenPostgres connects to a PostgreSQL database
func OpenPostgres(dsn string) (*sqlx.DB, error) {
	if dsn == "" {
		return nil, errors.New("database DSN is empty")
	}
	return sqlx.Connect("postgres", dsn)
}

// IsPostgres returns true if the connection uses the PostgreSQL driver
func IsPostgres(conn *sqlx.DB) bool {
	return conn.DriverName() == "postgres"
}
