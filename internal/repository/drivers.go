package repository

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/opensource-finance/harrier/internal/domain"
)

// sqliteDSN builds a modernc.org/sqlite DSN (pure Go, no CGO). WAL mode lets
// the API read while the worker writes.
func sqliteDSN(cfg domain.RepositoryConfig) (string, error) {
	path := cfg.SQLitePath
	if path == "" {
		path = "./harrier.db"
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	return fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", path), nil
}

// postgresDSN builds a lib/pq keyword/value DSN.
func postgresDSN(cfg domain.RepositoryConfig) string {
	host := cfg.PostgresHost
	if host == "" {
		host = "localhost"
	}
	port := cfg.PostgresPort
	if port == 0 {
		port = 5432
	}
	dbname := cfg.PostgresDB
	if dbname == "" {
		dbname = "harrier"
	}
	sslmode := cfg.PostgresSSLMode
	if sslmode == "" {
		sslmode = "disable"
	}

	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s application_name=harrier connect_timeout=10",
		host, port, cfg.PostgresUser, cfg.PostgresPassword, dbname, sslmode,
	)
}

// open resolves the driver, opens the pool and verifies connectivity.
func open(cfg domain.RepositoryConfig) (*sql.DB, error) {
	var driverName, dsn string
	switch cfg.Driver {
	case "sqlite":
		d, err := sqliteDSN(cfg)
		if err != nil {
			return nil, err
		}
		driverName, dsn = "sqlite", d
	case "postgres":
		driverName, dsn = "postgres", postgresDSN(cfg)
	default:
		return nil, fmt.Errorf("%w: unsupported driver %q", ErrInvalidInput, cfg.Driver)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", cfg.Driver, err)
	}
	return db, nil
}
