package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/nerrad567/canvas-link/internal/infrastructure/config"
)

const (
	dirPermissions  = 0o750
	filePermissions = 0o600

	defaultBusyTimeout = 5 * time.Second
	pingTimeout        = 5 * time.Second
	connMaxIdleTime    = 30 * time.Minute
)

// DB is the command journal database.
type DB struct {
	*sql.DB
	path string
}

// Open opens the SQLite file at cfg.Path, creating its directory, and
// verifies it with a ping. The pool holds a single connection because
// SQLite allows one writer.
func Open(cfg config.DatabaseConfig) (*DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite3", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("pinging %s: %w", cfg.Path, err)
	}
	_ = os.Chmod(cfg.Path, filePermissions) //nolint:errcheck // created lazily by the driver

	return &DB{DB: sqlDB, path: cfg.Path}, nil
}

// dsn builds a go-sqlite3 connection string with busy timeout, foreign
// keys and, when enabled, WAL journaling.
func dsn(cfg config.DatabaseConfig) string {
	busy := time.Duration(cfg.BusyTimeout) * time.Second
	if busy <= 0 {
		busy = defaultBusyTimeout
	}
	q := url.Values{}
	q.Set("_busy_timeout", strconv.FormatInt(busy.Milliseconds(), 10))
	q.Set("_foreign_keys", "on")
	if cfg.WALMode {
		q.Set("_journal_mode", "WAL")
		q.Set("_synchronous", "NORMAL")
	}
	return "file:" + cfg.Path + "?" + q.Encode()
}

// Close closes the database.
func (db *DB) Close() error {
	if db == nil || db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// HealthCheck pings the database.
func (db *DB) HealthCheck(ctx context.Context) error {
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	return nil
}
