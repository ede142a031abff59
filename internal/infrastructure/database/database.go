package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	dirPermissions  = 0750
	filePermissions = 0600

	// openTimeout bounds the connectivity check during Open.
	openTimeout = 5 * time.Second
)

// Config holds the database section of config.yaml.
type Config struct {
	// Path is the SQLite database file. Its directory is created on open.
	Path string

	// WALMode enables write-ahead logging so journal reads do not block
	// the writer.
	WALMode bool

	// BusyTimeout is how long a statement waits on a locked database,
	// in seconds.
	BusyTimeout int
}

// dsn renders the go-sqlite3 connection string for this config.
func (c Config) dsn() string {
	s := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on", c.Path, c.BusyTimeout*1000)
	if c.WALMode {
		s += "&_journal_mode=WAL&_synchronous=NORMAL"
	}
	return s
}

// DB is the daemon's handle on its SQLite store. The embedded sql.DB is
// used directly by the journal repository; this type adds lifecycle,
// schema application and health checking on top.
type DB struct {
	*sql.DB
	path string
}

// Open connects to the SQLite file described by cfg, creating the file
// and its directory as needed, and verifies the connection before
// returning.
func Open(cfg Config) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite3", cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite allows one writer; a single pooled connection avoids lock
	// churn between the journal writer and API readers.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close() //nolint:errcheck // best effort on the error path
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	// The file may not exist until the first write; tighten permissions
	// when it does.
	_ = os.Chmod(cfg.Path, filePermissions) //nolint:errcheck

	return &DB{DB: sqlDB, path: cfg.Path}, nil
}

// Close releases the underlying connection. Safe on a DB whose
// connection is already gone.
func (db *DB) Close() error {
	if db.DB == nil {
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

// HealthCheck runs a trivial query to confirm the store is reachable.
func (db *DB) HealthCheck(ctx context.Context) error {
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	return nil
}
