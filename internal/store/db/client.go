// Copyright 2025 Certen Protocol
//
// Database client for the node's relational store.
// Provides connection setup, health checks, and migration support.

package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver: no cgo, single embedded data file + sibling -wal

	"lukechampine.com/blake3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Client wraps a single-writer SQLite connection to the node's data
// file (plus its sibling -wal file under the same data directory).
type Client struct {
	db     *sql.DB
	path   string
	logger *log.Logger
}

// ClientOption is a functional option for configuring the client.
type ClientOption func(*Client)

// WithLogger sets a custom logger for the client.
func WithLogger(logger *log.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient opens (creating if absent) the SQLite data file at
// <dataDir>/miden-store.sqlite3 in WAL mode. The pool holds a single
// connection, so reads and writes through one Client run one at a time.
func NewClient(dataDir string, opts ...ClientOption) (*Client, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data directory cannot be empty")
	}
	path := filepath.Join(dataDir, "miden-store.sqlite3")

	client := &Client{
		path:   path,
		logger: log.New(log.Writer(), "[Database] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(client)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", path)
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows exactly one writer; capping the pool at one
	// connection serializes every query and transaction on it, which
	// avoids "database is locked" errors.
	sqlDB.SetMaxOpenConns(1)

	client.db = sqlDB

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to open data file %s: %w", path, err)
	}

	client.logger.Printf("opened data file %s", path)
	return client, nil
}

// DB returns the underlying *sql.DB for direct access.
func (c *Client) DB() *sql.DB {
	return c.db
}

// Path returns the on-disk path to the data file.
func (c *Client) Path() string {
	return c.path
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		c.logger.Println("closing data file")
		return c.db.Close()
	}
	return nil
}

// Ping verifies the database connection is alive.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// HealthStatus reports the health of the data file connection.
type HealthStatus struct {
	Healthy         bool      `json:"healthy"`
	Error           string    `json:"error,omitempty"`
	OpenConnections int       `json:"open_connections"`
	InUse           int       `json:"in_use"`
	Idle            int       `json:"idle"`
	CheckedAt       time.Time `json:"checked_at"`
}

// Health returns the data file connection's health.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	status := &HealthStatus{CheckedAt: time.Now()}
	if err := c.db.PingContext(ctx); err != nil {
		status.Healthy = false
		status.Error = err.Error()
		return status, nil
	}
	stats := c.db.Stats()
	status.Healthy = true
	status.OpenConnections = stats.OpenConnections
	status.InUse = stats.InUse
	status.Idle = stats.Idle
	return status, nil
}

// ============================================================================
// MIGRATION SUPPORT
// ============================================================================
//
// Migrations are content-addressed by a blake3 hash of their SQL body
// rather than a bare filename prefix: the schema_migrations table records
// that hash, so a migration file can be renamed or reordered on disk
// without the node mistaking it for a new, unapplied migration.

// Migration is one embedded schema change.
type Migration struct {
	Filename string
	Hash     string // blake3, hex-encoded
	SQL      string
}

// MigrateUp applies every embedded migration not already recorded in
// schema_migrations, in filename order.
func (c *Client) MigrateUp(ctx context.Context) error {
	c.logger.Println("running migrations...")

	migrations, err := c.getMigrations()
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	applied, err := c.getAppliedMigrations(ctx)
	if err != nil {
		if !strings.Contains(err.Error(), "no such table") {
			return fmt.Errorf("failed to read applied migrations: %w", err)
		}
		applied = make(map[string]bool)
	}

	for _, m := range migrations {
		if applied[m.Hash] {
			c.logger.Printf("  skipping %s (already applied, %s)", m.Filename, m.Hash[:12])
			continue
		}
		c.logger.Printf("  applying %s (%s)...", m.Filename, m.Hash[:12])
		if err := c.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", m.Filename, err)
		}
	}

	c.logger.Println("migrations complete")
	return nil
}

func (c *Client) getMigrations() ([]Migration, error) {
	var migrations []Migration
	err := fs.WalkDir(migrationsFS, "migrations", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".sql") {
			return nil
		}
		content, err := migrationsFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		sum := blake3.Sum256(content)
		migrations = append(migrations, Migration{
			Filename: d.Name(),
			Hash:     fmt.Sprintf("%x", sum),
			SQL:      string(content),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Filename < migrations[j].Filename })
	return migrations, nil
}

func (c *Client) getAppliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT hash FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, err
		}
		applied[hash] = true
	}
	return applied, rows.Err()
}

func (c *Client) applyMigration(ctx context.Context, m Migration) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("failed to execute migration: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (hash, filename, applied_at) VALUES (?, ?, ?)",
		m.Hash, m.Filename, time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return tx.Commit()
}

// MigrationInfo reports the status of a single migration.
type MigrationInfo struct {
	Filename string `json:"filename"`
	Hash     string `json:"hash"`
	Applied  bool   `json:"applied"`
}

// MigrationStatus reports every embedded migration and whether it has
// been applied.
func (c *Client) MigrationStatus(ctx context.Context) ([]MigrationInfo, error) {
	migrations, err := c.getMigrations()
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}
	applied, err := c.getAppliedMigrations(ctx)
	if err != nil {
		if !strings.Contains(err.Error(), "no such table") {
			return nil, fmt.Errorf("failed to read applied migrations: %w", err)
		}
		applied = make(map[string]bool)
	}
	status := make([]MigrationInfo, len(migrations))
	for i, m := range migrations {
		status[i] = MigrationInfo{Filename: m.Filename, Hash: m.Hash, Applied: applied[m.Hash]}
	}
	return status, nil
}

// ============================================================================
// TRANSACTION SUPPORT
// ============================================================================

// Tx wraps a database transaction.
type Tx struct {
	tx *sql.Tx
}

// BeginTx starts a new transaction.
func (c *Client) BeginTx(ctx context.Context) (*Tx, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Commit commits the transaction.
func (t *Tx) Commit() error { return t.tx.Commit() }

// Rollback rolls back the transaction.
func (t *Tx) Rollback() error { return t.tx.Rollback() }

// Tx returns the underlying *sql.Tx for direct access.
func (t *Tx) Tx() *sql.Tx { return t.tx }

// ============================================================================
// QUERY HELPERS
// ============================================================================

// ExecContext executes a query that doesn't return rows.
func (c *Client) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return c.db.ExecContext(ctx, query, args...)
}

// QueryContext executes a query that returns rows.
func (c *Client) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return c.db.QueryContext(ctx, query, args...)
}

// QueryRowContext executes a query that returns at most one row.
func (c *Client) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return c.db.QueryRowContext(ctx, query, args...)
}
