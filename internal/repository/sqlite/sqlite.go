// Package sqlite implements the repository interfaces on SQLite.
//
// WHY SQLITE?
// The engine's state is small: one row per user, one sealed token, one streak
// and a rolling window of day buckets. An embedded database keeps the
// deployment a single binary plus a file, and ":memory:" gives every test a
// fresh store.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// modernc.org/sqlite is a pure Go translation of SQLite, so no C compiler is
// needed and cross-compilation just works. golang-migrate ships a driver for
// it (database/sqlite), which is what the migrations package uses.
//
// DATABASE/SQL OVERVIEW:
//   - sql.DB   — a connection pool (NOT a single connection!)
//   - sql.Tx   — a transaction
//   - sql.Rows — multiple result rows (must be closed!)
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"

	"github.com/sakif/commit-streak/internal/clock"
	"github.com/sakif/commit-streak/internal/repository"
	"github.com/sakif/commit-streak/internal/repository/sqlite/migrations"
)

// compile-time check that *DB implements every repository interface
var _ repository.Store = (*DB)(nil)

// Sealer encrypts credential tokens before they reach the disk.
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn   *sql.DB
	sealer Sealer
	clock  clock.Clock
}

type Option func(*DB)

// WithSealer enables credential storage. Without a sealer SaveCredential and
// GetCredential fail rather than store tokens in clear text.
func WithSealer(s Sealer) Option {
	return func(db *DB) { db.sealer = s }
}

// WithClock sets the clock used for created_at and updated_at stamps.
func WithClock(c clock.Clock) Option {
	return func(db *DB) { db.clock = c }
}

// New opens the database and applies migrations.
//
// dbPath examples:
//   - "data/streak.db" → file-based database (persistent)
//   - ":memory:"       → in-memory database (tests)
func New(dbPath string, opts ...Option) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every connection to ":memory:" is a separate, empty database. Pin the
	// pool to one connection so all queries see the same schema.
	if isMemory(dbPath) {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL mode lets readers proceed while a refresh is writing.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}
	// Concurrent writers wait for the lock instead of failing with SQLITE_BUSY.
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	if err := migrations.Up(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	db := &DB{conn: conn, clock: clock.Real{}}
	for _, opt := range opts {
		opt(db)
	}
	return db, nil
}

func isMemory(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) now() time.Time {
	return db.clock.Now().UTC()
}

// Ping reports whether the database is reachable. Used by the health check.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}
