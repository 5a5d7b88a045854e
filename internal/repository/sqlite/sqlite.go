package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"scenereview/internal/apperrors"
)

const defaultStatementTimeout = 10 * time.Second

// DB wraps the SQLite ledger connection with thread-safe access and
// bounded statement timeouts.
type DB struct {
	conn        *sql.DB
	mu          sync.RWMutex
	stmtTimeout time.Duration
}

// New creates and initializes the ledger database. lockWait bounds how
// long a statement blocks on a contested lock before surfacing a
// retryable error; stmtTimeout bounds each operation overall.
func New(dbPath string, stmtTimeout, lockWait time.Duration) (*DB, error) {
	if stmtTimeout <= 0 {
		stmtTimeout = defaultStatementTimeout
	}
	if lockWait <= 0 {
		lockWait = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_foreign_keys=on", dbPath, lockWait.Milliseconds())
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	db := &DB{conn: conn, stmtTimeout: stmtTimeout}

	if err := db.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// migrate creates the necessary tables if they don't exist.
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scenes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		category TEXT NOT NULL,
		total_components INTEGER NOT NULL DEFAULT 0,
		pending_components INTEGER NOT NULL DEFAULT 0,
		accepted_components INTEGER NOT NULL DEFAULT 0,
		rejected_components INTEGER NOT NULL DEFAULT 0,
		review_completion_time DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS components (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scene_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		component_type TEXT NOT NULL,
		x INTEGER NOT NULL DEFAULT 0,
		y INTEGER NOT NULL DEFAULT 0,
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		confidence REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'pending',
		review_timestamp DATETIME,
		reviewer_notes TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (scene_id) REFERENCES scenes(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS scene_stats (
		scene_id INTEGER PRIMARY KEY,
		total_components INTEGER NOT NULL,
		pending_components INTEGER NOT NULL,
		accepted_components INTEGER NOT NULL,
		rejected_components INTEGER NOT NULL,
		avg_confidence REAL NOT NULL,
		min_confidence REAL NOT NULL,
		max_confidence REAL NOT NULL,
		acceptance_rate REAL NOT NULL,
		review_progress REAL NOT NULL,
		avg_review_seconds REAL NOT NULL,
		type_distribution TEXT NOT NULL,
		confidence_distribution TEXT NOT NULL,
		last_refresh DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS global_stats (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		total_components INTEGER NOT NULL,
		total_reviews INTEGER NOT NULL,
		avg_confidence REAL NOT NULL,
		median_confidence REAL NOT NULL,
		avg_review_seconds REAL NOT NULL,
		status_distribution TEXT NOT NULL,
		confidence_distribution TEXT NOT NULL,
		accuracy_by_category TEXT NOT NULL,
		last_refresh DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_scenes_category ON scenes(category);
	CREATE INDEX IF NOT EXISTS idx_components_scene_id ON components(scene_id);
	CREATE INDEX IF NOT EXISTS idx_components_status ON components(status);
	CREATE INDEX IF NOT EXISTS idx_components_type ON components(component_type);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying database connection for use by repositories.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// OpContext derives a context bounded by the statement timeout.
func (db *DB) OpContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, db.stmtTimeout)
}

// WithTx runs fn inside a single write transaction under the write lock.
// The transaction is rolled back when fn returns an error.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	ctx, cancel := db.OpContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return WrapErr("begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return WrapErr("commit transaction", err)
	}
	return nil
}

// Savepoint runs fn inside a named savepoint on tx. On failure only the
// savepoint is rolled back; the outer transaction stays usable.
func Savepoint(ctx context.Context, tx *sql.Tx, name string, fn func() error) error {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return WrapErr("create savepoint", err)
	}

	if err := fn(); err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return WrapErr("rollback to savepoint", rbErr)
		}
		// Discard the savepoint itself; the rollback already undid its writes.
		if _, relErr := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); relErr != nil {
			return WrapErr("release savepoint", relErr)
		}
		return err
	}

	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return WrapErr("release savepoint", err)
	}
	return nil
}

// WrapErr wraps a storage error with its operation, mapping lock waits
// to the retryable lock-timeout error.
func WrapErr(op string, err error) error {
	if err == nil {
		return nil
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked {
			return &apperrors.LockTimeoutError{Op: op, Err: err}
		}
	}

	return fmt.Errorf("%s: %w", op, err)
}

// Lock acquires the write lock.
func (db *DB) Lock() {
	db.mu.Lock()
}

// Unlock releases the write lock.
func (db *DB) Unlock() {
	db.mu.Unlock()
}

// RLock acquires the read lock.
func (db *DB) RLock() {
	db.mu.RLock()
}

// RUnlock releases the read lock.
func (db *DB) RUnlock() {
	db.mu.RUnlock()
}
