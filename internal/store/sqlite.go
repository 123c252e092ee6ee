package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// DBFile is the database file name inside the data directory.
const DBFile = "snaptext.db"

// SQLiteBackend persists keys in a single-table SQLite database. Several
// processes may open the same file; WAL mode and the busy timeout let their
// compare-and-swap writes interleave safely.
type SQLiteBackend struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) dataDir/snaptext.db.
func OpenSQLite(dataDir string) (*SQLiteBackend, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DBFile)
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	_ = os.Chmod(dbPath, 0600)
	return &SQLiteBackend{db: db}, nil
}

// DB exposes the underlying handle.
func (b *SQLiteBackend) DB() *sql.DB { return b.db }

func (b *SQLiteBackend) Read(ctx context.Context, key string) (Snapshot, error) {
	var (
		snap    Snapshot
		updated int64
	)
	err := b.db.QueryRowContext(ctx,
		`SELECT value, version, updated_at FROM kv WHERE key = ?`, key,
	).Scan(&snap.Payload, &snap.Version, &updated)
	if stderrors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read %q: %w", key, err)
	}
	snap.UpdatedAt = time.UnixMilli(updated)
	return snap, nil
}

func (b *SQLiteBackend) Version(ctx context.Context, key string) (int64, error) {
	var v int64
	err := b.db.QueryRowContext(ctx, `SELECT version FROM kv WHERE key = ?`, key).Scan(&v)
	if stderrors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read version of %q: %w", key, err)
	}
	return v, nil
}

func (b *SQLiteBackend) CompareAndSwap(ctx context.Context, key string, expect int64, payload []byte) (int64, error) {
	now := time.Now().UnixMilli()
	next := expect + 1

	var (
		res sql.Result
		err error
	)
	if expect == 0 {
		res, err = b.db.ExecContext(ctx,
			`INSERT INTO kv (key, value, version, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(key) DO NOTHING`,
			key, payload, next, now)
	} else {
		res, err = b.db.ExecContext(ctx,
			`UPDATE kv SET value = ?, version = ?, updated_at = ? WHERE key = ? AND version = ?`,
			payload, next, now, key, expect)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to write %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to write %q: %w", key, err)
	}
	if n == 0 {
		return 0, ErrVersionConflict
	}
	return next, nil
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := getUserVersion(db)
	if err != nil {
		return err
	}

	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS kv (
		  key        TEXT PRIMARY KEY,
		  value      BLOB NOT NULL,
		  version    INTEGER NOT NULL,
		  updated_at INTEGER NOT NULL
		);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := setUserVersion(db, 1); err != nil {
			return err
		}
	}

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

func getUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

func setUserVersion(db *sql.DB, version int) error {
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version)); err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
