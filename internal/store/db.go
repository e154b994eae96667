// Package store is the Storage Adapter (spec §4.B): a transactional,
// indexed, full-text-capable DAO layer over events, chunks, decisions,
// tasks, capsules, memory edits, artifacts, and the graph, backed by
// modernc.org/sqlite in WAL mode — the same engine and pragma set the
// teacher repository uses for its single-writer/many-reader CLI workload,
// generalized here to a long-running multi-tenant daemon.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/agentmemory/memoryd/internal/app"
	_ "modernc.org/sqlite"
)

// CloseDB runs PRAGMA optimize then closes the connection.
func CloseDB(db *sql.DB) error {
	_, _ = db.ExecContext(context.Background(), "PRAGMA optimize")
	return db.Close()
}

var validCheckpointModes = map[string]bool{
	"PASSIVE":  true,
	"FULL":     true,
	"TRUNCATE": true,
	"RESTART":  true,
}

// CheckpointWAL triggers a WAL checkpoint; mode must be one of PASSIVE,
// FULL, TRUNCATE, RESTART.
func CheckpointWAL(ctx context.Context, db *sql.DB, mode string) error {
	if !validCheckpointModes[mode] {
		return fmt.Errorf("invalid WAL checkpoint mode %q: must be one of PASSIVE, FULL, TRUNCATE, RESTART", mode)
	}
	_, err := db.ExecContext(ctx, "PRAGMA wal_checkpoint("+mode+")")
	return err
}

const defaultBusyTimeoutMS = 5000

// InitDB initializes the database connection with SQLite + WAL mode and
// runs migrations automatically.
func InitDB() (*sql.DB, error) {
	dbPath, err := app.GetDBPath()
	if err != nil {
		return nil, err
	}
	return InitDBWithPath(dbPath)
}

// OpenDB opens a database connection and configures SQLite pragmas, but
// does NOT run migrations.
func OpenDB(dbPath string) (*sql.DB, error) {
	absPath, err := app.EnsureDBDir(dbPath)
	if err != nil {
		return nil, err
	}

	// modernc.org/sqlite is strict about DSNs. Use a file: URI with
	// mode=rwc so the database can be created/written consistently across
	// platforms.
	db, err := sql.Open("sqlite", normalizeSQLiteDSN(absPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// The daemon serves many concurrent tenants against one SQLite file:
	// one writer connection, any number of readers queued behind
	// busy_timeout. Still capped at 1 open conn because modernc.org/sqlite
	// multiplexes all statements through go's database/sql pool, and WAL
	// mode only allows one writer at a time regardless.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busyTimeout := defaultBusyTimeoutMS
	if v := os.Getenv("MEMORYD_BUSY_TIMEOUT_MS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			busyTimeout = parsed
		}
	}

	// Pragma trade-offs, same as the teacher:
	//   busy_timeout       — blocks writers up to N ms instead of failing immediately.
	//   synchronous=NORMAL — skips fsync on every commit; WAL still gives crash
	//                        safety for committed txns.
	//   journal_mode=WAL   — concurrent readers + one writer; required for
	//                        multi-tenant/multi-agent access to the same file.
	//   temp_store=MEMORY  — keeps temp tables/indices in RAM.
	//   mmap_size          — 64MB virtual memory mapping for faster reads.
	//   cache_size         — ~8MB page cache.
	//   wal_autocheckpoint — explicit default of 1000 pages.
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeout),
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA journal_mode=WAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA mmap_size=67108864",
		"PRAGMA cache_size=-8000",
		"PRAGMA wal_autocheckpoint=1000",
	}

	for _, pragma := range pragmas {
		if err := RetryWithBackoff(context.Background(), func() error {
			_, err := db.ExecContext(context.Background(), pragma)
			return err
		}); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	return db, nil
}

// CheckSchemaVersion verifies the database schema is up to date.
func CheckSchemaVersion(db *sql.DB) error {
	current, latest, err := SchemaVersion(db)
	if err != nil {
		return fmt.Errorf("check schema version: %w", err)
	}
	if current < latest {
		return fmt.Errorf("schema version %d, expected %d: run 'memoryd migrate' to apply migrations", current, latest)
	}
	return nil
}

// InitDBWithPath opens a database and runs migrations.
func InitDBWithPath(dbPath string) (*sql.DB, error) {
	db, err := OpenDB(dbPath)
	if err != nil {
		return nil, err
	}
	if err := MigrateDB(db, dbPath); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

func normalizeSQLiteDSN(dbPath string) string {
	// _txlock=immediate makes all BeginTx calls use BEGIN IMMEDIATE
	// automatically, preventing writer starvation under concurrent access.
	// Exception: in-memory DSNs must not get it — IMMEDIATE locking can
	// deadlock when migrations run nested queries on the same shared-cache
	// connection.
	if strings.HasPrefix(dbPath, "file:") {
		if strings.Contains(dbPath, ":memory:") {
			return dbPath
		}
		if strings.Contains(dbPath, "_txlock=") {
			return dbPath
		}
		if strings.Contains(dbPath, "?") {
			return dbPath + "&_txlock=immediate"
		}
		return dbPath + "?_txlock=immediate"
	}

	if dbPath == ":memory:" {
		return "file::memory:?cache=shared"
	}

	return "file:" + dbPath + "?mode=rwc&_txlock=immediate"
}
