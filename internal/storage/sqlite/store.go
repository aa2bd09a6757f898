// Package sqlite implements storage.KnowledgeStore on SQLite using the
// CGO-free modernc.org/sqlite driver. Full-text search runs on an FTS5
// external-content table kept in sync by triggers; embeddings are stored
// as little-endian float32 blobs on the node row.
package sqlite

import (
	"database/sql"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/engramlabs/engram/internal/storage"
)

// Store implements storage.KnowledgeStore using SQLite.
type Store struct {
	db *sql.DB
}

var _ storage.KnowledgeStore = (*Store)(nil)

// New opens a SQLite knowledge store with WAL self-healing. If the
// initial open fails because of stale WAL files left behind by a crashed
// process, it verifies no other process holds them and retries once
// after removing the stale -shm/-wal files.
func New(dsn string) (*Store, error) {
	store, err := open(dsn)
	if err == nil {
		return store, nil
	}

	if !isRecoverableWALError(err) {
		return nil, err
	}
	dbPath := dbPathFromDSN(dsn)
	if dbPath == "" || !isWALStale(dbPath) {
		return nil, err
	}
	removeStaleWAL(dbPath)

	store, retryErr := open(dsn)
	if retryErr != nil {
		return nil, fmt.Errorf("sqlite: open after WAL recovery: %w (original: %v)", retryErr, err)
	}
	log.Printf("sqlite: recovered from stale WAL files for %s", dbPath)
	return store, nil
}

func open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}

	// SQLite supports one concurrent writer. A single open connection
	// serialises writes and avoids SQLITE_BUSY under concurrent load;
	// WAL mode lets readers proceed without blocking the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// RunMigrations applies pending SQL-file migrations from dir. Intended
// for deployments that manage the schema through migration files rather
// than the embedded Schema constant.
func (s *Store) RunMigrations(dir string) error {
	m, err := storage.NewMigrator(s.db, dir)
	if err != nil {
		return fmt.Errorf("sqlite: migrator: %w", err)
	}
	if err := m.Up(); err != nil {
		return fmt.Errorf("sqlite: migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func nullableString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func buildInClause(n int) string {
	if n == 0 {
		return ""
	}
	clause := make([]byte, 0, n*2-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			clause = append(clause, ',')
		}
		clause = append(clause, '?')
	}
	return string(clause)
}

// dbPathFromDSN extracts the filesystem path from a SQLite DSN.
// Returns empty string for in-memory databases or unparseable DSNs.
func dbPathFromDSN(dsn string) string {
	if dsn == "" || dsn == ":memory:" {
		return ""
	}
	if strings.HasPrefix(dsn, "file:") {
		u, err := url.Parse(dsn)
		if err != nil {
			return ""
		}
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		if path == "" || path == ":memory:" {
			return ""
		}
		return path
	}
	return dsn
}

// isRecoverableWALError matches failures caused by stale WAL files left
// behind after a crash.
func isRecoverableWALError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "disk I/O error") ||
		strings.Contains(msg, "database is locked")
}

// isWALStale reports whether -shm/-wal files exist for dbPath and no
// other process holds them open. Returns false when lsof is unavailable
// so nothing gets deleted on uncertain evidence.
func isWALStale(dbPath string) bool {
	shmPath := dbPath + "-shm"
	walPath := dbPath + "-wal"
	if !fileExists(shmPath) && !fileExists(walPath) {
		return false
	}

	lsofPath, err := exec.LookPath("lsof")
	if err != nil {
		return false
	}
	out, err := exec.Command(lsofPath, "-t", dbPath, shmPath, walPath).Output()
	if err != nil {
		// lsof exits non-zero when no process has the files open.
		return true
	}
	return strings.TrimSpace(string(out)) == ""
}

func removeStaleWAL(dbPath string) {
	for _, suffix := range []string{"-shm", "-wal"} {
		if err := os.Remove(dbPath + suffix); err != nil && !os.IsNotExist(err) {
			log.Printf("sqlite: remove stale %s%s: %v", dbPath, suffix, err)
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
