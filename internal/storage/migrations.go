package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ErrNoMigration indicates no migration has been applied yet.
var ErrNoMigration = errors.New("no migration applied")

// Migrator applies plain-SQL schema migrations from a directory of
// NNN_name.up.sql / NNN_name.down.sql files, tracking the applied
// version in a schema_migrations table. Deployments that prefer
// file-based migrations over the embedded schema constant use this;
// both backends' schemas are written to be valid as migration 001.
type Migrator struct {
	db  *sql.DB
	dir string
}

type migrationPair struct {
	version  uint64
	name     string
	upFile   string
	downFile string
}

// NewMigrator creates a Migrator and ensures the tracking table exists.
func NewMigrator(db *sql.DB, dir string) (*Migrator, error) {
	if db == nil {
		return nil, fmt.Errorf("migrations: database handle is required")
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("migrations: directory %s: %w", dir, err)
	}
	m := &Migrator{db: db, dir: dir}
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return nil, fmt.Errorf("migrations: create tracking table: %w", err)
	}
	return m, nil
}

// Version returns the highest applied version, or ErrNoMigration.
func (m *Migrator) Version() (uint64, error) {
	var v uint64
	err := m.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("migrations: query version: %w", err)
	}
	if v == 0 {
		return 0, ErrNoMigration
	}
	return v, nil
}

// Up applies all pending migrations in ascending order.
func (m *Migrator) Up() error {
	pairs, err := m.load()
	if err != nil {
		return err
	}
	current, err := m.Version()
	if err != nil && !errors.Is(err, ErrNoMigration) {
		return err
	}
	for _, p := range pairs {
		if p.version <= current {
			continue
		}
		script, err := os.ReadFile(p.upFile)
		if err != nil {
			return fmt.Errorf("migrations: read %s: %w", p.upFile, err)
		}
		if _, err := m.db.Exec(string(script)); err != nil {
			return fmt.Errorf("migrations: apply %d (%s): %w", p.version, p.name, err)
		}
		if _, err := m.db.Exec(fmt.Sprintf("INSERT INTO schema_migrations (version) VALUES (%d)", p.version)); err != nil {
			return fmt.Errorf("migrations: record %d: %w", p.version, err)
		}
	}
	return nil
}

// Down rolls back every applied migration in descending order.
func (m *Migrator) Down() error {
	pairs, err := m.load()
	if err != nil {
		return err
	}
	current, err := m.Version()
	if errors.Is(err, ErrNoMigration) {
		return nil
	}
	if err != nil {
		return err
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].version > pairs[j].version })
	for _, p := range pairs {
		if p.version > current || p.downFile == "" {
			continue
		}
		script, err := os.ReadFile(p.downFile)
		if err != nil {
			return fmt.Errorf("migrations: read %s: %w", p.downFile, err)
		}
		if _, err := m.db.Exec(string(script)); err != nil {
			return fmt.Errorf("migrations: roll back %d (%s): %w", p.version, p.name, err)
		}
		if _, err := m.db.Exec(fmt.Sprintf("DELETE FROM schema_migrations WHERE version = %d", p.version)); err != nil {
			return fmt.Errorf("migrations: unrecord %d: %w", p.version, err)
		}
	}
	return nil
}

func (m *Migrator) load() ([]migrationPair, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("migrations: read directory: %w", err)
	}
	byVersion := make(map[uint64]*migrationPair)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		idx := strings.Index(name, "_")
		if idx < 0 {
			continue
		}
		version, err := strconv.ParseUint(name[:idx], 10, 64)
		if err != nil {
			continue
		}
		p, ok := byVersion[version]
		if !ok {
			p = &migrationPair{version: version}
			byVersion[version] = p
		}
		rest := name[idx+1:]
		full := filepath.Join(m.dir, name)
		switch {
		case strings.HasSuffix(rest, ".up.sql"):
			p.name = strings.TrimSuffix(rest, ".up.sql")
			p.upFile = full
		case strings.HasSuffix(rest, ".down.sql"):
			p.downFile = full
		}
	}
	pairs := make([]migrationPair, 0, len(byVersion))
	for _, p := range byVersion {
		if p.upFile != "" {
			pairs = append(pairs, *p)
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].version < pairs[j].version })
	return pairs, nil
}
