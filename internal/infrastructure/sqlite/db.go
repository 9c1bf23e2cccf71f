// Package sqlite implements the quest index store on an embedded
// SQLite database.
package sqlite

import (
	"database/sql"
	"embed"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/questdex/questdex/internal/log"
	"github.com/questdex/questdex/internal/quests/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB owns the SQLite connection and the schema lifecycle. Migrations
// are forward-only and applied at open; the process must not serve
// traffic when they fail.
type DB struct {
	conn *sql.DB
	path string
}

// NewDB opens (creating if necessary) the database at path and brings
// its schema up to date. The parent directory is created with 0700
// permissions. When an existing database is about to be migrated, a
// .bak copy is written first.
func NewDB(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		if err := backupFile(path, path+".bak"); err != nil {
			return nil, fmt.Errorf("backing up database before migration: %w", err)
		}
	} else if os.IsNotExist(err) {
		if err := os.WriteFile(path, nil, 0600); err != nil {
			return nil, fmt.Errorf("creating database file: %w", err)
		}
	}

	dsn := "file:" + path +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=foreign_keys(1)"
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := applyMigrations(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	log.Info(log.CatDB, "database ready", "path", path)
	return &DB{conn: conn, path: path}, nil
}

// Conn exposes the underlying connection pool.
func (d *DB) Conn() *sql.DB {
	return d.conn
}

// Quests returns the quest repository backed by this database.
func (d *DB) Quests() domain.QuestRepository {
	return newQuestRepository(d.conn)
}

// Close closes the underlying connection pool.
func (d *DB) Close() error {
	return d.conn.Close()
}

// applyMigrations runs every embedded migration step that has not been
// applied yet, in version order. Each step executes in one transaction
// together with its schema_migrations row, so a failed step leaves the
// schema fully at the prior version.
func applyMigrations(conn *sql.DB) error {
	_, err := conn.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int64
	err = conn.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current)
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("listing migrations: %w", err)
	}
	sort.Strings(names)

	for _, name := range names {
		version, err := migrationVersion(name)
		if err != nil {
			return err
		}
		if version <= current {
			continue
		}

		body, err := fs.ReadFile(migrationsFS, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		if err := applyMigration(conn, version, string(body)); err != nil {
			return fmt.Errorf("applying migration %s: %w", name, err)
		}
		log.Info(log.CatDB, "applied migration", "version", version, "file", name)
		current = version
	}

	return nil
}

func applyMigration(conn *sql.DB, version int64, body string) error {
	tx, err := conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(body); err != nil {
		return err
	}
	if _, err := tx.Exec(
		`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
		version, time.Now().Unix(),
	); err != nil {
		return err
	}
	return tx.Commit()
}

// migrationVersion extracts the numeric prefix of a migration file
// name, e.g. "migrations/0002_quest_name_index.sql" -> 2.
func migrationVersion(name string) (int64, error) {
	base := filepath.Base(name)
	prefix, _, ok := strings.Cut(base, "_")
	if !ok {
		return 0, fmt.Errorf("migration %s has no numeric prefix", name)
	}
	version, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("migration %s has no numeric prefix: %w", name, err)
	}
	return version, nil
}

func backupFile(src, dst string) error {
	in, err := os.Open(src) //nolint:gosec // G304: src is the configured database path
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	_, err = io.Copy(out, in)
	return err
}
