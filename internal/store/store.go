package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	appLog "lunarcal/internal/log"
)

// ErrNotFound is returned when a reminder id does not exist.
var ErrNotFound = errors.New("reminder not found")

// SQLiteStore is the durable owner of reminders and their exceptions.
type SQLiteStore struct {
	db *sqlx.DB
}

// Open opens (or creates) the SQLite database at dbPath, enables WAL mode
// and foreign keys, and runs any pending schema migrations. ":memory:" gives
// a private in-memory database.
func Open(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// SQLite has a single writer; one connection also keeps ":memory:"
	// databases from splitting across connections.
	db.SetMaxOpenConns(1)

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling WAL mode: %w", err)
		}
		if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting synchronous mode: %w", err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	appLog.Info("reminder store opened", "path", dbPath)
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if m.version == 2 {
			// Databases from before recurrence support lack this column.
			if err := s.ensureColumn("reminders", "recurrence_type", "TEXT DEFAULT 'NONE'"); err != nil {
				return err
			}
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
		appLog.Debug("applied migration", "version", m.version)
	}

	return nil
}

// ensureColumn adds column to table unless it already exists.
func (s *SQLiteStore) ensureColumn(table, column, decl string) error {
	var count int
	err := s.db.Get(&count,
		"SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", table, column)
	if err != nil {
		return fmt.Errorf("inspecting %s columns: %w", table, err)
	}
	if count > 0 {
		return nil
	}
	if _, err := s.db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl)); err != nil {
		return fmt.Errorf("adding %s.%s: %w", table, column, err)
	}
	appLog.Info("added missing column", "table", table, "column", column)
	return nil
}
