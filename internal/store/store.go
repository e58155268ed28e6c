package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hkdb/ratmail/internal/logging"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// MaxOpenConns caps concurrent connections; SQLite WAL allows only one
// writer at a time so a large pool just adds lock contention.
const MaxOpenConns = 5

// Store wraps one account's SQLite database and every typed accessor
// described in spec.md §4.2. Readers may run concurrently; writers are
// expected to be serialised by the caller (the store-update actor, C3).
type Store struct {
	db   *sql.DB
	path string
	log  zerolog.Logger
}

// Open opens or creates the SQLite database at path and runs migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(30000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open store database: %w", err)
	}
	db.SetMaxOpenConns(MaxOpenConns)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping store database: %w", err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set store database permissions: %w", err)
	}

	s := &Store{db: db, path: path, log: logging.WithComponent("store")}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			version    INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&current); err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := s.applyMigration(m); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", m.Version, err)
		}
		s.log.Debug().Int("version", m.Version).Msg("applied migration")
	}
	return nil
}

func (s *Store) applyMigration(m Migration) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.SQL); err != nil {
		return fmt.Errorf("migration SQL failed: %w", err)
	}
	if _, err := tx.Exec("INSERT INTO migrations (version) VALUES (?)", m.Version); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return tx.Commit()
}

// canonicalFolderName derives the display-canonical form of a server folder
// name (spec.md §4.2): the server's "INBOX" is shown as "Inbox"; every other
// name is returned unchanged.
func canonicalFolderName(name string) string {
	if name == "INBOX" {
		return "Inbox"
	}
	return name
}
