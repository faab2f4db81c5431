package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

const currentSchemaVersion = 1

// ErrDestroyed is returned by operations on a store after Destroy.
var ErrDestroyed = errors.New("store: destroyed")

// LogStore is the capability set the routing engine needs from persistence.
type LogStore interface {
	AppendHistory(ctx context.Context, rec HistoryRecord) error
	AppendReply(ctx context.Context, rec ReplyRecord) error
	// LookupReply reports found=false when no record has the given id.
	LookupReply(ctx context.Context, replyID string) (rec ReplyRecord, found bool, err error)
	HistoryFor(ctx context.Context, messageUID string) ([]HistoryRecord, error)
	Destroy() error
}

// Store is the SQLite-backed LogStore.
type Store struct {
	db   *sql.DB
	path string
}

var _ LogStore = (*Store)(nil)

// SessionPath returns the database path for a session inside dir.
func SessionPath(dir, sessionID string) string {
	return filepath.Join(dir, "switchboard-"+sessionID+".db")
}

// OpenSession creates dir if needed and opens the session's database.
func OpenSession(dir, sessionID string) (*Store, error) {
	if sessionID == "" {
		return nil, errors.New("open session: empty session id")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	return Open(SessionPath(dir, sessionID))
}

// Open creates or opens a SQLite database at path and applies pragmas and
// schema. Safe to call on an existing database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// One writer, so one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection without removing the file.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Destroy closes the database and removes its files, WAL and shared-memory
// files included.
func (s *Store) Destroy() error {
	var errs []error
	if err := s.Close(); err != nil {
		errs = append(errs, err)
	}
	for _, p := range []string{s.path, s.path + "-wal", s.path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("destroy %s: %w", s.path, err)
	}
	return nil
}

func (s *Store) conn() (*sql.DB, error) {
	if s.db == nil {
		return nil, ErrDestroyed
	}
	return s.db, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
