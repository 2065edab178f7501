/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements generic.DocumentStore, generic.BatchStore and generic.AuditLog
  using SQLite. Each top-level collection is one row in the documents table;
  saving replaces the row (last write wins) and bumps its version.

KEY TABLES:
  documents:  one JSON body per collection name
  audit_log:  append-only record of engine operations

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of SQLite's own locking.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/pantry.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/pantry-engine/generic"
)

// tsLayout is fixed-width so audit timestamps sort as text.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements the storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Collection documents (whole-document writes, last write wins)
	CREATE TABLE IF NOT EXISTS documents (
		name TEXT PRIMARY KEY,
		body TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		updated_at TEXT NOT NULL
	);

	-- Audit log (append-only)
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		ts TEXT NOT NULL,
		operation TEXT NOT NULL,
		slot_key TEXT,
		payload_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_operation
		ON audit_log(operation);
	CREATE INDEX IF NOT EXISTS idx_audit_slot
		ON audit_log(slot_key) WHERE slot_key IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_audit_ts
		ON audit_log(ts);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// DOCUMENT STORE (generic.DocumentStore interface)
// =============================================================================

// Load returns the body of a named document.
func (s *Store) Load(ctx context.Context, name generic.Collection) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var body string
	err := s.db.QueryRowContext(ctx,
		"SELECT body FROM documents WHERE name = ?", string(name),
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document %s: %w", name, err)
	}
	return []byte(body), nil
}

// Save replaces a named document.
func (s *Store) Save(ctx context.Context, name generic.Collection, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.saveDoc(ctx, s.db, name, body)
}

// SaveBatch replaces several documents atomically.
func (s *Store) SaveBatch(ctx context.Context, docs map[generic.Collection][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for name, body := range docs {
		if err := s.saveDoc(ctx, sqlTx, name, body); err != nil {
			return err
		}
	}

	return sqlTx.Commit()
}

func (s *Store) saveDoc(ctx context.Context, db interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}, name generic.Collection, body []byte) error {
	query := `
		INSERT INTO documents (name, body, version, updated_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(name) DO UPDATE SET
			body = excluded.body,
			version = documents.version + 1,
			updated_at = excluded.updated_at
	`
	_, err := db.ExecContext(ctx, query,
		string(name),
		string(body),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save document %s: %w", name, err)
	}
	return nil
}

// Version returns how many times a document has been written (0 if never).
func (s *Store) Version(ctx context.Context, name generic.Collection) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var version int
	err := s.db.QueryRowContext(ctx,
		"SELECT version FROM documents WHERE name = ?", string(name),
	).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return version, err
}

// Reset deletes every document and audit row. Used by demo scenarios.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"documents", "audit_log"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// AUDIT LOG (generic.AuditLog interface)
// =============================================================================

// AppendAudit records an engine operation.
func (s *Store) AppendAudit(ctx context.Context, entry generic.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = generic.NewID("audit")
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode audit payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, ts, operation, slot_key, payload_json)
		VALUES (?, ?, ?, ?, ?)
	`,
		entry.ID,
		entry.Timestamp.UTC().Format(tsLayout),
		entry.Operation,
		nullString(string(entry.SlotKey)),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// QueryAudit returns audit entries matching filter, oldest first.
func (s *Store) QueryAudit(ctx context.Context, filter generic.AuditFilter) ([]generic.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT id, ts, operation, slot_key, payload_json FROM audit_log WHERE 1=1"
	var args []any
	if filter.Operation != "" {
		query += " AND operation = ?"
		args = append(args, filter.Operation)
	}
	if filter.SlotKey != "" {
		query += " AND slot_key = ?"
		args = append(args, string(filter.SlotKey))
	}
	if filter.From != nil {
		query += " AND ts >= ?"
		args = append(args, filter.From.UTC().Format(tsLayout))
	}
	query += " ORDER BY ts ASC, rowid ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []generic.AuditEntry
	for rows.Next() {
		var (
			e       generic.AuditEntry
			ts      string
			slotKey sql.NullString
			payload sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &e.Operation, &slotKey, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Timestamp, _ = time.Parse(tsLayout, ts)
		e.SlotKey = generic.SlotKey(slotKey.String)
		if payload.Valid && payload.String != "" && payload.String != "null" {
			json.Unmarshal([]byte(payload.String), &e.Payload)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

var (
	_ generic.BatchStore = (*Store)(nil)
	_ generic.AuditLog   = (*Store)(nil)
)
