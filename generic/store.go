/*
store.go - Persistence interface for named collection documents

PURPOSE:
  The engine persists each top-level collection as one JSON document
  (inventory list, meal plan map, allocation map, leftovers list, history
  list, family list, shopping list). The only contract is read-current /
  write-whole-collection: no partial or transactional writes, last write
  wins per document.

KEY INTERFACES:
  DocumentStore: Load / Save named documents
  AuditLog:      Append-only record of engine operations

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - generic/store/memory.go: In-memory for testing

SEE ALSO:
  - planner/persist.go: which collections each operation writes
*/
package generic

import (
	"context"
	"time"
)

// =============================================================================
// DOCUMENT STORE
// =============================================================================

// DocumentStore reads and writes whole named JSON documents.
type DocumentStore interface {
	// Load returns the current body of a document, or ErrDocumentNotFound.
	Load(ctx context.Context, name Collection) ([]byte, error)

	// Save replaces the document body. Last write wins.
	Save(ctx context.Context, name Collection, body []byte) error
}

// BatchStore is implemented by stores that can write several documents in
// one transaction. The engine uses it when available so a crash mid-write
// cannot leave the ledger and inventory out of step.
type BatchStore interface {
	DocumentStore
	SaveBatch(ctx context.Context, docs map[Collection][]byte) error
}

// =============================================================================
// AUDIT LOG - Separate from documents, tracks which operation ran when
// =============================================================================

type AuditEntry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Operation string         `json:"operation"`
	SlotKey   SlotKey        `json:"slot_key,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// AuditLog stores audit entries. Append-only.
type AuditLog interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
	QueryAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

type AuditFilter struct {
	Operation string
	SlotKey   SlotKey
	From      *time.Time
	Limit     int
}
