// Package store provides DocumentStore implementations.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/warp/pantry-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu     sync.RWMutex
	docs   map[generic.Collection][]byte
	audit  []generic.AuditEntry
	writes int
}

func NewMemory() *Memory {
	return &Memory{docs: make(map[generic.Collection][]byte)}
}

func (m *Memory) Load(_ context.Context, name generic.Collection) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	body, ok := m.docs[name]
	if !ok {
		return nil, generic.ErrDocumentNotFound
	}
	out := make([]byte, len(body))
	copy(out, body)
	return out, nil
}

func (m *Memory) Save(_ context.Context, name generic.Collection, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveLocked(name, body)
	return nil
}

// SaveBatch writes all documents under one lock.
func (m *Memory) SaveBatch(_ context.Context, docs map[generic.Collection][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, body := range docs {
		m.saveLocked(name, body)
	}
	return nil
}

func (m *Memory) saveLocked(name generic.Collection, body []byte) {
	cp := make([]byte, len(body))
	copy(cp, body)
	m.docs[name] = cp
	m.writes++
}

// Reset drops every document and audit entry.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = make(map[generic.Collection][]byte)
	m.audit = nil
	return nil
}

// Writes returns how many document writes have happened. Tests use it to
// check that an operation persisted.
func (m *Memory) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (m *Memory) AppendAudit(_ context.Context, entry generic.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	m.audit = append(m.audit, entry)
	return nil
}

func (m *Memory) QueryAudit(_ context.Context, filter generic.AuditFilter) ([]generic.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []generic.AuditEntry
	for _, e := range m.audit {
		if filter.Operation != "" && e.Operation != filter.Operation {
			continue
		}
		if filter.SlotKey != "" && e.SlotKey != filter.SlotKey {
			continue
		}
		if filter.From != nil && e.Timestamp.Before(*filter.From) {
			continue
		}
		result = append(result, e)
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}

var (
	_ generic.BatchStore = (*Memory)(nil)
	_ generic.AuditLog   = (*Memory)(nil)
)
