package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/pantry-engine/generic"
)

func TestMemory_DocumentsAreCopied(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	body := []byte(`[1]`)
	require.NoError(t, m.Save(ctx, generic.CollectionLeftovers, body))
	body[1] = '9'

	got, err := m.Load(ctx, generic.CollectionLeftovers)
	require.NoError(t, err)
	assert.Equal(t, `[1]`, string(got))

	got[1] = '7'
	again, err := m.Load(ctx, generic.CollectionLeftovers)
	require.NoError(t, err)
	assert.Equal(t, `[1]`, string(again))

	require.NoError(t, m.SaveBatch(ctx, map[generic.Collection][]byte{
		generic.CollectionFamily:   []byte(`[]`),
		generic.CollectionShopping: []byte(`[]`),
	}))
	assert.Equal(t, 3, m.Writes())
}

func TestMemory_AuditAndReset(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.AppendAudit(ctx, generic.AuditEntry{Operation: "schedule", SlotKey: "2025-06-10-Dinner"}))
	require.NoError(t, m.AppendAudit(ctx, generic.AuditEntry{Operation: "cook", SlotKey: "2025-06-10-Dinner"}))
	require.NoError(t, m.AppendAudit(ctx, generic.AuditEntry{Operation: "schedule", SlotKey: "2025-06-11-Lunch"}))
	require.NoError(t, m.Save(ctx, generic.CollectionInventory, []byte(`[]`)))

	got, err := m.QueryAudit(ctx, generic.AuditFilter{Operation: "schedule"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.False(t, got[0].Timestamp.IsZero())

	got, err = m.QueryAudit(ctx, generic.AuditFilter{SlotKey: "2025-06-10-Dinner", Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "schedule", got[0].Operation)

	require.NoError(t, m.Reset(ctx))
	_, err = m.Load(ctx, generic.CollectionInventory)
	assert.ErrorIs(t, err, generic.ErrDocumentNotFound)
	got, err = m.QueryAudit(ctx, generic.AuditFilter{})
	require.NoError(t, err)
	assert.Empty(t, got)
}
