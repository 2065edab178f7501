package sqlite_test

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/pantry-engine/allocation"
	"github.com/warp/pantry-engine/generic"
	"github.com/warp/pantry-engine/inventory"
	"github.com/warp/pantry-engine/planner"
	"github.com/warp/pantry-engine/recipe"
	"github.com/warp/pantry-engine/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestDocuments_SaveLoadVersion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// GIVEN: no inventory document
	_, err := store.Load(ctx, generic.CollectionInventory)
	assert.ErrorIs(t, err, generic.ErrDocumentNotFound)

	// WHEN: it is written twice
	require.NoError(t, store.Save(ctx, generic.CollectionInventory, []byte(`[1]`)))
	require.NoError(t, store.Save(ctx, generic.CollectionInventory, []byte(`[1,2]`)))

	// THEN: the last write wins and the version counts writes
	body, err := store.Load(ctx, generic.CollectionInventory)
	require.NoError(t, err)
	assert.JSONEq(t, `[1,2]`, string(body))

	v, err := store.Version(ctx, generic.CollectionInventory)
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	v, err = store.Version(ctx, generic.CollectionHistory)
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestDocuments_SaveBatchAndReset(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveBatch(ctx, map[generic.Collection][]byte{
		generic.CollectionInventory:   []byte(`[]`),
		generic.CollectionAllocations: []byte(`{}`),
	}))
	require.NoError(t, store.AppendAudit(ctx, generic.AuditEntry{Operation: "cook"}))

	_, err := store.Load(ctx, generic.CollectionAllocations)
	require.NoError(t, err)

	require.NoError(t, store.Reset(ctx))

	_, err = store.Load(ctx, generic.CollectionInventory)
	assert.ErrorIs(t, err, generic.ErrDocumentNotFound)
	entries, err := store.QueryAudit(ctx, generic.AuditFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAudit_FiltersAndOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 10, 18, 0, 0, 0, time.UTC)

	entries := []generic.AuditEntry{
		{Timestamp: base, Operation: "schedule", SlotKey: "2025-06-10-Dinner", Payload: map[string]any{"meal_id": "m1"}},
		{Timestamp: base.Add(100 * time.Millisecond), Operation: "cook", SlotKey: "2025-06-10-Dinner"},
		{Timestamp: base.Add(120 * time.Millisecond), Operation: "schedule", SlotKey: "2025-06-11-Lunch"},
		{Timestamp: base.Add(time.Second), Operation: "add_item"},
	}
	for _, e := range entries {
		require.NoError(t, store.AppendAudit(ctx, e))
	}

	tests := []struct {
		name   string
		filter generic.AuditFilter
		ops    []string
	}{
		{"all oldest first", generic.AuditFilter{}, []string{"schedule", "cook", "schedule", "add_item"}},
		{"by operation", generic.AuditFilter{Operation: "schedule"}, []string{"schedule", "schedule"}},
		{"by slot", generic.AuditFilter{SlotKey: "2025-06-10-Dinner"}, []string{"schedule", "cook"}},
		{"limit", generic.AuditFilter{Limit: 2}, []string{"schedule", "cook"}},
		{"from", generic.AuditFilter{From: ptr(base.Add(110 * time.Millisecond))}, []string{"schedule", "add_item"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := store.QueryAudit(ctx, tc.filter)
			require.NoError(t, err)
			ops := make([]string, 0, len(got))
			for _, e := range got {
				ops = append(ops, e.Operation)
			}
			assert.Equal(t, tc.ops, ops)
		})
	}

	got, err := store.QueryAudit(ctx, generic.AuditFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "m1", got[0].Payload["meal_id"])
	assert.True(t, base.Equal(got[0].Timestamp))
	assert.NotEmpty(t, got[0].ID)
}

// The engine's whole state survives a restart through the SQLite store.
func TestEngineReloadsFromDisk(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pantry.db")
	today := func() generic.Day { return generic.NewDay(2025, time.June, 10) }

	store, err := sqlite.New(path)
	require.NoError(t, err)

	e := planner.New(planner.Options{Store: store, Today: today})
	e.SetLogOutput(io.Discard)
	view, _, err := e.AddItem(ctx, inventory.Item{Name: "Flour", Quantity: decimal.NewFromInt(5), Unit: "cup"})
	require.NoError(t, err)
	res, err := e.ScheduleRecipe(ctx, planner.ScheduleRequest{
		Day:          today(),
		MealType:     generic.Dinner,
		Recipe:       recipe.Recipe{Name: "Bread", Servings: 4, Ingredients: []recipe.Ingredient{{Name: "flour", QuantityText: "2 cups"}}},
		LeftoverDays: 1,
		Lines:        []allocation.Line{{ItemID: view.ID, ItemName: "Flour", Amount: decimal.NewFromInt(2), Unit: "cup"}},
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := sqlite.New(path)
	require.NoError(t, err)
	defer reopened.Close()

	e2 := planner.New(planner.Options{Store: reopened, Today: today})
	e2.SetLogOutput(io.Discard)
	require.NoError(t, e2.Load(ctx))

	item, err := e2.Item(view.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(3).Equal(item.Available))
	require.Len(t, e2.Allocations(), 1)

	meal, err := e2.Meal(res.Cook.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bread", meal.Recipe.Name)

	audit, err := e2.Audit(ctx, generic.AuditFilter{Operation: "schedule"})
	require.NoError(t, err)
	assert.Len(t, audit, 1)
}

func ptr[T any](v T) *T { return &v }
