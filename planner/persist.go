package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/warp/pantry-engine/allocation"
	"github.com/warp/pantry-engine/generic"
	"github.com/warp/pantry-engine/inventory"
	"github.com/warp/pantry-engine/leftovers"
	"github.com/warp/pantry-engine/mealplan"
	"github.com/warp/pantry-engine/suggest"
)

// Documents written per operation:
//
//	schedule        mealplan, allocations
//	cook / undo     inventory, mealplan, allocations, replay_cache, leftovers
//	remove meal     mealplan, allocations
//	reschedule      mealplan, allocations, leftovers
//	leftovers       leftovers, history
//	inventory edit  inventory
//	family          family
//	shopping        shopping

// Load replaces in-memory state with the stored documents. Missing
// documents leave the corresponding collection empty.
func (e *Engine) Load(ctx context.Context) error {
	if e.docs == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	read := func(name generic.Collection, fn func([]byte) error) error {
		b, err := e.docs.Load(ctx, name)
		if errors.Is(err, generic.ErrDocumentNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load %s: %w", name, err)
		}
		if err := fn(b); err != nil {
			return fmt.Errorf("decode %s: %w", name, err)
		}
		return nil
	}

	inv := inventory.NewStore()
	plan := mealplan.NewPlan()
	lo := leftovers.NewTracker()
	var allocs allocation.Document
	var replay map[string][]allocation.Line
	var family []suggest.FamilyMember
	var shopping []ShoppingItem

	steps := []struct {
		name generic.Collection
		fn   func([]byte) error
	}{
		{generic.CollectionInventory, func(b []byte) error { return json.Unmarshal(b, inv) }},
		{generic.CollectionMealPlan, func(b []byte) error { return json.Unmarshal(b, plan) }},
		{generic.CollectionAllocations, func(b []byte) error { return json.Unmarshal(b, &allocs) }},
		{generic.CollectionReplayCache, func(b []byte) error { return json.Unmarshal(b, &replay) }},
		{generic.CollectionLeftovers, lo.LoadActive},
		{generic.CollectionHistory, lo.LoadHistory},
		{generic.CollectionFamily, func(b []byte) error { return json.Unmarshal(b, &family) }},
		{generic.CollectionShopping, func(b []byte) error { return json.Unmarshal(b, &shopping) }},
	}
	for _, step := range steps {
		if err := read(step.name, step.fn); err != nil {
			return err
		}
	}

	e.inv = inv
	e.plan = plan
	e.ledger = allocation.NewLedger(inv)
	e.ledger.LoadDocument(allocs)
	e.ledger.LoadReplayCache(replay)
	e.leftovers = lo
	e.family = family
	e.shopping = shopping
	e.refreshGauges()

	e.logger.Printf("loaded %d items, %d meals, %d reservations, %d leftovers",
		e.inv.Len(), e.plan.Len(), len(e.ledger.List()), len(e.leftovers.List()))
	return nil
}

// encode serializes one collection. Caller holds e.mu.
func (e *Engine) encode(name generic.Collection) ([]byte, error) {
	switch name {
	case generic.CollectionInventory:
		return json.Marshal(e.inv)
	case generic.CollectionMealPlan:
		return json.Marshal(e.plan)
	case generic.CollectionAllocations:
		return json.Marshal(e.ledger.Document())
	case generic.CollectionReplayCache:
		return json.Marshal(e.ledger.ReplayCache())
	case generic.CollectionLeftovers:
		return e.leftovers.MarshalActive()
	case generic.CollectionHistory:
		return e.leftovers.MarshalHistory()
	case generic.CollectionFamily:
		return json.Marshal(nonNil(e.family))
	case generic.CollectionShopping:
		return json.Marshal(nonNil(e.shopping))
	default:
		return nil, fmt.Errorf("unknown collection %q", name)
	}
}

// commit persists the touched collections, appends an audit entry and
// publishes a change event. Caller holds e.mu.
func (e *Engine) commit(ctx context.Context, op string, slot generic.SlotKey, payload map[string]any, cols ...generic.Collection) error {
	e.refreshGauges()

	if e.docs != nil {
		docs := make(map[generic.Collection][]byte, len(cols))
		for _, c := range cols {
			b, err := e.encode(c)
			if err != nil {
				return fmt.Errorf("%s: encode %s: %w", op, c, err)
			}
			docs[c] = b
		}

		if batch, ok := e.docs.(generic.BatchStore); ok {
			if err := batch.SaveBatch(ctx, docs); err != nil {
				return fmt.Errorf("%s: persist: %w", op, err)
			}
		} else {
			for c, b := range docs {
				if err := e.docs.Save(ctx, c, b); err != nil {
					return fmt.Errorf("%s: persist %s: %w", op, c, err)
				}
			}
		}
	}

	if e.audit != nil {
		entry := generic.AuditEntry{
			ID:        generic.NewID("audit"),
			Timestamp: time.Now(),
			Operation: op,
			SlotKey:   slot,
			Payload:   payload,
		}
		// The documents are already written; a failed audit append is logged only.
		if err := e.audit.AppendAudit(ctx, entry); err != nil {
			e.logger.Printf("audit %s: %v", op, err)
		}
	}

	e.bus.Publish(generic.ChangeEvent{Operation: op, Collections: cols, SlotKey: slot})
	return nil
}

func (e *Engine) refreshGauges() {
	e.metrics.SetSizes(e.inv.Len(), len(e.ledger.List()), len(e.leftovers.List()))
}

// Audit returns audit entries when the store keeps them.
func (e *Engine) Audit(ctx context.Context, filter generic.AuditFilter) ([]generic.AuditEntry, error) {
	if e.audit == nil {
		return nil, nil
	}
	return e.audit.QueryAudit(ctx, filter)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
