package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/pantry-engine/allocation"
	"github.com/warp/pantry-engine/generic"
	"github.com/warp/pantry-engine/leftovers"
	"github.com/warp/pantry-engine/mealplan"
	"github.com/warp/pantry-engine/suggest"
)

// Where a cook's deduction lines came from.
const (
	SourceReservation = "reservation"
	SourceReplay      = "replay"
	SourceMatch       = "match"
	SourceNone        = "none"
)

type CookRequest struct {
	SlotKey generic.SlotKey
	MealID  generic.MealID
	// Portions overrides the derived leftover portion count when positive.
	Portions int
	// ExpiryDays overrides the engine's leftover shelf life when positive.
	ExpiryDays int
	// Again cooks an already-cooked meal a second time.
	Again bool
}

type CookResult struct {
	Meal       mealplan.Meal      `json:"meal"`
	Outcome    allocation.Outcome `json:"outcome"`
	Leftover   *leftovers.Record  `json:"leftover,omitempty"`
	Source     string             `json:"source"`
	MatchError string             `json:"match_error,omitempty"`
}

// Cook deducts the meal's ingredients and marks it cooked. Lines come from,
// in order: the slot's pending reservation, the replay cache for the same
// ingredient list, or a fresh match. When matching fails the meal is still
// cooked and nothing is deducted.
func (e *Engine) Cook(ctx context.Context, req CookRequest) (res CookResult, err error) {
	start := time.Now()
	defer func() { e.metrics.ObserveOperation("cook", start, err) }()

	e.mu.Lock()
	meal, err := e.cookable(req)
	if err != nil {
		e.mu.Unlock()
		return CookResult{}, err
	}
	hash := meal.Recipe.IngredientHash()

	var out allocation.Outcome
	if rec, ok := e.ledger.Get(req.SlotKey); ok && rec.RecipeID == meal.Recipe.ID {
		out = e.ledger.Confirm(req.SlotKey, meal.ID)
		res.Source = SourceReservation
	} else if replayed, ok := e.ledger.Replay(req.SlotKey, meal.ID, meal.Recipe.ID, hash); ok {
		out = replayed
		res.Source = SourceReplay
		e.metrics.Replay()
	}

	if res.Source == "" {
		key := cookKey(req.SlotKey)
		seq := e.seq.Issue(key)
		mreq := suggest.MatchRequest{SlotKey: req.SlotKey, Recipe: meal.Recipe, Inventory: e.inventoryLines(), Deduct: true}
		e.mu.Unlock()

		matched := e.match(ctx, mreq)

		e.mu.Lock()
		if err := e.fresh("cook", key, seq); err != nil {
			e.mu.Unlock()
			return CookResult{}, err
		}
		// The meal may have moved or been cooked while the lock was released.
		if meal, err = e.cookable(req); err != nil {
			e.mu.Unlock()
			return CookResult{}, err
		}
		if matched.OK() {
			out = e.ledger.Deduct(req.SlotKey, meal.ID, meal.Recipe.ID, hash, matched.SelectedLines())
			res.Source = SourceMatch
		} else {
			out = e.ledger.Deduct(req.SlotKey, meal.ID, meal.Recipe.ID, "", nil)
			res.Source = SourceNone
			res.MatchError = matched.Err.Error()
		}
	}
	defer e.mu.Unlock()

	if !meal.IsCooked() {
		if meal, err = e.plan.MarkCooked(req.SlotKey, req.MealID); err != nil {
			return CookResult{}, err
		}
	}

	expiryDays := req.ExpiryDays
	if expiryDays <= 0 {
		expiryDays = e.expiryDays
	}
	if rec, ok := e.leftovers.CreateFromCook(leftovers.CookInput{
		Recipe:       meal.Recipe,
		MealID:       meal.ID,
		CookDay:      meal.ScheduledFor,
		LeftoverDays: meal.LeftoverDays,
		Portions:     req.Portions,
		ExpiryDays:   expiryDays,
	}); ok {
		res.Leftover = &rec
	}

	res.Meal = meal
	res.Outcome = out
	e.metrics.LedgerLines(res.Source, len(out.Applied), len(out.Skipped), clampedCount(out))

	payload := map[string]any{
		"meal_id": string(meal.ID),
		"source":  res.Source,
		"applied": len(out.Applied),
		"skipped": len(out.Skipped),
		"removed": len(out.Removed),
		"again":   req.Again,
	}
	if err := e.commit(ctx, "cook", req.SlotKey, payload,
		generic.CollectionInventory, generic.CollectionMealPlan, generic.CollectionAllocations,
		generic.CollectionReplayCache, generic.CollectionLeftovers); err != nil {
		return CookResult{}, err
	}

	for _, skip := range out.Skipped {
		e.logger.Printf("cook %s: skipped %s: %s", req.SlotKey, skip.Line.ItemName, skip.Reason)
	}
	e.logger.Printf("cooked %q at %s from %s: %d applied, %d skipped, %d items used up",
		meal.Recipe.Name, req.SlotKey, res.Source, len(out.Applied), len(out.Skipped), len(out.Removed))
	return res, nil
}

// cookable finds the meal a cook request names and checks it can be cooked.
// Caller holds e.mu.
func (e *Engine) cookable(req CookRequest) (mealplan.Meal, error) {
	meal, ok := e.mealAt(req.SlotKey, req.MealID)
	if !ok {
		return mealplan.Meal{}, fmt.Errorf("%w: %s in %s", generic.ErrMealNotFound, req.MealID, req.SlotKey)
	}
	if meal.IsLeftover {
		return mealplan.Meal{}, fmt.Errorf("%w: %s", generic.ErrNotCookDay, meal.ID)
	}
	if meal.IsCooked() && !req.Again {
		return mealplan.Meal{}, fmt.Errorf("%w: %s", generic.ErrAlreadyCooked, meal.ID)
	}
	return meal, nil
}

func (e *Engine) mealAt(slot generic.SlotKey, mealID generic.MealID) (mealplan.Meal, bool) {
	for _, m := range e.plan.Get(slot) {
		if m.ID == mealID {
			return m, true
		}
	}
	return mealplan.Meal{}, false
}

func cookKey(slot generic.SlotKey) string { return "cook:" + string(slot) }

func clampedCount(out allocation.Outcome) int {
	n := 0
	for _, a := range out.Applied {
		if a.Clamped {
			n++
		}
	}
	return n
}

// =============================================================================
// UNDO COOK
// =============================================================================

type UndoResult struct {
	Meal     mealplan.Meal      `json:"meal"`
	Outcome  allocation.Outcome `json:"outcome"`
	Leftover *leftovers.Record  `json:"dropped_leftover,omitempty"`
}

// UndoCook reverses the cooks of a meal: stock they took is put back (items
// they used up are re-created), the meal is scheduled again and the
// leftover record the cook produced is dropped without a history entry.
// The pending reservation is not re-created. A cooked meal without a
// receipt is refused with ErrNoReceipt and left cooked.
func (e *Engine) UndoCook(ctx context.Context, slot generic.SlotKey, mealID generic.MealID) (res UndoResult, err error) {
	start := time.Now()
	defer func() { e.metrics.ObserveOperation("undo_cook", start, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	meal, ok := e.mealAt(slot, mealID)
	if !ok {
		return UndoResult{}, fmt.Errorf("%w: %s in %s", generic.ErrMealNotFound, mealID, slot)
	}
	if meal.IsLeftover {
		return UndoResult{}, fmt.Errorf("%w: %s", generic.ErrNotCookDay, meal.ID)
	}
	if !meal.IsCooked() {
		return UndoResult{}, fmt.Errorf("%w: %s", generic.ErrNotCooked, meal.ID)
	}

	if _, ok := e.ledger.Receipt(meal.ID); !ok {
		return UndoResult{}, fmt.Errorf("%w: %s", generic.ErrNoReceipt, meal.ID)
	}
	out := e.ledger.UndoCook(meal.ID)
	if meal, err = e.plan.MarkScheduled(slot, mealID); err != nil {
		return UndoResult{}, err
	}
	if rec, ok := e.leftovers.RemoveForMeal(meal.ID); ok {
		res.Leftover = &rec
	}
	res.Meal = meal
	res.Outcome = out
	e.metrics.LedgerLines("undo", len(out.Applied), len(out.Skipped), 0)

	payload := map[string]any{
		"meal_id":   string(meal.ID),
		"restored":  len(out.Applied),
		"recreated": len(out.Restored),
	}
	if err := e.commit(ctx, "undo_cook", slot, payload,
		generic.CollectionInventory, generic.CollectionMealPlan, generic.CollectionAllocations,
		generic.CollectionLeftovers); err != nil {
		return UndoResult{}, err
	}
	return res, nil
}
