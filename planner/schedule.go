package planner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/warp/pantry-engine/allocation"
	"github.com/warp/pantry-engine/generic"
	"github.com/warp/pantry-engine/leftovers"
	"github.com/warp/pantry-engine/mealplan"
	"github.com/warp/pantry-engine/recipe"
	"github.com/warp/pantry-engine/suggest"
)

// =============================================================================
// SCHEDULE
// =============================================================================

type ScheduleRequest struct {
	Day          generic.Day
	MealType     generic.MealType
	Recipe       recipe.Recipe
	LeftoverDays int

	// Lines, when set, are reserved as given and the matcher is not called.
	// Used when the user picks candidates by hand.
	Lines []allocation.Line
}

type ScheduleResult struct {
	Cook      mealplan.Meal   `json:"cook"`
	Leftovers []mealplan.Meal `json:"leftovers"`
	// Record is nil when nothing was reserved.
	Record *allocation.Record `json:"allocation,omitempty"`

	// Matches is what the matcher returned, selected or not.
	Matches []suggest.Match `json:"matches,omitempty"`
	// Candidates are offline low-confidence proposals, filled when matching failed.
	Candidates []suggest.Match `json:"candidates,omitempty"`
	MatchError string          `json:"match_error,omitempty"`
}

// ScheduleRecipe places a cook day plus its leftover chain and reserves the
// matched ingredients against the cook slot. A failed match still schedules
// the meal, with nothing reserved.
func (e *Engine) ScheduleRecipe(ctx context.Context, req ScheduleRequest) (res ScheduleResult, err error) {
	start := time.Now()
	defer func() { e.metrics.ObserveOperation("schedule", start, err) }()

	if err := validateSchedule(req); err != nil {
		return ScheduleResult{}, err
	}
	r := req.Recipe.Clone()
	r.EnsureID()
	slot := generic.NewSlotKey(req.Day, req.MealType)

	lines := req.Lines
	if lines == nil {
		e.mu.Lock()
		seq := e.seq.Issue(matchKey(slot))
		mreq := suggest.MatchRequest{SlotKey: slot, Recipe: r, Inventory: e.inventoryLines()}
		e.mu.Unlock()

		matched := e.match(ctx, mreq)

		e.mu.Lock()
		defer e.mu.Unlock()
		if err := e.fresh("schedule", matchKey(slot), seq); err != nil {
			return ScheduleResult{}, err
		}
		res.Matches = matched.Matches
		lines = matched.SelectedLines()
		if !matched.OK() {
			res.MatchError = matched.Err.Error()
			res.Candidates = suggest.LocalCandidates(r, e.inv)
		}
	} else {
		e.mu.Lock()
		defer e.mu.Unlock()
	}

	cook, chain, err := e.plan.ScheduleCookDay(req.Day, req.MealType, r, req.LeftoverDays)
	if err != nil {
		return ScheduleResult{}, err
	}
	res.Cook = cook
	res.Leftovers = chain
	// With no lines there is nothing to hold; a later cook falls back to the
	// replay cache or a fresh match.
	if len(lines) > 0 {
		rec := e.ledger.Reserve(slot, cook.Recipe.Name, cook.Recipe.ID, cook.Recipe.IngredientHash(), lines)
		res.Record = &rec
	}

	payload := map[string]any{
		"meal_id":       string(cook.ID),
		"recipe":        cook.Recipe.Name,
		"leftover_days": req.LeftoverDays,
		"lines":         len(lines),
	}
	if res.MatchError != "" {
		payload["match_error"] = res.MatchError
	}
	if err := e.commit(ctx, "schedule", slot, payload, generic.CollectionMealPlan, generic.CollectionAllocations); err != nil {
		return ScheduleResult{}, err
	}
	e.logger.Printf("scheduled %q at %s with %d leftover days, %d lines reserved",
		cook.Recipe.Name, slot, len(chain), len(lines))
	return res, nil
}

func validateSchedule(req ScheduleRequest) error {
	if req.Day.IsZero() {
		return &generic.ValidationError{Field: "day", Message: "day is required"}
	}
	if strings.TrimSpace(string(req.MealType)) == "" {
		return &generic.ValidationError{Field: "meal_type", Message: "meal type is required"}
	}
	if req.LeftoverDays < 0 || req.LeftoverDays > mealplan.MaxLeftoverDays {
		return &generic.ValidationError{
			Field:   "leftover_days",
			Message: fmt.Sprintf("leftover days must be between 0 and %d", mealplan.MaxLeftoverDays),
		}
	}
	return req.Recipe.Validate()
}

// =============================================================================
// REMOVE
// =============================================================================

type RemoveResult struct {
	Removed  []mealplan.Meal    `json:"removed"`
	Released allocation.Outcome `json:"released"`
}

// RemoveMeal deletes a meal. Removing a cook day removes its leftover chain
// and releases the slot's reservation, provided the reservation belongs to
// that meal's recipe. A cooked meal keeps its receipt; use UndoCook first to
// put stock back.
func (e *Engine) RemoveMeal(ctx context.Context, slot generic.SlotKey, mealID generic.MealID) (res RemoveResult, err error) {
	start := time.Now()
	defer func() { e.metrics.ObserveOperation("remove", start, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	removed, err := e.plan.RemoveMeal(slot, mealID)
	if err != nil {
		return RemoveResult{}, err
	}
	res.Removed = removed
	res.Released = allocation.Outcome{SlotKey: slot}

	meal := removed[0]
	if !meal.IsLeftover {
		if rec, ok := e.ledger.Get(slot); ok && rec.RecipeID == meal.Recipe.ID {
			res.Released = e.ledger.Release(slot)
		}
		e.ledger.ForgetReceipts(meal.ID)
	}

	payload := map[string]any{
		"meal_id":  string(mealID),
		"removed":  len(removed),
		"released": res.Released.Found,
	}
	if err := e.commit(ctx, "remove", slot, payload, generic.CollectionMealPlan, generic.CollectionAllocations); err != nil {
		return RemoveResult{}, err
	}
	return res, nil
}

// =============================================================================
// RESCHEDULE
// =============================================================================

type RescheduleResult struct {
	mealplan.Reschedule
	// AllocationMoved is true when the cook slot's reservation moved too.
	AllocationMoved bool               `json:"allocation_moved"`
	Shifted         []leftovers.Record `json:"shifted_leftovers,omitempty"`
}

// RescheduleMeal moves a meal to a new day and meal type. A cook day drags
// its leftover chain, its reservation and (if already cooked) its receipt
// and leftover expiry along by the same number of days.
func (e *Engine) RescheduleMeal(ctx context.Context, mealID generic.MealID, from generic.SlotKey, newDay generic.Day, newMealType generic.MealType) (res RescheduleResult, err error) {
	start := time.Now()
	defer func() { e.metrics.ObserveOperation("reschedule", start, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	owns := false
	if meal, ok := e.mealAt(from, mealID); ok && !meal.IsLeftover && !newDay.IsZero() && e.ownsSlot(from, meal) {
		owns = true
		mealType := newMealType
		if mealType == "" {
			mealType = meal.MealType
		}
		if err := e.ledger.CanMove(from, generic.NewSlotKey(newDay, mealType)); err != nil {
			return RescheduleResult{}, err
		}
	}

	moved, err := e.plan.RescheduleMeal(mealID, from, newDay, newMealType)
	if err != nil {
		return RescheduleResult{}, err
	}
	res.Reschedule = moved

	if !moved.Meal.IsLeftover {
		if owns {
			if res.AllocationMoved, err = e.ledger.Move(moved.From, moved.To); err != nil {
				return RescheduleResult{}, err
			}
		}
		e.ledger.MoveReceipts(moved.Meal.ID, moved.To)
		if moved.DeltaDays != 0 {
			res.Shifted = e.leftovers.ShiftExpiry(moved.Meal.ID, moved.DeltaDays)
		}
	}

	payload := map[string]any{
		"meal_id":    string(mealID),
		"to":         string(moved.To),
		"delta_days": moved.DeltaDays,
		"moved":      len(moved.Moved),
	}
	if err := e.commit(ctx, "reschedule", moved.To, payload,
		generic.CollectionMealPlan, generic.CollectionAllocations, generic.CollectionLeftovers); err != nil {
		return RescheduleResult{}, err
	}
	return res, nil
}

// ownsSlot reports whether the pending record at slot belongs to meal.
// Another recipe scheduled into the same slot keeps its own record.
func (e *Engine) ownsSlot(slot generic.SlotKey, meal mealplan.Meal) bool {
	rec, ok := e.ledger.Get(slot)
	return ok && rec.RecipeID == meal.Recipe.ID
}
