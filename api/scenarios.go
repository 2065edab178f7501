/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built pantries that populate the store with realistic
	data for demos. Each scenario runs through the engine's own operations
	(add item, schedule, cook) so the ledger, leftovers and audit log are
	exactly what a user would have produced by hand.

AVAILABLE SCENARIOS:

	weeknight-basics: Stocked pantry, dinner and breakfast reserved, family of three
	expiring-fridge:  Items and leftovers at every expiry stage
	overcommitted:    Two meals reserving more milk than the fridge holds
	cooked-week:      Meals already cooked, leftovers in the fridge

HOW SCENARIOS WORK:
 1. Reset the store (clear all documents and audit)
 2. Reload the engine from the empty store
 3. Add inventory
 4. Schedule meals with explicit reservation lines (no suggestion service needed)
 5. Optionally cook

Days are relative to the engine's today so scenarios never go stale.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "overcommitted"}

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: ResetDatabase
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/warp/pantry-engine/allocation"
	"github.com/warp/pantry-engine/generic"
	"github.com/warp/pantry-engine/inventory"
	"github.com/warp/pantry-engine/leftovers"
	"github.com/warp/pantry-engine/planner"
	"github.com/warp/pantry-engine/recipe"
	"github.com/warp/pantry-engine/suggest"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "weeknight-basics",
		Name:        "Weeknight Basics",
		Description: "Stocked pantry with dinner and breakfast reserved and a family of three",
	},
	{
		ID:          "expiring-fridge",
		Name:        "Expiring Fridge",
		Description: "Items and leftovers expiring today, soon, and already gone",
	},
	{
		ID:          "overcommitted",
		Name:        "Overcommitted",
		Description: "Two meals reserve more milk than the fridge holds",
	},
	{
		ID:          "cooked-week",
		Name:        "Cooked Week",
		Description: "Meals already cooked with leftovers waiting to be eaten",
	},
}

var errResetUnsupported = errors.New("store does not support reset")

// resetter is implemented by stores that can drop all data.
type resetter interface {
	Reset(ctx context.Context) error
}

// ListScenarios returns available demo scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, map[string]any{"scenario": nil})
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, map[string]any{"scenario": s})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"scenario": ScenarioDTO{ID: current, Name: current}})
}

// LoadScenario resets the store and loads a demo scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}

	var loader func(context.Context) error
	switch req.ScenarioID {
	case "weeknight-basics":
		loader = h.loadWeeknightBasics
	case "expiring-fridge":
		loader = h.loadExpiringFridge
	case "overcommitted":
		loader = h.loadOvercommitted
	case "cooked-week":
		loader = h.loadCookedWeek
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	ctx := r.Context()
	if err := h.reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	if err := loader(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, errResetUnsupported) {
			status = http.StatusNotImplemented
		}
		writeError(w, status, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) reset(ctx context.Context) error {
	rs, ok := h.Store.(resetter)
	if !ok {
		return errResetUnsupported
	}
	if err := rs.Reset(ctx); err != nil {
		return err
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	return h.Engine.Load(ctx)
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadWeeknightBasics(ctx context.Context) error {
	today := h.Engine.Today()

	ids, err := h.addItems(ctx, []inventory.Item{
		{Name: "flour", Quantity: qty("5"), Unit: "cup", Location: inventory.LocationPantry, Staple: true, MinStock: qty("2")},
		{Name: "rice", Quantity: qty("4"), Unit: "cup", Location: inventory.LocationPantry, Staple: true, MinStock: qty("1")},
		{Name: "eggs", Quantity: qty("12"), Unit: "each", Location: inventory.LocationFridge, Staple: true, MinStock: qty("6")},
		{Name: "chicken thighs", Quantity: qty("2"), Unit: "lb", Location: inventory.LocationFridge, Expiry: dayPtr(today.AddDays(3))},
		{Name: "broccoli", Quantity: qty("1"), Unit: "bunch", Location: inventory.LocationFridge, Expiry: dayPtr(today.AddDays(5))},
	})
	if err != nil {
		return err
	}

	if err := h.Engine.SetFamily(ctx, []suggest.FamilyMember{
		{Name: "Sam", Age: 38},
		{Name: "Alex", Age: 36, Restrictions: []string{"no shellfish"}},
		{Name: "Robin", Age: 7, Preferences: []string{"mild"}},
	}); err != nil {
		return err
	}

	if _, err := h.Engine.ScheduleRecipe(ctx, planner.ScheduleRequest{
		Day:          today.AddDays(1),
		MealType:     generic.Dinner,
		Recipe:       chickenRiceBowls(),
		LeftoverDays: 1,
		Lines: []allocation.Line{
			{ItemID: ids["chicken thighs"], ItemName: "chicken thighs", Amount: qty("1.5"), Unit: "lb"},
			{ItemID: ids["rice"], ItemName: "rice", Amount: qty("2"), Unit: "cup"},
			{ItemID: ids["broccoli"], ItemName: "broccoli", Amount: qty("1"), Unit: "bunch"},
		},
	}); err != nil {
		return err
	}

	_, err = h.Engine.ScheduleRecipe(ctx, planner.ScheduleRequest{
		Day:      today.AddDays(2),
		MealType: generic.Breakfast,
		Recipe:   omelette(),
		Lines: []allocation.Line{
			{ItemID: ids["eggs"], ItemName: "eggs", Amount: qty("4"), Unit: "each"},
		},
	})
	return err
}

func (h *Handler) loadExpiringFridge(ctx context.Context) error {
	today := h.Engine.Today()

	if _, err := h.addItems(ctx, []inventory.Item{
		{Name: "milk", Quantity: qty("2"), Unit: "cup", Location: inventory.LocationFridge, Expiry: dayPtr(today)},
		{Name: "spinach", Quantity: qty("1"), Unit: "bag", Location: inventory.LocationFridge, Expiry: dayPtr(today.AddDays(1))},
		{Name: "yogurt", Quantity: qty("4"), Unit: "each", Location: inventory.LocationFridge, Expiry: dayPtr(today.AddDays(-2))},
		{Name: "cheddar", Quantity: qty("8"), Unit: "oz", Location: inventory.LocationFridge, Expiry: dayPtr(today.AddDays(10))},
		{Name: "canned tomatoes", Quantity: qty("3"), Unit: "can", Location: inventory.LocationPantry},
	}); err != nil {
		return err
	}

	for _, rec := range []leftovers.Record{
		{Name: "Lasagna", Portions: 3, Expiry: today, StorageText: "Covered, in the fridge", ReheatText: "Oven at 180C for 20 minutes"},
		{Name: "Lentil soup", Portions: 2, Expiry: today.AddDays(2)},
		{Name: "Fried rice", Portions: 1, Expiry: today.AddDays(-1)},
	} {
		if _, err := h.Engine.AddLeftover(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadOvercommitted(ctx context.Context) error {
	today := h.Engine.Today()

	ids, err := h.addItems(ctx, []inventory.Item{
		{Name: "milk", Quantity: qty("1"), Unit: "cup", Location: inventory.LocationFridge, Expiry: dayPtr(today.AddDays(4)), Staple: true, MinStock: qty("2")},
		{Name: "flour", Quantity: qty("3"), Unit: "cup", Location: inventory.LocationPantry, Staple: true, MinStock: qty("1")},
		{Name: "eggs", Quantity: qty("6"), Unit: "each", Location: inventory.LocationFridge},
	})
	if err != nil {
		return err
	}

	for i, mt := range []generic.MealType{generic.Breakfast, generic.Breakfast} {
		if _, err := h.Engine.ScheduleRecipe(ctx, planner.ScheduleRequest{
			Day:      today.AddDays(i + 1),
			MealType: mt,
			Recipe:   pancakes(),
			Lines: []allocation.Line{
				{ItemID: ids["milk"], ItemName: "milk", Amount: qty("1"), Unit: "cup"},
				{ItemID: ids["flour"], ItemName: "flour", Amount: qty("1.5"), Unit: "cup"},
				{ItemID: ids["eggs"], ItemName: "eggs", Amount: qty("2"), Unit: "each"},
			},
		}); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadCookedWeek(ctx context.Context) error {
	today := h.Engine.Today()

	ids, err := h.addItems(ctx, []inventory.Item{
		{Name: "rice", Quantity: qty("6"), Unit: "cup", Location: inventory.LocationPantry, Staple: true, MinStock: qty("2")},
		{Name: "chicken thighs", Quantity: qty("3"), Unit: "lb", Location: inventory.LocationFridge, Expiry: dayPtr(today.AddDays(2))},
		{Name: "broccoli", Quantity: qty("2"), Unit: "bunch", Location: inventory.LocationFridge},
		{Name: "eggs", Quantity: qty("8"), Unit: "each", Location: inventory.LocationFridge},
	})
	if err != nil {
		return err
	}

	res, err := h.Engine.ScheduleRecipe(ctx, planner.ScheduleRequest{
		Day:          today,
		MealType:     generic.Dinner,
		Recipe:       chickenRiceBowls(),
		LeftoverDays: 2,
		Lines: []allocation.Line{
			{ItemID: ids["chicken thighs"], ItemName: "chicken thighs", Amount: qty("1.5"), Unit: "lb"},
			{ItemID: ids["rice"], ItemName: "rice", Amount: qty("2"), Unit: "cup"},
			{ItemID: ids["broccoli"], ItemName: "broccoli", Amount: qty("1"), Unit: "bunch"},
		},
	})
	if err != nil {
		return err
	}
	if _, err := h.Engine.Cook(ctx, planner.CookRequest{
		SlotKey:  res.Cook.SlotKey(),
		MealID:   res.Cook.ID,
		Portions: 2,
	}); err != nil {
		return err
	}

	_, err = h.Engine.ScheduleRecipe(ctx, planner.ScheduleRequest{
		Day:      today.AddDays(1),
		MealType: generic.Breakfast,
		Recipe:   omelette(),
		Lines: []allocation.Line{
			{ItemID: ids["eggs"], ItemName: "eggs", Amount: qty("4"), Unit: "each"},
		},
	})
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

// addItems adds items and returns their IDs by name.
func (h *Handler) addItems(ctx context.Context, items []inventory.Item) (map[string]generic.ItemID, error) {
	ids := make(map[string]generic.ItemID, len(items))
	for _, it := range items {
		view, _, err := h.Engine.AddItem(ctx, it)
		if err != nil {
			return nil, fmt.Errorf("add %s: %w", it.Name, err)
		}
		ids[it.Name] = view.ID
	}
	return ids, nil
}

func qty(s string) generic.Quantity { return generic.MustParseQuantity(s) }

func dayPtr(d generic.Day) *generic.Day { return &d }

func chickenRiceBowls() recipe.Recipe {
	return recipe.Recipe{
		Name:     "Chicken rice bowls",
		Servings: 4,
		Ingredients: []recipe.Ingredient{
			{Name: "chicken thighs", QuantityText: "1.5 lb"},
			{Name: "rice", QuantityText: "2 cups"},
			{Name: "broccoli", QuantityText: "1 bunch"},
		},
		Steps:       []string{"Cook the rice.", "Sear the chicken.", "Steam the broccoli and assemble."},
		StorageText: "Airtight container, fridge",
		ReheatText:  "Microwave 2 minutes with a splash of water",
	}
}

func omelette() recipe.Recipe {
	return recipe.Recipe{
		Name:        "Cheese omelette",
		Servings:    2,
		Ingredients: []recipe.Ingredient{{Name: "eggs", QuantityText: "4"}},
		Steps:       []string{"Whisk the eggs.", "Cook gently and fold."},
	}
}

func pancakes() recipe.Recipe {
	return recipe.Recipe{
		Name:     "Pancakes",
		Servings: 4,
		Ingredients: []recipe.Ingredient{
			{Name: "milk", QuantityText: "1 cup"},
			{Name: "flour", QuantityText: "1.5 cups"},
			{Name: "eggs", QuantityText: "2"},
		},
		Steps: []string{"Mix.", "Rest 10 minutes.", "Fry in batches."},
	}
}
