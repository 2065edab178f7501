package planner_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/pantry-engine/allocation"
	"github.com/warp/pantry-engine/generic"
	"github.com/warp/pantry-engine/generic/store"
	"github.com/warp/pantry-engine/inventory"
	"github.com/warp/pantry-engine/leftovers"
	"github.com/warp/pantry-engine/mealplan"
	"github.com/warp/pantry-engine/planner"
	"github.com/warp/pantry-engine/recipe"
	"github.com/warp/pantry-engine/suggest"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var (
	june10 = generic.NewDay(2025, time.June, 10)
	june11 = generic.NewDay(2025, time.June, 11)
	june12 = generic.NewDay(2025, time.June, 12)
)

// fakeClient answers matches from a fixed list. When hold is set, the first
// match call signals entered and blocks until hold is closed.
type fakeClient struct {
	mu         sync.Mutex
	matches    []suggest.Match
	matchErr   *generic.SuggestionError
	matchCalls int
	hold       chan struct{}
	entered    chan struct{}

	recipes     suggest.RecipesResult
	lastSuggest suggest.SuggestRequest
}

func (f *fakeClient) MatchIngredients(_ context.Context, _ suggest.MatchRequest) suggest.MatchResult {
	f.mu.Lock()
	f.matchCalls++
	first := f.matchCalls == 1
	matches, matchErr := f.matches, f.matchErr
	f.mu.Unlock()

	if first && f.hold != nil {
		close(f.entered)
		<-f.hold
	}
	if matchErr != nil {
		return suggest.MatchResult{Err: matchErr}
	}
	return suggest.MatchResult{Matches: append([]suggest.Match(nil), matches...)}
}

func (f *fakeClient) SuggestRecipes(_ context.Context, req suggest.SuggestRequest) suggest.RecipesResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSuggest = req
	return f.recipes
}

func (f *fakeClient) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.matchCalls
}

func (f *fakeClient) breakMatching() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.matchErr = &generic.SuggestionError{Op: "match", Kind: generic.SuggestionTransport, Reason: "service unavailable"}
}

func flourMatch(amount string) suggest.Match {
	return suggest.Match{
		Ingredient:  "flour",
		ItemID:      "flour",
		MatchedName: "Flour",
		Amount:      dec(amount),
		Unit:        "cup",
		Confidence:  allocation.ConfidenceHigh,
		Selected:    true,
	}
}

func bread() recipe.Recipe {
	return recipe.Recipe{
		Name:        "Bread",
		Servings:    4,
		Ingredients: []recipe.Ingredient{{Name: "flour", QuantityText: "2 cups"}},
	}
}

func newTestEngine(t *testing.T, client suggest.Client, docs *store.Memory) *planner.Engine {
	t.Helper()
	if docs == nil {
		docs = store.NewMemory()
	}
	e := planner.New(planner.Options{
		Store:  docs,
		Client: client,
		Today:  func() generic.Day { return june10 },
	})
	e.SetLogOutput(io.Discard)
	return e
}

func addFlour(t *testing.T, e *planner.Engine, qty string) {
	t.Helper()
	_, _, err := e.AddItem(context.Background(), inventory.Item{ID: "flour", Name: "Flour", Quantity: dec(qty), Unit: "cup"})
	require.NoError(t, err)
}

func flour(t *testing.T, e *planner.Engine) planner.ItemView {
	t.Helper()
	v, err := e.Item("flour")
	require.NoError(t, err)
	return v
}

func schedule(t *testing.T, e *planner.Engine, day generic.Day, leftoverDays int) planner.ScheduleResult {
	t.Helper()
	res, err := e.ScheduleRecipe(context.Background(), planner.ScheduleRequest{
		Day:          day,
		MealType:     generic.Dinner,
		Recipe:       bread(),
		LeftoverDays: leftoverDays,
	})
	require.NoError(t, err)
	return res
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestScenario_ReserveRescheduleCook(t *testing.T) {
	// GIVEN 5 cups of flour and a matcher that takes 2
	client := &fakeClient{matches: []suggest.Match{flourMatch("2")}}
	e := newTestEngine(t, client, nil)
	ctx := context.Background()
	addFlour(t, e, "5")

	// WHEN bread is scheduled for 2025-06-10 dinner
	res := schedule(t, e, june10, 0)

	// THEN 2 cups are reserved, nothing is deducted
	require.NotNil(t, res.Record)
	assert.Equal(t, generic.SlotKey("2025-06-10-Dinner"), res.Record.SlotKey)
	v := flour(t, e)
	assert.True(t, v.Quantity.Equal(dec("5")))
	assert.True(t, v.Reserved.Equal(dec("2")))
	assert.True(t, v.Available.Equal(dec("3")))

	// WHEN the meal moves to 2025-06-12
	moved, err := e.RescheduleMeal(ctx, res.Cook.ID, "2025-06-10-Dinner", june12, "")
	require.NoError(t, err)

	// THEN the reservation key moves and on-hand is untouched
	assert.True(t, moved.AllocationMoved)
	allocs := e.Allocations()
	require.Len(t, allocs, 1)
	assert.Equal(t, generic.SlotKey("2025-06-12-Dinner"), allocs[0].SlotKey)
	assert.True(t, flour(t, e).Quantity.Equal(dec("5")))

	// WHEN it is cooked at the new slot
	cooked, err := e.Cook(ctx, planner.CookRequest{SlotKey: "2025-06-12-Dinner", MealID: res.Cook.ID})
	require.NoError(t, err)

	// THEN the reservation is confirmed: 3 cups left, nothing pending
	assert.Equal(t, planner.SourceReservation, cooked.Source)
	assert.True(t, cooked.Meal.IsCooked())
	assert.True(t, flour(t, e).Quantity.Equal(dec("3")))
	assert.Empty(t, e.Allocations())
	assert.Equal(t, 1, client.calls(), "confirm does not call the matcher")
}

func TestScenario_LeftoverChainCascade(t *testing.T) {
	// GIVEN bread cooked on 2025-06-10 with two leftover days
	client := &fakeClient{matches: []suggest.Match{flourMatch("2")}}
	e := newTestEngine(t, client, nil)
	ctx := context.Background()
	addFlour(t, e, "5")

	res := schedule(t, e, june10, 2)

	// THEN leftovers sit on the next two days with day numbers 2 and 3
	require.Len(t, res.Leftovers, 2)
	assert.Equal(t, generic.SlotKey("2025-06-11-Dinner"), res.Leftovers[0].SlotKey())
	assert.Equal(t, 2, res.Leftovers[0].DayNumber)
	assert.Equal(t, generic.SlotKey("2025-06-12-Dinner"), res.Leftovers[1].SlotKey())
	assert.Equal(t, 3, res.Leftovers[1].DayNumber)
	assert.Len(t, e.MealPlan(june10, june12), 3)

	cooked, err := e.Cook(ctx, planner.CookRequest{SlotKey: res.Cook.SlotKey(), MealID: res.Cook.ID})
	require.NoError(t, err)
	require.NotNil(t, cooked.Leftover)
	assert.Equal(t, "2025-06-14", cooked.Leftover.Expiry.String())

	// WHEN the cook day is removed
	removed, err := e.RemoveMeal(ctx, res.Cook.SlotKey(), res.Cook.ID)

	// THEN both leftover meals go with it
	require.NoError(t, err)
	assert.Len(t, removed.Removed, 3)
	assert.Empty(t, e.MealPlan(june10, june12))
}

// =============================================================================
// SCHEDULE
// =============================================================================

func TestSchedule_MatchingFailure_SchedulesWithoutReservation(t *testing.T) {
	// GIVEN a matcher that is down
	client := &fakeClient{}
	client.breakMatching()
	e := newTestEngine(t, client, nil)
	addFlour(t, e, "5")

	// WHEN a recipe is scheduled
	res := schedule(t, e, june10, 0)

	// THEN the meal is planned, nothing is reserved and local candidates are offered
	assert.NotEmpty(t, res.MatchError)
	assert.Nil(t, res.Record)
	assert.Empty(t, e.Allocations())
	assert.Len(t, e.MealPlan(june10, june10), 1)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, generic.ItemID("flour"), res.Candidates[0].ItemID)
	assert.False(t, res.Candidates[0].Selected)
	assert.Equal(t, allocation.ConfidenceLow, res.Candidates[0].Confidence)
}

func TestSchedule_LowConfidenceMatchesAreNotReserved(t *testing.T) {
	low := flourMatch("2")
	low.Confidence = allocation.ConfidenceLow
	low.Selected = false
	client := &fakeClient{matches: []suggest.Match{low}}
	e := newTestEngine(t, client, nil)
	addFlour(t, e, "5")

	res := schedule(t, e, june10, 0)

	assert.Len(t, res.Matches, 1)
	assert.Nil(t, res.Record)
	assert.True(t, flour(t, e).Available.Equal(dec("5")))
}

func TestSchedule_ExplicitLinesSkipMatcher(t *testing.T) {
	client := &fakeClient{matches: []suggest.Match{flourMatch("2")}}
	e := newTestEngine(t, client, nil)
	addFlour(t, e, "5")

	res, err := e.ScheduleRecipe(context.Background(), planner.ScheduleRequest{
		Day:      june10,
		MealType: generic.Dinner,
		Recipe:   bread(),
		Lines:    []allocation.Line{{ItemID: "flour", ItemName: "Flour", Amount: dec("1"), Unit: "cup"}},
	})

	require.NoError(t, err)
	require.NotNil(t, res.Record)
	assert.Equal(t, 0, client.calls())
	assert.True(t, flour(t, e).Available.Equal(dec("4")))
}

func TestSchedule_InvalidInput(t *testing.T) {
	e := newTestEngine(t, &fakeClient{}, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		req  planner.ScheduleRequest
	}{
		{"no recipe name", planner.ScheduleRequest{Day: june10, MealType: generic.Dinner}},
		{"no day", planner.ScheduleRequest{MealType: generic.Dinner, Recipe: bread()}},
		{"no meal type", planner.ScheduleRequest{Day: june10, Recipe: bread()}},
		{"too many leftover days", planner.ScheduleRequest{Day: june10, MealType: generic.Dinner, Recipe: bread(), LeftoverDays: 15}},
		{"negative leftover days", planner.ScheduleRequest{Day: june10, MealType: generic.Dinner, Recipe: bread(), LeftoverDays: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.ScheduleRecipe(ctx, tt.req)
			assert.ErrorIs(t, err, generic.ErrInvalidInput)
		})
	}
}

func TestSchedule_StaleResponseIsDiscarded(t *testing.T) {
	// GIVEN a first match call that hangs
	client := &fakeClient{
		matches: []suggest.Match{flourMatch("2")},
		hold:    make(chan struct{}),
		entered: make(chan struct{}),
	}
	e := newTestEngine(t, client, nil)
	addFlour(t, e, "5")

	var slowErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, slowErr = e.ScheduleRecipe(context.Background(), planner.ScheduleRequest{
			Day: june10, MealType: generic.Dinner, Recipe: bread(),
		})
	}()
	<-client.entered

	// WHEN a newer request for the same slot completes first
	schedule(t, e, june10, 0)
	close(client.hold)
	<-done

	// THEN the older response is dropped
	assert.ErrorIs(t, slowErr, generic.ErrStaleRequest)
	assert.Len(t, e.MealPlan(june10, june10)[0].Meals, 1)
	assert.True(t, flour(t, e).Reserved.Equal(dec("2")))
}

// =============================================================================
// COOK
// =============================================================================

func TestCook_ReplaysCachedLinesWithoutMatching(t *testing.T) {
	// GIVEN bread cooked once through the matcher
	client := &fakeClient{matches: []suggest.Match{flourMatch("2")}}
	e := newTestEngine(t, client, nil)
	ctx := context.Background()
	addFlour(t, e, "5")

	first := schedule(t, e, june10, 0)
	_, err := e.Cook(ctx, planner.CookRequest{SlotKey: first.Cook.SlotKey(), MealID: first.Cook.ID})
	require.NoError(t, err)

	// AND the matcher then goes down
	client.breakMatching()
	second := schedule(t, e, june11, 0)
	require.Nil(t, second.Record)

	// WHEN the same ingredient list is cooked again
	cooked, err := e.Cook(ctx, planner.CookRequest{SlotKey: second.Cook.SlotKey(), MealID: second.Cook.ID})

	// THEN the cached lines are replayed without another match call
	require.NoError(t, err)
	assert.Equal(t, planner.SourceReplay, cooked.Source)
	assert.True(t, cooked.Outcome.Replayed)
	assert.True(t, flour(t, e).Quantity.Equal(dec("1")))
	assert.Equal(t, 2, client.calls(), "one match per schedule, none for the replayed cook")
}

func TestCook_NoReservation_MatchesThenCachesForAgain(t *testing.T) {
	client := &fakeClient{matches: []suggest.Match{flourMatch("2")}}
	e := newTestEngine(t, client, nil)
	ctx := context.Background()
	addFlour(t, e, "5")

	res, err := e.ScheduleRecipe(ctx, planner.ScheduleRequest{
		Day: june10, MealType: generic.Dinner, Recipe: bread(), Lines: []allocation.Line{},
	})
	require.NoError(t, err)
	slot := res.Cook.SlotKey()

	cooked, err := e.Cook(ctx, planner.CookRequest{SlotKey: slot, MealID: res.Cook.ID})
	require.NoError(t, err)
	assert.Equal(t, planner.SourceMatch, cooked.Source)
	assert.True(t, flour(t, e).Quantity.Equal(dec("3")))

	again, err := e.Cook(ctx, planner.CookRequest{SlotKey: slot, MealID: res.Cook.ID, Again: true})
	require.NoError(t, err)
	assert.Equal(t, planner.SourceReplay, again.Source)
	assert.True(t, flour(t, e).Quantity.Equal(dec("1")))
	assert.Equal(t, 1, client.calls())
}

func TestCook_MatchingFailure_StillCooks(t *testing.T) {
	client := &fakeClient{}
	client.breakMatching()
	e := newTestEngine(t, client, nil)
	addFlour(t, e, "5")
	res := schedule(t, e, june10, 0)

	cooked, err := e.Cook(context.Background(), planner.CookRequest{SlotKey: res.Cook.SlotKey(), MealID: res.Cook.ID})

	require.NoError(t, err)
	assert.Equal(t, planner.SourceNone, cooked.Source)
	assert.NotEmpty(t, cooked.MatchError)
	assert.True(t, cooked.Meal.IsCooked())
	assert.True(t, flour(t, e).Quantity.Equal(dec("5")))
}

func TestCook_RefusedStates(t *testing.T) {
	client := &fakeClient{matches: []suggest.Match{flourMatch("1")}}
	e := newTestEngine(t, client, nil)
	ctx := context.Background()
	addFlour(t, e, "5")
	res := schedule(t, e, june10, 1)

	_, err := e.Cook(ctx, planner.CookRequest{SlotKey: res.Leftovers[0].SlotKey(), MealID: res.Leftovers[0].ID})
	assert.ErrorIs(t, err, generic.ErrNotCookDay)

	_, err = e.Cook(ctx, planner.CookRequest{SlotKey: res.Cook.SlotKey(), MealID: "meal-nope"})
	assert.ErrorIs(t, err, generic.ErrMealNotFound)

	_, err = e.Cook(ctx, planner.CookRequest{SlotKey: res.Cook.SlotKey(), MealID: res.Cook.ID})
	require.NoError(t, err)
	_, err = e.Cook(ctx, planner.CookRequest{SlotKey: res.Cook.SlotKey(), MealID: res.Cook.ID})
	assert.ErrorIs(t, err, generic.ErrAlreadyCooked)
}

func TestCook_ReferentialMiss_SkipsDeletedItem(t *testing.T) {
	client := &fakeClient{matches: []suggest.Match{flourMatch("2")}}
	e := newTestEngine(t, client, nil)
	ctx := context.Background()
	addFlour(t, e, "5")
	res := schedule(t, e, june10, 0)

	require.NoError(t, e.DeleteItem(ctx, "flour"))
	cooked, err := e.Cook(ctx, planner.CookRequest{SlotKey: res.Cook.SlotKey(), MealID: res.Cook.ID})

	require.NoError(t, err)
	require.Len(t, cooked.Outcome.Skipped, 1)
	assert.Equal(t, "referential_miss", cooked.Outcome.Skipped[0].Reason)
	assert.True(t, cooked.Meal.IsCooked())
}

// =============================================================================
// UNDO / REMOVE / RESCHEDULE
// =============================================================================

func TestUndoCook_RestoresUsedUpItemAndDropsLeftover(t *testing.T) {
	// GIVEN a cook that uses up all the flour and leaves leftovers
	client := &fakeClient{matches: []suggest.Match{flourMatch("2")}}
	e := newTestEngine(t, client, nil)
	ctx := context.Background()
	addFlour(t, e, "2")
	res := schedule(t, e, june10, 1)

	cooked, err := e.Cook(ctx, planner.CookRequest{SlotKey: res.Cook.SlotKey(), MealID: res.Cook.ID})
	require.NoError(t, err)
	assert.Equal(t, []generic.ItemID{"flour"}, cooked.Outcome.Removed)
	require.Len(t, e.Leftovers(), 1)

	// WHEN the cook is undone
	undo, err := e.UndoCook(ctx, res.Cook.SlotKey(), res.Cook.ID)

	// THEN the item is back, the meal is scheduled and the leftover is gone without history
	require.NoError(t, err)
	assert.Equal(t, []generic.ItemID{"flour"}, undo.Outcome.Restored)
	assert.True(t, flour(t, e).Quantity.Equal(dec("2")))
	assert.Equal(t, mealplan.StatusScheduled, undo.Meal.Status)
	assert.NotNil(t, undo.Leftover)
	assert.Empty(t, e.Leftovers())
	assert.Empty(t, e.History())

	_, err = e.UndoCook(ctx, res.Cook.SlotKey(), res.Cook.ID)
	assert.ErrorIs(t, err, generic.ErrNotCooked)
}

func TestUndoCook_SecondMealInSlotKeepsFirstReceipt(t *testing.T) {
	// GIVEN bread and an omelette both cooked in 2025-06-10 dinner
	client := &fakeClient{matches: []suggest.Match{flourMatch("2")}}
	e := newTestEngine(t, client, nil)
	ctx := context.Background()
	addFlour(t, e, "5")
	_, _, err := e.AddItem(ctx, inventory.Item{ID: "eggs", Name: "Eggs", Quantity: dec("6"), Unit: "each"})
	require.NoError(t, err)

	bread := schedule(t, e, june10, 0)
	_, err = e.Cook(ctx, planner.CookRequest{SlotKey: bread.Cook.SlotKey(), MealID: bread.Cook.ID})
	require.NoError(t, err)

	omelette, err := e.ScheduleRecipe(ctx, planner.ScheduleRequest{
		Day:      june10,
		MealType: generic.Dinner,
		Recipe:   recipe.Recipe{Name: "Omelette", Servings: 2, Ingredients: []recipe.Ingredient{{Name: "eggs", QuantityText: "3"}}},
		Lines:    []allocation.Line{{ItemID: "eggs", ItemName: "Eggs", Amount: dec("3"), Unit: "each"}},
	})
	require.NoError(t, err)
	_, err = e.Cook(ctx, planner.CookRequest{SlotKey: omelette.Cook.SlotKey(), MealID: omelette.Cook.ID})
	require.NoError(t, err)
	require.True(t, flour(t, e).Quantity.Equal(dec("3")))

	// WHEN the bread cook is undone
	undo, err := e.UndoCook(ctx, bread.Cook.SlotKey(), bread.Cook.ID)

	// THEN its flour is back and the omelette's eggs stay taken
	require.NoError(t, err)
	assert.True(t, undo.Outcome.Found)
	assert.True(t, flour(t, e).Quantity.Equal(dec("5")))
	eggs, err := e.Item("eggs")
	require.NoError(t, err)
	assert.True(t, eggs.Quantity.Equal(dec("3")))

	// AND the omelette can still be undone on its own
	_, err = e.UndoCook(ctx, omelette.Cook.SlotKey(), omelette.Cook.ID)
	require.NoError(t, err)
	eggs, err = e.Item("eggs")
	require.NoError(t, err)
	assert.True(t, eggs.Quantity.Equal(dec("6")))
}

func TestUndoCook_MissingReceiptIsRefused(t *testing.T) {
	// GIVEN a cooked meal whose receipts were lost from the store
	docs := store.NewMemory()
	client := &fakeClient{matches: []suggest.Match{flourMatch("2")}}
	e := newTestEngine(t, client, docs)
	ctx := context.Background()
	addFlour(t, e, "5")
	res := schedule(t, e, june10, 1)
	_, err := e.Cook(ctx, planner.CookRequest{SlotKey: res.Cook.SlotKey(), MealID: res.Cook.ID})
	require.NoError(t, err)
	require.NoError(t, docs.Save(ctx, generic.CollectionAllocations, []byte(`{"records":{},"receipts":{}}`)))

	reloaded := newTestEngine(t, client, docs)
	require.NoError(t, reloaded.Load(ctx))

	// WHEN the cook is undone
	_, err = reloaded.UndoCook(ctx, res.Cook.SlotKey(), res.Cook.ID)

	// THEN it is refused and nothing changes
	assert.ErrorIs(t, err, generic.ErrNoReceipt)
	assert.True(t, generic.IsConflict(err))
	meal, err := reloaded.Meal(res.Cook.ID)
	require.NoError(t, err)
	assert.True(t, meal.IsCooked())
	assert.Len(t, reloaded.Leftovers(), 1)
	assert.True(t, flour(t, reloaded).Quantity.Equal(dec("3")))
}

func TestUndoCook_AfterMatchingFailure(t *testing.T) {
	client := &fakeClient{}
	client.breakMatching()
	e := newTestEngine(t, client, nil)
	ctx := context.Background()
	addFlour(t, e, "5")
	res := schedule(t, e, june10, 0)
	_, err := e.Cook(ctx, planner.CookRequest{SlotKey: res.Cook.SlotKey(), MealID: res.Cook.ID})
	require.NoError(t, err)

	undo, err := e.UndoCook(ctx, res.Cook.SlotKey(), res.Cook.ID)

	require.NoError(t, err)
	assert.Empty(t, undo.Outcome.Applied)
	assert.Equal(t, mealplan.StatusScheduled, undo.Meal.Status)
}

func TestRemoveMeal_ReleasesReservation(t *testing.T) {
	client := &fakeClient{matches: []suggest.Match{flourMatch("2")}}
	e := newTestEngine(t, client, nil)
	addFlour(t, e, "5")
	res := schedule(t, e, june10, 0)
	require.True(t, flour(t, e).Available.Equal(dec("3")))

	removed, err := e.RemoveMeal(context.Background(), res.Cook.SlotKey(), res.Cook.ID)

	require.NoError(t, err)
	assert.True(t, removed.Released.Found)
	assert.Empty(t, e.Allocations())
	assert.True(t, flour(t, e).Available.Equal(dec("5")))
	assert.True(t, flour(t, e).Quantity.Equal(dec("5")))
}

func TestRemoveMeal_LeftoverKeepsReservation(t *testing.T) {
	client := &fakeClient{matches: []suggest.Match{flourMatch("2")}}
	e := newTestEngine(t, client, nil)
	addFlour(t, e, "5")
	res := schedule(t, e, june10, 2)

	removed, err := e.RemoveMeal(context.Background(), res.Leftovers[0].SlotKey(), res.Leftovers[0].ID)

	require.NoError(t, err)
	assert.Len(t, removed.Removed, 1)
	assert.Len(t, e.Allocations(), 1)
}

func TestRescheduleMeal_CookedShiftsLeftoverExpiryAndReceipt(t *testing.T) {
	// GIVEN a cooked meal whose leftovers expire on 2025-06-14
	client := &fakeClient{matches: []suggest.Match{flourMatch("2")}}
	e := newTestEngine(t, client, nil)
	ctx := context.Background()
	addFlour(t, e, "5")
	res := schedule(t, e, june10, 2)
	_, err := e.Cook(ctx, planner.CookRequest{SlotKey: res.Cook.SlotKey(), MealID: res.Cook.ID})
	require.NoError(t, err)

	// WHEN the cook day is corrected to the next day
	moved, err := e.RescheduleMeal(ctx, res.Cook.ID, res.Cook.SlotKey(), june11, "")

	// THEN the chain, the leftover expiry and the receipt follow
	require.NoError(t, err)
	assert.Len(t, moved.Moved, 2)
	require.Len(t, moved.Shifted, 1)
	assert.Equal(t, "2025-06-15", moved.Shifted[0].Expiry.String())

	_, err = e.UndoCook(ctx, "2025-06-11-Dinner", res.Cook.ID)
	require.NoError(t, err)
	assert.True(t, flour(t, e).Quantity.Equal(dec("5")))
}

func TestRescheduleMeal_RefusesSlotHeldByAnotherReservation(t *testing.T) {
	// GIVEN bread reserved on 06-10 and cake reserved on 06-12
	client := &fakeClient{matches: []suggest.Match{flourMatch("2")}}
	e := newTestEngine(t, client, nil)
	ctx := context.Background()
	addFlour(t, e, "5")
	bread := schedule(t, e, june10, 0)
	_, err := e.ScheduleRecipe(ctx, planner.ScheduleRequest{
		Day:      june12,
		MealType: generic.Dinner,
		Recipe:   recipe.Recipe{Name: "Cake", Servings: 8, Ingredients: []recipe.Ingredient{{Name: "flour", QuantityText: "1 cup"}}},
		Lines:    []allocation.Line{{ItemID: "flour", ItemName: "Flour", Amount: dec("1"), Unit: "cup"}},
	})
	require.NoError(t, err)
	require.Len(t, e.Allocations(), 2)

	// WHEN bread is moved onto the cake's slot
	_, err = e.RescheduleMeal(ctx, bread.Cook.ID, bread.Cook.SlotKey(), june12, "")

	// THEN the move is refused and both meals keep their reservations
	assert.ErrorIs(t, err, generic.ErrSlotReserved)
	allocs := e.Allocations()
	require.Len(t, allocs, 2)
	assert.Equal(t, "Bread", allocs[0].RecipeName)
	assert.Equal(t, "Cake", allocs[1].RecipeName)
	meal, err := e.Meal(bread.Cook.ID)
	require.NoError(t, err)
	assert.Equal(t, "2025-06-10", meal.ScheduledFor.String())
	assert.True(t, flour(t, e).Reserved.Equal(dec("3")))
}

// =============================================================================
// LEFTOVERS
// =============================================================================

func TestLeftovers_EatRemoveSweep(t *testing.T) {
	e := newTestEngine(t, &fakeClient{}, nil)
	ctx := context.Background()

	soup, err := e.AddLeftover(ctx, leftovers.Record{Name: "Soup", Portions: 2, Expiry: june12})
	require.NoError(t, err)
	stale, err := e.AddLeftover(ctx, leftovers.Record{Name: "Rice", Portions: 1, Expiry: generic.NewDay(2025, time.June, 9)})
	require.NoError(t, err)
	pie, err := e.AddLeftover(ctx, leftovers.Record{Name: "Pie", Portions: 3, Expiry: june12})
	require.NoError(t, err)

	views := e.Leftovers()
	require.Len(t, views, 3)
	assert.Equal(t, generic.ExpiryExpired, views[0].ExpiryStatus)

	rec, finished, err := e.EatLeftover(ctx, soup.ID, 1)
	require.NoError(t, err)
	assert.False(t, finished)
	assert.Equal(t, 1, rec.Portions)

	_, finished, err = e.EatLeftover(ctx, soup.ID, 5)
	require.NoError(t, err)
	assert.True(t, finished)

	_, err = e.RemoveLeftover(ctx, pie.ID)
	require.NoError(t, err)

	expired, err := e.SweepExpired(ctx)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, stale.ID, expired[0].ID)

	history := e.History()
	require.Len(t, history, 3)
	assert.Equal(t, leftovers.StatusExpired, history[0].Status)
	assert.Equal(t, leftovers.StatusRemoved, history[1].Status)
	assert.Equal(t, leftovers.StatusFinished, history[2].Status)
	assert.Empty(t, e.Leftovers())

	_, _, err = e.EatLeftover(ctx, soup.ID, 1)
	assert.ErrorIs(t, err, generic.ErrLeftoverNotFound)
}

// =============================================================================
// PERSISTENCE / AUDIT / EVENTS
// =============================================================================

func TestLoad_RestoresStateAndReplayCache(t *testing.T) {
	// GIVEN an engine that scheduled and cooked
	docs := store.NewMemory()
	client := &fakeClient{matches: []suggest.Match{flourMatch("2")}}
	e := newTestEngine(t, client, docs)
	ctx := context.Background()
	addFlour(t, e, "5")
	res := schedule(t, e, june10, 1)
	_, err := e.Cook(ctx, planner.CookRequest{SlotKey: res.Cook.SlotKey(), MealID: res.Cook.ID})
	require.NoError(t, err)
	schedule(t, e, june12, 0)

	// WHEN a fresh engine loads the same store
	reloaded := newTestEngine(t, client, docs)
	require.NoError(t, reloaded.Load(ctx))

	// THEN every collection is back
	assert.True(t, flour(t, reloaded).Quantity.Equal(dec("3")))
	assert.True(t, flour(t, reloaded).Reserved.Equal(dec("2")))
	assert.Len(t, reloaded.MealPlan(june10, june12), 3)
	assert.Len(t, reloaded.Allocations(), 1)
	assert.Len(t, reloaded.Leftovers(), 1)

	// AND the replay cache survived
	before := client.calls()
	again, err := reloaded.Cook(ctx, planner.CookRequest{SlotKey: res.Cook.SlotKey(), MealID: res.Cook.ID, Again: true})
	require.NoError(t, err)
	assert.Equal(t, planner.SourceReplay, again.Source)
	assert.Equal(t, before, client.calls())
}

func TestLoad_EmptyStore(t *testing.T) {
	e := newTestEngine(t, &fakeClient{}, nil)
	require.NoError(t, e.Load(context.Background()))
	assert.Empty(t, e.Items())
	assert.Empty(t, e.Allocations())
}

func TestCommit_AuditsAndPublishes(t *testing.T) {
	client := &fakeClient{matches: []suggest.Match{flourMatch("2")}}
	e := newTestEngine(t, client, nil)
	ctx := context.Background()
	addFlour(t, e, "5")

	events, cancel := e.Subscribe(8)
	defer cancel()

	res := schedule(t, e, june10, 0)

	select {
	case ev := <-events:
		assert.Equal(t, "schedule", ev.Operation)
		assert.Equal(t, res.Cook.SlotKey(), ev.SlotKey)
		assert.Contains(t, ev.Collections, generic.CollectionMealPlan)
		assert.Contains(t, ev.Collections, generic.CollectionAllocations)
	case <-time.After(time.Second):
		t.Fatal("no change event")
	}

	entries, err := e.Audit(ctx, generic.AuditFilter{Operation: "schedule"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Bread", entries[0].Payload["recipe"])
}

// =============================================================================
// INVENTORY / SHOPPING / FAMILY / SUGGEST
// =============================================================================

func TestAddItem_MergesSameNameAndLocation(t *testing.T) {
	e := newTestEngine(t, &fakeClient{}, nil)
	ctx := context.Background()
	addFlour(t, e, "1")

	v, merged, err := e.AddItem(ctx, inventory.Item{Name: "flour", Quantity: dec("0.5"), Unit: "cups"})

	require.NoError(t, err)
	assert.True(t, merged)
	assert.True(t, v.Quantity.Equal(dec("1.5")))
	assert.Len(t, e.Items(), 1)
}

func TestOvercommitted(t *testing.T) {
	client := &fakeClient{matches: []suggest.Match{flourMatch("4")}}
	e := newTestEngine(t, client, nil)
	addFlour(t, e, "5")
	schedule(t, e, june10, 0)
	schedule(t, e, june11, 0)

	over := e.Overcommitted()

	require.Len(t, over, 1)
	assert.True(t, over[0].Available.Equal(dec("-3")))
	assert.True(t, over[0].Overcommitted)
}

func TestRefreshShopping_AddsLowStaplesOnce(t *testing.T) {
	e := newTestEngine(t, &fakeClient{}, nil)
	ctx := context.Background()
	_, _, err := e.AddItem(ctx, inventory.Item{Name: "Rice", Quantity: dec("1"), Unit: "kg", Staple: true, MinStock: dec("3")})
	require.NoError(t, err)

	added, err := e.RefreshShopping(ctx)
	require.NoError(t, err)
	require.Len(t, added, 1)
	assert.Equal(t, "Rice", added[0].Name)
	assert.True(t, added[0].Quantity.Equal(dec("2")))
	assert.Equal(t, planner.ShoppingLowStock, added[0].Source)

	again, err := e.RefreshShopping(ctx)
	require.NoError(t, err)
	assert.Empty(t, again)

	checked, err := e.CheckShoppingItem(ctx, added[0].ID, true)
	require.NoError(t, err)
	assert.True(t, checked.Checked)
	require.NoError(t, e.RemoveShoppingItem(ctx, added[0].ID))
	assert.Empty(t, e.Shopping())
}

func TestAddShoppingItem_RequiresName(t *testing.T) {
	e := newTestEngine(t, &fakeClient{}, nil)
	_, err := e.AddShoppingItem(context.Background(), planner.ShoppingItem{Name: "  "})
	assert.ErrorIs(t, err, generic.ErrInvalidInput)
}

func TestSuggest_UsesPantryAndFamily(t *testing.T) {
	client := &fakeClient{recipes: suggest.RecipesResult{Recipes: []recipe.Recipe{bread()}}}
	e := newTestEngine(t, client, nil)
	ctx := context.Background()
	addFlour(t, e, "5")
	require.NoError(t, e.SetFamily(ctx, []suggest.FamilyMember{{Name: "Sam", Age: 8}}))

	res, err := e.Suggest(ctx, suggest.SuggestRequest{MealType: generic.Dinner, Count: 3})

	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Len(t, res.Recipes, 1)
	assert.Len(t, client.lastSuggest.Inventory, 1)
	assert.Equal(t, "Sam", client.lastSuggest.Family[0].Name)
}

func TestSetFamily_Invalid(t *testing.T) {
	e := newTestEngine(t, &fakeClient{}, nil)
	err := e.SetFamily(context.Background(), []suggest.FamilyMember{{Name: "", Age: 30}})
	assert.ErrorIs(t, err, generic.ErrInvalidInput)
}
