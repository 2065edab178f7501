package leftovers_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/pantry-engine/generic"
	"github.com/warp/pantry-engine/leftovers"
	"github.com/warp/pantry-engine/recipe"
)

func day(s string) generic.Day {
	d, err := generic.ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

func lasagna() recipe.Recipe {
	return recipe.Recipe{ID: "r-lasagna", Name: "Lasagna", Servings: 6, StorageText: "Fridge, covered", ReheatText: "Oven 180C"}
}

func TestCreateFromCook(t *testing.T) {
	// GIVEN: a lasagna cooked on 2025-06-10 with two leftover days
	tracker := leftovers.NewTracker()

	// WHEN: the cook produces a leftover record
	rec, ok := tracker.CreateFromCook(leftovers.CookInput{
		Recipe:       lasagna(),
		MealID:       "meal-1",
		CookDay:      day("2025-06-10"),
		LeftoverDays: 2,
	})

	// THEN: 6 servings over 3 days leaves 4 portions, default expiry
	require.True(t, ok)
	assert.Equal(t, "Lasagna", rec.Name)
	assert.Equal(t, 4, rec.Portions)
	assert.Equal(t, "2025-06-14", rec.Expiry.String())
	assert.Equal(t, "Fridge, covered", rec.StorageText)
	assert.Equal(t, generic.MealID("meal-1"), rec.MealID)
	assert.Len(t, tracker.List(), 1)
}

func TestCreateFromCook_NoLeftoverDays(t *testing.T) {
	tracker := leftovers.NewTracker()
	_, ok := tracker.CreateFromCook(leftovers.CookInput{Recipe: lasagna(), CookDay: day("2025-06-10")})
	assert.False(t, ok)
	assert.Empty(t, tracker.List())
}

func TestCreateFromCook_Overrides(t *testing.T) {
	tracker := leftovers.NewTracker()
	rec, ok := tracker.CreateFromCook(leftovers.CookInput{
		Recipe: lasagna(), CookDay: day("2025-06-10"), LeftoverDays: 1, Portions: 2, ExpiryDays: 2,
	})
	require.True(t, ok)
	assert.Equal(t, 2, rec.Portions)
	assert.Equal(t, "2025-06-12", rec.Expiry.String())
}

func TestLeftoverPortions(t *testing.T) {
	cases := []struct {
		name                            string
		servings, leftoverDays, explicit int
		want                            int
	}{
		{"explicit wins", 6, 2, 5, 5},
		{"no leftover days", 6, 0, 0, 0},
		{"spread servings", 4, 1, 0, 2},
		{"uneven", 5, 2, 0, 3},
		{"unknown servings", 0, 3, 0, 3},
		{"single serving", 1, 2, 0, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, leftovers.LeftoverPortions(tc.servings, tc.leftoverDays, tc.explicit))
		})
	}
}

func TestConsume(t *testing.T) {
	tracker := leftovers.NewTracker()
	rec, err := tracker.Create(leftovers.Record{Name: "Soup", Portions: 3, Expiry: day("2025-06-12")})
	require.NoError(t, err)

	left, finished, err := tracker.Consume(rec.ID, 1)
	require.NoError(t, err)
	assert.False(t, finished)
	assert.Equal(t, 2, left.Portions)

	// Eating more than is left floors at zero and finishes the record.
	left, finished, err = tracker.Consume(rec.ID, 5)
	require.NoError(t, err)
	assert.True(t, finished)
	assert.Zero(t, left.Portions)

	assert.Empty(t, tracker.List())
	hist := tracker.History()
	require.Len(t, hist, 1)
	assert.Equal(t, leftovers.StatusFinished, hist[0].Status)

	_, _, err = tracker.Consume(rec.ID, 1)
	assert.ErrorIs(t, err, generic.ErrLeftoverNotFound)
}

func TestConsume_RejectsNonPositive(t *testing.T) {
	tracker := leftovers.NewTracker()
	rec, err := tracker.Create(leftovers.Record{Name: "Soup", Portions: 3, Expiry: day("2025-06-12")})
	require.NoError(t, err)

	_, _, err = tracker.Consume(rec.ID, 0)
	assert.ErrorIs(t, err, generic.ErrInvalidInput)
}

func TestRemove(t *testing.T) {
	tracker := leftovers.NewTracker()
	rec, err := tracker.Create(leftovers.Record{Name: "Curry", Portions: 2, Expiry: day("2025-06-12")})
	require.NoError(t, err)

	_, err = tracker.Remove(rec.ID)
	require.NoError(t, err)

	assert.Empty(t, tracker.List())
	require.Len(t, tracker.History(), 1)
	assert.Equal(t, leftovers.StatusRemoved, tracker.History()[0].Status)

	_, err = tracker.Remove(rec.ID)
	assert.ErrorIs(t, err, generic.ErrLeftoverNotFound)
}

func TestCreate_Validation(t *testing.T) {
	tracker := leftovers.NewTracker()
	_, err := tracker.Create(leftovers.Record{Portions: 1, Expiry: day("2025-06-12")})
	assert.ErrorIs(t, err, generic.ErrInvalidInput)
	_, err = tracker.Create(leftovers.Record{Name: "Rice", Expiry: day("2025-06-12")})
	assert.ErrorIs(t, err, generic.ErrInvalidInput)
	_, err = tracker.Create(leftovers.Record{Name: "Rice", Portions: 1})
	assert.ErrorIs(t, err, generic.ErrInvalidInput)
}

func TestShiftExpiry(t *testing.T) {
	tracker := leftovers.NewTracker()
	rec, _ := tracker.CreateFromCook(leftovers.CookInput{Recipe: lasagna(), MealID: "meal-1", CookDay: day("2025-06-10"), LeftoverDays: 2})
	other, err := tracker.Create(leftovers.Record{Name: "Soup", Portions: 1, Expiry: day("2025-06-12")})
	require.NoError(t, err)

	shifted := tracker.ShiftExpiry("meal-1", 3)

	require.Len(t, shifted, 1)
	got, _ := tracker.Get(rec.ID)
	assert.True(t, got.Expiry.Equal(rec.Expiry.AddDays(3)))
	untouched, _ := tracker.Get(other.ID)
	assert.Equal(t, "2025-06-12", untouched.Expiry.String())
}

func TestSweepExpired(t *testing.T) {
	tracker := leftovers.NewTracker()
	old, err := tracker.Create(leftovers.Record{Name: "Old", Portions: 1, Expiry: day("2025-06-09")})
	require.NoError(t, err)
	_, err = tracker.Create(leftovers.Record{Name: "Today", Portions: 1, Expiry: day("2025-06-10")})
	require.NoError(t, err)

	expired := tracker.SweepExpired(day("2025-06-10"))

	require.Len(t, expired, 1)
	assert.Equal(t, old.ID, expired[0].ID)
	assert.Len(t, tracker.List(), 1)
	assert.Equal(t, leftovers.StatusExpired, tracker.History()[0].Status)
}

func TestExpiryStatus_Buckets(t *testing.T) {
	today := day("2025-06-10")
	cases := map[string]generic.ExpiryStatus{
		"2025-06-09": generic.ExpiryExpired,
		"2025-06-10": generic.ExpirySoon,
		"2025-06-15": generic.ExpirySoon,
		"2025-06-16": generic.ExpirySoon,
		"2025-06-17": generic.ExpiryOK,
		"2025-06-20": generic.ExpiryOK,
	}
	for expiry, want := range cases {
		rec := leftovers.Record{Expiry: day(expiry)}
		assert.Equal(t, want, rec.ExpiryStatus(today), expiry)
	}
}

func TestRemoveForMeal_SkipsHistory(t *testing.T) {
	tracker := leftovers.NewTracker()
	_, ok := tracker.CreateFromCook(leftovers.CookInput{Recipe: lasagna(), MealID: "meal-1", CookDay: day("2025-06-10"), LeftoverDays: 1})
	require.True(t, ok)

	_, removed := tracker.RemoveForMeal("meal-1")

	assert.True(t, removed)
	assert.Empty(t, tracker.List())
	assert.Empty(t, tracker.History())
}

func TestPersistence_RoundTrip(t *testing.T) {
	tracker := leftovers.NewTracker()
	rec, err := tracker.Create(leftovers.Record{Name: "Soup", Portions: 2, Expiry: day("2025-06-12")})
	require.NoError(t, err)
	gone, err := tracker.Create(leftovers.Record{Name: "Stew", Portions: 2, Expiry: day("2025-06-12")})
	require.NoError(t, err)
	_, err = tracker.Remove(gone.ID)
	require.NoError(t, err)

	active, err := tracker.MarshalActive()
	require.NoError(t, err)
	history, err := tracker.MarshalHistory()
	require.NoError(t, err)
	assert.True(t, json.Valid(active))

	restored := leftovers.NewTracker()
	require.NoError(t, restored.LoadActive(active))
	require.NoError(t, restored.LoadHistory(history))

	got, ok := restored.Get(rec.ID)
	require.True(t, ok)
	assert.Equal(t, "2025-06-12", got.Expiry.String())
	require.Len(t, restored.History(), 1)
	assert.Equal(t, "Stew", restored.History()[0].Leftover.Name)
}
