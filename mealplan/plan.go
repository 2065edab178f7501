/*
Package mealplan implements the Meal Plan Store: slot keys mapped to the
ordered meals scheduled there, including the leftover chain each cook day
derives.

PURPOSE:
  A cook day is one recipe prepared on one date. Its leftover days are
  derived entries on the following dates that eat from the same cook. The
  store keeps the chain consistent: removing a cook day removes its
  leftovers, rescheduling a cook day carries its leftovers along.

CHAIN SHAPE (leftoverDays = 2, cooked 2025-06-10 Dinner):
  2025-06-10-Dinner  Meal{DayNumber: 1}                         <- cook day
  2025-06-11-Dinner  Meal{DayNumber: 2, IsLeftover, ParentMealID}
  2025-06-12-Dinner  Meal{DayNumber: 3, IsLeftover, ParentMealID}

IDENTITY:
  Leftover meals point at their cook meal through ParentMealID. Nothing
  is inferred from recipe names or id prefixes.

STATES:
  scheduled ──MarkCooked──▶ cooked
      │
      ├── RemoveMeal     (removed from the plan)
      └── RescheduleMeal (moved; a cooked meal keeps its status)

CONCURRENCY:
  Not safe for concurrent use. The planner serializes all access.

SEE ALSO:
  - allocation/ledger.go: the cook slot's reservation
  - planner/planner.go: pairs every chain change with its ledger change
*/
package mealplan

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/warp/pantry-engine/generic"
	"github.com/warp/pantry-engine/recipe"
)

// MaxLeftoverDays bounds how long a chain can run.
const MaxLeftoverDays = 14

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCooked    Status = "cooked"
)

// =============================================================================
// MEAL
// =============================================================================

type Meal struct {
	ID     generic.MealID `json:"id"`
	Recipe recipe.Recipe  `json:"recipe"`

	IsLeftover   bool           `json:"is_leftover"`
	DayNumber    int            `json:"day_number"`
	ParentMealID generic.MealID `json:"parent_meal_id,omitempty"`

	ScheduledFor generic.Day      `json:"scheduled_for"`
	MealType     generic.MealType `json:"meal_type"`
	Status       Status           `json:"status"`
	LeftoverDays int              `json:"leftover_days"`
	CookedAt     *time.Time       `json:"cooked_at,omitempty"`
}

func (m Meal) SlotKey() generic.SlotKey {
	return generic.NewSlotKey(m.ScheduledFor, m.MealType)
}

func (m Meal) IsCooked() bool { return m.Status == StatusCooked }

// CookMealID returns the ID of the cook day this meal belongs to.
func (m Meal) CookMealID() generic.MealID {
	if m.IsLeftover {
		return m.ParentMealID
	}
	return m.ID
}

// Entry is one slot in a Range result.
type Entry struct {
	SlotKey  generic.SlotKey  `json:"slot_key"`
	Day      generic.Day      `json:"day"`
	MealType generic.MealType `json:"meal_type"`
	Meals    []Meal           `json:"meals"`
}

// Reschedule describes a completed move.
type Reschedule struct {
	Meal      Meal            `json:"meal"`
	From      generic.SlotKey `json:"from"`
	To        generic.SlotKey `json:"to"`
	DeltaDays int             `json:"delta_days"`
	// Moved lists dependent leftover meals that moved with a cook day.
	Moved []Meal `json:"moved,omitempty"`
}

// =============================================================================
// PLAN
// =============================================================================

type Plan struct {
	slots map[generic.SlotKey][]Meal
	now   func() time.Time
}

func NewPlan() *Plan {
	return &Plan{slots: make(map[generic.SlotKey][]Meal), now: time.Now}
}

// ScheduleCookDay adds a cook meal at (day, mealType) and one leftover meal
// on each of the following leftoverDays days, same meal type.
func (p *Plan) ScheduleCookDay(day generic.Day, mealType generic.MealType, r recipe.Recipe, leftoverDays int) (Meal, []Meal, error) {
	if day.IsZero() {
		return Meal{}, nil, &generic.ValidationError{Field: "day", Message: "day is required"}
	}
	if strings.TrimSpace(string(mealType)) == "" {
		return Meal{}, nil, &generic.ValidationError{Field: "meal_type", Message: "meal type is required"}
	}
	if leftoverDays < 0 || leftoverDays > MaxLeftoverDays {
		return Meal{}, nil, &generic.ValidationError{
			Field:   "leftover_days",
			Message: fmt.Sprintf("leftover days must be between 0 and %d", MaxLeftoverDays),
		}
	}
	if err := r.Validate(); err != nil {
		return Meal{}, nil, err
	}

	snapshot := r.Clone()
	snapshot.EnsureID()

	cook := Meal{
		ID:           generic.MealID(generic.NewID("meal")),
		Recipe:       snapshot,
		DayNumber:    1,
		ScheduledFor: day,
		MealType:     mealType,
		Status:       StatusScheduled,
		LeftoverDays: leftoverDays,
	}
	p.insert(cook)

	chain := make([]Meal, 0, leftoverDays)
	for i := 1; i <= leftoverDays; i++ {
		lo := Meal{
			ID:           generic.MealID(generic.NewID("meal")),
			Recipe:       snapshot.Clone(),
			IsLeftover:   true,
			DayNumber:    i + 1,
			ParentMealID: cook.ID,
			ScheduledFor: day.AddDays(i),
			MealType:     mealType,
			Status:       StatusScheduled,
		}
		p.insert(lo)
		chain = append(chain, lo)
	}
	return cook, chain, nil
}

// RemoveMeal removes the meal from slotKey. Removing a cook meal also
// removes every leftover meal whose ParentMealID is that cook meal. The
// first element of the result is the meal asked for.
func (p *Plan) RemoveMeal(slotKey generic.SlotKey, mealID generic.MealID) ([]Meal, error) {
	meal, ok := p.take(slotKey, mealID)
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", generic.ErrMealNotFound, mealID, slotKey)
	}
	removed := []Meal{meal}
	if meal.IsLeftover {
		return removed, nil
	}

	for _, lo := range p.Leftovers(meal.ID) {
		if m, ok := p.take(lo.SlotKey(), lo.ID); ok {
			removed = append(removed, m)
		}
	}
	return removed, nil
}

// RescheduleMeal moves a meal from slot `from` to (newDay, newMealType). A
// blank newMealType keeps the current one. Moving a cook meal shifts its
// leftover meals by the same number of days and gives them the cook meal's
// new meal type. Cooked meals keep their status; moving one corrects the
// day it was cooked.
func (p *Plan) RescheduleMeal(mealID generic.MealID, from generic.SlotKey, newDay generic.Day, newMealType generic.MealType) (Reschedule, error) {
	meal, ok := p.lookup(from, mealID)
	if !ok {
		return Reschedule{}, fmt.Errorf("%w: %s in %s", generic.ErrMealNotFound, mealID, from)
	}
	if newDay.IsZero() {
		return Reschedule{}, &generic.ValidationError{Field: "day", Message: "new day is required"}
	}
	if strings.TrimSpace(string(newMealType)) == "" {
		newMealType = meal.MealType
	}
	if meal.IsLeftover {
		if parent, ok := p.Find(meal.ParentMealID); ok && !newDay.After(parent.ScheduledFor) {
			return Reschedule{}, &generic.ValidationError{
				Field:   "day",
				Message: fmt.Sprintf("leftover must stay after its cook day %s", parent.ScheduledFor),
			}
		}
	}

	delta := generic.DaysBetween(meal.ScheduledFor, newDay)
	p.take(from, mealID)
	meal.ScheduledFor = newDay
	meal.MealType = newMealType
	p.insert(meal)

	res := Reschedule{Meal: meal, From: from, To: meal.SlotKey(), DeltaDays: delta}
	if meal.IsLeftover {
		return res, nil
	}

	for _, lo := range p.Leftovers(meal.ID) {
		old := lo.SlotKey()
		p.take(old, lo.ID)
		lo.ScheduledFor = lo.ScheduledFor.AddDays(delta)
		lo.MealType = newMealType
		p.insert(lo)
		res.Moved = append(res.Moved, lo)
	}
	return res, nil
}

// MarkCooked flips a cook meal to cooked. Leftover meals are refused with
// ErrNotCookDay and already-cooked meals with ErrAlreadyCooked.
func (p *Plan) MarkCooked(slotKey generic.SlotKey, mealID generic.MealID) (Meal, error) {
	return p.update(slotKey, mealID, func(m *Meal) error {
		if m.IsLeftover {
			return fmt.Errorf("%w: %s", generic.ErrNotCookDay, m.ID)
		}
		if m.IsCooked() {
			return fmt.Errorf("%w: %s", generic.ErrAlreadyCooked, m.ID)
		}
		at := p.now()
		m.Status = StatusCooked
		m.CookedAt = &at
		return nil
	})
}

// MarkScheduled reverts a cooked meal. Used when a cook is undone.
func (p *Plan) MarkScheduled(slotKey generic.SlotKey, mealID generic.MealID) (Meal, error) {
	return p.update(slotKey, mealID, func(m *Meal) error {
		m.Status = StatusScheduled
		m.CookedAt = nil
		return nil
	})
}

func (p *Plan) update(slotKey generic.SlotKey, mealID generic.MealID, fn func(*Meal) error) (Meal, error) {
	meals := p.slots[slotKey]
	for i := range meals {
		if meals[i].ID != mealID {
			continue
		}
		if err := fn(&meals[i]); err != nil {
			return meals[i], err
		}
		return meals[i], nil
	}
	return Meal{}, fmt.Errorf("%w: %s in %s", generic.ErrMealNotFound, mealID, slotKey)
}

// =============================================================================
// QUERIES
// =============================================================================

// Get returns the meals at slotKey in insertion order.
func (p *Plan) Get(slotKey generic.SlotKey) []Meal {
	return append([]Meal(nil), p.slots[slotKey]...)
}

// Find locates a meal anywhere in the plan.
func (p *Plan) Find(mealID generic.MealID) (Meal, bool) {
	for _, meals := range p.slots {
		for _, m := range meals {
			if m.ID == mealID {
				return m, true
			}
		}
	}
	return Meal{}, false
}

// Leftovers returns the leftover meals of a cook meal ordered by day number.
func (p *Plan) Leftovers(cookMealID generic.MealID) []Meal {
	var out []Meal
	for _, meals := range p.slots {
		for _, m := range meals {
			if m.IsLeftover && m.ParentMealID == cookMealID {
				out = append(out, m)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DayNumber < out[j].DayNumber })
	return out
}

// Range returns the non-empty slots whose day lies in [from, to], ordered by
// slot key.
func (p *Plan) Range(from, to generic.Day) []Entry {
	var out []Entry
	for key, meals := range p.slots {
		if len(meals) == 0 {
			continue
		}
		day, mealType, err := generic.ParseSlotKey(key)
		if err != nil || day.Before(from) || day.After(to) {
			continue
		}
		out = append(out, Entry{SlotKey: key, Day: day, MealType: mealType, Meals: append([]Meal(nil), meals...)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SlotKey < out[j].SlotKey })
	return out
}

// Len counts meals across all slots.
func (p *Plan) Len() int {
	n := 0
	for _, meals := range p.slots {
		n += len(meals)
	}
	return n
}

// =============================================================================
// HELPERS
// =============================================================================

func (p *Plan) insert(m Meal) {
	key := m.SlotKey()
	p.slots[key] = append(p.slots[key], m)
}

func (p *Plan) lookup(slotKey generic.SlotKey, mealID generic.MealID) (Meal, bool) {
	for _, m := range p.slots[slotKey] {
		if m.ID == mealID {
			return m, true
		}
	}
	return Meal{}, false
}

func (p *Plan) take(slotKey generic.SlotKey, mealID generic.MealID) (Meal, bool) {
	meals := p.slots[slotKey]
	for i, m := range meals {
		if m.ID != mealID {
			continue
		}
		rest := append(meals[:i:i], meals[i+1:]...)
		if len(rest) == 0 {
			delete(p.slots, slotKey)
		} else {
			p.slots[slotKey] = rest
		}
		return m, true
	}
	return Meal{}, false
}

// =============================================================================
// PERSISTENCE
// =============================================================================

func (p *Plan) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.slots)
}

func (p *Plan) UnmarshalJSON(b []byte) error {
	slots := make(map[generic.SlotKey][]Meal)
	if err := json.Unmarshal(b, &slots); err != nil {
		return err
	}
	p.slots = slots
	if p.now == nil {
		p.now = time.Now
	}
	return nil
}
