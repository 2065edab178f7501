/*
Package leftovers implements the Leftover Lifecycle Tracker: cooked food
waiting to be eaten, and the history of what became of it.

LIFECYCLE:
  CreateFromCook / Create
        │
        ▼
  ┌──────────┐  Consume(n) while portions > 0
  │  active  │◀───────────────┐
  └──────────┘────────────────┘
        │ portions reach 0 ──▶ history: Finished
        │ Remove           ──▶ history: Removed
        │ SweepExpired     ──▶ history: Expired

  A record never comes back from history.

EXPIRY:
  Expiry is a calendar day. Status buckets come from
  generic.ExpiryStatusOf: expired before today, soon within the next
  seven days, ok otherwise.

CONCURRENCY:
  Not safe for concurrent use. The planner serializes all access.
*/
package leftovers

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/warp/pantry-engine/generic"
	"github.com/warp/pantry-engine/recipe"
)

// DefaultExpiryDays is used when a cook does not say how long leftovers keep.
const DefaultExpiryDays = 4

type Record struct {
	ID          generic.LeftoverID `json:"id"`
	Name        string             `json:"name"`
	Portions    int                `json:"portions"`
	Expiry      generic.Day        `json:"expiry"`
	StorageText string             `json:"storage,omitempty"`
	ReheatText  string             `json:"reheat,omitempty"`
	RecipeID    generic.RecipeID   `json:"recipe_id,omitempty"`
	// MealID is the cook meal the record came from, if any.
	MealID    generic.MealID `json:"meal_id,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

func (r Record) ExpiryStatus(today generic.Day) generic.ExpiryStatus {
	return generic.ExpiryStatusOf(r.Expiry, today)
}

type Status string

const (
	StatusFinished Status = "Finished"
	StatusRemoved  Status = "Removed"
	StatusExpired  Status = "Expired"
)

type HistoryEntry struct {
	Leftover Record    `json:"leftover"`
	Status   Status    `json:"status"`
	At       time.Time `json:"at"`
}

// =============================================================================
// TRACKER
// =============================================================================

type Tracker struct {
	active  []Record
	history []HistoryEntry
	now     func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

// CookInput describes a cook that may produce leftovers.
type CookInput struct {
	Recipe       recipe.Recipe
	MealID       generic.MealID
	CookDay      generic.Day
	LeftoverDays int
	// Portions overrides the derived portion count when positive.
	Portions int
	// ExpiryDays overrides DefaultExpiryDays when positive.
	ExpiryDays int
}

// CreateFromCook adds the leftover record for a cook. ok is false (and
// nothing is created) when the cook has no leftover days.
func (t *Tracker) CreateFromCook(in CookInput) (Record, bool) {
	if in.LeftoverDays <= 0 && in.Portions <= 0 {
		return Record{}, false
	}
	expiryDays := in.ExpiryDays
	if expiryDays <= 0 {
		expiryDays = DefaultExpiryDays
	}
	cookDay := in.CookDay
	if cookDay.IsZero() {
		cookDay = generic.DayOf(t.now())
	}

	rec := Record{
		ID:          generic.LeftoverID(generic.NewID("leftover")),
		Name:        in.Recipe.Name,
		Portions:    LeftoverPortions(in.Recipe.Servings, in.LeftoverDays, in.Portions),
		Expiry:      cookDay.AddDays(expiryDays),
		StorageText: in.Recipe.StorageText,
		ReheatText:  in.Recipe.ReheatText,
		RecipeID:    in.Recipe.ID,
		MealID:      in.MealID,
		CreatedAt:   t.now(),
	}
	t.active = append(t.active, rec)
	return rec, true
}

// LeftoverPortions derives how many portions a cook leaves behind. An
// explicit positive count wins. Otherwise the cook day eats its share of
// the servings spread over the cook day plus the leftover days; when the
// recipe has no usable serving count, one portion per leftover day.
func LeftoverPortions(servings, leftoverDays, explicit int) int {
	if explicit > 0 {
		return explicit
	}
	if leftoverDays <= 0 {
		return 0
	}
	if servings > 0 {
		eaten := int(math.Ceil(float64(servings) / float64(leftoverDays+1)))
		if left := servings - eaten; left > 0 {
			return left
		}
	}
	return leftoverDays
}

// Create adds a manual record. Expiry is required; portions must be positive.
func (t *Tracker) Create(rec Record) (Record, error) {
	if strings.TrimSpace(rec.Name) == "" {
		return Record{}, &generic.ValidationError{Field: "name", Message: "leftover name is required"}
	}
	if rec.Portions <= 0 {
		return Record{}, &generic.ValidationError{Field: "portions", Message: "portions must be positive"}
	}
	if rec.Expiry.IsZero() {
		return Record{}, &generic.ValidationError{Field: "expiry", Message: "expiry is required"}
	}
	if rec.ID == "" {
		rec.ID = generic.LeftoverID(generic.NewID("leftover"))
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = t.now()
	}
	t.active = append(t.active, rec)
	return rec, nil
}

// Consume eats servings from a record. When portions reach zero the record
// moves to history as Finished; finished reports that.
func (t *Tracker) Consume(id generic.LeftoverID, servings int) (rec Record, finished bool, err error) {
	if servings <= 0 {
		return Record{}, false, &generic.ValidationError{Field: "servings", Message: "servings must be positive"}
	}
	idx, ok := t.index(id)
	if !ok {
		return Record{}, false, fmt.Errorf("%w: %s", generic.ErrLeftoverNotFound, id)
	}
	t.active[idx].Portions -= servings
	if t.active[idx].Portions > 0 {
		return t.active[idx], false, nil
	}
	t.active[idx].Portions = 0
	return t.retire(idx, StatusFinished), true, nil
}

// Remove moves a record to history as Removed.
func (t *Tracker) Remove(id generic.LeftoverID) (Record, error) {
	idx, ok := t.index(id)
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", generic.ErrLeftoverNotFound, id)
	}
	return t.retire(idx, StatusRemoved), nil
}

// RemoveForMeal drops the active record spawned by a cook meal without
// writing history. Used when a cook is undone.
func (t *Tracker) RemoveForMeal(mealID generic.MealID) (Record, bool) {
	for i, rec := range t.active {
		if mealID != "" && rec.MealID == mealID {
			t.active = append(t.active[:i], t.active[i+1:]...)
			return rec, true
		}
	}
	return Record{}, false
}

// ShiftExpiry moves the expiry of records spawned by mealID by days.
func (t *Tracker) ShiftExpiry(mealID generic.MealID, days int) []Record {
	var shifted []Record
	if mealID == "" || days == 0 {
		return shifted
	}
	for i := range t.active {
		if t.active[i].MealID == mealID {
			t.active[i].Expiry = t.active[i].Expiry.AddDays(days)
			shifted = append(shifted, t.active[i])
		}
	}
	return shifted
}

// SweepExpired retires every record whose expiry is before today.
func (t *Tracker) SweepExpired(today generic.Day) []Record {
	var expired []Record
	for i := 0; i < len(t.active); {
		if t.active[i].ExpiryStatus(today) == generic.ExpiryExpired {
			expired = append(expired, t.retire(i, StatusExpired))
			continue
		}
		i++
	}
	return expired
}

func (t *Tracker) retire(idx int, status Status) Record {
	rec := t.active[idx]
	t.active = append(t.active[:idx], t.active[idx+1:]...)
	t.history = append(t.history, HistoryEntry{Leftover: rec, Status: status, At: t.now()})
	return rec
}

func (t *Tracker) index(id generic.LeftoverID) (int, bool) {
	for i, rec := range t.active {
		if rec.ID == id {
			return i, true
		}
	}
	return -1, false
}

// =============================================================================
// QUERIES
// =============================================================================

func (t *Tracker) Get(id generic.LeftoverID) (Record, bool) {
	idx, ok := t.index(id)
	if !ok {
		return Record{}, false
	}
	return t.active[idx], true
}

// List returns active records, soonest expiry first.
func (t *Tracker) List() []Record {
	out := append([]Record(nil), t.active...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Expiry.Before(out[j].Expiry) })
	return out
}

// ForMeal returns the active record spawned by a cook meal.
func (t *Tracker) ForMeal(mealID generic.MealID) (Record, bool) {
	for _, rec := range t.active {
		if mealID != "" && rec.MealID == mealID {
			return rec, true
		}
	}
	return Record{}, false
}

// History returns retired records, newest first.
func (t *Tracker) History() []HistoryEntry {
	out := make([]HistoryEntry, len(t.history))
	for i, h := range t.history {
		out[len(t.history)-1-i] = h
	}
	return out
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// Active and History are persisted as separate documents.

func (t *Tracker) MarshalActive() ([]byte, error) {
	if t.active == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(t.active)
}

func (t *Tracker) MarshalHistory() ([]byte, error) {
	if t.history == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(t.history)
}

func (t *Tracker) LoadActive(b []byte) error {
	var recs []Record
	if err := json.Unmarshal(b, &recs); err != nil {
		return fmt.Errorf("decode leftovers: %w", err)
	}
	t.active = recs
	return nil
}

func (t *Tracker) LoadHistory(b []byte) error {
	var entries []HistoryEntry
	if err := json.Unmarshal(b, &entries); err != nil {
		return fmt.Errorf("decode history: %w", err)
	}
	t.history = entries
	return nil
}
