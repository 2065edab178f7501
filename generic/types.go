/*
Package generic provides the primitives shared by every pantry package.

PURPOSE:
  The engine keeps several collections consistent (inventory, meal plan,
  allocations, leftovers). They all speak the same small vocabulary:
  quantities, calendar days, slot keys and identifiers. That vocabulary
  lives here so the stores never depend on each other for basic types.

KEY CONCEPTS IN THIS FILE (types.go):
  - Quantity: decimal amount, never float64 once inside the engine
  - SlotKey: "YYYY-MM-DD-<MealType>" scheduling position
  - Typed IDs: ItemID, RecipeID, MealID, LeftoverID

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal so reserve/release round-trips are exact
  2. Type Safety: distinct ID types prevent mixing item and meal IDs
  3. No floors hidden in callers: ClampZero is the one place a quantity
     is floored

SEE ALSO:
  - time.go: Day and expiry bucketing
  - errors.go: sentinel and structured errors
  - store.go: DocumentStore persistence interface
*/
package generic

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// QUANTITY
// =============================================================================

// Quantity is an amount of some unit. The unit travels separately because
// inventory items and allocation lines each carry their own.
type Quantity = decimal.Decimal

func NewQuantity(value float64) Quantity { return decimal.NewFromFloat(value) }
func QuantityFromInt(value int64) Quantity { return decimal.NewFromInt(value) }

// MustParseQuantity parses a decimal string, returning zero on failure.
func MustParseQuantity(s string) Quantity {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ClampZero floors q at zero and reports whether it had to.
func ClampZero(q Quantity) (Quantity, bool) {
	if q.IsNegative() {
		return decimal.Zero, true
	}
	return q, false
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ItemID string
type RecipeID string
type MealID string
type LeftoverID string

// NewID returns a random identifier with the given prefix, e.g. "item-3f2a...".
func NewID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

// =============================================================================
// MEAL TYPE / SLOT KEY
// =============================================================================

type MealType string

const (
	Breakfast MealType = "Breakfast"
	Lunch     MealType = "Lunch"
	Dinner    MealType = "Dinner"
	Snack     MealType = "Snack"
)

// SlotKey identifies one scheduling position: a day plus a meal type.
type SlotKey string

func NewSlotKey(day Day, mealType MealType) SlotKey {
	return SlotKey(day.String() + "-" + string(mealType))
}

// ParseSlotKey splits "2025-06-10-Dinner" into its day and meal type.
// Meal types may themselves contain dashes; only the first ten characters
// are read as the date.
func ParseSlotKey(key SlotKey) (Day, MealType, error) {
	s := string(key)
	if len(s) < len("2006-01-02-x") || s[10] != '-' {
		return Day{}, "", fmt.Errorf("%w: slot key %q", ErrInvalidSlotKey, s)
	}
	day, err := ParseDay(s[:10])
	if err != nil {
		return Day{}, "", fmt.Errorf("%w: slot key %q", ErrInvalidSlotKey, s)
	}
	return day, MealType(s[11:]), nil
}

// =============================================================================
// CHANGE EVENTS
// =============================================================================

// Collection names double as persisted document names.
type Collection string

const (
	CollectionInventory   Collection = "inventory"
	CollectionMealPlan    Collection = "mealplan"
	CollectionAllocations Collection = "allocations"
	CollectionLeftovers   Collection = "leftovers"
	CollectionHistory     Collection = "history"
	CollectionFamily      Collection = "family"
	CollectionShopping    Collection = "shopping"
	CollectionReplayCache Collection = "replay_cache"
)

// ChangeEvent tells subscribers which collections an operation touched.
type ChangeEvent struct {
	Seq         uint64       `json:"seq"`
	Operation   string       `json:"operation"`
	Collections []Collection `json:"collections"`
	SlotKey     SlotKey      `json:"slot_key,omitempty"`
	At          time.Time    `json:"at"`
}
