/*
Package allocation implements the Allocation Ledger: which inventory
quantities are claimed by which scheduled meal slot.

PURPOSE:
  A scheduled (not yet cooked) meal holds an advisory reservation against
  inventory. Cooking confirms the reservation and deducts the quantities;
  removing the meal first releases it. The ledger is the only component
  that deducts inventory on behalf of a meal.

LIFECYCLE:
  ┌──────────┐  Reserve   ┌─────────┐  Confirm   ┌─────────┐  UndoCook
  │  (none)  │──────────▶│ pending │──────────▶│ receipt │──────────▶ restored
  └──────────┘            └─────────┘            └─────────┘
                               │ Release / Move
                               ▼
                      dropped / rekeyed

PENDING vs CONFIRMED:
  A pending record never touches on-hand quantities. It lowers what
  Available reports for an item. Release drops the claim, so availability
  returns exactly to its pre-reserve value and on-hand is unchanged.

  Confirm reads quantities fresh, subtracts each line clamped at zero,
  deletes items this confirmation emptied, deletes the record and keeps a
  Receipt of what was actually taken. Receipts belong to the cooked meal,
  not the slot, since one slot can hold several meals. UndoCook puts every
  receipt of the meal back, newest first.

INVARIANTS:
  - At most one pending record per slot key. Reserve overwrites; Move
    refuses to land on another record.
  - Confirm never removes an item it did not target.
  - A missing item skips its line (ReferentialMiss); the rest still apply.
  - Units are converted with units.Convert; incompatible lines are skipped.

REPLAY:
  Every deduction is cached under the recipe's ingredient hash. Cooking a
  recipe again with an unchanged hash replays the cached lines without a
  new matching call.

CONCURRENCY:
  Not safe for concurrent use. The planner serializes all access.

SEE ALSO:
  - inventory/store.go: Restore / Deduct / RemoveEmpty
  - planner/cook.go: chooses between Confirm, Replay and fresh matching
*/
package allocation

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/pantry-engine/generic"
	"github.com/warp/pantry-engine/inventory"
	"github.com/warp/pantry-engine/units"
)

// =============================================================================
// TYPES
// =============================================================================

// Confidence is the match tier reported by the suggestion service.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Line reserves Amount (in Unit) of one inventory item.
type Line struct {
	ItemID     generic.ItemID  `json:"item_id"`
	ItemName   string          `json:"item_name"`
	Amount     decimal.Decimal `json:"amount"`
	Unit       string          `json:"unit"`
	Confidence Confidence      `json:"confidence"`
}

func (l Line) ref() inventory.Ref { return inventory.Ref{ID: l.ItemID, Name: l.ItemName} }

// Record is the pending reservation for one slot.
type Record struct {
	SlotKey        generic.SlotKey  `json:"slot_key"`
	RecipeID       generic.RecipeID `json:"recipe_id"`
	RecipeName     string           `json:"recipe_name"`
	IngredientHash string           `json:"ingredient_hash"`
	Lines          []Line           `json:"lines"`
	CreatedAt      time.Time        `json:"created_at"`
}

// Receipt records what a confirmed cook actually took from inventory.
type Receipt struct {
	SlotKey        generic.SlotKey        `json:"slot_key"`
	MealID         generic.MealID         `json:"meal_id"`
	RecipeID       generic.RecipeID       `json:"recipe_id"`
	IngredientHash string                 `json:"ingredient_hash"`
	Applied        []inventory.Adjustment `json:"applied"`
	Removed        []inventory.Item       `json:"removed,omitempty"`
	At             time.Time              `json:"at"`
}

// Skip is a line that could not be applied.
type Skip struct {
	Line   Line   `json:"line"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

// Outcome reports what a ledger operation did.
type Outcome struct {
	SlotKey  generic.SlotKey        `json:"slot_key"`
	Found    bool                   `json:"found"`
	Replayed bool                   `json:"replayed,omitempty"`
	Lines    []Line                 `json:"lines,omitempty"`
	Applied  []inventory.Adjustment `json:"applied,omitempty"`
	Skipped  []Skip                 `json:"skipped,omitempty"`
	Removed  []generic.ItemID       `json:"removed,omitempty"`
	Restored []generic.ItemID       `json:"restored,omitempty"`
}

// Clamped reports whether any deduction hit the zero floor.
func (o Outcome) Clamped() bool {
	for _, a := range o.Applied {
		if a.Clamped {
			return true
		}
	}
	return false
}

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	inv      *inventory.Store
	records  map[generic.SlotKey]Record
	receipts map[generic.MealID][]Receipt
	replay   map[string][]Line
	now      func() time.Time
}

func NewLedger(inv *inventory.Store) *Ledger {
	return &Ledger{
		inv:      inv,
		records:  make(map[generic.SlotKey]Record),
		receipts: make(map[generic.MealID][]Receipt),
		replay:   make(map[string][]Line),
		now:      time.Now,
	}
}

// Reserve stores the record for slotKey, replacing any prior record.
// Inventory quantities are not touched.
func (l *Ledger) Reserve(slotKey generic.SlotKey, recipeName string, recipeID generic.RecipeID, hash string, lines []Line) Record {
	rec := Record{
		SlotKey:        slotKey,
		RecipeID:       recipeID,
		RecipeName:     recipeName,
		IngredientHash: hash,
		Lines:          normalizeLines(lines),
		CreatedAt:      l.now(),
	}
	l.records[slotKey] = rec
	return rec
}

// Release drops the pending record for slotKey. On-hand quantities are
// unchanged; the reserved amounts become available again. No-op when no
// record exists.
func (l *Ledger) Release(slotKey generic.SlotKey) Outcome {
	rec, ok := l.records[slotKey]
	if !ok {
		return Outcome{SlotKey: slotKey}
	}
	delete(l.records, slotKey)
	return Outcome{SlotKey: slotKey, Found: true, Lines: rec.Lines}
}

// Confirm deducts the record at slotKey from inventory on behalf of mealID
// and deletes it. No-op when no record exists.
func (l *Ledger) Confirm(slotKey generic.SlotKey, mealID generic.MealID) Outcome {
	rec, ok := l.records[slotKey]
	if !ok {
		return Outcome{SlotKey: slotKey}
	}
	delete(l.records, slotKey)

	out := l.deduct(slotKey, mealID, rec.RecipeID, rec.IngredientHash, rec.Lines)
	out.Found = true
	return out
}

// Deduct applies lines directly, without a pending record. Used when
// cooking a meal whose reservation was never made or was already confirmed.
// Empty lines still leave a receipt so the cook can be undone.
func (l *Ledger) Deduct(slotKey generic.SlotKey, mealID generic.MealID, recipeID generic.RecipeID, hash string, lines []Line) Outcome {
	return l.deduct(slotKey, mealID, recipeID, hash, normalizeLines(lines))
}

// Replay re-applies the cached deduction for hash. ok is false when the
// hash has never been confirmed, in which case nothing is deducted.
func (l *Ledger) Replay(slotKey generic.SlotKey, mealID generic.MealID, recipeID generic.RecipeID, hash string) (Outcome, bool) {
	lines, ok := l.replay[hash]
	if !ok || hash == "" {
		return Outcome{SlotKey: slotKey}, false
	}
	out := l.deduct(slotKey, mealID, recipeID, hash, lines)
	out.Replayed = true
	return out, true
}

// Cached returns the cached deduction lines for hash.
func (l *Ledger) Cached(hash string) ([]Line, bool) {
	lines, ok := l.replay[hash]
	return append([]Line(nil), lines...), ok
}

func (l *Ledger) deduct(slotKey generic.SlotKey, mealID generic.MealID, recipeID generic.RecipeID, hash string, lines []Line) Outcome {
	out := Outcome{SlotKey: slotKey, Lines: lines}

	// Snapshot targeted items so an undo can re-create anything removed.
	before := make(map[generic.ItemID]inventory.Item)
	var targeted []generic.ItemID
	for _, line := range lines {
		adj, err := l.inv.Deduct(line.ref(), line.Amount, line.Unit)
		if err != nil {
			out.Skipped = append(out.Skipped, skipFor(line, err))
			continue
		}
		if _, seen := before[adj.ItemID]; !seen {
			if it, ok := l.inv.Get(adj.ItemID); ok {
				it.Quantity = adj.Before
				before[adj.ItemID] = it
			}
			targeted = append(targeted, adj.ItemID)
		}
		out.Applied = append(out.Applied, adj)
	}
	out.Removed = l.inv.RemoveEmpty(targeted)

	receipt := Receipt{
		SlotKey:        slotKey,
		MealID:         mealID,
		RecipeID:       recipeID,
		IngredientHash: hash,
		Applied:        out.Applied,
		At:             l.now(),
	}
	for _, id := range out.Removed {
		receipt.Removed = append(receipt.Removed, before[id])
	}
	l.receipts[mealID] = append(l.receipts[mealID], receipt)

	if hash != "" && len(lines) > 0 {
		l.replay[hash] = append([]Line(nil), lines...)
	}
	return out
}

// UndoCook puts back what every recorded cook of mealID took, newest first.
// Items a cook removed are re-created under their original ID with the
// quantity it took from them. Found is false when the meal has no receipt.
func (l *Ledger) UndoCook(mealID generic.MealID) Outcome {
	receipts, ok := l.receipts[mealID]
	if !ok || len(receipts) == 0 {
		return Outcome{}
	}
	delete(l.receipts, mealID)
	out := Outcome{SlotKey: receipts[len(receipts)-1].SlotKey, Found: true}

	for i := len(receipts) - 1; i >= 0; i-- {
		l.undo(receipts[i], &out)
	}
	return out
}

func (l *Ledger) undo(receipt Receipt, out *Outcome) {
	removed := make(map[generic.ItemID]inventory.Item, len(receipt.Removed))
	for _, it := range receipt.Removed {
		removed[it.ID] = it
	}

	for _, adj := range receipt.Applied {
		taken := adj.Before.Sub(adj.After)
		if !taken.IsPositive() {
			continue
		}
		line := Line{ItemID: adj.ItemID, ItemName: adj.Name, Amount: taken, Unit: adj.Unit}

		if snapshot, gone := removed[adj.ItemID]; gone {
			if _, exists := l.inv.Get(adj.ItemID); !exists {
				snapshot.Quantity = decimal.Zero
				if _, err := l.inv.Reinsert(snapshot); err != nil {
					out.Skipped = append(out.Skipped, skipFor(line, err))
					continue
				}
				out.Restored = append(out.Restored, adj.ItemID)
			}
		}

		restored, err := l.inv.Restore(inventory.Ref{ID: adj.ItemID, Name: adj.Name}, taken, adj.Unit)
		if err != nil {
			out.Skipped = append(out.Skipped, skipFor(line, err))
			continue
		}
		out.Applied = append(out.Applied, restored)
	}
}

// Move rekeys the pending record from one slot to another. It reports
// whether a record was moved, and refuses with ErrSlotReserved when the
// target slot already holds a different record.
func (l *Ledger) Move(from, to generic.SlotKey) (bool, error) {
	rec, ok := l.records[from]
	if !ok {
		return false, nil
	}
	if from == to {
		return true, nil
	}
	if other, taken := l.records[to]; taken {
		return false, fmt.Errorf("%w: %s holds %q", generic.ErrSlotReserved, to, other.RecipeName)
	}
	delete(l.records, from)
	rec.SlotKey = to
	l.records[to] = rec
	return true, nil
}

// CanMove reports the error Move would return, without moving anything.
func (l *Ledger) CanMove(from, to generic.SlotKey) error {
	if _, ok := l.records[from]; !ok || from == to {
		return nil
	}
	if other, taken := l.records[to]; taken {
		return fmt.Errorf("%w: %s holds %q", generic.ErrSlotReserved, to, other.RecipeName)
	}
	return nil
}

// ForgetReceipts drops the receipts of a meal that left the plan.
func (l *Ledger) ForgetReceipts(mealID generic.MealID) {
	delete(l.receipts, mealID)
}

// MoveReceipts points the receipts of a cooked meal at its new slot.
func (l *Ledger) MoveReceipts(mealID generic.MealID, to generic.SlotKey) {
	for i := range l.receipts[mealID] {
		l.receipts[mealID][i].SlotKey = to
	}
}

// =============================================================================
// QUERIES
// =============================================================================

func (l *Ledger) Get(slotKey generic.SlotKey) (Record, bool) {
	rec, ok := l.records[slotKey]
	return rec, ok
}

// Receipt returns the latest cook receipt for mealID.
func (l *Ledger) Receipt(mealID generic.MealID) (Receipt, bool) {
	rs := l.receipts[mealID]
	if len(rs) == 0 {
		return Receipt{}, false
	}
	return rs[len(rs)-1], true
}

// List returns pending records ordered by slot key.
func (l *Ledger) List() []Record {
	out := make([]Record, 0, len(l.records))
	for _, rec := range l.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SlotKey < out[j].SlotKey })
	return out
}

// Reserved sums pending reservations against an item, in the item's unit.
// Lines whose unit cannot be converted are ignored.
func (l *Ledger) Reserved(item inventory.Item) decimal.Decimal {
	total := decimal.Zero
	for _, rec := range l.records {
		for _, line := range rec.Lines {
			if !l.targets(line, item) {
				continue
			}
			amt, err := units.Convert(line.Amount, line.Unit, item.Unit)
			if err != nil {
				continue
			}
			total = total.Add(amt)
		}
	}
	return total
}

// Available is on-hand minus pending reservations. It may be negative when
// reservations overcommit the item; reservations are advisory.
func (l *Ledger) Available(item inventory.Item) decimal.Decimal {
	return item.Quantity.Sub(l.Reserved(item))
}

// Overcommitted returns items whose pending reservations exceed on-hand.
func (l *Ledger) Overcommitted() []inventory.Item {
	var out []inventory.Item
	for _, it := range l.inv.List() {
		if l.Available(it).IsNegative() {
			out = append(out, it)
		}
	}
	return out
}

func (l *Ledger) targets(line Line, item inventory.Item) bool {
	if line.ItemID != "" {
		if line.ItemID == item.ID {
			return true
		}
		if _, exists := l.inv.Get(line.ItemID); exists {
			return false
		}
	}
	resolved, _, ok := l.inv.Resolve(line.ref(), inventory.Strict)
	return ok && resolved.ID == item.ID
}

// =============================================================================
// HELPERS
// =============================================================================

func normalizeLines(lines []Line) []Line {
	out := make([]Line, 0, len(lines))
	for _, line := range lines {
		if line.Amount.IsNegative() {
			line.Amount = decimal.Zero
		}
		line.Unit = units.Normalize(line.Unit)
		if line.Confidence == "" {
			line.Confidence = ConfidenceHigh
		}
		out = append(out, line)
	}
	return out
}

func skipFor(line Line, err error) Skip {
	return Skip{Line: line, Reason: reasonOf(err), Err: err}
}

func reasonOf(err error) string {
	switch {
	case errors.Is(err, generic.ErrReferentialMiss):
		return "referential_miss"
	case errors.Is(err, generic.ErrUnitIncompatible):
		return "unit_incompatible"
	default:
		return err.Error()
	}
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// Document is the persisted shape of the allocations collection.
type Document struct {
	Records  map[generic.SlotKey]Record   `json:"records"`
	Receipts map[generic.MealID][]Receipt `json:"receipts"`
}

func (l *Ledger) Document() Document {
	return Document{Records: l.records, Receipts: l.receipts}
}

func (l *Ledger) LoadDocument(doc Document) {
	l.records = doc.Records
	if l.records == nil {
		l.records = make(map[generic.SlotKey]Record)
	}
	l.receipts = doc.Receipts
	if l.receipts == nil {
		l.receipts = make(map[generic.MealID][]Receipt)
	}
}

// ReplayCache returns the hash -> lines cache for persistence.
func (l *Ledger) ReplayCache() map[string][]Line { return l.replay }

func (l *Ledger) LoadReplayCache(cache map[string][]Line) {
	l.replay = cache
	if l.replay == nil {
		l.replay = make(map[string][]Line)
	}
}

// MarshalJSON encodes the allocations document.
func (l *Ledger) MarshalJSON() ([]byte, error) { return json.Marshal(l.Document()) }
