/*
Package inventory implements the Inventory Store: the flat collection of
on-hand items the allocation ledger reserves from and deducts against.

PURPOSE:
  Owns the []Item collection. Users edit it directly; the allocation
  ledger mutates it only through Restore and Deduct so every quantity
  change made by reconciliation goes through one clamped, unit-aware path.

INVARIANTS:
  - Quantity is never negative. Deduct clamps at zero.
  - Deduct never deletes. Removal of emptied items is a separate step
    (RemoveEmpty) so a confirmation decides which items it targeted.
  - Units are stored canonical (units.Normalize).

CONCURRENCY:
  Not safe for concurrent use. The planner serializes all access.

SEE ALSO:
  - resolve.go: id / name / substring lookup
  - allocation/ledger.go: the only caller of Restore/Deduct
*/
package inventory

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/pantry-engine/generic"
	"github.com/warp/pantry-engine/units"
)

// =============================================================================
// ITEM
// =============================================================================

type Item struct {
	ID       generic.ItemID  `json:"id"`
	Name     string          `json:"name"`
	Quantity decimal.Decimal `json:"quantity"`
	Unit     string          `json:"unit"`
	Location string          `json:"location"`
	Expiry   *generic.Day    `json:"expiry,omitempty"`
	Notes    string          `json:"notes,omitempty"`

	// Staples are restocked when they drop below MinStock.
	Staple   bool            `json:"staple,omitempty"`
	MinStock decimal.Decimal `json:"min_stock"`

	AddedAt time.Time `json:"added_at"`
}

// ExpiryStatus returns ok for items without an expiry.
func (it Item) ExpiryStatus(today generic.Day) generic.ExpiryStatus {
	if it.Expiry == nil {
		return generic.ExpiryOK
	}
	return generic.ExpiryStatusOf(*it.Expiry, today)
}

// Default storage locations. Location is free text; these are what the UI offers.
const (
	LocationPantry  = "Pantry"
	LocationFridge  = "Fridge"
	LocationFreezer = "Freezer"
)

// =============================================================================
// STORE
// =============================================================================

type Store struct {
	items []Item
	now   func() time.Time
}

func NewStore() *Store {
	return &Store{now: time.Now}
}

// NewStoreFrom builds a store over existing items (e.g. loaded from a document).
func NewStoreFrom(items []Item) *Store {
	s := NewStore()
	s.items = append([]Item(nil), items...)
	return s
}

// List returns a copy of all items in insertion order.
func (s *Store) List() []Item {
	return append([]Item(nil), s.items...)
}

func (s *Store) Len() int { return len(s.items) }

func (s *Store) Get(id generic.ItemID) (Item, bool) {
	for _, it := range s.items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

// Add inserts an item, or merges it into an existing item with the same
// name and location whose unit is convertible. It reports whether a merge
// happened.
func (s *Store) Add(it Item) (Item, bool, error) {
	if err := validate(it); err != nil {
		return Item{}, false, err
	}
	it.Name = strings.TrimSpace(it.Name)
	it.Unit = units.Normalize(it.Unit)
	if it.Location == "" {
		it.Location = LocationPantry
	}

	for i := range s.items {
		existing := &s.items[i]
		if !strings.EqualFold(existing.Name, it.Name) || !strings.EqualFold(existing.Location, it.Location) {
			continue
		}
		converted, err := units.Convert(it.Quantity, it.Unit, existing.Unit)
		if err != nil {
			continue
		}
		existing.Quantity = existing.Quantity.Add(converted)
		// keep the earliest expiry
		if it.Expiry != nil && (existing.Expiry == nil || it.Expiry.Before(*existing.Expiry)) {
			e := *it.Expiry
			existing.Expiry = &e
		}
		return *existing, true, nil
	}

	if it.ID == "" {
		it.ID = generic.ItemID(generic.NewID("item"))
	}
	if it.AddedAt.IsZero() {
		it.AddedAt = s.now()
	}
	s.items = append(s.items, it)
	return it, false, nil
}

// Reinsert puts back a previously removed item under its original ID,
// without merging into same-named items. It fails when the ID is taken.
func (s *Store) Reinsert(it Item) (Item, error) {
	if it.ID == "" {
		return Item{}, &generic.ValidationError{Field: "id", Message: "item id is required"}
	}
	if err := validate(it); err != nil {
		return Item{}, err
	}
	if _, exists := s.Get(it.ID); exists {
		return Item{}, &generic.ValidationError{Field: "id", Message: fmt.Sprintf("item %s already exists", it.ID)}
	}
	it.Unit = units.Normalize(it.Unit)
	if it.AddedAt.IsZero() {
		it.AddedAt = s.now()
	}
	s.items = append(s.items, it)
	return it, nil
}

// Update replaces the item with the same ID.
func (s *Store) Update(it Item) (Item, error) {
	if err := validate(it); err != nil {
		return Item{}, err
	}
	for i := range s.items {
		if s.items[i].ID == it.ID {
			it.Unit = units.Normalize(it.Unit)
			if it.AddedAt.IsZero() {
				it.AddedAt = s.items[i].AddedAt
			}
			s.items[i] = it
			return it, nil
		}
	}
	return Item{}, fmt.Errorf("%w: %s", generic.ErrItemNotFound, it.ID)
}

// Delete removes an item by ID.
func (s *Store) Delete(id generic.ItemID) error {
	for i := range s.items {
		if s.items[i].ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", generic.ErrItemNotFound, id)
}

func validate(it Item) error {
	if strings.TrimSpace(it.Name) == "" {
		return &generic.ValidationError{Field: "name", Message: "item name is required"}
	}
	if it.Quantity.IsNegative() {
		return &generic.ValidationError{Field: "quantity", Message: "quantity must not be negative"}
	}
	if it.MinStock.IsNegative() {
		return &generic.ValidationError{Field: "min_stock", Message: "minimum stock must not be negative"}
	}
	return nil
}

// =============================================================================
// RECONCILIATION MUTATIONS
// =============================================================================

// Adjustment describes one quantity change applied to an item.
type Adjustment struct {
	ItemID  generic.ItemID  `json:"item_id"`
	Name    string          `json:"name"`
	Before  decimal.Decimal `json:"before"`
	After   decimal.Decimal `json:"after"`
	Unit    string          `json:"unit"`
	Clamped bool            `json:"clamped,omitempty"`
	Match   MatchKind       `json:"match"`
}

// Restore adds amount (in unit) back to the item ref resolves to.
// Returns ErrReferentialMiss if no item matches and ErrUnitIncompatible if
// the amount cannot be expressed in the item's unit.
func (s *Store) Restore(ref Ref, amount decimal.Decimal, unit string) (Adjustment, error) {
	return s.adjust(ref, amount, unit, false)
}

// Deduct subtracts amount (in unit) from the item ref resolves to, clamped
// at zero. The item is kept even when it reaches zero.
func (s *Store) Deduct(ref Ref, amount decimal.Decimal, unit string) (Adjustment, error) {
	return s.adjust(ref, amount, unit, true)
}

func (s *Store) adjust(ref Ref, amount decimal.Decimal, unit string, deduct bool) (Adjustment, error) {
	idx, kind, ok := s.resolveIndex(ref, Strict)
	if !ok {
		return Adjustment{}, fmt.Errorf("%w: %s", generic.ErrReferentialMiss, ref)
	}
	item := &s.items[idx]

	delta, err := units.Convert(amount, unit, item.Unit)
	if err != nil {
		return Adjustment{}, fmt.Errorf("item %s: %w", item.Name, err)
	}

	adj := Adjustment{ItemID: item.ID, Name: item.Name, Before: item.Quantity, Unit: item.Unit, Match: kind}
	if deduct {
		item.Quantity, adj.Clamped = generic.ClampZero(item.Quantity.Sub(delta))
	} else {
		item.Quantity = item.Quantity.Add(delta)
	}
	adj.After = item.Quantity
	return adj, nil
}

// RemoveEmpty deletes the listed items if their quantity is zero. Items not
// in ids are never touched, even at zero.
func (s *Store) RemoveEmpty(ids []generic.ItemID) []generic.ItemID {
	target := make(map[generic.ItemID]bool, len(ids))
	for _, id := range ids {
		target[id] = true
	}

	var removed []generic.ItemID
	kept := s.items[:0]
	for _, it := range s.items {
		if target[it.ID] && it.Quantity.Sign() <= 0 {
			removed = append(removed, it.ID)
			continue
		}
		kept = append(kept, it)
	}
	s.items = kept
	return removed
}

// =============================================================================
// QUERIES
// =============================================================================

// LowStock returns staples below their minimum stock.
func (s *Store) LowStock() []Item {
	var out []Item
	for _, it := range s.items {
		if it.Staple && it.Quantity.LessThan(it.MinStock) {
			out = append(out, it)
		}
	}
	return out
}

// Expiring returns items whose expiry status is soon or expired.
func (s *Store) Expiring(today generic.Day) []Item {
	var out []Item
	for _, it := range s.items {
		if it.ExpiryStatus(today) != generic.ExpiryOK {
			out = append(out, it)
		}
	}
	return out
}

// =============================================================================
// PERSISTENCE
// =============================================================================

func (s *Store) MarshalJSON() ([]byte, error) {
	if s.items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.items)
}

func (s *Store) UnmarshalJSON(b []byte) error {
	var items []Item
	if err := json.Unmarshal(b, &items); err != nil {
		return err
	}
	s.items = items
	if s.now == nil {
		s.now = time.Now
	}
	return nil
}
