package planner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/warp/pantry-engine/allocation"
	"github.com/warp/pantry-engine/generic"
	"github.com/warp/pantry-engine/inventory"
	"github.com/warp/pantry-engine/leftovers"
	"github.com/warp/pantry-engine/mealplan"
	"github.com/warp/pantry-engine/suggest"
	"github.com/warp/pantry-engine/units"
)

var validate = validator.New()

// =============================================================================
// INVENTORY
// =============================================================================

// ItemView is an inventory item with its reservation picture for today.
type ItemView struct {
	inventory.Item
	Reserved      decimal.Decimal      `json:"reserved"`
	Available     decimal.Decimal      `json:"available"`
	ExpiryStatus  generic.ExpiryStatus `json:"expiry_status"`
	Overcommitted bool                 `json:"overcommitted"`
}

// view builds an ItemView. Caller holds e.mu.
func (e *Engine) view(it inventory.Item) ItemView {
	reserved := e.ledger.Reserved(it)
	available := it.Quantity.Sub(reserved)
	return ItemView{
		Item:          it,
		Reserved:      reserved,
		Available:     available,
		ExpiryStatus:  it.ExpiryStatus(e.today()),
		Overcommitted: available.IsNegative(),
	}
}

func (e *Engine) views(items []inventory.Item) []ItemView {
	out := make([]ItemView, 0, len(items))
	for _, it := range items {
		out = append(out, e.view(it))
	}
	return out
}

func (e *Engine) Items() []ItemView {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.views(e.inv.List())
}

func (e *Engine) Item(id generic.ItemID) (ItemView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	it, ok := e.inv.Get(id)
	if !ok {
		return ItemView{}, fmt.Errorf("%w: %s", generic.ErrItemNotFound, id)
	}
	return e.view(it), nil
}

// Expiring returns items that are expired or expire within the soon window.
func (e *Engine) Expiring() []ItemView {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.views(e.inv.Expiring(e.today()))
}

// Overcommitted returns items whose pending reservations exceed what is on hand.
func (e *Engine) Overcommitted() []ItemView {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.views(e.ledger.Overcommitted())
}

// AddItem inserts an item or merges it into a matching one. merged reports
// which happened.
func (e *Engine) AddItem(ctx context.Context, it inventory.Item) (view ItemView, merged bool, err error) {
	start := time.Now()
	defer func() { e.metrics.ObserveOperation("add_item", start, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	added, merged, err := e.inv.Add(it)
	if err != nil {
		return ItemView{}, false, err
	}
	payload := map[string]any{"item_id": string(added.ID), "name": added.Name, "merged": merged}
	if err := e.commit(ctx, "add_item", "", payload, generic.CollectionInventory); err != nil {
		return ItemView{}, false, err
	}
	return e.view(added), merged, nil
}

func (e *Engine) UpdateItem(ctx context.Context, it inventory.Item) (view ItemView, err error) {
	start := time.Now()
	defer func() { e.metrics.ObserveOperation("update_item", start, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	updated, err := e.inv.Update(it)
	if err != nil {
		return ItemView{}, err
	}
	payload := map[string]any{"item_id": string(updated.ID), "quantity": updated.Quantity.String(), "unit": updated.Unit}
	if err := e.commit(ctx, "update_item", "", payload, generic.CollectionInventory); err != nil {
		return ItemView{}, err
	}
	return e.view(updated), nil
}

// DeleteItem removes an item. Reservation lines that pointed at it stay in
// the ledger and are skipped as referential misses when confirmed.
func (e *Engine) DeleteItem(ctx context.Context, id generic.ItemID) (err error) {
	start := time.Now()
	defer func() { e.metrics.ObserveOperation("delete_item", start, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.inv.Delete(id); err != nil {
		return err
	}
	return e.commit(ctx, "delete_item", "", map[string]any{"item_id": string(id)}, generic.CollectionInventory)
}

// =============================================================================
// PLAN / LEDGER QUERIES
// =============================================================================

func (e *Engine) MealPlan(from, to generic.Day) []mealplan.Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.plan.Range(from, to)
}

func (e *Engine) Meal(mealID generic.MealID) (mealplan.Meal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.plan.Find(mealID)
	if !ok {
		return mealplan.Meal{}, fmt.Errorf("%w: %s", generic.ErrMealNotFound, mealID)
	}
	return m, nil
}

func (e *Engine) Allocations() []allocation.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.List()
}

// =============================================================================
// LEFTOVERS
// =============================================================================

type LeftoverView struct {
	leftovers.Record
	ExpiryStatus generic.ExpiryStatus `json:"expiry_status"`
}

// Leftovers returns active leftover records, soonest expiry first.
func (e *Engine) Leftovers() []LeftoverView {
	e.mu.Lock()
	defer e.mu.Unlock()
	today := e.today()
	recs := e.leftovers.List()
	out := make([]LeftoverView, 0, len(recs))
	for _, r := range recs {
		out = append(out, LeftoverView{Record: r, ExpiryStatus: r.ExpiryStatus(today)})
	}
	return out
}

func (e *Engine) History() []leftovers.HistoryEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.leftovers.History()
}

// AddLeftover records leftovers that did not come from a planned cook.
func (e *Engine) AddLeftover(ctx context.Context, rec leftovers.Record) (out leftovers.Record, err error) {
	start := time.Now()
	defer func() { e.metrics.ObserveOperation("add_leftover", start, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	out, err = e.leftovers.Create(rec)
	if err != nil {
		return leftovers.Record{}, err
	}
	payload := map[string]any{"leftover_id": string(out.ID), "name": out.Name, "portions": out.Portions}
	if err := e.commit(ctx, "add_leftover", "", payload, generic.CollectionLeftovers); err != nil {
		return leftovers.Record{}, err
	}
	return out, nil
}

// EatLeftover consumes servings. The record moves to history as Finished
// when nothing is left.
func (e *Engine) EatLeftover(ctx context.Context, id generic.LeftoverID, servings int) (rec leftovers.Record, finished bool, err error) {
	start := time.Now()
	defer func() { e.metrics.ObserveOperation("eat_leftover", start, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	rec, finished, err = e.leftovers.Consume(id, servings)
	if err != nil {
		return leftovers.Record{}, false, err
	}
	payload := map[string]any{"leftover_id": string(id), "servings": servings, "finished": finished}
	if err := e.commit(ctx, "eat_leftover", "", payload, generic.CollectionLeftovers, generic.CollectionHistory); err != nil {
		return leftovers.Record{}, false, err
	}
	return rec, finished, nil
}

func (e *Engine) RemoveLeftover(ctx context.Context, id generic.LeftoverID) (rec leftovers.Record, err error) {
	start := time.Now()
	defer func() { e.metrics.ObserveOperation("remove_leftover", start, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	rec, err = e.leftovers.Remove(id)
	if err != nil {
		return leftovers.Record{}, err
	}
	if err := e.commit(ctx, "remove_leftover", "", map[string]any{"leftover_id": string(id)},
		generic.CollectionLeftovers, generic.CollectionHistory); err != nil {
		return leftovers.Record{}, err
	}
	return rec, nil
}

// SweepExpired moves leftovers past their expiry into history. Nothing is
// written when nothing expired.
func (e *Engine) SweepExpired(ctx context.Context) (expired []leftovers.Record, err error) {
	start := time.Now()
	defer func() { e.metrics.ObserveOperation("sweep", start, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	expired = e.leftovers.SweepExpired(e.today())
	if len(expired) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(expired))
	for _, r := range expired {
		names = append(names, r.Name)
	}
	payload := map[string]any{"expired": len(expired), "names": names}
	if err := e.commit(ctx, "sweep", "", payload, generic.CollectionLeftovers, generic.CollectionHistory); err != nil {
		return nil, err
	}
	return expired, nil
}

// =============================================================================
// FAMILY
// =============================================================================

func (e *Engine) Family() []suggest.FamilyMember {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]suggest.FamilyMember(nil), e.family...)
}

// SetFamily replaces the household list used in recipe suggestions.
func (e *Engine) SetFamily(ctx context.Context, members []suggest.FamilyMember) (err error) {
	start := time.Now()
	defer func() { e.metrics.ObserveOperation("set_family", start, err) }()

	for i, m := range members {
		if err := validate.Struct(m); err != nil {
			return &generic.ValidationError{Field: fmt.Sprintf("family[%d]", i), Message: err.Error()}
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.family = append([]suggest.FamilyMember(nil), members...)
	return e.commit(ctx, "set_family", "", map[string]any{"members": len(members)}, generic.CollectionFamily)
}

// =============================================================================
// SHOPPING
// =============================================================================

// Shopping list sources.
const (
	ShoppingManual   = "manual"
	ShoppingLowStock = "low_stock"
)

type ShoppingItem struct {
	ID       string          `json:"id"`
	Name     string          `json:"name" validate:"required"`
	Quantity decimal.Decimal `json:"quantity"`
	Unit     string          `json:"unit"`
	Checked  bool            `json:"checked"`
	Source   string          `json:"source"`
	AddedAt  time.Time       `json:"added_at"`
}

func (e *Engine) Shopping() []ShoppingItem {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]ShoppingItem(nil), e.shopping...)
}

func (e *Engine) AddShoppingItem(ctx context.Context, item ShoppingItem) (out ShoppingItem, err error) {
	start := time.Now()
	defer func() { e.metrics.ObserveOperation("add_shopping", start, err) }()

	item.Name = strings.TrimSpace(item.Name)
	if err := validate.Struct(item); err != nil {
		return ShoppingItem{}, &generic.ValidationError{Field: "name", Message: "item name is required"}
	}
	if item.Quantity.IsNegative() {
		return ShoppingItem{}, &generic.ValidationError{Field: "quantity", Message: "quantity must not be negative"}
	}
	item.ID = generic.NewID("shop")
	item.Unit = units.Normalize(item.Unit)
	if item.Source == "" {
		item.Source = ShoppingManual
	}
	item.AddedAt = time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.shopping = append(e.shopping, item)
	if err := e.commit(ctx, "add_shopping", "", map[string]any{"name": item.Name}, generic.CollectionShopping); err != nil {
		return ShoppingItem{}, err
	}
	return item, nil
}

// CheckShoppingItem ticks or unticks an entry.
func (e *Engine) CheckShoppingItem(ctx context.Context, id string, checked bool) (out ShoppingItem, err error) {
	start := time.Now()
	defer func() { e.metrics.ObserveOperation("check_shopping", start, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.shopping {
		if e.shopping[i].ID != id {
			continue
		}
		e.shopping[i].Checked = checked
		out = e.shopping[i]
		if err := e.commit(ctx, "check_shopping", "", map[string]any{"id": id, "checked": checked}, generic.CollectionShopping); err != nil {
			return ShoppingItem{}, err
		}
		return out, nil
	}
	return ShoppingItem{}, fmt.Errorf("%w: shopping entry %s", generic.ErrItemNotFound, id)
}

func (e *Engine) RemoveShoppingItem(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { e.metrics.ObserveOperation("remove_shopping", start, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.shopping {
		if e.shopping[i].ID == id {
			e.shopping = append(e.shopping[:i], e.shopping[i+1:]...)
			return e.commit(ctx, "remove_shopping", "", map[string]any{"id": id}, generic.CollectionShopping)
		}
	}
	return fmt.Errorf("%w: shopping entry %s", generic.ErrItemNotFound, id)
}

// RefreshShopping adds an entry for every staple below its minimum stock
// that is not already on the list unchecked. The entry asks for the
// shortfall. Returns the entries added.
func (e *Engine) RefreshShopping(ctx context.Context) (added []ShoppingItem, err error) {
	start := time.Now()
	defer func() { e.metrics.ObserveOperation("refresh_shopping", start, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	listed := make(map[string]bool, len(e.shopping))
	for _, s := range e.shopping {
		if !s.Checked {
			listed[strings.ToLower(s.Name)] = true
		}
	}
	for _, it := range e.inv.LowStock() {
		if listed[strings.ToLower(it.Name)] {
			continue
		}
		entry := ShoppingItem{
			ID:       generic.NewID("shop"),
			Name:     it.Name,
			Quantity: it.MinStock.Sub(it.Quantity),
			Unit:     it.Unit,
			Source:   ShoppingLowStock,
			AddedAt:  time.Now(),
		}
		e.shopping = append(e.shopping, entry)
		added = append(added, entry)
		listed[strings.ToLower(it.Name)] = true
	}
	if len(added) == 0 {
		return nil, nil
	}
	if err := e.commit(ctx, "refresh_shopping", "", map[string]any{"added": len(added)}, generic.CollectionShopping); err != nil {
		return nil, err
	}
	return added, nil
}

// =============================================================================
// RECIPE SUGGESTIONS
// =============================================================================

const suggestKey = "suggest"

// Suggest asks the service for recipes. Inventory and family default to the
// engine's current state. A newer Suggest call supersedes an older one still
// in flight; the older returns ErrStaleRequest. A failed call is not an
// error: the result carries it.
func (e *Engine) Suggest(ctx context.Context, req suggest.SuggestRequest) (res suggest.RecipesResult, err error) {
	start := time.Now()
	defer func() { e.metrics.ObserveOperation("suggest", start, err) }()

	e.mu.Lock()
	seq := e.seq.Issue(suggestKey)
	if req.Inventory == nil {
		req.Inventory = e.inventoryLines()
	}
	if req.Family == nil {
		req.Family = append([]suggest.FamilyMember(nil), e.family...)
	}
	e.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, e.suggestTimeout)
	defer cancel()
	callStart := time.Now()
	res = e.client.SuggestRecipes(callCtx, req)
	e.metrics.ObserveSuggestion("recipes", callStart, res.Err)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.fresh("suggest", suggestKey, seq); err != nil {
		return suggest.RecipesResult{}, err
	}
	if !res.OK() {
		e.logger.Printf("recipe suggestions failed: %v", res.Err)
	}
	return res, nil
}
