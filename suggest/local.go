package suggest

import (
	"github.com/warp/pantry-engine/allocation"
	"github.com/warp/pantry-engine/inventory"
	"github.com/warp/pantry-engine/recipe"
	"github.com/warp/pantry-engine/units"
)

// LocalCandidates proposes matches without calling the service: each
// ingredient is resolved against inventory in Fuzzy mode. Every candidate
// is low confidence and unselected, so nothing is reserved unless the user
// picks it. Ingredients with no item are left out.
func LocalCandidates(r recipe.Recipe, inv *inventory.Store) []Match {
	var out []Match
	for _, ing := range r.Ingredients {
		item, kind, ok := inv.Resolve(inventory.Ref{ID: ing.ItemID, Name: ing.Name}, inventory.Fuzzy)
		if !ok {
			continue
		}

		// An unparseable quantity still yields "1 each"; that only becomes a
		// reservation if the user selects it.
		parsed, _ := units.ParseQuantity(ing.QuantityText)
		unit := parsed.Unit
		if !units.Compatible(unit, item.Unit) {
			unit = item.Unit
		}

		conf := allocation.ConfidenceLow
		if kind == inventory.MatchID {
			conf = allocation.ConfidenceMedium
		}
		out = append(out, Match{
			Ingredient:      ing.Name,
			ItemID:          item.ID,
			MatchedName:     item.Name,
			CurrentQuantity: item.Quantity,
			CurrentUnit:     item.Unit,
			Amount:          parsed.Amount,
			Unit:            unit,
			Confidence:      conf,
			Selected:        false,
		})
	}
	return out
}

// Lines converts inventory into what the service is shown.
func Lines(items []inventory.Item) []InventoryLine {
	out := make([]InventoryLine, 0, len(items))
	for _, it := range items {
		line := InventoryLine{ID: it.ID, Name: it.Name, Quantity: it.Quantity, Unit: it.Unit, Location: it.Location}
		if it.Expiry != nil {
			line.Expiry = it.Expiry.String()
		}
		out = append(out, line)
	}
	return out
}
