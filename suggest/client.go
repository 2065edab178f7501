/*
Package suggest is the boundary to the external recipe / ingredient-matching
service.

PURPOSE:
  The service answers in free text that is supposed to be JSON. Nothing it
  returns reaches the stores directly: every response is cleaned, decoded
  into raw payload structs, validated and coerced into the strict types
  below. Callers receive a tagged result and branch on OK().

RESULTS:
  RecipesResult{Recipes}        or RecipesResult{Err: *SuggestionError}
  MatchResult{Matches}          or MatchResult{Err: *SuggestionError}

  Error kinds: transport (call failed), empty (no content), malformed (not
  JSON), invalid (JSON that fails validation).

CONFIDENCE:
  Matches carry a tier: high, medium or low. Unknown tiers are read as low.
  Low matches are returned unselected; they are candidates the user can
  opt into, never automatic reservations.

SEE ALSO:
  - llm.go: langchaingo-backed client
  - payload.go: raw payload decoding and coercion
  - local.go: offline low-confidence candidates
*/
package suggest

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/warp/pantry-engine/allocation"
	"github.com/warp/pantry-engine/generic"
	"github.com/warp/pantry-engine/recipe"
)

// =============================================================================
// CLIENT
// =============================================================================

type Client interface {
	SuggestRecipes(ctx context.Context, req SuggestRequest) RecipesResult
	MatchIngredients(ctx context.Context, req MatchRequest) MatchResult
}

// InventoryLine is what the service sees of one inventory item. IDs are
// stable so matches can point back at them.
type InventoryLine struct {
	ID       generic.ItemID  `json:"id"`
	Name     string          `json:"name"`
	Quantity decimal.Decimal `json:"quantity"`
	Unit     string          `json:"unit"`
	Location string          `json:"location,omitempty"`
	Expiry   string          `json:"expiry,omitempty"`
}

// FamilyMember is one person the household cooks for.
type FamilyMember struct {
	Name         string   `json:"name" validate:"required"`
	Age          int      `json:"age,omitempty" validate:"gte=0,lte=150"`
	Preferences  []string `json:"preferences,omitempty"`
	Restrictions []string `json:"restrictions,omitempty"`
}

type SuggestRequest struct {
	Inventory   []InventoryLine  `json:"inventory"`
	Family      []FamilyMember   `json:"family,omitempty"`
	MealType    generic.MealType `json:"meal_type,omitempty"`
	Preferences string           `json:"preferences,omitempty"`
	Count       int              `json:"count,omitempty"`
	// PrioritizeExpiring asks for recipes that use soon-to-expire items.
	PrioritizeExpiring bool `json:"prioritize_expiring,omitempty"`
}

type MatchRequest struct {
	SlotKey   generic.SlotKey `json:"slot_key"`
	Recipe    recipe.Recipe   `json:"recipe"`
	Inventory []InventoryLine `json:"inventory"`
	// Deduct phrases the request as "what will cooking take" rather than
	// "what should be reserved". The response shape is the same.
	Deduct bool `json:"deduct,omitempty"`
}

// =============================================================================
// RESULTS
// =============================================================================

type RecipesResult struct {
	Recipes []recipe.Recipe          `json:"recipes,omitempty"`
	Err     *generic.SuggestionError `json:"-"`
}

func (r RecipesResult) OK() bool { return r.Err == nil }

// Match is one recipe ingredient matched to an inventory item.
type Match struct {
	Ingredient      string                `json:"ingredient"`
	ItemID          generic.ItemID        `json:"inventory_item_id"`
	MatchedName     string                `json:"matched_name"`
	CurrentQuantity decimal.Decimal       `json:"current_quantity"`
	CurrentUnit     string                `json:"current_unit"`
	Amount          decimal.Decimal       `json:"amount"`
	Unit            string                `json:"unit"`
	Confidence      allocation.Confidence `json:"confidence"`
	Selected        bool                  `json:"selected"`
}

// Line converts the match into a reservation line.
func (m Match) Line() allocation.Line {
	return allocation.Line{
		ItemID:     m.ItemID,
		ItemName:   m.MatchedName,
		Amount:     m.Amount,
		Unit:       m.Unit,
		Confidence: m.Confidence,
	}
}

type MatchResult struct {
	Matches []Match                  `json:"matches,omitempty"`
	Err     *generic.SuggestionError `json:"-"`
}

func (r MatchResult) OK() bool { return r.Err == nil }

// SelectedLines returns reservation lines for the selected matches only.
func (r MatchResult) SelectedLines() []allocation.Line {
	var lines []allocation.Line
	for _, m := range r.Matches {
		if m.Selected {
			lines = append(lines, m.Line())
		}
	}
	return lines
}

// =============================================================================
// DISABLED CLIENT
// =============================================================================

// Disabled answers every call with a transport error. Used when no model
// is configured; scheduling still works, nothing gets matched.
type Disabled struct{}

func (Disabled) SuggestRecipes(context.Context, SuggestRequest) RecipesResult {
	return RecipesResult{Err: &generic.SuggestionError{Op: "recipes", Kind: generic.SuggestionTransport, Reason: "suggestion service not configured"}}
}

func (Disabled) MatchIngredients(context.Context, MatchRequest) MatchResult {
	return MatchResult{Err: &generic.SuggestionError{Op: "match", Kind: generic.SuggestionTransport, Reason: "suggestion service not configured"}}
}
