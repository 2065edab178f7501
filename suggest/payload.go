package suggest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/warp/pantry-engine/allocation"
	"github.com/warp/pantry-engine/generic"
	"github.com/warp/pantry-engine/recipe"
	"github.com/warp/pantry-engine/units"
)

// =============================================================================
// RAW PAYLOADS - what the service is asked to return
// =============================================================================

type rawRecipesPayload struct {
	Recipes []rawRecipe `json:"recipes" validate:"required,min=1,dive"`
}

type rawRecipe struct {
	Name               string          `json:"name" validate:"required"`
	Servings           looseNumber     `json:"servings"`
	Ingredients        []rawIngredient `json:"ingredients" validate:"required,min=1,dive"`
	Instructions       []string        `json:"instructions"`
	Steps              []string        `json:"steps"`
	Calories           looseNumber     `json:"calories"`
	Protein            looseNumber     `json:"protein"`
	Carbs              looseNumber     `json:"carbs"`
	Fat                looseNumber     `json:"fat"`
	Storage            string          `json:"storage"`
	Reheat             string          `json:"reheat"`
	Image              string          `json:"image"`
	MissingIngredients []string        `json:"missingIngredients"`
}

type rawIngredient struct {
	Name     string `json:"name" validate:"required"`
	Quantity string `json:"quantity"`
}

type rawMatchPayload struct {
	Matches []rawMatch `json:"matches" validate:"dive"`
}

type rawMatch struct {
	Ingredient      string       `json:"ingredient"`
	InventoryItemID string       `json:"inventoryItemId"`
	MatchedName     string       `json:"matchedName"`
	CurrentQuantity looseNumber  `json:"currentQuantity"`
	CurrentUnit     string       `json:"currentUnit"`
	ReserveAmount   *looseNumber `json:"reserveAmount"`
	DeductAmount    *looseNumber `json:"deductAmount"`
	Unit            string       `json:"unit"`
	Confidence      string       `json:"confidence"`
}

// looseNumber accepts 2, "2", "1/2" and "2 cups" (the amount is kept).
type looseNumber struct {
	decimal.Decimal
	Set bool
}

func (n *looseNumber) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == `""` {
		return nil
	}
	s = strings.Trim(s, `"`)
	if d, err := decimal.NewFromString(s); err == nil {
		n.Decimal, n.Set = d, true
		return nil
	}
	parsed, err := units.ParseQuantity(s)
	if err != nil {
		return fmt.Errorf("not a number: %q", s)
	}
	n.Decimal, n.Set = parsed.Amount, true
	return nil
}

// =============================================================================
// CLEANING
// =============================================================================

// cleanLLMResponse strips markdown code fences and anything outside the
// outermost JSON object or array.
func cleanLLMResponse(response string) string {
	s := strings.TrimSpace(response)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return s[start:]
	}
	return s[start : end+1]
}

// =============================================================================
// DECODING + COERCION
// =============================================================================

type decoder struct {
	validate *validator.Validate
}

func newDecoder() *decoder {
	return &decoder{validate: validator.New()}
}

func (d *decoder) recipes(text string) ([]recipe.Recipe, *generic.SuggestionError) {
	cleaned := cleanLLMResponse(text)
	if cleaned == "" {
		return nil, &generic.SuggestionError{Op: "recipes", Kind: generic.SuggestionEmpty, Reason: "no content"}
	}

	var payload rawRecipesPayload
	if strings.HasPrefix(cleaned, "[") {
		if err := json.Unmarshal([]byte(cleaned), &payload.Recipes); err != nil {
			return nil, &generic.SuggestionError{Op: "recipes", Kind: generic.SuggestionMalformed, Reason: "decode recipe list", Cause: err}
		}
	} else if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, &generic.SuggestionError{Op: "recipes", Kind: generic.SuggestionMalformed, Reason: "decode recipes", Cause: err}
	}

	if err := d.validate.Struct(payload); err != nil {
		return nil, &generic.SuggestionError{Op: "recipes", Kind: generic.SuggestionInvalid, Reason: "recipe payload failed validation", Cause: err}
	}

	out := make([]recipe.Recipe, 0, len(payload.Recipes))
	for _, raw := range payload.Recipes {
		out = append(out, coerceRecipe(raw))
	}
	return out, nil
}

func coerceRecipe(raw rawRecipe) recipe.Recipe {
	r := recipe.Recipe{
		Name:               strings.TrimSpace(raw.Name),
		Servings:           int(raw.Servings.IntPart()),
		StorageText:        strings.TrimSpace(raw.Storage),
		ReheatText:         strings.TrimSpace(raw.Reheat),
		ImageRef:           strings.TrimSpace(raw.Image),
		MissingIngredients: nonEmpty(raw.MissingIngredients),
		Macros: recipe.Macros{
			Calories: nonNegative(raw.Calories),
			Protein:  nonNegative(raw.Protein),
			Carbs:    nonNegative(raw.Carbs),
			Fat:      nonNegative(raw.Fat),
		},
	}
	if r.Servings < 0 {
		r.Servings = 0
	}
	r.Steps = nonEmpty(raw.Steps)
	if len(r.Steps) == 0 {
		r.Steps = nonEmpty(raw.Instructions)
	}
	for _, ing := range raw.Ingredients {
		r.Ingredients = append(r.Ingredients, recipe.Ingredient{
			Name:         strings.TrimSpace(ing.Name),
			QuantityText: strings.TrimSpace(ing.Quantity),
		})
	}
	r.EnsureID()
	return r
}

// matches decodes a match response. Matches pointing at items not in the
// request inventory, or without a usable amount, are dropped.
func (d *decoder) matches(text string, inventory []InventoryLine) ([]Match, *generic.SuggestionError) {
	cleaned := cleanLLMResponse(text)
	if cleaned == "" {
		return nil, &generic.SuggestionError{Op: "match", Kind: generic.SuggestionEmpty, Reason: "no content"}
	}

	var payload rawMatchPayload
	dec := json.NewDecoder(bytes.NewReader([]byte(cleaned)))
	var err error
	if strings.HasPrefix(cleaned, "[") {
		err = dec.Decode(&payload.Matches)
	} else {
		err = dec.Decode(&payload)
	}
	if err != nil {
		return nil, &generic.SuggestionError{Op: "match", Kind: generic.SuggestionMalformed, Reason: "decode matches", Cause: err}
	}
	if err := d.validate.Struct(payload); err != nil {
		return nil, &generic.SuggestionError{Op: "match", Kind: generic.SuggestionInvalid, Reason: "match payload failed validation", Cause: err}
	}

	byID := make(map[generic.ItemID]InventoryLine, len(inventory))
	for _, line := range inventory {
		byID[line.ID] = line
	}

	out := make([]Match, 0, len(payload.Matches))
	for _, raw := range payload.Matches {
		m, ok := coerceMatch(raw, byID, inventory)
		if ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func coerceMatch(raw rawMatch, byID map[generic.ItemID]InventoryLine, inventory []InventoryLine) (Match, bool) {
	item, ok := byID[generic.ItemID(strings.TrimSpace(raw.InventoryItemID))]
	if !ok {
		// The model sometimes echoes the name instead of the id.
		item, ok = lineByName(inventory, raw.MatchedName)
	}
	if !ok {
		return Match{}, false
	}

	amount := raw.ReserveAmount
	if amount == nil || !amount.Set {
		amount = raw.DeductAmount
	}
	if amount == nil || !amount.Set || amount.IsNegative() {
		return Match{}, false
	}

	unit := raw.Unit
	if strings.TrimSpace(unit) == "" {
		unit = item.Unit
	}

	conf := ParseConfidence(raw.Confidence)
	return Match{
		Ingredient:      strings.TrimSpace(raw.Ingredient),
		ItemID:          item.ID,
		MatchedName:     item.Name,
		CurrentQuantity: item.Quantity,
		CurrentUnit:     item.Unit,
		Amount:          amount.Decimal,
		Unit:            units.Normalize(unit),
		Confidence:      conf,
		Selected:        conf != allocation.ConfidenceLow,
	}, true
}

// ParseConfidence maps a tier string onto a Confidence. Unknown is low.
func ParseConfidence(s string) allocation.Confidence {
	switch allocation.Confidence(strings.ToLower(strings.TrimSpace(s))) {
	case allocation.ConfidenceHigh:
		return allocation.ConfidenceHigh
	case allocation.ConfidenceMedium:
		return allocation.ConfidenceMedium
	default:
		return allocation.ConfidenceLow
	}
}

func lineByName(inventory []InventoryLine, name string) (InventoryLine, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return InventoryLine{}, false
	}
	for _, line := range inventory {
		if strings.EqualFold(strings.TrimSpace(line.Name), name) {
			return line, true
		}
	}
	return InventoryLine{}, false
}

func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func nonNegative(n looseNumber) float64 {
	if !n.Set || n.IsNegative() {
		return 0
	}
	f, _ := n.Float64()
	return f
}
