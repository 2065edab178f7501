// Package recipe holds the recipe snapshot scheduled meals carry and the
// content hash used to decide whether a previous cook can be replayed.
package recipe

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/warp/pantry-engine/generic"
)

type Macros struct {
	Calories float64 `json:"calories" validate:"gte=0"`
	Protein  float64 `json:"protein" validate:"gte=0"`
	Carbs    float64 `json:"carbs" validate:"gte=0"`
	Fat      float64 `json:"fat" validate:"gte=0"`
}

// Ingredient is one recipe line. QuantityText is kept as written ("1/2 cup");
// ItemID is set once the line has been matched to an inventory item.
type Ingredient struct {
	Name         string         `json:"name" validate:"required"`
	QuantityText string         `json:"quantity"`
	ItemID       generic.ItemID `json:"item_id,omitempty"`
}

type Recipe struct {
	ID                 generic.RecipeID `json:"id"`
	Name               string           `json:"name" validate:"required"`
	Servings           int              `json:"servings" validate:"gte=0"`
	Macros             Macros           `json:"macros"`
	Ingredients        []Ingredient     `json:"ingredients" validate:"dive"`
	Steps              []string         `json:"steps,omitempty"`
	ImageRef           string           `json:"image_ref,omitempty"`
	StorageText        string           `json:"storage,omitempty"`
	ReheatText         string           `json:"reheat,omitempty"`
	MissingIngredients []string         `json:"missing_ingredients,omitempty"`
}

// IngredientHash fingerprints the ingredient list by content. Order, case
// and surrounding whitespace do not matter; names and quantity text do.
func (r Recipe) IngredientHash() string {
	return IngredientHash(r.Ingredients)
}

func IngredientHash(ings []Ingredient) string {
	lines := make([]string, 0, len(ings))
	for _, ing := range ings {
		lines = append(lines, normalizeLine(ing.Name)+"|"+normalizeLine(ing.QuantityText))
	}
	sort.Strings(lines)

	h := sha256.New()
	for _, l := range lines {
		h.Write([]byte(l))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func normalizeLine(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// EnsureID assigns a recipe ID if it has none. Scheduled meals need a stable
// recipe identity for leftover records and allocation records.
func (r *Recipe) EnsureID() {
	if r.ID == "" {
		r.ID = generic.RecipeID(generic.NewID("recipe"))
	}
}

// Clone returns a deep copy so snapshots attached to meals stay immutable.
func (r Recipe) Clone() Recipe {
	c := r
	c.Ingredients = append([]Ingredient(nil), r.Ingredients...)
	c.Steps = append([]string(nil), r.Steps...)
	c.MissingIngredients = append([]string(nil), r.MissingIngredients...)
	return c
}

// Validate checks what blocks scheduling synchronously.
func (r Recipe) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return &generic.ValidationError{Field: "recipe.name", Message: "recipe name is required"}
	}
	if r.Servings < 0 {
		return &generic.ValidationError{Field: "recipe.servings", Message: "servings must not be negative"}
	}
	return nil
}
