/*
Package units normalizes free-text unit strings and converts between
physically compatible units.

PURPOSE:
  Inventory items, recipe ingredients and LLM matches all name units in
  free text ("Tablespoons", "lbs", "fl oz"). Everything inside the engine
  uses the canonical spelling returned by Normalize.

CONVERSION RULES:
  - Same canonical unit: the amount is returned unchanged
  - Mass <-> mass via grams, volume <-> volume via millilitres,
    rounded to 2 decimal places
  - Anything else is an IncompatibleError. Callers never assume 1:1.

SEE ALSO:
  - quantity.go: parsing "1 1/2 cups" into amount + unit
*/
package units

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/pantry-engine/generic"
)

// DefaultUnit is used for blank unit text.
const DefaultUnit = "each"

type Dimension string

const (
	Mass   Dimension = "mass"
	Volume Dimension = "volume"
	Count  Dimension = "count"
)

var aliases = map[string]string{
	// mass
	"g": "g", "gram": "g", "grams": "g",
	"kg": "kg", "kilogram": "kg", "kilograms": "kg", "kilo": "kg",
	"oz": "oz", "ounce": "oz", "ounces": "oz",
	"lb": "lb", "lbs": "lb", "pound": "lb", "pounds": "lb",

	// volume
	"ml": "ml", "milliliter": "ml", "milliliters": "ml",
	"l": "l", "liter": "l", "liters": "l",
	"tsp": "tsp", "teaspoon": "tsp", "teaspoons": "tsp",
	"tbsp": "tbsp", "tablespoon": "tbsp", "tablespoons": "tbsp",
	"cup": "cup", "cups": "cup",
	"fl oz": "fl oz", "fluid ounce": "fl oz", "fluid ounces": "fl oz",
	"pt": "pt", "pint": "pt", "pints": "pt",
	"qt": "qt", "quart": "qt", "quarts": "qt",
	"gal": "gal", "gallon": "gal", "gallons": "gal",

	// count / packaging
	"each": "each", "ea": "each", "pc": "each", "pcs": "each", "piece": "each", "pieces": "each",
	"bag": "bag", "bags": "bag",
	"box": "box", "boxes": "box",
	"can": "can", "cans": "can",
	"jar": "jar", "jars": "jar",
	"bottle": "bottle", "bottles": "bottle",
	"pkg": "package", "package": "package", "packages": "package", "pack": "package",
	"bunch": "bunch", "bunches": "bunch",
}

type rate struct {
	dim    Dimension
	toBase decimal.Decimal
}

// Base units: g for mass, ml for volume.
var rates = map[string]rate{
	"g":  {Mass, decimal.NewFromInt(1)},
	"kg": {Mass, decimal.NewFromInt(1000)},
	"oz": {Mass, decimal.RequireFromString("28.3495")},
	"lb": {Mass, decimal.RequireFromString("453.592")},

	"ml":    {Volume, decimal.NewFromInt(1)},
	"l":     {Volume, decimal.NewFromInt(1000)},
	"tsp":   {Volume, decimal.RequireFromString("4.92892")},
	"tbsp":  {Volume, decimal.RequireFromString("14.7868")},
	"fl oz": {Volume, decimal.RequireFromString("29.5735")},
	"cup":   {Volume, decimal.RequireFromString("236.588")},
	"pt":    {Volume, decimal.RequireFromString("473.176")},
	"qt":    {Volume, decimal.RequireFromString("946.353")},
	"gal":   {Volume, decimal.RequireFromString("3785.41")},
}

// Normalize maps unit text to its canonical spelling. Blank text is "each";
// unknown text is returned lower-cased and trimmed.
func Normalize(text string) string {
	lower := strings.ToLower(strings.TrimSpace(text))
	lower = strings.TrimSuffix(lower, ".")
	if lower == "" {
		return DefaultUnit
	}
	if canonical, ok := aliases[lower]; ok {
		return canonical
	}
	return lower
}

// Known reports whether text normalizes to a unit in the alias table.
func Known(text string) bool {
	_, ok := aliases[Normalize(text)]
	return ok
}

// DimensionOf returns the physical dimension of a unit. Units without a
// conversion rate are counts.
func DimensionOf(unit string) Dimension {
	if r, ok := rates[Normalize(unit)]; ok {
		return r.dim
	}
	return Count
}

// IncompatibleError reports a conversion with no physical meaning.
type IncompatibleError struct {
	From, To string
}

func (e *IncompatibleError) Error() string {
	return fmt.Sprintf("cannot convert %s to %s", e.From, e.To)
}

func (e *IncompatibleError) Unwrap() error { return generic.ErrUnitIncompatible }

// Convert converts amount from one unit to another.
func Convert(amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	nf, nt := Normalize(from), Normalize(to)
	if nf == nt {
		return amount, nil
	}

	rf, okFrom := rates[nf]
	rt, okTo := rates[nt]
	if !okFrom || !okTo || rf.dim != rt.dim {
		return decimal.Zero, &IncompatibleError{From: nf, To: nt}
	}

	return amount.Mul(rf.toBase).Div(rt.toBase).Round(2), nil
}

// Compatible reports whether Convert(from, to) would succeed.
func Compatible(from, to string) bool {
	_, err := Convert(decimal.Zero, from, to)
	return err == nil
}
