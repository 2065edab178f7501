package units

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrUnparseableQuantity is returned when quantity text has no leading number.
var ErrUnparseableQuantity = errors.New("unparseable quantity")

// Parsed is quantity text split into amount and canonical unit. Rest holds
// whatever followed the unit ("garlic" in "3 cloves garlic").
type Parsed struct {
	Amount decimal.Decimal
	Unit   string
	Rest   string
}

// ParseQuantity reads the leading amount and unit from ingredient text:
//
//	"2"             -> 2 each
//	"1/2 cup"       -> 0.5 cup
//	"1 1/2 tbsp"    -> 1.5 tbsp
//	"2.5 kg"        -> 2.5 kg
//	"2-3 cloves"    -> 3 each, Rest "cloves" (upper bound, so reservations are not short)
//	"3 fl oz milk"  -> 3 fl oz, Rest "milk"
//
// Words that are not known units stay in Rest and the unit is "each".
//
// Text with no leading number parses as 1 each and returns
// ErrUnparseableQuantity alongside the fallback.
func ParseQuantity(text string) (Parsed, error) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return Parsed{Amount: decimal.NewFromInt(1), Unit: DefaultUnit},
			fmt.Errorf("%w: empty", ErrUnparseableQuantity)
	}

	amount, ok := parseNumber(fields[0])
	if !ok {
		return Parsed{Amount: decimal.NewFromInt(1), Unit: DefaultUnit, Rest: strings.Join(fields, " ")},
			fmt.Errorf("%w: %q", ErrUnparseableQuantity, text)
	}
	i := 1

	// mixed number: "1 1/2"
	if i < len(fields) && strings.Contains(fields[i], "/") {
		if frac, ok := parseNumber(fields[i]); ok {
			amount = amount.Add(frac)
			i++
		}
	}

	unit := DefaultUnit
	if i+1 < len(fields) {
		if two := Normalize(fields[i] + " " + fields[i+1]); aliases[two] != "" {
			unit = two
			i += 2
		}
	}
	if unit == DefaultUnit && i < len(fields) && Known(fields[i]) {
		unit = Normalize(fields[i])
		i++
	}

	return Parsed{Amount: amount, Unit: unit, Rest: strings.Join(fields[i:], " ")}, nil
}

func parseNumber(s string) (decimal.Decimal, bool) {
	if lo, hi, found := strings.Cut(s, "-"); found && lo != "" && hi != "" {
		if _, ok := parseNumber(lo); ok {
			return parseNumber(hi)
		}
	}
	if num, den, found := strings.Cut(s, "/"); found {
		n, err1 := decimal.NewFromString(num)
		d, err2 := decimal.NewFromString(den)
		if err1 != nil || err2 != nil || d.IsZero() {
			return decimal.Zero, false
		}
		return n.Div(d), true
	}
	if r, ok := unicodeFractions[s]; ok {
		return r, true
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

var unicodeFractions = map[string]decimal.Decimal{
	"½": decimal.RequireFromString("0.5"),
	"⅓": decimal.NewFromInt(1).Div(decimal.NewFromInt(3)),
	"⅔": decimal.NewFromInt(2).Div(decimal.NewFromInt(3)),
	"¼": decimal.RequireFromString("0.25"),
	"¾": decimal.RequireFromString("0.75"),
}
