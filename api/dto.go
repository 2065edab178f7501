/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Request types carry
  go-playground/validator tags; handlers run them through validate.Struct
  before anything reaches the engine. Response types that are just engine
  views are returned as-is.

NAMING CONVENTION:
  - *Request: Request body types from clients
  - *DTO: Response types that differ from the engine's own types

TYPES:
  Inventory:  ItemRequest
  Meal plan:  ScheduleRequest, LineRequest, RescheduleRequest, CookRequest
  Leftovers:  LeftoverRequest, EatRequest
  Household:  FamilyRequest, ShoppingRequest, CheckRequest
  Suggest:    SuggestRequest
  Scenarios:  ScenarioDTO, LoadScenarioRequest

DATES:
  Days are "YYYY-MM-DD" strings in the configured time zone.

SEE ALSO:
  - handlers.go: Uses these types
  - planner/: engine request/response types
*/
package api

import (
	"github.com/shopspring/decimal"
	"github.com/warp/pantry-engine/allocation"
	"github.com/warp/pantry-engine/generic"
	"github.com/warp/pantry-engine/inventory"
	"github.com/warp/pantry-engine/recipe"
	"github.com/warp/pantry-engine/suggest"
)

// =============================================================================
// INVENTORY
// =============================================================================

// ItemRequest creates or replaces an inventory item.
type ItemRequest struct {
	Name     string          `json:"name" validate:"required"`
	Quantity decimal.Decimal `json:"quantity"`
	Unit     string          `json:"unit"`
	Location string          `json:"location"`
	Expiry   string          `json:"expiry,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Notes    string          `json:"notes,omitempty"`
	Staple   bool            `json:"staple,omitempty"`
	MinStock decimal.Decimal `json:"min_stock"`
}

func (r ItemRequest) toItem(id generic.ItemID) (inventory.Item, error) {
	it := inventory.Item{
		ID:       id,
		Name:     r.Name,
		Quantity: r.Quantity,
		Unit:     r.Unit,
		Location: r.Location,
		Notes:    r.Notes,
		Staple:   r.Staple,
		MinStock: r.MinStock,
	}
	if r.Expiry != "" {
		day, err := generic.ParseDay(r.Expiry)
		if err != nil {
			return inventory.Item{}, &generic.ValidationError{Field: "expiry", Message: "use YYYY-MM-DD"}
		}
		it.Expiry = &day
	}
	return it, nil
}

// =============================================================================
// MEAL PLAN
// =============================================================================

type ScheduleRequest struct {
	Date         string           `json:"date" validate:"required,datetime=2006-01-02"`
	MealType     generic.MealType `json:"meal_type" validate:"required"`
	Recipe       recipe.Recipe    `json:"recipe"`
	LeftoverDays int              `json:"leftover_days" validate:"gte=0,lte=14"`
	// Lines skips the matcher and reserves exactly these.
	Lines []LineRequest `json:"lines,omitempty" validate:"omitempty,dive"`
}

type LineRequest struct {
	ItemID   generic.ItemID  `json:"item_id"`
	ItemName string          `json:"item_name" validate:"required_without=ItemID"`
	Amount   decimal.Decimal `json:"amount"`
	Unit     string          `json:"unit" validate:"required"`
}

func (l LineRequest) toLine() allocation.Line {
	return allocation.Line{ItemID: l.ItemID, ItemName: l.ItemName, Amount: l.Amount, Unit: l.Unit}
}

type RescheduleRequest struct {
	Date     string           `json:"date" validate:"required,datetime=2006-01-02"`
	MealType generic.MealType `json:"meal_type,omitempty"`
}

type CookRequest struct {
	Portions   int  `json:"portions,omitempty" validate:"gte=0"`
	ExpiryDays int  `json:"expiry_days,omitempty" validate:"gte=0,lte=30"`
	Again      bool `json:"again,omitempty"`
}

// =============================================================================
// LEFTOVERS
// =============================================================================

type LeftoverRequest struct {
	Name     string `json:"name" validate:"required"`
	Portions int    `json:"portions" validate:"gte=1"`
	Expiry   string `json:"expiry" validate:"required,datetime=2006-01-02"`
	Storage  string `json:"storage,omitempty"`
	Reheat   string `json:"reheat,omitempty"`
}

type EatRequest struct {
	Servings int `json:"servings" validate:"gte=1"`
}

// =============================================================================
// HOUSEHOLD
// =============================================================================

type FamilyRequest struct {
	Members []suggest.FamilyMember `json:"members" validate:"dive"`
}

type ShoppingRequest struct {
	Name     string          `json:"name" validate:"required"`
	Quantity decimal.Decimal `json:"quantity"`
	Unit     string          `json:"unit"`
}

type CheckRequest struct {
	Checked bool `json:"checked"`
}

// =============================================================================
// SUGGESTIONS
// =============================================================================

type SuggestRequest struct {
	MealType           generic.MealType `json:"meal_type,omitempty"`
	Preferences        string           `json:"preferences,omitempty"`
	Count              int              `json:"count,omitempty" validate:"gte=0,lte=10"`
	PrioritizeExpiring bool             `json:"prioritize_expiring,omitempty"`
}

// =============================================================================
// UNITS
// =============================================================================

type ConvertDTO struct {
	Amount decimal.Decimal `json:"amount"`
	From   string          `json:"from"`
	To     string          `json:"to"`
	Result decimal.Decimal `json:"result"`
}

// =============================================================================
// SCENARIOS / ERRORS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}
