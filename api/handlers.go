/*
handlers.go - HTTP API handlers for the pantry engine

PURPOSE:
  Exposes the planner engine via REST API. Handles HTTP request/response,
  JSON decoding, validation, and maps engine errors to status codes.

ENDPOINTS:
  Inventory:
    GET    /api/inventory                       List items (?view=expiring|overcommitted)
    POST   /api/inventory                       Add item (merges same name + location)
    GET    /api/inventory/{id}                  Item with reserved / available
    PUT    /api/inventory/{id}                  Replace item
    DELETE /api/inventory/{id}                  Delete item

  Meal plan:
    GET    /api/mealplan?from=&to=              Slots in range (default: 7 days from today)
    POST   /api/mealplan/schedule               Schedule recipe + leftover chain
    DELETE /api/mealplan/{slot}/meals/{id}      Remove meal (cascades leftovers)
    POST   /api/mealplan/{slot}/meals/{id}/reschedule
    POST   /api/mealplan/{slot}/meals/{id}/cook
    POST   /api/mealplan/{slot}/meals/{id}/undo

  Ledger:
    GET    /api/allocations                     Pending reservations

  Leftovers:
    GET    /api/leftovers                       Active, soonest expiry first
    POST   /api/leftovers                       Add manual leftover
    POST   /api/leftovers/{id}/eat              Eat servings
    DELETE /api/leftovers/{id}                  Throw out
    GET    /api/history                         Retired leftovers

  Household:
    GET/PUT /api/family
    GET/POST /api/shopping, POST /api/shopping/refresh,
    PUT/DELETE /api/shopping/{id}

  Other:
    POST   /api/suggestions                     Recipe suggestions
    GET    /api/units/convert?amount=&from=&to=
    GET    /api/audit?operation=&slot=&limit=
    GET/POST /api/sweeps                        Expiry sweeper runs / run now

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, incompatible units
  - 404: Item, meal or leftover not found
  - 409: Meal state conflict (already cooked, leftover), stale request
  - 502: Suggestion service failed
  - 500: Internal errors

SECURITY NOTE:
  No authentication. All endpoints are public.

SEE ALSO:
  - dto.go: Request data structures
  - events.go: websocket change feed
  - scenarios.go: Demo data loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/warp/pantry-engine/allocation"
	"github.com/warp/pantry-engine/generic"
	"github.com/warp/pantry-engine/leftovers"
	"github.com/warp/pantry-engine/planner"
	"github.com/warp/pantry-engine/suggest"
	"github.com/warp/pantry-engine/units"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine  *planner.Engine
	Store   generic.DocumentStore
	Sweeper *Sweeper

	validate *validator.Validate

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler over an engine and the store it persists to.
func NewHandler(engine *planner.Engine, store generic.DocumentStore) *Handler {
	return &Handler{
		Engine:   engine,
		Store:    store,
		validate: validator.New(),
	}
}

// =============================================================================
// INVENTORY HANDLERS
// =============================================================================

// ListItems returns inventory with reservation figures.
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	var items []planner.ItemView
	switch r.URL.Query().Get("view") {
	case "expiring":
		items = h.Engine.Expiring()
	case "overcommitted":
		items = h.Engine.Overcommitted()
	case "":
		items = h.Engine.Items()
	default:
		writeError(w, http.StatusBadRequest, "Unknown view (use expiring or overcommitted)", nil)
		return
	}
	if items == nil {
		items = []planner.ItemView{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.Engine.Item(generic.ItemID(chi.URLParam(r, "id")))
	if err != nil {
		writeEngineError(w, "Failed to get item", err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// CreateItem adds an item. 201 for a new item, 200 when merged into an existing one.
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req ItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	it, err := req.toItem("")
	if err != nil {
		writeEngineError(w, "Invalid item", err)
		return
	}

	view, merged, err := h.Engine.AddItem(r.Context(), it)
	if err != nil {
		writeEngineError(w, "Failed to add item", err)
		return
	}
	status := http.StatusCreated
	if merged {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{"item": view, "merged": merged})
}

func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req ItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	it, err := req.toItem(generic.ItemID(chi.URLParam(r, "id")))
	if err != nil {
		writeEngineError(w, "Invalid item", err)
		return
	}

	view, err := h.Engine.UpdateItem(r.Context(), it)
	if err != nil {
		writeEngineError(w, "Failed to update item", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.DeleteItem(r.Context(), generic.ItemID(chi.URLParam(r, "id"))); err != nil {
		writeEngineError(w, "Failed to delete item", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

// =============================================================================
// MEAL PLAN HANDLERS
// =============================================================================

// GetMealPlan returns the slots between from and to, inclusive.
func (h *Handler) GetMealPlan(w http.ResponseWriter, r *http.Request) {
	from := h.Engine.Today()
	to := from.AddDays(6)

	if s := r.URL.Query().Get("from"); s != "" {
		d, err := generic.ParseDay(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from date (use YYYY-MM-DD)", err)
			return
		}
		from, to = d, d.AddDays(6)
	}
	if s := r.URL.Query().Get("to"); s != "" {
		d, err := generic.ParseDay(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to date (use YYYY-MM-DD)", err)
			return
		}
		to = d
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to must not be before from", nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"from":  from,
		"to":    to,
		"slots": nonNil(h.Engine.MealPlan(from, to)),
	})
}

func (h *Handler) ScheduleRecipe(w http.ResponseWriter, r *http.Request) {
	var req ScheduleRequest
	if !h.decode(w, r, &req) {
		return
	}
	day, err := generic.ParseDay(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
		return
	}

	sreq := planner.ScheduleRequest{
		Day:          day,
		MealType:     req.MealType,
		Recipe:       req.Recipe,
		LeftoverDays: req.LeftoverDays,
	}
	if req.Lines != nil {
		sreq.Lines = make([]allocation.Line, 0, len(req.Lines))
		for _, l := range req.Lines {
			sreq.Lines = append(sreq.Lines, l.toLine())
		}
	}

	res, err := h.Engine.ScheduleRecipe(r.Context(), sreq)
	if err != nil {
		writeEngineError(w, "Failed to schedule recipe", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) RemoveMeal(w http.ResponseWriter, r *http.Request) {
	slot, ok := slotParam(w, r)
	if !ok {
		return
	}
	res, err := h.Engine.RemoveMeal(r.Context(), slot, generic.MealID(chi.URLParam(r, "id")))
	if err != nil {
		writeEngineError(w, "Failed to remove meal", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) RescheduleMeal(w http.ResponseWriter, r *http.Request) {
	slot, ok := slotParam(w, r)
	if !ok {
		return
	}
	var req RescheduleRequest
	if !h.decode(w, r, &req) {
		return
	}
	day, err := generic.ParseDay(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
		return
	}

	res, err := h.Engine.RescheduleMeal(r.Context(), generic.MealID(chi.URLParam(r, "id")), slot, day, req.MealType)
	if err != nil {
		writeEngineError(w, "Failed to reschedule meal", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) CookMeal(w http.ResponseWriter, r *http.Request) {
	slot, ok := slotParam(w, r)
	if !ok {
		return
	}
	var req CookRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}

	res, err := h.Engine.Cook(r.Context(), planner.CookRequest{
		SlotKey:    slot,
		MealID:     generic.MealID(chi.URLParam(r, "id")),
		Portions:   req.Portions,
		ExpiryDays: req.ExpiryDays,
		Again:      req.Again,
	})
	if err != nil {
		writeEngineError(w, "Failed to cook meal", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) UndoCook(w http.ResponseWriter, r *http.Request) {
	slot, ok := slotParam(w, r)
	if !ok {
		return
	}
	res, err := h.Engine.UndoCook(r.Context(), slot, generic.MealID(chi.URLParam(r, "id")))
	if err != nil {
		writeEngineError(w, "Failed to undo cook", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) ListAllocations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"allocations": nonNil(h.Engine.Allocations())})
}

// =============================================================================
// LEFTOVER HANDLERS
// =============================================================================

func (h *Handler) ListLeftovers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"leftovers": nonNil(h.Engine.Leftovers())})
}

func (h *Handler) CreateLeftover(w http.ResponseWriter, r *http.Request) {
	var req LeftoverRequest
	if !h.decode(w, r, &req) {
		return
	}
	expiry, err := generic.ParseDay(req.Expiry)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid expiry (use YYYY-MM-DD)", err)
		return
	}

	rec, err := h.Engine.AddLeftover(r.Context(), leftovers.Record{
		Name:        req.Name,
		Portions:    req.Portions,
		Expiry:      expiry,
		StorageText: req.Storage,
		ReheatText:  req.Reheat,
	})
	if err != nil {
		writeEngineError(w, "Failed to add leftover", err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *Handler) EatLeftover(w http.ResponseWriter, r *http.Request) {
	var req EatRequest
	if !h.decode(w, r, &req) {
		return
	}
	rec, finished, err := h.Engine.EatLeftover(r.Context(), generic.LeftoverID(chi.URLParam(r, "id")), req.Servings)
	if err != nil {
		writeEngineError(w, "Failed to eat leftover", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leftover": rec, "finished": finished})
}

func (h *Handler) RemoveLeftover(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Engine.RemoveLeftover(r.Context(), generic.LeftoverID(chi.URLParam(r, "id")))
	if err != nil {
		writeEngineError(w, "Failed to remove leftover", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "removed", "leftover": rec})
}

func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"history": nonNil(h.Engine.History())})
}

// =============================================================================
// HOUSEHOLD HANDLERS
// =============================================================================

func (h *Handler) GetFamily(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"members": nonNil(h.Engine.Family())})
}

func (h *Handler) SetFamily(w http.ResponseWriter, r *http.Request) {
	var req FamilyRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.Engine.SetFamily(r.Context(), req.Members); err != nil {
		writeEngineError(w, "Failed to save family", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": nonNil(req.Members)})
}

func (h *Handler) ListShopping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": nonNil(h.Engine.Shopping())})
}

func (h *Handler) AddShoppingItem(w http.ResponseWriter, r *http.Request) {
	var req ShoppingRequest
	if !h.decode(w, r, &req) {
		return
	}
	item, err := h.Engine.AddShoppingItem(r.Context(), planner.ShoppingItem{Name: req.Name, Quantity: req.Quantity, Unit: req.Unit})
	if err != nil {
		writeEngineError(w, "Failed to add shopping item", err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *Handler) CheckShoppingItem(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if !h.decode(w, r, &req) {
		return
	}
	item, err := h.Engine.CheckShoppingItem(r.Context(), chi.URLParam(r, "id"), req.Checked)
	if err != nil {
		writeEngineError(w, "Failed to update shopping item", err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Handler) RemoveShoppingItem(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.RemoveShoppingItem(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeEngineError(w, "Failed to remove shopping item", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

func (h *Handler) RefreshShopping(w http.ResponseWriter, r *http.Request) {
	added, err := h.Engine.RefreshShopping(r.Context())
	if err != nil {
		writeEngineError(w, "Failed to refresh shopping list", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"added": nonNil(added)})
}

// =============================================================================
// SUGGESTIONS / UNITS / AUDIT
// =============================================================================

// Suggest asks the suggestion service for recipes from current inventory.
func (h *Handler) Suggest(w http.ResponseWriter, r *http.Request) {
	var req SuggestRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}

	res, err := h.Engine.Suggest(r.Context(), suggest.SuggestRequest{
		MealType:           req.MealType,
		Preferences:        req.Preferences,
		Count:              req.Count,
		PrioritizeExpiring: req.PrioritizeExpiring,
	})
	if err != nil {
		writeEngineError(w, "Failed to get suggestions", err)
		return
	}
	if !res.OK() {
		writeJSON(w, http.StatusBadGateway, ErrorResponse{
			Error:   "Recipe suggestions failed",
			Code:    string(res.Err.Kind),
			Details: res.Err.Reason,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recipes": nonNil(res.Recipes)})
}

// ConvertUnits converts an amount between units. Incompatible units are a 400.
func (h *Handler) ConvertUnits(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amount, err := decimal.NewFromString(q.Get("amount"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	from, to := q.Get("from"), q.Get("to")

	result, err := units.Convert(amount, from, to)
	if err != nil {
		writeEngineError(w, "Cannot convert", err)
		return
	}
	writeJSON(w, http.StatusOK, ConvertDTO{Amount: amount, From: units.Normalize(from), To: units.Normalize(to), Result: result})
}

// ListAudit returns audit entries recorded by the store.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := generic.AuditFilter{
		Operation: q.Get("operation"),
		SlotKey:   generic.SlotKey(q.Get("slot")),
		Limit:     100,
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		filter.Limit = n
	}
	if s := q.Get("since"); s != "" {
		since, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid since (use RFC3339)", err)
			return
		}
		filter.From = &since
	}

	entries, err := h.Engine.Audit(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query audit log", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": nonNil(entries)})
}

// =============================================================================
// SWEEPER HANDLERS
// =============================================================================

func (h *Handler) ListSweeps(w http.ResponseWriter, r *http.Request) {
	if h.Sweeper == nil {
		writeJSON(w, http.StatusOK, map[string]any{"runs": []SweepRun{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"runs":     h.Sweeper.Runs(),
		"enabled":  h.Sweeper.Enabled,
		"next_run": h.Sweeper.NextRunTime(),
	})
}

// RunSweep runs the expiry sweep now, even when the background sweeper is off.
func (h *Handler) RunSweep(w http.ResponseWriter, r *http.Request) {
	sweeper := h.Sweeper
	if sweeper == nil {
		sweeper = NewSweeper(h.Engine)
	}
	run := sweeper.RunNow(r.Context())
	status := http.StatusOK
	if run.Status == "failed" {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, run)
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads the JSON body into dst and validates it. On failure it has
// already written the response.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

func slotParam(w http.ResponseWriter, r *http.Request) (generic.SlotKey, bool) {
	slot := generic.SlotKey(chi.URLParam(r, "slot"))
	if _, _, err := generic.ParseSlotKey(slot); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid slot key (use YYYY-MM-DD-MealType)", err)
		return "", false
	}
	return slot, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeEngineError picks the status from the error's sentinel.
func writeEngineError(w http.ResponseWriter, message string, err error) {
	status, code := http.StatusInternalServerError, "internal"
	switch {
	case generic.IsClientError(err):
		status, code = http.StatusBadRequest, "invalid_input"
	case generic.IsNotFound(err):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, generic.ErrStaleRequest):
		status, code = http.StatusConflict, "stale_request"
	case generic.IsConflict(err):
		status, code = http.StatusConflict, "conflict"
	}
	writeJSON(w, status, ErrorResponse{Error: message, Code: code, Details: err.Error()})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
