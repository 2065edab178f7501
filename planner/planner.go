/*
Package planner is the reconciliation engine. It owns the four stores and
runs every user-visible operation as one serialized state transition.

PURPOSE:
  Scheduling, cooking, removing and rescheduling each touch several
  collections (meal plan, allocation ledger, inventory, leftovers). The
  Engine pairs those changes so the collections never drift apart, then
  persists the touched documents and tells subscribers what changed.

ARCHITECTURE:
  ┌────────────┐   ┌──────────────┐   ┌───────────┐   ┌───────────┐
  │  mealplan  │   │  allocation  │──▶│ inventory │   │ leftovers │
  └────────────┘   └──────────────┘   └───────────┘   └───────────┘
         ▲                 ▲                ▲               ▲
         └─────────────────┴──── Engine ────┴───────────────┘
                                  │    │
                  suggest.Client ◀┘    └▶ DocumentStore / AuditLog / Bus

CONCURRENCY:
  One mutex serializes every transition. Suggestion calls are the only
  slow step and run outside the mutex: the engine issues a sequence number
  for the slot, releases the lock, calls the service, re-acquires the lock
  and applies the response only if no newer request for the same slot was
  issued meanwhile. Stale responses are dropped with ErrStaleRequest.

FAILURE MODEL:
  Matching failures never block scheduling or cooking: the meal is
  scheduled with nothing reserved and the result carries the reason.
  Only invalid input fails synchronously.

SEE ALSO:
  - schedule.go: ScheduleRecipe / RemoveMeal / RescheduleMeal
  - cook.go: Cook / UndoCook
  - persist.go: documents written per operation
*/
package planner

import (
	"context"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/warp/pantry-engine/allocation"
	"github.com/warp/pantry-engine/generic"
	"github.com/warp/pantry-engine/inventory"
	"github.com/warp/pantry-engine/leftovers"
	"github.com/warp/pantry-engine/mealplan"
	"github.com/warp/pantry-engine/metrics"
	"github.com/warp/pantry-engine/suggest"
)

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	mu sync.Mutex

	inv       *inventory.Store
	ledger    *allocation.Ledger
	plan      *mealplan.Plan
	leftovers *leftovers.Tracker
	family    []suggest.FamilyMember
	shopping  []ShoppingItem

	docs    generic.DocumentStore
	audit   generic.AuditLog
	client  suggest.Client
	seq     *generic.Sequencer
	bus     *generic.Bus
	metrics *metrics.Collector
	logger  *log.Logger

	today          func() generic.Day
	expiryDays     int
	suggestTimeout time.Duration
}

type Options struct {
	// Store persists documents. If it also implements generic.AuditLog,
	// every operation is audited.
	Store   generic.DocumentStore
	Client  suggest.Client
	Metrics *metrics.Collector
	Logger  *log.Logger

	LeftoverExpiryDays int
	SuggestionTimeout  time.Duration

	// Today overrides the calendar, for tests.
	Today func() generic.Day
}

func New(opts Options) *Engine {
	inv := inventory.NewStore()
	e := &Engine{
		inv:            inv,
		ledger:         allocation.NewLedger(inv),
		plan:           mealplan.NewPlan(),
		leftovers:      leftovers.NewTracker(),
		docs:           opts.Store,
		client:         opts.Client,
		seq:            generic.NewSequencer(),
		bus:            generic.NewBus(),
		metrics:        opts.Metrics,
		logger:         opts.Logger,
		today:          opts.Today,
		expiryDays:     opts.LeftoverExpiryDays,
		suggestTimeout: opts.SuggestionTimeout,
	}
	if e.client == nil {
		e.client = suggest.Disabled{}
	}
	if e.metrics == nil {
		e.metrics = metrics.New()
	}
	if e.logger == nil {
		e.logger = log.New(os.Stderr, "[Planner] ", log.LstdFlags)
	}
	if e.today == nil {
		e.today = generic.Today
	}
	if e.expiryDays <= 0 {
		e.expiryDays = leftovers.DefaultExpiryDays
	}
	if e.suggestTimeout <= 0 {
		e.suggestTimeout = 30 * time.Second
	}
	if al, ok := opts.Store.(generic.AuditLog); ok {
		e.audit = al
	}
	return e
}

// Subscribe returns a feed of change events and a cancel function.
func (e *Engine) Subscribe(buffer int) (<-chan generic.ChangeEvent, func()) {
	return e.bus.Subscribe(buffer)
}

func (e *Engine) Metrics() *metrics.Collector { return e.metrics }

// Today is the engine's current calendar day.
func (e *Engine) Today() generic.Day { return e.today() }

// SetLogOutput redirects engine logging, e.g. to io.Discard in tests.
func (e *Engine) SetLogOutput(w io.Writer) { e.logger.SetOutput(w) }

// =============================================================================
// SUGGESTION CALLS - run outside the lock
// =============================================================================

// match calls the matcher. The caller must NOT hold e.mu; after
// re-acquiring it the caller checks fresh before applying the result.
func (e *Engine) match(ctx context.Context, req suggest.MatchRequest) suggest.MatchResult {
	ctx, cancel := context.WithTimeout(ctx, e.suggestTimeout)
	defer cancel()

	start := time.Now()
	res := e.client.MatchIngredients(ctx, req)
	e.metrics.ObserveSuggestion("match", start, res.Err)
	if !res.OK() {
		e.logger.Printf("matching failed for %s, continuing without reservations: %v", req.SlotKey, res.Err)
	}
	return res
}

// fresh returns a *StaleRequestError when a newer request for key was issued
// after seq. Caller holds e.mu.
func (e *Engine) fresh(op, key string, seq uint64) error {
	if err := e.seq.Check(key, seq); err != nil {
		e.metrics.StaleResponse(op)
		e.logger.Printf("dropping stale %s response: %v", op, err)
		return err
	}
	e.seq.Done(key, seq)
	return nil
}

func matchKey(slot generic.SlotKey) string { return "match:" + string(slot) }

// inventoryLines snapshots inventory for a suggestion prompt. Caller holds e.mu.
func (e *Engine) inventoryLines() []suggest.InventoryLine {
	return suggest.Lines(e.inv.List())
}
