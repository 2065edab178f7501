// Package metrics holds the Prometheus collectors for engine operations.
// Each Collector owns its registry so tests and multiple engines never
// collide on the default one.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/warp/pantry-engine/generic"
)

type Collector struct {
	registry *prometheus.Registry

	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	suggestionCalls   *prometheus.CounterVec
	suggestionLatency *prometheus.HistogramVec
	staleResponses    *prometheus.CounterVec
	ledgerLines       *prometheus.CounterVec
	replays           prometheus.Counter
	inventoryItems    prometheus.Gauge
	pendingAllocs     prometheus.Gauge
	activeLeftovers   prometheus.Gauge
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pantry_operations_total",
			Help: "Engine operations by outcome",
		}, []string{"operation", "outcome"}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pantry_operation_duration_seconds",
			Help:    "Engine operation latency, suggestion calls included",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		suggestionCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pantry_suggestion_calls_total",
			Help: "Suggestion service calls by result kind",
		}, []string{"op", "result"}),
		suggestionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pantry_suggestion_duration_seconds",
			Help:    "Suggestion service latency",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"op"}),
		staleResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pantry_stale_responses_total",
			Help: "Suggestion responses discarded because a newer request was issued",
		}, []string{"op"}),
		ledgerLines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pantry_ledger_lines_total",
			Help: "Allocation lines by ledger action and result",
		}, []string{"action", "result"}),
		replays: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pantry_cook_replays_total",
			Help: "Cooks served from the ingredient-hash replay cache",
		}),
		inventoryItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pantry_inventory_items",
			Help: "Items currently in inventory",
		}),
		pendingAllocs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pantry_pending_allocations",
			Help: "Slots holding a pending reservation",
		}),
		activeLeftovers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pantry_active_leftovers",
			Help: "Leftover records not yet finished, removed or expired",
		}),
	}

	c.registry.MustRegister(
		c.operations, c.operationDuration,
		c.suggestionCalls, c.suggestionLatency, c.staleResponses,
		c.ledgerLines, c.replays,
		c.inventoryItems, c.pendingAllocs, c.activeLeftovers,
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveOperation records one engine operation.
func (c *Collector) ObserveOperation(op string, start time.Time, err error) {
	c.operations.WithLabelValues(op, outcome(err)).Inc()
	c.operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// ObserveSuggestion records one suggestion call. A nil err is "ok".
func (c *Collector) ObserveSuggestion(op string, start time.Time, err *generic.SuggestionError) {
	result := "ok"
	if err != nil {
		result = string(err.Kind)
	}
	c.suggestionCalls.WithLabelValues(op, result).Inc()
	c.suggestionLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (c *Collector) StaleResponse(op string) {
	c.staleResponses.WithLabelValues(op).Inc()
}

// LedgerLines counts applied, skipped and clamped lines for one action.
func (c *Collector) LedgerLines(action string, applied, skipped, clamped int) {
	c.ledgerLines.WithLabelValues(action, "applied").Add(float64(applied))
	c.ledgerLines.WithLabelValues(action, "skipped").Add(float64(skipped))
	c.ledgerLines.WithLabelValues(action, "clamped").Add(float64(clamped))
}

func (c *Collector) Replay() { c.replays.Inc() }

func (c *Collector) SetSizes(inventoryItems, pendingAllocations, activeLeftovers int) {
	c.inventoryItems.Set(float64(inventoryItems))
	c.pendingAllocs.Set(float64(pendingAllocations))
	c.activeLeftovers.Set(float64(activeLeftovers))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case generic.IsClientError(err):
		return "invalid"
	case generic.IsNotFound(err):
		return "not_found"
	case generic.IsConflict(err):
		return "conflict"
	case errors.Is(err, generic.ErrStaleRequest):
		return "stale"
	default:
		return "error"
	}
}
