package metrics_test

import (
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/pantry-engine/generic"
	"github.com/warp/pantry-engine/metrics"
)

func TestObserveOperation_Outcomes(t *testing.T) {
	c := metrics.New()
	start := time.Now()

	c.ObserveOperation("cook", start, nil)
	c.ObserveOperation("cook", start, fmt.Errorf("wrap: %w", generic.ErrAlreadyCooked))
	c.ObserveOperation("cook", start, generic.ErrMealNotFound)
	c.ObserveOperation("schedule", start, &generic.ValidationError{Field: "recipe.name", Message: "required"})

	n, err := testutil.GatherAndCount(c.Registry(), "pantry_operations_total")
	require.NoError(t, err)
	assert.Equal(t, 4, n, "one series per operation/outcome pair")
}

func TestObserveSuggestion_LabelsKind(t *testing.T) {
	c := metrics.New()

	c.ObserveSuggestion("match", time.Now(), nil)
	c.ObserveSuggestion("match", time.Now(), &generic.SuggestionError{Op: "match", Kind: generic.SuggestionMalformed})
	c.StaleResponse("match")

	n, err := testutil.GatherAndCount(c.Registry(), "pantry_suggestion_calls_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestHandler_ExposesRegistry(t *testing.T) {
	c := metrics.New()
	c.SetSizes(3, 1, 2)
	c.Replay()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "pantry_inventory_items 3")
	assert.Contains(t, string(body), "pantry_cook_replays_total 1")
}

func TestNew_IndependentRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		metrics.New()
		metrics.New()
	})
}
