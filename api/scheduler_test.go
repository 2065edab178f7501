package api

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/pantry-engine/generic"
	"github.com/warp/pantry-engine/generic/store"
	"github.com/warp/pantry-engine/inventory"
	"github.com/warp/pantry-engine/leftovers"
	"github.com/warp/pantry-engine/planner"
)

func newSweeperEngine(t *testing.T) *planner.Engine {
	t.Helper()
	e := planner.New(planner.Options{
		Store: store.NewMemory(),
		Today: func() generic.Day { return testToday },
	})
	e.SetLogOutput(io.Discard)
	return e
}

func TestSweeper_ExpiresAndRestocks(t *testing.T) {
	// GIVEN: a stale leftover and a staple below its minimum
	e := newSweeperEngine(t)
	ctx := context.Background()
	_, err := e.AddLeftover(ctx, leftovers.Record{Name: "Curry", Portions: 2, Expiry: testToday.AddDays(-1)})
	require.NoError(t, err)
	_, err = e.AddLeftover(ctx, leftovers.Record{Name: "Soup", Portions: 1, Expiry: testToday})
	require.NoError(t, err)
	_, _, err = e.AddItem(ctx, inventory.Item{Name: "Oats", Quantity: decimal.NewFromInt(1), Unit: "cup", Staple: true, MinStock: decimal.NewFromInt(3)})
	require.NoError(t, err)

	s := NewSweeper(e)

	// WHEN: a sweep runs
	run := s.RunNow(ctx)

	// THEN: only the past-expiry leftover is retired and oats go on the list
	assert.Equal(t, "completed", run.Status)
	assert.Equal(t, []string{"Curry"}, run.Expired)
	assert.Equal(t, []string{"Oats"}, run.Restocked)
	require.NotNil(t, run.CompletedAt)

	history := e.History()
	require.Len(t, history, 1)
	assert.Equal(t, leftovers.StatusExpired, history[0].Status)

	// AND: a second sweep finds nothing new
	again := s.RunNow(ctx)
	assert.Empty(t, again.Expired)
	assert.Empty(t, again.Restocked)

	runs := s.Runs()
	require.Len(t, runs, 2)
	assert.Equal(t, again.ID, runs[0].ID)
}

func TestSweeper_StartStop(t *testing.T) {
	e := newSweeperEngine(t)

	disabled := NewSweeper(e)
	disabled.Enabled = false
	disabled.Start()
	disabled.Stop()
	assert.Empty(t, disabled.Runs())

	s := NewSweeper(e)
	s.Interval = time.Hour
	s.Start()
	require.Eventually(t, func() bool { return len(s.Runs()) == 1 }, time.Second, 10*time.Millisecond)
	s.Stop()
}

func TestSweeper_RunLogIsBounded(t *testing.T) {
	s := NewSweeper(newSweeperEngine(t))
	for i := 0; i < maxSweepRuns+5; i++ {
		s.RunNow(context.Background())
	}
	assert.Len(t, s.Runs(), maxSweepRuns)
}
