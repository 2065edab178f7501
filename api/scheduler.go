/*
scheduler.go - Periodic expiry sweep

PURPOSE:
  Leftovers expire whether or not anyone opens the app. The sweeper runs in
  the background, moves leftovers past their expiry into history as Expired
  and tops up the shopping list with staples that fell below their minimum.

DESIGN:
  - One goroutine, one ticker, configurable interval
  - Runs once immediately on Start
  - Every run is recorded (in memory, newest first) for the UI

CONFIGURATION:
  - Interval: how often to sweep (default: 1 hour)
  - Enabled:  whether the sweeper runs at all (default: true)

USAGE:
  sweeper := NewSweeper(engine)
  sweeper.Start()
  // ... later
  sweeper.Stop()

SEE ALSO:
  - planner/pantry.go: SweepExpired, RefreshShopping
  - handlers.go: POST /api/sweeps (manual run)
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/pantry-engine/planner"
)

// maxSweepRuns bounds the in-memory run log.
const maxSweepRuns = 50

// SweepRun records one sweep.
type SweepRun struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	Expired     []string   `json:"expired"`
	Restocked   []string   `json:"restocked"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Sweeper expires leftovers and refreshes the shopping list on a ticker.
type Sweeper struct {
	Engine   *planner.Engine
	Interval time.Duration
	Enabled  bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex

	runsMu sync.Mutex
	runs   []SweepRun
}

func NewSweeper(engine *planner.Engine) *Sweeper {
	return &Sweeper{
		Engine:   engine,
		Interval: 1 * time.Hour,
		Enabled:  true,
		stop:     make(chan bool),
	}
}

// Start begins the sweeper.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		log.Println("[Sweeper] Disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.Interval)
	s.wg.Add(1)

	go s.run()

	log.Printf("[Sweeper] Started with interval: %v", s.Interval)
}

// Stop stops the sweeper and waits for an in-progress sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		log.Println("[Sweeper] Stopped")
	}
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	s.sweep(context.Background())

	for {
		select {
		case <-s.ticker.C:
			s.sweep(context.Background())
		case <-s.stop:
			return
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) SweepRun {
	run := SweepRun{
		ID:        "sweep-" + uuid.NewString(),
		Status:    "running",
		Expired:   []string{},
		Restocked: []string{},
		StartedAt: time.Now(),
	}

	expired, err := s.Engine.SweepExpired(ctx)
	if err != nil {
		log.Printf("[Sweeper] Error expiring leftovers: %v", err)
		return s.finish(run, err)
	}
	for _, rec := range expired {
		run.Expired = append(run.Expired, rec.Name)
	}

	added, err := s.Engine.RefreshShopping(ctx)
	if err != nil {
		log.Printf("[Sweeper] Error refreshing shopping list: %v", err)
		return s.finish(run, err)
	}
	for _, item := range added {
		run.Restocked = append(run.Restocked, item.Name)
	}

	if len(run.Expired) > 0 || len(run.Restocked) > 0 {
		log.Printf("[Sweeper] Completed: %d leftovers expired, %d staples added to shopping", len(run.Expired), len(run.Restocked))
	}
	return s.finish(run, nil)
}

func (s *Sweeper) finish(run SweepRun, err error) SweepRun {
	done := time.Now()
	run.CompletedAt = &done
	run.Status = "completed"
	if err != nil {
		run.Status = "failed"
		run.Error = err.Error()
	}

	s.runsMu.Lock()
	defer s.runsMu.Unlock()
	s.runs = append([]SweepRun{run}, s.runs...)
	if len(s.runs) > maxSweepRuns {
		s.runs = s.runs[:maxSweepRuns]
	}
	return run
}

// RunNow sweeps immediately (for admin/testing).
func (s *Sweeper) RunNow(ctx context.Context) SweepRun {
	return s.sweep(ctx)
}

// Runs returns recorded sweeps, newest first.
func (s *Sweeper) Runs() []SweepRun {
	s.runsMu.Lock()
	defer s.runsMu.Unlock()
	return append([]SweepRun{}, s.runs...)
}

// NextRunTime returns when the next scheduled sweep will occur.
func (s *Sweeper) NextRunTime() time.Time {
	return time.Now().Add(s.Interval)
}
