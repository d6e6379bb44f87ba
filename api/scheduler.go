/*
scheduler.go - Automated close-out of elapsed allocations

PURPOSE:
  Periodically moves allocations whose period has ended into the closed
  state so they stop counting against availability queries and show up as
  archived in reports.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on start, then on every tick
  - "Today" is read per building from the engine's building clock, so a
    building ahead of the server closes on its own date
  - Closing is idempotent, a missed tick is caught up by the next one

CONFIGURATION:
  - CheckInterval: How often to check (CLOSE_INTERVAL, default 1 hour)
  - Enabled: false when CLOSE_INTERVAL is 0

USAGE:
  scheduler := NewCloseScheduler(engine, interval, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: CloseElapsed endpoint (manual close-out)
  - booking/service.go: Engine.CloseElapsedLocal
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Closer is the engine operation the scheduler drives.
type Closer interface {
	CloseElapsedLocal(ctx context.Context) (int, error)
}

// CloseScheduler closes elapsed allocations on a fixed interval.
type CloseScheduler struct {
	Engine        Closer
	CheckInterval time.Duration
	Enabled       bool
	Logger        *slog.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewCloseScheduler creates a new scheduler. A zero interval disables it.
func NewCloseScheduler(engine Closer, interval time.Duration, logger *slog.Logger) *CloseScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloseScheduler{
		Engine:        engine,
		CheckInterval: interval,
		Enabled:       interval > 0,
		Logger:        logger,
	}
}

// Start begins the scheduler.
func (cs *CloseScheduler) Start() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if !cs.Enabled {
		cs.Logger.Info("close scheduler disabled")
		return
	}
	if cs.ticker != nil {
		return
	}

	cs.ticker = time.NewTicker(cs.CheckInterval)
	cs.stop = make(chan struct{})
	cs.wg.Add(1)
	go cs.run(cs.ticker.C, cs.stop)

	cs.Logger.Info("close scheduler started", "interval", cs.CheckInterval.String())
}

// Stop stops the scheduler and waits for a running pass to finish.
func (cs *CloseScheduler) Stop() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.ticker != nil {
		cs.ticker.Stop()
		close(cs.stop)
		cs.wg.Wait()
		cs.ticker = nil
		cs.Logger.Info("close scheduler stopped")
	}
}

func (cs *CloseScheduler) run(tick <-chan time.Time, stop <-chan struct{}) {
	defer cs.wg.Done()

	cs.RunNow(context.Background())

	for {
		select {
		case <-tick:
			cs.RunNow(context.Background())
		case <-stop:
			return
		}
	}
}

// RunNow closes everything that ended before its building's today and
// returns the count.
func (cs *CloseScheduler) RunNow(ctx context.Context) int {
	n, err := cs.Engine.CloseElapsedLocal(ctx)
	if err != nil {
		cs.Logger.ErrorContext(ctx, "close elapsed failed", "error", err.Error())
		return n
	}
	if n > 0 {
		cs.Logger.InfoContext(ctx, "closed elapsed allocations", "closed", n)
	}
	return n
}
