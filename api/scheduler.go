/*
scheduler.go - Automated year-end close scheduler

PURPOSE:
  Periodically checks whether a plan year's accounting period has ended
  and, if no committed close has completed for it, runs the close.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Candidates are the previous and the current calendar year; a year is
    due when its accounting period is configured and ended before today
  - Skips years that already have a completed committed run
  - A failed close is recorded by the closing service and retried on the
    next tick

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewClosingScheduler(service, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: CloseYear endpoint (manual close)
  - yearend/closing.go: Closing service
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/profit-sharing/calendar"
	"github.com/warp/profit-sharing/plan"
	"github.com/warp/profit-sharing/report"
)

// ClosingScheduler closes finished plan years automatically.
type ClosingScheduler struct {
	Service       *report.Service
	CheckInterval time.Duration
	Enabled       bool
	Log           logrus.FieldLogger
	Now           func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewClosingScheduler creates a new scheduler.
func NewClosingScheduler(svc *report.Service, log logrus.FieldLogger) *ClosingScheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ClosingScheduler{
		Service:       svc,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		Log:           log,
		Now:           func() time.Time { return time.Now().UTC() },
	}
}

// Start begins the scheduler.
func (cs *ClosingScheduler) Start() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if !cs.Enabled {
		cs.Log.Info("scheduler disabled, not starting")
		return
	}
	if cs.ticker != nil {
		return
	}

	cs.ticker = time.NewTicker(cs.CheckInterval)
	cs.stop = make(chan struct{})
	cs.wg.Add(1)

	go cs.run()

	cs.Log.WithFields(logrus.Fields{
		"interval":   cs.CheckInterval,
		"next_check": cs.GetNextRunTime().Format(time.RFC3339),
	}).Info("scheduler started")
}

// Stop stops the scheduler and waits for an in-flight check to finish.
func (cs *ClosingScheduler) Stop() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.ticker != nil {
		cs.ticker.Stop()
		close(cs.stop)
		cs.wg.Wait()
		cs.ticker = nil
		cs.Log.Info("scheduler stopped")
	}
}

func (cs *ClosingScheduler) run() {
	defer cs.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-cs.stop
		cancel()
	}()

	// Run immediately on start
	cs.CheckAndProcess(ctx)

	for {
		select {
		case <-cs.ticker.C:
			cs.CheckAndProcess(ctx)
		case <-cs.stop:
			return
		}
	}
}

// CheckAndProcess closes every due year and returns the years it closed.
func (cs *ClosingScheduler) CheckAndProcess(ctx context.Context) []int {
	today := calendar.Day(cs.Now())
	var closed []int

	for _, year := range []int{today.Year() - 1, today.Year()} {
		log := cs.Log.WithField("year", year)

		due, err := cs.isDue(ctx, year, today)
		if err != nil {
			log.WithError(err).Error("could not check closing status")
			continue
		}
		if !due {
			continue
		}

		res, err := cs.Service.RunYearEndClose(ctx, year, true)
		if err != nil {
			log.WithError(err).Error("scheduled year-end close failed")
			continue
		}
		closed = append(closed, year)
		log.WithFields(logrus.Fields{"run_id": res.Run.ID, "members": res.Run.MembersProcessed}).
			Info("scheduled year-end close completed")
	}
	return closed
}

func (cs *ClosingScheduler) isDue(ctx context.Context, year int, today time.Time) (bool, error) {
	p, ok, err := cs.Service.Store.AccountingPeriod(ctx, year)
	if err != nil || !ok {
		return false, err
	}
	if !today.After(calendar.Day(p.End)) {
		return false, nil
	}

	runs, err := cs.Service.ClosingRuns(ctx, year)
	if err != nil {
		return false, err
	}
	for _, r := range runs {
		if r.Committed && r.Status == plan.RunCompleted {
			return false, nil
		}
	}
	return true, nil
}

// GetNextRunTime returns when the next scheduled check will occur.
func (cs *ClosingScheduler) GetNextRunTime() time.Time {
	return cs.Now().Add(cs.CheckInterval)
}
