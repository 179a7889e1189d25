/*
scheduler.go - Automated draft run scheduler

PURPOSE:
  Periodically makes sure every configured organization has a pay run for
  the current month, so payroll staff find a draft waiting instead of
  creating one by hand. Processing, review and payment stay manual.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Checks once immediately on start, then on every tick
  - An organization that already has a run for the period is skipped
  - Runs are opened under the "scheduler" actor

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active
  - Orgs: Organizations to open runs for

USAGE:
  scheduler := NewDraftRunScheduler(handler.Runs, orgs, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: CreateRun endpoint (manual creation)
  - payrun/orchestrator.go: Create
*/
package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payrun"
)

// SchedulerActor is recorded as the creator of scheduled runs.
const SchedulerActor = "scheduler"

// RunCreator is the part of payrun.Orchestrator the scheduler uses.
type RunCreator interface {
	Create(ctx context.Context, orgID string, period generic.Period, actor payrun.Actor) (*payrun.PayRun, error)
}

// DraftRunScheduler opens the current month's draft run for each organization.
type DraftRunScheduler struct {
	Runs          RunCreator
	Orgs          []string
	CheckInterval time.Duration
	Enabled       bool

	logger *zap.Logger
	now    func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewDraftRunScheduler creates a new scheduler.
func NewDraftRunScheduler(runs RunCreator, orgs []string, logger *zap.Logger) *DraftRunScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DraftRunScheduler{
		Runs:          runs,
		Orgs:          orgs,
		CheckInterval: time.Hour,
		Enabled:       true,
		logger:        logger.Named("scheduler"),
		now:           time.Now,
	}
}

// WithClock replaces the time source.
func (s *DraftRunScheduler) WithClock(now func() time.Time) *DraftRunScheduler {
	s.now = now
	return s
}

// Start begins the scheduler.
func (s *DraftRunScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.logger.Info("disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run()

	s.logger.Info("started", zap.Duration("interval", s.CheckInterval), zap.Strings("orgs", s.Orgs))
}

// Stop stops the scheduler and waits for an in-flight check to finish.
func (s *DraftRunScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		s.logger.Info("stopped")
	}
}

func (s *DraftRunScheduler) run() {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-s.stop
		cancel()
	}()

	// Run immediately on start
	s.RunNow(ctx)

	for {
		select {
		case <-s.ticker.C:
			s.RunNow(ctx)
		case <-s.stop:
			return
		}
	}
}

// RunNow opens missing runs for the current period and returns the ones it
// created. Failures for one organization do not stop the others.
func (s *DraftRunScheduler) RunNow(ctx context.Context) []*payrun.PayRun {
	period := generic.PeriodOf(s.now())
	actor := payrun.Actor{ID: SchedulerActor}

	var opened []*payrun.PayRun
	skipped := 0
	for _, org := range s.Orgs {
		if ctx.Err() != nil {
			break
		}
		run, err := s.Runs.Create(ctx, org, period, actor)
		switch {
		case errors.Is(err, payrun.ErrRunExists):
			skipped++
		case err != nil:
			s.logger.Error("open draft run", zap.String("org_id", org), zap.Stringer("period", period), zap.Error(err))
		default:
			opened = append(opened, run)
			s.logger.Info("draft run opened", zap.String("org_id", org), zap.String("run_id", run.ID), zap.Stringer("period", period))
		}
	}

	if len(opened) > 0 || skipped > 0 {
		s.logger.Info("check completed", zap.Int("opened", len(opened)), zap.Int("skipped", skipped))
	}
	return opened
}

// NextRunTime returns when the next scheduled check will occur.
func (s *DraftRunScheduler) NextRunTime() time.Time {
	return s.now().Add(s.CheckInterval)
}
