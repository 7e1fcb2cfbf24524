// Package scheduler drives cron-triggered executions. A single loop wakes
// once per tick, re-reads the registry, and fires any enabled process whose
// cron expression has come due. Non-overlap: a process still running is
// skipped, never queued.
package scheduler

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/procorg/procorg/internal/manager"
	"github.com/procorg/procorg/internal/metrics"
	"github.com/procorg/procorg/internal/registry"
)

// DefaultTick is the scheduler wake interval. One second keeps minute-level
// cron precision without meaningful idle cost.
const DefaultTick = time.Second

// Scheduler evaluates registered cron expressions against wall time.
type Scheduler struct {
	reg  *registry.Registry
	mgr  *manager.Manager
	tick time.Duration

	mu       sync.Mutex
	nextRuns map[string]time.Time
	quit     chan struct{}
	done     chan struct{}
	running  bool
}

func New(reg *registry.Registry, mgr *manager.Manager, tick time.Duration) *Scheduler {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Scheduler{
		reg:      reg,
		mgr:      mgr,
		tick:     tick,
		nextRuns: make(map[string]time.Time),
	}
}

// Start launches the trigger loop. Starting an already-running scheduler is
// an error; restarting after Stop is fine.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("scheduler already started")
	}
	s.running = true
	s.quit = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(s.quit, s.done)
	slog.Info("scheduler started", "tick", s.tick.String())
	return nil
}

// Stop cancels the loop and waits (bounded) for it to drain. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	quit, done := s.quit, s.done
	s.mu.Unlock()

	close(quit)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		slog.Warn("scheduler loop did not drain in time")
	}
	slog.Info("scheduler stopped")
}

// Running reports whether the trigger loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop(quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(s.tick)
	defer t.Stop()
	for {
		select {
		case <-quit:
			return
		case now := <-t.C:
			s.checkAndRun(now)
		}
	}
}

// checkAndRun evaluates every definition against now. It is the whole of
// the scheduling policy, kept separate from the ticker so tests can drive
// it with synthetic clocks. Per-process failures are isolated: one bad cron
// expression or failed launch never blocks the others.
func (s *Scheduler) checkAndRun(now time.Time) {
	defs, err := s.reg.List()
	if err != nil {
		slog.Error("scheduler could not read registry", "error", err)
		return
	}

	seen := make(map[string]bool, len(defs))
	for _, def := range defs {
		seen[def.Name] = true
		if !def.Enabled || def.CronExpr == "" {
			continue
		}
		sched, err := cron.ParseStandard(def.CronExpr)
		if err != nil {
			slog.Warn("invalid cron expression", "name", def.Name, "cron", def.CronExpr, "error", err)
			metrics.IncSchedulerError(def.Name)
			continue
		}
		if s.mgr.GetRunning(def.Name) != nil {
			// Non-overlap: leave the due time alone; the trigger fires on
			// the first pass after the running execution ends.
			slog.Debug("skipping trigger, previous execution still running", "name", def.Name)
			continue
		}

		s.mu.Lock()
		due, known := s.nextRuns[def.Name]
		if !known {
			// First sight of this definition: compute the coming occurrence
			// without firing, so registering a process never triggers an
			// immediate run.
			s.nextRuns[def.Name] = sched.Next(now)
			s.mu.Unlock()
			continue
		}
		s.mu.Unlock()

		if now.Before(due) {
			continue
		}

		if _, err := s.mgr.Run(def.Name); err != nil {
			slog.Error("scheduled run failed", "name", def.Name, "error", err)
			metrics.IncSchedulerError(def.Name)
		} else {
			slog.Info("scheduled run triggered", "name", def.Name, "cron", def.CronExpr)
			metrics.IncSchedulerTrigger(def.Name)
		}
		s.setNext(def.Name, sched.Next(now))
	}

	// Forget processes that were unregistered so a re-register starts fresh.
	s.mu.Lock()
	for name := range s.nextRuns {
		if !seen[name] {
			delete(s.nextRuns, name)
		}
	}
	s.mu.Unlock()
}

func (s *Scheduler) setNext(name string, t time.Time) {
	s.mu.Lock()
	s.nextRuns[name] = t
	s.mu.Unlock()
}

// NextRun returns the coming trigger time for name, when one is tracked.
func (s *Scheduler) NextRun(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.nextRuns[name]
	return t, ok
}

// Entry describes one scheduled process for status listings.
type Entry struct {
	Name    string     `json:"name"`
	Cron    string     `json:"cron_expr"`
	Enabled bool       `json:"enabled"`
	NextRun *time.Time `json:"next_run,omitempty"`
}

// Info lists every definition carrying a cron expression.
func (s *Scheduler) Info() ([]Entry, error) {
	defs, err := s.reg.List()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(defs))
	for _, def := range defs {
		if def.CronExpr == "" {
			continue
		}
		e := Entry{Name: def.Name, Cron: def.CronExpr, Enabled: def.Enabled}
		if t, ok := s.NextRun(def.Name); ok {
			e.NextRun = &t
		}
		out = append(out, e)
	}
	return out, nil
}
