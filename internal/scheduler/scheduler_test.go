//go:build !windows

package scheduler

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/procorg/procorg/internal/execution"
	"github.com/procorg/procorg/internal/manager"
	"github.com/procorg/procorg/internal/registry"
)

type fixture struct {
	root  string
	reg   *registry.Registry
	mgr   *manager.Manager
	sched *Scheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	reg, err := registry.Open(filepath.Join(root, "registry.json"))
	if err != nil {
		t.Fatalf("registry.Open: %v", err)
	}
	sup := execution.NewSupervisor(execution.NewStore(root), 50*time.Millisecond, 2*time.Second)
	mgr := manager.New(reg, sup)
	return &fixture{root: root, reg: reg, mgr: mgr, sched: New(reg, mgr, time.Second)}
}

func (f *fixture) register(t *testing.T, name, cronExpr, body string) {
	t.Helper()
	script := filepath.Join(f.root, name+".sh")
	if err := os.WriteFile(script, []byte("#!/bin/bash\n"+body+"\n"), 0o700); err != nil {
		t.Fatalf("write script: %v", err)
	}
	def := registry.Definition{Name: name, ScriptPath: script, CronExpr: cronExpr, OwnerUID: -1}
	if err := f.reg.Register(def); err != nil {
		t.Fatalf("Register: %v", err)
	}
}

// executions counts durable runs recorded for name.
func (f *fixture) executions(name string) int {
	entries, err := os.ReadDir(filepath.Join(f.root, "logs", name))
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".stdout.log") {
			n++
		}
	}
	return n
}

func waitUntil(d, step time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(step)
	}
	return cond()
}

func TestFirstSightNeverTriggers(t *testing.T) {
	f := newFixture(t)
	f.register(t, "minutely", "* * * * *", "exit 0")

	now := time.Date(2024, 3, 1, 10, 0, 30, 0, time.UTC)
	f.sched.checkAndRun(now)
	if n := f.executions("minutely"); n != 0 {
		t.Fatalf("first sight must only cache the next occurrence, got %d runs", n)
	}
	next, ok := f.sched.NextRun("minutely")
	if !ok || !next.Equal(time.Date(2024, 3, 1, 10, 1, 0, 0, time.UTC)) {
		t.Fatalf("next run: %v ok=%v", next, ok)
	}
}

func TestTriggersOncePerDueWindow(t *testing.T) {
	f := newFixture(t)
	f.register(t, "minutely", "* * * * *", "exit 0")

	base := time.Date(2024, 3, 1, 10, 0, 30, 0, time.UTC)
	f.sched.checkAndRun(base)                       // cache 10:01:00
	f.sched.checkAndRun(base.Add(31 * time.Second)) // 10:01:01, due -> fire
	ok := waitUntil(3*time.Second, 50*time.Millisecond, func() bool {
		return f.executions("minutely") == 1 && f.mgr.GetRunning("minutely") == nil
	})
	if !ok {
		t.Fatalf("expected exactly one completed run, got %d", f.executions("minutely"))
	}

	// Still inside the same minute: nothing new fires.
	f.sched.checkAndRun(base.Add(35 * time.Second))
	if n := f.executions("minutely"); n != 1 {
		t.Fatalf("retriggered within the same window: %d runs", n)
	}

	// Next minute boundary passes: fires again.
	f.sched.checkAndRun(base.Add(95 * time.Second)) // 10:02:05
	ok = waitUntil(3*time.Second, 50*time.Millisecond, func() bool {
		return f.executions("minutely") == 2
	})
	if !ok {
		t.Fatalf("expected second run after the next boundary")
	}
	f.mgr.Shutdown()
}

func TestDisabledAndCronlessNeverTrigger(t *testing.T) {
	f := newFixture(t)
	f.register(t, "paused", "* * * * *", "exit 0")
	f.register(t, "manual", "", "exit 0")
	if _, err := f.reg.SetEnabled("paused", false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}

	base := time.Date(2024, 3, 1, 10, 0, 30, 0, time.UTC)
	for _, offset := range []time.Duration{0, time.Minute, 2 * time.Minute} {
		f.sched.checkAndRun(base.Add(offset))
	}
	if f.executions("paused") != 0 || f.executions("manual") != 0 {
		t.Fatalf("disabled or cron-less process was triggered")
	}
}

func TestMalformedCronIsIsolated(t *testing.T) {
	f := newFixture(t)
	f.register(t, "broken", "not a cron", "exit 0")
	f.register(t, "healthy", "* * * * *", "exit 0")

	base := time.Date(2024, 3, 1, 10, 0, 30, 0, time.UTC)
	f.sched.checkAndRun(base)
	f.sched.checkAndRun(base.Add(31 * time.Second))
	ok := waitUntil(3*time.Second, 50*time.Millisecond, func() bool {
		return f.executions("healthy") == 1
	})
	if !ok {
		t.Fatalf("healthy process should fire despite the broken sibling")
	}
	if f.executions("broken") != 0 {
		t.Fatalf("broken cron expression must never fire")
	}
	f.mgr.Shutdown()
}

func TestOverlappingRunIsSkipped(t *testing.T) {
	f := newFixture(t)
	f.register(t, "slow", "* * * * *", "sleep 30")

	base := time.Date(2024, 3, 1, 10, 0, 30, 0, time.UTC)
	f.sched.checkAndRun(base)
	f.sched.checkAndRun(base.Add(31 * time.Second))
	ok := waitUntil(2*time.Second, 20*time.Millisecond, func() bool {
		return f.mgr.GetRunning("slow") != nil
	})
	if !ok {
		t.Fatalf("slow run never started")
	}

	// The next due window arrives while the first run is still going.
	f.sched.checkAndRun(base.Add(95 * time.Second))
	if n := f.executions("slow"); n != 1 {
		t.Fatalf("overlapping trigger must be skipped, got %d runs", n)
	}

	if !f.mgr.Stop("slow") {
		t.Fatalf("cleanup stop failed")
	}
	f.mgr.Shutdown()
}

func TestStartStopLifecycle(t *testing.T) {
	f := newFixture(t)
	if err := f.sched.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := f.sched.Start(); err == nil {
		t.Fatalf("second Start must fail while running")
	}
	if !f.sched.Running() {
		t.Fatalf("Running should report true")
	}
	f.sched.Stop()
	f.sched.Stop() // idempotent
	if f.sched.Running() {
		t.Fatalf("Running should report false after Stop")
	}
	if err := f.sched.Start(); err != nil {
		t.Fatalf("restart after Stop: %v", err)
	}
	f.sched.Stop()
}

func TestInfoListsCronEntries(t *testing.T) {
	f := newFixture(t)
	f.register(t, "minutely", "* * * * *", "exit 0")
	f.register(t, "manual", "", "exit 0")

	f.sched.checkAndRun(time.Date(2024, 3, 1, 10, 0, 30, 0, time.UTC))
	entries, err := f.sched.Info()
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "minutely" {
		t.Fatalf("entries: %+v", entries)
	}
	if entries[0].NextRun == nil {
		t.Fatalf("next run should be tracked after a check pass")
	}
}
