// Package manager orchestrates run/stop/status requests against the
// registry and the execution supervisor. It keeps an in-memory history of
// the executions this instance started and reconciles against durable
// artifacts for everything it did not.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/procorg/procorg/internal/execution"
	"github.com/procorg/procorg/internal/history"
	"github.com/procorg/procorg/internal/metrics"
	"github.com/procorg/procorg/internal/registry"
)

var (
	// ErrNotRegistered is returned by Run for unknown process names.
	ErrNotRegistered = errors.New("process not registered")
	// ErrDisabled is returned by Run for disabled processes.
	ErrDisabled = errors.New("process is disabled")
)

// ProcessStatus is the composed answer to "what is the state of process X".
// It has the same shape whether it came from live in-memory records or was
// reconciled from durable artifacts.
type ProcessStatus struct {
	Name            string            `json:"name"`
	Running         bool              `json:"running"`
	TotalExecutions int               `json:"total_executions"`
	Latest          *execution.Record `json:"latest_execution,omitempty"`
}

// Manager is safe for concurrent use. The mutex guards only the history
// map; it is never held across a spawn, wait, or file read.
type Manager struct {
	reg *registry.Registry
	sup *execution.Supervisor

	mu        sync.Mutex
	histories map[string][]*execution.Execution

	sinkMu sync.Mutex
	sinks  []history.Sink
}

func New(reg *registry.Registry, sup *execution.Supervisor) *Manager {
	m := &Manager{
		reg:       reg,
		sup:       sup,
		histories: make(map[string][]*execution.Execution),
	}
	sup.SetNotify(m.onFinal)
	return m
}

// SetHistorySinks configures optional lifecycle-event sinks. Send failures
// are logged, never propagated: history export must not affect executions.
func (m *Manager) SetHistorySinks(sinks ...history.Sink) {
	m.sinkMu.Lock()
	m.sinks = append([]history.Sink(nil), sinks...)
	m.sinkMu.Unlock()
}

func (m *Manager) emit(t history.EventType, rec execution.Record) {
	m.sinkMu.Lock()
	sinks := append([]history.Sink(nil), m.sinks...)
	m.sinkMu.Unlock()
	if len(sinks) == 0 {
		return
	}
	evt := history.Event{Type: t, OccurredAt: time.Now().UTC(), Execution: rec}
	for _, s := range sinks {
		if err := s.Send(context.Background(), evt); err != nil {
			slog.Warn("history sink send failed", "type", string(t), "name", rec.Name, "error", err)
		}
	}
}

// onFinal runs in the monitor goroutine whenever an execution reaches a
// final status.
func (m *Manager) onFinal(rec execution.Record) {
	metrics.ObserveFinal(rec.Name, string(rec.Status))
	m.emit(history.EventFinished, rec)
}

// Run executes a registered process. It rejects — without side effects —
// names that are missing, disabled, or whose script no longer exists on
// disk. A spawn failure leaves the failed record in history for inspection
// and returns an error instead of a handle.
func (m *Manager) Run(name string, args ...string) (*execution.Execution, error) {
	def, ok, err := m.reg.Get(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	if !def.Enabled {
		return nil, fmt.Errorf("%w: %s", ErrDisabled, name)
	}
	if _, err := os.Stat(def.ScriptPath); err != nil {
		return nil, fmt.Errorf("script not found for %s: %w", name, err)
	}

	e := m.sup.Prepare(name, def.ScriptPath, def.OwnerUID, args)
	m.mu.Lock()
	m.histories[name] = append(m.histories[name], e)
	m.mu.Unlock()

	// Counted before the spawn: a launch failure still reports a final
	// status through the monitor hook, which balances the running gauge.
	metrics.IncStart(name)
	if err := e.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", name, err)
	}
	m.emit(history.EventStarted, e.Record())
	return e, nil
}

// GetRunning returns the currently running execution this instance knows
// about for name, scanning its history newest-first.
func (m *Manager) GetRunning(name string) *execution.Execution {
	m.mu.Lock()
	defer m.mu.Unlock()
	hist := m.histories[name]
	for i := len(hist) - 1; i >= 0; i-- {
		if hist[i].Status() == execution.StatusRunning {
			return hist[i]
		}
	}
	return nil
}

// Stop terminates the running execution for name. It prefers the in-memory
// record; with none, it falls back to the latest durable execution id and
// terminates the recorded pid directly — the path that lets this instance
// stop an execution started by a different one. Returns false when nothing
// was running either way.
func (m *Manager) Stop(name string) bool {
	if e := m.GetRunning(name); e != nil {
		stopped := e.Stop()
		if stopped {
			metrics.IncStop(name)
			m.emit(history.EventStopped, e.Record())
		}
		return stopped
	}

	id := m.sup.Store().LatestID(name)
	if id == "" || !m.sup.Store().HasPID(name, id) {
		return false
	}
	if m.sup.StopDetached(name, id) {
		metrics.IncStop(name)
		m.emit(history.EventStopped, m.reconstruct(name, id))
		return true
	}
	return false
}

// Shutdown abandons all monitor goroutines owned by this instance. Children
// keep running; their durable artifacts stay authoritative for whoever asks
// next.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, hist := range m.histories {
		for _, e := range hist {
			e.Abandon()
		}
	}
}
