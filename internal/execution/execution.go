// Package execution owns one spawned script instance end to end: launch,
// privilege handling, log capture, non-blocking completion monitoring,
// durable status artifacts, and termination.
package execution

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"
)

// Status is the lifecycle state of an execution. Transitions are strictly
// pending -> running -> {completed, failed, stopped}; nothing leaves running
// except the monitor or an explicit stop.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusStopped   Status = "stopped"
)

// FailedExitCode is recorded when the script could not be launched at all.
const FailedExitCode = -1

// StoppedExitCode is the signal-terminated sentinel persisted when an
// execution is stopped rather than exiting on its own.
const StoppedExitCode = -int(syscall.SIGTERM)

const (
	// DefaultPoll is the monitor's reap-check interval.
	DefaultPoll = 200 * time.Millisecond
	// DefaultGrace bounds the SIGTERM-to-SIGKILL escalation window.
	DefaultGrace = 5 * time.Second
)

// Record is the serializable snapshot of an execution. Status queries
// answered from durable artifacts produce the same shape, so callers cannot
// tell which path produced it.
type Record struct {
	ExecutionID string     `json:"execution_id"`
	Name        string     `json:"name"`
	Args        []string   `json:"args,omitempty"`
	PID         int        `json:"pid,omitempty"`
	Status      Status     `json:"status"`
	StartedAt   *time.Time `json:"start_time,omitempty"`
	EndedAt     *time.Time `json:"end_time,omitempty"`
	ExitCode    *int       `json:"exit_code,omitempty"`
	DurationSec *float64   `json:"duration,omitempty"`
}

// Supervisor creates and controls executions against one artifact store.
type Supervisor struct {
	store *Store
	ids   IDGenerator
	poll  time.Duration
	grace time.Duration

	mu     sync.Mutex
	notify func(Record)
}

// NewSupervisor returns a supervisor writing artifacts to store. poll and
// grace fall back to the package defaults when non-positive.
func NewSupervisor(store *Store, poll, grace time.Duration) *Supervisor {
	if poll <= 0 {
		poll = DefaultPoll
	}
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Supervisor{store: store, poll: poll, grace: grace}
}

// Store exposes the artifact store for reconciliation reads.
func (s *Supervisor) Store() *Store { return s.store }

// SetNotify installs a hook invoked (from the monitor goroutine) whenever an
// execution reaches a final status.
func (s *Supervisor) SetNotify(fn func(Record)) {
	s.mu.Lock()
	s.notify = fn
	s.mu.Unlock()
}

func (s *Supervisor) notifyFinal(rec Record) {
	s.mu.Lock()
	fn := s.notify
	s.mu.Unlock()
	if fn != nil {
		fn(rec)
	}
}

// Prepare allocates an execution id and builds a pending execution for the
// given script. uid is the identity the script should run as; pass a
// negative value to run as the supervisor itself.
func (s *Supervisor) Prepare(name, scriptPath string, uid int, args []string) *Execution {
	return &Execution{
		sup:        s,
		id:         s.ids.Next(),
		name:       name,
		scriptPath: scriptPath,
		uid:        uid,
		args:       args,
		status:     StatusPending,
		done:       make(chan struct{}),
	}
}

// StopDetached terminates an execution known only through its durable
// artifacts — the path that lets one instance stop a script started by
// another. It returns true when the execution is no longer running
// afterwards, including the case where the pid was already gone.
func (s *Supervisor) StopDetached(name, id string) bool {
	pid, err := s.store.ReadPID(name, id)
	if err != nil {
		return false
	}
	if !Alive(pid) {
		// Stale pid-file from a crashed supervisor; already-exited counts
		// as a successful stop.
		s.store.RemovePID(name, id)
		return true
	}
	slog.Info("stopping detached execution", "name", name, "execution_id", id, "pid", pid)
	TerminateTree(pid, s.grace)

	deadline := time.Now().Add(s.grace + time.Second)
	for time.Now().Before(deadline) && Alive(pid) {
		time.Sleep(50 * time.Millisecond)
	}

	// Artifacts may belong to a different identity; failures here must not
	// invalidate the stop.
	if err := s.store.WriteExitCode(name, id, StoppedExitCode); err != nil {
		slog.Debug("could not record exit code for detached stop", "name", name, "execution_id", id, "error", err)
	}
	s.store.RemovePID(name, id)
	return true
}

// Execution is one run of a registered script.
type Execution struct {
	sup        *Supervisor
	id         string
	name       string
	scriptPath string
	uid        int
	args       []string

	mu            sync.Mutex
	status        Status
	pid           int
	startedAt     time.Time
	endedAt       time.Time
	exitCode      *int
	stopRequested bool
	outFile       *os.File
	errFile       *os.File
	cancel        context.CancelFunc
	done          chan struct{}
}

// ID returns the execution id.
func (e *Execution) ID() string { return e.id }

// Name returns the owning process name.
func (e *Execution) Name() string { return e.name }

// PID returns the child pid, or 0 before a successful launch.
func (e *Execution) PID() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pid
}

// Status returns the current lifecycle status.
func (e *Execution) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Done is closed once the execution reaches a final status.
func (e *Execution) Done() <-chan struct{} { return e.done }

// Record snapshots the execution.
func (e *Execution) Record() Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec := Record{
		ExecutionID: e.id,
		Name:        e.name,
		Args:        e.args,
		PID:         e.pid,
		Status:      e.status,
	}
	if !e.startedAt.IsZero() {
		t := e.startedAt
		rec.StartedAt = &t
	}
	if !e.endedAt.IsZero() {
		t := e.endedAt
		rec.EndedAt = &t
	}
	if e.exitCode != nil {
		c := *e.exitCode
		rec.ExitCode = &c
	}
	if !e.startedAt.IsZero() && !e.endedAt.IsZero() {
		d := e.endedAt.Sub(e.startedAt).Seconds()
		rec.DurationSec = &d
	}
	return rec
}

// Start launches the script and begins monitoring it. The pid-file is
// written before Start returns so that any concurrent status query, from
// this instance or another, observes a running execution as soon as the
// launcher comes back. A launch failure is recorded as a failed execution
// with exit code -1 and returned; it is never fatal to the supervisor.
func (e *Execution) Start() error {
	st := e.sup.store
	if err := st.EnsureDir(e.name); err != nil {
		return e.failLaunch(err)
	}
	out, err := os.Create(st.StdoutPath(e.name, e.id))
	if err != nil {
		return e.failLaunch(err)
	}
	errF, err := os.Create(st.StderrPath(e.name, e.id))
	if err != nil {
		_ = out.Close()
		return e.failLaunch(err)
	}

	argv := append([]string{e.scriptPath}, e.args...)
	// #nosec G204 -- scriptPath comes from the registry, not request input
	cmd := exec.Command("/bin/bash", argv...)
	cmd.Dir = filepath.Dir(e.scriptPath)
	cmd.Stdout = out
	cmd.Stderr = errF
	if err := configureSpawn(cmd, e.uid); err != nil {
		_ = out.Close()
		_ = errF.Close()
		return e.failLaunch(err)
	}

	if err := cmd.Start(); err != nil {
		_ = out.Close()
		_ = errF.Close()
		return e.failLaunch(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.pid = cmd.Process.Pid
	e.startedAt = time.Now()
	e.status = StatusRunning
	e.outFile = out
	e.errFile = errF
	e.cancel = cancel
	e.mu.Unlock()

	// The pid-file must exist before Start returns; it is the sole
	// cross-instance signal of "still running".
	if err := st.WritePID(e.name, e.id, cmd.Process.Pid); err != nil {
		slog.Warn("could not write pid file", "name", e.name, "execution_id", e.id, "error", err)
	}
	if len(e.args) > 0 {
		if err := st.WriteArgs(e.name, e.id, e.args); err != nil {
			slog.Warn("could not write args file", "name", e.name, "execution_id", e.id, "error", err)
		}
	}

	go e.monitor(ctx)
	slog.Info("execution started", "name", e.name, "execution_id", e.id, "pid", cmd.Process.Pid)
	return nil
}

// failLaunch marks the execution failed with exit code -1. The code is also
// persisted so that a different instance reconciling from artifacts sees the
// failure instead of defaulting to completed.
func (e *Execution) failLaunch(err error) error {
	code := FailedExitCode
	now := time.Now()
	e.mu.Lock()
	e.status = StatusFailed
	e.exitCode = &code
	e.endedAt = now
	e.mu.Unlock()
	close(e.done)
	_ = e.sup.store.WriteExitCode(e.name, e.id, code)
	slog.Error("failed to start execution", "name", e.name, "execution_id", e.id, "error", err)
	e.sup.notifyFinal(e.Record())
	return err
}

// monitor polls the child's termination status at a fixed interval. It is
// the single reaper for the child; Stop never calls wait itself, it just
// signals and lets the monitor observe the exit.
func (e *Execution) monitor(ctx context.Context) {
	t := time.NewTicker(e.sup.poll)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			// Abandoned by the owning instance; durable state is left as
			// is and the next status query reconciles from artifacts.
			return
		case <-t.C:
			if code, exited := tryReap(e.pidLocked()); exited {
				e.finish(code)
				return
			}
		}
	}
}

func (e *Execution) pidLocked() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pid
}

// finish records the final state and hands the result off to disk: exit code
// persisted, log handles closed, pid-file deleted. The pid-file delete is
// the durable "no longer running" signal other instances consume.
func (e *Execution) finish(code int) {
	now := time.Now()
	e.mu.Lock()
	e.endedAt = now
	e.exitCode = &code
	switch {
	case e.stopRequested:
		e.status = StatusStopped
	case code == 0:
		e.status = StatusCompleted
	default:
		e.status = StatusFailed
	}
	out, errF := e.outFile, e.errFile
	e.outFile, e.errFile = nil, nil
	st := e.status
	e.mu.Unlock()

	if err := e.sup.store.WriteExitCode(e.name, e.id, code); err != nil {
		slog.Warn("could not write exit code file", "name", e.name, "execution_id", e.id, "error", err)
	}
	if out != nil {
		_ = out.Close()
	}
	if errF != nil {
		_ = errF.Close()
	}
	e.sup.store.RemovePID(e.name, e.id)
	close(e.done)
	slog.Info("execution finished", "name", e.name, "execution_id", e.id, "status", string(st), "exit_code", code)
	e.sup.notifyFinal(e.Record())
}

// Stop terminates a running execution: graceful signal to the whole
// descendant tree, bounded grace wait, kill escalation. It returns false
// when the execution was not running. An already-exited child is success;
// the monitor records the final state either way.
func (e *Execution) Stop() bool {
	e.mu.Lock()
	if e.status != StatusRunning {
		e.mu.Unlock()
		return false
	}
	e.stopRequested = true
	pid := e.pid
	e.mu.Unlock()

	TerminateTree(pid, e.sup.grace)

	select {
	case <-e.done:
	case <-time.After(e.sup.grace + 2*time.Second):
		slog.Warn("stop: monitor did not confirm exit in time", "name", e.name, "execution_id", e.id)
	}
	return true
}

// Abandon cancels the monitor without touching the child. Used on shutdown
// so repeated start/stop cycles do not leak goroutines; the durable
// artifacts keep the truth for the next instance.
func (e *Execution) Abandon() {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
