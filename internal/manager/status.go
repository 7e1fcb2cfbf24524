package manager

import (
	"fmt"
	"os"
	"strings"

	"github.com/procorg/procorg/internal/execution"
)

// Status answers "what is the state of process X" for any caller, whether
// or not this instance launched anything. In-memory history, when present,
// is authoritative. With none, the answer is rebuilt purely from durable
// artifacts: the latest execution id, the pid-file (probed for liveness),
// and the exit-code file.
func (m *Manager) Status(name string) (ProcessStatus, error) {
	if _, ok, err := m.reg.Get(name); err != nil {
		return ProcessStatus{}, err
	} else if !ok {
		return ProcessStatus{}, fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}

	m.mu.Lock()
	hist := m.histories[name]
	m.mu.Unlock()

	if len(hist) > 0 {
		latest := hist[len(hist)-1].Record()
		// Running means any execution in history is still going, not just
		// the newest one.
		running := false
		for _, e := range hist {
			if e.Status() == execution.StatusRunning {
				running = true
				break
			}
		}
		return ProcessStatus{
			Name:            name,
			Running:         running,
			TotalExecutions: len(hist),
			Latest:          &latest,
		}, nil
	}
	return m.statusFromDisk(name), nil
}

// statusFromDisk reconciles from artifacts alone.
func (m *Manager) statusFromDisk(name string) ProcessStatus {
	st := m.sup.Store()
	id := st.LatestID(name)
	if id == "" {
		return ProcessStatus{Name: name}
	}

	total := m.countExecutions(name)

	if st.HasPID(name, id) {
		pid, err := st.ReadPID(name, id)
		if err == nil && execution.Alive(pid) {
			rec := m.reconstruct(name, id)
			return ProcessStatus{Name: name, Running: true, TotalExecutions: total, Latest: &rec}
		}
		// Stale pid-file: the supervisor that owned this execution died
		// before cleaning up. Remove it so the running signal stays honest.
		st.RemovePID(name, id)
	}

	rec := m.reconstruct(name, id)
	return ProcessStatus{Name: name, TotalExecutions: total, Latest: &rec}
}

// reconstruct rebuilds an execution record from artifacts. The start time
// comes from the execution id itself; the final status is derived from the
// pid-file and the exit-code file: a live pid means running, exit code 0
// completed, positive failed, negative stopped. No exit code and no pid
// defaults to completed — the script finished before this convention could
// say more.
func (m *Manager) reconstruct(name, id string) execution.Record {
	st := m.sup.Store()
	rec := execution.Record{ExecutionID: id, Name: name, Args: st.ReadArgs(name, id)}
	if ts, err := execution.ParseIDTime(id); err == nil {
		rec.StartedAt = &ts
	}

	if st.HasPID(name, id) {
		if pid, err := st.ReadPID(name, id); err == nil && execution.Alive(pid) {
			rec.PID = pid
			rec.Status = execution.StatusRunning
			return rec
		}
	}

	if code, ok := st.ReadExitCode(name, id); ok {
		c := code
		rec.ExitCode = &c
		switch {
		case code == 0:
			rec.Status = execution.StatusCompleted
		case code > 0:
			rec.Status = execution.StatusFailed
		default:
			rec.Status = execution.StatusStopped
		}
		return rec
	}
	rec.Status = execution.StatusCompleted
	return rec
}

// countExecutions counts the durable executions recorded for name.
func (m *Manager) countExecutions(name string) int {
	entries, err := os.ReadDir(m.sup.Store().Dir(name))
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

// AllStatuses reports every registered process in name order. Per-process
// errors cannot occur here beyond registry reads; a registry read failure
// aborts the whole listing.
func (m *Manager) AllStatuses() ([]ProcessStatus, error) {
	defs, err := m.reg.List()
	if err != nil {
		return nil, err
	}
	out := make([]ProcessStatus, 0, len(defs))
	for _, def := range defs {
		ps, err := m.Status(def.Name)
		if err != nil {
			return nil, err
		}
		out = append(out, ps)
	}
	return out, nil
}
