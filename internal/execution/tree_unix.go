//go:build !windows

package execution

import (
	"bytes"
	"os"
	"runtime"
	"strconv"
	"syscall"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// Alive probes pid with a non-destructive signal-zero check. On Linux a
// reaped-but-unwaited child shows up as a zombie and still answers the
// signal, so zombies are reported as dead. The probe can false-positive when
// the pid has been reused by an unrelated process; accepted limitation.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	if runtime.GOOS == "linux" && isZombieLinux(pid) {
		return false
	}
	return syscall.Kill(pid, 0) == nil
}

// isZombieLinux reports whether /proc/<pid>/status shows state Z.
func isZombieLinux(pid int) bool {
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/status")
	if err != nil {
		return false
	}
	return bytes.Contains(b, []byte("State:\tZ"))
}

// descendantPIDs returns every descendant of pid, leaves first, so that a
// caller signalling in order never orphans a descendant before its parent
// is gone.
func descendantPIDs(pid int) []int {
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return nil
	}
	var out []int
	var walk func(p *gopsproc.Process)
	walk = func(p *gopsproc.Process) {
		children, err := p.Children()
		if err != nil {
			return
		}
		for _, c := range children {
			walk(c)
			out = append(out, int(c.Pid))
		}
	}
	walk(p)
	return out
}

// TerminateTree stops pid and its whole descendant tree: SIGTERM to every
// descendant (leaves first) and then the process itself, a bounded grace
// wait, and a SIGKILL escalation for whatever survived. "No such process"
// at any step means that member already exited and counts as success.
func TerminateTree(pid int, grace time.Duration) {
	for _, cp := range descendantPIDs(pid) {
		_ = syscall.Kill(cp, syscall.SIGTERM)
	}
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		// Already gone; nothing to wait for.
		return
	}

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !Alive(pid) {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}

	// Grace expired: kill the process group and any stragglers found now.
	_ = syscall.Kill(-pid, syscall.SIGKILL)
	for _, cp := range descendantPIDs(pid) {
		_ = syscall.Kill(cp, syscall.SIGKILL)
	}
	_ = syscall.Kill(pid, syscall.SIGKILL)
}
