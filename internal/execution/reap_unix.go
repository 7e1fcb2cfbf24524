//go:build !windows

package execution

import (
	"errors"
	"os/exec"
	"syscall"
)

// configureSpawn applies platform attributes to the child: a fresh process
// group (so the whole tree can be signalled as -pid) and, when the
// supervisor runs elevated and a different target identity was requested,
// the privilege-demotion credential.
func configureSpawn(cmd *exec.Cmd, uid int) error {
	cred, err := demotionCredential(uid)
	if err != nil {
		return err
	}
	attrs := &syscall.SysProcAttr{Setpgid: true}
	attrs.Credential = cred
	cmd.SysProcAttr = attrs
	return nil
}

// tryReap performs a non-blocking wait on the direct child. It returns the
// exit code and true once the child has exited. A blocking Wait would hang
// while any grandchild keeps the inherited stdout/stderr descriptors open;
// WNOHANG lets the monitor declare completion the moment the direct child
// itself is gone.
func tryReap(pid int) (int, bool) {
	var ws syscall.WaitStatus
	wpid, err := syscall.Wait4(pid, &ws, syscall.WNOHANG, nil)
	if err != nil {
		if errors.Is(err, syscall.ECHILD) {
			// Reaped elsewhere or never ours; the status is lost.
			if !Alive(pid) {
				return -1, true
			}
		}
		return 0, false
	}
	if wpid == 0 {
		return 0, false
	}
	if ws.Signaled() {
		return -int(ws.Signal()), true
	}
	return ws.ExitStatus(), true
}
