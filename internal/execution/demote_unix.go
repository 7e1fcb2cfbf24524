//go:build !windows

package execution

import (
	"os"
	"syscall"

	"github.com/procorg/procorg/internal/auth"
)

// demotionCredential builds the privilege-demotion step for spawning a
// script as uid. It returns nil when no demotion applies: only an elevated
// (root) supervisor may demote, and only to an identity other than its own.
//
// The credential carries the target gid alongside the uid. Ordering is
// load-bearing: the gid must be applied before the uid, because once the uid
// is dropped the child no longer has permission to change its group. The Go
// runtime applies Credential in exactly that order during fork/exec.
func demotionCredential(uid int) (*syscall.Credential, error) {
	if os.Geteuid() != 0 {
		return nil, nil
	}
	if uid < 0 || uid == os.Geteuid() {
		return nil, nil
	}
	ident, err := auth.LookupUID(uid)
	if err != nil {
		return nil, err
	}
	return &syscall.Credential{Uid: uint32(ident.UID), Gid: uint32(ident.GID)}, nil
}
