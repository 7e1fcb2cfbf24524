package execution

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

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

// writeScript drops an executable shell script into dir and returns its path.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/bash\n"+body+"\n"), 0o700); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func newTestSupervisor(t *testing.T) *Supervisor {
	t.Helper()
	return NewSupervisor(NewStore(t.TempDir()), 50*time.Millisecond, 2*time.Second)
}
