//go:build !windows

package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func run(t *testing.T, args ...string) error {
	t.Helper()
	root := buildRoot()
	root.SetArgs(args)
	return root.Execute()
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/bash\n"+body+"\n"), 0o700); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestRegisterRunStatusRoundTrip(t *testing.T) {
	dataDir := t.TempDir()
	script := writeScript(t, dataDir, "hello.sh", "echo hello")

	if err := run(t, "--data-dir", dataDir, "register", "--name", "hello", "--script", script); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := run(t, "--data-dir", dataDir, "run", "hello", "--wait"); err != nil {
		t.Fatalf("run --wait: %v", err)
	}
	// A fresh invocation reads the same durable state.
	if err := run(t, "--data-dir", dataDir, "status", "hello"); err != nil {
		t.Fatalf("status: %v", err)
	}
	if err := run(t, "--data-dir", dataDir, "logs", "hello"); err != nil {
		t.Fatalf("logs: %v", err)
	}
	if err := run(t, "--data-dir", dataDir, "unregister", "hello"); err != nil {
		t.Fatalf("unregister: %v", err)
	}
	if err := run(t, "--data-dir", dataDir, "status", "hello"); err == nil {
		t.Fatalf("status of unregistered process must fail")
	}
}

func TestRunFailsForUnknownProcess(t *testing.T) {
	err := run(t, "--data-dir", t.TempDir(), "run", "ghost")
	if err == nil || !strings.Contains(err.Error(), "not registered") {
		t.Fatalf("expected not-registered error, got %v", err)
	}
}

func TestRunWaitSurfacesFailure(t *testing.T) {
	dataDir := t.TempDir()
	script := writeScript(t, dataDir, "bad.sh", "exit 7")
	if err := run(t, "--data-dir", dataDir, "register", "--name", "bad", "--script", script); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := run(t, "--data-dir", dataDir, "run", "bad", "--wait"); err == nil {
		t.Fatalf("run --wait on a failing script must return an error")
	}
}

func TestEnableDisable(t *testing.T) {
	dataDir := t.TempDir()
	script := writeScript(t, dataDir, "job.sh", "exit 0")
	if err := run(t, "--data-dir", dataDir, "register", "--name", "job", "--script", script); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := run(t, "--data-dir", dataDir, "disable", "job"); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if err := run(t, "--data-dir", dataDir, "run", "job"); err == nil {
		t.Fatalf("running a disabled process must fail")
	}
	if err := run(t, "--data-dir", dataDir, "enable", "job"); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if err := run(t, "--data-dir", dataDir, "run", "job", "--wait"); err != nil {
		t.Fatalf("run after enable: %v", err)
	}
}
