package execution

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Store lays out the durable artifacts of executions under
// <root>/logs/<name>/<execution_id>.{stdout.log,stderr.log,pid,exitcode,args}.
// These files are the only execution state visible to other instances of the
// tool: the pid-file exists iff the execution is believed running, and the
// exit-code-file appears once it has finished.
type Store struct {
	root string
}

func NewStore(root string) *Store { return &Store{root: root} }

// Root returns the data directory this store writes under.
func (s *Store) Root() string { return s.root }

// Dir returns the artifact directory for a process name.
func (s *Store) Dir(name string) string {
	return filepath.Join(s.root, "logs", name)
}

// EnsureDir creates the artifact directory for name.
func (s *Store) EnsureDir(name string) error {
	return os.MkdirAll(s.Dir(name), 0o750)
}

func (s *Store) StdoutPath(name, id string) string {
	return filepath.Join(s.Dir(name), id+".stdout.log")
}

func (s *Store) StderrPath(name, id string) string {
	return filepath.Join(s.Dir(name), id+".stderr.log")
}

func (s *Store) PIDPath(name, id string) string {
	return filepath.Join(s.Dir(name), id+".pid")
}

func (s *Store) ExitCodePath(name, id string) string {
	return filepath.Join(s.Dir(name), id+".exitcode")
}

func (s *Store) ArgsPath(name, id string) string {
	return filepath.Join(s.Dir(name), id+".args")
}

// LogPath resolves a stream name ("stdout" or "stderr") to its log path.
func (s *Store) LogPath(name, id, stream string) (string, error) {
	switch stream {
	case "stdout":
		return s.StdoutPath(name, id), nil
	case "stderr":
		return s.StderrPath(name, id), nil
	}
	return "", fmt.Errorf("unknown stream %q", stream)
}

// WritePID records the child pid; its presence is the cross-instance
// "still running" signal.
func (s *Store) WritePID(name, id string, pid int) error {
	return os.WriteFile(s.PIDPath(name, id), []byte(strconv.Itoa(pid)), 0o600)
}

// ReadPID reads a pid-file. A missing file means the execution is no longer
// believed running.
func (s *Store) ReadPID(name, id string) (int, error) {
	b, err := os.ReadFile(s.PIDPath(name, id))
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, fmt.Errorf("parse pid file for %s/%s: %w", name, id, err)
	}
	return pid, nil
}

// RemovePID deletes the pid-file. Permission errors are tolerated: the file
// may belong to another identity, and failing to clean it up must not turn a
// successful stop into a failure.
func (s *Store) RemovePID(name, id string) {
	_ = os.Remove(s.PIDPath(name, id))
}

// HasPID reports whether the pid-file exists.
func (s *Store) HasPID(name, id string) bool {
	_, err := os.Stat(s.PIDPath(name, id))
	return err == nil
}

// WriteExitCode persists the final exit code.
func (s *Store) WriteExitCode(name, id string, code int) error {
	return os.WriteFile(s.ExitCodePath(name, id), []byte(strconv.Itoa(code)), 0o600)
}

// ReadExitCode reads the recorded exit code; ok is false when no code has
// been recorded or the file is unreadable (both mean "no further
// information", never an error).
func (s *Store) ReadExitCode(name, id string) (int, bool) {
	b, err := os.ReadFile(s.ExitCodePath(name, id))
	if err != nil {
		return 0, false
	}
	code, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, false
	}
	return code, true
}

// WriteArgs persists the supplied arguments for later reconstruction.
func (s *Store) WriteArgs(name, id string, args []string) error {
	b, err := json.Marshal(args)
	if err != nil {
		return err
	}
	return os.WriteFile(s.ArgsPath(name, id), b, 0o600)
}

// ReadArgs reads back persisted arguments; nil when none were supplied.
func (s *Store) ReadArgs(name, id string) []string {
	b, err := os.ReadFile(s.ArgsPath(name, id))
	if err != nil {
		return nil
	}
	var args []string
	if err := json.Unmarshal(b, &args); err != nil {
		return nil
	}
	return args
}

// LatestID scans the durable artifacts of name and returns the
// lexicographically greatest execution id, or "" when none exist. No
// in-memory state is consulted; this is what lets a fresh instance answer
// "what ran last".
func (s *Store) LatestID(name string) string {
	entries, err := os.ReadDir(s.Dir(name))
	if err != nil {
		return ""
	}
	const suffix = ".stdout.log"
	latest := ""
	for _, e := range entries {
		n := e.Name()
		if !strings.HasSuffix(n, suffix) {
			continue
		}
		id := strings.TrimSuffix(n, suffix)
		if id > latest {
			latest = id
		}
	}
	return latest
}
