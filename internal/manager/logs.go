package manager

import (
	"fmt"
	"os"
	"strings"
)

// LatestExecutionID returns the most recent durable execution id for name,
// or "" when none exist.
func (m *Manager) LatestExecutionID(name string) string {
	return m.sup.Store().LatestID(name)
}

// LatestLogs returns up to maxLines trailing lines of the named stream from
// the most recent execution of name. maxLines <= 0 returns the whole file.
func (m *Manager) LatestLogs(name, stream string, maxLines int) (string, error) {
	id := m.sup.Store().LatestID(name)
	if id == "" {
		return "", fmt.Errorf("no executions recorded for %s", name)
	}
	return m.ExecutionLogs(name, id, stream, maxLines)
}

// ExecutionLogs reads the named stream of a specific execution.
func (m *Manager) ExecutionLogs(name, id, stream string, maxLines int) (string, error) {
	path, err := m.sup.Store().LogPath(name, id, stream)
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s log for %s/%s: %w", stream, name, id, err)
	}
	return tail(string(b), maxLines), nil
}

// tail keeps the last n lines of s, preserving the trailing newline.
func tail(s string, n int) string {
	if n <= 0 {
		return s
	}
	trimmed := strings.TrimSuffix(s, "\n")
	if trimmed == "" {
		return s
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) <= n {
		return s
	}
	out := strings.Join(lines[len(lines)-n:], "\n")
	if strings.HasSuffix(s, "\n") {
		out += "\n"
	}
	return out
}
