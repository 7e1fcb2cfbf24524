package execution

import (
	"os"
	"reflect"
	"testing"
)

func TestStoreArtifactRoundTrips(t *testing.T) {
	st := NewStore(t.TempDir())
	if err := st.EnsureDir("job"); err != nil {
		t.Fatalf("EnsureDir: %v", err)
	}

	if err := st.WritePID("job", "20240101_120000_000001", 4242); err != nil {
		t.Fatalf("WritePID: %v", err)
	}
	pid, err := st.ReadPID("job", "20240101_120000_000001")
	if err != nil || pid != 4242 {
		t.Fatalf("ReadPID: pid=%d err=%v", pid, err)
	}
	if !st.HasPID("job", "20240101_120000_000001") {
		t.Fatalf("HasPID should be true")
	}
	st.RemovePID("job", "20240101_120000_000001")
	if st.HasPID("job", "20240101_120000_000001") {
		t.Fatalf("HasPID should be false after remove")
	}

	if err := st.WriteExitCode("job", "20240101_120000_000001", -15); err != nil {
		t.Fatalf("WriteExitCode: %v", err)
	}
	code, ok := st.ReadExitCode("job", "20240101_120000_000001")
	if !ok || code != -15 {
		t.Fatalf("ReadExitCode: code=%d ok=%v", code, ok)
	}
	if _, ok := st.ReadExitCode("job", "20240101_999999_000000"); ok {
		t.Fatalf("missing exit code file must report ok=false")
	}

	args := []string{"--fast", "-n", "3"}
	if err := st.WriteArgs("job", "20240101_120000_000001", args); err != nil {
		t.Fatalf("WriteArgs: %v", err)
	}
	if got := st.ReadArgs("job", "20240101_120000_000001"); !reflect.DeepEqual(got, args) {
		t.Fatalf("ReadArgs: got %v want %v", got, args)
	}
	if got := st.ReadArgs("job", "20240101_999999_000000"); got != nil {
		t.Fatalf("missing args file must read as nil, got %v", got)
	}
}

func TestLatestIDPicksLexicographicMax(t *testing.T) {
	st := NewStore(t.TempDir())
	if st.LatestID("job") != "" {
		t.Fatalf("expected empty latest id for unknown process")
	}
	if err := st.EnsureDir("job"); err != nil {
		t.Fatalf("EnsureDir: %v", err)
	}
	ids := []string{
		"20240101_120000_000001",
		"20240101_120000_000200",
		"20231231_235959_999999",
	}
	for _, id := range ids {
		if err := os.WriteFile(st.StdoutPath("job", id), nil, 0o600); err != nil {
			t.Fatalf("touch: %v", err)
		}
	}
	// Non-stdout artifacts must not influence the scan.
	if err := os.WriteFile(st.PIDPath("job", "20990101_000000_000000"), nil, 0o600); err != nil {
		t.Fatalf("touch pid: %v", err)
	}
	if got := st.LatestID("job"); got != "20240101_120000_000200" {
		t.Fatalf("LatestID: got %q", got)
	}
}
