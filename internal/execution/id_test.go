package execution

import (
	"testing"
	"time"
)

func TestIDsStrictlyIncreasing(t *testing.T) {
	var g IDGenerator
	prev := ""
	for i := 0; i < 1000; i++ {
		id := g.Next()
		if len(id) != idLen {
			t.Fatalf("id %q has wrong width", id)
		}
		if id <= prev {
			t.Fatalf("id %q not greater than previous %q", id, prev)
		}
		prev = id
	}
}

func TestParseIDTime(t *testing.T) {
	var g IDGenerator
	before := time.Now().Add(-time.Second)
	id := g.Next()
	after := time.Now().Add(time.Second)

	ts, err := ParseIDTime(id)
	if err != nil {
		t.Fatalf("ParseIDTime: %v", err)
	}
	if ts.Before(before) || ts.After(after) {
		t.Fatalf("parsed time %v outside [%v, %v]", ts, before, after)
	}
}

func TestParseIDTimeRejectsGarbage(t *testing.T) {
	for _, bad := range []string{"", "202401", "not_an_id_at_all_xx", "20240101_120000_abcdef"} {
		if _, err := ParseIDTime(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
