package execution

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// Execution ids are fixed-width timestamps (date, time, microseconds), so
// lexicographic order equals chronological order and the latest execution of
// a process is simply the greatest id among its durable artifacts.
const idTimeLayout = "20060102_150405"

const idLen = len(idTimeLayout) + 1 + 6 // YYYYMMDD_HHMMSS_uuuuuu

// IDGenerator hands out strictly increasing execution ids.
type IDGenerator struct {
	mu   sync.Mutex
	last string
}

// Next returns a new id strictly greater than any previous one from this
// generator. Two calls within the same microsecond are nudged forward until
// the encoding differs.
func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := time.Now()
	id := formatID(now)
	for id <= g.last {
		now = now.Add(time.Microsecond)
		id = formatID(now)
	}
	g.last = id
	return id
}

func formatID(t time.Time) string {
	return fmt.Sprintf("%s_%06d", t.Format(idTimeLayout), t.Nanosecond()/1000)
}

// ParseIDTime recovers the start timestamp encoded in an execution id.
func ParseIDTime(id string) (time.Time, error) {
	if len(id) != idLen {
		return time.Time{}, fmt.Errorf("malformed execution id %q", id)
	}
	base, err := time.ParseInLocation(idTimeLayout, id[:len(idTimeLayout)], time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed execution id %q: %w", id, err)
	}
	micros, err := strconv.Atoi(id[len(idTimeLayout)+1:])
	if err != nil {
		return time.Time{}, errors.New("malformed execution id " + strconv.Quote(id))
	}
	return base.Add(time.Duration(micros) * time.Microsecond), nil
}
