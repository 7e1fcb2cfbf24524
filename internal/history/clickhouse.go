package history

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ClickHouseSink sends events to ClickHouse using the official native client.
type ClickHouseSink struct {
	conn  driver.Conn
	table string
}

// NewClickHouseSink connects to addr (host:port, native protocol) and writes
// into table.
func NewClickHouseSink(addr, table string) (*ClickHouseSink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: "default",
			Username: "default",
			Password: "",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}
	return &ClickHouseSink{conn: conn, table: table}, nil
}

func (s *ClickHouseSink) Send(ctx context.Context, e Event) error {
	rec := e.Execution
	exitCode := int32(0)
	if rec.ExitCode != nil {
		exitCode = int32(*rec.ExitCode)
	}
	duration := float64(0)
	if rec.DurationSec != nil {
		duration = *rec.DurationSec
	}
	query := fmt.Sprintf(`INSERT INTO %s (event, occurred_at, name, execution_id, pid, status, exit_code, duration_sec) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, s.table)
	if err := s.conn.Exec(ctx, query,
		string(e.Type),
		e.OccurredAt,
		rec.Name,
		rec.ExecutionID,
		rec.PID,
		string(rec.Status),
		exitCode,
		duration,
	); err != nil {
		return fmt.Errorf("failed to insert event into ClickHouse: %w", err)
	}
	return nil
}

func (s *ClickHouseSink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
