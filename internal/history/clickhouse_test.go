package history

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupClickHouseContainer starts a ClickHouse container and returns its
// native-protocol address.
func setupClickHouseContainer(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	t.Helper()

	container, err := clickhouse.Run(ctx,
		"clickhouse/clickhouse-server:24.3.2.23",
		clickhouse.WithUsername("default"),
		clickhouse.WithPassword(""),
		clickhouse.WithDatabase("default"),
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/ping").
				WithPort("8123/tcp").
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start ClickHouse container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "9000")
	if err != nil {
		t.Fatalf("Failed to get mapped port: %v", err)
	}
	return container, host + ":" + port.Port()
}

// setupClickHouseSink creates a sink and the table it writes into.
func setupClickHouseSink(ctx context.Context, t *testing.T, addr, table string) *ClickHouseSink {
	t.Helper()

	sink, err := NewClickHouseSink(addr, table)
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}

	err = sink.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+table+` (
			event String,
			occurred_at DateTime64(6),
			name String,
			execution_id String,
			pid Int64,
			status String,
			exit_code Int32,
			duration_sec Float64
		) ENGINE = MergeTree()
		ORDER BY (occurred_at, execution_id)
	`)
	if err != nil {
		t.Fatalf("Failed to create table: %v", err)
	}
	return sink
}

func TestClickHouseSinkIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	container, addr := setupClickHouseContainer(ctx, t)
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate ClickHouse container: %v", err)
		}
	}()

	sink := setupClickHouseSink(ctx, t, addr, "execution_history")
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	for _, typ := range []EventType{EventStarted, EventFinished} {
		if err := sink.Send(ctx, sampleEvent(typ)); err != nil {
			t.Fatalf("Failed to send %s event: %v", typ, err)
		}
	}

	// MergeTree inserts become visible to SELECT almost immediately, but
	// leave the server a moment to flush.
	time.Sleep(100 * time.Millisecond)

	row := sink.conn.QueryRow(ctx,
		"SELECT COUNT(*) FROM execution_history WHERE execution_id = ?",
		"20240101_120000_000001")
	var count uint64
	if err := row.Scan(&count); err != nil {
		t.Fatalf("Failed to query count: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 events, got %d", count)
	}
}

func TestClickHouseSinkConnectionError(t *testing.T) {
	if _, err := NewClickHouseSink("invalid-host:9000", "execution_history"); err == nil {
		t.Error("Expected error with invalid connection, got nil")
	}
}

func TestClickHouseSinkSendContextCancellation(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	container, addr := setupClickHouseContainer(ctx, t)
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate ClickHouse container: %v", err)
		}
	}()

	sink := setupClickHouseSink(ctx, t, addr, "execution_history")
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	cancelCtx, cancel := context.WithCancel(ctx)
	cancel()

	if err := sink.Send(cancelCtx, sampleEvent(EventStarted)); err != nil {
		t.Logf("Send with cancelled context: %v", err)
	}
}
