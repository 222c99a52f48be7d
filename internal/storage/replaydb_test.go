package storage

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"
)

// setupTestReplay creates a test replay store connection.
// Returns nil if no ClickHouse connection is available.
func setupTestReplay(t *testing.T) *ReplayDB {
	t.Helper()

	host := os.Getenv("CLICKHOUSE_HOST")
	if host == "" {
		host = "localhost"
	}
	port := 9000
	if p := os.Getenv("CLICKHOUSE_PORT"); p != "" {
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}
	user := os.Getenv("CLICKHOUSE_USER")
	if user == "" {
		user = "default"
	}
	database := os.Getenv("CLICKHOUSE_DB")
	if database == "" {
		database = "default"
	}

	ctx := context.Background()
	db, err := OpenReplay(ctx, ReplayConfig{
		Host:     host,
		Port:     port,
		Database: database,
		User:     user,
		Password: os.Getenv("CLICKHOUSE_PASSWORD"),
	})
	if err != nil {
		return nil
	}

	if err := db.CreateSchema(ctx); err != nil {
		_ = db.Close()
		return nil
	}
	return db
}

func TestPacketPaging(t *testing.T) {
	db := setupTestReplay(t)
	if db == nil {
		t.Skip("No ClickHouse connection available")
	}
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	if err := db.conn.Exec(ctx, `TRUNCATE TABLE replay_packets`); err != nil {
		t.Fatalf("truncate replay_packets: %v", err)
	}

	base := time.Date(2025, 7, 10, 22, 0, 0, 0, time.UTC)
	packets := []ReplayPacket{
		{ID: 1, StoredAt: base, Payload: []byte("p1")},
		{ID: 2, StoredAt: base.Add(time.Second), Payload: []byte("p2")},
		// Two packets on the same millisecond: the id tiebreak must keep
		// both.
		{ID: 3, StoredAt: base.Add(2 * time.Second), Payload: []byte("p3")},
		{ID: 4, StoredAt: base.Add(2 * time.Second), Payload: []byte("p4")},
		{ID: 5, StoredAt: base.Add(3 * time.Second), Payload: []byte("p5")},
	}
	if err := db.InsertPackets(ctx, packets); err != nil {
		t.Fatalf("insert packets: %v", err)
	}

	until := base.Add(time.Hour)
	var got []ReplayPacket
	cur := PacketCursor{}
	for {
		page, err := db.PacketsAfter(ctx, cur, until, 2)
		if err != nil {
			t.Fatalf("page packets: %v", err)
		}
		if len(page) == 0 {
			break
		}
		got = append(got, page...)
		last := page[len(page)-1]
		cur = PacketCursor{StoredAt: last.StoredAt, ID: last.ID}
	}

	if len(got) != len(packets) {
		t.Fatalf("expected %d packets, got %d", len(packets), len(got))
	}
	for i, p := range got {
		if p.ID != packets[i].ID {
			t.Errorf("packet %d id = %d, want %d", i, p.ID, packets[i].ID)
		}
		if string(p.Payload) != string(packets[i].Payload) {
			t.Errorf("packet %d payload = %q, want %q", i, p.Payload, packets[i].Payload)
		}
	}
}

func TestCountPacketsWindow(t *testing.T) {
	db := setupTestReplay(t)
	if db == nil {
		t.Skip("No ClickHouse connection available")
	}
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	if err := db.conn.Exec(ctx, `TRUNCATE TABLE replay_packets`); err != nil {
		t.Fatalf("truncate replay_packets: %v", err)
	}

	base := time.Date(2025, 7, 10, 22, 0, 0, 0, time.UTC)
	var packets []ReplayPacket
	for i := 0; i < 10; i++ {
		packets = append(packets, ReplayPacket{
			ID:       uint64(i + 1),
			StoredAt: base.Add(time.Duration(i) * time.Minute),
			Payload:  []byte(fmt.Sprintf("p%d", i)),
		})
	}
	if err := db.InsertPackets(ctx, packets); err != nil {
		t.Fatalf("insert packets: %v", err)
	}

	// [22:02, 22:05) covers minutes 2, 3 and 4.
	count, err := db.CountPackets(ctx, base.Add(2*time.Minute), base.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("count packets: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}

	stats, err := db.GetReplayStats(ctx)
	if err != nil {
		t.Fatalf("replay stats: %v", err)
	}
	if stats.TotalPackets != 10 {
		t.Errorf("totalPackets = %d, want 10", stats.TotalPackets)
	}
	if !stats.Earliest.Equal(base) {
		t.Errorf("earliest = %v, want %v", stats.Earliest, base)
	}
}
