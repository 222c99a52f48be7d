package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ReplayConfig holds replay store connection settings.
type ReplayConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// ReplayDB wraps a ClickHouse connection holding the recorded surveillance
// packet stream.
type ReplayDB struct {
	conn driver.Conn
}

// Conn returns the underlying ClickHouse connection for direct queries.
func (d *ReplayDB) Conn() driver.Conn {
	return d.conn
}

// OpenReplay opens a connection to the replay store.
func OpenReplay(ctx context.Context, cfg ReplayConfig) (*ReplayDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open replay store: %w", err)
	}

	// Test the connection.
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping replay store: %w", err)
	}

	return &ReplayDB{conn: conn}, nil
}

// Close closes the replay store connection.
func (d *ReplayDB) Close() error {
	return d.conn.Close()
}

// Ping reports whether the replay store is reachable.
func (d *ReplayDB) Ping(ctx context.Context) error {
	return d.conn.Ping(ctx)
}

// CreateSchema creates the replay packet table.
func (d *ReplayDB) CreateSchema(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS replay_packets (
		id          UInt64,
		stored_at   DateTime64(3),
		payload     String,
		created_at  DateTime64(3) DEFAULT now64(3)
	)
	ENGINE = MergeTree()
	PARTITION BY toYYYYMM(stored_at)
	ORDER BY (stored_at, id)
	SETTINGS index_granularity = 8192`

	if err := d.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("create replay schema: %w", err)
	}
	return nil
}

// ReplayPacket is one recorded surveillance packet: the raw encoded body
// plus the instant the recorder stored it.
type ReplayPacket struct {
	ID       uint64
	StoredAt time.Time
	Payload  []byte
}

// PacketCursor marks a position in the stored-at ordering. The zero value
// starts before the first packet.
type PacketCursor struct {
	StoredAt time.Time
	ID       uint64
}

// InsertPackets stores a batch of recorded packets.
func (d *ReplayDB) InsertPackets(ctx context.Context, packets []ReplayPacket) error {
	if len(packets) == 0 {
		return nil
	}

	batch, err := d.conn.PrepareBatch(ctx, `
		INSERT INTO replay_packets (id, stored_at, payload)
	`)
	if err != nil {
		return fmt.Errorf("prepare packet batch: %w", err)
	}

	for _, p := range packets {
		if err := batch.Append(p.ID, p.StoredAt, string(p.Payload)); err != nil {
			return fmt.Errorf("append packet to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send packet batch: %w", err)
	}
	return nil
}

// PacketsAfter pulls the next page of packets strictly after the cursor and
// strictly before until, in stored-at order. The cursor includes the packet
// id so packets sharing a millisecond are never skipped.
func (d *ReplayDB) PacketsAfter(ctx context.Context, cur PacketCursor, until time.Time, limit int) ([]ReplayPacket, error) {
	if limit <= 0 {
		limit = 500
	}
	after := cur.StoredAt
	if after.IsZero() {
		// DateTime64 starts at 1900; the zero time.Time is before that.
		after = time.Unix(0, 0)
	}

	rows, err := d.conn.Query(ctx, `
		SELECT id, stored_at, payload
		FROM replay_packets
		WHERE (stored_at, id) > (?, ?) AND stored_at < ?
		ORDER BY stored_at, id
		LIMIT ?
	`, after, cur.ID, until, limit)
	if err != nil {
		return nil, fmt.Errorf("query replay packets: %w", err)
	}
	defer rows.Close()

	var packets []ReplayPacket
	for rows.Next() {
		var p ReplayPacket
		var payload string
		if err := rows.Scan(&p.ID, &p.StoredAt, &payload); err != nil {
			return nil, fmt.Errorf("scan replay packet: %w", err)
		}
		p.Payload = []byte(payload)
		packets = append(packets, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate replay packets: %w", err)
	}
	return packets, nil
}

// CountPackets returns how many packets fall in [from, until).
func (d *ReplayDB) CountPackets(ctx context.Context, from, until time.Time) (uint64, error) {
	var count uint64
	row := d.conn.QueryRow(ctx,
		`SELECT count() FROM replay_packets WHERE stored_at >= ? AND stored_at < ?`, from, until)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count replay packets: %w", err)
	}
	return count, nil
}

// MaxPacketID returns the largest packet id in the table.
func (d *ReplayDB) MaxPacketID(ctx context.Context) (uint64, error) {
	var maxID uint64
	row := d.conn.QueryRow(ctx, `SELECT max(id) FROM replay_packets`)
	if err := row.Scan(&maxID); err != nil {
		return 0, fmt.Errorf("max packet id: %w", err)
	}
	return maxID, nil
}

// ReplayStats describes the extent of the recorded stream.
type ReplayStats struct {
	TotalPackets uint64    `json:"totalPackets"`
	Earliest     time.Time `json:"earliestStoredAt"`
	Latest       time.Time `json:"latestStoredAt"`
}

// GetReplayStats returns the packet count and stored-at range.
func (d *ReplayDB) GetReplayStats(ctx context.Context) (*ReplayStats, error) {
	stats := &ReplayStats{}
	row := d.conn.QueryRow(ctx,
		`SELECT count(), min(stored_at), max(stored_at) FROM replay_packets`)
	if err := row.Scan(&stats.TotalPackets, &stats.Earliest, &stats.Latest); err != nil {
		return nil, fmt.Errorf("replay stats: %w", err)
	}
	return stats, nil
}
