package ingest

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/nats-io/nats.go"

	"flight_fusion/internal/storage"
	"flight_fusion/internal/timeparse"
)

// ReplaySource pulls recorded packets from the replay store in stored-at
// order over a half-open window [from, until).
type ReplaySource struct {
	db       *storage.ReplayDB
	cur      storage.PacketCursor
	until    time.Time
	pageSize int
	buf      []storage.ReplayPacket
	done     bool
}

// NewReplaySource creates a windowed source over the replay store.
func NewReplaySource(db *storage.ReplayDB, from, until time.Time) *ReplaySource {
	return &ReplaySource{
		db: db,
		// Strictly-after cursor semantics: start one millisecond early at
		// the highest id so packets stamped exactly at from are included.
		cur:      storage.PacketCursor{StoredAt: from.Add(-time.Millisecond), ID: math.MaxUint64},
		until:    until,
		pageSize: 500,
	}
}

// Next returns the next packet in the window, or io.EOF once drained.
func (s *ReplaySource) Next(ctx context.Context) (*RawPacket, error) {
	if len(s.buf) == 0 {
		if s.done {
			return nil, io.EOF
		}
		page, err := s.db.PacketsAfter(ctx, s.cur, s.until, s.pageSize)
		if err != nil {
			return nil, fmt.Errorf("page replay window: %w", err)
		}
		if len(page) == 0 {
			s.done = true
			return nil, io.EOF
		}
		last := page[len(page)-1]
		s.cur = storage.PacketCursor{StoredAt: last.StoredAt, ID: last.ID}
		if len(page) < s.pageSize {
			s.done = true
		}
		s.buf = page
	}

	p := s.buf[0]
	s.buf = s.buf[1:]
	return &RawPacket{Body: p.Payload, StoredAt: p.StoredAt}, nil
}

// Close releases nothing; the replay store connection outlives the window.
func (s *ReplaySource) Close() error {
	return nil
}

// NATSSource tails live packets from a NATS subject. Each message body is
// one encoded packet; a Stored-At header overrides the arrival instant.
type NATSSource struct {
	conn *nats.Conn
	sub  *nats.Subscription
	msgs chan *nats.Msg
}

// NewNATSSource connects to a NATS server and subscribes to the packet
// subject.
func NewNATSSource(url, subject string) (*NATSSource, error) {
	conn, err := nats.Connect(url,
		nats.Name("flight-fusion-tail"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	msgs := make(chan *nats.Msg, 1024)
	sub, err := conn.ChanSubscribe(subject, msgs)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}

	return &NATSSource{conn: conn, sub: sub, msgs: msgs}, nil
}

// Next blocks for the next live packet. It never returns io.EOF on its own;
// cancel the context to stop tailing.
func (s *NATSSource) Next(ctx context.Context) (*RawPacket, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case m, ok := <-s.msgs:
		if !ok {
			return nil, io.EOF
		}
		storedAt := time.Now().UTC()
		if h := m.Header.Get("Stored-At"); h != "" {
			if ts, err := timeparse.ParseInstant(h); err == nil {
				storedAt = ts
			}
		}
		return &RawPacket{Body: m.Data, StoredAt: storedAt}, nil
	}
}

// Close unsubscribes and drops the connection.
func (s *NATSSource) Close() error {
	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
	s.conn.Close()
	return nil
}
