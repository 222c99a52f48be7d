package replay

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// DecodePacket converts one stored packet payload into a ReplayPath and
// attaches the store's stored-at instant in milliseconds. MessagePack is the
// native encoding; a payload that starts with a JSON delimiter is decoded as
// JSON instead (export jobs re-emit packets that way). Callers treat any
// error as skip-and-continue.
func DecodePacket(raw []byte, storedAt time.Time) (*ReplayPath, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty packet payload")
	}

	var packet ReplayPath
	if looksLikeJSON(raw) {
		if err := json.Unmarshal(raw, &packet); err != nil {
			return nil, fmt.Errorf("decode json packet: %w", err)
		}
	} else if err := msgpack.Unmarshal(raw, &packet); err != nil {
		return nil, fmt.Errorf("decode msgpack packet: %w", err)
	}

	if packet.ListFlightIntention == nil && packet.ListRealPath == nil {
		return nil, fmt.Errorf("packet carries no intentions and no path points")
	}

	if !storedAt.IsZero() {
		packet.PacketStoredTimestamp = storedAt.UnixMilli()
	}
	return &packet, nil
}

// EncodePacket renders a packet in the native MessagePack form.
func EncodePacket(packet *ReplayPath) ([]byte, error) {
	raw, err := msgpack.Marshal(packet)
	if err != nil {
		return nil, fmt.Errorf("encode packet: %w", err)
	}
	return raw, nil
}

func looksLikeJSON(raw []byte) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case '{', '[':
			return true
		default:
			return false
		}
	}
	return false
}
