package replay

import (
	"testing"
	"time"
)

func samplePacket() *ReplayPath {
	return &ReplayPath{
		ListFlightIntention: []FlightIntention{
			{
				PlanID:                   17879345,
				Indicative:               "TAM3886",
				AircraftType:             "A320",
				Airline:                  "TAM",
				StartPointIndicative:     "SBSP",
				EndPointIndicative:       "SBRJ",
				CruiseLevel:              350,
				CruiseSpeed:              450,
				FlightPlanDate:           "2025-07-11T00:00:00Z",
				CurrentDateTimeOfArrival: "2025-07-11T01:30:00Z",
			},
		},
		ListRealPath: []RealPathPoint{
			{
				PlanID:         17879345,
				IndicativeSafe: "TAM3886",
				Latitude:       -0.412,
				Longitude:      -0.813,
				FlightLevel:    2,
				TrackSpeed:     140,
				SeqNum:         1,
				Kinematic:      &Kinematic{DetectorSource: "RADAR"},
			},
		},
	}
}

func TestDecodePacketMsgpack(t *testing.T) {
	storedAt := time.UnixMilli(1720660000000).UTC()

	raw, err := EncodePacket(samplePacket())
	if err != nil {
		t.Fatalf("EncodePacket: %v", err)
	}

	got, err := DecodePacket(raw, storedAt)
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}

	if got.PacketStoredTimestamp != 1720660000000 {
		t.Errorf("PacketStoredTimestamp = %d, want 1720660000000", got.PacketStoredTimestamp)
	}
	if len(got.ListFlightIntention) != 1 {
		t.Fatalf("got %d intentions, want 1", len(got.ListFlightIntention))
	}
	if got.ListFlightIntention[0].PlanID != 17879345 {
		t.Errorf("intention planId = %d, want 17879345", got.ListFlightIntention[0].PlanID)
	}
	if got.ListFlightIntention[0].Indicative != "TAM3886" {
		t.Errorf("intention indicative = %q, want TAM3886", got.ListFlightIntention[0].Indicative)
	}
	if len(got.ListRealPath) != 1 {
		t.Fatalf("got %d path points, want 1", len(got.ListRealPath))
	}
	if got.ListRealPath[0].Latitude != -0.412 {
		t.Errorf("point latitude = %v, want -0.412", got.ListRealPath[0].Latitude)
	}
	if got.ListRealPath[0].DetectorSource() != "RADAR" {
		t.Errorf("detector source = %q, want RADAR", got.ListRealPath[0].DetectorSource())
	}
}

func TestDecodePacketJSON(t *testing.T) {
	raw := []byte(`{
		"packetStoredTimestamp": 1,
		"listFlightIntention": [{"planId": "17879345", "indicative": "TAM3886"}],
		"listRealPath": [{"planId": 17879345, "indicativeSafe": "TAM3886", "latitude": -0.412, "longitude": -0.813, "flightLevel": 2, "trackSpeed": 140}]
	}`)

	got, err := DecodePacket(raw, time.UnixMilli(1720660000000).UTC())
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}

	if got.PacketStoredTimestamp != 1720660000000 {
		t.Errorf("PacketStoredTimestamp = %d, want the store instant, not the embedded one", got.PacketStoredTimestamp)
	}
	if got.ListFlightIntention[0].PlanID != 17879345 {
		t.Errorf("quoted planId = %d, want 17879345", got.ListFlightIntention[0].PlanID)
	}
	if got.ListRealPath[0].TrackSpeed != 140 {
		t.Errorf("trackSpeed = %v, want 140", got.ListRealPath[0].TrackSpeed)
	}
}

func TestDecodePacketJSONWithLeadingWhitespace(t *testing.T) {
	raw := []byte("\n\t {\"listFlightIntention\": []}")
	if _, err := DecodePacket(raw, time.Now()); err != nil {
		t.Errorf("whitespace-prefixed JSON should decode, got %v", err)
	}
}

func TestDecodePacketFailures(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{name: "empty payload", raw: nil},
		{name: "binary garbage", raw: []byte{0xc1, 0xff, 0x00, 0x17}},
		{name: "json garbage", raw: []byte(`{"listRealPath": "nope"}`)},
		{name: "empty object", raw: []byte(`{}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, err := DecodePacket(tt.raw, time.Now()); err == nil {
				t.Errorf("DecodePacket(%q) = %+v, want error", tt.raw, got)
			}
		})
	}
}

func TestFlexInt64(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want FlexInt64
	}{
		{name: "number", in: `17879345`, want: 17879345},
		{name: "quoted number", in: `"17879345"`, want: 17879345},
		{name: "empty string", in: `""`, want: 0},
		{name: "unparseable string", in: `"abc"`, want: 0},
		{name: "null", in: `null`, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f FlexInt64
			if err := f.UnmarshalJSON([]byte(tt.in)); err != nil {
				t.Fatalf("UnmarshalJSON(%s): %v", tt.in, err)
			}
			if f != tt.want {
				t.Errorf("FlexInt64(%s) = %d, want %d", tt.in, f, tt.want)
			}
		})
	}
}
