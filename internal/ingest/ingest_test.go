package ingest

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"flight_fusion/internal/replay"
	"flight_fusion/internal/storage"
)

type sliceSource struct {
	packets []*RawPacket
	i       int
}

func (s *sliceSource) Next(ctx context.Context) (*RawPacket, error) {
	if s.i >= len(s.packets) {
		return nil, io.EOF
	}
	p := s.packets[s.i]
	s.i++
	return p, nil
}

func (s *sliceSource) Close() error { return nil }

func newIngestStore(t *testing.T) *storage.DocStore {
	t.Helper()
	store, err := storage.OpenDocStore("")
	if err != nil {
		t.Fatalf("open document store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestIngester(t *testing.T, store *storage.DocStore) *Ingester {
	t.Helper()
	return New(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func encodePacket(t *testing.T, path *replay.ReplayPath) []byte {
	t.Helper()
	body, err := replay.EncodePacket(path)
	if err != nil {
		t.Fatalf("encode packet: %v", err)
	}
	return body
}

func TestIngestCreateThenAppend(t *testing.T) {
	store := newIngestStore(t)
	ing := newTestIngester(t, store)
	ctx := context.Background()

	body := encodePacket(t, &replay.ReplayPath{
		ListFlightIntention: []replay.FlightIntention{{
			PlanID:                   17879345,
			Indicative:               "TAM3886",
			FlightPlanDate:           "2025-07-11T00:00:00Z",
			CurrentDateTimeOfArrival: "2025-07-11T01:30:00Z",
		}},
		ListRealPath: []replay.RealPathPoint{{
			IndicativeSafe: "TAM3886",
			Latitude:       -0.412,
			Longitude:      -0.813,
			FlightLevel:    2,
			TrackSpeed:     140,
		}},
	})
	packet := &RawPacket{Body: body, StoredAt: time.UnixMilli(1720660000000)}

	res, err := ing.Run(ctx, &sliceSource{packets: []*RawPacket{packet}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.NewFlights != 1 {
		t.Errorf("newFlights = %d, want 1", res.NewFlights)
	}
	if res.PointsAppended != 1 {
		t.Errorf("pointsAppended = %d, want 1", res.PointsAppended)
	}

	f, err := store.GetFlightByPlanID(ctx, 17879345)
	if err != nil {
		t.Fatalf("get flight: %v", err)
	}
	if f == nil {
		t.Fatal("expected flight to be created")
	}
	if f.TotalTrackingPoints != 1 {
		t.Errorf("totalTrackingPoints = %d, want 1", f.TotalTrackingPoints)
	}
	if !f.HasTrackingData {
		t.Error("expected hasTrackingData true")
	}
	if f.LastPacketTimestamp != 1720660000000 {
		t.Errorf("lastPacketTimestamp = %d, want 1720660000000", f.LastPacketTimestamp)
	}
	if f.TrackingPoints[0].Timestamp != 1720660000000 {
		t.Errorf("point timestamp = %d, want packet stored-at", f.TrackingPoints[0].Timestamp)
	}

	// Replaying the identical packet is a no-op on content.
	res, err = ing.Run(ctx, &sliceSource{packets: []*RawPacket{packet}})
	if err != nil {
		t.Fatalf("replay run: %v", err)
	}
	if res.NewFlights != 0 || res.UpdatedFlights != 0 {
		t.Errorf("replay counted newFlights=%d updatedFlights=%d, want 0 and 0", res.NewFlights, res.UpdatedFlights)
	}
	if res.PointsDuplicate != 1 {
		t.Errorf("pointsDuplicate = %d, want 1", res.PointsDuplicate)
	}

	f, err = store.GetFlightByPlanID(ctx, 17879345)
	if err != nil {
		t.Fatalf("get flight after replay: %v", err)
	}
	if f.TotalTrackingPoints != 1 {
		t.Errorf("totalTrackingPoints after replay = %d, want 1", f.TotalTrackingPoints)
	}
	if f.LastPacketTimestamp != 1720660000000 {
		t.Errorf("lastPacketTimestamp after replay = %d, want unchanged", f.LastPacketTimestamp)
	}
}

func TestIngestDisambiguatesByWindow(t *testing.T) {
	store := newIngestStore(t)
	ing := newTestIngester(t, store)
	ctx := context.Background()

	day := func(h, m int) time.Time {
		return time.Date(2025, 7, 11, h, m, 0, 0, time.UTC)
	}

	seed := func(planID int64, dep, arr time.Time) {
		t.Helper()
		err := store.UpsertFlight(ctx, &storage.Flight{
			PlanID:                   planID,
			Indicative:               "TAM3886",
			FlightPlanDate:           dep.Format(time.RFC3339),
			CurrentDateTimeOfArrival: arr.Format(time.RFC3339),
			TrackingPoints:           []storage.TrackingPoint{},
		})
		if err != nil {
			t.Fatalf("seed flight %d: %v", planID, err)
		}
	}
	seed(1, day(0, 0), day(1, 30))
	seed(2, day(3, 0), day(4, 30))

	send := func(at time.Time, lat float64) *Result {
		t.Helper()
		body := encodePacket(t, &replay.ReplayPath{
			ListRealPath: []replay.RealPathPoint{{
				IndicativeSafe: "TAM3886",
				Latitude:       lat,
				Longitude:      -0.813,
			}},
		})
		res, err := ing.Run(ctx, &sliceSource{packets: []*RawPacket{{Body: body, StoredAt: at}}})
		if err != nil {
			t.Fatalf("run packet at %v: %v", at, err)
		}
		return res
	}

	// 01:00 falls inside flight 1's window.
	send(day(1, 0), -0.4101)
	// 04:00 falls inside flight 2's window.
	send(day(4, 0), -0.4102)
	// 07:00 is hours outside both windows and must be discarded.
	res := send(day(7, 0), -0.4103)
	if res.PointsDiscarded != 1 {
		t.Errorf("pointsDiscarded = %d, want 1", res.PointsDiscarded)
	}

	a, err := store.GetFlightByPlanID(ctx, 1)
	if err != nil {
		t.Fatalf("get flight 1: %v", err)
	}
	if a.TotalTrackingPoints != 1 {
		t.Errorf("flight 1 points = %d, want 1", a.TotalTrackingPoints)
	}
	if a.TrackingPoints[0].Latitude != -0.4101 {
		t.Errorf("flight 1 got latitude %f, want -0.4101", a.TrackingPoints[0].Latitude)
	}

	b, err := store.GetFlightByPlanID(ctx, 2)
	if err != nil {
		t.Fatalf("get flight 2: %v", err)
	}
	if b.TotalTrackingPoints != 1 {
		t.Errorf("flight 2 points = %d, want 1", b.TotalTrackingPoints)
	}
	if b.TrackingPoints[0].Latitude != -0.4102 {
		t.Errorf("flight 2 got latitude %f, want -0.4102", b.TrackingPoints[0].Latitude)
	}
}

func TestChooseFlight(t *testing.T) {
	window := func(planID int64, dep, arr string) *storage.Flight {
		return &storage.Flight{
			PlanID:                   planID,
			Indicative:               "TAM3886",
			FlightPlanDate:           dep,
			CurrentDateTimeOfArrival: arr,
		}
	}
	at := func(h, m int) int64 {
		return time.Date(2025, 7, 11, h, m, 0, 0, time.UTC).UnixMilli()
	}

	a := window(1, "2025-07-11T00:00:00Z", "2025-07-11T01:30:00Z")
	b := window(2, "2025-07-11T03:00:00Z", "2025-07-11T04:30:00Z")
	broken := window(3, "not a date", "also not a date")

	tests := []struct {
		name       string
		candidates []*storage.Flight
		packetTs   int64
		want       int64 // planId; 0 means no assignment
	}{
		{"no candidates", nil, at(1, 0), 0},
		{"single candidate wins even outside window", []*storage.Flight{b}, at(1, 0), 2},
		{"containment picks first", []*storage.Flight{a, b}, at(1, 0), 1},
		{"containment later window", []*storage.Flight{a, b}, at(4, 0), 2},
		{"near miss within tolerance", []*storage.Flight{a, b}, at(1, 45), 1},
		{"between windows closer to second", []*storage.Flight{a, b}, at(2, 45), 2},
		{"outside tolerance of both", []*storage.Flight{a, b}, at(7, 0), 0},
		{"unparseable window excluded", []*storage.Flight{broken, b}, at(3, 30), 2},
		{"zero timestamp with several candidates", []*storage.Flight{a, b}, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ChooseFlight(tt.candidates, tt.packetTs)
			var gotID int64
			if got != nil {
				gotID = got.PlanID
			}
			if gotID != tt.want {
				t.Errorf("chose planId %d, want %d", gotID, tt.want)
			}
		})
	}
}

func TestIngestSkipsUndecodablePackets(t *testing.T) {
	store := newIngestStore(t)
	ing := newTestIngester(t, store)

	good := encodePacket(t, &replay.ReplayPath{
		ListFlightIntention: []replay.FlightIntention{{PlanID: 5, Indicative: "GLO1234"}},
	})
	src := &sliceSource{packets: []*RawPacket{
		{Body: []byte("not a packet"), StoredAt: time.UnixMilli(1720660000000)},
		{Body: good, StoredAt: time.UnixMilli(1720660001000)},
	}}

	res, err := ing.Run(context.Background(), src)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.PacketsSkipped != 1 {
		t.Errorf("packetsSkipped = %d, want 1", res.PacketsSkipped)
	}
	if res.PacketsProcessed != 1 {
		t.Errorf("packetsProcessed = %d, want 1", res.PacketsProcessed)
	}
	if res.NewFlights != 1 {
		t.Errorf("newFlights = %d, want 1", res.NewFlights)
	}
}

func TestIngestDropsZeroPlanIDIntentions(t *testing.T) {
	store := newIngestStore(t)
	ing := newTestIngester(t, store)
	ctx := context.Background()

	body := encodePacket(t, &replay.ReplayPath{
		ListFlightIntention: []replay.FlightIntention{{PlanID: 0, Indicative: "TAM3886"}},
	})

	res, err := ing.Run(ctx, &sliceSource{packets: []*RawPacket{{Body: body, StoredAt: time.UnixMilli(1720660000000)}}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.NewFlights != 0 {
		t.Errorf("newFlights = %d, want 0", res.NewFlights)
	}

	n, err := store.CountFlights(ctx)
	if err != nil {
		t.Fatalf("count flights: %v", err)
	}
	if n != 0 {
		t.Errorf("stored flights = %d, want 0", n)
	}
}

func TestIngestDiscardsUnknownIndicative(t *testing.T) {
	store := newIngestStore(t)
	ing := newTestIngester(t, store)

	body := encodePacket(t, &replay.ReplayPath{
		ListRealPath: []replay.RealPathPoint{
			{IndicativeSafe: "DAL9999", Latitude: -0.4, Longitude: -0.8},
			{IndicativeSafe: "   ", Latitude: -0.4, Longitude: -0.8},
		},
	})

	res, err := ing.Run(context.Background(), &sliceSource{packets: []*RawPacket{{Body: body, StoredAt: time.UnixMilli(1720660000000)}}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// One point has no flight, the other no indicative at all.
	if res.PointsDiscarded != 2 {
		t.Errorf("pointsDiscarded = %d, want 2", res.PointsDiscarded)
	}
	if res.PointsAppended != 0 {
		t.Errorf("pointsAppended = %d, want 0", res.PointsAppended)
	}
}

func TestIngestTrimsIndicativeOnGrouping(t *testing.T) {
	store := newIngestStore(t)
	ing := newTestIngester(t, store)
	ctx := context.Background()

	err := store.UpsertFlight(ctx, &storage.Flight{
		PlanID:         9,
		Indicative:     "AZU4521",
		TrackingPoints: []storage.TrackingPoint{},
	})
	if err != nil {
		t.Fatalf("seed flight: %v", err)
	}

	body := encodePacket(t, &replay.ReplayPath{
		ListRealPath: []replay.RealPathPoint{{
			IndicativeSafe: "  AZU4521  ",
			Latitude:       -0.41,
			Longitude:      -0.81,
		}},
	})

	res, err := ing.Run(ctx, &sliceSource{packets: []*RawPacket{{Body: body, StoredAt: time.UnixMilli(1720660000000)}}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.PointsAppended != 1 {
		t.Errorf("pointsAppended = %d, want 1", res.PointsAppended)
	}

	f, err := store.GetFlightByPlanID(ctx, 9)
	if err != nil {
		t.Fatalf("get flight: %v", err)
	}
	if f.TotalTrackingPoints != 1 {
		t.Errorf("points = %d, want 1", f.TotalTrackingPoints)
	}
	if f.TrackingPoints[0].IndicativeSafe != "AZU4521" {
		t.Errorf("stored indicativeSafe = %q, want trimmed", f.TrackingPoints[0].IndicativeSafe)
	}
}
