// Package ingest consumes replay packets and folds them into flight
// documents: intentions create flights, tracking points attach to them, and
// duplicate indicatives are disambiguated by the plan time window.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"flight_fusion/internal/geo"
	"flight_fusion/internal/replay"
	"flight_fusion/internal/storage"
	"flight_fusion/internal/timeparse"
)

// disambiguationToleranceMs is the hard limit on how far outside its plan
// window a point group may fall and still be assigned.
const disambiguationToleranceMs = 30 * 60 * 1000

// RawPacket is one encoded packet pulled from a source.
type RawPacket struct {
	Body     []byte
	StoredAt time.Time
}

// PacketSource yields encoded packets in stored-at order.
type PacketSource interface {
	// Next returns the next packet, or io.EOF when the source is drained.
	Next(ctx context.Context) (*RawPacket, error)
	Close() error
}

// PacketResult reports one packet's effect on the flight store.
type PacketResult struct {
	NewFlights      int    `json:"newFlights"`
	UpdatedFlights  int    `json:"updatedFlights"`
	PointsAppended  int    `json:"pointsAppended"`
	PointsDuplicate int    `json:"pointsDuplicate"`
	PointsDiscarded int    `json:"pointsDiscarded"`
	Message         string `json:"message"`
}

// Result aggregates a whole ingestion run.
type Result struct {
	PacketsProcessed int    `json:"packetsProcessed"`
	PacketsSkipped   int    `json:"packetsSkipped"`
	NewFlights       int    `json:"newFlights"`
	UpdatedFlights   int    `json:"updatedFlights"`
	PointsAppended   int    `json:"pointsAppended"`
	PointsDuplicate  int    `json:"pointsDuplicate"`
	PointsDiscarded  int    `json:"pointsDiscarded"`
	Message          string `json:"message"`
}

// Ingester folds packets into the flight store. Packets are applied one at
// a time; the store is effectively single-writer, so there is nothing to
// gain from finer locking.
type Ingester struct {
	store *storage.DocStore
	log   *slog.Logger

	mu sync.Mutex
}

// New creates an ingester over the given flight store.
func New(store *storage.DocStore, log *slog.Logger) *Ingester {
	if log == nil {
		log = slog.Default()
	}
	return &Ingester{store: store, log: log}
}

// Run drains a packet source, applying every packet in order. Undecodable
// packets are skipped and counted; store write failures stop the run with
// the partial result.
func (ing *Ingester) Run(ctx context.Context, src PacketSource) (*Result, error) {
	res := &Result{}
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		pkt, err := src.Next(ctx)
		if err == io.EOF {
			res.Message = fmt.Sprintf("%d packets processed, %d skipped", res.PacketsProcessed, res.PacketsSkipped)
			return res, nil
		}
		if err != nil {
			return res, fmt.Errorf("pull packet: %w", err)
		}

		path, err := replay.DecodePacket(pkt.Body, pkt.StoredAt)
		if err != nil {
			res.PacketsSkipped++
			ing.log.Warn("skipping undecodable packet", "stored_at", pkt.StoredAt, "error", err)
			continue
		}

		pr, err := ing.ProcessPacket(ctx, path)
		res.PacketsProcessed++
		res.NewFlights += pr.NewFlights
		res.UpdatedFlights += pr.UpdatedFlights
		res.PointsAppended += pr.PointsAppended
		res.PointsDuplicate += pr.PointsDuplicate
		res.PointsDiscarded += pr.PointsDiscarded
		if err != nil {
			return res, err
		}
	}
}

// ProcessPacket applies one decoded packet: intentions first, then tracking
// point groups, then one persist per touched flight.
func (ing *Ingester) ProcessPacket(ctx context.Context, path *replay.ReplayPath) (PacketResult, error) {
	ing.mu.Lock()
	defer ing.mu.Unlock()

	var pr PacketResult
	dirty := make(map[int64]*storage.Flight)
	created := make(map[int64]bool)
	var order []int64

	touch := func(f *storage.Flight) {
		if _, ok := dirty[f.PlanID]; !ok {
			order = append(order, f.PlanID)
		}
		dirty[f.PlanID] = f
	}

	// Intentions first: they may create the flight the points below need.
	for i := range path.ListFlightIntention {
		fi := &path.ListFlightIntention[i]
		planID := int64(fi.PlanID)
		if planID == 0 {
			continue
		}

		f := dirty[planID]
		if f == nil {
			var err error
			f, err = ing.store.GetFlightByPlanID(ctx, planID)
			if err != nil {
				return pr, err
			}
		}
		if f == nil {
			f = flightFromIntention(fi, path.PacketStoredTimestamp)
			created[planID] = true
			touch(f)
		} else if path.PacketStoredTimestamp > f.LastPacketTimestamp {
			// Replaying an already-seen packet leaves the flight alone.
			f.LastPacketTimestamp = path.PacketStoredTimestamp
			touch(f)
		}
	}

	groups, groupOrder, unnamed := groupPoints(path.ListRealPath)
	pr.PointsDiscarded += unnamed

	for _, ind := range groupOrder {
		pts := groups[ind]

		candidates, err := ing.candidatesFor(ctx, dirty, order, ind)
		if err != nil {
			return pr, err
		}

		target := ChooseFlight(candidates, path.PacketStoredTimestamp)
		if target == nil {
			pr.PointsDiscarded += len(pts)
			ing.log.Warn("discarding point group with no target flight",
				"indicative", ind, "candidates", len(candidates), "points", len(pts))
			continue
		}

		appended, duplicate := appendPoints(target, pts, path.PacketStoredTimestamp)
		pr.PointsAppended += appended
		pr.PointsDuplicate += duplicate
		if appended > 0 {
			if path.PacketStoredTimestamp > target.LastPacketTimestamp {
				target.LastPacketTimestamp = path.PacketStoredTimestamp
			}
			touch(target)
		}
	}

	// Persist once per flight per packet.
	for _, planID := range order {
		if err := ing.store.UpsertFlight(ctx, dirty[planID]); err != nil {
			return pr, fmt.Errorf("persist flight %d: %w", planID, err)
		}
		if created[planID] {
			pr.NewFlights++
		} else {
			pr.UpdatedFlights++
		}
	}

	pr.Message = fmt.Sprintf("%d new flights, %d updated", pr.NewFlights, pr.UpdatedFlights)
	return pr, nil
}

// candidatesFor lists every flight carrying the indicative, substituting
// in-packet working copies for stored rows and appending flights created
// earlier in the same packet that the store cannot see yet.
func (ing *Ingester) candidatesFor(ctx context.Context, dirty map[int64]*storage.Flight, order []int64, indicative string) ([]*storage.Flight, error) {
	stored, err := ing.store.GetFlightsByIndicative(ctx, indicative)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]bool, len(stored))
	candidates := make([]*storage.Flight, 0, len(stored))
	for _, f := range stored {
		if d, ok := dirty[f.PlanID]; ok {
			candidates = append(candidates, d)
		} else {
			candidates = append(candidates, f)
		}
		seen[f.PlanID] = true
	}
	for _, planID := range order {
		f := dirty[planID]
		if !seen[planID] && f.Indicative == indicative {
			candidates = append(candidates, f)
		}
	}
	return candidates, nil
}

// ChooseFlight picks the flight a point group belongs to. A single
// candidate is taken as-is. With several, a candidate whose plan window
// contains the packet instant wins; failing that, the candidate nearest its
// window within the tolerance. Nothing close enough means no assignment.
func ChooseFlight(candidates []*storage.Flight, packetTs int64) *storage.Flight {
	if len(candidates) == 0 {
		return nil
	}
	if len(candidates) == 1 {
		return candidates[0]
	}
	if packetTs == 0 {
		return nil
	}

	for _, c := range candidates {
		dep, arr, ok := flightWindow(c)
		if ok && dep <= packetTs && packetTs <= arr {
			return c
		}
	}

	var best *storage.Flight
	var bestDist int64
	for _, c := range candidates {
		dep, arr, ok := flightWindow(c)
		if !ok {
			continue
		}
		var dist int64
		switch {
		case packetTs < dep:
			dist = dep - packetTs
		case packetTs > arr:
			dist = packetTs - arr
		}
		if dist > disambiguationToleranceMs {
			continue
		}
		if best == nil || dist < bestDist {
			best = c
			bestDist = dist
		}
	}
	return best
}

func flightWindow(f *storage.Flight) (depMs, arrMs int64, ok bool) {
	dep, err := timeparse.ParseInstant(f.FlightPlanDate)
	if err != nil {
		return 0, 0, false
	}
	arr, err := timeparse.ParseInstant(f.CurrentDateTimeOfArrival)
	if err != nil {
		return 0, 0, false
	}
	return dep.UnixMilli(), arr.UnixMilli(), true
}

func flightFromIntention(fi *replay.FlightIntention, packetTs int64) *storage.Flight {
	return &storage.Flight{
		PlanID:                   int64(fi.PlanID),
		Indicative:               strings.TrimSpace(fi.Indicative),
		AircraftType:             fi.AircraftType,
		Airline:                  fi.Airline,
		StartPointIndicative:     fi.StartPointIndicative,
		EndPointIndicative:       fi.EndPointIndicative,
		CruiseLevel:              fi.CruiseLevel,
		CruiseSpeed:              fi.CruiseSpeed,
		EOBT:                     fi.EOBT,
		ETA:                      fi.ETA,
		FlightPlanDate:           fi.FlightPlanDate,
		CurrentDateTimeOfArrival: fi.CurrentDateTimeOfArrival,
		Finished:                 fi.Finished,
		FlightRules:              fi.FlightRules,
		SSRCode:                  fi.SSRCode,
		LastPacketTimestamp:      packetTs,
		TrackingPoints:           []storage.TrackingPoint{},
	}
}

// groupPoints buckets tracking samples by trimmed indicative, preserving
// first-seen order. Samples without an indicative are unusable.
func groupPoints(points []replay.RealPathPoint) (map[string][]replay.RealPathPoint, []string, int) {
	groups := make(map[string][]replay.RealPathPoint)
	var order []string
	unnamed := 0
	for _, p := range points {
		ind := strings.TrimSpace(p.IndicativeSafe)
		if ind == "" {
			unnamed++
			continue
		}
		if _, ok := groups[ind]; !ok {
			order = append(order, ind)
		}
		groups[ind] = append(groups[ind], p)
	}
	return groups, order, unnamed
}

// appendPoints attaches new samples to a flight, rejecting any whose
// timestamped coordinate key is already present.
func appendPoints(f *storage.Flight, pts []replay.RealPathPoint, packetTs int64) (appended, duplicate int) {
	keys := make(map[string]bool, len(f.TrackingPoints))
	for _, tp := range f.TrackingPoints {
		keys[geo.TimestampCoordKey(tp.Timestamp, tp.Latitude, tp.Longitude, tp.IndicativeSafe)] = true
	}

	for i := range pts {
		p := &pts[i]
		tp := storage.TrackingPoint{
			Timestamp:      packetTs,
			Latitude:       p.Latitude,
			Longitude:      p.Longitude,
			FlightLevel:    p.FlightLevel,
			Speed:          p.TrackSpeed,
			IndicativeSafe: strings.TrimSpace(p.IndicativeSafe),
			DetectorSource: p.DetectorSource(),
		}
		key := geo.TimestampCoordKey(tp.Timestamp, tp.Latitude, tp.Longitude, tp.IndicativeSafe)
		if keys[key] {
			duplicate++
			continue
		}
		keys[key] = true
		f.TrackingPoints = append(f.TrackingPoints, tp)
		appended++
	}

	if appended > 0 {
		f.TotalTrackingPoints = len(f.TrackingPoints)
		f.HasTrackingData = true
	}
	return appended, duplicate
}
