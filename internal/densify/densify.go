// Package densify rewrites a predicted route so its point count matches the
// observed track of the same flight, which is what lets the accuracy engine
// compare the two index by index.
//
// The primary path asks a trajectory simulator for the aircraft state at each
// sample time; whenever the simulator declines, the point is interpolated
// linearly between the enclosing flight-plan segment's endpoints. The linear
// fallback always works on a covered timeline, so a missing simulator only
// changes element types, never the outcome.
package densify

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"flight_fusion/internal/geo"
	"flight_fusion/internal/storage"
)

// Densification outcomes.
const (
	StatusNotFound       = "NOT_FOUND"
	StatusNoActionNeeded = "NO_ACTION_NEEDED"
	StatusSuccess        = "SUCCESS"
	StatusError          = "ERROR"
)

// Defaults applied when a route element carries no speed or level.
const (
	defaultSpeedKnots = 450.0
	defaultLevelFeet  = 35000.0

	// A flight plan whose times do not advance gets its next fix pushed
	// five minutes ahead.
	stalledSegmentAdvanceSeconds = 300.0
)

// Segment is one leg of the prepared flight plan. Times are absolute
// elapsed seconds since route start, coordinates are degrees, speeds knots,
// levels feet.
type Segment struct {
	StartLat, StartLon float64
	EndLat, EndLon     float64
	StartAET, EndAET   float64
	StartSpeedKt       float64
	EndSpeedKt         float64
	StartLevelFeet     float64
	EndLevelFeet       float64
}

// Intention is the prepared flight plan handed to the simulator.
type Intention struct {
	Indicative string
	Segments   []Segment
}

// Point is an aircraft state produced by a simulator.
type Point struct {
	Latitude     float64
	Longitude    float64
	AltitudeFeet float64
	SpeedKnots   float64
}

// Simulator advances a flight intention to an elapsed time. Implementations
// report ok=false when the time falls outside what they can model; the
// densifier then falls back to linear interpolation.
type Simulator interface {
	Simulate(in Intention, tSeconds float64) (Point, bool)
}

// KinematicSimulator follows the great circle of the segment containing the
// sample time, blending altitude and speed between the segment endpoints.
type KinematicSimulator struct{}

// Simulate implements Simulator.
func (KinematicSimulator) Simulate(in Intention, tSeconds float64) (Point, bool) {
	for _, s := range in.Segments {
		if tSeconds < s.StartAET || tSeconds > s.EndAET {
			continue
		}
		frac := 0.0
		if s.EndAET > s.StartAET {
			frac = (tSeconds - s.StartAET) / (s.EndAET - s.StartAET)
		}
		lat, lon := geo.IntermediatePoint(s.StartLat, s.StartLon, s.EndLat, s.EndLon, frac)
		if math.IsNaN(lat) || math.IsNaN(lon) {
			return Point{}, false
		}
		return Point{
			Latitude:     lat,
			Longitude:    lon,
			AltitudeFeet: s.StartLevelFeet + (s.EndLevelFeet-s.StartLevelFeet)*frac,
			SpeedKnots:   s.StartSpeedKt + (s.EndSpeedKt-s.StartSpeedKt)*frac,
		}, true
	}
	return Point{}, false
}

// Result reports one densification attempt.
type Result struct {
	PlanID            int64  `json:"planId"`
	Status            string `json:"status"`
	OriginalElements  int    `json:"originalElements"`
	DensifiedElements int    `json:"densifiedElements"`
	SimulatedPoints   int    `json:"simulatedPoints"`
	LinearPoints      int    `json:"linearPoints"`
	Message           string `json:"message"`
}

// BatchResult reports a run over every stored prediction.
type BatchResult struct {
	TotalRequested         int       `json:"totalRequested"`
	TotalProcessed         int       `json:"totalProcessed"`
	TotalNoAction          int       `json:"totalNoAction"`
	TotalNotFound          int       `json:"totalNotFound"`
	TotalErrors            int       `json:"totalErrors"`
	TotalDensifiedElements int       `json:"totalDensifiedElements"`
	ProcessingTimeMs       int64     `json:"processingTimeMs"`
	Results                []*Result `json:"results,omitempty"`
}

// Densifier reads flight and prediction pairs from the document store and
// rewrites prediction routes in place.
type Densifier struct {
	store *storage.DocStore
	sim   Simulator
	log   *slog.Logger
}

// New creates a densifier. A nil simulator is allowed; every point then
// takes the linear fallback.
func New(store *storage.DocStore, sim Simulator, log *slog.Logger) *Densifier {
	if log == nil {
		log = slog.Default()
	}
	return &Densifier{store: store, sim: sim, log: log}
}

// Densify resamples the prediction for planID to as many points as the
// flight has tracking points. Nothing is written unless the resampled route
// is at least as long as the original; a failed attempt leaves the stored
// route untouched. The returned error covers store access only; domain
// outcomes travel in the result status.
func (d *Densifier) Densify(ctx context.Context, planID int64) (*Result, error) {
	res := &Result{PlanID: planID}

	flight, err := d.store.GetFlightByPlanID(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("load flight %d: %w", planID, err)
	}
	pred, err := d.store.GetPredictedFlightByInstanceID(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("load prediction %d: %w", planID, err)
	}
	if flight == nil || pred == nil {
		res.Status = StatusNotFound
		res.Message = fmt.Sprintf("no flight/prediction pair for plan %d", planID)
		return res, nil
	}

	res.OriginalElements = len(pred.RouteElements)
	target := len(flight.TrackingPoints)
	if target <= len(pred.RouteElements) {
		res.Status = StatusNoActionNeeded
		res.DensifiedElements = len(pred.RouteElements)
		res.Message = fmt.Sprintf("route already has %d elements for %d tracking points",
			len(pred.RouteElements), target)
		return res, nil
	}

	actualMinutes := float64(flight.TrackingPoints[target-1].Timestamp-flight.TrackingPoints[0].Timestamp) / 60000.0
	in, err := prepareIntention(pred, actualMinutes)
	if err != nil {
		res.Status = StatusError
		res.Message = err.Error()
		return res, nil
	}

	elements, simulated, linear := d.generate(pred, in, target)
	res.SimulatedPoints = simulated
	res.LinearPoints = linear
	if len(elements) < len(pred.RouteElements) || len(elements) == 0 {
		res.Status = StatusError
		res.Message = fmt.Sprintf("densification produced %d of %d points, original route kept",
			len(elements), target)
		return res, nil
	}

	if err := d.store.ReplaceRouteElements(ctx, planID, elements); err != nil {
		return nil, fmt.Errorf("replace route elements for %d: %w", planID, err)
	}

	res.Status = StatusSuccess
	res.DensifiedElements = len(elements)
	res.Message = fmt.Sprintf("densified %d -> %d elements (%d simulated, %d linear)",
		res.OriginalElements, len(elements), simulated, linear)
	return res, nil
}

// DensifyAll densifies every stored prediction. Per-flight failures are
// counted and the run continues.
func (d *Densifier) DensifyAll(ctx context.Context) (*BatchResult, error) {
	start := time.Now()

	ids, err := d.store.AllInstanceIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list prediction ids: %w", err)
	}

	batch := &BatchResult{TotalRequested: len(ids)}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		res, err := d.Densify(ctx, id)
		if err != nil {
			d.log.Error("densify failed", "plan_id", id, "error", err)
			batch.TotalErrors++
			batch.Results = append(batch.Results, &Result{
				PlanID: id, Status: StatusError, Message: err.Error(),
			})
			continue
		}
		batch.Results = append(batch.Results, res)
		switch res.Status {
		case StatusSuccess:
			batch.TotalProcessed++
			batch.TotalDensifiedElements += res.DensifiedElements
		case StatusNoActionNeeded:
			batch.TotalNoAction++
		case StatusNotFound:
			batch.TotalNotFound++
		default:
			batch.TotalErrors++
		}
	}
	batch.ProcessingTimeMs = time.Since(start).Milliseconds()
	return batch, nil
}

// prepareIntention turns the stored route into simulator segments: elapsed
// times rescaled so the plan spans the observed flight duration, sentinel
// (0,0) coordinates rejected, missing speeds and levels defaulted.
func prepareIntention(pred *storage.PredictedFlight, actualMinutes float64) (Intention, error) {
	elems := pred.RouteElements
	if len(elems) < 2 {
		return Intention{}, fmt.Errorf("route has %d elements, need at least 2", len(elems))
	}

	maxEet := 0.0
	for _, e := range elems {
		if e.EetMinutes > maxEet {
			maxEet = e.EetMinutes
		}
	}
	factor := 1.0
	if maxEet > 0 && actualMinutes > 0 {
		factor = actualMinutes / maxEet
	}

	aet := make([]float64, len(elems))
	for i, e := range elems {
		aet[i] = math.Round(e.EetMinutes * factor * 60)
	}
	for i := 1; i < len(aet); i++ {
		if aet[i] <= aet[i-1] {
			aet[i] = aet[i-1] + stalledSegmentAdvanceSeconds
		}
	}

	in := Intention{Indicative: pred.Indicative}
	for i := 0; i+1 < len(elems); i++ {
		a, b := elems[i], elems[i+1]
		if invalidCoordinate(a) || invalidCoordinate(b) {
			continue
		}
		in.Segments = append(in.Segments, Segment{
			StartLat: a.Latitude, StartLon: a.Longitude,
			EndLat: b.Latitude, EndLon: b.Longitude,
			StartAET: aet[i], EndAET: aet[i+1],
			StartSpeedKt: speedKnots(a), EndSpeedKt: speedKnots(b),
			StartLevelFeet: levelFeet(a), EndLevelFeet: levelFeet(b),
		})
	}
	if len(in.Segments) == 0 {
		return Intention{}, fmt.Errorf("route for plan %d has no usable segments", pred.InstanceID)
	}
	return in, nil
}

// generate resamples the route to target points. The original first and last
// elements are kept in place; everything between is produced by the
// simulator or the linear fallback. Sample times with no covering segment
// are skipped.
func (d *Densifier) generate(pred *storage.PredictedFlight, in Intention, target int) ([]storage.RouteElement, int, int) {
	startSec := in.Segments[0].StartAET
	endSec := in.Segments[len(in.Segments)-1].EndAET
	step := (endSec - startSec) / float64(target-1)

	out := make([]storage.RouteElement, 0, target)
	out = append(out, pinOriginal(pred.RouteElements[0], startSec))

	simulated, linear := 0, 0
	for i := 1; i < target-1; i++ {
		t := startSec + float64(i)*step
		if d.sim != nil {
			if p, ok := d.sim.Simulate(in, t); ok {
				out = append(out, elementFromPoint(p, storage.ElementInterpolated, t))
				simulated++
				continue
			}
		}
		if e, ok := linearPoint(in.Segments, t); ok {
			out = append(out, e)
			linear++
		}
	}

	out = append(out, pinOriginal(pred.RouteElements[len(pred.RouteElements)-1], endSec))
	for i := range out {
		out[i].SequenceNumber = i
	}
	return out, simulated, linear
}

// linearPoint interpolates inside the segment containing t.
func linearPoint(segs []Segment, t float64) (storage.RouteElement, bool) {
	for _, s := range segs {
		if t < s.StartAET || t > s.EndAET {
			continue
		}
		ratio := 0.0
		if s.EndAET > s.StartAET {
			ratio = (t - s.StartAET) / (s.EndAET - s.StartAET)
		}
		p := Point{
			Latitude:     s.StartLat + (s.EndLat-s.StartLat)*ratio,
			Longitude:    s.StartLon + (s.EndLon-s.StartLon)*ratio,
			AltitudeFeet: s.StartLevelFeet + (s.EndLevelFeet-s.StartLevelFeet)*ratio,
			SpeedKnots:   s.StartSpeedKt + (s.EndSpeedKt-s.StartSpeedKt)*ratio,
		}
		return elementFromPoint(p, storage.ElementInterpolatedLinear, t), true
	}
	return storage.RouteElement{}, false
}

func elementFromPoint(p Point, elementType string, tSeconds float64) storage.RouteElement {
	return storage.RouteElement{
		ElementType:         elementType,
		Latitude:            p.Latitude,
		Longitude:           p.Longitude,
		LevelMeters:         p.AltitudeFeet * geo.MetersPerFoot,
		Altitude:            p.AltitudeFeet / geo.FeetPerFlightLevel,
		SpeedMeterPerSecond: p.SpeedKnots / geo.KnotsPerMeterPerSecond,
		EetMinutes:          tSeconds / 60,
		Interpolated:        true,
	}
}

// pinOriginal keeps a route endpoint as stored, with its elapsed time moved
// onto the rescaled timeline. The accuracy engine reads levelMeters from
// every element, so an endpoint without one gets the default.
func pinOriginal(e storage.RouteElement, tSeconds float64) storage.RouteElement {
	e.EetMinutes = tSeconds / 60
	if e.LevelMeters == 0 {
		e.LevelMeters = defaultLevelFeet * geo.MetersPerFoot
	}
	return e
}

func invalidCoordinate(e storage.RouteElement) bool {
	return e.Latitude == 0 && e.Longitude == 0
}

func speedKnots(e storage.RouteElement) float64 {
	if e.SpeedMeterPerSecond > 0 {
		return e.SpeedMeterPerSecond * geo.KnotsPerMeterPerSecond
	}
	return defaultSpeedKnots
}

func levelFeet(e storage.RouteElement) float64 {
	if e.LevelMeters > 0 {
		return e.LevelMeters * geo.FeetPerMeter
	}
	return defaultLevelFeet
}
