// Package analysis holds the punctuality and trajectory-accuracy engines and
// the qualification rules deciding which flight/prediction pairs they see.
//
// Only the Sao Paulo <-> Rio de Janeiro air bridge is analysed: a prediction
// qualifies when its route runs aerodrome-to-aerodrome between SBSP and SBRJ
// in either direction, and the observed track must start and end on those
// aerodromes, on the ground or in a low climb.
package analysis

import (
	"context"
	"fmt"
	"log/slog"

	"flight_fusion/internal/geo"
	"flight_fusion/internal/storage"
)

// Bridge corridor endpoints.
const (
	aerodromeCongonhas    = "SBSP"
	aerodromeSantosDumont = "SBRJ"
)

// Geographic gate bounds: each track endpoint must lie within two nautical
// miles of the predicted aerodrome, at or below flight level 4 (400 ft).
const (
	maxEndpointDistanceKm  = 2 * geo.KmPerNauticalMile
	maxEndpointFlightLevel = 4.0
)

// Pair is a matched flight/prediction couple that passed qualification and
// the geographic gate.
type Pair struct {
	Flight     *storage.Flight
	Prediction *storage.PredictedFlight
}

// PairStats counts how the candidate set narrowed while pairing.
type PairStats struct {
	TotalPredictions     int `json:"totalPredictions"`
	QualifiedPredictions int `json:"qualifiedPredictions"`
	MatchedPairs         int `json:"matchedPairs"`
	GeoValidPairs        int `json:"geoValidPairs"`
}

// Qualifies reports whether the prediction's route is a complete bridge
// route: at least two elements, aerodromes at both ends, and the SBSP/SBRJ
// pair in either direction.
func Qualifies(p *storage.PredictedFlight) bool {
	if p == nil || len(p.RouteElements) < 2 {
		return false
	}
	first := p.RouteElements[0]
	last := p.RouteElements[len(p.RouteElements)-1]
	if first.ElementType != storage.ElementAerodrome || last.ElementType != storage.ElementAerodrome {
		return false
	}
	outbound := first.Indicative == aerodromeCongonhas && last.Indicative == aerodromeSantosDumont
	inbound := first.Indicative == aerodromeSantosDumont && last.Indicative == aerodromeCongonhas
	return outbound || inbound
}

// Matches reports whether a qualified prediction belongs to the flight.
func Matches(p *storage.PredictedFlight, f *storage.Flight) bool {
	return p != nil && f != nil && p.InstanceID == f.PlanID
}

// PassesGeoGate checks that the observed track actually flew the predicted
// route: first and last tracking points within two nautical miles of the
// route's endpoint aerodromes, both at or below flight level 4. Tracking
// points carry radians; route elements carry degrees.
func PassesGeoGate(f *storage.Flight, p *storage.PredictedFlight) bool {
	if f == nil || p == nil || len(f.TrackingPoints) == 0 || len(p.RouteElements) < 2 {
		return false
	}
	firstTp := f.TrackingPoints[0]
	lastTp := f.TrackingPoints[len(f.TrackingPoints)-1]
	if firstTp.FlightLevel > maxEndpointFlightLevel || lastTp.FlightLevel > maxEndpointFlightLevel {
		return false
	}

	firstEl := p.RouteElements[0]
	lastEl := p.RouteElements[len(p.RouteElements)-1]
	depDist := geo.DistanceKm(geo.ToDegrees(firstTp.Latitude), geo.ToDegrees(firstTp.Longitude),
		firstEl.Latitude, firstEl.Longitude)
	arrDist := geo.DistanceKm(geo.ToDegrees(lastTp.Latitude), geo.ToDegrees(lastTp.Longitude),
		lastEl.Latitude, lastEl.Longitude)
	return depDist <= maxEndpointDistanceKm && arrDist <= maxEndpointDistanceKm
}

// Analyzer runs the KPI engines over the document store.
type Analyzer struct {
	store *storage.DocStore
	log   *slog.Logger
}

// NewAnalyzer creates an analyzer over the given store.
func NewAnalyzer(store *storage.DocStore, log *slog.Logger) *Analyzer {
	if log == nil {
		log = slog.Default()
	}
	return &Analyzer{store: store, log: log}
}

// validPairs loads every qualified, matched, geographically valid pair.
// Documents are read fresh on every run.
func (a *Analyzer) validPairs(ctx context.Context) ([]Pair, PairStats, error) {
	var stats PairStats

	ids, err := a.store.AllInstanceIDs(ctx)
	if err != nil {
		return nil, stats, fmt.Errorf("list prediction ids: %w", err)
	}
	stats.TotalPredictions = len(ids)

	var pairs []Pair
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return pairs, stats, err
		}
		pred, err := a.store.GetPredictedFlightByInstanceID(ctx, id)
		if err != nil {
			return pairs, stats, fmt.Errorf("load prediction %d: %w", id, err)
		}
		if !Qualifies(pred) {
			continue
		}
		stats.QualifiedPredictions++

		flight, err := a.store.GetFlightByPlanID(ctx, pred.InstanceID)
		if err != nil {
			return pairs, stats, fmt.Errorf("load flight %d: %w", pred.InstanceID, err)
		}
		if !Matches(pred, flight) {
			continue
		}
		stats.MatchedPairs++

		if !PassesGeoGate(flight, pred) {
			continue
		}
		stats.GeoValidPairs++
		pairs = append(pairs, Pair{Flight: flight, Prediction: pred})
	}
	return pairs, stats, nil
}
