package analysis

import (
	"context"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"flight_fusion/internal/geo"
)

// metersPerFlightLevel converts a flight level (hundreds of feet) to meters.
const metersPerFlightLevel = geo.FeetPerFlightLevel * geo.MetersPerFoot

// FlightAccuracy is the per-flight error summary.
//
// Horizontal errors live in the radian domain: the per-point error is the
// planar hypotenuse of the latitude/longitude deltas in radians, and the
// squared metrics accumulate radians squared. The meter figures are derived
// at the report edge by scaling with the Earth radius; the raw radian
// accumulators are kept so the numbers stay comparable across releases.
type FlightAccuracy struct {
	PlanID                   int64   `json:"planId"`
	PredictedIndicative      string  `json:"predictedIndicative"`
	PointCount               int     `json:"pointCount"`
	HorizontalMSE            float64 `json:"horizontalMSE"`
	HorizontalRMSE           float64 `json:"horizontalRMSE"`
	HorizontalRMSEMeters     float64 `json:"horizontalRMSEMeters"`
	VerticalMSE              float64 `json:"verticalMSE"`
	VerticalRMSE             float64 `json:"verticalRMSE"`
	AverageHorizontalError   float64 `json:"averageHorizontalError"`
	AverageVerticalError     float64 `json:"averageVerticalError"`
	MaxHorizontalError       float64 `json:"maxHorizontalError"`
	MaxHorizontalErrorMeters float64 `json:"maxHorizontalErrorMeters"`
	MaxVerticalError         float64 `json:"maxVerticalError"`
}

// AggregateAccuracy is the fleet-level summary. MSEs are point-weighted
// across flights before the root is taken.
type AggregateAccuracy struct {
	HorizontalRMSEMeters    float64 `json:"horizontalRMSEMeters"`
	VerticalRMSE            float64 `json:"verticalRMSE"`
	MinHorizontalRMSEMeters float64 `json:"minHorizontalRMSEMeters"`
	MaxHorizontalRMSEMeters float64 `json:"maxHorizontalRMSEMeters"`
	MinVerticalRMSE         float64 `json:"minVerticalRMSE"`
	MaxVerticalRMSE         float64 `json:"maxVerticalRMSE"`
	AveragePointsPerFlight  float64 `json:"averagePointsPerFlight"`
	TotalPointsAnalyzed     int     `json:"totalPointsAnalyzed"`
}

// AccuracyReport is the trajectory-accuracy output.
type AccuracyReport struct {
	TotalAnalyzedFlights  int               `json:"totalAnalyzedFlights"`
	TotalQualifiedFlights int               `json:"totalQualifiedFlights"`
	TotalSkippedFlights   int               `json:"totalSkippedFlights"`
	AggregateMetrics      AggregateAccuracy `json:"aggregateMetrics"`
	FlightResults         []FlightAccuracy  `json:"flightResults"`
	PairStats             PairStats         `json:"pairStats"`
	ProcessingTimeMs      int64             `json:"processingTimeMs"`
}

// TrajectoryAccuracy compares densified predictions against observed tracks
// for every qualified, matched, geographically valid pair in the store.
func (a *Analyzer) TrajectoryAccuracy(ctx context.Context) (*AccuracyReport, error) {
	start := time.Now()

	pairs, stats, err := a.validPairs(ctx)
	if err != nil {
		return nil, err
	}

	report := BuildAccuracyReport(pairs)
	report.PairStats = stats
	report.ProcessingTimeMs = time.Since(start).Milliseconds()

	a.log.Info("trajectory accuracy finished",
		"analyzed", report.TotalAnalyzedFlights,
		"skipped", report.TotalSkippedFlights,
		"points", report.AggregateMetrics.TotalPointsAnalyzed)
	return report, nil
}

// BuildAccuracyReport computes the error metrics over already-selected
// pairs. Only pairs whose route and track have the same number of points are
// analysed; the rest are counted as skipped.
func BuildAccuracyReport(pairs []Pair) *AccuracyReport {
	report := &AccuracyReport{TotalQualifiedFlights: len(pairs)}

	var (
		horizontalMSEs  []float64
		verticalMSEs    []float64
		weights         []float64
		horizontalRMSEs []float64
		verticalRMSEs   []float64
	)

	for _, pair := range pairs {
		n := len(pair.Flight.TrackingPoints)
		if n == 0 || n != len(pair.Prediction.RouteElements) {
			report.TotalSkippedFlights++
			continue
		}

		fa := compareFlight(pair, n)
		report.TotalAnalyzedFlights++
		report.AggregateMetrics.TotalPointsAnalyzed += n
		report.FlightResults = append(report.FlightResults, fa)

		horizontalMSEs = append(horizontalMSEs, fa.HorizontalMSE)
		verticalMSEs = append(verticalMSEs, fa.VerticalMSE)
		weights = append(weights, float64(n))
		horizontalRMSEs = append(horizontalRMSEs, fa.HorizontalRMSEMeters)
		verticalRMSEs = append(verticalRMSEs, fa.VerticalRMSE)
	}

	if report.TotalAnalyzedFlights > 0 {
		agg := &report.AggregateMetrics
		agg.HorizontalRMSEMeters = math.Sqrt(stat.Mean(horizontalMSEs, weights)) * geo.EarthRadiusM
		agg.VerticalRMSE = math.Sqrt(stat.Mean(verticalMSEs, weights))
		agg.MinHorizontalRMSEMeters = floats.Min(horizontalRMSEs)
		agg.MaxHorizontalRMSEMeters = floats.Max(horizontalRMSEs)
		agg.MinVerticalRMSE = floats.Min(verticalRMSEs)
		agg.MaxVerticalRMSE = floats.Max(verticalRMSEs)
		agg.AveragePointsPerFlight = float64(agg.TotalPointsAnalyzed) / float64(report.TotalAnalyzedFlights)
	}
	return report
}

// compareFlight walks one equal-length pair index by index.
func compareFlight(pair Pair, n int) FlightAccuracy {
	fa := FlightAccuracy{
		PlanID:              pair.Flight.PlanID,
		PredictedIndicative: pair.Prediction.Indicative,
		PointCount:          n,
	}

	var sumHorizontalSq, sumHorizontal, sumVerticalSq, sumVertical float64
	for i := 0; i < n; i++ {
		tp := pair.Flight.TrackingPoints[i]
		el := pair.Prediction.RouteElements[i]

		dLat := tp.Latitude - geo.ToRadians(el.Latitude)
		dLon := tp.Longitude - geo.ToRadians(el.Longitude)
		horizSq := dLat*dLat + dLon*dLon
		horiz := math.Sqrt(horizSq)
		sumHorizontalSq += horizSq
		sumHorizontal += horiz
		if horiz > fa.MaxHorizontalError {
			fa.MaxHorizontalError = horiz
		}

		vert := tp.FlightLevel*metersPerFlightLevel - el.LevelMeters
		if vert < 0 {
			vert = -vert
		}
		sumVerticalSq += vert * vert
		sumVertical += vert
		if vert > fa.MaxVerticalError {
			fa.MaxVerticalError = vert
		}
	}

	fn := float64(n)
	fa.HorizontalMSE = sumHorizontalSq / fn
	fa.HorizontalRMSE = math.Sqrt(fa.HorizontalMSE)
	fa.HorizontalRMSEMeters = fa.HorizontalRMSE * geo.EarthRadiusM
	fa.VerticalMSE = sumVerticalSq / fn
	fa.VerticalRMSE = math.Sqrt(fa.VerticalMSE)
	fa.AverageHorizontalError = sumHorizontal / fn
	fa.AverageVerticalError = sumVertical / fn
	fa.MaxHorizontalErrorMeters = fa.MaxHorizontalError * geo.EarthRadiusM
	return fa
}
