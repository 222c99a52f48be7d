// Package geo provides the geodesy and coordinate-formatting helpers shared
// by the ingestion pipeline and the analytics engines.
package geo

import (
	"fmt"
	"math"
)

// Earth radius used for all great-circle math. Analytics outputs are
// calibrated against this value, not a WGS84 radius.
const (
	EarthRadiusKm = 6371.0
	EarthRadiusM  = 6371000.0
)

// Unit conversion factors.
const (
	KmPerNauticalMile      = 1.852
	MetersPerFoot          = 0.3048
	FeetPerMeter           = 3.28084
	KnotsPerMeterPerSecond = 1.94384
	FeetPerFlightLevel     = 100.0
)

// ToRadians converts degrees to radians.
func ToRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// ToDegrees converts radians to degrees.
func ToDegrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// DistanceKm returns the Haversine great-circle distance in kilometers
// between two positions given in degrees.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	from := ToRadians(lat1)
	to := ToRadians(lat2)
	deltaLat := ToRadians(lat2 - lat1)
	deltaLon := ToRadians(lon2 - lon1)

	a := math.Pow(math.Sin(deltaLat/2), 2) +
		math.Cos(from)*math.Cos(to)*math.Pow(math.Sin(deltaLon/2), 2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return c * EarthRadiusKm
}

// Round6 rounds to six decimal places, ties away from zero.
func Round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// CoordKey formats a position as the six-decimal identity key used for
// tracking-point deduplication. Six decimals (~11 cm) is the unit of "same
// location"; raw float equality is never used.
func CoordKey(lat, lon float64, indicative string) string {
	return fmt.Sprintf("%.6f,%.6f,%s", Round6(lat), Round6(lon), indicative)
}

// TimestampCoordKey prefixes CoordKey with the packet timestamp in millis.
func TimestampCoordKey(ts int64, lat, lon float64, indicative string) string {
	return fmt.Sprintf("%d,%s", ts, CoordKey(lat, lon, indicative))
}

// IntermediatePoint returns the position the fraction frac of the way along
// the great circle from (lat1,lon1) to (lat2,lon2), all in degrees. frac is
// clamped to [0,1]; a degenerate pair collapses to the start point.
func IntermediatePoint(lat1, lon1, lat2, lon2, frac float64) (float64, float64) {
	if frac <= 0 {
		return lat1, lon1
	}
	if frac >= 1 {
		return lat2, lon2
	}

	phi1 := ToRadians(lat1)
	lam1 := ToRadians(lon1)
	phi2 := ToRadians(lat2)
	lam2 := ToRadians(lon2)

	delta := DistanceKm(lat1, lon1, lat2, lon2) / EarthRadiusKm
	sinDelta := math.Sin(delta)
	if sinDelta < 1e-12 {
		return lat1, lon1
	}

	a := math.Sin((1-frac)*delta) / sinDelta
	b := math.Sin(frac*delta) / sinDelta

	x := a*math.Cos(phi1)*math.Cos(lam1) + b*math.Cos(phi2)*math.Cos(lam2)
	y := a*math.Cos(phi1)*math.Sin(lam1) + b*math.Cos(phi2)*math.Sin(lam2)
	z := a*math.Sin(phi1) + b*math.Sin(phi2)

	lat := math.Atan2(z, math.Sqrt(x*x+y*y))
	lon := math.Atan2(y, x)

	return ToDegrees(lat), ToDegrees(lon)
}
