package geo

import (
	"math"
	"testing"
)

func TestDistanceKm(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want                   float64
		tol                    float64
	}{
		{
			name: "same point",
			lat1: -23.626110, lon1: -46.656382,
			lat2: -23.626110, lon2: -46.656382,
			want: 0, tol: 1e-9,
		},
		{
			name: "congonhas to santos dumont",
			lat1: -23.626110, lon1: -46.656382,
			lat2: -22.910499, lon2: -43.163254,
			want: 365.6, tol: 2.0,
		},
		{
			name: "one degree of longitude at the equator",
			lat1: 0, lon1: 0,
			lat2: 0, lon2: 1,
			want: 111.1949, tol: 0.001,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceKm(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if math.Abs(got-tt.want) > tt.tol {
				t.Errorf("DistanceKm() = %f, want %f ± %f", got, tt.want, tt.tol)
			}
		})
	}
}

func TestDistanceKmSymmetry(t *testing.T) {
	ab := DistanceKm(-23.626110, -46.656382, -22.910499, -43.163254)
	ba := DistanceKm(-22.910499, -43.163254, -23.626110, -46.656382)
	if math.Abs(ab-ba) > 1e-9 {
		t.Errorf("distance not symmetric: %f vs %f", ab, ba)
	}
}

func TestDistanceKmTriangleInequality(t *testing.T) {
	// Congonhas, Santos Dumont, Guarulhos.
	type pt struct{ lat, lon float64 }
	a := pt{-23.626110, -46.656382}
	b := pt{-22.910499, -43.163254}
	c := pt{-23.435556, -46.473056}

	ab := DistanceKm(a.lat, a.lon, b.lat, b.lon)
	ac := DistanceKm(a.lat, a.lon, c.lat, c.lon)
	cb := DistanceKm(c.lat, c.lon, b.lat, b.lon)

	if ab > ac+cb+1e-9 {
		t.Errorf("triangle inequality violated: %f > %f + %f", ab, ac, cb)
	}
}

func TestDegreeRadianRoundTrip(t *testing.T) {
	for _, deg := range []float64{-360, -180, -90.5, -23.626110, 0, 0.000001, 45, 90, 179.999999, 360} {
		got := ToDegrees(ToRadians(deg))
		if math.Abs(got-deg) > 1e-12 {
			t.Errorf("ToDegrees(ToRadians(%v)) = %v, want within 1e-12", deg, got)
		}
	}
}

func TestRound6(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{1.00000051, 1.000001},
		{1.00000049, 1.000000},
		{-1.00000051, -1.000001},
		{-1.00000049, -1.000000},
		{-23.43256751, -23.432568},
		{0, 0},
	}

	for _, tt := range tests {
		if got := Round6(tt.in); got != tt.want {
			t.Errorf("Round6(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCoordKey(t *testing.T) {
	tests := []struct {
		name       string
		lat, lon   float64
		indicative string
		want       string
	}{
		{
			name: "rounded with indicative",
			lat:  1.23456751, lon: -2.00000149,
			indicative: "TAM3886",
			want:       "1.234568,-2.000001,TAM3886",
		},
		{
			name: "empty indicative",
			lat:  -23.626110, lon: -46.656382,
			indicative: "",
			want:       "-23.626110,-46.656382,",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CoordKey(tt.lat, tt.lon, tt.indicative); got != tt.want {
				t.Errorf("CoordKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTimestampCoordKey(t *testing.T) {
	got := TimestampCoordKey(1720660000000, -0.412, -0.813, "TAM3886")
	want := "1720660000000,-0.412000,-0.813000,TAM3886"
	if got != want {
		t.Errorf("TimestampCoordKey() = %q, want %q", got, want)
	}
}

func TestIntermediatePoint(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		frac                   float64
		wantLat, wantLon       float64
	}{
		{
			name: "fraction zero is the start",
			lat1: -23.6, lon1: -46.6, lat2: -22.9, lon2: -43.1,
			frac:    0,
			wantLat: -23.6, wantLon: -46.6,
		},
		{
			name: "fraction one is the end",
			lat1: -23.6, lon1: -46.6, lat2: -22.9, lon2: -43.1,
			frac:    1,
			wantLat: -22.9, wantLon: -43.1,
		},
		{
			name: "equator midpoint",
			lat1: 0, lon1: 0, lat2: 0, lon2: 10,
			frac:    0.5,
			wantLat: 0, wantLon: 5,
		},
		{
			name: "degenerate pair collapses to start",
			lat1: 10, lon1: 20, lat2: 10, lon2: 20,
			frac:    0.5,
			wantLat: 10, wantLon: 20,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lat, lon := IntermediatePoint(tt.lat1, tt.lon1, tt.lat2, tt.lon2, tt.frac)
			if math.Abs(lat-tt.wantLat) > 1e-9 || math.Abs(lon-tt.wantLon) > 1e-9 {
				t.Errorf("IntermediatePoint() = (%f, %f), want (%f, %f)", lat, lon, tt.wantLat, tt.wantLon)
			}
		})
	}
}

func TestIntermediatePointStaysOnSegment(t *testing.T) {
	lat1, lon1 := -23.626110, -46.656382
	lat2, lon2 := -22.910499, -43.163254
	total := DistanceKm(lat1, lon1, lat2, lon2)

	for _, frac := range []float64{0.1, 0.25, 0.5, 0.75, 0.9} {
		lat, lon := IntermediatePoint(lat1, lon1, lat2, lon2, frac)
		d1 := DistanceKm(lat1, lon1, lat, lon)
		if math.Abs(d1-total*frac) > 0.01 {
			t.Errorf("frac %v: distance from start = %f, want %f", frac, d1, total*frac)
		}
	}
}
