package geo

import (
	"math"
	"testing"
)

func TestParseCoordinateText(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantLat float64
		wantLon float64
		wantErr bool
	}{
		{
			name: "decimal pair",
			in:   "-23.626110,-46.656382",
			wantLat: -23.626110, wantLon: -46.656382,
		},
		{
			name: "decimal pair with spaces",
			in:   " -22.910499 , -43.163254 ",
			wantLat: -22.910499, wantLon: -43.163254,
		},
		{
			name: "compact degrees and minutes",
			in:   "2337S04630W",
			wantLat: -(23 + 37.0/60), wantLon: -(46 + 30.0/60),
		},
		{
			name: "compact degrees minutes seconds",
			in:   "233751S0463811W",
			wantLat: -(23 + 37.0/60 + 51.0/3600), wantLon: -(46 + 38.0/60 + 11.0/3600),
		},
		{
			name: "compact decimal minutes",
			in:   "2337.8S04630.9W",
			wantLat: -(23 + 37.8/60), wantLon: -(46 + 30.9/60),
		},
		{
			name: "north east hemisphere",
			in:   "4312N00515E",
			wantLat: 43 + 12.0/60, wantLon: 5 + 15.0/60,
		},
		{
			name:    "empty",
			in:      "",
			wantErr: true,
		},
		{
			name:    "garbage",
			in:      "over the rainbow",
			wantErr: true,
		},
		{
			name:    "latitude out of range",
			in:      "9937S04630W",
			wantErr: true,
		},
		{
			name:    "minutes out of range",
			in:      "2367S04630W",
			wantErr: true,
		},
		{
			name:    "decimal pair with bad longitude",
			in:      "-23.6,abc",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lat, lon, err := ParseCoordinateText(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseCoordinateText(%q) = (%f, %f), want error", tt.in, lat, lon)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCoordinateText(%q) unexpected error: %v", tt.in, err)
			}
			if math.Abs(lat-tt.wantLat) > 1e-9 || math.Abs(lon-tt.wantLon) > 1e-9 {
				t.Errorf("ParseCoordinateText(%q) = (%f, %f), want (%f, %f)", tt.in, lat, lon, tt.wantLat, tt.wantLon)
			}
		})
	}
}
