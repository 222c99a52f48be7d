package geo

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// compactCoordPattern matches the AIS compact pair form, e.g. "2337S04630W",
// "233751S0463811W" or "2337.8S04630.9W".
var compactCoordPattern = regexp.MustCompile(`^(\d{4,6}(?:\.\d+)?)([NS])\s*(\d{5,7}(?:\.\d+)?)([EW])$`)

// ParseCoordinateText parses the textual coordinate carried by a route
// element when its primary geometry is unusable. Two shapes occur in the
// data: a decimal "lat,lon" pair and the compact pair form
// DDMM[SS][.d]{N|S}DDDMM[SS][.d]{E|W}. Results are decimal degrees.
func ParseCoordinateText(s string) (lat, lon float64, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, fmt.Errorf("empty coordinate text")
	}

	if m := compactCoordPattern.FindStringSubmatch(strings.ToUpper(s)); m != nil {
		lat, err = parseDMS(m[1], 2, m[2])
		if err != nil {
			return 0, 0, fmt.Errorf("parse latitude %q: %w", m[1], err)
		}
		lon, err = parseDMS(m[3], 3, m[4])
		if err != nil {
			return 0, 0, fmt.Errorf("parse longitude %q: %w", m[3], err)
		}
	} else if parts := strings.Split(s, ","); len(parts) == 2 {
		lat, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return 0, 0, fmt.Errorf("parse latitude %q: %w", parts[0], err)
		}
		lon, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return 0, 0, fmt.Errorf("parse longitude %q: %w", parts[1], err)
		}
	} else {
		return 0, 0, fmt.Errorf("unrecognised coordinate text %q", s)
	}

	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, fmt.Errorf("coordinate %f,%f out of range", lat, lon)
	}
	return lat, lon, nil
}

// parseDMS converts one compact degrees-minutes[-seconds] group to decimal
// degrees. degDigits is 2 for latitude, 3 for longitude; dir "S" or "W"
// negates the result.
func parseDMS(s string, degDigits int, dir string) (float64, error) {
	whole := s
	frac := 0.0
	if i := strings.Index(s, "."); i >= 0 {
		whole = s[:i]
		f, err := strconv.ParseFloat("0"+s[i:], 64)
		if err != nil {
			return 0, err
		}
		frac = f
	}

	if len(whole) < degDigits+2 {
		return 0, fmt.Errorf("group %q too short", s)
	}

	deg, err := strconv.Atoi(whole[:degDigits])
	if err != nil {
		return 0, err
	}
	min, err := strconv.Atoi(whole[degDigits : degDigits+2])
	if err != nil {
		return 0, err
	}
	if min >= 60 {
		return 0, fmt.Errorf("minutes %d out of range", min)
	}

	result := float64(deg)
	switch len(whole) {
	case degDigits + 2:
		// DDMM with optional decimal minutes.
		result += (float64(min) + frac) / 60
	case degDigits + 4:
		// DDMMSS with optional decimal seconds.
		sec, err := strconv.Atoi(whole[degDigits+2:])
		if err != nil {
			return 0, err
		}
		if sec >= 60 {
			return 0, fmt.Errorf("seconds %d out of range", sec)
		}
		result += float64(min)/60 + (float64(sec)+frac)/3600
	default:
		return 0, fmt.Errorf("group %q has unexpected length", s)
	}

	if dir == "S" || dir == "W" {
		result = -result
	}
	return result, nil
}
