// Package main provides a tool to export stored flight trajectories to KML
// format. KML (Keyhole Markup Language) files can be viewed in Google Earth,
// Google Maps, and other mapping applications.
//
// Each flight becomes one track line built from its tracking points; with
// -predicted, the predicted route stored under the same id is drawn
// alongside it for visual comparison.
package main

import (
	"context"
	"encoding/xml"
	"flag"
	"fmt"
	"os"
	"strings"

	"flight_fusion/internal/geo"
	"flight_fusion/internal/storage"
)

// KML structures for XML marshalling.
// These follow the KML 2.2 specification: https://developers.google.com/kml/documentation/kmlreference

// KML is the root element of a KML document.
type KML struct {
	XMLName   xml.Name `xml:"kml"`
	Namespace string   `xml:"xmlns,attr"`
	Document  Document `xml:"Document"`
}

// Document contains the document metadata and features.
type Document struct {
	Name        string      `xml:"name"`
	Description string      `xml:"description,omitempty"`
	Styles      []Style     `xml:"Style,omitempty"`
	Placemarks  []Placemark `xml:"Placemark"`
}

// Style defines the visual appearance of features.
type Style struct {
	ID        string    `xml:"id,attr"`
	LineStyle LineStyle `xml:"LineStyle"`
}

// LineStyle defines how track lines are drawn. Color is aabbggrr hex.
type LineStyle struct {
	Color string  `xml:"color"`
	Width float64 `xml:"width"`
}

// Placemark represents one trajectory with its metadata.
type Placemark struct {
	Name         string        `xml:"name"`
	Description  string        `xml:"description,omitempty"`
	StyleURL     string        `xml:"styleUrl,omitempty"`
	LineString   LineString    `xml:"LineString"`
	ExtendedData *ExtendedData `xml:"ExtendedData,omitempty"`
}

// LineString represents a track as a sequence of positions.
type LineString struct {
	AltitudeMode string `xml:"altitudeMode"`
	Coordinates  string `xml:"coordinates"` // lon,lat,altitude triples, one per line
}

// ExtendedData holds custom data associated with a placemark.
type ExtendedData struct {
	Data []Data `xml:"Data"`
}

// Data represents a single piece of extended data.
type Data struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value"`
}

func main() {
	dbPath := flag.String("db", "flight_fusion.db", "Document store path")
	planID := flag.Int64("plan-id", 0, "Export a single flight by plan id (default: all flights)")
	withPredicted := flag.Bool("predicted", false, "Include the predicted route stored under the same id")
	output := flag.String("output", "", "Output KML file (default: stdout)")
	minPoints := flag.Int("min-points", 2, "Minimum tracking points to include a flight")
	verbose := flag.Bool("v", false, "Verbose output")

	flag.Parse()

	ctx := context.Background()

	store, err := storage.OpenDocStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening document store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	var flights []*storage.Flight
	if *planID != 0 {
		f, err := store.GetFlightByPlanID(ctx, *planID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading flight: %v\n", err)
			os.Exit(1)
		}
		if f == nil {
			fmt.Fprintf(os.Stderr, "No flight stored under plan id %d\n", *planID)
			os.Exit(1)
		}
		flights = []*storage.Flight{f}
	} else {
		flights, err = listAllFlights(ctx, store)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing flights: %v\n", err)
			os.Exit(1)
		}
	}

	var placemarks []Placemark
	for _, f := range flights {
		if len(f.TrackingPoints) < *minPoints {
			continue
		}
		placemarks = append(placemarks, trackPlacemark(f))

		if *withPredicted {
			p, err := store.GetPredictedFlightByInstanceID(ctx, f.PlanID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error loading prediction %d: %v\n", f.PlanID, err)
				os.Exit(1)
			}
			if p != nil && len(p.RouteElements) >= 2 {
				placemarks = append(placemarks, routePlacemark(p))
			}
		}
	}

	if len(placemarks) == 0 {
		fmt.Fprintf(os.Stderr, "No trajectories found matching criteria\n")
		os.Exit(0)
	}

	if *verbose {
		fmt.Fprintf(os.Stderr, "Exporting %d trajectories to KML\n", len(placemarks))
	}

	kml := KML{
		Namespace: "http://www.opengis.net/kml/2.2",
		Document: Document{
			Name:        "Flight Trajectories",
			Description: "Observed tracks and predicted routes from the flight fusion store.",
			Styles: []Style{
				{ID: "realTrack", LineStyle: LineStyle{Color: "ff0000ff", Width: 2}},
				{ID: "predictedRoute", LineStyle: LineStyle{Color: "ffff8800", Width: 2}},
			},
			Placemarks: placemarks,
		},
	}

	xmlData, err := xml.MarshalIndent(kml, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating KML: %v\n", err)
		os.Exit(1)
	}
	xmlOutput := xml.Header + string(xmlData)

	if *output != "" {
		if err := os.WriteFile(*output, []byte(xmlOutput), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
			os.Exit(1)
		}
		if *verbose {
			fmt.Fprintf(os.Stderr, "Wrote %s\n", *output)
		}
	} else {
		fmt.Println(xmlOutput)
	}
}

// listAllFlights pages through the whole flights collection.
func listAllFlights(ctx context.Context, store *storage.DocStore) ([]*storage.Flight, error) {
	const pageSize = 500
	var all []*storage.Flight
	for offset := 0; ; offset += pageSize {
		page, err := store.ListFlights(ctx, pageSize, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
	}
}

// trackPlacemark renders a flight's observed track. Tracking points carry
// radian coordinates and flight levels; KML wants degrees and meters.
func trackPlacemark(f *storage.Flight) Placemark {
	var sb strings.Builder
	for _, tp := range f.TrackingPoints {
		alt := tp.FlightLevel * geo.FeetPerFlightLevel * geo.MetersPerFoot
		fmt.Fprintf(&sb, "%.6f,%.6f,%.0f\n",
			geo.ToDegrees(tp.Longitude), geo.ToDegrees(tp.Latitude), alt)
	}

	return Placemark{
		Name: fmt.Sprintf("%s (plan %d)", f.Indicative, f.PlanID),
		Description: fmt.Sprintf("%s to %s, %d tracking points",
			f.StartPointIndicative, f.EndPointIndicative, len(f.TrackingPoints)),
		StyleURL: "#realTrack",
		LineString: LineString{
			AltitudeMode: "absolute",
			Coordinates:  sb.String(),
		},
		ExtendedData: &ExtendedData{
			Data: []Data{
				{Name: "plan_id", Value: fmt.Sprintf("%d", f.PlanID)},
				{Name: "indicative", Value: f.Indicative},
				{Name: "origin", Value: f.StartPointIndicative},
				{Name: "destination", Value: f.EndPointIndicative},
				{Name: "points", Value: fmt.Sprintf("%d", len(f.TrackingPoints))},
			},
		},
	}
}

// routePlacemark renders a predicted route. Route elements are already in
// degrees and meters.
func routePlacemark(p *storage.PredictedFlight) Placemark {
	var sb strings.Builder
	for _, el := range p.RouteElements {
		fmt.Fprintf(&sb, "%.6f,%.6f,%.0f\n", el.Longitude, el.Latitude, el.LevelMeters)
	}

	return Placemark{
		Name: fmt.Sprintf("%s predicted (instance %d)", p.Indicative, p.InstanceID),
		Description: fmt.Sprintf("%s to %s, %d route elements",
			p.StartPointIndicative, p.EndPointIndicative, len(p.RouteElements)),
		StyleURL: "#predictedRoute",
		LineString: LineString{
			AltitudeMode: "absolute",
			Coordinates:  sb.String(),
		},
		ExtendedData: &ExtendedData{
			Data: []Data{
				{Name: "instance_id", Value: fmt.Sprintf("%d", p.InstanceID)},
				{Name: "route_id", Value: fmt.Sprintf("%d", p.RouteID)},
				{Name: "elements", Value: fmt.Sprintf("%d", len(p.RouteElements))},
			},
		},
	}
}
