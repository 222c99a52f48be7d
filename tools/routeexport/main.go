// Package main provides a tool to export observed flight routes from the
// document store to CSV format. Each row is one distinct route:
// indicative,origin,destination
//
// A route's observation count is the number of stored flights carrying that
// exact indicative and airport pair; -min-obs filters out one-off sightings.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"sort"

	"flight_fusion/internal/storage"
)

// RouteExport represents one distinct observed route.
type RouteExport struct {
	Indicative   string
	Origin       string
	Destination  string
	Observations int
}

func main() {
	dbPath := flag.String("db", "flight_fusion.db", "Document store path")
	output := flag.String("output", "", "Output CSV file (default: stdout)")
	minObservations := flag.Int("min-obs", 1, "Minimum observation count to include a route")
	showStats := flag.Bool("stats", false, "Show statistics only, don't export")
	verbose := flag.Bool("v", false, "Verbose output")

	flag.Parse()

	ctx := context.Background()

	store, err := storage.OpenDocStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening document store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	routes, err := getRoutes(ctx, store, *minObservations)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error querying routes: %v\n", err)
		os.Exit(1)
	}

	// Show stats mode.
	if *showStats {
		showRouteStats(routes)
		return
	}

	if len(routes) == 0 {
		fmt.Fprintf(os.Stderr, "No routes found matching criteria\n")
		os.Exit(0)
	}

	if *verbose {
		fmt.Fprintf(os.Stderr, "Exporting %d routes to CSV\n", len(routes))
	}

	// Write output.
	var writer *csv.Writer
	if *output != "" {
		file, err := os.Create(*output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating file: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = file.Close() }()
		writer = csv.NewWriter(file)
	} else {
		writer = csv.NewWriter(os.Stdout)
	}

	// Write CSV rows (no header row).
	for _, route := range routes {
		row := []string{route.Indicative, route.Origin, route.Destination}
		if err := writer.Write(row); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing row: %v\n", err)
			os.Exit(1)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		fmt.Fprintf(os.Stderr, "Error flushing CSV: %v\n", err)
		os.Exit(1)
	}

	if *verbose && *output != "" {
		fmt.Fprintf(os.Stderr, "Wrote %d routes to %s\n", len(routes), *output)
	}
}

// getRoutes aggregates distinct routes over every stored flight. Flights
// missing an indicative or either airport carry no usable route.
func getRoutes(ctx context.Context, store *storage.DocStore, minObservations int) ([]RouteExport, error) {
	const pageSize = 500

	counts := make(map[RouteExport]int)
	for offset := 0; ; offset += pageSize {
		page, err := store.ListFlights(ctx, pageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("listing flights: %w", err)
		}
		for _, f := range page {
			if f.Indicative == "" || f.StartPointIndicative == "" || f.EndPointIndicative == "" {
				continue
			}
			counts[RouteExport{
				Indicative:  f.Indicative,
				Origin:      f.StartPointIndicative,
				Destination: f.EndPointIndicative,
			}]++
		}
		if len(page) < pageSize {
			break
		}
	}

	routes := make([]RouteExport, 0, len(counts))
	for key, n := range counts {
		if n < minObservations {
			continue
		}
		key.Observations = n
		routes = append(routes, key)
	}

	// Most observed first; ties alphabetical for stable output.
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Observations != routes[j].Observations {
			return routes[i].Observations > routes[j].Observations
		}
		return routes[i].Indicative < routes[j].Indicative
	})

	return routes, nil
}

// showRouteStats displays statistics about the observed routes.
func showRouteStats(routes []RouteExport) {
	if len(routes) == 0 {
		fmt.Println("No routes stored")
		return
	}

	total := len(routes)
	sumObs := 0
	for _, r := range routes {
		sumObs += r.Observations
	}
	top := routes[0]

	fmt.Println("Route Statistics")
	fmt.Println("────────────────")
	fmt.Printf("Total routes:        %d\n", total)
	fmt.Printf("Average observations: %.1f\n", float64(sumObs)/float64(total))
	fmt.Printf("Most observed:       %s %s-%s (%d observations)\n",
		top.Indicative, top.Origin, top.Destination, top.Observations)

	// Observation count distribution.
	buckets := []struct {
		label string
		max   int
	}{
		{label: "1", max: 1},
		{label: "2-5", max: 5},
		{label: "6-10", max: 10},
		{label: "11-50", max: 50},
		{label: "50+", max: 1 << 30},
	}
	dist := make([]int, len(buckets))
	for _, r := range routes {
		for i, b := range buckets {
			if r.Observations <= b.max {
				dist[i]++
				break
			}
		}
	}

	fmt.Println("\nObservation Count Distribution:")
	fmt.Printf("%-15s %10s\n", "Observations", "Count")
	for i, b := range buckets {
		if dist[i] > 0 {
			fmt.Printf("%-15s %10d\n", b.label, dist[i])
		}
	}

	// Top 10 most observed routes.
	fmt.Println("\nTop 10 Most Observed Routes:")
	fmt.Printf("%-12s %-6s %-6s %6s\n", "Flight", "Origin", "Dest", "Obs")
	for i, r := range routes {
		if i == 10 {
			break
		}
		fmt.Printf("%-12s %-6s %-6s %6d\n", r.Indicative, r.Origin, r.Destination, r.Observations)
	}
}
