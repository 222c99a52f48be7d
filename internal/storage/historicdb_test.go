package storage

import (
	"context"
	"errors"
	"os"
	"strconv"
	"testing"
)

// setupTestHistoric creates a test historic store connection.
// Returns nil if no PostgreSQL connection is available.
func setupTestHistoric(t *testing.T) *HistoricDB {
	t.Helper()

	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		host = "localhost"
	}
	port := 5432
	if p := os.Getenv("POSTGRES_PORT"); p != "" {
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}
	user := os.Getenv("POSTGRES_USER")
	if user == "" {
		user = "fusion"
	}
	password := os.Getenv("POSTGRES_PASSWORD")
	if password == "" {
		password = "fusion"
	}
	database := os.Getenv("POSTGRES_DB")
	if database == "" {
		database = "fusion_historic"
	}

	ctx := context.Background()
	db, err := OpenHistoric(ctx, HistoricConfig{
		Host:     host,
		Port:     port,
		User:     user,
		Password: password,
		Database: database,
	})
	if err != nil {
		return nil
	}

	if err := db.CreateSchema(ctx); err != nil {
		db.Close()
		return nil
	}
	return db
}

func TestFetchPlanRoundTrip(t *testing.T) {
	db := setupTestHistoric(t)
	if db == nil {
		t.Skip("No PostgreSQL connection available")
	}
	defer db.Close()

	ctx := context.Background()
	plan := samplePrediction(900001)

	cleanup := func() {
		_, _ = db.pool.Exec(ctx, "DELETE FROM flight_plans WHERE instance_id = $1", plan.InstanceID)
		_, _ = db.pool.Exec(ctx, "DELETE FROM route_elements WHERE route_id = $1", plan.RouteID)
		_, _ = db.pool.Exec(ctx, "DELETE FROM route_segments WHERE route_id = $1", plan.RouteID)
	}
	cleanup()
	defer cleanup()

	if err := db.UpsertFlightPlan(ctx, plan); err != nil {
		t.Fatalf("upsert plan: %v", err)
	}

	got, err := db.FetchPlan(ctx, plan.InstanceID)
	if err != nil {
		t.Fatalf("fetch plan: %v", err)
	}
	if got == nil {
		t.Fatal("expected plan, got nil")
	}

	if got.Indicative != plan.Indicative {
		t.Errorf("indicative = %q, want %q", got.Indicative, plan.Indicative)
	}
	if got.Time != plan.Time {
		t.Errorf("time range = %q, want %q", got.Time, plan.Time)
	}
	if got.TotalRouteElements != 3 {
		t.Fatalf("totalRouteElements = %d, want 3", got.TotalRouteElements)
	}

	// Positions come back through the packed geometry.
	first := got.RouteElements[0]
	if first.Latitude != plan.RouteElements[0].Latitude || first.Longitude != plan.RouteElements[0].Longitude {
		t.Errorf("first element position = %f,%f, want %f,%f",
			first.Latitude, first.Longitude,
			plan.RouteElements[0].Latitude, plan.RouteElements[0].Longitude)
	}

	if len(got.RouteSegments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(got.RouteSegments))
	}
	if got.RouteSegments[0].Distance != plan.RouteSegments[0].Distance {
		t.Errorf("segment distance = %f, want %f", got.RouteSegments[0].Distance, plan.RouteSegments[0].Distance)
	}
}

func TestFetchPlanMissing(t *testing.T) {
	db := setupTestHistoric(t)
	if db == nil {
		t.Skip("No PostgreSQL connection available")
	}
	defer db.Close()

	got, err := db.FetchPlan(context.Background(), 404404404)
	if err != nil {
		t.Fatalf("fetch plan: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing plan, got %+v", got)
	}
}

func TestFetchPlanCoordinateTextFallback(t *testing.T) {
	db := setupTestHistoric(t)
	if db == nil {
		t.Skip("No PostgreSQL connection available")
	}
	defer db.Close()

	ctx := context.Background()
	const instanceID, routeID = 900002, 909002

	cleanup := func() {
		_, _ = db.pool.Exec(ctx, "DELETE FROM flight_plans WHERE instance_id = $1", instanceID)
		_, _ = db.pool.Exec(ctx, "DELETE FROM route_elements WHERE route_id = $1", routeID)
	}
	cleanup()
	defer cleanup()

	_, err := db.pool.Exec(ctx, `
		INSERT INTO flight_plans (instance_id, route_id, indicative)
		VALUES ($1, $2, 'TAM3886')
	`, instanceID, routeID)
	if err != nil {
		t.Fatalf("insert plan row: %v", err)
	}

	// Corrupt geometry with a usable coordinate text.
	_, err = db.pool.Exec(ctx, `
		INSERT INTO route_elements (route_id, element_id, sequence_number, indicative, element_type, geometry, coordinate_text)
		VALUES ($1, 1, 0, 'SBSP', 'AERODROME', $2, '2337S04630W')
	`, routeID, []byte{0xff, 0xfe})
	if err != nil {
		t.Fatalf("insert element row: %v", err)
	}

	got, err := db.FetchPlan(ctx, instanceID)
	if err != nil {
		t.Fatalf("fetch plan: %v", err)
	}
	if len(got.RouteElements) != 1 {
		t.Fatalf("expected 1 element, got %d", len(got.RouteElements))
	}

	e := got.RouteElements[0]
	wantLat := -(23.0 + 37.0/60.0)
	if diff := e.Latitude - wantLat; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("fallback latitude = %f, want %f", e.Latitude, wantLat)
	}
}

func TestFetchPlanDeserializeFault(t *testing.T) {
	db := setupTestHistoric(t)
	if db == nil {
		t.Skip("No PostgreSQL connection available")
	}
	defer db.Close()

	ctx := context.Background()
	const instanceID, routeID = 900003, 909003

	cleanup := func() {
		_, _ = db.pool.Exec(ctx, "DELETE FROM flight_plans WHERE instance_id = $1", instanceID)
		_, _ = db.pool.Exec(ctx, "DELETE FROM route_elements WHERE route_id = $1", routeID)
	}
	cleanup()
	defer cleanup()

	_, err := db.pool.Exec(ctx, `
		INSERT INTO flight_plans (instance_id, route_id, indicative)
		VALUES ($1, $2, 'TAM3886')
	`, instanceID, routeID)
	if err != nil {
		t.Fatalf("insert plan row: %v", err)
	}

	// Corrupt geometry and no coordinate text: the element position is
	// unrecoverable.
	_, err = db.pool.Exec(ctx, `
		INSERT INTO route_elements (route_id, element_id, sequence_number, indicative, element_type, geometry)
		VALUES ($1, 1, 0, 'SBSP', 'AERODROME', $2)
	`, routeID, []byte{0xff, 0xfe})
	if err != nil {
		t.Fatalf("insert element row: %v", err)
	}

	_, err = db.FetchPlan(ctx, instanceID)
	if err == nil {
		t.Fatal("expected deserialize error")
	}
	if !errors.Is(err, ErrDeserialize) {
		t.Errorf("error %v does not wrap ErrDeserialize", err)
	}
}
