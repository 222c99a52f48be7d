package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"flight_fusion/internal/geo"
)

const flightColumns = `plan_id, indicative, track_id, aircraft_type, airline,
	start_point, end_point, cruise_level, cruise_speed, eobt, eta,
	flight_plan_date, current_arrival, finished, flight_rules, ssr_code,
	has_tracking_data, total_tracking_points, last_packet_timestamp, tracking_points`

// UpsertFlight writes the whole flight document keyed by planId.
func (d *DocStore) UpsertFlight(ctx context.Context, f *Flight) error {
	if f.PlanID == 0 {
		return fmt.Errorf("upsert flight: planId is zero")
	}

	points, err := json.Marshal(f.TrackingPoints)
	if err != nil {
		return fmt.Errorf("marshal tracking points: %w", err)
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO flights (
			plan_id, indicative, track_id, aircraft_type, airline,
			start_point, end_point, cruise_level, cruise_speed, eobt, eta,
			flight_plan_date, current_arrival, finished, flight_rules, ssr_code,
			has_tracking_data, total_tracking_points, last_packet_timestamp, tracking_points
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(plan_id) DO UPDATE SET
			indicative = excluded.indicative,
			track_id = excluded.track_id,
			aircraft_type = excluded.aircraft_type,
			airline = excluded.airline,
			start_point = excluded.start_point,
			end_point = excluded.end_point,
			cruise_level = excluded.cruise_level,
			cruise_speed = excluded.cruise_speed,
			eobt = excluded.eobt,
			eta = excluded.eta,
			flight_plan_date = excluded.flight_plan_date,
			current_arrival = excluded.current_arrival,
			finished = excluded.finished,
			flight_rules = excluded.flight_rules,
			ssr_code = excluded.ssr_code,
			has_tracking_data = excluded.has_tracking_data,
			total_tracking_points = excluded.total_tracking_points,
			last_packet_timestamp = excluded.last_packet_timestamp,
			tracking_points = excluded.tracking_points
	`,
		f.PlanID, f.Indicative, f.TrackID, f.AircraftType, f.Airline,
		f.StartPointIndicative, f.EndPointIndicative, f.CruiseLevel, f.CruiseSpeed, f.EOBT, f.ETA,
		f.FlightPlanDate, f.CurrentDateTimeOfArrival, boolToInt(f.Finished), f.FlightRules, f.SSRCode,
		boolToInt(f.HasTrackingData), f.TotalTrackingPoints, f.LastPacketTimestamp, string(points),
	)
	if err != nil {
		return fmt.Errorf("upsert flight %d: %w", f.PlanID, err)
	}
	return nil
}

// GetFlightByPlanID returns the flight for a planId, or nil when absent.
func (d *DocStore) GetFlightByPlanID(ctx context.Context, planID int64) (*Flight, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+flightColumns+` FROM flights WHERE plan_id = ?`, planID)

	f, err := scanFlight(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get flight %d: %w", planID, err)
	}
	return f, nil
}

// GetFlightByIndicative returns the first flight carrying the indicative, in
// creation order, or nil when none exists.
func (d *DocStore) GetFlightByIndicative(ctx context.Context, indicative string) (*Flight, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+flightColumns+` FROM flights WHERE indicative = ? ORDER BY created_at, plan_id LIMIT 1`,
		indicative)

	f, err := scanFlight(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get flight by indicative %q: %w", indicative, err)
	}
	return f, nil
}

// GetFlightsByIndicative returns every flight carrying the indicative in
// creation order. The ingester needs all of them to disambiguate.
func (d *DocStore) GetFlightsByIndicative(ctx context.Context, indicative string) ([]*Flight, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+flightColumns+` FROM flights WHERE indicative = ? ORDER BY created_at, plan_id`,
		indicative)
	if err != nil {
		return nil, fmt.Errorf("query flights by indicative %q: %w", indicative, err)
	}
	defer func() { _ = rows.Close() }()

	return collectFlights(rows)
}

// ListFlights returns a page of flights ordered by planId.
func (d *DocStore) ListFlights(ctx context.Context, limit, offset int) ([]*Flight, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+flightColumns+` FROM flights ORDER BY plan_id LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list flights: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectFlights(rows)
}

// CountFlights returns the number of stored flights.
func (d *DocStore) CountFlights(ctx context.Context) (int64, error) {
	var n int64
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM flights`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count flights: %w", err)
	}
	return n, nil
}

// UniqueFlightIndicatives returns the number of distinct indicatives.
func (d *DocStore) UniqueFlightIndicatives(ctx context.Context) (int64, error) {
	var n int64
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT indicative) FROM flights WHERE indicative != ''`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count flight indicatives: %w", err)
	}
	return n, nil
}

// AllFlightPlanIDs returns every stored planId in ascending order.
func (d *DocStore) AllFlightPlanIDs(ctx context.Context) ([]int64, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT plan_id FROM flights ORDER BY plan_id`)
	if err != nil {
		return nil, fmt.Errorf("list plan ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan plan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteFlightByPlanID removes one flight, reporting whether it existed.
func (d *DocStore) DeleteFlightByPlanID(ctx context.Context, planID int64) (bool, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM flights WHERE plan_id = ?`, planID)
	if err != nil {
		return false, fmt.Errorf("delete flight %d: %w", planID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SearchFlights performs a case-insensitive substring search on the given
// field and returns up to limit flights.
func (d *DocStore) SearchFlights(ctx context.Context, field SearchField, query string, limit int) ([]*Flight, error) {
	if limit <= 0 {
		limit = 50
	}

	var where string
	switch field {
	case SearchByPlanID:
		where = `instr(CAST(plan_id AS TEXT), ?) > 0`
	case SearchByIndicative:
		where = `instr(upper(indicative), upper(?)) > 0`
	case SearchByOrigin:
		where = `instr(upper(start_point), upper(?)) > 0`
	case SearchByDestination:
		where = `instr(upper(end_point), upper(?)) > 0`
	default:
		return nil, fmt.Errorf("unknown search field %q", field)
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT `+flightColumns+` FROM flights WHERE `+where+` ORDER BY plan_id LIMIT ?`,
		query, limit)
	if err != nil {
		return nil, fmt.Errorf("search flights by %s: %w", field, err)
	}
	defer func() { _ = rows.Close() }()

	return collectFlights(rows)
}

// CleanupResult reports one duplicate-point cleanup run.
type CleanupResult struct {
	FlightsExamined int `json:"flightsExamined"`
	FlightsCleaned  int `json:"flightsCleaned"`
	PointsRemoved   int `json:"pointsRemoved"`
}

// CleanupDuplicatePoints reduces every flight's tracking points to legacy
// key uniqueness (coordinates and indicative, no timestamp), keeping the
// first occurrence in insertion order.
func (d *DocStore) CleanupDuplicatePoints(ctx context.Context) (CleanupResult, error) {
	var result CleanupResult

	flights, err := d.collectAllFlights(ctx)
	if err != nil {
		return result, err
	}

	for _, f := range flights {
		result.FlightsExamined++

		seen := make(map[string]bool, len(f.TrackingPoints))
		kept := f.TrackingPoints[:0]
		for _, tp := range f.TrackingPoints {
			key := geo.CoordKey(tp.Latitude, tp.Longitude, tp.IndicativeSafe)
			if seen[key] {
				continue
			}
			seen[key] = true
			kept = append(kept, tp)
		}

		removed := len(f.TrackingPoints) - len(kept)
		if removed == 0 {
			continue
		}

		f.TrackingPoints = kept
		f.TotalTrackingPoints = len(kept)
		f.HasTrackingData = len(kept) > 0
		if err := d.UpsertFlight(ctx, f); err != nil {
			return result, err
		}

		result.FlightsCleaned++
		result.PointsRemoved += removed
	}

	return result, nil
}

// collectAllFlights reads every flight into memory before any write, so the
// cleanup does not interleave a cursor with updates on one connection.
func (d *DocStore) collectAllFlights(ctx context.Context) ([]*Flight, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT `+flightColumns+` FROM flights ORDER BY plan_id`)
	if err != nil {
		return nil, fmt.Errorf("list flights: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectFlights(rows)
}

func collectFlights(rows *sql.Rows) ([]*Flight, error) {
	var flights []*Flight
	for rows.Next() {
		f, err := scanFlight(rows)
		if err != nil {
			return nil, fmt.Errorf("scan flight: %w", err)
		}
		flights = append(flights, f)
	}
	return flights, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFlight(row rowScanner) (*Flight, error) {
	var f Flight
	var finished, hasTracking int
	var points string

	err := row.Scan(
		&f.PlanID, &f.Indicative, &f.TrackID, &f.AircraftType, &f.Airline,
		&f.StartPointIndicative, &f.EndPointIndicative, &f.CruiseLevel, &f.CruiseSpeed, &f.EOBT, &f.ETA,
		&f.FlightPlanDate, &f.CurrentDateTimeOfArrival, &finished, &f.FlightRules, &f.SSRCode,
		&hasTracking, &f.TotalTrackingPoints, &f.LastPacketTimestamp, &points,
	)
	if err != nil {
		return nil, err
	}

	f.Finished = finished == 1
	f.HasTrackingData = hasTracking == 1
	if err := json.Unmarshal([]byte(points), &f.TrackingPoints); err != nil {
		return nil, fmt.Errorf("unmarshal tracking points of %d: %w", f.PlanID, err)
	}
	return &f, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
