package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

const predictedColumns = `instance_id, route_id, indicative, aircraft_type, airline,
	start_point, end_point, cruise_level, cruise_speed, time_range,
	flight_plan_date, current_arrival, total_route_elements, route_elements, route_segments`

// UpsertPredictedFlight writes the whole prediction document keyed by
// instanceId.
func (d *DocStore) UpsertPredictedFlight(ctx context.Context, p *PredictedFlight) error {
	if p.InstanceID == 0 {
		return fmt.Errorf("upsert prediction: instanceId is zero")
	}

	elements, err := json.Marshal(p.RouteElements)
	if err != nil {
		return fmt.Errorf("marshal route elements: %w", err)
	}
	segments, err := json.Marshal(p.RouteSegments)
	if err != nil {
		return fmt.Errorf("marshal route segments: %w", err)
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO predicted_flights (
			instance_id, route_id, indicative, aircraft_type, airline,
			start_point, end_point, cruise_level, cruise_speed, time_range,
			flight_plan_date, current_arrival, total_route_elements, route_elements, route_segments
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(instance_id) DO UPDATE SET
			route_id = excluded.route_id,
			indicative = excluded.indicative,
			aircraft_type = excluded.aircraft_type,
			airline = excluded.airline,
			start_point = excluded.start_point,
			end_point = excluded.end_point,
			cruise_level = excluded.cruise_level,
			cruise_speed = excluded.cruise_speed,
			time_range = excluded.time_range,
			flight_plan_date = excluded.flight_plan_date,
			current_arrival = excluded.current_arrival,
			total_route_elements = excluded.total_route_elements,
			route_elements = excluded.route_elements,
			route_segments = excluded.route_segments
	`,
		p.InstanceID, p.RouteID, p.Indicative, p.AircraftType, p.Airline,
		p.StartPointIndicative, p.EndPointIndicative, p.CruiseLevel, p.CruiseSpeed, p.Time,
		p.FlightPlanDate, p.CurrentDateTimeOfArrival, p.TotalRouteElements, string(elements), string(segments),
	)
	if err != nil {
		return fmt.Errorf("upsert prediction %d: %w", p.InstanceID, err)
	}
	return nil
}

// SavePredictedFlights persists a batch in one transaction, falling back to
// per-item saves when the batch fails. Returns the number persisted and the
// instanceIds that could not be saved; records with a zero instanceId are
// counted as failed without being attempted.
func (d *DocStore) SavePredictedFlights(ctx context.Context, batch []*PredictedFlight) (int, []int64, error) {
	var valid []*PredictedFlight
	var failed []int64
	for _, p := range batch {
		if p == nil || p.InstanceID == 0 {
			failed = append(failed, 0)
			continue
		}
		valid = append(valid, p)
	}
	if len(valid) == 0 {
		return 0, failed, nil
	}

	if err := d.saveBatchTx(ctx, valid); err == nil {
		return len(valid), failed, nil
	}

	// Batch failed; retry one by one so a single bad record cannot sink
	// the rest.
	saved := 0
	for _, p := range valid {
		if err := ctx.Err(); err != nil {
			return saved, failed, err
		}
		if err := d.UpsertPredictedFlight(ctx, p); err != nil {
			failed = append(failed, p.InstanceID)
			continue
		}
		saved++
	}
	return saved, failed, nil
}

func (d *DocStore) saveBatchTx(ctx context.Context, batch []*PredictedFlight) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range batch {
		elements, err := json.Marshal(p.RouteElements)
		if err != nil {
			return fmt.Errorf("marshal route elements: %w", err)
		}
		segments, err := json.Marshal(p.RouteSegments)
		if err != nil {
			return fmt.Errorf("marshal route segments: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO predicted_flights (
				instance_id, route_id, indicative, aircraft_type, airline,
				start_point, end_point, cruise_level, cruise_speed, time_range,
				flight_plan_date, current_arrival, total_route_elements, route_elements, route_segments
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(instance_id) DO UPDATE SET
				route_id = excluded.route_id,
				indicative = excluded.indicative,
				aircraft_type = excluded.aircraft_type,
				airline = excluded.airline,
				start_point = excluded.start_point,
				end_point = excluded.end_point,
				cruise_level = excluded.cruise_level,
				cruise_speed = excluded.cruise_speed,
				time_range = excluded.time_range,
				flight_plan_date = excluded.flight_plan_date,
				current_arrival = excluded.current_arrival,
				total_route_elements = excluded.total_route_elements,
				route_elements = excluded.route_elements,
				route_segments = excluded.route_segments
		`,
			p.InstanceID, p.RouteID, p.Indicative, p.AircraftType, p.Airline,
			p.StartPointIndicative, p.EndPointIndicative, p.CruiseLevel, p.CruiseSpeed, p.Time,
			p.FlightPlanDate, p.CurrentDateTimeOfArrival, p.TotalRouteElements, string(elements), string(segments),
		)
		if err != nil {
			return fmt.Errorf("batch upsert prediction %d: %w", p.InstanceID, err)
		}
	}

	return tx.Commit()
}

// GetPredictedFlightByInstanceID returns the prediction for an instanceId,
// or nil when absent.
func (d *DocStore) GetPredictedFlightByInstanceID(ctx context.Context, instanceID int64) (*PredictedFlight, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+predictedColumns+` FROM predicted_flights WHERE instance_id = ?`, instanceID)

	p, err := scanPredictedFlight(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get prediction %d: %w", instanceID, err)
	}
	return p, nil
}

// PredictedFlightExists reports whether an instanceId is stored.
func (d *DocStore) PredictedFlightExists(ctx context.Context, instanceID int64) (bool, error) {
	var n int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM predicted_flights WHERE instance_id = ?`, instanceID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check prediction %d: %w", instanceID, err)
	}
	return n > 0, nil
}

// CountPredictedFlights returns the number of stored predictions.
func (d *DocStore) CountPredictedFlights(ctx context.Context) (int64, error) {
	var n int64
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM predicted_flights`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count predictions: %w", err)
	}
	return n, nil
}

// UniquePredictedIndicatives returns the number of distinct indicatives.
func (d *DocStore) UniquePredictedIndicatives(ctx context.Context) (int64, error) {
	var n int64
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT indicative) FROM predicted_flights WHERE indicative != ''`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count prediction indicatives: %w", err)
	}
	return n, nil
}

// AllInstanceIDs returns every stored instanceId in ascending order.
func (d *DocStore) AllInstanceIDs(ctx context.Context) ([]int64, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT instance_id FROM predicted_flights ORDER BY instance_id`)
	if err != nil {
		return nil, fmt.Errorf("list instance ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan instance id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeletePredictedFlightByInstanceID removes one prediction, reporting
// whether it existed.
func (d *DocStore) DeletePredictedFlightByInstanceID(ctx context.Context, instanceID int64) (bool, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM predicted_flights WHERE instance_id = ?`, instanceID)
	if err != nil {
		return false, fmt.Errorf("delete prediction %d: %w", instanceID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ReplaceRouteElements swaps in a densified element sequence for one
// prediction. Nothing else on the document changes.
func (d *DocStore) ReplaceRouteElements(ctx context.Context, instanceID int64, elements []RouteElement) error {
	encoded, err := json.Marshal(elements)
	if err != nil {
		return fmt.Errorf("marshal route elements: %w", err)
	}

	res, err := d.db.ExecContext(ctx,
		`UPDATE predicted_flights SET route_elements = ?, total_route_elements = ? WHERE instance_id = ?`,
		string(encoded), len(elements), instanceID)
	if err != nil {
		return fmt.Errorf("replace route elements of %d: %w", instanceID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("replace route elements: prediction %d not found", instanceID)
	}
	return nil
}

// SearchPredictedFlights performs a case-insensitive substring search on the
// given field and returns up to limit predictions.
func (d *DocStore) SearchPredictedFlights(ctx context.Context, field SearchField, query string, limit int) ([]*PredictedFlight, error) {
	if limit <= 0 {
		limit = 50
	}

	var where string
	switch field {
	case SearchByPlanID:
		where = `instr(CAST(instance_id AS TEXT), ?) > 0`
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
		`SELECT `+predictedColumns+` FROM predicted_flights WHERE `+where+` ORDER BY instance_id LIMIT ?`,
		query, limit)
	if err != nil {
		return nil, fmt.Errorf("search predictions by %s: %w", field, err)
	}
	defer func() { _ = rows.Close() }()

	var results []*PredictedFlight
	for rows.Next() {
		p, err := scanPredictedFlight(rows)
		if err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

func scanPredictedFlight(row rowScanner) (*PredictedFlight, error) {
	var p PredictedFlight
	var elements, segments string

	err := row.Scan(
		&p.InstanceID, &p.RouteID, &p.Indicative, &p.AircraftType, &p.Airline,
		&p.StartPointIndicative, &p.EndPointIndicative, &p.CruiseLevel, &p.CruiseSpeed, &p.Time,
		&p.FlightPlanDate, &p.CurrentDateTimeOfArrival, &p.TotalRouteElements, &elements, &segments,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(elements), &p.RouteElements); err != nil {
		return nil, fmt.Errorf("unmarshal route elements of %d: %w", p.InstanceID, err)
	}
	if err := json.Unmarshal([]byte(segments), &p.RouteSegments); err != nil {
		return nil, fmt.Errorf("unmarshal route segments of %d: %w", p.InstanceID, err)
	}
	return &p, nil
}
