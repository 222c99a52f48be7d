package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vmihailenco/msgpack/v5"

	"flight_fusion/internal/geo"
)

// HistoricConfig holds historic store connection settings.
type HistoricConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// HistoricDB wraps a PostgreSQL pool holding the prediction object graph:
// flight plans, their route elements and the segments joining them.
type HistoricDB struct {
	pool *pgxpool.Pool
}

// OpenHistoric opens a connection pool to the historic store.
func OpenHistoric(ctx context.Context, cfg HistoricConfig) (*HistoricDB, error) {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse historic config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open historic store: %w", err)
	}

	// Test the connection.
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping historic store: %w", err)
	}

	return &HistoricDB{pool: pool}, nil
}

// Close closes the historic store pool.
func (d *HistoricDB) Close() {
	d.pool.Close()
}

// Ping reports whether the historic store is reachable.
func (d *HistoricDB) Ping(ctx context.Context) error {
	return d.pool.Ping(ctx)
}

// Pool returns the underlying connection pool for advanced operations.
func (d *HistoricDB) Pool() *pgxpool.Pool {
	return d.pool
}

// CreateSchema creates the historic store tables.
func (d *HistoricDB) CreateSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS flight_plans (
		instance_id     BIGINT PRIMARY KEY,
		route_id        BIGINT NOT NULL,
		indicative      TEXT NOT NULL DEFAULT '',
		aircraft_type   TEXT NOT NULL DEFAULT '',
		airline         TEXT NOT NULL DEFAULT '',
		start_point     TEXT NOT NULL DEFAULT '',
		end_point       TEXT NOT NULL DEFAULT '',
		cruise_level    INTEGER NOT NULL DEFAULT 0,
		cruise_speed    INTEGER NOT NULL DEFAULT 0,
		time_range      TEXT NOT NULL DEFAULT '',
		flight_plan_date TEXT NOT NULL DEFAULT '',
		current_arrival TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_flight_plans_route ON flight_plans(route_id);
	CREATE INDEX IF NOT EXISTS idx_flight_plans_indicative ON flight_plans(indicative);

	CREATE TABLE IF NOT EXISTS route_elements (
		route_id        BIGINT NOT NULL,
		element_id      BIGINT NOT NULL,
		sequence_number INTEGER NOT NULL,
		indicative      TEXT NOT NULL DEFAULT '',
		element_type    TEXT NOT NULL DEFAULT '',
		geometry        BYTEA,
		coordinate_text TEXT NOT NULL DEFAULT '',
		level_meters    DOUBLE PRECISION NOT NULL DEFAULT 0,
		altitude        DOUBLE PRECISION NOT NULL DEFAULT 0,
		speed_mps       DOUBLE PRECISION NOT NULL DEFAULT 0,
		eet_minutes     DOUBLE PRECISION NOT NULL DEFAULT 0,
		PRIMARY KEY (route_id, sequence_number)
	);

	CREATE INDEX IF NOT EXISTS idx_route_elements_element ON route_elements(element_id);

	CREATE TABLE IF NOT EXISTS route_segments (
		route_id        BIGINT NOT NULL,
		segment_id      BIGINT NOT NULL,
		distance        DOUBLE PRECISION NOT NULL DEFAULT 0,
		element_a       BIGINT NOT NULL,
		element_b       BIGINT NOT NULL,
		PRIMARY KEY (route_id, segment_id)
	);
	`

	_, err := d.pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("create historic schema: %w", err)
	}
	return nil
}

// pointGeometry is the msgpack shape of a route element position.
type pointGeometry struct {
	Latitude  float64 `msgpack:"latitude"`
	Longitude float64 `msgpack:"longitude"`
}

// EncodePointGeometry packs a position into the stored geometry form.
func EncodePointGeometry(latitude, longitude float64) ([]byte, error) {
	return msgpack.Marshal(pointGeometry{Latitude: latitude, Longitude: longitude})
}

// FetchPlan assembles the prediction document for one plan, or returns nil
// when the plan is not stored. Element positions come from the packed
// geometry column, falling back to the coordinate text; an element with
// neither yields an ErrDeserialize-wrapped error.
func (d *HistoricDB) FetchPlan(ctx context.Context, planID int64) (*PredictedFlight, error) {
	var p PredictedFlight
	err := d.pool.QueryRow(ctx, `
		SELECT instance_id, route_id, indicative, aircraft_type, airline,
			start_point, end_point, cruise_level, cruise_speed, time_range,
			flight_plan_date, current_arrival
		FROM flight_plans WHERE instance_id = $1
	`, planID).Scan(
		&p.InstanceID, &p.RouteID, &p.Indicative, &p.AircraftType, &p.Airline,
		&p.StartPointIndicative, &p.EndPointIndicative, &p.CruiseLevel, &p.CruiseSpeed, &p.Time,
		&p.FlightPlanDate, &p.CurrentDateTimeOfArrival,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch plan %d: %w", planID, err)
	}

	elements, err := d.fetchRouteElements(ctx, planID, p.RouteID)
	if err != nil {
		return nil, err
	}
	p.RouteElements = elements
	p.TotalRouteElements = len(elements)

	segments, err := d.fetchRouteSegments(ctx, p.RouteID)
	if err != nil {
		return nil, fmt.Errorf("fetch segments of plan %d: %w", planID, err)
	}
	p.RouteSegments = segments

	return &p, nil
}

func (d *HistoricDB) fetchRouteElements(ctx context.Context, planID, routeID int64) ([]RouteElement, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT sequence_number, indicative, element_type, geometry, coordinate_text,
			level_meters, altitude, speed_mps, eet_minutes
		FROM route_elements
		WHERE route_id = $1
		ORDER BY sequence_number
	`, routeID)
	if err != nil {
		return nil, fmt.Errorf("fetch elements of plan %d: %w", planID, err)
	}
	defer rows.Close()

	var elements []RouteElement
	for rows.Next() {
		var e RouteElement
		var geometry []byte
		err := rows.Scan(&e.SequenceNumber, &e.Indicative, &e.ElementType, &geometry, &e.CoordinateText,
			&e.LevelMeters, &e.Altitude, &e.SpeedMeterPerSecond, &e.EetMinutes)
		if err != nil {
			return nil, fmt.Errorf("scan element of plan %d: %w", planID, err)
		}

		if err := resolveElementPosition(&e, geometry); err != nil {
			return nil, fmt.Errorf("plan %d element %d: %w", planID, e.SequenceNumber, err)
		}
		elements = append(elements, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate elements of plan %d: %w", planID, err)
	}
	return elements, nil
}

// resolveElementPosition fills latitude and longitude from the packed
// geometry, then from the coordinate text.
func resolveElementPosition(e *RouteElement, geometry []byte) error {
	if len(geometry) > 0 {
		var point pointGeometry
		if err := msgpack.Unmarshal(geometry, &point); err == nil {
			e.Latitude = point.Latitude
			e.Longitude = point.Longitude
			return nil
		}
	}
	if e.CoordinateText != "" {
		lat, lon, err := geo.ParseCoordinateText(e.CoordinateText)
		if err == nil {
			e.Latitude = lat
			e.Longitude = lon
			return nil
		}
	}
	return ErrDeserialize
}

func (d *HistoricDB) fetchRouteSegments(ctx context.Context, routeID int64) ([]RouteSegment, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT segment_id, distance, element_a, element_b
		FROM route_segments
		WHERE route_id = $1
		ORDER BY segment_id
	`, routeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var segments []RouteSegment
	for rows.Next() {
		var s RouteSegment
		if err := rows.Scan(&s.ID, &s.Distance, &s.ElementAID, &s.ElementBID); err != nil {
			return nil, err
		}
		segments = append(segments, s)
	}
	return segments, rows.Err()
}

// UpsertFlightPlan writes a whole plan graph: the plan row, its route
// elements with packed geometry, and its segments. Used by the backfill
// tooling and the live-store tests.
func (d *HistoricDB) UpsertFlightPlan(ctx context.Context, p *PredictedFlight) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin plan upsert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO flight_plans (instance_id, route_id, indicative, aircraft_type, airline,
			start_point, end_point, cruise_level, cruise_speed, time_range,
			flight_plan_date, current_arrival)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (instance_id) DO UPDATE SET
			route_id = EXCLUDED.route_id,
			indicative = EXCLUDED.indicative,
			aircraft_type = EXCLUDED.aircraft_type,
			airline = EXCLUDED.airline,
			start_point = EXCLUDED.start_point,
			end_point = EXCLUDED.end_point,
			cruise_level = EXCLUDED.cruise_level,
			cruise_speed = EXCLUDED.cruise_speed,
			time_range = EXCLUDED.time_range,
			flight_plan_date = EXCLUDED.flight_plan_date,
			current_arrival = EXCLUDED.current_arrival
	`, p.InstanceID, p.RouteID, p.Indicative, p.AircraftType, p.Airline,
		p.StartPointIndicative, p.EndPointIndicative, p.CruiseLevel, p.CruiseSpeed, p.Time,
		p.FlightPlanDate, p.CurrentDateTimeOfArrival)
	if err != nil {
		return fmt.Errorf("upsert plan %d: %w", p.InstanceID, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM route_elements WHERE route_id = $1`, p.RouteID); err != nil {
		return fmt.Errorf("clear elements of route %d: %w", p.RouteID, err)
	}
	for i, e := range p.RouteElements {
		geometry, err := EncodePointGeometry(e.Latitude, e.Longitude)
		if err != nil {
			return fmt.Errorf("pack geometry of element %d: %w", i, err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO route_elements (route_id, element_id, sequence_number, indicative, element_type,
				geometry, coordinate_text, level_meters, altitude, speed_mps, eet_minutes)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, p.RouteID, int64(i+1), e.SequenceNumber, e.Indicative, e.ElementType,
			geometry, e.CoordinateText, e.LevelMeters, e.Altitude, e.SpeedMeterPerSecond, e.EetMinutes)
		if err != nil {
			return fmt.Errorf("insert element %d of route %d: %w", i, p.RouteID, err)
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM route_segments WHERE route_id = $1`, p.RouteID); err != nil {
		return fmt.Errorf("clear segments of route %d: %w", p.RouteID, err)
	}
	for _, s := range p.RouteSegments {
		_, err = tx.Exec(ctx, `
			INSERT INTO route_segments (route_id, segment_id, distance, element_a, element_b)
			VALUES ($1, $2, $3, $4, $5)
		`, p.RouteID, s.ID, s.Distance, s.ElementAID, s.ElementBID)
		if err != nil {
			return fmt.Errorf("insert segment %d of route %d: %w", s.ID, p.RouteID, err)
		}
	}

	return tx.Commit(ctx)
}
