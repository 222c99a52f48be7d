package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DocStore is the fused-flight document store: three collections in one
// SQLite database (flights, predicted_flights, processing_history).
type DocStore struct {
	db *sql.DB
}

const docSchema = `
CREATE TABLE IF NOT EXISTS flights (
	plan_id INTEGER PRIMARY KEY,
	indicative TEXT NOT NULL DEFAULT '',
	track_id TEXT NOT NULL DEFAULT '',
	aircraft_type TEXT NOT NULL DEFAULT '',
	airline TEXT NOT NULL DEFAULT '',
	start_point TEXT NOT NULL DEFAULT '',
	end_point TEXT NOT NULL DEFAULT '',
	cruise_level INTEGER NOT NULL DEFAULT 0,
	cruise_speed INTEGER NOT NULL DEFAULT 0,
	eobt TEXT NOT NULL DEFAULT '',
	eta TEXT NOT NULL DEFAULT '',
	flight_plan_date TEXT NOT NULL DEFAULT '',
	current_arrival TEXT NOT NULL DEFAULT '',
	finished INTEGER NOT NULL DEFAULT 0,
	flight_rules TEXT NOT NULL DEFAULT '',
	ssr_code TEXT NOT NULL DEFAULT '',
	has_tracking_data INTEGER NOT NULL DEFAULT 0,
	total_tracking_points INTEGER NOT NULL DEFAULT 0,
	last_packet_timestamp INTEGER NOT NULL DEFAULT 0,
	tracking_points TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
);

CREATE INDEX IF NOT EXISTS idx_flights_indicative ON flights(indicative);
CREATE INDEX IF NOT EXISTS idx_flights_start_point ON flights(start_point);
CREATE INDEX IF NOT EXISTS idx_flights_end_point ON flights(end_point);

CREATE TABLE IF NOT EXISTS predicted_flights (
	instance_id INTEGER PRIMARY KEY,
	route_id INTEGER NOT NULL DEFAULT 0,
	indicative TEXT NOT NULL DEFAULT '',
	aircraft_type TEXT NOT NULL DEFAULT '',
	airline TEXT NOT NULL DEFAULT '',
	start_point TEXT NOT NULL DEFAULT '',
	end_point TEXT NOT NULL DEFAULT '',
	cruise_level INTEGER NOT NULL DEFAULT 0,
	cruise_speed INTEGER NOT NULL DEFAULT 0,
	time_range TEXT NOT NULL DEFAULT '',
	flight_plan_date TEXT NOT NULL DEFAULT '',
	current_arrival TEXT NOT NULL DEFAULT '',
	total_route_elements INTEGER NOT NULL DEFAULT 0,
	route_elements TEXT NOT NULL DEFAULT '[]',
	route_segments TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_predicted_indicative ON predicted_flights(indicative);
CREATE INDEX IF NOT EXISTS idx_predicted_start_point ON predicted_flights(start_point);
CREATE INDEX IF NOT EXISTS idx_predicted_end_point ON predicted_flights(end_point);

CREATE TABLE IF NOT EXISTS processing_history (
	id TEXT PRIMARY KEY,
	timestamp TEXT NOT NULL,
	operation TEXT NOT NULL,
	endpoint TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	records_processed INTEGER NOT NULL DEFAULT 0,
	records_with_errors INTEGER NOT NULL DEFAULT 0,
	details TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	request_parameters TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_history_timestamp ON processing_history(timestamp);
CREATE INDEX IF NOT EXISTS idx_history_operation ON processing_history(operation);
CREATE INDEX IF NOT EXISTS idx_history_status ON processing_history(status);
`

// OpenDocStore opens or creates the document store at the given path. An
// empty path means an in-memory database.
func OpenDocStore(path string) (*DocStore, error) {
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open document store: %w", err)
	}

	if path == ":memory:" {
		// A second pooled connection would see a separate empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(docSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create document schema: %w", err)
	}

	return &DocStore{db: db}, nil
}

// Close closes the database connection.
func (d *DocStore) Close() error {
	return d.db.Close()
}

// Ping reports whether the store is reachable.
func (d *DocStore) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}
