package storage

import (
	"context"
	"fmt"
	"time"
)

const historyColumns = `id, timestamp, operation, endpoint, status, duration_ms,
	records_processed, records_with_errors, details, error_message, request_parameters`

// InsertProcessingRecord stores a new history record, normally in the
// IN_PROGRESS state.
func (d *DocStore) InsertProcessingRecord(ctx context.Context, r *ProcessingRecord) error {
	if r.ID == "" {
		return fmt.Errorf("insert processing record: empty id")
	}

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO processing_history (
			id, timestamp, operation, endpoint, status, duration_ms,
			records_processed, records_with_errors, details, error_message, request_parameters
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID, r.Timestamp, r.Operation, r.Endpoint, r.Status, r.DurationMs,
		r.RecordsProcessed, r.RecordsWithErrors, r.Details, r.ErrorMessage, r.RequestParameters,
	)
	if err != nil {
		return fmt.Errorf("insert processing record %s: %w", r.ID, err)
	}
	return nil
}

// CompleteProcessingRecord flips one record to its terminal state in a
// single update.
func (d *DocStore) CompleteProcessingRecord(ctx context.Context, id, status string, durationMs int64, processed, withErrors int, details, errorMessage string) error {
	res, err := d.db.ExecContext(ctx, `
		UPDATE processing_history
		SET status = ?, duration_ms = ?, records_processed = ?, records_with_errors = ?,
			details = ?, error_message = ?
		WHERE id = ?
	`, status, durationMs, processed, withErrors, details, errorMessage, id)
	if err != nil {
		return fmt.Errorf("complete processing record %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("complete processing record: %s not found", id)
	}
	return nil
}

// RecentProcessingRecords returns the newest records first.
func (d *DocStore) RecentProcessingRecords(ctx context.Context, limit int) ([]*ProcessingRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	return d.queryHistory(ctx,
		`SELECT `+historyColumns+` FROM processing_history ORDER BY timestamp DESC, id LIMIT ?`, limit)
}

// ProcessingRecordsByOperation filters history on the operation name.
func (d *DocStore) ProcessingRecordsByOperation(ctx context.Context, operation string, limit int) ([]*ProcessingRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	return d.queryHistory(ctx,
		`SELECT `+historyColumns+` FROM processing_history WHERE operation = ? ORDER BY timestamp DESC, id LIMIT ?`,
		operation, limit)
}

// ProcessingRecordsByStatus filters history on the status value.
func (d *DocStore) ProcessingRecordsByStatus(ctx context.Context, status string, limit int) ([]*ProcessingRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	return d.queryHistory(ctx,
		`SELECT `+historyColumns+` FROM processing_history WHERE status = ? ORDER BY timestamp DESC, id LIMIT ?`,
		status, limit)
}

// ProcessingRecordsToday returns records stamped since UTC midnight.
// Timestamps are RFC 3339 in UTC, so a lexical comparison is enough.
func (d *DocStore) ProcessingRecordsToday(ctx context.Context) ([]*ProcessingRecord, error) {
	midnight := time.Now().UTC().Truncate(24 * time.Hour).Format(time.RFC3339)
	return d.queryHistory(ctx,
		`SELECT `+historyColumns+` FROM processing_history WHERE timestamp >= ? ORDER BY timestamp DESC, id`,
		midnight)
}

// ProcessingStats summarises the history table for the dashboard.
type ProcessingStats struct {
	TotalRecords      int64            `json:"totalRecords"`
	ByStatus          map[string]int64 `json:"byStatus"`
	ByOperation       map[string]int64 `json:"byOperation"`
	SuccessRate       float64          `json:"successRate"`
	AverageDurationMs float64          `json:"averageDurationMs"`
}

// ProcessingStatistics aggregates counts per status and operation. The
// success rate counts partial successes as successes and ignores records
// still in progress.
func (d *DocStore) ProcessingStatistics(ctx context.Context) (*ProcessingStats, error) {
	stats := &ProcessingStats{
		ByStatus:    make(map[string]int64),
		ByOperation: make(map[string]int64),
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM processing_history GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("history stats by status: %w", err)
	}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		stats.ByStatus[status] = n
		stats.TotalRecords += n
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	rows, err = d.db.QueryContext(ctx,
		`SELECT operation, COUNT(*) FROM processing_history GROUP BY operation`)
	if err != nil {
		return nil, fmt.Errorf("history stats by operation: %w", err)
	}
	for rows.Next() {
		var op string
		var n int64
		if err := rows.Scan(&op, &n); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan operation count: %w", err)
		}
		stats.ByOperation[op] = n
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	good := stats.ByStatus[StatusSuccess] + stats.ByStatus[StatusPartialSuccess]
	finished := good + stats.ByStatus[StatusFailure]
	if finished > 0 {
		stats.SuccessRate = float64(good) / float64(finished)
	}

	var avg float64
	err = d.db.QueryRowContext(ctx,
		`SELECT COALESCE(AVG(duration_ms), 0) FROM processing_history WHERE status != ?`,
		StatusInProgress).Scan(&avg)
	if err != nil {
		return nil, fmt.Errorf("history average duration: %w", err)
	}
	stats.AverageDurationMs = avg

	return stats, nil
}

// CleanupProcessingRecords deletes records older than the given number of
// days and returns how many were removed.
func (d *DocStore) CleanupProcessingRecords(ctx context.Context, olderThanDays int) (int64, error) {
	if olderThanDays <= 0 {
		olderThanDays = 30
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays).Format(time.RFC3339)

	res, err := d.db.ExecContext(ctx, `DELETE FROM processing_history WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup processing history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (d *DocStore) queryHistory(ctx context.Context, query string, args ...any) ([]*ProcessingRecord, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query processing history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*ProcessingRecord
	for rows.Next() {
		var r ProcessingRecord
		err := rows.Scan(
			&r.ID, &r.Timestamp, &r.Operation, &r.Endpoint, &r.Status, &r.DurationMs,
			&r.RecordsProcessed, &r.RecordsWithErrors, &r.Details, &r.ErrorMessage, &r.RequestParameters,
		)
		if err != nil {
			return nil, fmt.Errorf("scan processing record: %w", err)
		}
		records = append(records, &r)
	}
	return records, rows.Err()
}
