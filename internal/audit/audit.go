// Package audit opens and closes the processing-history record that every
// invoked operation must leave behind: one row at start, one terminal update
// at the end, never more.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"flight_fusion/internal/storage"
)

// Recorder writes operation audit records to the document store.
type Recorder struct {
	store *storage.DocStore
	log   *slog.Logger
}

// NewRecorder creates a recorder over the given store.
func NewRecorder(store *storage.DocStore, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{store: store, log: log}
}

// Entry is the handle for one open audit record. Exactly one of Finish,
// Fail, or Complete terminates it; later calls are ignored.
type Entry struct {
	rec     *Recorder
	id      string
	started time.Time

	mu   sync.Mutex
	done bool
}

// Begin writes an IN_PROGRESS record for the operation and returns the
// handle for its terminal update.
func (r *Recorder) Begin(ctx context.Context, operation, endpoint, requestParameters string) (*Entry, error) {
	e := &Entry{rec: r, id: uuid.NewString(), started: time.Now()}
	record := &storage.ProcessingRecord{
		ID:                e.id,
		Timestamp:         time.Now().UTC().Format(time.RFC3339),
		Operation:         operation,
		Endpoint:          endpoint,
		Status:            storage.StatusInProgress,
		RequestParameters: requestParameters,
	}
	if err := r.store.InsertProcessingRecord(ctx, record); err != nil {
		return nil, err
	}
	r.log.Info("operation started", "operation", operation, "audit_id", e.id)
	return e, nil
}

// ID returns the audit record id.
func (e *Entry) ID() string {
	return e.id
}

// StatusFor derives a terminal status from an operation's counts: errors
// alongside progress is a partial success, errors without any progress is a
// failure.
func StatusFor(processed, withErrors int) string {
	switch {
	case withErrors > 0 && processed > 0:
		return storage.StatusPartialSuccess
	case withErrors > 0:
		return storage.StatusFailure
	default:
		return storage.StatusSuccess
	}
}

// Finish writes the terminal update with the status derived by StatusFor.
func (e *Entry) Finish(ctx context.Context, processed, withErrors int, details string) error {
	return e.Complete(ctx, StatusFor(processed, withErrors), processed, withErrors, details, "")
}

// Fail marks the record FAILURE with the exception message.
func (e *Entry) Fail(ctx context.Context, message string, processed, withErrors int) error {
	return e.Complete(ctx, storage.StatusFailure, processed, withErrors, "", message)
}

// Complete writes the terminal update verbatim. The first call wins; any
// further call is dropped with a warning.
func (e *Entry) Complete(ctx context.Context, status string, processed, withErrors int, details, errorMessage string) error {
	e.mu.Lock()
	if e.done {
		e.mu.Unlock()
		e.rec.log.Warn("audit record already completed", "audit_id", e.id, "status", status)
		return nil
	}
	e.done = true
	e.mu.Unlock()

	durationMs := time.Since(e.started).Milliseconds()
	if err := e.rec.store.CompleteProcessingRecord(ctx, e.id, status, durationMs, processed, withErrors, details, errorMessage); err != nil {
		e.rec.log.Error("complete audit record", "audit_id", e.id, "status", status, "error", err)
		return err
	}
	e.rec.log.Info("operation finished",
		"audit_id", e.id, "status", status,
		"processed", processed, "errors", withErrors, "duration_ms", durationMs)
	return nil
}
