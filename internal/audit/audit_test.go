package audit

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"flight_fusion/internal/storage"
)

func newAuditRecorder(t *testing.T) (*Recorder, *storage.DocStore) {
	t.Helper()
	store, err := storage.OpenDocStore("")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return NewRecorder(store, slog.New(slog.NewTextHandler(io.Discard, nil))), store
}

func TestBeginOpensInProgressRecord(t *testing.T) {
	rec, store := newAuditRecorder(t)
	ctx := context.Background()

	e, err := rec.Begin(ctx, storage.OpProcessRealData, "/api/oracle/process", "date=2025-07-11")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if e.ID() == "" {
		t.Fatal("expected a generated audit id")
	}

	records, err := store.RecentProcessingRecords(ctx, 10)
	if err != nil {
		t.Fatalf("recent records: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	r := records[0]
	if r.Status != storage.StatusInProgress {
		t.Errorf("status = %q, want %q", r.Status, storage.StatusInProgress)
	}
	if r.Operation != storage.OpProcessRealData {
		t.Errorf("operation = %q, want %q", r.Operation, storage.OpProcessRealData)
	}
	if r.RequestParameters != "date=2025-07-11" {
		t.Errorf("requestParameters = %q, want date=2025-07-11", r.RequestParameters)
	}
}

func TestFinishStatusFromCounts(t *testing.T) {
	tests := []struct {
		name       string
		processed  int
		withErrors int
		want       string
	}{
		{"clean run", 42, 0, storage.StatusSuccess},
		{"partial run", 40, 2, storage.StatusPartialSuccess},
		{"nothing succeeded", 0, 5, storage.StatusFailure},
		{"empty run", 0, 0, storage.StatusSuccess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, store := newAuditRecorder(t)
			ctx := context.Background()

			e, err := rec.Begin(ctx, storage.OpSyncPredictedData, "/api/predicted-flights/auto-sync", "")
			if err != nil {
				t.Fatalf("begin: %v", err)
			}
			if err := e.Finish(ctx, tt.processed, tt.withErrors, "details"); err != nil {
				t.Fatalf("finish: %v", err)
			}

			records, err := store.RecentProcessingRecords(ctx, 1)
			if err != nil {
				t.Fatalf("recent records: %v", err)
			}
			r := records[0]
			if r.Status != tt.want {
				t.Errorf("status = %q, want %q", r.Status, tt.want)
			}
			if r.RecordsProcessed != tt.processed {
				t.Errorf("recordsProcessed = %d, want %d", r.RecordsProcessed, tt.processed)
			}
			if r.RecordsWithErrors != tt.withErrors {
				t.Errorf("recordsWithErrors = %d, want %d", r.RecordsWithErrors, tt.withErrors)
			}
		})
	}
}

func TestFailRecordsMessage(t *testing.T) {
	rec, store := newAuditRecorder(t)
	ctx := context.Background()

	e, err := rec.Begin(ctx, storage.OpDensifyPredictedData, "/api/trajectory-densification/auto-sync", "")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := e.Fail(ctx, "document store unreachable", 0, 0); err != nil {
		t.Fatalf("fail: %v", err)
	}

	records, err := store.RecentProcessingRecords(ctx, 1)
	if err != nil {
		t.Fatalf("recent records: %v", err)
	}
	r := records[0]
	if r.Status != storage.StatusFailure {
		t.Errorf("status = %q, want %q", r.Status, storage.StatusFailure)
	}
	if r.ErrorMessage != "document store unreachable" {
		t.Errorf("errorMessage = %q, want the exception message", r.ErrorMessage)
	}
}

func TestSecondCompletionIsDropped(t *testing.T) {
	rec, store := newAuditRecorder(t)
	ctx := context.Background()

	e, err := rec.Begin(ctx, storage.OpPunctualityAnalysis, "/api/punctuality/kpis", "")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := e.Finish(ctx, 3, 0, "first"); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if err := e.Fail(ctx, "late failure", 0, 1); err != nil {
		t.Fatalf("second completion should be a no-op, got %v", err)
	}

	records, err := store.RecentProcessingRecords(ctx, 1)
	if err != nil {
		t.Fatalf("recent records: %v", err)
	}
	r := records[0]
	if r.Status != storage.StatusSuccess {
		t.Errorf("status = %q, want the first terminal status %q", r.Status, storage.StatusSuccess)
	}
	if r.Details != "first" {
		t.Errorf("details = %q, want %q", r.Details, "first")
	}
}
