// Package predict mirrors prediction documents out of the historic store
// into the local document store, one plan at a time with gentle pacing.
package predict

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"flight_fusion/internal/storage"
)

// Pacing: a short pause every few plans keeps the historic store's
// connection pool breathing during large syncs.
const (
	pacingBatch = 10
	pacingDelay = 50 * time.Millisecond
)

// PlanSource yields prediction documents by plan id. A nil document with a
// nil error means the plan is not stored.
type PlanSource interface {
	FetchPlan(ctx context.Context, planID int64) (*storage.PredictedFlight, error)
}

// SyncResult reports one sync run.
type SyncResult struct {
	TotalRequested int     `json:"totalRequested"`
	TotalExtracted int     `json:"totalExtracted"`
	TotalNotFound  int     `json:"totalNotFound"`
	TotalErrors    int     `json:"totalErrors"`
	TotalSaved     int     `json:"totalSaved"`
	FailedIDs      []int64 `json:"failedIds,omitempty"`
	Message        string  `json:"message"`
}

// Syncer pulls prediction documents from a plan source and persists them.
type Syncer struct {
	source PlanSource
	store  *storage.DocStore
	log    *slog.Logger
}

// NewSyncer creates a syncer over the given source and document store.
func NewSyncer(source PlanSource, store *storage.DocStore, log *slog.Logger) *Syncer {
	if log == nil {
		log = slog.Default()
	}
	return &Syncer{source: source, store: store, log: log}
}

// Sync fetches every requested plan and saves the extracted documents.
// Unreadable plans count as missing; fetch failures count as errors; both
// leave the run going. Only context cancellation stops it early.
func (s *Syncer) Sync(ctx context.Context, planIDs []int64) (*SyncResult, error) {
	res := &SyncResult{TotalRequested: len(planIDs)}

	var batch []*storage.PredictedFlight
	for i, id := range planIDs {
		if i > 0 && i%pacingBatch == 0 {
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			case <-time.After(pacingDelay):
			}
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		p, err := s.source.FetchPlan(ctx, id)
		if err != nil {
			if IsDeserializeFault(err) {
				res.TotalNotFound++
				s.log.Warn("plan unreadable, treating as missing", "plan_id", id, "error", err)
				continue
			}
			res.TotalErrors++
			s.log.Error("fetch plan failed", "plan_id", id, "error", err)
			continue
		}
		if p == nil {
			res.TotalNotFound++
			continue
		}

		res.TotalExtracted++
		batch = append(batch, p)
	}

	saved, failed, err := s.store.SavePredictedFlights(ctx, batch)
	res.TotalSaved = saved
	res.FailedIDs = failed
	if err != nil {
		return res, err
	}

	res.Message = fmt.Sprintf("%d extracted, %d not found, %d errors, %d saved",
		res.TotalExtracted, res.TotalNotFound, res.TotalErrors, res.TotalSaved)
	return res, nil
}

// SyncAll syncs a prediction for every flight currently stored.
func (s *Syncer) SyncAll(ctx context.Context) (*SyncResult, error) {
	ids, err := s.store.AllFlightPlanIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list plan ids: %w", err)
	}
	return s.Sync(ctx, ids)
}

// IsDeserializeFault reports whether the error chain names an object-graph
// deserialization problem. Those plans are treated as missing rather than
// failing the whole run.
func IsDeserializeFault(err error) bool {
	if errors.Is(err, storage.ErrDeserialize) {
		return true
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		if strings.Contains(strings.ToLower(e.Error()), "could not deserialize") {
			return true
		}
	}
	return false
}
