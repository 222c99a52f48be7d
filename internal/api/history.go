package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"flight_fusion/internal/storage"
)

const defaultHistoryLimit = 50

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultHistoryLimit)
	records, err := s.store.RecentProcessingRecords(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, historyPayload(records))
}

func (s *Server) handleHistoryStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.ProcessingStatistics(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHistoryToday(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ProcessingRecordsToday(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, historyPayload(records))
}

func (s *Server) handleHistoryByOperation(w http.ResponseWriter, r *http.Request) {
	operation := strings.ToUpper(chi.URLParam(r, "operation"))
	limit := queryInt(r, "limit", defaultHistoryLimit)

	records, err := s.store.ProcessingRecordsByOperation(r.Context(), operation, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, historyPayload(records))
}

func (s *Server) handleHistoryByStatus(w http.ResponseWriter, r *http.Request) {
	status := strings.ToUpper(chi.URLParam(r, "status"))
	limit := queryInt(r, "limit", defaultHistoryLimit)

	records, err := s.store.ProcessingRecordsByStatus(r.Context(), status, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, historyPayload(records))
}

func (s *Server) handleHistoryCleanup(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("days")
	days, err := strconv.Atoi(raw)
	if err != nil || days < 1 {
		writeError(w, http.StatusBadRequest, "days must be a positive integer")
		return
	}

	entry := s.begin(w, r, storage.OpCleanupHistory, "/api/processing-history/cleanup", map[string]int{"days": days})
	if entry == nil {
		return
	}

	deleted, err := s.store.CleanupProcessingRecords(r.Context(), days)
	if err != nil {
		_ = entry.Fail(auditCtx(r), err.Error(), 0, 0)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	_ = entry.Finish(auditCtx(r), int(deleted), 0, fmt.Sprintf("%d records older than %d days removed", deleted, days))

	writeJSON(w, http.StatusOK, map[string]any{
		"deleted":       deleted,
		"olderThanDays": days,
	})
}

// historyPayload keeps an empty result an empty JSON array.
func historyPayload(records []*storage.ProcessingRecord) []*storage.ProcessingRecord {
	if records == nil {
		return []*storage.ProcessingRecord{}
	}
	return records
}
