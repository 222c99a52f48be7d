package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"flight_fusion/internal/audit"
	"flight_fusion/internal/densify"
	"flight_fusion/internal/storage"
)

// ProcessResponse reports one ingestion window run (step 1).
type ProcessResponse struct {
	Status                string `json:"status"`
	TotalFlightsExtracted int    `json:"totalFlightsExtracted"`
	TotalFlightsProcessed int    `json:"totalFlightsProcessed"`
	TotalTrackingPoints   int    `json:"totalTrackingPoints"`
	ProcessingTimeMs      int64  `json:"processingTimeMs"`
	Message               string `json:"message"`
}

// SyncResponse reports one prediction mirror run (step 2).
type SyncResponse struct {
	TotalRequested   int    `json:"totalRequested"`
	TotalProcessed   int    `json:"totalProcessed"`
	TotalNotFound    int    `json:"totalNotFound"`
	TotalErrors      int    `json:"totalErrors"`
	ProcessingTimeMs int64  `json:"processingTimeMs"`
	Summary          string `json:"summary"`
}

// DensifySummary carries the batch densification counts.
type DensifySummary struct {
	TotalDensifiedElements int `json:"totalDensifiedElements"`
	TotalNoAction          int `json:"totalNoAction"`
	TotalNotFound          int `json:"totalNotFound"`
	TotalErrors            int `json:"totalErrors"`
}

// DensifyBatchResponse reports one batch densification run (step 3).
type DensifyBatchResponse struct {
	TotalRequested   int            `json:"totalRequested"`
	TotalProcessed   int            `json:"totalProcessed"`
	Summary          DensifySummary `json:"summary"`
	ProcessingTimeMs int64          `json:"processingTimeMs"`
}

// CleanupResponse reports one duplicate-point cleanup run.
type CleanupResponse struct {
	storage.CleanupResult
	ProcessingTimeMs int64 `json:"processingTimeMs"`
}

func (s *Server) handleProcessRealData(w http.ResponseWriter, r *http.Request) {
	if s.sources == nil {
		writeError(w, http.StatusServiceUnavailable, "replay store not configured")
		return
	}

	q := r.URL.Query()
	date := q.Get("date")
	if date == "" {
		date = s.defaultDate
	}
	if date == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}
	day, err := time.ParseInLocation("2006-01-02", date, time.UTC)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date (use YYYY-MM-DD)")
		return
	}

	startTime, endTime := q.Get("startTime"), q.Get("endTime")
	if (startTime == "") != (endTime == "") {
		writeError(w, http.StatusBadRequest, "startTime and endTime must be provided together")
		return
	}

	from, until := day, day.Add(24*time.Hour)
	if startTime != "" {
		st, err := time.Parse("15:04", startTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid startTime (use HH:mm)")
			return
		}
		et, err := time.Parse("15:04", endTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid endTime (use HH:mm)")
			return
		}
		from = day.Add(time.Duration(st.Hour())*time.Hour + time.Duration(st.Minute())*time.Minute)
		until = day.Add(time.Duration(et.Hour())*time.Hour + time.Duration(et.Minute())*time.Minute)
		if !until.After(from) {
			writeError(w, http.StatusBadRequest, "endTime must be after startTime")
			return
		}
	}

	params := map[string]string{"date": date, "startTime": startTime, "endTime": endTime}
	entry := s.begin(w, r, storage.OpProcessRealData, "/api/oracle/process", params)
	if entry == nil {
		return
	}

	start := time.Now()
	src, err := s.sources(from, until)
	if err != nil {
		_ = entry.Fail(auditCtx(r), err.Error(), 0, 0)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer func() { _ = src.Close() }()

	res, runErr := s.ingester.Run(r.Context(), src)

	processed := res.PacketsProcessed
	withErrors := res.PacketsSkipped
	details := res.Message
	if runErr != nil {
		withErrors++
		details = fmt.Sprintf("%d packets processed, %d skipped; stream error: %v",
			res.PacketsProcessed, res.PacketsSkipped, runErr)
	}

	// A stream that never got a packet through is a failure; one that did is
	// reported with whatever it managed.
	if runErr != nil && processed == 0 {
		_ = entry.Fail(auditCtx(r), runErr.Error(), 0, withErrors)
		writeError(w, http.StatusInternalServerError, runErr.Error())
		return
	}

	_ = entry.Finish(auditCtx(r), processed, withErrors, details)

	writeJSON(w, http.StatusOK, ProcessResponse{
		Status:                audit.StatusFor(processed, withErrors),
		TotalFlightsExtracted: res.NewFlights,
		TotalFlightsProcessed: res.NewFlights + res.UpdatedFlights,
		TotalTrackingPoints:   res.PointsAppended,
		ProcessingTimeMs:      time.Since(start).Milliseconds(),
		Message:               details,
	})
}

func (s *Server) handleSyncPredicted(w http.ResponseWriter, r *http.Request) {
	if s.syncer == nil {
		writeError(w, http.StatusServiceUnavailable, "historic store not configured")
		return
	}

	entry := s.begin(w, r, storage.OpSyncPredictedData, "/api/predicted-flights/auto-sync", nil)
	if entry == nil {
		return
	}

	start := time.Now()
	res, err := s.syncer.SyncAll(r.Context())
	if err != nil {
		processed, withErrors := 0, 0
		if res != nil {
			processed = res.TotalSaved
			withErrors = res.TotalErrors + len(res.FailedIDs)
		}
		_ = entry.Fail(auditCtx(r), err.Error(), processed, withErrors)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	withErrors := res.TotalErrors + len(res.FailedIDs)
	_ = entry.Finish(auditCtx(r), res.TotalSaved, withErrors, res.Message)

	writeJSON(w, http.StatusOK, SyncResponse{
		TotalRequested:   res.TotalRequested,
		TotalProcessed:   res.TotalSaved,
		TotalNotFound:    res.TotalNotFound,
		TotalErrors:      res.TotalErrors,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		Summary:          res.Message,
	})
}

func (s *Server) handleDensifyAll(w http.ResponseWriter, r *http.Request) {
	entry := s.begin(w, r, storage.OpDensifyPredictedData, "/api/trajectory-densification/auto-sync", nil)
	if entry == nil {
		return
	}

	res, err := s.densifier.DensifyAll(r.Context())
	if err != nil {
		processed, withErrors := 0, 0
		if res != nil {
			processed = res.TotalProcessed
			withErrors = res.TotalErrors
		}
		_ = entry.Fail(auditCtx(r), err.Error(), processed, withErrors)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	details := fmt.Sprintf("%d densified, %d no action, %d not found, %d errors, %d elements added",
		res.TotalProcessed, res.TotalNoAction, res.TotalNotFound, res.TotalErrors, res.TotalDensifiedElements)
	_ = entry.Finish(auditCtx(r), res.TotalProcessed, res.TotalErrors, details)

	writeJSON(w, http.StatusOK, DensifyBatchResponse{
		TotalRequested: res.TotalRequested,
		TotalProcessed: res.TotalProcessed,
		Summary: DensifySummary{
			TotalDensifiedElements: res.TotalDensifiedElements,
			TotalNoAction:          res.TotalNoAction,
			TotalNotFound:          res.TotalNotFound,
			TotalErrors:            res.TotalErrors,
		},
		ProcessingTimeMs: res.ProcessingTimeMs,
	})
}

func (s *Server) handleDensifyOne(w http.ResponseWriter, r *http.Request) {
	planID, err := parseID(r, "planId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid planId")
		return
	}

	endpoint := "/api/trajectory-densification/densify/" + strconv.FormatInt(planID, 10)
	entry := s.begin(w, r, storage.OpDensifyPredictedData, endpoint, map[string]int64{"planId": planID})
	if entry == nil {
		return
	}

	res, err := s.densifier.Densify(r.Context(), planID)
	if err != nil {
		_ = entry.Fail(auditCtx(r), err.Error(), 0, 1)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	processed, withErrors := 0, 0
	if res.Status == densify.StatusSuccess {
		processed = 1
	}
	if res.Status == densify.StatusError {
		withErrors = 1
	}
	_ = entry.Finish(auditCtx(r), processed, withErrors, res.Message)

	// The decision (including NOT_FOUND) travels inside a 200.
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handlePunctuality(w http.ResponseWriter, r *http.Request) {
	entry := s.begin(w, r, storage.OpPunctualityAnalysis, "/api/punctuality/kpis", nil)
	if entry == nil {
		return
	}

	rep, err := s.analyzer.Punctuality(r.Context())
	if err != nil {
		_ = entry.Fail(auditCtx(r), err.Error(), 0, 0)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	details := fmt.Sprintf("%d pairs analyzed, %d parse errors", rep.TotalAnalyzed, rep.ParseErrors)
	_ = entry.Finish(auditCtx(r), rep.TotalAnalyzed, rep.ParseErrors, details)

	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleAccuracy(w http.ResponseWriter, r *http.Request) {
	entry := s.begin(w, r, storage.OpTrajectoryAccuracy, "/api/trajectory-accuracy/run", nil)
	if entry == nil {
		return
	}

	rep, err := s.analyzer.TrajectoryAccuracy(r.Context())
	if err != nil {
		_ = entry.Fail(auditCtx(r), err.Error(), 0, 0)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Skipped flights are disqualifications, not errors.
	details := fmt.Sprintf("%d flights analyzed, %d skipped, %d points",
		rep.TotalAnalyzedFlights, rep.TotalSkippedFlights, rep.AggregateMetrics.TotalPointsAnalyzed)
	_ = entry.Finish(auditCtx(r), rep.TotalAnalyzedFlights, 0, details)

	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleCleanupDuplicates(w http.ResponseWriter, r *http.Request) {
	entry := s.begin(w, r, storage.OpCleanupDuplicateData, "/api/data-management/cleanup-duplicates", nil)
	if entry == nil {
		return
	}

	start := time.Now()
	res, err := s.store.CleanupDuplicatePoints(r.Context())
	if err != nil {
		_ = entry.Fail(auditCtx(r), err.Error(), res.FlightsCleaned, 0)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	details := fmt.Sprintf("%d flights examined, %d cleaned, %d points removed",
		res.FlightsExamined, res.FlightsCleaned, res.PointsRemoved)
	_ = entry.Finish(auditCtx(r), res.FlightsExamined, 0, details)

	writeJSON(w, http.StatusOK, CleanupResponse{
		CleanupResult:    res,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	})
}
