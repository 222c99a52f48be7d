package api

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strings"

	"flight_fusion/internal/storage"
)

const searchLimit = 50

// SearchResponse carries the matches of one flight search.
type SearchResponse struct {
	RealFlights      []*storage.Flight          `json:"realFlights"`
	PredictedFlights []*storage.PredictedFlight `json:"predictedFlights"`
	TotalReal        int                        `json:"totalReal"`
	TotalPredicted   int                        `json:"totalPredicted"`
	SearchType       string                     `json:"searchType"`
	Query            string                     `json:"query"`
}

// DetailsResponse pairs the two documents stored under one id. Either may be
// absent.
type DetailsResponse struct {
	RealFlight      *storage.Flight          `json:"realFlight,omitempty"`
	PredictedFlight *storage.PredictedFlight `json:"predictedFlight,omitempty"`
}

// StatsResponse summarizes the two collections.
type StatsResponse struct {
	TotalRealFlights           int64   `json:"totalRealFlights"`
	TotalPredictedFlights      int64   `json:"totalPredictedFlights"`
	UniqueRealIndicatives      int64   `json:"uniqueRealIndicatives"`
	UniquePredictedIndicatives int64   `json:"uniquePredictedIndicatives"`
	MatchingRate               float64 `json:"matchingRate"`
}

// BulkDeleteRequest names the documents to drop. With DeleteMatching set,
// deleting a real flight also deletes the prediction sharing its id, and
// vice versa.
type BulkDeleteRequest struct {
	RealFlightIds      []int64 `json:"realFlightIds"`
	PredictedFlightIds []int64 `json:"predictedFlightIds"`
	DeleteMatching     bool    `json:"deleteMatching"`
}

// BulkDeleteResponse reports one bulk delete.
type BulkDeleteResponse struct {
	RealFlightsDeleted      int `json:"realFlightsDeleted"`
	PredictedFlightsDeleted int `json:"predictedFlightsDeleted"`
	Errors                  int `json:"errors,omitempty"`
}

// searchHandler builds the handler for one search field. Both collections
// are searched with the same query.
func (s *Server) searchHandler(field storage.SearchField) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := strings.TrimSpace(r.URL.Query().Get("q"))
		if query == "" {
			writeError(w, http.StatusBadRequest, "q is required")
			return
		}

		real, err := s.store.SearchFlights(r.Context(), field, query, searchLimit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		predicted, err := s.store.SearchPredictedFlights(r.Context(), field, query, searchLimit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		if real == nil {
			real = []*storage.Flight{}
		}
		if predicted == nil {
			predicted = []*storage.PredictedFlight{}
		}

		writeJSON(w, http.StatusOK, SearchResponse{
			RealFlights:      real,
			PredictedFlights: predicted,
			TotalReal:        len(real),
			TotalPredicted:   len(predicted),
			SearchType:       string(field),
			Query:            query,
		})
	}
}

func (s *Server) handleFlightDetails(w http.ResponseWriter, r *http.Request) {
	planID, err := parseID(r, "planId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid planId")
		return
	}

	real, err := s.store.GetFlightByPlanID(r.Context(), planID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	predicted, err := s.store.GetPredictedFlightByInstanceID(r.Context(), planID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if real == nil && predicted == nil {
		writeError(w, http.StatusNotFound, "no flight stored under this id")
		return
	}

	writeJSON(w, http.StatusOK, DetailsResponse{RealFlight: real, PredictedFlight: predicted})
}

func (s *Server) handleSearchStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	totalReal, err := s.store.CountFlights(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	totalPredicted, err := s.store.CountPredictedFlights(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	uniqueReal, err := s.store.UniqueFlightIndicatives(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	uniquePredicted, err := s.store.UniquePredictedIndicatives(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	rate, err := s.matchingRate(ctx, totalReal)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, StatsResponse{
		TotalRealFlights:           totalReal,
		TotalPredictedFlights:      totalPredicted,
		UniqueRealIndicatives:      uniqueReal,
		UniquePredictedIndicatives: uniquePredicted,
		MatchingRate:               rate,
	})
}

// matchingRate is the percentage of real flights with a prediction stored
// under the same id, rounded to one decimal.
func (s *Server) matchingRate(ctx context.Context, totalReal int64) (float64, error) {
	if totalReal == 0 {
		return 0, nil
	}

	planIDs, err := s.store.AllFlightPlanIDs(ctx)
	if err != nil {
		return 0, err
	}
	instanceIDs, err := s.store.AllInstanceIDs(ctx)
	if err != nil {
		return 0, err
	}

	predicted := make(map[int64]bool, len(instanceIDs))
	for _, id := range instanceIDs {
		predicted[id] = true
	}
	matched := 0
	for _, id := range planIDs {
		if predicted[id] {
			matched++
		}
	}

	rate := float64(matched) / float64(totalReal) * 100
	return math.Round(rate*10) / 10, nil
}

func (s *Server) handleDeleteReal(w http.ResponseWriter, r *http.Request) {
	planID, err := parseID(r, "planId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid planId")
		return
	}

	deleted, err := s.store.DeleteFlightByPlanID(r.Context(), planID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "no flight stored under this id")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "planId": planID})
}

func (s *Server) handleDeletePredicted(w http.ResponseWriter, r *http.Request) {
	instanceID, err := parseID(r, "instanceId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid instanceId")
		return
	}

	deleted, err := s.store.DeletePredictedFlightByInstanceID(r.Context(), instanceID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "no prediction stored under this id")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "instanceId": instanceID})
}

func (s *Server) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	var req BulkDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if len(req.RealFlightIds) == 0 && len(req.PredictedFlightIds) == 0 {
		writeError(w, http.StatusBadRequest, "no ids specified")
		return
	}

	// Expand to id sets first so matching deletes cannot double-count ids
	// named in both lists.
	realIDs := make(map[int64]bool)
	predictedIDs := make(map[int64]bool)
	for _, id := range req.RealFlightIds {
		realIDs[id] = true
		if req.DeleteMatching {
			predictedIDs[id] = true
		}
	}
	for _, id := range req.PredictedFlightIds {
		predictedIDs[id] = true
		if req.DeleteMatching {
			realIDs[id] = true
		}
	}

	var resp BulkDeleteResponse
	for id := range realIDs {
		deleted, err := s.store.DeleteFlightByPlanID(r.Context(), id)
		if err != nil {
			resp.Errors++
			continue
		}
		if deleted {
			resp.RealFlightsDeleted++
		}
	}
	for id := range predictedIDs {
		deleted, err := s.store.DeletePredictedFlightByInstanceID(r.Context(), id)
		if err != nil {
			resp.Errors++
			continue
		}
		if deleted {
			resp.PredictedFlightsDeleted++
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
