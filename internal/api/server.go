// Package api provides the REST surface of the fusion pipeline: the
// processing steps, flight search, processing history, and health.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"flight_fusion/internal/analysis"
	"flight_fusion/internal/audit"
	"flight_fusion/internal/densify"
	"flight_fusion/internal/ingest"
	"flight_fusion/internal/predict"
	"flight_fusion/internal/storage"
)

// queryTimeout bounds the search and history surface. Pipeline routes carry
// no deadline; an ingestion window can run for hours.
const queryTimeout = 30 * time.Second

// SourceFactory opens a packet source over a stored-at window.
type SourceFactory func(from, until time.Time) (ingest.PacketSource, error)

// Server wires the pipeline components behind the REST surface.
type Server struct {
	store     *storage.DocStore
	sources   SourceFactory
	ingester  *ingest.Ingester
	syncer    *predict.Syncer
	densifier *densify.Densifier
	analyzer  *analysis.Analyzer
	audit     *audit.Recorder
	log       *slog.Logger

	port        int
	defaultDate string
	authEnabled bool
	apiKeys     map[string]bool // Simple API key auth (when enabled).
}

// Config holds configuration for the API server.
type Config struct {
	Port        int
	DefaultDate string // Replay date used when /api/oracle/process omits date.
	AuthEnabled bool
	APIKeys     []string // List of valid API keys.
	Logger      *slog.Logger
}

// NewServer creates the API server over the document store. sources may be
// nil when no replay store is configured and plans may be nil when no
// historic store is configured; the routes needing them then answer 503.
func NewServer(store *storage.DocStore, sources SourceFactory, plans predict.PlanSource, cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	keys := make(map[string]bool)
	for _, k := range cfg.APIKeys {
		if k != "" {
			keys[k] = true
		}
	}

	s := &Server{
		store:       store,
		sources:     sources,
		ingester:    ingest.New(store, log),
		densifier:   densify.New(store, densify.KinematicSimulator{}, log),
		analyzer:    analysis.NewAnalyzer(store, log),
		audit:       audit.NewRecorder(store, log),
		log:         log,
		port:        cfg.Port,
		defaultDate: cfg.DefaultDate,
		authEnabled: cfg.AuthEnabled,
		apiKeys:     keys,
	}
	if plans != nil {
		s.syncer = predict.NewSyncer(plans, store, log)
	}
	return s
}

// Run starts the HTTP server and blocks until ctx is cancelled, then drains
// in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	r := chi.NewRouter()

	// Standard middleware.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	// CORS for the dashboard.
	r.Use(corsMiddleware)

	// Optional authentication.
	if s.authEnabled {
		r.Use(s.authMiddleware)
	}

	r.Mount("/api", s.routes())

	addr := ":" + itoa(s.port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     r,
		IdleTimeout: 60 * time.Second,
	}

	s.log.Info("api listening", "addr", addr, "auth_enabled", s.authEnabled)

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Router returns the API routes (with authentication when enabled) for tests
// and embedding. The operational middleware of Run is not included.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	if s.authEnabled {
		r.Use(s.authMiddleware)
	}
	r.Mount("/api", s.routes())
	return r
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	// Query surface: bounded work, safe to deadline.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(queryTimeout))

		r.Get("/health", s.handleHealth)

		r.Route("/flight-search", func(r chi.Router) {
			r.Get("/by-plan-id", s.searchHandler(storage.SearchByPlanID))
			r.Get("/by-indicative", s.searchHandler(storage.SearchByIndicative))
			r.Get("/by-origin", s.searchHandler(storage.SearchByOrigin))
			r.Get("/by-destination", s.searchHandler(storage.SearchByDestination))
			r.Get("/details/{planId}", s.handleFlightDetails)
			r.Get("/stats", s.handleSearchStats)
			r.Delete("/real/{planId}", s.handleDeleteReal)
			r.Delete("/predicted/{instanceId}", s.handleDeletePredicted)
			r.Post("/bulk-delete", s.handleBulkDelete)
		})

		r.Route("/processing-history", func(r chi.Router) {
			r.Get("/", s.handleHistory)
			r.Get("/statistics", s.handleHistoryStatistics)
			r.Get("/today", s.handleHistoryToday)
			r.Get("/by-operation/{operation}", s.handleHistoryByOperation)
			r.Get("/by-status/{status}", s.handleHistoryByStatus)
			r.Delete("/cleanup", s.handleHistoryCleanup)
		})
	})

	// Pipeline surface: runs for as long as the window demands.
	r.Group(func(r chi.Router) {
		r.Post("/oracle/process", s.handleProcessRealData)
		r.Post("/predicted-flights/auto-sync", s.handleSyncPredicted)
		r.Route("/trajectory-densification", func(r chi.Router) {
			r.Post("/auto-sync", s.handleDensifyAll)
			r.Post("/densify/{planId}", s.handleDensifyOne)
		})
		r.Post("/punctuality/kpis", s.handlePunctuality)
		r.Post("/trajectory-accuracy/run", s.handleAccuracy)
		r.Post("/data-management/cleanup-duplicates", s.handleCleanupDuplicates)
	})

	return r
}

// corsMiddleware adds CORS headers for browser access.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-API-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// authMiddleware validates API key authentication.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Check X-API-Key header first.
		apiKey := r.Header.Get("X-API-Key")

		// Fall back to Authorization: Bearer <key>.
		if apiKey == "" {
			auth := r.Header.Get("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				apiKey = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		// Fall back to query parameter (for simple testing).
		if apiKey == "" {
			apiKey = r.URL.Query().Get("api_key")
		}

		if apiKey == "" {
			writeError(w, http.StatusUnauthorized, "API key required")
			return
		}

		if !s.apiKeys[apiKey] {
			writeError(w, http.StatusForbidden, "Invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "DOWN"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "UP"})
}

// begin opens the audit record for an operation, answering 500 when the
// document store cannot even record the start.
func (s *Server) begin(w http.ResponseWriter, r *http.Request, operation, endpoint string, params any) *audit.Entry {
	encoded := ""
	if params != nil {
		if raw, err := json.Marshal(params); err == nil {
			encoded = string(raw)
		}
	}
	entry, err := s.audit.Begin(r.Context(), operation, endpoint, encoded)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "open audit record: "+err.Error())
		return nil
	}
	return entry
}

// auditCtx is the context for terminal audit writes: the record must land
// even when the client has gone away mid-operation.
func auditCtx(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

// Helper functions.

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func itoa(i int) string {
	return strconv.Itoa(i)
}

func parseID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

// queryInt reads a positive integer query parameter, falling back on
// absence or garbage.
func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
