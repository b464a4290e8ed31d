package web

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/gorilla/mux"

	"github.com/elys-network/fundmanager/internal/auth"
	"github.com/elys-network/fundmanager/internal/fund"
	"github.com/elys-network/fundmanager/internal/logger"
	"github.com/elys-network/fundmanager/internal/metrics"
	"github.com/elys-network/fundmanager/internal/state"
	"github.com/elys-network/fundmanager/internal/types"
)

var webLogger = logger.GetForComponent("web_server")

// FundReader is the read side of the fund manager served by the API.
type FundReader interface {
	Snapshot() types.FundSnapshot
	FundUnitValue() (net, gross sdkmath.LegacyDec, err error)
	FundDetails() []fund.PositionValue
	Authorizations() []auth.Record
}

// Store gives access to the persisted fund history.
type Store interface {
	RecentEvents(ctx context.Context, kind types.EventKind, limit int) ([]types.JournalEntry, error)
	RecentSnapshots(ctx context.Context, limit int) ([]types.StoredSnapshot, error)
	GetFundSummary(ctx context.Context) (*state.FundSummary, error)
	Ping() error
}

// PostgresStore serves the history from the global state database.
type PostgresStore struct{}

func (PostgresStore) RecentEvents(ctx context.Context, kind types.EventKind, limit int) ([]types.JournalEntry, error) {
	return state.RecentEvents(ctx, kind, limit)
}

func (PostgresStore) RecentSnapshots(ctx context.Context, limit int) ([]types.StoredSnapshot, error) {
	return state.RecentSnapshots(ctx, limit)
}

func (PostgresStore) GetFundSummary(ctx context.Context) (*state.FundSummary, error) {
	return state.GetFundSummary(ctx)
}

func (PostgresStore) Ping() error { return state.TestDBConnection() }

// WebServer serves the read-only fund API
type WebServer struct {
	router    *mux.Router
	port      string
	fund      FundReader
	store     Store // Nil when the daemon runs without a database
	collector *metrics.Collector
	server    *http.Server
	started   time.Time
}

// NewWebServer creates a new web server instance
func NewWebServer(port string, fund FundReader, store Store, collector *metrics.Collector) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:    mux.NewRouter(),
		port:      port,
		fund:      fund,
		store:     store,
		collector: collector,
		started:   time.Now(),
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	if ws.collector != nil {
		ws.router.Handle("/metrics", ws.collector.Handler()).Methods("GET")
	}

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/fund", ws.handleGetFund).Methods("GET")
	api.HandleFunc("/fund/unit-value", ws.handleGetUnitValue).Methods("GET")
	api.HandleFunc("/positions", ws.handleGetPositions).Methods("GET")
	api.HandleFunc("/authorizations", ws.handleGetAuthorizations).Methods("GET")
	api.HandleFunc("/events", ws.handleGetEvents).Methods("GET")
	api.HandleFunc("/snapshots", ws.handleGetSnapshots).Methods("GET")
	api.HandleFunc("/summary", ws.handleGetSummary).Methods("GET")

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
	if ws.collector != nil {
		ws.router.Use(ws.collector.InstrumentHandler)
	}
}

// Handler exposes the router, mainly for tests.
func (ws *WebServer) Handler() http.Handler { return ws.router }

// Start starts the web server. It blocks until the server stops.
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	ws.server = &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	err := ws.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops a started server.
func (ws *WebServer) Shutdown(ctx context.Context) error {
	if ws.server == nil {
		return nil
	}
	return ws.server.Shutdown(ctx)
}

// handleHealth reports the fund and database status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	snapshot := ws.fund.Snapshot()
	hasErrors := !snapshot.Initialized

	database := "disabled"
	if ws.store != nil {
		database = "healthy"
		if err := ws.store.Ping(); err != nil {
			webLogger.Warn().Err(err).Msg("Database health check failed")
			database = "unreachable"
			hasErrors = true
		}
	}

	overallStatus := "OK"
	statusCode := http.StatusOK
	if hasErrors {
		overallStatus = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
			"uptime_seconds":   int64(time.Since(ws.started).Seconds()),
		},
		"component": map[string]interface{}{
			"name":    "staking-fund-manager",
			"version": "1.0.0",
		},
		"fund_status": map[string]interface{}{
			"initialized":      snapshot.Initialized,
			"database":         database,
			"positions":        len(snapshot.Positions),
			"pending_claims":   len(snapshot.PendingClaims),
			"distribution_due": snapshot.PendingUnits.IsPositive(),
		},
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// handleGetFund returns the full fund snapshot
func (ws *WebServer) handleGetFund(w http.ResponseWriter, r *http.Request) {
	ws.writeJSONResponse(w, http.StatusOK, ws.fund.Snapshot())
}

// handleGetUnitValue returns the net and gross value of one fund unit
func (ws *WebServer) handleGetUnitValue(w http.ResponseWriter, r *http.Request) {
	net, gross, err := ws.fund.FundUnitValue()
	if err != nil {
		webLogger.Warn().Err(err).Msg("Fund unit value unavailable")
		ws.writeErrorResponse(w, http.StatusConflict, err.Error())
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"net":   net,
		"gross": gross,
	})
}

// handleGetPositions returns the positions with their cached value
func (ws *WebServer) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	positions := ws.fund.FundDetails()
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"positions": positions,
		"count":     len(positions),
	})
}

type authorizationView struct {
	Timestamp time.Time   `json:"timestamp"`
	AllowerID uint8       `json:"allower_id"`
	AllowedID uint8       `json:"allowed_id"`
	Operation string      `json:"operation"`
	Params    auth.Params `json:"params"`
}

// handleGetAuthorizations returns the live multisig authorizations
func (ws *WebServer) handleGetAuthorizations(w http.ResponseWriter, r *http.Request) {
	records := ws.fund.Authorizations()
	views := make([]authorizationView, 0, len(records))
	for _, rec := range records {
		views = append(views, authorizationView{
			Timestamp: rec.Timestamp,
			AllowerID: rec.AllowerID,
			AllowedID: rec.AllowedID,
			Operation: rec.Operation.String(),
			Params:    rec.Params,
		})
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"authorizations": views,
		"count":          len(views),
	})
}

// handleGetEvents returns the journaled events, optionally filtered by kind
func (ws *WebServer) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	if !ws.requireStore(w) {
		return
	}
	limit := parseLimit(r, 20)
	kind := types.EventKind(r.URL.Query().Get("kind"))

	events, err := ws.store.RecentEvents(r.Context(), kind, limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent events")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve events")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
		"limit":  limit,
	})
}

// handleGetSnapshots returns the snapshots stored by the bot
func (ws *WebServer) handleGetSnapshots(w http.ResponseWriter, r *http.Request) {
	if !ws.requireStore(w) {
		return
	}
	limit := parseLimit(r, 10)

	snapshots, err := ws.store.RecentSnapshots(r.Context(), limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent snapshots")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve snapshots")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"snapshots": snapshots,
		"count":     len(snapshots),
		"limit":     limit,
	})
}

// handleGetSummary returns the long-run fund summary
func (ws *WebServer) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	if !ws.requireStore(w) {
		return
	}
	summary, err := ws.store.GetFundSummary(r.Context())
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get fund summary")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve fund summary")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, summary)
}

func (ws *WebServer) requireStore(w http.ResponseWriter) bool {
	if ws.store == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "History is not available without a database")
		return false
	}
	return true
}

func parseLimit(r *http.Request, def int) int {
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			return parsedLimit
		}
	}
	return def
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		webLogger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
