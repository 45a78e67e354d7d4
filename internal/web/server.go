package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/elys-network/acm/internal/executor"
	"github.com/elys-network/acm/internal/ledger"
	"github.com/elys-network/acm/internal/logger"
	"github.com/elys-network/acm/internal/scheduler"
	"github.com/elys-network/acm/internal/state"
	"github.com/elys-network/acm/internal/strategy"
	"github.com/elys-network/acm/internal/types"
)

var webLogger = logger.GetForComponent("web_server")

// WebServer exposes the compounding service over HTTP: strategy management,
// fee and queue queries, manual compound triggers and batch history.
type WebServer struct {
	router     *mux.Router
	port       string
	strategies *strategy.Store
	fees       *ledger.Ledger
	sched      *scheduler.Scheduler
	exec       *executor.Executor
	params     types.CompoundParameters
}

// NewWebServer creates a new web server instance
func NewWebServer(port string, strategies *strategy.Store, fees *ledger.Ledger, sched *scheduler.Scheduler, exec *executor.Executor, params types.CompoundParameters) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:     mux.NewRouter(),
		port:       port,
		strategies: strategies,
		fees:       fees,
		sched:      sched,
		exec:       exec,
		params:     params,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	// Health endpoint (direct route)
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	// Prometheus scrape endpoint
	ws.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// API endpoints
	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")

	api.HandleFunc("/strategies/{participant}", ws.handleGetStrategy).Methods("GET")
	api.HandleFunc("/strategies/{participant}/activate", ws.handleActivate).Methods("POST")
	api.HandleFunc("/strategies/{participant}/deactivate", ws.handleDeactivate).Methods("POST")
	api.HandleFunc("/strategies/{participant}", ws.handleUpdateStrategy).Methods("PUT")

	api.HandleFunc("/fees/{participant}/{pool}", ws.handleGetFees).Methods("GET")
	api.HandleFunc("/savings/{participant}", ws.handleGetSavings).Methods("GET")

	api.HandleFunc("/pools", ws.handleGetPools).Methods("GET")
	api.HandleFunc("/pools/{pool}", ws.handleGetPool).Methods("GET")
	api.HandleFunc("/pools/{pool}/participants", ws.handleGetPoolParticipants).Methods("GET")
	api.HandleFunc("/pools/{pool}/queue", ws.handleGetQueue).Methods("GET")
	api.HandleFunc("/pools/{pool}/flush", ws.handleForceFlush).Methods("POST")

	api.HandleFunc("/compound/{participant}/{pool}", ws.handleCompound).Methods("POST")
	api.HandleFunc("/compound/{participant}/{pool}/emergency", ws.handleEmergencyCompound).Methods("POST")

	api.HandleFunc("/batches", ws.handleGetBatches).Methods("GET")
	api.HandleFunc("/performance", ws.handleGetPerformanceMetrics).Methods("GET")
	api.HandleFunc("/parameters", ws.handleGetParameters).Methods("GET")

	// Add CORS middleware
	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// handleHealth returns server health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	dbHealthy := true
	if err := state.TestDBConnection(); err != nil {
		dbHealthy = false
	}

	queueDepths := make(map[string]int)
	for _, pool := range ws.strategies.Pools() {
		queueDepths[strconv.FormatUint(uint64(pool), 10)] = ws.sched.QueueSize(pool)
	}

	overallStatus := "OK"
	statusCode := http.StatusOK
	if !dbHealthy {
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
		},
		"component": map[string]interface{}{
			"name":    "acm-auto-compound-manager",
			"version": "1.0.0",
		},
		"acm_status": map[string]interface{}{
			"database_healthy": dbHealthy,
			"queue_depths":     queueDepths,
		},
	}

	ws.writeJSONResponse(w, statusCode, response)
}

type strategyRequest struct {
	Pool         uint64 `json:"pool"`
	PriceCeiling string `json:"price_ceiling"`
	RiskLevel    int    `json:"risk_level"`
}

// handleGetStrategy returns one participant's strategy
func (ws *WebServer) handleGetStrategy(w http.ResponseWriter, r *http.Request) {
	participant := types.Participant(mux.Vars(r)["participant"])

	st, ok := ws.strategies.Get(participant)
	if !ok {
		ws.writeErrorResponse(w, http.StatusNotFound, "Strategy not found")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, st)
}

// handleActivate opts a participant into auto-compounding on a pool
func (ws *WebServer) handleActivate(w http.ResponseWriter, r *http.Request) {
	participant := types.Participant(mux.Vars(r)["participant"])

	var req strategyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	ceiling, err := sdkmath.LegacyNewDecFromStr(req.PriceCeiling)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid price ceiling")
		return
	}

	st, err := ws.strategies.Activate(participant, types.PoolID(req.Pool), ceiling, req.RiskLevel)
	if err != nil {
		ws.writeStrategyError(w, err)
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, st)
}

// handleDeactivate opts a participant out of auto-compounding
func (ws *WebServer) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	participant := types.Participant(mux.Vars(r)["participant"])

	var req strategyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := ws.strategies.Deactivate(participant, types.PoolID(req.Pool)); err != nil {
		ws.writeStrategyError(w, err)
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"participant": participant,
		"is_active":   false,
	})
}

// handleUpdateStrategy changes a participant's ceiling and risk level
func (ws *WebServer) handleUpdateStrategy(w http.ResponseWriter, r *http.Request) {
	participant := types.Participant(mux.Vars(r)["participant"])

	var req strategyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	ceiling, err := sdkmath.LegacyNewDecFromStr(req.PriceCeiling)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid price ceiling")
		return
	}

	st, err := ws.strategies.Update(participant, ceiling, req.RiskLevel)
	if err != nil {
		ws.writeStrategyError(w, err)
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, st)
}

// handleGetFees returns a participant's fee account in a pool
func (ws *WebServer) handleGetFees(w http.ResponseWriter, r *http.Request) {
	participant := types.Participant(mux.Vars(r)["participant"])
	pool, ok := ws.parsePool(w, r)
	if !ok {
		return
	}

	acc, found := ws.fees.Get(participant, pool)
	if !found {
		ws.writeErrorResponse(w, http.StatusNotFound, "No fee account for participant in pool")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, acc)
}

// handleGetSavings returns a participant's estimated batching savings
func (ws *WebServer) handleGetSavings(w http.ResponseWriter, r *http.Request) {
	participant := types.Participant(mux.Vars(r)["participant"])

	acc, err := state.GetOverheadAccount(participant)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get overhead account")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve savings")
		return
	}

	response := map[string]interface{}{
		"participant":      participant,
		"actual_overhead":  acc.ActualOverhead,
		"assumed_overhead": acc.AssumedOverhead,
		"compound_count":   acc.CompoundCount,
		"savings":          acc.AssumedOverhead.Sub(acc.ActualOverhead),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetPools lists all known pools
func (ws *WebServer) handleGetPools(w http.ResponseWriter, r *http.Request) {
	pools := ws.strategies.Pools()
	out := make([]types.PoolStrategy, 0, len(pools))
	for _, id := range pools {
		if p, ok := ws.strategies.GetPool(id); ok {
			out = append(out, p)
		}
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"pools": out,
		"count": len(out),
	})
}

// handleGetPool returns one pool's strategy state
func (ws *WebServer) handleGetPool(w http.ResponseWriter, r *http.Request) {
	pool, ok := ws.parsePool(w, r)
	if !ok {
		return
	}

	p, found := ws.strategies.GetPool(pool)
	if !found {
		ws.writeErrorResponse(w, http.StatusNotFound, "Pool not found")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, p)
}

// handleGetPoolParticipants lists active participants in a pool
func (ws *WebServer) handleGetPoolParticipants(w http.ResponseWriter, r *http.Request) {
	pool, ok := ws.parsePool(w, r)
	if !ok {
		return
	}
	if _, found := ws.strategies.GetPool(pool); !found {
		ws.writeErrorResponse(w, http.StatusNotFound, "Pool not found")
		return
	}

	participants := ws.strategies.ActiveParticipants(pool)
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"pool":         pool,
		"participants": participants,
		"count":        len(participants),
	})
}

// handleGetQueue returns the pending queue contents for a pool
func (ws *WebServer) handleGetQueue(w http.ResponseWriter, r *http.Request) {
	pool, ok := ws.parsePool(w, r)
	if !ok {
		return
	}

	entries := ws.sched.QueueSnapshot(pool)
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"pool":    pool,
		"entries": entries,
		"count":   len(entries),
	})
}

// handleForceFlush drains a pool's queue regardless of trigger conditions
func (ws *WebServer) handleForceFlush(w http.ResponseWriter, r *http.Request) {
	pool, ok := ws.parsePool(w, r)
	if !ok {
		return
	}

	receipt, err := ws.sched.ForceFlush(pool)
	if err != nil {
		if errors.Is(err, scheduler.ErrEmptyQueue) {
			ws.writeErrorResponse(w, http.StatusConflict, "Queue is empty")
			return
		}
		webLogger.Error().Err(err).Uint64("pool", uint64(pool)).Msg("Force flush failed")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Flush failed")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, receipt)
}

// handleCompound executes an immediate standalone compound
func (ws *WebServer) handleCompound(w http.ResponseWriter, r *http.Request) {
	participant := types.Participant(mux.Vars(r)["participant"])
	pool, ok := ws.parsePool(w, r)
	if !ok {
		return
	}

	receipt, err := ws.exec.Compound(participant, pool)
	if err != nil {
		ws.writeCompoundError(w, err)
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, receipt)
}

// handleEmergencyCompound executes a compound that bypasses batching policy
func (ws *WebServer) handleEmergencyCompound(w http.ResponseWriter, r *http.Request) {
	participant := types.Participant(mux.Vars(r)["participant"])
	pool, ok := ws.parsePool(w, r)
	if !ok {
		return
	}

	receipt, err := ws.exec.EmergencyCompound(participant, pool)
	if err != nil {
		ws.writeCompoundError(w, err)
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, receipt)
}

// handleGetBatches returns batch receipts, optionally filtered by pool or
// participant
func (ws *WebServer) handleGetBatches(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}

	var (
		receipts []types.BatchReceipt
		err      error
	)
	switch {
	case r.URL.Query().Get("pool") != "":
		poolID, parseErr := strconv.ParseUint(r.URL.Query().Get("pool"), 10, 64)
		if parseErr != nil {
			ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid pool ID")
			return
		}
		receipts, err = state.GetBatchReceiptsForPool(types.PoolID(poolID), limit)
	case r.URL.Query().Get("participant") != "":
		receipts, err = state.GetBatchReceiptsForParticipant(types.Participant(r.URL.Query().Get("participant")), limit)
	default:
		receipts, err = state.GetRecentBatchReceipts(limit)
	}
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get batch receipts")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve batches")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"batches": receipts,
		"count":   len(receipts),
		"limit":   limit,
	})
}

// handleGetPerformanceMetrics returns settlement metrics for the last 24h
func (ws *WebServer) handleGetPerformanceMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := state.GetBatchMetrics(24 * time.Hour)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get batch metrics")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve performance metrics")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, metrics)
}

// handleGetParameters returns the active compounding parameters
func (ws *WebServer) handleGetParameters(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"parameters": ws.params,
		"timestamp":  time.Now().UTC(),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

func (ws *WebServer) parsePool(w http.ResponseWriter, r *http.Request) (types.PoolID, bool) {
	poolStr := mux.Vars(r)["pool"]
	poolID, err := strconv.ParseUint(poolStr, 10, 64)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid pool ID")
		return 0, false
	}
	return types.PoolID(poolID), true
}

// writeStrategyError maps strategy store errors to HTTP status codes
func (ws *WebServer) writeStrategyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, strategy.ErrAlreadyActive):
		ws.writeErrorResponse(w, http.StatusConflict, err.Error())
	case errors.Is(err, strategy.ErrNotActive):
		ws.writeErrorResponse(w, http.StatusConflict, err.Error())
	case errors.Is(err, strategy.ErrUnknownPool):
		ws.writeErrorResponse(w, http.StatusNotFound, err.Error())
	case errors.Is(err, strategy.ErrInvalidRiskLevel), errors.Is(err, strategy.ErrInvalidPriceCeiling):
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
	default:
		webLogger.Error().Err(err).Msg("Strategy operation failed")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Strategy operation failed")
	}
}

// writeCompoundError maps executor errors to HTTP status codes
func (ws *WebServer) writeCompoundError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, executor.ErrCannotCompoundNow), errors.Is(err, executor.ErrNoFeesToCompound):
		ws.writeErrorResponse(w, http.StatusConflict, err.Error())
	case errors.Is(err, strategy.ErrNotActive):
		ws.writeErrorResponse(w, http.StatusConflict, err.Error())
	default:
		webLogger.Error().Err(err).Msg("Compound operation failed")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Compound operation failed")
	}
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
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

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

		duration := time.Since(start)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", duration).
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
