// Package api exposes completed analyses over a small read-only REST
// surface, plus the usual health and metrics endpoints.
package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohamedkhairy/anomaly-scanner/internal/config"
	"github.com/mohamedkhairy/anomaly-scanner/internal/jobstore"
	"github.com/mohamedkhairy/anomaly-scanner/internal/models"
)

// AnalysisHandler serves completed analyses from the job store.
type AnalysisHandler struct {
	store jobstore.Store
	cfg   config.APIConfig
}

// NewAnalysisHandler creates an analysis handler.
func NewAnalysisHandler(store jobstore.Store, cfg config.APIConfig) *AnalysisHandler {
	return &AnalysisHandler{
		store: store,
		cfg:   cfg,
	}
}

// ListAnalyses handles GET /api/v1/analyses?limit=
func (h *AnalysisHandler) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	limit := h.parseLimit(r)

	jobs, err := h.store.ListCompleted(r.Context(), limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve analyses")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"analyses": h.presentable(jobs),
		"count":    len(jobs),
	})
}

// GetAnalysesBySymbol handles GET /api/v1/analyses/{symbol}
func (h *AnalysisHandler) GetAnalysesBySymbol(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	symbol := strings.ToUpper(vars["symbol"])
	if symbol == "" {
		respondWithError(w, http.StatusBadRequest, "Symbol is required")
		return
	}

	jobs, err := h.store.ListCompletedBySymbol(r.Context(), symbol, h.parseLimit(r))
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve analyses")
		return
	}

	presented := h.presentable(jobs)
	if len(presented) == 0 {
		respondWithError(w, http.StatusNotFound, "No analyses found for symbol")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":   symbol,
		"analyses": presented,
		"count":    len(presented),
	})
}

// presentable filters down to COMPLETED jobs. The store also returns
// CACHED entries, which point at analyses already present in the list.
func (h *AnalysisHandler) presentable(jobs []*models.AnalysisJob) []*models.AnalysisJob {
	out := make([]*models.AnalysisJob, 0, len(jobs))
	for _, job := range jobs {
		if job.Status == models.JobStatusCompleted {
			out = append(out, job)
		}
	}
	return out
}

func (h *AnalysisHandler) parseLimit(r *http.Request) int {
	limit := h.cfg.DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > h.cfg.MaxLimit {
		limit = h.cfg.MaxLimit
	}
	return limit
}

// NewRouter builds the API router with middleware, analysis routes and
// operational endpoints.
func NewRouter(handler *AnalysisHandler, auth *AuthManager) *mux.Router {
	router := mux.NewRouter()

	chain := ChainMiddleware(
		RecoveryMiddleware(),
		LoggingMiddleware(),
	)
	router.Use(mux.MiddlewareFunc(chain))

	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(mux.MiddlewareFunc(AuthMiddleware(auth)))
	apiRouter.HandleFunc("/analyses", handler.ListAnalyses).Methods(http.MethodGet)
	apiRouter.HandleFunc("/analyses/{symbol}", handler.GetAnalysesBySymbol).Methods(http.MethodGet)

	router.HandleFunc("/health", healthHandler).Methods(http.MethodGet)
	router.HandleFunc("/ready", healthHandler).Methods(http.MethodGet)
	router.HandleFunc("/live", healthHandler).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return router
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
