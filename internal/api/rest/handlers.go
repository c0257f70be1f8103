package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/fortuna/mvp/internal/ranking"
	"github.com/fortuna/mvp/internal/service"
	"github.com/fortuna/mvp/internal/split"
	"github.com/fortuna/mvp/internal/store"
)

const (
	defaultTop   = 5
	maxTop       = 100
	historyLimit = 100
)

// Predictions is the read side served over HTTP.
type Predictions interface {
	Seasons() ([]int, error)
	Split(ctx context.Context) (split.Result, error)
	Rankings(ctx context.Context, season, top int, normalize bool) (*service.SeasonRanking, error)
	WinnerRanks(ctx context.Context) (*ranking.WinnerSummary, error)
	History(ctx context.Context, season, limit int) ([]*store.Prediction, error)
}

// HealthChecker reports backend liveness.
type HealthChecker interface {
	HealthCheck() error
}

// CacheChecker reports cache liveness.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handler contains dependencies for HTTP handlers
type Handler struct {
	predictions Predictions
	db          HealthChecker
	cache       CacheChecker
}

// NewHandler creates a new handler. db and cache may be nil.
func NewHandler(predictions Predictions, db HealthChecker, cache CacheChecker) *Handler {
	return &Handler{predictions: predictions, db: db, cache: cache}
}

// HealthCheck handles health check requests
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{
		"status":  "healthy",
		"service": "mvp",
	}
	status := http.StatusOK
	if h.db != nil {
		body["database"] = "ok"
		if err := h.db.HealthCheck(); err != nil {
			body["database"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	if h.cache != nil {
		body["cache"] = "ok"
		if err := h.cache.HealthCheck(r.Context()); err != nil {
			body["cache"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	respondJSON(w, status, body)
}

// GetSeasons returns the seasons in the loaded feature table
func (h *Handler) GetSeasons(w http.ResponseWriter, r *http.Request) {
	seasons, err := h.predictions.Seasons()
	if err != nil {
		respondServiceError(w, "Failed to list seasons", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"seasons": seasons})
}

// GetSplit returns the validation and training seasons
func (h *Handler) GetSplit(w http.ResponseWriter, r *http.Request) {
	parts, err := h.predictions.Split(r.Context())
	if err != nil {
		respondServiceError(w, "Failed to split seasons", err)
		return
	}

	respondJSON(w, http.StatusOK, parts)
}

// GetRankings returns the top candidates of a season
func (h *Handler) GetRankings(w http.ResponseWriter, r *http.Request) {
	season, err := strconv.Atoi(mux.Vars(r)["season"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid season", err)
		return
	}

	top := defaultTop
	if s := r.URL.Query().Get("top"); s != "" {
		if top, err = strconv.Atoi(s); err != nil || top <= 0 || top > maxTop {
			respondError(w, http.StatusBadRequest, "top must be between 1 and 100", err)
			return
		}
	}

	normalize := true
	if s := r.URL.Query().Get("normalize"); s != "" {
		if normalize, err = strconv.ParseBool(s); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid normalize flag", err)
			return
		}
	}

	res, err := h.predictions.Rankings(r.Context(), season, top, normalize)
	if err != nil {
		respondServiceError(w, "Failed to rank season", err)
		return
	}

	respondJSON(w, http.StatusOK, res)
}

// GetHistory returns the last published ranking of a season
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	season, err := strconv.Atoi(mux.Vars(r)["season"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid season", err)
		return
	}

	preds, err := h.predictions.History(r.Context(), season, historyLimit)
	if err != nil {
		respondServiceError(w, "Failed to fetch prediction history", err)
		return
	}
	if len(preds) == 0 {
		respondError(w, http.StatusNotFound, "No published ranking for season", nil)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"season":      season,
		"predictions": preds,
	})
}

// GetWinnerRanks returns where each validation winner was ranked
func (h *Handler) GetWinnerRanks(w http.ResponseWriter, r *http.Request) {
	summary, err := h.predictions.WinnerRanks(r.Context())
	if err != nil {
		respondServiceError(w, "Failed to evaluate winners", err)
		return
	}

	respondJSON(w, http.StatusOK, summary)
}

// respondServiceError maps domain errors onto status codes.
func respondServiceError(w http.ResponseWriter, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ranking.ErrSeasonNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ranking.ErrDegenerateNormalization):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrNotLoaded), errors.Is(err, service.ErrNoHistory):
		status = http.StatusServiceUnavailable
	}
	respondError(w, status, message, err)
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes an error response
func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]interface{}{
		"error":  message,
		"status": status,
	}

	if err != nil {
		response["details"] = err.Error()
	}

	respondJSON(w, status, response)
}
