package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/fortuna/mvp/internal/pipeline"
)

// Runs queues pipeline runs and reports on them.
type Runs interface {
	Enqueue(ctx context.Context, req pipeline.Request) (*pipeline.Run, error)
	GetStatus(ctx context.Context) (*pipeline.StatusSummary, error)
}

// RunHandler proxies API calls to the run service.
type RunHandler struct {
	service Runs
}

// NewRunHandler wires the REST layer to the run service.
func NewRunHandler(service Runs) *RunHandler {
	return &RunHandler{service: service}
}

type apiRunRequest struct {
	Stage  string `json:"stage"`
	Season int    `json:"season"`
}

// HandleRunRequest handles POST /api/v1/runs
func (h *RunHandler) HandleRunRequest(w http.ResponseWriter, r *http.Request) {
	var req apiRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	run, err := h.service.Enqueue(r.Context(), pipeline.Request{
		Stage:  pipeline.Stage(req.Stage),
		Season: req.Season,
	})
	if err != nil {
		respondError(w, http.StatusBadRequest, "Failed to enqueue run", err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"run": runPayload(run),
	})
}

// HandleRunStatus handles GET /api/v1/runs/status
func (h *RunHandler) HandleRunStatus(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.GetStatus(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch status", err)
		return
	}

	respondJSON(w, http.StatusOK, buildStatusPayload(summary))
}

func buildStatusPayload(summary *pipeline.StatusSummary) map[string]interface{} {
	response := map[string]interface{}{
		"status":  "idle",
		"message": "No active runs",
	}

	if summary.ActiveRun != nil {
		response["status"] = summary.ActiveRun.Status
		if summary.ActiveRun.StatusMessage.Valid {
			response["message"] = summary.ActiveRun.StatusMessage.String
		}
		response["active_run"] = runPayload(summary.ActiveRun)
	}

	history := make([]map[string]interface{}, 0, len(summary.History))
	for _, run := range summary.History {
		history = append(history, runPayload(run))
	}

	response["history"] = history
	return response
}

func runPayload(run *pipeline.Run) map[string]interface{} {
	if run == nil {
		return nil
	}

	payload := map[string]interface{}{
		"run_id":           run.RunID,
		"stage":            run.Stage,
		"status":           run.Status,
		"progress_current": run.ProgressCurrent,
		"progress_total":   run.ProgressTotal,
		"artifacts":        []string(run.Artifacts),
		"created_at":       run.CreatedAt,
		"updated_at":       run.UpdatedAt,
	}

	if run.Season.Valid {
		payload["season"] = run.Season.Int64
	}
	if run.StatusMessage.Valid {
		payload["status_message"] = run.StatusMessage.String
	}
	if run.StartedAt.Valid {
		payload["started_at"] = run.StartedAt.Time
	}
	if run.CompletedAt.Valid {
		payload["completed_at"] = run.CompletedAt.Time
	}
	if run.LastError.Valid {
		payload["last_error"] = run.LastError.String
	}

	return payload
}
