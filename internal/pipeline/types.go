package pipeline

import (
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/fortuna/mvp/internal/clean"
	"github.com/fortuna/mvp/internal/evaluate"
	"github.com/fortuna/mvp/internal/frame"
	"github.com/fortuna/mvp/internal/merge"
	"github.com/fortuna/mvp/internal/model/gbm"
	"github.com/fortuna/mvp/internal/ranking"
	"github.com/fortuna/mvp/internal/split"
)

// Stage selects how much of the pipeline a run executes.
type Stage string

const (
	StageMerge    Stage = "merge"
	StageClean    Stage = "clean"
	StageEngineer Stage = "engineer"
	StageTrain    Stage = "train"
	StageEvaluate Stage = "evaluate"
	StagePredict  Stage = "predict"
	StageFull     Stage = "full"
)

// Stages lists every runnable stage.
var Stages = []Stage{StageMerge, StageClean, StageEngineer, StageTrain, StageEvaluate, StagePredict, StageFull}

// Valid reports whether s names a runnable stage.
func (s Stage) Valid() bool {
	for _, v := range Stages {
		if s == v {
			return true
		}
	}
	return false
}

// RunStatus represents the lifecycle state for a run.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Run models the database representation of a pipeline run.
type Run struct {
	RunID           string         `json:"run_id"`
	Stage           Stage          `json:"stage"`
	Season          sql.NullInt64  `json:"season"`
	Status          RunStatus      `json:"status"`
	StatusMessage   sql.NullString `json:"status_message"`
	ProgressCurrent int            `json:"progress_current"`
	ProgressTotal   int            `json:"progress_total"`
	Artifacts       pq.StringArray `json:"artifacts"`
	LastError       sql.NullString `json:"last_error"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	StartedAt       sql.NullTime   `json:"started_at"`
	CompletedAt     sql.NullTime   `json:"completed_at"`
}

// Copy returns a shallow copy to prevent external mutation.
func (r *Run) Copy() *Run {
	if r == nil {
		return nil
	}
	cpy := *r
	cpy.Artifacts = append(pq.StringArray(nil), r.Artifacts...)
	return &cpy
}

// Inputs are the table files a run reads. A stage only needs the inputs
// of its first step; later steps consume the previous step's output.
type Inputs struct {
	Totals    string
	Advanced  string
	Standings string
	Merged    string
	Cleaned   string
	Features  string
	Model     string
}

// JobSpec describes the work to be performed by the runner.
type JobSpec struct {
	Stage       Stage
	Inputs      Inputs
	OutputDir   string
	Season      int
	TopN        int
	ImputeScope clean.ImputeScope
	Params      gbm.Params
	Evaluation  evaluate.Options
	DryRun      bool
}

// Reporter receives lifecycle callbacks from the runner.
type Reporter interface {
	OnJobStart(spec JobSpec)
	OnStepStart(step string, index int, total int)
	OnArtifact(path string)
	OnProgress(message string, current int, total int)
	OnJobComplete()
	OnJobError(err error)
}

// Result holds every table and model a run produced.
type Result struct {
	Merged      *frame.Frame
	MergeReport *merge.Report
	Cleaned     *frame.Frame
	Features    *frame.Frame
	Split       *split.Result
	Model       *gbm.Model
	Evaluation  *evaluate.Report
	Ranking     *ranking.Ranking
	Artifacts   []string
}

// StatusSummary is returned to API callers.
type StatusSummary struct {
	ActiveRun *Run   `json:"active_run,omitempty"`
	History   []*Run `json:"recent_runs,omitempty"`
}
