package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fortuna/mvp/internal/logger"
)

// RunStore persists the run ledger.
type RunStore interface {
	CreateRun(ctx context.Context, run *Run) (*Run, error)
	UpdateStatus(ctx context.Context, runID string, status RunStatus, message string, lastErr error) error
	UpdateProgress(ctx context.Context, runID string, current, total int, message string) error
	AddArtifact(ctx context.Context, runID, path string) error
	AppendEvent(ctx context.Context, runID string, eventType, message string, current, total *int) error
	ResetStuckRuns(ctx context.Context) error
	MarkNextRunRunning(ctx context.Context) (*Run, error)
	GetActiveRun(ctx context.Context) (*Run, error)
	ListRecentRuns(ctx context.Context, limit int) ([]*Run, error)
}

// Request represents a pipeline invocation request.
type Request struct {
	Stage  Stage
	Season int
}

// ResultHook is called after a run completes successfully.
type ResultHook func(ctx context.Context, run *Run, res *Result)

// Service coordinates run persistence, execution, and status reporting.
type Service struct {
	store  RunStore
	runner *Runner
	base   JobSpec
	hook   ResultHook

	historyLimit int
	pollInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	log *logrus.Entry
}

// NewService constructs a Service. base carries the inputs and settings
// every run starts from. Call Start to launch the worker.
func NewService(store RunStore, runner *Runner, base JobSpec) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	if runner == nil {
		runner = NewRunner()
	}

	return &Service{
		store:        store,
		runner:       runner,
		base:         base,
		historyLimit: 10,
		pollInterval: 3 * time.Second,
		ctx:          ctx,
		cancel:       cancel,
		log:          logger.WithStage("runs"),
	}
}

// OnResult registers a hook for completed runs.
func (s *Service) OnResult(hook ResultHook) {
	s.hook = hook
}

// Start launches the background worker loop.
func (s *Service) Start() {
	if err := s.store.ResetStuckRuns(s.ctx); err != nil {
		s.log.WithError(err).Warn("Failed to reset runs")
	}

	s.wg.Add(1)
	go s.worker()
}

// Shutdown stops workers and waits for completion.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Enqueue creates a queued run from the request.
func (s *Service) Enqueue(ctx context.Context, req Request) (*Run, error) {
	if req.Stage == "" {
		req.Stage = StageFull
	}
	if !req.Stage.Valid() {
		return nil, fmt.Errorf("unknown stage %q", req.Stage)
	}
	if req.Season == 0 {
		req.Season = s.base.Season
	}

	steps, err := plan(req.Stage)
	if err != nil {
		return nil, err
	}

	run := &Run{
		Stage:         req.Stage,
		Season:        sql.NullInt64{Int64: int64(req.Season), Valid: req.Season != 0},
		Status:        RunStatusQueued,
		StatusMessage: sql.NullString{String: "Queued", Valid: true},
		ProgressTotal: len(steps),
	}

	stored, err := s.store.CreateRun(ctx, run)
	if err != nil {
		return nil, err
	}

	_ = s.store.AppendEvent(ctx, stored.RunID, "queued", "Run queued", nil, nil)

	return stored, nil
}

// GetStatus returns the currently running run plus recent history.
func (s *Service) GetStatus(ctx context.Context) (*StatusSummary, error) {
	active, err := s.store.GetActiveRun(ctx)
	if err != nil {
		return nil, err
	}

	history, err := s.store.ListRecentRuns(ctx, s.historyLimit)
	if err != nil {
		return nil, err
	}

	return &StatusSummary{
		ActiveRun: active,
		History:   history,
	}, nil
}

func (s *Service) worker() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
			claimed, err := s.ProcessNext(s.ctx)
			if err != nil {
				s.log.WithError(err).Error("Claim run error")
				time.Sleep(time.Second)
				continue
			}
			if !claimed {
				select {
				case <-s.ctx.Done():
					return
				case <-ticker.C:
					continue
				}
			}
		}
	}
}

// ProcessNext claims and executes one queued run. It reports false when
// the queue is empty.
func (s *Service) ProcessNext(ctx context.Context) (bool, error) {
	run, err := s.store.MarkNextRunRunning(ctx)
	if err != nil {
		return false, err
	}
	if run == nil {
		return false, nil
	}
	_, _ = s.executeRun(ctx, run, nil)
	return true, nil
}

// RunNow records and executes a run synchronously, bypassing the queue.
// extra, when set, receives the same callbacks as the ledger.
func (s *Service) RunNow(ctx context.Context, req Request, extra Reporter) (*Run, *Result, error) {
	run, err := s.Enqueue(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	if err := s.store.UpdateStatus(ctx, run.RunID, RunStatusRunning, "Starting run...", nil); err != nil {
		return run, nil, err
	}
	run.Status = RunStatusRunning

	res, err := s.executeRun(ctx, run, extra)
	return run, res, err
}

func (s *Service) executeRun(ctx context.Context, run *Run, extra Reporter) (*Result, error) {
	log := s.log.WithFields(logrus.Fields{"run_id": run.RunID, "run_stage": run.Stage})

	spec, err := s.buildSpec(run)
	if err != nil {
		log.WithError(err).Error("Invalid run request")
		_ = s.store.UpdateStatus(ctx, run.RunID, RunStatusFailed, "Invalid run request", err)
		return nil, err
	}

	var reporter Reporter = &runReporter{
		ctx:   ctx,
		store: s.store,
		runID: run.RunID,
		total: run.ProgressTotal,
	}
	if extra != nil {
		reporter = teeReporter{reporter, extra}
	}

	res, err := s.runner.Run(ctx, spec, reporter)
	if err != nil {
		_ = s.store.UpdateStatus(ctx, run.RunID, RunStatusFailed, "Run failed", err)
		return nil, err
	}

	_ = s.store.UpdateStatus(ctx, run.RunID, RunStatusCompleted, "Run completed", nil)
	log.WithField("artifacts", len(res.Artifacts)).Info("Run completed")

	if s.hook != nil {
		s.hook(ctx, run, res)
	}
	return res, nil
}

func (s *Service) buildSpec(run *Run) (JobSpec, error) {
	if !run.Stage.Valid() {
		return JobSpec{}, fmt.Errorf("unknown stage %q", run.Stage)
	}
	spec := s.base
	spec.Stage = run.Stage
	if run.Season.Valid {
		spec.Season = int(run.Season.Int64)
	}
	return spec, nil
}

type runReporter struct {
	ctx   context.Context
	store RunStore
	runID string
	total int
}

func (r *runReporter) OnJobStart(spec JobSpec) {
	_ = r.store.UpdateProgress(r.ctx, r.runID, 0, r.total, "Run starting")
}

func (r *runReporter) OnStepStart(step string, index int, total int) {
	msg := fmt.Sprintf("Running %s (%d/%d)", step, index+1, total)
	_ = r.store.UpdateProgress(r.ctx, r.runID, index, valueOr(total, r.total), msg)
}

func (r *runReporter) OnArtifact(path string) {
	_ = r.store.AddArtifact(r.ctx, r.runID, path)
	_ = r.store.AppendEvent(r.ctx, r.runID, "artifact", path, nil, nil)
}

func (r *runReporter) OnProgress(message string, current int, total int) {
	_ = r.store.UpdateProgress(r.ctx, r.runID, current, valueOr(total, r.total), message)
}

func (r *runReporter) OnJobComplete() {
	_ = r.store.UpdateProgress(r.ctx, r.runID, r.total, r.total, "Run complete")
}

func (r *runReporter) OnJobError(err error) {
	_ = r.store.AppendEvent(r.ctx, r.runID, "error", err.Error(), nil, nil)
}

type teeReporter [2]Reporter

func (t teeReporter) OnJobStart(spec JobSpec) {
	for _, r := range t {
		r.OnJobStart(spec)
	}
}

func (t teeReporter) OnStepStart(step string, index int, total int) {
	for _, r := range t {
		r.OnStepStart(step, index, total)
	}
}

func (t teeReporter) OnArtifact(path string) {
	for _, r := range t {
		r.OnArtifact(path)
	}
}

func (t teeReporter) OnProgress(message string, current int, total int) {
	for _, r := range t {
		r.OnProgress(message, current, total)
	}
}

func (t teeReporter) OnJobComplete() {
	for _, r := range t {
		r.OnJobComplete()
	}
}

func (t teeReporter) OnJobError(err error) {
	for _, r := range t {
		r.OnJobError(err)
	}
}

func valueOr(val, fallback int) int {
	if val > 0 {
		return val
	}
	return fallback
}
