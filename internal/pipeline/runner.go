package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/fortuna/mvp/internal/clean"
	"github.com/fortuna/mvp/internal/evaluate"
	"github.com/fortuna/mvp/internal/features"
	"github.com/fortuna/mvp/internal/frame"
	"github.com/fortuna/mvp/internal/logger"
	"github.com/fortuna/mvp/internal/merge"
	"github.com/fortuna/mvp/internal/model"
	"github.com/fortuna/mvp/internal/model/gbm"
	"github.com/fortuna/mvp/internal/ranking"
	"github.com/fortuna/mvp/internal/schema"
	"github.com/fortuna/mvp/internal/split"
)

// TimestampFormat suffixes every artifact name.
const TimestampFormat = "2006-01-02T150405"

// rawText are read as text whatever their content. Cleaning encodes every
// other categorical, so later tables only keep the player name as text.
var (
	rawText     = []string{schema.PlayerName, schema.Position, schema.Team, schema.Conference}
	encodedText = []string{schema.PlayerName}
)

// Runner executes job specs against table files.
type Runner struct {
	now func() time.Time
}

// NewRunner constructs a runner stamping artifacts with the wall clock.
func NewRunner() *Runner {
	return &Runner{now: time.Now}
}

type step struct {
	name string
	run  func(ctx context.Context, st *runState) error
}

type runState struct {
	spec     JobSpec
	stamp    string
	reporter Reporter
	res      *Result
}

// Run executes the job spec, reporting progress via the Reporter if provided.
func (r *Runner) Run(ctx context.Context, spec JobSpec, reporter Reporter) (*Result, error) {
	if reporter == nil {
		reporter = nopReporter{}
	}
	log := logger.WithStage(string(spec.Stage))
	reporter.OnJobStart(spec)

	steps, err := plan(spec.Stage)
	if err != nil {
		reporter.OnJobError(err)
		return nil, err
	}

	if spec.DryRun {
		reporter.OnProgress("Dry-run mode: no artifacts will be written", 0, len(steps))
		reporter.OnJobComplete()
		return &Result{}, nil
	}

	if err := os.MkdirAll(spec.OutputDir, 0o755); err != nil {
		err = errors.Wrapf(err, "create output dir %s", spec.OutputDir)
		reporter.OnJobError(err)
		return nil, err
	}

	st := &runState{
		spec:     spec,
		stamp:    r.now().Format(TimestampFormat),
		reporter: reporter,
		res:      &Result{},
	}

	for idx, s := range steps {
		if err := ctx.Err(); err != nil {
			reporter.OnJobError(err)
			return nil, err
		}
		reporter.OnStepStart(s.name, idx, len(steps))

		started := time.Now()
		if err := s.run(ctx, st); err != nil {
			err = errors.Wrapf(err, "step %s", s.name)
			log.WithFields(logrus.Fields{"step": s.name, "season": spec.Season}).WithError(err).Error("Pipeline step failed")
			reporter.OnJobError(err)
			return nil, err
		}

		log.WithFields(logrus.Fields{"step": s.name, "duration": time.Since(started).String()}).Info("Step complete")
		reporter.OnProgress(fmt.Sprintf("✓ %s complete", s.name), idx+1, len(steps))
	}

	reporter.OnJobComplete()
	return st.res, nil
}

func plan(stage Stage) ([]step, error) {
	all := map[Stage]step{
		StageMerge:    {"merge", runMerge},
		StageClean:    {"clean", runClean},
		StageEngineer: {"engineer", runEngineer},
		StageTrain:    {"train", runTrain},
		StageEvaluate: {"evaluate", runEvaluate},
		StagePredict:  {"predict", runPredict},
	}
	if stage == StageFull {
		return []step{all[StageMerge], all[StageClean], all[StageEngineer], all[StageTrain], all[StageEvaluate], all[StagePredict]}, nil
	}
	s, ok := all[stage]
	if !ok {
		return nil, errors.Errorf("unsupported stage %q", stage)
	}
	return []step{s}, nil
}

func (st *runState) artifact(prefix, ext string) string {
	return filepath.Join(st.spec.OutputDir, fmt.Sprintf("%s_%s.%s", prefix, st.stamp, ext))
}

func (st *runState) writeTable(prefix string, f *frame.Frame) error {
	path := st.artifact(prefix, "csv")
	if err := frame.CreateCSVFile(path, f); err != nil {
		return err
	}
	st.record(path)
	return nil
}

func (st *runState) writeJSON(prefix string, v interface{}) error {
	path := st.artifact(prefix, "json")
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		file.Close()
		os.Remove(path)
		return errors.Wrapf(err, "encode %s", path)
	}
	if err := file.Close(); err != nil {
		return err
	}
	st.record(path)
	return nil
}

func (st *runState) record(path string) {
	st.res.Artifacts = append(st.res.Artifacts, path)
	st.reporter.OnArtifact(path)
}

func readInput(kind, path string, text []string) (*frame.Frame, error) {
	if path == "" {
		return nil, errors.Errorf("no %s input given", kind)
	}
	f, err := frame.ReadCSVFile(path, text...)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", kind)
	}
	return f, nil
}

func runMerge(_ context.Context, st *runState) error {
	in := st.spec.Inputs
	totals, err := readInput("totals", in.Totals, rawText)
	if err != nil {
		return err
	}
	advanced, err := readInput("advanced", in.Advanced, rawText)
	if err != nil {
		return err
	}
	standings, err := readInput("standings", in.Standings, rawText)
	if err != nil {
		return err
	}

	merged, report, err := merge.Merge(totals, advanced, standings)
	if err != nil {
		return err
	}
	st.res.Merged, st.res.MergeReport = merged, report
	return st.writeTable("01_df_row", merged)
}

func runClean(_ context.Context, st *runState) error {
	merged := st.res.Merged
	if merged == nil {
		var err error
		if merged, err = readInput("merged", st.spec.Inputs.Merged, rawText); err != nil {
			return err
		}
	}

	opts := clean.Options{Scope: st.spec.ImputeScope}
	if opts.Scope == clean.ImputeTraining {
		seasons, err := split.Seasons(merged)
		if err != nil {
			return err
		}
		opts.TrainingSeasons = split.Split(seasons).Training
	}

	cleaned, err := clean.Clean(merged, opts)
	if err != nil {
		return err
	}
	st.res.Cleaned = cleaned
	return st.writeTable("02_df_cleaned", cleaned)
}

func runEngineer(_ context.Context, st *runState) error {
	cleaned := st.res.Cleaned
	if cleaned == nil {
		var err error
		if cleaned, err = readInput("cleaned", st.spec.Inputs.Cleaned, encodedText); err != nil {
			return err
		}
	}

	feats, err := features.Engineer(cleaned)
	if err != nil {
		return err
	}
	st.res.Features = feats
	return st.writeTable("03_df_features", feats)
}

func (st *runState) features() (*frame.Frame, error) {
	if st.res.Features != nil {
		return st.res.Features, nil
	}
	f, err := readInput("features", st.spec.Inputs.Features, encodedText)
	if err != nil {
		return nil, err
	}
	st.res.Features = f
	return f, nil
}

func (st *runState) split(f *frame.Frame) (split.Result, error) {
	if st.res.Split != nil {
		return *st.res.Split, nil
	}
	seasons, err := split.Seasons(f)
	if err != nil {
		return split.Result{}, err
	}
	s := split.Split(seasons)
	st.res.Split = &s
	logger.WithStage("split").WithFields(logrus.Fields{
		"validation": s.Validation,
		"training":   s.Training,
	}).Info("Seasons partitioned")
	return s, nil
}

func (st *runState) model() (*gbm.Model, error) {
	if st.res.Model != nil {
		return st.res.Model, nil
	}
	if st.spec.Inputs.Model == "" {
		return nil, errors.New("no model input given")
	}
	m, err := gbm.LoadFile(st.spec.Inputs.Model)
	if err != nil {
		return nil, err
	}
	st.res.Model = m
	return m, nil
}

func runTrain(ctx context.Context, st *runState) error {
	f, err := st.features()
	if err != nil {
		return err
	}
	s, err := st.split(f)
	if err != nil {
		return err
	}

	cols := features.ModelFeatures()
	trainRows, err := split.Rows(f, s.Training)
	if err != nil {
		return err
	}
	evalRows, err := split.Rows(f, s.Validation)
	if err != nil {
		return err
	}
	train, err := model.FromFrame(f, cols, schema.IsMVP, trainRows)
	if err != nil {
		return errors.Wrap(err, "training set")
	}
	eval, err := model.FromFrame(f, cols, schema.IsMVP, evalRows)
	if err != nil {
		return errors.Wrap(err, "validation set")
	}

	fitted, err := gbm.NewTrainer(st.spec.Params).Fit(ctx, cols, train, eval)
	if err != nil {
		return err
	}
	m := fitted.(*gbm.Model)
	st.res.Model = m

	path := st.artifact("mvp_gbm_model", "json")
	if err := m.SaveFile(path); err != nil {
		return err
	}
	st.record(path)
	return nil
}

func runEvaluate(_ context.Context, st *runState) error {
	f, err := st.features()
	if err != nil {
		return err
	}
	m, err := st.model()
	if err != nil {
		return err
	}
	s, err := st.split(f)
	if err != nil {
		return err
	}

	opts := st.spec.Evaluation
	if opts.TopN == 0 {
		opts.TopN = st.spec.TopN
	}
	rep, err := evaluate.Evaluate(m, f, s.Validation, opts)
	if err != nil {
		return err
	}
	st.res.Evaluation = rep

	if err := st.writeTable("corr_importance", evaluate.PairsFrame(rep.Redundant)); err != nil {
		return err
	}
	return st.writeJSON("evaluation", rep)
}

func runPredict(_ context.Context, st *runState) error {
	f, err := st.features()
	if err != nil {
		return err
	}
	m, err := st.model()
	if err != nil {
		return err
	}

	if st.spec.Season != split.PredictionSeason {
		logger.WithSeason("predict", st.spec.Season).
			WithField("held_out_season", split.PredictionSeason).
			Warn("Season is not held out of training, ranking is in-sample")
	}

	r, err := ranking.PredictRankings(m, f, st.spec.Season, m.Features())
	if err != nil {
		return err
	}
	st.res.Ranking = r

	top := r.Top(st.spec.TopN)
	probs, err := r.Normalized(st.spec.TopN)
	if err != nil {
		if !errors.Is(err, ranking.ErrDegenerateNormalization) {
			return err
		}
		logger.WithSeason("predict", st.spec.Season).WithError(err).Warn("Percentages not available")
		probs = nil
	}
	return st.writeTable(fmt.Sprintf("mvp_predictions_%d", st.spec.Season), PredictionsFrame(top, probs))
}

// PredictionsFrame lays out a top-N listing. Percent is null when probs is
// nil.
func PredictionsFrame(top []ranking.Entry, probs []ranking.Probability) *frame.Frame {
	n := len(top)
	rank := make([]float64, n)
	names := make([]string, n)
	score := make([]float64, n)
	pct := make([]float64, n)
	pctValid := make([]bool, n)
	mvp := make([]float64, n)
	for i, e := range top {
		rank[i] = float64(e.Rank)
		names[i] = e.Player
		score[i] = e.Score
		if i < len(probs) {
			pct[i], pctValid[i] = probs[i].Percent, true
		}
		if e.IsMVP {
			mvp[i] = 1
		}
	}
	return frame.MustNew(
		frame.NewNumber("rank", rank, nil),
		frame.NewText(schema.PlayerName, names, nil),
		frame.NewNumber("predicted_score", score, nil),
		frame.NewNumber("percent", pct, pctValid),
		frame.NewNumber(schema.IsMVP, mvp, nil),
	)
}

type nopReporter struct{}

func (nopReporter) OnJobStart(JobSpec)           {}
func (nopReporter) OnStepStart(string, int, int) {}
func (nopReporter) OnArtifact(string)            {}
func (nopReporter) OnProgress(string, int, int)  {}
func (nopReporter) OnJobComplete()               {}
func (nopReporter) OnJobError(error)             {}
