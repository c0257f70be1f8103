package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/mvp/internal/evaluate"
	"github.com/fortuna/mvp/internal/fixtures"
	"github.com/fortuna/mvp/internal/frame"
	"github.com/fortuna/mvp/internal/logger"
	"github.com/fortuna/mvp/internal/model/gbm"
	"github.com/fortuna/mvp/internal/schema"
)

var fixedNow = time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)

type recordingReporter struct {
	steps     []string
	artifacts []string
	completed bool
	err       error
}

func (r *recordingReporter) OnJobStart(JobSpec) {}
func (r *recordingReporter) OnStepStart(step string, _, _ int) {
	r.steps = append(r.steps, step)
}
func (r *recordingReporter) OnArtifact(path string)      { r.artifacts = append(r.artifacts, path) }
func (r *recordingReporter) OnProgress(string, int, int) {}
func (r *recordingReporter) OnJobComplete()              { r.completed = true }
func (r *recordingReporter) OnJobError(err error)        { r.err = err }

// writeInputs lays out three seasons of history plus the prediction season.
// The first player of each season leads in points and wins outside 2024.
func writeInputs(t *testing.T, dir string) Inputs {
	t.Helper()
	teamCodes := []string{"PHO", "MIA", "DET"}
	var players []fixtures.Player
	var standings []fixtures.Standing
	for _, season := range []int{2005, 2006, 2007, 2024} {
		for k := 0; k < 6; k++ {
			players = append(players, fixtures.Player{
				Name:     fmt.Sprintf("P%d-%d", season, k),
				Team:     teamCodes[k%3],
				Position: "PG",
				Season:   season,
				MVP:      k == 0 && season != 2024,
				Stats:    map[string]float64{schema.Points: float64(2000 - 250*k)},
			})
		}
		standings = append(standings,
			fixtures.Standing{Team: "Phoenix Suns", Season: season, Conference: "W", WinPct: 0.75},
			fixtures.Standing{Team: "Miami Heat", Season: season, Conference: "E", WinPct: 0.6},
			fixtures.Standing{Team: "Detroit Pistons", Season: season, Conference: "E", WinPct: 0.5},
		)
	}

	in := Inputs{
		Totals:    filepath.Join(dir, "totals.csv"),
		Advanced:  filepath.Join(dir, "advanced.csv"),
		Standings: filepath.Join(dir, "standings.csv"),
	}
	require.NoError(t, frame.CreateCSVFile(in.Totals, fixtures.Totals(players)))
	require.NoError(t, frame.CreateCSVFile(in.Advanced, fixtures.Advanced(players)))
	require.NoError(t, frame.CreateCSVFile(in.Standings, fixtures.Standings(standings)))
	return in
}

func testSpec(t *testing.T, stage Stage) JobSpec {
	t.Helper()
	dir := t.TempDir()
	return JobSpec{
		Stage:     stage,
		Inputs:    writeInputs(t, dir),
		OutputDir: filepath.Join(dir, "out"),
		Season:    2024,
		TopN:      3,
		Params: gbm.Params{
			NEstimators:    40,
			LearningRate:   0.3,
			MaxDepth:       2,
			MinSamplesLeaf: 1,
			Lambda:         1,
			MaxBins:        16,
		},
		Evaluation: evaluate.Options{TopN: 3, LastSeasons: 10, CorrThreshold: 0.85},
	}
}

func fixedRunner(now time.Time) *Runner {
	return &Runner{now: func() time.Time { return now }}
}

func TestRunFullPipeline(t *testing.T) {
	spec := testSpec(t, StageFull)
	rep := &recordingReporter{}

	res, err := fixedRunner(fixedNow).Run(context.Background(), spec, rep)
	require.NoError(t, err)

	assert.Equal(t, []string{"merge", "clean", "engineer", "train", "evaluate", "predict"}, rep.steps)
	assert.True(t, rep.completed)
	assert.NoError(t, rep.err)

	stamp := fixedNow.Format(TimestampFormat)
	var want []string
	for _, name := range []string{
		"01_df_row_%s.csv",
		"02_df_cleaned_%s.csv",
		"03_df_features_%s.csv",
		"mvp_gbm_model_%s.json",
		"corr_importance_%s.csv",
		"evaluation_%s.json",
		"mvp_predictions_2024_%s.csv",
	} {
		want = append(want, filepath.Join(spec.OutputDir, fmt.Sprintf(name, stamp)))
	}
	assert.Equal(t, want, res.Artifacts)
	assert.Equal(t, want, rep.artifacts)
	for _, path := range want {
		assert.FileExists(t, path)
	}

	require.NotNil(t, res.Split)
	assert.Equal(t, []int{2005, 2007}, res.Split.Validation)
	assert.Equal(t, []int{2006}, res.Split.Training)

	require.NotNil(t, res.Evaluation)
	assert.Equal(t, []int{2005, 2007}, res.Evaluation.Validation)

	require.NotNil(t, res.Ranking)
	assert.Equal(t, 2024, res.Ranking.Season)
	assert.Len(t, res.Ranking.Entries, 6)
	assert.Equal(t, "P2024-0", res.Ranking.Entries[0].Player)

	preds, err := frame.ReadCSVFile(want[6], schema.PlayerName)
	require.NoError(t, err)
	assert.Equal(t, 3, preds.Len())
}

func TestRunRefusesToOverwriteArtifacts(t *testing.T) {
	spec := testSpec(t, StageMerge)
	runner := fixedRunner(fixedNow)

	_, err := runner.Run(context.Background(), spec, nil)
	require.NoError(t, err)

	_, err = runner.Run(context.Background(), spec, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrExist)
	assert.Contains(t, err.Error(), "step merge")
}

func TestRunStagesFromFiles(t *testing.T) {
	spec := testSpec(t, StageFull)
	first, err := fixedRunner(fixedNow).Run(context.Background(), spec, nil)
	require.NoError(t, err)

	predict := spec
	predict.Stage = StagePredict
	predict.Inputs.Features = first.Artifacts[2]
	predict.Inputs.Model = first.Artifacts[3]

	res, err := fixedRunner(fixedNow.Add(time.Second)).Run(context.Background(), predict, nil)
	require.NoError(t, err)
	require.Len(t, res.Artifacts, 1)
	assert.Equal(t, first.Ranking.Entries, res.Ranking.Entries)
}

func TestRunPredictWarnsOnTrainingSeason(t *testing.T) {
	var buf bytes.Buffer
	prev := logger.Logger
	logger.Logger = logrus.New()
	logger.Logger.SetOutput(&buf)
	logger.Logger.SetFormatter(&logrus.JSONFormatter{})
	t.Cleanup(func() { logger.Logger = prev })

	_, err := fixedRunner(fixedNow).Run(context.Background(), testSpec(t, StageFull), nil)
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "in-sample")

	buf.Reset()
	spec := testSpec(t, StageFull)
	spec.Season = 2006
	res, err := fixedRunner(fixedNow).Run(context.Background(), spec, nil)
	require.NoError(t, err)
	require.NotNil(t, res.Ranking)
	assert.Equal(t, 2006, res.Ranking.Season)
	assert.Contains(t, buf.String(), "ranking is in-sample")
	assert.Contains(t, buf.String(), `"held_out_season":2024`)
}

func TestRunDryRunWritesNothing(t *testing.T) {
	spec := testSpec(t, StageFull)
	spec.DryRun = true
	rep := &recordingReporter{}

	res, err := fixedRunner(fixedNow).Run(context.Background(), spec, rep)
	require.NoError(t, err)
	assert.Empty(t, res.Artifacts)
	assert.True(t, rep.completed)
	assert.NoDirExists(t, spec.OutputDir)
}

func TestRunErrors(t *testing.T) {
	t.Run("unknown stage", func(t *testing.T) {
		spec := testSpec(t, Stage("scrape"))
		rep := &recordingReporter{}
		_, err := fixedRunner(fixedNow).Run(context.Background(), spec, rep)
		require.Error(t, err)
		assert.Equal(t, err, rep.err)
	})

	t.Run("missing input", func(t *testing.T) {
		spec := testSpec(t, StagePredict)
		_, err := fixedRunner(fixedNow).Run(context.Background(), spec, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no features input given")
	})

	t.Run("season without rows", func(t *testing.T) {
		spec := testSpec(t, StageFull)
		spec.Season = 2030
		_, err := fixedRunner(fixedNow).Run(context.Background(), spec, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "step predict")
	})

	t.Run("cancelled", func(t *testing.T) {
		spec := testSpec(t, StageFull)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := fixedRunner(fixedNow).Run(ctx, spec, nil)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestPredictionsFrameMarksMissingPercent(t *testing.T) {
	spec := testSpec(t, StageFull)
	res, err := fixedRunner(fixedNow).Run(context.Background(), spec, nil)
	require.NoError(t, err)

	f := PredictionsFrame(res.Ranking.Top(2), nil)
	pct, err := f.Col("percent")
	require.NoError(t, err)
	assert.Equal(t, 2, pct.NullCount())
}
