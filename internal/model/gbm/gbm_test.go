package gbm

import (
	"bytes"
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/mvp/internal/model"
)

// stepData has a label that depends only on the first feature.
func stepData(n int, seed int64) model.Dataset {
	rng := rand.New(rand.NewSource(seed))
	d := model.Dataset{X: make([][]float64, n), Y: make([]float64, n)}
	for i := range d.X {
		x0 := rng.Float64()
		x1 := rng.Float64()
		d.X[i] = []float64{x0, x1}
		if x0 > 0.5 {
			d.Y[i] = 1
		}
	}
	return d
}

func fastParams() Params {
	p := DefaultParams()
	p.NEstimators = 200
	p.LearningRate = 0.3
	p.MaxDepth = 3
	p.EarlyStoppingRounds = 10
	p.LogEvery = 0
	return p
}

func TestFitLearnsStep(t *testing.T) {
	train := stepData(400, 1)
	eval := stepData(100, 2)

	m, err := NewTrainer(fastParams()).Fit(context.Background(), []string{"signal", "noise"}, train, eval)
	require.NoError(t, err)

	scores, err := m.Predict([][]float64{{0.9, 0.5}, {0.1, 0.5}})
	require.NoError(t, err)
	assert.Greater(t, scores[0], 0.8)
	assert.Less(t, scores[1], 0.2)

	imp := m.FeatureImportances()
	require.Len(t, imp, 2)
	assert.InDelta(t, 1.0, imp[0]+imp[1], 1e-9)
	assert.Greater(t, imp[0], imp[1])
}

func TestFitEarlyStoppingKeepsBestRound(t *testing.T) {
	train := stepData(200, 3)
	// eval labels are noise, so eval RMSE stops improving early
	eval := stepData(50, 4)
	rng := rand.New(rand.NewSource(5))
	for i := range eval.Y {
		eval.Y[i] = rng.Float64()
	}

	p := fastParams()
	p.NEstimators = 1000
	fitted, err := NewTrainer(p).Fit(context.Background(), []string{"a", "b"}, train, eval)
	require.NoError(t, err)

	m := fitted.(*Model)
	assert.Less(t, len(m.Trees), p.NEstimators)
	assert.Equal(t, m.BestIteration+1, len(m.Trees))
	assert.InDelta(t, m.BestScore, RMSE(m.predictAll(eval.X), eval.Y), 1e-9)
}

func TestFitWithoutEvalUsesAllRounds(t *testing.T) {
	p := fastParams()
	p.NEstimators = 7
	fitted, err := NewTrainer(p).Fit(context.Background(), []string{"a", "b"}, stepData(50, 6), model.Dataset{})
	require.NoError(t, err)
	assert.Len(t, fitted.(*Model).Trees, 7)
}

func TestFitRejectsBadInput(t *testing.T) {
	tr := NewTrainer(fastParams())
	ctx := context.Background()

	_, err := tr.Fit(ctx, []string{"a"}, model.Dataset{}, model.Dataset{})
	assert.Error(t, err)

	_, err = tr.Fit(ctx, []string{"a", "b", "c"}, stepData(10, 1), model.Dataset{})
	assert.Error(t, err)

	bad := fastParams()
	bad.LearningRate = 0
	_, err = NewTrainer(bad).Fit(ctx, []string{"a", "b"}, stepData(10, 1), model.Dataset{})
	assert.Error(t, err)
}

func TestFitHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewTrainer(fastParams()).Fit(ctx, []string{"a", "b"}, stepData(10, 1), model.Dataset{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSaveLoadRoundTripPredictions(t *testing.T) {
	fitted, err := NewTrainer(fastParams()).Fit(context.Background(), []string{"a", "b"}, stepData(200, 7), stepData(50, 8))
	require.NoError(t, err)
	m := fitted.(*Model)

	var buf bytes.Buffer
	require.NoError(t, m.Save(&buf))
	loaded, err := Load(&buf)
	require.NoError(t, err)

	sample := stepData(20, 9).X
	want, _ := m.Predict(sample)
	got, err := loaded.Predict(sample)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, m.Features(), loaded.Features())
}

func TestSaveFileRefusesOverwrite(t *testing.T) {
	fitted, err := NewTrainer(fastParams()).Fit(context.Background(), []string{"a", "b"}, stepData(50, 1), model.Dataset{})
	require.NoError(t, err)
	m := fitted.(*Model)

	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, m.SaveFile(path))
	assert.ErrorIs(t, m.SaveFile(path), os.ErrExist)

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, loaded.Trees, len(m.Trees))
}

func TestLoadRejectsCorruptTrees(t *testing.T) {
	_, err := Load(bytes.NewBufferString(`{"features":["a"],"importances":[1],"trees":[{"nodes":[{"feature":0,"threshold":1,"left":0,"right":0}]}]}`))
	assert.Error(t, err)

	_, err = Load(bytes.NewBufferString(`{"features":[],"trees":[]}`))
	assert.Error(t, err)
}

func TestPredictChecksWidth(t *testing.T) {
	m := &Model{FeatureNames: []string{"a", "b"}}
	_, err := m.Predict([][]float64{{1}})
	assert.Error(t, err)
}

func TestCutPoints(t *testing.T) {
	assert.Nil(t, cutPoints([]float64{3, 3, 3}, 8))
	assert.Equal(t, []float64{1.5, 2.5}, cutPoints([]float64{3, 1, 2, 2}, 8))

	many := make([]float64, 1000)
	for i := range many {
		many[i] = float64(i)
	}
	cuts := cutPoints(many, 16)
	assert.LessOrEqual(t, len(cuts), 15)
	assert.IsIncreasing(t, cuts)

	b := &binner{cuts: [][]float64{{1.5, 2.5}}}
	assert.Equal(t, 0, b.bin(0, 1))
	assert.Equal(t, 0, b.bin(0, 1.5))
	assert.Equal(t, 1, b.bin(0, 2))
	assert.Equal(t, 2, b.bin(0, 9))
}
