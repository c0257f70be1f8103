// Package gbm is a histogram gradient-boosted regression tree ensemble with
// squared loss and early stopping on a held-out set.
package gbm

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/fortuna/mvp/internal/logger"
	"github.com/fortuna/mvp/internal/model"
)

// Params control boosting.
type Params struct {
	NEstimators  int
	LearningRate float64
	MaxDepth     int
	// EarlyStoppingRounds stops after this many rounds without an eval
	// RMSE improvement. Zero disables it.
	EarlyStoppingRounds int
	MinSamplesLeaf      int
	Lambda              float64
	MinGain             float64
	MaxBins             int
	// LogEvery logs eval RMSE every n rounds. Zero disables it.
	LogEvery int
}

// DefaultParams mirrors the production training setup.
func DefaultParams() Params {
	return Params{
		NEstimators:         3000,
		LearningRate:        0.01,
		MaxDepth:            6,
		EarlyStoppingRounds: 50,
		MinSamplesLeaf:      1,
		Lambda:              1,
		MaxBins:             256,
		LogEvery:            100,
	}
}

func (p Params) validate() error {
	switch {
	case p.NEstimators <= 0:
		return errors.Errorf("n_estimators must be positive, got %d", p.NEstimators)
	case p.LearningRate <= 0 || p.LearningRate > 1:
		return errors.Errorf("learning_rate must be in (0, 1], got %v", p.LearningRate)
	case p.MaxDepth <= 0:
		return errors.Errorf("max_depth must be positive, got %d", p.MaxDepth)
	case p.MinSamplesLeaf <= 0:
		return errors.Errorf("min_samples_leaf must be positive, got %d", p.MinSamplesLeaf)
	case p.MaxBins < 2 || p.MaxBins > math.MaxUint16:
		return errors.Errorf("max_bins must be in [2, %d], got %d", math.MaxUint16, p.MaxBins)
	case p.Lambda < 0:
		return errors.Errorf("lambda must be non-negative, got %v", p.Lambda)
	}
	return nil
}

// Trainer fits Models.
type Trainer struct {
	Params Params
}

// NewTrainer returns a Trainer with the given parameters.
func NewTrainer(p Params) *Trainer {
	return &Trainer{Params: p}
}

var _ model.Trainer = (*Trainer)(nil)

// Fit boosts trees on train. When eval is non-empty the ensemble is cut
// back to the round with the lowest eval RMSE.
func (t *Trainer) Fit(ctx context.Context, features []string, train, eval model.Dataset) (model.Model, error) {
	p := t.Params
	if err := p.validate(); err != nil {
		return nil, err
	}
	if train.Len() == 0 {
		return nil, errors.New("empty training set")
	}
	if err := train.Validate(len(features)); err != nil {
		return nil, errors.Wrap(err, "training set")
	}
	if err := eval.Validate(len(features)); err != nil {
		return nil, errors.Wrap(err, "eval set")
	}

	log := logger.WithStage("train")
	bn := newBinner(train.X, p.MaxBins)
	b := &builder{
		params: p,
		binner: bn,
		binned: bn.transform(train.X),
		grad:   make([]float64, train.Len()),
	}

	base := stat.Mean(train.Y, nil)
	pred := filled(train.Len(), base)
	evalPred := filled(eval.Len(), base)

	rows := make([]int, train.Len())
	for i := range rows {
		rows[i] = i
	}

	m := &Model{
		FeatureNames: append([]string(nil), features...),
		BaseScore:    base,
	}
	bestScore := math.Inf(1)
	bestIter := -1
	stale := 0

	for it := 0; it < p.NEstimators; it++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrapf(err, "boosting round %d", it)
		}
		for i := range b.grad {
			b.grad[i] = pred[i] - train.Y[i]
		}

		tr := b.build(rows)
		m.Trees = append(m.Trees, tr)
		for i, row := range train.X {
			pred[i] += tr.predict(row)
		}

		if eval.Len() == 0 {
			continue
		}
		for i, row := range eval.X {
			evalPred[i] += tr.predict(row)
		}
		score := RMSE(evalPred, eval.Y)
		if p.LogEvery > 0 && it%p.LogEvery == 0 {
			log.WithFields(logrus.Fields{"round": it, "eval_rmse": score}).Info("Boosting")
		}
		if score < bestScore {
			bestScore, bestIter, stale = score, it, 0
			continue
		}
		stale++
		if p.EarlyStoppingRounds > 0 && stale >= p.EarlyStoppingRounds {
			log.WithFields(logrus.Fields{"round": it, "best_round": bestIter, "best_rmse": bestScore}).Info("Early stopping")
			break
		}
	}

	if eval.Len() > 0 {
		if bestIter < 0 {
			return nil, errors.New("eval RMSE was never finite")
		}
		m.Trees = m.Trees[:bestIter+1]
		m.BestIteration = bestIter
		m.BestScore = bestScore
	} else {
		m.BestIteration = len(m.Trees) - 1
	}
	m.Importance = m.gainImportance()

	log.WithFields(logrus.Fields{
		"trees":      len(m.Trees),
		"train_rmse": RMSE(m.predictAll(train.X), train.Y),
	}).Info("Model fitted")
	return m, nil
}

// RMSE is the root mean squared error of pred against y.
func RMSE(pred, y []float64) float64 {
	if len(y) == 0 {
		return 0
	}
	return floats.Distance(pred, y, 2) / math.Sqrt(float64(len(y)))
}

func filled(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
