// Package model defines the regressor contract used for training and
// inference, and extracts labelled datasets from feature tables.
package model

import (
	"context"

	"github.com/pkg/errors"

	"github.com/fortuna/mvp/internal/frame"
)

// Model is a fitted regressor.
type Model interface {
	Predict(X [][]float64) ([]float64, error)
	// Features lists the input columns in the order Predict expects.
	Features() []string
	// FeatureImportances is aligned with Features and sums to 1.
	FeatureImportances() []float64
}

// Trainer fits a Model. eval drives early stopping and may be empty.
type Trainer interface {
	Fit(ctx context.Context, features []string, train, eval Dataset) (Model, error)
}

// Dataset is a feature matrix and its labels.
type Dataset struct {
	X [][]float64
	Y []float64
}

func (d Dataset) Len() int { return len(d.X) }

// Validate checks that every row has width columns and one label.
func (d Dataset) Validate(width int) error {
	if len(d.X) != len(d.Y) {
		return errors.Errorf("%d rows but %d labels", len(d.X), len(d.Y))
	}
	for i, row := range d.X {
		if len(row) != width {
			return errors.Errorf("row %d has %d features, want %d", i, len(row), width)
		}
	}
	return nil
}

// FromFrame extracts the rows selected by keep. Null features become 0; a
// null label is an error.
func FromFrame(f *frame.Frame, features []string, label string, keep func(i int) bool) (Dataset, error) {
	sub := f
	if keep != nil {
		sub = f.Filter(keep)
	}
	X, err := sub.Matrix("dataset", features)
	if err != nil {
		return Dataset{}, err
	}
	col, err := sub.Col(label)
	if err != nil {
		return Dataset{}, err
	}
	Y := make([]float64, sub.Len())
	for i := range Y {
		v, ok := col.Float(i)
		if !ok {
			return Dataset{}, errors.Errorf("row %d has no %s label", i, label)
		}
		Y[i] = v
	}
	return Dataset{X: X, Y: Y}, nil
}

// Importances returns the model's importances keyed by feature name.
func Importances(m Model) map[string]float64 {
	names := m.Features()
	vals := m.FeatureImportances()
	out := make(map[string]float64, len(names))
	for i, n := range names {
		if i < len(vals) {
			out[n] = vals[i]
		}
	}
	return out
}
