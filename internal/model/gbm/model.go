package gbm

import (
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/fortuna/mvp/internal/model"
)

// Model is a fitted ensemble. It is safe for concurrent Predict calls.
type Model struct {
	FeatureNames  []string  `json:"features"`
	BaseScore     float64   `json:"base_score"`
	Trees         []tree    `json:"trees"`
	BestIteration int       `json:"best_iteration"`
	BestScore     float64   `json:"best_score"`
	Importance    []float64 `json:"importances"`
}

var _ model.Model = (*Model)(nil)

func (m *Model) Features() []string { return append([]string(nil), m.FeatureNames...) }

func (m *Model) FeatureImportances() []float64 { return append([]float64(nil), m.Importance...) }

// Predict scores each row.
func (m *Model) Predict(X [][]float64) ([]float64, error) {
	for i, row := range X {
		if len(row) != len(m.FeatureNames) {
			return nil, errors.Errorf("row %d has %d features, model expects %d", i, len(row), len(m.FeatureNames))
		}
	}
	return m.predictAll(X), nil
}

func (m *Model) predictAll(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, row := range X {
		s := m.BaseScore
		for t := range m.Trees {
			s += m.Trees[t].predict(row)
		}
		out[i] = s
	}
	return out
}

// gainImportance sums split gain per feature and normalises to 1.
func (m *Model) gainImportance() []float64 {
	imp := make([]float64, len(m.FeatureNames))
	for _, t := range m.Trees {
		for _, n := range t.Nodes {
			if !n.Leaf {
				imp[n.Feature] += n.Gain
			}
		}
	}
	if total := floats.Sum(imp); total > 0 {
		floats.Scale(1/total, imp)
	}
	return imp
}

// Save writes the model as JSON.
func (m *Model) Save(w io.Writer) error {
	enc := json.NewEncoder(w)
	return errors.Wrap(enc.Encode(m), "encode model")
}

// SaveFile writes the model to a new file; an existing file is an error.
func (m *Model) SaveFile(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	if err := m.Save(f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return errors.Wrapf(f.Close(), "close %s", path)
}

// Load reads a model written by Save and checks its structure.
func Load(r io.Reader) (*Model, error) {
	var m Model
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, errors.Wrap(err, "decode model")
	}
	if err := m.check(); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadFile reads a model from path.
func LoadFile(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	m, err := Load(f)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	return m, nil
}

func (m *Model) check() error {
	if len(m.FeatureNames) == 0 {
		return errors.New("model has no features")
	}
	if len(m.Importance) != len(m.FeatureNames) {
		return errors.Errorf("%d importances for %d features", len(m.Importance), len(m.FeatureNames))
	}
	for ti, t := range m.Trees {
		if len(t.Nodes) == 0 {
			return errors.Errorf("tree %d is empty", ti)
		}
		for ni, n := range t.Nodes {
			if n.Leaf {
				continue
			}
			if n.Feature < 0 || n.Feature >= len(m.FeatureNames) {
				return errors.Errorf("tree %d node %d: feature %d out of range", ti, ni, n.Feature)
			}
			// children are always appended after their parent
			if n.Left <= ni || n.Right <= ni || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
				return errors.Errorf("tree %d node %d: bad children %d, %d", ti, ni, n.Left, n.Right)
			}
		}
	}
	return nil
}
