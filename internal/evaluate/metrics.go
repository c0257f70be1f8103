// Package evaluate scores a fitted model on the validation seasons and
// suggests redundant features.
package evaluate

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// Metrics are regression and ranking-quality scores of predictions against
// the is_MVP label.
type Metrics struct {
	MAE  float64 `json:"mae"`
	RMSE float64 `json:"rmse"`
	R2   float64 `json:"r2"`
	AUC  float64 `json:"auc"`
	// HasAUC is false when the labels hold a single class. R2 is then
	// reported as 0.
	HasAUC bool `json:"has_auc"`
}

// Score computes Metrics for pred against binary labels y.
func Score(pred, y []float64) (Metrics, error) {
	if len(pred) != len(y) {
		return Metrics{}, errors.Errorf("%d predictions for %d labels", len(pred), len(y))
	}
	if len(y) == 0 {
		return Metrics{}, errors.New("no rows to score")
	}
	n := float64(len(y))
	m := Metrics{
		MAE:  floats.Distance(pred, y, 1) / n,
		RMSE: floats.Distance(pred, y, 2) / math.Sqrt(n),
		R2:   stat.RSquaredFrom(pred, y, nil),
	}
	m.AUC, m.HasAUC = AUC(pred, y)
	if math.IsNaN(m.R2) || math.IsInf(m.R2, 0) {
		m.R2 = 0
	}
	return m, nil
}

// AUC is the area under the ROC curve of scores for labels equal to 1.
func AUC(scores, y []float64) (float64, bool) {
	s := make([]float64, len(scores))
	copy(s, scores)
	classes := make([]bool, len(y))
	var pos int
	for i, v := range y {
		classes[i] = v == 1
		if classes[i] {
			pos++
		}
	}
	if pos == 0 || pos == len(y) {
		return 0, false
	}
	stat.SortWeightedLabeled(s, classes, nil)
	tpr, fpr, _ := stat.ROC(nil, s, classes, nil)
	return integrate.Trapezoidal(fpr, tpr), true
}
