package evaluate

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/fortuna/mvp/internal/frame"
)

// Pair is a strongly correlated feature pair with a keep/remove suggestion
// driven by model importance.
type Pair struct {
	Feature1    string  `json:"feature_1"`
	Feature2    string  `json:"feature_2"`
	Correlation float64 `json:"correlation"`
	Importance1 float64 `json:"importance_1"`
	Importance2 float64 `json:"importance_2"`
	Keep        string  `json:"keep"`
	Remove      string  `json:"consider_removing"`
}

// Redundancy returns feature pairs whose absolute Pearson correlation over
// X is at least threshold, strongest first. Constant columns are skipped.
func Redundancy(X [][]float64, features []string, importance map[string]float64, threshold float64) []Pair {
	cols := make([][]float64, len(features))
	for j := range features {
		c := make([]float64, len(X))
		for i, row := range X {
			c[i] = row[j]
		}
		cols[j] = c
	}

	pairs := []Pair{}
	for a := 0; a < len(features); a++ {
		for b := a + 1; b < len(features); b++ {
			r := math.Abs(stat.Correlation(cols[a], cols[b], nil))
			if math.IsNaN(r) || r < threshold {
				continue
			}
			p := Pair{
				Feature1:    features[a],
				Feature2:    features[b],
				Correlation: r,
				Importance1: importance[features[a]],
				Importance2: importance[features[b]],
			}
			if p.Importance1 > p.Importance2 {
				p.Keep, p.Remove = p.Feature1, p.Feature2
			} else {
				p.Keep, p.Remove = p.Feature2, p.Feature1
			}
			pairs = append(pairs, p)
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].Correlation > pairs[j].Correlation })
	return pairs
}

// PairsFrame lays pairs out as a table for the CSV artifact.
func PairsFrame(pairs []Pair) *frame.Frame {
	n := len(pairs)
	f1 := make([]string, n)
	f2 := make([]string, n)
	corr := make([]float64, n)
	i1 := make([]float64, n)
	i2 := make([]float64, n)
	keep := make([]string, n)
	remove := make([]string, n)
	for i, p := range pairs {
		f1[i], f2[i] = p.Feature1, p.Feature2
		corr[i] = p.Correlation
		i1[i], i2[i] = p.Importance1, p.Importance2
		keep[i], remove[i] = p.Keep, p.Remove
	}
	return frame.MustNew(
		frame.NewText("feature_1", f1, nil),
		frame.NewText("feature_2", f2, nil),
		frame.NewNumber("correlation", corr, nil),
		frame.NewNumber("importance_1", i1, nil),
		frame.NewNumber("importance_2", i2, nil),
		frame.NewText("to_keep", keep, nil),
		frame.NewText("to_consider_removing", remove, nil),
	)
}
