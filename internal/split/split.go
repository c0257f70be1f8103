// Package split partitions seasons into training and validation sets by
// season identity, never at random.
package split

import (
	"sort"

	"github.com/fortuna/mvp/internal/frame"
	"github.com/fortuna/mvp/internal/schema"
)

const (
	// FirstValidationSeason and LastValidationSeason bound the odd
	// season-start years held out for validation.
	FirstValidationSeason = 2005
	LastValidationSeason  = 2023

	// PredictionSeason is reserved for inference and never trained on.
	PredictionSeason = 2024
)

// Result is a season partition. Both lists are sorted ascending.
type Result struct {
	Validation []int `json:"validation"`
	Training   []int `json:"training"`
}

// IsValidationSeason reports whether season is in the fixed validation set.
func IsValidationSeason(season int) bool {
	return season >= FirstValidationSeason && season <= LastValidationSeason && season%2 == 1
}

// Split partitions the available seasons. Duplicates are ignored.
func Split(available []int) Result {
	seen := make(map[int]bool, len(available))
	res := Result{Validation: []int{}, Training: []int{}}
	for _, s := range available {
		if seen[s] {
			continue
		}
		seen[s] = true
		switch {
		case IsValidationSeason(s):
			res.Validation = append(res.Validation, s)
		case s == PredictionSeason:
		default:
			res.Training = append(res.Training, s)
		}
	}
	sort.Ints(res.Validation)
	sort.Ints(res.Training)
	return res
}

// Seasons returns the distinct seasons of a table, sorted.
func Seasons(f *frame.Frame) ([]int, error) {
	return f.DistinctInts(schema.SeasonYear)
}

// Rows returns a predicate selecting rows whose season is in seasons.
func Rows(f *frame.Frame, seasons []int) (func(i int) bool, error) {
	col, err := f.Col(schema.SeasonYear)
	if err != nil {
		return nil, err
	}
	set := make(map[int]bool, len(seasons))
	for _, s := range seasons {
		set[s] = true
	}
	return func(i int) bool {
		v, ok := col.Float(i)
		return ok && set[int(v)]
	}, nil
}
