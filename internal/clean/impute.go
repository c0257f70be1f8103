package clean

import (
	"sort"

	"github.com/fortuna/mvp/internal/frame"
	"github.com/fortuna/mvp/internal/logger"
	"github.com/fortuna/mvp/internal/schema"
)

// Medians returns the median of every numeric column over the rows where fit
// returns true. Columns without a single value are absent from the result.
func Medians(f *frame.Frame, fit func(i int) bool) map[string]float64 {
	out := make(map[string]float64)
	for _, name := range f.Names() {
		c, _ := f.Col(name)
		if c.Kind() != frame.Number {
			continue
		}
		vals := make([]float64, 0, c.Len())
		for i := 0; i < c.Len(); i++ {
			if !fit(i) {
				continue
			}
			if v, ok := c.Float(i); ok {
				vals = append(vals, v)
			}
		}
		if m, ok := Median(vals); ok {
			out[name] = m
		}
	}
	return out
}

// Median averages the two middle values of an even-length sample.
func Median(vals []float64) (float64, bool) {
	if len(vals) == 0 {
		return 0, false
	}
	s := make([]float64, len(vals))
	copy(s, vals)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid], true
	}
	return (s[mid-1] + s[mid]) / 2, true
}

func imputer(opts Options) func(*frame.Frame) (*frame.Frame, error) {
	return func(f *frame.Frame) (*frame.Frame, error) {
		fit := func(int) bool { return true }
		if opts.scope() == ImputeTraining {
			seasons, _ := f.Col(schema.SeasonYear)
			training := make(map[int]bool, len(opts.TrainingSeasons))
			for _, s := range opts.TrainingSeasons {
				training[s] = true
			}
			fit = func(i int) bool {
				v, ok := seasons.Float(i)
				return ok && training[int(v)]
			}
		}
		return Impute(f, Medians(f, fit))
	}
}

// Impute fills null numeric cells with the given per-column values. Columns
// without a fitted value keep their nulls.
func Impute(f *frame.Frame, medians map[string]float64) (*frame.Frame, error) {
	log := logger.WithStage(stageName)

	var cols []*frame.Column
	for _, name := range f.Names() {
		c, _ := f.Col(name)
		if c.Kind() != frame.Number || c.NullCount() == 0 {
			continue
		}
		m, ok := medians[name]
		if !ok {
			log.WithField("column", name).Warn("No values to fit a median, nulls kept")
			continue
		}
		log.WithField("column", name).WithField("filled", c.NullCount()).Debug("Imputing median")
		cols = append(cols, c.Map(func(_ int, v float64, present bool) (float64, bool) {
			if !present {
				return m, true
			}
			return v, true
		}))
	}
	if len(cols) == 0 {
		return f, nil
	}
	return f.With(cols...)
}
