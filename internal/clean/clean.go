// Package clean turns the merged player table into a model-ready table:
// aggregate rows removed, categories encoded, percentage units repaired and
// missing values imputed.
package clean

import (
	"math"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/fortuna/mvp/internal/frame"
	"github.com/fortuna/mvp/internal/logger"
	"github.com/fortuna/mvp/internal/schema"
	"github.com/fortuna/mvp/internal/teams"
)

const stageName = "clean"

// LeagueAverage is the player-name sentinel of the league-wide aggregate row.
const LeagueAverage = "League Average"

// ImputeScope selects the rows used to fit imputation medians.
type ImputeScope string

const (
	// ImputeGlobal fits medians on every row, validation seasons included.
	// This leaks validation information into training.
	ImputeGlobal ImputeScope = "global"
	// ImputeTraining fits medians on training-season rows only and applies
	// them to every row.
	ImputeTraining ImputeScope = "training"
)

// Options parameterise Clean.
type Options struct {
	Scope ImputeScope
	// TrainingSeasons is required when Scope is ImputeTraining.
	TrainingSeasons []int
}

// AttemptPercentages pairs each attempt column with the percentage it divides.
var AttemptPercentages = [][2]string{
	{schema.FieldGoalAttempts, schema.FieldGoalPct},
	{schema.FieldGoalAttempts, schema.EffectiveFieldGoalPct},
	{schema.ThreePointAttempts, schema.ThreePointPct},
	{schema.TwoPointAttempts, schema.TwoPointPct},
	{schema.FreeThrowAttempts, schema.FreeThrowPct},
}

// RateColumns are published on a 0-100 scale and rescaled to 0-1.
var RateColumns = []string{
	schema.OffensiveReboundPct, schema.DefensiveReboundPct, schema.TotalReboundPct,
	schema.AssistPct, schema.StealPct, schema.BlockPct, schema.TurnoverPct, schema.UsagePct,
}

var conferenceCodes = map[string]float64{"E": 0, "W": 1}

// Clean runs Stages in order and returns the projected cleaned table.
func Clean(raw *frame.Frame, opts Options) (*frame.Frame, error) {
	stages, err := Stages(opts)
	if err != nil {
		return nil, err
	}
	out, err := frame.Run(raw, logger.WithStage(stageName), stages...)
	if err != nil {
		return nil, errors.Wrap(err, stageName)
	}

	logger.WithStage(stageName).WithFields(logrus.Fields{
		"rows_in":  raw.Len(),
		"rows_out": out.Len(),
		"scope":    opts.scope(),
	}).Info("Cleaned player table")
	return out, nil
}

func (o Options) scope() ImputeScope {
	if o.Scope == "" {
		return ImputeGlobal
	}
	return o.Scope
}

// Stages returns the ordered cleaning sequence. The zero-attempt repair must
// precede imputation so that repaired cells are not filled with a median.
func Stages(opts Options) ([]frame.Stage, error) {
	switch opts.scope() {
	case ImputeGlobal:
	case ImputeTraining:
		if len(opts.TrainingSeasons) == 0 {
			return nil, errors.New("training impute scope needs training seasons")
		}
	default:
		return nil, errors.Errorf("unknown impute scope %q", opts.Scope)
	}

	attempts := make([]string, 0, 2*len(AttemptPercentages))
	for _, p := range AttemptPercentages {
		attempts = append(attempts, p[0], p[1])
	}

	return []frame.Stage{
		{
			Name:     "drop-aggregates",
			Requires: []string{schema.PlayerName, schema.Team},
			Apply:    dropAggregates,
		},
		{
			Name:     "encode-conference",
			Requires: []string{schema.Conference},
			Produces: []string{schema.Conference},
			Apply:    encodeConference,
		},
		{
			Name:     "encode-position",
			Requires: []string{schema.Position},
			Produces: schema.PositionColumns,
			Apply:    encodePosition,
		},
		{
			Name:     "zero-attempt-percentages",
			Requires: attempts,
			Produces: attempts,
			Apply:    zeroAttemptPercentages,
		},
		{
			Name:     "rescale-rates",
			Requires: RateColumns,
			Produces: RateColumns,
			Apply:    rescaleRates,
		},
		{
			Name:     "impute-median",
			Requires: []string{schema.SeasonYear},
			Apply:    imputer(opts),
		},
		{
			Name:     "project",
			Requires: schema.Cleaned(),
			Produces: schema.Cleaned(),
			Apply: func(f *frame.Frame) (*frame.Frame, error) {
				return f.Select(stageName, schema.Cleaned()...)
			},
		},
	}, nil
}

func dropAggregates(f *frame.Frame) (*frame.Frame, error) {
	names, _ := f.Col(schema.PlayerName)
	codes, _ := f.Col(schema.Team)

	kept := f.Filter(func(i int) bool {
		if name, ok := names.Text(i); ok && strings.EqualFold(strings.TrimSpace(name), LeagueAverage) {
			return false
		}
		if code, ok := codes.Text(i); ok && teams.IsMultiTeam(code) {
			return false
		}
		return true
	})
	return kept.Drop(schema.Team), nil
}

func encodeConference(f *frame.Frame) (*frame.Frame, error) {
	conf, _ := f.Col(schema.Conference)
	vals := make([]float64, conf.Len())
	valid := make([]bool, conf.Len())
	for i := range vals {
		s, ok := conf.Text(i)
		if !ok {
			continue
		}
		vals[i], valid[i] = conferenceCodes[strings.ToUpper(strings.TrimSpace(s))]
	}
	return f.With(frame.NewNumber(schema.Conference, vals, valid))
}

func encodePosition(f *frame.Frame) (*frame.Frame, error) {
	pos, _ := f.Col(schema.Position)

	cols := make([]*frame.Column, len(schema.PositionCategories))
	indicators := make([][]float64, len(schema.PositionCategories))
	for j := range indicators {
		indicators[j] = make([]float64, f.Len())
	}
	for i := 0; i < f.Len(); i++ {
		s, ok := pos.Text(i)
		if !ok {
			continue
		}
		s = strings.ToUpper(strings.TrimSpace(s))
		for j, cat := range schema.PositionCategories {
			if s == cat {
				indicators[j][i] = 1
			}
		}
	}
	for j, name := range schema.PositionColumns {
		cols[j] = frame.NewNumber(name, indicators[j], nil)
	}

	out, err := f.With(cols...)
	if err != nil {
		return nil, err
	}
	return out.Drop(schema.Position), nil
}

func zeroAttemptPercentages(f *frame.Frame) (*frame.Frame, error) {
	cols := make([]*frame.Column, 0, len(AttemptPercentages))
	for _, p := range AttemptPercentages {
		att, _ := f.Col(p[0])
		pct, _ := f.Col(p[1])
		cols = append(cols, pct.Map(func(i int, v float64, ok bool) (float64, bool) {
			if a, present := att.Float(i); present && a == 0 {
				return 0, true
			}
			return v, ok
		}))
	}
	return f.With(cols...)
}

func rescaleRates(f *frame.Frame) (*frame.Frame, error) {
	cols := make([]*frame.Column, 0, len(RateColumns))
	for _, name := range RateColumns {
		c, _ := f.Col(name)
		cols = append(cols, c.Map(func(_ int, v float64, ok bool) (float64, bool) {
			if !ok {
				return 0, false
			}
			return Round(v/100, 4), true
		}))
	}
	return f.With(cols...)
}

// Round rounds v half away from zero to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
