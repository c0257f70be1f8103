// Package features derives the model feature table from the cleaned table:
// conference standing, per-game rates and the frozen redundant-feature drop.
package features

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/fortuna/mvp/internal/frame"
	"github.com/fortuna/mvp/internal/logger"
	"github.com/fortuna/mvp/internal/schema"
)

const stageName = "engineer"

// PerGameStats are the counting stats divided by games played.
var PerGameStats = []string{
	schema.FieldGoalsMade, schema.FieldGoalAttempts,
	schema.ThreePointsMade, schema.ThreePointAttempts,
	schema.TwoPointsMade, schema.TwoPointAttempts,
	schema.FreeThrowsMade, schema.FreeThrowAttempts,
	schema.OffensiveRebounds, schema.DefensiveRebounds, schema.TotalRebounds,
	schema.Assists, schema.Steals, schema.Blocks, schema.Turnovers,
	schema.PersonalFouls, schema.Points,
}

// PerGame names the per-game rate of a counting stat.
func PerGame(stat string) string { return stat + schema.PerGameSuffix }

// PerGameColumns lists PerGame for every entry of PerGameStats.
func PerGameColumns() []string {
	out := make([]string, len(PerGameStats))
	for i, s := range PerGameStats {
		out[i] = PerGame(s)
	}
	return out
}

// Union is every engineered column in output order, before the drop-list.
func Union() []string {
	return schema.Concat(
		[]string{schema.PlayerName},
		schema.PositionColumns,
		[]string{schema.Age, schema.Conference, schema.WinPct, schema.TeamStanding,
			schema.GamesPlayed, schema.GamesStarted, schema.Minutes},
		schema.Shooting, schema.Performance,
		PerGameColumns(),
		schema.Advanced, schema.Meta,
	)
}

// Columns is the engineered table schema: Union minus the active drop-list.
func Columns() []string {
	dropped := make(map[string]bool, len(DropListV1))
	for _, d := range DropListV1 {
		dropped[d.Name] = true
	}
	var out []string
	for _, c := range Union() {
		if !dropped[c] {
			out = append(out, c)
		}
	}
	return out
}

// ModelFeatures is the feature vector shared by training and inference.
func ModelFeatures() []string {
	var out []string
	for _, c := range Columns() {
		switch c {
		case schema.PlayerName, schema.SeasonYear, schema.IsMVP:
			continue
		}
		out = append(out, c)
	}
	return out
}

// Engineer derives the feature table from a cleaned table.
func Engineer(cleaned *frame.Frame) (*frame.Frame, error) {
	out, err := frame.Run(cleaned, logger.WithStage(stageName), Stages()...)
	if err != nil {
		return nil, errors.Wrap(err, stageName)
	}
	logger.WithStage(stageName).WithFields(logrus.Fields{
		"rows":      out.Len(),
		"columns":   len(out.Names()),
		"drop_list": DropListVersion,
	}).Info("Engineered feature table")
	return out, nil
}

// Stages returns the ordered feature engineering sequence.
func Stages() []frame.Stage {
	perGameInputs := append([]string{schema.GamesPlayed}, PerGameStats...)
	return []frame.Stage{
		{
			Name:     "team-standing",
			Requires: []string{schema.SeasonYear, schema.Conference, schema.WinPct},
			Produces: []string{schema.TeamStanding},
			Apply:    withTeamStanding,
		},
		{
			Name:     "per-game",
			Requires: perGameInputs,
			Produces: PerGameColumns(),
			Apply:    withPerGame,
		},
		{
			Name:     "drop-redundant",
			Requires: Union(),
			Produces: Columns(),
			Apply: func(f *frame.Frame) (*frame.Frame, error) {
				return f.Select(stageName, Columns()...)
			},
		},
	}
}

type standingKey struct {
	season float64
	conf   float64
}

// TeamStanding dense-ranks win percentage descending within each
// (season, conference) group. Rows missing any key get a null rank.
func TeamStanding(f *frame.Frame) (*frame.Column, error) {
	if err := f.Require("team-standing", schema.SeasonYear, schema.Conference, schema.WinPct); err != nil {
		return nil, err
	}
	seasons, _ := f.Col(schema.SeasonYear)
	confs, _ := f.Col(schema.Conference)
	wins, _ := f.Col(schema.WinPct)

	keys := make([]standingKey, f.Len())
	complete := make([]bool, f.Len())
	distinct := make(map[standingKey]map[float64]bool)
	for i := 0; i < f.Len(); i++ {
		s, okS := seasons.Float(i)
		c, okC := confs.Float(i)
		w, okW := wins.Float(i)
		if !okS || !okC || !okW {
			continue
		}
		k := standingKey{season: s, conf: c}
		keys[i], complete[i] = k, true
		if distinct[k] == nil {
			distinct[k] = make(map[float64]bool)
		}
		distinct[k][w] = true
	}

	ranks := make(map[standingKey]map[float64]int, len(distinct))
	for k, set := range distinct {
		vals := make([]float64, 0, len(set))
		for v := range set {
			vals = append(vals, v)
		}
		sort.Sort(sort.Reverse(sort.Float64Slice(vals)))
		ranks[k] = make(map[float64]int, len(vals))
		for r, v := range vals {
			ranks[k][v] = r + 1
		}
	}

	return wins.Map(func(i int, w float64, ok bool) (float64, bool) {
		if !complete[i] {
			return 0, false
		}
		return float64(ranks[keys[i]][w]), true
	}).Renamed(schema.TeamStanding), nil
}

func withTeamStanding(f *frame.Frame) (*frame.Frame, error) {
	c, err := TeamStanding(f)
	if err != nil {
		return nil, err
	}
	return f.With(c)
}

func withPerGame(f *frame.Frame) (*frame.Frame, error) {
	games, _ := f.Col(schema.GamesPlayed)
	cols := make([]*frame.Column, 0, len(PerGameStats))
	for _, stat := range PerGameStats {
		c, _ := f.Col(stat)
		cols = append(cols, c.Map(func(i int, v float64, ok bool) (float64, bool) {
			g, present := games.Float(i)
			if !present || g == 0 || !ok {
				return 0, true
			}
			return v / g, true
		}).Renamed(PerGame(stat)))
	}
	return f.With(cols...)
}
