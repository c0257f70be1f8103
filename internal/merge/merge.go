// Package merge joins the per-player totals, advanced metrics and team
// standings into one row per player-team-season.
package merge

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/fortuna/mvp/internal/frame"
	"github.com/fortuna/mvp/internal/logger"
	"github.com/fortuna/mvp/internal/schema"
	"github.com/fortuna/mvp/internal/teams"
)

const stageName = "merge"

// AdvancedSuffix marks advanced-table columns that collide with totals columns.
const AdvancedSuffix = "_adv"

// Unresolved is a standings row whose team name has no registry entry.
type Unresolved struct {
	Team   string `json:"team"`
	Season int    `json:"season"`
}

// Report summarises join coverage.
type Report struct {
	TotalsRows          int          `json:"totals_rows"`
	MergedRows          int          `json:"merged_rows"`
	Unresolved          []Unresolved `json:"unresolved"`
	RowsWithoutStanding int          `json:"rows_without_standing"`
	RowsWithoutAdvanced int          `json:"rows_without_advanced"`
}

// Merge left-joins totals with canonicalised standings on (team, season),
// then with advanced metrics on (player, team, season), and projects onto
// the merged schema.
func Merge(totals, advanced, standings *frame.Frame) (*frame.Frame, *Report, error) {
	if err := totals.Require("merge totals", schema.PlayerName, schema.Team, schema.SeasonYear); err != nil {
		return nil, nil, err
	}
	if err := advanced.Require("merge advanced", schema.PlayerName, schema.Team, schema.SeasonYear); err != nil {
		return nil, nil, err
	}

	report := &Report{TotalsRows: totals.Len()}

	canon, err := CanonicalStandings(standings, report)
	if err != nil {
		return nil, nil, err
	}
	if err := requireUnique(canon, "standings", schema.Team, schema.SeasonYear); err != nil {
		return nil, nil, err
	}
	if err := requireUnique(advanced, "advanced", schema.PlayerName, schema.Team, schema.SeasonYear); err != nil {
		return nil, nil, err
	}

	withStandings, err := frame.LeftJoin(totals, canon, []string{schema.Team, schema.SeasonYear}, "_std")
	if err != nil {
		return nil, nil, errors.Wrap(err, "join standings")
	}

	// Tag advanced rows so unmatched totals rows can be counted after the join.
	marker := make([]float64, advanced.Len())
	tagged, err := advanced.With(frame.NewNumber("_advanced_row", marker, nil))
	if err != nil {
		return nil, nil, err
	}

	joined, err := frame.LeftJoin(withStandings, tagged, []string{schema.PlayerName, schema.Team, schema.SeasonYear}, AdvancedSuffix)
	if err != nil {
		return nil, nil, errors.Wrap(err, "join advanced")
	}

	report.RowsWithoutStanding = nullCount(joined, schema.WinPct)
	report.RowsWithoutAdvanced = nullCount(joined, "_advanced_row")

	out, err := joined.Select(stageName, schema.Merged()...)
	if err != nil {
		return nil, nil, err
	}
	report.MergedRows = out.Len()

	logger.WithStage(stageName).WithFields(logrus.Fields{
		"totals_rows":           report.TotalsRows,
		"merged_rows":           report.MergedRows,
		"unresolved_teams":      len(report.Unresolved),
		"rows_without_standing": report.RowsWithoutStanding,
		"rows_without_advanced": report.RowsWithoutAdvanced,
	}).Info("Merged player tables")

	return out, report, nil
}

// CanonicalStandings replaces full team names with codes. Unknown names
// become null codes and are recorded on the report.
func CanonicalStandings(standings *frame.Frame, report *Report) (*frame.Frame, error) {
	if err := standings.Require("merge standings", schema.Team, schema.SeasonYear, schema.Conference, schema.WinPct); err != nil {
		return nil, err
	}
	names, _ := standings.Col(schema.Team)
	seasons, _ := standings.Col(schema.SeasonYear)

	codes := make([]string, standings.Len())
	valid := make([]bool, standings.Len())
	for i := range codes {
		name, ok := names.Text(i)
		if !ok {
			continue
		}
		season, _ := seasons.Float(i)
		code, err := teams.ResolveSeason(name, int(season))
		if err != nil {
			if report != nil {
				report.Unresolved = append(report.Unresolved, Unresolved{Team: name, Season: int(season)})
			}
			logger.WithSeason(stageName, int(season)).WithField("team", name).Warn("Unresolved team name")
			continue
		}
		codes[i] = code
		valid[i] = true
	}

	out, err := standings.With(frame.NewText(schema.Team, codes, valid))
	if err != nil {
		return nil, err
	}
	return out.Select("merge standings", schema.Team, schema.SeasonYear, schema.Conference, schema.WinPct)
}

func requireUnique(f *frame.Frame, table string, keys ...string) error {
	cols := make([]*frame.Column, len(keys))
	for j, k := range keys {
		c, err := f.Col(k)
		if err != nil {
			return err
		}
		cols[j] = c
	}

	seen := make(map[string]int, f.Len())
	for i := 0; i < f.Len(); i++ {
		key := ""
		complete := true
		for _, c := range cols {
			s, ok := c.Text(i)
			if !ok {
				complete = false
				break
			}
			key += s + "\x1f"
		}
		if !complete {
			continue
		}
		if prev, dup := seen[key]; dup {
			return errors.Errorf("%s table has duplicate key %v at rows %d and %d", table, keys, prev, i)
		}
		seen[key] = i
	}
	return nil
}

func nullCount(f *frame.Frame, name string) int {
	c, err := f.Col(name)
	if err != nil {
		return 0
	}
	return c.NullCount()
}
