// Package fixtures builds small raw tables shaped like the scraper output.
// It is imported by tests only.
package fixtures

import (
	"github.com/fortuna/mvp/internal/frame"
	"github.com/fortuna/mvp/internal/schema"
)

// Player is one totals row plus its advanced row.
type Player struct {
	Name     string
	Team     string
	Position string
	Season   int
	MVP      bool
	// Stats overrides individual numeric columns; everything else is 1,
	// except games played (70) and age (27).
	Stats map[string]float64
	// Null lists columns written as missing.
	Null []string
	// NoAdvanced leaves the player out of the advanced table.
	NoAdvanced bool
}

// Standing is one standings row keyed by the full franchise name.
type Standing struct {
	Team       string
	Season     int
	Conference string
	WinPct     float64
}

// TotalsColumns are the numeric totals columns after identity fields.
func TotalsColumns() []string {
	return schema.Concat(
		[]string{schema.Age, schema.GamesPlayed, schema.GamesStarted, schema.Minutes},
		schema.Shooting, schema.Performance,
	)
}

func (p Player) value(col string) (float64, bool) {
	for _, n := range p.Null {
		if n == col {
			return 0, false
		}
	}
	if v, ok := p.Stats[col]; ok {
		return v, true
	}
	switch col {
	case schema.GamesPlayed:
		return 70, true
	case schema.Age:
		return 27, true
	}
	return 1, true
}

func (p Player) nullText(col string) bool {
	for _, n := range p.Null {
		if n == col {
			return true
		}
	}
	return false
}

// Totals builds the totals table.
func Totals(players []Player) *frame.Frame {
	n := len(players)
	names := make([]string, n)
	teams := make([]string, n)
	positions := make([]string, n)
	posValid := make([]bool, n)
	seasons := make([]float64, n)
	mvp := make([]float64, n)
	for i, p := range players {
		names[i] = p.Name
		teams[i] = p.Team
		positions[i] = p.Position
		posValid[i] = p.Position != "" && !p.nullText(schema.Position)
		seasons[i] = float64(p.Season)
		if p.MVP {
			mvp[i] = 1
		}
	}

	cols := []*frame.Column{
		frame.NewText(schema.PlayerName, names, nil),
		frame.NewText(schema.Position, positions, posValid),
		frame.NewText(schema.Team, teams, nil),
	}
	cols = append(cols, numeric(players, TotalsColumns())...)
	cols = append(cols,
		frame.NewNumber(schema.SeasonYear, seasons, nil),
		frame.NewNumber(schema.IsMVP, mvp, nil),
	)
	return frame.MustNew(cols...)
}

// Advanced builds the advanced table for players not flagged NoAdvanced.
func Advanced(players []Player) *frame.Frame {
	var kept []Player
	for _, p := range players {
		if !p.NoAdvanced {
			kept = append(kept, p)
		}
	}

	names := make([]string, len(kept))
	teams := make([]string, len(kept))
	seasons := make([]float64, len(kept))
	for i, p := range kept {
		names[i] = p.Name
		teams[i] = p.Team
		seasons[i] = float64(p.Season)
	}

	cols := []*frame.Column{
		frame.NewText(schema.PlayerName, names, nil),
		frame.NewText(schema.Team, teams, nil),
		// the source repeats some totals fields; these must be suffixed by the merge
		frame.NewNumber(schema.GamesPlayed, make([]float64, len(kept)), nil),
	}
	cols = append(cols, numeric(kept, schema.Advanced)...)
	cols = append(cols, frame.NewNumber(schema.SeasonYear, seasons, nil))
	return frame.MustNew(cols...)
}

// Standings builds the standings table.
func Standings(rows []Standing) *frame.Frame {
	n := len(rows)
	names := make([]string, n)
	seasons := make([]float64, n)
	confs := make([]string, n)
	wins := make([]float64, n)
	for i, r := range rows {
		names[i] = r.Team
		seasons[i] = float64(r.Season)
		confs[i] = r.Conference
		wins[i] = r.WinPct
	}
	return frame.MustNew(
		frame.NewText(schema.Team, names, nil),
		frame.NewText(schema.Conference, confs, nil),
		frame.NewNumber(schema.WinPct, wins, nil),
		frame.NewNumber(schema.SeasonYear, seasons, nil),
	)
}

func numeric(players []Player, names []string) []*frame.Column {
	cols := make([]*frame.Column, len(names))
	for j, name := range names {
		vals := make([]float64, len(players))
		valid := make([]bool, len(players))
		for i, p := range players {
			vals[i], valid[i] = p.value(name)
		}
		cols[j] = frame.NewNumber(name, vals, valid)
	}
	return cols
}
