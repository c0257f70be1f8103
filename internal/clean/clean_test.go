package clean

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/mvp/internal/fixtures"
	"github.com/fortuna/mvp/internal/frame"
	"github.com/fortuna/mvp/internal/merge"
	"github.com/fortuna/mvp/internal/schema"
)

func mergedTable(t *testing.T, players []fixtures.Player) *frame.Frame {
	t.Helper()
	standings := fixtures.Standings([]fixtures.Standing{
		{Team: "Denver Nuggets", Season: 2005, Conference: "W", WinPct: 0.6},
		{Team: "Los Angeles Lakers", Season: 2005, Conference: "W", WinPct: 0.5},
		{Team: "Miami Heat", Season: 2005, Conference: "E", WinPct: 0.7},
		{Team: "Seattle SuperSonics", Season: 1995, Conference: "W", WinPct: 0.78},
	})
	out, _, err := merge.Merge(fixtures.Totals(players), fixtures.Advanced(players), standings)
	require.NoError(t, err)
	return out
}

// cell returns the value of col on the row of the named player.
func cell(t *testing.T, f *frame.Frame, player, col string) (float64, bool) {
	t.Helper()
	names, err := f.Col(schema.PlayerName)
	require.NoError(t, err)
	c, err := f.Col(col)
	require.NoError(t, err)
	for i := 0; i < f.Len(); i++ {
		if n, _ := names.Text(i); n == player {
			return c.Float(i)
		}
	}
	t.Fatalf("player %q not found", player)
	return 0, false
}

func TestCleanDropsAggregatesAndKeepsOneWinner(t *testing.T) {
	players := []fixtures.Player{
		{Name: "Steve Nash", Team: "PHO", Position: "PG", Season: 2005, MVP: true},
		{Name: "Traded Guy", Team: "2TM", Position: "SF", Season: 2005},
		{Name: "Traded Guy", Team: "DEN", Position: "SF", Season: 2005},
		{Name: "Traded Guy", Team: "LAL", Position: "SF", Season: 2005},
		{Name: "League Average", Team: "", Position: "", Season: 2005},
		{Name: "Gary Payton", Team: "SEA", Position: "PG", Season: 1995},
		{Name: "Shawn Kemp", Team: "SEA", Position: "PF", Season: 1995, MVP: true},
	}

	out, err := Clean(mergedTable(t, players), Options{})
	require.NoError(t, err)

	assert.Equal(t, schema.Cleaned(), out.Names())
	assert.Equal(t, 5, out.Len())

	seasons, _ := out.Col(schema.SeasonYear)
	mvp, _ := out.Col(schema.IsMVP)
	winners := map[int]int{}
	for i := 0; i < out.Len(); i++ {
		s, _ := seasons.Float(i)
		if v, _ := mvp.Float(i); v == 1 {
			winners[int(s)]++
		}
	}
	assert.Equal(t, map[int]int{2005: 1, 1995: 1}, winners)
}

func TestCleanZeroAttemptsForcesZeroPercentage(t *testing.T) {
	players := []fixtures.Player{
		{Name: "Big Man", Team: "DEN", Position: "C", Season: 2005, Stats: map[string]float64{
			schema.ThreePointAttempts: 0,
			schema.ThreePointPct:      0.35,
			schema.FreeThrowAttempts:  0,
		}, Null: []string{schema.FreeThrowPct}},
		{Name: "Shooter", Team: "LAL", Position: "SG", Season: 2005, Stats: map[string]float64{
			schema.ThreePointAttempts: 400,
			schema.ThreePointPct:      0.4,
			schema.FreeThrowPct:       0.9,
		}},
		{Name: "Other", Team: "MIA", Position: "SF", Season: 2005, Stats: map[string]float64{
			schema.FreeThrowPct: 0.8,
		}},
	}

	out, err := Clean(mergedTable(t, players), Options{})
	require.NoError(t, err)

	pct, ok := cell(t, out, "Big Man", schema.ThreePointPct)
	require.True(t, ok)
	assert.Equal(t, 0.0, pct)

	ft, ok := cell(t, out, "Big Man", schema.FreeThrowPct)
	require.True(t, ok)
	assert.Equal(t, 0.0, ft, "repaired before imputation, never filled with a median")

	pct, _ = cell(t, out, "Shooter", schema.ThreePointPct)
	assert.Equal(t, 0.4, pct)
}

func TestCleanZeroFieldGoalAttemptsZeroesEffectivePercentage(t *testing.T) {
	players := []fixtures.Player{
		{Name: "Bench Rookie", Team: "DEN", Position: "SF", Season: 2005, Stats: map[string]float64{
			schema.FieldGoalAttempts:     0,
			schema.EffectiveFieldGoalPct: 0.5,
		}, Null: []string{schema.FieldGoalPct}},
		{Name: "Starter", Team: "LAL", Position: "SG", Season: 2005, Stats: map[string]float64{
			schema.FieldGoalAttempts:     900,
			schema.FieldGoalPct:          0.47,
			schema.EffectiveFieldGoalPct: 0.55,
		}},
	}

	out, err := Clean(mergedTable(t, players), Options{})
	require.NoError(t, err)

	efg, ok := cell(t, out, "Bench Rookie", schema.EffectiveFieldGoalPct)
	require.True(t, ok)
	assert.Equal(t, 0.0, efg)

	fg, ok := cell(t, out, "Bench Rookie", schema.FieldGoalPct)
	require.True(t, ok)
	assert.Equal(t, 0.0, fg)

	efg, _ = cell(t, out, "Starter", schema.EffectiveFieldGoalPct)
	assert.Equal(t, 0.55, efg)
}

func TestCleanEncodesCategories(t *testing.T) {
	players := []fixtures.Player{
		{Name: "West Center", Team: "DEN", Position: "C", Season: 2005},
		{Name: "East Guard", Team: "MIA", Position: "pg", Season: 2005},
		{Name: "Combo", Team: "LAL", Position: "PG-SG", Season: 2005},
		{Name: "Unknown Pos", Team: "LAL", Season: 2005},
	}

	out, err := Clean(mergedTable(t, players), Options{})
	require.NoError(t, err)
	assert.False(t, out.Has(schema.Position))
	assert.False(t, out.Has(schema.Team))

	conf, _ := cell(t, out, "West Center", schema.Conference)
	assert.Equal(t, 1.0, conf)
	conf, _ = cell(t, out, "East Guard", schema.Conference)
	assert.Equal(t, 0.0, conf)

	tests := []struct {
		player string
		want   []float64
	}{
		{"West Center", []float64{1, 0, 0, 0, 0}},
		{"East Guard", []float64{0, 0, 1, 0, 0}},
		{"Combo", []float64{0, 0, 0, 0, 0}},
		{"Unknown Pos", []float64{0, 0, 0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.player, func(t *testing.T) {
			got := make([]float64, len(schema.PositionColumns))
			for j, col := range schema.PositionColumns {
				got[j], _ = cell(t, out, tt.player, col)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCleanRescalesRates(t *testing.T) {
	players := []fixtures.Player{
		{Name: "Usage Hog", Team: "DEN", Position: "SG", Season: 2005, Stats: map[string]float64{
			schema.UsagePct:        31.456,
			schema.TrueShootingPct: 0.612,
		}},
	}

	out, err := Clean(mergedTable(t, players), Options{})
	require.NoError(t, err)

	usage, _ := cell(t, out, "Usage Hog", schema.UsagePct)
	assert.Equal(t, 0.3146, usage)
	ts, _ := cell(t, out, "Usage Hog", schema.TrueShootingPct)
	assert.Equal(t, 0.612, ts, "already a fraction")
}

func TestCleanImputeScopes(t *testing.T) {
	players := []fixtures.Player{
		{Name: "Old A", Team: "SEA", Position: "PG", Season: 1995, Stats: map[string]float64{schema.Age: 20}},
		{Name: "Old B", Team: "SEA", Position: "PF", Season: 1995, Stats: map[string]float64{schema.Age: 22}},
		{Name: "New A", Team: "DEN", Position: "C", Season: 2005, Stats: map[string]float64{schema.Age: 40}},
		{Name: "Missing", Team: "DEN", Position: "C", Season: 2005, Null: []string{schema.Age}},
	}
	raw := mergedTable(t, players)

	global, err := Clean(raw, Options{Scope: ImputeGlobal})
	require.NoError(t, err)
	age, ok := cell(t, global, "Missing", schema.Age)
	require.True(t, ok)
	assert.Equal(t, 22.0, age)

	training, err := Clean(raw, Options{Scope: ImputeTraining, TrainingSeasons: []int{1995}})
	require.NoError(t, err)
	age, ok = cell(t, training, "Missing", schema.Age)
	require.True(t, ok)
	assert.Equal(t, 21.0, age)
}

func TestCleanFillsMissingTeamContext(t *testing.T) {
	players := []fixtures.Player{
		{Name: "Found", Team: "DEN", Position: "C", Season: 2005},
		{Name: "Found Too", Team: "MIA", Position: "C", Season: 2005},
		{Name: "Lost", Team: "XXX", Position: "C", Season: 2005},
	}

	out, err := Clean(mergedTable(t, players), Options{})
	require.NoError(t, err)

	wp, ok := cell(t, out, "Lost", schema.WinPct)
	require.True(t, ok)
	assert.InDelta(t, 0.65, wp, 1e-9)
}

func TestCleanOptionsValidation(t *testing.T) {
	_, err := Stages(Options{Scope: "weekly"})
	assert.Error(t, err)

	_, err = Stages(Options{Scope: ImputeTraining})
	assert.Error(t, err)
}

func TestCleanSchemaMismatch(t *testing.T) {
	raw := mergedTable(t, []fixtures.Player{{Name: "A", Team: "DEN", Position: "C", Season: 2005}})

	_, err := Clean(raw.Drop(schema.UsagePct), Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, frame.ErrSchemaMismatch))

	var se *frame.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "rescale-rates", se.Stage)
}

func TestMedian(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		want float64
		ok   bool
	}{
		{"empty", nil, 0, false},
		{"odd", []float64{3, 1, 2}, 2, true},
		{"even", []float64{4, 1, 3, 2}, 2.5, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Median(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRound(t *testing.T) {
	assert.Equal(t, 1.23, Round(1.23456, 2))
	assert.Equal(t, 0.3146, Round(0.31456, 4))
	assert.Equal(t, 61.54, Round(0.8/1.3*100, 2))
}
