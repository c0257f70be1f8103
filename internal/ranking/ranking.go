// Package ranking scores one season's feature rows with a fitted regressor
// and orders the players by predicted score.
package ranking

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"github.com/fortuna/mvp/internal/frame"
	"github.com/fortuna/mvp/internal/logger"
	"github.com/fortuna/mvp/internal/schema"
)

const stageName = "rank"

var (
	// ErrSeasonNotFound is returned when the feature table has no row for
	// the requested season.
	ErrSeasonNotFound = errors.New("season not found")

	// ErrDegenerateNormalization is returned when top-N scores cannot be
	// turned into percentages: a negative score or a non-positive sum.
	ErrDegenerateNormalization = errors.New("degenerate normalization")
)

// Predictor maps feature rows to scores, one per row.
type Predictor interface {
	Predict(X [][]float64) ([]float64, error)
}

// Entry is one scored player. Rank is 1-based.
type Entry struct {
	Rank   int     `json:"rank"`
	Player string  `json:"player"`
	Score  float64 `json:"score"`
	IsMVP  bool    `json:"is_mvp"`
}

// Probability is an Entry with its share of the top-N score mass.
type Probability struct {
	Entry
	Percent float64 `json:"percent"`
}

// Ranking is one season ordered by descending score.
type Ranking struct {
	Season  int     `json:"season"`
	Entries []Entry `json:"entries"`
}

// PredictRankings scores every row of season and sorts descending. Equal
// scores keep their table order.
func PredictRankings(m Predictor, f *frame.Frame, season int, features []string) (*Ranking, error) {
	if err := f.Require(stageName, schema.PlayerName, schema.SeasonYear); err != nil {
		return nil, err
	}
	inSeason, err := seasonRows(f, season)
	if err != nil {
		return nil, err
	}
	if inSeason.Len() == 0 {
		return nil, errors.Wrapf(ErrSeasonNotFound, "season %d", season)
	}

	X, err := inSeason.Matrix(stageName, features)
	if err != nil {
		return nil, err
	}
	scores, err := m.Predict(X)
	if err != nil {
		return nil, errors.Wrapf(err, "predict season %d", season)
	}
	if len(scores) != len(X) {
		return nil, errors.Errorf("predictor returned %d scores for %d rows", len(scores), len(X))
	}

	names, _ := inSeason.Col(schema.PlayerName)
	var mvp *frame.Column
	if inSeason.Has(schema.IsMVP) {
		mvp, _ = inSeason.Col(schema.IsMVP)
	}

	entries := make([]Entry, len(scores))
	for i, s := range scores {
		name, _ := names.Text(i)
		entries[i] = Entry{Player: name, Score: s}
		if mvp != nil {
			if v, ok := mvp.Float(i); ok && v == 1 {
				entries[i].IsMVP = true
			}
		}
	}
	sort.SliceStable(entries, func(a, b int) bool { return entries[a].Score > entries[b].Score })
	for i := range entries {
		entries[i].Rank = i + 1
	}

	logger.WithSeason(stageName, season).WithField("players", len(entries)).Debug("Ranked season")
	return &Ranking{Season: season, Entries: entries}, nil
}

func seasonRows(f *frame.Frame, season int) (*frame.Frame, error) {
	col, err := f.Col(schema.SeasonYear)
	if err != nil {
		return nil, err
	}
	return f.Filter(func(i int) bool {
		v, ok := col.Float(i)
		return ok && int(v) == season
	}), nil
}

// Top returns the first n entries, or all of them when fewer exist.
func (r *Ranking) Top(n int) []Entry {
	if n < 0 {
		n = 0
	}
	if n > len(r.Entries) {
		n = len(r.Entries)
	}
	out := make([]Entry, n)
	copy(out, r.Entries[:n])
	return out
}

// Normalized expresses each top-n score as a percentage of the top-n sum,
// rounded to two decimals.
func (r *Ranking) Normalized(n int) ([]Probability, error) {
	top := r.Top(n)
	if len(top) == 0 {
		return nil, errors.Wrapf(ErrDegenerateNormalization, "season %d: no entries in top %d", r.Season, n)
	}

	var sum float64
	for _, e := range top {
		if e.Score < 0 {
			return nil, errors.Wrapf(ErrDegenerateNormalization, "season %d: negative score %v for %s", r.Season, e.Score, e.Player)
		}
		sum += e.Score
	}
	if sum <= 0 {
		return nil, errors.Wrapf(ErrDegenerateNormalization, "season %d: top %d scores sum to %v", r.Season, n, sum)
	}

	out := make([]Probability, len(top))
	for i, e := range top {
		pct := e.Score / sum * 100
		out[i] = Probability{Entry: e, Percent: math.Round(pct*100) / 100}
	}
	return out, nil
}

// WinnerRank returns the rank of the award winner, if the season has one.
func (r *Ranking) WinnerRank() (Entry, bool) {
	for _, e := range r.Entries {
		if e.IsMVP {
			return e, true
		}
	}
	return Entry{}, false
}

// SeasonRank is the winner's position in one season.
type SeasonRank struct {
	Season int    `json:"season"`
	Winner string `json:"winner"`
	Rank   int    `json:"rank"`
}

// WinnerSummary aggregates winner ranks over several seasons.
type WinnerSummary struct {
	Seasons []SeasonRank `json:"seasons"`
	// MeanRank is zero when no season has a known winner.
	MeanRank float64 `json:"mean_rank"`
	// NoWinner lists seasons without an is_MVP row.
	NoWinner []int `json:"no_winner,omitempty"`
}

// EvaluateWinners ranks each season and averages the winners' ranks.
func EvaluateWinners(m Predictor, f *frame.Frame, seasons []int, features []string) (*WinnerSummary, error) {
	sum := &WinnerSummary{Seasons: []SeasonRank{}}
	var ranks []float64
	for _, season := range seasons {
		r, err := PredictRankings(m, f, season, features)
		if err != nil {
			return nil, err
		}
		w, ok := r.WinnerRank()
		if !ok {
			logger.WithSeason(stageName, season).Warn("No winner flagged, season skipped")
			sum.NoWinner = append(sum.NoWinner, season)
			continue
		}
		sum.Seasons = append(sum.Seasons, SeasonRank{Season: season, Winner: w.Player, Rank: w.Rank})
		ranks = append(ranks, float64(w.Rank))
	}
	if len(ranks) > 0 {
		sum.MeanRank = stat.Mean(ranks, nil)
	}
	return sum, nil
}
