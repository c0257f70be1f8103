package evaluate

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/fortuna/mvp/internal/frame"
	"github.com/fortuna/mvp/internal/logger"
	"github.com/fortuna/mvp/internal/model"
	"github.com/fortuna/mvp/internal/ranking"
	"github.com/fortuna/mvp/internal/schema"
	"github.com/fortuna/mvp/internal/split"
)

const stageName = "evaluate"

// Options tune Evaluate.
type Options struct {
	TopN int
	// LastSeasons limits the per-season report to the most recent
	// validation seasons.
	LastSeasons int
	// CorrThreshold is the |Pearson r| at which a pair is reported.
	CorrThreshold float64
}

// DefaultOptions matches the published evaluation.
func DefaultOptions() Options {
	return Options{TopN: 5, LastSeasons: 10, CorrThreshold: 0.85}
}

// SeasonReport lists one season's top candidates and where the winner
// landed.
type SeasonReport struct {
	Season int             `json:"season"`
	Top    []ranking.Entry `json:"top"`
	// Winner is set when the season has a flagged winner.
	Winner      *ranking.Entry `json:"winner,omitempty"`
	WinnerInTop bool           `json:"winner_in_top"`
}

// Report is the full evaluation of one model.
type Report struct {
	Validation []int                  `json:"validation"`
	Metrics    Metrics                `json:"metrics"`
	Seasons    []SeasonReport         `json:"seasons"`
	Winners    *ranking.WinnerSummary `json:"winners"`
	Redundant  []Pair                 `json:"redundant"`
}

// Evaluate scores m on the validation seasons of features.
func Evaluate(m model.Model, f *frame.Frame, validation []int, opts Options) (*Report, error) {
	log := logger.WithStage(stageName)
	if len(validation) == 0 {
		return nil, errors.New("no validation seasons")
	}

	keep, err := split.Rows(f, validation)
	if err != nil {
		return nil, err
	}
	val, err := model.FromFrame(f, m.Features(), schema.IsMVP, keep)
	if err != nil {
		return nil, errors.Wrap(err, "validation set")
	}
	pred, err := m.Predict(val.X)
	if err != nil {
		return nil, err
	}
	metrics, err := Score(pred, val.Y)
	if err != nil {
		return nil, err
	}

	recent := LastN(validation, opts.LastSeasons)
	seasons, err := SeasonReports(m, f, recent, opts.TopN)
	if err != nil {
		return nil, err
	}
	winners, err := ranking.EvaluateWinners(m, f, recent, m.Features())
	if err != nil {
		return nil, err
	}

	pairs := Redundancy(val.X, m.Features(), model.Importances(m), opts.CorrThreshold)

	log.WithFields(logrus.Fields{
		"mae":            metrics.MAE,
		"rmse":           metrics.RMSE,
		"r2":             metrics.R2,
		"auc":            metrics.AUC,
		"mean_mvp_rank":  winners.MeanRank,
		"redundant_pair": len(pairs),
	}).Info("Model evaluated")

	return &Report{
		Validation: validation,
		Metrics:    metrics,
		Seasons:    seasons,
		Winners:    winners,
		Redundant:  pairs,
	}, nil
}

// SeasonReports ranks each season and keeps the top n plus the winner.
func SeasonReports(m model.Model, f *frame.Frame, seasons []int, n int) ([]SeasonReport, error) {
	out := make([]SeasonReport, 0, len(seasons))
	for _, season := range seasons {
		r, err := ranking.PredictRankings(m, f, season, m.Features())
		if err != nil {
			return nil, err
		}
		rep := SeasonReport{Season: season, Top: r.Top(n)}
		w, ok := r.WinnerRank()
		if ok {
			rep.Winner = &w
			rep.WinnerInTop = w.Rank <= n
		}
		if ok && !rep.WinnerInTop {
			logger.WithSeason(stageName, season).WithFields(logrus.Fields{
				"winner": w.Player,
				"rank":   w.Rank,
				"score":  w.Score,
			}).Info("Winner outside top candidates")
		}
		out = append(out, rep)
	}
	return out, nil
}

// LastN returns the final n entries of a sorted season list.
func LastN(seasons []int, n int) []int {
	if n <= 0 || n >= len(seasons) {
		return seasons
	}
	return seasons[len(seasons)-n:]
}
