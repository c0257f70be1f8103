package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/fortuna/mvp/internal/cache"
	"github.com/fortuna/mvp/internal/frame"
	"github.com/fortuna/mvp/internal/logger"
	"github.com/fortuna/mvp/internal/model"
	"github.com/fortuna/mvp/internal/ranking"
	"github.com/fortuna/mvp/internal/split"
	"github.com/fortuna/mvp/internal/store"
)

// ErrNotLoaded is returned before a model and feature table are loaded.
var ErrNotLoaded = errors.New("no model loaded")

// ErrNoHistory is returned when published rankings are not persisted.
var ErrNoHistory = errors.New("prediction history not configured")

// RankingCache stores computed responses.
type RankingCache interface {
	GetJSON(ctx context.Context, key string, dst interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, v interface{}) error
	InvalidateSeason(ctx context.Context, season int) (int, error)
	Purge(ctx context.Context) (int, error)
}

// PredictionStore persists published rankings.
type PredictionStore interface {
	SaveBatch(ctx context.Context, preds []*store.Prediction) error
	LatestBySeason(ctx context.Context, season, limit int) ([]*store.Prediction, error)
}

// Publisher fans rankings out to stream consumers.
type Publisher interface {
	PublishPredictions(ctx context.Context, season int, ranking interface{}) (string, error)
}

// Broadcaster pushes rankings to connected websocket clients.
type Broadcaster interface {
	Broadcast(v interface{})
}

// SeasonRanking is the served top-N view of one season.
type SeasonRanking struct {
	Season        int                   `json:"season"`
	ModelVersion  string                `json:"model_version"`
	Top           []ranking.Entry       `json:"top"`
	Probabilities []ranking.Probability `json:"probabilities,omitempty"`
	Winner        *ranking.Entry        `json:"winner,omitempty"`
}

// PredictionService serves rankings from a loaded model and feature table.
type PredictionService struct {
	mu       sync.RWMutex
	model    model.Model
	features *frame.Frame
	version  string

	cache     RankingCache
	store     PredictionStore
	publisher Publisher
	hub       Broadcaster

	log *logrus.Entry
}

// Option configures optional backends.
type Option func(*PredictionService)

// WithCache serves repeated requests from c.
func WithCache(c RankingCache) Option {
	return func(s *PredictionService) { s.cache = c }
}

// WithStore persists every computed ranking.
func WithStore(st PredictionStore) Option {
	return func(s *PredictionService) { s.store = st }
}

// WithPublisher appends every computed ranking to a stream.
func WithPublisher(p Publisher) Option {
	return func(s *PredictionService) { s.publisher = p }
}

// WithBroadcaster pushes every computed ranking to live clients.
func WithBroadcaster(b Broadcaster) Option {
	return func(s *PredictionService) { s.hub = b }
}

// NewPredictionService creates a prediction service. Load must be called
// before rankings can be served.
func NewPredictionService(opts ...Option) *PredictionService {
	s := &PredictionService{log: logger.WithStage("serve")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load swaps in a model and the feature table it scores, then drops every
// view cached under earlier models.
func (s *PredictionService) Load(ctx context.Context, m model.Model, features *frame.Frame, version string) {
	s.mu.Lock()
	s.model, s.features, s.version = m, features, version
	s.mu.Unlock()
	s.log.WithFields(logrus.Fields{"model_version": version, "rows": features.Len()}).Info("Model loaded")

	if s.cache == nil {
		return
	}
	if _, err := s.cache.Purge(ctx); err != nil {
		s.log.WithError(err).Warn("Cache purge failed")
	}
}

// Invalidate drops cached views of a season after a new run.
func (s *PredictionService) Invalidate(ctx context.Context, season int) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.InvalidateSeason(ctx, season); err != nil {
		s.log.WithError(err).WithField("season", season).Warn("Cache invalidation failed")
	}
}

func (s *PredictionService) loaded() (model.Model, *frame.Frame, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.model == nil || s.features == nil {
		return nil, nil, "", ErrNotLoaded
	}
	return s.model, s.features, s.version, nil
}

// Seasons lists the seasons present in the feature table.
func (s *PredictionService) Seasons() ([]int, error) {
	_, f, _, err := s.loaded()
	if err != nil {
		return nil, err
	}
	return split.Seasons(f)
}

// Split partitions the available seasons.
func (s *PredictionService) Split(ctx context.Context) (split.Result, error) {
	var res split.Result
	_, f, version, err := s.loaded()
	if err != nil {
		return res, err
	}

	key := cache.SplitKey(version)
	if s.cache != nil {
		if hit, err := s.cache.GetJSON(ctx, key, &res); err == nil && hit {
			return res, nil
		}
	}

	seasons, err := split.Seasons(f)
	if err != nil {
		return res, err
	}
	res = split.Split(seasons)
	s.remember(ctx, key, res)
	return res, nil
}

// Rankings returns the top entries of a season, with percentages when
// normalize is set.
func (s *PredictionService) Rankings(ctx context.Context, season, top int, normalize bool) (*SeasonRanking, error) {
	if top <= 0 {
		return nil, fmt.Errorf("top must be positive, got %d", top)
	}

	m, f, version, err := s.loaded()
	if err != nil {
		return nil, err
	}

	key := cache.RankingKey(version, season, top, normalize)
	if s.cache != nil {
		var cached SeasonRanking
		hit, err := s.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			s.log.WithError(err).Warn("Cache read failed")
		}
		if hit {
			return &cached, nil
		}
	}

	r, err := ranking.PredictRankings(m, f, season, m.Features())
	if err != nil {
		return nil, err
	}

	out := &SeasonRanking{Season: season, ModelVersion: version, Top: r.Top(top)}
	if normalize {
		if out.Probabilities, err = r.Normalized(top); err != nil {
			return nil, fmt.Errorf("season %d: %w", season, err)
		}
	}
	if w, ok := r.WinnerRank(); ok {
		out.Winner = &w
	}

	s.publish(ctx, out)
	s.remember(ctx, key, out)
	return out, nil
}

// WinnerRanks places every validation-season winner in its predicted
// ranking.
func (s *PredictionService) WinnerRanks(ctx context.Context) (*ranking.WinnerSummary, error) {
	m, f, _, err := s.loaded()
	if err != nil {
		return nil, err
	}
	parts, err := s.Split(ctx)
	if err != nil {
		return nil, err
	}
	return ranking.EvaluateWinners(m, f, parts.Validation, m.Features())
}

// History returns the last persisted ranking of a season.
func (s *PredictionService) History(ctx context.Context, season, limit int) ([]*store.Prediction, error) {
	if s.store == nil {
		return nil, ErrNoHistory
	}
	preds, err := s.store.LatestBySeason(ctx, season, limit)
	if err != nil {
		return nil, fmt.Errorf("fetching prediction history: %w", err)
	}
	return preds, nil
}

// publish persists and fans out a fresh ranking. Failures are logged and
// do not fail the request.
func (s *PredictionService) publish(ctx context.Context, r *SeasonRanking) {
	log := s.log.WithField("season", r.Season)

	if s.store != nil {
		if err := s.store.SaveBatch(ctx, toPredictions(r)); err != nil {
			log.WithError(err).Warn("Persisting ranking failed")
		}
	}
	if s.publisher != nil {
		if _, err := s.publisher.PublishPredictions(ctx, r.Season, r); err != nil {
			log.WithError(err).Warn("Publishing ranking failed")
		}
	}
	if s.hub != nil {
		s.hub.Broadcast(r)
	}
}

func (s *PredictionService) remember(ctx context.Context, key string, v interface{}) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetJSON(ctx, key, v); err != nil {
		s.log.WithError(err).WithField("key", key).Warn("Cache write failed")
	}
}

func toPredictions(r *SeasonRanking) []*store.Prediction {
	preds := make([]*store.Prediction, len(r.Top))
	for i, e := range r.Top {
		p := &store.Prediction{
			Season:       r.Season,
			Rank:         e.Rank,
			PlayerName:   e.Player,
			Score:        e.Score,
			IsMVP:        e.IsMVP,
			ModelVersion: r.ModelVersion,
		}
		if i < len(r.Probabilities) {
			p.Percent = sql.NullFloat64{Float64: r.Probabilities[i].Percent, Valid: true}
		}
		preds[i] = p
	}
	return preds
}
