package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/mvp/internal/cache"
	"github.com/fortuna/mvp/internal/frame"
	"github.com/fortuna/mvp/internal/publisher"
	"github.com/fortuna/mvp/internal/ranking"
	"github.com/fortuna/mvp/internal/schema"
	"github.com/fortuna/mvp/internal/store"
)

// identity scores each row by its single feature.
type identity struct{}

func (identity) Predict(X [][]float64) ([]float64, error) {
	out := make([]float64, len(X))
	for i, row := range X {
		out[i] = row[0]
	}
	return out, nil
}
func (identity) Features() []string            { return []string{"signal"} }
func (identity) FeatureImportances() []float64 { return []float64{1} }

// negated reverses the identity ordering.
type negated struct{ identity }

func (negated) Predict(X [][]float64) ([]float64, error) {
	out := make([]float64, len(X))
	for i, row := range X {
		out[i] = -row[0]
	}
	return out, nil
}

func featureTable() *frame.Frame {
	return frame.MustNew(
		frame.NewText(schema.PlayerName, []string{"Steve Nash", "Shaquille O'Neal", "Dirk Nowitzki", "Kobe Bryant", "LeBron James", "Chris Paul"}, nil),
		frame.NewNumber(schema.SeasonYear, []float64{2005, 2005, 2006, 2006, 2024, 2024}, nil),
		frame.NewNumber(schema.IsMVP, []float64{1, 0, 0, 1, 0, 0}, nil),
		frame.NewNumber("signal", []float64{0.8, 0.5, 0.9, 0.3, 0.6, -0.2}, nil),
	)
}

type memPredictions struct {
	mu      sync.Mutex
	batches [][]*store.Prediction
	err     error
}

func (m *memPredictions) SaveBatch(_ context.Context, preds []*store.Prediction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.batches = append(m.batches, preds)
	return nil
}

func (m *memPredictions) LatestBySeason(_ context.Context, season, limit int) ([]*store.Prediction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.batches) - 1; i >= 0; i-- {
		if len(m.batches[i]) > 0 && m.batches[i][0].Season == season {
			b := m.batches[i]
			if len(b) > limit {
				b = b[:limit]
			}
			return b, nil
		}
	}
	return nil, nil
}

type recordingHub struct{ sent []interface{} }

func (h *recordingHub) Broadcast(v interface{}) { h.sent = append(h.sent, v) }

type backends struct {
	svc    *PredictionService
	mr     *miniredis.Miniredis
	client *redis.Client
	store  *memPredictions
	hub    *recordingHub
}

func newBackends(t *testing.T) backends {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	b := backends{mr: mr, client: client, store: &memPredictions{}, hub: &recordingHub{}}
	b.svc = NewPredictionService(
		WithCache(cache.NewRedisCacheFromClient(client, time.Hour)),
		WithStore(b.store),
		WithPublisher(publisher.NewRedisStreamPublisher(client)),
		WithBroadcaster(b.hub),
	)
	b.svc.Load(context.Background(), identity{}, featureTable(), "mvp_gbm_model_test")
	return b
}

func TestRankingsComputesOnceThenServesFromCache(t *testing.T) {
	ctx := context.Background()
	b := newBackends(t)

	got, err := b.svc.Rankings(ctx, 2005, 2, true)
	require.NoError(t, err)
	assert.Equal(t, "mvp_gbm_model_test", got.ModelVersion)
	require.Len(t, got.Top, 2)
	assert.Equal(t, "Steve Nash", got.Top[0].Player)
	require.Len(t, got.Probabilities, 2)
	assert.Equal(t, 61.54, got.Probabilities[0].Percent)
	assert.Equal(t, 38.46, got.Probabilities[1].Percent)
	require.NotNil(t, got.Winner)
	assert.Equal(t, 1, got.Winner.Rank)

	again, err := b.svc.Rankings(ctx, 2005, 2, true)
	require.NoError(t, err)
	assert.Equal(t, got, again)

	assert.Len(t, b.store.batches, 1)
	assert.Len(t, b.hub.sent, 1)
	n, err := b.client.XLen(ctx, publisher.PredictionsStream).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	stored := b.store.batches[0]
	assert.True(t, stored[0].Percent.Valid)
	assert.Equal(t, "Steve Nash", stored[0].PlayerName)
}

func TestLoadReplacesRankingsOfPreviousModel(t *testing.T) {
	ctx := context.Background()
	b := newBackends(t)

	before, err := b.svc.Rankings(ctx, 2005, 2, false)
	require.NoError(t, err)
	assert.Equal(t, "Steve Nash", before.Top[0].Player)

	b.svc.Load(ctx, negated{}, featureTable(), "mvp_gbm_model_v2")
	assert.False(t, b.mr.Exists(cache.RankingKey("mvp_gbm_model_test", 2005, 2, false)))
	b.svc.Invalidate(ctx, 2024)

	after, err := b.svc.Rankings(ctx, 2005, 2, false)
	require.NoError(t, err)
	assert.Equal(t, "mvp_gbm_model_v2", after.ModelVersion)
	assert.Equal(t, "Shaquille O'Neal", after.Top[0].Player)
	assert.Len(t, b.store.batches, 2)
}

func TestReloadUnderSameVersionDropsStaleRankings(t *testing.T) {
	ctx := context.Background()
	b := newBackends(t)

	stale := SeasonRanking{Season: 2005, ModelVersion: "mvp_gbm_model_test",
		Top: []ranking.Entry{{Rank: 1, Player: "Shaquille O'Neal"}}}
	require.NoError(t, cache.NewRedisCacheFromClient(b.client, time.Hour).
		SetJSON(ctx, cache.RankingKey("mvp_gbm_model_test", 2005, 2, false), stale))

	b.svc.Load(ctx, identity{}, featureTable(), "mvp_gbm_model_test")

	got, err := b.svc.Rankings(ctx, 2005, 2, false)
	require.NoError(t, err)
	assert.Equal(t, "Steve Nash", got.Top[0].Player)
}

func TestRankingsIgnoreOtherModelVersions(t *testing.T) {
	ctx := context.Background()
	b := newBackends(t)

	other := SeasonRanking{Season: 2006, ModelVersion: "older",
		Top: []ranking.Entry{{Rank: 1, Player: "Kobe Bryant"}}}
	require.NoError(t, cache.NewRedisCacheFromClient(b.client, time.Hour).
		SetJSON(ctx, cache.RankingKey("older", 2006, 1, false), other))

	got, err := b.svc.Rankings(ctx, 2006, 1, false)
	require.NoError(t, err)
	assert.Equal(t, "mvp_gbm_model_test", got.ModelVersion)
	assert.Equal(t, "Dirk Nowitzki", got.Top[0].Player)
}

func TestRankingsWithoutNormalization(t *testing.T) {
	b := newBackends(t)
	got, err := b.svc.Rankings(context.Background(), 2024, 5, false)
	require.NoError(t, err)
	assert.Len(t, got.Top, 2)
	assert.Empty(t, got.Probabilities)
	assert.Nil(t, got.Winner)
	assert.False(t, b.store.batches[0][0].Percent.Valid)
}

func TestRankingsErrors(t *testing.T) {
	ctx := context.Background()
	b := newBackends(t)

	_, err := b.svc.Rankings(ctx, 1999, 5, false)
	assert.ErrorIs(t, err, ranking.ErrSeasonNotFound)

	_, err = b.svc.Rankings(ctx, 2024, 5, true)
	assert.ErrorIs(t, err, ranking.ErrDegenerateNormalization)

	_, err = b.svc.Rankings(ctx, 2024, 0, false)
	assert.Error(t, err)

	_, err = NewPredictionService().Rankings(ctx, 2024, 5, false)
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestRankingsSurvivesStoreFailure(t *testing.T) {
	b := newBackends(t)
	b.store.err = errors.New("connection refused")

	got, err := b.svc.Rankings(context.Background(), 2006, 1, false)
	require.NoError(t, err)
	assert.Equal(t, "Dirk Nowitzki", got.Top[0].Player)
}

func TestSplitAndWinnerRanks(t *testing.T) {
	ctx := context.Background()
	b := newBackends(t)

	seasons, err := b.svc.Seasons()
	require.NoError(t, err)
	assert.Equal(t, []int{2005, 2006, 2024}, seasons)

	parts, err := b.svc.Split(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{2005}, parts.Validation)
	assert.Equal(t, []int{2006}, parts.Training)
	assert.True(t, b.mr.Exists(cache.SplitKey("mvp_gbm_model_test")))

	summary, err := b.svc.WinnerRanks(ctx)
	require.NoError(t, err)
	require.Len(t, summary.Seasons, 1)
	assert.Equal(t, 1, summary.Seasons[0].Rank)
}

func TestInvalidateAndHistory(t *testing.T) {
	ctx := context.Background()
	b := newBackends(t)

	_, err := b.svc.Rankings(ctx, 2006, 2, false)
	require.NoError(t, err)
	require.True(t, b.mr.Exists(cache.RankingKey("mvp_gbm_model_test", 2006, 2, false)))

	b.svc.Invalidate(ctx, 2006)
	assert.False(t, b.mr.Exists(cache.RankingKey("mvp_gbm_model_test", 2006, 2, false)))

	hist, err := b.svc.History(ctx, 2006, 10)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "Dirk Nowitzki", hist[0].PlayerName)

	_, err = NewPredictionService().History(ctx, 2006, 10)
	assert.ErrorIs(t, err, ErrNoHistory)
}
