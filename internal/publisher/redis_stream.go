package publisher

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// PredictionsStream carries every published season ranking.
	PredictionsStream = "mvp.predictions"
	// RunsStream carries pipeline run completions.
	RunsStream = "mvp.runs"

	streamMaxLen = 1000
)

// RedisStreamPublisher publishes events to Redis streams
type RedisStreamPublisher struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisStreamPublisher creates a new Redis stream publisher from existing client
func NewRedisStreamPublisher(client *redis.Client) *RedisStreamPublisher {
	return &RedisStreamPublisher{
		client: client,
		now:    time.Now,
	}
}

// PublishPredictions appends a season ranking to the predictions stream.
func (rsp *RedisStreamPublisher) PublishPredictions(ctx context.Context, season int, ranking interface{}) (string, error) {
	return rsp.publish(ctx, PredictionsStream, map[string]interface{}{
		"season": strconv.Itoa(season),
	}, ranking)
}

// PublishRunCompleted appends a finished run to the runs stream.
func (rsp *RedisStreamPublisher) PublishRunCompleted(ctx context.Context, runID string, run interface{}) (string, error) {
	return rsp.publish(ctx, RunsStream, map[string]interface{}{
		"run_id": runID,
	}, run)
}

func (rsp *RedisStreamPublisher) publish(ctx context.Context, stream string, fields map[string]interface{}, payload interface{}) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	values := map[string]interface{}{
		"data":      string(data),
		"timestamp": rsp.now().Unix(),
	}
	for k, v := range fields {
		values[k] = v
	}

	return rsp.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: values,
	}).Result()
}
