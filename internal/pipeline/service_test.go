package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu     sync.Mutex
	runs   []*Run
	events map[string][]string
}

func newMemStore() *memStore {
	return &memStore{events: map[string][]string{}}
}

func (m *memStore) find(id string) *Run {
	for _, r := range m.runs {
		if r.RunID == id {
			return r
		}
	}
	return nil
}

func (m *memStore) CreateRun(_ context.Context, run *Run) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := run.Copy()
	stored.RunID = fmt.Sprintf("run-%d", len(m.runs)+1)
	stored.CreatedAt = time.Now()
	m.runs = append(m.runs, stored)
	return stored.Copy(), nil
}

func (m *memStore) UpdateStatus(_ context.Context, id string, status RunStatus, message string, lastErr error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.find(id)
	r.Status = status
	r.StatusMessage = sql.NullString{String: message, Valid: true}
	if lastErr != nil {
		r.LastError = sql.NullString{String: lastErr.Error(), Valid: true}
	}
	return nil
}

func (m *memStore) UpdateProgress(_ context.Context, id string, current, total int, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.find(id)
	r.ProgressCurrent, r.ProgressTotal = current, total
	r.StatusMessage = sql.NullString{String: message, Valid: true}
	return nil
}

func (m *memStore) AddArtifact(_ context.Context, id, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.find(id)
	r.Artifacts = append(r.Artifacts, path)
	return nil
}

func (m *memStore) AppendEvent(_ context.Context, id string, eventType, _ string, _, _ *int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[id] = append(m.events[id], eventType)
	return nil
}

func (m *memStore) ResetStuckRuns(context.Context) error { return nil }

func (m *memStore) MarkNextRunRunning(context.Context) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r.Status == RunStatusQueued {
			r.Status = RunStatusRunning
			return r.Copy(), nil
		}
	}
	return nil, nil
}

func (m *memStore) GetActiveRun(context.Context) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r.Status == RunStatusRunning {
			return r.Copy(), nil
		}
	}
	return nil, nil
}

func (m *memStore) ListRecentRuns(_ context.Context, limit int) ([]*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Run
	for i := len(m.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.runs[i].Copy())
	}
	return out, nil
}

func TestServiceProcessesQueuedRun(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, fixedRunner(fixedNow), testSpec(t, StageFull))

	var hooked *Result
	svc.OnResult(func(_ context.Context, _ *Run, res *Result) { hooked = res })

	run, err := svc.Enqueue(context.Background(), Request{Stage: StageMerge})
	require.NoError(t, err)
	assert.Equal(t, RunStatusQueued, run.Status)
	assert.Equal(t, int64(2024), run.Season.Int64)
	assert.Equal(t, 1, run.ProgressTotal)

	claimed, err := svc.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.True(t, claimed)

	status, err := svc.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Nil(t, status.ActiveRun)
	require.Len(t, status.History, 1)

	done := status.History[0]
	assert.Equal(t, RunStatusCompleted, done.Status)
	assert.Equal(t, 1, done.ProgressCurrent)
	assert.Len(t, done.Artifacts, 1)
	require.NotNil(t, hooked)
	assert.Equal(t, []string(done.Artifacts), hooked.Artifacts)
	assert.Equal(t, []string{"queued", "artifact"}, store.events[run.RunID])

	claimed, err = svc.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestServiceRecordsFailure(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, fixedRunner(fixedNow), testSpec(t, StageFull))

	run, err := svc.Enqueue(context.Background(), Request{Stage: StagePredict})
	require.NoError(t, err)

	_, err = svc.ProcessNext(context.Background())
	require.NoError(t, err)

	status, err := svc.GetStatus(context.Background())
	require.NoError(t, err)
	failed := status.History[0]
	assert.Equal(t, RunStatusFailed, failed.Status)
	assert.True(t, failed.LastError.Valid)
	assert.Contains(t, failed.LastError.String, "no features input given")
	assert.Equal(t, []string{"queued", "error"}, store.events[run.RunID])
}

func TestServiceEnqueueRejectsUnknownStage(t *testing.T) {
	svc := NewService(newMemStore(), nil, JobSpec{Season: 2024})
	_, err := svc.Enqueue(context.Background(), Request{Stage: "scrape"})
	assert.Error(t, err)

	run, err := svc.Enqueue(context.Background(), Request{Season: 2023})
	require.NoError(t, err)
	assert.Equal(t, StageFull, run.Stage)
	assert.Equal(t, int64(2023), run.Season.Int64)
	assert.Equal(t, 6, run.ProgressTotal)
}

func TestServiceWorkerLifecycle(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, fixedRunner(fixedNow), testSpec(t, StageFull))
	svc.pollInterval = 10 * time.Millisecond

	_, err := svc.Enqueue(context.Background(), Request{Stage: StageMerge})
	require.NoError(t, err)

	svc.Start()
	assert.Eventually(t, func() bool {
		status, err := svc.GetStatus(context.Background())
		return err == nil && len(status.History) == 1 && status.History[0].Status == RunStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, svc.Shutdown(ctx))
}

func TestServiceRunNowRecordsAndReports(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, fixedRunner(fixedNow), testSpec(t, StageFull))
	rep := &recordingReporter{}

	run, res, err := svc.RunNow(context.Background(), Request{Stage: StageMerge}, rep)
	require.NoError(t, err)
	assert.Len(t, res.Artifacts, 1)
	assert.Equal(t, []string{"merge"}, rep.steps)
	assert.Equal(t, res.Artifacts, rep.artifacts)

	stored := store.find(run.RunID)
	assert.Equal(t, RunStatusCompleted, stored.Status)
	assert.Equal(t, res.Artifacts, []string(stored.Artifacts))
}
