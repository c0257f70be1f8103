package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fortuna/mvp/internal/logger"
	"github.com/fortuna/mvp/internal/pipeline"
)

// Enqueuer queues pipeline runs.
type Enqueuer interface {
	Enqueue(ctx context.Context, req pipeline.Request) (*pipeline.Run, error)
}

// Config holds scheduler configuration
type Config struct {
	Hour   int            // Local hour of the daily run. Default: 3 (3 AM)
	Stage  pipeline.Stage // Default: full
	Season int            // Zero uses the run service default
}

// DefaultConfig returns default scheduler configuration
func DefaultConfig() *Config {
	return &Config{
		Hour:  3,
		Stage: pipeline.StageFull,
	}
}

// Scheduler queues a retraining run once a day.
type Scheduler struct {
	runs   Enqueuer
	config *Config
	now    func() time.Time
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *logrus.Entry
}

// New creates a scheduler that enqueues into runs.
func New(runs Enqueuer, config *Config) *Scheduler {
	if config == nil {
		config = DefaultConfig()
	}
	return &Scheduler{
		runs:   runs,
		config: config,
		now:    time.Now,
		log:    logger.WithStage("scheduler"),
	}
}

// Start launches the daily loop in the background.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.log.WithFields(logrus.Fields{
		"hour":      s.config.Hour,
		"run_stage": s.config.Stage,
	}).Info("Daily run scheduler started")

	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop cancels the loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.log.Info("Daily run scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	for {
		now := s.now()
		next := NextRun(now, s.config.Hour)
		wait := next.Sub(now)
		s.log.Infof("Next scheduled run: %s (in %v)", next.Format("2006-01-02 15:04:05"), wait.Round(time.Second))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if _, err := s.Trigger(ctx); err != nil {
				s.log.WithError(err).Error("Scheduled run not queued")
			}
		}
	}
}

// Trigger queues a run immediately.
func (s *Scheduler) Trigger(ctx context.Context) (*pipeline.Run, error) {
	run, err := s.runs.Enqueue(ctx, pipeline.Request{Stage: s.config.Stage, Season: s.config.Season})
	if err != nil {
		return nil, err
	}
	s.log.WithField("run_id", run.RunID).Info("Scheduled run queued")
	return run, nil
}

// NextRun returns the first time at hour:00 strictly after now, in now's
// location.
func NextRun(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
