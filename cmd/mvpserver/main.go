package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fortuna/mvp/internal/api/rest"
	"github.com/fortuna/mvp/internal/api/websocket"
	"github.com/fortuna/mvp/internal/cache"
	"github.com/fortuna/mvp/internal/clean"
	"github.com/fortuna/mvp/internal/config"
	"github.com/fortuna/mvp/internal/evaluate"
	"github.com/fortuna/mvp/internal/frame"
	"github.com/fortuna/mvp/internal/logger"
	"github.com/fortuna/mvp/internal/model/gbm"
	"github.com/fortuna/mvp/internal/pipeline"
	"github.com/fortuna/mvp/internal/publisher"
	"github.com/fortuna/mvp/internal/scheduler"
	"github.com/fortuna/mvp/internal/schema"
	"github.com/fortuna/mvp/internal/service"
	"github.com/fortuna/mvp/internal/store"
	"github.com/fortuna/mvp/internal/store/repository"
)

const (
	serviceName    = "mvp"
	serviceVersion = "1.0.0"
)

var errNoArtifacts = errors.New("FEATURES_PATH and MODEL_PATH not set")

func main() {
	cfg, err := config.Load(config.New())
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	log := logger.Init(cfg.LogLevel, cfg.LogFormat)
	log.Infof("Starting %s v%s - MVP prediction service", serviceName, serviceVersion)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var opts []service.Option

	// Database: prediction history and the run ledger
	var (
		db     *store.Database
		health rest.HealthChecker
		runs   *pipeline.Service
		sched  *scheduler.Scheduler
	)
	if cfg.DatabaseURL != "" {
		db, err = store.NewDatabase(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		log.Info("✓ Connected to database")

		if err := db.RunMigrations(ctx); err != nil {
			log.Fatalf("Failed to run database migrations: %v", err)
		}
		log.Info("✓ Database migrations applied")

		health = db
		opts = append(opts, service.WithStore(repository.NewPredictionRepository(db)))
	}

	// Redis: ranking cache and prediction streams
	var (
		redisPublisher *publisher.RedisStreamPublisher
		cacheHealth    rest.CacheChecker
	)
	if cfg.RedisURL != "" {
		var redisCache *cache.RedisCache
		connectWithRetry(log, "Redis", func() (err error) {
			redisCache, err = cache.NewRedisCache(cfg.RedisURL, cfg.CacheTTL)
			return err
		})
		defer redisCache.Close()
		log.Info("✓ Connected to Redis")

		redisPublisher = publisher.NewRedisStreamPublisher(redisCache.Client())
		log.Info("✓ Redis publisher initialized")

		cacheHealth = redisCache
		opts = append(opts, service.WithCache(redisCache), service.WithPublisher(redisPublisher))
	}

	// WebSocket hub
	wsServer := websocket.NewServer(websocket.NewHub())
	opts = append(opts, service.WithBroadcaster(wsServer.Hub()))

	predictions := service.NewPredictionService(opts...)
	if err := loadArtifacts(ctx, predictions, cfg); err != nil {
		log.WithError(err).Warn("No model loaded, rankings unavailable until a run completes")
	}

	if db != nil {
		runs = pipeline.NewService(pipeline.NewRepository(db), nil, baseSpec(cfg))
		runs.OnResult(func(ctx context.Context, run *pipeline.Run, res *pipeline.Result) {
			if res.Model == nil || res.Features == nil {
				return
			}
			predictions.Load(ctx, res.Model, res.Features, run.RunID)
			predictions.Invalidate(ctx, int(run.Season.Int64))
			if redisPublisher != nil {
				if _, err := redisPublisher.PublishRunCompleted(ctx, run.RunID, run); err != nil {
					log.WithError(err).Warn("Failed to publish run completion")
				}
			}
		})
		runs.Start()
		log.Info("✓ Run worker started")

		if cfg.ScheduleEnabled {
			sched = scheduler.New(runs, &scheduler.Config{
				Hour:   cfg.ScheduleHour,
				Stage:  pipeline.StageFull,
				Season: cfg.PredictSeason,
			})
			sched.Start(ctx)
			log.Info("✓ Scheduler started")
		}
	}

	// REST API server
	var runAPI rest.Runs
	if runs != nil {
		runAPI = runs
	}
	restServer := rest.NewServer(cfg.RESTPort, predictions, health, cacheHealth, runAPI)
	go func() {
		log.Infof("Starting REST API server on port %s", cfg.RESTPort)
		if err := restServer.Start(); err != nil {
			log.Errorf("REST server error: %v", err)
		}
	}()

	// WebSocket server
	go func() {
		log.Infof("Starting WebSocket server on port %s", cfg.WSPort)
		if err := wsServer.Start(cfg.WSPort); err != nil {
			log.Errorf("WebSocket server error: %v", err)
		}
	}()

	log.Infof("✓ %s v%s started successfully", serviceName, serviceVersion)
	log.Infof("  REST API: http://0.0.0.0:%s", cfg.RESTPort)
	log.Infof("  WebSocket: ws://0.0.0.0:%s", cfg.WSPort)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down gracefully...")

	cancel()
	if sched != nil {
		sched.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if runs != nil {
		if err := runs.Shutdown(shutdownCtx); err != nil {
			log.Errorf("Run worker shutdown error: %v", err)
		}
	}
	if err := restServer.Shutdown(shutdownCtx); err != nil {
		log.Errorf("REST API server shutdown error: %v", err)
	}
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		log.Errorf("WebSocket server shutdown error: %v", err)
	}

	log.Infof("%s stopped", serviceName)
}

// connectWithRetry calls connect until it succeeds, exiting the process
// after the last attempt.
func connectWithRetry(log *logrus.Logger, what string, connect func() error) {
	maxRetries := 30
	retryDelay := 2 * time.Second

	log.Infof("Connecting to %s...", what)
	for i := 0; i < maxRetries; i++ {
		err := connect()
		if err == nil {
			return
		}

		if i < maxRetries-1 {
			log.Warnf("%s connection attempt %d/%d failed: %v (retrying in %v)", what, i+1, maxRetries, err, retryDelay)
			time.Sleep(retryDelay)
		} else {
			log.Fatalf("Failed to connect to %s after %d attempts: %v", what, maxRetries, err)
		}
	}
}

// loadArtifacts serves the configured feature table and model, if any.
func loadArtifacts(ctx context.Context, predictions *service.PredictionService, cfg *config.Config) error {
	if cfg.FeaturesPath == "" || cfg.ModelPath == "" {
		return errNoArtifacts
	}

	features, err := frame.ReadCSVFile(cfg.FeaturesPath, schema.PlayerName)
	if err != nil {
		return err
	}
	m, err := gbm.LoadFile(cfg.ModelPath)
	if err != nil {
		return err
	}

	version := strings.TrimSuffix(filepath.Base(cfg.ModelPath), filepath.Ext(cfg.ModelPath))
	predictions.Load(ctx, m, features, version)
	return nil
}

// baseSpec is the job every queued run starts from. Runs triggered over
// the API begin from the raw tables.
func baseSpec(cfg *config.Config) pipeline.JobSpec {
	params := gbm.DefaultParams()
	params.NEstimators = cfg.NEstimators
	params.LearningRate = cfg.LearningRate
	params.MaxDepth = cfg.MaxDepth
	params.EarlyStoppingRounds = cfg.EarlyStoppingRounds

	opts := evaluate.DefaultOptions()
	opts.TopN = cfg.TopN

	return pipeline.JobSpec{
		Stage: pipeline.StageFull,
		Inputs: pipeline.Inputs{
			Totals:    cfg.TotalsPath,
			Advanced:  cfg.AdvancedPath,
			Standings: cfg.StandingsPath,
			Features:  cfg.FeaturesPath,
			Model:     cfg.ModelPath,
		},
		OutputDir:   cfg.OutputDir,
		Season:      cfg.PredictSeason,
		TopN:        cfg.TopN,
		ImputeScope: clean.ImputeScope(cfg.ImputeScope),
		Params:      params,
		Evaluation:  opts,
	}
}
