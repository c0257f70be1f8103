// Command mvp runs the MVP prediction pipeline from the command line.
//
// Usage:
//
//	mvp run --totals totals.csv --advanced advanced.csv --standings standings.csv
//	mvp clean --merged out/01_df_row_2024-05-01T120000.csv
//	mvp predict --features out/03_df_features_<ts>.csv --model out/mvp_gbm_model_<ts>.json --season 2024
//	mvp split --features out/03_df_features_<ts>.csv
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fortuna/mvp/internal/clean"
	"github.com/fortuna/mvp/internal/config"
	"github.com/fortuna/mvp/internal/evaluate"
	"github.com/fortuna/mvp/internal/frame"
	"github.com/fortuna/mvp/internal/logger"
	"github.com/fortuna/mvp/internal/model/gbm"
	"github.com/fortuna/mvp/internal/pipeline"
	"github.com/fortuna/mvp/internal/schema"
	"github.com/fortuna/mvp/internal/split"
	"github.com/fortuna/mvp/internal/store"
)

const (
	appName    = "mvp"
	appVersion = "1.0.0"
)

var dryRun bool

func main() {
	v := config.New()

	root := &cobra.Command{
		Use:           appName,
		Short:         "NBA MVP prediction pipeline",
		Version:       appVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.String("output-dir", "out", "Directory for timestamped artifacts")
	flags.Int("season", 2024, "Season to predict")
	flags.Int("top", 5, "Number of candidates to report")
	flags.String("impute-scope", "global", "Rows used to fit imputation medians (global or training)")
	flags.String("log-level", "info", "Log level")
	flags.String("log-format", "", "Log format (text or json, json by default in production)")
	flags.String("database-url", "", "Record runs in PostgreSQL")
	flags.BoolVar(&dryRun, "dry-run", false, "Plan the run without reading or writing files")
	for key, name := range map[string]string{
		"OUTPUT_DIR":     "output-dir",
		"PREDICT_SEASON": "season",
		"TOP_N":          "top",
		"IMPUTE_SCOPE":   "impute-scope",
		"LOG_LEVEL":      "log-level",
		"LOG_FORMAT":     "log-format",
		"DATABASE_URL":   "database-url",
	} {
		_ = v.BindPFlag(key, flags.Lookup(name))
	}

	root.AddCommand(stageCmd(v, pipeline.StageFull, "run", "Run every stage from the raw tables"))
	root.AddCommand(stageCmd(v, pipeline.StageMerge, "merge", "Join totals, advanced, and standings"))
	root.AddCommand(stageCmd(v, pipeline.StageClean, "clean", "Clean a merged table"))
	root.AddCommand(stageCmd(v, pipeline.StageEngineer, "engineer", "Derive model features from a cleaned table"))
	root.AddCommand(stageCmd(v, pipeline.StageTrain, "train", "Train the regressor on a feature table"))
	root.AddCommand(stageCmd(v, pipeline.StageEvaluate, "evaluate", "Evaluate a saved model on the validation seasons"))
	root.AddCommand(stageCmd(v, pipeline.StagePredict, "predict", "Rank a season with a saved model"))
	root.AddCommand(splitCmd(v))

	if err := root.Execute(); err != nil {
		logger.Get().WithError(err).Error("Command failed")
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// stage commands
// --------------------------------------------------------------------------

func stageCmd(v *viper.Viper, stage pipeline.Stage, use, short string) *cobra.Command {
	var in pipeline.Inputs
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConfig(v, func(ctx context.Context, cfg *config.Config) error {
				spec := buildSpec(cfg, stage, in)
				return runStage(ctx, cfg, spec)
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&in.Totals, "totals", "", "Player totals CSV")
	f.StringVar(&in.Advanced, "advanced", "", "Player advanced CSV")
	f.StringVar(&in.Standings, "standings", "", "Team standings CSV")
	f.StringVar(&in.Merged, "merged", "", "Merged table CSV")
	f.StringVar(&in.Cleaned, "cleaned", "", "Cleaned table CSV")
	f.StringVar(&in.Features, "features", "", "Feature table CSV")
	f.StringVar(&in.Model, "model", "", "Saved model JSON")
	return cmd
}

func buildSpec(cfg *config.Config, stage pipeline.Stage, in pipeline.Inputs) pipeline.JobSpec {
	in.Totals = valueOr(in.Totals, cfg.TotalsPath)
	in.Advanced = valueOr(in.Advanced, cfg.AdvancedPath)
	in.Standings = valueOr(in.Standings, cfg.StandingsPath)
	in.Features = valueOr(in.Features, cfg.FeaturesPath)
	in.Model = valueOr(in.Model, cfg.ModelPath)

	params := gbm.DefaultParams()
	params.NEstimators = cfg.NEstimators
	params.LearningRate = cfg.LearningRate
	params.MaxDepth = cfg.MaxDepth
	params.EarlyStoppingRounds = cfg.EarlyStoppingRounds

	opts := evaluate.DefaultOptions()
	opts.TopN = cfg.TopN

	return pipeline.JobSpec{
		Stage:       stage,
		Inputs:      in,
		OutputDir:   cfg.OutputDir,
		Season:      cfg.PredictSeason,
		TopN:        cfg.TopN,
		ImputeScope: clean.ImputeScope(cfg.ImputeScope),
		Params:      params,
		Evaluation:  opts,
		DryRun:      dryRun,
	}
}

// runStage executes spec directly, or through the run ledger when a
// database is configured.
func runStage(ctx context.Context, cfg *config.Config, spec pipeline.JobSpec) error {
	console := newConsoleReporter(spec.DryRun)
	runner := pipeline.NewRunner()

	var (
		res *pipeline.Result
		err error
	)
	if cfg.DatabaseURL == "" || spec.DryRun {
		res, err = runner.Run(ctx, spec, console)
	} else {
		res, err = runRecorded(ctx, cfg, runner, spec, console)
	}
	if err != nil {
		return err
	}

	printResult(os.Stdout, res, spec.TopN)
	return nil
}

func runRecorded(ctx context.Context, cfg *config.Config, runner *pipeline.Runner, spec pipeline.JobSpec, console pipeline.Reporter) (*pipeline.Result, error) {
	db, err := store.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	svc := pipeline.NewService(pipeline.NewRepository(db), runner, spec)
	run, res, err := svc.RunNow(ctx, pipeline.Request{Stage: spec.Stage, Season: spec.Season}, console)
	if run != nil {
		logger.WithStage("runs").WithField("run_id", run.RunID).Info("Run recorded")
	}
	return res, err
}

// --------------------------------------------------------------------------
// split command
// --------------------------------------------------------------------------

func splitCmd(v *viper.Viper) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "split",
		Short: "Print the validation and training seasons of a feature table",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConfig(v, func(ctx context.Context, cfg *config.Config) error {
				path = valueOr(path, cfg.FeaturesPath)
				if path == "" {
					return fmt.Errorf("--features is required")
				}
				f, err := frame.ReadCSVFile(path, schema.PlayerName)
				if err != nil {
					return err
				}
				seasons, err := split.Seasons(f)
				if err != nil {
					return err
				}

				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(split.Split(seasons))
			})
		},
	}
	cmd.Flags().StringVar(&path, "features", "", "Feature table CSV")
	return cmd
}

// --------------------------------------------------------------------------
// Shared setup
// --------------------------------------------------------------------------

// withConfig loads settings, configures logging, and cancels on interrupt.
func withConfig(v *viper.Viper, fn func(ctx context.Context, cfg *config.Config) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(v)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	return fn(ctx, cfg)
}

func valueOr(val, fallback string) string {
	if val != "" {
		return val
	}
	return fallback
}
