package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// Runtime
	Env       string `mapstructure:"ENV"`
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// Artifacts
	DataDir       string `mapstructure:"DATA_DIR"`
	OutputDir     string `mapstructure:"OUTPUT_DIR"`
	TotalsPath    string `mapstructure:"TOTALS_PATH"`
	AdvancedPath  string `mapstructure:"ADVANCED_PATH"`
	StandingsPath string `mapstructure:"STANDINGS_PATH"`
	FeaturesPath  string `mapstructure:"FEATURES_PATH"`
	ModelPath     string `mapstructure:"MODEL_PATH"`

	// Pipeline
	PredictSeason int    `mapstructure:"PREDICT_SEASON"`
	TopN          int    `mapstructure:"TOP_N"`
	ImputeScope   string `mapstructure:"IMPUTE_SCOPE"`

	// Regressor
	NEstimators         int     `mapstructure:"N_ESTIMATORS"`
	LearningRate        float64 `mapstructure:"LEARNING_RATE"`
	MaxDepth            int     `mapstructure:"MAX_DEPTH"`
	EarlyStoppingRounds int     `mapstructure:"EARLY_STOPPING_ROUNDS"`

	// Serving
	DatabaseURL string        `mapstructure:"DATABASE_URL"`
	RedisURL    string        `mapstructure:"REDIS_URL"`
	RESTPort    string        `mapstructure:"REST_PORT"`
	WSPort      string        `mapstructure:"WS_PORT"`
	CacheTTL    time.Duration `mapstructure:"CACHE_TTL"`

	// Scheduler
	ScheduleEnabled bool `mapstructure:"SCHEDULE_ENABLED"`
	ScheduleHour    int  `mapstructure:"SCHEDULE_HOUR"`
}

// New returns a viper instance carrying every default. Commands bind their
// flags onto it before calling Load.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "") // json in production, text otherwise

	v.SetDefault("DATA_DIR", "data")
	v.SetDefault("OUTPUT_DIR", "out")
	v.SetDefault("TOTALS_PATH", "")
	v.SetDefault("ADVANCED_PATH", "")
	v.SetDefault("STANDINGS_PATH", "")
	v.SetDefault("FEATURES_PATH", "")
	v.SetDefault("MODEL_PATH", "")

	v.SetDefault("PREDICT_SEASON", 2024)
	v.SetDefault("TOP_N", 5)
	v.SetDefault("IMPUTE_SCOPE", "global")

	v.SetDefault("N_ESTIMATORS", 3000)
	v.SetDefault("LEARNING_RATE", 0.01)
	v.SetDefault("MAX_DEPTH", 6)
	v.SetDefault("EARLY_STOPPING_ROUNDS", 50)

	v.SetDefault("DATABASE_URL", "") // empty disables persistence
	v.SetDefault("REDIS_URL", "")    // empty disables cache and stream
	v.SetDefault("REST_PORT", "8080")
	v.SetDefault("WS_PORT", "8081")
	v.SetDefault("CACHE_TTL", "1h")

	v.SetDefault("SCHEDULE_ENABLED", false)
	v.SetDefault("SCHEDULE_HOUR", 3)

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	return v
}

// Load reads the optional .env file and decodes the merged settings.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	cfg.ImputeScope = strings.ToLower(strings.TrimSpace(cfg.ImputeScope))
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
		if cfg.Env == "production" {
			cfg.LogFormat = "json"
		}
	}
	cfg.TotalsPath = inDataDir(cfg.TotalsPath, cfg.DataDir, "totals.csv")
	cfg.AdvancedPath = inDataDir(cfg.AdvancedPath, cfg.DataDir, "advanced.csv")
	cfg.StandingsPath = inDataDir(cfg.StandingsPath, cfg.DataDir, "standings.csv")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// inDataDir defaults an unset raw input to its conventional name in dir.
func inDataDir(path, dir, name string) string {
	if path != "" || dir == "" {
		return path
	}
	return filepath.Join(dir, name)
}

// Validate rejects settings no stage can run with.
func (c *Config) Validate() error {
	switch c.ImputeScope {
	case "global", "training":
	default:
		return fmt.Errorf("invalid IMPUTE_SCOPE %q (want global or training)", c.ImputeScope)
	}
	if c.TopN <= 0 {
		return fmt.Errorf("TOP_N must be positive, got %d", c.TopN)
	}
	if c.NEstimators <= 0 {
		return fmt.Errorf("N_ESTIMATORS must be positive, got %d", c.NEstimators)
	}
	if c.LearningRate <= 0 || c.LearningRate > 1 {
		return fmt.Errorf("LEARNING_RATE must be in (0, 1], got %v", c.LearningRate)
	}
	if c.MaxDepth <= 0 {
		return fmt.Errorf("MAX_DEPTH must be positive, got %d", c.MaxDepth)
	}
	if c.ScheduleHour < 0 || c.ScheduleHour > 23 {
		return fmt.Errorf("SCHEDULE_HOUR must be in [0, 23], got %d", c.ScheduleHour)
	}
	return nil
}
