package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var Logger *logrus.Logger

// Init configures the process-wide structured logger.
func Init(logLevel, logFormat string) *logrus.Logger {
	log := logrus.New()

	if logLevel == "" {
		logLevel = os.Getenv("LOG_LEVEL")
	}
	if logLevel == "" {
		logLevel = "info"
	}

	if level, err := logrus.ParseLevel(strings.ToLower(logLevel)); err == nil {
		log.SetLevel(level)
	} else {
		log.SetLevel(logrus.InfoLevel)
		log.WithField("invalid_level", logLevel).Warn("Invalid LOG_LEVEL, using INFO")
	}

	if strings.ToLower(logFormat) == "json" {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	log.SetOutput(os.Stderr)

	Logger = log
	return log
}

// Get returns the global logger, initialising it with defaults if needed.
func Get() *logrus.Logger {
	if Logger == nil {
		return Init("info", "text")
	}
	return Logger
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// WithStage creates a logger entry carrying the pipeline stage name
func WithStage(stage string) *logrus.Entry {
	return Get().WithField("stage", stage)
}

// WithSeason creates a logger entry carrying stage and season context
func WithSeason(stage string, season int) *logrus.Entry {
	return Get().WithFields(logrus.Fields{
		"stage":  stage,
		"season": season,
	})
}
