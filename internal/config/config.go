// Package config reads environment settings and builds the shared logger.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"noshow-risk-audit/internal/appointments"
	"noshow-risk-audit/internal/model"
)

const (
	DefaultDBSchema = "noshow_audit"
	DefaultPort     = "8080"
	DefaultLogLevel = "info"
)

// Config is the environment-level configuration. Command flags override it.
type Config struct {
	DataPath     string
	ModelPath    string
	DBURL        string
	DBSchema     string
	Port         string
	AverageValue float64
	LogLevel     string
}

// Load reads an optional .env file and then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, err
	}
	return FromEnv(), nil
}

func FromEnv() Config {
	cfg := Config{
		DataPath:     strings.TrimSpace(os.Getenv("NOSHOW_DATA_PATH")),
		ModelPath:    envOr("NOSHOW_MODEL_PATH", model.DefaultArtifactPath),
		DBURL:        DBURLFromEnv(),
		DBSchema:     envOr("NOSHOW_DB_SCHEMA", DefaultDBSchema),
		Port:         envOr("PORT", DefaultPort),
		AverageValue: appointments.DefaultAverageValue,
		LogLevel:     envOr("NOSHOW_LOG_LEVEL", DefaultLogLevel),
	}
	if raw := strings.TrimSpace(os.Getenv("NOSHOW_AVERAGE_VALUE")); raw != "" {
		if value, err := strconv.ParseFloat(raw, 64); err == nil && value >= 0 {
			cfg.AverageValue = value
		}
	}
	return cfg
}

// ResolveDataPath returns the configured data path or the first default that
// exists.
func (c Config) ResolveDataPath() (string, error) {
	if c.DataPath != "" {
		return c.DataPath, nil
	}
	return appointments.ResolvePath(appointments.DefaultPaths...)
}

// DBURLFromEnv prefers NOSHOW_DB_URL over DATABASE_URL.
func DBURLFromEnv() string {
	if value := strings.TrimSpace(os.Getenv("NOSHOW_DB_URL")); value != "" {
		return value
	}
	return strings.TrimSpace(os.Getenv("DATABASE_URL"))
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

// NewLogger returns a text logger on stderr. Unknown levels fall back to info.
func NewLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	parsed, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
	return logger
}
