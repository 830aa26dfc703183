// Package config reads the daemon's settings from the environment, after
// loading any .env file present.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var ErrMissingIndexer = errors.New("INDEXER_URL is required")

type Config struct {
	IndexerURL   string        `env:"INDEXER_URL"`
	SQLURL       string        `env:"SQL_URL"` // defaults to INDEXER_URL + "/sql"
	StreamURL    string        `env:"STREAM_URL" envDefault:"channels://"`
	StreamTopic  string        `env:"STREAM_TOPIC" envDefault:"entities"`
	Namespace    string        `env:"NAMESPACE"`
	Models       []string      `env:"MODELS" envSeparator:","`
	MirrorURL    string        `env:"MIRROR_URL"`
	ChangesURL   string        `env:"CHANGES_URL" envDefault:"channels://"`
	ChangesTopic string        `env:"CHANGES_TOPIC" envDefault:"tokens"`
	SQLCacheSize string        `env:"SQL_CACHE_SIZE" envDefault:"16mb"`
	SQLCacheTTL  time.Duration `env:"SQL_CACHE_TTL" envDefault:"30s"`
	HTTPTimeout  time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`
	Port         int           `env:"PORT" envDefault:"3000"`
	LogLevel     string        `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads files (".env" when none are given) into the environment, then
// parses the environment. Missing files are ignored; variables already set in
// the environment win over file values.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.IndexerURL = strings.TrimRight(cfg.IndexerURL, "/")
	if cfg.SQLURL == "" && cfg.IndexerURL != "" {
		cfg.SQLURL = cfg.IndexerURL + "/sql"
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.IndexerURL == "" {
		return ErrMissingIndexer
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	return nil
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
