// Package config loads runtime settings and the optional pattern and entity
// files that customise extraction.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/cognicore/kbase/pkg/kbase/internalerr"
)

// Defaults applied before the file and the environment are read.
const (
	DefaultDBPath              = "knowledge_base.db"
	DefaultLanguage            = "ru"
	DefaultLogLevel            = "info"
	DefaultSimilarityThreshold = 0.7
	DefaultMaxPasses           = 100
	DefaultChunkSize           = 100000
	DefaultMinSentence         = 5
)

// Config holds runtime settings. Environment variables override the file.
type Config struct {
	DBPath              string  `yaml:"db_path" env:"KBASE_DB_PATH"`
	Language            string  `yaml:"language" env:"KBASE_LANGUAGE"`
	LogLevel            string  `yaml:"log_level" env:"KBASE_LOG_LEVEL"`
	SimilarityThreshold float64 `yaml:"similarity_threshold" env:"KBASE_SIMILARITY_THRESHOLD"`
	MaxPasses           int     `yaml:"max_passes" env:"KBASE_MAX_PASSES"`
	ChunkSize           int     `yaml:"chunk_size" env:"KBASE_CHUNK_SIZE"`
	MinSentence         int     `yaml:"min_sentence" env:"KBASE_MIN_SENTENCE"`
	PatternsPath        string  `yaml:"patterns_path" env:"KBASE_PATTERNS_PATH"`
	EntitiesPath        string  `yaml:"entities_path" env:"KBASE_ENTITIES_PATH"`
	Structural          bool    `yaml:"structural" env:"KBASE_STRUCTURAL"`
	Author              string  `yaml:"author" env:"KBASE_AUTHOR"`
}

// Default returns a Config populated with the defaults.
func Default() Config {
	return Config{
		DBPath:              DefaultDBPath,
		Language:            DefaultLanguage,
		LogLevel:            DefaultLogLevel,
		SimilarityThreshold: DefaultSimilarityThreshold,
		MaxPasses:           DefaultMaxPasses,
		ChunkSize:           DefaultChunkSize,
		MinSentence:         DefaultMinSentence,
		Structural:          true,
	}
}

// Load reads an optional .env file, then the YAML file at path (skipped when
// path is empty), then environment overrides, and validates the result.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %v: %w", path, err, internalerr.ErrInvalidConfig)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("environment: %v: %w", err, internalerr.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the rest of the system cannot work with.
func (c Config) Validate() error {
	switch {
	case c.Language != "ru" && c.Language != "en":
		return fmt.Errorf("unknown language %q: %w", c.Language, internalerr.ErrInvalidConfig)
	case c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1:
		return fmt.Errorf("similarity threshold %v outside [0,1]: %w", c.SimilarityThreshold, internalerr.ErrInvalidConfig)
	case c.MaxPasses <= 0:
		return fmt.Errorf("max passes must be positive: %w", internalerr.ErrInvalidConfig)
	case c.ChunkSize <= 0:
		return fmt.Errorf("chunk size must be positive: %w", internalerr.ErrInvalidConfig)
	case c.MinSentence < 0:
		return fmt.Errorf("min sentence length is negative: %w", internalerr.ErrInvalidConfig)
	case c.DBPath == "":
		return fmt.Errorf("db path is empty: %w", internalerr.ErrInvalidConfig)
	}
	return nil
}
