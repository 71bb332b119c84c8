package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cognicore/kbase/pkg/kbase/internalerr"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load with no file should succeed: %v", err)
	}
	if cfg != Default() {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestLoadFileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kbase.yaml")
	content := "db_path: /tmp/kb.db\nlanguage: en\nsimilarity_threshold: 0.5\nmax_passes: 20\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("KBASE_MAX_PASSES", "7")
	t.Setenv("KBASE_AUTHOR", "Иванов")
	t.Setenv("KBASE_STRUCTURAL", "false")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "/tmp/kb.db" || cfg.Language != "en" || cfg.SimilarityThreshold != 0.5 {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.MaxPasses != 7 {
		t.Errorf("environment should override file, got max passes %d", cfg.MaxPasses)
	}
	if cfg.Author != "Иванов" {
		t.Errorf("author = %q", cfg.Author)
	}
	if cfg.Structural {
		t.Error("KBASE_STRUCTURAL=false should disable the structural pass")
	}
	if cfg.ChunkSize != DefaultChunkSize {
		t.Errorf("unset fields keep defaults, got chunk size %d", cfg.ChunkSize)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load("/nonexistent/kbase.yaml"); err == nil {
		t.Error("missing file should error")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(bad, []byte("language: [unclosed\n"), 0644)
	if _, err := Load(bad); !errors.Is(err, internalerr.ErrInvalidConfig) {
		t.Errorf("malformed YAML should be ErrInvalidConfig, got %v", err)
	}

	t.Setenv("KBASE_MAX_PASSES", "many")
	if _, err := Load(""); !errors.Is(err, internalerr.ErrInvalidConfig) {
		t.Errorf("bad environment value should be ErrInvalidConfig, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"english", func(c *Config) { c.Language = "en" }, true},
		{"unknown language", func(c *Config) { c.Language = "de" }, false},
		{"threshold above one", func(c *Config) { c.SimilarityThreshold = 1.5 }, false},
		{"negative threshold", func(c *Config) { c.SimilarityThreshold = -0.1 }, false},
		{"zero passes", func(c *Config) { c.MaxPasses = 0 }, false},
		{"zero chunk", func(c *Config) { c.ChunkSize = 0 }, false},
		{"negative min sentence", func(c *Config) { c.MinSentence = -1 }, false},
		{"empty db path", func(c *Config) { c.DBPath = "" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, internalerr.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}
