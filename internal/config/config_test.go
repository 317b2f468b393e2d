package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := Validate(DefaultConfig()); err != nil {
		t.Fatalf("default config rejected: %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.MaxWorkers != 3 {
		t.Errorf("max_workers = %d, want 3", cfg.Engine.MaxWorkers)
	}
	if cfg.Storage.Type != "sqlite" {
		t.Errorf("storage.type = %q, want sqlite", cfg.Storage.Type)
	}
	if cfg.Relevance.Threshold != 1.0 {
		t.Errorf("threshold = %v, want 1.0", cfg.Relevance.Threshold)
	}
	if len(cfg.Extractor.SelectorSets) != len(DefaultSelectorSets()) {
		t.Errorf("selector sets = %d, want %d", len(cfg.Extractor.SelectorSets), len(DefaultSelectorSets()))
	}
	if len(cfg.Validation.ExcludePatterns) == 0 {
		t.Error("exclude patterns lost")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("HARVEST_ENGINE_MAX_WORKERS", "7")
	t.Setenv("HARVEST_FETCHER_POLITENESS_DELAY", "2s")
	t.Setenv("HARVEST_SOURCE_BASE_URL", "https://forum.example")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.MaxWorkers != 7 {
		t.Errorf("max_workers = %d, want 7", cfg.Engine.MaxWorkers)
	}
	if cfg.Fetcher.PolitenessDelay != 2*time.Second {
		t.Errorf("politeness_delay = %s, want 2s", cfg.Fetcher.PolitenessDelay)
	}
	if cfg.Source.BaseURL != "https://forum.example" {
		t.Errorf("base_url = %q", cfg.Source.BaseURL)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(dir, "custom.yaml")
	body := `
source:
  base_url: https://forum.example
  categories:
    - slug: courses/tds-kb
      id: 34
    - slug: courses/ds-kb
      id: 35
discovery:
  strategies: [latest, feed]
storage:
  path: /tmp/h.db
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Source.Categories) != 2 || cfg.Source.Categories[1].ID != 35 {
		t.Errorf("categories = %+v", cfg.Source.Categories)
	}
	if strings.Join(cfg.Discovery.Strategies, ",") != "latest,feed" {
		t.Errorf("strategies = %v", cfg.Discovery.Strategies)
	}
	if cfg.Storage.Path != "/tmp/h.db" {
		t.Errorf("storage.path = %q", cfg.Storage.Path)
	}
	if cfg.Engine.MaxWorkers != 3 {
		t.Errorf("unset keys must keep defaults, max_workers = %d", cfg.Engine.MaxWorkers)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad scheme", func(c *Config) { c.Source.BaseURL = "ftp://forum.example" }, "source.base_url"},
		{"no host", func(c *Config) { c.Source.BaseURL = "https://" }, "source.base_url"},
		{"category without id", func(c *Config) { c.Source.Categories = []CategoryRef{{Slug: "x"}} }, "source.categories"},
		{"zero workers", func(c *Config) { c.Engine.MaxWorkers = 0 }, "engine.max_workers"},
		{"too many workers", func(c *Config) { c.Engine.MaxWorkers = 65 }, "engine.max_workers"},
		{"negative retries", func(c *Config) { c.Fetcher.MaxRetries = -1 }, "fetcher.max_retries"},
		{"unknown fetcher", func(c *Config) { c.Fetcher.MarkupType = "curl" }, "fetcher type"},
		{"unknown strategy", func(c *Config) { c.Discovery.Strategies = []string{"latest", "sitemap"} }, "sitemap"},
		{"no strategies", func(c *Config) { c.Discovery.Strategies = nil }, "discovery.strategies"},
		{"bad selector type", func(c *Config) { c.Extractor.SelectorSets = []SelectorSet{{Name: "x", Type: "regex", Item: "a", Content: "b"}} }, "selector_sets[x]"},
		{"min above max", func(c *Config) { c.Validation.MinContentLength = 100; c.Validation.MaxContentLength = 10 }, "min_content_length"},
		{"unknown store", func(c *Config) { c.Storage.Type = "postgres" }, "storage.type"},
		{"sqlite without path", func(c *Config) { c.Storage.Path = "" }, "storage.path"},
		{"mongo without uri", func(c *Config) { c.Storage.Type = "mongodb"; c.Storage.MongoURI = "" }, "mongo_uri"},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"bad metrics port", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Port = 0 }, "metrics.port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}
