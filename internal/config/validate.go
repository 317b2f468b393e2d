package config

import (
	"fmt"
	"net/url"
)

var knownStrategies = map[string]bool{
	"latest": true, "category": true, "search": true, "feed": true,
}

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if err := ValidateURL(cfg.Source.BaseURL); err != nil {
		return fmt.Errorf("source.base_url: %w", err)
	}
	for _, c := range cfg.Source.Categories {
		if c.Slug == "" || c.ID <= 0 {
			return fmt.Errorf("source.categories: slug and positive id required, got %+v", c)
		}
	}

	if cfg.Fetcher.RequestTimeout <= 0 {
		return fmt.Errorf("fetcher.request_timeout must be > 0")
	}
	if cfg.Fetcher.PolitenessDelay < 0 {
		return fmt.Errorf("fetcher.politeness_delay must be >= 0")
	}
	if cfg.Fetcher.MaxRetries < 0 {
		return fmt.Errorf("fetcher.max_retries must be >= 0, got %d", cfg.Fetcher.MaxRetries)
	}
	if cfg.Fetcher.RetryBaseDelay < 0 || cfg.Fetcher.RetryMaxDelay < cfg.Fetcher.RetryBaseDelay {
		return fmt.Errorf("fetcher.retry_base_delay must be >= 0 and <= fetcher.retry_max_delay")
	}
	if cfg.Fetcher.MaxBodySize <= 0 {
		return fmt.Errorf("fetcher.max_body_size must be > 0")
	}
	for _, t := range []string{cfg.Fetcher.Type, cfg.Fetcher.MarkupType} {
		if t != "http" && t != "browser" {
			return fmt.Errorf("fetcher type must be 'http' or 'browser', got %q", t)
		}
	}

	if len(cfg.Discovery.Strategies) == 0 {
		return fmt.Errorf("discovery.strategies must name at least one strategy")
	}
	for _, s := range cfg.Discovery.Strategies {
		if !knownStrategies[s] {
			return fmt.Errorf("discovery.strategies: unknown strategy %q (valid: latest, category, search, feed)", s)
		}
	}
	if cfg.Discovery.MaxPages < 1 {
		return fmt.Errorf("discovery.max_pages must be >= 1, got %d", cfg.Discovery.MaxPages)
	}
	if cfg.Discovery.MaxTopics < 1 {
		return fmt.Errorf("discovery.max_topics must be >= 1, got %d", cfg.Discovery.MaxTopics)
	}

	if cfg.Relevance.Threshold < 0 || cfg.Relevance.TechnicalCap < 0 {
		return fmt.Errorf("relevance.threshold and relevance.technical_cap must be >= 0")
	}

	if cfg.Extractor.MaxPostsPerTopic < 1 {
		return fmt.Errorf("extractor.max_posts_per_topic must be >= 1")
	}
	if cfg.Extractor.ChunkSize < 1 {
		return fmt.Errorf("extractor.chunk_size must be >= 1")
	}
	for _, s := range cfg.Extractor.SelectorSets {
		if s.Type != "css" && s.Type != "xpath" {
			return fmt.Errorf("extractor.selector_sets[%s]: type must be 'css' or 'xpath', got %q", s.Name, s.Type)
		}
		if s.Item == "" || s.Content == "" {
			return fmt.Errorf("extractor.selector_sets[%s]: item and content selectors are required", s.Name)
		}
	}

	if cfg.Validation.MinContentLength < 0 || cfg.Validation.MaxContentLength < cfg.Validation.MinContentLength {
		return fmt.Errorf("validation: need 0 <= min_content_length <= max_content_length")
	}
	if cfg.Validation.MinWords < 0 {
		return fmt.Errorf("validation.min_words must be >= 0")
	}

	if cfg.Engine.MaxWorkers < 1 || cfg.Engine.MaxWorkers > 64 {
		return fmt.Errorf("engine.max_workers must be 1-64, got %d", cfg.Engine.MaxWorkers)
	}
	if cfg.Engine.TopicTimeout < 0 {
		return fmt.Errorf("engine.topic_timeout must be >= 0")
	}

	switch cfg.Storage.Type {
	case "sqlite":
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for sqlite")
		}
	case "mongodb":
		if cfg.Storage.MongoURI == "" || cfg.Storage.MongoDatabase == "" {
			return fmt.Errorf("storage.mongo_uri and storage.mongo_database are required for mongodb")
		}
	default:
		return fmt.Errorf("storage.type %q is not supported (valid: sqlite, mongodb)", cfg.Storage.Type)
	}
	if cfg.Storage.BatchSize < 1 {
		return fmt.Errorf("storage.batch_size must be >= 1")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}

	return nil
}

// ValidateURL checks if a URL string is a usable forum base address.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
