package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configuration from file, environment, and defaults.
// Priority (highest to lowest): env vars > config file > defaults. CLI flags
// are applied by the caller on the returned struct.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// A missing .env is the normal case.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix("HARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("harvest")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".harvest"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if len(cfg.Extractor.SelectorSets) == 0 {
		cfg.Extractor.SelectorSets = DefaultSelectorSets()
	}

	return cfg, nil
}

// setDefaults registers scalar default values in viper so env overrides
// resolve. Slices come from DefaultConfig and are replaced wholesale by a file.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("source.base_url", cfg.Source.BaseURL)

	v.SetDefault("fetcher.type", cfg.Fetcher.Type)
	v.SetDefault("fetcher.markup_type", cfg.Fetcher.MarkupType)
	v.SetDefault("fetcher.request_timeout", cfg.Fetcher.RequestTimeout)
	v.SetDefault("fetcher.politeness_delay", cfg.Fetcher.PolitenessDelay)
	v.SetDefault("fetcher.max_retries", cfg.Fetcher.MaxRetries)
	v.SetDefault("fetcher.retry_base_delay", cfg.Fetcher.RetryBaseDelay)
	v.SetDefault("fetcher.retry_max_delay", cfg.Fetcher.RetryMaxDelay)
	v.SetDefault("fetcher.follow_redirects", cfg.Fetcher.FollowRedirects)
	v.SetDefault("fetcher.max_redirects", cfg.Fetcher.MaxRedirects)
	v.SetDefault("fetcher.max_body_size", cfg.Fetcher.MaxBodySize)
	v.SetDefault("fetcher.tls_insecure", cfg.Fetcher.TLSInsecure)
	v.SetDefault("fetcher.idle_conn_timeout", cfg.Fetcher.IdleConnTimeout)
	v.SetDefault("fetcher.max_idle_conns", cfg.Fetcher.MaxIdleConns)
	v.SetDefault("fetcher.stealth", cfg.Fetcher.Stealth)

	v.SetDefault("discovery.max_pages", cfg.Discovery.MaxPages)
	v.SetDefault("discovery.max_topics", cfg.Discovery.MaxTopics)

	v.SetDefault("relevance.threshold", cfg.Relevance.Threshold)
	v.SetDefault("relevance.technical_cap", cfg.Relevance.TechnicalCap)

	v.SetDefault("extractor.max_posts_per_topic", cfg.Extractor.MaxPostsPerTopic)
	v.SetDefault("extractor.chunk_size", cfg.Extractor.ChunkSize)
	v.SetDefault("extractor.max_markup_pages", cfg.Extractor.MaxMarkupPages)

	v.SetDefault("validation.min_content_length", cfg.Validation.MinContentLength)
	v.SetDefault("validation.max_content_length", cfg.Validation.MaxContentLength)
	v.SetDefault("validation.min_words", cfg.Validation.MinWords)

	v.SetDefault("engine.max_workers", cfg.Engine.MaxWorkers)
	v.SetDefault("engine.topic_timeout", cfg.Engine.TopicTimeout)

	v.SetDefault("storage.type", cfg.Storage.Type)
	v.SetDefault("storage.path", cfg.Storage.Path)
	v.SetDefault("storage.mongo_uri", cfg.Storage.MongoURI)
	v.SetDefault("storage.mongo_database", cfg.Storage.MongoDatabase)
	v.SetDefault("storage.batch_size", cfg.Storage.BatchSize)
	v.SetDefault("storage.output_json", cfg.Storage.OutputJSON)
	v.SetDefault("storage.output_csv", cfg.Storage.OutputCSV)
	v.SetDefault("storage.report_path", cfg.Storage.ReportPath)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}
