package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for a harvest run.
type Config struct {
	Source     SourceConfig     `mapstructure:"source"     yaml:"source"`
	Fetcher    FetcherConfig    `mapstructure:"fetcher"    yaml:"fetcher"`
	Discovery  DiscoveryConfig  `mapstructure:"discovery"  yaml:"discovery"`
	Relevance  RelevanceConfig  `mapstructure:"relevance"  yaml:"relevance"`
	Extractor  ExtractorConfig  `mapstructure:"extractor"  yaml:"extractor"`
	Validation ValidationConfig `mapstructure:"validation" yaml:"validation"`
	Engine     EngineConfig     `mapstructure:"engine"     yaml:"engine"`
	Storage    StorageConfig    `mapstructure:"storage"    yaml:"storage"`
	Logging    LoggingConfig    `mapstructure:"logging"    yaml:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"    yaml:"metrics"`
}

// SourceConfig describes the upstream forum.
type SourceConfig struct {
	BaseURL       string        `mapstructure:"base_url"       yaml:"base_url"`
	Categories    []CategoryRef `mapstructure:"categories"     yaml:"categories"`
	SearchQueries []string      `mapstructure:"search_queries" yaml:"search_queries"`
}

// CategoryRef identifies a forum category by slug path and numeric id.
type CategoryRef struct {
	Slug string `mapstructure:"slug" yaml:"slug"` // e.g. "courses/tds-kb"
	ID   int64  `mapstructure:"id"   yaml:"id"`
	Name string `mapstructure:"name" yaml:"name"`
}

// FetcherConfig controls the HTTP access layer.
type FetcherConfig struct {
	Type            string        `mapstructure:"type"              yaml:"type"`        // structured surface: http, browser
	MarkupType      string        `mapstructure:"markup_type"       yaml:"markup_type"` // markup surface: http, browser
	RequestTimeout  time.Duration `mapstructure:"request_timeout"   yaml:"request_timeout"`
	PolitenessDelay time.Duration `mapstructure:"politeness_delay"  yaml:"politeness_delay"`
	MaxRetries      int           `mapstructure:"max_retries"       yaml:"max_retries"`
	RetryBaseDelay  time.Duration `mapstructure:"retry_base_delay"  yaml:"retry_base_delay"`
	RetryMaxDelay   time.Duration `mapstructure:"retry_max_delay"   yaml:"retry_max_delay"`
	UserAgents      []string      `mapstructure:"user_agents"       yaml:"user_agents"`
	FollowRedirects bool          `mapstructure:"follow_redirects"  yaml:"follow_redirects"`
	MaxRedirects    int           `mapstructure:"max_redirects"     yaml:"max_redirects"`
	MaxBodySize     int64         `mapstructure:"max_body_size"     yaml:"max_body_size"`
	TLSInsecure     bool          `mapstructure:"tls_insecure"      yaml:"tls_insecure"`
	IdleConnTimeout time.Duration `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    yaml:"max_idle_conns"`
	Stealth         bool          `mapstructure:"stealth"           yaml:"stealth"`
}

// DiscoveryConfig controls topic discovery.
type DiscoveryConfig struct {
	Strategies []string `mapstructure:"strategies" yaml:"strategies"`
	MaxPages   int      `mapstructure:"max_pages"  yaml:"max_pages"`
	MaxTopics  int      `mapstructure:"max_topics" yaml:"max_topics"`
}

// RelevanceConfig holds the keyword tiers used to score topics.
type RelevanceConfig struct {
	Primary      []string `mapstructure:"primary"       yaml:"primary"`
	Assignment   []string `mapstructure:"assignment"    yaml:"assignment"`
	Secondary    []string `mapstructure:"secondary"     yaml:"secondary"`
	Technical    []string `mapstructure:"technical"     yaml:"technical"`
	Threshold    float64  `mapstructure:"threshold"     yaml:"threshold"`
	TechnicalCap float64  `mapstructure:"technical_cap" yaml:"technical_cap"`
}

// ExtractorConfig controls per-topic post extraction.
type ExtractorConfig struct {
	MaxPostsPerTopic int           `mapstructure:"max_posts_per_topic" yaml:"max_posts_per_topic"`
	ChunkSize        int           `mapstructure:"chunk_size"          yaml:"chunk_size"`
	MaxMarkupPages   int           `mapstructure:"max_markup_pages"    yaml:"max_markup_pages"`
	SelectorSets     []SelectorSet `mapstructure:"selector_sets"       yaml:"selector_sets"`
}

// SelectorSet is one structural heuristic for locating posts in markup.
// Empty field selectors mean the field is not available for this set.
type SelectorSet struct {
	Name       string `mapstructure:"name"        yaml:"name"`
	Type       string `mapstructure:"type"        yaml:"type"` // css, xpath
	Item       string `mapstructure:"item"        yaml:"item"`
	Content    string `mapstructure:"content"     yaml:"content"`
	Author     string `mapstructure:"author"      yaml:"author"`
	Time       string `mapstructure:"time"        yaml:"time"`
	TimeAttr   string `mapstructure:"time_attr"   yaml:"time_attr"`
	Number     string `mapstructure:"number"      yaml:"number"`
	NumberAttr string `mapstructure:"number_attr" yaml:"number_attr"`
}

// ValidationConfig controls record validation.
type ValidationConfig struct {
	MinContentLength int      `mapstructure:"min_content_length" yaml:"min_content_length"`
	MaxContentLength int      `mapstructure:"max_content_length" yaml:"max_content_length"`
	MinWords         int      `mapstructure:"min_words"          yaml:"min_words"`
	ExcludePatterns  []string `mapstructure:"exclude_patterns"   yaml:"exclude_patterns"`
}

// EngineConfig controls the parallel fetch coordinator.
type EngineConfig struct {
	MaxWorkers   int           `mapstructure:"max_workers"   yaml:"max_workers"`
	TopicTimeout time.Duration `mapstructure:"topic_timeout" yaml:"topic_timeout"`
}

// StorageConfig controls persistence and output files.
type StorageConfig struct {
	Type          string `mapstructure:"type"           yaml:"type"` // sqlite, mongodb
	Path          string `mapstructure:"path"           yaml:"path"`
	MongoURI      string `mapstructure:"mongo_uri"      yaml:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database" yaml:"mongo_database"`
	BatchSize     int    `mapstructure:"batch_size"     yaml:"batch_size"`
	OutputJSON    string `mapstructure:"output_json"    yaml:"output_json"`
	OutputCSV     string `mapstructure:"output_csv"     yaml:"output_csv"`
	ReportPath    string `mapstructure:"report_path"    yaml:"report_path"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// DefaultSelectorSets are tried in order against topic markup.
func DefaultSelectorSets() []SelectorSet {
	return []SelectorSet{
		{
			// Discourse no-JS crawler view.
			Name:       "crawler_post",
			Type:       "css",
			Item:       "div.crawler-post",
			Content:    ".post[itemprop='text'], .post",
			Author:     "[itemprop='author'] [itemprop='name'], .creator a",
			Time:       "time[itemprop='datePublished'], meta[itemprop='datePublished'], time",
			TimeAttr:   "datetime",
			Number:     "[itemprop='position']",
			NumberAttr: "content",
		},
		{
			// Rendered ember view.
			Name:       "topic_post",
			Type:       "css",
			Item:       "article[data-post-id], div.topic-post",
			Content:    ".cooked",
			Author:     ".names .username a, .username",
			Time:       ".post-date [data-time], .relative-date",
			TimeAttr:   "data-time",
			Number:     "",
			NumberAttr: "data-post-number",
		},
		{
			Name:    "generic_post",
			Type:    "xpath",
			Item:    "//div[contains(concat(' ', normalize-space(@class), ' '), ' post ')]",
			Content: ".",
			Author:  ".//*[contains(@class, 'author') or contains(@class, 'username')]",
			Time:    ".//time",
		},
	}
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			BaseURL: "https://discourse.onlinedegree.iitm.ac.in",
			Categories: []CategoryRef{
				{Slug: "courses/tds-kb", ID: 34, Name: "TDS KB"},
			},
			SearchQueries: []string{"tds", "tools in data science"},
		},
		Fetcher: FetcherConfig{
			Type:            "http",
			MarkupType:      "http",
			RequestTimeout:  30 * time.Second,
			PolitenessDelay: 500 * time.Millisecond,
			MaxRetries:      3,
			RetryBaseDelay:  1 * time.Second,
			RetryMaxDelay:   30 * time.Second,
			UserAgents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
			},
			FollowRedirects: true,
			MaxRedirects:    10,
			MaxBodySize:     10 * 1024 * 1024, // 10MB
			IdleConnTimeout: 90 * time.Second,
			MaxIdleConns:    20,
		},
		Discovery: DiscoveryConfig{
			Strategies: []string{"latest", "category", "search", "feed"},
			MaxPages:   5,
			MaxTopics:  200,
		},
		Relevance: RelevanceConfig{
			Primary:    []string{"tds", "tools in data science"},
			Assignment: []string{"ga1", "ga2", "ga3", "ga4", "ga5", "ga6", "ga7", "graded assignment", "project 1", "project 2", "roe"},
			Secondary:  []string{"deadline", "submission", "evaluation", "grading", "score", "dashboard", "bonus", "quiz", "exam"},
			Technical: []string{
				"python", "docker", "podman", "vercel", "github", "api", "llm", "gpt",
				"fastapi", "pandas", "sql", "json", "git", "deployment", "embedding", "vector",
			},
			Threshold:    1.0,
			TechnicalCap: 2.0,
		},
		Extractor: ExtractorConfig{
			MaxPostsPerTopic: 500,
			ChunkSize:        20,
			MaxMarkupPages:   25,
			SelectorSets:     DefaultSelectorSets(),
		},
		Validation: ValidationConfig{
			MinContentLength: 20,
			MaxContentLength: 50000,
			MinWords:         3,
			ExcludePatterns: []string{
				"[deleted]",
				"[removed]",
				"this post was flagged",
				"post withdrawn by author",
			},
		},
		Engine: EngineConfig{
			MaxWorkers:   3,
			TopicTimeout: 5 * time.Minute,
		},
		Storage: StorageConfig{
			Type:          "sqlite",
			Path:          "./output/harvest.db",
			MongoURI:      "mongodb://localhost:27017",
			MongoDatabase: "harvest",
			BatchSize:     50,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}
