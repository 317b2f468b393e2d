// Package extractor turns one discovered topic into its ordered list of raw
// posts. The structured surface is tried first; markup is the fallback.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IshaanNene/ForumHarvest/internal/config"
	"github.com/IshaanNene/ForumHarvest/internal/discourse"
	"github.com/IshaanNene/ForumHarvest/internal/parser"
	"github.com/IshaanNene/ForumHarvest/internal/types"
)

// Getter is the slice of the access layer the extractor needs.
type Getter interface {
	Get(ctx context.Context, rawURL string, surface types.Surface) (*types.Response, error)
}

// Extractor fetches the posts of a topic.
type Extractor struct {
	client Getter
	site   *discourse.Site
	cfg    config.ExtractorConfig
	markup *parser.CompositeParser
	now    func() time.Time
	logger *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithNow sets the clock used for ExtractedAt.
func WithNow(now func() time.Time) Option {
	return func(e *Extractor) { e.now = now }
}

// New creates an Extractor for the forum at site.
func New(client Getter, site *discourse.Site, cfg config.ExtractorConfig, logger *slog.Logger, opts ...Option) *Extractor {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 20
	}
	if cfg.MaxMarkupPages <= 0 {
		cfg.MaxMarkupPages = 1
	}
	sets := cfg.SelectorSets
	if len(sets) == 0 {
		sets = config.DefaultSelectorSets()
	}
	e := &Extractor{
		client: client,
		site:   site,
		cfg:    cfg,
		markup: parser.NewCompositeParser(sets, logger),
		now:    time.Now,
		logger: logger.With("component", "extractor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the topic's posts in extraction order. stop is polled
// between pages; when it fires, whatever was already collected is returned
// with types.ErrRunStopped. The error wraps types.ErrExtractionFailed only
// when both surfaces failed.
func (e *Extractor) Extract(ctx context.Context, topic types.Topic, stop types.ShutdownSignal) ([]types.RawPost, error) {
	logger := e.logger.With("topic_id", topic.ID)

	posts, jsonErr := e.extractJSON(ctx, topic, stop)
	if jsonErr == nil || errors.Is(jsonErr, types.ErrRunStopped) {
		return posts, jsonErr
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var schemaErr *types.SchemaError
	if errors.As(jsonErr, &schemaErr) {
		logger.Info("structured surface unusable, falling back to markup", "error", jsonErr)
	} else {
		logger.Warn("structured fetch failed, falling back to markup", "error", jsonErr)
	}

	posts, markupErr := e.extractMarkup(ctx, topic, stop)
	if markupErr == nil || errors.Is(markupErr, types.ErrRunStopped) {
		return posts, markupErr
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, fmt.Errorf("%w: topic %d: json: %v; markup: %v", types.ErrExtractionFailed, topic.ID, jsonErr, markupErr)
}

func stopped(stop types.ShutdownSignal) bool {
	return stop != nil && stop.ShutdownRequested()
}

// collector accumulates posts for one topic, dropping repeats and enforcing
// the per-topic cap.
type collector struct {
	limit int
	seen  map[int]struct{}
	posts []types.RawPost
}

func newCollector(limit int) *collector {
	return &collector{limit: limit, seen: make(map[int]struct{})}
}

// add appends p unless its post number was already seen. It reports whether
// the post was new.
func (c *collector) add(p types.RawPost) bool {
	if _, dup := c.seen[p.PostNumber]; dup {
		return false
	}
	c.seen[p.PostNumber] = struct{}{}
	c.posts = append(c.posts, p)
	return true
}

func (c *collector) full() bool {
	return c.limit > 0 && len(c.posts) >= c.limit
}

func (c *collector) result() []types.RawPost {
	if c.limit > 0 && len(c.posts) > c.limit {
		return c.posts[:c.limit]
	}
	return c.posts
}

func topicURL(site *discourse.Site, topic types.Topic) string {
	if topic.URL != "" {
		return topic.URL
	}
	return site.TopicPage(topic.Slug, topic.ID)
}
