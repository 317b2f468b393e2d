package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/IshaanNene/ForumHarvest/internal/config"
	"github.com/IshaanNene/ForumHarvest/internal/discourse"
	"github.com/IshaanNene/ForumHarvest/internal/parser"
	"github.com/IshaanNene/ForumHarvest/internal/pipeline"
	"github.com/IshaanNene/ForumHarvest/internal/types"
)

// FeedStrategy reads the latest RSS feed and the feed of every configured
// category. Topic ids come from item links.
type FeedStrategy struct {
	client Getter
	site   *discourse.Site
	refs   []config.CategoryRef
	logger *slog.Logger
}

func NewFeedStrategy(client Getter, site *discourse.Site, cfg *config.Config, logger *slog.Logger) *FeedStrategy {
	return &FeedStrategy{
		client: client,
		site:   site,
		refs:   cfg.Source.Categories,
		logger: logger.With("component", "strategy_feed"),
	}
}

func (s *FeedStrategy) Name() string { return StrategyFeed }

// Discover fails only when every feed failed.
func (s *FeedStrategy) Discover(ctx context.Context, _ types.Window) ([]types.Topic, error) {
	type feedRef struct {
		url   string
		label string
		id    int64
	}
	feeds := []feedRef{{url: s.site.LatestFeed()}}
	for _, ref := range s.refs {
		feeds = append(feeds, feedRef{url: s.site.CategoryFeed(ref.Slug, ref.ID), label: categoryLabel(ref), id: ref.ID})
	}

	var lists [][]types.Topic
	var errs []error
	for _, f := range feeds {
		feed, err := s.fetch(ctx, f.url)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		lists = append(lists, s.topics(feed, f.label, f.id))
	}
	if len(lists) == 0 {
		return nil, errors.Join(errs...)
	}
	for _, err := range errs {
		s.logger.Warn("feed failed", "error", err)
	}
	return Merge(lists...), nil
}

func (s *FeedStrategy) fetch(ctx context.Context, u string) (*gofeed.Feed, error) {
	resp, err := s.client.Get(ctx, u, types.SurfaceFeed)
	if err != nil {
		return nil, err
	}
	feed, err := gofeed.NewParser().Parse(resp.BodyReader())
	if err != nil {
		return nil, &types.SchemaError{URL: u, Expect: "rss", Err: fmt.Errorf("parse feed: %w", err)}
	}
	return feed, nil
}

func (s *FeedStrategy) topics(feed *gofeed.Feed, label string, categoryID int64) []types.Topic {
	var out []types.Topic
	for _, item := range feed.Items {
		link, ok := parser.ParseTopicURL(item.Link)
		if !ok {
			continue
		}
		t := types.Topic{
			ID:         link.ID,
			Title:      strings.TrimSpace(item.Title),
			Slug:       link.Slug,
			Category:   label,
			CategoryID: categoryID,
			URL:        s.site.TopicPage(link.Slug, link.ID),
			Excerpt:    pipeline.Clean(item.Description),
			Source:     StrategyFeed,
		}
		if t.Category == "" && len(item.Categories) > 0 {
			t.Category = item.Categories[0]
		}
		// Feed dates are the item's publication, which only bounds the
		// start of the topic's activity.
		if item.PublishedParsed != nil {
			t.CreatedAt = item.PublishedParsed.UTC()
		}
		if item.UpdatedParsed != nil {
			t.LastActivityAt = item.UpdatedParsed.UTC()
		}
		out = append(out, t)
	}
	return out
}

// NewStrategies builds the configured strategies in order.
func NewStrategies(names []string, client Getter, site *discourse.Site, cfg *config.Config, logger *slog.Logger) ([]Strategy, error) {
	var out []Strategy
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case StrategyLatest:
			out = append(out, NewLatestStrategy(client, site, cfg, logger))
		case StrategyCategory:
			out = append(out, NewCategoryStrategy(client, site, cfg, logger))
		case StrategySearch:
			out = append(out, NewSearchStrategy(client, site, cfg, logger))
		case StrategyFeed:
			out = append(out, NewFeedStrategy(client, site, cfg, logger))
		default:
			return nil, fmt.Errorf("unknown discovery strategy %q", name)
		}
	}
	return out, nil
}

