package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/IshaanNene/ForumHarvest/internal/config"
	"github.com/IshaanNene/ForumHarvest/internal/discourse"
	"github.com/IshaanNene/ForumHarvest/internal/types"
)

// Strategy names as used in configuration.
const (
	StrategyLatest   = "latest"
	StrategyCategory = "category"
	StrategySearch   = "search"
	StrategyFeed     = "feed"
)

// LatestStrategy walks the latest-topics listing.
type LatestStrategy struct {
	lister
}

func NewLatestStrategy(client Getter, site *discourse.Site, cfg *config.Config, logger *slog.Logger) *LatestStrategy {
	return &LatestStrategy{lister: newLister(client, site, cfg, logger.With("component", "strategy_latest"))}
}

func (s *LatestStrategy) Name() string { return StrategyLatest }

func (s *LatestStrategy) Discover(ctx context.Context, _ types.Window) ([]types.Topic, error) {
	return s.listTopics(ctx, StrategyLatest, s.site.Latest)
}

// CategoryStrategy walks the listing of each configured category.
type CategoryStrategy struct {
	lister
	refs []config.CategoryRef
}

func NewCategoryStrategy(client Getter, site *discourse.Site, cfg *config.Config, logger *slog.Logger) *CategoryStrategy {
	return &CategoryStrategy{
		lister: newLister(client, site, cfg, logger.With("component", "strategy_category")),
		refs:   cfg.Source.Categories,
	}
}

func (s *CategoryStrategy) Name() string { return StrategyCategory }

// Discover fails only when every category failed.
func (s *CategoryStrategy) Discover(ctx context.Context, _ types.Window) ([]types.Topic, error) {
	if len(s.refs) == 0 {
		return nil, errors.New("no categories configured")
	}
	var lists [][]types.Topic
	var errs []error
	for _, ref := range s.refs {
		topics, err := s.listTopics(ctx, StrategyCategory, func(page int, surface types.Surface) string {
			return s.site.Category(ref.Slug, ref.ID, page, surface)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("category %s/%d: %w", ref.Slug, ref.ID, err))
			continue
		}
		label := categoryLabel(ref)
		for i := range topics {
			if topics[i].Category == "" {
				topics[i].Category = label
				topics[i].CategoryID = ref.ID
			}
		}
		lists = append(lists, topics)
	}
	if len(lists) == 0 {
		return nil, errors.Join(errs...)
	}
	for _, err := range errs {
		s.logger.Warn("category listing failed", "error", err)
	}
	return Merge(lists...), nil
}

// SearchStrategy runs each configured query restricted to the window.
type SearchStrategy struct {
	lister
	queries []string
}

func NewSearchStrategy(client Getter, site *discourse.Site, cfg *config.Config, logger *slog.Logger) *SearchStrategy {
	return &SearchStrategy{
		lister:  newLister(client, site, cfg, logger.With("component", "strategy_search")),
		queries: cfg.Source.SearchQueries,
	}
}

func (s *SearchStrategy) Name() string { return StrategySearch }

// Discover fails only when every query failed.
func (s *SearchStrategy) Discover(ctx context.Context, window types.Window) ([]types.Topic, error) {
	if len(s.queries) == 0 {
		return nil, errors.New("no search queries configured")
	}
	var lists [][]types.Topic
	var errs []error
	for _, q := range s.queries {
		topics, err := s.search(ctx, q, window)
		if err != nil {
			errs = append(errs, fmt.Errorf("query %q: %w", q, err))
			continue
		}
		lists = append(lists, topics)
	}
	if len(lists) == 0 {
		return nil, errors.Join(errs...)
	}
	for _, err := range errs {
		s.logger.Warn("search failed", "error", err)
	}
	return Merge(lists...), nil
}

func (s *SearchStrategy) search(ctx context.Context, query string, window types.Window) ([]types.Topic, error) {
	var topics []types.Topic
	seen := make(map[int64]struct{})

	for page := 1; page <= s.maxPages; page++ {
		u := s.site.Search(query, window, page, types.SurfaceJSON)
		result, err := s.fetchSearch(ctx, u)
		if err != nil {
			if page == 1 {
				s.logger.Info("structured search unusable, trying markup", "query", query, "error", err)
				return s.markupTopics(ctx, StrategySearch, s.site.Search(query, window, 1, types.SurfaceMarkup))
			}
			break
		}

		blurbs := make(map[int64]string, len(result.Posts))
		for _, p := range result.Posts {
			if _, ok := blurbs[p.TopicID]; !ok {
				blurbs[p.TopicID] = p.Blurb
			}
		}
		added := 0
		for _, ts := range result.Topics {
			if _, ok := seen[ts.ID]; ok || ts.ID <= 0 {
				continue
			}
			seen[ts.ID] = struct{}{}
			if ts.Excerpt == "" {
				ts.Excerpt = blurbs[ts.ID]
			}
			topics = append(topics, s.fromSummary(ts, StrategySearch))
			added++
		}
		more := result.GroupedSearchResult != nil && result.GroupedSearchResult.MoreFullPageResults
		if added == 0 || !more {
			break
		}
	}
	return topics, nil
}

func (s *SearchStrategy) fetchSearch(ctx context.Context, u string) (*discourse.SearchResult, error) {
	resp, err := s.client.Get(ctx, u, types.SurfaceJSON)
	if err != nil {
		return nil, err
	}
	var result discourse.SearchResult
	if err := discourse.Decode(resp, "search", &result); err != nil {
		return nil, err
	}
	return &result, nil
}
