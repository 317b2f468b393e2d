package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/IshaanNene/ForumHarvest/internal/config"
	"github.com/IshaanNene/ForumHarvest/internal/discourse"
	"github.com/IshaanNene/ForumHarvest/internal/parser"
	"github.com/IshaanNene/ForumHarvest/internal/types"
)

// Getter is the slice of the access layer strategies need.
type Getter interface {
	Get(ctx context.Context, rawURL string, surface types.Surface) (*types.Response, error)
}

// lister holds what every listing strategy shares.
type lister struct {
	client     Getter
	site       *discourse.Site
	maxPages   int
	categories map[int64]string
	css        *parser.CSSParser
	logger     *slog.Logger
}

func newLister(client Getter, site *discourse.Site, cfg *config.Config, logger *slog.Logger) lister {
	cats := make(map[int64]string, len(cfg.Source.Categories))
	for _, c := range cfg.Source.Categories {
		cats[c.ID] = categoryLabel(c)
	}
	maxPages := cfg.Discovery.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}
	return lister{
		client:     client,
		site:       site,
		maxPages:   maxPages,
		categories: cats,
		css:        parser.NewCSSParser(logger),
		logger:     logger,
	}
}

func categoryLabel(c config.CategoryRef) string {
	if c.Name != "" {
		return c.Name
	}
	return c.Slug
}

// pageFunc builds the URL of a listing page for a surface.
type pageFunc func(page int, surface types.Surface) string

// listTopics walks a paginated topic_list endpoint and falls back to the markup
// listing when the first structured page fails. Structured pages are 0-based.
func (l *lister) listTopics(ctx context.Context, source string, pageURL pageFunc) ([]types.Topic, error) {
	var topics []types.Topic
	seen := make(map[int64]struct{})

	for page := 0; page < l.maxPages; page++ {
		u := pageURL(page, types.SurfaceJSON)
		list, err := l.fetchTopicList(ctx, u)
		if err != nil {
			if page == 0 {
				l.logger.Info("structured listing unusable, trying markup", "source", source, "url", u, "error", err)
				return l.markupTopics(ctx, source, pageURL(0, types.SurfaceMarkup))
			}
			l.logger.Warn("listing page failed, keeping earlier pages", "source", source, "page", page, "error", err)
			break
		}
		added := 0
		for _, s := range list.TopicList.Topics {
			if _, ok := seen[s.ID]; ok || s.ID <= 0 {
				continue
			}
			seen[s.ID] = struct{}{}
			topics = append(topics, l.fromSummary(s, source))
			added++
		}
		if added == 0 || list.TopicList.MoreTopicsURL == "" {
			break
		}
	}
	return topics, nil
}

func (l *lister) fetchTopicList(ctx context.Context, u string) (*discourse.TopicList, error) {
	resp, err := l.client.Get(ctx, u, types.SurfaceJSON)
	if err != nil {
		return nil, err
	}
	var list discourse.TopicList
	if err := discourse.Decode(resp, "topic_list", &list); err != nil {
		return nil, err
	}
	if list.TopicList == nil {
		return nil, &types.SchemaError{URL: u, Expect: "topic_list", Err: errors.New("missing topic_list")}
	}
	return &list, nil
}

// markupTopics reads topic links from a markup listing, following rel=next.
func (l *lister) markupTopics(ctx context.Context, source, start string) ([]types.Topic, error) {
	var topics []types.Topic
	seen := make(map[int64]struct{})
	visited := make(map[string]struct{})

	next := start
	for page := 0; next != "" && page < l.maxPages; page++ {
		if _, ok := visited[next]; ok {
			break
		}
		visited[next] = struct{}{}

		resp, err := l.client.Get(ctx, next, types.SurfaceMarkup)
		if err != nil {
			if page == 0 {
				return nil, err
			}
			break
		}
		links, err := l.css.TopicLinks(resp)
		if err != nil {
			if page == 0 {
				return nil, err
			}
			break
		}
		for _, link := range links {
			if _, ok := seen[link.ID]; ok {
				continue
			}
			seen[link.ID] = struct{}{}
			topics = append(topics, l.fromLink(link, source))
		}
		next = l.css.NextPage(resp)
	}
	if len(topics) == 0 {
		return nil, fmt.Errorf("%s: no topic links in markup listing %s", source, start)
	}
	return topics, nil
}

func (l *lister) fromSummary(s discourse.TopicSummary, source string) types.Topic {
	title := s.Title
	if title == "" {
		title = s.FancyTitle
	}
	last := discourse.ParseTime(s.LastPostedAt)
	if last.IsZero() {
		last = discourse.ParseTime(s.BumpedAt)
	}
	return types.Topic{
		ID:             s.ID,
		Title:          title,
		Slug:           s.Slug,
		Category:       l.categories[s.CategoryID],
		CategoryID:     s.CategoryID,
		CreatedAt:      discourse.ParseTime(s.CreatedAt),
		LastActivityAt: last,
		URL:            l.site.TopicPage(s.Slug, s.ID),
		Excerpt:        s.Excerpt,
		PostsCount:     s.PostsCount,
		Views:          s.Views,
		Source:         source,
	}
}

func (l *lister) fromLink(link parser.TopicLink, source string) types.Topic {
	return types.Topic{
		ID:     link.ID,
		Title:  link.Title,
		Slug:   link.Slug,
		URL:    l.site.TopicPage(link.Slug, link.ID),
		Source: source,
	}
}
