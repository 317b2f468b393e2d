package extractor

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/IshaanNene/ForumHarvest/internal/discourse"
	"github.com/IshaanNene/ForumHarvest/internal/parser"
	"github.com/IshaanNene/ForumHarvest/internal/types"
)

const unknownAuthor = "unknown"

// extractMarkup parses the human-facing topic page and follows rel=next links
// up to the configured page limit.
func (e *Extractor) extractMarkup(ctx context.Context, topic types.Topic, stop types.ShutdownSignal) ([]types.RawPost, error) {
	meta := e.meta(topic)
	c := newCollector(e.cfg.MaxPostsPerTopic)
	visited := make(map[string]struct{})
	logger := e.logger.With("topic_id", topic.ID)

	next := topicURL(e.site, topic)
	for page := 1; next != "" && page <= e.cfg.MaxMarkupPages && !c.full(); page++ {
		if page > 1 && stopped(stop) {
			return c.result(), types.ErrRunStopped
		}
		if _, ok := visited[next]; ok {
			break
		}
		visited[next] = struct{}{}

		resp, err := e.client.Get(ctx, next, types.SurfaceMarkup)
		if err != nil {
			if page == 1 {
				return nil, err
			}
			logger.Warn("markup page failed, keeping partial topic", "page", page, "error", err)
			break
		}
		posts, set, err := e.markup.ParsePosts(resp)
		if err != nil {
			if page == 1 {
				return nil, err
			}
			break
		}
		logger.Debug("parsed markup page", "page", page, "set", set, "posts", len(posts))
		for _, mp := range posts {
			c.add(meta.fromMarkup(mp, len(c.posts)+1))
		}
		next = e.markup.CSS().NextPage(resp)
	}
	return c.result(), nil
}

// topicMeta carries the per-topic fields copied onto every post.
type topicMeta struct {
	topicID int64
	title   string
	url     string
	cat     string
	at      time.Time
}

func (e *Extractor) meta(topic types.Topic) topicMeta {
	return topicMeta{
		topicID: topic.ID,
		title:   topic.Title,
		url:     topicURL(e.site, topic),
		cat:     topic.Category,
		at:      e.now().UTC(),
	}
}

func (m topicMeta) fromJSON(p discourse.Post, ordinal int) types.RawPost {
	number := p.PostNumber
	if number <= 0 {
		number = ordinal
	}
	return types.RawPost{
		TopicID:      m.topicID,
		PostNumber:   number,
		PostID:       p.ID,
		Author:       p.Username,
		CreatedRaw:   p.CreatedAt,
		UpdatedRaw:   p.UpdatedAt,
		Content:      p.Cooked,
		RawContent:   p.Raw,
		ReplyCount:   p.ReplyCount,
		LikeCount:    p.Likes(),
		TopicTitle:   m.title,
		TopicURL:     m.url,
		Category:     m.cat,
		ExtractedVia: types.SurfaceJSON,
		ExtractedAt:  m.at,
	}
}

func (m topicMeta) fromMarkup(p parser.MarkupPost, ordinal int) types.RawPost {
	number := ordinal
	if n, err := strconv.Atoi(strings.TrimSpace(p.Number)); err == nil && n > 0 {
		number = n
	}
	author := strings.TrimSpace(p.Author)
	if author == "" {
		author = unknownAuthor
	}
	return types.RawPost{
		TopicID:      m.topicID,
		PostNumber:   number,
		Author:       author,
		CreatedRaw:   p.Time,
		Content:      p.Content,
		TopicTitle:   m.title,
		TopicURL:     m.url,
		Category:     m.cat,
		ExtractedVia: types.SurfaceMarkup,
		ExtractedAt:  m.at,
	}
}
