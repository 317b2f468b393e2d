package extractor

import (
	"context"
	"fmt"

	"github.com/IshaanNene/ForumHarvest/internal/discourse"
	"github.com/IshaanNene/ForumHarvest/internal/types"
)

// extractJSON reads /t/{id}.json, then loads the rest of the post stream in
// chunks. Topics without a stream id list are paged with ?page=N until a page
// adds nothing new. Failures after the first page end the walk but keep what
// was collected.
func (e *Extractor) extractJSON(ctx context.Context, topic types.Topic, stop types.ShutdownSignal) ([]types.RawPost, error) {
	first := e.site.TopicJSON(topic.ID, 1)
	resp, err := e.client.Get(ctx, first, types.SurfaceJSON)
	if err != nil {
		return nil, err
	}
	var detail discourse.TopicDetail
	if err := discourse.Decode(resp, "topic", &detail); err != nil {
		return nil, err
	}
	if detail.PostStream == nil || len(detail.PostStream.Posts) == 0 {
		return nil, &types.SchemaError{URL: first, Expect: "topic", Err: fmt.Errorf("post_stream has no posts")}
	}

	if topic.Title == "" {
		topic.Title = detail.Title
	}
	if topic.Slug == "" {
		topic.Slug = detail.Slug
	}
	meta := e.meta(topic)
	c := newCollector(e.cfg.MaxPostsPerTopic)
	loaded := make(map[int64]struct{})
	for _, p := range detail.PostStream.Posts {
		loaded[p.ID] = struct{}{}
		c.add(meta.fromJSON(p, len(c.posts)+1))
	}

	logger := e.logger.With("topic_id", topic.ID)
	if len(detail.PostStream.Stream) > 0 {
		var pending []int64
		for _, id := range detail.PostStream.Stream {
			if _, ok := loaded[id]; !ok {
				pending = append(pending, id)
			}
		}
		for start := 0; start < len(pending) && !c.full(); start += e.cfg.ChunkSize {
			if stopped(stop) {
				return c.result(), types.ErrRunStopped
			}
			end := min(start+e.cfg.ChunkSize, len(pending))
			posts, err := e.fetchChunk(ctx, topic.ID, pending[start:end])
			if err != nil {
				logger.Warn("post chunk failed, keeping partial topic", "offset", start, "error", err)
				break
			}
			for _, p := range posts {
				c.add(meta.fromJSON(p, len(c.posts)+1))
			}
		}
		return c.result(), nil
	}

	for page := 2; !c.full(); page++ {
		if stopped(stop) {
			return c.result(), types.ErrRunStopped
		}
		pageURL := e.site.TopicJSON(topic.ID, page)
		resp, err := e.client.Get(ctx, pageURL, types.SurfaceJSON)
		if err != nil {
			logger.Warn("topic page failed, keeping partial topic", "page", page, "error", err)
			break
		}
		var next discourse.TopicDetail
		if err := discourse.Decode(resp, "topic", &next); err != nil || next.PostStream == nil {
			break
		}
		added := 0
		for _, p := range next.PostStream.Posts {
			if c.add(meta.fromJSON(p, len(c.posts)+1)) {
				added++
			}
		}
		if added == 0 {
			break
		}
	}
	return c.result(), nil
}

func (e *Extractor) fetchChunk(ctx context.Context, topicID int64, ids []int64) ([]discourse.Post, error) {
	u := e.site.TopicPosts(topicID, ids)
	resp, err := e.client.Get(ctx, u, types.SurfaceJSON)
	if err != nil {
		return nil, err
	}
	var chunk discourse.PostsChunk
	if err := discourse.Decode(resp, "posts", &chunk); err != nil {
		return nil, err
	}
	if chunk.PostStream == nil {
		return nil, &types.SchemaError{URL: u, Expect: "posts", Err: fmt.Errorf("missing post_stream")}
	}
	return chunk.PostStream.Posts, nil
}
