package pipeline

import (
	"log/slog"

	"github.com/IshaanNene/ForumHarvest/internal/types"
)

// Record carries one extracted post through the pipeline. Post is filled in
// progressively by the middleware chain.
type Record struct {
	Raw  types.RawPost
	Post *types.Post
}

// Middleware is one validation or normalization stage.
type Middleware interface {
	// Name returns the middleware's identifier.
	Name() string

	// Process inspects or transforms rec. A non-nil Rejection drops the
	// record and stops the chain.
	Process(rec *Record) *types.Rejection
}

// Pipeline chains middleware processors together.
type Pipeline struct {
	middlewares []Middleware
	logger      *slog.Logger
}

// New creates a new Pipeline.
func New(logger *slog.Logger) *Pipeline {
	return &Pipeline{
		logger: logger.With("component", "pipeline"),
	}
}

// Use adds a middleware to the pipeline chain.
func (p *Pipeline) Use(mw Middleware) {
	p.middlewares = append(p.middlewares, mw)
	p.logger.Debug("middleware added", "name", mw.Name(), "position", len(p.middlewares))
}

// Process runs raw through all middleware in order.
func (p *Pipeline) Process(raw types.RawPost, runID string) (*types.Post, *types.Rejection) {
	rec := &Record{Raw: raw, Post: newPost(raw, runID)}

	for _, mw := range p.middlewares {
		if rej := mw.Process(rec); rej != nil {
			if rej.Key == (types.PostKey{}) {
				rej.Key = rec.Post.Key()
			}
			p.logger.Debug("record rejected",
				"stage", mw.Name(),
				"topic_id", raw.TopicID,
				"post_number", raw.PostNumber,
				"reason", rej.Reason,
			)
			return nil, rej
		}
	}

	return rec.Post, nil
}

// Len returns the number of middleware in the chain.
func (p *Pipeline) Len() int {
	return len(p.middlewares)
}

func newPost(raw types.RawPost, runID string) *types.Post {
	rawContent := raw.RawContent
	if rawContent == "" {
		rawContent = raw.Content
	}
	return &types.Post{
		TopicID:      raw.TopicID,
		PostNumber:   raw.PostNumber,
		PostID:       raw.PostID,
		Author:       raw.Author,
		RawContent:   rawContent,
		ReplyCount:   raw.ReplyCount,
		LikeCount:    raw.LikeCount,
		TopicTitle:   raw.TopicTitle,
		TopicURL:     raw.TopicURL,
		Category:     raw.Category,
		ExtractedVia: raw.ExtractedVia,
		RunID:        runID,
	}
}
