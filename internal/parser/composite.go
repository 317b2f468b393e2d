package parser

import (
	"log/slog"

	"github.com/IshaanNene/ForumHarvest/internal/config"
	"github.com/IshaanNene/ForumHarvest/internal/types"
)

// CompositeParser tries an ordered list of selector sets, delegating each to
// the parser for its type. The first set yielding posts wins.
type CompositeParser struct {
	css    *CSSParser
	xpath  *XPathParser
	sets   []config.SelectorSet
	logger *slog.Logger
}

// NewCompositeParser creates a parser over the given selector sets.
func NewCompositeParser(sets []config.SelectorSet, logger *slog.Logger) *CompositeParser {
	return &CompositeParser{
		css:    NewCSSParser(logger),
		xpath:  NewXPathParser(logger),
		sets:   sets,
		logger: logger.With("component", "composite_parser"),
	}
}

// CSS exposes the CSS parser for listing and pagination helpers.
func (p *CompositeParser) CSS() *CSSParser { return p.css }

// ParsePosts returns the posts found by the first matching set and its name.
// It fails with types.ErrNoPosts when no set matches.
func (p *CompositeParser) ParsePosts(resp *types.Response) ([]MarkupPost, string, error) {
	for _, set := range p.sets {
		var impl PostParser = p.css
		if set.Type == "xpath" {
			impl = p.xpath
		}

		posts, err := impl.ParsePosts(resp, set)
		if err != nil {
			p.logger.Warn("selector set failed", "set", set.Name, "error", err)
			continue
		}
		if len(posts) > 0 {
			p.logger.Debug("selector set matched", "set", set.Name, "posts", len(posts))
			return posts, set.Name, nil
		}
	}
	return nil, "", &types.ParseError{URL: resp.Request.URLString(), Err: types.ErrNoPosts}
}
