package parser

import (
	"log/slog"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/IshaanNene/ForumHarvest/internal/config"
	"github.com/IshaanNene/ForumHarvest/internal/types"
)

// XPathParser extracts posts using XPath expressions.
type XPathParser struct {
	logger *slog.Logger
}

// NewXPathParser creates a new XPath parser.
func NewXPathParser(logger *slog.Logger) *XPathParser {
	return &XPathParser{
		logger: logger.With("component", "xpath_parser"),
	}
}

// ParsePosts implements PostParser. Field expressions are evaluated
// relative to each item node.
func (p *XPathParser) ParsePosts(resp *types.Response, set config.SelectorSet) ([]MarkupPost, error) {
	doc, err := html.Parse(resp.BodyReader())
	if err != nil {
		return nil, &types.ParseError{URL: resp.Request.URLString(), Selector: set.Item, Err: err}
	}

	items, err := htmlquery.QueryAll(doc, set.Item)
	if err != nil {
		return nil, &types.ParseError{URL: resp.Request.URLString(), Selector: set.Item, Err: err}
	}

	var posts []MarkupPost
	for _, item := range items {
		content := p.queryOne(item, set.Content)
		if content == nil {
			continue
		}
		body := htmlquery.OutputHTML(content, false)
		if strings.TrimSpace(body) == "" {
			continue
		}

		mp := MarkupPost{Content: body}
		if n := p.queryOne(item, set.Author); n != nil {
			mp.Author = strings.TrimSpace(htmlquery.InnerText(n))
		}
		if n := p.queryOne(item, set.Time); n != nil {
			mp.Time = nodeTime(n, set.TimeAttr)
		}
		if n := p.queryOne(item, set.Number); n != nil {
			if set.NumberAttr != "" {
				mp.Number = strings.TrimSpace(htmlquery.SelectAttr(n, set.NumberAttr))
			}
			if mp.Number == "" {
				mp.Number = strings.TrimSpace(htmlquery.InnerText(n))
			}
		}
		posts = append(posts, mp)
	}

	return posts, nil
}

func (p *XPathParser) queryOne(node *html.Node, expr string) *html.Node {
	if expr == "" {
		return nil
	}
	n, err := htmlquery.Query(node, expr)
	if err != nil {
		p.logger.Warn("invalid xpath", "selector", expr, "error", err)
		return nil
	}
	return n
}

func nodeTime(n *html.Node, attr string) string {
	for _, a := range append([]string{attr}, timeAttrs...) {
		if a == "" {
			continue
		}
		if v := strings.TrimSpace(htmlquery.SelectAttr(n, a)); v != "" {
			return v
		}
	}
	return strings.TrimSpace(htmlquery.InnerText(n))
}
