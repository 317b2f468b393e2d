package parser

import (
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/ForumHarvest/internal/config"
	"github.com/IshaanNene/ForumHarvest/internal/types"
)

// topicPath matches /t/{slug}/{id} and /t/{id}, optionally followed by a
// post number.
var topicPath = regexp.MustCompile(`^/t/(?:([^/]+)/)?(\d+)(?:/\d+)?/?$`)

// postIDAttr matches element ids like "post_12".
var postIDAttr = regexp.MustCompile(`^post_(\d+)$`)

// timeAttrs are tried after the selector set's own attribute.
var timeAttrs = []string{"datetime", "content", "data-time", "title"}

// CSSParser extracts data using CSS selectors via goquery.
type CSSParser struct {
	logger *slog.Logger
}

// NewCSSParser creates a new CSS selector parser.
func NewCSSParser(logger *slog.Logger) *CSSParser {
	return &CSSParser{
		logger: logger.With("component", "css_parser"),
	}
}

// ParsePosts implements PostParser.
func (p *CSSParser) ParsePosts(resp *types.Response, set config.SelectorSet) ([]MarkupPost, error) {
	doc, err := resp.Document()
	if err != nil {
		return nil, &types.ParseError{URL: resp.Request.URLString(), Selector: set.Item, Err: err}
	}

	var posts []MarkupPost
	doc.Find(set.Item).Each(func(i int, item *goquery.Selection) {
		content := item.Find(set.Content).First()
		if content.Length() == 0 {
			return
		}
		html, _ := content.Html()
		if strings.TrimSpace(html) == "" {
			return
		}

		mp := MarkupPost{Content: html}
		if set.Author != "" {
			mp.Author = strings.TrimSpace(item.Find(set.Author).First().Text())
		}
		if set.Time != "" {
			mp.Time = timeValue(item.Find(set.Time).First(), set.TimeAttr)
		}
		mp.Number = numberValue(item, set)
		posts = append(posts, mp)
	})

	return posts, nil
}

func timeValue(sel *goquery.Selection, attr string) string {
	if sel.Length() == 0 {
		return ""
	}
	for _, a := range append([]string{attr}, timeAttrs...) {
		if a == "" {
			continue
		}
		if v, ok := sel.Attr(a); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return strings.TrimSpace(sel.Text())
}

func numberValue(item *goquery.Selection, set config.SelectorSet) string {
	target := item
	if set.Number != "" {
		target = item.Find(set.Number).First()
	}
	if target.Length() > 0 {
		if set.NumberAttr != "" {
			if v, ok := target.Attr(set.NumberAttr); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
		if set.Number != "" {
			if v := strings.TrimSpace(target.Text()); v != "" {
				return v
			}
		}
	}
	if id, ok := item.Attr("id"); ok {
		if m := postIDAttr.FindStringSubmatch(id); m != nil {
			return m[1]
		}
	}
	return ""
}

// TopicLinks finds every link of the form /t/{slug}/{id} in a listing page.
// Links are returned in document order, one per topic id.
func (p *CSSParser) TopicLinks(resp *types.Response) ([]TopicLink, error) {
	doc, err := resp.Document()
	if err != nil {
		return nil, &types.ParseError{URL: resp.Request.URLString(), Selector: `a[href*="/t/"]`, Err: err}
	}
	base, err := url.Parse(resp.FinalURL)
	if err != nil {
		return nil, &types.ParseError{URL: resp.FinalURL, Err: err}
	}

	index := make(map[int64]int)
	var links []TopicLink

	doc.Find(`a[href*="/t/"]`).Each(func(i int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref)
		if resolved.Host != base.Host {
			return
		}
		m := topicPath.FindStringSubmatch(resolved.Path)
		if m == nil {
			return
		}
		id, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil || id <= 0 {
			return
		}

		title := strings.Join(strings.Fields(sel.Text()), " ")
		if pos, ok := index[id]; ok {
			// Byline and "last post" links repeat the topic without a title.
			if links[pos].Title == "" && title != "" {
				links[pos].Title = title
			}
			if links[pos].Slug == "" && m[1] != "" {
				links[pos].Slug = m[1]
			}
			return
		}

		resolved.RawQuery = ""
		resolved.Fragment = ""
		canonical := *resolved
		if m[1] != "" {
			canonical.Path = "/t/" + m[1] + "/" + m[2]
		} else {
			canonical.Path = "/t/" + m[2]
		}

		index[id] = len(links)
		links = append(links, TopicLink{ID: id, Slug: m[1], Title: title, URL: canonical.String()})
	})

	return links, nil
}

// NextPage returns the absolute rel=next URL of a page, or "".
func (p *CSSParser) NextPage(resp *types.Response) string {
	doc, err := resp.Document()
	if err != nil {
		return ""
	}
	href, ok := doc.Find(`link[rel="next"], a[rel="next"]`).First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return ""
	}
	base, err := url.Parse(resp.FinalURL)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
