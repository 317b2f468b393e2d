package parser

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/IshaanNene/ForumHarvest/internal/config"
	"github.com/IshaanNene/ForumHarvest/internal/types"
)

// MarkupPost is one post-like element located in topic markup. Fields hold
// raw values: Content is inner HTML, Time and Number are unparsed.
type MarkupPost struct {
	Content string
	Author  string
	Time    string
	Number  string
}

// PostParser locates posts in a response using one selector set.
type PostParser interface {
	ParsePosts(resp *types.Response, set config.SelectorSet) ([]MarkupPost, error)
}

// TopicLink is a topic reference found in a markup listing.
type TopicLink struct {
	ID    int64
	Slug  string
	Title string
	URL   string
}

// ParseTopicURL recovers the topic id and slug from an absolute topic URL such
// as a feed item link. The returned URL drops any post number and query.
func ParseTopicURL(raw string) (TopicLink, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return TopicLink{}, false
	}
	m := topicPath.FindStringSubmatch(u.Path)
	if m == nil {
		return TopicLink{}, false
	}
	id, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil || id <= 0 {
		return TopicLink{}, false
	}
	u.RawQuery = ""
	u.Fragment = ""
	if m[1] != "" {
		u.Path = "/t/" + m[1] + "/" + m[2]
	} else {
		u.Path = "/t/" + m[2]
	}
	return TopicLink{ID: id, Slug: m[1], URL: u.String()}, true
}
