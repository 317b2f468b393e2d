// Package discourse holds the JSON shapes and URL layout of a Discourse
// forum. It has no transport of its own.
package discourse

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/IshaanNene/ForumHarvest/internal/types"
)

// likeActionID is the actions_summary id for likes.
const likeActionID = 2

// TopicList is the payload of /latest.json and /c/{slug}/{id}.json.
type TopicList struct {
	TopicList *struct {
		MoreTopicsURL string         `json:"more_topics_url"`
		PerPage       int            `json:"per_page"`
		Topics        []TopicSummary `json:"topics"`
	} `json:"topic_list"`
}

// TopicSummary is a topic row in listings and search results.
type TopicSummary struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	FancyTitle   string `json:"fancy_title"`
	Slug         string `json:"slug"`
	PostsCount   int    `json:"posts_count"`
	Views        int    `json:"views"`
	CategoryID   int64  `json:"category_id"`
	CreatedAt    string `json:"created_at"`
	LastPostedAt string `json:"last_posted_at"`
	BumpedAt     string `json:"bumped_at"`
	Excerpt      string `json:"excerpt"`
}

// SearchResult is the payload of /search.json.
type SearchResult struct {
	Topics              []TopicSummary `json:"topics"`
	Posts               []SearchPost   `json:"posts"`
	GroupedSearchResult *struct {
		MoreFullPageResults bool `json:"more_full_page_results"`
	} `json:"grouped_search_result"`
}

// SearchPost is a matching post in search results.
type SearchPost struct {
	ID        int64  `json:"id"`
	TopicID   int64  `json:"topic_id"`
	Username  string `json:"username"`
	CreatedAt string `json:"created_at"`
	Blurb     string `json:"blurb"`
}

// TopicDetail is the payload of /t/{id}.json.
type TopicDetail struct {
	ID           int64       `json:"id"`
	Title        string      `json:"title"`
	Slug         string      `json:"slug"`
	CategoryID   int64       `json:"category_id"`
	CreatedAt    string      `json:"created_at"`
	LastPostedAt string      `json:"last_posted_at"`
	PostsCount   int         `json:"posts_count"`
	Views        int         `json:"views"`
	PostStream   *PostStream `json:"post_stream"`
}

// PostsChunk is the payload of /t/{id}/posts.json.
type PostsChunk struct {
	PostStream *PostStream `json:"post_stream"`
}

// PostStream carries loaded posts and the ordered id list of the topic.
type PostStream struct {
	Posts  []Post  `json:"posts"`
	Stream []int64 `json:"stream"`
}

// Post is one post as served by the JSON API.
type Post struct {
	ID             int64           `json:"id"`
	PostNumber     int             `json:"post_number"`
	Username       string          `json:"username"`
	Name           string          `json:"name"`
	CreatedAt      string          `json:"created_at"`
	UpdatedAt      string          `json:"updated_at"`
	Cooked         string          `json:"cooked"`
	Raw            string          `json:"raw"`
	ReplyCount     int             `json:"reply_count"`
	LikeCount      *int            `json:"like_count"`
	ActionsSummary []ActionSummary `json:"actions_summary"`
}

type ActionSummary struct {
	ID    int `json:"id"`
	Count int `json:"count"`
}

// Likes returns the like count from actions_summary, falling back to the
// like_count field.
func (p Post) Likes() int {
	for _, a := range p.ActionsSummary {
		if a.ID == likeActionID {
			return a.Count
		}
	}
	if p.LikeCount != nil {
		return *p.LikeCount
	}
	return 0
}

// Decode unmarshals a structured response into v. Anything that is not the
// expected JSON shape comes back as *types.SchemaError.
func Decode(resp *types.Response, expect string, v any) error {
	body := bytes.TrimSpace(resp.Body)
	if len(body) == 0 {
		return &types.SchemaError{URL: resp.Request.URLString(), Expect: expect, Err: types.ErrEmptyResponse}
	}
	if body[0] != '{' && body[0] != '[' {
		ct := resp.MediaType()
		if ct == "" {
			ct = "unknown content type"
		}
		return &types.SchemaError{URL: resp.Request.URLString(), Expect: expect, Err: errors.New("not JSON: " + ct)}
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &types.SchemaError{URL: resp.Request.URLString(), Expect: expect, Err: err}
	}
	return nil
}

// ParseTime parses the ISO timestamps used in Discourse payloads. It returns
// the zero time for empty or malformed values.
func ParseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
