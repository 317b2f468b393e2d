package discourse

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/IshaanNene/ForumHarvest/internal/types"
)

// Site builds endpoint URLs for one forum.
type Site struct {
	base string
}

// NewSite normalizes baseURL and returns a Site.
func NewSite(baseURL string) (*Site, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w %q", types.ErrInvalidURL, baseURL)
	}
	u.RawQuery = ""
	u.Fragment = ""
	return &Site{base: strings.TrimRight(u.String(), "/")}, nil
}

// Base returns the normalized base URL.
func (s *Site) Base() string { return s.base }

func withPage(u string, page int) string {
	if page <= 0 {
		return u
	}
	return u + "?page=" + strconv.Itoa(page)
}

// Latest returns the latest-topics listing. Pages are 0-based.
func (s *Site) Latest(page int, surface types.Surface) string {
	if surface == types.SurfaceJSON {
		return withPage(s.base+"/latest.json", page)
	}
	return withPage(s.base+"/latest", page)
}

// Category returns a category listing. Pages are 0-based.
func (s *Site) Category(slug string, id int64, page int, surface types.Surface) string {
	path := fmt.Sprintf("%s/c/%s/%d", s.base, strings.Trim(slug, "/"), id)
	if surface == types.SurfaceJSON {
		return withPage(path+".json", page)
	}
	return withPage(path, page)
}

// Search returns a search URL restricted to the window. Discourse treats
// before: as exclusive, so the day after the window end is used. Pages are
// 1-based.
func (s *Site) Search(query string, window types.Window, page int, surface types.Surface) string {
	q := fmt.Sprintf("%s after:%s before:%s",
		query,
		window.Start.Format(types.DateLayout),
		window.End.AddDate(0, 0, 1).Format(types.DateLayout),
	)
	v := url.Values{"q": {q}}
	if page > 1 {
		v.Set("page", strconv.Itoa(page))
	}
	path := s.base + "/search"
	if surface == types.SurfaceJSON {
		path += ".json"
	}
	return path + "?" + v.Encode()
}

// LatestFeed returns the RSS feed of latest topics.
func (s *Site) LatestFeed() string { return s.base + "/latest.rss" }

// CategoryFeed returns the RSS feed of a category.
func (s *Site) CategoryFeed(slug string, id int64) string {
	return fmt.Sprintf("%s/c/%s/%d.rss", s.base, strings.Trim(slug, "/"), id)
}

// TopicJSON returns the structured topic endpoint. Pages are 1-based and
// page 1 is the bare URL.
func (s *Site) TopicJSON(id int64, page int) string {
	u := fmt.Sprintf("%s/t/%d.json", s.base, id)
	if page > 1 {
		u += "?page=" + strconv.Itoa(page)
	}
	return u
}

// TopicPosts returns the endpoint that loads specific posts of a topic.
func (s *Site) TopicPosts(id int64, postIDs []int64) string {
	v := url.Values{}
	for _, pid := range postIDs {
		v.Add("post_ids[]", strconv.FormatInt(pid, 10))
	}
	return fmt.Sprintf("%s/t/%d/posts.json?%s", s.base, id, v.Encode())
}

// TopicPage returns the canonical human-facing topic URL.
func (s *Site) TopicPage(slug string, id int64) string {
	if slug == "" {
		return fmt.Sprintf("%s/t/%d", s.base, id)
	}
	return fmt.Sprintf("%s/t/%s/%d", s.base, slug, id)
}
