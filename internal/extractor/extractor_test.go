package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/IshaanNene/ForumHarvest/internal/config"
	"github.com/IshaanNene/ForumHarvest/internal/discourse"
	"github.com/IshaanNene/ForumHarvest/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

// fakeGetter serves canned bodies by exact URL; anything else is a 404.
type fakeGetter struct {
	mu     sync.Mutex
	bodies map[string]string
	calls  []string
	after  func(url string)
}

func (f *fakeGetter) Get(_ context.Context, rawURL string, surface types.Surface) (*types.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, rawURL)
	body, ok := f.bodies[rawURL]
	f.mu.Unlock()
	if f.after != nil {
		f.after(rawURL)
	}
	if !ok {
		return nil, &types.FetchError{URL: rawURL, Kind: types.KindHTTPStatus, StatusCode: 404, Err: errors.New("not found")}
	}
	req, _ := types.NewRequest(rawURL, surface)
	ct := "application/json"
	if surface == types.SurfaceMarkup {
		ct = "text/html"
	}
	return &types.Response{Request: req, StatusCode: 200, Body: []byte(body), ContentType: ct, FinalURL: rawURL}, nil
}

type flag struct{ on bool }

func (f *flag) ShutdownRequested() bool { return f.on }

func jsonPost(id int64, number int, user string) string {
	return fmt.Sprintf(`{"id":%d,"post_number":%d,"username":%q,"created_at":"2025-01-0%dT10:00:00.000Z",`+
		`"cooked":"<p>post %d body text here</p>","raw":"post %d body text here","reply_count":1,`+
		`"actions_summary":[{"id":2,"count":%d}]}`, id, number, user, number%9+1, number, number, number)
}

func newTestSite(t *testing.T) *discourse.Site {
	t.Helper()
	site, err := discourse.NewSite("https://forum.example/")
	if err != nil {
		t.Fatal(err)
	}
	return site
}

var fixedNow = func() time.Time { return time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC) }

func testTopic() types.Topic {
	return types.Topic{ID: 500, Title: "GA5 Question 8", Slug: "ga5-question-8", Category: "TDS KB"}
}

func TestExtractJSONWithStream(t *testing.T) {
	site := newTestSite(t)
	g := &fakeGetter{bodies: map[string]string{
		site.TopicJSON(500, 1): `{"id":500,"title":"GA5 Question 8","slug":"ga5-question-8","post_stream":{"posts":[` +
			jsonPost(10, 1, "alice") + `,` + jsonPost(11, 2, "bob") + `],"stream":[10,11,12,13,14]}}`,
		site.TopicPosts(500, []int64{12, 13}): `{"post_stream":{"posts":[` + jsonPost(12, 3, "carol") + `,` + jsonPost(13, 4, "dave") + `]}}`,
		site.TopicPosts(500, []int64{14}):     `{"post_stream":{"posts":[` + jsonPost(14, 5, "erin") + `]}}`,
	}}
	cfg := config.ExtractorConfig{MaxPostsPerTopic: 100, ChunkSize: 2}
	ex := New(g, site, cfg, testLogger, WithNow(fixedNow))

	posts, err := ex.Extract(context.Background(), testTopic(), nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(posts) != 5 {
		t.Fatalf("got %d posts, want 5", len(posts))
	}
	for i, p := range posts {
		if p.PostNumber != i+1 {
			t.Errorf("posts[%d].PostNumber = %d", i, p.PostNumber)
		}
		if p.ExtractedVia != types.SurfaceJSON {
			t.Errorf("posts[%d].ExtractedVia = %q", i, p.ExtractedVia)
		}
	}
	first := posts[0]
	if first.Author != "alice" || first.PostID != 10 || first.LikeCount != 1 || first.ReplyCount != 1 {
		t.Errorf("first post = %+v", first)
	}
	if first.RawContent != "post 1 body text here" || !strings.Contains(first.Content, "<p>") {
		t.Errorf("content fields = %q / %q", first.Content, first.RawContent)
	}
	if first.TopicURL != "https://forum.example/t/ga5-question-8/500" || first.Category != "TDS KB" {
		t.Errorf("topic fields = %q / %q", first.TopicURL, first.Category)
	}
	if !first.ExtractedAt.Equal(fixedNow()) {
		t.Errorf("ExtractedAt = %v", first.ExtractedAt)
	}
	if len(g.calls) != 3 {
		t.Errorf("calls = %v, want 3", g.calls)
	}
}

func TestExtractJSONPaged(t *testing.T) {
	site := newTestSite(t)
	g := &fakeGetter{bodies: map[string]string{
		site.TopicJSON(500, 1): `{"id":500,"post_stream":{"posts":[` + jsonPost(10, 1, "alice") + `]}}`,
		site.TopicJSON(500, 2): `{"id":500,"post_stream":{"posts":[` + jsonPost(11, 2, "bob") + `]}}`,
		site.TopicJSON(500, 3): `{"id":500,"post_stream":{"posts":[` + jsonPost(11, 2, "bob") + `]}}`,
	}}
	ex := New(g, site, config.ExtractorConfig{ChunkSize: 20}, testLogger)

	posts, err := ex.Extract(context.Background(), testTopic(), nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("got %d posts, want 2", len(posts))
	}
	if len(g.calls) != 3 {
		t.Errorf("calls = %v, want paging to stop after a page with nothing new", g.calls)
	}
}

func TestExtractCap(t *testing.T) {
	site := newTestSite(t)
	var posts []string
	var stream []string
	for i := 1; i <= 6; i++ {
		posts = append(posts, jsonPost(int64(i), i, "user"))
		stream = append(stream, fmt.Sprint(i))
	}
	g := &fakeGetter{bodies: map[string]string{
		site.TopicJSON(500, 1): `{"id":500,"post_stream":{"posts":[` + strings.Join(posts, ",") + `],"stream":[` + strings.Join(stream, ",") + `]}}`,
	}}
	ex := New(g, site, config.ExtractorConfig{MaxPostsPerTopic: 3}, testLogger)

	got, err := ex.Extract(context.Background(), testTopic(), nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d posts, want cap of 3", len(got))
	}
}

const markupPage1 = `<html><head><link rel="next" href="/t/ga5-question-8/500?page=2"></head><body>
<div id="post_1" class="crawler-post">
  <span class="creator" itemprop="author"><span itemprop="name">alice</span></span>
  <time itemprop="datePublished" datetime="2025-01-05T10:00:00Z">Jan 5</time>
  <div class="post" itemprop="text"><p>First markup post body</p></div>
</div>
<div class="crawler-post">
  <time datetime="2025-01-05T11:00:00Z">Jan 5</time>
  <div class="post" itemprop="text"><p>Anonymous markup post body</p></div>
</div>
</body></html>`

const markupPage2 = `<html><head><link rel="next" href="/t/ga5-question-8/500"></head><body>
<div id="post_7" class="crawler-post">
  <span class="creator" itemprop="author"><span itemprop="name">bob</span></span>
  <div class="post" itemprop="text"><p>Second page markup post</p></div>
</div>
</body></html>`

func TestExtractFallsBackToMarkup(t *testing.T) {
	site := newTestSite(t)
	g := &fakeGetter{bodies: map[string]string{
		site.TopicJSON(500, 1):                              `<html><body>login required</body></html>`,
		"https://forum.example/t/ga5-question-8/500":        markupPage1,
		"https://forum.example/t/ga5-question-8/500?page=2": markupPage2,
	}}
	ex := New(g, site, config.ExtractorConfig{MaxMarkupPages: 5}, testLogger)

	posts, err := ex.Extract(context.Background(), testTopic(), nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(posts) != 3 {
		t.Fatalf("got %d posts, want 3", len(posts))
	}
	if posts[0].Author != "alice" || posts[0].PostNumber != 1 || posts[0].CreatedRaw != "2025-01-05T10:00:00Z" {
		t.Errorf("posts[0] = %+v", posts[0])
	}
	if posts[1].Author != unknownAuthor || posts[1].PostNumber != 2 {
		t.Errorf("posts[1] author=%q number=%d", posts[1].Author, posts[1].PostNumber)
	}
	if posts[2].PostNumber != 7 || posts[2].ExtractedVia != types.SurfaceMarkup {
		t.Errorf("posts[2] number=%d via=%q", posts[2].PostNumber, posts[2].ExtractedVia)
	}
	// page 2 links back to page 1, which must not be fetched again
	if len(g.calls) != 3 {
		t.Errorf("calls = %v", g.calls)
	}
}

func TestExtractBothSurfacesFail(t *testing.T) {
	ex := New(&fakeGetter{}, newTestSite(t), config.ExtractorConfig{}, testLogger)

	posts, err := ex.Extract(context.Background(), testTopic(), nil)
	if !errors.Is(err, types.ErrExtractionFailed) {
		t.Fatalf("err = %v, want ErrExtractionFailed", err)
	}
	if posts != nil {
		t.Errorf("posts = %v, want nil", posts)
	}
}

func TestExtractStopsBetweenPages(t *testing.T) {
	site := newTestSite(t)
	stop := &flag{}
	g := &fakeGetter{
		bodies: map[string]string{
			site.TopicJSON(500, 1):            `{"id":500,"post_stream":{"posts":[` + jsonPost(10, 1, "alice") + `],"stream":[10,11,12]}}`,
			site.TopicPosts(500, []int64{11}): `{"post_stream":{"posts":[` + jsonPost(11, 2, "bob") + `]}}`,
		},
		after: func(string) { stop.on = true },
	}
	ex := New(g, site, config.ExtractorConfig{ChunkSize: 1}, testLogger)

	posts, err := ex.Extract(context.Background(), testTopic(), stop)
	if !errors.Is(err, types.ErrRunStopped) {
		t.Fatalf("err = %v, want ErrRunStopped", err)
	}
	if len(posts) != 1 || posts[0].Author != "alice" {
		t.Errorf("posts = %+v, want the first page only", posts)
	}
	if len(g.calls) != 1 {
		t.Errorf("calls = %v", g.calls)
	}
}
