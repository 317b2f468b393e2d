package harvest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/IshaanNene/ForumHarvest/internal/config"
	"github.com/IshaanNene/ForumHarvest/internal/engine"
	"github.com/IshaanNene/ForumHarvest/internal/storage"
	"github.com/IshaanNene/ForumHarvest/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func jsonPost(id int64, number int, user, created, body string) string {
	return fmt.Sprintf(`{"id":%d,"post_number":%d,"username":%q,"created_at":%q,"cooked":%q,"raw":%q,"reply_count":0,"actions_summary":[{"id":2,"count":1}]}`,
		id, number, user, created, "<p>"+body+"</p>", body)
}

// fakeForum serves a small Discourse instance: two relevant topics in the
// latest listing and one irrelevant one. Topic 2 has a post from December.
type fakeForum struct {
	mu   sync.Mutex
	hits map[string]int
}

func (f *fakeForum) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.hits[r.URL.Path]++
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/latest.json":
		fmt.Fprint(w, `{"topic_list":{"topics":[
			{"id":1,"title":"GA5 Question 8 Clarification","slug":"ga5-question-8","created_at":"2025-01-05T09:00:00.000Z","last_posted_at":"2025-01-07T12:00:00.000Z"},
			{"id":2,"title":"TDS project deadline","slug":"tds-project-deadline","created_at":"2024-12-15T09:00:00.000Z","last_posted_at":"2025-01-10T12:00:00.000Z"},
			{"id":3,"title":"Random Thread","slug":"random-thread","created_at":"2025-01-08T09:00:00.000Z"}
		]}}`)
	case "/t/1.json":
		fmt.Fprintf(w, `{"id":1,"title":"GA5 Question 8 Clarification","post_stream":{"posts":[%s,%s,%s],"stream":[11,12,13]}}`,
			jsonPost(11, 1, "alice", "2025-01-05T10:00:00.000Z", "How should question eight be submitted exactly?"),
			jsonPost(12, 2, "bob", "2025-01-06T10:00:00.000Z", "Submit the notebook link through the portal form."),
			jsonPost(13, 3, "alice", "2025-01-07T10:00:00.000Z", "Thanks, that worked for my submission today."),
		)
	case "/t/2.json":
		fmt.Fprintf(w, `{"id":2,"title":"TDS project deadline","post_stream":{"posts":[%s,%s],"stream":[21,22]}}`,
			jsonPost(21, 1, "carol", "2024-12-15T10:00:00.000Z", "When is the project deadline for this term?"),
			jsonPost(22, 2, "dave", "2025-01-10T10:00:00.000Z", "The deadline moved to the end of January."),
		)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeForum) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Source.BaseURL = baseURL
	cfg.Discovery.Strategies = []string{"latest"}
	cfg.Discovery.MaxPages = 1
	cfg.Fetcher.PolitenessDelay = 0
	cfg.Fetcher.MaxRetries = 0
	cfg.Fetcher.RetryBaseDelay = time.Millisecond
	cfg.Fetcher.RequestTimeout = 5 * time.Second
	cfg.Engine.MaxWorkers = 2
	cfg.Engine.TopicTimeout = 10 * time.Second
	cfg.Storage.Path = filepath.Join(dir, "harvest.db")
	cfg.Storage.BatchSize = 2
	cfg.Storage.OutputJSON = filepath.Join(dir, "out", "posts.json")
	cfg.Storage.OutputCSV = filepath.Join(dir, "out", "posts.csv")
	cfg.Storage.ReportPath = filepath.Join(dir, "out", "report.json")
	return cfg
}

func januaryRun(t *testing.T, baseURL string) *engine.RunContext {
	t.Helper()
	w, err := types.NewWindow("2025-01-01", "2025-01-31")
	if err != nil {
		t.Fatal(err)
	}
	return engine.NewRunContext(baseURL, w, engine.WithNow(func() time.Time {
		return time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	}))
}

func openStore(t *testing.T, cfg *config.Config) storage.Store {
	t.Helper()
	s, err := storage.NewSQLiteStore(context.Background(), cfg.Storage.Path, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestHarvestEndToEnd(t *testing.T) {
	forum := &fakeForum{hits: make(map[string]int)}
	srv := httptest.NewServer(forum)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	store := openStore(t, cfg)

	sum, err := New(cfg, testLogger, WithStore(store)).Run(context.Background(), januaryRun(t, srv.URL))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Run.PostsPersisted != 4 {
		t.Errorf("PostsPersisted = %d, want 4", sum.Run.PostsPersisted)
	}
	if sum.Run.PostsRejected != 1 || sum.Report.Rejections[string(types.RejectOutOfRange)] != 1 {
		t.Errorf("rejections = %d %v, want one out_of_range", sum.Run.PostsRejected, sum.Report.Rejections)
	}
	if sum.Run.TopicsDiscovered != 2 {
		t.Errorf("TopicsDiscovered = %d, want 2", sum.Run.TopicsDiscovered)
	}
	if forum.count("/t/3.json") != 0 {
		t.Error("irrelevant topic was fetched")
	}

	ctx := context.Background()
	n, err := store.CountPosts(ctx)
	if err != nil || n != 4 {
		t.Fatalf("stored posts = %d, %v; want 4", n, err)
	}
	posts, err := store.ListPosts(ctx, storage.PostFilter{})
	if err != nil {
		t.Fatal(err)
	}
	w := januaryRun(t, srv.URL).Window
	for _, p := range posts {
		if !p.DateUnparsed && !w.Contains(p.CreatedAt) {
			t.Errorf("post %s outside window: %v", p.Key(), p.CreatedAt)
		}
		if p.RunID != sum.Run.ID || p.ContentHash == "" || strings.Contains(p.Content, "<p>") {
			t.Errorf("post %s = %+v", p.Key(), p)
		}
	}

	env, err := storage.ReadEnvelope(cfg.Storage.OutputJSON)
	if err != nil {
		t.Fatalf("ReadEnvelope: %v", err)
	}
	if env.TotalPosts != 4 || env.BaseURL != srv.URL {
		t.Errorf("envelope total=%d base=%q", env.TotalPosts, env.BaseURL)
	}
	for _, path := range []string{cfg.Storage.OutputCSV, cfg.Storage.ReportPath} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("missing output %s: %v", path, err)
		}
	}
}

// storedRecords maps every stored post key to its content hash.
func storedRecords(t *testing.T, store storage.Store) map[types.PostKey]string {
	t.Helper()
	posts, err := store.ListPosts(context.Background(), storage.PostFilter{})
	if err != nil {
		t.Fatal(err)
	}
	out := make(map[types.PostKey]string, len(posts))
	for _, p := range posts {
		out[p.Key()] = p.ContentHash
	}
	return out
}

func TestHarvestTwiceIsIdempotent(t *testing.T) {
	srv := httptest.NewServer(&fakeForum{hits: make(map[string]int)})
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	store := openStore(t, cfg)
	h := New(cfg, testLogger, WithStore(store))

	var first map[types.PostKey]string
	for i := range 2 {
		sum, err := h.Run(context.Background(), januaryRun(t, srv.URL))
		if err != nil {
			t.Fatalf("run %d: %v", i+1, err)
		}
		if sum.Run.PostsPersisted != 4 {
			t.Errorf("run %d persisted %d, want 4", i+1, sum.Run.PostsPersisted)
		}
		got := storedRecords(t, store)
		if i == 0 {
			first = got
			continue
		}
		if !maps.Equal(first, got) {
			t.Errorf("record set changed between runs:\nfirst  %v\nsecond %v", first, got)
		}
	}
	if len(first) != 4 {
		t.Errorf("stored %d records, want 4", len(first))
	}
}

// crossPostForum lists two topics whose only post has the same body. The
// topic named by slow answers late, so the other one validates first.
type crossPostForum struct {
	mu   sync.Mutex
	slow int64
}

func (f *crossPostForum) setSlow(id int64) {
	f.mu.Lock()
	f.slow = id
	f.mu.Unlock()
}

func (f *crossPostForum) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	slow := f.slow
	f.mu.Unlock()

	const body = "Reminder: the GA5 submission portal closes on Sunday night."
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/latest.json":
		fmt.Fprint(w, `{"topic_list":{"topics":[
			{"id":1,"title":"GA5 Question 8 Clarification","slug":"ga5-question-8","created_at":"2025-01-05T09:00:00.000Z"},
			{"id":2,"title":"GA5 Question 9 Clarification","slug":"ga5-question-9","created_at":"2025-01-05T09:00:00.000Z"}
		]}}`)
	case "/t/1.json", "/t/2.json":
		var id int64 = 1
		if r.URL.Path == "/t/2.json" {
			id = 2
		}
		if id == slow {
			time.Sleep(150 * time.Millisecond)
		}
		fmt.Fprintf(w, `{"id":%d,"title":"GA5 Question Clarification","post_stream":{"posts":[%s],"stream":[%d]}}`,
			id, jsonPost(id*10+1, 1, "tds-bot", "2025-01-05T10:00:00.000Z", body), id*10+1)
	default:
		http.NotFound(w, r)
	}
}

func TestHarvestCrossPostedContentKeepsOwnerAcrossRuns(t *testing.T) {
	forum := &crossPostForum{}
	srv := httptest.NewServer(forum)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	store := openStore(t, cfg)
	h := New(cfg, testLogger, WithStore(store))

	forum.setSlow(1)
	if _, err := h.Run(context.Background(), januaryRun(t, srv.URL)); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first := storedRecords(t, store)
	if len(first) != 1 {
		t.Fatalf("first run stored %v, want a single owner", first)
	}

	// The other topic now answers first.
	forum.setSlow(2)
	sum, err := h.Run(context.Background(), januaryRun(t, srv.URL))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if got := storedRecords(t, store); !maps.Equal(first, got) {
		t.Errorf("record set changed between runs:\nfirst  %v\nsecond %v", first, got)
	}
	if sum.Report.Rejections[string(types.RejectDuplicate)] != 1 {
		t.Errorf("rejections = %v, want one duplicate", sum.Report.Rejections)
	}
}

func TestHarvestAllStrategiesFail(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	store := openStore(t, cfg)

	sum, err := New(cfg, testLogger, WithStore(store)).Run(context.Background(), januaryRun(t, srv.URL))
	if !errors.Is(err, types.ErrAllStrategiesFailed) {
		t.Fatalf("err = %v, want ErrAllStrategiesFailed", err)
	}
	if sum == nil || sum.Run.PostsPersisted != 0 {
		t.Errorf("summary = %+v", sum)
	}
}

// failingStore fails every post batch.
type failingStore struct {
	storage.Store
	finalized bool
}

func (s *failingStore) UpsertPosts(context.Context, []*types.Post) (int, error) {
	return 0, &types.StorageError{Backend: "fake", Op: "upsert_posts", Err: errors.New("disk full")}
}

func (s *failingStore) FinalizeRun(ctx context.Context, run types.ScrapeRun) error {
	s.finalized = true
	return s.Store.FinalizeRun(ctx, run)
}

func TestHarvestStorageFailureAborts(t *testing.T) {
	srv := httptest.NewServer(&fakeForum{hits: make(map[string]int)})
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	store := &failingStore{Store: openStore(t, cfg)}
	rc := januaryRun(t, srv.URL)

	sum, err := New(cfg, testLogger, WithStore(store)).Run(context.Background(), rc)
	var se *types.StorageError
	if !errors.As(err, &se) || se.Backend != "fake" {
		t.Fatalf("err = %v, want the store's StorageError", err)
	}
	if store.finalized {
		t.Error("FinalizeRun called after a persistence failure")
	}
	if !rc.ShutdownRequested() {
		t.Error("shutdown not requested on persistence failure")
	}
	if sum == nil || sum.Report == nil {
		t.Fatalf("aborted run returned no report: %+v", sum)
	}
	if sum.Run.PostsPersisted != 0 || sum.Report.TotalPosts != 0 {
		t.Errorf("persisted = %d, report posts = %d; want 0", sum.Run.PostsPersisted, sum.Report.TotalPosts)
	}
	if _, err := os.Stat(cfg.Storage.ReportPath); err != nil {
		t.Errorf("report not written: %v", err)
	}
}
