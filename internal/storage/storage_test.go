package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/IshaanNene/ForumHarvest/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

var jan5 = time.Date(2025, 1, 5, 10, 0, 0, 0, time.UTC)

func testTopic(id int64) types.Topic {
	return types.Topic{ID: id, Title: "GA5 Question 8", Slug: "ga5", URL: "https://forum.example/t/ga5/1", CreatedAt: jan5, Relevance: 3}
}

func testPost(topicID int64, number int, content, runID string) *types.Post {
	return &types.Post{
		TopicID:      topicID,
		PostNumber:   number,
		PostID:       int64(number) * 10,
		Author:       "alice",
		CreatedAt:    jan5.Add(time.Duration(number) * time.Hour),
		Content:      content,
		RawContent:   content,
		TopicTitle:   "GA5 Question 8",
		TopicURL:     "https://forum.example/t/ga5/1",
		ContentHash:  "hash-" + content,
		ExtractedVia: types.SurfaceJSON,
		RunID:        runID,
	}
}

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "db", "harvest.db"), testLogger)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if err := s.UpsertTopics(ctx, []types.Topic{testTopic(1)}); err != nil {
		t.Fatalf("UpsertTopics: %v", err)
	}
	batch := []*types.Post{
		testPost(1, 1, "first body", "run-1"),
		testPost(1, 2, "second body", "run-1"),
	}
	for range 2 {
		n, err := s.UpsertPosts(ctx, batch)
		if err != nil {
			t.Fatalf("UpsertPosts: %v", err)
		}
		if n != 2 {
			t.Errorf("written = %d, want 2", n)
		}
	}
	count, err := s.CountPosts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("count = %d after double upsert, want 2", count)
	}
}

func TestSQLiteUpsertReplacesRow(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	if err := s.UpsertTopics(ctx, []types.Topic{testTopic(1)}); err != nil {
		t.Fatal(err)
	}

	if _, err := s.UpsertPosts(ctx, []*types.Post{testPost(1, 1, "old body", "run-1")}); err != nil {
		t.Fatal(err)
	}
	updated := testPost(1, 1, "edited body", "run-2")
	updated.LikeCount = 4
	updated.DateUnparsed = true
	if _, err := s.UpsertPosts(ctx, []*types.Post{updated}); err != nil {
		t.Fatal(err)
	}

	posts, err := s.ListPosts(ctx, PostFilter{TopicID: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(posts) != 1 {
		t.Fatalf("got %d rows for one key, want 1", len(posts))
	}
	p := posts[0]
	if p.Content != "edited body" || p.RunID != "run-2" || p.LikeCount != 4 || !p.DateUnparsed {
		t.Errorf("row not fully replaced: %+v", p)
	}
	if !p.CreatedAt.Equal(updated.CreatedAt) || p.ExtractedVia != types.SurfaceJSON {
		t.Errorf("created = %v via = %q", p.CreatedAt, p.ExtractedVia)
	}
}

func TestSQLiteRejectsPostWithoutTopic(t *testing.T) {
	s := openTestStore(t)
	_, err := s.UpsertPosts(context.Background(), []*types.Post{testPost(404, 1, "orphan", "run-1")})
	var se *types.StorageError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want StorageError", err)
	}
	if se.Backend != "sqlite" || se.Op != "upsert_posts" {
		t.Errorf("StorageError = %+v", se)
	}
}

func TestSQLiteListFilters(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	if err := s.UpsertTopics(ctx, []types.Topic{testTopic(1), testTopic(2)}); err != nil {
		t.Fatal(err)
	}
	other := testPost(2, 1, "other topic", "run-1")
	other.Author = "bob"
	if _, err := s.UpsertPosts(ctx, []*types.Post{
		testPost(1, 1, "a", "run-1"),
		testPost(1, 2, "b", "run-1"),
		testPost(1, 3, "c", "run-1"),
		other,
	}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		filter PostFilter
		want   int
	}{
		{"all", PostFilter{}, 4},
		{"topic", PostFilter{TopicID: 1}, 3},
		{"author", PostFilter{Author: "bob"}, 1},
		{"since", PostFilter{Since: jan5.Add(2 * time.Hour)}, 2},
		{"until", PostFilter{Until: jan5.Add(time.Hour)}, 2},
		{"limit", PostFilter{Limit: 2}, 2},
		{"run", PostFilter{RunID: "run-9"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListPosts(ctx, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d posts, want %d", len(got), tt.want)
			}
		})
	}
}

func TestSQLiteFinalizeRun(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	run := types.ScrapeRun{
		ID:             "run-1",
		StartedAt:      jan5,
		FinishedAt:     jan5.Add(time.Minute),
		BaseURL:        "https://forum.example",
		WindowStart:    jan5,
		WindowEnd:      jan5.Add(24 * time.Hour),
		PostsPersisted: 4,
		ToolVersion:    "test",
	}
	if err := s.FinalizeRun(ctx, run); err != nil {
		t.Fatalf("FinalizeRun: %v", err)
	}

	var persisted int
	var version string
	row := s.db.QueryRowContext(ctx, "SELECT posts_persisted, tool_version FROM scrape_runs WHERE id = ?", "run-1")
	if err := row.Scan(&persisted, &version); err != nil {
		t.Fatal(err)
	}
	if persisted != 4 || version != "test" {
		t.Errorf("run row = %d, %q", persisted, version)
	}
}

func TestSQLiteContentOwnersPrefersLowestKey(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	if err := s.UpsertTopics(ctx, []types.Topic{testTopic(1), testTopic(2)}); err != nil {
		t.Fatal(err)
	}
	unhashed := testPost(2, 2, "legacy", "run-1")
	unhashed.ContentHash = ""
	if _, err := s.UpsertPosts(ctx, []*types.Post{
		testPost(2, 1, "shared", "run-1"),
		testPost(1, 3, "shared", "run-1"),
		testPost(1, 1, "own", "run-1"),
		unhashed,
	}); err != nil {
		t.Fatal(err)
	}

	owners, err := s.ContentOwners(ctx)
	if err != nil {
		t.Fatalf("ContentOwners: %v", err)
	}
	if len(owners) != 2 {
		t.Errorf("got %d hashes, want 2: %v", len(owners), owners)
	}
	if got := owners["hash-shared"]; got != (types.PostKey{TopicID: 1, PostNumber: 3}) {
		t.Errorf("shared owner = %v, want 1/3", got)
	}
	if got := owners["hash-own"]; got != (types.PostKey{TopicID: 1, PostNumber: 1}) {
		t.Errorf("own owner = %v, want 1/1", got)
	}
}

func TestSQLiteReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "harvest.db")

	s, err := NewSQLiteStore(ctx, path, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertTopics(ctx, []types.Topic{testTopic(1)}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.UpsertPosts(ctx, []*types.Post{testPost(1, 1, "kept", "run-1")}); err != nil {
		t.Fatal(err)
	}
	s.Close()

	again, err := NewSQLiteStore(ctx, path, testLogger)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer again.Close()
	n, err := again.CountPosts(ctx)
	if err != nil || n != 1 {
		t.Errorf("count after reopen = %d, %v", n, err)
	}
}

func TestJSONOutputEnvelope(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "posts.json")
	out, err := NewJSONOutput(path, "https://forum.example", "1.2.3", testLogger)
	if err != nil {
		t.Fatal(err)
	}
	out.now = func() time.Time { return jan5 }
	if err := out.Write([]*types.Post{testPost(1, 1, "a", "r"), testPost(1, 2, "b", "r")}); err != nil {
		t.Fatal(err)
	}
	if err := out.Close(); err != nil {
		t.Fatal(err)
	}

	env, err := ReadEnvelope(path)
	if err != nil {
		t.Fatal(err)
	}
	if env.TotalPosts != 2 || len(env.Posts) != 2 || env.BaseURL != "https://forum.example" || env.ScraperVersion != "1.2.3" {
		t.Errorf("envelope = %+v", env)
	}
	if !env.ScrapeDate.Equal(jan5) || env.Posts[1].PostNumber != 2 {
		t.Errorf("scrape_date = %v, second post = %+v", env.ScrapeDate, env.Posts[1])
	}
}

func TestCSVOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "posts.csv")
	out, err := NewCSVOutput(path, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	multi := NewMultiSink([]Sink{out}, testLogger)
	p := testPost(1, 1, "line one\nline \"two\"", "r")
	if err := multi.Write([]*types.Post{p}); err != nil {
		t.Fatal(err)
	}
	if err := multi.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want header + 1", len(records))
	}
	if records[0][3] != "username" || records[1][3] != "alice" || records[1][12] != p.Content {
		t.Errorf("records = %q", records)
	}
	if records[1][4] != "2025-01-05T11:00:00Z" {
		t.Errorf("created_at = %q", records[1][4])
	}
}

// TestMongoUpsert needs a live server; set HARVEST_TEST_MONGO_URI to run it.
func TestMongoUpsert(t *testing.T) {
	uri := os.Getenv("HARVEST_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("HARVEST_TEST_MONGO_URI not set")
	}
	ctx := context.Background()
	s, err := NewMongoStore(ctx, uri, "harvest_test_"+time.Now().Format("20060102150405"), testLogger)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = s.posts.Database().Drop(ctx)
		s.Close()
	}()

	batch := []*types.Post{testPost(1, 1, "a", "r"), testPost(1, 2, "b", "r")}
	for range 2 {
		if _, err := s.UpsertPosts(ctx, batch); err != nil {
			t.Fatal(err)
		}
	}
	n, err := s.CountPosts(ctx)
	if err != nil || n != 2 {
		t.Errorf("count = %d, %v", n, err)
	}
}
