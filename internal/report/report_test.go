package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/IshaanNene/ForumHarvest/internal/discovery"
	"github.com/IshaanNene/ForumHarvest/internal/types"
)

var base = time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

func post(topic int64, n int, author string, offset time.Duration) *types.Post {
	return &types.Post{
		TopicID:      topic,
		PostNumber:   n,
		Author:       author,
		CreatedAt:    base.Add(offset),
		TopicTitle:   "Topic " + string(rune('A'+topic-1)),
		ExtractedVia: types.SurfaceJSON,
	}
}

func sampleInput() Input {
	unparsed := post(2, 3, "carol", 0)
	unparsed.DateUnparsed = true
	unparsed.CreatedAt = base.Add(30 * 24 * time.Hour)
	unparsed.ExtractedVia = types.SurfaceMarkup
	return Input{
		Run: types.ScrapeRun{
			ID:               "run-1",
			StartedAt:        base,
			FinishedAt:       base.Add(90 * time.Second),
			WindowStart:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			WindowEnd:        time.Date(2025, 1, 31, 23, 59, 59, 0, time.UTC),
			TopicsDiscovered: 3,
		},
		Posts: []*types.Post{
			post(1, 1, "alice", -48*time.Hour),
			post(1, 2, "bob", time.Hour),
			post(1, 3, "alice", 2*time.Hour),
			post(2, 1, "bob", 72*time.Hour),
			unparsed,
		},
		Rejections: []types.Rejection{
			{Reason: types.RejectTooShort},
			{Reason: types.RejectTooShort},
			{Reason: types.RejectOutOfRange},
		},
		Failures: []types.TopicFailure{{TopicID: 3, URL: "https://forum.example/t/3", Err: errors.New("gone")}},
		Skipped:  []types.TopicSkip{{TopicID: 9}, {TopicID: 4}},
		Discovery: discovery.Outcome{Strategies: []discovery.StrategyOutcome{
			{Name: "latest", Topics: 3},
			{Name: "search", Error: "boom"},
		}},
	}
}

func TestBuild(t *testing.T) {
	r := Build(sampleInput())

	if r.TotalPosts != 5 || r.UniqueTopics != 2 || r.UniqueAuthors != 3 {
		t.Errorf("totals = %d posts, %d topics, %d authors", r.TotalPosts, r.UniqueTopics, r.UniqueAuthors)
	}
	if r.UnparsedDates != 1 {
		t.Errorf("unparsed = %d, want 1", r.UnparsedDates)
	}
	if r.DateRange == nil || !r.DateRange.Earliest.Equal(base.Add(-48*time.Hour)) || !r.DateRange.Latest.Equal(base.Add(72*time.Hour)) {
		t.Errorf("date range = %+v (unparsed posts must not widen it)", r.DateRange)
	}
	if len(r.TopContributors) != 3 || r.TopContributors[0] != (Count{Name: "alice", Posts: 2}) || r.TopContributors[1].Name != "bob" {
		t.Errorf("contributors = %+v", r.TopContributors)
	}
	if r.TopTopics[0].TopicID != 1 || r.TopTopics[0].Posts != 3 || r.TopTopics[0].Title != "Topic A" {
		t.Errorf("topics = %+v", r.TopTopics)
	}
	if r.Rejections["too_short"] != 2 || r.Rejections["out_of_range"] != 1 || r.TotalRejected != 3 {
		t.Errorf("rejections = %v", r.Rejections)
	}
	if r.ExtractedVia["json"] != 4 || r.ExtractedVia["html"] != 1 {
		t.Errorf("extracted via = %v", r.ExtractedVia)
	}
	if len(r.FailedTopics) != 1 || r.FailedTopics[0].Error != "gone" {
		t.Errorf("failed = %+v", r.FailedTopics)
	}
	if !slices.Equal(r.SkippedTopics, []int64{4, 9}) {
		t.Errorf("skipped = %v, want [4 9]", r.SkippedTopics)
	}
	if r.Elapsed != "1m30s" {
		t.Errorf("elapsed = %q", r.Elapsed)
	}
}

func TestBuildEmpty(t *testing.T) {
	r := Build(Input{})
	if r.TotalPosts != 0 || r.DateRange != nil || r.TopContributors == nil {
		t.Errorf("empty report = %+v", r)
	}
}

func TestBuildTruncatesRankings(t *testing.T) {
	var in Input
	for i := range 15 {
		in.Posts = append(in.Posts, post(int64(i+1), 1, string(rune('a'+i)), 0))
	}
	r := Build(in)
	if len(r.TopContributors) != topN || len(r.TopTopics) != topN {
		t.Errorf("rankings = %d / %d, want %d", len(r.TopContributors), len(r.TopTopics), topN)
	}
	if r.TopContributors[0].Name != "a" {
		t.Errorf("tie order = %q, want alphabetical", r.TopContributors[0].Name)
	}
}

func TestWriteJSONAndText(t *testing.T) {
	r := Build(sampleInput())
	path := filepath.Join(t.TempDir(), "reports", "run.json")
	if err := r.WriteJSON(path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["total_posts"] != float64(5) || decoded["run_id"] != "run-1" {
		t.Errorf("decoded = %v", decoded)
	}

	var buf bytes.Buffer
	if err := r.WriteText(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"run-1", "5 persisted", "3 rejected", "1 failed, 2 skipped", "search     failed: boom", "too_short", "alice"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}
