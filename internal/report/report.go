// Package report summarizes a completed harvest run.
package report

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/IshaanNene/ForumHarvest/internal/discovery"
	"github.com/IshaanNene/ForumHarvest/internal/types"
)

// topN bounds the contributor and topic rankings.
const topN = 10

// Input is everything a report is built from.
type Input struct {
	Run        types.ScrapeRun
	Posts      []*types.Post
	Rejections []types.Rejection
	Failures   []types.TopicFailure
	Skipped    []types.TopicSkip
	Discovery  discovery.Outcome
}

// Report holds aggregate statistics for one run.
type Report struct {
	RunID       string    `json:"run_id"`
	BaseURL     string    `json:"base_url"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Elapsed     string    `json:"elapsed"`
	ToolVersion string    `json:"tool_version"`

	TopicsDiscovered int `json:"topics_discovered"`
	TotalPosts       int `json:"total_posts"`
	UniqueTopics     int `json:"unique_topics"`
	UniqueAuthors    int `json:"unique_authors"`
	UnparsedDates    int `json:"unparsed_dates"`
	TotalRejected    int `json:"total_rejected"`

	DateRange       *DateRange     `json:"date_range,omitempty"`
	TopContributors []Count        `json:"top_contributors"`
	TopTopics       []TopicCount   `json:"most_active_topics"`
	Rejections      map[string]int `json:"rejections"`
	ExtractedVia    map[string]int `json:"extracted_via"`

	Discovery     discovery.Outcome `json:"discovery"`
	FailedTopics  []FailedTopic     `json:"failed_topics"`
	SkippedTopics []int64           `json:"skipped_topics"`
}

// DateRange is the span of parsed post timestamps.
type DateRange struct {
	Earliest time.Time `json:"earliest"`
	Latest   time.Time `json:"latest"`
}

type Count struct {
	Name  string `json:"name"`
	Posts int    `json:"posts"`
}

type TopicCount struct {
	TopicID int64  `json:"topic_id"`
	Title   string `json:"title"`
	Posts   int    `json:"posts"`
}

type FailedTopic struct {
	TopicID int64  `json:"topic_id"`
	URL     string `json:"url"`
	Error   string `json:"error"`
}

// Build computes the report. Rankings break ties by name, then id, so the
// output is deterministic.
func Build(in Input) *Report {
	r := &Report{
		RunID:            in.Run.ID,
		BaseURL:          in.Run.BaseURL,
		WindowStart:      in.Run.WindowStart,
		WindowEnd:        in.Run.WindowEnd,
		StartedAt:        in.Run.StartedAt,
		FinishedAt:       in.Run.FinishedAt,
		Elapsed:          in.Run.FinishedAt.Sub(in.Run.StartedAt).Round(time.Millisecond).String(),
		ToolVersion:      in.Run.ToolVersion,
		TopicsDiscovered: in.Run.TopicsDiscovered,
		TotalPosts:       len(in.Posts),
		TotalRejected:    len(in.Rejections),
		Rejections:       make(map[string]int),
		ExtractedVia:     make(map[string]int),
		Discovery:        in.Discovery,
		TopContributors:  []Count{},
		TopTopics:        []TopicCount{},
		FailedTopics:     []FailedTopic{},
		SkippedTopics:    []int64{},
	}

	authors := make(map[string]int)
	topics := make(map[int64]*TopicCount)
	for _, p := range in.Posts {
		authors[p.Author]++
		tc, ok := topics[p.TopicID]
		if !ok {
			tc = &TopicCount{TopicID: p.TopicID, Title: p.TopicTitle}
			topics[p.TopicID] = tc
		}
		tc.Posts++
		r.ExtractedVia[string(p.ExtractedVia)]++

		if p.DateUnparsed {
			r.UnparsedDates++
			continue
		}
		if r.DateRange == nil {
			r.DateRange = &DateRange{Earliest: p.CreatedAt, Latest: p.CreatedAt}
			continue
		}
		if p.CreatedAt.Before(r.DateRange.Earliest) {
			r.DateRange.Earliest = p.CreatedAt
		}
		if p.CreatedAt.After(r.DateRange.Latest) {
			r.DateRange.Latest = p.CreatedAt
		}
	}
	r.UniqueAuthors = len(authors)
	r.UniqueTopics = len(topics)

	for name, n := range authors {
		r.TopContributors = append(r.TopContributors, Count{Name: name, Posts: n})
	}
	slices.SortFunc(r.TopContributors, func(a, b Count) int {
		return cmp.Or(cmp.Compare(b.Posts, a.Posts), cmp.Compare(a.Name, b.Name))
	})
	if len(r.TopContributors) > topN {
		r.TopContributors = r.TopContributors[:topN]
	}

	for _, tc := range topics {
		r.TopTopics = append(r.TopTopics, *tc)
	}
	slices.SortFunc(r.TopTopics, func(a, b TopicCount) int {
		return cmp.Or(cmp.Compare(b.Posts, a.Posts), cmp.Compare(a.TopicID, b.TopicID))
	})
	if len(r.TopTopics) > topN {
		r.TopTopics = r.TopTopics[:topN]
	}

	for _, rej := range in.Rejections {
		r.Rejections[string(rej.Reason)]++
	}
	for _, f := range in.Failures {
		ft := FailedTopic{TopicID: f.TopicID, URL: f.URL}
		if f.Err != nil {
			ft.Error = f.Err.Error()
		}
		r.FailedTopics = append(r.FailedTopics, ft)
	}
	for _, sk := range in.Skipped {
		r.SkippedTopics = append(r.SkippedTopics, sk.TopicID)
	}
	slices.Sort(r.SkippedTopics)
	return r
}

// WriteJSON writes the report as indented JSON to path.
func (r *Report) WriteJSON(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// WriteText prints a human summary.
func (r *Report) WriteText(w io.Writer) error {
	ew := &errWriter{w: w}
	ew.printf("\n✅ Harvest complete in %s (run %s)\n", r.Elapsed, r.RunID)
	ew.printf("   Window: %s → %s\n", r.WindowStart.Format(types.DateLayout), r.WindowEnd.Format(types.DateLayout))
	ew.printf("   Topics: %d discovered, %d with posts, %d failed, %d skipped\n", r.TopicsDiscovered, r.UniqueTopics, len(r.FailedTopics), len(r.SkippedTopics))
	ew.printf("   Posts: %d persisted, %d rejected, %d with unparsed dates\n", r.TotalPosts, r.TotalRejected, r.UnparsedDates)
	ew.printf("   Authors: %d\n", r.UniqueAuthors)
	if r.DateRange != nil {
		ew.printf("   Post dates: %s → %s\n", r.DateRange.Earliest.Format(time.RFC3339), r.DateRange.Latest.Format(time.RFC3339))
	}

	if len(r.Discovery.Strategies) > 0 {
		ew.printf("\n   Discovery:\n")
		for _, s := range r.Discovery.Strategies {
			if s.Error != "" {
				ew.printf("     %-10s failed: %s\n", s.Name, s.Error)
				continue
			}
			ew.printf("     %-10s %d topics\n", s.Name, s.Topics)
		}
	}
	if len(r.Rejections) > 0 {
		ew.printf("\n   Rejections:\n")
		reasons := make([]string, 0, len(r.Rejections))
		for reason := range r.Rejections {
			reasons = append(reasons, reason)
		}
		slices.Sort(reasons)
		for _, reason := range reasons {
			ew.printf("     %-18s %d\n", reason, r.Rejections[reason])
		}
	}
	if len(r.TopContributors) > 0 {
		ew.printf("\n   Top contributors:\n")
		for _, c := range r.TopContributors {
			ew.printf("     %-20s %d\n", c.Name, c.Posts)
		}
	}
	if len(r.TopTopics) > 0 {
		ew.printf("\n   Most active topics:\n")
		for _, t := range r.TopTopics {
			ew.printf("     %4d  %s\n", t.Posts, t.Title)
		}
	}
	return ew.err
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
