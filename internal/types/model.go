package types

import (
	"fmt"
	"time"
)

// DateLayout is the calendar date format accepted on the command line.
const DateLayout = "2006-01-02"

// Topic is a discussion thread found by a discovery strategy.
type Topic struct {
	ID             int64     `json:"id"                   bson:"_id"`
	Title          string    `json:"title"                bson:"title"`
	Slug           string    `json:"slug,omitempty"       bson:"slug,omitempty"`
	Category       string    `json:"category,omitempty"   bson:"category,omitempty"`
	CategoryID     int64     `json:"category_id,omitempty" bson:"category_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"           bson:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"     bson:"last_activity_at"`
	URL            string    `json:"url"                  bson:"url"`
	Excerpt        string    `json:"excerpt,omitempty"    bson:"excerpt,omitempty"`
	PostsCount     int       `json:"posts_count,omitempty" bson:"posts_count,omitempty"`
	Views          int       `json:"views,omitempty"      bson:"views,omitempty"`
	Relevance      float64   `json:"relevance"            bson:"relevance"`
	Source         string    `json:"source"               bson:"source"`
}

// PostKey is the unique identity of a post across the store.
type PostKey struct {
	TopicID    int64
	PostNumber int
}

func (k PostKey) String() string {
	return fmt.Sprintf("%d#%d", k.TopicID, k.PostNumber)
}

// RawPost is a record as extracted, before validation and cleaning.
type RawPost struct {
	TopicID      int64
	PostNumber   int
	PostID       int64
	Author       string
	CreatedRaw   string
	UpdatedRaw   string
	Content      string // cooked HTML or markup text
	RawContent   string // source markdown when the structured surface provides it
	ReplyCount   int
	LikeCount    int
	TopicTitle   string
	TopicURL     string
	Category     string
	ExtractedVia Surface
	ExtractedAt  time.Time
}

// Post is a validated and normalized message within a topic.
type Post struct {
	TopicID      int64     `json:"topic_id"         bson:"topic_id"`
	PostNumber   int       `json:"post_number"      bson:"post_number"`
	PostID       int64     `json:"post_id,omitempty" bson:"post_id,omitempty"`
	Author       string    `json:"username"         bson:"author"`
	CreatedAt    time.Time `json:"created_at"       bson:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"       bson:"updated_at"`
	DateUnparsed bool      `json:"date_unparsed"    bson:"date_unparsed"`
	Content      string    `json:"content"          bson:"content"`
	RawContent   string    `json:"raw_content"      bson:"raw_content"`
	ReplyCount   int       `json:"reply_count"      bson:"reply_count"`
	LikeCount    int       `json:"like_count"       bson:"like_count"`
	TopicTitle   string    `json:"topic_title"      bson:"topic_title"`
	TopicURL     string    `json:"topic_url"        bson:"topic_url"`
	Category     string    `json:"category"         bson:"category"`
	ContentHash  string    `json:"content_hash"     bson:"content_hash"`
	ExtractedVia Surface   `json:"extracted_via"    bson:"extracted_via"`
	RunID        string    `json:"run_id"           bson:"run_id"`
}

// Key returns the post's unique key.
func (p *Post) Key() PostKey {
	return PostKey{TopicID: p.TopicID, PostNumber: p.PostNumber}
}

// ScrapeRun is the metadata row written once per invocation.
type ScrapeRun struct {
	ID               string    `json:"id"                bson:"_id"`
	StartedAt        time.Time `json:"started_at"        bson:"started_at"`
	FinishedAt       time.Time `json:"finished_at"       bson:"finished_at"`
	BaseURL          string    `json:"base_url"          bson:"base_url"`
	WindowStart      time.Time `json:"window_start"      bson:"window_start"`
	WindowEnd        time.Time `json:"window_end"        bson:"window_end"`
	TopicsDiscovered int       `json:"topics_discovered" bson:"topics_discovered"`
	PostsPersisted   int       `json:"posts_persisted"   bson:"posts_persisted"`
	PostsRejected    int       `json:"posts_rejected"    bson:"posts_rejected"`
	ToolVersion      string    `json:"tool_version"      bson:"tool_version"`
}

// Window is an inclusive time range.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow builds a window from two calendar dates. The end date covers the
// whole UTC day.
func NewWindow(startDate, endDate string) (Window, error) {
	start, err := time.ParseInLocation(DateLayout, startDate, time.UTC)
	if err != nil {
		return Window{}, fmt.Errorf("invalid start date %q (want YYYY-MM-DD): %w", startDate, err)
	}
	end, err := time.ParseInLocation(DateLayout, endDate, time.UTC)
	if err != nil {
		return Window{}, fmt.Errorf("invalid end date %q (want YYYY-MM-DD): %w", endDate, err)
	}
	end = end.Add(24*time.Hour - time.Nanosecond)
	if end.Before(start) {
		return Window{}, fmt.Errorf("end date %s is before start date %s", endDate, startDate)
	}
	return Window{Start: start, End: end}, nil
}

// Contains reports whether t lies within the window, both ends inclusive.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Overlaps reports whether [from, to] intersects the window. Zero bounds are
// treated as unknown and never exclude.
func (w Window) Overlaps(from, to time.Time) bool {
	if !to.IsZero() && to.Before(w.Start) {
		return false
	}
	if !from.IsZero() && from.After(w.End) {
		return false
	}
	return true
}

// RejectReason names why a record was dropped by validation.
type RejectReason string

const (
	RejectMissingField RejectReason = "missing_field"
	RejectTooShort     RejectReason = "too_short"
	RejectTooLong      RejectReason = "too_long"
	RejectExcluded     RejectReason = "excluded_pattern"
	RejectTooFewWords  RejectReason = "too_few_words"
	RejectDuplicate    RejectReason = "duplicate_content"
	RejectOutOfRange   RejectReason = "out_of_range"
)

// Rejection records a dropped record. It is counted, never raised.
type Rejection struct {
	Key    PostKey
	Reason RejectReason
	Detail string
}

// TopicFailure records a topic whose extraction failed on every path.
type TopicFailure struct {
	TopicID int64
	URL     string
	Err     error
}

// TopicSkip records a topic left unextracted because the run was stopping.
type TopicSkip struct {
	TopicID int64
	URL     string
}

// ShutdownSignal is polled by long-running work between units of progress.
type ShutdownSignal interface {
	ShutdownRequested() bool
}

// Result is one element of the fetch coordinator's output stream. Exactly one
// field is set.
type Result struct {
	Post      *Post
	Rejection *Rejection
	Failure   *TopicFailure
	Skipped   *TopicSkip
}
