package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/IshaanNene/ForumHarvest/internal/types"
)

// Sink receives persisted posts for an output file.
type Sink interface {
	// Write appends a batch of posts.
	Write(posts []*types.Post) error

	// Close flushes pending writes and releases resources.
	Close() error

	// Name returns the sink identifier.
	Name() string
}

// --- JSON Output ---

// Envelope is the layout of the JSON output file.
type Envelope struct {
	ScrapeDate     time.Time     `json:"scrape_date"`
	BaseURL        string        `json:"base_url"`
	TotalPosts     int           `json:"total_posts"`
	ScraperVersion string        `json:"scraper_version"`
	Posts          []*types.Post `json:"posts"`
}

// JSONOutput buffers posts and writes them as one envelope on Close.
type JSONOutput struct {
	path    string
	baseURL string
	version string
	now     func() time.Time
	posts   []*types.Post
	mu      sync.Mutex
	logger  *slog.Logger
}

// NewJSONOutput creates a JSON output file sink.
func NewJSONOutput(outputPath, baseURL, version string, logger *slog.Logger) (*JSONOutput, error) {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &JSONOutput{
		path:    outputPath,
		baseURL: baseURL,
		version: version,
		now:     time.Now,
		posts:   make([]*types.Post, 0),
		logger:  logger.With("component", "json_output"),
	}, nil
}

func (s *JSONOutput) Name() string { return "json" }

func (s *JSONOutput) Write(posts []*types.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts = append(s.posts, posts...)
	return nil
}

func (s *JSONOutput) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	env := Envelope{
		ScrapeDate:     s.now().UTC(),
		BaseURL:        s.baseURL,
		TotalPosts:     len(s.posts),
		ScraperVersion: s.version,
		Posts:          s.posts,
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(env); err != nil {
		return fmt.Errorf("encode JSON: %w", err)
	}

	s.logger.Info("JSON written", "path", s.path, "posts", len(s.posts))
	return nil
}

// ReadEnvelope loads a JSON output file.
func ReadEnvelope(path string) (*Envelope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &env, nil
}

// --- CSV Output ---

var csvHeader = []string{
	"topic_id", "post_number", "post_id", "username", "created_at", "updated_at",
	"date_unparsed", "topic_title", "topic_url", "category", "reply_count",
	"like_count", "content", "content_hash", "extracted_via", "run_id",
}

// CSVOutput streams posts as CSV rows, one per post.
type CSVOutput struct {
	path   string
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
	count  int
	logger *slog.Logger
}

// NewCSVOutput creates the file and writes the header row.
func NewCSVOutput(outputPath string, logger *slog.Logger) (*CSVOutput, error) {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("write CSV header: %w", err)
	}
	return &CSVOutput{
		path:   outputPath,
		file:   f,
		writer: w,
		logger: logger.With("component", "csv_output"),
	}, nil
}

func (s *CSVOutput) Name() string { return "csv" }

func (s *CSVOutput) Write(posts []*types.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range posts {
		row := []string{
			strconv.FormatInt(p.TopicID, 10),
			strconv.Itoa(p.PostNumber),
			strconv.FormatInt(p.PostID, 10),
			p.Author,
			csvTime(p.CreatedAt),
			csvTime(p.UpdatedAt),
			strconv.FormatBool(p.DateUnparsed),
			p.TopicTitle,
			p.TopicURL,
			p.Category,
			strconv.Itoa(p.ReplyCount),
			strconv.Itoa(p.LikeCount),
			p.Content,
			p.ContentHash,
			string(p.ExtractedVia),
			p.RunID,
		}
		if err := s.writer.Write(row); err != nil {
			return fmt.Errorf("write CSV row: %w", err)
		}
		s.count++
	}

	s.writer.Flush()
	return s.writer.Error()
}

func (s *CSVOutput) Close() error {
	s.logger.Info("CSV written", "path", s.path, "posts", s.count)
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}

func csvTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// --- Multi-Sink Fan-Out ---

// MultiSink writes posts to several sinks.
type MultiSink struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewMultiSink creates a sink that fans out to sinks.
func NewMultiSink(sinks []Sink, logger *slog.Logger) *MultiSink {
	return &MultiSink{
		sinks:  sinks,
		logger: logger.With("component", "multi_sink"),
	}
}

func (s *MultiSink) Name() string { return "multi" }

// Len returns the number of sinks.
func (s *MultiSink) Len() int { return len(s.sinks) }

func (s *MultiSink) Write(posts []*types.Post) error {
	var firstErr error
	for _, sink := range s.sinks {
		if err := sink.Write(posts); err != nil {
			s.logger.Error("sink write failed", "sink", sink.Name(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *MultiSink) Close() error {
	var firstErr error
	for _, sink := range s.sinks {
		if err := sink.Close(); err != nil {
			s.logger.Error("sink close failed", "sink", sink.Name(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
