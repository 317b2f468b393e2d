package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/IshaanNene/ForumHarvest/internal/types"
)

// ContentHash returns the 128-bit hex digest used for duplicate detection.
func ContentHash(cleaned string) string {
	h := sha256.Sum256([]byte(cleaned))
	return hex.EncodeToString(h[:16])
}

// HashClaimer records content hashes for the current run. Claim returns
// false when another post already owns hash.
type HashClaimer interface {
	Claim(hash string, key types.PostKey) bool
}

func reject(reason types.RejectReason, format string, args ...any) *types.Rejection {
	return &types.Rejection{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// RequiredFieldsMiddleware rejects records missing content, author or topic
// title.
type RequiredFieldsMiddleware struct{}

func (m *RequiredFieldsMiddleware) Name() string { return "required_fields" }

func (m *RequiredFieldsMiddleware) Process(rec *Record) *types.Rejection {
	switch {
	case strings.TrimSpace(rec.Raw.Content) == "":
		return reject(types.RejectMissingField, "content")
	case strings.TrimSpace(rec.Raw.Author) == "":
		return reject(types.RejectMissingField, "author")
	case strings.TrimSpace(rec.Raw.TopicTitle) == "":
		return reject(types.RejectMissingField, "topic_title")
	}
	return nil
}

// CleanMiddleware fills Post.Content with the cleaned text.
type CleanMiddleware struct{}

func (m *CleanMiddleware) Name() string { return "clean" }

func (m *CleanMiddleware) Process(rec *Record) *types.Rejection {
	rec.Post.Content = Clean(rec.Raw.Content)
	rec.Post.Author = strings.TrimSpace(rec.Raw.Author)
	rec.Post.TopicTitle = strings.TrimSpace(rec.Raw.TopicTitle)
	return nil
}

// LengthMiddleware bounds the cleaned content length in characters.
type LengthMiddleware struct {
	Min int
	Max int
}

func (m *LengthMiddleware) Name() string { return "length" }

func (m *LengthMiddleware) Process(rec *Record) *types.Rejection {
	n := len([]rune(rec.Post.Content))
	if n < m.Min {
		return reject(types.RejectTooShort, "%d < %d chars", n, m.Min)
	}
	if m.Max > 0 && n > m.Max {
		return reject(types.RejectTooLong, "%d > %d chars", n, m.Max)
	}
	return nil
}

// ExcludePatternMiddleware drops moderation placeholders and similar
// boilerplate by case-insensitive substring.
type ExcludePatternMiddleware struct {
	patterns []string
}

func NewExcludePatternMiddleware(patterns []string) *ExcludePatternMiddleware {
	lowered := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			lowered = append(lowered, p)
		}
	}
	return &ExcludePatternMiddleware{patterns: lowered}
}

func (m *ExcludePatternMiddleware) Name() string { return "exclude_pattern" }

func (m *ExcludePatternMiddleware) Process(rec *Record) *types.Rejection {
	content := strings.ToLower(rec.Post.Content)
	for _, p := range m.patterns {
		if strings.Contains(content, p) {
			return reject(types.RejectExcluded, "%q", p)
		}
	}
	return nil
}

// WordCountMiddleware requires a minimum number of words.
type WordCountMiddleware struct {
	Min int
}

func (m *WordCountMiddleware) Name() string { return "word_count" }

func (m *WordCountMiddleware) Process(rec *Record) *types.Rejection {
	if n := WordCount(rec.Post.Content); n < m.Min {
		return reject(types.RejectTooFewWords, "%d < %d words", n, m.Min)
	}
	return nil
}

// DateNormalizeMiddleware parses the raw timestamps. An unparseable creation
// time falls back to the extraction time with DateUnparsed set.
type DateNormalizeMiddleware struct {
	Now func() time.Time
}

func (m *DateNormalizeMiddleware) Name() string { return "date_normalize" }

func (m *DateNormalizeMiddleware) Process(rec *Record) *types.Rejection {
	ref := rec.Raw.ExtractedAt
	if ref.IsZero() {
		ref = m.Now()
	}

	created, ok := ParseTimestamp(rec.Raw.CreatedRaw, ref)
	rec.Post.CreatedAt = created
	rec.Post.DateUnparsed = !ok

	if updated, ok := ParseTimestamp(rec.Raw.UpdatedRaw, ref); ok {
		rec.Post.UpdatedAt = updated
	} else {
		rec.Post.UpdatedAt = created
	}
	return nil
}

// DateRangeMiddleware applies InRange.
type DateRangeMiddleware struct {
	Window types.Window
}

func (m *DateRangeMiddleware) Name() string { return "date_range" }

func (m *DateRangeMiddleware) Process(rec *Record) *types.Rejection {
	if !InRange(rec.Post, m.Window) {
		return reject(types.RejectOutOfRange, "%s", rec.Post.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

// DedupMiddleware hashes the cleaned content and claims it for the run.
type DedupMiddleware struct {
	Claimer HashClaimer
}

func (m *DedupMiddleware) Name() string { return "dedup" }

func (m *DedupMiddleware) Process(rec *Record) *types.Rejection {
	rec.Post.ContentHash = ContentHash(rec.Post.Content)
	if m.Claimer != nil && !m.Claimer.Claim(rec.Post.ContentHash, rec.Post.Key()) {
		return reject(types.RejectDuplicate, "%s", rec.Post.ContentHash)
	}
	return nil
}
