package types

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure modes.
var (
	ErrTimeout             = errors.New("request timed out")
	ErrMaxRetries          = errors.New("max retries exceeded")
	ErrEmptyResponse       = errors.New("empty response body")
	ErrInvalidURL          = errors.New("invalid URL")
	ErrRunStopped          = errors.New("run has been stopped")
	ErrExtractionFailed    = errors.New("extraction failed on every path")
	ErrAllStrategiesFailed = errors.New("every discovery strategy failed")
	ErrNoPosts             = errors.New("no post-like elements found")
)

// FetchKind classifies a transport failure.
type FetchKind int

const (
	KindNetwork FetchKind = iota
	KindTimeout
	KindHTTPStatus
)

func (k FetchKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindHTTPStatus:
		return "http_status"
	default:
		return "network"
	}
}

// FetchError wraps errors that occur during fetching.
type FetchError struct {
	URL        string
	Kind       FetchKind
	StatusCode int
	Err        error
	Retryable  bool
	RetryAfter time.Duration // populated from Retry-After header on HTTP 429
	Attempts   int
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s (%s): %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) IsRetryable() bool { return e.Retryable }

// IsPermanent reports whether the failure is a 4xx other than 429.
func (e *FetchError) IsPermanent() bool {
	return e.Kind == KindHTTPStatus && e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != 429
}

// SchemaError reports a structured response that did not decode into the
// expected shape. Callers fall back to markup; it never reaches the user.
type SchemaError struct {
	URL    string
	Expect string
	Err    error
}

func (e *SchemaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("schema mismatch for %s (want %s): %v", e.URL, e.Expect, e.Err)
	}
	return fmt.Sprintf("schema mismatch for %s (want %s)", e.URL, e.Expect)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// ParseError wraps errors that occur during markup parsing.
type ParseError struct {
	URL      string
	Selector string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error for %s (selector=%q): %v", e.URL, e.Selector, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StorageError wraps errors that occur during persistence. It is the only
// error class that aborts a run.
type StorageError struct {
	Backend string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s, %s): %v", e.Backend, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// StrategyError records a discovery strategy failure.
type StrategyError struct {
	Strategy string
	Err      error
}

func (e *StrategyError) Error() string {
	return fmt.Sprintf("strategy %q: %v", e.Strategy, e.Err)
}

func (e *StrategyError) Unwrap() error { return e.Err }
