package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/IshaanNene/ForumHarvest/internal/types"
)

// RunContext owns all state shared between workers of one harvest run. No
// run state lives in package globals.
type RunContext struct {
	ID        string
	BaseURL   string
	Window    types.Window
	StartedAt time.Time

	now      func() time.Time
	shutdown atomic.Bool
	once     sync.Once
	done     chan struct{}

	topics *topicSet
	hashes *Deduplicator
}

// RunOption configures a RunContext.
type RunOption func(*RunContext)

// WithRunID overrides the generated run ID.
func WithRunID(id string) RunOption {
	return func(rc *RunContext) { rc.ID = id }
}

// WithNow replaces the clock.
func WithNow(now func() time.Time) RunOption {
	return func(rc *RunContext) { rc.now = now }
}

// NewRunContext starts a run over window.
func NewRunContext(baseURL string, window types.Window, opts ...RunOption) *RunContext {
	rc := &RunContext{
		ID:      uuid.NewString(),
		BaseURL: baseURL,
		Window:  window,
		now:     time.Now,
		done:    make(chan struct{}),
		topics:  newTopicSet(),
		hashes:  NewDeduplicator(1024),
	}
	for _, opt := range opts {
		opt(rc)
	}
	rc.StartedAt = rc.now().UTC()
	return rc
}

// Now returns the run clock's current time.
func (rc *RunContext) Now() time.Time { return rc.now() }

// RequestShutdown asks workers to stop picking up new work. In-flight
// requests finish and their results are still forwarded.
func (rc *RunContext) RequestShutdown() {
	rc.once.Do(func() {
		rc.shutdown.Store(true)
		close(rc.done)
	})
}

// ShutdownRequested reports whether RequestShutdown has been called.
func (rc *RunContext) ShutdownRequested() bool { return rc.shutdown.Load() }

// Done is closed by RequestShutdown.
func (rc *RunContext) Done() <-chan struct{} { return rc.done }

// MarkTopic records id and reports whether this is its first appearance.
func (rc *RunContext) MarkTopic(id int64) bool { return rc.topics.add(id) }

// TopicsSeen returns how many distinct topics were dispatched.
func (rc *RunContext) TopicsSeen() int { return rc.topics.len() }

// Claim implements the validator's hash claimer.
func (rc *RunContext) Claim(hash string, key types.PostKey) bool {
	return rc.hashes.Claim(hash, key)
}

// SeedHashes pre-claims content hashes already persisted by earlier runs so
// their owners keep winning duplicate checks.
func (rc *RunContext) SeedHashes(owners map[string]types.PostKey) {
	rc.hashes.Seed(owners)
}

// HashesSeen returns how many distinct content hashes were claimed.
func (rc *RunContext) HashesSeen() int { return rc.hashes.Count() }
