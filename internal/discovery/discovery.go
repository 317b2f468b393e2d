// Package discovery finds candidate topics through several independent
// strategies and reduces them to a relevance-filtered, capped list.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/IshaanNene/ForumHarvest/internal/observability"
	"github.com/IshaanNene/ForumHarvest/internal/types"
)

// Strategy is one way of finding topics.
type Strategy interface {
	Name() string
	Discover(ctx context.Context, window types.Window) ([]types.Topic, error)
}

// StrategyOutcome is what one strategy contributed to a discovery pass.
type StrategyOutcome struct {
	Name     string        `json:"name"`
	Topics   int           `json:"topics"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Outcome summarizes a discovery pass.
type Outcome struct {
	Strategies     []StrategyOutcome `json:"strategies"`
	Candidates     int               `json:"candidates"`
	Merged         int               `json:"merged"`
	OutOfWindow    int               `json:"out_of_window"`
	BelowThreshold int               `json:"below_threshold"`
	Capped         int               `json:"capped"`
	Kept           int               `json:"kept"`
}

// Failed returns how many strategies failed.
func (o Outcome) Failed() int {
	n := 0
	for _, s := range o.Strategies {
		if s.Error != "" {
			n++
		}
	}
	return n
}

// Coordinator runs every registered strategy and merges their results.
type Coordinator struct {
	strategies []Strategy
	scorer     *Scorer
	maxTopics  int
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

func WithMetrics(m *observability.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// NewCoordinator creates a coordinator. maxTopics <= 0 disables the cap.
func NewCoordinator(scorer *Scorer, maxTopics int, logger *slog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		scorer:    scorer,
		maxTopics: maxTopics,
		logger:    logger.With("component", "discovery"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register appends a strategy. Registration order decides merge precedence.
func (c *Coordinator) Register(s Strategy) {
	c.strategies = append(c.strategies, s)
}

// Strategies returns the registered strategy names in order.
func (c *Coordinator) Strategies() []string {
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name()
	}
	return names
}

// Discover runs all strategies concurrently. A failing strategy is logged and
// recorded in the outcome; types.ErrAllStrategiesFailed is returned only when
// every strategy failed.
func (c *Coordinator) Discover(ctx context.Context, window types.Window) ([]types.Topic, Outcome, error) {
	var outcome Outcome
	if len(c.strategies) == 0 {
		return nil, outcome, fmt.Errorf("%w: no strategies registered", types.ErrAllStrategiesFailed)
	}

	results := make([][]types.Topic, len(c.strategies))
	outcomes := make([]StrategyOutcome, len(c.strategies))

	var g errgroup.Group
	for i, s := range c.strategies {
		g.Go(func() error {
			start := time.Now()
			topics, err := s.Discover(ctx, window)
			outcomes[i] = StrategyOutcome{Name: s.Name(), Topics: len(topics), Duration: time.Since(start)}
			if err != nil {
				outcomes[i].Error = err.Error()
				c.logger.Warn("strategy failed", "strategy", s.Name(), "error", err)
				return nil
			}
			results[i] = topics
			c.metrics.RecordTopics(s.Name(), len(topics))
			c.logger.Info("strategy done", "strategy", s.Name(), "topics", len(topics), "duration", outcomes[i].Duration)
			return nil
		})
	}
	_ = g.Wait()
	outcome.Strategies = outcomes

	if err := ctx.Err(); err != nil {
		return nil, outcome, err
	}
	if outcome.Failed() == len(c.strategies) {
		return nil, outcome, types.ErrAllStrategiesFailed
	}

	for _, r := range results {
		outcome.Candidates += len(r)
	}
	merged := Merge(results...)
	outcome.Merged = len(merged)

	kept := make([]types.Topic, 0, len(merged))
	for _, t := range merged {
		if !window.Overlaps(t.CreatedAt, t.LastActivityAt) {
			outcome.OutOfWindow++
			continue
		}
		t.Relevance = c.scorer.Score(t.Title, t.Excerpt)
		if !c.scorer.Keep(t.Relevance) {
			outcome.BelowThreshold++
			c.logger.Debug("topic below relevance threshold", "topic_id", t.ID, "title", t.Title, "score", t.Relevance)
			continue
		}
		kept = append(kept, t)
	}
	if c.maxTopics > 0 && len(kept) > c.maxTopics {
		outcome.Capped = len(kept) - c.maxTopics
		kept = kept[:c.maxTopics]
	}
	outcome.Kept = len(kept)

	c.logger.Info("discovery complete",
		"candidates", outcome.Candidates,
		"merged", outcome.Merged,
		"out_of_window", outcome.OutOfWindow,
		"below_threshold", outcome.BelowThreshold,
		"capped", outcome.Capped,
		"kept", outcome.Kept,
	)
	return kept, outcome, nil
}

// Merge concatenates topic lists keyed by ID. The first record seen for an ID
// wins; later ones only fill fields it left empty.
func Merge(lists ...[]types.Topic) []types.Topic {
	index := make(map[int64]int)
	var out []types.Topic
	for _, list := range lists {
		for _, t := range list {
			pos, ok := index[t.ID]
			if !ok {
				index[t.ID] = len(out)
				out = append(out, t)
				continue
			}
			fillMissing(&out[pos], t)
		}
	}
	return out
}

func fillMissing(dst *types.Topic, src types.Topic) {
	if dst.Title == "" {
		dst.Title = src.Title
	}
	if dst.Slug == "" {
		dst.Slug = src.Slug
	}
	if dst.Category == "" {
		dst.Category = src.Category
	}
	if dst.CategoryID == 0 {
		dst.CategoryID = src.CategoryID
	}
	if dst.CreatedAt.IsZero() {
		dst.CreatedAt = src.CreatedAt
	}
	if dst.LastActivityAt.IsZero() {
		dst.LastActivityAt = src.LastActivityAt
	}
	if dst.Excerpt == "" {
		dst.Excerpt = src.Excerpt
	}
	if dst.PostsCount == 0 {
		dst.PostsCount = src.PostsCount
	}
	if dst.Views == 0 {
		dst.Views = src.Views
	}
}
