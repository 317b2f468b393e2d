package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/IshaanNene/ForumHarvest/internal/observability"
	"github.com/IshaanNene/ForumHarvest/internal/types"
)

// Extractor retrieves the raw posts of one topic. It may return partial
// results together with an error.
type Extractor interface {
	Extract(ctx context.Context, topic types.Topic, stop types.ShutdownSignal) ([]types.RawPost, error)
}

// Validator turns a raw post into a post or a rejection.
type Validator interface {
	Validate(raw types.RawPost) (*types.Post, *types.Rejection)
}

// Coordinator fans topics out to a bounded pool of workers.
type Coordinator struct {
	extractor    Extractor
	validator    Validator
	rc           *RunContext
	topicTimeout time.Duration
	metrics      *observability.Metrics
	logger       *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTopicTimeout bounds the time spent on a single topic.
func WithTopicTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.topicTimeout = d }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// NewCoordinator creates a Coordinator for one run.
func NewCoordinator(ex Extractor, v Validator, rc *RunContext, logger *slog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		extractor: ex,
		validator: v,
		rc:        rc,
		logger:    logger.With("component", "coordinator"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run processes topics with at most maxWorkers concurrent extractions and
// streams every outcome. The channel is closed once all workers exit.
// Results of one topic arrive in extraction order; topics interleave freely.
func (c *Coordinator) Run(ctx context.Context, topics []types.Topic, maxWorkers int) <-chan types.Result {
	if maxWorkers < 1 {
		maxWorkers = 1
	}

	out := make(chan types.Result, maxWorkers*8)
	jobs := make(chan types.Topic)

	c.logger.Info("starting worker pool", "workers", maxWorkers, "topics", len(topics))

	var wg sync.WaitGroup
	for i := 0; i < maxWorkers; i++ {
		wg.Add(1)
		go c.worker(ctx, i, jobs, out, &wg)
	}

	go func() {
		defer close(jobs)
		for _, t := range topics {
			if c.rc.ShutdownRequested() {
				return
			}
			select {
			case jobs <- t:
			case <-ctx.Done():
				return
			case <-c.rc.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}
