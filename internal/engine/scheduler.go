package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/IshaanNene/ForumHarvest/internal/types"
)

// worker is a single extraction worker goroutine.
func (c *Coordinator) worker(ctx context.Context, id int, jobs <-chan types.Topic, out chan<- types.Result, wg *sync.WaitGroup) {
	defer wg.Done()
	logger := c.logger.With("worker_id", id)

	for topic := range jobs {
		if c.rc.ShutdownRequested() || ctx.Err() != nil {
			continue
		}
		if !c.rc.MarkTopic(topic.ID) {
			logger.Debug("topic already dispatched", "topic_id", topic.ID)
			continue
		}

		c.metrics.WorkerStarted()
		ok := c.processTopic(ctx, logger, topic, out)
		c.metrics.WorkerDone()
		if !ok {
			return
		}
	}
}

// processTopic extracts and validates one topic. It returns false when the
// output can no longer be delivered.
func (c *Coordinator) processTopic(ctx context.Context, logger *slog.Logger, topic types.Topic, out chan<- types.Result) bool {
	logger = logger.With("topic_id", topic.ID)

	tctx := ctx
	if c.topicTimeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(ctx, c.topicTimeout)
		defer cancel()
	}

	start := time.Now()
	raws, err := c.extractor.Extract(tctx, topic, c.rc)
	if len(raws) == 0 && errors.Is(err, types.ErrRunStopped) {
		c.metrics.RecordTopicSkipped()
		logger.Info("topic skipped, run stopping", "url", topic.URL)
		return c.send(ctx, out, types.Result{Skipped: &types.TopicSkip{TopicID: topic.ID, URL: topic.URL}})
	}
	if err != nil && len(raws) == 0 {
		c.metrics.RecordTopicFailure()
		logger.Warn("topic extraction failed", "url", topic.URL, "error", err)
		return c.send(ctx, out, types.Result{Failure: &types.TopicFailure{TopicID: topic.ID, URL: topic.URL, Err: err}})
	}
	if err != nil {
		logger.Warn("topic extraction incomplete", "posts", len(raws), "error", err)
	}

	accepted := 0
	for _, raw := range raws {
		post, rej := c.validator.Validate(raw)
		var r types.Result
		if rej != nil {
			c.metrics.RecordRejection(string(rej.Reason))
			r.Rejection = rej
		} else {
			c.metrics.RecordPost()
			accepted++
			r.Post = post
		}
		if !c.send(ctx, out, r) {
			return false
		}
	}

	logger.Debug("topic done",
		"extracted", len(raws),
		"accepted", accepted,
		"duration", time.Since(start),
	)
	return true
}

func (c *Coordinator) send(ctx context.Context, out chan<- types.Result, r types.Result) bool {
	select {
	case out <- r:
		return true
	case <-ctx.Done():
		return false
	}
}
