// Package harvest wires discovery, extraction, validation and persistence
// into a single run.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/IshaanNene/ForumHarvest/internal/config"
	"github.com/IshaanNene/ForumHarvest/internal/discourse"
	"github.com/IshaanNene/ForumHarvest/internal/discovery"
	"github.com/IshaanNene/ForumHarvest/internal/engine"
	"github.com/IshaanNene/ForumHarvest/internal/extractor"
	"github.com/IshaanNene/ForumHarvest/internal/fetcher"
	"github.com/IshaanNene/ForumHarvest/internal/observability"
	"github.com/IshaanNene/ForumHarvest/internal/pipeline"
	"github.com/IshaanNene/ForumHarvest/internal/report"
	"github.com/IshaanNene/ForumHarvest/internal/storage"
	"github.com/IshaanNene/ForumHarvest/internal/types"
)

// Harvester runs one harvest against a forum.
type Harvester struct {
	cfg     *config.Config
	store   storage.Store
	client  *fetcher.Client
	metrics *observability.Metrics
	logger  *slog.Logger
}

// Option configures a Harvester.
type Option func(*Harvester)

// WithStore uses s instead of opening the configured backend. The caller
// keeps ownership of s.
func WithStore(s storage.Store) Option {
	return func(h *Harvester) { h.store = s }
}

// WithClient uses c instead of building one from the fetcher config.
func WithClient(c *fetcher.Client) Option {
	return func(h *Harvester) { h.client = c }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(h *Harvester) { h.metrics = m }
}

// New creates a Harvester for cfg.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Harvester {
	h := &Harvester{
		cfg:    cfg,
		logger: logger.With("component", "harvester"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Summary is the result of a run.
type Summary struct {
	Run    types.ScrapeRun
	Report *report.Report
}

// Run executes the harvest described by rc. Per-topic failures are isolated.
// A *types.StorageError aborts the run: the run row is not written, but the
// report of what was persisted is still built and returned with the error.
// Total discovery failure returns types.ErrAllStrategiesFailed after the run
// row is written.
func (h *Harvester) Run(ctx context.Context, rc *engine.RunContext) (*Summary, error) {
	site, err := discourse.NewSite(rc.BaseURL)
	if err != nil {
		return nil, err
	}

	client := h.client
	if client == nil {
		client, err = h.buildClient()
		if err != nil {
			return nil, err
		}
		defer client.Close()
	}

	store := h.store
	if store == nil {
		store, err = storage.Open(ctx, h.cfg.Storage, h.logger)
		if err != nil {
			return nil, err
		}
		defer store.Close()
	}

	sinks, err := h.openSinks(site.Base())
	if err != nil {
		return nil, err
	}

	h.logger.Info("harvest starting",
		"run_id", rc.ID,
		"base_url", site.Base(),
		"window_start", rc.Window.Start.Format(types.DateLayout),
		"window_end", rc.Window.End.Format(types.DateLayout),
		"store", store.Name(),
	)

	topics, outcome, discErr := h.discover(ctx, client, site, rc.Window)
	if discErr != nil && !errors.Is(discErr, types.ErrAllStrategiesFailed) {
		sinks.Close()
		return nil, discErr
	}

	st := &state{}
	runErr := h.persistAll(ctx, rc, client, site, store, sinks, topics, st)

	run := types.ScrapeRun{
		ID:               rc.ID,
		StartedAt:        rc.StartedAt,
		FinishedAt:       rc.Now().UTC(),
		BaseURL:          site.Base(),
		WindowStart:      rc.Window.Start,
		WindowEnd:        rc.Window.End,
		TopicsDiscovered: len(topics),
		PostsPersisted:   st.persisted,
		PostsRejected:    len(st.rejections),
		ToolVersion:      config.Version,
	}
	// Written exactly once, and only for a run whose writes all landed.
	if runErr == nil {
		runErr = store.FinalizeRun(context.WithoutCancel(ctx), run)
	}
	if err := sinks.Close(); err != nil {
		h.logger.Error("output files incomplete", "error", err)
	}

	rep := report.Build(report.Input{
		Run:        run,
		Posts:      st.posts,
		Rejections: st.rejections,
		Failures:   st.failures,
		Skipped:    st.skipped,
		Discovery:  outcome,
	})
	if path := h.cfg.Storage.ReportPath; path != "" {
		if err := rep.WriteJSON(path); err != nil {
			h.logger.Error("report not written", "path", path, "error", err)
		}
	}
	summary := &Summary{Run: run, Report: rep}

	if runErr != nil {
		h.logger.Error("harvest aborted",
			"run_id", rc.ID,
			"persisted", st.persisted,
			"error", runErr,
		)
		return summary, runErr
	}

	h.logger.Info("harvest finished",
		"run_id", rc.ID,
		"topics", len(topics),
		"persisted", st.persisted,
		"rejected", len(st.rejections),
		"failed_topics", len(st.failures),
		"skipped_topics", len(st.skipped),
		"stopped", rc.ShutdownRequested(),
	)
	return summary, discErr
}

// persistAll upserts the discovered topics, seeds the run's duplicate check
// from the store and streams every topic through extraction. Only storage
// failures are returned.
func (h *Harvester) persistAll(ctx context.Context, rc *engine.RunContext, client *fetcher.Client, site *discourse.Site, store storage.Store, sinks storage.Sink, topics []types.Topic, st *state) error {
	if len(topics) == 0 {
		return nil
	}
	if err := store.UpsertTopics(ctx, topics); err != nil {
		return err
	}
	owners, err := store.ContentOwners(ctx)
	if err != nil {
		return err
	}
	rc.SeedHashes(owners)
	return h.fetchAll(ctx, rc, client, site, store, sinks, topics, st)
}

func (h *Harvester) buildClient() (*fetcher.Client, error) {
	structured, err := fetcher.New(h.cfg.Fetcher.Type, h.cfg, h.logger)
	if err != nil {
		return nil, fmt.Errorf("structured fetcher: %w", err)
	}
	opts := []fetcher.ClientOption{
		fetcher.WithThrottle(fetcher.NewThrottle(h.cfg.Fetcher.PolitenessDelay)),
		fetcher.WithRetryPolicy(fetcher.PolicyFromConfig(&h.cfg.Fetcher)),
		fetcher.WithMetrics(h.metrics),
	}
	if mt := h.cfg.Fetcher.MarkupType; mt != "" && mt != h.cfg.Fetcher.Type {
		markup, err := fetcher.New(mt, h.cfg, h.logger)
		if err != nil {
			structured.Close()
			return nil, fmt.Errorf("markup fetcher: %w", err)
		}
		opts = append(opts, fetcher.WithSurfaceFetcher(types.SurfaceMarkup, markup))
	}
	return fetcher.NewClient(structured, h.logger, opts...), nil
}

func (h *Harvester) openSinks(baseURL string) (*storage.MultiSink, error) {
	var sinks []storage.Sink
	if path := h.cfg.Storage.OutputJSON; path != "" {
		s, err := storage.NewJSONOutput(path, baseURL, config.Version, h.logger)
		if err != nil {
			return nil, &types.StorageError{Backend: "json", Op: "open", Err: err}
		}
		sinks = append(sinks, s)
	}
	if path := h.cfg.Storage.OutputCSV; path != "" {
		s, err := storage.NewCSVOutput(path, h.logger)
		if err != nil {
			return nil, &types.StorageError{Backend: "csv", Op: "open", Err: err}
		}
		sinks = append(sinks, s)
	}
	return storage.NewMultiSink(sinks, h.logger), nil
}

func (h *Harvester) discover(ctx context.Context, client *fetcher.Client, site *discourse.Site, window types.Window) ([]types.Topic, discovery.Outcome, error) {
	strategies, err := discovery.NewStrategies(h.cfg.Discovery.Strategies, client, site, h.cfg, h.logger)
	if err != nil {
		return nil, discovery.Outcome{}, err
	}
	coord := discovery.NewCoordinator(
		discovery.NewScorer(h.cfg.Relevance),
		h.cfg.Discovery.MaxTopics,
		h.logger,
		discovery.WithMetrics(h.metrics),
	)
	for _, s := range strategies {
		coord.Register(s)
	}
	return coord.Discover(ctx, window)
}

// state accumulates the outcome of the fetch phase.
type state struct {
	persisted  int
	posts      []*types.Post
	rejections []types.Rejection
	failures   []types.TopicFailure
	skipped    []types.TopicSkip
}

// fetchAll streams topics through the coordinator and persists accepted posts
// in batches as they arrive.
func (h *Harvester) fetchAll(ctx context.Context, rc *engine.RunContext, client *fetcher.Client, site *discourse.Site, store storage.Store, sinks storage.Sink, topics []types.Topic, st *state) error {
	ex := extractor.New(client, site, h.cfg.Extractor, h.logger, extractor.WithNow(rc.Now))
	v := pipeline.NewValidator(pipeline.ValidatorOptions{
		Config: h.cfg.Validation,
		Window: &rc.Window,
		Dedup:  rc,
		Now:    rc.Now,
		RunID:  rc.ID,
	}, h.logger)

	// Accepted posts are committed even after ctx is cancelled.
	pctx := context.WithoutCancel(ctx)
	fctx, cancel := context.WithCancel(ctx)
	defer cancel()

	coord := engine.NewCoordinator(ex, v, rc, h.logger,
		engine.WithTopicTimeout(h.cfg.Engine.TopicTimeout),
		engine.WithMetrics(h.metrics),
	)
	workers := h.cfg.Engine.MaxWorkers
	results := coord.Run(fctx, topics, workers)

	batchSize := max(h.cfg.Storage.BatchSize, 1)
	batch := make([]*types.Post, 0, batchSize)
	var storeErr error

	flush := func() {
		if len(batch) == 0 || storeErr != nil {
			return
		}
		n, err := store.UpsertPosts(pctx, batch)
		if err != nil {
			storeErr = err
			h.logger.Error("persistence failed, aborting run", "error", err)
			rc.RequestShutdown()
			cancel()
			return
		}
		st.persisted += n
		h.metrics.RecordPersisted(n)
		st.posts = append(st.posts, batch...)
		if err := sinks.Write(batch); err != nil {
			h.logger.Error("output write failed", "error", err)
		}
		batch = make([]*types.Post, 0, batchSize)
	}

	for r := range results {
		switch {
		case r.Post != nil:
			if storeErr != nil {
				continue
			}
			batch = append(batch, r.Post)
			if len(batch) >= batchSize {
				flush()
			}
		case r.Rejection != nil:
			st.rejections = append(st.rejections, *r.Rejection)
		case r.Failure != nil:
			st.failures = append(st.failures, *r.Failure)
		case r.Skipped != nil:
			st.skipped = append(st.skipped, *r.Skipped)
		}
	}
	flush()
	return storeErr
}
