package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks operational metrics for a harvest run. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requests         *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	retries          prometheus.Counter
	topicsDiscovered *prometheus.CounterVec
	topicsFailed     prometheus.Counter
	topicsSkipped    prometheus.Counter
	postsExtracted   prometheus.Counter
	postsPersisted   prometheus.Counter
	rejections       *prometheus.CounterVec
	activeWorkers    prometheus.Gauge

	logger *slog.Logger
	server *http.Server
}

// NewMetrics creates a Metrics instance backed by a private registry.
func NewMetrics(logger *slog.Logger) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvest_requests_total",
			Help: "Total upstream requests by surface and outcome",
		}, []string{"surface", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "harvest_request_duration_seconds",
			Help:    "Duration of upstream requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"surface"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvest_request_retries_total",
			Help: "Total request retries",
		}),
		topicsDiscovered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvest_topics_discovered_total",
			Help: "Topics returned by each discovery strategy",
		}, []string{"strategy"}),
		topicsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvest_topics_failed_total",
			Help: "Topics whose extraction failed on every path",
		}),
		topicsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvest_topics_skipped_total",
			Help: "Topics left unextracted because the run was stopping",
		}),
		postsExtracted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvest_posts_extracted_total",
			Help: "Posts that passed validation",
		}),
		postsPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvest_posts_persisted_total",
			Help: "Posts written to the store",
		}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvest_rejections_total",
			Help: "Rejected records by reason",
		}, []string{"reason"}),
		activeWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "harvest_active_workers",
			Help: "Workers currently extracting a topic",
		}),
		logger: logger.With("component", "metrics"),
	}
	reg.MustRegister(
		m.requests, m.requestDuration, m.retries,
		m.topicsDiscovered, m.topicsFailed, m.topicsSkipped,
		m.postsExtracted, m.postsPersisted, m.rejections,
		m.activeWorkers,
	)
	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRequest counts one finished request.
func (m *Metrics) RecordRequest(surface, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(surface, outcome).Inc()
	m.requestDuration.WithLabelValues(surface).Observe(d.Seconds())
}

func (m *Metrics) RecordRetry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) RecordTopics(strategy string, n int) {
	if m == nil {
		return
	}
	m.topicsDiscovered.WithLabelValues(strategy).Add(float64(n))
}

func (m *Metrics) RecordTopicFailure() {
	if m == nil {
		return
	}
	m.topicsFailed.Inc()
}

func (m *Metrics) RecordTopicSkipped() {
	if m == nil {
		return
	}
	m.topicsSkipped.Inc()
}

func (m *Metrics) RecordPost() {
	if m == nil {
		return
	}
	m.postsExtracted.Inc()
}

func (m *Metrics) RecordPersisted(n int) {
	if m == nil {
		return
	}
	m.postsPersisted.Add(float64(n))
}

func (m *Metrics) RecordRejection(reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(reason).Inc()
}

// WorkerStarted and WorkerDone track the active worker gauge.
func (m *Metrics) WorkerStarted() {
	if m == nil {
		return
	}
	m.activeWorkers.Inc()
}

func (m *Metrics) WorkerDone() {
	if m == nil {
		return
	}
	m.activeWorkers.Dec()
}

// Handler returns the exposition handler for the private registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer starts the metrics HTTP server in the background.
func (m *Metrics) StartServer(port int, path string) error {
	if m == nil {
		return errors.New("metrics are disabled")
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	addr := fmt.Sprintf(":%d", port)
	m.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	m.logger.Info("metrics server starting", "addr", addr, "path", path)

	go func() {
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("metrics server error", "error", err)
		}
	}()

	return nil
}

// Shutdown stops the metrics server if it was started.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil || m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}
