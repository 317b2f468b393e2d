package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/IshaanNene/ForumHarvest/internal/config"
	"github.com/IshaanNene/ForumHarvest/internal/types"
)

// maxRetryAfter caps how long a server may ask us to back off.
const maxRetryAfter = 2 * time.Minute

var acceptBySurface = map[types.Surface]string{
	types.SurfaceJSON:   "application/json, text/javascript, */*; q=0.01",
	types.SurfaceMarkup: "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	types.SurfaceFeed:   "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8",
}

// HTTPFetcher implements Fetcher using net/http.
type HTTPFetcher struct {
	client     *http.Client
	cfg        *config.FetcherConfig
	logger     *slog.Logger
	userAgents []string
	uaIndex    atomic.Int64
}

// NewHTTPFetcher creates a new HTTP fetcher.
func NewHTTPFetcher(cfg *config.FetcherConfig, logger *slog.Logger) (*HTTPFetcher, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: max(cfg.MaxIdleConns/2, 1),
		IdleConnTimeout:     cfg.IdleConnTimeout,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.TLSInsecure,
		},
		DisableCompression: true, // decoded below, brotli included
	}

	redirectPolicy := func(req *http.Request, via []*http.Request) error {
		if !cfg.FollowRedirects {
			return http.ErrUseLastResponse
		}
		if len(via) >= cfg.MaxRedirects {
			return fmt.Errorf("max redirects (%d) reached", cfg.MaxRedirects)
		}
		return nil
	}

	client := &http.Client{
		Transport:     transport,
		Jar:           jar,
		CheckRedirect: redirectPolicy,
	}

	return &HTTPFetcher{
		client:     client,
		cfg:        cfg,
		logger:     logger.With("component", "http_fetcher"),
		userAgents: cfg.UserAgents,
	}, nil
}

// Fetch executes one HTTP attempt and classifies the outcome.
func (f *HTTPFetcher) Fetch(ctx context.Context, req *types.Request) (*types.Response, error) {
	timeout := f.cfg.RequestTimeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URLString(), nil)
	if err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Kind: types.KindNetwork, Err: err}
	}

	f.setHeaders(httpReq, req)

	start := time.Now()
	httpResp, err := f.client.Do(httpReq)
	duration := time.Since(start)

	if err != nil {
		kind := types.KindNetwork
		if isTimeout(err) {
			kind = types.KindTimeout
		}
		return nil, &types.FetchError{
			URL:       req.URLString(),
			Kind:      kind,
			Err:       err,
			Retryable: isRetryableError(err),
		}
	}
	defer httpResp.Body.Close()

	if fe := statusError(req, httpResp); fe != nil {
		return nil, fe
	}

	var reader io.Reader = httpResp.Body
	if f.cfg.MaxBodySize > 0 {
		reader = io.LimitReader(reader, f.cfg.MaxBodySize)
	}

	reader, err = decompressReader(httpResp, reader)
	if err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Kind: types.KindNetwork, Err: err}
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Kind: types.KindNetwork, Err: err, Retryable: true}
	}

	resp := types.NewResponse(req, httpResp, body, duration)

	f.logger.Debug("fetch complete",
		"url", req.URLString(),
		"status", resp.StatusCode,
		"size", len(body),
		"duration", duration,
	)

	return resp, nil
}

// setHeaders applies the surface-specific negotiation headers, then any
// per-request overrides.
func (f *HTTPFetcher) setHeaders(httpReq *http.Request, req *types.Request) {
	accept, ok := acceptBySurface[req.Surface]
	if !ok {
		accept = acceptBySurface[types.SurfaceMarkup]
	}
	h := httpReq.Header
	h.Set("User-Agent", f.nextUserAgent())
	h.Set("Accept", accept)
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Accept-Encoding", "gzip, deflate, br")
	if req.Surface == types.SurfaceJSON {
		// Discourse serves the API payload instead of the app shell.
		h.Set("X-Requested-With", "XMLHttpRequest")
	}
	for key, values := range req.Headers {
		for _, v := range values {
			h.Set(key, v)
		}
	}
}

// statusError classifies a non-2xx response. It returns nil for success.
func statusError(req *types.Request, httpResp *http.Response) *types.FetchError {
	code := httpResp.StatusCode
	if code >= 200 && code < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
	fe := newStatusError(req, code, strings.TrimSpace(string(snippet)))
	if code == http.StatusTooManyRequests {
		fe.RetryAfter = parseRetryAfter(httpResp.Header.Get("Retry-After"), time.Now())
	}
	return fe
}

// newStatusError builds the error for a failed status. 429 and 5xx are
// retryable; other statuses are permanent.
func newStatusError(req *types.Request, code int, detail string) *types.FetchError {
	return &types.FetchError{
		URL:        req.URLString(),
		Kind:       types.KindHTTPStatus,
		StatusCode: code,
		Err:        fmt.Errorf("HTTP %d: %s", code, detail),
		Retryable:  code == http.StatusTooManyRequests || code >= 500,
	}
}

// Close releases resources.
func (f *HTTPFetcher) Close() error {
	f.client.CloseIdleConnections()
	return nil
}

// Type returns the fetcher type identifier.
func (f *HTTPFetcher) Type() string {
	return "http"
}

// nextUserAgent returns the next User-Agent in rotation.
func (f *HTTPFetcher) nextUserAgent() string {
	if len(f.userAgents) == 0 {
		return "ForumHarvest/" + config.Version
	}
	idx := f.uaIndex.Add(1) % int64(len(f.userAgents))
	return f.userAgents[idx]
}

// decompressReader wraps a reader with the appropriate decompressor.
func decompressReader(resp *http.Response, reader io.Reader) (io.Reader, error) {
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		return gzip.NewReader(reader)
	case "deflate":
		return flate.NewReader(reader), nil
	case "br":
		return brotli.NewReader(reader), nil
	default:
		return reader, nil
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// isRetryableError checks if a network error warrants a retry.
// Covers timeouts, connection resets, unexpected EOF, and connection refused.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	// Caller cancellation is never retried.
	if errors.Is(err, context.Canceled) {
		return false
	}
	if isTimeout(err) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errors.Is(opErr.Err, syscall.ECONNRESET) ||
			errors.Is(opErr.Err, syscall.ECONNREFUSED) {
			return true
		}
	}
	return false
}

// parseRetryAfter parses the Retry-After header value, either integer
// seconds or an HTTP-date. It returns 0 when the header is absent or invalid.
func parseRetryAfter(header string, now time.Time) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		if secs < 0 {
			return 0
		}
		return min(time.Duration(secs)*time.Second, maxRetryAfter)
	}
	if t, err := http.ParseTime(header); err == nil {
		d := t.Sub(now)
		if d < 0 {
			return 0
		}
		return min(d, maxRetryAfter)
	}
	return 0
}
