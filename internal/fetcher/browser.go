package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/IshaanNene/ForumHarvest/internal/config"
	"github.com/IshaanNene/ForumHarvest/internal/types"
)

// BrowserFetcher implements Fetcher using a headless browser via Rod. It is
// meant for the markup surface of forums that only render posts with JS.
type BrowserFetcher struct {
	browser  *rod.Browser
	cfg      *config.FetcherConfig
	logger   *slog.Logger
	pagePool chan *rod.Page
	maxPages int
	ready    string
}

// defaultReadySelector matches elements that only exist once Discourse has
// rendered posts or a topic list.
const defaultReadySelector = "div.crawler-post, article[data-post-id], tr.topic-list-item, .search-results"

// BrowserOption configures the BrowserFetcher.
type BrowserOption func(*BrowserFetcher)

// WithMaxPages sets the maximum number of pooled browser pages.
func WithMaxPages(n int) BrowserOption {
	return func(bf *BrowserFetcher) {
		if n > 0 {
			bf.maxPages = n
		}
	}
}

// NewBrowserFetcher launches Chromium and connects to it.
func NewBrowserFetcher(cfg *config.FetcherConfig, logger *slog.Logger, opts ...BrowserOption) (*BrowserFetcher, error) {
	bf := &BrowserFetcher{
		cfg:      cfg,
		logger:   logger.With("component", "browser_fetcher"),
		maxPages: 2,
		ready:    defaultReadySelector,
	}
	for _, opt := range opts {
		opt(bf)
	}

	launchURL, err := launcher.New().
		Headless(true).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-blink-features", "AutomationControlled").
		Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(launchURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	bf.browser = browser
	bf.pagePool = make(chan *rod.Page, bf.maxPages)

	bf.logger.Info("browser fetcher ready",
		"max_pages", bf.maxPages,
		"stealth", cfg.Stealth,
	)

	return bf, nil
}

// Fetch navigates to a URL and returns the rendered page content.
func (bf *BrowserFetcher) Fetch(ctx context.Context, req *types.Request) (*types.Response, error) {
	start := time.Now()

	page, err := bf.getPage()
	if err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Kind: types.KindNetwork, Err: err, Retryable: true}
	}
	defer bf.putPage(page)

	page = page.Context(ctx)

	if ua := req.Headers.Get("User-Agent"); ua != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua}); err != nil {
			bf.logger.Warn("failed to set user agent", "error", err)
		}
	}

	timeout := bf.cfg.RequestTimeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}

	// The document response carries the status the rendered page hides.
	var status int
	events := page.Timeout(timeout)
	defer events.CancelTimeout()
	waitStatus := events.EachEvent(func(e *proto.NetworkResponseReceived) bool {
		if e.Type != proto.NetworkResourceTypeDocument {
			return false
		}
		status = e.Response.Status
		return true
	})

	if err := page.Timeout(timeout).Navigate(req.URLString()); err != nil {
		kind := types.KindNetwork
		if ctx.Err() != nil || isTimeout(err) {
			kind = types.KindTimeout
		}
		return nil, &types.FetchError{URL: req.URLString(), Kind: kind, Err: err, Retryable: ctx.Err() == nil}
	}

	waitStatus()
	if fe := documentStatusError(req, status); fe != nil {
		return nil, fe
	}

	bf.waitReady(page, timeout)

	html, err := page.HTML()
	if err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Kind: types.KindNetwork, Err: err, Retryable: true}
	}

	finalURL := req.URLString()
	if info, err := page.Info(); err == nil && info != nil {
		finalURL = info.URL
	}

	duration := time.Since(start)
	resp := types.NewBrowserResponse(req, status, []byte(html), finalURL, duration)

	bf.logger.Debug("browser fetch complete",
		"url", req.URLString(),
		"final_url", finalURL,
		"status", resp.StatusCode,
		"size", len(html),
		"duration", duration,
	)

	return resp, nil
}

// documentStatusError classifies the status of a rendered document. Zero means
// no document response was observed and counts as success.
func documentStatusError(req *types.Request, status int) *types.FetchError {
	if status == 0 || (status >= 200 && status < 300) {
		return nil
	}
	return newStatusError(req, status, http.StatusText(status))
}

// waitReady blocks until the ready selector matches or the page settles. A
// page that never matches is still returned; the markup parser decides
// whether it holds posts.
func (bf *BrowserFetcher) waitReady(page *rod.Page, timeout time.Duration) {
	if bf.ready != "" {
		if _, err := page.Timeout(timeout / 2).Element(bf.ready); err == nil {
			return
		}
	}
	if err := page.Timeout(timeout / 2).WaitStable(300 * time.Millisecond); err != nil {
		bf.logger.Debug("page did not settle", "error", err)
	}
}

// Close shuts down the browser and releases resources.
func (bf *BrowserFetcher) Close() error {
	close(bf.pagePool)
	for page := range bf.pagePool {
		_ = page.Close()
	}
	if bf.browser != nil {
		return bf.browser.Close()
	}
	return nil
}

// Type returns the fetcher type identifier.
func (bf *BrowserFetcher) Type() string {
	return "browser"
}

// getPage retrieves a page from the pool or creates a new one, with the
// stealth evasions applied when enabled.
func (bf *BrowserFetcher) getPage() (*rod.Page, error) {
	select {
	case page := <-bf.pagePool:
		return page, nil
	default:
	}
	if bf.cfg.Stealth {
		return stealth.Page(bf.browser)
	}
	return bf.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
}

// putPage returns a page to the pool.
func (bf *BrowserFetcher) putPage(page *rod.Page) {
	_ = page.Navigate("about:blank")

	select {
	case bf.pagePool <- page:
	default:
		_ = page.Close()
	}
}
