package types

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Surface identifies which representation of an upstream resource a request
// targets. It selects Accept headers and, optionally, the fetcher backend.
type Surface string

const (
	SurfaceJSON   Surface = "json"
	SurfaceMarkup Surface = "html"
	SurfaceFeed   Surface = "feed"
)

// Request represents an HTTP request to be sent through the access layer.
type Request struct {
	// URL is the target URL to fetch.
	URL *url.URL

	// Method is the HTTP method. Defaults to GET.
	Method string

	// Headers are custom HTTP headers to send with the request.
	Headers http.Header

	// Surface is the representation requested.
	Surface Surface

	// Timeout overrides the client request timeout for this request.
	Timeout time.Duration

	// Tag categorizes this request (e.g., "latest", "topic", "search").
	Tag string

	// CreatedAt is when this request was created.
	CreatedAt time.Time
}

// NewRequest creates a new GET Request for the given surface.
func NewRequest(rawURL string, surface Surface) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidURL, rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w %q: scheme must be http or https", ErrInvalidURL, rawURL)
	}

	return &Request{
		URL:       u,
		Method:    http.MethodGet,
		Headers:   make(http.Header),
		Surface:   surface,
		CreatedAt: time.Now(),
	}, nil
}

// URLString returns the string representation of the request URL.
func (r *Request) URLString() string {
	if r.URL == nil {
		return ""
	}
	return r.URL.String()
}

// Host returns the host (with port) of the request URL, used as throttle key.
func (r *Request) Host() string {
	if r.URL == nil {
		return ""
	}
	return r.URL.Host
}
