package types

import (
	"bytes"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Response is a successful fetch as seen by the extraction layers. Non-2xx
// statuses never produce a Response; they surface as *FetchError.
type Response struct {
	StatusCode  int
	Headers     http.Header
	Body        []byte // decoded
	Request     *Request
	Surface     Surface
	ContentType string
	FinalURL    string // after redirects

	// FetchDuration is how long the final attempt took.
	FetchDuration time.Duration
	FetchedAt     time.Time
	// Attempts is how many attempts the access layer needed.
	Attempts int

	doc *goquery.Document
}

// NewResponse creates a Response from an http.Response.
func NewResponse(req *Request, httpResp *http.Response, body []byte, duration time.Duration) *Response {
	finalURL := req.URLString()
	if httpResp.Request != nil && httpResp.Request.URL != nil {
		finalURL = httpResp.Request.URL.String()
	}
	return &Response{
		StatusCode:    httpResp.StatusCode,
		Headers:       httpResp.Header,
		Body:          body,
		Request:       req,
		Surface:       req.Surface,
		ContentType:   httpResp.Header.Get("Content-Type"),
		FinalURL:      finalURL,
		FetchDuration: duration,
		FetchedAt:     time.Now().UTC(),
	}
}

// NewBrowserResponse creates a Response from a rendered page. A zero status
// means the document response was not observed and is recorded as 200.
func NewBrowserResponse(req *Request, status int, body []byte, finalURL string, duration time.Duration) *Response {
	if status == 0 {
		status = http.StatusOK
	}
	return &Response{
		StatusCode:    status,
		Headers:       make(http.Header),
		Body:          body,
		Request:       req,
		Surface:       req.Surface,
		ContentType:   "text/html",
		FinalURL:      finalURL,
		FetchDuration: duration,
		FetchedAt:     time.Now().UTC(),
	}
}

// MediaType returns the content type without parameters, or "" when the
// server sent none.
func (r *Response) MediaType() string {
	if r.ContentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(r.ContentType)
	if err != nil {
		return r.ContentType
	}
	return mt
}

// BodyReader returns a fresh reader over the body.
func (r *Response) BodyReader() io.Reader {
	return bytes.NewReader(r.Body)
}

// Document returns the body parsed as HTML. The result is cached.
func (r *Response) Document() (*goquery.Document, error) {
	if r.doc != nil {
		return r.doc, nil
	}
	doc, err := goquery.NewDocumentFromReader(r.BodyReader())
	if err != nil {
		return nil, err
	}
	r.doc = doc
	return doc, nil
}
