package collector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

// userAgent is sent on every request; the portals reject obvious bots.
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36"

const maxBodyBytes = 4 << 20 // 4MB per page

// FetchKind classifies transport-level failures.
type FetchKind int

const (
	FetchUnreachable FetchKind = iota
	FetchBadStatus
	FetchTimeout
)

func (k FetchKind) String() string {
	switch k {
	case FetchBadStatus:
		return "bad_status"
	case FetchTimeout:
		return "timeout"
	default:
		return "unreachable"
	}
}

// FetchError reports a failed page retrieval.
type FetchError struct {
	Kind   FetchKind
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Kind == FetchBadStatus {
		return fmt.Sprintf("fetch %s: %s %d", e.URL, e.Kind, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Client fetches pages with a browser User-Agent, a bounded timeout and one
// retry on transient failure. 4xx responses are never retried.
type Client struct {
	http *http.Client
}

func NewClient(timeout time.Duration) *Client {
	return &Client{http: &http.Client{Timeout: timeout}}
}

// HTTPClient exposes the underlying client for feed parsers that issue their
// own requests.
func (c *Client) HTTPClient() *http.Client { return c.http }

// Timeout returns the per-request timeout, for collectors configured apart.
func (c *Client) Timeout() time.Duration { return c.http.Timeout }

// Get retrieves a URL and returns its body.
func (c *Client) Get(ctx context.Context, pageURL string) ([]byte, error) {
	body, err := c.get(ctx, pageURL)
	if err == nil {
		return body, nil
	}
	var fe *FetchError
	if errors.As(err, &fe) && fe.Kind == FetchBadStatus && fe.Status < 500 {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, err
	}
	return c.get(ctx, pageURL)
}

// GetDocument retrieves a URL and parses it, returning both the document and
// the raw bytes for fallback extractors.
func (c *Client) GetDocument(ctx context.Context, pageURL string) (*goquery.Document, []byte, error) {
	body, err := c.Get(ctx, pageURL)
	if err != nil {
		return nil, nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, nil, &ExtractError{Kind: ExtractUnparseable, URL: pageURL}
	}
	return doc, body, nil
}

func (c *Client) get(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &FetchError{Kind: FetchUnreachable, URL: pageURL, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: classifyNetErr(err), URL: pageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{Kind: FetchBadStatus, URL: pageURL, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &FetchError{Kind: classifyNetErr(err), URL: pageURL, Err: err}
	}
	return body, nil
}

func classifyNetErr(err error) FetchKind {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return FetchTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FetchTimeout
	}
	return FetchUnreachable
}

const collyRetryKey = "retries"

// retryTransient retries a failed colly request once. 4xx responses and
// already-retried requests are left to fail.
func retryTransient(r *colly.Response) bool {
	if r.StatusCode >= 400 && r.StatusCode < 500 {
		return false
	}
	retries, _ := r.Request.Ctx.GetAny(collyRetryKey).(int)
	if retries >= 1 {
		return false
	}
	r.Request.Ctx.Put(collyRetryKey, retries+1)
	_ = r.Request.Retry()
	return true
}

// collyFetchError maps a colly failure onto the fetch taxonomy.
func collyFetchError(r *colly.Response, err error) *FetchError {
	u := r.Request.URL.String()
	if r.StatusCode >= 400 {
		return &FetchError{Kind: FetchBadStatus, URL: u, Status: r.StatusCode, Err: err}
	}
	return &FetchError{Kind: classifyNetErr(err), URL: u, Err: err}
}
