// Package registry pages through the FTC mail-order business registration
// API and builds a business → corporate registration number lookup.
//
// The API has no server-side filter by business number, so every page is
// walked and only requested numbers are kept. totalCount is re-read from each
// response; the page walk is best effort against a dataset that changes
// while it is being read.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/corpfetch/internal/errs"
	"github.com/JonMunkholm/corpfetch/internal/logging"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// DefaultPageSize is the numOfRows requested per page.
const DefaultPageSize = 1000

// maxBodySize caps one response body; a 1000-row page is well under 1MB.
const maxBodySize = 32 << 20

// Config configures a Client.
type Config struct {
	// BaseURL is the registry endpoint (required).
	BaseURL string

	// APIKey is the decoded service key (required). It is query-escaped into
	// serviceKey, so a key copied in its URL-encoded form must be decoded first.
	APIKey string

	// PageSize is numOfRows per request (default: 1000).
	PageSize int

	// Timeout bounds each page request attempt (default: 30s).
	Timeout time.Duration

	// MaxRetries is the number of extra attempts for transient failures.
	// Zero means single-attempt.
	MaxRetries int

	// RetryBackoff is the first backoff delay; it doubles per attempt
	// (default: 200ms).
	RetryBackoff time.Duration

	// RateLimit is requests per second across all pages; zero disables pacing.
	RateLimit float64

	// RateBurst is the limiter burst size (default: 1).
	RateBurst int

	// Concurrency is how many pages may be in flight at once (default: 1).
	Concurrency int

	// HTTPClient overrides the transport (for tests).
	HTTPClient *http.Client
}

// Client is a rate-limited, retrying registry API client.
type Client struct {
	cfg     Config
	baseURL *url.URL
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient validates cfg and applies defaults.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("registry: base URL is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("registry: API key is required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("registry: invalid base URL %q", cfg.BaseURL)
	}

	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 1
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	return &Client{
		cfg:     cfg,
		baseURL: u,
		http:    httpClient,
		limiter: rate.NewLimiter(limit, cfg.RateBurst),
	}, nil
}

// PageSize returns the effective numOfRows.
func (c *Client) PageSize() int {
	return c.cfg.PageSize
}

// FetchAll walks every page and returns crno by brno for the brnos in
// pending. Duplicates across pages resolve last-write-wins in page order.
//
// Any page failure discards all results: transport and parse failures return
// *errs.RegistryFetchError, deadline expiry returns *errs.TimeoutError.
func (c *Client) FetchAll(ctx context.Context, pending map[string]struct{}) (map[string]string, error) {
	logger := logging.FromContext(ctx)
	result := make(map[string]string)

	pageNo := 1
	totalCount := math.MaxInt // unknown until the first response
	pages := 0

	for c.hasPage(pageNo, totalCount) {
		n := c.batchSize(pageNo, totalCount)

		batch, err := c.fetchBatch(ctx, pageNo, n)
		if err != nil {
			return nil, err
		}

		for _, page := range batch {
			for _, item := range page.Items {
				brno := strings.TrimSpace(item.BRNO.String())
				if _, ok := pending[brno]; ok {
					result[brno] = strings.TrimSpace(item.CRNO.String())
				}
			}
			totalCount = page.TotalCount
			pages++
		}
		pageNo += n
	}

	logger.Info("registry fetch complete",
		"pages", pages,
		"total_count", totalCount,
		"pending", len(pending),
		"matched", len(result),
	)
	return result, nil
}

// hasPage applies the termination rule (pageNo-1)*numOfRows < totalCount.
func (c *Client) hasPage(pageNo, totalCount int) bool {
	return (pageNo-1)*c.cfg.PageSize < totalCount
}

// batchSize is how many pages to fetch concurrently from pageNo. The first
// page is always fetched alone to learn totalCount.
func (c *Client) batchSize(pageNo, totalCount int) int {
	if c.cfg.Concurrency <= 1 || totalCount == math.MaxInt {
		return 1
	}
	remaining := totalCount - (pageNo-1)*c.cfg.PageSize
	pagesLeft := (remaining + c.cfg.PageSize - 1) / c.cfg.PageSize
	return max(1, min(c.cfg.Concurrency, pagesLeft))
}

// fetchBatch fetches pages [first, first+n) and returns them in page order.
func (c *Client) fetchBatch(ctx context.Context, first, n int) ([]*Page, error) {
	if n == 1 {
		page, err := c.FetchPage(ctx, first)
		if err != nil {
			return nil, err
		}
		return []*Page{page}, nil
	}

	pages := make([]*Page, n)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			page, err := c.FetchPage(gctx, first+i)
			if err != nil {
				return err
			}
			pages[i] = page
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pages, nil
}

// FetchPage fetches and decodes one page, retrying transient failures.
func (c *Client) FetchPage(ctx context.Context, pageNo int) (*Page, error) {
	logger := logging.WithFields(ctx, "page", pageNo)
	reqURL := c.pageURL(pageNo)

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.cfg.RetryBackoff * time.Duration(1<<uint(attempt-1))
			logger.Warn("registry page failed, retrying",
				"attempt", attempt,
				"backoff", backoff,
				"error", lastErr,
			)
			select {
			case <-ctx.Done():
				return nil, c.classify(pageNo, ctx.Err())
			case <-time.After(backoff):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, c.classify(pageNo, err)
		}

		page, err := c.fetchOnce(ctx, reqURL, pageNo)
		if err == nil {
			logger.Debug("registry page fetched", "items", len(page.Items), "total_count", page.TotalCount)
			return page, nil
		}
		lastErr = err

		if ctx.Err() != nil || !isRetryable(err) {
			break
		}
	}

	return nil, c.classify(pageNo, lastErr)
}

// classify turns a final page error into the registry error taxonomy.
func (c *Client) classify(pageNo int, err error) error {
	if errs.IsTimeout(err) {
		return &errs.TimeoutError{Stage: "registry page " + strconv.Itoa(pageNo), Err: err}
	}
	return &errs.RegistryFetchError{Page: pageNo, Err: err}
}

func (c *Client) fetchOnce(ctx context.Context, reqURL string, pageNo int) (*Page, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &transportError{err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &transportError{err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{StatusCode: resp.StatusCode, Body: snippet(body)}
	}

	return decodePage(pageNo, body)
}

func (c *Client) pageURL(pageNo int) string {
	u := *c.baseURL
	q := u.Query()
	q.Set("serviceKey", c.cfg.APIKey)
	q.Set("pageNo", strconv.Itoa(pageNo))
	q.Set("numOfRows", strconv.Itoa(c.cfg.PageSize))
	u.RawQuery = q.Encode()
	return u.String()
}

// transportError marks failures before a status code was received.
type transportError struct {
	err error
}

func (e *transportError) Error() string { return "transport: " + e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

// statusError is a non-200 registry response.
type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// isRetryable reports transient failures: transport errors (including
// per-attempt timeouts), 429 and 5xx. Parse errors and other 4xx are final.
func isRetryable(err error) bool {
	var tErr *transportError
	if errors.As(err, &tErr) {
		return !errors.Is(err, context.Canceled)
	}
	var sErr *statusError
	if errors.As(err, &sErr) {
		return sErr.StatusCode == http.StatusTooManyRequests || sErr.StatusCode >= 500
	}
	return false
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
