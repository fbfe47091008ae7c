package catalyst

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/agencydesk/catalyst-etl/internal/config"
)

// Window is the modification interval a fetch is filtered to. A zero End
// means "up to now" and is resolved at request time.
type Window struct {
	Start time.Time
	End   time.Time
}

// apiDateFormat is what the vendor accepts in filter parameters.
const apiDateFormat = "2006-01-02T15:04:05"

// Client fetches resource pages from the Catalyst REST API. It owns request
// construction, the incremental filter dialects, retry of transient failures,
// and the single refresh-and-retry recovery on a rejected token.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     *TokenManager
	logger     *slog.Logger
	retry      RetryPolicy
	now        func() time.Time
}

// NewClient creates an API client using the given token manager.
func NewClient(cfg config.CatalystConfig, tokens *TokenManager, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		tokens: tokens,
		logger: logger,
		retry:  DefaultRetryPolicy(),
		now:    time.Now,
	}
}

// Pages returns an iterator over every page of path filtered to the window,
// starting at page 1. The iterator is for a single goroutine.
func (c *Client) Pages(ctx context.Context, path string, window Window, pageSize int) *PageIterator {
	return &PageIterator{
		client:   c,
		ctx:      ctx,
		path:     path,
		window:   window,
		pageSize: pageSize,
		next:     1,
	}
}

// PageIterator walks a paginated resource in the scanner style:
//
//	it := client.Pages(ctx, path, window, 100)
//	for it.Next() {
//	    page := it.Page()
//	    ...
//	}
//	if err := it.Err(); err != nil { ... }
type PageIterator struct {
	client   *Client
	ctx      context.Context
	path     string
	window   Window
	pageSize int

	next int
	page *Page
	err  error
	done bool
}

// Next fetches the next page, reporting whether one with items is available.
// It returns false after the final page or on the first error.
func (it *PageIterator) Next() bool {
	if it.done || it.err != nil {
		return false
	}

	page, err := it.client.FetchPage(it.ctx, it.path, it.window, it.next, it.pageSize)
	if err != nil {
		it.err = err
		it.done = true
		return false
	}

	if page.Empty() {
		it.done = true
		return false
	}
	if page.Last() {
		it.done = true
	}

	it.next++
	it.page = page
	return true
}

// Page returns the page fetched by the last successful Next.
func (it *PageIterator) Page() *Page {
	return it.page
}

// Err returns the error that terminated iteration, if any.
func (it *PageIterator) Err() error {
	return it.err
}

// FetchPage retrieves a single page of path. Transient failures are retried
// with backoff; a rejected token triggers exactly one forced refresh and one
// repeat of the request before the failure is treated as fatal.
func (c *Client) FetchPage(ctx context.Context, path string, window Window, pageNumber, pageSize int) (*Page, error) {
	reqURL, err := c.buildURL(path, window, pageNumber, pageSize)
	if err != nil {
		return nil, err
	}

	var page *Page
	err = Retry(ctx, c.retry, func() error {
		var fetchErr error
		page, fetchErr = c.doFetch(ctx, path, reqURL)
		if fetchErr == nil {
			return nil
		}

		var apiErr *APIError
		if errors.As(fetchErr, &apiErr) && apiErr.Transient() {
			return NewRetryableError(fetchErr)
		}
		return fetchErr
	})
	if err != nil {
		c.logger.Error("page fetch failed",
			"path", path,
			"page", pageNumber,
			"error", err)
		return nil, err
	}

	return page, nil
}

// doFetch performs one request cycle, including the single-shot token
// recovery on 401.
func (c *Client) doFetch(ctx context.Context, path, reqURL string) (*Page, error) {
	token, err := c.tokens.EnsureValidToken(ctx)
	if err != nil {
		return nil, err
	}

	page, status, err := c.request(ctx, path, reqURL, token)
	if status != http.StatusUnauthorized {
		return page, err
	}

	// The server rejected a token we believed valid. Refresh once and
	// repeat; a second 401 means the credentials themselves are bad.
	c.logger.Warn("token rejected, forcing refresh", "path", path)
	token, err = c.tokens.ForceRefresh(ctx)
	if err != nil {
		return nil, err
	}

	page, status, err = c.request(ctx, path, reqURL, token)
	if status == http.StatusUnauthorized {
		return nil, &AuthError{Err: fmt.Errorf("token rejected twice for %s", path)}
	}
	return page, err
}

// request executes a single HTTP GET and parses the response. The returned
// status is zero when no response was received.
func (c *Client) request(ctx context.Context, path, reqURL, token string) (*Page, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, &APIError{Path: path, Message: "create request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, &APIError{Path: path, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, &APIError{
			StatusCode: resp.StatusCode,
			Path:       path,
			Message:    "read response body",
			Err:        err,
		}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, &APIError{
			StatusCode: resp.StatusCode,
			Path:       path,
			Message:    truncate(string(body), 200),
		}
	}

	page, err := parsePage(body)
	if err != nil {
		return nil, resp.StatusCode, &APIError{
			StatusCode: resp.StatusCode,
			Path:       path,
			Message:    "malformed response",
			Err:        err,
		}
	}
	return page, resp.StatusCode, nil
}

// buildURL assembles the request URL with pagination and the incremental
// filter dialect the endpoint expects. Date-scoped report endpoints take
// startDate/endDate; everything else filters on lastModifiedStart/End.
func (c *Client) buildURL(path string, window Window, pageNumber, pageSize int) (string, error) {
	base, err := url.Parse(c.baseURL + "/" + strings.TrimLeft(path, "/"))
	if err != nil {
		return "", &APIError{Path: path, Message: "invalid request path", Err: err}
	}

	q := base.Query()
	q.Set("pageNumber", strconv.Itoa(pageNumber))
	q.Set("pageSize", strconv.Itoa(pageSize))

	if !window.Start.IsZero() || !window.End.IsZero() {
		if strings.Contains(path, "LastModifiedCreated") {
			if !window.Start.IsZero() {
				q.Set("startDate", window.Start.Format(apiDateFormat))
			}
			end := window.End
			if end.IsZero() {
				end = c.now()
			}
			q.Set("endDate", end.Format(apiDateFormat))
		} else {
			if !window.Start.IsZero() {
				q.Set("lastModifiedStart", window.Start.Format(apiDateFormat))
			}
			if !window.End.IsZero() {
				q.Set("lastModifiedEnd", window.End.Format(apiDateFormat))
			}
		}
	}

	base.RawQuery = q.Encode()
	return base.String(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
