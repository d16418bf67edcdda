// Package fetch is the shared conditional-GET primitive for upstream HTTP.
// Both the GitHub and registry adapters build on it: requests carry
// If-None-Match when an etag is known, and responses come back as a small
// taxonomy the task shell understands. Quota exhaustion (403) is its own
// error kind because the shell translates it into a retryable 502.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/flanksource/commons/logger"
)

// Response is the outcome of an upstream call that reached the server:
// 200 with a body, 304 not modified, 404 gone, or a 5xx.
type Response struct {
	StatusCode int
	Body       []byte
	Etag       string

	// RateLimitRemaining mirrors the X-RateLimit-Remaining header, -1 when
	// the upstream did not send one.
	RateLimitRemaining int
}

func (r *Response) OK() bool          { return r.StatusCode == http.StatusOK }
func (r *Response) NotModified() bool { return r.StatusCode == http.StatusNotModified }
func (r *Response) NotFound() bool    { return r.StatusCode == http.StatusNotFound }
func (r *Response) ServerError() bool { return r.StatusCode >= 500 }

// QuotaError reports an upstream 403. The platform resets quota on its own
// cadence, so callers treat this as transient and back off.
type QuotaError struct {
	URL       string
	Remaining int
}

func (e *QuotaError) Error() string {
	if e.Remaining >= 0 {
		return fmt.Sprintf("quota exceeded fetching %s (%d remaining)", e.URL, e.Remaining)
	}
	return fmt.Sprintf("quota exceeded fetching %s", e.URL)
}

// maxBody caps upstream bodies well above any manifest or readme we expect.
const maxBody = 32 << 20

// Do performs req, reading the body and extracting the etag and rate-limit
// headers. A 403 returns a *QuotaError; every other reachable status is
// returned as a Response for the caller to classify.
func Do(ctx context.Context, client *http.Client, req *http.Request) (*Response, error) {
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", req.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", req.URL, err)
	}

	remaining := -1
	if value := resp.Header.Get("X-RateLimit-Remaining"); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			remaining = parsed
		}
		logger.V(3).Infof("%s %s -> %d (rate limit remaining %s)", req.Method, req.URL.Path, resp.StatusCode, value)
	} else {
		logger.V(3).Infof("%s %s -> %d", req.Method, req.URL.Path, resp.StatusCode)
	}

	if resp.StatusCode == http.StatusForbidden {
		return nil, &QuotaError{URL: req.URL.String(), Remaining: remaining}
	}

	return &Response{
		StatusCode:         resp.StatusCode,
		Body:               body,
		Etag:               resp.Header.Get("ETag"),
		RateLimitRemaining: remaining,
	}, nil
}

// Get builds and performs a conditional GET. etag may be empty.
func Get(ctx context.Context, client *http.Client, url, etag string, header http.Header) (*Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	return Do(ctx, client, req)
}
