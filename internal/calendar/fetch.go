package calendar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxFeedBytes bounds how much of a feed response is read.
const maxFeedBytes = 10 << 20

// Fetcher retrieves raw feed documents over HTTP.
type Fetcher struct {
	client   *http.Client
	baseURL  string
	timeout  time.Duration
	maxBytes int64
}

// NewFetcher creates a fetcher. Root-relative feed paths ("/fixtures/a.ics")
// are resolved against baseURL; timeout bounds each fetch.
func NewFetcher(baseURL string, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{
		client:   &http.Client{},
		baseURL:  strings.TrimRight(baseURL, "/"),
		timeout:  timeout,
		maxBytes: maxFeedBytes,
	}
}

// WithClient replaces the HTTP client. Used by tests.
func (f *Fetcher) WithClient(c *http.Client) *Fetcher {
	f.client = c
	return f
}

// Resolve turns a stored feed URL into an absolute URL.
func (f *Fetcher) Resolve(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "/") {
		if f.baseURL == "" {
			return "", errors.New("relative feed path without a base URL")
		}
		return f.baseURL + raw, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return raw, nil
}

// Fetch downloads the feed at raw. Every failure is a *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, raw string) ([]byte, error) {
	target, err := f.Resolve(raw)
	if err != nil {
		return nil, &FetchError{URL: redactURL(raw), Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &FetchError{URL: redactURL(target), Err: err}
	}
	req.Header.Set("Accept", "text/calendar, */*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: redactURL(target), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &FetchError{URL: redactURL(target), StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, &FetchError{URL: redactURL(target), Err: fmt.Errorf("reading body: %w", err)}
	}
	if int64(len(body)) > f.maxBytes {
		return nil, &FetchError{URL: redactURL(target), Err: fmt.Errorf("%w: limit is %d bytes", ErrFeedTooLarge, f.maxBytes)}
	}

	return body, nil
}

// redactURL keeps scheme and host only. Feed URLs usually carry an access
// token in the path or query.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "feed://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
