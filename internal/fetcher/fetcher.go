// Package fetcher retrieves raw page content over HTTP. Transient failures
// (timeouts, connection errors, 5xx responses) are retried with exponential
// backoff; client errors and malformed URLs fail immediately.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// maxRedirects caps redirect chains before a fetch fails with
// KindTooManyRedirects
const maxRedirects = 10

// RawContent is the result of a successful fetch
type RawContent struct {
	URL         string    // Requested URL
	FinalURL    string    // Effective URL after redirects
	StatusCode  int       // HTTP status code (always < 400)
	ContentType string    // HTTP Content-Type header
	Body        []byte    // Raw response body
	FetchedAt   time.Time // Completion timestamp (UTC)
}

// Fetcher performs HTTP GET requests with retry and timeout handling
type Fetcher struct {
	client      *http.Client
	userAgent   string
	maxRetries  int
	backoffBase time.Duration
}

// Option configures a Fetcher
type Option func(*Fetcher)

// WithBackoffBase overrides the initial retry delay. Mainly used by tests to
// keep retry loops fast.
func WithBackoffBase(d time.Duration) Option {
	return func(f *Fetcher) {
		f.backoffBase = d
	}
}

// New creates a Fetcher. maxRetries bounds re-attempts for transient
// failures, so a fetch makes at most maxRetries+1 requests.
func New(userAgent string, timeout time.Duration, maxRetries int, opts ...Option) *Fetcher {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  false, // Enable automatic decompression
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errTooManyRedirects
			}
			return nil
		},
	}

	f := &Fetcher{
		client:      client,
		userAgent:   userAgent,
		maxRetries:  maxRetries,
		backoffBase: 250 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Fetch retrieves the content at rawURL. It returns a *FetchError describing
// the final failure once retries are exhausted or a non-retryable failure
// occurs.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*RawContent, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		return nil, &FetchError{URL: rawURL, Kind: KindInvalidURL, Err: err}
	}

	backoff := NewBackoff(f.backoffBase, 30*time.Second)

	for {
		content, ferr := f.doGet(ctx, rawURL)
		if ferr == nil {
			return content, nil
		}

		if !ferr.Retryable() || backoff.Attempt() >= f.maxRetries {
			return nil, ferr
		}

		delay := backoff.Next()
		slog.Debug("Retrying fetch", "url", rawURL, "attempt", backoff.Attempt(), "delay", delay, "reason", ferr.Kind)

		select {
		case <-ctx.Done():
			return nil, &FetchError{URL: rawURL, Kind: KindTimeout, Err: ctx.Err()}
		case <-time.After(delay):
		}
	}
}

// doGet performs a single GET attempt
func (f *Fetcher) doGet(ctx context.Context, rawURL string) (*RawContent, *FetchError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Kind: KindInvalidURL, Err: err}
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	// Don't set Accept-Encoding manually - let Go handle compression automatically

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(rawURL, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Debug("Failed to close response body", "url", rawURL, "error", err)
		}
	}()

	if resp.StatusCode >= 400 {
		// Drain the body so the connection can be reused
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &FetchError{URL: rawURL, Kind: KindHTTP, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Kind: KindConnection, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	return &RawContent{
		URL:         rawURL,
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
		FetchedAt:   time.Now().UTC(),
	}, nil
}

// Close closes idle connections held by the underlying client
func (f *Fetcher) Close() {
	f.client.CloseIdleConnections()
}
