package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// ErrorKind classifies a fetch failure
type ErrorKind string

// Fetch failure kinds
const (
	KindTimeout          ErrorKind = "timeout"
	KindConnection       ErrorKind = "connection_error"
	KindHTTP             ErrorKind = "http_error"
	KindTooManyRedirects ErrorKind = "too_many_redirects"
	KindInvalidURL       ErrorKind = "invalid_url"
)

// errTooManyRedirects is returned by the client's CheckRedirect hook
var errTooManyRedirects = errors.New("stopped after 10 redirects")

// FetchError describes a failed fetch attempt. Status is set only for
// KindHTTP.
type FetchError struct {
	URL    string
	Kind   ErrorKind
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Kind == KindHTTP {
		return fmt.Sprintf("fetch %s: http status %d", e.URL, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is transient. Timeouts, connection
// errors and 5xx responses are retried; 4xx responses, redirect loops and
// malformed URLs are not.
func (e *FetchError) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindConnection:
		return true
	case KindHTTP:
		return e.Status >= 500
	default:
		return false
	}
}

// classifyTransportError maps a transport-level error from http.Client.Do
// into the fetch error taxonomy.
func classifyTransportError(rawURL string, err error) *FetchError {
	if errors.Is(err, errTooManyRedirects) {
		return &FetchError{URL: rawURL, Kind: KindTooManyRedirects, Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &FetchError{URL: rawURL, Kind: KindTimeout, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &FetchError{URL: rawURL, Kind: KindTimeout, Err: err}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return &FetchError{URL: rawURL, Kind: KindTimeout, Err: err}
	}

	return &FetchError{URL: rawURL, Kind: KindConnection, Err: err}
}
