package pipeline

import (
	"fmt"
	"net/url"
	"strings"
)

// Canonicalize normalizes a URL to its canonical form used as the store key:
// lowercase scheme and host, default port stripped, fragment dropped, empty
// path replaced by "/". Query strings are preserved; URLs differing only in
// query are distinct pages.
func Canonicalize(rawURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q in URL %q", parsed.Scheme, rawURL)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("missing host in URL %q", rawURL)
	}

	parsed.Scheme = scheme
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""

	// Strip default ports
	if (scheme == "http" && strings.HasSuffix(parsed.Host, ":80")) ||
		(scheme == "https" && strings.HasSuffix(parsed.Host, ":443")) {
		parsed.Host = parsed.Host[:strings.LastIndex(parsed.Host, ":")]
	}

	if parsed.Path == "" {
		parsed.Path = "/"
	}

	return parsed.String(), nil
}

// hostOf returns the canonical scheme://host prefix of a URL, or "" when the
// URL does not parse
func hostOf(canonicalURL string) string {
	parsed, err := url.Parse(canonicalURL)
	if err != nil {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}
