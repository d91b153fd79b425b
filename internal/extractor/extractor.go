// Package extractor turns raw HTML into a structured record: title, text
// content, and outbound links. Parsing is tolerant; malformed or partial
// markup degrades to best-effort (possibly empty) fields rather than failing.
package extractor

import (
	"crypto/sha256"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// ErrUnrecoverable marks extraction failures that cannot degrade gracefully,
// such as a base URL that does not parse. Malformed markup is never
// unrecoverable.
var ErrUnrecoverable = fmt.Errorf("unrecoverable extraction failure")

// Result contains the extracted page data. ContentHash is a deterministic
// digest over the whitespace-normalized text content, so byte-identical
// rendered text yields the same hash regardless of incidental markup
// differences.
type Result struct {
	Title       string
	Text        string
	Links       []string // Absolute outbound URLs, per-page deduped, insertion order
	ContentHash string
}

// Extractor parses HTML relative to a page's effective URL
type Extractor struct {
	baseURL *url.URL
}

// New creates an extractor for a page fetched from baseURL (the effective
// URL after redirects). An unparsable base URL is an unrecoverable error.
func New(baseURL string) (*Extractor, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil || !parsed.IsAbs() {
		return nil, fmt.Errorf("%w: invalid base URL %q", ErrUnrecoverable, baseURL)
	}

	return &Extractor{baseURL: parsed}, nil
}

// Extract parses htmlContent and returns the structured record. It never
// fails on malformed markup; the HTML parser recovers and produces a
// best-effort tree.
func (e *Extractor) Extract(htmlContent []byte) (*Result, error) {
	doc, err := html.Parse(strings.NewReader(string(htmlContent)))
	if err != nil {
		// html.Parse recovers from malformed input; an error here means the
		// input could not be tokenized at all.
		return nil, fmt.Errorf("%w: %v", ErrUnrecoverable, err)
	}

	result := &Result{Links: []string{}}

	var textParts []string
	seen := make(map[string]bool)
	e.traverse(doc, result, &textParts, seen)

	result.Text = normalizeText(strings.Join(textParts, " "))
	result.ContentHash = hashText(result.Text)

	return result, nil
}

// traverse walks the HTML tree collecting the title, text blocks, and links
func (e *Extractor) traverse(n *html.Node, result *Result, textParts *[]string, seen map[string]bool) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "noscript", "template":
			// Non-rendered content is excluded from text and hashing
			return

		case "title":
			if result.Title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				result.Title = strings.TrimSpace(n.FirstChild.Data)
			}
			return

		case "a":
			e.collectAnchor(n, result, seen)
		}
	}

	if n.Type == html.TextNode {
		if text := strings.TrimSpace(n.Data); text != "" {
			*textParts = append(*textParts, text)
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		e.traverse(c, result, textParts, seen)
	}
}

// collectAnchor records an anchor's target if it resolves to an allowed
// absolute URL not already seen on this page
func (e *Extractor) collectAnchor(n *html.Node, result *Result, seen map[string]bool) {
	var href string
	for _, attr := range n.Attr {
		if attr.Key == "href" {
			href = strings.TrimSpace(attr.Val)
			break
		}
	}

	if href == "" || strings.HasPrefix(href, "#") {
		return
	}

	u, err := url.Parse(href)
	if err != nil {
		return
	}

	// Schemes other than http(s), like mailto: or javascript:, are not
	// crawlable targets. Scheme comparison is case-insensitive; relative
	// references inherit the base URL's scheme on resolution.
	if u.Scheme != "" && !isHTTPScheme(u.Scheme) {
		return
	}

	resolved := e.baseURL.ResolveReference(u)
	resolved.Fragment = ""
	if !isHTTPScheme(resolved.Scheme) {
		return
	}

	absURL := resolved.String()
	if seen[absURL] {
		return
	}
	seen[absURL] = true

	result.Links = append(result.Links, absURL)
}

func isHTTPScheme(scheme string) bool {
	return strings.EqualFold(scheme, "http") || strings.EqualFold(scheme, "https")
}

// normalizeText collapses all runs of whitespace to single spaces,
// preserving case
func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// hashText returns the hex sha256 digest of the normalized text
func hashText(s string) string {
	sum := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", sum)
}
