package extractor

import (
	"errors"
	"reflect"
	"testing"
)

func TestExtractBasicPage(t *testing.T) {
	e, err := New("https://example.com/articles/")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	htmlContent := `
	<html>
		<head><title>  Example Article  </title></head>
		<body>
			<h1>Heading</h1>
			<p>Some   body
			text.</p>
			<a href="/about">About</a>
			<a href="other.html">Other</a>
			<a href="https://elsewhere.test/page">External</a>
		</body>
	</html>`

	result, err := e.Extract([]byte(htmlContent))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if result.Title != "Example Article" {
		t.Errorf("Title = %q, want %q", result.Title, "Example Article")
	}

	if result.Text != "Heading Some body text. About Other External" {
		t.Errorf("Text = %q", result.Text)
	}

	wantLinks := []string{
		"https://example.com/about",
		"https://example.com/articles/other.html",
		"https://elsewhere.test/page",
	}
	if !reflect.DeepEqual(result.Links, wantLinks) {
		t.Errorf("Links = %v, want %v", result.Links, wantLinks)
	}

	if result.ContentHash == "" {
		t.Error("ContentHash not set")
	}
}

func TestExtractHashStability(t *testing.T) {
	e, err := New("https://example.com/")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// Same rendered text, different incidental markup: attribute order,
	// whitespace, tag structure around the text
	variants := [][]byte{
		[]byte(`<html><body><p class="a" id="b">hello   world</p></body></html>`),
		[]byte(`<html><body><p id="b" class="a">hello world</p></body></html>`),
		[]byte("<html><body><div>hello\n\t world</div></body></html>"),
	}

	var hashes []string
	for _, v := range variants {
		result, err := e.Extract(v)
		if err != nil {
			t.Fatalf("Extract() error = %v", err)
		}
		hashes = append(hashes, result.ContentHash)
	}

	for i := 1; i < len(hashes); i++ {
		if hashes[i] != hashes[0] {
			t.Errorf("Hash %d = %s, want %s (stability violated)", i, hashes[i], hashes[0])
		}
	}

	// Different text must produce a different hash
	other, err := e.Extract([]byte(`<html><body>goodbye world</body></html>`))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if other.ContentHash == hashes[0] {
		t.Error("Distinct content produced identical hashes")
	}
}

func TestExtractMalformedMarkupDegrades(t *testing.T) {
	e, err := New("https://example.com/")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		name    string
		content string
	}{
		{"unclosed tags", `<html><body><p>text<div><a href="/x">link`},
		{"truncated document", `<html><head><title>Half`},
		{"not html at all", `{"json": true}`},
		{"empty input", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := e.Extract([]byte(tt.content))
			if err != nil {
				t.Fatalf("Extract() must not fail on malformed input, got %v", err)
			}
			if result == nil {
				t.Fatal("Extract() returned nil result")
			}
			if result.ContentHash == "" {
				t.Error("ContentHash must be set even for degraded results")
			}
		})
	}
}

func TestExtractSkipsScriptsAndStyles(t *testing.T) {
	e, err := New("https://example.com/")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	result, err := e.Extract([]byte(`
	<html><body>
		<script>var hidden = "nope";</script>
		<style>.x { color: red }</style>
		<p>visible</p>
	</body></html>`))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if result.Text != "visible" {
		t.Errorf("Text = %q, want %q", result.Text, "visible")
	}
}

func TestExtractLinkFiltering(t *testing.T) {
	e, err := New("https://example.com/")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	result, err := e.Extract([]byte(`
	<html><body>
		<a href="#section">fragment</a>
		<a href="javascript:void(0)">script</a>
		<a href="mailto:x@example.com">mail</a>
		<a href="ftp://files.example.com/f">ftp</a>
		<a href="/kept">kept</a>
		<a href="/kept">duplicate</a>
		<a href="/kept#frag">fragment stripped duplicate</a>
	</body></html>`))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	want := []string{"https://example.com/kept"}
	if !reflect.DeepEqual(result.Links, want) {
		t.Errorf("Links = %v, want %v", result.Links, want)
	}
}

func TestExtractSchemeCaseInsensitive(t *testing.T) {
	e, err := New("https://example.com/")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	result, err := e.Extract([]byte(`
	<html><body>
		<a href="HTTPS://example.com/upper">upper</a>
		<a href="Http://example.com/mixed">mixed</a>
		<a href="MAILTO:x@example.com">still rejected</a>
	</body></html>`))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	want := []string{"https://example.com/upper", "http://example.com/mixed"}
	if !reflect.DeepEqual(result.Links, want) {
		t.Errorf("Links = %v, want %v", result.Links, want)
	}
}

func TestNewRejectsInvalidBaseURL(t *testing.T) {
	for _, base := range []string{"not a url at all\x7f", "relative/path", ""} {
		_, err := New(base)
		if !errors.Is(err, ErrUnrecoverable) {
			t.Errorf("New(%q) error = %v, want ErrUnrecoverable", base, err)
		}
	}
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"a  b", "a b"},
		{"  a\n\tb  ", "a b"},
		{"Case Preserved", "Case Preserved"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := normalizeText(tt.input); got != tt.want {
			t.Errorf("normalizeText(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
