package pipeline

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a URL record. Records move
// pending -> fetching -> fetched|failed; an explicit re-crawl policy may
// reset fetched records to pending.
type Status string

// URL record states
const (
	StatusPending  Status = "pending"
	StatusFetching Status = "fetching"
	StatusFetched  Status = "fetched"
	StatusFailed   Status = "failed"
)

// ErrNotFound is returned when a requested page does not exist in the store
var ErrNotFound = errors.New("page not found")

// URLItem is a claimed frontier entry
type URLItem struct {
	ID  int64  // Row ID for result updates
	URL string // Canonical URL to be processed
}

// ExtractedPage is the content produced by one successful fetch. It is
// derived from a single response body and never partially updated.
type ExtractedPage struct {
	URL         string    // Canonical URL
	Title       string    // Best-effort page title
	Text        string    // Whitespace-normalized text content
	Links       []string  // Outbound absolute URLs, insertion order
	ContentHash string    // Hex sha256 of normalized text
	FetchedAt   time.Time // Fetch completion timestamp (UTC)
}

// PageRecord is a stored row: URL lifecycle state plus extracted content.
// Content fields are empty for pending/failed records and for duplicates,
// which carry only the hash and the primary's URL.
type PageRecord struct {
	URL         string
	Status      Status
	Title       string
	Text        string
	Links       []string
	ContentHash string
	DuplicateOf string    // Primary URL when this record's content was a duplicate
	FetchedAt   time.Time // Zero until fetched
}

// PageFilter narrows ListPages results. Zero values mean "no constraint";
// Limit<=0 applies a default cap.
type PageFilter struct {
	Status Status
	Limit  int
	Offset int
}

// QueueCounts summarizes the frontier by status
type QueueCounts struct {
	Pending  int
	Fetching int
	Fetched  int
	Failed   int
}

// Stats represents crawl statistics for one run
type Stats struct {
	PagesFetched int
	Duplicates   int
	ErrorCount   int
	StartTime    time.Time
	Duration     time.Duration
}
