package pipeline

import (
	"context"
	"time"

	"github.com/hfujino/webharvest/internal/fetcher"
)

// Pipeline drives a crawl run
type Pipeline interface {
	Start(ctx context.Context, seedURLs []string) error
	Enqueue(url string) error
	Stop() error
	GetStats() Stats
}

// Fetcher retrieves raw content for a URL. *fetcher.Fetcher is the production
// implementation; tests substitute fakes.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetcher.RawContent, error)
}

// Storage persists the frontier, the page store, and the dedupe index
type Storage interface {
	// Frontier. Enqueue inserts pending records, silently skipping URLs
	// already present in any state (global visited-set). ClaimNext atomically
	// moves one pending record to fetching; it returns nil when the frontier
	// is empty.
	Enqueue(urls []string) error
	ClaimNext() (*URLItem, error)

	// Results for a claimed record
	UpsertPage(id int64, page *ExtractedPage) error
	MarkDuplicate(id int64, contentHash, primaryURL string, fetchedAt time.Time) error
	MarkFailed(id int64, errorType, errorMessage string) error

	// Dedupe index. The first caller for a hash is the primary; later
	// callers receive primary=false and the primary's URL. ReleaseClaim
	// supersedes url's live claim on contentHash, if it holds one, so the
	// next registrant can become primary; used when a primary's content
	// could not be stored.
	CheckAndRegister(contentHash, url string) (primary bool, primaryURL string, err error)
	ReleaseClaim(contentHash, url string) error

	// Query surface
	GetPage(url string) (*PageRecord, error)
	ListPages(filter PageFilter) ([]*PageRecord, error)
	GetURLStatus(url string) (Status, bool)
	QueueCounts() (QueueCounts, error)
	HasQueuedItems() (bool, error)

	// Maintenance
	ResetStaleFetching(timeout time.Duration) (int, error)
	ResetForRecrawl(olderThan time.Duration) (int, error)

	// Run metadata
	GetMeta(key string) (string, error)
	SetMeta(key, value string) error

	// Database lifecycle
	Close() error
}
