// Package pipeline implements the crawl pipeline: a concurrent worker pool
// that pulls URLs from a persistent frontier, fetches and extracts them,
// gates storage through the dedupe index, and feeds discovered links back
// into the frontier.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hfujino/webharvest/internal/config"
	"github.com/hfujino/webharvest/internal/extractor"
	"github.com/hfujino/webharvest/internal/fetcher"
	"github.com/hfujino/webharvest/internal/metrics"
)

// staleClaimTimeout is how long a record may sit in fetching before a new
// run reclaims it
const staleClaimTimeout = 10 * time.Minute

// CrawlPipeline implements the Pipeline interface
type CrawlPipeline struct {
	config  *config.Config
	storage Storage
	fetcher Fetcher
	limiter *RateLimiter

	includes []*regexp.Regexp
	excludes []*regexp.Regexp

	allowedHosts map[string]bool // scheme://host prefixes from seed URLs
	hostsMutex   sync.RWMutex

	stats         Stats
	statsMutex    sync.RWMutex
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	activeWorkers int
	workersMutex  sync.Mutex
}

// NewPipeline creates a crawl pipeline with the provided configuration,
// storage, and fetcher. URL filter patterns are compiled up front.
func NewPipeline(cfg *config.Config, storage Storage, f Fetcher) (Pipeline, error) {
	includes, err := compilePatterns(cfg.IncludePatterns)
	if err != nil {
		return nil, fmt.Errorf("invalid include pattern: %w", err)
	}
	excludes, err := compilePatterns(cfg.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("invalid exclude pattern: %w", err)
	}

	return &CrawlPipeline{
		config:       cfg,
		storage:      storage,
		fetcher:      f,
		limiter:      NewRateLimiter(cfg.RequestDelay),
		includes:     includes,
		excludes:     excludes,
		allowedHosts: make(map[string]bool),
		stats: Stats{
			StartTime: time.Now(),
		},
	}, nil
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// Start runs a crawl pass until the frontier drains or ctx is cancelled.
// Startup order matters: seeds are enqueued before workers start so the
// frontier is never observed empty by a worker on a fresh run.
func (p *CrawlPipeline) Start(ctx context.Context, seedURLs []string) error {
	p.ctx, p.cancel = context.WithCancel(ctx)
	defer p.cancel()

	if err := p.storage.SetMeta("run_id", uuid.NewString()); err != nil {
		return fmt.Errorf("failed to record run id: %w", err)
	}
	if err := p.storage.SetMeta("run_started_at", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to record run start: %w", err)
	}

	// Reclaim records a crashed run left in fetching
	if n, err := p.storage.ResetStaleFetching(staleClaimTimeout); err != nil {
		slog.Warn("Failed to reset stale claims", "error", err)
	} else if n > 0 {
		slog.Info("Reset stale fetching records", "count", n)
	}

	if len(seedURLs) > 0 {
		var seeds []string
		for _, seedURL := range seedURLs {
			canonical, err := Canonicalize(seedURL)
			if err != nil {
				slog.Warn("Skipping invalid seed URL", "url", seedURL, "error", err)
				continue
			}
			seeds = append(seeds, canonical)
			p.allowHost(hostOf(canonical))
		}

		if err := p.storage.Enqueue(seeds); err != nil {
			return fmt.Errorf("failed to enqueue seed URLs: %w", err)
		}
		slog.Info("Starting crawl", "seed_urls", len(seeds))
	} else {
		slog.Info("Starting crawl - resuming from existing frontier")
		p.allowHostsFromFrontier()
	}

	p.activeWorkers = p.config.WorkerCount
	metrics.SetActiveWorkers(p.config.WorkerCount)
	for i := 0; i < p.config.WorkerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.wg.Add(1)
	go p.statsReporter()

	if p.config.RecrawlInterval > 0 {
		p.wg.Add(1)
		go p.recrawlLoop()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Crawl completed")
	case <-p.ctx.Done():
		slog.Info("Crawl cancelled")
	}

	return nil
}

// Enqueue adds one URL to the frontier as a seed. Its host becomes allowed
// for link discovery.
func (p *CrawlPipeline) Enqueue(rawURL string) error {
	canonical, err := Canonicalize(rawURL)
	if err != nil {
		return err
	}

	p.allowHost(hostOf(canonical))
	return p.storage.Enqueue([]string{canonical})
}

// Stop signals workers to stop claiming new frontier entries. In-flight
// fetches complete or time out naturally.
func (p *CrawlPipeline) Stop() error {
	if p.cancel != nil {
		p.cancel()
	}
	if closer, ok := p.fetcher.(interface{ Close() }); ok {
		closer.Close()
	}
	return nil
}

// GetStats returns current crawl statistics
func (p *CrawlPipeline) GetStats() Stats {
	p.statsMutex.RLock()
	defer p.statsMutex.RUnlock()

	stats := p.stats
	stats.Duration = time.Since(stats.StartTime)
	return stats
}

// worker claims and processes frontier entries until the frontier drains,
// the page limit is reached, or the context is cancelled
func (p *CrawlPipeline) worker(id int) {
	defer p.wg.Done()
	defer p.handleWorkerShutdown(id)

	slog.Debug("Worker started", "worker_id", id)

	for {
		select {
		case <-p.ctx.Done():
			return
		default:
			if p.limitReached() {
				slog.Info("Worker reached page limit", "worker_id", id)
				return
			}

			item, err := p.storage.ClaimNext()
			if err != nil {
				slog.Error("Worker failed to claim from frontier", "worker_id", id, "error", err)
				p.workerSleep()
				continue
			}

			if item == nil {
				// Nothing pending. Another worker may still be fetching and
				// about to discover new links, so only exit once nothing is
				// in flight either. With the API enabled, seeds can arrive
				// at any time, so workers idle instead of exiting.
				queued, err := p.storage.HasQueuedItems()
				if err != nil {
					slog.Error("Worker failed to check frontier", "worker_id", id, "error", err)
					p.workerSleep()
					continue
				}
				if !queued && p.config.ListenAddr == "" {
					slog.Debug("Worker found frontier empty, exiting", "worker_id", id)
					return
				}
				p.workerSleep()
				continue
			}

			p.processItem(id, item)
		}
	}
}

// handleWorkerShutdown handles worker cleanup when shutting down
func (p *CrawlPipeline) handleWorkerShutdown(id int) {
	p.workersMutex.Lock()
	p.activeWorkers--
	metrics.SetActiveWorkers(p.activeWorkers)
	if p.activeWorkers == 0 {
		// All workers are done; cancel context to stop the background loops
		p.cancel()
	}
	p.workersMutex.Unlock()
	slog.Debug("Worker stopped", "worker_id", id)
}

// limitReached checks whether the configured page limit has been hit
func (p *CrawlPipeline) limitReached() bool {
	p.statsMutex.RLock()
	defer p.statsMutex.RUnlock()

	return p.config.Limit > 0 && p.stats.PagesFetched >= p.config.Limit
}

// workerSleep applies the configured delay between polls
func (p *CrawlPipeline) workerSleep() {
	select {
	case <-p.ctx.Done():
	case <-time.After(p.config.RequestDelay):
	}
}

// processItem runs one frontier entry through fetch, extract, dedupe, and
// store. A failure here marks this record failed and never escapes: one
// URL's failure is isolated from the pool.
func (p *CrawlPipeline) processItem(id int, item *URLItem) {
	if err := p.limiter.Wait(p.ctx, item.URL); err != nil {
		// Context cancelled while waiting; leave the claim for stale recovery
		slog.Debug("Worker rate limit wait aborted", "worker_id", id, "error", err)
		return
	}

	content, err := p.fetcher.Fetch(p.ctx, item.URL)
	if err != nil {
		p.handleFetchError(id, item, err)
		return
	}

	ex, err := extractor.New(content.FinalURL)
	if err == nil && len(content.Body) == 0 {
		err = fmt.Errorf("%w: empty response body", extractor.ErrUnrecoverable)
	}
	var result *extractor.Result
	if err == nil {
		result, err = ex.Extract(content.Body)
	}
	if err != nil {
		slog.Error("Worker extraction failed", "worker_id", id, "url", item.URL, "error", err)
		p.markFailed(id, item, "extraction_error", err.Error())
		metrics.ObservePage("failed")
		return
	}

	primary, primaryURL, err := p.storage.CheckAndRegister(result.ContentHash, item.URL)
	if err != nil {
		slog.Error("Worker dedupe registration failed", "worker_id", id, "url", item.URL, "error", err)
		p.markFailed(id, item, "store_error", err.Error())
		metrics.ObservePage("failed")
		return
	}

	if !primary {
		p.handleDuplicate(id, item, result.ContentHash, primaryURL, content.FetchedAt)
		return
	}

	page := &ExtractedPage{
		URL:         item.URL,
		Title:       result.Title,
		Text:        result.Text,
		Links:       result.Links,
		ContentHash: result.ContentHash,
		FetchedAt:   content.FetchedAt,
	}

	if err := p.upsertWithRetry(item.ID, page); err != nil {
		slog.Error("Worker failed to store page", "worker_id", id, "url", item.URL, "error", err)
		// The content was never stored, so this URL must not stay primary
		// for its hash; release the claim for the next holder
		if relErr := p.storage.ReleaseClaim(result.ContentHash, item.URL); relErr != nil {
			slog.Error("Worker failed to release dedupe claim", "worker_id", id, "url", item.URL, "error", relErr)
		}
		p.markFailed(id, item, "store_error", err.Error())
		metrics.ObservePage("failed")
		return
	}

	p.discoverLinks(id, item.URL, result.Links)

	p.incrementFetched()
	metrics.ObservePage("fetched")
	slog.Info("Worker processed URL", "worker_id", id, "url", item.URL, "links", len(result.Links))
}

// handleFetchError marks the record failed with the fetch error kind
func (p *CrawlPipeline) handleFetchError(id int, item *URLItem, err error) {
	errorType := "fetch_error"
	var ferr *fetcher.FetchError
	if errors.As(err, &ferr) {
		errorType = string(ferr.Kind)
		metrics.ObserveFetchError(string(ferr.Kind))
	}

	slog.Warn("Worker fetch failed", "worker_id", id, "url", item.URL, "error", err)
	p.markFailed(id, item, errorType, err.Error())
	metrics.ObservePage("failed")
}

// handleDuplicate marks a record fetched as a duplicate of an existing
// primary. Duplicates do not contribute links to the frontier.
func (p *CrawlPipeline) handleDuplicate(id int, item *URLItem, contentHash, primaryURL string, fetchedAt time.Time) {
	if err := p.storage.MarkDuplicate(item.ID, contentHash, primaryURL, fetchedAt); err != nil {
		slog.Error("Worker failed to mark duplicate", "worker_id", id, "url", item.URL, "error", err)
		p.markFailed(id, item, "store_error", err.Error())
		metrics.ObservePage("failed")
		return
	}

	p.statsMutex.Lock()
	p.stats.PagesFetched++
	p.stats.Duplicates++
	p.statsMutex.Unlock()

	metrics.ObservePage("duplicate")
	metrics.ObserveDuplicate()
	slog.Info("Worker processed duplicate", "worker_id", id, "url", item.URL, "duplicate_of", primaryURL)
}

// upsertWithRetry retries a failed store write once before giving up
func (p *CrawlPipeline) upsertWithRetry(id int64, page *ExtractedPage) error {
	err := p.storage.UpsertPage(id, page)
	if err == nil {
		return nil
	}

	metrics.ObserveStoreRetry()
	slog.Warn("Retrying store write", "url", page.URL, "error", err)
	return p.storage.UpsertPage(id, page)
}

// markFailed records a failure on the claimed record and counts the error
func (p *CrawlPipeline) markFailed(workerID int, item *URLItem, errorType, message string) {
	if err := p.storage.MarkFailed(item.ID, errorType, message); err != nil {
		slog.Error("Worker failed to record failure", "worker_id", workerID, "url", item.URL, "error", err)
	}

	p.statsMutex.Lock()
	p.stats.ErrorCount++
	p.statsMutex.Unlock()
}

// discoverLinks offers a primary page's outbound links to the frontier.
// Enqueue's insert-or-ignore provides the authoritative visited-set check;
// the status pre-check just avoids pointless inserts.
func (p *CrawlPipeline) discoverLinks(workerID int, sourceURL string, links []string) {
	var newURLs []string
	for _, link := range links {
		canonical, err := Canonicalize(link)
		if err != nil {
			continue
		}
		if !p.shouldCrawlURL(canonical) {
			continue
		}
		if _, exists := p.storage.GetURLStatus(canonical); exists {
			continue
		}
		newURLs = append(newURLs, canonical)
	}

	if len(newURLs) == 0 {
		return
	}

	if err := p.storage.Enqueue(newURLs); err != nil {
		slog.Error("Worker failed to enqueue discovered links", "worker_id", workerID, "source", sourceURL, "error", err)
		return
	}
	slog.Debug("Enqueued discovered links", "worker_id", workerID, "source", sourceURL, "count", len(newURLs))
}

// shouldCrawlURL applies host containment and include/exclude patterns to a
// discovered link
func (p *CrawlPipeline) shouldCrawlURL(canonicalURL string) bool {
	if !p.isAllowedHost(canonicalURL) {
		return false
	}

	if len(p.includes) > 0 {
		matched := false
		for _, re := range p.includes {
			if re.MatchString(canonicalURL) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	for _, re := range p.excludes {
		if re.MatchString(canonicalURL) {
			return false
		}
	}

	return true
}

// isAllowedHost checks if the given URL's host is allowed for crawling
func (p *CrawlPipeline) isAllowedHost(canonicalURL string) bool {
	if p.config.FollowExternalHosts {
		return true
	}

	host := hostOf(canonicalURL)
	if host == "" {
		return false
	}

	p.hostsMutex.RLock()
	defer p.hostsMutex.RUnlock()
	return p.allowedHosts[host]
}

// allowHost marks a scheme://host prefix as crawlable
func (p *CrawlPipeline) allowHost(host string) {
	if host == "" {
		return
	}
	p.hostsMutex.Lock()
	p.allowedHosts[host] = true
	p.hostsMutex.Unlock()
}

// allowHostsFromFrontier seeds the allowed-host set from persisted records
// when resuming without explicit seed URLs
func (p *CrawlPipeline) allowHostsFromFrontier() {
	records, err := p.storage.ListPages(PageFilter{Status: StatusPending, Limit: defaultResumeHostScan})
	if err != nil {
		slog.Warn("Failed to scan frontier for allowed hosts", "error", err)
		return
	}
	for _, record := range records {
		p.allowHost(hostOf(record.URL))
	}
}

// defaultResumeHostScan bounds the frontier scan used to rebuild the
// allowed-host set on resume
const defaultResumeHostScan = 1000

// recrawlLoop periodically returns fetched records older than the configured
// interval to the frontier
func (p *CrawlPipeline) recrawlLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.RecrawlInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			n, err := p.storage.ResetForRecrawl(p.config.RecrawlInterval)
			if err != nil {
				slog.Error("Re-crawl reset failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("Re-queued pages for re-crawl", "count", n)
			}
		}
	}
}

// statsReporter periodically reports crawl statistics
func (p *CrawlPipeline) statsReporter() {
	defer p.wg.Done()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			counts, err := p.storage.QueueCounts()
			if err != nil {
				slog.Error("Failed to get frontier counts", "error", err)
				continue
			}

			metrics.SetFrontierDepth(counts.Pending)

			stats := p.GetStats()
			slog.Info("Crawl stats",
				"fetched", stats.PagesFetched,
				"duplicates", stats.Duplicates,
				"errors", stats.ErrorCount,
				"pending", counts.Pending,
				"fetching", counts.Fetching,
				"failed", counts.Failed,
				"duration", stats.Duration)
		}
	}
}

func (p *CrawlPipeline) incrementFetched() {
	p.statsMutex.Lock()
	defer p.statsMutex.Unlock()
	p.stats.PagesFetched++
}
