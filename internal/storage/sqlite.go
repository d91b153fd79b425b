// Package storage provides data persistence for the crawl service.
// It implements the frontier, page store, and dedupe index on SQLite.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hfujino/webharvest/internal/pipeline"
	// SQLite database driver (CGO-free)
	_ "modernc.org/sqlite"
)

// defaultListLimit caps ListPages results when the filter sets no limit
const defaultListLimit = 100

// SQLiteStorage implements the pipeline.Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection serializes all writes and prevents lock conflicts;
	// this also guarantees that upserts for one URL never interleave
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	storage := &SQLiteStorage{db: db}

	if err := storage.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// initSchema applies pragmas and creates the database schema
func (s *SQLiteStorage) initSchema() error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000", // 64MB cache
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 30000", // 30 second timeout for locks
	}

	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}

	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Enqueue adds URLs to the frontier as pending records.
// INSERT OR IGNORE enforces the visited-set invariant: a URL already present
// in any state is never enqueued again.
func (s *SQLiteStorage) Enqueue(urls []string) error {
	if len(urls) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO pages (url, status, added_at)
		VALUES (?, 'pending', ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UTC()
	for _, url := range urls {
		if _, err := stmt.Exec(url, now); err != nil {
			return fmt.Errorf("failed to insert URL %s: %w", url, err)
		}
	}

	return tx.Commit()
}

// ClaimNext atomically claims the oldest pending URL for fetching. The
// single UPDATE is the serialization point: no two callers can claim the
// same record.
func (s *SQLiteStorage) ClaimNext() (*pipeline.URLItem, error) {
	var item pipeline.URLItem

	err := s.db.QueryRow(`
		UPDATE pages
		SET status = 'fetching', fetching_started_at = ?
		WHERE id = (
			SELECT id FROM pages
			WHERE status = 'pending'
			ORDER BY added_at ASC, id ASC
			LIMIT 1
		) AND status = 'pending'
		RETURNING id, url
	`, time.Now().UTC()).Scan(&item.ID, &item.URL)

	if err == sql.ErrNoRows {
		return nil, nil // Frontier is empty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim next from frontier: %w", err)
	}

	return &item, nil
}

// UpsertPage stores extracted content for a claimed record and marks it
// fetched. Re-storing unchanged content is a no-op. When the content hash
// changes, the new content overwrites the old and the record's prior dedupe
// claim is superseded if this URL held it.
func (s *SQLiteStorage) UpsertPage(id int64, page *pipeline.ExtractedPage) error {
	linksJSON, err := json.Marshal(page.Links)
	if err != nil {
		return fmt.Errorf("failed to marshal links: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var prevHash sql.NullString
	var prevStatus string
	err = tx.QueryRow(`SELECT content_hash, status FROM pages WHERE id = ?`, id).
		Scan(&prevHash, &prevStatus)
	if err == sql.ErrNoRows {
		return fmt.Errorf("upsert page %d: %w", id, pipeline.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read prior state: %w", err)
	}

	// Idempotent no-op: same content already stored as fetched
	if prevStatus == string(pipeline.StatusFetched) && prevHash.Valid && prevHash.String == page.ContentHash {
		return tx.Commit()
	}

	if prevHash.Valid && prevHash.String != "" && prevHash.String != page.ContentHash {
		// Invalidate the old primary claim, but only if this URL holds it
		if _, err := tx.Exec(`
			UPDATE dedupe_index SET superseded = 1
			WHERE content_hash = ? AND primary_url = ? AND superseded = 0
		`, prevHash.String, page.URL); err != nil {
			return fmt.Errorf("failed to supersede dedupe claim: %w", err)
		}
	}

	_, err = tx.Exec(`
		UPDATE pages SET
			status = 'fetched',
			title = ?,
			text_content = ?,
			links = ?,
			content_hash = ?,
			duplicate_of = NULL,
			fetched_at = ?,
			last_error_type = NULL,
			last_error_message = NULL
		WHERE id = ?
	`, page.Title, page.Text, string(linksJSON), page.ContentHash, page.FetchedAt, id)
	if err != nil {
		return fmt.Errorf("failed to upsert page: %w", err)
	}

	return tx.Commit()
}

// MarkDuplicate marks a claimed record fetched without storing content,
// recording the primary URL its content duplicated
func (s *SQLiteStorage) MarkDuplicate(id int64, contentHash, primaryURL string, fetchedAt time.Time) error {
	_, err := s.db.Exec(`
		UPDATE pages SET
			status = 'fetched',
			content_hash = ?,
			duplicate_of = ?,
			fetched_at = ?,
			last_error_type = NULL,
			last_error_message = NULL
		WHERE id = ?
	`, contentHash, primaryURL, fetchedAt, id)

	if err != nil {
		return fmt.Errorf("failed to mark duplicate: %w", err)
	}
	return nil
}

// MarkFailed marks a claimed record failed with error details
func (s *SQLiteStorage) MarkFailed(id int64, errorType, errorMessage string) error {
	_, err := s.db.Exec(`
		UPDATE pages SET
			status = 'failed',
			last_error_type = ?,
			last_error_message = ?,
			retry_count = retry_count + 1
		WHERE id = ?
	`, errorType, errorMessage, id)

	if err != nil {
		return fmt.Errorf("failed to mark page failed: %w", err)
	}
	return nil
}

// CheckAndRegister registers url as the primary holder of contentHash if no
// live claim exists. The insert-or-update runs as one statement on the
// single write connection, so concurrent callers for one hash serialize and
// exactly one becomes primary.
func (s *SQLiteStorage) CheckAndRegister(contentHash, url string) (bool, string, error) {
	_, err := s.db.Exec(`
		INSERT INTO dedupe_index (content_hash, primary_url, superseded, registered_at)
		VALUES (?, ?, 0, ?)
		ON CONFLICT(content_hash) DO UPDATE SET
			primary_url = excluded.primary_url,
			superseded = 0,
			registered_at = excluded.registered_at
		WHERE dedupe_index.superseded = 1
	`, contentHash, url, time.Now().UTC())
	if err != nil {
		return false, "", fmt.Errorf("failed to register content hash: %w", err)
	}

	var primaryURL string
	err = s.db.QueryRow(`
		SELECT primary_url FROM dedupe_index WHERE content_hash = ?
	`, contentHash).Scan(&primaryURL)
	if err != nil {
		return false, "", fmt.Errorf("failed to read dedupe entry: %w", err)
	}

	return primaryURL == url, primaryURL, nil
}

// ReleaseClaim supersedes url's live primary claim on contentHash, if it
// holds one. A later CheckAndRegister for the hash then takes over as
// primary. No-op when url is not the live holder.
func (s *SQLiteStorage) ReleaseClaim(contentHash, url string) error {
	_, err := s.db.Exec(`
		UPDATE dedupe_index SET superseded = 1
		WHERE content_hash = ? AND primary_url = ? AND superseded = 0
	`, contentHash, url)
	if err != nil {
		return fmt.Errorf("failed to release dedupe claim: %w", err)
	}
	return nil
}

// GetPage retrieves a stored record by canonical URL
func (s *SQLiteStorage) GetPage(url string) (*pipeline.PageRecord, error) {
	row := s.db.QueryRow(`
		SELECT url, status, title, text_content, links, content_hash, duplicate_of, fetched_at
		FROM pages WHERE url = ?
	`, url)

	record, err := scanPageRecord(row)
	if err == sql.ErrNoRows {
		return nil, pipeline.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get page: %w", err)
	}

	return record, nil
}

// ListPages returns stored records matching the filter. Each call executes a
// fresh query, so the sequence is restartable.
func (s *SQLiteStorage) ListPages(filter pipeline.PageFilter) ([]*pipeline.PageRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `
		SELECT url, status, title, text_content, links, content_hash, duplicate_of, fetched_at
		FROM pages
	`
	args := []any{}
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY added_at ASC, id ASC LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*pipeline.PageRecord
	for rows.Next() {
		record, err := scanPageRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

// GetURLStatus checks if a URL exists and returns its status
func (s *SQLiteStorage) GetURLStatus(url string) (pipeline.Status, bool) {
	var status string
	err := s.db.QueryRow(`SELECT status FROM pages WHERE url = ?`, url).Scan(&status)
	if err != nil {
		return "", false
	}
	return pipeline.Status(status), true
}

// QueueCounts returns frontier counts by status
func (s *SQLiteStorage) QueueCounts() (pipeline.QueueCounts, error) {
	var counts pipeline.QueueCounts

	err := s.db.QueryRow(`
		SELECT
			SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'fetching' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'fetched' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END)
		FROM pages
	`).Scan(
		&nullableInt{&counts.Pending},
		&nullableInt{&counts.Fetching},
		&nullableInt{&counts.Fetched},
		&nullableInt{&counts.Failed},
	)
	if err != nil {
		return pipeline.QueueCounts{}, fmt.Errorf("failed to get queue counts: %w", err)
	}

	return counts, nil
}

// HasQueuedItems checks if the frontier has any work items
func (s *SQLiteStorage) HasQueuedItems() (bool, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM pages WHERE status IN ('pending', 'fetching')
	`).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check queued items: %w", err)
	}

	return count > 0, nil
}

// ResetStaleFetching returns records stuck in fetching past the timeout to
// pending, so an interrupted run can be resumed
func (s *SQLiteStorage) ResetStaleFetching(timeout time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-timeout)

	result, err := s.db.Exec(`
		UPDATE pages
		SET status = 'pending', fetching_started_at = NULL
		WHERE status = 'fetching' AND fetching_started_at < ?
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stale fetching: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count reset rows: %w", err)
	}
	return int(n), nil
}

// ResetForRecrawl moves fetched records older than the given age back to
// pending. This is the only path that re-opens a fetched record.
func (s *SQLiteStorage) ResetForRecrawl(olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	result, err := s.db.Exec(`
		UPDATE pages
		SET status = 'pending', fetching_started_at = NULL
		WHERE status = 'fetched' AND fetched_at < ?
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to reset for recrawl: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count reset rows: %w", err)
	}
	return int(n), nil
}

// GetMeta retrieves a metadata value
func (s *SQLiteStorage) GetMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM crawl_meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get meta: %w", err)
	}
	return value, nil
}

// SetMeta stores a metadata value
func (s *SQLiteStorage) SetMeta(key, value string) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO crawl_meta (key, value) VALUES (?, ?)`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to set meta: %w", err)
	}
	return nil
}

// scanner matches both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

// scanPageRecord reads one pages row into a PageRecord
func scanPageRecord(row scanner) (*pipeline.PageRecord, error) {
	var record pipeline.PageRecord
	var status string
	var title, text, links, contentHash, duplicateOf sql.NullString
	var fetchedAt sql.NullTime

	if err := row.Scan(&record.URL, &status, &title, &text, &links, &contentHash, &duplicateOf, &fetchedAt); err != nil {
		return nil, err
	}

	record.Status = pipeline.Status(status)
	record.Title = title.String
	record.Text = text.String
	record.ContentHash = contentHash.String
	record.DuplicateOf = duplicateOf.String
	if fetchedAt.Valid {
		record.FetchedAt = fetchedAt.Time
	}

	if links.Valid && links.String != "" {
		if err := json.Unmarshal([]byte(links.String), &record.Links); err != nil {
			return nil, fmt.Errorf("failed to unmarshal links for %s: %w", record.URL, err)
		}
	}

	return &record, nil
}

// nullableInt scans a possibly-NULL aggregate into an int, defaulting to 0
type nullableInt struct {
	dest *int
}

func (n *nullableInt) Scan(value any) error {
	if value == nil {
		*n.dest = 0
		return nil
	}
	switch v := value.(type) {
	case int64:
		*n.dest = int(v)
	case float64:
		*n.dest = int(v)
	default:
		return fmt.Errorf("unexpected count type %T", value)
	}
	return nil
}
