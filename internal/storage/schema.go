package storage

const schemaSQL = `
-- Pages table serves as both frontier and page store.
-- status manages the lifecycle: pending -> fetching -> fetched|failed
CREATE TABLE IF NOT EXISTS pages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    url TEXT UNIQUE NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'fetching', 'fetched', 'failed')),

    -- Frontier fields
    added_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    fetching_started_at DATETIME,

    -- Extracted content (NULL until fetched; stays NULL for duplicates)
    title TEXT,
    text_content TEXT,
    links TEXT,
    content_hash TEXT,
    duplicate_of TEXT,
    fetched_at DATETIME,

    -- Failure tracking
    retry_count INTEGER DEFAULT 0,
    last_error_type TEXT,
    last_error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_pages_status ON pages(status);
CREATE INDEX IF NOT EXISTS idx_pages_status_added ON pages(status, added_at);
CREATE INDEX IF NOT EXISTS idx_pages_fetched_at ON pages(fetched_at) WHERE status = 'fetched';
CREATE INDEX IF NOT EXISTS idx_pages_content_hash ON pages(content_hash) WHERE content_hash IS NOT NULL;

-- Dedupe index: one primary URL per content fingerprint. A superseded claim
-- stays in place for audit but no longer answers as primary.
CREATE TABLE IF NOT EXISTS dedupe_index (
    content_hash TEXT PRIMARY KEY NOT NULL,
    primary_url TEXT NOT NULL,
    superseded INTEGER NOT NULL DEFAULT 0,
    registered_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_dedupe_primary_url ON dedupe_index(primary_url);

-- Crawl meta table stores run metadata as key-value pairs
CREATE TABLE IF NOT EXISTS crawl_meta (
    key TEXT PRIMARY KEY NOT NULL,
    value TEXT NOT NULL
);
`
