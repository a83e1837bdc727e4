// Package storage persists prompts, source configs, and pipeline runs in
// SQLite behind the ports repository interfaces.
package storage

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS institutions (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    name        TEXT NOT NULL UNIQUE,
    created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS prompts (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    institution_id   INTEGER NOT NULL REFERENCES institutions(id),
    application_year INTEGER NOT NULL,
    category         TEXT NOT NULL,
    prompt_text      TEXT NOT NULL,
    translated_text  TEXT NOT NULL DEFAULT '',
    word_limit       INTEGER NOT NULL DEFAULT 0,
    is_required      INTEGER NOT NULL DEFAULT 1,
    sort_order       INTEGER NOT NULL DEFAULT 0,
    review_status    TEXT NOT NULL DEFAULT 'PENDING',
    advisory_tips    TEXT NOT NULL DEFAULT '',
    topic_tag        TEXT NOT NULL DEFAULT '',
    created_at       TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at       TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (institution_id, application_year, prompt_text)
);

CREATE TABLE IF NOT EXISTS prompt_sources (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    prompt_id   INTEGER NOT NULL REFERENCES prompts(id) ON DELETE CASCADE,
    source_kind TEXT NOT NULL,
    source_url  TEXT NOT NULL,
    raw_snippet TEXT NOT NULL DEFAULT '',
    confidence  REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS source_configs (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    institution_id    INTEGER NOT NULL REFERENCES institutions(id),
    source_kind       TEXT NOT NULL DEFAULT 'configured',
    url               TEXT NOT NULL,
    slug              TEXT NOT NULL DEFAULT '',
    extraction_group  TEXT NOT NULL DEFAULT '',
    removal_selectors TEXT NOT NULL DEFAULT '',
    priority          INTEGER NOT NULL DEFAULT 0,
    extraction_hints  TEXT NOT NULL DEFAULT '',
    last_run_at       TIMESTAMP,
    last_run_status   TEXT NOT NULL DEFAULT '',
    last_run_error    TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS pipeline_runs (
    id                    TEXT PRIMARY KEY,
    trigger_kind          TEXT NOT NULL,
    operator_id           TEXT NOT NULL DEFAULT '',
    application_year      INTEGER NOT NULL,
    status                TEXT NOT NULL,
    total_institutions    INTEGER NOT NULL DEFAULT 0,
    success_count         INTEGER NOT NULL DEFAULT 0,
    failed_count          INTEGER NOT NULL DEFAULT 0,
    new_prompts_count     INTEGER NOT NULL DEFAULT 0,
    changed_prompts_count INTEGER NOT NULL DEFAULT 0,
    detail                TEXT NOT NULL DEFAULT '[]',
    started_at            TIMESTAMP NOT NULL,
    completed_at          TIMESTAMP
);
`

// Open opens the SQLite database with production pragmas applied and the
// schema created.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if path == ":memory:" {
		// Each pooled connection would get its own empty memory database.
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return db, nil
}

// OpenMemory opens an in-memory database for tests.
func OpenMemory() (*sql.DB, error) {
	return Open(":memory:")
}
