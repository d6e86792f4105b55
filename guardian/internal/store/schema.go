package store

import "database/sql"

// Schema is the complete guardian engine schema.
const Schema = `
-- Tenants: alert routing and plan gating
CREATE TABLE IF NOT EXISTS tenants (
    id               TEXT PRIMARY KEY,
    name             TEXT NOT NULL DEFAULT '',
    email            TEXT NOT NULL DEFAULT '',
    plan             TEXT NOT NULL DEFAULT 'Starter',
    alert_threshold  TEXT NOT NULL DEFAULT 'MEDIUM',
    guidance_enabled INTEGER NOT NULL DEFAULT 1,
    created_at       INTEGER NOT NULL,
    updated_at       INTEGER NOT NULL
);

-- Monitored sources
CREATE TABLE IF NOT EXISTS sources (
    id                    TEXT PRIMARY KEY,
    tenant_id             TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
    name                  TEXT NOT NULL,
    url                   TEXT NOT NULL,
    frequency             TEXT NOT NULL DEFAULT 'Daily',
    watch_mode            TEXT NOT NULL DEFAULT 'FullContent',

    status                TEXT NOT NULL DEFAULT 'OK',
    last_hash             TEXT NOT NULL DEFAULT '',
    last_error            TEXT NOT NULL DEFAULT '',
    consecutive_failures  INTEGER NOT NULL DEFAULT 0,
    backoff_level         INTEGER NOT NULL DEFAULT 0,
    last_checked_at       INTEGER,
    last_success_at       INTEGER,
    next_check_at         INTEGER,

    lock_token            TEXT NOT NULL DEFAULT '',
    lock_expires_at       INTEGER,

    volatility_score      REAL NOT NULL DEFAULT 0,
    check_count           INTEGER NOT NULL DEFAULT 0,
    change_count          INTEGER NOT NULL DEFAULT 0,

    confidence_score      INTEGER NOT NULL DEFAULT 50,
    confidence_level      TEXT NOT NULL DEFAULT 'MEDIUM',
    conf_total_actions    INTEGER NOT NULL DEFAULT 0,
    conf_no_action        INTEGER NOT NULL DEFAULT 0,
    conf_review           INTEGER NOT NULL DEFAULT 0,
    conf_escalate         INTEGER NOT NULL DEFAULT 0,
    conf_false_alarm      INTEGER NOT NULL DEFAULT 0,
    conf_last_action_at   INTEGER,

    last_title            TEXT NOT NULL DEFAULT '',
    last_meta_description TEXT NOT NULL DEFAULT '',
    last_content_sample   TEXT NOT NULL DEFAULT '',
    next_deadline         INTEGER,

    paused_at             INTEGER,
    paused_by             TEXT NOT NULL DEFAULT '',
    pause_reason          TEXT NOT NULL DEFAULT '',

    verified_at           INTEGER,
    verified_by           TEXT NOT NULL DEFAULT '',
    verified_reason       TEXT NOT NULL DEFAULT '',
    verified_hash         TEXT NOT NULL DEFAULT '',

    created_at            INTEGER NOT NULL,
    updated_at            INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_sources_tenant_url ON sources(tenant_id, url);
CREATE INDEX IF NOT EXISTS idx_sources_due ON sources(status, next_check_at);
CREATE INDEX IF NOT EXISTS idx_sources_tenant ON sources(tenant_id);

-- Change events (append-mostly: created once, single acknowledgement write)
CREATE TABLE IF NOT EXISTS changes (
    id                TEXT PRIMARY KEY,
    source_id         TEXT NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
    tenant_id         TEXT NOT NULL,
    detected_at       INTEGER NOT NULL,

    diff_summary      TEXT NOT NULL DEFAULT '',
    severity_score    INTEGER NOT NULL DEFAULT 0,
    severity_level    TEXT NOT NULL DEFAULT 'LOW',
    severity_reasons  TEXT NOT NULL DEFAULT '[]',
    explanation       TEXT NOT NULL DEFAULT '[]',

    deadlines         TEXT NOT NULL DEFAULT '[]',
    deadline_impact   TEXT NOT NULL DEFAULT 'NONE',

    action_category   TEXT NOT NULL DEFAULT 'REVIEW',
    action_guidance   TEXT NOT NULL DEFAULT '',
    action_confidence TEXT NOT NULL DEFAULT 'MEDIUM',
    confidence_notes  TEXT NOT NULL DEFAULT '[]',

    ack_status        TEXT,
    ack_at            INTEGER,
    ack_by            TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_changes_source ON changes(source_id, detected_at DESC);
CREATE INDEX IF NOT EXISTS idx_changes_tenant ON changes(tenant_id, detected_at DESC);

-- Fetch log (observability)
CREATE TABLE IF NOT EXISTS fetch_log (
    id            TEXT PRIMARY KEY,
    source_id     TEXT NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
    status        TEXT NOT NULL,
    status_code   INTEGER,
    content_hash  TEXT NOT NULL DEFAULT '',
    error_message TEXT NOT NULL DEFAULT '',
    duration_ms   INTEGER NOT NULL DEFAULT 0,
    fetched_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fetch_log_source ON fetch_log(source_id, fetched_at DESC);
`

// ApplySchema creates all tables and indexes on the given database.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
