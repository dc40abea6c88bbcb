package database

// schema contains all table definitions. Each statement is idempotent (CREATE IF NOT EXISTS).
const schema = `
CREATE TABLE IF NOT EXISTS credential_events (
    id         TEXT    PRIMARY KEY,
    identity   TEXT    NOT NULL,
    action     TEXT    NOT NULL,
    outcome    TEXT    NOT NULL,
    detail     TEXT    NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
);
CREATE INDEX IF NOT EXISTS idx_credential_events_created
    ON credential_events (created_at);
CREATE INDEX IF NOT EXISTS idx_credential_events_identity
    ON credential_events (identity, created_at);
`
