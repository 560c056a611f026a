package store

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id                  TEXT PRIMARY KEY,
		provider_session_id TEXT NOT NULL UNIQUE,
		creator_id          TEXT NOT NULL,
		visibility          TEXT NOT NULL DEFAULT 'public',
		mode                TEXT NOT NULL DEFAULT '',
		status              TEXT NOT NULL,
		viewer_count        INTEGER NOT NULL DEFAULT 0,
		playback_url        TEXT NOT NULL DEFAULT '',
		ingest_key_hash     TEXT NOT NULL DEFAULT '',
		started_at          TIMESTAMPTZ NOT NULL DEFAULT 'epoch',
		ended_at            TIMESTAMPTZ,
		created_at          TIMESTAMPTZ NOT NULL,
		version             BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS sessions_creator_idx ON sessions (creator_id)`,
	`CREATE INDEX IF NOT EXISTS sessions_status_idx ON sessions (status)`,
	`CREATE TABLE IF NOT EXISTS recordings (
		id                TEXT PRIMARY KEY,
		stream_id         TEXT NOT NULL UNIQUE,
		creator_id        TEXT NOT NULL,
		status            TEXT NOT NULL,
		provider_asset_id TEXT NOT NULL DEFAULT '',
		playback_url      TEXT NOT NULL DEFAULT '',
		duration_seconds  INTEGER NOT NULL DEFAULT 0,
		file_size_bytes   BIGINT NOT NULL DEFAULT 0,
		stream_started_at TIMESTAMPTZ NOT NULL DEFAULT 'epoch',
		stream_ended_at   TIMESTAMPTZ NOT NULL DEFAULT 'epoch',
		view_count        INTEGER NOT NULL DEFAULT 0,
		is_deleted        BOOLEAN NOT NULL DEFAULT FALSE,
		is_hidden         BOOLEAN NOT NULL DEFAULT FALSE,
		created_at        TIMESTAMPTZ NOT NULL,
		version           BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS recordings_creator_idx ON recordings (creator_id)`,
	`CREATE INDEX IF NOT EXISTS recordings_asset_idx ON recordings (provider_asset_id) WHERE provider_asset_id <> ''`,
	`CREATE TABLE IF NOT EXISTS content (
		id          TEXT PRIMARY KEY,
		creator_id  TEXT NOT NULL,
		status      TEXT NOT NULL,
		is_boosted  BOOLEAN NOT NULL DEFAULT FALSE,
		boost_level INTEGER NOT NULL DEFAULT 0,
		boosted_at  TIMESTAMPTZ,
		created_at  TIMESTAMPTZ NOT NULL,
		view_count  INTEGER NOT NULL DEFAULT 0,
		visibility  TEXT NOT NULL DEFAULT 'public',
		version     BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS content_feed_idx ON content (status, visibility)`,
}

// Migrate applies the schema. Statements are idempotent so repeated startup
// runs are safe.
func (p *Postgres) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
