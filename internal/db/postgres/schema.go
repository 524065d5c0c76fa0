package postgres

import (
	"context"
	"fmt"
)

// schema is applied idempotently at startup. Concepts are written by the
// tagging pipeline; designdex only reads them.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS concepts (
		id           TEXT PRIMARY KEY,
		label        TEXT NOT NULL UNIQUE,
		embedding    REAL[] NOT NULL,
		opposite_ids TEXT[] NOT NULL DEFAULT '{}'
	)`,
	`CREATE TABLE IF NOT EXISTS impression_queries (
		request_id UUID PRIMARY KEY,
		query      TEXT NOT NULL,
		route      TEXT NOT NULL,
		category   TEXT NOT NULL,
		vector     REAL[],
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS impressions (
		request_id  UUID NOT NULL,
		image_id    TEXT NOT NULL,
		position    INT NOT NULL,
		base_score  DOUBLE PRECISION NOT NULL,
		final_score DOUBLE PRECISION NOT NULL,
		features    JSONB NOT NULL DEFAULT '{}',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (request_id, image_id)
	)`,
	`CREATE INDEX IF NOT EXISTS impressions_image_created_idx ON impressions (image_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS clicks (
		id         BIGSERIAL PRIMARY KEY,
		request_id UUID NOT NULL,
		image_id   TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS clicks_image_created_idx ON clicks (image_id, created_at)`,
}

// Migrate creates missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := s.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate [%d]: %w", i, err)
		}
	}
	return nil
}
