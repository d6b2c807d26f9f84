package repository

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect"
)

const (
	tableFiles    = "files"
	tableSegments = "text_segments"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS files (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		source_path TEXT NOT NULL DEFAULT '',
		mime_type TEXT NOT NULL,
		lang TEXT NOT NULL DEFAULT 'eng',
		size INTEGER NOT NULL DEFAULT 0,
		text_extracted BOOLEAN NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'PENDING',
		error_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		extracted_at TIMESTAMP NULL
	)`,
	`CREATE INDEX IF NOT EXISTS files_unfinished_idx ON files (text_extracted, mime_type)`,
	`CREATE TABLE IF NOT EXISTS text_segments (
		file_id TEXT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
		page INTEGER NOT NULL,
		text TEXT NOT NULL,
		location TEXT NOT NULL DEFAULT '{}',
		failed BOOLEAN NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (file_id, page)
	)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS files (
		id UUID PRIMARY KEY,
		filename TEXT NOT NULL,
		source_path TEXT NOT NULL DEFAULT '',
		mime_type TEXT NOT NULL,
		lang TEXT NOT NULL DEFAULT 'eng',
		size BIGINT NOT NULL DEFAULT 0,
		text_extracted BOOLEAN NOT NULL DEFAULT FALSE,
		status TEXT NOT NULL DEFAULT 'PENDING',
		error_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		extracted_at TIMESTAMPTZ NULL
	)`,
	`CREATE INDEX IF NOT EXISTS files_unfinished_idx ON files (text_extracted, mime_type)`,
	`CREATE TABLE IF NOT EXISTS text_segments (
		file_id UUID NOT NULL REFERENCES files(id) ON DELETE CASCADE,
		page INTEGER NOT NULL,
		text TEXT NOT NULL,
		location TEXT NOT NULL DEFAULT '{}',
		failed BOOLEAN NOT NULL DEFAULT FALSE,
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (file_id, page)
	)`,
}

// Migrate creates the tables and indexes when missing. The (file_id, page)
// primary key serves the finished-locations lookup.
func (d *DB) Migrate(ctx context.Context) error {
	stmts := sqliteSchema
	if d.drv.Dialect() == dialect.Postgres {
		stmts = postgresSchema
	}
	for _, s := range stmts {
		if err := d.drv.Exec(ctx, s, []any{}, nil); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	d.logger.Debug("schema up to date", "dialect", d.drv.Dialect())
	return nil
}
