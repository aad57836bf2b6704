package database

import (
	"context"
	"database/sql"
	"fmt"
)

// CreateGINIndexes creates the JSONB GIN index on event metadata that the
// base migrations don't define inline, kept separate because it is
// expensive to build on a populated table and safe to skip on first boot.
func CreateGINIndexes(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_events_metadata_gin
		ON events USING gin(metadata)`)
	if err != nil {
		return fmt.Errorf("failed to create events metadata GIN index: %w", err)
	}
	return nil
}
