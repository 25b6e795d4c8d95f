package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "embed"
)

//go:embed schema.sql
var schemaSQL string

// Migrate applies the database schema to the given database.  The embedding
// column is sized for dim-dimensional vectors; every statement is
// idempotent so Migrate can run on every start.
func Migrate(ctx context.Context, db *sql.DB, dim int) error {
	if dim <= 0 {
		return errors.New("migrate: embedding dimension must be positive")
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(schemaSQL, dim)); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
