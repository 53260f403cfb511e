package db

import (
	"context"
	_ "embed"
)

//go:embed schema.sql
var schema string

// Migrate creates the tables if they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, schema)
	return err
}
