package postgres

import (
	"context"
	"fmt"
)

// TruncateForTest removes all rows from the graph tables. It lives in the
// postgres package (not postgres_test) for access to the unexported db
// field, and is exported so the postgres_test package can call it.
func (s *Store) TruncateForTest(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "TRUNCATE TABLE entities, relationships, embeddings")
	if err != nil {
		return fmt.Errorf("postgres: failed to truncate graph tables: %w", err)
	}
	return nil
}
