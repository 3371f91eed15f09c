package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Stats reports aggregate counts across the four content tables plus the
// on-disk database size, for the "stats" CLI command and health checks.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}

	counts := []struct {
		table string
		dest  *int64
	}{
		{"files", &st.FileCount},
		{"fragments", &st.FragmentCount},
		{"conversations", &st.ConversationCount},
		{"exchanges", &st.ExchangeCount},
	}
	for _, c := range counts {
		row := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", c.table))
		if err := row.Scan(c.dest); err != nil {
			return nil, fmt.Errorf("counting %s: %w", c.table, err)
		}
	}

	if s.dbPath != ":memory:" {
		row := s.db.QueryRowContext(ctx,
			"SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()")
		if err := row.Scan(&st.DBSizeBytes); err != nil {
			return nil, fmt.Errorf("measuring database size: %w", err)
		}
	}

	return st, nil
}

// Reset deletes every row from every content table and reclaims disk space,
// leaving an empty database with an intact schema. Used by the "reset" CLI
// command and between independent test cases.
func (s *SQLiteStore) Reset(ctx context.Context) error {
	// Deletion order respects the foreign keys even though ON DELETE CASCADE
	// would handle it anyway — explicit is cheaper to reason about.
	tables := []string{"exchanges", "conversations", "fragments", "files", "meta"}

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		for _, t := range tables {
			if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", t)); err != nil {
				return fmt.Errorf("clearing table %q: %w", t, err)
			}
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM sqlite_sequence"); err != nil {
			return fmt.Errorf("resetting autoincrement counters: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.seedMeta(); err != nil {
		return fmt.Errorf("reseeding metadata: %w", err)
	}

	if s.dbPath != ":memory:" {
		if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
			return fmt.Errorf("vacuuming database: %w", err)
		}
	}
	return nil
}
