package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// UpsertConversation inserts or fully replaces a Conversation row, keyed by
// its caller-supplied identifier (insert-or-replace semantics per spec.md §4.1).
func (s *SQLiteStore) UpsertConversation(ctx context.Context, c *Conversation) error {
	return s.upsertConversationTx(ctx, s.db, c)
}

func (s *SQLiteStore) upsertConversationTx(ctx context.Context, ex execer, c *Conversation) error {
	var lastIndexed interface{}
	if c.LastIndexed != nil {
		lastIndexed = c.LastIndexed.Unix()
	}
	_, err := ex.ExecContext(ctx,
		`INSERT INTO conversations (id, source_tag, session_id, timestamp, archive_pointer, exchange_count, fingerprint, last_indexed, client_version, working_dir)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			source_tag = excluded.source_tag,
			session_id = excluded.session_id,
			timestamp = excluded.timestamp,
			archive_pointer = excluded.archive_pointer,
			exchange_count = excluded.exchange_count,
			fingerprint = excluded.fingerprint,
			last_indexed = excluded.last_indexed,
			client_version = excluded.client_version,
			working_dir = excluded.working_dir`,
		c.ID, c.SourceTag, c.SessionID, c.Timestamp.Format(time.RFC3339), c.ArchivePointer,
		c.ExchangeCount, c.Fingerprint, lastIndexed, c.ClientVersion, c.WorkingDir,
	)
	if err != nil {
		return fmt.Errorf("upserting conversation %q: %w", c.ID, err)
	}
	return nil
}

// ReplaceConversationWithExchanges upserts c and replaces all of its
// Exchanges in a single transaction (spec.md §4.6 step 2: delete-children,
// upsert-parent, children-insert, atomically).
func (s *SQLiteStore) ReplaceConversationWithExchanges(ctx context.Context, c *Conversation, exchanges []Exchange) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.upsertConversationTx(ctx, tx, c); err != nil {
			return err
		}
		return replaceExchangesTx(ctx, tx, c.ID, exchanges)
	})
}

// GetConversation returns a Conversation by id, or (nil, nil) if absent.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source_tag, session_id, timestamp, archive_pointer, exchange_count, fingerprint, last_indexed, client_version, working_dir
		 FROM conversations WHERE id = ?`, id)
	return scanConversation(row)
}

// ListConversationsBySource returns every Conversation with the given source tag.
func (s *SQLiteStore) ListConversationsBySource(ctx context.Context, sourceTag string) ([]*Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_tag, session_id, timestamp, archive_pointer, exchange_count, fingerprint, last_indexed, client_version, working_dir
		 FROM conversations WHERE source_tag = ?`, sourceTag)
	if err != nil {
		return nil, fmt.Errorf("listing conversations for source %q: %w", sourceTag, err)
	}
	defer rows.Close()

	var out []*Conversation
	for rows.Next() {
		c, err := scanConversationRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteConversation removes a Conversation row; its Exchanges cascade.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting conversation %q: %w", id, err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConversation(row rowScanner) (*Conversation, error) {
	c := &Conversation{}
	var tsStr string
	var lastIndexed sql.NullInt64
	var clientVersion, workingDir sql.NullString

	err := row.Scan(&c.ID, &c.SourceTag, &c.SessionID, &tsStr, &c.ArchivePointer,
		&c.ExchangeCount, &c.Fingerprint, &lastIndexed, &clientVersion, &workingDir)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}

	c.Timestamp, err = time.Parse(time.RFC3339, tsStr)
	if err != nil {
		return nil, fmt.Errorf("parsing conversation timestamp %q: %w", tsStr, err)
	}
	if lastIndexed.Valid {
		t := time.Unix(lastIndexed.Int64, 0).UTC()
		c.LastIndexed = &t
	}
	c.ClientVersion = clientVersion.String
	c.WorkingDir = workingDir.String
	return c, nil
}

func scanConversationRows(rows *sql.Rows) (*Conversation, error) {
	return scanConversation(rows)
}
