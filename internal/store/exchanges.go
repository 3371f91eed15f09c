package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ReplaceExchanges deletes all existing Exchanges of conversationID and
// inserts the given ordered set, inside a single transaction.
func (s *SQLiteStore) ReplaceExchanges(ctx context.Context, conversationID string, exchanges []Exchange) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		return replaceExchangesTx(ctx, tx, conversationID, exchanges)
	})
}

func replaceExchangesTx(ctx context.Context, tx *sql.Tx, conversationID string, exchanges []Exchange) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM exchanges WHERE conversation_id = ?`, conversationID); err != nil {
		return fmt.Errorf("deleting exchanges for conversation %q: %w", conversationID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO exchanges (id, conversation_id, position, timestamp, user_text, assistant_text, tool_calls, parent_turn_id, embedding)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing exchange insert: %w", err)
	}
	defer stmt.Close()

	for _, ex := range exchanges {
		var toolCalls interface{}
		if len(ex.ToolCalls) > 0 {
			b, err := json.Marshal(ex.ToolCalls)
			if err != nil {
				return fmt.Errorf("encoding tool calls for exchange %q: %w", ex.ID, err)
			}
			toolCalls = string(b)
		}
		var blob []byte
		if len(ex.Embedding) > 0 {
			blob = float32ToBytes(ex.Embedding)
		}
		var parentTurn interface{}
		if ex.ParentTurnID != "" {
			parentTurn = ex.ParentTurnID
		}

		_, err := stmt.ExecContext(ctx, ex.ID, conversationID, ex.Position, ex.Timestamp.Format(time.RFC3339),
			ex.UserText, ex.AssistantText, toolCalls, parentTurn, blob)
		if err != nil {
			return fmt.Errorf("inserting exchange %q (position %d): %w", ex.ID, ex.Position, err)
		}
	}
	return nil
}

// DeleteExchangesByConversation removes every Exchange owned by conversationID.
func (s *SQLiteStore) DeleteExchangesByConversation(ctx context.Context, conversationID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM exchanges WHERE conversation_id = ?`, conversationID)
	if err != nil {
		return fmt.Errorf("deleting exchanges for conversation %q: %w", conversationID, err)
	}
	return nil
}

// ListExchangesByConversation returns every Exchange of conversationID
// ordered by position ascending.
func (s *SQLiteStore) ListExchangesByConversation(ctx context.Context, conversationID string) ([]*Exchange, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, position, timestamp, user_text, assistant_text, tool_calls, parent_turn_id, embedding
		 FROM exchanges WHERE conversation_id = ? ORDER BY position ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("listing exchanges for conversation %q: %w", conversationID, err)
	}
	defer rows.Close()

	var out []*Exchange
	for rows.Next() {
		ex, err := scanExchange(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ex)
	}
	return out, rows.Err()
}

// SearchExchanges joins Exchanges to their Conversation and returns rows
// where either the user text or the assistant text contains query
// (substring via SQLite LIKE, case-insensitive for ASCII letters) and the
// Conversation timestamp satisfies the
// optional inclusive bounds, ordered by Conversation timestamp descending
// then Exchange position ascending (spec.md §4.11).
func (s *SQLiteStore) SearchExchanges(ctx context.Context, query string, after, before *time.Time, limit int) ([]ExchangeHit, error) {
	if limit <= 0 {
		limit = 10
	}

	var clauses []string
	args := []interface{}{}

	clauses = append(clauses, `(e.user_text LIKE ? ESCAPE '\' OR e.assistant_text LIKE ? ESCAPE '\')`)
	pattern := "%" + escapeLike(query) + "%"
	args = append(args, pattern, pattern)

	if after != nil {
		clauses = append(clauses, `c.timestamp >= ?`)
		args = append(args, after.Format(time.RFC3339))
	}
	if before != nil {
		clauses = append(clauses, `c.timestamp <= ?`)
		args = append(args, before.Format(time.RFC3339))
	}

	q := fmt.Sprintf(
		`SELECT e.id, e.conversation_id, e.position, e.timestamp, e.user_text, e.assistant_text, e.tool_calls, e.parent_turn_id, e.embedding,
		        c.session_id, c.timestamp, c.source_tag, c.archive_pointer
		 FROM exchanges e JOIN conversations c ON c.id = e.conversation_id
		 WHERE %s
		 ORDER BY c.timestamp DESC, e.position ASC
		 LIMIT ?`, strings.Join(clauses, " AND "))
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("searching exchanges: %w", err)
	}
	defer rows.Close()

	var out []ExchangeHit
	for rows.Next() {
		var hit ExchangeHit
		var exTSStr, convTSStr string
		var toolCalls sql.NullString
		var parentTurn sql.NullString
		var blob []byte

		err := rows.Scan(&hit.ID, &hit.ConversationID, &hit.Position, &exTSStr, &hit.UserText, &hit.AssistantText,
			&toolCalls, &parentTurn, &blob,
			&hit.ConversationSessionID, &convTSStr, &hit.SourceTag, &hit.ArchivePointer)
		if err != nil {
			return nil, fmt.Errorf("scanning exchange hit: %w", err)
		}

		hit.Timestamp, err = time.Parse(time.RFC3339, exTSStr)
		if err != nil {
			return nil, fmt.Errorf("parsing exchange timestamp %q: %w", exTSStr, err)
		}
		hit.ConversationTimestamp, err = time.Parse(time.RFC3339, convTSStr)
		if err != nil {
			return nil, fmt.Errorf("parsing conversation timestamp %q: %w", convTSStr, err)
		}
		if toolCalls.Valid && toolCalls.String != "" {
			if err := json.Unmarshal([]byte(toolCalls.String), &hit.ToolCalls); err != nil {
				return nil, fmt.Errorf("decoding tool calls for exchange %q: %w", hit.ID, err)
			}
		}
		hit.ParentTurnID = parentTurn.String
		if len(blob) > 0 {
			hit.Embedding = bytesToFloat32(blob)
		}

		out = append(out, hit)
	}
	return out, rows.Err()
}

func scanExchange(rows *sql.Rows) (*Exchange, error) {
	ex := &Exchange{}
	var tsStr string
	var toolCalls sql.NullString
	var parentTurn sql.NullString
	var blob []byte

	err := rows.Scan(&ex.ID, &ex.ConversationID, &ex.Position, &tsStr, &ex.UserText, &ex.AssistantText,
		&toolCalls, &parentTurn, &blob)
	if err != nil {
		return nil, fmt.Errorf("scanning exchange: %w", err)
	}

	ex.Timestamp, err = time.Parse(time.RFC3339, tsStr)
	if err != nil {
		return nil, fmt.Errorf("parsing exchange timestamp %q: %w", tsStr, err)
	}
	if toolCalls.Valid && toolCalls.String != "" {
		if err := json.Unmarshal([]byte(toolCalls.String), &ex.ToolCalls); err != nil {
			return nil, fmt.Errorf("decoding tool calls: %w", err)
		}
	}
	ex.ParentTurnID = parentTurn.String
	if len(blob) > 0 {
		ex.Embedding = bytesToFloat32(blob)
	}
	return ex, nil
}

// escapeLike escapes LIKE metacharacters so substring queries match literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
