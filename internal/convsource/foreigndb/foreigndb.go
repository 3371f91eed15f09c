// Package foreigndb implements the sibling embedded-database conversation
// source (spec.md §6) as a convindex.SourceAdapter: a read-only connection
// to tables session/message/part, each row carrying a JSON payload.
package foreigndb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ctxcache/contextcache/internal/convindex"
)

// Adapter reads conversations out of a foreign database at Path without
// ever writing to it.
type Adapter struct {
	Path string

	db *sql.DB
}

// NewAdapter opens a read-only connection to the sibling database at path.
func NewAdapter(path string) (*Adapter, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening foreign database %q: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to foreign database %q: %w", path, err)
	}
	return &Adapter{Path: path, db: db}, nil
}

// Close releases the underlying connection.
func (a *Adapter) Close() error {
	return a.db.Close()
}

// Tag identifies this provider.
func (a *Adapter) Tag() string { return "foreigndb" }

// CurrentArtifacts returns every session identifier in the foreign
// database; the session id is the artifact pointer for this provider.
func (a *Adapter) CurrentArtifacts(ctx context.Context) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT id FROM session`)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type sessionPayload struct {
	Version string `json:"version"`
	Time    struct {
		Created int64 `json:"created"`
	} `json:"time"`
	Directory string `json:"directory"`
}

type messagePayload struct {
	Role string `json:"role"`
	Time struct {
		Created int64 `json:"created"`
	} `json:"time"`
	ParentID string `json:"parentID"`
}

type partPayload struct {
	Type string `json:"type"`
	Text string `json:"text"`
	Tool string `json:"tool"`
}

type messageRow struct {
	id   string
	data messagePayload
}

// Parse reconstructs a full conversation from one session identifier:
// every message for that session ordered by creation time, every part for
// those messages ordered by creation time, folded into alternating
// exchanges by message role per spec.md §6.
func (a *Adapter) Parse(ctx context.Context, artifact string) (*convindex.ParsedConversation, error) {
	sessRow := a.db.QueryRowContext(ctx, `SELECT data FROM session WHERE id = ?`, artifact)
	var sessData string
	if err := sessRow.Scan(&sessData); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("session %q not found", artifact)
		}
		return nil, fmt.Errorf("reading session %q: %w", artifact, err)
	}
	var sess sessionPayload
	if err := json.Unmarshal([]byte(sessData), &sess); err != nil {
		return nil, fmt.Errorf("decoding session %q payload: %w", artifact, err)
	}

	msgRows, err := a.db.QueryContext(ctx,
		`SELECT id, data FROM message WHERE session_id = ? ORDER BY created_at`, artifact)
	if err != nil {
		return nil, fmt.Errorf("listing messages for session %q: %w", artifact, err)
	}
	defer msgRows.Close()

	var messages []messageRow
	for msgRows.Next() {
		var id, data string
		if err := msgRows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		var mp messagePayload
		if err := json.Unmarshal([]byte(data), &mp); err != nil {
			return nil, fmt.Errorf("decoding message %q payload: %w", id, err)
		}
		messages = append(messages, messageRow{id: id, data: mp})
	}
	if err := msgRows.Err(); err != nil {
		return nil, err
	}

	partsByMessage, err := a.partsByMessage(ctx, messages)
	if err != nil {
		return nil, err
	}

	exchanges := buildExchanges(messages, partsByMessage)

	timestampMs := sess.Time.Created
	if timestampMs == 0 && len(messages) > 0 {
		timestampMs = messages[0].data.Time.Created
	}

	return &convindex.ParsedConversation{
		ID:             fmt.Sprintf("foreigndb:%s", artifact),
		SessionID:      artifact,
		Timestamp:      msToTime(timestampMs),
		ArchivePointer: artifact,
		ClientVersion:  sess.Version,
		WorkingDir:     sess.Directory,
		Exchanges:      exchanges,
	}, nil
}

func (a *Adapter) partsByMessage(ctx context.Context, messages []messageRow) (map[string][]partPayload, error) {
	out := make(map[string][]partPayload, len(messages))
	if len(messages) == 0 {
		return out, nil
	}

	ids := make([]string, len(messages))
	placeholders := make([]string, len(messages))
	args := make([]interface{}, len(messages))
	for i, m := range messages {
		ids[i] = m.id
		placeholders[i] = "?"
		args[i] = m.id
	}

	query := fmt.Sprintf(
		`SELECT message_id, data FROM part WHERE message_id IN (%s) ORDER BY created_at`,
		strings.Join(placeholders, ","))
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing parts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var msgID, data string
		if err := rows.Scan(&msgID, &data); err != nil {
			return nil, fmt.Errorf("scanning part row: %w", err)
		}
		var pp partPayload
		if err := json.Unmarshal([]byte(data), &pp); err != nil {
			return nil, fmt.Errorf("decoding part payload for message %q: %w", msgID, err)
		}
		out[msgID] = append(out[msgID], pp)
	}
	return out, rows.Err()
}

// buildExchanges folds an ordered message list into user/assistant
// exchange pairs. A user message's text opens an exchange; the following
// assistant message (possibly empty of text but carrying tool calls)
// closes it.
func buildExchanges(messages []messageRow, partsByMessage map[string][]partPayload) []convindex.ParsedExchange {
	var exchanges []convindex.ParsedExchange
	var pendingUser *string

	for _, m := range messages {
		text, tools := foldParts(partsByMessage[m.id])

		switch m.data.Role {
		case "user":
			u := text
			pendingUser = &u
		case "assistant":
			if pendingUser == nil {
				continue
			}
			exchanges = append(exchanges, convindex.ParsedExchange{
				UserText:      *pendingUser,
				AssistantText: text,
				Tools:         tools,
			})
			pendingUser = nil
		}
	}
	return exchanges
}

func msToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func foldParts(parts []partPayload) (string, []string) {
	var text strings.Builder
	var tools []string
	for _, p := range parts {
		switch p.Type {
		case "tool-call":
			if p.Tool != "" {
				tools = append(tools, p.Tool)
			}
		default:
			if p.Text != "" {
				if text.Len() > 0 {
					text.WriteString("\n")
				}
				text.WriteString(p.Text)
			}
		}
	}
	return text.String(), tools
}
