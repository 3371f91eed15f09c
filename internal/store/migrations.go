package store

import (
	"fmt"
	"strings"
)

// migrate creates all tables, indexes, and triggers if they don't already
// exist, and adds later columns to pre-existing databases. Bootstrap DDL is
// idempotent (CREATE TABLE/INDEX/TRIGGER IF NOT EXISTS); column-addition
// migrations check pragma_table_info first so re-running is always safe.
func (s *SQLiteStore) migrate() error {
	if err := s.runBootstrapDDL(); err != nil {
		return err
	}
	if err := s.seedMeta(); err != nil {
		return fmt.Errorf("seeding metadata: %w", err)
	}
	if err := s.migrateConversationFingerprintColumn(); err != nil {
		return fmt.Errorf("migrating conversation fingerprint column: %w", err)
	}
	return nil
}

func (s *SQLiteStore) runBootstrapDDL() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS files (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			path         TEXT UNIQUE NOT NULL,
			fingerprint  TEXT NOT NULL,
			imported_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at   DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS fragments (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			file_id     INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
			position    INTEGER NOT NULL,
			text        TEXT NOT NULL,
			original    TEXT NOT NULL,
			char_start  INTEGER NOT NULL DEFAULT 0,
			embedding   BLOB,
			UNIQUE(file_id, position)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fragments_file_id ON fragments(file_id)`,

		// Lexical shadow: FTS5 virtual table mirroring fragment text, keyed
		// by the fragment's own identifier (external content table).
		`CREATE VIRTUAL TABLE IF NOT EXISTS fragments_fts USING fts5(
			content,
			content=fragments,
			content_rowid=id,
			tokenize='porter unicode61'
		)`,

		`CREATE TRIGGER IF NOT EXISTS fragments_ai AFTER INSERT ON fragments BEGIN
			INSERT INTO fragments_fts(rowid, content) VALUES (new.id, new.text);
		END`,
		`CREATE TRIGGER IF NOT EXISTS fragments_ad AFTER DELETE ON fragments BEGIN
			INSERT INTO fragments_fts(fragments_fts, rowid, content) VALUES('delete', old.id, old.text);
		END`,
		`CREATE TRIGGER IF NOT EXISTS fragments_au AFTER UPDATE ON fragments BEGIN
			INSERT INTO fragments_fts(fragments_fts, rowid, content) VALUES('delete', old.id, old.text);
			INSERT INTO fragments_fts(rowid, content) VALUES (new.id, new.text);
		END`,

		`CREATE TABLE IF NOT EXISTS conversations (
			id              TEXT PRIMARY KEY,
			source_tag      TEXT NOT NULL,
			session_id      TEXT NOT NULL,
			timestamp       TEXT NOT NULL,
			archive_pointer TEXT NOT NULL,
			exchange_count  INTEGER NOT NULL DEFAULT 0,
			fingerprint     TEXT NOT NULL DEFAULT '',
			last_indexed    INTEGER,
			client_version  TEXT,
			working_dir     TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_timestamp ON conversations(timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_session_id ON conversations(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_source_tag ON conversations(source_tag)`,

		`CREATE TABLE IF NOT EXISTS exchanges (
			id              TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			position        INTEGER NOT NULL,
			timestamp       TEXT NOT NULL,
			user_text       TEXT NOT NULL,
			assistant_text  TEXT NOT NULL,
			tool_calls      TEXT,
			parent_turn_id  TEXT,
			embedding       BLOB,
			UNIQUE(conversation_id, position)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_exchanges_conversation_id ON exchanges(conversation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_exchanges_timestamp ON exchanges(timestamp DESC)`,

		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT
		)`,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning migration transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("executing migration %q: %w", truncate(stmt, 80), err)
		}
	}

	return tx.Commit()
}

// migrateConversationFingerprintColumn adds the fingerprint column to
// conversations for databases bootstrapped before it existed. Idempotent:
// checks pragma_table_info before ALTERing, and tolerates a racing
// "duplicate column name" error from a concurrent writer.
func (s *SQLiteStore) migrateConversationFingerprintColumn() error {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM pragma_table_info('conversations') WHERE name='fingerprint'",
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking for fingerprint column: %w", err)
	}
	if count > 0 {
		return nil
	}

	_, err = s.db.Exec(`ALTER TABLE conversations ADD COLUMN fingerprint TEXT NOT NULL DEFAULT ''`)
	if err != nil && !isDuplicateColumnError(err) {
		return fmt.Errorf("adding fingerprint column: %w", err)
	}
	return nil
}

func isDuplicateColumnError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "duplicate column name")
}

// seedMeta initializes the meta table with defaults if not already set.
func (s *SQLiteStore) seedMeta() error {
	defaults := map[string]string{
		"schema_version":       "1",
		"embedding_dimensions": fmt.Sprintf("%d", s.embDims),
	}
	for k, v := range defaults {
		if _, err := s.db.Exec("INSERT OR IGNORE INTO meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("seeding meta key %q: %w", k, err)
		}
	}
	return nil
}
