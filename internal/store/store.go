// Package store provides the SQLite + FTS5 storage layer for Context Cache.
//
// All engine state lives in a single SQLite database file: Files and their
// Fragments (with an FTS5 shadow for lexical search and optional dense
// embeddings for vector search), and Conversations and their Exchanges.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultDBPath is the default database location.
const DefaultDBPath = "~/.contextcache/cache.db"

// DefaultEmbeddingDimensions is the default embedding vector size (MiniLM).
const DefaultEmbeddingDimensions = 384

// File represents one Markdown source artifact under the notes root.
type File struct {
	ID          int64
	Path        string
	Fingerprint string
	ImportedAt  time.Time
	UpdatedAt   time.Time
}

// Fragment is a unit of retrieval: an overlapping text window extracted
// from a File's content.
type Fragment struct {
	ID         int64
	FileID     int64
	Position   int
	Text       string
	Original   string
	CharStart  int
	Embedding  []float32 // nil if not yet embedded
}

// Conversation is a captured agent session.
type Conversation struct {
	ID             string
	SourceTag      string
	SessionID      string
	Timestamp      time.Time
	ArchivePointer string
	ExchangeCount  int
	Fingerprint    string
	LastIndexed    *time.Time
	ClientVersion  string
	WorkingDir     string
}

// Exchange is one user-turn + assistant-turn pair within a Conversation.
type Exchange struct {
	ID            string
	ConversationID string
	Position      int
	Timestamp     time.Time
	UserText      string
	AssistantText string
	ToolCalls     []string
	ParentTurnID  string
	Embedding     []float32
}

// Stats holds aggregate counts for observability.
type Stats struct {
	FileCount         int64
	FragmentCount     int64
	ConversationCount int64
	ExchangeCount     int64
	DBSizeBytes       int64
}

// LexicalHit is a single lexical-search result: a fragment identifier and
// its BM25 score (smaller is better, per SQLite FTS5's convention).
type LexicalHit struct {
	FragmentID int64
	Score      float64
}

// Config holds configuration for Open.
type Config struct {
	DBPath              string
	EmbeddingDimensions int
}

// Store defines the core storage interface consumed by the rest of the engine.
type Store interface {
	// Files
	UpsertFile(ctx context.Context, path, fingerprint string) (*File, error)
	GetFileByPath(ctx context.Context, path string) (*File, error)
	ListFiles(ctx context.Context) ([]*File, error)
	UpdateFileFingerprint(ctx context.Context, id int64, fingerprint string) error
	DeleteFile(ctx context.Context, id int64) error

	// Fragments
	ReplaceFragments(ctx context.Context, fileID int64, fragments []Fragment) error
	DeleteFragmentsByFile(ctx context.Context, fileID int64) error
	GetFragment(ctx context.Context, id int64) (*Fragment, string, error) // fragment, owning file path
	ListFragmentsWithEmbeddings(ctx context.Context) ([]*Fragment, error)
	ListFragmentsByFile(ctx context.Context, fileID int64) ([]*Fragment, error)
	SearchLexical(ctx context.Context, query string, limit int) ([]LexicalHit, error)
	CountFragments(ctx context.Context) (int64, error)
	CountLexicalShadowRows(ctx context.Context) (int64, error)

	// ReplaceFileWithFragments upserts a File by path and replaces all of its
	// Fragments, both inside a single transaction — the note indexer's
	// per-file write (spec.md §4.5 step 5).
	ReplaceFileWithFragments(ctx context.Context, path, fingerprint string, fragments []Fragment) (*File, error)

	// Conversations
	UpsertConversation(ctx context.Context, c *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversationsBySource(ctx context.Context, sourceTag string) ([]*Conversation, error)
	DeleteConversation(ctx context.Context, id string) error

	// Exchanges
	ReplaceExchanges(ctx context.Context, conversationID string, exchanges []Exchange) error
	DeleteExchangesByConversation(ctx context.Context, conversationID string) error
	ListExchangesByConversation(ctx context.Context, conversationID string) ([]*Exchange, error)
	SearchExchanges(ctx context.Context, query string, after, before *time.Time, limit int) ([]ExchangeHit, error)

	// ReplaceConversationWithExchanges upserts a Conversation and replaces
	// all of its Exchanges, both inside a single transaction — the
	// conversation indexer's per-artifact write (spec.md §4.6 step 2).
	ReplaceConversationWithExchanges(ctx context.Context, c *Conversation, exchanges []Exchange) error

	// Transactions
	WithTx(ctx context.Context, fn func(*sql.Tx) error) error

	// Maintenance
	Stats(ctx context.Context) (*Stats, error)
	Reset(ctx context.Context) error
	Close() error
}

// ExchangeHit is a hydrated Exchange plus its owning Conversation's metadata,
// as returned by SearchExchanges / Conversation Search (spec.md §4.11).
type ExchangeHit struct {
	Exchange
	ConversationSessionID string
	ConversationTimestamp time.Time
	SourceTag             string
	ArchivePointer        string
}

// SQLiteStore implements Store using SQLite + FTS5.
type SQLiteStore struct {
	db      *sql.DB
	dbPath  string
	embDims int
}

// Open creates or opens a SQLite-backed Store.
// Pass ":memory:" for in-memory databases (testing).
func Open(cfg Config) (*SQLiteStore, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = expandPath(DefaultDBPath)
	}
	if cfg.EmbeddingDimensions <= 0 {
		cfg.EmbeddingDimensions = DefaultEmbeddingDimensions
	}

	if cfg.DBPath != ":memory:" {
		dir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging store: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db, dbPath: cfg.DBPath, embDims: cfg.EmbeddingDimensions}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on any error (including a panic re-raised after rollback).
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// GetDB returns the underlying *sql.DB for read-only ancillary uses
// (e.g. computing DB size). Callers should prefer the typed Store methods.
func (s *SQLiteStore) GetDB() *sql.DB {
	return s.db
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
