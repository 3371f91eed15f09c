package foreigndb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func buildFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "foreign.db")

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("opening fixture database: %v", err)
	}
	defer db.Close()

	schema := []string{
		`CREATE TABLE session (id TEXT PRIMARY KEY, data TEXT)`,
		`CREATE TABLE message (id TEXT PRIMARY KEY, session_id TEXT, created_at INTEGER, data TEXT)`,
		`CREATE TABLE part (id TEXT PRIMARY KEY, message_id TEXT, created_at INTEGER, data TEXT)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("creating fixture schema: %v", err)
		}
	}

	exec := func(query string, args ...interface{}) {
		t.Helper()
		if _, err := db.Exec(query, args...); err != nil {
			t.Fatalf("seeding fixture: %v", err)
		}
	}

	exec(`INSERT INTO session (id, data) VALUES (?, ?)`,
		"sess-1", `{"version":"0.9.1","directory":"/tmp/proj","time":{"created":1767366245000}}`)

	exec(`INSERT INTO message (id, session_id, created_at, data) VALUES (?, ?, ?, ?)`,
		"m1", "sess-1", 1, `{"role":"user","time":{"created":1767366245000}}`)
	exec(`INSERT INTO message (id, session_id, created_at, data) VALUES (?, ?, ?, ?)`,
		"m2", "sess-1", 2, `{"role":"assistant","time":{"created":1767366246000}}`)

	exec(`INSERT INTO part (id, message_id, created_at, data) VALUES (?, ?, ?, ?)`,
		"p1", "m1", 1, `{"type":"text","text":"how do I list files"}`)
	exec(`INSERT INTO part (id, message_id, created_at, data) VALUES (?, ?, ?, ?)`,
		"p2", "m2", 1, `{"type":"tool-call","tool":"bash"}`)
	exec(`INSERT INTO part (id, message_id, created_at, data) VALUES (?, ?, ?, ?)`,
		"p3", "m2", 2, `{"type":"text","text":"use ls"}`)

	return path
}

func TestCurrentArtifactsListsSessionIDs(t *testing.T) {
	path := buildFixture(t)
	a, err := NewAdapter(path)
	if err != nil {
		t.Fatalf("opening adapter: %v", err)
	}
	defer a.Close()

	artifacts, err := a.CurrentArtifacts(context.Background())
	if err != nil {
		t.Fatalf("current artifacts: %v", err)
	}
	if len(artifacts) != 1 || artifacts[0] != "sess-1" {
		t.Fatalf("expected [sess-1], got %v", artifacts)
	}
}

func TestParseReconstructsExchangeFromMessagesAndParts(t *testing.T) {
	path := buildFixture(t)
	a, err := NewAdapter(path)
	if err != nil {
		t.Fatalf("opening adapter: %v", err)
	}
	defer a.Close()

	parsed, err := a.Parse(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.SessionID != "sess-1" {
		t.Fatalf("expected session id sess-1, got %q", parsed.SessionID)
	}
	if parsed.ClientVersion != "0.9.1" {
		t.Fatalf("expected client version 0.9.1, got %q", parsed.ClientVersion)
	}
	if parsed.WorkingDir != "/tmp/proj" {
		t.Fatalf("expected working dir /tmp/proj, got %q", parsed.WorkingDir)
	}
	if len(parsed.Exchanges) != 1 {
		t.Fatalf("expected 1 exchange, got %d", len(parsed.Exchanges))
	}

	ex := parsed.Exchanges[0]
	if ex.UserText != "how do I list files" {
		t.Fatalf("unexpected user text: %q", ex.UserText)
	}
	if ex.AssistantText != "use ls" {
		t.Fatalf("unexpected assistant text: %q", ex.AssistantText)
	}
	if len(ex.Tools) != 1 || ex.Tools[0] != "bash" {
		t.Fatalf("expected tool [bash], got %v", ex.Tools)
	}
}

func TestParseAllowsToolOnlyAssistantTurn(t *testing.T) {
	path := buildFixture(t)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("reopening fixture: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO message (id, session_id, created_at, data) VALUES (?, ?, ?, ?)`,
		"m3", "sess-1", 3, `{"role":"user","time":{"created":1767366247000}}`); err != nil {
		t.Fatalf("seeding user message: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO message (id, session_id, created_at, data) VALUES (?, ?, ?, ?)`,
		"m4", "sess-1", 4, `{"role":"assistant","time":{"created":1767366248000}}`); err != nil {
		t.Fatalf("seeding assistant message: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO part (id, message_id, created_at, data) VALUES (?, ?, ?, ?)`,
		"p4", "m3", 1, `{"type":"text","text":"run the tests"}`); err != nil {
		t.Fatalf("seeding part: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO part (id, message_id, created_at, data) VALUES (?, ?, ?, ?)`,
		"p5", "m4", 1, `{"type":"tool-call","tool":"go_test"}`); err != nil {
		t.Fatalf("seeding part: %v", err)
	}
	db.Close()

	a, err := NewAdapter(path)
	if err != nil {
		t.Fatalf("opening adapter: %v", err)
	}
	defer a.Close()

	parsed, err := a.Parse(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(parsed.Exchanges) != 2 {
		t.Fatalf("expected 2 exchanges, got %d", len(parsed.Exchanges))
	}
	last := parsed.Exchanges[1]
	if last.AssistantText != "" {
		t.Fatalf("expected empty assistant text for tool-only turn, got %q", last.AssistantText)
	}
	if len(last.Tools) != 1 || last.Tools[0] != "go_test" {
		t.Fatalf("expected tool [go_test], got %v", last.Tools)
	}
}
