package jsonl

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeArchive(t *testing.T, root, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(root, name), []byte(content), 0644); err != nil {
		t.Fatalf("writing archive %q: %v", name, err)
	}
}

const sampleArchive = `{"type":"session.start","session_id":"sess-1","timestamp":"2026-01-02T15:04:05Z","client_version":"1.2.3"}
{"type":"user.message","content":"how do I list files"}
{"type":"tool.call","name":"list_dir"}
{"type":"assistant.message","content":"use ls","tool_calls":[{"name":"bash"}]}
{"type":"user.message","content":"thanks"}
{"type":"assistant.message","content":"you're welcome"}
`

func TestCurrentArtifactsListsJSONLFilesOnly(t *testing.T) {
	root := t.TempDir()
	writeArchive(t, root, "a.jsonl", sampleArchive)
	writeArchive(t, root, "notes.txt", "ignore me")

	a := NewAdapter(root)
	artifacts, err := a.CurrentArtifacts(context.Background())
	if err != nil {
		t.Fatalf("current artifacts: %v", err)
	}
	if len(artifacts) != 1 {
		t.Fatalf("expected 1 artifact, got %d: %v", len(artifacts), artifacts)
	}
}

func TestParseAssemblesExchangesInOrder(t *testing.T) {
	root := t.TempDir()
	writeArchive(t, root, "a.jsonl", sampleArchive)
	a := NewAdapter(root)

	parsed, err := a.Parse(context.Background(), filepath.Join(root, "a.jsonl"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.SessionID != "sess-1" {
		t.Fatalf("expected session id sess-1, got %q", parsed.SessionID)
	}
	if parsed.ClientVersion != "1.2.3" {
		t.Fatalf("expected client version 1.2.3, got %q", parsed.ClientVersion)
	}
	if len(parsed.Exchanges) != 2 {
		t.Fatalf("expected 2 exchanges, got %d", len(parsed.Exchanges))
	}

	first := parsed.Exchanges[0]
	if first.UserText != "how do I list files" || first.AssistantText != "use ls" {
		t.Fatalf("unexpected first exchange: %+v", first)
	}
	if len(first.Tools) != 2 {
		t.Fatalf("expected 2 tool names on first exchange, got %v", first.Tools)
	}

	second := parsed.Exchanges[1]
	if second.UserText != "thanks" || second.AssistantText != "you're welcome" {
		t.Fatalf("unexpected second exchange: %+v", second)
	}
}

func TestParseSkipsMalformedLines(t *testing.T) {
	root := t.TempDir()
	archive := sampleArchive + "not json at all\n"
	writeArchive(t, root, "a.jsonl", archive)
	a := NewAdapter(root)

	parsed, err := a.Parse(context.Background(), filepath.Join(root, "a.jsonl"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(parsed.Exchanges) != 2 {
		t.Fatalf("expected malformed trailing line to be ignored, got %d exchanges", len(parsed.Exchanges))
	}
}

func TestParseDropsDanglingUserMessageWithoutReply(t *testing.T) {
	root := t.TempDir()
	archive := `{"type":"session.start","session_id":"sess-2","timestamp":"2026-01-02T15:04:05Z"}
{"type":"user.message","content":"unanswered question"}
`
	writeArchive(t, root, "b.jsonl", archive)
	a := NewAdapter(root)

	parsed, err := a.Parse(context.Background(), filepath.Join(root, "b.jsonl"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(parsed.Exchanges) != 0 {
		t.Fatalf("expected no exchanges for dangling user message, got %d", len(parsed.Exchanges))
	}
}

func TestParseMissingSessionStartErrors(t *testing.T) {
	root := t.TempDir()
	writeArchive(t, root, "c.jsonl", `{"type":"user.message","content":"hi"}`+"\n")
	a := NewAdapter(root)

	if _, err := a.Parse(context.Background(), filepath.Join(root, "c.jsonl")); err == nil {
		t.Fatal("expected error for archive missing session.start")
	}
}

func TestParseMintsSessionIDWhenMissing(t *testing.T) {
	root := t.TempDir()
	writeArchive(t, root, "d.jsonl", `{"type":"session.start","timestamp":"2026-01-02T15:04:05Z"}`+"\n")
	a := NewAdapter(root)

	parsed, err := a.Parse(context.Background(), filepath.Join(root, "d.jsonl"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.SessionID == "" {
		t.Fatal("expected a minted session id")
	}
}
