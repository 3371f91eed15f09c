package display

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleArchive = `{"type":"session.start","session_id":"sess-1","timestamp":"2026-01-02T15:04:05Z","client_version":"1.2.3"}
{"type":"user.message","content":"how do I list files"}
{"type":"assistant.message","content":"use ls","tool_calls":[{"name":"bash"}]}
{"type":"user.message","content":"thanks"}
{"type":"assistant.message","content":"you're welcome"}
`

func writeArchive(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "a.jsonl")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing archive: %v", err)
	}
	return path
}

func TestRenderIncludesSessionMetadataAndAllExchanges(t *testing.T) {
	path := writeArchive(t, sampleArchive)

	out, err := Render(path, nil, nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, "sess-1") {
		t.Fatal("expected session id in output")
	}
	if !strings.Contains(out, "how do I list files") || !strings.Contains(out, "thanks") {
		t.Fatal("expected both exchanges in output")
	}
	if !strings.Contains(out, "bash") {
		t.Fatal("expected tool name in output")
	}
}

func TestRenderRespectsExchangeRange(t *testing.T) {
	path := writeArchive(t, sampleArchive)
	start, end := 1, 1

	out, err := Render(path, &start, &end)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, "how do I list files") {
		t.Fatal("expected first exchange in output")
	}
	if strings.Contains(out, "you're welcome") {
		t.Fatal("expected second exchange to be excluded")
	}
}

func TestRenderMissingFileReturnsErrorStringNotError(t *testing.T) {
	out, err := Render(filepath.Join(t.TempDir(), "missing.jsonl"), nil, nil)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !strings.Contains(out, "could not open") {
		t.Fatalf("expected a one-line error message, got %q", out)
	}
}

func TestRenderMissingSessionStartReturnsErrorString(t *testing.T) {
	path := writeArchive(t, `{"type":"user.message","content":"hi"}`+"\n")

	out, err := Render(path, nil, nil)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !strings.Contains(out, "session.start") {
		t.Fatalf("expected error message about missing session.start, got %q", out)
	}
}
