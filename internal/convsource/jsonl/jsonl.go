// Package jsonl implements the line-delimited conversation archive format
// (spec.md §6) as a convindex.SourceAdapter.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ctxcache/contextcache/internal/convindex"
)

// Adapter reconciles conversations stored as one .jsonl archive file per
// session under Root.
type Adapter struct {
	Root string
}

// NewAdapter returns an Adapter reading archives from root.
func NewAdapter(root string) *Adapter {
	return &Adapter{Root: root}
}

// Tag identifies this provider.
func (a *Adapter) Tag() string { return "jsonl" }

// CurrentArtifacts lists every .jsonl file directly under Root, as paths
// joined onto Root (absolute only when Root is); these are the artifact
// pointers for this provider.
func (a *Adapter) CurrentArtifacts(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(a.Root)
	if err != nil {
		return nil, fmt.Errorf("reading archive directory %q: %w", a.Root, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".jsonl") {
			continue
		}
		paths = append(paths, filepath.Join(a.Root, e.Name()))
	}
	return paths, nil
}

// record is the union of fields across every recognized record kind.
type record struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	Client    string    `json:"client_version"`
	Timestamp time.Time `json:"timestamp"`
	Content   string    `json:"content"`
	Name      string    `json:"name"`
	Tool      string    `json:"tool"`
	ToolCalls []struct {
		Name string `json:"name"`
		Tool string `json:"tool"`
	} `json:"tool_calls"`
}

// Parse reads artifact (a path returned by CurrentArtifacts) line by line,
// assembling a Conversation + ordered Exchanges per the alternation rule in
// spec.md §6: each user.message opens an in-progress exchange; subsequent
// assistant.message records append to its assistant text; tool names from
// assistant tool_calls and tool.call/tool.invoke records accumulate into the
// exchange's tool list; an exchange is emitted only once both its user and
// assistant text are non-empty.
func (a *Adapter) Parse(ctx context.Context, artifact string) (*convindex.ParsedConversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(artifact)
	if err != nil {
		return nil, fmt.Errorf("opening archive %q: %w", artifact, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	buf := make([]byte, 0, 1024*1024)
	scanner.Buffer(buf, 16*1024*1024)

	var sessionStart *record
	var exchanges []convindex.ParsedExchange
	var inProgress *convindex.ParsedExchange

	flush := func() {
		if inProgress != nil && inProgress.UserText != "" && inProgress.AssistantText != "" {
			exchanges = append(exchanges, *inProgress)
		}
		inProgress = nil
	}

	for scanner.Scan() {
		var rec record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}

		switch rec.Type {
		case "session.start":
			r := rec
			sessionStart = &r

		case "user.message":
			flush()
			inProgress = &convindex.ParsedExchange{UserText: rec.Content}

		case "assistant.message":
			if inProgress == nil {
				continue
			}
			if inProgress.AssistantText == "" {
				inProgress.AssistantText = rec.Content
			} else {
				inProgress.AssistantText = inProgress.AssistantText + "\n" + rec.Content
			}
			for _, tc := range rec.ToolCalls {
				name := tc.Name
				if name == "" {
					name = tc.Tool
				}
				if name != "" {
					inProgress.Tools = append(inProgress.Tools, name)
				}
			}

		case "tool.call", "tool.invoke":
			if inProgress == nil {
				continue
			}
			name := rec.Name
			if name == "" {
				name = rec.Tool
			}
			if name != "" {
				inProgress.Tools = append(inProgress.Tools, name)
			}
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning archive %q: %w", artifact, err)
	}
	if sessionStart == nil {
		return nil, fmt.Errorf("archive %q has no session.start record", artifact)
	}

	sessionID := sessionStart.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	return &convindex.ParsedConversation{
		ID:             fmt.Sprintf("jsonl:%s", sessionID),
		SessionID:      sessionID,
		Timestamp:      sessionStart.Timestamp,
		ArchivePointer: artifact,
		ClientVersion:  sessionStart.Client,
		Exchanges:      exchanges,
	}, nil
}
