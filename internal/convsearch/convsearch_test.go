package convsearch

import (
	"context"
	"testing"
	"time"

	"github.com/ctxcache/contextcache/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.Open(store.Config{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedConversation(t *testing.T, s *store.SQLiteStore, id string, ts time.Time, exchanges []store.Exchange) {
	t.Helper()
	ctx := context.Background()
	c := &store.Conversation{
		ID:        id,
		SourceTag: "jsonl",
		SessionID: "sess-" + id,
		Timestamp: ts,
	}
	if err := s.UpsertConversation(ctx, c); err != nil {
		t.Fatalf("upserting conversation %q: %v", id, err)
	}
	if err := s.ReplaceExchanges(ctx, id, exchanges); err != nil {
		t.Fatalf("replacing exchanges for %q: %v", id, err)
	}
}

func TestSearchMatchesSubstringInUserOrAssistantText(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	seedConversation(t, s, "c1", now, []store.Exchange{
		{ID: "e1", Position: 0, Timestamp: now, UserText: "how do I deploy to kubernetes", AssistantText: "use kubectl apply"},
	})
	seedConversation(t, s, "c2", now, []store.Exchange{
		{ID: "e2", Position: 0, Timestamp: now, UserText: "what's the weather", AssistantText: "sunny"},
	})

	results, err := Search(context.Background(), s, "kubernetes", nil, nil, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].ConversationID != "c1" {
		t.Fatalf("expected conversation c1, got %q", results[0].ConversationID)
	}
	if results[0].Score != 1.0 {
		t.Fatalf("expected constant score 1.0, got %.4f", results[0].Score)
	}
}

func TestSearchRespectsTimestampBounds(t *testing.T) {
	s := newTestStore(t)
	early := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	seedConversation(t, s, "early", early, []store.Exchange{
		{ID: "e1", Position: 0, Timestamp: early, UserText: "deploy thing", AssistantText: "ok"},
	})
	seedConversation(t, s, "late", late, []store.Exchange{
		{ID: "e2", Position: 0, Timestamp: late, UserText: "deploy thing", AssistantText: "ok"},
	})

	after := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	results, err := Search(context.Background(), s, "deploy", &after, nil, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].ConversationID != "late" {
		t.Fatalf("expected only the late conversation to match, got %+v", results)
	}
}

func TestSearchOrdersByConversationTimestampDescending(t *testing.T) {
	s := newTestStore(t)
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	seedConversation(t, s, "old", older, []store.Exchange{
		{ID: "e1", Position: 0, Timestamp: older, UserText: "deploy", AssistantText: "ok"},
	})
	seedConversation(t, s, "new", newer, []store.Exchange{
		{ID: "e2", Position: 0, Timestamp: newer, UserText: "deploy", AssistantText: "ok"},
	})

	results, err := Search(context.Background(), s, "deploy", nil, nil, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ConversationID != "new" {
		t.Fatalf("expected newest conversation first, got %q", results[0].ConversationID)
	}
}
