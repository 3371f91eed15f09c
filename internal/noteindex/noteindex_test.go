package noteindex

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ctxcache/contextcache/internal/embed"
	"github.com/ctxcache/contextcache/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.Open(store.Config{DBPath: ":memory:", EmbeddingDimensions: 8})
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func writeNote(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("making dir for %q: %v", rel, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing note %q: %v", rel, err)
	}
}

func TestReconcileAddsNewFiles(t *testing.T) {
	s := newTestStore(t)
	root := t.TempDir()
	writeNote(t, root, "a.md", "first note content")

	summary, err := Reconcile(context.Background(), s, root, nil, Options{})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if summary.Added != 1 {
		t.Fatalf("expected 1 added file, got %d", summary.Added)
	}
	if summary.Fragments == 0 {
		t.Fatal("expected at least one fragment produced")
	}
}

func TestReconcileSkipsUnchangedFiles(t *testing.T) {
	s := newTestStore(t)
	root := t.TempDir()
	writeNote(t, root, "a.md", "stable content")
	ctx := context.Background()

	if _, err := Reconcile(ctx, s, root, nil, Options{}); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}

	summary, err := Reconcile(ctx, s, root, nil, Options{})
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if summary.Skipped != 1 {
		t.Fatalf("expected 1 skipped file, got %d", summary.Skipped)
	}
	if summary.Added != 0 || summary.Updated != 0 {
		t.Fatalf("expected no adds/updates on second pass, got added=%d updated=%d", summary.Added, summary.Updated)
	}
}

func TestReconcileUpdatesChangedFiles(t *testing.T) {
	s := newTestStore(t)
	root := t.TempDir()
	writeNote(t, root, "a.md", "version one")
	ctx := context.Background()

	if _, err := Reconcile(ctx, s, root, nil, Options{}); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}

	writeNote(t, root, "a.md", "version two, now with different content")
	summary, err := Reconcile(ctx, s, root, nil, Options{})
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if summary.Updated != 1 {
		t.Fatalf("expected 1 updated file, got %d", summary.Updated)
	}

	file, err := s.GetFileByPath(ctx, "a.md")
	if err != nil {
		t.Fatalf("getting file: %v", err)
	}
	frags, err := s.ListFragmentsByFile(ctx, file.ID)
	if err != nil {
		t.Fatalf("listing fragments: %v", err)
	}
	for _, f := range frags {
		if strings.Contains(f.Text, "version one") {
			t.Fatalf("expected old content gone, found fragment %q", f.Text)
		}
	}
	if len(frags) != summary.Fragments {
		t.Fatalf("expected %d fragments for the updated file, got %d", summary.Fragments, len(frags))
	}

	shadowCount, err := s.CountLexicalShadowRows(ctx)
	if err != nil {
		t.Fatalf("counting lexical shadow rows: %v", err)
	}
	fragCount, err := s.CountFragments(ctx)
	if err != nil {
		t.Fatalf("counting fragments: %v", err)
	}
	if shadowCount != fragCount {
		t.Fatalf("lexical shadow count %d does not match fragment count %d", shadowCount, fragCount)
	}

	hits, err := s.SearchLexical(ctx, "two", 10)
	if err != nil {
		t.Fatalf("searching lexical index: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("expected the new content to be findable via the lexical shadow table")
	}
}

func TestReconcilePrunesDeletedFiles(t *testing.T) {
	s := newTestStore(t)
	root := t.TempDir()
	writeNote(t, root, "a.md", "will be deleted")
	ctx := context.Background()

	if _, err := Reconcile(ctx, s, root, nil, Options{}); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}

	before, err := s.GetFileByPath(ctx, "a.md")
	if err != nil {
		t.Fatalf("getting file before delete: %v", err)
	}
	if before == nil {
		t.Fatal("expected file to be indexed before deletion")
	}

	if err := os.Remove(filepath.Join(root, "a.md")); err != nil {
		t.Fatalf("removing note: %v", err)
	}

	summary, err := Reconcile(ctx, s, root, nil, Options{})
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if summary.Deleted != 1 {
		t.Fatalf("expected 1 deleted file, got %d", summary.Deleted)
	}

	files, err := s.ListFiles(ctx)
	if err != nil {
		t.Fatalf("listing files: %v", err)
	}
	if len(files) != 0 {
		t.Fatalf("expected no remaining files, got %d", len(files))
	}

	remainingFragments, err := s.ListFragmentsByFile(ctx, before.ID)
	if err != nil {
		t.Fatalf("listing fragments for pruned file: %v", err)
	}
	if len(remainingFragments) != 0 {
		t.Fatalf("expected no fragments owned by pruned file, got %d", len(remainingFragments))
	}

	fragCount, err := s.CountFragments(ctx)
	if err != nil {
		t.Fatalf("counting fragments: %v", err)
	}
	if fragCount != 0 {
		t.Fatalf("expected no fragments left in the store after pruning the only file, got %d", fragCount)
	}
}

func TestReconcileWithEmbedderPopulatesEmbeddings(t *testing.T) {
	s := newTestStore(t)
	root := t.TempDir()
	writeNote(t, root, "a.md", "content to embed")
	ctx := context.Background()

	stub := embed.NewStubEmbedder(8)
	if _, err := Reconcile(ctx, s, root, stub, Options{}); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	frags, err := s.ListFragmentsWithEmbeddings(ctx)
	if err != nil {
		t.Fatalf("listing embedded fragments: %v", err)
	}
	if len(frags) == 0 {
		t.Fatal("expected at least one embedded fragment")
	}
}

func TestReconcileIgnoresNonMarkdownFiles(t *testing.T) {
	s := newTestStore(t)
	root := t.TempDir()
	writeNote(t, root, "note.md", "a markdown note")
	writeNote(t, root, "data.json", `{"not":"markdown"}`)

	summary, err := Reconcile(context.Background(), s, root, nil, Options{})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if summary.Processed != 1 {
		t.Fatalf("expected only 1 processed file, got %d", summary.Processed)
	}
}
