// Package noteindex reconciles the Store with an on-disk tree of Markdown
// notes: deleted files are pruned, changed files are re-fragmented and
// re-embedded, and unchanged files are skipped.
package noteindex

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ctxcache/contextcache/internal/embed"
	"github.com/ctxcache/contextcache/internal/fragment"
	"github.com/ctxcache/contextcache/internal/hash"
	"github.com/ctxcache/contextcache/internal/store"
)

// Summary reports the outcome of one Reconcile run.
type Summary struct {
	Processed int
	Added     int
	Updated   int
	Skipped   int
	Deleted   int
	Fragments int
	Errors    []string
}

// Options configures a Reconcile run.
type Options struct {
	ChunkLen int // fragment character length, default 500
	Overlap  int // fragment character overlap, default 50
}

func (o Options) normalize() Options {
	if o.ChunkLen <= 0 {
		o.ChunkLen = 500
	}
	if o.Overlap <= 0 {
		o.Overlap = 50
	}
	return o
}

// Reconcile walks root recursively for .md files, diffs them against the
// Store's files table, prunes vanished files, and inserts/updates fragments
// and embeddings for added/changed files, per spec.md §4.5.
func Reconcile(ctx context.Context, s store.Store, root string, embedder embed.Embedder, opts Options) (Summary, error) {
	opts = opts.normalize()
	var summary Summary

	onDisk, err := walkMarkdown(root)
	if err != nil {
		return summary, fmt.Errorf("walking notes root %q: %w", root, err)
	}

	currentPaths := make(map[string]bool, len(onDisk))
	for _, rel := range onDisk {
		currentPaths[rel] = true
	}

	existing, err := s.ListFiles(ctx)
	if err != nil {
		return summary, fmt.Errorf("listing stored files: %w", err)
	}

	for _, f := range existing {
		if currentPaths[f.Path] {
			continue
		}
		if err := s.DeleteFile(ctx, f.ID); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: deleting vanished file: %v", f.Path, err))
			continue
		}
		summary.Deleted++
	}

	for _, rel := range onDisk {
		summary.Processed++
		if err := processFile(ctx, s, root, rel, embedder, opts, &summary); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", rel, err))
		}
	}

	return summary, nil
}

func processFile(ctx context.Context, s store.Store, root, rel string, embedder embed.Embedder, opts Options, summary *Summary) error {
	abs := filepath.Join(root, rel)

	fingerprint, err := hash.HashFile(abs)
	if err != nil {
		return fmt.Errorf("hashing: %w", err)
	}

	existing, err := s.GetFileByPath(ctx, rel)
	if err != nil {
		return fmt.Errorf("looking up file row: %w", err)
	}

	if existing != nil && existing.Fingerprint == fingerprint {
		summary.Skipped++
		return nil
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	chunks := fragment.Split(string(content), opts.ChunkLen, opts.Overlap)
	fragments := make([]store.Fragment, len(chunks))
	for i, c := range chunks {
		var vec []float32
		if embedder != nil {
			vec, err = embedder.Embed(ctx, c.Text)
			if err != nil {
				return fmt.Errorf("embedding fragment %d: %w", i, err)
			}
		}
		fragments[i] = store.Fragment{
			Position:  i,
			Text:      c.Text,
			Original:  c.Text,
			CharStart: c.CharStart,
			Embedding: vec,
		}
	}

	isNew := existing == nil

	if _, err := s.ReplaceFileWithFragments(ctx, rel, fingerprint, fragments); err != nil {
		return fmt.Errorf("writing file and fragments: %w", err)
	}

	if isNew {
		summary.Added++
	} else {
		summary.Updated++
	}
	summary.Fragments += len(fragments)
	return nil
}

// walkMarkdown returns every .md file under root, as paths relative to root.
func walkMarkdown(root string) ([]string, error) {
	var rels []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(info.Name()), ".md") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("computing relative path for %q: %w", path, err)
		}
		rels = append(rels, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rels, nil
}
