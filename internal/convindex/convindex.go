// Package convindex reconciles the Store with a provider's current set of
// conversation archives, polymorphic over a SourceAdapter.
package convindex

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ctxcache/contextcache/internal/embed"
	"github.com/ctxcache/contextcache/internal/hash"
	"github.com/ctxcache/contextcache/internal/store"
)

// ParsedExchange is one user/assistant turn pair produced by a SourceAdapter,
// before it has an identifier or position assigned.
type ParsedExchange struct {
	UserText      string
	AssistantText string
	Tools         []string
}

// ParsedConversation is a single conversation as reconstructed by a
// SourceAdapter from its native format.
type ParsedConversation struct {
	ID             string
	SessionID      string
	Timestamp      time.Time
	ArchivePointer string
	ClientVersion  string
	WorkingDir     string
	Exchanges      []ParsedExchange
}

// SourceAdapter hides the details of one conversation provider (a
// line-delimited archive directory, a foreign sibling database, ...) behind
// a common reconciliation shape.
type SourceAdapter interface {
	// Tag identifies this provider, stored as Conversation.SourceTag.
	Tag() string
	// CurrentArtifacts lists every artifact pointer (file path or session
	// id) this provider currently exposes.
	CurrentArtifacts(ctx context.Context) ([]string, error)
	// Parse reconstructs a full Conversation + ordered Exchanges from one
	// artifact.
	Parse(ctx context.Context, artifact string) (*ParsedConversation, error)
}

// Summary reports the outcome of one Reconcile run, symmetric to
// noteindex.Summary.
type Summary struct {
	Processed int
	Added     int
	Updated   int
	Skipped   int
	Deleted   int
	Exchanges int
	Errors    []string
}

// Reconcile deletes Conversations whose artifact pointer no longer appears
// in the adapter's current artifact list, then parses each current artifact
// and skips/replaces its Conversation + Exchanges based on the canonical
// fingerprint, per spec.md §4.6.
func Reconcile(ctx context.Context, s store.Store, adapter SourceAdapter, embedder embed.Embedder) (Summary, error) {
	var summary Summary

	artifacts, err := adapter.CurrentArtifacts(ctx)
	if err != nil {
		return summary, fmt.Errorf("listing current artifacts for %q: %w", adapter.Tag(), err)
	}
	current := make(map[string]bool, len(artifacts))
	for _, a := range artifacts {
		current[a] = true
	}

	existing, err := s.ListConversationsBySource(ctx, adapter.Tag())
	if err != nil {
		return summary, fmt.Errorf("listing stored conversations for %q: %w", adapter.Tag(), err)
	}
	for _, c := range existing {
		if current[c.ArchivePointer] {
			continue
		}
		if err := s.DeleteConversation(ctx, c.ID); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: deleting vanished conversation: %v", c.ArchivePointer, err))
			continue
		}
		summary.Deleted++
	}

	for _, artifact := range artifacts {
		summary.Processed++
		if err := processArtifact(ctx, s, adapter, artifact, embedder, &summary); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", artifact, err))
		}
	}

	return summary, nil
}

func processArtifact(ctx context.Context, s store.Store, adapter SourceAdapter, artifact string, embedder embed.Embedder, summary *Summary) error {
	parsed, err := adapter.Parse(ctx, artifact)
	if err != nil {
		return fmt.Errorf("parsing: %w", err)
	}

	conv := &store.Conversation{
		ID:             parsed.ID,
		SourceTag:      adapter.Tag(),
		SessionID:      parsed.SessionID,
		Timestamp:      parsed.Timestamp,
		ArchivePointer: parsed.ArchivePointer,
		ExchangeCount:  len(parsed.Exchanges),
		ClientVersion:  parsed.ClientVersion,
		WorkingDir:     parsed.WorkingDir,
	}

	exchanges := make([]*store.Exchange, len(parsed.Exchanges))
	for i, pe := range parsed.Exchanges {
		exchanges[i] = &store.Exchange{
			ConversationID: conv.ID,
			Position:       i,
			Timestamp:      conv.Timestamp,
			UserText:       pe.UserText,
			AssistantText:  pe.AssistantText,
			ToolCalls:      pe.Tools,
		}
	}

	fingerprint := hash.HashConversation(conv, exchanges)
	conv.Fingerprint = fingerprint

	existing, err := s.GetConversation(ctx, conv.ID)
	if err != nil {
		return fmt.Errorf("looking up existing conversation: %w", err)
	}
	if existing != nil && existing.Fingerprint == fingerprint {
		summary.Skipped++
		return nil
	}

	storeExchanges := make([]store.Exchange, len(exchanges))
	for i, ex := range exchanges {
		if embedder != nil {
			text := buildEmbedText(ex.UserText, ex.AssistantText, ex.ToolCalls)
			vec, err := embedder.Embed(ctx, text)
			if err != nil {
				return fmt.Errorf("embedding exchange %d: %w", i, err)
			}
			ex.Embedding = vec
		}
		if ex.ID == "" {
			ex.ID = fmt.Sprintf("%s-%d", conv.ID, i)
		}
		storeExchanges[i] = *ex
	}

	if err := s.ReplaceConversationWithExchanges(ctx, conv, storeExchanges); err != nil {
		return fmt.Errorf("writing conversation and exchanges: %w", err)
	}

	if existing == nil {
		summary.Added++
	} else {
		summary.Updated++
	}
	summary.Exchanges += len(storeExchanges)
	return nil
}

// buildEmbedText renders the prescribed per-exchange embedding input string.
func buildEmbedText(user, assistant string, tools []string) string {
	var b strings.Builder
	b.WriteString("User: ")
	b.WriteString(user)
	b.WriteString("\n\nAssistant: ")
	b.WriteString(assistant)
	if len(tools) > 0 {
		b.WriteString("\n\nTools used: ")
		b.WriteString(strings.Join(tools, ", "))
	}
	return b.String()
}
