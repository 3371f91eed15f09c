// Package convsearch provides substring recall over captured conversation
// Exchanges — a recall device, not a relevance device, so results are not
// fused with any other ranking and always carry a constant score.
package convsearch

import (
	"context"
	"fmt"
	"time"

	"github.com/ctxcache/contextcache/internal/store"
)

// Result is one hydrated Exchange hit.
type Result struct {
	ConversationID        string
	ConversationSessionID string
	ConversationTimestamp time.Time
	SourceTag             string
	ArchivePointer        string
	ExchangeID            string
	Position              int
	Timestamp             time.Time
	UserText              string
	AssistantText         string
	Score                 float64
}

// Search returns Exchanges whose user or assistant text contains query
// (substring via SQLite LIKE, case-insensitive for ASCII letters) and whose
// owning Conversation falls within the
// optional inclusive [after, before] timestamp bounds, ordered by
// Conversation timestamp descending then Exchange position ascending.
// Every result carries the constant score 1.0.
func Search(ctx context.Context, s store.Store, query string, after, before *time.Time, limit int) ([]Result, error) {
	hits, err := s.SearchExchanges(ctx, query, after, before, limit)
	if err != nil {
		return nil, fmt.Errorf("searching exchanges: %w", err)
	}

	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = Result{
			ConversationID:        h.ConversationID,
			ConversationSessionID: h.ConversationSessionID,
			ConversationTimestamp: h.ConversationTimestamp,
			SourceTag:             h.SourceTag,
			ArchivePointer:        h.ArchivePointer,
			ExchangeID:            h.ID,
			Position:              h.Position,
			Timestamp:             h.Timestamp,
			UserText:              h.UserText,
			AssistantText:         h.AssistantText,
			Score:                 1.0,
		}
	}
	return results, nil
}
