// Package statsreset exposes the engine's observability and maintenance
// operations: aggregate counts and a full-wipe reset, both thin wrappers
// over store.Store.
package statsreset

import (
	"context"
	"fmt"

	"github.com/ctxcache/contextcache/internal/store"
)

// Counts mirrors store.Stats for callers that should not import the store
// package directly (the MCP surface and CLI).
type Counts struct {
	Files         int64
	Fragments     int64
	Conversations int64
	Exchanges     int64
	DBSizeBytes   int64
}

// Stats reports aggregate counts across the store.
func Stats(ctx context.Context, s store.Store) (Counts, error) {
	st, err := s.Stats(ctx)
	if err != nil {
		return Counts{}, fmt.Errorf("collecting stats: %w", err)
	}
	return Counts{
		Files:         st.FileCount,
		Fragments:     st.FragmentCount,
		Conversations: st.ConversationCount,
		Exchanges:     st.ExchangeCount,
		DBSizeBytes:   st.DBSizeBytes,
	}, nil
}

// Reset wipes every row from the store, restoring it to its freshly
// bootstrapped state.
func Reset(ctx context.Context, s store.Store) error {
	if err := s.Reset(ctx); err != nil {
		return fmt.Errorf("resetting store: %w", err)
	}
	return nil
}
