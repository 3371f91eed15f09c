// Package mcp exposes the engine's three-operation protocol surface —
// search_kb, search_conversations, show_conversation — as a Model Context
// Protocol server over stdio, per spec.md §6.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ctxcache/contextcache/internal/convsearch"
	"github.com/ctxcache/contextcache/internal/display"
	"github.com/ctxcache/contextcache/internal/embed"
	"github.com/ctxcache/contextcache/internal/hybrid"
	"github.com/ctxcache/contextcache/internal/store"
)

// ServerConfig configures a new protocol server.
type ServerConfig struct {
	Store    store.Store
	Embedder embed.Embedder // optional, enables the vector half of hybrid search
	Version  string
}

// dbMu serializes every tool handler against the shared store connection.
// mcp-go dispatches handlers concurrently; SQLite tolerates only one writer
// and concurrent reads during a write can observe a stale snapshot.
var dbMu sync.Mutex

// NewServer builds an MCPServer with the three tools registered.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}

	s := server.NewMCPServer(
		"Context Cache",
		ver,
		server.WithToolCapabilities(false),
	)

	var engine *hybrid.Engine
	if cfg.Embedder != nil {
		engine = hybrid.NewEngineWithEmbedder(cfg.Store, cfg.Embedder)
	} else {
		engine = hybrid.NewEngine(cfg.Store)
	}

	registerSearchKBTool(s, engine)
	registerSearchConversationsTool(s, cfg.Store)
	registerShowConversationTool(s, cfg.Store)

	return s
}

func registerSearchKBTool(s *server.MCPServer, engine *hybrid.Engine) {
	tool := mcp.NewTool("search_kb",
		mcp.WithDescription("Hybrid keyword + semantic search over indexed Markdown notes. Returns fragment hits with a relative file path, position, text, and a [0,1] display score."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query text"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results (default: 10)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		query, err := req.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError("query is required"), nil
		}

		opts := hybrid.Options{}
		if limitVal, err := req.RequireFloat("limit"); err == nil && limitVal > 0 {
			opts.Limit = int(limitVal)
		}

		results, err := engine.Search(ctx, query, opts)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("search error: %v", err)), nil
		}

		data, _ := json.MarshalIndent(results, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerSearchConversationsTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("search_conversations",
		mcp.WithDescription("Substring recall over captured agent conversation exchanges, optionally bounded by timestamp. A recall device, not a relevance device — every result carries the same score."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Substring to search for in user or assistant text"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results (default: 10)"),
		),
		mcp.WithString("after",
			mcp.Description("RFC3339 timestamp; only conversations at or after this time are considered"),
		),
		mcp.WithString("before",
			mcp.Description("RFC3339 timestamp; only conversations at or before this time are considered"),
		),
		mcp.WithString("format",
			mcp.Description("Response format: markdown or json (default: json)"),
			mcp.Enum("markdown", "json"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		query, err := req.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError("query is required"), nil
		}

		limit := 10
		if limitVal, err := req.RequireFloat("limit"); err == nil && limitVal > 0 {
			limit = int(limitVal)
		}

		var after, before *time.Time
		if v, err := req.RequireString("after"); err == nil && v != "" {
			t, perr := time.Parse(time.RFC3339, v)
			if perr != nil {
				return mcp.NewToolResultError(fmt.Sprintf("invalid after timestamp: %v", perr)), nil
			}
			after = &t
		}
		if v, err := req.RequireString("before"); err == nil && v != "" {
			t, perr := time.Parse(time.RFC3339, v)
			if perr != nil {
				return mcp.NewToolResultError(fmt.Sprintf("invalid before timestamp: %v", perr)), nil
			}
			before = &t
		}

		results, err := convsearch.Search(ctx, st, query, after, before, limit)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("search error: %v", err)), nil
		}

		format, _ := req.RequireString("format")
		if format == "markdown" {
			return mcp.NewToolResultText(renderConversationResultsMarkdown(results)), nil
		}

		data, _ := json.MarshalIndent(results, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerShowConversationTool(s *server.MCPServer, _ store.Store) {
	tool := mcp.NewTool("show_conversation",
		mcp.WithDescription("Render a captured conversation archive directly from its source file, with session metadata and per-exchange sections. Optionally bounded to an inclusive 1-indexed exchange range."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path to the conversation archive file"),
		),
		mcp.WithNumber("start_exchange",
			mcp.Description("1-indexed first exchange to include (default: 1)"),
		),
		mcp.WithNumber("end_exchange",
			mcp.Description("1-indexed last exchange to include (default: last)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		path, err := req.RequireString("path")
		if err != nil {
			return mcp.NewToolResultError("path is required"), nil
		}

		var start, end *int
		if v, err := req.RequireFloat("start_exchange"); err == nil && v > 0 {
			n := int(v)
			start = &n
		}
		if v, err := req.RequireFloat("end_exchange"); err == nil && v > 0 {
			n := int(v)
			end = &n
		}

		text, err := display.Render(path, start, end)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("render error: %v", err)), nil
		}
		return mcp.NewToolResultText(text), nil
	})
}

func renderConversationResultsMarkdown(results []convsearch.Result) string {
	if len(results) == 0 {
		return "No matching exchanges."
	}
	out := ""
	for _, r := range results {
		out += fmt.Sprintf("## %s (%s)\n\n**User:** %s\n\n**Assistant:** %s\n\n",
			r.ConversationSessionID, r.Timestamp.Format(time.RFC3339), r.UserText, r.AssistantText)
	}
	return out
}
