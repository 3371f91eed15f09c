// Command ctxcache-mcp serves the engine's three-operation protocol surface
// over stdio for external agent integrations (Claude Desktop, Cursor, and
// similar MCP clients).
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"

	"github.com/ctxcache/contextcache/internal/config"
	"github.com/ctxcache/contextcache/internal/embed"
	"github.com/ctxcache/contextcache/internal/mcp"
	"github.com/ctxcache/contextcache/internal/store"
)

const version = "0.1.0-dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ctxcache-mcp: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.ResolveConfig(config.ResolveOptions{})
	if err != nil {
		return fmt.Errorf("resolving configuration: %w", err)
	}

	s, err := store.Open(store.Config{
		DBPath:              cfg.DBPath.Value,
		EmbeddingDimensions: cfg.EmbedDimsInt(),
	})
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer s.Close()

	var embedder embed.Embedder
	if cfg.EmbedProvider.Value != "" && cfg.EmbedModel.Value != "" {
		if cfg.EmbedProvider.Value == "local" {
			modelPath := cfg.EmbedModelPath.Value
			if modelPath == "" {
				modelPath = filepath.Join(config.DefaultModelDir(), cfg.EmbedModel.Value, "model.onnx")
			}
			tokenizerPath := cfg.EmbedTokenizerPath.Value
			if tokenizerPath == "" {
				tokenizerPath = filepath.Join(config.DefaultModelDir(), cfg.EmbedModel.Value, "tokenizer.json")
			}
			embedder, err = embed.NewLocalEmbedder(embed.LocalConfig{
				ModelPath:     modelPath,
				TokenizerPath: tokenizerPath,
				Dimensions:    cfg.EmbedDimsInt(),
			})
			if err != nil {
				return fmt.Errorf("starting local embedder: %w", err)
			}
		} else {
			remoteCfg, err := embed.ParseRemoteFlag(cfg.EmbedProvider.Value + "/" + cfg.EmbedModel.Value)
			if err != nil {
				return fmt.Errorf("configuring embedder: %w", err)
			}
			embedder, err = embed.NewRemoteEmbedder(remoteCfg)
			if err != nil {
				return fmt.Errorf("starting embedder: %w", err)
			}
		}
	}

	srv := mcp.NewServer(mcp.ServerConfig{
		Store:    s,
		Embedder: embedder,
		Version:  version,
	})

	return server.ServeStdio(srv)
}
