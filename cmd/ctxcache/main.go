// Command ctxcache is the CLI front-end to the context cache engine: notes
// and conversation indexing, hybrid search, conversation recall, archive
// display, and store maintenance.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/schollz/progressbar/v2"

	"github.com/ctxcache/contextcache/internal/config"
	"github.com/ctxcache/contextcache/internal/convindex"
	"github.com/ctxcache/contextcache/internal/convsearch"
	"github.com/ctxcache/contextcache/internal/convsource/foreigndb"
	"github.com/ctxcache/contextcache/internal/convsource/jsonl"
	"github.com/ctxcache/contextcache/internal/display"
	"github.com/ctxcache/contextcache/internal/embed"
	"github.com/ctxcache/contextcache/internal/hybrid"
	"github.com/ctxcache/contextcache/internal/noteindex"
	"github.com/ctxcache/contextcache/internal/statsreset"
	"github.com/ctxcache/contextcache/internal/store"
)

const version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	var err error
	switch os.Args[1] {
	case "index-notes":
		err = runIndexNotes(os.Args[2:])
	case "index-conversations":
		err = runIndexConversations(os.Args[2:])
	case "search":
		err = runSearch(os.Args[2:])
	case "search-conversations":
		err = runSearchConversations(os.Args[2:])
	case "show":
		err = runShow(os.Args[2:])
	case "stats":
		err = runStats(os.Args[2:])
	case "reset":
		err = runReset(os.Args[2:])
	case "version", "--version", "-v":
		fmt.Printf("ctxcache %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`ctxcache %s — hybrid keyword + semantic memory for AI coding agents

Usage:
  ctxcache <command> [arguments]

Commands:
  index-notes <root>             Reconcile the store against a tree of Markdown notes
  index-conversations <root>     Reconcile the store against a conversation archive source
  search <query>                 Hybrid search over indexed notes
  search-conversations <query>   Substring recall over captured conversation exchanges
  show <path>                    Render a conversation archive directly from disk
  stats                          Print aggregate store counts and size
  reset                          Wipe the store back to its bootstrapped state
  version                        Print version

Flags:
  --db <path>            Override the store file path
  --embed <provider/model>  ollama/openai/deepseek/openrouter/custom hit a
                          remote embeddings endpoint; local/<model> loads a
                          local ONNX model (see --embed-model-path below)
  --embed-model-path <path>      Path to a local embedder's model.onnx
                                  (default: ~/.ctxcache/models/<model>/model.onnx)
  --embed-tokenizer-path <path>  Path to a local embedder's tokenizer.json
                                  (default: ~/.ctxcache/models/<model>/tokenizer.json)
  --source <jsonl|foreigndb>  Conversation source kind for index-conversations (default: jsonl)
  --limit <n>             Maximum results to return
  --chunk-len <n>         Fragment character length for index-notes
  --overlap <n>           Fragment character overlap for index-notes
  --after <rfc3339>       Lower timestamp bound for search-conversations
  --before <rfc3339>      Upper timestamp bound for search-conversations
  --start <n>, --end <n>  Inclusive 1-indexed exchange range for show
`, version)
}

func openStore(cfg config.ResolvedConfig) (*store.SQLiteStore, error) {
	return store.Open(store.Config{
		DBPath:              cfg.DBPath.Value,
		EmbeddingDimensions: cfg.EmbedDimsInt(),
	})
}

func resolveEmbedder(cfg config.ResolvedConfig, flags map[string]string) (embed.Embedder, error) {
	var provider, model string
	if flag, ok := flags["embed"]; ok && flag != "" {
		p, m, err := embed.SplitProviderModel(flag)
		if err != nil {
			return nil, err
		}
		provider, model = p, m
	} else if cfg.EmbedProvider.Value != "" && cfg.EmbedModel.Value != "" {
		provider, model = cfg.EmbedProvider.Value, cfg.EmbedModel.Value
	}

	if provider == "" {
		return nil, nil
	}
	if provider == "local" {
		return buildLocalEmbedder(cfg, model)
	}

	remoteCfg, err := embed.ParseRemoteFlag(provider + "/" + model)
	if err != nil {
		return nil, err
	}
	return embed.NewRemoteEmbedder(remoteCfg)
}

// buildLocalEmbedder resolves the ONNX model and tokenizer paths for a
// "local/<model>" embedding flag, falling back to
// config.DefaultModelDir()/<model>/{model.onnx,tokenizer.json} when the
// config surface doesn't set them explicitly.
func buildLocalEmbedder(cfg config.ResolvedConfig, model string) (embed.Embedder, error) {
	modelPath := cfg.EmbedModelPath.Value
	if modelPath == "" {
		modelPath = filepath.Join(config.DefaultModelDir(), model, "model.onnx")
	}
	tokenizerPath := cfg.EmbedTokenizerPath.Value
	if tokenizerPath == "" {
		tokenizerPath = filepath.Join(config.DefaultModelDir(), model, "tokenizer.json")
	}
	return embed.NewLocalEmbedder(embed.LocalConfig{
		ModelPath:     modelPath,
		TokenizerPath: tokenizerPath,
		Dimensions:    cfg.EmbedDimsInt(),
	})
}

func parseFlags(args []string) (map[string]string, []string) {
	flags := map[string]string{}
	var positional []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		if strings.HasPrefix(a, "--") {
			name := strings.TrimPrefix(a, "--")
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "--") {
				flags[name] = args[i+1]
				i++
			} else {
				flags[name] = "true"
			}
			continue
		}
		positional = append(positional, a)
	}
	return flags, positional
}

func resolvedFromFlags(flags map[string]string) (config.ResolvedConfig, error) {
	return config.ResolveConfig(config.ResolveOptions{
		CLIDBPath:             flags["db"],
		CLIChunkLen:           flags["chunk-len"],
		CLIOverlap:            flags["overlap"],
		CLIEmbedModel:         flags["embed-model"],
		CLIEmbedDims:          flags["embed-dims"],
		CLIEmbedModelPath:     flags["embed-model-path"],
		CLIEmbedTokenizerPath: flags["embed-tokenizer-path"],
	})
}

func runIndexNotes(args []string) error {
	flags, positional := parseFlags(args)
	if len(positional) == 0 {
		return fmt.Errorf("usage: ctxcache index-notes <root> [--db path] [--chunk-len n] [--overlap n] [--embed provider/model]")
	}
	root := positional[0]

	cfg, err := resolvedFromFlags(flags)
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer s.Close()

	embedder, err := resolveEmbedder(cfg, flags)
	if err != nil {
		return fmt.Errorf("configuring embedder: %w", err)
	}

	ctx := context.Background()
	bar := progressbar.New(countMarkdownFiles(root))
	opts := noteindex.Options{ChunkLen: cfg.ChunkLenInt(), Overlap: cfg.OverlapInt()}

	summary, err := noteindex.Reconcile(ctx, s, root, embedderWithProgress(embedder, bar), opts)
	if err != nil {
		return fmt.Errorf("reconciling notes: %w", err)
	}
	fmt.Println()
	fmt.Printf("processed=%d added=%d updated=%d skipped=%d deleted=%d fragments=%d\n",
		summary.Processed, summary.Added, summary.Updated, summary.Skipped, summary.Deleted, summary.Fragments)
	for _, e := range summary.Errors {
		fmt.Fprintf(os.Stderr, "  error: %s\n", e)
	}
	return nil
}

func runIndexConversations(args []string) error {
	flags, positional := parseFlags(args)
	if len(positional) == 0 {
		return fmt.Errorf("usage: ctxcache index-conversations <root> [--source jsonl|foreigndb] [--db path] [--embed provider/model]")
	}
	root := positional[0]

	cfg, err := resolvedFromFlags(flags)
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer s.Close()

	embedder, err := resolveEmbedder(cfg, flags)
	if err != nil {
		return fmt.Errorf("configuring embedder: %w", err)
	}

	ctx := context.Background()

	var adapter convindex.SourceAdapter
	switch flags["source"] {
	case "", "jsonl":
		adapter = jsonl.NewAdapter(root)
	case "foreigndb":
		fa, err := foreigndb.NewAdapter(root)
		if err != nil {
			return fmt.Errorf("opening foreign database: %w", err)
		}
		defer fa.Close()
		adapter = fa
	default:
		return fmt.Errorf("unknown --source %q: expected jsonl or foreigndb", flags["source"])
	}

	artifacts, err := adapter.CurrentArtifacts(ctx)
	if err != nil {
		return fmt.Errorf("listing artifacts: %w", err)
	}
	bar := progressbar.New(len(artifacts))

	summary, err := convindex.Reconcile(ctx, s, adapter, embedderWithProgress(embedder, bar))
	if err != nil {
		return fmt.Errorf("reconciling conversations: %w", err)
	}
	fmt.Println()
	fmt.Printf("processed=%d added=%d updated=%d skipped=%d deleted=%d exchanges=%d\n",
		summary.Processed, summary.Added, summary.Updated, summary.Skipped, summary.Deleted, summary.Exchanges)
	for _, e := range summary.Errors {
		fmt.Fprintf(os.Stderr, "  error: %s\n", e)
	}
	return nil
}

func runSearch(args []string) error {
	flags, positional := parseFlags(args)
	if len(positional) == 0 {
		return fmt.Errorf("usage: ctxcache search <query> [--limit n] [--db path] [--embed provider/model]")
	}
	query := strings.Join(positional, " ")

	cfg, err := resolvedFromFlags(flags)
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer s.Close()

	embedder, err := resolveEmbedder(cfg, flags)
	if err != nil {
		return fmt.Errorf("configuring embedder: %w", err)
	}

	var engine *hybrid.Engine
	if embedder != nil {
		engine = hybrid.NewEngineWithEmbedder(s, embedder)
	} else {
		engine = hybrid.NewEngine(s)
	}

	limit := cfg.ResultLimitInt()
	if v, ok := flags["limit"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	results, err := engine.Search(context.Background(), query, hybrid.Options{Limit: limit, K: cfg.FusionKInt()})
	if err != nil {
		return fmt.Errorf("searching: %w", err)
	}
	for _, r := range results {
		fmt.Printf("[%.3f] %s#%d\n%s\n\n", r.Score, r.Path, r.Position, r.Text)
	}
	return nil
}

func runSearchConversations(args []string) error {
	flags, positional := parseFlags(args)
	if len(positional) == 0 {
		return fmt.Errorf("usage: ctxcache search-conversations <query> [--limit n] [--after rfc3339] [--before rfc3339]")
	}
	query := strings.Join(positional, " ")

	cfg, err := resolvedFromFlags(flags)
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer s.Close()

	var after, before *time.Time
	if v, ok := flags["after"]; ok {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return fmt.Errorf("parsing --after: %w", err)
		}
		after = &t
	}
	if v, ok := flags["before"]; ok {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return fmt.Errorf("parsing --before: %w", err)
		}
		before = &t
	}

	limit := cfg.ResultLimitInt()
	if v, ok := flags["limit"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	results, err := convsearch.Search(context.Background(), s, query, after, before, limit)
	if err != nil {
		return fmt.Errorf("searching conversations: %w", err)
	}
	for _, r := range results {
		fmt.Printf("[%s] %s\nuser: %s\nassistant: %s\n\n",
			r.ConversationTimestamp.Format(time.RFC3339), r.ConversationSessionID, r.UserText, r.AssistantText)
	}
	return nil
}

func runShow(args []string) error {
	flags, positional := parseFlags(args)
	if len(positional) == 0 {
		return fmt.Errorf("usage: ctxcache show <path> [--start n] [--end n]")
	}
	path := positional[0]

	var start, end *int
	if v, ok := flags["start"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			start = &n
		}
	}
	if v, ok := flags["end"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			end = &n
		}
	}

	text, err := display.Render(path, start, end)
	if err != nil {
		return err
	}
	fmt.Println(text)
	return nil
}

func runStats(args []string) error {
	flags, _ := parseFlags(args)
	cfg, err := resolvedFromFlags(flags)
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer s.Close()

	counts, err := statsreset.Stats(context.Background(), s)
	if err != nil {
		return err
	}
	fmt.Printf("files:         %d\n", counts.Files)
	fmt.Printf("fragments:     %d\n", counts.Fragments)
	fmt.Printf("conversations: %d\n", counts.Conversations)
	fmt.Printf("exchanges:     %d\n", counts.Exchanges)
	fmt.Printf("db size:       %d bytes\n", counts.DBSizeBytes)
	return nil
}

func runReset(args []string) error {
	flags, _ := parseFlags(args)
	cfg, err := resolvedFromFlags(flags)
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer s.Close()

	if err := statsreset.Reset(context.Background(), s); err != nil {
		return err
	}
	fmt.Println("store reset")
	return nil
}

// progressEmbedder wraps an Embedder to tick a progress bar on every call,
// giving the CLI visible feedback during long reconciliation runs.
type progressEmbedder struct {
	embed.Embedder
	bar *progressbar.ProgressBar
}

func (p *progressEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	p.bar.Add(1)
	return p.Embedder.Embed(ctx, text)
}

func embedderWithProgress(e embed.Embedder, bar *progressbar.ProgressBar) embed.Embedder {
	if e == nil {
		return nil
	}
	return &progressEmbedder{Embedder: e, bar: bar}
}

func countMarkdownFiles(root string) int {
	n := 0
	_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if strings.HasSuffix(strings.ToLower(info.Name()), ".md") {
			n++
		}
		return nil
	})
	return n
}
