// Package config resolves the engine's scalar configuration surface
// (spec.md §6) from a YAML file, environment variables, and CLI flags, in
// that ascending precedence, tracking the winning source of each value.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

// ResolveOptions carries CLI-supplied overrides, the highest-precedence
// source.
type ResolveOptions struct {
	ConfigPath string

	CLIDBPath             string
	CLINotesRoot          string
	CLIChunkLen           string
	CLIOverlap            string
	CLIEmbedModel         string
	CLIEmbedDims          string
	CLIEmbedModelPath     string
	CLIEmbedTokenizerPath string
	CLIResultLimit        string
	CLIFusionK            string
}

// ResolvedConfig is the engine's full scalar configuration surface, each
// field tagged with where its value came from.
type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`

	DBPath      ResolvedValue `json:"db_path"`
	NotesRoot   ResolvedValue `json:"notes_root"`
	ChunkLen    ResolvedValue `json:"chunk_len"`
	Overlap     ResolvedValue `json:"overlap"`
	EmbedModel  ResolvedValue `json:"embed_model"`
	EmbedDims   ResolvedValue `json:"embed_dims"`
	ResultLimit ResolvedValue `json:"result_limit"`
	FusionK     ResolvedValue `json:"fusion_k"`

	EmbedProvider ResolvedValue `json:"embed_provider"`
	EmbedEndpoint ResolvedValue `json:"embed_endpoint"`
	EmbedAPIKey   ResolvedValue `json:"embed_api_key"`

	// EmbedModelPath and EmbedTokenizerPath locate the ONNX model and
	// tokenizer.json a LocalEmbedder loads when EmbedProvider is "local".
	// Unset falls back to DefaultModelDir()/<embed_model>/{model.onnx,tokenizer.json}.
	EmbedModelPath     ResolvedValue `json:"embed_model_path"`
	EmbedTokenizerPath ResolvedValue `json:"embed_tokenizer_path"`
}

type fileConfig struct {
	DBPath      string `yaml:"db_path"`
	NotesRoot   string `yaml:"notes_root"`
	ChunkLen    int    `yaml:"chunk_len"`
	Overlap     int    `yaml:"overlap"`
	ResultLimit int    `yaml:"result_limit"`
	FusionK     int    `yaml:"fusion_k"`
	Embed       struct {
		Model         string `yaml:"model"`
		Dims          int    `yaml:"dims"`
		Provider      string `yaml:"provider"`
		Endpoint      string `yaml:"endpoint"`
		APIKey        string `yaml:"api_key"`
		ModelPath     string `yaml:"model_path"`
		TokenizerPath string `yaml:"tokenizer_path"`
	} `yaml:"embed"`
}

// DefaultConfigPath is ~/.ctxcache/config.yaml.
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".ctxcache", "config.yaml")
}

// DefaultDBPath is ~/.ctxcache/store.db.
func DefaultDBPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".ctxcache", "store.db")
}

// DefaultModelDir is ~/.ctxcache/models, the root under which a local
// embedding model's <name>/model.onnx and <name>/tokenizer.json are
// expected when embed_model_path/embed_tokenizer_path aren't set explicitly.
func DefaultModelDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".ctxcache", "models")
}

const (
	defaultChunkLen    = 500
	defaultOverlap     = 50
	defaultEmbedDims   = 384
	defaultResultLimit = 10
	defaultFusionK     = 60
)

// ResolveConfig applies config-file, then environment, then CLI overrides,
// falling back to built-in defaults for any scalar still unset.
func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath()
	}

	out := ResolvedConfig{ConfigPath: path}

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}

	if cfg != nil {
		apply(&out.DBPath, cfg.DBPath, SourceConfig, path)
		apply(&out.NotesRoot, cfg.NotesRoot, SourceConfig, path)
		applyInt(&out.ChunkLen, cfg.ChunkLen, SourceConfig, path)
		applyInt(&out.Overlap, cfg.Overlap, SourceConfig, path)
		applyInt(&out.ResultLimit, cfg.ResultLimit, SourceConfig, path)
		applyInt(&out.FusionK, cfg.FusionK, SourceConfig, path)
		apply(&out.EmbedModel, cfg.Embed.Model, SourceConfig, path)
		applyInt(&out.EmbedDims, cfg.Embed.Dims, SourceConfig, path)
		apply(&out.EmbedProvider, cfg.Embed.Provider, SourceConfig, path)
		apply(&out.EmbedEndpoint, cfg.Embed.Endpoint, SourceConfig, path)
		apply(&out.EmbedAPIKey, cfg.Embed.APIKey, SourceConfig, path)
		apply(&out.EmbedModelPath, cfg.Embed.ModelPath, SourceConfig, path)
		apply(&out.EmbedTokenizerPath, cfg.Embed.TokenizerPath, SourceConfig, path)
	}

	applyEnv(&out.DBPath, "CTXCACHE_DB_PATH")
	applyEnv(&out.NotesRoot, "CTXCACHE_NOTES_ROOT")
	applyEnvInt(&out.ChunkLen, "CTXCACHE_CHUNK_LEN")
	applyEnvInt(&out.Overlap, "CTXCACHE_OVERLAP")
	applyEnvInt(&out.ResultLimit, "CTXCACHE_RESULT_LIMIT")
	applyEnvInt(&out.FusionK, "CTXCACHE_FUSION_K")
	applyEnv(&out.EmbedModel, "CTXCACHE_EMBED_MODEL")
	applyEnvInt(&out.EmbedDims, "CTXCACHE_EMBED_DIMS")
	applyEnv(&out.EmbedProvider, "CTXCACHE_EMBED")
	applyEnv(&out.EmbedEndpoint, "CTXCACHE_EMBED_ENDPOINT")
	applyEnv(&out.EmbedAPIKey, "CTXCACHE_EMBED_API_KEY")
	applyEnv(&out.EmbedModelPath, "CTXCACHE_EMBED_MODEL_PATH")
	applyEnv(&out.EmbedTokenizerPath, "CTXCACHE_EMBED_TOKENIZER_PATH")

	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")
	apply(&out.NotesRoot, opts.CLINotesRoot, SourceCLI, "--notes")
	apply(&out.ChunkLen, opts.CLIChunkLen, SourceCLI, "--chunk-len")
	apply(&out.Overlap, opts.CLIOverlap, SourceCLI, "--overlap")
	apply(&out.EmbedModel, opts.CLIEmbedModel, SourceCLI, "--embed-model")
	apply(&out.EmbedDims, opts.CLIEmbedDims, SourceCLI, "--embed-dims")
	apply(&out.EmbedModelPath, opts.CLIEmbedModelPath, SourceCLI, "--embed-model-path")
	apply(&out.EmbedTokenizerPath, opts.CLIEmbedTokenizerPath, SourceCLI, "--embed-tokenizer-path")
	apply(&out.ResultLimit, opts.CLIResultLimit, SourceCLI, "--limit")
	apply(&out.FusionK, opts.CLIFusionK, SourceCLI, "--fusion-k")

	if out.DBPath.Value == "" {
		out.DBPath = ResolvedValue{Value: DefaultDBPath(), Source: SourceDefault, From: "built-in default"}
	} else {
		out.DBPath.Value = expandUserPath(out.DBPath.Value)
	}
	if out.NotesRoot.Value != "" {
		out.NotesRoot.Value = expandUserPath(out.NotesRoot.Value)
	}
	if out.EmbedModelPath.Value != "" {
		out.EmbedModelPath.Value = expandUserPath(out.EmbedModelPath.Value)
	}
	if out.EmbedTokenizerPath.Value != "" {
		out.EmbedTokenizerPath.Value = expandUserPath(out.EmbedTokenizerPath.Value)
	}
	defaultInt(&out.ChunkLen, defaultChunkLen)
	defaultInt(&out.Overlap, defaultOverlap)
	defaultInt(&out.EmbedDims, defaultEmbedDims)
	defaultInt(&out.ResultLimit, defaultResultLimit)
	defaultInt(&out.FusionK, defaultFusionK)

	return out, nil
}

// ChunkLenInt returns the resolved fragment chunk length as an int.
func (r ResolvedConfig) ChunkLenInt() int { return mustAtoi(r.ChunkLen.Value, defaultChunkLen) }

// OverlapInt returns the resolved fragment overlap as an int.
func (r ResolvedConfig) OverlapInt() int { return mustAtoi(r.Overlap.Value, defaultOverlap) }

// EmbedDimsInt returns the resolved embedding dimensionality as an int.
func (r ResolvedConfig) EmbedDimsInt() int { return mustAtoi(r.EmbedDims.Value, defaultEmbedDims) }

// ResultLimitInt returns the resolved default result limit as an int.
func (r ResolvedConfig) ResultLimitInt() int {
	return mustAtoi(r.ResultLimit.Value, defaultResultLimit)
}

// FusionKInt returns the resolved RRF constant as an int.
func (r ResolvedConfig) FusionKInt() int { return mustAtoi(r.FusionK.Value, defaultFusionK) }

func mustAtoi(v string, fallback int) int {
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func applyInt(dst *ResolvedValue, raw int, source ValueSource, from string) {
	if raw == 0 {
		return
	}
	*dst = ResolvedValue{Value: strconv.Itoa(raw), Source: source, From: from}
}

func applyEnv(dst *ResolvedValue, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = ResolvedValue{Value: v, Source: SourceEnv, From: envKey}
	}
}

func applyEnvInt(dst *ResolvedValue, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		if _, err := strconv.Atoi(v); err == nil {
			*dst = ResolvedValue{Value: v, Source: SourceEnv, From: envKey}
		}
	}
}

func defaultInt(dst *ResolvedValue, fallback int) {
	if strings.TrimSpace(dst.Value) == "" {
		*dst = ResolvedValue{Value: strconv.Itoa(fallback), Source: SourceDefault, From: "built-in default"}
	}
}

func loadConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
