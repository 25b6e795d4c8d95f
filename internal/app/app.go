// Package app assembles the chatbot's components from configuration.  The
// entrypoints under cmd/ only parse flags and call into here.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"medassist-chatbot/internal/config"
	"medassist-chatbot/internal/core"
	"medassist-chatbot/internal/db"
	"medassist-chatbot/internal/embedding"
	"medassist-chatbot/internal/index"
	"medassist-chatbot/internal/llm"
	"medassist-chatbot/internal/memory"
	"medassist-chatbot/internal/metrics"
)

// NewLogger builds the process logger.  format is "json" or "text".
func NewLogger(level, format string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Index is a search index together with its cleanup.
type Index struct {
	index.Index
	index.Writer
	close func() error
}

// Close releases the index.
func (i *Index) Close() error {
	if i.close == nil {
		return nil
	}
	return i.close()
}

// OpenIndex opens the configured backend for serving.  A missing or empty
// index is an error.
func OpenIndex(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Index, error) {
	switch cfg.Index.Backend {
	case config.BackendDir:
		d, err := index.OpenDir(cfg.Index.Dir, logger)
		if err != nil {
			return nil, err
		}
		return &Index{Index: d, Writer: d, close: d.Close}, nil
	case config.BackendPostgres:
		conn, err := db.Open(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		repo := db.NewChunkRepository(conn)
		n, err := repo.Count(ctx)
		if err == nil && n == 0 {
			err = index.ErrEmptyIndex
		}
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		logger.Info("loaded index", "backend", config.BackendPostgres, "chunks", n)
		return &Index{Index: repo, Writer: repo, close: conn.Close}, nil
	}
	return nil, fmt.Errorf("unknown index backend %q", cfg.Index.Backend)
}

// CreateIndex opens the configured backend for building.  For Postgres the
// schema is migrated for dim-dimensional embeddings and existing chunks are
// removed when reset is true.
func CreateIndex(ctx context.Context, cfg *config.Config, dim int, reset bool, logger *slog.Logger) (*Index, error) {
	switch cfg.Index.Backend {
	case config.BackendDir:
		if reset {
			if err := os.RemoveAll(cfg.Index.Dir); err != nil {
				return nil, fmt.Errorf("reset index: %w", err)
			}
		}
		d, err := index.CreateDir(cfg.Index.Dir, logger)
		if err != nil {
			return nil, err
		}
		return &Index{Index: d, Writer: d, close: d.Close}, nil
	case config.BackendPostgres:
		conn, err := db.Open(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx, conn, dim); err != nil {
			_ = conn.Close()
			return nil, err
		}
		repo := db.NewChunkRepository(conn)
		if reset {
			if err := repo.Reset(ctx); err != nil {
				_ = conn.Close()
				return nil, err
			}
		}
		return &Index{Index: repo, Writer: repo, close: conn.Close}, nil
	}
	return nil, fmt.Errorf("unknown index backend %q", cfg.Index.Backend)
}

// NewEmbedder returns the configured embedding client.
func NewEmbedder(cfg *config.Config) (embedding.Embedder, error) {
	return embedding.NewOpenAIEmbedder(cfg.OpenAI.APIKey, cfg.Embedding.BaseURL, cfg.Embedding.Model)
}

// NewModelClient returns a rate-limited client for provider and model.
func NewModelClient(ctx context.Context, cfg *config.Config, provider, model string) (llm.Client, error) {
	var (
		client llm.Client
		err    error
	)
	switch provider {
	case config.ProviderGemini:
		client, err = llm.NewGeminiClient(ctx, cfg.Google.APIKey, model, cfg.LLM.Temperature)
	case config.ProviderOpenAI:
		client, err = llm.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, model, cfg.LLM.Temperature)
	default:
		err = fmt.Errorf("unknown llm provider %q", provider)
	}
	if err != nil {
		return nil, err
	}
	return llm.NewRateLimitedClient(client, llm.LimitConfig{
		RequestsPerMinute: cfg.LLM.RequestsPerMinute,
		MaxConcurrent:     cfg.LLM.MaxConcurrent,
	}), nil
}

// NewMemoryStore builds the session registry.  Evictions are logged and
// counted.
func NewMemoryStore(cfg *config.Config, logger *slog.Logger) *memory.Store {
	if cfg.Memory.MaxSessions == 0 && cfg.Memory.IdleTTL == 0 {
		logger.Warn("session memory is unbounded; set memory.max_sessions or memory.idle_ttl to cap it")
	}
	return memory.NewStore(memory.Options{
		MaxSessions: cfg.Memory.MaxSessions,
		IdleTTL:     cfg.Memory.IdleTTL,
		OnEvict: func(sessionID string, turns int) {
			metrics.SessionsEvicted.Inc()
			metrics.Sessions.Dec()
			logger.Info("session evicted", "session_id", sessionID, "turns", turns)
		},
	})
}

// Chatbot is a ready pipeline and the resources behind it.
type Chatbot struct {
	Pipeline *core.Pipeline
	Memory   *memory.Store
	Index    *Index
}

// Close releases the index.
func (c *Chatbot) Close() error { return c.Index.Close() }

// BuildChatbot validates cfg and wires the pipeline.
func BuildChatbot(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Chatbot, error) {
	if err := cfg.Validate(config.PurposeServe); err != nil {
		return nil, err
	}
	mode, err := core.ParseMode(cfg.Pipeline.Mode)
	if err != nil {
		return nil, err
	}
	embedder, err := NewEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	provider, model := cfg.ModelFor(string(mode))
	client, err := NewModelClient(ctx, cfg, provider, model)
	if err != nil {
		return nil, err
	}
	var condenser *core.Condenser
	if cfg.Pipeline.CondenseQuestion && mode == core.ModeMultiTurn {
		condenser = core.NewCondenser(client)
	}

	idx, err := OpenIndex(ctx, cfg, logger)
	if err != nil {
		if errors.Is(err, index.ErrIndexNotFound) {
			return nil, fmt.Errorf("%w (build it with `medbot index`)", err)
		}
		return nil, err
	}
	store := NewMemoryStore(cfg, logger)
	p, err := core.NewPipeline(core.Deps{
		Embedder:  embedder,
		Index:     idx,
		LLM:       client,
		Memory:    store,
		Detector:  core.WhatlangDetector{},
		Condenser: condenser,
		Logger:    logger,
	}, core.Options{Mode: mode, TopK: cfg.Index.TopK})
	if err != nil {
		_ = idx.Close()
		return nil, err
	}
	logger.Info("chatbot initialized", "mode", mode, "provider", provider, "model", client.Model())
	return &Chatbot{Pipeline: p, Memory: store, Index: idx}, nil
}
