// Package app wires storage, embedder, searcher and indexer from a
// configuration. The MCP server and the CLI share it.
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dshills/hybridrag/internal/chunker"
	"github.com/dshills/hybridrag/internal/config"
	"github.com/dshills/hybridrag/internal/embedder"
	"github.com/dshills/hybridrag/internal/expander"
	"github.com/dshills/hybridrag/internal/fusion"
	"github.com/dshills/hybridrag/internal/indexer"
	"github.com/dshills/hybridrag/internal/searcher"
	"github.com/dshills/hybridrag/internal/storage"
)

// App holds the long-lived components of a hybridrag process
type App struct {
	Config   *config.Config
	Storage  storage.Storage
	Embedder embedder.Embedder
	Searcher *searcher.Searcher
	Indexer  *indexer.Indexer
	Logger   *slog.Logger
}

// Open creates the database directory, opens storage and the embedder and
// wires the rest
func Open(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dbPath, err := cfg.ResolvedDBPath()
	if err != nil {
		return nil, err
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	emb, err := embedder.New(cfg.Embedding)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	logger.Info("index opened",
		"db", dbPath,
		"build_mode", storage.BuildMode,
		"provider", emb.Provider(),
		"model", emb.Model(),
		"dimension", emb.Dimension())

	return New(cfg, store, emb, logger), nil
}

// New wires a searcher and an indexer around existing storage and embedder.
// The indexer purges the searcher's result cache after every change.
func New(cfg *config.Config, store storage.Storage, emb embedder.Embedder, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}

	srch := searcher.NewSearcher(store, emb,
		searcher.WithLogger(logger.With("component", "searcher")),
		searcher.WithExpander(expander.New(cfg.Search.Synonyms)),
		searcher.WithRanker(fusion.NewRanker(cfg.Search.BonusKeywords, fusion.WithBonusWeight(cfg.Search.BonusWeight))),
		searcher.WithDefaults(cfg.Search.K, cfg.Search.LexicalLimit),
		searcher.WithCache(cfg.Search.CacheSize, cfg.Search.CacheTTL),
	)

	idx := indexer.New(store, emb,
		indexer.WithLogger(logger.With("component", "indexer")),
		indexer.WithChunker(chunker.New(chunker.WithMaxTokens(cfg.Ingest.MaxTokens))),
		indexer.OnChange(srch.InvalidateCache),
	)

	return &App{
		Config:   cfg,
		Storage:  store,
		Embedder: emb,
		Searcher: srch,
		Indexer:  idx,
		Logger:   logger,
	}
}

// IngestConfig returns the indexer settings from the configuration
func (a *App) IngestConfig(force, prune bool) *indexer.Config {
	return &indexer.Config{
		Workers:   a.Config.Ingest.Workers,
		BatchSize: a.Config.Ingest.BatchSize,
		Force:     force,
		Prune:     prune,
	}
}

// Close releases the embedder and the database
func (a *App) Close() error {
	return errors.Join(a.Embedder.Close(), a.Storage.Close())
}
