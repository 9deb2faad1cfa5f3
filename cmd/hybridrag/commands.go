package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/dshills/hybridrag/internal/app"
	"github.com/dshills/hybridrag/internal/mcp"
	"github.com/dshills/hybridrag/internal/searcher"
	"github.com/dshills/hybridrag/internal/storage"
	"github.com/dshills/hybridrag/pkg/types"
)

func openApp(c *cli.Context) (*app.App, error) {
	cfg, err := loadedConfig(c)
	if err != nil {
		return nil, err
	}
	return app.Open(cfg, nil)
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve search_passages, index_corpus and get_status over MCP stdio",
		Action: func(c *cli.Context) error {
			a, err := openApp(c)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			a.Logger.Info("MCP server ready, listening on stdio",
				"version", version,
				"driver", storage.DriverName,
				"vector_extension", storage.VectorExtensionAvailable)

			err = mcp.NewServer(a).Serve(c.Context, os.Stdin, os.Stdout)
			if err != nil && c.Context.Err() == nil {
				return fmt.Errorf("server error: %w", err)
			}
			a.Logger.Info("server stopped")
			return nil
		},
	}
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Retrieve the passages most relevant to a query",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "k",
				Usage: "Number of passages to return (0 uses the configured default)",
			},
			&cli.IntFlag{
				Name:  "lexical-limit",
				Usage: "Size of the full-text prefilter (0 uses the configured default)",
			},
			&cli.BoolFlag{
				Name:  "context",
				Usage: "Print passages as one context block instead of a ranked list",
			},
			&cli.BoolFlag{
				Name:  "best",
				Usage: "Print only the top passage, cut to a short preview",
			},
		},
		Action: func(c *cli.Context) error {
			query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if query == "" {
				return fmt.Errorf("query is required")
			}

			a, err := openApp(c)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			resp, err := a.Searcher.SearchScored(c.Context, searcher.SearchRequest{
				Query:        query,
				K:            c.Int("k"),
				LexicalLimit: c.Int("lexical-limit"),
			})
			if err != nil {
				return err
			}

			out := c.App.Writer
			if c.Bool("best") {
				if len(resp.Results) == 0 {
					_, err = fmt.Fprintln(out, "No passages found.")
					return err
				}
				_, err = fmt.Fprintln(out, types.Preview(resp.Results[0].Text, types.PreviewRunes))
				return err
			}
			if c.Bool("context") {
				_, err = fmt.Fprintln(out, types.JoinContext(types.Texts(resp.Results)))
				return err
			}

			if len(resp.Results) == 0 {
				_, err = fmt.Fprintln(out, "No passages found.")
				return err
			}
			for i, r := range resp.Results {
				if _, err := fmt.Fprintf(out, "[%d] chunk %d (score %.4f)\n%s\n\n", i+1, r.ChunkID, r.Score, r.Text); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func ingestCommand() *cli.Command {
	return &cli.Command{
		Name:      "ingest",
		Usage:     "Chunk, embed and index .txt and .md files under a path",
		ArgsUsage: "<path>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Re-index files whose content has not changed",
			},
			&cli.BoolFlag{
				Name:  "prune",
				Usage: "Remove indexed files that no longer exist under the path",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Parallel file workers (0 uses the configured default)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("exactly one path is required")
			}
			root, err := filepath.Abs(c.Args().First())
			if err != nil {
				return fmt.Errorf("invalid path: %w", err)
			}
			if _, err := os.Stat(root); err != nil {
				return fmt.Errorf("path not found: %s", root)
			}

			a, err := openApp(c)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			cfg := a.IngestConfig(c.Bool("force"), c.Bool("prune"))
			if c.IsSet("workers") {
				cfg.Workers = c.Int("workers")
			}

			stats, err := a.Indexer.IndexCorpus(c.Context, root, cfg)
			if err != nil {
				return err
			}

			out := c.App.Writer
			_, _ = fmt.Fprintf(out, "Indexed %s in %s\n", root, stats.Duration.Round(time.Millisecond))
			_, _ = fmt.Fprintf(out, "  files indexed:   %d\n", stats.FilesIndexed)
			_, _ = fmt.Fprintf(out, "  files skipped:   %d\n", stats.FilesSkipped)
			_, _ = fmt.Fprintf(out, "  files failed:    %d\n", stats.FilesFailed)
			_, _ = fmt.Fprintf(out, "  files removed:   %d\n", stats.FilesRemoved)
			_, _ = fmt.Fprintf(out, "  chunks created:  %d\n", stats.ChunksCreated)
			_, _ = fmt.Fprintf(out, "  embeddings:      %d\n", stats.EmbeddingsGenerated)
			for _, msg := range stats.ErrorMessages {
				_, _ = fmt.Fprintf(out, "  error: %s\n", msg)
			}
			return nil
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show index statistics and health",
		Action: func(c *cli.Context) error {
			a, err := openApp(c)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			status, err := a.Storage.GetStatus(c.Context)
			if err != nil {
				return err
			}

			out := c.App.Writer
			_, _ = fmt.Fprintf(out, "Sources:    %d\n", status.SourcesCount)
			_, _ = fmt.Fprintf(out, "Chunks:     %d\n", status.ChunksCount)
			_, _ = fmt.Fprintf(out, "Embeddings: %d\n", status.EmbeddingsCount)
			_, _ = fmt.Fprintf(out, "Dimension:  %d (embedder %s/%s, %d)\n",
				status.Dimension, a.Embedder.Provider(), a.Embedder.Model(), a.Embedder.Dimension())
			_, _ = fmt.Fprintf(out, "Size:       %.2f MB\n", status.IndexSizeMB)
			if !status.LastIndexedAt.IsZero() {
				_, _ = fmt.Fprintf(out, "Indexed at: %s\n", status.LastIndexedAt.Format("2006-01-02 15:04:05"))
			}
			_, _ = fmt.Fprintf(out, "FTS index:  %v\n", status.Health.FTSIndexBuilt)
			_, _ = fmt.Fprintf(out, "Vector ext: %v\n", status.Health.VectorIndexAvailable)
			return nil
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print version and build information",
		Action: func(c *cli.Context) error {
			out := c.App.Writer
			_, _ = fmt.Fprintf(out, "hybridrag %s\n", version)
			_, _ = fmt.Fprintf(out, "Build Time: %s\n", buildTime)
			_, _ = fmt.Fprintf(out, "Build Mode: %s\n", storage.BuildMode)
			_, _ = fmt.Fprintf(out, "SQLite Driver: %s\n", storage.DriverName)
			_, _ = fmt.Fprintf(out, "Vector Extension: %v\n", storage.VectorExtensionAvailable)
			return nil
		},
	}
}
