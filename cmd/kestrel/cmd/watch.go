package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/kestrelsearch/kestrel/internal/chunk"
	"github.com/kestrelsearch/kestrel/internal/embed"
	"github.com/kestrelsearch/kestrel/internal/ingest"
	"github.com/kestrelsearch/kestrel/internal/ops"
	"github.com/kestrelsearch/kestrel/internal/rest"
	"github.com/kestrelsearch/kestrel/internal/scanner"
	"github.com/kestrelsearch/kestrel/internal/watch"
)

func newWatchCmd() *cobra.Command {
	var (
		repository string
		debounce   time.Duration
		initial    bool
	)

	cmd := &cobra.Command{
		Use:   "watch <path>",
		Short: "Keep the index in step with a repository tree",
		Long: `Watch performs an initial ingestion, then applies file changes
incrementally: modified files are re-chunked and re-uploaded, deleted
files have their documents removed. Runs until interrupted.

Example:
  kestrel watch ~/src/payments --repository payments`,
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			root := args[0]
			if repository == "" {
				abs, err := filepath.Abs(root)
				if err != nil {
					return err
				}
				repository = filepath.Base(abs)
			}
			return runWatch(c, root, repository, debounce, initial)
		},
	}

	cmd.Flags().StringVarP(&repository, "repository", "r", "", "Repository tag (default: directory name)")
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounceWindow, "Event coalescing window")
	cmd.Flags().BoolVar(&initial, "initial-ingest", true, "Run a full ingestion before watching")
	return cmd
}

func runWatch(c *cobra.Command, root, repository string, debounce time.Duration, initial bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := slog.Default()

	client, err := rest.NewClient(cfg, logger)
	if err != nil {
		return err
	}
	defer client.Cleanup()
	svc := ops.New(client, logger)

	embedder, err := embed.NewFromConfig(cfg.Embedding)
	if err != nil {
		return err
	}
	defer func() { _ = embedder.Close() }()

	sc, err := scanner.New(cfg.Processor, logger)
	if err != nil {
		return err
	}
	absRoot, err := sc.ValidateRoot(root)
	if err != nil {
		return err
	}
	processor := ingest.NewProcessor(cfg, sc, chunk.NewCodeChunker(), embedder, svc, logger)

	out := c.OutOrStdout()
	if initial {
		stats, err := processor.IngestRepository(c.Context(), absRoot, repository, cfg.IndexName)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Initial ingestion: %d files, %d documents\n",
			stats.FilesScanned, stats.DocumentsUploaded)
	}

	w, err := watch.NewWatcher(absRoot, cfg.Processor, debounce, logger)
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()
	if err := w.Start(c.Context()); err != nil {
		return err
	}
	fmt.Fprintf(out, "Watching %s (ctrl-c to stop)\n", absRoot)

	syncer := watch.NewSyncer(processor, sc, svc, repository, cfg.IndexName, logger)
	err = syncer.Run(c.Context(), w)
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(out, "Stopped.")
		return nil
	}
	return err
}
