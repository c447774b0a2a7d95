package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kestrelsearch/kestrel/internal/automation"
)

func newReindexCmd() *cobra.Command {
	var (
		method     string
		schemaPath string
		filter     string
		repoRoot   string
		repository string
		clearFirst bool
		dryRun     bool
	)

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild, clear, or re-ingest the index",
		Long: `Reindex supports three methods:

  drop-rebuild  delete the index and recreate it from its own schema
                (or from a backup file via --schema)
  clear         delete the documents matching --filter
  repository    re-ingest a repository tree, optionally clearing its
                old documents first

Examples:
  kestrel reindex --method drop-rebuild --dry-run
  kestrel reindex --method clear --filter "repository eq 'payments'"
  kestrel reindex --method repository --root ~/src/payments -r payments`,
		RunE: func(c *cobra.Command, args []string) error {
			cli, err := newCLI()
			if err != nil {
				return err
			}
			defer cli.Cleanup()

			result, err := cli.Reindex.PerformReindex(c.Context(), automation.ReindexRequest{
				Method:     method,
				IndexName:  cli.IndexName(),
				SchemaPath: schemaPath,
				Filter:     filter,
				RepoRoot:   repoRoot,
				Repository: repository,
				ClearFirst: clearFirst,
				DryRun:     dryRun,
			})
			if err != nil {
				return err
			}

			out := c.OutOrStdout()
			if result.DryRun {
				fmt.Fprintf(out, "Dry run: would %s\n", result.PlannedAction)
				return nil
			}
			fmt.Fprintf(out, "Reindex (%s) complete\n", result.Method)
			if result.DocumentsCleared > 0 {
				fmt.Fprintf(out, "  documents cleared: %d\n", result.DocumentsCleared)
			}
			if result.IngestStats != nil {
				fmt.Fprintf(out, "  docs uploaded:     %d (%d failed)\n",
					result.IngestStats.DocumentsUploaded, result.IngestStats.DocumentsFailed)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&method, "method", "m", automation.MethodDropRebuild,
		"Reindex method: drop-rebuild, clear, repository")
	cmd.Flags().StringVar(&schemaPath, "schema", "", "Backup file to recreate the schema from (drop-rebuild)")
	cmd.Flags().StringVar(&filter, "filter", "", "Document filter (clear, or repository with --clear-first)")
	cmd.Flags().StringVar(&repoRoot, "root", "", "Repository tree to ingest (repository)")
	cmd.Flags().StringVarP(&repository, "repository", "r", "", "Repository tag (repository)")
	cmd.Flags().BoolVar(&clearFirst, "clear-first", false, "Clear --filter matches before ingesting (repository)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report the intended action without side effects")

	cmd.AddCommand(newReindexAnalyzeCmd())
	return cmd
}

func newReindexAnalyzeCmd() *cobra.Command {
	var thresholdDays int

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Recommend reindex actions based on index health",
		RunE: func(c *cobra.Command, args []string) error {
			cli, err := newCLI()
			if err != nil {
				return err
			}
			defer cli.Cleanup()

			recs, err := cli.Reindex.AnalyzeReindexNeed(c.Context(), cli.IndexName(), thresholdDays)
			if err != nil {
				return err
			}
			out := c.OutOrStdout()
			for _, rec := range recs {
				fmt.Fprintf(out, "P%d %-14s %s\n", rec.Priority, rec.Action, rec.Reason)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&thresholdDays, "threshold-days", 7, "Documents older than this count as stale")
	return cmd
}
