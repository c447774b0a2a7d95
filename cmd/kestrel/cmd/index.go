package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newIndexCmd() *cobra.Command {
	var repository string

	cmd := &cobra.Command{
		Use:   "index <path>",
		Short: "Index a repository into the search service",
		Long: `Index walks the repository tree, chunks source files by function
and class, attaches embeddings when configured, and uploads the
documents. The target index is created on first use.

Examples:
  kestrel index .
  kestrel index ~/src/payments --repository payments`,
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

			cli, err := newCLI()
			if err != nil {
				return err
			}
			defer cli.Cleanup()

			stats, err := cli.IndexRepository(c.Context(), root, repository)
			if err != nil {
				return err
			}
			out := c.OutOrStdout()
			fmt.Fprintf(out, "Indexed %s into %q\n", repository, cli.IndexName())
			fmt.Fprintf(out, "  files scanned:   %d (%d failed)\n", stats.FilesScanned, stats.FilesFailed)
			fmt.Fprintf(out, "  chunks created:  %d\n", stats.ChunksCreated)
			fmt.Fprintf(out, "  docs uploaded:   %d (%d failed, %d truncated)\n",
				stats.DocumentsUploaded, stats.DocumentsFailed, stats.Truncated)
			if stats.EmbedCache.Hits+stats.EmbedCache.Misses > 0 {
				fmt.Fprintf(out, "  embed cache:     %d hits, %d misses\n",
					stats.EmbedCache.Hits, stats.EmbedCache.Misses)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&repository, "repository", "r", "", "Repository tag (default: directory name)")
	return cmd
}
